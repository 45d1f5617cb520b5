package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentDetail is one payment made against a Transaction.
type PaymentDetail struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	TransactionID uint            `gorm:"index;not null" json:"transaction_id"`
	InvoiceID     string          `gorm:"size:64;uniqueIndex;not null" json:"invoice_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	PaymentMode   *string         `gorm:"size:32" json:"payment_mode,omitempty"`
	PaymentDate   *time.Time      `gorm:"type:date;index" json:"payment_date,omitempty"`
	Remarks       *string         `gorm:"type:text" json:"remarks,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
