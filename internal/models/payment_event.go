package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentEvent is one immutable payment applied to a Receipt.
type PaymentEvent struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	ReceiptID   uint            `gorm:"index;not null" json:"receipt_id"`
	Amount      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	VoucherNo   *string         `gorm:"size:64" json:"voucher_no,omitempty"`
	VoucherDate *time.Time      `gorm:"type:date" json:"voucher_date,omitempty"`
	PaymentMode *string         `gorm:"size:32" json:"payment_mode,omitempty"`
	PaymentDate *time.Time      `gorm:"type:date;index" json:"payment_date,omitempty"`
	Remarks     *string         `gorm:"type:text" json:"remarks,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
