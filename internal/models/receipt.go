package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment status values derived by the balance calculator.
const (
	StatusPending  = "Pending"
	StatusPartial  = "Partial"
	StatusPaid     = "Paid"
	StatusOverpaid = "Overpaid"
)

// Receipt is one invoice raised against a transport request, with its running balance.
// Voucher and payment fields describe only the most recent payment; the full trail is PaymentEvents.
type Receipt struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	RequestID     uint            `gorm:"index;not null" json:"request_id"`
	CustomerID    uint            `gorm:"index;not null" json:"customer_id"`
	InvoiceNo     string          `gorm:"size:64;index;not null" json:"invoice_no"`
	InvoiceDate   time.Time       `gorm:"type:date;index;not null" json:"invoice_date"`
	InvoiceAmount decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"invoice_amount"`

	ReceivedAmount decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"received_amount"`
	Balance        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"balance"`
	PaymentStatus  string          `gorm:"size:20;index;not null;default:'Pending'" json:"payment_status"`

	VoucherNo   *string    `gorm:"size:64" json:"voucher_no,omitempty"`
	VoucherDate *time.Time `gorm:"type:date" json:"voucher_date,omitempty"`
	PaymentMode *string    `gorm:"size:32" json:"payment_mode,omitempty"`
	PaymentDate *time.Time `gorm:"type:date" json:"payment_date,omitempty"`
	Remarks     *string    `gorm:"type:text" json:"remarks,omitempty"`

	Request  *TransportRequest `gorm:"foreignKey:RequestID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	Customer *Customer         `gorm:"foreignKey:CustomerID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	Events   []PaymentEvent    `gorm:"foreignKey:ReceiptID;constraint:OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReceiptStatRow is one status bucket of the receipts summary.
type ReceiptStatRow struct {
	PaymentStatus string          `json:"payment_status"`
	Count         int64           `json:"count"`
	InvoiceSum    decimal.Decimal `json:"invoice_sum"`
	ReceivedSum   decimal.Decimal `json:"received_sum"`
	BalanceSum    decimal.Decimal `json:"balance_sum"`
}
