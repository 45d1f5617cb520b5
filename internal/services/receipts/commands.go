package receipts

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateReceiptCommand carries a new invoice. ReceivedAmount seeds an opening payment;
// Balance and PaymentStatus are accepted for compatibility but always re-derived.
type CreateReceiptCommand struct {
	RequestID     uint            `json:"request_id" validate:"required"`
	CustomerID    uint            `json:"customer_id" validate:"required"`
	InvoiceNo     string          `json:"invoice_no" validate:"required,max=64"`
	InvoiceDate   time.Time       `json:"invoice_date" validate:"required"`
	InvoiceAmount decimal.Decimal `json:"invoice_amount" validate:"gt=0"`

	ReceivedAmount *decimal.Decimal `json:"received_amount" validate:"omitempty,gte=0"`
	Balance        *decimal.Decimal `json:"balance"`
	PaymentStatus  *string          `json:"payment_status"`

	VoucherNo   *string    `json:"voucher_no" validate:"omitempty,max=64"`
	VoucherDate *time.Time `json:"voucher_date"`
	PaymentMode *string    `json:"payment_mode" validate:"omitempty,max=32"`
	PaymentDate *time.Time `json:"payment_date"`
	Remarks     *string    `json:"remarks"`
}

// ApplyPaymentCommand is one payment against a receipt.
type ApplyPaymentCommand struct {
	ReceivedAmount decimal.Decimal `json:"received_amount" validate:"gt=0"`
	VoucherNo      *string         `json:"voucher_no" validate:"omitempty,max=64"`
	VoucherDate    *time.Time      `json:"voucher_date"`
	PaymentMode    *string         `json:"payment_mode" validate:"omitempty,max=32"`
	PaymentDate    *time.Time      `json:"payment_date"`
	Remarks        *string         `json:"remarks"`
}
