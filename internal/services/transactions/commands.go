package transactions

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreateTransactionCommand struct {
	RequestID         uint            `json:"request_id" validate:"required"`
	TransporterID     uint            `json:"transporter_id" validate:"required"`
	TransporterName   string          `json:"transporter_name" validate:"max=180"`
	GRNumber          string          `json:"gr_number" validate:"required,max=64"`
	TransporterCharge decimal.Decimal `json:"transporter_charge" validate:"gte=0"`
	GSTPercentage     decimal.Decimal `json:"gst_percentage" validate:"gte=0,lte=100"`
}

// PaymentCommand is one payment made to the transporter.
type PaymentCommand struct {
	Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
	PaymentMode *string         `json:"payment_mode" validate:"omitempty,max=32"`
	PaymentDate *time.Time      `json:"payment_date"`
	Remarks     *string         `json:"remarks"`
}
