package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

// Transaction records what is owed to a transporter for one GR number of a request.
// Name and location fields are snapshots taken at creation and are not re-synced.
type Transaction struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	RequestID     uint   `gorm:"not null;uniqueIndex:idx_txn_request_transporter_gr" json:"request_id"`
	TransporterID uint   `gorm:"not null;index;uniqueIndex:idx_txn_request_transporter_gr" json:"transporter_id"`
	GRNumber      string `gorm:"column:gr_number;size:64;not null;uniqueIndex:idx_txn_request_transporter_gr" json:"gr_number"`

	ConsignerName   string `gorm:"size:180" json:"consigner_name"`
	ConsigneeName   string `gorm:"size:180" json:"consignee_name"`
	TransporterName string `gorm:"size:180" json:"transporter_name"`
	FromLocation    string `gorm:"size:180" json:"from_location"`
	ToLocation      string `gorm:"size:180" json:"to_location"`

	RequestedPrice    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"requested_price"`
	TransporterCharge decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"transporter_charge"`
	GSTPercentage     decimal.Decimal `gorm:"column:gst_percentage;type:decimal(5,2);not null;default:0" json:"gst_percentage"`

	TotalPaid         decimal.Decimal  `gorm:"type:decimal(12,2);not null;default:0" json:"total_paid"`
	LastPaymentAmount *decimal.Decimal `gorm:"type:decimal(12,2)" json:"last_payment_amount,omitempty"`
	LastPaymentMode   *string          `gorm:"size:32" json:"last_payment_mode,omitempty"`
	LastPaymentDate   *time.Time       `gorm:"type:date" json:"last_payment_date,omitempty"`

	// computed on load, never stored
	Outstanding decimal.Decimal `gorm:"-" json:"outstanding"`
	GSTAmount   decimal.Decimal `gorm:"-" json:"gst_amount"`

	Request *TransportRequest `gorm:"foreignKey:RequestID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	Details []PaymentDetail   `gorm:"foreignKey:TransactionID;constraint:OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Derive fills the read-time amounts.
func (t *Transaction) Derive() {
	t.Outstanding = t.TransporterCharge.Sub(t.TotalPaid)
	t.GSTAmount = t.TransporterCharge.Mul(t.GSTPercentage).Div(hundred).Round(2)
}

func (t *Transaction) AfterFind(tx *gorm.DB) error {
	t.Derive()
	return nil
}
