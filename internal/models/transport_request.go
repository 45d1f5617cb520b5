package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransportRequest is owned by the request-management side of the system.
// The ledger only reads it, for billing snapshots and reconciliation.
type TransportRequest struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	CustomerID     uint            `gorm:"index;not null" json:"customer_id"`
	Consigner      string          `gorm:"size:180" json:"consigner"`
	Consignee      string          `gorm:"size:180" json:"consignee"`
	FromLocation   string          `gorm:"size:180" json:"from_location"`
	ToLocation     string          `gorm:"size:180" json:"to_location"`
	RequestedPrice decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"requested_price"`
	CreatedAt      time.Time       `json:"created_at"`
}

type Customer struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:180;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
