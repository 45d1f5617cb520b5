package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

type ReconciliationRun struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Status            string         `gorm:"size:20;index;not null" json:"status"`
	DuplicatesRemoved int            `json:"duplicates_removed"`
	CreatedCount      int            `json:"created_count"`
	FailedCount       int            `json:"failed_count"`
	Failures          datatypes.JSON `json:"failures,omitempty"`
	StartedAt         time.Time      `json:"started_at"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

// All returns every ledger model in migration order.
func All() []any {
	return []any{
		&Customer{},
		&TransportRequest{},
		&Receipt{},
		&PaymentEvent{},
		&Transaction{},
		&PaymentDetail{},
		&ReconciliationRun{},
	}
}
