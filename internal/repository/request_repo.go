package repository

import (
	"context"

	"gorm.io/gorm"

	"transport-ledger-backend/internal/models"
)

// RequestRepository reads transport requests and customers for the ledger.
type RequestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

func (r *RequestRepository) GetRequest(ctx context.Context, id uint) (*models.TransportRequest, error) {
	var req models.TransportRequest
	if err := r.db.WithContext(ctx).First(&req, "id = ?", id).Error; err != nil {
		return nil, classify("transport request", id, err)
	}
	return &req, nil
}

func (r *RequestRepository) CustomerExists(ctx context.Context, id uint) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Customer{}).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

// UnbilledRequests returns requests that carry billing data but have no receipt yet.
func (r *RequestRepository) UnbilledRequests(ctx context.Context) ([]models.TransportRequest, error) {
	var reqs []models.TransportRequest
	err := r.db.WithContext(ctx).
		Where("consigner IS NOT NULL AND TRIM(consigner) <> ''").
		Where("requested_price > 0").
		Where("NOT EXISTS (SELECT 1 FROM receipts WHERE receipts.request_id = transport_requests.id)").
		Order("id ASC").
		Find(&reqs).Error
	return reqs, err
}
