package repository

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"transport-ledger-backend/internal/models"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) DB() *gorm.DB {
	return r.db
}

func (r *TransactionRepository) WithTx(tx *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: tx}
}

type TransactionFilter struct {
	RequestID     uint
	TransporterID uint
	GRNumber      string
}

func (r *TransactionRepository) Create(ctx context.Context, t *models.Transaction) error {
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		return classify("transaction", t.GRNumber, err)
	}
	t.Derive()
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id uint) (*models.Transaction, error) {
	var t models.Transaction
	if err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, classify("transaction", id, err)
	}
	return &t, nil
}

func (r *TransactionRepository) GetForUpdate(ctx context.Context, id uint) (*models.Transaction, error) {
	var t models.Transaction
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&t, "id = ?", id).Error
	if err != nil {
		return nil, classify("transaction", id, err)
	}
	return &t, nil
}

func (r *TransactionRepository) List(ctx context.Context, f TransactionFilter) ([]models.Transaction, error) {
	q := r.db.WithContext(ctx).Model(&models.Transaction{})
	if f.RequestID != 0 {
		q = q.Where("request_id = ?", f.RequestID)
	}
	if f.TransporterID != 0 {
		q = q.Where("transporter_id = ?", f.TransporterID)
	}
	if f.GRNumber != "" {
		q = q.Where("gr_number = ?", f.GRNumber)
	}
	var txs []models.Transaction
	err := q.Order("created_at DESC, id DESC").Find(&txs).Error
	return txs, err
}

func (r *TransactionRepository) AppendDetail(ctx context.Context, d *models.PaymentDetail) error {
	return classify("payment detail", d.InvoiceID, r.db.WithContext(ctx).Create(d).Error)
}

func paymentColumns(t *models.Transaction) map[string]any {
	return map[string]any{
		"total_paid":          t.TotalPaid,
		"last_payment_amount": t.LastPaymentAmount,
		"last_payment_mode":   t.LastPaymentMode,
		"last_payment_date":   t.LastPaymentDate,
		"updated_at":          t.UpdatedAt,
	}
}

func (r *TransactionRepository) UpdatePayment(ctx context.Context, t *models.Transaction) error {
	res := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ?", t.ID).
		Updates(paymentColumns(t))
	if res.Error != nil {
		return classify("transaction", t.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return classify("transaction", t.ID, gorm.ErrRecordNotFound)
	}
	return nil
}

// UpdatePaymentIfPaid writes the payment only while total_paid still equals prior.
func (r *TransactionRepository) UpdatePaymentIfPaid(ctx context.Context, t *models.Transaction, prior decimal.Decimal) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND total_paid = ?", t.ID, prior).
		Updates(paymentColumns(t))
	if res.Error != nil {
		return false, classify("transaction", t.ID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Details returns a transaction's payments, latest first.
func (r *TransactionRepository) Details(ctx context.Context, transactionID uint) ([]models.PaymentDetail, error) {
	var details []models.PaymentDetail
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("payment_date DESC NULLS LAST, created_at DESC, id DESC").
		Find(&details).Error
	return details, err
}

// Delete removes a transaction after its payment details. Run it inside a transaction.
func (r *TransactionRepository) Delete(ctx context.Context, id uint) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("transaction_id = ?", id).Delete(&models.PaymentDetail{}).Error; err != nil {
		return err
	}
	res := db.Where("id = ?", id).Delete(&models.Transaction{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return classify("transaction", id, gorm.ErrRecordNotFound)
	}
	return nil
}
