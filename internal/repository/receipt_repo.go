package repository

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"transport-ledger-backend/internal/models"
)

type ReceiptRepository struct {
	db *gorm.DB
}

func NewReceiptRepository(db *gorm.DB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

func (r *ReceiptRepository) DB() *gorm.DB {
	return r.db
}

// WithTx returns a repository bound to tx.
func (r *ReceiptRepository) WithTx(tx *gorm.DB) *ReceiptRepository {
	return &ReceiptRepository{db: tx}
}

// ReceiptFilter is an AND of optional predicates; zero fields are ignored.
type ReceiptFilter struct {
	InvoiceNo     string
	PaymentStatus string
	FromDate      *time.Time
	ToDate        *time.Time
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
	CustomerID    uint
	RequestID     uint
	Consigner     string
}

func (r *ReceiptRepository) Create(ctx context.Context, rc *models.Receipt) error {
	return classify("receipt", rc.RequestID, r.db.WithContext(ctx).Create(rc).Error)
}

// GetByID fetch a single receipt by ID
func (r *ReceiptRepository) GetByID(ctx context.Context, id uint) (*models.Receipt, error) {
	var rc models.Receipt
	if err := r.db.WithContext(ctx).First(&rc, "id = ?", id).Error; err != nil {
		return nil, classify("receipt", id, err)
	}
	return &rc, nil
}

// GetForUpdate reads the receipt holding a row lock until the surrounding transaction ends.
func (r *ReceiptRepository) GetForUpdate(ctx context.Context, id uint) (*models.Receipt, error) {
	var rc models.Receipt
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&rc, "id = ?", id).Error
	if err != nil {
		return nil, classify("receipt", id, err)
	}
	return &rc, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern matches s as a literal, case-insensitive substring.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}

func (r *ReceiptRepository) filtered(ctx context.Context, f ReceiptFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.Receipt{})

	if f.InvoiceNo != "" {
		q = q.Where(`LOWER(receipts.invoice_no) LIKE ? ESCAPE '\'`, containsPattern(f.InvoiceNo))
	}
	if f.PaymentStatus != "" {
		q = q.Where("receipts.payment_status = ?", f.PaymentStatus)
	}
	if f.FromDate != nil {
		q = q.Where("receipts.invoice_date >= ?", *f.FromDate)
	}
	if f.ToDate != nil {
		q = q.Where("receipts.invoice_date < ?", f.ToDate.AddDate(0, 0, 1))
	}
	if f.CreatedFrom != nil {
		q = q.Where("receipts.created_at >= ?", *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		q = q.Where("receipts.created_at < ?", f.CreatedTo.AddDate(0, 0, 1))
	}
	if f.CustomerID != 0 {
		q = q.Where("receipts.customer_id = ?", f.CustomerID)
	}
	if f.RequestID != 0 {
		q = q.Where("receipts.request_id = ?", f.RequestID)
	}
	if f.Consigner != "" {
		q = q.Joins("JOIN transport_requests ON transport_requests.id = receipts.request_id").
			Where(`LOWER(transport_requests.consigner) LIKE ? ESCAPE '\'`, containsPattern(f.Consigner))
	}
	return q
}

// List returns every receipt matching f, newest invoice first. Pagination is left to the caller.
func (r *ReceiptRepository) List(ctx context.Context, f ReceiptFilter) ([]models.Receipt, error) {
	var receipts []models.Receipt
	err := r.filtered(ctx, f).
		Select("receipts.*").
		Order("receipts.invoice_date DESC, receipts.created_at DESC, receipts.id DESC").
		Find(&receipts).Error
	return receipts, err
}

// Stats groups the receipts matching f by payment status.
func (r *ReceiptRepository) Stats(ctx context.Context, f ReceiptFilter) ([]models.ReceiptStatRow, error) {
	var rows []models.ReceiptStatRow
	err := r.filtered(ctx, f).
		Select("receipts.payment_status AS payment_status, COUNT(*) AS count, " +
			"COALESCE(SUM(receipts.invoice_amount),0) AS invoice_sum, " +
			"COALESCE(SUM(receipts.received_amount),0) AS received_sum, " +
			"COALESCE(SUM(receipts.balance),0) AS balance_sum").
		Group("receipts.payment_status").
		Order("receipts.payment_status").
		Scan(&rows).Error
	return rows, err
}

// FindByInvoiceNo returns exact invoice number matches, oldest first.
func (r *ReceiptRepository) FindByInvoiceNo(ctx context.Context, invoiceNo string) ([]models.Receipt, error) {
	var receipts []models.Receipt
	err := r.db.WithContext(ctx).
		Where("invoice_no = ?", invoiceNo).
		Order("created_at ASC, id ASC").
		Find(&receipts).Error
	return receipts, err
}

func (r *ReceiptRepository) AppendEvent(ctx context.Context, ev *models.PaymentEvent) error {
	return classify("payment event", ev.ReceiptID, r.db.WithContext(ctx).Create(ev).Error)
}

func summaryColumns(rc *models.Receipt) map[string]any {
	return map[string]any{
		"received_amount": rc.ReceivedAmount,
		"balance":         rc.Balance,
		"payment_status":  rc.PaymentStatus,
		"voucher_no":      rc.VoucherNo,
		"voucher_date":    rc.VoucherDate,
		"payment_mode":    rc.PaymentMode,
		"payment_date":    rc.PaymentDate,
		"remarks":         rc.Remarks,
		"updated_at":      rc.UpdatedAt,
	}
}

// UpdateSummary writes the running and latest-payment fields unconditionally.
func (r *ReceiptRepository) UpdateSummary(ctx context.Context, rc *models.Receipt) error {
	res := r.db.WithContext(ctx).Model(&models.Receipt{}).
		Where("id = ?", rc.ID).
		Updates(summaryColumns(rc))
	if res.Error != nil {
		return classify("receipt", rc.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return classify("receipt", rc.ID, gorm.ErrRecordNotFound)
	}
	return nil
}

// UpdateSummaryIfReceived writes the summary only while received_amount still equals prior.
// It reports false when another payment got there first.
func (r *ReceiptRepository) UpdateSummaryIfReceived(ctx context.Context, rc *models.Receipt, prior decimal.Decimal) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Receipt{}).
		Where("id = ? AND received_amount = ?", rc.ID, prior).
		Updates(summaryColumns(rc))
	if res.Error != nil {
		return false, classify("receipt", rc.ID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Events returns the payment trail of a receipt, latest payment first.
func (r *ReceiptRepository) Events(ctx context.Context, receiptID uint) ([]models.PaymentEvent, error) {
	var events []models.PaymentEvent
	err := r.db.WithContext(ctx).
		Where("receipt_id = ?", receiptID).
		Order("payment_date DESC NULLS LAST, created_at DESC, id DESC").
		Find(&events).Error
	return events, err
}

func (r *ReceiptRepository) CountEvents(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.PaymentEvent{}).Count(&n).Error
	return n, err
}

// HasEventsTable reports whether the payment_events table is provisioned.
func (r *ReceiptRepository) HasEventsTable(ctx context.Context) bool {
	return r.db.WithContext(ctx).Migrator().HasTable(&models.PaymentEvent{})
}

// DeleteMany removes receipts and, first, their payment events. Run it inside a transaction.
func (r *ReceiptRepository) DeleteMany(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	db := r.db.WithContext(ctx)
	if err := db.Where("receipt_id IN ?", ids).Delete(&models.PaymentEvent{}).Error; err != nil {
		return err
	}
	return db.Where("id IN ?", ids).Delete(&models.Receipt{}).Error
}

func (r *ReceiptRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Receipt{}).Count(&n).Error
	return n, err
}

// DuplicateRequestIDs lists request ids that carry more than one receipt.
func (r *ReceiptRepository) DuplicateRequestIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Receipt{}).
		Select("request_id").
		Group("request_id").
		Having("COUNT(*) > 1").
		Order("request_id").
		Pluck("request_id", &ids).Error
	return ids, err
}

// ListByRequest returns a request's receipts in creation order.
func (r *ReceiptRepository) ListByRequest(ctx context.Context, requestID uint) ([]models.Receipt, error) {
	var receipts []models.Receipt
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at ASC, id ASC").
		Find(&receipts).Error
	return receipts, err
}

// OpenReceipts returns receipts with an outstanding balance, with their request loaded.
// A non-zero customerID narrows the search to one customer.
func (r *ReceiptRepository) OpenReceipts(ctx context.Context, customerID uint) ([]models.Receipt, error) {
	q := r.db.WithContext(ctx).Preload("Request").Where("balance > 0")
	if customerID != 0 {
		q = q.Where("customer_id = ?", customerID)
	}
	var receipts []models.Receipt
	err := q.Order("invoice_date ASC, id ASC").Find(&receipts).Error
	return receipts, err
}
