package reconciliation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"transport-ledger-backend/internal/kvstore"
	"transport-ledger-backend/internal/ledger"
	"transport-ledger-backend/internal/models"
	"transport-ledger-backend/internal/repository"
	tu "transport-ledger-backend/internal/testutil"
)

func newService(t *testing.T) (*ReconciliationService, *gorm.DB, kvstore.Store) {
	db := tu.NewDB(t)
	store := kvstore.NewMemory()
	svc := NewReconciliationService(
		repository.NewReceiptRepository(db),
		repository.NewRequestRepository(db),
		Options{Store: store, Logger: zap.NewNop()},
	)
	return svc, db, store
}

func seedReceipt(t *testing.T, db *gorm.DB, req *models.TransportRequest, invoiceNo string, createdAt time.Time) *models.Receipt {
	t.Helper()
	rc := &models.Receipt{
		RequestID:      req.ID,
		CustomerID:     req.CustomerID,
		InvoiceNo:      invoiceNo,
		InvoiceDate:    tu.Date(2023, time.June, 1),
		InvoiceAmount:  req.RequestedPrice,
		ReceivedAmount: tu.Money("0"),
		Balance:        req.RequestedPrice,
		PaymentStatus:  models.StatusPending,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
	require.NoError(t, db.Create(rc).Error)
	return rc
}

func seedEvent(t *testing.T, db *gorm.DB, receiptID uint, amount string) {
	t.Helper()
	require.NoError(t, db.Create(&models.PaymentEvent{ReceiptID: receiptID, Amount: tu.Money(amount), CreatedAt: time.Now()}).Error)
}

func TestRun_DedupesAndBackfills(t *testing.T) {
	svc, db, _ := newService(t)
	ctx := context.Background()
	cust := tu.SeedCustomer(t, db, "JK Lakshmi")

	dup := tu.SeedRequest(t, db, cust.ID, "JK Lakshmi Cement", "9000", time.Date(2023, 5, 2, 10, 0, 0, 0, time.UTC))
	t1 := time.Date(2023, 6, 1, 8, 0, 0, 0, time.UTC)
	keep := seedReceipt(t, db, dup, "OLD-1", t1)
	second := seedReceipt(t, db, dup, "OLD-2", t1.Add(time.Hour))
	third := seedReceipt(t, db, dup, "OLD-3", t1.Add(2*time.Hour))
	seedEvent(t, db, keep.ID, "1000")
	seedEvent(t, db, second.ID, "500")

	unbilled := tu.SeedRequest(t, db, cust.ID, "Birla Corp", "12500.5", time.Date(2022, 11, 30, 23, 0, 0, 0, time.UTC))
	// not billable: no consigner, blank consigner, zero price
	tu.SeedRequest(t, db, cust.ID, "", "700", time.Now())
	tu.SeedRequest(t, db, cust.ID, "   ", "700", time.Now())
	tu.SeedRequest(t, db, cust.ID, "Ambuja", "0", time.Now())

	res, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.DuplicatesRemoved)
	assert.Equal(t, 1, res.CreatedCount)
	assert.Zero(t, res.FailedCount)

	rows, err := svc.receipts.ListByRequest(ctx, dup.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, keep.ID, rows[0].ID, "earliest created receipt survives")

	var events []models.PaymentEvent
	require.NoError(t, db.Find(&events).Error)
	require.Len(t, events, 1, "events of removed receipts are gone")
	assert.Equal(t, keep.ID, events[0].ReceiptID)
	for _, id := range []uint{second.ID, third.ID} {
		var n int64
		db.Model(&models.Receipt{}).Where("id = ?", id).Count(&n)
		assert.Zero(t, n)
	}

	created, err := svc.receipts.ListByRequest(ctx, unbilled.ID)
	require.NoError(t, err)
	require.Len(t, created, 1)
	rc := created[0]
	assert.Equal(t, InvoiceNumber(*unbilled), rc.InvoiceNo)
	assert.Regexp(t, `^INV-2022-\d{6}$`, rc.InvoiceNo)
	assert.True(t, tu.Date(2022, time.November, 30).Equal(rc.InvoiceDate))
	assert.True(t, tu.Money("12500.50").Equal(rc.InvoiceAmount))
	assert.True(t, rc.ReceivedAmount.IsZero())
	assert.True(t, rc.Balance.Equal(rc.InvoiceAmount))
	assert.Equal(t, models.StatusPending, rc.PaymentStatus)
	assert.Equal(t, cust.ID, rc.CustomerID)

	total, _ := svc.receipts.Count(ctx)
	assert.EqualValues(t, 2, total)

	run, err := svc.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, run.Status)
	assert.Equal(t, 2, run.DuplicatesRemoved)
	assert.Equal(t, 1, run.CreatedCount)
	assert.NotNil(t, run.CompletedAt)

	progress, ok := svc.RunProgress(res.RunID)
	require.True(t, ok)
	assert.Equal(t, models.RunCompleted, progress.Status)
	assert.Equal(t, "backfill", progress.Phase)
}

func TestRun_IsIdempotent(t *testing.T) {
	svc, db, _ := newService(t)
	ctx := context.Background()
	cust := tu.SeedCustomer(t, db, "Dalmia")
	req := tu.SeedRequest(t, db, cust.ID, "Dalmia Bharat", "4000", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	kept := seedReceipt(t, db, req, "A", time.Now())
	seedReceipt(t, db, req, "B", time.Now().Add(time.Second))
	seedEvent(t, db, kept.ID, "1500")
	tu.SeedRequest(t, db, cust.ID, "Dalmia Bharat", "800", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))

	first, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.DuplicatesRemoved)
	assert.Equal(t, 1, first.CreatedCount)
	before, _ := svc.receipts.Count(ctx)
	eventsBefore, err := svc.receipts.CountEvents(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, eventsBefore, "events of the kept receipt survive")

	second, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.DuplicatesRemoved)
	assert.Zero(t, second.CreatedCount)
	after, _ := svc.receipts.Count(ctx)
	assert.Equal(t, before, after)
	eventsAfter, err := svc.receipts.CountEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, eventsBefore, eventsAfter)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRun_DuplicateTiesKeepLowestID(t *testing.T) {
	svc, db, _ := newService(t)
	cust := tu.SeedCustomer(t, db, "Tie")
	req := tu.SeedRequest(t, db, cust.ID, "Tie Co", "100", time.Now())
	at := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	first := seedReceipt(t, db, req, "T-1", at)
	seedReceipt(t, db, req, "T-2", at)

	_, err := svc.Run(context.Background())
	require.NoError(t, err)
	rows, _ := svc.receipts.ListByRequest(context.Background(), req.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, first.ID, rows[0].ID)
}

func TestRun_ItemFailuresDoNotAbortBatch(t *testing.T) {
	svc, db, _ := newService(t)
	ctx := context.Background()
	cust := tu.SeedCustomer(t, db, "Good")
	good := tu.SeedRequest(t, db, cust.ID, "Good Co", "100", time.Now())
	orphan := tu.SeedRequest(t, db, 9999, "Orphan Co", "100", time.Now()) // customer does not exist

	res, err := svc.Run(ctx)
	require.Error(t, err)
	var pf *ledger.PartialFailure
	require.True(t, errors.As(err, &pf))
	require.NotNil(t, res)
	assert.Equal(t, 1, res.CreatedCount)
	assert.Equal(t, 1, res.FailedCount)
	require.Len(t, pf.Failures, 1)
	assert.Contains(t, pf.Failures[0].Key, "request:")

	rows, _ := svc.receipts.ListByRequest(ctx, good.ID)
	assert.Len(t, rows, 1)
	rows, _ = svc.receipts.ListByRequest(ctx, orphan.ID)
	assert.Empty(t, rows)

	run, err := svc.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, 1, run.FailedCount)
	var stored []ledger.ItemFailure
	require.NoError(t, json.Unmarshal(run.Failures, &stored))
	assert.Len(t, stored, 1)
}

func TestRun_LeaseHeldIsConflict(t *testing.T) {
	svc, _, store := newService(t)
	ctx := context.Background()

	ok, err := store.SetNX(ctx, leaseKey, "other-instance", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = svc.Run(ctx)
	assert.True(t, ledger.IsConflict(err))

	value, found, _ := store.Get(ctx, leaseKey)
	assert.True(t, found)
	assert.Equal(t, "other-instance", value, "foreign lease left alone")

	require.NoError(t, store.Delete(ctx, leaseKey))
	_, err = svc.Run(ctx)
	require.NoError(t, err)
	_, found, _ = store.Get(ctx, leaseKey)
	assert.False(t, found, "lease released after run")
}

func TestGetRun_Unknown(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.GetRun(context.Background(), uuid.New())
	assert.True(t, ledger.IsNotFound(err))
}
