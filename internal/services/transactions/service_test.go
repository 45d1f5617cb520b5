package transactions_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"transport-ledger-backend/internal/idgen"
	"transport-ledger-backend/internal/ledger"
	"transport-ledger-backend/internal/models"
	"transport-ledger-backend/internal/repository"
	"transport-ledger-backend/internal/services/transactions"
	tu "transport-ledger-backend/internal/testutil"
)

func newService(t *testing.T, guard ledger.GuardMode) (*transactions.Service, *models.TransportRequest) {
	svc, req, _ := newServiceDB(t, guard)
	return svc, req
}

func newServiceDB(t *testing.T, guard ledger.GuardMode) (*transactions.Service, *models.TransportRequest, *gorm.DB) {
	db := tu.NewDB(t)
	ids, err := idgen.NewAllocator(1)
	require.NoError(t, err)

	svc := transactions.NewService(
		repository.NewTransactionRepository(db),
		repository.NewRequestRepository(db),
		ids,
		transactions.Options{Guard: guard, Logger: zap.NewNop()},
	)
	customer := tu.SeedCustomer(t, db, "UltraTech")
	req := tu.SeedRequest(t, db, customer.ID, "UltraTech Cement", "25000", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	return svc, req, db
}

func create(t *testing.T, svc *transactions.Service, requestID uint, gr, charge string) *models.Transaction {
	t.Helper()
	txn, err := svc.CreateTransaction(context.Background(), transactions.CreateTransactionCommand{
		RequestID:         requestID,
		TransporterID:     7,
		TransporterName:   "Sharma Roadlines",
		GRNumber:          gr,
		TransporterCharge: tu.Money(charge),
		GSTPercentage:     tu.Money("12"),
	})
	require.NoError(t, err)
	return txn
}

func payment(amount string, day int) transactions.PaymentCommand {
	mode := "RTGS"
	d := tu.Date(2024, time.February, day)
	return transactions.PaymentCommand{Amount: tu.Money(amount), PaymentMode: &mode, PaymentDate: &d}
}

func TestCreateTransaction_SnapshotsRequest(t *testing.T) {
	svc, req := newService(t, ledger.GuardNone)

	txn := create(t, svc, req.ID, "GR-001", "18000")

	assert.Equal(t, "UltraTech Cement", txn.ConsignerName)
	assert.Equal(t, req.Consignee, txn.ConsigneeName)
	assert.Equal(t, "Pune", txn.FromLocation)
	assert.Equal(t, "Nagpur", txn.ToLocation)
	assert.True(t, tu.Money("25000").Equal(txn.RequestedPrice))
	assert.True(t, tu.Money("18000").Equal(txn.Outstanding))
	assert.True(t, tu.Money("2160").Equal(txn.GSTAmount), "12%% of 18000, got %s", txn.GSTAmount)

	got, err := svc.GetTransaction(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.True(t, tu.Money("18000").Equal(got.Outstanding), "outstanding derived on load")
}

func TestCreateTransaction_Rejections(t *testing.T) {
	svc, req := newService(t, ledger.GuardNone)
	ctx := context.Background()
	create(t, svc, req.ID, "GR-DUP", "1000")

	_, err := svc.CreateTransaction(ctx, transactions.CreateTransactionCommand{
		RequestID: req.ID, TransporterID: 7, GRNumber: "GR-DUP", TransporterCharge: tu.Money("1000"),
	})
	assert.True(t, ledger.IsConflict(err), "duplicate: %v", err)

	_, err = svc.CreateTransaction(ctx, transactions.CreateTransactionCommand{
		RequestID: 9999, TransporterID: 7, GRNumber: "GR-X", TransporterCharge: tu.Money("1000"),
	})
	assert.True(t, ledger.IsNotFound(err), "missing request: %v", err)

	_, err = svc.CreateTransaction(ctx, transactions.CreateTransactionCommand{
		RequestID: req.ID, TransporterID: 7, TransporterCharge: tu.Money("-1"),
	})
	assert.True(t, ledger.IsValidation(err))
}

func TestApplyPayment_AccumulatesAcrossGuards(t *testing.T) {
	for _, guard := range []ledger.GuardMode{ledger.GuardNone, ledger.GuardCAS, ledger.GuardLock, ledger.GuardMutex} {
		t.Run(string(guard), func(t *testing.T) {
			svc, req := newService(t, guard)
			ctx := context.Background()
			txn := create(t, svc, req.ID, "GR-100", "10000")

			_, first, err := svc.ApplyPayment(ctx, txn.ID, payment("2500.50", 1))
			require.NoError(t, err)
			got, second, err := svc.ApplyPayment(ctx, txn.ID, payment("1499.50", 9))
			require.NoError(t, err)

			assert.True(t, tu.Money("4000").Equal(got.TotalPaid), "total %s", got.TotalPaid)
			assert.True(t, tu.Money("6000").Equal(got.Outstanding), "outstanding %s", got.Outstanding)
			require.NotNil(t, got.LastPaymentAmount)
			assert.True(t, tu.Money("1499.50").Equal(*got.LastPaymentAmount))
			assert.True(t, tu.Date(2024, time.February, 9).Equal(*got.LastPaymentDate))

			assert.True(t, strings.HasPrefix(first.InvoiceID, "TXN-"))
			assert.NotEqual(t, first.InvoiceID, second.InvoiceID)

			history := svc.GetPayments(ctx, txn.ID)
			require.Len(t, history, 2)
			assert.Equal(t, second.InvoiceID, history[0].InvoiceID, "latest first")
		})
	}
}

func TestApplyPayment_InvalidOrMissing(t *testing.T) {
	svc, req := newService(t, ledger.GuardCAS)
	ctx := context.Background()
	txn := create(t, svc, req.ID, "GR-200", "500")

	_, _, err := svc.ApplyPayment(ctx, txn.ID, payment("0", 1))
	assert.True(t, ledger.IsValidation(err))

	_, _, err = svc.ApplyPayment(ctx, 4242, payment("10", 1))
	assert.True(t, ledger.IsNotFound(err))
	assert.Empty(t, svc.GetPayments(ctx, txn.ID))
}

func TestApplyPayment_RejectsSubCentAmounts(t *testing.T) {
	svc, req := newService(t, ledger.GuardNone)
	ctx := context.Background()
	txn := create(t, svc, req.ID, "GR-300", "500")

	_, _, err := svc.ApplyPayment(ctx, txn.ID, payment("0.004", 1))
	assert.True(t, ledger.IsValidation(err), "got %v", err)
	assert.Empty(t, svc.GetPayments(ctx, txn.ID))

	_, err = svc.CreateTransaction(ctx, transactions.CreateTransactionCommand{
		RequestID: req.ID, TransporterID: 7, GRNumber: "GR-301", TransporterCharge: tu.Money("99.999"),
	})
	assert.True(t, ledger.IsValidation(err), "got %v", err)
}

func TestApplyPayment_CASConflictRollsBackDetail(t *testing.T) {
	svc, req, db := newServiceDB(t, ledger.GuardCAS)
	ctx := context.Background()
	txn := create(t, svc, req.ID, "GR-400", "1000")

	// a concurrent writer lands right after the detail insert
	require.NoError(t, db.Callback().Create().After("gorm:create").Register("test:concurrent_payment", func(tx *gorm.DB) {
		d, ok := tx.Statement.Dest.(*models.PaymentDetail)
		if !ok || tx.Error != nil {
			return
		}
		err := tx.Session(&gorm.Session{NewDB: true}).
			Exec("UPDATE transactions SET total_paid = total_paid + 50 WHERE id = ?", d.TransactionID).Error
		if err != nil {
			tx.AddError(err)
		}
	}))

	_, _, err := svc.ApplyPayment(ctx, txn.ID, payment("300", 1))
	require.Error(t, err)
	assert.True(t, ledger.IsConflict(err), "got %v", err)

	assert.Empty(t, svc.GetPayments(ctx, txn.ID), "detail rolled back")
	got, err := svc.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.True(t, got.TotalPaid.IsZero(), "total %s", got.TotalPaid)
	assert.Nil(t, got.LastPaymentAmount)
}

func TestGetPayments_UndatedPaymentsSortLast(t *testing.T) {
	svc, req := newService(t, ledger.GuardNone)
	ctx := context.Background()
	txn := create(t, svc, req.ID, "GR-500", "1000")

	_, undated, err := svc.ApplyPayment(ctx, txn.ID, transactions.PaymentCommand{Amount: tu.Money("10")})
	require.NoError(t, err)
	_, dated, err := svc.ApplyPayment(ctx, txn.ID, payment("20", 3))
	require.NoError(t, err)

	history := svc.GetPayments(ctx, txn.ID)
	require.Len(t, history, 2)
	assert.Equal(t, dated.InvoiceID, history[0].InvoiceID)
	assert.Equal(t, undated.InvoiceID, history[1].InvoiceID)
}

func TestApplyPayment_ConcurrentUnderMutex(t *testing.T) {
	svc, req := newService(t, ledger.GuardMutex)
	ctx := context.Background()
	txn := create(t, svc, req.ID, "GR-300", "5000")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.ApplyPayment(ctx, txn.ID, payment("50", 3))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := svc.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.True(t, tu.Money("500").Equal(got.TotalPaid), "total %s", got.TotalPaid)
	assert.Len(t, svc.GetPayments(ctx, txn.ID), 10)
}

func TestListAndDelete(t *testing.T) {
	svc, req := newService(t, ledger.GuardNone)
	ctx := context.Background()
	a := create(t, svc, req.ID, "GR-A", "100")
	b := create(t, svc, req.ID, "GR-B", "200")
	_, _, err := svc.ApplyPayment(ctx, a.ID, payment("40", 2))
	require.NoError(t, err)

	all, err := svc.ListTransactions(ctx, repository.TransactionFilter{RequestID: req.ID})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, b.ID, all[0].ID, "newest first")

	byGR, err := svc.ListTransactions(ctx, repository.TransactionFilter{GRNumber: "GR-A"})
	require.NoError(t, err)
	require.Len(t, byGR, 1)
	assert.True(t, tu.Money("60").Equal(byGR[0].Outstanding))

	require.NoError(t, svc.DeleteTransaction(ctx, a.ID))
	_, err = svc.GetTransaction(ctx, a.ID)
	assert.True(t, ledger.IsNotFound(err))
	assert.Empty(t, svc.GetPayments(ctx, a.ID))

	assert.True(t, ledger.IsNotFound(svc.DeleteTransaction(ctx, a.ID)))
}
