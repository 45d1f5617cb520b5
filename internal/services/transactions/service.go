// Package transactions tracks what is owed to transporters per GR number and the payments
// made against it.
package transactions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"transport-ledger-backend/internal/events"
	"transport-ledger-backend/internal/idgen"
	"transport-ledger-backend/internal/ledger"
	"transport-ledger-backend/internal/models"
	"transport-ledger-backend/internal/repository"
)

type RequestLookup interface {
	GetRequest(ctx context.Context, id uint) (*models.TransportRequest, error)
}

type Options struct {
	Guard     ledger.GuardMode
	Publisher events.Publisher
	Logger    *zap.Logger
	Now       func() time.Time
}

type Service struct {
	repo     *repository.TransactionRepository
	requests RequestLookup
	ids      *idgen.Allocator
	guard    ledger.GuardMode
	locks    *ledger.KeyedMutex
	pub      events.Publisher
	log      *zap.Logger
	now      func() time.Time
}

func NewService(repo *repository.TransactionRepository, requests RequestLookup, ids *idgen.Allocator, opts Options) *Service {
	s := &Service{
		repo:     repo,
		requests: requests,
		ids:      ids,
		guard:    opts.Guard,
		locks:    ledger.NewKeyedMutex(),
		pub:      opts.Publisher,
		log:      opts.Logger,
		now:      opts.Now,
	}
	if s.guard == "" {
		s.guard = ledger.GuardNone
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.pub == nil {
		s.pub = events.NewLogPublisher(s.log)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// CreateTransaction stores a transporter charge, copying the request's party and route
// details as they are right now.
func (s *Service) CreateTransaction(ctx context.Context, cmd CreateTransactionCommand) (*models.Transaction, error) {
	if err := ledger.Validate(cmd); err != nil {
		return nil, err
	}
	req, err := s.requests.GetRequest(ctx, cmd.RequestID)
	if err != nil {
		return nil, s.fail("load transport request", err)
	}

	now := s.now().UTC()
	t := &models.Transaction{
		RequestID:         cmd.RequestID,
		TransporterID:     cmd.TransporterID,
		GRNumber:          cmd.GRNumber,
		ConsignerName:     req.Consigner,
		ConsigneeName:     req.Consignee,
		TransporterName:   cmd.TransporterName,
		FromLocation:      req.FromLocation,
		ToLocation:        req.ToLocation,
		RequestedPrice:    req.RequestedPrice,
		TransporterCharge: cmd.TransporterCharge.Round(2),
		GSTPercentage:     cmd.GSTPercentage.Round(2),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		if ledger.IsConflict(err) {
			return nil, &ledger.ConflictError{
				Entity: "transaction",
				ID:     cmd.GRNumber,
				Reason: fmt.Sprintf("already recorded for request %d and transporter %d", cmd.RequestID, cmd.TransporterID),
			}
		}
		return nil, s.fail("create transaction", err)
	}

	s.log.Info("transaction created",
		zap.Uint("transaction_id", t.ID),
		zap.Uint("request_id", t.RequestID),
		zap.Uint("transporter_id", t.TransporterID),
		zap.String("gr_number", t.GRNumber),
	)
	s.publish(ctx, events.TransactionCreated, t.ID, t)
	return t, nil
}

func (s *Service) GetTransaction(ctx context.Context, id uint) (*models.Transaction, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.fail("get transaction", err)
	}
	return t, nil
}

func (s *Service) ListTransactions(ctx context.Context, f repository.TransactionFilter) ([]models.Transaction, error) {
	txs, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, s.fail("list transactions", err)
	}
	return txs, nil
}

// ApplyPayment adds cmd.Amount to the running total, overwrites the last-payment fields and
// records a payment detail under a freshly allocated invoice id.
func (s *Service) ApplyPayment(ctx context.Context, id uint, cmd PaymentCommand) (*models.Transaction, *models.PaymentDetail, error) {
	if err := ledger.Validate(cmd); err != nil {
		return nil, nil, err
	}

	var (
		t   *models.Transaction
		d   *models.PaymentDetail
		err error
	)
	switch s.guard {
	case ledger.GuardNone:
		t, d, err = s.payUnguarded(ctx, id, cmd)
	case ledger.GuardMutex:
		t, d, err = s.payLocked(ctx, id, cmd)
	default:
		t, d, err = s.payInTx(ctx, id, cmd)
	}
	if err != nil {
		return nil, nil, s.fail("apply transaction payment", err)
	}

	s.log.Info("transporter payment recorded",
		zap.Uint("transaction_id", t.ID),
		zap.String("invoice_id", d.InvoiceID),
		zap.String("amount", d.Amount.StringFixed(2)),
		zap.String("total_paid", t.TotalPaid.StringFixed(2)),
	)
	s.publish(ctx, events.TransactionPaymentMade, t.ID, map[string]any{
		"transaction_id": t.ID,
		"invoice_id":     d.InvoiceID,
		"amount":         d.Amount,
		"total_paid":     t.TotalPaid,
		"outstanding":    t.Outstanding,
	})
	return t, d, nil
}

func (s *Service) record(t *models.Transaction, cmd PaymentCommand) *models.PaymentDetail {
	now := s.now().UTC()
	amount := cmd.Amount.Round(2)
	date := dateOnlyPtr(cmd.PaymentDate)

	t.TotalPaid = ledger.Accumulate(t.TotalPaid, amount)
	t.LastPaymentAmount = &amount
	t.LastPaymentMode = cmd.PaymentMode
	t.LastPaymentDate = date
	t.UpdatedAt = now
	t.Derive()

	return &models.PaymentDetail{
		TransactionID: t.ID,
		InvoiceID:     s.ids.PaymentInvoiceID(t.ID),
		Amount:        amount,
		PaymentMode:   cmd.PaymentMode,
		PaymentDate:   date,
		Remarks:       cmd.Remarks,
		CreatedAt:     now,
	}
}

func (s *Service) payUnguarded(ctx context.Context, id uint, cmd PaymentCommand) (*models.Transaction, *models.PaymentDetail, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	d := s.record(t, cmd)
	if err := s.repo.AppendDetail(ctx, d); err != nil {
		return nil, nil, err
	}
	if err := s.repo.UpdatePayment(ctx, t); err != nil {
		return nil, nil, err
	}
	return t, d, nil
}

func (s *Service) payLocked(ctx context.Context, id uint, cmd PaymentCommand) (*models.Transaction, *models.PaymentDetail, error) {
	unlock := s.locks.Lock(id)
	defer unlock()
	return s.payInTx(ctx, id, cmd)
}

func (s *Service) payInTx(ctx context.Context, id uint, cmd PaymentCommand) (*models.Transaction, *models.PaymentDetail, error) {
	var (
		t *models.Transaction
		d *models.PaymentDetail
	)
	err := s.repo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		var err error
		if s.guard == ledger.GuardLock {
			t, err = repo.GetForUpdate(ctx, id)
		} else {
			t, err = repo.GetByID(ctx, id)
		}
		if err != nil {
			return err
		}

		prior := t.TotalPaid
		d = s.record(t, cmd)
		if err := repo.AppendDetail(ctx, d); err != nil {
			return err
		}
		if s.guard != ledger.GuardCAS {
			return repo.UpdatePayment(ctx, t)
		}
		ok, err := repo.UpdatePaymentIfPaid(ctx, t, prior)
		if err != nil {
			return err
		}
		if !ok {
			return &ledger.ConflictError{Entity: "transaction", ID: id, Reason: "total paid changed concurrently, retry the payment"}
		}
		return nil
	})
	return t, d, err
}

// GetPayments lists a transaction's payments, latest first. Like receipt history it never
// fails; problems are logged and an empty list returned.
func (s *Service) GetPayments(ctx context.Context, transactionID uint) []models.PaymentDetail {
	details, err := s.repo.Details(ctx, transactionID)
	if err != nil {
		if !repository.IsUndefinedTable(err) {
			s.log.Error("load transaction payments", zap.Uint("transaction_id", transactionID), zap.Error(err))
		}
		return []models.PaymentDetail{}
	}
	if details == nil {
		return []models.PaymentDetail{}
	}
	return details
}

func (s *Service) DeleteTransaction(ctx context.Context, id uint) error {
	err := s.repo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).Delete(ctx, id)
	})
	if err != nil {
		return s.fail("delete transaction", err)
	}
	s.log.Info("transaction deleted", zap.Uint("transaction_id", id))
	return nil
}

func (s *Service) fail(op string, err error) error {
	var pe *ledger.PersistenceError
	wrapped := ledger.Persistence(op, err)
	if errors.As(wrapped, &pe) {
		s.log.Error(op, zap.Error(pe.Err))
	}
	return wrapped
}

func (s *Service) publish(ctx context.Context, eventType string, id uint, payload any) {
	if err := s.pub.Publish(ctx, events.New(eventType, fmt.Sprintf("transaction-%d", id), payload)); err != nil {
		s.log.Warn("publish event", zap.String("type", eventType), zap.Uint("transaction_id", id), zap.Error(err))
	}
}

func dateOnlyPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &day
}
