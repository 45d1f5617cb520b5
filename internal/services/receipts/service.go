// Package receipts runs the receipt ledger: invoices raised against transport requests,
// the payments applied to them and their running balance.
package receipts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"transport-ledger-backend/internal/events"
	"transport-ledger-backend/internal/ledger"
	"transport-ledger-backend/internal/models"
	"transport-ledger-backend/internal/repository"
)

// RequestLookup is what the ledger needs from request management.
type RequestLookup interface {
	GetRequest(ctx context.Context, id uint) (*models.TransportRequest, error)
	CustomerExists(ctx context.Context, id uint) (bool, error)
}

type Options struct {
	Guard      ledger.GuardMode
	Calculator ledger.Calculator
	Publisher  events.Publisher
	Logger     *zap.Logger
	Now        func() time.Time
}

type Service struct {
	repo     *repository.ReceiptRepository
	requests RequestLookup
	guard    ledger.GuardMode
	calc     ledger.Calculator
	locks    *ledger.KeyedMutex
	pub      events.Publisher
	log      *zap.Logger
	now      func() time.Time
}

func NewService(repo *repository.ReceiptRepository, requests RequestLookup, opts Options) *Service {
	s := &Service{
		repo:     repo,
		requests: requests,
		guard:    opts.Guard,
		calc:     opts.Calculator,
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

func (s *Service) Guard() ledger.GuardMode {
	return s.guard
}

// Repo exposes the underlying repository to the reconciliation job.
func (s *Service) Repo() *repository.ReceiptRepository {
	return s.repo
}

// CreateReceipt validates cmd, checks the referenced request and customer and stores a new
// Pending receipt. An opening received amount is run through the calculator and recorded
// as the first payment event.
func (s *Service) CreateReceipt(ctx context.Context, cmd CreateReceiptCommand) (*models.Receipt, error) {
	if err := ledger.Validate(cmd); err != nil {
		return nil, err
	}
	if _, err := s.requests.GetRequest(ctx, cmd.RequestID); err != nil {
		return nil, ledger.Persistence("load transport request", err)
	}
	ok, err := s.requests.CustomerExists(ctx, cmd.CustomerID)
	if err != nil {
		return nil, ledger.Persistence("load customer", err)
	}
	if !ok {
		return nil, &ledger.NotFoundError{Entity: "customer", ID: cmd.CustomerID}
	}

	now := s.now().UTC()
	invoice := cmd.InvoiceAmount.Round(2)
	rc := &models.Receipt{
		RequestID:      cmd.RequestID,
		CustomerID:     cmd.CustomerID,
		InvoiceNo:      cmd.InvoiceNo,
		InvoiceDate:    dateOnly(cmd.InvoiceDate),
		InvoiceAmount:  invoice,
		ReceivedAmount: decimal.Zero,
		Balance:        invoice,
		PaymentStatus:  models.StatusPending,
		VoucherNo:      cmd.VoucherNo,
		VoucherDate:    dateOnlyPtr(cmd.VoucherDate),
		PaymentMode:    cmd.PaymentMode,
		PaymentDate:    dateOnlyPtr(cmd.PaymentDate),
		Remarks:        cmd.Remarks,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	opening := cmd.ReceivedAmount != nil && cmd.ReceivedAmount.IsPositive()
	if opening {
		out := s.calc.Apply(invoice, decimal.Zero, *cmd.ReceivedAmount)
		rc.ReceivedAmount, rc.Balance, rc.PaymentStatus = out.Received, out.Balance, out.Status
	}
	if cmd.Balance != nil && !cmd.Balance.Equal(rc.Balance) {
		s.log.Warn("ignoring supplied balance", zap.String("supplied", cmd.Balance.String()), zap.String("derived", rc.Balance.String()))
	}

	err = s.repo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, rc); err != nil {
			return err
		}
		if !opening {
			return nil
		}
		return repo.AppendEvent(ctx, &models.PaymentEvent{
			ReceiptID:   rc.ID,
			Amount:      rc.ReceivedAmount,
			VoucherNo:   rc.VoucherNo,
			VoucherDate: rc.VoucherDate,
			PaymentMode: rc.PaymentMode,
			PaymentDate: rc.PaymentDate,
			Remarks:     rc.Remarks,
			CreatedAt:   now,
		})
	})
	if err != nil {
		return nil, s.fail("create receipt", err)
	}

	s.log.Info("receipt created",
		zap.Uint("receipt_id", rc.ID),
		zap.Uint("request_id", rc.RequestID),
		zap.String("invoice_no", rc.InvoiceNo),
		zap.String("invoice_amount", rc.InvoiceAmount.StringFixed(2)),
	)
	s.publish(ctx, events.ReceiptCreated, rc.ID, rc)
	return rc, nil
}

func (s *Service) GetReceipt(ctx context.Context, id uint) (*models.Receipt, error) {
	rc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.fail("get receipt", err)
	}
	return rc, nil
}

// ListReceipts returns the full filtered result; callers paginate.
func (s *Service) ListReceipts(ctx context.Context, f repository.ReceiptFilter) ([]models.Receipt, error) {
	receipts, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, s.fail("list receipts", err)
	}
	return receipts, nil
}

func (s *Service) GetReceiptsByInvoice(ctx context.Context, invoiceNo string) ([]models.Receipt, error) {
	if invoiceNo == "" {
		return nil, &ledger.ValidationError{Field: "invoice_no", Reason: "is required"}
	}
	receipts, err := s.repo.FindByInvoiceNo(ctx, invoiceNo)
	if err != nil {
		return nil, s.fail("find receipts by invoice", err)
	}
	return receipts, nil
}

func (s *Service) Summary(ctx context.Context, f repository.ReceiptFilter) ([]models.ReceiptStatRow, error) {
	rows, err := s.repo.Stats(ctx, f)
	if err != nil {
		return nil, s.fail("summarize receipts", err)
	}
	return rows, nil
}

// ApplyPayment runs one payment through the calculator, appends its event and stores the new
// running fields. How concurrent payments on the same receipt interact depends on the guard.
func (s *Service) ApplyPayment(ctx context.Context, id uint, cmd ApplyPaymentCommand) (*models.Receipt, error) {
	if err := ledger.Validate(cmd); err != nil {
		return nil, err
	}

	var (
		rc  *models.Receipt
		err error
	)
	switch s.guard {
	case ledger.GuardNone:
		rc, err = s.applyUnguarded(ctx, id, cmd)
	case ledger.GuardMutex:
		rc, err = s.applyLocked(ctx, id, cmd)
	default:
		rc, err = s.applyInTx(ctx, id, cmd)
	}
	if err != nil {
		return nil, s.fail("apply payment", err)
	}

	s.log.Info("payment applied",
		zap.Uint("receipt_id", rc.ID),
		zap.String("amount", cmd.ReceivedAmount.StringFixed(2)),
		zap.String("received", rc.ReceivedAmount.StringFixed(2)),
		zap.String("balance", rc.Balance.StringFixed(2)),
		zap.String("status", rc.PaymentStatus),
		zap.String("guard", string(s.guard)),
	)
	s.publish(ctx, events.ReceiptPaymentApplied, rc.ID, map[string]any{
		"receipt_id":      rc.ID,
		"amount":          cmd.ReceivedAmount,
		"received_amount": rc.ReceivedAmount,
		"balance":         rc.Balance,
		"payment_status":  rc.PaymentStatus,
	})
	return rc, nil
}

// settle applies cmd to rc in memory and builds the matching event.
func (s *Service) settle(rc *models.Receipt, cmd ApplyPaymentCommand) *models.PaymentEvent {
	now := s.now().UTC()
	out := s.calc.Apply(rc.InvoiceAmount, rc.ReceivedAmount, cmd.ReceivedAmount)

	rc.ReceivedAmount = out.Received
	rc.Balance = out.Balance
	rc.PaymentStatus = out.Status
	rc.VoucherNo = cmd.VoucherNo
	rc.VoucherDate = dateOnlyPtr(cmd.VoucherDate)
	rc.PaymentMode = cmd.PaymentMode
	rc.PaymentDate = dateOnlyPtr(cmd.PaymentDate)
	rc.Remarks = cmd.Remarks
	rc.UpdatedAt = now

	return &models.PaymentEvent{
		ReceiptID:   rc.ID,
		Amount:      cmd.ReceivedAmount.Round(2),
		VoucherNo:   rc.VoucherNo,
		VoucherDate: rc.VoucherDate,
		PaymentMode: rc.PaymentMode,
		PaymentDate: rc.PaymentDate,
		Remarks:     rc.Remarks,
		CreatedAt:   now,
	}
}

// applyUnguarded is the plain read, append, write sequence with no transaction.
func (s *Service) applyUnguarded(ctx context.Context, id uint, cmd ApplyPaymentCommand) (*models.Receipt, error) {
	rc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ev := s.settle(rc, cmd)
	if err := s.repo.AppendEvent(ctx, ev); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateSummary(ctx, rc); err != nil {
		return nil, err
	}
	return rc, nil
}

func (s *Service) applyLocked(ctx context.Context, id uint, cmd ApplyPaymentCommand) (*models.Receipt, error) {
	unlock := s.locks.Lock(id)
	defer unlock()
	return s.applyInTx(ctx, id, cmd)
}

func (s *Service) applyInTx(ctx context.Context, id uint, cmd ApplyPaymentCommand) (*models.Receipt, error) {
	var rc *models.Receipt
	err := s.repo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		var err error
		if s.guard == ledger.GuardLock {
			rc, err = repo.GetForUpdate(ctx, id)
		} else {
			rc, err = repo.GetByID(ctx, id)
		}
		if err != nil {
			return err
		}

		prior := rc.ReceivedAmount
		ev := s.settle(rc, cmd)
		if err := repo.AppendEvent(ctx, ev); err != nil {
			return err
		}

		if s.guard != ledger.GuardCAS {
			return repo.UpdateSummary(ctx, rc)
		}
		ok, err := repo.UpdateSummaryIfReceived(ctx, rc, prior)
		if err != nil {
			return err
		}
		if !ok {
			return &ledger.ConflictError{Entity: "receipt", ID: id, Reason: "received amount changed concurrently, retry the payment"}
		}
		return nil
	})
	return rc, err
}

// DeleteReceipt removes a receipt and its payment events and returns what was removed.
func (s *Service) DeleteReceipt(ctx context.Context, id uint) (*models.Receipt, error) {
	var rc *models.Receipt
	err := s.repo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		if rc, err = repo.GetByID(ctx, id); err != nil {
			return err
		}
		return repo.DeleteMany(ctx, []uint{id})
	})
	if err != nil {
		return nil, s.fail("delete receipt", err)
	}
	s.log.Info("receipt deleted", zap.Uint("receipt_id", id), zap.Uint("request_id", rc.RequestID))
	s.publish(ctx, events.ReceiptDeleted, rc.ID, rc)
	return rc, nil
}

// GetPaymentHistory returns the receipt's payment events, latest first. It never fails:
// a missing receipt, no payments or an unprovisioned events table all give an empty slice.
func (s *Service) GetPaymentHistory(ctx context.Context, receiptID uint) []models.PaymentEvent {
	if !s.repo.HasEventsTable(ctx) {
		return []models.PaymentEvent{}
	}
	evs, err := s.repo.Events(ctx, receiptID)
	if err != nil {
		if !repository.IsUndefinedTable(err) {
			s.log.Error("load payment history", zap.Uint("receipt_id", receiptID), zap.Error(err))
		}
		return []models.PaymentEvent{}
	}
	if evs == nil {
		return []models.PaymentEvent{}
	}
	return evs
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
	if err := s.pub.Publish(ctx, events.New(eventType, fmt.Sprintf("receipt-%d", id), payload)); err != nil {
		s.log.Warn("publish event", zap.String("type", eventType), zap.Uint("receipt_id", id), zap.Error(err))
	}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dateOnlyPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := dateOnly(*t)
	return &d
}
