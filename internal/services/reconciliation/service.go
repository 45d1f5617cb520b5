// Package reconciliation repairs the receipt ledger from historical request data: it removes
// duplicate receipts per request and backfills receipts for billable requests that have none.
package reconciliation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"transport-ledger-backend/internal/events"
	"transport-ledger-backend/internal/kvstore"
	"transport-ledger-backend/internal/ledger"
	"transport-ledger-backend/internal/models"
	"transport-ledger-backend/internal/repository"
)

const leaseKey = "ledger:reconciliation:lease"

// DefaultLeaseTTL bounds how long a crashed run can block the next one.
const DefaultLeaseTTL = 15 * time.Minute

type Result struct {
	RunID             uuid.UUID            `json:"run_id"`
	DuplicatesRemoved int                  `json:"duplicates_removed"`
	CreatedCount      int                  `json:"created_count"`
	FailedCount       int                  `json:"failed_count"`
	Failures          []ledger.ItemFailure `json:"failures"`
}

type Progress struct {
	Phase     string `json:"phase"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
	Status    string `json:"status"`
}

type Options struct {
	Store     kvstore.Store
	Publisher events.Publisher
	Logger    *zap.Logger
	LeaseTTL  time.Duration
	Now       func() time.Time
}

type ReconciliationService struct {
	receipts      *repository.ReceiptRepository
	requests      *repository.RequestRepository
	db            *gorm.DB
	store         kvstore.Store
	pub           events.Publisher
	log           *zap.Logger
	leaseTTL      time.Duration
	now           func() time.Time
	progressCache sync.Map // runID -> *Progress, replaced not mutated
}

func NewReconciliationService(
	receipts *repository.ReceiptRepository,
	requests *repository.RequestRepository,
	opts Options,
) *ReconciliationService {
	s := &ReconciliationService{
		receipts: receipts,
		requests: requests,
		db:       receipts.DB(),
		store:    opts.Store,
		pub:      opts.Publisher,
		log:      opts.Logger,
		leaseTTL: opts.LeaseTTL,
		now:      opts.Now,
	}
	if s.store == nil {
		s.store = kvstore.NewMemory()
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.pub == nil {
		s.pub = events.NewLogPublisher(s.log)
	}
	if s.leaseTTL <= 0 {
		s.leaseTTL = DefaultLeaseTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Run deduplicates and then backfills receipts. Running it again on an unchanged store
// removes and creates nothing. Item failures are collected, never fatal: the result is
// returned together with a *ledger.PartialFailure when any occurred.
func (s *ReconciliationService) Run(ctx context.Context) (*Result, error) {
	owner := uuid.NewString()
	ok, err := s.store.SetNX(ctx, leaseKey, owner, s.leaseTTL)
	if err != nil {
		return nil, ledger.Persistence("acquire reconciliation lease", err)
	}
	if !ok {
		return nil, &ledger.ConflictError{Entity: "reconciliation", ID: leaseKey, Reason: "another run is in progress"}
	}
	defer func() {
		if _, err := s.store.CompareAndDelete(context.WithoutCancel(ctx), leaseKey, owner); err != nil {
			s.log.Warn("release reconciliation lease", zap.Error(err))
		}
	}()

	run, err := s.CreateRun(ctx)
	if err != nil {
		return nil, ledger.Persistence("create reconciliation run", err)
	}
	res := &Result{RunID: run.ID, Failures: []ledger.ItemFailure{}}
	s.log.Info("reconciliation started", zap.String("run_id", run.ID.String()))

	if err := s.dedupe(ctx, res); err != nil {
		s.MarkRunFailed(ctx, run.ID, res)
		return nil, ledger.Persistence("find duplicate receipts", err)
	}
	if err := s.backfill(ctx, res); err != nil {
		s.MarkRunFailed(ctx, run.ID, res)
		return nil, ledger.Persistence("find unbilled requests", err)
	}
	res.FailedCount = len(res.Failures)

	if err := s.MarkRunCompleted(ctx, run.ID, res); err != nil {
		s.log.Error("mark reconciliation run completed", zap.String("run_id", run.ID.String()), zap.Error(err))
	}
	s.log.Info("reconciliation finished",
		zap.String("run_id", run.ID.String()),
		zap.Int("duplicates_removed", res.DuplicatesRemoved),
		zap.Int("created", res.CreatedCount),
		zap.Int("failed", res.FailedCount),
	)
	if err := s.pub.Publish(ctx, events.New(events.ReconciliationFinished, run.ID.String(), res)); err != nil {
		s.log.Warn("publish event", zap.String("type", events.ReconciliationFinished), zap.Error(err))
	}

	if res.FailedCount > 0 {
		return res, &ledger.PartialFailure{Succeeded: res.DuplicatesRemoved + res.CreatedCount, Failures: res.Failures}
	}
	return res, nil
}

// dedupe keeps the earliest created receipt of every request and deletes the rest along with
// their payment events, one db transaction per request.
func (s *ReconciliationService) dedupe(ctx context.Context, res *Result) error {
	requestIDs, err := s.receipts.DuplicateRequestIDs(ctx)
	if err != nil {
		return err
	}

	for i, requestID := range requestIDs {
		var removed int
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			repo := s.receipts.WithTx(tx)
			receipts, err := repo.ListByRequest(ctx, requestID)
			if err != nil {
				return err
			}
			if len(receipts) < 2 {
				return nil
			}
			ids := make([]uint, 0, len(receipts)-1)
			for _, rc := range receipts[1:] {
				ids = append(ids, rc.ID)
			}
			if err := repo.DeleteMany(ctx, ids); err != nil {
				return err
			}
			removed = len(ids)
			return nil
		})
		if err != nil {
			s.log.Warn("dedupe request", zap.Uint("request_id", requestID), zap.Error(err))
			res.Failures = append(res.Failures, ledger.ItemFailure{Key: fmt.Sprintf("dedupe:request:%d", requestID), Reason: err.Error()})
		} else {
			res.DuplicatesRemoved += removed
		}
		s.updateProgress(res.RunID, "dedupe", i+1, len(requestIDs))
	}
	return nil
}

// backfill creates a Pending receipt for every billable request that has none.
func (s *ReconciliationService) backfill(ctx context.Context, res *Result) error {
	reqs, err := s.requests.UnbilledRequests(ctx)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	for i, req := range reqs {
		rc := &models.Receipt{
			RequestID:      req.ID,
			CustomerID:     req.CustomerID,
			InvoiceNo:      InvoiceNumber(req),
			InvoiceDate:    dateOnly(req.CreatedAt),
			InvoiceAmount:  req.RequestedPrice.Round(2),
			ReceivedAmount: decimal.Zero,
			Balance:        req.RequestedPrice.Round(2),
			PaymentStatus:  models.StatusPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.receipts.Create(ctx, rc); err != nil {
			s.log.Warn("backfill request", zap.Uint("request_id", req.ID), zap.Error(err))
			res.Failures = append(res.Failures, ledger.ItemFailure{Key: fmt.Sprintf("backfill:request:%d", req.ID), Reason: err.Error()})
		} else {
			res.CreatedCount++
		}
		s.updateProgress(res.RunID, "backfill", i+1, len(reqs))
	}
	return nil
}

// InvoiceNumber is the invoice number given to a backfilled receipt, e.g. INV-2023-000042.
func InvoiceNumber(req models.TransportRequest) string {
	return fmt.Sprintf("INV-%d-%06d", req.CreatedAt.Year(), req.ID)
}

// CreateRun stores a new running ReconciliationRun.
func (s *ReconciliationService) CreateRun(ctx context.Context) (*models.ReconciliationRun, error) {
	now := s.now().UTC()
	run := &models.ReconciliationRun{
		ID:        uuid.New(),
		Status:    models.RunRunning,
		StartedAt: now,
		CreatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}
	s.progressCache.Store(run.ID, &Progress{Status: models.RunRunning})
	return run, nil
}

func (s *ReconciliationService) GetRun(ctx context.Context, runID uuid.UUID) (*models.ReconciliationRun, error) {
	var run models.ReconciliationRun
	if err := s.db.WithContext(ctx).First(&run, "id = ?", runID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ledger.NotFoundError{Entity: "reconciliation run", ID: runID}
		}
		return nil, ledger.Persistence("get reconciliation run", err)
	}
	return &run, nil
}

// MarkRunCompleted sets the run's final counts and failures.
func (s *ReconciliationService) MarkRunCompleted(ctx context.Context, runID uuid.UUID, res *Result) error {
	return s.finishRun(ctx, runID, models.RunCompleted, res)
}

func (s *ReconciliationService) MarkRunFailed(ctx context.Context, runID uuid.UUID, res *Result) {
	if err := s.finishRun(ctx, runID, models.RunFailed, res); err != nil {
		s.log.Error("mark reconciliation run failed", zap.String("run_id", runID.String()), zap.Error(err))
	}
}

func (s *ReconciliationService) finishRun(ctx context.Context, runID uuid.UUID, status string, res *Result) error {
	failures, err := json.Marshal(res.Failures)
	if err != nil {
		return err
	}
	if val, ok := s.progressCache.Load(runID); ok {
		p := *val.(*Progress)
		p.Status = status
		s.progressCache.Store(runID, &p)
	}
	return s.db.WithContext(context.WithoutCancel(ctx)).Model(&models.ReconciliationRun{}).
		Where("id = ?", runID).
		Updates(map[string]interface{}{
			"status":             status,
			"duplicates_removed": res.DuplicatesRemoved,
			"created_count":      res.CreatedCount,
			"failed_count":       len(res.Failures),
			"failures":           datatypes.JSON(failures),
			"completed_at":       s.now().UTC(),
		}).Error
}

// RunProgress reports the progress of a run started by this process.
func (s *ReconciliationService) RunProgress(runID uuid.UUID) (Progress, bool) {
	val, ok := s.progressCache.Load(runID)
	if !ok {
		return Progress{}, false
	}
	return *val.(*Progress), true
}

func (s *ReconciliationService) updateProgress(runID uuid.UUID, phase string, processed, total int) {
	s.progressCache.Store(runID, &Progress{Phase: phase, Processed: processed, Total: total, Status: models.RunRunning})
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
