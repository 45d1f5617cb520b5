// Package jobs runs ledger maintenance on a cron schedule.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"transport-ledger-backend/internal/ledger"
	"transport-ledger-backend/internal/services/reconciliation"
)

// Reconciler is the reconciliation job as the scheduler sees it.
type Reconciler interface {
	Run(ctx context.Context) (*reconciliation.Result, error)
}

type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger
}

func NewScheduler(log *zap.Logger) *Scheduler {
	cl := cronLogger{log: log.Sugar()}
	return &Scheduler{
		cron: cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		log:  log,
	}
}

// ScheduleReconciliation registers r under a standard five-field cron spec.
func (s *Scheduler) ScheduleReconciliation(spec string, r Reconciler, timeout time.Duration) (cron.EntryID, error) {
	return s.cron.AddFunc(spec, ReconcileJob(r, s.log, timeout))
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for a running job until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out")
	}
}

func (s *Scheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}

// ReconcileJob wraps one reconciliation run for the scheduler. A run already held by
// another instance is skipped quietly.
func ReconcileJob(r Reconciler, log *zap.Logger, timeout time.Duration) func() {
	return func() {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		res, err := r.Run(ctx)
		var partial *ledger.PartialFailure
		switch {
		case err == nil:
			log.Info("scheduled reconciliation done",
				zap.String("run_id", res.RunID.String()),
				zap.Int("duplicates_removed", res.DuplicatesRemoved),
				zap.Int("created", res.CreatedCount),
			)
		case errors.As(err, &partial):
			log.Warn("scheduled reconciliation finished with failures",
				zap.String("run_id", res.RunID.String()),
				zap.Int("failed", len(partial.Failures)),
			)
		case ledger.IsConflict(err):
			log.Info("scheduled reconciliation skipped", zap.Error(err))
		default:
			log.Error("scheduled reconciliation", zap.Error(err))
		}
	}
}

type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
