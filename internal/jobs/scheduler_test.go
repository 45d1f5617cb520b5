package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"transport-ledger-backend/internal/ledger"
	"transport-ledger-backend/internal/services/reconciliation"
)

type fakeReconciler struct {
	calls atomic.Int32
	res   *reconciliation.Result
	err   error
	ctxOK bool
}

func (f *fakeReconciler) Run(ctx context.Context) (*reconciliation.Result, error) {
	f.calls.Add(1)
	_, f.ctxOK = ctx.Deadline()
	return f.res, f.err
}

func TestReconcileJob_LogsOutcome(t *testing.T) {
	res := &reconciliation.Result{RunID: uuid.New(), CreatedCount: 3}
	cases := []struct {
		name string
		res  *reconciliation.Result
		err  error
		msg  string
	}{
		{"success", res, nil, "scheduled reconciliation done"},
		{"partial", res, &ledger.PartialFailure{Failures: []ledger.ItemFailure{{Key: "k", Reason: "r"}}}, "scheduled reconciliation finished with failures"},
		{"lease held", nil, &ledger.ConflictError{Entity: "reconciliation", ID: "lease", Reason: "busy"}, "scheduled reconciliation skipped"},
		{"store down", nil, errors.New("dial tcp: refused"), "scheduled reconciliation"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			core, logs := observer.New(zap.DebugLevel)
			r := &fakeReconciler{res: tc.res, err: tc.err}

			ReconcileJob(r, zap.New(core), time.Minute)()

			assert.EqualValues(t, 1, r.calls.Load())
			assert.True(t, r.ctxOK, "job runs under a deadline")
			require.Equal(t, 1, logs.Len())
			assert.Equal(t, tc.msg, logs.All()[0].Message)
		})
	}
}

func TestScheduleReconciliation(t *testing.T) {
	s := NewScheduler(zap.NewNop())

	_, err := s.ScheduleReconciliation("not a spec", &fakeReconciler{}, 0)
	assert.Error(t, err)

	id, err := s.ScheduleReconciliation("0 2 * * *", &fakeReconciler{}, time.Minute)
	require.NoError(t, err)
	require.Len(t, s.Entries(), 1)
	assert.Equal(t, id, s.Entries()[0].ID)

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
