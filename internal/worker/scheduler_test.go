package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/flow-helpdesk/internal/service"
	apperrors "github.com/spec-kit/flow-helpdesk/pkg/util/errorutil"
)

type stubSyncer struct {
	calls atomic.Int32
	err   error
}

func (s *stubSyncer) Run(ctx context.Context) (*service.SyncResult, error) {
	s.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("missing deadline")
	}
	if s.err != nil {
		return nil, s.err
	}
	return &service.SyncResult{Upserted: 3}, nil
}

type stubSweeper struct {
	calls atomic.Int32
}

func (s *stubSweeper) SweepSLA(context.Context) (int, error) {
	s.calls.Add(1)
	return 2, nil
}

func TestSchedulerRegistersAndTriggers(t *testing.T) {
	s := NewScheduler(zap.NewNop(), time.Second)
	syncer := &stubSyncer{}
	sweeper := &stubSweeper{}
	require.NoError(t, s.AddVendorSync("0 */6 * * *", syncer))
	require.NoError(t, s.AddSLASweep("*/5 * * * *", sweeper))
	assert.Equal(t, []string{JobSLASweep, JobVendorSync}, s.Jobs())

	require.NoError(t, s.Trigger(context.Background(), JobVendorSync))
	require.NoError(t, s.Trigger(context.Background(), JobSLASweep))
	assert.EqualValues(t, 1, syncer.calls.Load())
	assert.EqualValues(t, 1, sweeper.calls.Load())

	err := s.Trigger(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSchedulerRejectsBadSpecsAndDuplicates(t *testing.T) {
	s := NewScheduler(nil, 0)
	assert.Error(t, s.AddSLASweep("every minute", &stubSweeper{}))
	require.NoError(t, s.AddSLASweep("@every 1h", &stubSweeper{}))
	assert.Error(t, s.AddSLASweep("@every 2h", &stubSweeper{}))
}

func TestSchedulerPropagatesJobErrors(t *testing.T) {
	s := NewScheduler(zap.NewNop(), time.Second)
	busy := &stubSyncer{err: apperrors.NewConflict("vendor sync already running", nil)}
	require.NoError(t, s.AddVendorSync("@hourly", busy))
	err := s.Trigger(context.Background(), JobVendorSync)
	assert.Equal(t, 409, apperrors.ToDomainError(err).HTTPStatus)
}

func TestSchedulerStartStop(t *testing.T) {
	s := NewScheduler(zap.NewNop(), time.Second)
	sweeper := &stubSweeper{}
	require.NoError(t, s.AddSLASweep("@every 1s", sweeper))
	s.Start()

	require.Eventually(t, func() bool { return sweeper.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
