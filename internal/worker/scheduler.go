package worker

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/flow-helpdesk/internal/service"
	apperrors "github.com/spec-kit/flow-helpdesk/pkg/util/errorutil"
)

// Job names used in logs and for manual triggers.
const (
	JobVendorSync = "vendor_sync"
	JobSLASweep   = "sla_sweep"
)

const defaultJobTimeout = 10 * time.Minute

// VendorSyncer runs one warehouse sync.
type VendorSyncer interface {
	Run(ctx context.Context) (*service.SyncResult, error)
}

// SLASweeper flags tickets past their resolution deadline.
type SLASweeper interface {
	SweepSLA(ctx context.Context) (int, error)
}

type jobFunc func(ctx context.Context) error

// Scheduler runs background jobs on cron specs (standard five field syntax, UTC).
type Scheduler struct {
	cron    *cron.Cron
	logger  *zap.Logger
	timeout time.Duration

	mu   sync.Mutex
	jobs map[string]jobFunc
}

// NewScheduler builds a scheduler. Overlapping runs of the same job are skipped
// and panics are recovered.
func NewScheduler(logger *zap.Logger, timeout time.Duration) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	cl := cronLogger{logger.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		timeout: timeout,
		jobs:    map[string]jobFunc{},
	}
}

// AddVendorSync schedules the BigQuery vendor sync.
func (s *Scheduler) AddVendorSync(spec string, syncer VendorSyncer) error {
	return s.add(JobVendorSync, spec, func(ctx context.Context) error {
		result, err := syncer.Run(ctx)
		if err != nil {
			return err
		}
		s.logger.Info("scheduled vendor sync done",
			zap.Int("upserted", result.Upserted),
			zap.Int("errors", len(result.Errors)),
		)
		return nil
	})
}

// AddSLASweep schedules the SLA breach sweep.
func (s *Scheduler) AddSLASweep(spec string, sweeper SLASweeper) error {
	return s.add(JobSLASweep, spec, func(ctx context.Context) error {
		n, err := sweeper.SweepSLA(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			s.logger.Info("sla sweep flagged tickets", zap.Int("breached", n))
		}
		return nil
	})
}

func (s *Scheduler) add(name, spec string, fn jobFunc) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron spec for %s: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already scheduled", name)
	}
	if _, err := s.cron.AddFunc(spec, func() { _ = s.run(context.Background(), name, fn) }); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.jobs[name] = fn
	s.logger.Info("job scheduled", zap.String("job", name), zap.String("spec", spec))
	return nil
}

// Trigger runs a registered job immediately on the caller's goroutine.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.Lock()
	fn, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return apperrors.NewNotFound("job", map[string]any{"job": name})
	}
	return s.run(ctx, name, fn)
}

func (s *Scheduler) run(ctx context.Context, name string, fn jobFunc) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	err := fn(ctx)
	fields := []zap.Field{zap.String("job", name), zap.Duration("took", time.Since(start))}
	if err != nil {
		if de := apperrors.ToDomainError(err); de.HTTPStatus == http.StatusConflict {
			s.logger.Info("job skipped, previous run still active", fields...)
			return err
		}
		s.logger.Error("job failed", append(fields, zap.Error(err))...)
		return err
	}
	s.logger.Debug("job finished", fields...)
	return nil
}

// Jobs returns the registered job names.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
