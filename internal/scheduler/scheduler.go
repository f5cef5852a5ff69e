package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/estate/internal/audit/domain"
	auditcontext "github.com/smallbiznis/estate/internal/auditcontext"
	"github.com/smallbiznis/estate/internal/clock"
	exchangeratedomain "github.com/smallbiznis/estate/internal/exchangerate/domain"
	obsmetrics "github.com/smallbiznis/estate/internal/observability/metrics"
	"github.com/smallbiznis/estate/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobRefreshExchangeRates = "refresh_exchange_rates"

	lockKeyPrefix = "estate:scheduler:lock:"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Rates    exchangeratedomain.Provider
	Locker   ratelimit.JobLocker
	AuditSvc auditdomain.Service `optional:"true"`
	Config   Config              `optional:"true"`
}

type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	genID    *snowflake.Node
	clock    clock.Clock
	rates    exchangeratedomain.Provider
	locker   ratelimit.JobLocker
	auditSvc auditdomain.Service
	metrics  *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Rates == nil || p.Locker == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:      p.Log.Named("scheduler"),
		cfg:      p.Config.withDefaults(),
		genID:    p.GenID,
		clock:    p.Clock,
		rates:    p.Rates,
		locker:   p.Locker,
		auditSvc: p.AuditSvc,
		metrics:  obsmetrics.Scheduler(),
	}, nil
}

// runJob executes fn under a lease named after the job. A replica that does
// not get the lease skips the run. Deadline errors are soft failures.
func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	token, ok, err := s.locker.TryLock(parent, lockKeyPrefix+name, s.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("%s: acquire lock: %w", name, err)
	}
	if !ok {
		s.log.Debug("job skipped; lease held elsewhere", zap.String("job", name))
		return nil
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(parent), lockKeyPrefix+name, token); err != nil {
			s.log.Warn("release job lock failed", zap.String("job", name), zap.Error(err))
		}
	}()

	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx = auditcontext.WithActor(ctx, string(auditdomain.ActorTypeSystem), "scheduler")
	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	s.metrics.IncJobRun(name)

	err = fn(ctx)
	s.metrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	s.metrics.IncJobError(name, err)
	if isTimeout {
		s.metrics.IncJobTimeout(name)
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobRefreshExchangeRates, s.RefreshExchangeRatesJob},
	}
	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.JobTimeout, job.Run))
	}
	return err
}

// RunForever runs every job once at start, then on each tick until ctx ends.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)

	if s.cfg.RefreshOnRun {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if lag := s.clock.Now().Sub(nextRun); lag > 0 {
			s.metrics.ObserveRunLoopLag(lag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// RefreshExchangeRatesJob pulls a new rate table and records the outcome in
// the admin audit log.
func (s *Scheduler) RefreshExchangeRatesJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobRefreshExchangeRates)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	snap, err := s.rates.Refresh(ctx)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.exchange_rates.refresh_failed", JobRefreshExchangeRates, err)
		return err
	}

	run.AddProcessed(len(snap.Rates))
	s.metrics.AddBatchProcessed(JobRefreshExchangeRates, "currencies", len(snap.Rates))
	if s.auditSvc != nil {
		targetID := snap.Base
		_ = s.auditSvc.AuditLog(ctx, string(auditdomain.ActorTypeSystem), nil, auditdomain.ActionExchangeRateRefresh, "exchange_rates", &targetID, map[string]any{
			"source":     snap.Source,
			"currencies": len(snap.Rates),
			"trigger":    "scheduler",
		})
	}
	return nil
}
