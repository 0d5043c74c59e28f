package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"sgp-service/internal/util"

	"go.uber.org/zap"
)

// ErrTickInProgress is returned by RunOnce when another tick holds the
// in-process guard or the cross-instance lock.
var ErrTickInProgress = errors.New("scheduler tick already in progress")

const (
	defaultPollInterval = 60 * time.Second
	defaultLockTTL      = 5 * time.Minute
	tickLockKey         = "scheduler-tick"
)

// Expirer persists expirations of overdue proposals
type Expirer interface {
	ExpireOverdue(ctx context.Context, now time.Time) (int, error)
}

// AlertGenerator persists due expiring-soon alerts
type AlertGenerator interface {
	CreateDueAlerts(ctx context.Context, now time.Time) (int, error)
}

// BadgeRefresher recomputes the unread alert count
type BadgeRefresher interface {
	Refresh(ctx context.Context) error
}

// Locker is a cross-instance mutual exclusion primitive. Implemented by redisclient.Client.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// SchedulerConfig tunes the scheduler
type SchedulerConfig struct {
	Interval time.Duration
	LockTTL  time.Duration
}

// TickResult summarises one tick
type TickResult struct {
	Expired       int           `json:"expired"`
	AlertsCreated int           `json:"alerts_created"`
	Duration      time.Duration `json:"duration"`
}

// Scheduler runs the expiration and alert engines on a fixed cadence
type Scheduler struct {
	expirer   Expirer
	generator AlertGenerator
	refresher BadgeRefresher
	locker    Locker
	cfg       SchedulerConfig

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	now    func() time.Time
	logger *zap.Logger
}

// NewScheduler creates a scheduler. locker may be nil for single-instance deployments.
func NewScheduler(expirer Expirer, generator AlertGenerator, refresher BadgeRefresher, locker Locker, cfg SchedulerConfig) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultPollInterval
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	return &Scheduler{
		expirer:   expirer,
		generator: generator,
		refresher: refresher,
		locker:    locker,
		cfg:       cfg,
		now:       time.Now,
		logger:    util.GetLogger().Named("scheduler"),
	}
}

// Start runs one tick immediately and then one per interval until Stop is
// called or ctx is cancelled. Calling Start on a running scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger.Info("Starting scheduler", zap.Duration("interval", s.cfg.Interval))
	go s.loop(loopCtx, s.done)
}

// Stop cancels the loop and waits for it to return. A tick already running
// is allowed to finish its store requests.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	s.logger.Info("Stopping scheduler...")
	cancel()
	<-done
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	s.tick(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	// a stopped loop must not abort requests the tick already issued
	result, err := s.RunOnce(context.WithoutCancel(ctx))
	switch {
	case errors.Is(err, ErrTickInProgress):
		s.logger.Debug("Tick skipped", zap.Error(err))
	case err != nil:
		s.logger.Error("Tick finished with errors",
			zap.Int("expired", result.Expired),
			zap.Int("alerts_created", result.AlertsCreated),
			zap.Error(err))
	default:
		s.logger.Debug("Tick finished",
			zap.Int("expired", result.Expired),
			zap.Int("alerts_created", result.AlertsCreated),
			zap.Duration("duration", result.Duration))
	}
}

// RunOnce runs one tick: expire overdue proposals, create due alerts, then
// refresh the unread count. A failing step is logged and the next one still
// runs; the returned error joins every step failure.
func (s *Scheduler) RunOnce(ctx context.Context) (TickResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		util.SchedulerTicksSkipped.WithLabelValues("in_progress").Inc()
		return TickResult{}, ErrTickInProgress
	}
	defer s.running.Store(false)

	ctx, span := util.StartSpan(ctx, "Scheduler.RunOnce")
	defer span.End()

	if s.locker != nil {
		token, ok, err := s.locker.AcquireLock(ctx, tickLockKey, s.cfg.LockTTL)
		switch {
		case err != nil:
			s.logger.Warn("Tick lock unavailable, running without it", zap.Error(err))
		case !ok:
			util.SchedulerTicksSkipped.WithLabelValues("locked").Inc()
			return TickResult{}, fmt.Errorf("%w: held by another instance", ErrTickInProgress)
		default:
			defer s.releaseLock(token)
		}
	}

	start := time.Now()
	now := s.now()
	var result TickResult
	var errs []error

	expired, err := s.expirer.ExpireOverdue(ctx, now)
	if err != nil {
		util.BatchFailuresTotal.WithLabelValues("tick_expiration").Inc()
		errs = append(errs, fmt.Errorf("expire overdue proposals: %w", err))
	}
	result.Expired = expired

	created, err := s.generator.CreateDueAlerts(ctx, now)
	if err != nil {
		util.BatchFailuresTotal.WithLabelValues("tick_alerts").Inc()
		errs = append(errs, fmt.Errorf("create due alerts: %w", err))
	}
	result.AlertsCreated = created

	if err := s.refresher.Refresh(ctx); err != nil {
		util.BatchFailuresTotal.WithLabelValues("tick_refresh").Inc()
		errs = append(errs, fmt.Errorf("refresh unread count: %w", err))
	}

	result.Duration = time.Since(start)
	util.SchedulerTicksTotal.Inc()
	util.SchedulerTickDuration.Observe(result.Duration.Seconds())

	return result, errors.Join(errs...)
}

func (s *Scheduler) releaseLock(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.locker.ReleaseLock(ctx, tickLockKey, token); err != nil {
		s.logger.Warn("Failed to release tick lock", zap.Error(err))
	}
}
