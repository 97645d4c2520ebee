package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/leozw/uptime-sentinel/internal/checks"
	"github.com/leozw/uptime-sentinel/internal/db"
	"github.com/leozw/uptime-sentinel/internal/lookup"
	"github.com/leozw/uptime-sentinel/internal/notify"
)

// Store is the persistence the tick needs. db.Repository and memory.Store
// implement it.
type Store interface {
	ListMonitors(ctx context.Context) ([]*db.Monitor, error)
	UpdateMonitorState(ctx context.Context, id string, status db.MonitorStatus, retryCount int, lastCheck time.Time) error
	UpdateMonitorMetadata(ctx context.Context, id string, certExpiry, domainExpiry *time.Time) error
	UpdateLastInfoCheck(ctx context.Context, id string, at time.Time) error
	AppendLog(ctx context.Context, result *db.CheckResult) error
}

type Notifier interface {
	Notify(ctx context.Context, monitor *db.Monitor, message string) *notify.Ack
}

type Resolver interface {
	Resolve(ctx context.Context, host string) lookup.Expiry
}

// Locker hands out per-monitor leases so overlapping ticks never probe the
// same monitor twice.
type Locker interface {
	Acquire(ctx context.Context, monitorID string) (release func(), err error)
}

// Recorder receives tick observations. metrics.Collector implements it.
type Recorder interface {
	RecordCheck(result *db.CheckResult, monitor *db.Monitor)
	RecordState(monitor *db.Monitor, from, to db.MonitorStatus, retryCount int)
	RecordExpiry(monitor *db.Monitor, certExpiry, domainExpiry *time.Time)
	RecordScheduledChecks(count int)
	RecordTick(d time.Duration)
	RecordStoreError(operation string)
}

type Options struct {
	RetryThreshold int
	InfoCooldown   time.Duration
	InfoTimeout    time.Duration
	Locker         Locker
	Metrics        Recorder
}

type Scheduler struct {
	store    Store
	runner   checks.Runner
	notifier Notifier
	resolver Resolver
	opts     Options
	logger   *zap.Logger

	refreshes sync.WaitGroup
}

func NewScheduler(store Store, runner checks.Runner, notifier Notifier, resolver Resolver, opts Options, logger *zap.Logger) *Scheduler {
	if opts.RetryThreshold < 1 {
		opts.RetryThreshold = 3
	}
	if opts.InfoCooldown <= 0 {
		opts.InfoCooldown = 24 * time.Hour
	}
	if opts.InfoTimeout <= 0 {
		opts.InfoTimeout = time.Minute
	}
	if opts.Metrics == nil {
		opts.Metrics = nopRecorder{}
	}

	return &Scheduler{
		store:    store,
		runner:   runner,
		notifier: notifier,
		resolver: resolver,
		opts:     opts,
		logger:   logger.With(zap.String("component", "scheduler")),
	}
}

// Start runs a tick immediately and then every interval until ctx is done.
// Cancelling ctx stops further ticks; a tick already running finishes on a
// context detached from ctx, bounded by the probe timeouts.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	s.logger.Info("Starting scheduler", zap.Duration("tick_interval", interval))

	tickCtx := context.WithoutCancel(ctx)
	s.runTick(tickCtx, time.Now())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping scheduler")
			return
		case now := <-ticker.C:
			if ctx.Err() != nil {
				s.logger.Info("Stopping scheduler")
				return
			}
			s.runTick(tickCtx, now)
		}
	}
}

func (s *Scheduler) runTick(ctx context.Context, now time.Time) {
	if err := s.Tick(ctx, now); err != nil {
		s.logger.Error("Tick finished with errors", zap.Error(err))
	}
}

// Tick probes every due monitor concurrently and returns once all of them
// have been handled. Metadata refreshes started by the tick keep running
// after it returns. Store write failures are combined into the returned
// error; one monitor failing never stops the others.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) error {
	start := time.Now()

	monitors, err := s.store.ListMonitors(ctx)
	if err != nil {
		s.opts.Metrics.RecordStoreError("list_monitors")
		return fmt.Errorf("failed to list monitors: %w", err)
	}

	due := make([]*db.Monitor, 0, len(monitors))
	for _, m := range monitors {
		if IsDue(m, now) {
			due = append(due, m)
		}
	}
	s.opts.Metrics.RecordScheduledChecks(len(due))

	s.logger.Debug("Tick",
		zap.Int("monitors", len(monitors)),
		zap.Int("due", len(due)),
	)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for _, m := range due {
		wg.Add(1)
		go func(m *db.Monitor) {
			defer wg.Done()
			if err := s.processMonitor(ctx, m, now); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
		}(m)
	}
	wg.Wait()

	s.opts.Metrics.RecordTick(time.Since(start))
	return errs
}

// Wait blocks until all background metadata refreshes have finished.
func (s *Scheduler) Wait() {
	s.refreshes.Wait()
}

func (s *Scheduler) processMonitor(ctx context.Context, m *db.Monitor, now time.Time) (err error) {
	logger := s.logger.With(
		zap.String("monitor_id", m.ID),
		zap.String("monitor_name", m.Name),
	)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Recovered from panic while checking monitor", zap.Any("panic", r))
			err = fmt.Errorf("monitor %s: panic: %v", m.ID, r)
		}
	}()

	if s.opts.Locker != nil {
		release, lerr := s.opts.Locker.Acquire(ctx, m.ID)
		if lerr != nil {
			logger.Debug("Skipping monitor, lease not acquired", zap.Error(lerr))
			return nil
		}
		defer release()
	}

	result := s.runner.Check(ctx, m)
	result.MonitorID = m.ID
	result.CheckedAt = now

	previous := m.Status.Normalize()
	status, retryCount, alert := Transition(previous, m.RetryCount, result.IsFail, s.opts.RetryThreshold)

	s.opts.Metrics.RecordCheck(result, m)
	s.opts.Metrics.RecordState(m, previous, status, retryCount)

	logger.Debug("Check completed",
		zap.Bool("failed", result.IsFail),
		zap.String("reason", result.Reason),
		zap.Int("status_code", result.StatusCode),
		zap.Int64("latency_ms", result.LatencyMs),
		zap.String("from", string(previous)),
		zap.String("to", string(status)),
		zap.Int("retry_count", retryCount),
	)

	switch alert {
	case AlertDown:
		logger.Warn("Monitor is down", zap.String("reason", result.Reason))
		s.notifier.Notify(ctx, m, fmt.Sprintf("Service is DOWN. Reason: %s", result.Reason))
	case AlertRecovered:
		logger.Info("Monitor recovered", zap.Int64("latency_ms", result.LatencyMs))
		s.notifier.Notify(ctx, m, fmt.Sprintf("Service recovered. Latency: %dms", result.LatencyMs))
	}

	if werr := s.store.UpdateMonitorState(ctx, m.ID, status, retryCount, now); werr != nil {
		s.opts.Metrics.RecordStoreError("update_state")
		logger.Error("Failed to persist monitor state", zap.Error(werr))
		err = multierr.Append(err, fmt.Errorf("monitor %s: failed to update state: %w", m.ID, werr))
	}

	if werr := s.store.AppendLog(ctx, result); werr != nil {
		s.opts.Metrics.RecordStoreError("append_log")
		logger.Error("Failed to persist check log", zap.Error(werr))
		err = multierr.Append(err, fmt.Errorf("monitor %s: failed to append log: %w", m.ID, werr))
	}

	if result.IsFail || !infoDue(m, now, s.opts.InfoCooldown) {
		return err
	}

	if werr := s.store.UpdateLastInfoCheck(ctx, m.ID, now); werr != nil {
		s.opts.Metrics.RecordStoreError("update_last_info_check")
		logger.Error("Failed to mark metadata refresh", zap.Error(werr))
		return multierr.Append(err, fmt.Errorf("monitor %s: failed to update last info check: %w", m.ID, werr))
	}

	target := *m
	s.refreshes.Add(1)
	go s.refreshMetadata(context.WithoutCancel(ctx), &target, logger)

	return err
}

func (s *Scheduler) refreshMetadata(ctx context.Context, m *db.Monitor, logger *zap.Logger) {
	defer s.refreshes.Done()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Recovered from panic while refreshing metadata", zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.opts.InfoTimeout)
	defer cancel()

	host := lookup.HostFromURL(m.URL)
	if host == "" {
		logger.Debug("Skipping metadata refresh, no host in URL", zap.String("url", m.URL))
		return
	}

	expiry := s.resolver.Resolve(ctx, host)
	s.opts.Metrics.RecordExpiry(m, expiry.CertExpiry, expiry.DomainExpiry)

	if expiry.Empty() {
		logger.Debug("No expiry metadata found", zap.String("host", host))
		return
	}

	if err := s.store.UpdateMonitorMetadata(ctx, m.ID, expiry.CertExpiry, expiry.DomainExpiry); err != nil {
		s.opts.Metrics.RecordStoreError("update_metadata")
		logger.Error("Failed to persist expiry metadata", zap.Error(err))
		return
	}

	logger.Info("Expiry metadata updated",
		zap.String("host", host),
		zap.Timep("cert_expiry", expiry.CertExpiry),
		zap.String("cert_common_name", expiry.CertCommonName),
		zap.Timep("domain_expiry", expiry.DomainExpiry),
	)
}

type nopRecorder struct{}

func (nopRecorder) RecordCheck(*db.CheckResult, *db.Monitor) {}
func (nopRecorder) RecordState(*db.Monitor, db.MonitorStatus, db.MonitorStatus, int) {}
func (nopRecorder) RecordExpiry(*db.Monitor, *time.Time, *time.Time) {}
func (nopRecorder) RecordScheduledChecks(int) {}
func (nopRecorder) RecordTick(time.Duration) {}
func (nopRecorder) RecordStoreError(string) {}
