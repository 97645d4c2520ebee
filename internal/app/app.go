package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/leozw/uptime-sentinel/internal/checks"
	"github.com/leozw/uptime-sentinel/internal/config"
	"github.com/leozw/uptime-sentinel/internal/db"
	"github.com/leozw/uptime-sentinel/internal/lookup"
	"github.com/leozw/uptime-sentinel/internal/metrics"
	"github.com/leozw/uptime-sentinel/internal/notify"
	"github.com/leozw/uptime-sentinel/internal/scheduler"
	"github.com/leozw/uptime-sentinel/internal/storage/memory"
	"github.com/leozw/uptime-sentinel/internal/storage/redis"
)

// Store is the monitor store as seen by the process: what the scheduler
// writes plus a readiness ping.
type Store interface {
	scheduler.Store
	Ping(ctx context.Context) error
}

// ErrEphemeralStore is returned when a persistent store is required but
// database.url is empty.
var ErrEphemeralStore = errors.New("a persistent store is required; set database.url")

type Option func(*settings)

type settings struct {
	requirePersistent bool
}

// RequirePersistentStore rejects the in-memory store. Processes that exit
// after one tick lose all monitor state without it.
func RequirePersistentStore() Option {
	return func(s *settings) { s.requirePersistent = true }
}

// App holds the wired components shared by the worker and one-shot binaries.
type App struct {
	Config    *config.Config
	Store     Store
	Metrics   *metrics.Collector
	Scheduler *scheduler.Scheduler

	closers []func() error
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	var set settings
	for _, opt := range opts {
		opt(&set)
	}
	if set.requirePersistent && cfg.Database.URL == "" {
		return nil, ErrEphemeralStore
	}

	a := &App{Config: cfg}

	store, err := a.openStore(ctx, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store

	a.Metrics = metrics.NewCollector(cfg.Mimir)

	loc, err := time.LoadLocation(cfg.Alert.Timezone)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("invalid alert timezone: %w", err)
	}
	notifier := notify.NewDingTalk(notify.DingTalkConfig{
		WebhookURL:  cfg.Alert.WebhookURL,
		AccessToken: cfg.Alert.AccessToken,
		Secret:      cfg.Alert.Secret,
		Location:    loc,
		Timeout:     cfg.Alert.Timeout,
	}, logger, a.Metrics)
	if cfg.Alert.AccessToken == "" || cfg.Alert.Secret == "" {
		logger.Warn("Alert credentials not configured, notifications are disabled")
	}

	schedOpts := scheduler.Options{
		RetryThreshold: cfg.Scheduler.RetryThreshold,
		InfoCooldown:   cfg.Scheduler.InfoCooldown,
		InfoTimeout:    cfg.Scheduler.InfoTimeout,
		Metrics:        a.Metrics,
	}

	if cfg.Redis.URL != "" {
		client := redis.NewClient(cfg.Redis.URL)
		a.closers = append(a.closers, client.Close)
		leaser := redis.NewLeaser(client, cfg.Redis.LeaseTTL, logger)
		if err := leaser.Ping(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		schedOpts.Locker = leaser
		logger.Info("Per-monitor leases enabled", zap.Duration("ttl", cfg.Redis.LeaseTTL))
	}

	a.Scheduler = scheduler.NewScheduler(
		store,
		checks.NewHTTPChecker(cfg.Scheduler.CheckTimeout),
		notifier,
		NewResolver(cfg.Lookup, logger),
		schedOpts,
		logger,
	)

	return a, nil
}

// NewResolver builds the expiry resolver with the configured domain source.
func NewResolver(cfg config.LookupConfig, logger *zap.Logger) *lookup.Resolver {
	certs := lookup.NewCTClient(cfg.CTURL, cfg.Timeout, newLimiter(cfg), logger)

	var domains lookup.DomainSource
	switch cfg.DomainSource {
	case config.DomainSourceWhois:
		domains = lookup.NewWhoisClient(cfg.Timeout, newLimiter(cfg), logger)
	default:
		domains = lookup.NewRDAPClient(cfg.RDAPURL, cfg.Timeout, newLimiter(cfg), logger)
	}

	return lookup.NewResolver(certs, domains, logger)
}

func newLimiter(cfg config.LookupConfig) *rate.Limiter {
	if cfg.RatePerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
}

func (a *App) openStore(ctx context.Context, logger *zap.Logger) (Store, error) {
	cfg := a.Config

	if cfg.Database.URL == "" {
		store := memory.New()
		if err := Seed(ctx, store, cfg.Monitors); err != nil {
			return nil, err
		}
		logger.Info("Using in-memory store", zap.Int("monitors", len(cfg.Monitors)))
		return store, nil
	}

	conn, err := db.NewConnection(cfg.Database.URL, cfg.Database.MaxConnections, cfg.Database.MaxIdleConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.closers = append(a.closers, conn.Close)

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(conn); err != nil {
			return nil, err
		}
		logger.Info("Database migrations applied")
	}

	return db.NewRepository(conn), nil
}

type creator interface {
	CreateMonitor(ctx context.Context, m *db.Monitor) error
}

// Seed loads configured monitors into store.
func Seed(ctx context.Context, store creator, seeds []config.MonitorSeed) error {
	for _, s := range seeds {
		interval := s.Interval
		if interval <= 0 {
			interval = 60
		}
		m := &db.Monitor{
			Name:     s.Name,
			URL:      s.URL,
			Method:   s.Method,
			Keyword:  s.Keyword,
			Interval: interval,
			Status:   db.StatusUp,
		}
		if m.Name == "" {
			m.Name = s.URL
		}
		if err := store.CreateMonitor(ctx, m); err != nil {
			return fmt.Errorf("failed to seed monitor %q: %w", s.URL, err)
		}
	}
	return nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i]())
	}
	a.closers = nil
	return err
}
