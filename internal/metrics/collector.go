package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/leozw/uptime-sentinel/internal/config"
	"github.com/leozw/uptime-sentinel/internal/db"
)

type Collector struct {
	config   *config.MimirConfig
	registry *prometheus.Registry

	// Checks
	checkDuration     *prometheus.HistogramVec
	checkUp           *prometheus.GaugeVec
	checksTotal       *prometheus.CounterVec
	checkResponseCode *prometheus.GaugeVec
	monitorRetryCount *prometheus.GaugeVec
	transitionsTotal  *prometheus.CounterVec

	// Expiry metadata
	certDaysUntilExpiry   *prometheus.GaugeVec
	domainDaysUntilExpiry *prometheus.GaugeVec
	lookupsTotal          *prometheus.CounterVec

	// Notifications
	notificationsSent   *prometheus.CounterVec
	notificationsFailed *prometheus.CounterVec
	notificationLatency *prometheus.HistogramVec

	// Scheduler
	lastCheckTimestamp *prometheus.GaugeVec
	checksScheduled    prometheus.Gauge
	tickDuration       prometheus.Histogram
	storeErrors        *prometheus.CounterVec
}

// NewCollector registers all series on a private registry so several
// collectors can coexist in one process.
func NewCollector(cfg config.MimirConfig) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	monitorLabels := []string{"monitor_id", "monitor_name", "target"}

	return &Collector{
		config:   &cfg,
		registry: reg,

		checkDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "uptime_check_duration_seconds",
				Help:    "Duration of uptime checks in seconds",
				Buckets: []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			monitorLabels,
		),

		checkUp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "uptime_check_up",
				Help: "Whether the last probe succeeded (1) or failed (0)",
			},
			monitorLabels,
		),

		checksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uptime_checks_total",
				Help: "Total number of probes performed",
			},
			append(monitorLabels, "result"),
		),

		checkResponseCode: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "uptime_http_response_code",
				Help: "HTTP response code of the last probe",
			},
			monitorLabels,
		),

		monitorRetryCount: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "uptime_monitor_retry_count",
				Help: "Consecutive failed retries of a monitor",
			},
			monitorLabels,
		),

		transitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uptime_state_transitions_total",
				Help: "Monitor state changes",
			},
			[]string{"monitor_id", "monitor_name", "from", "to"},
		),

		certDaysUntilExpiry: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ssl_cert_days_until_expiry",
				Help: "Days until the latest known certificate expires",
			},
			monitorLabels,
		),

		domainDaysUntilExpiry: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "domain_days_until_expiry",
				Help: "Days until the domain registration expires",
			},
			monitorLabels,
		),

		lookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "expiry_lookups_total",
				Help: "Metadata resolutions by outcome",
			},
			[]string{"kind", "found"},
		),

		notificationsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_sent_total",
				Help: "Total notifications delivered",
			},
			[]string{"channel"},
		),

		notificationsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_failed_total",
				Help: "Total notifications that failed to deliver",
			},
			[]string{"channel"},
		),

		notificationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notification_latency_seconds",
				Help:    "Time spent delivering a notification",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"channel"},
		),

		lastCheckTimestamp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "uptime_last_check_timestamp_seconds",
				Help: "Unix time of the last probe",
			},
			[]string{"monitor_id", "monitor_name"},
		),

		checksScheduled: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "uptime_checks_scheduled",
				Help: "Monitors found due in the last tick",
			},
		),

		tickDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "uptime_tick_duration_seconds",
				Help:    "Wall time of a scheduler tick",
				Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),

		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uptime_store_errors_total",
				Help: "Failed store writes by operation",
			},
			[]string{"operation"},
		),
	}
}

// Registry exposes the collector's registry for /metrics and remote write.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func monitorLabels(monitor *db.Monitor) prometheus.Labels {
	return prometheus.Labels{
		"monitor_id":   monitor.ID,
		"monitor_name": monitor.Name,
		"target":       monitor.URL,
	}
}

func (c *Collector) RecordCheck(result *db.CheckResult, monitor *db.Monitor) {
	labels := monitorLabels(monitor)

	c.checkDuration.With(labels).Observe(float64(result.LatencyMs) / 1000)

	upValue := 1.0
	outcome := "success"
	if result.IsFail {
		upValue = 0
		outcome = "failure"
	}
	c.checkUp.With(labels).Set(upValue)

	c.checksTotal.With(prometheus.Labels{
		"monitor_id":   monitor.ID,
		"monitor_name": monitor.Name,
		"target":       monitor.URL,
		"result":       outcome,
	}).Inc()

	c.checkResponseCode.With(labels).Set(float64(result.StatusCode))

	c.lastCheckTimestamp.With(prometheus.Labels{
		"monitor_id":   monitor.ID,
		"monitor_name": monitor.Name,
	}).SetToCurrentTime()
}

func (c *Collector) RecordState(monitor *db.Monitor, from, to db.MonitorStatus, retryCount int) {
	c.monitorRetryCount.With(monitorLabels(monitor)).Set(float64(retryCount))
	if from == to {
		return
	}
	c.transitionsTotal.With(prometheus.Labels{
		"monitor_id":   monitor.ID,
		"monitor_name": monitor.Name,
		"from":         string(from),
		"to":           string(to),
	}).Inc()
}

func (c *Collector) RecordExpiry(monitor *db.Monitor, certExpiry, domainExpiry *time.Time) {
	labels := monitorLabels(monitor)
	c.lookupsTotal.With(prometheus.Labels{"kind": "cert", "found": boolLabel(certExpiry != nil)}).Inc()
	c.lookupsTotal.With(prometheus.Labels{"kind": "domain", "found": boolLabel(domainExpiry != nil)}).Inc()

	if certExpiry != nil {
		c.certDaysUntilExpiry.With(labels).Set(daysUntil(*certExpiry))
	}
	if domainExpiry != nil {
		c.domainDaysUntilExpiry.With(labels).Set(daysUntil(*domainExpiry))
	}
}

func (c *Collector) RecordNotificationSent(channel string, success bool, latencySeconds float64) {
	labels := prometheus.Labels{"channel": channel}
	if success {
		c.notificationsSent.With(labels).Inc()
	} else {
		c.notificationsFailed.With(labels).Inc()
	}
	c.notificationLatency.With(labels).Observe(latencySeconds)
}

func (c *Collector) RecordScheduledChecks(count int) {
	c.checksScheduled.Set(float64(count))
}

func (c *Collector) RecordTick(d time.Duration) {
	c.tickDuration.Observe(d.Seconds())
}

func (c *Collector) RecordStoreError(operation string) {
	c.storeErrors.With(prometheus.Labels{"operation": operation}).Inc()
}

func daysUntil(t time.Time) float64 {
	return float64(int(time.Until(t).Hours() / 24))
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
