package db

import (
	"strings"
	"time"
)

type MonitorStatus string

const (
	StatusUp       MonitorStatus = "UP"
	StatusRetrying MonitorStatus = "RETRYING"
	StatusDown     MonitorStatus = "DOWN"
)

// Normalize maps unknown or empty values to StatusUp so freshly created
// monitors enter the state machine as healthy.
func (s MonitorStatus) Normalize() MonitorStatus {
	switch MonitorStatus(strings.ToUpper(string(s))) {
	case StatusRetrying:
		return StatusRetrying
	case StatusDown:
		return StatusDown
	default:
		return StatusUp
	}
}

type Monitor struct {
	ID       string `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	URL      string `json:"url" db:"url"`
	Method   string `json:"method" db:"method"`
	Keyword  string `json:"keyword,omitempty" db:"keyword"`
	Interval int    `json:"interval" db:"interval"`

	Status        MonitorStatus `json:"status" db:"status"`
	RetryCount    int           `json:"retry_count" db:"retry_count"`
	LastCheck     *time.Time    `json:"last_check,omitempty" db:"last_check"`
	LastInfoCheck *time.Time    `json:"last_info_check,omitempty" db:"last_info_check"`
	CertExpiry    *time.Time    `json:"cert_expiry,omitempty" db:"cert_expiry"`
	DomainExpiry  *time.Time    `json:"domain_expiry,omitempty" db:"domain_expiry"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IntervalDuration returns the polling interval as a duration.
func (m *Monitor) IntervalDuration() time.Duration {
	return time.Duration(m.Interval) * time.Second
}

// CheckResult is the outcome of one probe. It is stored once as a log entry
// and never updated.
type CheckResult struct {
	ID         string    `json:"id" db:"id"`
	MonitorID  string    `json:"monitor_id" db:"monitor_id"`
	StatusCode int       `json:"status_code" db:"status_code"`
	LatencyMs  int64     `json:"latency_ms" db:"latency_ms"`
	IsFail     bool      `json:"is_fail" db:"is_fail"`
	Reason     string    `json:"reason,omitempty" db:"reason"`
	CheckedAt  time.Time `json:"checked_at" db:"checked_at"`
}
