package scheduler

import (
	"time"

	"github.com/leozw/uptime-sentinel/internal/db"
)

// IsDue reports whether m should be probed at now. RETRYING monitors are
// probed on every tick.
func IsDue(m *db.Monitor, now time.Time) bool {
	if m.Status.Normalize() == db.StatusRetrying {
		return true
	}
	if m.LastCheck == nil {
		return true
	}
	return now.Sub(*m.LastCheck) >= m.IntervalDuration()
}

func infoDue(m *db.Monitor, now time.Time, cooldown time.Duration) bool {
	if m.LastInfoCheck == nil {
		return true
	}
	return now.Sub(*m.LastInfoCheck) >= cooldown
}
