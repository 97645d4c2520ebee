package scheduler

import "github.com/leozw/uptime-sentinel/internal/db"

type AlertKind int

const (
	AlertNone AlertKind = iota
	AlertDown
	AlertRecovered
)

func (k AlertKind) String() string {
	switch k {
	case AlertDown:
		return "down"
	case AlertRecovered:
		return "recovered"
	default:
		return "none"
	}
}

// Transition advances the debounce state machine by one probe outcome.
// A monitor needs threshold failures while RETRYING before it goes DOWN, and
// a single success from any state brings it back UP.
func Transition(current db.MonitorStatus, retryCount int, failed bool, threshold int) (db.MonitorStatus, int, AlertKind) {
	switch current.Normalize() {
	case db.StatusDown:
		if failed {
			return db.StatusDown, retryCount, AlertNone
		}
		return db.StatusUp, 0, AlertRecovered

	case db.StatusRetrying:
		if !failed {
			return db.StatusUp, 0, AlertNone
		}
		if retryCount >= threshold {
			return db.StatusDown, retryCount, AlertDown
		}
		return db.StatusRetrying, retryCount + 1, AlertNone

	default:
		if failed {
			return db.StatusRetrying, 1, AlertNone
		}
		return db.StatusUp, 0, AlertNone
	}
}
