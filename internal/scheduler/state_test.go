package scheduler

import (
	"testing"
	"time"

	"github.com/leozw/uptime-sentinel/internal/db"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name      string
		current   db.MonitorStatus
		retry     int
		failed    bool
		wantState db.MonitorStatus
		wantRetry int
		wantAlert AlertKind
	}{
		{"up stays up", db.StatusUp, 0, false, db.StatusUp, 0, AlertNone},
		{"up starts retrying", db.StatusUp, 0, true, db.StatusRetrying, 1, AlertNone},
		{"retrying recovers quietly", db.StatusRetrying, 2, false, db.StatusUp, 0, AlertNone},
		{"retrying counts up", db.StatusRetrying, 1, true, db.StatusRetrying, 2, AlertNone},
		{"retrying below threshold", db.StatusRetrying, 2, true, db.StatusRetrying, 3, AlertNone},
		{"retrying at threshold goes down", db.StatusRetrying, 3, true, db.StatusDown, 3, AlertDown},
		{"down stays down", db.StatusDown, 3, true, db.StatusDown, 3, AlertNone},
		{"down recovers", db.StatusDown, 3, false, db.StatusUp, 0, AlertRecovered},
		{"unknown status treated as up", "", 0, true, db.StatusRetrying, 1, AlertNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, retry, alert := Transition(tt.current, tt.retry, tt.failed, 3)
			if state != tt.wantState || retry != tt.wantRetry || alert != tt.wantAlert {
				t.Fatalf("Transition(%s, %d, %v) = %s/%d/%s, want %s/%d/%s",
					tt.current, tt.retry, tt.failed, state, retry, alert,
					tt.wantState, tt.wantRetry, tt.wantAlert)
			}
		})
	}
}

func TestTransition_Sequences(t *testing.T) {
	tests := []struct {
		name      string
		threshold int
		outcomes  []bool
		wantState db.MonitorStatus
		wantDown  int
		wantUp    int
	}{
		{"threshold plus one failures", 3, []bool{true, true, true, true}, db.StatusDown, 1, 0},
		{"threshold failures", 3, []bool{true, true, true}, db.StatusRetrying, 0, 0},
		{"flap resets counter", 3, []bool{true, true, false, true, true, true}, db.StatusRetrying, 0, 0},
		{"outage and recovery", 3, []bool{true, true, true, true, true, false}, db.StatusUp, 1, 1},
		{"threshold one", 1, []bool{true, true}, db.StatusDown, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, retry := db.StatusUp, 0
			var downs, ups int
			for _, failed := range tt.outcomes {
				var alert AlertKind
				state, retry, alert = Transition(state, retry, failed, tt.threshold)
				switch alert {
				case AlertDown:
					downs++
				case AlertRecovered:
					ups++
				}
				if state == db.StatusUp && retry != 0 {
					t.Fatalf("retry_count %d while UP", retry)
				}
			}
			if state != tt.wantState || downs != tt.wantDown || ups != tt.wantUp {
				t.Fatalf("got %s with %d down / %d recovered alerts, want %s with %d / %d",
					state, downs, ups, tt.wantState, tt.wantDown, tt.wantUp)
			}
		})
	}
}

func TestIsDue(t *testing.T) {
	now := time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)
	ago := func(d time.Duration) *time.Time {
		v := now.Add(-d)
		return &v
	}

	tests := []struct {
		name string
		m    db.Monitor
		want bool
	}{
		{"never checked", db.Monitor{Status: db.StatusUp, Interval: 60}, true},
		{"interval elapsed", db.Monitor{Status: db.StatusUp, Interval: 60, LastCheck: ago(61 * time.Second)}, true},
		{"exactly on interval", db.Monitor{Status: db.StatusUp, Interval: 60, LastCheck: ago(60 * time.Second)}, true},
		{"too soon", db.Monitor{Status: db.StatusUp, Interval: 60, LastCheck: ago(30 * time.Second)}, false},
		{"down too soon", db.Monitor{Status: db.StatusDown, Interval: 60, LastCheck: ago(30 * time.Second)}, false},
		{"retrying always due", db.Monitor{Status: db.StatusRetrying, Interval: 3600, LastCheck: ago(time.Second)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDue(&tt.m, now); got != tt.want {
				t.Fatalf("IsDue = %v, want %v", got, tt.want)
			}
		})
	}
}
