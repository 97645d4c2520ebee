package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leozw/uptime-sentinel/internal/db"
)

// Store keeps monitors and check logs in process memory. It satisfies the
// same contract as db.Repository and is used when no database is configured.
type Store struct {
	mu       sync.RWMutex
	monitors map[string]*db.Monitor
	order    []string
	logs     []*db.CheckResult
}

func New() *Store {
	return &Store{
		monitors: make(map[string]*db.Monitor),
		logs:     make([]*db.CheckResult, 0, 128),
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

func (s *Store) CreateMonitor(ctx context.Context, m *db.Monitor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if _, exists := s.monitors[m.ID]; exists {
		return fmt.Errorf("monitor %s already exists", m.ID)
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	m.Status = m.Status.Normalize()

	cp := *m
	s.monitors[m.ID] = &cp
	s.order = append(s.order, m.ID)
	return nil
}

// GetMonitor returns a copy of the stored monitor.
func (s *Store) GetMonitor(ctx context.Context, id string) (*db.Monitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.monitors[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *Store) ListMonitors(ctx context.Context) ([]*db.Monitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*db.Monitor, 0, len(s.order))
	for _, id := range s.order {
		cp := *s.monitors[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) UpdateMonitorState(ctx context.Context, id string, status db.MonitorStatus, retryCount int, lastCheck time.Time) error {
	return s.update(id, func(m *db.Monitor) {
		m.Status = status
		m.RetryCount = retryCount
		lc := lastCheck
		m.LastCheck = &lc
	})
}

func (s *Store) UpdateMonitorMetadata(ctx context.Context, id string, certExpiry, domainExpiry *time.Time) error {
	return s.update(id, func(m *db.Monitor) {
		if certExpiry != nil {
			v := *certExpiry
			m.CertExpiry = &v
		}
		if domainExpiry != nil {
			v := *domainExpiry
			m.DomainExpiry = &v
		}
	})
}

func (s *Store) UpdateLastInfoCheck(ctx context.Context, id string, at time.Time) error {
	return s.update(id, func(m *db.Monitor) {
		v := at
		m.LastInfoCheck = &v
	})
}

func (s *Store) AppendLog(ctx context.Context, result *db.CheckResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.monitors[result.MonitorID]; !ok {
		return fmt.Errorf("%w: %s", db.ErrNotFound, result.MonitorID)
	}
	if result.ID == "" {
		result.ID = uuid.New().String()
	}
	cp := *result
	s.logs = append(s.logs, &cp)
	return nil
}

// GetCheckHistory returns the newest logs first.
func (s *Store) GetCheckHistory(ctx context.Context, monitorID string, limit int) ([]*db.CheckResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*db.CheckResult, 0)
	for _, l := range s.logs {
		if l.MonitorID == monitorID {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CheckedAt.After(out[j].CheckedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) update(id string, fn func(m *db.Monitor)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.monitors[id]
	if !ok {
		return fmt.Errorf("%w: %s", db.ErrNotFound, id)
	}
	fn(m)
	m.UpdatedAt = time.Now().UTC()
	return nil
}
