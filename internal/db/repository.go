package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var ErrNotFound = errors.New("monitor not found")

type Repository struct {
	db *sqlx.DB
}

func NewConnection(databaseURL string, maxOpen, maxIdle int) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CreateMonitor is used by seeding and tests; the public CRUD surface lives
// outside this service.
func (r *Repository) CreateMonitor(ctx context.Context, m *Monitor) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	m.Status = m.Status.Normalize()

	query := `
        INSERT INTO monitors (
            id, name, url, method, keyword, interval,
            status, retry_count, created_at, updated_at
        ) VALUES (
            :id, :name, :url, :method, :keyword, :interval,
            :status, :retry_count, :created_at, :updated_at
        )`

	_, err := r.db.NamedExecContext(ctx, query, m)
	return err
}

func (r *Repository) GetMonitor(ctx context.Context, id string) (*Monitor, error) {
	var m Monitor
	err := r.db.GetContext(ctx, &m, `SELECT * FROM monitors WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repository) ListMonitors(ctx context.Context) ([]*Monitor, error) {
	monitors := []*Monitor{}
	err := r.db.SelectContext(ctx, &monitors, `SELECT * FROM monitors ORDER BY created_at`)
	return monitors, err
}

func (r *Repository) UpdateMonitorState(ctx context.Context, id string, status MonitorStatus, retryCount int, lastCheck time.Time) error {
	query := `
        UPDATE monitors SET
            status = $1,
            retry_count = $2,
            last_check = $3,
            updated_at = NOW()
        WHERE id = $4`

	return r.execOne(ctx, query, status, retryCount, lastCheck, id)
}

// UpdateMonitorMetadata stores the expiry dates. A nil value keeps whatever
// is already stored for that column.
func (r *Repository) UpdateMonitorMetadata(ctx context.Context, id string, certExpiry, domainExpiry *time.Time) error {
	query := `
        UPDATE monitors SET
            cert_expiry = COALESCE($1, cert_expiry),
            domain_expiry = COALESCE($2, domain_expiry),
            updated_at = NOW()
        WHERE id = $3`

	return r.execOne(ctx, query, certExpiry, domainExpiry, id)
}

func (r *Repository) UpdateLastInfoCheck(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE monitors SET last_info_check = $1, updated_at = NOW() WHERE id = $2`
	return r.execOne(ctx, query, at, id)
}

func (r *Repository) AppendLog(ctx context.Context, result *CheckResult) error {
	if result.ID == "" {
		result.ID = uuid.New().String()
	}

	query := `
        INSERT INTO check_logs (
            id, monitor_id, status_code, latency_ms, is_fail, reason, checked_at
        ) VALUES (
            :id, :monitor_id, :status_code, :latency_ms, :is_fail, :reason, :checked_at
        )`

	_, err := r.db.NamedExecContext(ctx, query, result)
	return err
}

func (r *Repository) GetCheckHistory(ctx context.Context, monitorID string, limit int) ([]*CheckResult, error) {
	results := []*CheckResult{}
	query := `
        SELECT * FROM check_logs
        WHERE monitor_id = $1
        ORDER BY checked_at DESC
        LIMIT $2`

	err := r.db.SelectContext(ctx, &results, query, monitorID, limit)
	return results, err
}

func (r *Repository) execOne(ctx context.Context, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %v", ErrNotFound, args[len(args)-1])
	}
	return nil
}
