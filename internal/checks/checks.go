package checks

import (
	"context"

	"github.com/leozw/uptime-sentinel/internal/db"
)

// Runner performs one probe against a monitor. Implementations never return
// an error: every failure is folded into the result.
type Runner interface {
	Check(ctx context.Context, monitor *db.Monitor) *db.CheckResult
}
