package checks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/leozw/uptime-sentinel/internal/db"
)

// Upper bound on the body scanned for a keyword.
const maxBodyBytes = 5 << 20

type HTTPChecker struct {
	client *http.Client
}

func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	// Every probe opens a fresh connection to the origin.
	transport.DisableKeepAlives = true

	return &HTTPChecker{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
	}
}

func (h *HTTPChecker) Check(ctx context.Context, monitor *db.Monitor) *db.CheckResult {
	start := time.Now()
	result := &db.CheckResult{
		MonitorID: monitor.ID,
		CheckedAt: start,
	}

	method := strings.ToUpper(strings.TrimSpace(monitor.Method))
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, monitor.URL, nil)
	if err != nil {
		return fail(result, start, ClassifyError(err))
	}

	req.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("User-Agent", "UptimeSentinel/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return fail(result, start, ClassifyError(err))
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(result, start, fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	if monitor.Keyword != "" {
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return fail(result, start, ClassifyError(err))
		}
		if !strings.Contains(string(body), monitor.Keyword) {
			return fail(result, start, fmt.Sprintf("Keyword %q not found", monitor.Keyword))
		}
	}

	result.LatencyMs = time.Since(start).Milliseconds()
	return result
}

func fail(result *db.CheckResult, start time.Time, reason string) *db.CheckResult {
	result.IsFail = true
	result.Reason = reason
	result.LatencyMs = time.Since(start).Milliseconds()
	return result
}
