package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxCTBodyBytes = 32 << 20

// CertRecord is one certificate returned by the certificate-transparency
// search.
type CertRecord struct {
	CommonName string
	NotAfter   time.Time
}

type ctEntry struct {
	CommonName string `json:"common_name"`
	NotAfter   string `json:"not_after"`
}

// CTClient queries a crt.sh compatible certificate-transparency search.
type CTClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewCTClient(baseURL string, timeout time.Duration, limiter *rate.Limiter, logger *zap.Logger) *CTClient {
	return &CTClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		logger:  logger.With(zap.String("component", "ct")),
	}
}

// Query returns the certificates matching query, which may use the "%."
// wildcard prefix. Transport errors, non-2xx responses and malformed bodies
// all yield no records.
func (c *CTClient) Query(ctx context.Context, query string) []CertRecord {
	if err := c.limiter.Wait(ctx); err != nil {
		c.logger.Debug("CT lookup not attempted", zap.String("query", query), zap.Error(err))
		return nil
	}

	endpoint, err := c.queryURL(query)
	if err != nil {
		c.logger.Warn("Invalid CT endpoint", zap.String("base_url", c.baseURL), zap.Error(err))
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "UptimeSentinel/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("CT lookup failed", zap.String("query", query), zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("CT lookup returned non-2xx",
			zap.String("query", query),
			zap.Int("status", resp.StatusCode),
		)
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCTBodyBytes))
	if err != nil {
		c.logger.Debug("CT body read failed", zap.String("query", query), zap.Error(err))
		return nil
	}

	records, err := parseCTEntries(body)
	if err != nil {
		c.logger.Debug("CT response was not valid JSON", zap.String("query", query), zap.Error(err))
		return nil
	}
	return records
}

func (c *CTClient) queryURL(query string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("base url %q is not absolute", c.baseURL)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("output", "json")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func parseCTEntries(body []byte) ([]CertRecord, error) {
	var entries []ctEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, err
	}

	records := make([]CertRecord, 0, len(entries))
	for _, e := range entries {
		notAfter, ok := parseTimestamp(e.NotAfter)
		if !ok {
			continue
		}
		records = append(records, CertRecord{CommonName: e.CommonName, NotAfter: notAfter})
	}
	return records, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
