package lookup

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxRDAPBodyBytes = 2 << 20

type rdapDomain struct {
	Events []rdapEvent `json:"events"`
}

type rdapEvent struct {
	EventAction string `json:"eventAction"`
	EventDate   string `json:"eventDate"`
}

// RDAPClient reads the registration expiry of a domain from an RDAP service.
type RDAPClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewRDAPClient(baseURL string, timeout time.Duration, limiter *rate.Limiter, logger *zap.Logger) *RDAPClient {
	return &RDAPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		logger:  logger.With(zap.String("component", "rdap")),
	}
}

// ExpiryDate returns the date of the "expiration" event, or nil.
func (c *RDAPClient) ExpiryDate(ctx context.Context, host string) *time.Time {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/domain/"+host, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("Accept", "application/rdap+json, application/json")
	req.Header.Set("User-Agent", "UptimeSentinel/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("RDAP lookup failed", zap.String("host", host), zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("RDAP lookup returned non-2xx",
			zap.String("host", host),
			zap.Int("status", resp.StatusCode),
		)
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRDAPBodyBytes))
	if err != nil {
		return nil
	}

	var domain rdapDomain
	if err := json.Unmarshal(body, &domain); err != nil {
		c.logger.Debug("RDAP response was not valid JSON", zap.String("host", host), zap.Error(err))
		return nil
	}

	for _, ev := range domain.Events {
		if !strings.EqualFold(ev.EventAction, "expiration") {
			continue
		}
		if t, ok := parseTimestamp(ev.EventDate); ok {
			return &t
		}
	}
	return nil
}
