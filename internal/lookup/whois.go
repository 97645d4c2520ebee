package lookup

import (
	"context"
	"strings"
	"time"

	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// WhoisClient reads the registration expiry from WHOIS. It is an alternative
// to RDAPClient for registries without RDAP coverage.
type WhoisClient struct {
	client  *whois.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewWhoisClient(timeout time.Duration, limiter *rate.Limiter, logger *zap.Logger) *WhoisClient {
	return &WhoisClient{
		client:  whois.NewClient().SetTimeout(timeout),
		limiter: limiter,
		logger:  logger.With(zap.String("component", "whois")),
	}
}

func (w *WhoisClient) ExpiryDate(ctx context.Context, host string) *time.Time {
	if err := w.limiter.Wait(ctx); err != nil {
		return nil
	}

	raw, err := w.client.Whois(host)
	if err != nil {
		w.logger.Debug("WHOIS lookup failed", zap.String("host", host), zap.Error(err))
		return nil
	}
	return parseWhoisExpiry(raw)
}

func parseWhoisExpiry(raw string) *time.Time {
	info, err := whoisparser.Parse(raw)
	if err != nil || info.Domain == nil {
		return nil
	}
	if t := info.Domain.ExpirationDateInTime; t != nil {
		v := t.UTC()
		return &v
	}
	return parseWhoisDate(info.Domain.ExpirationDate)
}

var whoisDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02-Jan-2006",
	"2006.01.02 15:04:05",
	"2006/01/02",
}

func parseWhoisDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range whoisDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
