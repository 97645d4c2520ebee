package lookup

import (
	"context"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"
)

type CertSource interface {
	Query(ctx context.Context, query string) []CertRecord
}

type DomainSource interface {
	ExpiryDate(ctx context.Context, host string) *time.Time
}

// Expiry is the best-effort result of a resolution. Nil fields mean no data
// was found.
type Expiry struct {
	CertExpiry     *time.Time
	CertCommonName string
	DomainExpiry   *time.Time
}

func (e Expiry) Empty() bool {
	return e.CertExpiry == nil && e.DomainExpiry == nil
}

type Resolver struct {
	certs   CertSource
	domains DomainSource
	logger  *zap.Logger
}

func NewResolver(certs CertSource, domains DomainSource, logger *zap.Logger) *Resolver {
	return &Resolver{
		certs:   certs,
		domains: domains,
		logger:  logger.With(zap.String("component", "resolver")),
	}
}

// Resolve looks up the certificate and domain-registration expiry for host.
// It never fails; missing data is reported as nil fields.
func (r *Resolver) Resolve(ctx context.Context, host string) Expiry {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if host == "" || net.ParseIP(host) != nil {
		return Expiry{}
	}

	var (
		wg     sync.WaitGroup
		cert   *CertRecord
		domain *time.Time
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		cert = Latest(r.CertRecords(ctx, host))
	}()
	go func() {
		defer wg.Done()
		domain = r.domains.ExpiryDate(ctx, host)
	}()
	wg.Wait()

	var out Expiry
	if cert != nil {
		notAfter := cert.NotAfter
		out.CertExpiry = &notAfter
		out.CertCommonName = cert.CommonName
	}
	out.DomainExpiry = domain

	r.logger.Debug("Resolved expiry metadata",
		zap.String("host", host),
		zap.Bool("cert_found", out.CertExpiry != nil),
		zap.Bool("domain_found", out.DomainExpiry != nil),
	)
	return out
}

// CertRecords runs the certificate search. The exact host is queried first;
// when that yields nothing and host is a subdomain, the root domain and its
// wildcard are queried too and all records are combined.
func (r *Resolver) CertRecords(ctx context.Context, host string) []CertRecord {
	records := r.certs.Query(ctx, host)
	if len(records) > 0 {
		return records
	}

	root, ok := RootDomain(host)
	if !ok {
		return nil
	}

	records = append(records, r.certs.Query(ctx, root)...)
	records = append(records, r.certs.Query(ctx, "%."+root)...)
	return records
}

// Latest returns the record with the furthest NotAfter, or nil.
func Latest(records []CertRecord) *CertRecord {
	var best *CertRecord
	for i := range records {
		if best == nil || records[i].NotAfter.After(best.NotAfter) {
			best = &records[i]
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

// RootDomain returns the last two labels of host when host has more than
// two labels.
func RootDomain(host string) (string, bool) {
	labels := dns.SplitDomainName(host)
	if len(labels) <= 2 {
		return "", false
	}
	return strings.Join(labels[len(labels)-2:], "."), true
}

// HostFromURL extracts the hostname from a monitor URL.
func HostFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return u.Hostname()
}
