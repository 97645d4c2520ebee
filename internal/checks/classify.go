package checks

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
)

const (
	ReasonTimeout      = "Timeout"
	ReasonNetworkError = "Network Error"
	sslReasonPrefix    = "SSL Error: "
)

// Matching is case-insensitive on the error text. Order matters: TLS
// failures are reported before timeouts, so a TLS handshake timeout is an
// SSL error.
var (
	sslVocabulary     = []string{"ssl", "tls", "x509", "certificate", "handshake"}
	timeoutVocabulary = []string{"timeout", "timed out", "deadline exceeded"}
)

// ClassifyError turns a transport error into the reason recorded for a
// failed probe.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}

	msg := errorMessage(err)
	lower := strings.ToLower(msg)

	if containsAny(lower, sslVocabulary) {
		return sslReasonPrefix + msg
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) ||
		containsAny(lower, timeoutVocabulary) {
		return ReasonTimeout
	}

	if strings.TrimSpace(msg) == "" {
		return ReasonNetworkError
	}
	return msg
}

// errorMessage drops the "Get \"https://...\":" prefix that net/http puts
// in front of transport errors.
func errorMessage(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err.Error()
	}
	return err.Error()
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
