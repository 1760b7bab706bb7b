package ynab

import (
	"net/http"
	"time"

	"github.com/dvloznov/budgetctl/internal/logger"
)

// LoggingTransport logs every API round trip at debug level through the
// logger carried by the request context. Credentials are never logged.
type LoggingTransport struct {
	Base http.RoundTripper
}

// NewLoggingTransport wraps base, or http.DefaultTransport when base is nil.
func NewLoggingTransport(base http.RoundTripper) *LoggingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &LoggingTransport{Base: base}
}

// RoundTrip implements http.RoundTripper.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	log := logger.FromContext(req.Context())
	start := time.Now()

	resp, err := t.Base.RoundTrip(req)
	if err != nil {
		log.Debug().
			Err(err).
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("API request failed")
		return nil, err
	}

	event := log.Debug()
	if resp.StatusCode >= http.StatusBadRequest {
		event = log.Warn()
	}
	event.
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("API request")
	return resp, nil
}
