package ynab

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dvloznov/budgetctl/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggingTransportLogsWithoutCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"id":"429","name":"too_many_requests","detail":"slow down"}}`)
	}))
	t.Cleanup(srv.Close)

	var buf bytes.Buffer
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(&buf))
	c := NewHTTPClient("secret-token", WithBaseURL(srv.URL), WithHTTPClient(&http.Client{
		Transport: NewLoggingTransport(srv.Client().Transport),
	}))

	_, err := c.ListBudgets(ctx)
	require.ErrorIs(t, err, ErrRateLimited)

	out := buf.String()
	assert.Contains(t, out, "API request")
	assert.Contains(t, out, "/budgets")
	assert.Contains(t, out, "429")
	assert.NotContains(t, out, "secret-token")
}
