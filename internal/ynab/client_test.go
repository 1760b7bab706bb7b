package ynab

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/budgetctl/internal/domain"
	"github.com/dvloznov/budgetctl/internal/patch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewHTTPClient("secret-token", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
}

func TestGetTransaction(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		assert.Equal(t, "/budgets/b1/transactions/tx-1", r.URL.Path)
		io.WriteString(w, `{"data":{"transaction":{"id":"tx-1","account_id":"acc-1","date":"2025-02-03","amount":-1500,"memo":null,"cleared":"cleared","approved":true,"flag_color":"red","transfer_account_id":null,"subtransactions":[]}}}`)
	})

	tx, err := c.GetTransaction(context.Background(), "b1", "tx-1")
	require.NoError(t, err)
	assert.Equal(t, "tx-1", tx.ID)
	assert.Equal(t, civil.Date{Year: 2025, Month: 2, Day: 3}, tx.Date)
	assert.Equal(t, domain.Milliunits(-1500), tx.Amount)
	assert.Nil(t, tx.Memo)
	assert.Equal(t, domain.FlagRed, *tx.FlagColor)
	assert.False(t, tx.IsTransfer())
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusNotFound, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, `{"error":{"id":"x","name":"failure","detail":"nope"}}`)
			})
			_, err := c.ListBudgets(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, "nope", apiErr.Detail)
		})
	}
}

func TestServerErrorIsNotRotatable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := c.ListPayees(context.Background(), "b1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrRateLimited))
	assert.False(t, errors.Is(err, ErrUnauthorized))
}

func TestUpdateTransactionsSendsFlattenedPatch(t *testing.T) {
	var got map[string][]map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `{"data":{"transactions":[{"id":"tx-1"},{"id":"tx-2"}]}}`)
	})

	updates := []TransactionUpdate{
		{ID: "tx-1", Fields: patch.Fields{Approved: patch.Set(true)}},
		{ID: "tx-2", Fields: patch.Fields{Memo: patch.Null[string]()}},
	}
	txs, err := c.UpdateTransactions(context.Background(), "b1", updates)
	require.NoError(t, err)
	assert.Len(t, txs, 2)

	require.Len(t, got["transactions"], 2)
	assert.Equal(t, map[string]any{"id": "tx-1", "approved": true}, got["transactions"][0])
	assert.Equal(t, map[string]any{"id": "tx-2", "memo": nil}, got["transactions"][1])
}

func TestListTransactionsQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/budgets/b1/accounts/acc-1/transactions", r.URL.Path)
		assert.Equal(t, "2025-01-01", r.URL.Query().Get("since_date"))
		assert.Equal(t, "unapproved", r.URL.Query().Get("type"))
		io.WriteString(w, `{"data":{"transactions":[{"id":"a"},{"id":"b"}]}}`)
	})
	txs, err := c.ListTransactions(context.Background(), "b1", TransactionFilter{
		SinceDate: civil.Date{Year: 2025, Month: 1, Day: 1},
		AccountID: "acc-1",
		Type:      "unapproved",
	})
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestListCategoriesFlattensGroups(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":{"category_groups":[{"categories":[{"id":"c1"}]},{"categories":[{"id":"c2"},{"id":"c3"}]}]}}`)
	})
	cats, err := c.ListCategories(context.Background(), "b1")
	require.NoError(t, err)
	assert.Len(t, cats, 3)
}
