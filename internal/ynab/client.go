// Package ynab is the raw HTTP client of the budgeting service. One client
// holds one credential; rotation across credentials lives in package resilient.
package ynab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dvloznov/budgetctl/internal/domain"
)

// DefaultBaseURL is the public API endpoint.
const DefaultBaseURL = "https://api.ynab.com/v1"

var (
	// ErrUnauthorized is returned when the service rejects the credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRateLimited is returned when the credential exceeded its request quota.
	ErrRateLimited = errors.New("rate limited")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("not found")
)

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	ID         string `json:"id"`
	Name       string `json:"name"`
	Detail     string `json:"detail"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Name, e.Detail)
	}
	return fmt.Sprintf("api error %d", e.StatusCode)
}

// Unwrap maps the status code onto the package sentinels so callers can use
// errors.Is without inspecting codes.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}

// HTTPClient is the concrete implementation of Client over the REST API.
type HTTPClient struct {
	token   string
	baseURL string
	http    *http.Client
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) Option {
	return func(c *HTTPClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *HTTPClient) { c.http = h }
}

// NewHTTPClient creates a client authenticating with the given personal access token.
func NewHTTPClient(token string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		token:   token,
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListBudgets implements Client.
func (c *HTTPClient) ListBudgets(ctx context.Context) ([]domain.Budget, error) {
	var out struct {
		Budgets []domain.Budget `json:"budgets"`
	}
	if err := c.do(ctx, http.MethodGet, "/budgets", nil, &out); err != nil {
		return nil, fmt.Errorf("ListBudgets: %w", err)
	}
	return out.Budgets, nil
}

// ListAccounts implements Client.
func (c *HTTPClient) ListAccounts(ctx context.Context, budgetID string) ([]domain.Account, error) {
	var out struct {
		Accounts []domain.Account `json:"accounts"`
	}
	if err := c.do(ctx, http.MethodGet, budgetPath(budgetID, "accounts"), nil, &out); err != nil {
		return nil, fmt.Errorf("ListAccounts: %w", err)
	}
	return out.Accounts, nil
}

// ListCategories implements Client. Category groups are flattened.
func (c *HTTPClient) ListCategories(ctx context.Context, budgetID string) ([]domain.Category, error) {
	var out struct {
		CategoryGroups []struct {
			Categories []domain.Category `json:"categories"`
		} `json:"category_groups"`
	}
	if err := c.do(ctx, http.MethodGet, budgetPath(budgetID, "categories"), nil, &out); err != nil {
		return nil, fmt.Errorf("ListCategories: %w", err)
	}
	var cats []domain.Category
	for _, g := range out.CategoryGroups {
		cats = append(cats, g.Categories...)
	}
	return cats, nil
}

// ListPayees implements Client.
func (c *HTTPClient) ListPayees(ctx context.Context, budgetID string) ([]domain.Payee, error) {
	var out struct {
		Payees []domain.Payee `json:"payees"`
	}
	if err := c.do(ctx, http.MethodGet, budgetPath(budgetID, "payees"), nil, &out); err != nil {
		return nil, fmt.Errorf("ListPayees: %w", err)
	}
	return out.Payees, nil
}

// ListTransactions implements Client.
func (c *HTTPClient) ListTransactions(ctx context.Context, budgetID string, filter TransactionFilter) ([]domain.Transaction, error) {
	p := budgetPath(budgetID, "transactions")
	if filter.AccountID != "" {
		p = budgetPath(budgetID, "accounts", filter.AccountID, "transactions")
	}
	q := url.Values{}
	if filter.SinceDate.IsValid() {
		q.Set("since_date", filter.SinceDate.String())
	}
	if filter.Type != "" {
		q.Set("type", filter.Type)
	}
	if len(q) > 0 {
		p += "?" + q.Encode()
	}

	var out struct {
		Transactions []domain.Transaction `json:"transactions"`
	}
	if err := c.do(ctx, http.MethodGet, p, nil, &out); err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}
	return out.Transactions, nil
}

// GetTransaction implements Client.
func (c *HTTPClient) GetTransaction(ctx context.Context, budgetID, transactionID string) (*domain.Transaction, error) {
	var out struct {
		Transaction domain.Transaction `json:"transaction"`
	}
	if err := c.do(ctx, http.MethodGet, budgetPath(budgetID, "transactions", transactionID), nil, &out); err != nil {
		return nil, fmt.Errorf("GetTransaction %s: %w", transactionID, err)
	}
	return &out.Transaction, nil
}

// CreateTransaction implements Client.
func (c *HTTPClient) CreateTransaction(ctx context.Context, budgetID string, tx domain.NewTransaction) (*domain.Transaction, error) {
	body := struct {
		Transaction domain.NewTransaction `json:"transaction"`
	}{tx}
	var out struct {
		Transaction domain.Transaction `json:"transaction"`
	}
	if err := c.do(ctx, http.MethodPost, budgetPath(budgetID, "transactions"), body, &out); err != nil {
		return nil, fmt.Errorf("CreateTransaction: %w", err)
	}
	return &out.Transaction, nil
}

// UpdateTransaction implements Client.
func (c *HTTPClient) UpdateTransaction(ctx context.Context, budgetID string, update TransactionUpdate) (*domain.Transaction, error) {
	body := struct {
		Transaction TransactionUpdate `json:"transaction"`
	}{update}
	var out struct {
		Transaction domain.Transaction `json:"transaction"`
	}
	if err := c.do(ctx, http.MethodPut, budgetPath(budgetID, "transactions", update.ID), body, &out); err != nil {
		return nil, fmt.Errorf("UpdateTransaction %s: %w", update.ID, err)
	}
	return &out.Transaction, nil
}

// UpdateTransactions implements Client.
func (c *HTTPClient) UpdateTransactions(ctx context.Context, budgetID string, updates []TransactionUpdate) ([]domain.Transaction, error) {
	body := struct {
		Transactions []TransactionUpdate `json:"transactions"`
	}{updates}
	var out struct {
		Transactions []domain.Transaction `json:"transactions"`
	}
	if err := c.do(ctx, http.MethodPatch, budgetPath(budgetID, "transactions"), body, &out); err != nil {
		return nil, fmt.Errorf("UpdateTransactions: %w", err)
	}
	return out.Transactions, nil
}

// DeleteTransaction implements Client.
func (c *HTTPClient) DeleteTransaction(ctx context.Context, budgetID, transactionID string) (*domain.Transaction, error) {
	var out struct {
		Transaction domain.Transaction `json:"transaction"`
	}
	if err := c.do(ctx, http.MethodDelete, budgetPath(budgetID, "transactions", transactionID), nil, &out); err != nil {
		return nil, fmt.Errorf("DeleteTransaction %s: %w", transactionID, err)
	}
	return &out.Transaction, nil
}

// MarshalJSON flattens the update into the object shape the service expects:
// the transaction ID next to the assigned fields.
func (u TransactionUpdate) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(u.Fields)
	if err != nil {
		return nil, err
	}
	m := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	id, err := json.Marshal(u.ID)
	if err != nil {
		return nil, err
	}
	m["id"] = id
	return json.Marshal(m)
}

func budgetPath(budgetID string, parts ...string) string {
	segs := []string{"budgets", url.PathEscape(budgetID)}
	for _, p := range parts {
		segs = append(segs, url.PathEscape(p))
	}
	return "/" + strings.Join(segs, "/")
}

// do sends a request and decodes the "data" envelope of the response into out.
func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error != nil {
			apiErr.ID = envelope.Error.ID
			apiErr.Name = envelope.Error.Name
			apiErr.Detail = envelope.Error.Detail
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

// Ensure HTTPClient implements Client interface.
var _ Client = (*HTTPClient)(nil)
