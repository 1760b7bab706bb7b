// Package resilient wraps one raw API client per credential and rotates
// between them when the service rate-limits or rejects a credential.
package resilient

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dvloznov/budgetctl/internal/domain"
	"github.com/dvloznov/budgetctl/internal/logger"
	"github.com/dvloznov/budgetctl/internal/ynab"
)

// ErrCredentialsExhausted is returned when every credential was disabled or
// rate-limited during a call.
var ErrCredentialsExhausted = errors.New("all credentials are rate-limited or disabled; add more API tokens to the configuration")

// Factory builds the raw client for one credential.
type Factory func(token string) ynab.Client

// Observer is notified of every attempt with the credential index used and the
// error it produced, nil on success.
type Observer func(op string, index int, err error)

// Client implements ynab.Client over a credential pool.
type Client struct {
	pool     *CredentialPool
	factory  Factory
	observer Observer

	mu      sync.Mutex
	clients map[int]ynab.Client
}

// Option configures a Client.
type Option func(*Client)

// WithObserver installs an attempt observer.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// New creates a resilient client. Raw clients are built lazily by factory the
// first time their credential is selected.
func New(pool *CredentialPool, factory Factory, opts ...Option) *Client {
	c := &Client{
		pool:    pool,
		factory: factory,
		clients: make(map[int]ynab.Client),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) clientFor(i int) ynab.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	rc, ok := c.clients[i]
	if !ok {
		rc = c.factory(c.pool.Token(i))
		c.clients[i] = rc
	}
	return rc
}

// call runs fn against each active credential in preference order, at most
// once per credential, until one succeeds or fails with an error that is
// neither an authorization nor a rate-limit failure.
func call[T any](ctx context.Context, c *Client, op string, fn func(ynab.Client) (T, error)) (T, error) {
	log := logger.FromContext(ctx)
	var zero T
	var lastErr error

	for i := 0; i < c.pool.Len(); i++ {
		if c.pool.Status(i) != StatusActive {
			continue
		}
		res, err := fn(c.clientFor(i))
		if c.observer != nil {
			c.observer(op, i, err)
		}
		switch {
		case err == nil:
			return res, nil
		case errors.Is(err, ynab.ErrUnauthorized):
			c.pool.Disable(i)
			log.Warn().Str("op", op).Int("credential", i).Msg("Credential rejected, disabling it")
			lastErr = err
		case errors.Is(err, ynab.ErrRateLimited):
			log.Info().Str("op", op).Int("credential", i).Msg("Credential rate-limited, rotating")
			lastErr = err
		default:
			return zero, err
		}
	}

	if lastErr != nil {
		return zero, fmt.Errorf("%s: %w (last error: %v)", op, ErrCredentialsExhausted, lastErr)
	}
	return zero, fmt.Errorf("%s: %w", op, ErrCredentialsExhausted)
}

// ListBudgets implements ynab.Client.
func (c *Client) ListBudgets(ctx context.Context) ([]domain.Budget, error) {
	return call(ctx, c, "ListBudgets", func(rc ynab.Client) ([]domain.Budget, error) {
		return rc.ListBudgets(ctx)
	})
}

// ListAccounts implements ynab.Client.
func (c *Client) ListAccounts(ctx context.Context, budgetID string) ([]domain.Account, error) {
	return call(ctx, c, "ListAccounts", func(rc ynab.Client) ([]domain.Account, error) {
		return rc.ListAccounts(ctx, budgetID)
	})
}

// ListCategories implements ynab.Client.
func (c *Client) ListCategories(ctx context.Context, budgetID string) ([]domain.Category, error) {
	return call(ctx, c, "ListCategories", func(rc ynab.Client) ([]domain.Category, error) {
		return rc.ListCategories(ctx, budgetID)
	})
}

// ListPayees implements ynab.Client.
func (c *Client) ListPayees(ctx context.Context, budgetID string) ([]domain.Payee, error) {
	return call(ctx, c, "ListPayees", func(rc ynab.Client) ([]domain.Payee, error) {
		return rc.ListPayees(ctx, budgetID)
	})
}

// ListTransactions implements ynab.Client.
func (c *Client) ListTransactions(ctx context.Context, budgetID string, filter ynab.TransactionFilter) ([]domain.Transaction, error) {
	return call(ctx, c, "ListTransactions", func(rc ynab.Client) ([]domain.Transaction, error) {
		return rc.ListTransactions(ctx, budgetID, filter)
	})
}

// GetTransaction implements ynab.Client.
func (c *Client) GetTransaction(ctx context.Context, budgetID, transactionID string) (*domain.Transaction, error) {
	return call(ctx, c, "GetTransaction", func(rc ynab.Client) (*domain.Transaction, error) {
		return rc.GetTransaction(ctx, budgetID, transactionID)
	})
}

// CreateTransaction implements ynab.Client.
func (c *Client) CreateTransaction(ctx context.Context, budgetID string, tx domain.NewTransaction) (*domain.Transaction, error) {
	return call(ctx, c, "CreateTransaction", func(rc ynab.Client) (*domain.Transaction, error) {
		return rc.CreateTransaction(ctx, budgetID, tx)
	})
}

// UpdateTransaction implements ynab.Client.
func (c *Client) UpdateTransaction(ctx context.Context, budgetID string, update ynab.TransactionUpdate) (*domain.Transaction, error) {
	return call(ctx, c, "UpdateTransaction", func(rc ynab.Client) (*domain.Transaction, error) {
		return rc.UpdateTransaction(ctx, budgetID, update)
	})
}

// UpdateTransactions implements ynab.Client.
func (c *Client) UpdateTransactions(ctx context.Context, budgetID string, updates []ynab.TransactionUpdate) ([]domain.Transaction, error) {
	return call(ctx, c, "UpdateTransactions", func(rc ynab.Client) ([]domain.Transaction, error) {
		return rc.UpdateTransactions(ctx, budgetID, updates)
	})
}

// DeleteTransaction implements ynab.Client.
func (c *Client) DeleteTransaction(ctx context.Context, budgetID, transactionID string) (*domain.Transaction, error) {
	return call(ctx, c, "DeleteTransaction", func(rc ynab.Client) (*domain.Transaction, error) {
		return rc.DeleteTransaction(ctx, budgetID, transactionID)
	})
}

// Ensure Client implements ynab.Client interface.
var _ ynab.Client = (*Client)(nil)
