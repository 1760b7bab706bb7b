package ynab

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/budgetctl/internal/domain"
	"github.com/dvloznov/budgetctl/internal/patch"
)

// Client defines the operations of the budgeting service for one credential.
// This interface enables credential rotation and mocking in tests.
type Client interface {
	// ListBudgets returns the budgets visible to the credential.
	ListBudgets(ctx context.Context) ([]domain.Budget, error)

	// ListAccounts returns the accounts of a budget.
	ListAccounts(ctx context.Context, budgetID string) ([]domain.Account, error)

	// ListCategories returns the categories of a budget.
	ListCategories(ctx context.Context, budgetID string) ([]domain.Category, error)

	// ListPayees returns the payees of a budget.
	ListPayees(ctx context.Context, budgetID string) ([]domain.Payee, error)

	// ListTransactions returns the transactions of a budget matching the filter.
	ListTransactions(ctx context.Context, budgetID string, filter TransactionFilter) ([]domain.Transaction, error)

	// GetTransaction fetches a single transaction.
	GetTransaction(ctx context.Context, budgetID, transactionID string) (*domain.Transaction, error)

	// CreateTransaction creates a transaction and returns it with its new ID.
	CreateTransaction(ctx context.Context, budgetID string, tx domain.NewTransaction) (*domain.Transaction, error)

	// UpdateTransaction applies a partial update to one transaction.
	UpdateTransaction(ctx context.Context, budgetID string, update TransactionUpdate) (*domain.Transaction, error)

	// UpdateTransactions applies partial updates to several transactions in one request.
	UpdateTransactions(ctx context.Context, budgetID string, updates []TransactionUpdate) ([]domain.Transaction, error)

	// DeleteTransaction deletes a transaction and returns its final state.
	DeleteTransaction(ctx context.Context, budgetID, transactionID string) (*domain.Transaction, error)
}

// TransactionFilter narrows ListTransactions.
type TransactionFilter struct {
	// SinceDate excludes transactions dated before it when valid.
	SinceDate civil.Date

	// AccountID restricts the listing to one account when set.
	AccountID string

	// Type is "uncategorized" or "unapproved" when set.
	Type string
}

// TransactionUpdate is a partial update addressed to one transaction.
type TransactionUpdate struct {
	ID     string
	Fields patch.Fields
}
