// Package ynabtest provides in-memory implementations of ynab.Client for tests.
package ynabtest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/budgetctl/internal/domain"
	"github.com/dvloznov/budgetctl/internal/patch"
	"github.com/dvloznov/budgetctl/internal/ynab"
)

// Ledger is a fake budgeting service holding transactions in memory. It
// records every call by operation name.
type Ledger struct {
	mu           sync.Mutex
	transactions map[string]domain.Transaction
	calls        []string
	nextID       int

	// FailFunc, when set, is consulted before every operation; a non-nil
	// error is returned instead of performing it.
	FailFunc func(op, id string) error
}

// NewLedger creates a ledger seeded with the given transactions.
func NewLedger(txs ...domain.Transaction) *Ledger {
	l := &Ledger{transactions: make(map[string]domain.Transaction)}
	for _, tx := range txs {
		l.transactions[tx.ID] = tx.Clone()
	}
	return l
}

// Transaction returns the stored copy of a transaction.
func (l *Ledger) Transaction(id string) (domain.Transaction, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tx, ok := l.transactions[id]
	return tx.Clone(), ok
}

// Calls returns the operations performed so far, in order.
func (l *Ledger) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// CallCount returns how many times op was called.
func (l *Ledger) CallCount(op string) int {
	n := 0
	for _, c := range l.Calls() {
		if c == op {
			n++
		}
	}
	return n
}

// WriteCount returns the number of mutating calls.
func (l *Ledger) WriteCount() int {
	n := 0
	for _, c := range l.Calls() {
		switch c {
		case "CreateTransaction", "UpdateTransaction", "UpdateTransactions", "DeleteTransaction":
			n++
		}
	}
	return n
}

func (l *Ledger) enter(op, id string) error {
	l.mu.Lock()
	l.calls = append(l.calls, op)
	fail := l.FailFunc
	l.mu.Unlock()
	if fail != nil {
		return fail(op, id)
	}
	return nil
}

func (l *Ledger) ListBudgets(ctx context.Context) ([]domain.Budget, error) {
	if err := l.enter("ListBudgets", ""); err != nil {
		return nil, err
	}
	return []domain.Budget{{ID: "budget-1", Name: "Household"}}, nil
}

func (l *Ledger) ListAccounts(ctx context.Context, budgetID string) ([]domain.Account, error) {
	if err := l.enter("ListAccounts", ""); err != nil {
		return nil, err
	}
	return nil, nil
}

func (l *Ledger) ListCategories(ctx context.Context, budgetID string) ([]domain.Category, error) {
	if err := l.enter("ListCategories", ""); err != nil {
		return nil, err
	}
	return nil, nil
}

func (l *Ledger) ListPayees(ctx context.Context, budgetID string) ([]domain.Payee, error) {
	if err := l.enter("ListPayees", ""); err != nil {
		return nil, err
	}
	return nil, nil
}

func (l *Ledger) ListTransactions(ctx context.Context, budgetID string, filter ynab.TransactionFilter) ([]domain.Transaction, error) {
	if err := l.enter("ListTransactions", ""); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Transaction
	for _, tx := range l.transactions {
		if tx.Deleted {
			continue
		}
		if filter.AccountID != "" && tx.AccountID != filter.AccountID {
			continue
		}
		if filter.SinceDate.IsValid() && tx.Date.Before(filter.SinceDate) {
			continue
		}
		if filter.Type == "unapproved" && tx.Approved {
			continue
		}
		out = append(out, tx.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (l *Ledger) GetTransaction(ctx context.Context, budgetID, transactionID string) (*domain.Transaction, error) {
	if err := l.enter("GetTransaction", transactionID); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	tx, ok := l.transactions[transactionID]
	if !ok || tx.Deleted {
		return nil, fmt.Errorf("GetTransaction %s: %w", transactionID, ynab.ErrNotFound)
	}
	c := tx.Clone()
	return &c, nil
}

func (l *Ledger) CreateTransaction(ctx context.Context, budgetID string, req domain.NewTransaction) (*domain.Transaction, error) {
	if err := l.enter("CreateTransaction", ""); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	tx := domain.Transaction{
		ID:         fmt.Sprintf("created-%d", l.nextID),
		AccountID:  req.AccountID,
		Date:       req.Date,
		Amount:     req.Amount,
		PayeeID:    req.PayeeID,
		CategoryID: req.CategoryID,
		Memo:       req.Memo,
		Cleared:    req.Cleared,
		Approved:   req.Approved,
		FlagColor:  req.FlagColor,
		ImportID:   req.ImportID,
	}
	l.transactions[tx.ID] = tx.Clone()
	return &tx, nil
}

func (l *Ledger) UpdateTransaction(ctx context.Context, budgetID string, update ynab.TransactionUpdate) (*domain.Transaction, error) {
	if err := l.enter("UpdateTransaction", update.ID); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	tx, err := l.applyLocked(update)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (l *Ledger) UpdateTransactions(ctx context.Context, budgetID string, updates []ynab.TransactionUpdate) ([]domain.Transaction, error) {
	if err := l.enter("UpdateTransactions", ""); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Transaction, 0, len(updates))
	for _, u := range updates {
		tx, err := l.applyLocked(u)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

func (l *Ledger) applyLocked(u ynab.TransactionUpdate) (domain.Transaction, error) {
	tx, ok := l.transactions[u.ID]
	if !ok || tx.Deleted {
		return domain.Transaction{}, fmt.Errorf("update %s: %w", u.ID, ynab.ErrNotFound)
	}
	tx = patch.Apply(tx, u.Fields)
	l.transactions[u.ID] = tx
	return tx.Clone(), nil
}

func (l *Ledger) DeleteTransaction(ctx context.Context, budgetID, transactionID string) (*domain.Transaction, error) {
	if err := l.enter("DeleteTransaction", transactionID); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	tx, ok := l.transactions[transactionID]
	if !ok || tx.Deleted {
		return nil, fmt.Errorf("DeleteTransaction %s: %w", transactionID, ynab.ErrNotFound)
	}
	tx.Deleted = true
	l.transactions[transactionID] = tx
	c := tx.Clone()
	return &c, nil
}

// Ensure Ledger implements ynab.Client interface.
var _ ynab.Client = (*Ledger)(nil)
