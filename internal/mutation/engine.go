// Package mutation applies field patches and deletes to ledger transactions.
// Every call fetches the current records, skips patches that would not change
// anything, and returns the inverse of each change so it can be undone later.
package mutation

import (
	"context"
	"fmt"

	"github.com/dvloznov/budgetctl/internal/domain"
	"github.com/dvloznov/budgetctl/internal/logger"
	"github.com/dvloznov/budgetctl/internal/patch"
	"github.com/dvloznov/budgetctl/internal/ynab"
)

// API is the part of ynab.Client the engine needs.
// This interface enables mocking in tests.
type API interface {
	GetTransaction(ctx context.Context, budgetID, transactionID string) (*domain.Transaction, error)
	UpdateTransaction(ctx context.Context, budgetID string, update ynab.TransactionUpdate) (*domain.Transaction, error)
	UpdateTransactions(ctx context.Context, budgetID string, updates []ynab.TransactionUpdate) ([]domain.Transaction, error)
	DeleteTransaction(ctx context.Context, budgetID, transactionID string) (*domain.Transaction, error)
}

// Status is the outcome of a mutation for one transaction.
type Status string

const (
	StatusUpdated Status = "updated"
	StatusNoop    Status = "noop"
	StatusDryRun  Status = "dry-run"
)

// Result reports what happened to one requested transaction. Applied and
// Inverse are nil for no-ops.
type Result struct {
	ID         string       `json:"id"`
	Status     Status       `json:"status"`
	Applied    *patch.Entry `json:"applied,omitempty"`
	Inverse    *patch.Entry `json:"inverse,omitempty"`
	RestoredID string       `json:"restored_id,omitempty"`
}

// Options controls a mutation call.
type Options struct {
	DryRun bool
}

// Builder derives the patch for a transaction from its current state.
type Builder func(tx domain.Transaction) (patch.Fields, error)

// Engine applies mutations to one budget.
type Engine struct {
	api      API
	budgetID string
}

// New creates an Engine for budgetID.
func New(api API, budgetID string) *Engine {
	return &Engine{api: api, budgetID: budgetID}
}

// BudgetID returns the budget the engine writes to.
func (e *Engine) BudgetID() string {
	return e.budgetID
}

// ApplyPatch applies the same fields to every transaction in ids.
func (e *Engine) ApplyPatch(ctx context.Context, ids []string, fields patch.Fields, opts Options) ([]Result, error) {
	return e.MutateMany(ctx, ids, func(domain.Transaction) (patch.Fields, error) {
		return fields, nil
	}, opts)
}

// MutateMany builds a patch for each transaction from its current state and
// applies the non-empty ones. Results follow the order of ids.
//
// Writes are staged until every transaction has passed its checks, so a
// precondition failure leaves the ledger untouched. One staged update is sent
// on its own; several are sent in a single bulk call.
func (e *Engine) MutateMany(ctx context.Context, ids []string, build Builder, opts Options) ([]Result, error) {
	log := logger.FromContext(ctx)

	results := make([]Result, len(ids))
	var staged []ynab.TransactionUpdate
	var stagedAt []int

	for i, id := range ids {
		tx, err := e.api.GetTransaction(ctx, e.budgetID, id)
		if err != nil {
			return nil, fmt.Errorf("MutateMany: fetching %s: %w", id, err)
		}

		fields, err := build(tx.Clone())
		if err != nil {
			return nil, fmt.Errorf("MutateMany: building patch for %s: %w", id, err)
		}
		if err := fields.Validate(); err != nil {
			return nil, fmt.Errorf("MutateMany: patch for %s: %w", id, err)
		}

		diff := patch.Diff(tx, fields)
		if diff.IsEmpty() {
			log.Debug().Str("transaction_id", id).Msg("Patch matches current values, skipping")
			results[i] = Result{ID: id, Status: StatusNoop}
			continue
		}

		if diff.MovesAccount(tx) && tx.IsTransfer() {
			return nil, &PreconditionError{ID: id, Reason: "transfer transactions cannot be moved to another account"}
		}

		applied := patch.Update(id, diff)
		inverse := patch.Update(id, patch.Inverse(tx, diff))
		results[i] = Result{ID: id, Status: StatusDryRun, Applied: &applied, Inverse: &inverse}

		if opts.DryRun {
			log.Info().
				Str("transaction_id", id).
				Strs("fields", diff.Names()).
				Msg("[DRY RUN] Would update transaction")
			continue
		}
		staged = append(staged, ynab.TransactionUpdate{ID: id, Fields: diff})
		stagedAt = append(stagedAt, i)
	}

	if err := e.flush(ctx, staged); err != nil {
		return nil, fmt.Errorf("MutateMany: %w", err)
	}
	for _, i := range stagedAt {
		results[i].Status = StatusUpdated
	}

	log.Info().
		Int("requested", len(ids)).
		Int("updated", len(staged)).
		Bool("dry_run", opts.DryRun).
		Msg("Mutation finished")
	return results, nil
}

func (e *Engine) flush(ctx context.Context, staged []ynab.TransactionUpdate) error {
	switch len(staged) {
	case 0:
		return nil
	case 1:
		if _, err := e.api.UpdateTransaction(ctx, e.budgetID, staged[0]); err != nil {
			return fmt.Errorf("updating %s: %w", staged[0].ID, err)
		}
	default:
		if _, err := e.api.UpdateTransactions(ctx, e.budgetID, staged); err != nil {
			return fmt.Errorf("updating %d transactions: %w", len(staged), err)
		}
	}
	return nil
}

// DeleteMany deletes every transaction in ids. The inverse of each delete is a
// restore marker carrying the fetched snapshot. Transfers are rejected before
// anything is deleted.
//
// Deletes are sent one at a time. When one fails, the results of the deletes
// that already went through are returned along with the error so the caller
// can still record their inverses.
func (e *Engine) DeleteMany(ctx context.Context, ids []string, opts Options) ([]Result, error) {
	log := logger.FromContext(ctx)

	snapshots := make([]*domain.Transaction, len(ids))
	for i, id := range ids {
		tx, err := e.api.GetTransaction(ctx, e.budgetID, id)
		if err != nil {
			return nil, fmt.Errorf("DeleteMany: fetching %s: %w", id, err)
		}
		if tx.IsTransfer() {
			return nil, &PreconditionError{ID: id, Reason: "transfer transactions cannot be deleted"}
		}
		snapshots[i] = tx
	}

	results := make([]Result, len(ids))
	for i, tx := range snapshots {
		applied := patch.Delete(tx.ID)
		inverse := patch.Restore(*tx)
		results[i] = Result{ID: tx.ID, Status: StatusDryRun, Applied: &applied, Inverse: &inverse}

		if opts.DryRun {
			log.Info().Str("transaction_id", tx.ID).Msg("[DRY RUN] Would delete transaction")
			continue
		}
		if _, err := e.api.DeleteTransaction(ctx, e.budgetID, tx.ID); err != nil {
			return results[:i], fmt.Errorf("DeleteMany: deleting %s: %w", tx.ID, err)
		}
		results[i].Status = StatusUpdated
		log.Info().Str("transaction_id", tx.ID).Msg("Deleted transaction")
	}
	return results, nil
}
