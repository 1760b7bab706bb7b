// Package revert undoes a journaled batch by replaying its inverse entries.
// The outcome carries its own inverse, so a revert can itself be reverted.
package revert

import (
	"context"
	"fmt"

	"github.com/dvloznov/budgetctl/internal/domain"
	"github.com/dvloznov/budgetctl/internal/history"
	"github.com/dvloznov/budgetctl/internal/logger"
	"github.com/dvloznov/budgetctl/internal/mutation"
	"github.com/dvloznov/budgetctl/internal/patch"
)

// API is the call the engine makes directly; everything else goes through
// the mutation engine.
// This interface enables mocking in tests.
type API interface {
	CreateTransaction(ctx context.Context, budgetID string, tx domain.NewTransaction) (*domain.Transaction, error)
}

// Restoration maps a deleted transaction to the one recreated in its place.
type Restoration struct {
	OriginalID string `json:"original_id"`
	NewID      string `json:"new_id"`
}

// Outcome is the result of a revert. Applied and Inverse hold only the entries
// that were written, ready to be journaled as a new action.
type Outcome struct {
	Results  []mutation.Result `json:"results"`
	Applied  []patch.Entry     `json:"applied"`
	Inverse  []patch.Entry     `json:"inverse"`
	Restored []Restoration     `json:"restored"`
}

// Remaps returns the restorations as original → new ID.
func (o *Outcome) Remaps() map[string]string {
	out := make(map[string]string, len(o.Restored))
	for _, r := range o.Restored {
		out[r.OriginalID] = r.NewID
	}
	return out
}

// Engine reverts actions of one budget.
type Engine struct {
	mut      *mutation.Engine
	api      API
	budgetID string
}

// New creates a revert Engine.
func New(mut *mutation.Engine, api API, budgetID string) *Engine {
	return &Engine{mut: mut, api: api, budgetID: budgetID}
}

// Revert replays the inverse entries of action in order. All entries are
// validated before the first remote call.
//
// When an entry fails, the outcome of the entries replayed before it is
// returned together with the error. Its Results are a prefix of
// action.Inverse, so the caller knows which entries still need replaying.
func (e *Engine) Revert(ctx context.Context, action history.Action, opts mutation.Options) (*Outcome, error) {
	log := logger.FromContext(ctx).With().Str("action_id", action.ID).Logger()

	if err := check(action); err != nil {
		return nil, fmt.Errorf("Revert: %w", err)
	}

	out := &Outcome{
		Results:  make([]mutation.Result, 0, len(action.Inverse)),
		Applied:  []patch.Entry{},
		Inverse:  []patch.Entry{},
		Restored: []Restoration{},
	}

	for _, entry := range action.Inverse {
		var res mutation.Result
		var err error

		switch p := entry.Patch.(type) {
		case patch.RestoreMarker:
			res, err = e.restore(ctx, entry, p, opts)
		case patch.DeleteMarker:
			res, err = e.single(e.mut.DeleteMany(ctx, []string{entry.ID}, opts))
		case patch.FieldPatch:
			res, err = e.single(e.mut.ApplyPatch(ctx, []string{entry.ID}, p.Fields, opts))
			if err == nil && res.Status != mutation.StatusNoop {
				res.Inverse = nil
				if fwd, ok := patch.FindUpdate(action.Forward, entry.ID); ok {
					res.Inverse = &fwd
				}
			}
		default:
			err = fmt.Errorf("%w: entry %s has unsupported patch %T", patch.ErrStructural, entry.ID, entry.Patch)
		}
		if err != nil {
			log.Warn().
				Err(err).
				Str("transaction_id", entry.ID).
				Int("replayed", len(out.Results)).
				Msg("Revert stopped early")
			return out, fmt.Errorf("Revert: %w", err)
		}

		out.Results = append(out.Results, res)
		if res.Status != mutation.StatusUpdated {
			continue
		}
		if res.Applied != nil {
			out.Applied = append(out.Applied, *res.Applied)
		}
		if res.Inverse != nil {
			out.Inverse = append(out.Inverse, *res.Inverse)
		}
		if res.RestoredID != "" {
			out.Restored = append(out.Restored, Restoration{OriginalID: entry.ID, NewID: res.RestoredID})
		}
	}

	log.Info().
		Int("entries", len(action.Inverse)).
		Int("applied", len(out.Applied)).
		Int("restored", len(out.Restored)).
		Bool("dry_run", opts.DryRun).
		Msg("Revert finished")
	return out, nil
}

func (e *Engine) single(results []mutation.Result, err error) (mutation.Result, error) {
	if err != nil {
		return mutation.Result{}, err
	}
	if len(results) != 1 {
		return mutation.Result{}, fmt.Errorf("expected one result, got %d", len(results))
	}
	return results[0], nil
}

func (e *Engine) restore(ctx context.Context, entry patch.Entry, p patch.RestoreMarker, opts mutation.Options) (mutation.Result, error) {
	log := logger.FromContext(ctx)
	applied := entry

	if opts.DryRun {
		log.Info().Str("transaction_id", entry.ID).Msg("[DRY RUN] Would restore transaction")
		return mutation.Result{ID: entry.ID, Status: mutation.StatusDryRun, Applied: &applied}, nil
	}

	created, err := e.api.CreateTransaction(ctx, e.budgetID, p.Snapshot.CreationRequest())
	if err != nil {
		return mutation.Result{}, fmt.Errorf("restoring %s: %w", entry.ID, err)
	}
	inverse := patch.Delete(created.ID)
	log.Info().
		Str("transaction_id", entry.ID).
		Str("new_transaction_id", created.ID).
		Msg("Restored transaction")
	return mutation.Result{
		ID:         entry.ID,
		Status:     mutation.StatusUpdated,
		Applied:    &applied,
		Inverse:    &inverse,
		RestoredID: created.ID,
	}, nil
}

// check validates the recorded entries and the restorability of every
// snapshot without touching the service.
func check(action history.Action) error {
	if err := patch.ValidateEntries(action.Inverse); err != nil {
		return fmt.Errorf("inverse %w", err)
	}
	if err := patch.ValidateEntries(action.Forward); err != nil {
		return fmt.Errorf("forward %w", err)
	}
	for _, entry := range action.Inverse {
		p, ok := entry.Patch.(patch.RestoreMarker)
		if !ok {
			continue
		}
		switch {
		case p.Snapshot.IsTransfer():
			return &mutation.PreconditionError{ID: entry.ID, Reason: "transfer transactions cannot be restored"}
		case p.Snapshot.IsSplit():
			return &mutation.PreconditionError{ID: entry.ID, Reason: "split transactions cannot be restored"}
		}
	}
	return nil
}
