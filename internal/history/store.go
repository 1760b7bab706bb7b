// Package history journals every applied batch with its forward and inverse
// patches so a later invocation can undo it.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/dvloznov/budgetctl/internal/logger"
	"github.com/dvloznov/budgetctl/internal/patch"
	"github.com/dvloznov/budgetctl/internal/storage/badger"
	"github.com/google/uuid"
)

const (
	namespace    = "history"
	actionPrefix = "action:"
	remapPrefix  = "remap:"
	seqName      = "meta:seq"

	// maxRemapHops bounds ResolveID on a corrupted chain.
	maxRemapHops = 64
)

var (
	// ErrNotFound is returned for an unknown action ID.
	ErrNotFound = errors.New("history action not found")

	// ErrAlreadyReverted is returned when an action was undone before.
	ErrAlreadyReverted = errors.New("history action already reverted")
)

// Action is one journaled batch.
type Action struct {
	ID         string        `json:"id"`
	Seq        uint64        `json:"seq"`
	Command    string        `json:"command"`
	BudgetID   string        `json:"budget_id"`
	CreatedAt  time.Time     `json:"created_at"`
	Forward    []patch.Entry `json:"forward"`
	Inverse    []patch.Entry `json:"inverse"`
	RevertedBy string        `json:"reverted_by,omitempty"`
	RevertOf   string        `json:"revert_of,omitempty"`
}

// Reverted reports whether the action was undone.
func (a Action) Reverted() bool {
	return a.RevertedBy != ""
}

// RemapIDs returns a copy of a whose update and delete entries target
// resolve(id) instead of id. Restore entries keep the ID of their snapshot.
func (a Action) RemapIDs(resolve func(string) string) Action {
	out := a
	out.Forward = remapEntries(a.Forward, resolve)
	out.Inverse = remapEntries(a.Inverse, resolve)
	return out
}

func remapEntries(entries []patch.Entry, resolve func(string) string) []patch.Entry {
	if entries == nil {
		return nil
	}
	out := make([]patch.Entry, len(entries))
	for i, e := range entries {
		out[i] = e
		if _, ok := e.Patch.(patch.RestoreMarker); ok {
			continue
		}
		out[i].ID = resolve(e.ID)
	}
	return out
}

// Store persists actions of one budget in badger.
type Store struct {
	db    *badger.DB
	scope string
}

// New creates a Store for the budget named by scope.
func New(db *badger.DB, scope string) *Store {
	return &Store{db: db, scope: scope}
}

func (s *Store) actionKey(id string) []byte {
	return badger.Key(namespace, s.scope, actionPrefix+id)
}

func (s *Store) remapKey(id string) []byte {
	return badger.Key(namespace, s.scope, remapPrefix+id)
}

// Append stores a new action at the end of the journal. ID and CreatedAt are
// filled in when empty; Seq is always assigned.
func (s *Store) Append(ctx context.Context, a Action) (Action, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.BudgetID == "" {
		a.BudgetID = s.scope
	}

	err := s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		seq, err := s.nextSeq(txn)
		if err != nil {
			return err
		}
		a.Seq = seq
		return s.put(txn, a)
	})
	if err != nil {
		return Action{}, fmt.Errorf("Append: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Str("action_id", a.ID).
		Str("command", a.Command).
		Int("entries", len(a.Forward)).
		Msg("Journaled action")
	return a, nil
}

// Get loads an action by ID.
func (s *Store) Get(ctx context.Context, id string) (Action, error) {
	var a Action
	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		var err error
		a, err = s.get(txn, id)
		return err
	})
	if err != nil {
		return Action{}, fmt.Errorf("Get: %w", err)
	}
	return a, nil
}

// List returns every action in journal order.
func (s *Store) List(ctx context.Context) ([]Action, error) {
	var actions []Action
	prefix := badger.Key(namespace, s.scope, actionPrefix)
	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var a Action
			if err := json.Unmarshal(data, &a); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			actions = append(actions, a)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}

	sort.Slice(actions, func(i, j int) bool { return actions[i].Seq < actions[j].Seq })
	return actions, nil
}

// Latest returns the newest action that has not been reverted.
func (s *Store) Latest(ctx context.Context) (Action, error) {
	actions, err := s.List(ctx)
	if err != nil {
		return Action{}, fmt.Errorf("Latest: %w", err)
	}
	for i := len(actions) - 1; i >= 0; i-- {
		if !actions[i].Reverted() {
			return actions[i], nil
		}
	}
	return Action{}, fmt.Errorf("Latest: %w", ErrNotFound)
}

// MarkReverted records that revertedBy undid the action id.
func (s *Store) MarkReverted(ctx context.Context, id, revertedBy string) error {
	err := s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		a, err := s.get(txn, id)
		if err != nil {
			return err
		}
		if a.Reverted() {
			return fmt.Errorf("%s reverted by %s: %w", id, a.RevertedBy, ErrAlreadyReverted)
		}
		a.RevertedBy = revertedBy
		return s.put(txn, a)
	})
	if err != nil {
		return fmt.Errorf("MarkReverted: %w", err)
	}
	return nil
}

// DropReplayed removes the first n inverse entries of an action after a
// partial undo replayed them. The action stays unreverted so undoing it again
// replays only the remainder.
func (s *Store) DropReplayed(ctx context.Context, id string, n int) error {
	err := s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		a, err := s.get(txn, id)
		if err != nil {
			return err
		}
		if a.Reverted() {
			return fmt.Errorf("%s reverted by %s: %w", id, a.RevertedBy, ErrAlreadyReverted)
		}
		if n < 0 || n > len(a.Inverse) {
			return fmt.Errorf("%s has %d inverse entries, cannot drop %d", id, len(a.Inverse), n)
		}
		a.Inverse = a.Inverse[n:]
		return s.put(txn, a)
	})
	if err != nil {
		return fmt.Errorf("DropReplayed: %w", err)
	}
	return nil
}

// RecordRemaps stores original → new transaction IDs produced by restores.
func (s *Store) RecordRemaps(ctx context.Context, remaps map[string]string) error {
	if len(remaps) == 0 {
		return nil
	}
	err := s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		for from, to := range remaps {
			if err := txn.Set(s.remapKey(from), []byte(to)); err != nil {
				return fmt.Errorf("remap %s: %w", from, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("RecordRemaps: %w", err)
	}
	return nil
}

// ResolveID follows recorded remaps from id to the transaction's current ID.
func (s *Store) ResolveID(ctx context.Context, id string) (string, error) {
	current := id
	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		for hop := 0; hop < maxRemapHops; hop++ {
			next, found, err := badger.Get(txn, s.remapKey(current))
			if err != nil {
				return err
			}
			if !found {
				return nil
			}
			current = string(next)
		}
		return fmt.Errorf("remap chain from %s longer than %d", id, maxRemapHops)
	})
	if err != nil {
		return "", fmt.Errorf("ResolveID: %w", err)
	}
	return current, nil
}

// Resolver returns a function that maps IDs through ResolveID. IDs that fail
// to resolve are returned unchanged and the first error is kept in *errp.
func (s *Store) Resolver(ctx context.Context, errp *error) func(string) string {
	return func(id string) string {
		resolved, err := s.ResolveID(ctx, id)
		if err != nil {
			if *errp == nil {
				*errp = err
			}
			return id
		}
		return resolved
	}
}

func (s *Store) nextSeq(txn *badgerdb.Txn) (uint64, error) {
	key := badger.Key(namespace, s.scope, seqName)
	data, found, err := badger.Get(txn, key)
	if err != nil {
		return 0, err
	}
	var seq uint64
	if found {
		if seq, err = strconv.ParseUint(string(data), 10, 64); err != nil {
			return 0, fmt.Errorf("decode sequence: %w", err)
		}
	}
	seq++
	if err := txn.Set(key, []byte(strconv.FormatUint(seq, 10))); err != nil {
		return 0, err
	}
	return seq, nil
}

func (s *Store) get(txn *badgerdb.Txn, id string) (Action, error) {
	data, found, err := badger.Get(txn, s.actionKey(strings.TrimSpace(id)))
	if err != nil {
		return Action{}, err
	}
	if !found {
		return Action{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	var a Action
	if err := json.Unmarshal(data, &a); err != nil {
		return Action{}, fmt.Errorf("decode action %s: %w", id, err)
	}
	return a, nil
}

func (s *Store) put(txn *badgerdb.Txn, a Action) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode action %s: %w", a.ID, err)
	}
	return txn.Set(s.actionKey(a.ID), data)
}
