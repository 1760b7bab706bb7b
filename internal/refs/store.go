// Package refs leases short, typable reference tokens for opaque transaction
// IDs. Leases are persisted in badger so a token printed by one invocation
// can be typed into the next one while the lease window lasts.
package refs

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/dvloznov/budgetctl/internal/logger"
	"github.com/dvloznov/budgetctl/internal/storage/badger"
)

const (
	// DefaultChunkSize is the number of targets minted per badger transaction
	// by GetOrCreateRefs.
	DefaultChunkSize = 250

	// MinTokenLength is the length of the first tokens handed out.
	MinTokenLength = 3

	// MaxTokenLength bounds token growth. Anything longer is never a reference.
	MaxTokenLength = 12

	// collisionsBeforeGrowth is how many taken candidates are tolerated at one
	// length before the token grows by a character.
	collisionsBeforeGrowth = 8

	namespace = "refs"
)

// Alphabet is lowercase Crockford base-32: no i, l, o or u.
const Alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// ErrNotFound is returned when a reference is unknown or its lease has expired.
var ErrNotFound = errors.New("reference not found or expired; re-run the listing to get fresh references")

// Lease is the stored record behind a reference token.
type Lease struct {
	Ref             string `json:"ref"`
	TargetID        string `json:"target_id"`
	MintedAtMs      int64  `json:"minted_at_ms"`
	LeaseDurationMs int64  `json:"lease_duration_ms"`
}

// ActiveAt reports whether the lease is valid at now for the given duration.
// The stored duration is informational; validity always uses the caller's.
func (l Lease) ActiveAt(now time.Time, lease time.Duration) bool {
	return now.UnixMilli() < l.MintedAtMs+lease.Milliseconds()
}

// TokenSource returns a random token of the given length.
type TokenSource func(length int) (string, error)

// Store is a RefLeaseStore scoped to one budget.
type Store struct {
	db        *badger.DB
	scope     string
	chunkSize int
	tokens    TokenSource
}

// Option configures a Store.
type Option func(*Store)

// WithChunkSize overrides DefaultChunkSize. Values below 1 are ignored.
func WithChunkSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithTokenSource replaces the random token generator.
func WithTokenSource(src TokenSource) Option {
	return func(s *Store) { s.tokens = src }
}

// New creates a Store over db. scope isolates leases of different budgets.
func New(db *badger.DB, scope string, opts ...Option) *Store {
	s := &Store{
		db:        db,
		scope:     scope,
		chunkSize: DefaultChunkSize,
		tokens:    RandomToken,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RandomToken draws a token from Alphabet using crypto/rand.
func RandomToken(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("RandomToken: %w", err)
	}
	for i, b := range buf {
		buf[i] = Alphabet[int(b)%len(Alphabet)]
	}
	return string(buf), nil
}

// LooksLikeRef reports whether s could be a token minted by a Store. Values
// that cannot be are transaction IDs and need no lookup.
func LooksLikeRef(s string) bool {
	token := strings.ToLower(strings.TrimSpace(s))
	if len(token) < MinTokenLength || len(token) > MaxTokenLength {
		return false
	}
	for _, r := range token {
		if !strings.ContainsRune(Alphabet, r) {
			return false
		}
	}
	return true
}

func (s *Store) refKey(token string) []byte {
	return badger.Key(namespace, s.scope, "ref:"+token)
}

func (s *Store) targetKey(targetID string) []byte {
	return badger.Key(namespace, s.scope, "target:"+targetID)
}

func (s *Store) issuedKey(targetID, token string) []byte {
	return badger.Key(namespace, s.scope, "issued:"+targetID+":"+token)
}

// GetOrCreateRef returns the active reference for targetID, minting a new one
// when the target has none or its lease expired.
func (s *Store) GetOrCreateRef(ctx context.Context, targetID string, now time.Time, lease time.Duration) (string, error) {
	var ref string
	err := s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		var err error
		ref, err = s.getOrCreateTxn(txn, targetID, now, lease)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("GetOrCreateRef: %w", err)
	}
	return ref, nil
}

// GetOrCreateRefs leases references for every target. Targets are processed in
// chunks of the configured size, each chunk committed atomically.
func (s *Store) GetOrCreateRefs(ctx context.Context, targetIDs []string, now time.Time, lease time.Duration) (map[string]string, error) {
	log := logger.FromContext(ctx)
	out := make(map[string]string, len(targetIDs))

	unique := make([]string, 0, len(targetIDs))
	for _, id := range targetIDs {
		if _, seen := out[id]; seen {
			continue
		}
		out[id] = ""
		unique = append(unique, id)
	}

	for start := 0; start < len(unique); start += s.chunkSize {
		end := min(start+s.chunkSize, len(unique))
		chunk := unique[start:end]
		err := s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
			for _, id := range chunk {
				ref, err := s.getOrCreateTxn(txn, id, now, lease)
				if err != nil {
					return err
				}
				out[id] = ref
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("GetOrCreateRefs: chunk at %d: %w", start, err)
		}
		log.Debug().Int("chunk_start", start).Int("chunk_len", len(chunk)).Msg("Leased reference chunk")
	}
	return out, nil
}

// ResolveRef returns the target of an active reference. Expiry is checked
// against now and lease on every lookup.
func (s *Store) ResolveRef(ctx context.Context, ref string, now time.Time, lease time.Duration) (string, error) {
	token := strings.ToLower(strings.TrimSpace(ref))
	var target string
	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		l, found, err := s.readLease(txn, s.refKey(token))
		if err != nil {
			return err
		}
		if !found || !l.ActiveAt(now, lease) {
			return fmt.Errorf("%q: %w", ref, ErrNotFound)
		}
		target = l.TargetID
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ResolveRef: %w", err)
	}
	return target, nil
}

func (s *Store) getOrCreateTxn(txn *badgerdb.Txn, targetID string, now time.Time, lease time.Duration) (string, error) {
	current, found, err := s.readLease(txn, s.targetKey(targetID))
	if err != nil {
		return "", err
	}
	if found && current.ActiveAt(now, lease) {
		// The ref record may have been reclaimed by another target after expiry
		// under a shorter window; only trust it when it still points here.
		byRef, ok, err := s.readLease(txn, s.refKey(current.Ref))
		if err != nil {
			return "", err
		}
		if ok && byRef.TargetID == targetID {
			return current.Ref, nil
		}
	}

	token, err := s.mint(txn, targetID, now, lease)
	if err != nil {
		return "", err
	}
	l := Lease{
		Ref:             token,
		TargetID:        targetID,
		MintedAtMs:      now.UnixMilli(),
		LeaseDurationMs: lease.Milliseconds(),
	}
	data, err := json.Marshal(l)
	if err != nil {
		return "", fmt.Errorf("encode lease: %w", err)
	}
	if err := txn.Set(s.refKey(token), data); err != nil {
		return "", fmt.Errorf("store lease %s: %w", token, err)
	}
	if err := txn.Set(s.targetKey(targetID), data); err != nil {
		return "", fmt.Errorf("store target %s: %w", targetID, err)
	}
	if err := txn.Set(s.issuedKey(targetID, token), data); err != nil {
		return "", fmt.Errorf("store issued %s: %w", token, err)
	}
	return token, nil
}

// mint draws candidates until one is free. A candidate is taken when an active
// lease holds it, or when it was ever issued to the same target. Every token a
// target received is remembered under its own key, so a token reclaimed by
// another target in between never goes back to the first one.
func (s *Store) mint(txn *badgerdb.Txn, targetID string, now time.Time, lease time.Duration) (string, error) {
	length := MinTokenLength
	collisions := 0
	for length <= MaxTokenLength {
		candidate, err := s.tokens(length)
		if err != nil {
			return "", err
		}
		taken, err := s.taken(txn, targetID, candidate, now, lease)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		collisions++
		if collisions >= collisionsBeforeGrowth {
			length++
			collisions = 0
		}
	}
	return "", fmt.Errorf("no free token for %s up to length %d", targetID, MaxTokenLength)
}

func (s *Store) taken(txn *badgerdb.Txn, targetID, candidate string, now time.Time, lease time.Duration) (bool, error) {
	_, issued, err := badger.Get(txn, s.issuedKey(targetID, candidate))
	if err != nil || issued {
		return issued, err
	}
	l, found, err := s.readLease(txn, s.refKey(candidate))
	if err != nil {
		return false, err
	}
	return found && l.ActiveAt(now, lease), nil
}

func (s *Store) readLease(txn *badgerdb.Txn, key []byte) (Lease, bool, error) {
	data, found, err := badger.Get(txn, key)
	if err != nil || !found {
		return Lease{}, false, err
	}
	var l Lease
	if err := json.Unmarshal(data, &l); err != nil {
		return Lease{}, false, fmt.Errorf("decode lease %s: %w", key, err)
	}
	return l, true, nil
}
