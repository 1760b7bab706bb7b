package refs

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/budgetctl/internal/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const window = 1000 * time.Millisecond

func at(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func newStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	db, err := badger.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, "budget-1", opts...)
}

// sequence hands out the given tokens in order, then fails the test.
func sequence(t *testing.T, tokens ...string) TokenSource {
	i := 0
	return func(length int) (string, error) {
		if i >= len(tokens) {
			t.Fatalf("token source exhausted at length %d", length)
		}
		tok := tokens[i]
		i++
		return tok, nil
	}
}

func TestLeaseIsStableInsideWindow(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	first, err := s.GetOrCreateRef(ctx, "tx-1", at(0), window)
	require.NoError(t, err)
	again, err := s.GetOrCreateRef(ctx, "tx-1", at(500), window)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Len(t, first, MinTokenLength)
	assert.NotEqual(t, "tx-1", first)
}

func TestLeaseIsReplacedAfterExpiry(t *testing.T) {
	s := newStore(t, WithTokenSource(sequence(t, "abc", "abc", "def")))
	ctx := context.Background()

	first, err := s.GetOrCreateRef(ctx, "tx-1", at(0), window)
	require.NoError(t, err)
	assert.Equal(t, "abc", first)

	// The generator offers the expired token again; it must be refused.
	second, err := s.GetOrCreateRef(ctx, "tx-1", at(1001), window)
	require.NoError(t, err)
	assert.Equal(t, "def", second)
}

func TestResolveRechecksExpiry(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	ref, err := s.GetOrCreateRef(ctx, "tx-1", at(0), window)
	require.NoError(t, err)

	target, err := s.ResolveRef(ctx, ref, at(500), window)
	require.NoError(t, err)
	assert.Equal(t, "tx-1", target)

	_, err = s.ResolveRef(ctx, ref, at(1001), window)
	assert.ErrorIs(t, err, ErrNotFound)

	// The same stored data is still active under a longer window.
	target, err = s.ResolveRef(ctx, strings.ToUpper(ref), at(1001), 2*window)
	require.NoError(t, err)
	assert.Equal(t, "tx-1", target)
}

func TestResolveUnknownRef(t *testing.T) {
	s := newStore(t)
	_, err := s.ResolveRef(context.Background(), "zzz", at(0), window)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExpiredTokenCanBeReclaimedByAnotherTarget(t *testing.T) {
	s := newStore(t, WithTokenSource(sequence(t, "abc", "abc", "xyz")))
	ctx := context.Background()

	ref, err := s.GetOrCreateRef(ctx, "tx-1", at(0), window)
	require.NoError(t, err)
	require.Equal(t, "abc", ref)

	// Still active: the candidate collides and the next one is used.
	other, err := s.GetOrCreateRef(ctx, "tx-2", at(10), window)
	require.NoError(t, err)
	assert.Equal(t, "xyz", other)

	s.tokens = sequence(t, "abc")
	reclaimed, err := s.GetOrCreateRef(ctx, "tx-3", at(2000), window)
	require.NoError(t, err)
	assert.Equal(t, "abc", reclaimed)

	target, err := s.ResolveRef(ctx, "abc", at(2000), window)
	require.NoError(t, err)
	assert.Equal(t, "tx-3", target)
}

func TestTargetNeverGetsAnOldTokenBack(t *testing.T) {
	s := newStore(t, WithTokenSource(sequence(t, "abc")))
	ctx := context.Background()

	ref, err := s.GetOrCreateRef(ctx, "tx-1", at(0), window)
	require.NoError(t, err)
	require.Equal(t, "abc", ref)

	// tx-1 moves on to a second token after expiry.
	s.tokens = sequence(t, "abc", "def")
	ref, err = s.GetOrCreateRef(ctx, "tx-1", at(2000), window)
	require.NoError(t, err)
	require.Equal(t, "def", ref)

	// tx-2 reclaims the expired first token.
	s.tokens = sequence(t, "abc")
	ref, err = s.GetOrCreateRef(ctx, "tx-2", at(2500), window)
	require.NoError(t, err)
	require.Equal(t, "abc", ref)

	// Once everything expired, tx-1 must not receive its first token again
	// even though the ref record now names tx-2.
	s.tokens = sequence(t, "abc", "def", "ghj")
	ref, err = s.GetOrCreateRef(ctx, "tx-1", at(10000), window)
	require.NoError(t, err)
	assert.Equal(t, "ghj", ref)
}

func TestTokenGrowthIsBounded(t *testing.T) {
	s := newStore(t, WithTokenSource(func(length int) (string, error) {
		return "abc", nil
	}))
	ctx := context.Background()

	_, err := s.GetOrCreateRef(ctx, "tx-1", at(0), window)
	require.NoError(t, err)
	_, err = s.GetOrCreateRef(ctx, "tx-2", at(0), window)
	assert.Error(t, err)
}

func TestLooksLikeRef(t *testing.T) {
	assert.True(t, LooksLikeRef("a1b"))
	assert.True(t, LooksLikeRef(" A1B "))
	assert.True(t, LooksLikeRef("0123456789ab"))
	assert.False(t, LooksLikeRef("ab"))
	assert.False(t, LooksLikeRef("0123456789abc"))
	assert.False(t, LooksLikeRef("oil"), "confusable letters are not in the alphabet")
	assert.False(t, LooksLikeRef("0b7c6f52-5a5e-4b8e-9a3f-8d1f2f0f6a01"))
	assert.False(t, LooksLikeRef("0b7c6f52-5a5e-4b8e-9a3f-8d1f2f0f6a01_2024-04-02"))
}

func TestTokensGrowAfterRepeatedCollisions(t *testing.T) {
	taken := make([]string, 0, collisionsBeforeGrowth+2)
	taken = append(taken, "aaa")
	for i := 0; i < collisionsBeforeGrowth; i++ {
		taken = append(taken, "aaa")
	}
	var lengths []int
	src := sequence(t, append(taken, "bbbb")...)
	s := newStore(t, WithTokenSource(func(length int) (string, error) {
		lengths = append(lengths, length)
		return src(length)
	}))
	ctx := context.Background()

	_, err := s.GetOrCreateRef(ctx, "tx-1", at(0), window)
	require.NoError(t, err)
	ref, err := s.GetOrCreateRef(ctx, "tx-2", at(0), window)
	require.NoError(t, err)
	assert.Equal(t, "bbbb", ref)
	assert.Equal(t, MinTokenLength+1, lengths[len(lengths)-1])
}

func TestBatchOf600(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	ids := make([]string, 600)
	for i := range ids {
		ids[i] = fmt.Sprintf("tx-%03d", i)
	}
	refs, err := s.GetOrCreateRefs(ctx, ids, at(0), window)
	require.NoError(t, err)
	require.Len(t, refs, 600)

	seen := make(map[string]bool)
	for _, id := range ids {
		ref := refs[id]
		require.NotEmpty(t, ref)
		assert.False(t, seen[ref], "duplicate ref %s", ref)
		seen[ref] = true
	}

	for _, id := range []string{ids[0], ids[599]} {
		target, err := s.ResolveRef(ctx, refs[id], at(1), window)
		require.NoError(t, err)
		assert.Equal(t, id, target)
	}
}

func TestBatchMatchesSingleLookups(t *testing.T) {
	s := newStore(t, WithChunkSize(2))
	ctx := context.Background()

	single, err := s.GetOrCreateRef(ctx, "tx-b", at(0), window)
	require.NoError(t, err)

	refs, err := s.GetOrCreateRefs(ctx, []string{"tx-a", "tx-b", "tx-c", "tx-a", "tx-d"}, at(100), window)
	require.NoError(t, err)
	assert.Len(t, refs, 4)
	assert.Equal(t, single, refs["tx-b"])
}

func TestLeasesSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := badger.Open(badger.DefaultConfig(dir))
	require.NoError(t, err)
	ref, err := New(db, "budget-1").GetOrCreateRef(ctx, "tx-1", at(0), window)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = badger.Open(badger.DefaultConfig(dir))
	require.NoError(t, err)
	defer db.Close()

	target, err := New(db, "budget-1").ResolveRef(ctx, ref, at(999), window)
	require.NoError(t, err)
	assert.Equal(t, "tx-1", target)

	_, err = New(db, "budget-2").ResolveRef(ctx, ref, at(999), window)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRandomTokenUsesAlphabet(t *testing.T) {
	tok, err := RandomToken(12)
	require.NoError(t, err)
	assert.Len(t, tok, 12)
	for _, r := range tok {
		assert.Contains(t, Alphabet, string(r))
	}
}
