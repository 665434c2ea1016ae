package credential

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore keeps entries in memory and records save calls.
type memStore struct {
	entries []Entry
	saves   int
}

func (s *memStore) Load() ([]Entry, error) {
	return s.entries, nil
}

func (s *memStore) Save(entries []Entry) error {
	s.entries = append([]Entry(nil), entries...)
	s.saves++

	return nil
}

func newTestPool(t *testing.T, payloads int) (*Pool, *memStore, []string) {
	t.Helper()

	store := &memStore{}

	pool, err := NewPool("deepseek", store, PoolOptions{})
	require.NoError(t, err)

	ids := make([]string, 0, payloads)

	for i := 0; i < payloads; i++ {
		id, err := pool.Add(map[string]string{"token": "secret"})
		require.NoError(t, err)

		ids = append(ids, id)
	}

	return pool, store, ids
}

func TestPool_NextRoundRobinVisitsAllInOrder(t *testing.T) {
	pool, _, ids := newTestPool(t, 3)

	var seen []string

	for i := 0; i < 3; i++ {
		e := pool.Next()
		require.NotNil(t, e)

		seen = append(seen, e.ID)
	}

	assert.Equal(t, ids, seen, "each active entry visited once in insertion order")

	// Second pass wraps back to the first entry.
	e := pool.Next()
	require.NotNil(t, e)
	assert.Equal(t, ids[0], e.ID)
}

func TestPool_NextReturnsNilWhenNoActive(t *testing.T) {
	pool, _, ids := newTestPool(t, 2)

	require.NoError(t, pool.MarkExpired(ids[0]))
	require.NoError(t, pool.MarkExpired(ids[1]))

	assert.Equal(t, 0, pool.ActiveCount())
	assert.Nil(t, pool.Next())
}

func TestPool_ActiveCountNeverExceedsCount(t *testing.T) {
	pool, _, ids := newTestPool(t, 4)

	assert.LessOrEqual(t, pool.ActiveCount(), pool.Count())

	require.NoError(t, pool.MarkExpired(ids[1]))
	assert.LessOrEqual(t, pool.ActiveCount(), pool.Count())
	assert.Equal(t, 3, pool.ActiveCount())
	assert.Equal(t, 4, pool.Count())
}

func TestPool_MarkFailedDemotesAtThreshold(t *testing.T) {
	pool, _, ids := newTestPool(t, 1)

	cause := errors.New("upstream 401")

	for i := 0; i < DefaultFailLimit-1; i++ {
		require.NoError(t, pool.MarkFailed(ids[0], cause))
		assert.Equal(t, 1, pool.ActiveCount(), "entry stays active below the limit")
	}

	require.NoError(t, pool.MarkFailed(ids[0], cause))
	assert.Equal(t, 0, pool.ActiveCount(), "fifth failure demotes the entry")

	// Beyond the threshold the status no longer changes.
	require.NoError(t, pool.MarkFailed(ids[0], cause))

	summary := pool.Summary()
	require.Len(t, summary.Entries, 1)
	assert.Equal(t, StatusFailed, summary.Entries[0].Status)
	assert.Equal(t, DefaultFailLimit+1, summary.Entries[0].FailCount)
}

func TestPool_MarkSuccessRestoresFailedEntry(t *testing.T) {
	pool, _, ids := newTestPool(t, 1)

	for i := 0; i < DefaultFailLimit; i++ {
		require.NoError(t, pool.MarkFailed(ids[0], errors.New("boom")))
	}

	require.Equal(t, 0, pool.ActiveCount())

	require.NoError(t, pool.MarkSuccess(ids[0]))

	summary := pool.Summary()
	assert.Equal(t, StatusActive, summary.Entries[0].Status)
	assert.Equal(t, 0, summary.Entries[0].FailCount)
	assert.Empty(t, summary.Entries[0].LastError)
}

func TestPool_MarkSuccessDoesNotResurrectExpired(t *testing.T) {
	pool, _, ids := newTestPool(t, 1)

	require.NoError(t, pool.MarkExpired(ids[0]))
	require.NoError(t, pool.MarkSuccess(ids[0]))

	summary := pool.Summary()
	assert.Equal(t, StatusExpired, summary.Entries[0].Status)
}

func TestPool_NextSkipsInactiveEntries(t *testing.T) {
	pool, _, ids := newTestPool(t, 3)

	require.NoError(t, pool.MarkExpired(ids[1]))

	var seen []string

	for i := 0; i < 4; i++ {
		e := pool.Next()
		require.NotNil(t, e)

		seen = append(seen, e.ID)
	}

	assert.Equal(t, []string{ids[0], ids[2], ids[0], ids[2]}, seen)
}

func TestPool_RemoveAndReorder(t *testing.T) {
	pool, _, ids := newTestPool(t, 3)

	removed, err := pool.Remove(ids[1])
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, 2, pool.Count())

	removed, err = pool.Remove("nope")
	require.NoError(t, err)
	assert.False(t, removed)

	// Reorder mentioning only one id keeps the other appended.
	require.NoError(t, pool.Reorder([]string{ids[2]}))

	summary := pool.Summary()
	require.Len(t, summary.Entries, 2)
	assert.Equal(t, ids[2], summary.Entries[0].ID)
	assert.Equal(t, ids[0], summary.Entries[1].ID)
}

func TestPool_SummaryRedactsPayload(t *testing.T) {
	pool, _, _ := newTestPool(t, 1)

	summary := pool.Summary()
	assert.Equal(t, "deepseek", summary.Provider)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Active)

	// EntrySummary carries no payload field at all; spot-check the shape.
	require.Len(t, summary.Entries, 1)
	assert.NotEmpty(t, summary.Entries[0].ID)
}

func TestPool_EveryMutationPersists(t *testing.T) {
	pool, store, ids := newTestPool(t, 1)

	before := store.saves

	require.NoError(t, pool.MarkFailed(ids[0], errors.New("x")))
	require.NoError(t, pool.MarkSuccess(ids[0]))
	require.NoError(t, pool.SetStrategy(StrategyRandom))

	assert.Equal(t, before+3, store.saves)
	assert.Equal(t, StrategyRandom, pool.Strategy())
}

func TestPool_NextExcludingAlwaysDistinctUnderRandom(t *testing.T) {
	pool, _, ids := newTestPool(t, 2)

	require.NoError(t, pool.SetStrategy(StrategyRandom))

	for i := 0; i < 50; i++ {
		e := pool.NextExcluding(ids[0])
		require.NotNil(t, e)
		assert.Equal(t, ids[1], e.ID)
	}
}

func TestPool_NextExcludingNilWhenNoOtherActive(t *testing.T) {
	pool, _, ids := newTestPool(t, 2)

	require.NoError(t, pool.MarkExpired(ids[1]))

	assert.Nil(t, pool.NextExcluding(ids[0]))

	// The excluded entry itself is still served by Next.
	e := pool.Next()
	require.NotNil(t, e)
	assert.Equal(t, ids[0], e.ID)
}

func TestPool_RandomStrategySelectsActiveEntry(t *testing.T) {
	pool, _, ids := newTestPool(t, 3)

	require.NoError(t, pool.SetStrategy(StrategyRandom))
	require.NoError(t, pool.MarkExpired(ids[0]))

	for i := 0; i < 20; i++ {
		e := pool.Next()
		require.NotNil(t, e)
		assert.NotEqual(t, ids[0], e.ID)
	}
}
