package cache

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raksha-rane/stratify/internal/database"
	testutil "github.com/raksha-rane/stratify/internal/testing"
)

type cachedBars struct {
	Ticker string
	Closes []float64
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, cleanup := testutil.NewTestDB(t, database.NameCache)
	t.Cleanup(cleanup)
	return NewStore(db.Conn(), zerolog.New(nil).Level(zerolog.Disabled))
}

func TestStore_SetGet(t *testing.T) {
	s := newTestStore(t)

	value := cachedBars{Ticker: "AAPL", Closes: []float64{1.5, 2.5}}
	require.NoError(t, s.Set("market:AAPL", value, time.Hour))

	var got cachedBars
	found, err := s.Get("market:AAPL", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, value, got)

	found, err = s.Get("market:MSFT", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_Expiry(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set("short", cachedBars{Ticker: "A"}, time.Minute))
	require.NoError(t, s.Set("long", cachedBars{Ticker: "B"}, 2*time.Hour))

	s.now = func() time.Time { return now.Add(time.Hour) }

	var got cachedBars
	found, err := s.Get("short", &got)
	require.NoError(t, err)
	assert.False(t, found)

	deleted, err := s.DeleteExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_DeletePrefix(t *testing.T) {
	s := newTestStore(t)

	for _, key := range []string{Key("market", "AAPL", "2024"), Key("market", "AAPL", "2023"), Key("market", "AAPLX", "2024"), "market:A_PL:2024"} {
		require.NoError(t, s.Set(key, cachedBars{}, time.Hour))
	}

	deleted, err := s.DeletePrefix("market:AAPL:")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	// underscore is literal, not a wildcard
	deleted, err = s.DeletePrefix("market:A_")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	require.NoError(t, s.Delete(Key("market", "AAPLX", "2024")))
	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCleanupJob(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	s.now = func() time.Time { return now }
	require.NoError(t, s.Set("stale", cachedBars{}, time.Second))

	s.now = func() time.Time { return now.Add(time.Minute) }

	job := NewCleanupJob(s, zerolog.New(nil).Level(zerolog.Disabled))
	assert.Equal(t, "cache_cleanup", job.Name())
	require.NoError(t, job.Run())

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
