package marketdata

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/raksha-rane/stratify/internal/apperrors"
	"github.com/raksha-rane/stratify/internal/cache"
	"github.com/raksha-rane/stratify/internal/database"
	"github.com/raksha-rane/stratify/internal/events"
	testutil "github.com/raksha-rane/stratify/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	bars  []Bar
	err   error
	calls int
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) FetchBars(ctx context.Context, ticker string, start, end time.Time) ([]Bar, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]Bar, len(f.bars))
	copy(out, f.bars)
	return out, nil
}

type serviceFixture struct {
	service *Service
	source  *fakeSource
	repo    *Repository
	events  []*events.Event
}

func newServiceFixture(t *testing.T, bars []Bar) *serviceFixture {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)

	marketDB, cleanupMarket := testutil.NewTestDB(t, database.NameMarket)
	t.Cleanup(cleanupMarket)
	cacheDB, cleanupCache := testutil.NewTestDB(t, database.NameCache)
	t.Cleanup(cleanupCache)

	f := &serviceFixture{
		source: &fakeSource{bars: bars},
		repo:   NewRepository(marketDB.Conn(), log),
	}

	manager := events.NewManager(events.NewBus(log), log)
	for _, et := range events.AllTypes {
		manager.Bus().Subscribe(et, func(e *events.Event) { f.events = append(f.events, e) })
	}

	f.service = NewService(f.repo, f.source, cache.NewStore(cacheDB.Conn(), log), manager, nil, ServiceConfig{}, log)
	f.service.now = func() time.Time { return time.Date(2024, 12, 31, 18, 0, 0, 0, time.UTC) }
	return f
}

func (f *serviceFixture) eventTypes() []events.EventType {
	types := make([]events.EventType, len(f.events))
	for i, e := range f.events {
		types[i] = e.Type
	}
	return types
}

func TestService_FetchStoreRetrievePreservesCount(t *testing.T) {
	bars := fixtureBars("", testutil.TrendCloses(120, 100, 0.001))
	f := newServiceFixture(t, bars)
	ctx := context.Background()

	result, err := f.service.Fetch(ctx, "aapl", "2024-01-01", "2024-12-31")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", result.Ticker)
	assert.Equal(t, 120, result.Records)
	assert.Len(t, result.Sample, SampleSize)
	assert.Equal(t, "AAPL", result.Sample[0].Ticker)
	assert.True(t, result.Quality.Valid)

	stored, err := f.service.Get(ctx, "AAPL", "2024-01-01", "2024-12-31")
	require.NoError(t, err)
	assert.Len(t, stored, result.Records)
	assert.Equal(t, bars[0].Date, stored[0].Date)

	assert.Contains(t, f.eventTypes(), events.MarketDataFetched)

	logs, err := f.service.QualityLogs("AAPL", 5)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestService_FetchDropsRowsWithMissingValues(t *testing.T) {
	bars := fixtureBars("", testutil.TrendCloses(120, 100, 0.001))
	bars[50].Open = math.NaN()
	bars[80].Close = math.Inf(1)
	f := newServiceFixture(t, bars)
	ctx := context.Background()

	result, err := f.service.Fetch(ctx, "AAPL", "2024-01-01", "2024-12-31")
	require.NoError(t, err)

	assert.True(t, result.Quality.Valid)
	assert.NotEmpty(t, result.Quality.Warnings)
	assert.Equal(t, 118, result.Records)
	assert.Equal(t, 2, result.Quality.Stats.DroppedRecords)

	stored, err := f.service.Get(ctx, "AAPL", "2024-01-01", "2024-12-31")
	require.NoError(t, err)
	assert.Len(t, stored, result.Records)
	for _, b := range stored {
		assert.NotEqual(t, bars[50].Date, b.Date)
		assert.NotEqual(t, bars[80].Date, b.Date)
	}
}

func TestService_FetchRejectsBadInputWithoutCallingSource(t *testing.T) {
	f := newServiceFixture(t, fixtureBars("", testutil.TrendCloses(10, 100, 0)))
	ctx := context.Background()

	_, err := f.service.Fetch(ctx, "BAD TICKER", "2024-01-01", "2024-02-01")
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	_, err = f.service.Fetch(ctx, "AAPL", "2024-03-01", "2024-02-01")
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	_, err = f.service.Fetch(ctx, "AAPL", "2024-01-01", "2025-06-01")
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	assert.Equal(t, 0, f.source.calls)
}

func TestService_FetchUpstreamFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("source error", func(t *testing.T) {
		f := newServiceFixture(t, nil)
		f.source.err = errors.New("connection reset")

		_, err := f.service.Fetch(ctx, "AAPL", "2024-01-01", "2024-02-01")
		require.Error(t, err)
		assert.Equal(t, 503, apperrors.Status(err))
	})

	t.Run("typed source error passes through", func(t *testing.T) {
		f := newServiceFixture(t, nil)
		f.source.err = apperrors.Unavailable("circuit open")

		_, err := f.service.Fetch(ctx, "AAPL", "2024-01-01", "2024-02-01")
		assert.True(t, apperrors.IsKind(err, apperrors.KindUnavailable))
	})

	t.Run("no rows", func(t *testing.T) {
		f := newServiceFixture(t, nil)

		_, err := f.service.Fetch(ctx, "AAPL", "2024-01-01", "2024-02-01")
		assert.True(t, apperrors.IsKind(err, apperrors.KindDataFetch))
	})
}

func TestService_FetchCriticalQualityIsRejectedButLogged(t *testing.T) {
	bars := fixtureBars("", testutil.TrendCloses(30, 100, 0.001))
	for i := 0; i < 5; i++ {
		bars[i].Close = math.NaN()
	}
	f := newServiceFixture(t, bars)

	_, err := f.service.Fetch(context.Background(), "AAPL", "2024-01-01", "2024-12-31")
	require.Error(t, err)
	assert.Equal(t, 400, apperrors.Status(err))
	assert.Contains(t, err.Error(), "Data quality validation failed")

	count, err := f.repo.Count("AAPL", "2024-01-01", "2024-12-31")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	logs, err := f.repo.RecentQualityLogs("AAPL", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Valid)
}

func TestService_FetchWarningsEmitEvent(t *testing.T) {
	bars := fixtureBars("", testutil.TrendCloses(30, 100, 0.001))
	for i := 0; i < 5; i++ {
		bars[i].Volume = 0
	}
	f := newServiceFixture(t, bars)

	result, err := f.service.Fetch(context.Background(), "AAPL", "2024-01-01", "2024-12-31")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Quality.Warnings)
	assert.Contains(t, f.eventTypes(), events.DataQualityWarning)
}

func TestService_GetNotFound(t *testing.T) {
	f := newServiceFixture(t, nil)

	_, err := f.service.Get(context.Background(), "AAPL", "2024-01-01", "2024-02-01")
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))

	_, err = f.service.Get(context.Background(), "AAPL", "January", "2024-02-01")
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestService_GetIsCachedAndFetchInvalidates(t *testing.T) {
	bars := fixtureBars("", testutil.TrendCloses(20, 100, 0.001))
	f := newServiceFixture(t, bars)
	ctx := context.Background()

	_, err := f.service.Fetch(ctx, "AAPL", "2024-01-01", "2024-12-31")
	require.NoError(t, err)

	first, err := f.service.Get(ctx, "AAPL", "2024-01-01", "2024-12-31")
	require.NoError(t, err)
	require.Len(t, first, 20)

	// Rows removed behind the cache's back are still served from cache
	require.NoError(t, f.repo.ReplaceRange("AAPL", "2024-01-01", "2024-12-31", bars[:5]))
	cached, err := f.service.Get(ctx, "AAPL", "2024-01-01", "2024-12-31")
	require.NoError(t, err)
	assert.Len(t, cached, 20)

	// A new fetch drops the stale entry
	f.source.bars = bars[:12]
	_, err = f.service.Fetch(ctx, "AAPL", "2024-01-01", "2024-12-31")
	require.NoError(t, err)

	fresh, err := f.service.Get(ctx, "AAPL", "2024-01-01", "2024-12-31")
	require.NoError(t, err)
	assert.Len(t, fresh, 12)
}
