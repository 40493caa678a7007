package aggregator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendagg/internal/domain/trend"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// fakeStore records saved batches.
type fakeStore struct {
	mu      sync.Mutex
	batches [][]trend.Record
	err     error
}

func (s *fakeStore) SaveTrends(ctx context.Context, records []trend.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, records)
	return nil
}

func TestRunCycle_PersistsEachSource(t *testing.T) {
	store := &fakeStore{}
	sources := []Source{
		{Name: "google_trends", Fetch: func(ctx context.Context) []trend.Record {
			return []trend.Record{{Keyword: "exam", Score: 90, Source: trend.SourceGoogleTrends}}
		}},
		{Name: "reddit", Fetch: func(ctx context.Context) []trend.Record {
			return []trend.Record{
				{Keyword: "post a", Score: 12, Source: trend.SourceReddit},
				{Keyword: "post b", Score: 7, Source: trend.SourceReddit},
			}
		}},
	}

	agg := New(sources, store, nil, Config{Interval: time.Hour}, testLogger())
	agg.runCycle(context.Background())

	require.Len(t, store.batches, 2)
	assert.Len(t, store.batches[0], 1)
	assert.Len(t, store.batches[1], 2)
}

func TestRunCycle_EmptySourceNotPersisted(t *testing.T) {
	store := &fakeStore{}
	sources := []Source{
		{Name: "google_trends", Fetch: func(ctx context.Context) []trend.Record { return nil }},
	}

	agg := New(sources, store, nil, Config{Interval: time.Hour}, testLogger())
	agg.runCycle(context.Background())

	assert.Empty(t, store.batches)
}

func TestRunCycle_StoreFailureDoesNotPanic(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	sources := []Source{
		{Name: "google_trends", Fetch: func(ctx context.Context) []trend.Record {
			return []trend.Record{{Keyword: "exam", Score: 90}}
		}},
	}

	agg := New(sources, store, nil, Config{Interval: time.Hour}, testLogger())
	agg.runCycle(context.Background())
}

func TestRunCycle_SkipsWhileInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	store := &fakeStore{}
	sources := []Source{
		{Name: "slow", Fetch: func(ctx context.Context) []trend.Record {
			close(started)
			<-release
			return []trend.Record{{Keyword: "late", Score: 1}}
		}},
	}

	agg := New(sources, store, nil, Config{Interval: time.Hour}, testLogger())

	go agg.runCycle(context.Background())
	<-started

	// An overlapping cycle is skipped while the first is in flight.
	agg.runCycle(context.Background())
	store.mu.Lock()
	assert.Empty(t, store.batches)
	store.mu.Unlock()

	close(release)
	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.batches) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestStartAndStop(t *testing.T) {
	store := &fakeStore{}
	sources := []Source{
		{Name: "fast", Fetch: func(ctx context.Context) []trend.Record {
			return []trend.Record{{Keyword: "k", Score: 1}}
		}},
	}

	agg := New(sources, store, nil, Config{Interval: 10 * time.Millisecond}, testLogger())

	require.NoError(t, agg.Start(context.Background()))

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.batches) >= 2
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, agg.Stop(ctx))
}
