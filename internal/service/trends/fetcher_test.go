package trends

import (
	"context"
	"errors"
	"log/slog"
	"os"
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

// fakeProvider scripts the provider responses per call.
type fakeProvider struct {
	relatedResults map[string]RelatedQueries
	relatedErrs    []error
	relatedCalls   int

	interestPoints []InterestPoint
	interestErr    error
	interestCalls  int

	trending    []string
	trendingErr error
}

func (p *fakeProvider) RelatedQueries(ctx context.Context, q Query) (map[string]RelatedQueries, error) {
	call := p.relatedCalls
	p.relatedCalls++
	if call < len(p.relatedErrs) && p.relatedErrs[call] != nil {
		return nil, p.relatedErrs[call]
	}
	return p.relatedResults, nil
}

func (p *fakeProvider) InterestOverTime(ctx context.Context, q Query) ([]InterestPoint, error) {
	p.interestCalls++
	if p.interestErr != nil {
		return nil, p.interestErr
	}
	return p.interestPoints, nil
}

func (p *fakeProvider) TrendingSearches(ctx context.Context, region string) ([]string, error) {
	if p.trendingErr != nil {
		return nil, p.trendingErr
	}
	return p.trending, nil
}

// fakeCache is an in-memory ResponseCache honoring max age.
type fakeCache struct {
	entries map[string]fakeCacheEntry
	puts    int
}

type fakeCacheEntry struct {
	storedAt time.Time
	records  []trend.Record
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]fakeCacheEntry)}
}

func (c *fakeCache) Get(key string, maxAge time.Duration) ([]trend.Record, bool) {
	entry, ok := c.entries[key]
	if !ok || time.Since(entry.storedAt) > maxAge {
		return nil, false
	}
	return entry.records, true
}

func (c *fakeCache) Put(key string, records []trend.Record) {
	c.puts++
	c.entries[key] = fakeCacheEntry{storedAt: time.Now(), records: records}
}

// fakeGate scripts the throttle.
type fakeGate struct {
	allow    bool
	recorded int
}

func (g *fakeGate) CanRequest() bool { return g.allow }
func (g *fakeGate) RecordRequest()   { g.recorded++ }

// fakeDiscoverer returns a fixed keyword list.
type fakeDiscoverer struct {
	keywords []string
}

func (d *fakeDiscoverer) Discover(ctx context.Context, seeds []string, perSeedLimit, totalLimit int) []string {
	return d.keywords
}

type fetcherFixture struct {
	provider *fakeProvider
	cache    *fakeCache
	gate     *fakeGate
	sleeps   []time.Duration
	fetcher  *Fetcher
}

func newFixture(provider *fakeProvider, keywords []string) *fetcherFixture {
	f := &fetcherFixture{
		provider: provider,
		cache:    newFakeCache(),
		gate:     &fakeGate{allow: true},
	}

	cfg := DefaultFetcherConfig()
	cfg.DomainTerms = []string{"exam", "result", "jee", "study"}
	cfg.Sleep = func(d time.Duration) { f.sleeps = append(f.sleeps, d) }

	f.fetcher = NewFetcher(provider, f.cache, f.gate, &fakeDiscoverer{keywords: keywords}, cfg, testLogger())
	return f
}

func TestFetchTrends_BreakoutSentinel(t *testing.T) {
	provider := &fakeProvider{
		relatedResults: map[string]RelatedQueries{
			"education": {
				Rising: []RelatedRow{{Query: "exam result", Value: "Breakout"}},
			},
		},
	}
	f := newFixture(provider, []string{"education"})

	records := f.fetcher.FetchTrends(context.Background(), "IN", "now 1-d", true, time.Hour)

	require.Len(t, records, 1)
	assert.Equal(t, "exam result", records[0].Keyword)
	assert.Equal(t, float64(100), records[0].Score)
	assert.Equal(t, trend.TypeRising, records[0].Type)
	assert.Equal(t, trend.SourceGoogleTrends, records[0].Source)
	assert.False(t, records[0].ObservedAt.IsZero())
}

func TestFetchTrends_DedupeAndSort(t *testing.T) {
	provider := &fakeProvider{
		relatedResults: map[string]RelatedQueries{
			"education": {
				Rising: []RelatedRow{
					{Query: "JEE Main", Value: "80"},
					{Query: "neet", Value: "40"},
				},
				Top: []RelatedRow{
					{Query: "jee main ", Value: "99"}, // duplicate under fold+trim
					{Query: "upsc", Value: "80"},
				},
			},
		},
	}
	f := newFixture(provider, []string{"education"})

	records := f.fetcher.FetchTrends(context.Background(), "IN", "now 1-d", true, time.Hour)

	require.Len(t, records, 3)

	// Unique under case-insensitive trimmed comparison, first occurrence wins.
	seen := make(map[string]struct{})
	for _, r := range records {
		key := trend.DedupeKey(r.Keyword)
		_, dup := seen[key]
		assert.False(t, dup, "duplicate keyword %q", r.Keyword)
		seen[key] = struct{}{}
	}

	// Sorted by score descending, ties in discovery order.
	assert.Equal(t, "JEE Main", records[0].Keyword)
	assert.Equal(t, "upsc", records[1].Keyword)
	assert.Equal(t, "neet", records[2].Keyword)
	assert.Equal(t, trend.TypeRising, records[0].Type)
	assert.Equal(t, trend.TypeTop, records[1].Type)
}

func TestFetchTrends_CacheHitSkipsProvider(t *testing.T) {
	provider := &fakeProvider{}
	f := newFixture(provider, []string{"education"})

	cached := []trend.Record{{Keyword: "cached", Score: 5}}
	f.cache.Put("google_trends_IN_now 1-d", cached)

	records := f.fetcher.FetchTrends(context.Background(), "IN", "now 1-d", true, time.Hour)

	assert.Equal(t, cached, records)
	assert.Zero(t, provider.relatedCalls)
	assert.Zero(t, f.gate.recorded)
}

func TestFetchTrends_ThrottleDenied(t *testing.T) {
	t.Run("should degrade to relaxed cache", func(t *testing.T) {
		provider := &fakeProvider{}
		f := newFixture(provider, []string{"education"})
		f.gate.allow = false

		stale := []trend.Record{{Keyword: "stale", Score: 1}}
		f.cache.entries["google_trends_IN_now 1-d"] = fakeCacheEntry{
			storedAt: time.Now().Add(-3 * time.Hour),
			records:  stale,
		}

		records := f.fetcher.FetchTrends(context.Background(), "IN", "now 1-d", true, time.Hour)

		assert.Equal(t, stale, records)
		assert.Zero(t, provider.relatedCalls)
	})

	t.Run("should return empty without cache", func(t *testing.T) {
		provider := &fakeProvider{}
		f := newFixture(provider, []string{"education"})
		f.gate.allow = false

		records := f.fetcher.FetchTrends(context.Background(), "IN", "now 1-d", true, time.Hour)

		assert.Empty(t, records)
	})
}

func TestFetchTrends_RecordsRequestBeforeQuery(t *testing.T) {
	provider := &fakeProvider{
		relatedErrs: []error{errors.New("boom"), errors.New("boom"), errors.New("boom")},
		interestErr: errors.New("boom"),
	}
	f := newFixture(provider, []string{"education"})

	f.fetcher.FetchTrends(context.Background(), "IN", "now 1-d", true, time.Hour)

	// The throttle window is consumed even when every call fails.
	assert.Equal(t, 1, f.gate.recorded)
}

func TestFetchTrends_RateLimitBackoff(t *testing.T) {
	rateErr := errors.New("provider returned status 429")
	provider := &fakeProvider{
		relatedErrs: []error{rateErr, rateErr, rateErr},
		interestErr: rateErr,
	}
	f := newFixture(provider, []string{"education"})

	records := f.fetcher.FetchTrends(context.Background(), "IN", "now 1-d", true, time.Hour)

	// No cache at any age: the result is empty, never an error.
	assert.Empty(t, records)
	assert.Equal(t, 3, provider.relatedCalls)
	assert.Equal(t, []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second}, f.sleeps)
}

func TestFetchTrends_RateLimitUsesRelaxedCache(t *testing.T) {
	rateErr := errors.New("provider returned status 429")
	provider := &fakeProvider{
		relatedErrs: []error{rateErr, rateErr, rateErr},
	}
	f := newFixture(provider, []string{"education"})

	stale := []trend.Record{{Keyword: "stale", Score: 1}}
	f.cache.entries["google_trends_IN_now 1-d"] = fakeCacheEntry{
		storedAt: time.Now().Add(-3 * time.Hour),
		records:  stale,
	}

	records := f.fetcher.FetchTrends(context.Background(), "IN", "now 1-d", true, time.Hour)

	assert.Equal(t, stale, records)
	assert.Zero(t, provider.interestCalls)
}

func TestFetchTrends_OtherErrorsRetryWithJitter(t *testing.T) {
	provider := &fakeProvider{
		relatedErrs: []error{errors.New("connection reset"), nil},
		relatedResults: map[string]RelatedQueries{
			"education": {Top: []RelatedRow{{Query: "upsc", Value: "10"}}},
		},
	}
	f := newFixture(provider, []string{"education"})

	records := f.fetcher.FetchTrends(context.Background(), "IN", "now 1-d", true, time.Hour)

	require.Len(t, records, 1)
	assert.Equal(t, 2, provider.relatedCalls)
	require.Len(t, f.sleeps, 1)
	assert.GreaterOrEqual(t, f.sleeps[0], 5*time.Second)
	assert.LessOrEqual(t, f.sleeps[0], 10*time.Second)
}

func TestFetchTrends_EmptyPrimaryTriggersFallback(t *testing.T) {
	t.Run("fallback with positive values", func(t *testing.T) {
		provider := &fakeProvider{
			relatedResults: map[string]RelatedQueries{},
			interestPoints: []InterestPoint{
				{Time: time.Now().Add(-time.Hour), Values: map[string]float64{"education": 90}},
				{Time: time.Now(), Values: map[string]float64{"education": 30, "exam": 70}},
			},
		}
		f := newFixture(provider, []string{"education", "exam"})

		records := f.fetcher.FetchTrends(context.Background(), "IN", "now 1-d", true, time.Hour)

		// Only the most recent time slice counts.
		require.Len(t, records, 2)
		assert.Equal(t, "exam", records[0].Keyword)
		assert.Equal(t, float64(70), records[0].Score)
		assert.Equal(t, trend.TypeInterest, records[0].Type)
		assert.Equal(t, trend.SourceGoogleTrendsFallback, records[0].Source)
		assert.Equal(t, "education", records[1].Keyword)
	})

	t.Run("fallback with all zero values is empty", func(t *testing.T) {
		provider := &fakeProvider{
			relatedResults: map[string]RelatedQueries{},
			interestPoints: []InterestPoint{
				{Time: time.Now(), Values: map[string]float64{"education": 0}},
			},
		}
		f := newFixture(provider, []string{"education"})

		records := f.fetcher.FetchTrends(context.Background(), "IN", "now 1-d", true, time.Hour)

		assert.Empty(t, records)
		assert.Equal(t, 1, provider.interestCalls)
	})

	t.Run("fallback with no data is empty and uncached", func(t *testing.T) {
		provider := &fakeProvider{relatedResults: map[string]RelatedQueries{}}
		f := newFixture(provider, []string{"education"})

		records := f.fetcher.FetchTrends(context.Background(), "IN", "now 1-d", true, time.Hour)

		assert.Empty(t, records)
		assert.Zero(t, f.cache.puts)
	})
}

func TestFetchTrends_DedupeCanEmptyResultsIntoFallback(t *testing.T) {
	// Rows that all fail score parsing leave zero accumulated records, which
	// still triggers the fallback.
	provider := &fakeProvider{
		relatedResults: map[string]RelatedQueries{
			"education": {Rising: []RelatedRow{{Query: "exam", Value: "+150%"}}},
		},
		interestPoints: []InterestPoint{
			{Time: time.Now(), Values: map[string]float64{"education": 12}},
		},
	}
	f := newFixture(provider, []string{"education"})

	records := f.fetcher.FetchTrends(context.Background(), "IN", "now 1-d", true, time.Hour)

	require.Len(t, records, 1)
	assert.Equal(t, trend.TypeInterest, records[0].Type)
}

func TestFetchTrends_WritesThroughToCache(t *testing.T) {
	provider := &fakeProvider{
		relatedResults: map[string]RelatedQueries{
			"education": {Top: []RelatedRow{{Query: "upsc", Value: "10"}}},
		},
	}
	f := newFixture(provider, []string{"education"})

	first := f.fetcher.FetchTrends(context.Background(), "IN", "now 1-d", true, time.Hour)
	require.Len(t, first, 1)
	assert.Equal(t, 1, f.cache.puts)

	// Second call is served from cache.
	second := f.fetcher.FetchTrends(context.Background(), "IN", "now 1-d", true, time.Hour)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, provider.relatedCalls)
}

func TestTrendingTopics(t *testing.T) {
	t.Run("should filter to domain terms and score by rank", func(t *testing.T) {
		provider := &fakeProvider{
			trending: []string{"iPhone 16 launch", "JEE Main result 2025", "Cricket score"},
		}
		f := newFixture(provider, nil)

		records := f.fetcher.TrendingTopics(context.Background(), "IN")

		require.Len(t, records, 1)
		assert.Equal(t, "JEE Main result 2025", records[0].Keyword)
		assert.Equal(t, float64(100), records[0].Score)
		assert.Equal(t, trend.TypeTrending, records[0].Type)
		assert.Equal(t, trend.SourceGoogleTrending, records[0].Source)
	})

	t.Run("should score later matches lower", func(t *testing.T) {
		provider := &fakeProvider{
			trending: []string{"exam dates", "weather", "study plan", "jee advanced"},
		}
		f := newFixture(provider, nil)

		records := f.fetcher.TrendingTopics(context.Background(), "IN")

		require.Len(t, records, 3)
		assert.Equal(t, float64(100), records[0].Score)
		assert.Equal(t, float64(99), records[1].Score)
		assert.Equal(t, float64(98), records[2].Score)
	})

	t.Run("should serve from cache within max age", func(t *testing.T) {
		provider := &fakeProvider{trending: []string{"exam dates"}}
		f := newFixture(provider, nil)

		first := f.fetcher.TrendingTopics(context.Background(), "IN")
		require.Len(t, first, 1)

		provider.trendingErr = errors.New("should not be called")
		second := f.fetcher.TrendingTopics(context.Background(), "IN")
		assert.Equal(t, first, second)
	})

	t.Run("should return empty on provider failure", func(t *testing.T) {
		provider := &fakeProvider{trendingErr: errors.New("boom")}
		f := newFixture(provider, nil)

		records := f.fetcher.TrendingTopics(context.Background(), "IN")
		assert.Empty(t, records)
	})
}

func TestParseScore(t *testing.T) {
	score, ok := parseScore("Breakout")
	assert.True(t, ok)
	assert.Equal(t, float64(trend.BreakoutScore), score)

	score, ok = parseScore("85")
	assert.True(t, ok)
	assert.Equal(t, float64(85), score)

	_, ok = parseScore("+150%")
	assert.False(t, ok)
}

func TestIsRateLimited(t *testing.T) {
	assert.True(t, isRateLimited(errors.New("google trends returned status 429")))
	assert.True(t, isRateLimited(errors.New("Rate limit exceeded")))
	assert.False(t, isRateLimited(errors.New("connection refused")))
}
