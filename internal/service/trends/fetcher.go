// internal/service/trends/fetcher.go

package trends

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"trendagg/internal/domain/trend"
)

// ResponseCache stores previous normalized result sets keyed by query
// identity with age-based expiry.
type ResponseCache interface {
	Get(key string, maxAge time.Duration) ([]trend.Record, bool)
	Put(key string, records []trend.Record)
}

// RequestGate enforces the minimum interval between primary provider
// requests.
type RequestGate interface {
	CanRequest() bool
	RecordRequest()
}

// KeywordDiscoverer builds the keyword list for a query.
type KeywordDiscoverer interface {
	Discover(ctx context.Context, seeds []string, perSeedLimit, totalLimit int) []string
}

// FetcherConfig tunes the retrieval strategy. Seed vocabulary and the
// domain-term filter are deployment configuration, not constants.
type FetcherConfig struct {
	Seeds              []string
	DomainTerms        []string
	SuggestionsPerSeed int
	MaxKeywords        int
	MaxAttempts        int
	RateLimitBackoff   time.Duration
	RelaxedCacheAge    time.Duration
	TrendingCacheAge   time.Duration

	// Sleep replaces real waiting in tests. Defaults to time.Sleep.
	Sleep func(time.Duration)
}

// DefaultFetcherConfig returns the strategy defaults.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		SuggestionsPerSeed: 2,
		MaxKeywords:        10,
		MaxAttempts:        3,
		RateLimitBackoff:   30 * time.Second,
		RelaxedCacheAge:    24 * time.Hour,
		TrendingCacheAge:   30 * time.Minute,
	}
}

// Fetcher orchestrates trend retrieval: cache lookup, throttle check,
// keyword discovery, the primary related-queries call with retry and
// backoff, the interest-over-time fallback, and normalization/ranking of
// the results. It never returns an error; the worst observable outcome is
// an empty list.
type Fetcher struct {
	provider   Provider
	cache      ResponseCache
	gate       RequestGate
	discoverer KeywordDiscoverer
	cfg        FetcherConfig
	logger     *slog.Logger
}

// NewFetcher creates a retrieval strategy.
func NewFetcher(
	provider Provider,
	cache ResponseCache,
	gate RequestGate,
	discoverer KeywordDiscoverer,
	cfg FetcherConfig,
	logger *slog.Logger,
) *Fetcher {
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}

	return &Fetcher{
		provider:   provider,
		cache:      cache,
		gate:       gate,
		discoverer: discoverer,
		cfg:        cfg,
		logger:     logger,
	}
}

// FetchTrends returns normalized, ranked trend records for a region and
// timeframe. With useCache, a fresh cache entry short-circuits the provider
// entirely. A denied throttle degrades to a relaxed cache read rather than
// blocking the caller.
func (f *Fetcher) FetchTrends(ctx context.Context, region, timeframe string, useCache bool, cacheMaxAge time.Duration) []trend.Record {
	key := fmt.Sprintf("google_trends_%s_%s", region, timeframe)

	if useCache {
		if records, ok := f.cache.Get(key, cacheMaxAge); ok {
			f.logger.Info("using cached trends", "key", key)
			return records
		}
	}

	if !f.gate.CanRequest() {
		f.logger.Warn("request throttled, degrading to relaxed cache", "key", key)
		if records, ok := f.cache.Get(key, f.cfg.RelaxedCacheAge); ok {
			return records
		}
		return nil
	}

	f.logger.Info("fetching fresh trends", "region", region, "timeframe", timeframe)

	keywords := f.discoverer.Discover(ctx, f.cfg.Seeds, f.cfg.SuggestionsPerSeed, f.cfg.MaxKeywords)
	query := Query{Keywords: keywords, Timeframe: timeframe, Region: region}

	// Record before issuing so a slow or failed call still consumes the
	// throttle window.
	f.gate.RecordRequest()

	data, err := f.relatedQueriesWithRetry(ctx, query)
	if err != nil {
		if isRateLimited(err) {
			if records, ok := f.cache.Get(key, f.cfg.RelaxedCacheAge); ok {
				f.logger.Info("rate limited, using relaxed cache", "key", key)
				return records
			}
		}
		f.logger.Warn("related queries failed after retries, trying fallback",
			"error", truncate(err.Error(), 200))
		return f.fallback(ctx, query, key)
	}

	results := f.normalize(data, keywords)
	if len(results) == 0 {
		f.logger.Warn("related queries yielded no records, trying fallback")
		return f.fallback(ctx, query, key)
	}

	trend.SortByScore(results)
	f.cache.Put(key, results)

	f.logger.Info("trends fetched", "count", len(results))
	return results
}

// relatedQueriesWithRetry issues the primary query with up to MaxAttempts
// attempts. Rate-limit errors back off exponentially (30s, 60s, 120s);
// other errors wait a randomized 5-10s.
func (f *Fetcher) relatedQueriesWithRetry(ctx context.Context, q Query) (map[string]RelatedQueries, error) {
	var lastErr error
	for attempt := 0; attempt < f.cfg.MaxAttempts; attempt++ {
		data, err := f.provider.RelatedQueries(ctx, q)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if isRateLimited(err) {
			wait := f.cfg.RateLimitBackoff << attempt
			f.logger.Warn("rate limited",
				"attempt", attempt+1, "max", f.cfg.MaxAttempts, "wait", wait)
			f.cfg.Sleep(wait)
		} else {
			f.logger.Warn("related queries attempt failed",
				"attempt", attempt+1, "error", truncate(err.Error(), 200))
			f.cfg.Sleep(time.Duration(5000+rand.Intn(5000)) * time.Millisecond)
		}
	}

	return nil, lastErr
}

// normalize converts raw related-query groups into deduplicated records.
// Keywords are deduplicated case-insensitively and trimmed; the first
// occurrence wins.
func (f *Fetcher) normalize(data map[string]RelatedQueries, keywords []string) []trend.Record {
	now := time.Now()
	seen := make(map[string]struct{})
	var results []trend.Record

	appendRows := func(rows []RelatedRow, recordType trend.RecordType) {
		for _, row := range rows {
			key := trend.DedupeKey(row.Query)
			if _, dup := seen[key]; dup {
				continue
			}

			score, ok := parseScore(row.Value)
			if !ok {
				continue
			}

			results = append(results, trend.Record{
				Keyword:    row.Query,
				Score:      score,
				Type:       recordType,
				Source:     trend.SourceGoogleTrends,
				ObservedAt: now,
			})
			seen[key] = struct{}{}
		}
	}

	for _, kw := range keywords {
		group, ok := data[kw]
		if !ok {
			continue
		}
		appendRows(group.Rising, trend.TypeRising)
		appendRows(group.Top, trend.TypeTop)
	}

	return results
}

// fallback retrieves interest-over-time data when the primary query yields
// nothing. It takes the most recent time slice and emits a record for each
// keyword with a positive value. Never returns an error.
func (f *Fetcher) fallback(ctx context.Context, q Query, key string) []trend.Record {
	points, err := f.provider.InterestOverTime(ctx, q)
	if err != nil {
		f.logger.Warn("fallback failed", "error", truncate(err.Error(), 200))
		return nil
	}
	if len(points) == 0 {
		f.logger.Warn("fallback returned no data")
		return nil
	}

	last := points[len(points)-1]
	now := time.Now()

	var results []trend.Record
	for _, kw := range q.Keywords {
		if score := last.Values[kw]; score > 0 {
			results = append(results, trend.Record{
				Keyword:    kw,
				Score:      score,
				Type:       trend.TypeInterest,
				Source:     trend.SourceGoogleTrendsFallback,
				ObservedAt: now,
			})
		}
	}

	trend.SortByScore(results)
	f.cache.Put(key, results)

	f.logger.Info("fallback trends fetched", "count", len(results))
	return results
}

// TrendingTopics is the lightweight trending-list path: one cached
// trending-searches call filtered to the configured domain terms, scored by
// rank. Independent of keyword discovery and the retry machinery.
func (f *Fetcher) TrendingTopics(ctx context.Context, region string) []trend.Record {
	key := "trending_topics_" + region

	if records, ok := f.cache.Get(key, f.cfg.TrendingCacheAge); ok {
		return records
	}

	phrases, err := f.provider.TrendingSearches(ctx, region)
	if err != nil {
		f.logger.Warn("trending searches failed", "error", truncate(err.Error(), 200))
		return nil
	}

	now := time.Now()
	var results []trend.Record
	for _, phrase := range phrases {
		if !containsAnyFold(phrase, f.cfg.DomainTerms) {
			continue
		}
		results = append(results, trend.Record{
			Keyword:    phrase,
			Score:      float64(100 - len(results)),
			Type:       trend.TypeTrending,
			Source:     trend.SourceGoogleTrending,
			ObservedAt: now,
		})
	}

	f.cache.Put(key, results)

	f.logger.Info("trending topics fetched", "region", region, "count", len(results))
	return results
}

// parseScore maps a raw provider value to a score. The "Breakout" sentinel
// means the value exceeds the provider's normal scale.
func parseScore(value string) (float64, bool) {
	if value == "Breakout" {
		return trend.BreakoutScore, true
	}
	score, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	return score, true
}

// isRateLimited reports whether an error indicates provider throttling.
func isRateLimited(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(strings.ToLower(msg), "rate")
}

// containsAnyFold reports whether s contains any of the terms,
// case-insensitively.
func containsAnyFold(s string, terms []string) bool {
	lower := strings.ToLower(s)
	for _, term := range terms {
		if strings.Contains(lower, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

// truncate bounds a message to n bytes for logging.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
