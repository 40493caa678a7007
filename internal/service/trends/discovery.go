// internal/service/trends/discovery.go

package trends

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"time"
)

// maxSuggestSeeds caps how many seeds are expanded through the suggestion
// lookup, bounding external calls per discovery run.
const maxSuggestSeeds = 3

// Discovery expands a seed vocabulary into a candidate keyword list using
// the Google autocomplete suggestion endpoint.
type Discovery struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger

	// sleep is the delay between suggestion calls, replaceable in tests.
	sleep func(time.Duration)
}

// NewDiscovery creates a keyword discovery service. The suggestion lookup
// uses a short timeout so a slow endpoint cannot stall a retrieval cycle.
func NewDiscovery(logger *slog.Logger) *Discovery {
	return &Discovery{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    "https://suggestqueries.google.com",
		logger:     logger,
		sleep:      time.Sleep,
	}
}

// Discover returns at most totalLimit keywords: the seeds plus up to
// perSeedLimit suggestions for each of the first seeds. A failed lookup for
// one seed is logged and skipped, never aborting discovery. The accumulator
// is a set, so output order is not guaranteed.
func (d *Discovery) Discover(ctx context.Context, seeds []string, perSeedLimit, totalLimit int) []string {
	keywords := make(map[string]struct{}, totalLimit)
	for _, seed := range seeds {
		keywords[seed] = struct{}{}
	}

	limit := len(seeds)
	if limit > maxSuggestSeeds {
		limit = maxSuggestSeeds
	}

	for _, seed := range seeds[:limit] {
		suggestions, err := d.suggest(ctx, seed)
		if err != nil {
			d.logger.Warn("autocomplete lookup failed", "seed", seed, "error", err)
			continue
		}

		if len(suggestions) > perSeedLimit {
			suggestions = suggestions[:perSeedLimit]
		}
		for _, s := range suggestions {
			keywords[s] = struct{}{}
		}

		// Space out suggestion calls so this lookup does not trip rate
		// limiting independently of the primary provider throttle.
		d.sleep(time.Duration(1000+rand.Intn(1000)) * time.Millisecond)
	}

	result := make([]string, 0, totalLimit)
	for kw := range keywords {
		if len(result) == totalLimit {
			break
		}
		result = append(result, kw)
	}

	d.logger.Info("keywords discovered", "count", len(result))
	return result
}

// suggest queries the autocomplete endpoint for one seed. The response is a
// JSON array whose second element is the suggestion list.
func (d *Discovery) suggest(ctx context.Context, seed string) ([]string, error) {
	params := url.Values{
		"client": {"firefox"},
		"q":      {seed},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		d.baseURL+"/complete/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling suggest endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("suggest endpoint returned status %d", resp.StatusCode)
	}

	var payload []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding suggestions: %w", err)
	}
	if len(payload) < 2 {
		return nil, fmt.Errorf("unexpected suggest response shape")
	}

	var suggestions []string
	if err := json.Unmarshal(payload[1], &suggestions); err != nil {
		return nil, fmt.Errorf("decoding suggestion list: %w", err)
	}

	return suggestions, nil
}
