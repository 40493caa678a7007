// internal/service/social/youtube.go

package social

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"trendagg/internal/domain/trend"
)

// YouTubeClient fetches the most popular videos chart for a region via the
// YouTube Data API.
type YouTubeClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	region     string
	maxResults int
	logger     *slog.Logger
}

// NewYouTubeClient creates a YouTube client.
func NewYouTubeClient(apiKey, region string, maxResults int, logger *slog.Logger) *YouTubeClient {
	return &YouTubeClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    "https://www.googleapis.com",
		apiKey:     apiKey,
		region:     region,
		maxResults: maxResults,
		logger:     logger,
	}
}

// FetchTrends returns one record per video on the most-popular chart,
// scored by view count. Any failure yields an empty list.
func (c *YouTubeClient) FetchTrends(ctx context.Context) []trend.Record {
	params := url.Values{
		"part":       {"snippet,statistics"},
		"chart":      {"mostPopular"},
		"regionCode": {c.region},
		"maxResults": {strconv.Itoa(c.maxResults)},
		"key":        {c.apiKey},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/youtube/v3/videos?"+params.Encode(), nil)
	if err != nil {
		c.logger.Warn("failed to create youtube request", "error", err)
		return nil
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("youtube request failed", "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("youtube returned non-OK status", "status", resp.StatusCode)
		return nil
	}

	var payload struct {
		Items []struct {
			Snippet struct {
				Title string `json:"title"`
			} `json:"snippet"`
			Statistics struct {
				ViewCount string `json:"viewCount"`
			} `json:"statistics"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.logger.Warn("failed to decode youtube response", "error", err)
		return nil
	}

	now := time.Now()
	var results []trend.Record
	for _, item := range payload.Items {
		views, _ := strconv.ParseFloat(item.Statistics.ViewCount, 64)
		results = append(results, trend.Record{
			Keyword:    item.Snippet.Title,
			Score:      views,
			Source:     trend.SourceYouTube,
			ObservedAt: now,
		})
	}

	c.logger.Info("youtube trends fetched", "count", len(results))
	return results
}
