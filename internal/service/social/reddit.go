// internal/service/social/reddit.go

package social

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"trendagg/internal/domain/trend"
)

// RedditClient fetches hot posts from a configured set of subreddits via
// the public read-only JSON API.
type RedditClient struct {
	httpClient        *http.Client
	baseURL           string
	userAgent         string
	subreddits        []string
	postsPerSubreddit int
	logger            *slog.Logger

	// sleep is the pause between subreddit calls, replaceable in tests.
	sleep func(time.Duration)
}

// redditResponse is the shape of a subreddit listing response.
type redditResponse struct {
	Data struct {
		Children []struct {
			Data struct {
				Title string `json:"title"`
				Score int    `json:"score"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// NewRedditClient creates a Reddit client.
func NewRedditClient(subreddits []string, postsPerSubreddit int, userAgent string, logger *slog.Logger) *RedditClient {
	return &RedditClient{
		httpClient:        &http.Client{Timeout: 10 * time.Second},
		baseURL:           "https://www.reddit.com",
		userAgent:         userAgent,
		subreddits:        subreddits,
		postsPerSubreddit: postsPerSubreddit,
		logger:            logger,
		sleep:             time.Sleep,
	}
}

// FetchTrends returns one record per hot post across the configured
// subreddits. A failing subreddit is logged and skipped.
func (c *RedditClient) FetchTrends(ctx context.Context) []trend.Record {
	now := time.Now()
	var results []trend.Record

	for _, name := range c.subreddits {
		posts, err := c.hotPosts(ctx, name)
		if err != nil {
			c.logger.Warn("skipping subreddit", "subreddit", name, "error", err)
			continue
		}

		for _, post := range posts.Data.Children {
			results = append(results, trend.Record{
				Keyword:    post.Data.Title,
				Score:      float64(post.Data.Score),
				Source:     trend.SourceReddit,
				ObservedAt: now,
			})
		}

		// Random pause between subreddits to stay clear of rate limits.
		c.sleep(time.Duration(200+rand.Intn(400)) * time.Millisecond)
	}

	c.logger.Info("reddit trends fetched", "count", len(results))
	return results
}

func (c *RedditClient) hotPosts(ctx context.Context, subreddit string) (*redditResponse, error) {
	url := fmt.Sprintf("%s/r/%s/hot.json?limit=%d", c.baseURL, subreddit, c.postsPerSubreddit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set a User-Agent header to avoid rate limiting.
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Reddit API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Reddit API returned status code %d", resp.StatusCode)
	}

	var listing redditResponse
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("failed to decode Reddit API response: %w", err)
	}

	return &listing, nil
}
