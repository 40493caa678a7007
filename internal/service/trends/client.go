// internal/service/trends/client.go

package trends

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Query describes one primary-provider lookup.
type Query struct {
	Keywords  []string
	Timeframe string
	Region    string
}

// RelatedRow is one row of a related-queries result table. Value holds the
// provider's formatted value, which is either numeric text or the literal
// sentinel "Breakout".
type RelatedRow struct {
	Query string
	Value string
}

// RelatedQueries groups the rising and top sub-results for one keyword.
// Either list may be empty.
type RelatedQueries struct {
	Rising []RelatedRow
	Top    []RelatedRow
}

// InterestPoint is one time slice of an interest-over-time series, mapping
// each queried keyword to its value at that time.
type InterestPoint struct {
	Time   time.Time
	Values map[string]float64
}

// Provider is the Google Trends surface the retrieval strategy depends on.
type Provider interface {
	// RelatedQueries returns rising/top related queries per keyword.
	RelatedQueries(ctx context.Context, q Query) (map[string]RelatedQueries, error)

	// InterestOverTime returns the interest time series for the query.
	InterestOverTime(ctx context.Context, q Query) ([]InterestPoint, error)

	// TrendingSearches returns the current trending search phrases for a
	// region, most popular first.
	TrendingSearches(ctx context.Context, region string) ([]string, error)
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36",
}

// Client implements Provider against the unofficial Google Trends API:
// an explore call issues widget tokens which authorize the widget data
// endpoints. Responses carry a JSON anti-hijacking prefix that must be
// stripped before decoding.
type Client struct {
	httpClient *http.Client
	baseURL    string
	language   string
	timezone   int
}

// NewClient creates a trends client with a 10s connect / 30s overall timeout.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
			},
		},
		baseURL:  "https://trends.google.com",
		language: "en-US",
		timezone: 330,
	}
}

type exploreWidget struct {
	ID      string          `json:"id"`
	Token   string          `json:"token"`
	Request json.RawMessage `json:"request"`
}

type exploreResponse struct {
	Widgets []exploreWidget `json:"widgets"`
}

// explore registers the query and returns the issued widgets.
func (c *Client) explore(ctx context.Context, q Query) ([]exploreWidget, error) {
	type comparisonItem struct {
		Keyword string `json:"keyword"`
		Geo     string `json:"geo"`
		Time    string `json:"time"`
	}

	items := make([]comparisonItem, 0, len(q.Keywords))
	for _, kw := range q.Keywords {
		items = append(items, comparisonItem{Keyword: kw, Geo: q.Region, Time: q.Timeframe})
	}

	req, err := json.Marshal(map[string]interface{}{
		"comparisonItem": items,
		"category":       0,
		"property":       "",
	})
	if err != nil {
		return nil, fmt.Errorf("encoding explore request: %w", err)
	}

	body, err := c.get(ctx, "/trends/api/explore", url.Values{
		"hl":  {c.language},
		"tz":  {strconv.Itoa(c.timezone)},
		"req": {string(req)},
	})
	if err != nil {
		return nil, err
	}

	var resp exploreResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding explore response: %w", err)
	}

	return resp.Widgets, nil
}

// RelatedQueries implements Provider. The explore response carries one
// RELATED_QUERIES widget per keyword, in keyword order.
func (c *Client) RelatedQueries(ctx context.Context, q Query) (map[string]RelatedQueries, error) {
	widgets, err := c.explore(ctx, q)
	if err != nil {
		return nil, err
	}

	var related []exploreWidget
	for _, w := range widgets {
		if strings.HasPrefix(w.ID, "RELATED_QUERIES") {
			related = append(related, w)
		}
	}

	results := make(map[string]RelatedQueries, len(q.Keywords))
	for i, w := range related {
		if i >= len(q.Keywords) {
			break
		}

		body, err := c.get(ctx, "/trends/api/widgetdata/relatedsearches", url.Values{
			"hl":    {c.language},
			"tz":    {strconv.Itoa(c.timezone)},
			"req":   {string(w.Request)},
			"token": {w.Token},
		})
		if err != nil {
			return nil, err
		}

		var resp struct {
			Default struct {
				RankedList []struct {
					RankedKeyword []struct {
						Query          string `json:"query"`
						Value          int    `json:"value"`
						FormattedValue string `json:"formattedValue"`
					} `json:"rankedKeyword"`
				} `json:"rankedList"`
			} `json:"default"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("decoding related queries response: %w", err)
		}

		// rankedList[0] holds top queries, rankedList[1] rising.
		var group RelatedQueries
		for listIdx, list := range resp.Default.RankedList {
			for _, rk := range list.RankedKeyword {
				value := strconv.Itoa(rk.Value)
				if rk.FormattedValue == "Breakout" {
					value = "Breakout"
				}
				row := RelatedRow{Query: rk.Query, Value: value}
				if listIdx == 0 {
					group.Top = append(group.Top, row)
				} else {
					group.Rising = append(group.Rising, row)
				}
			}
		}

		results[q.Keywords[i]] = group
	}

	return results, nil
}

// InterestOverTime implements Provider using the TIMESERIES widget.
func (c *Client) InterestOverTime(ctx context.Context, q Query) ([]InterestPoint, error) {
	widgets, err := c.explore(ctx, q)
	if err != nil {
		return nil, err
	}

	var series *exploreWidget
	for i := range widgets {
		if widgets[i].ID == "TIMESERIES" {
			series = &widgets[i]
			break
		}
	}
	if series == nil {
		return nil, fmt.Errorf("explore response has no timeseries widget")
	}

	body, err := c.get(ctx, "/trends/api/widgetdata/multiline", url.Values{
		"hl":    {c.language},
		"tz":    {strconv.Itoa(c.timezone)},
		"req":   {string(series.Request)},
		"token": {series.Token},
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Default struct {
			TimelineData []struct {
				Time  string    `json:"time"`
				Value []float64 `json:"value"`
			} `json:"timelineData"`
		} `json:"default"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding interest response: %w", err)
	}

	points := make([]InterestPoint, 0, len(resp.Default.TimelineData))
	for _, entry := range resp.Default.TimelineData {
		unix, err := strconv.ParseInt(entry.Time, 10, 64)
		if err != nil {
			continue
		}

		point := InterestPoint{
			Time:   time.Unix(unix, 0),
			Values: make(map[string]float64, len(q.Keywords)),
		}
		for i, kw := range q.Keywords {
			if i < len(entry.Value) {
				point.Values[kw] = entry.Value[i]
			}
		}
		points = append(points, point)
	}

	return points, nil
}

// TrendingSearches implements Provider using the daily trends endpoint.
func (c *Client) TrendingSearches(ctx context.Context, region string) ([]string, error) {
	body, err := c.get(ctx, "/trends/api/dailytrends", url.Values{
		"hl":  {c.language},
		"tz":  {strconv.Itoa(c.timezone)},
		"geo": {region},
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Default struct {
			TrendingSearchesDays []struct {
				TrendingSearches []struct {
					Title struct {
						Query string `json:"query"`
					} `json:"title"`
				} `json:"trendingSearches"`
			} `json:"trendingSearchesDays"`
		} `json:"default"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding daily trends response: %w", err)
	}

	var phrases []string
	if days := resp.Default.TrendingSearchesDays; len(days) > 0 {
		for _, ts := range days[0].TrendingSearches {
			phrases = append(phrases, ts.Title.Query)
		}
	}

	return phrases, nil
}

// get issues one API request and returns the response body with the JSON
// prefix stripped.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgents[rand.Intn(len(userAgents))])

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling google trends: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google trends returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return stripJSONPrefix(body), nil
}

// stripJSONPrefix drops the anti-hijacking garbage (")]}'") Google prepends
// to API responses.
func stripJSONPrefix(body []byte) []byte {
	if i := bytes.IndexAny(body, "{["); i > 0 {
		return body[i:]
	}
	return body
}
