package trend

import (
	"sort"
	"strings"
	"time"
)

// RecordType describes which retrieval path produced a record.
type RecordType string

const (
	TypeRising   RecordType = "rising"
	TypeTop      RecordType = "top"
	TypeInterest RecordType = "interest"
	TypeTrending RecordType = "trending"
)

// Source names used on persisted trend rows.
const (
	SourceGoogleTrends         = "google_trends"
	SourceGoogleTrendsFallback = "google_trends_fallback"
	SourceGoogleTrending       = "google_trending"
	SourceReddit               = "reddit"
	SourceYouTube              = "youtube"
)

// BreakoutScore is the score assigned when the provider reports a value
// exceeding its normal scale.
const BreakoutScore = 100

// Record represents a single normalized trending keyword observation.
type Record struct {
	Keyword    string     `json:"keyword"`
	Score      float64    `json:"score"`
	Type       RecordType `json:"type,omitempty"`
	Source     string     `json:"source"`
	ObservedAt time.Time  `json:"timestamp"`
}

// DedupeKey returns the case-insensitive, trimmed identity of a keyword.
// Two records with the same dedupe key are the same keyword.
func DedupeKey(keyword string) string {
	return strings.ToLower(strings.TrimSpace(keyword))
}

// SortByScore sorts records by score descending. The sort is stable so
// equal-score records keep their discovery order.
func SortByScore(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Score > records[j].Score
	})
}
