// internal/adapter/storage/trend_store.go

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"trendagg/internal/domain/trend"
)

// StoredTrend is a persisted trend row as exposed by the read endpoint.
type StoredTrend struct {
	Keyword   string    `json:"keyword"`
	Source    string    `json:"source"`
	Score     float64   `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// TrendStore implements storage for trend rows
type TrendStore struct {
	db *pgxpool.Pool
}

// NewTrendStore creates a new trend store
func NewTrendStore(db *pgxpool.Pool) *TrendStore {
	return &TrendStore{
		db: db,
	}
}

// EnsureSchema creates the trends table and its index if they do not exist.
func (s *TrendStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS trends (
			id UUID PRIMARY KEY,
			keyword TEXT NOT NULL,
			source TEXT NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("error creating trends table: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_trends_timestamp ON trends (timestamp DESC)
	`)
	if err != nil {
		return fmt.Errorf("error creating trends index: %w", err)
	}

	return nil
}

// SaveTrends appends each record as a row. The row timestamp is assigned by
// the database, not taken from the record.
func (s *TrendStore) SaveTrends(ctx context.Context, records []trend.Record) error {
	query := `
		INSERT INTO trends (id, keyword, source, score)
		VALUES ($1, $2, $3, $4)
	`

	for _, r := range records {
		if _, err := s.db.Exec(ctx, query, uuid.New().String(), r.Keyword, r.Source, r.Score); err != nil {
			return fmt.Errorf("error inserting trend row: %w", err)
		}
	}

	return nil
}

// RecentTrends returns the most recently persisted rows, newest first.
func (s *TrendStore) RecentTrends(ctx context.Context, limit int) ([]StoredTrend, error) {
	query := `
		SELECT keyword, source, score, timestamp
		FROM trends
		ORDER BY timestamp DESC
		LIMIT $1
	`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	var trends []StoredTrend
	for rows.Next() {
		var t StoredTrend
		if err := rows.Scan(&t.Keyword, &t.Source, &t.Score, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("error scanning trend row: %w", err)
		}
		trends = append(trends, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trend rows: %w", err)
	}

	return trends, nil
}
