// internal/service/aggregator/aggregator.go

package aggregator

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"trendagg/internal/domain/trend"
)

// Source is one trend feed the aggregator polls each cycle.
type Source struct {
	Name  string
	Fetch func(ctx context.Context) []trend.Record
}

// TrendStore persists fetched records.
type TrendStore interface {
	SaveTrends(ctx context.Context, records []trend.Record) error
}

// Config contains configuration for the aggregator.
type Config struct {
	Interval    time.Duration
	EventsTopic string
}

// cycleEvent is the batch summary published after a persist.
type cycleEvent struct {
	Counts    map[string]int `json:"counts"`
	Total     int            `json:"total"`
	Timestamp time.Time      `json:"timestamp"`
}

// Aggregator runs the periodic fetch-and-persist cycle across all
// configured sources and publishes a batch summary after each cycle that
// stored rows.
type Aggregator struct {
	sources  []Source
	store    TrendStore
	eventBus *nats.Conn
	config   Config
	logger   *slog.Logger

	// inFlight guards against overlapping cycles: a tick arriving while a
	// cycle is still running is skipped.
	inFlight atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an aggregator. eventBus may be nil, in which case no events
// are published.
func New(sources []Source, store TrendStore, eventBus *nats.Conn, config Config, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		sources:  sources,
		store:    store,
		eventBus: eventBus,
		config:   config,
		logger:   logger,
	}
}

// Start begins the periodic cycle. The first cycle runs immediately.
func (a *Aggregator) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ticker := time.NewTicker(a.config.Interval)
		defer ticker.Stop()

		a.runCycle(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.runCycle(ctx)
			}
		}
	}()

	return nil
}

// Stop halts the cycle, waiting for an in-flight cycle up to the context
// deadline.
func (a *Aggregator) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runCycle fetches every source and persists what came back. Per-source
// failures never abort the cycle.
func (a *Aggregator) runCycle(ctx context.Context) {
	if !a.inFlight.CompareAndSwap(false, true) {
		a.logger.Warn("previous cycle still running, skipping tick")
		return
	}
	defer a.inFlight.Store(false)

	a.logger.Info("aggregation cycle starting")

	counts := make(map[string]int, len(a.sources))
	total := 0

	for _, source := range a.sources {
		records := source.Fetch(ctx)
		if len(records) == 0 {
			counts[source.Name] = 0
			continue
		}

		if err := a.store.SaveTrends(ctx, records); err != nil {
			a.logger.Error("failed to persist trends", "source", source.Name, "error", err)
			continue
		}

		counts[source.Name] = len(records)
		total += len(records)
	}

	a.logger.Info("aggregation cycle complete", "total", total)

	if total > 0 {
		a.publish(cycleEvent{Counts: counts, Total: total, Timestamp: time.Now()})
	}
}

// publish sends the cycle summary to the events topic, best-effort.
func (a *Aggregator) publish(event cycleEvent) {
	if a.eventBus == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		a.logger.Warn("failed to encode cycle event", "error", err)
		return
	}

	if err := a.eventBus.Publish(a.config.EventsTopic, payload); err != nil {
		a.logger.Warn("failed to publish cycle event", "error", err)
	}
}
