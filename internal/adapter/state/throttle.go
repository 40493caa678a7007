// internal/adapter/state/throttle.go

package state

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Throttle gates outbound provider requests to a minimum inter-request
// interval. The last-request timestamp is persisted as Unix epoch seconds so
// the gate survives process restarts. All query variants share one clock.
type Throttle struct {
	path        string
	minInterval time.Duration
	logger      *slog.Logger

	// Guards the check-and-record pair against interleaving in a
	// concurrent host.
	mu sync.Mutex
}

// NewThrottle creates a throttle persisting its state at path.
func NewThrottle(path string, minInterval time.Duration, logger *slog.Logger) *Throttle {
	return &Throttle{path: path, minInterval: minInterval, logger: logger}
}

// CanRequest reports whether enough time has passed since the last recorded
// request. Missing or corrupt state fails open.
func (t *Throttle) CanRequest() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := os.ReadFile(t.path)
	if err != nil {
		return true
	}

	lastUnix, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		t.logger.Warn("throttle state unreadable, allowing request", "error", err)
		return true
	}

	elapsed := time.Since(time.Unix(int64(lastUnix), 0))
	if elapsed < t.minInterval {
		t.logger.Info("throttle active",
			"wait", (t.minInterval - elapsed).Round(time.Second))
		return false
	}

	return true
}

// RecordRequest overwrites the persisted timestamp with the current time.
func (t *Throttle) RecordRequest() {
	t.mu.Lock()
	defer t.mu.Unlock()

	data := []byte(strconv.FormatInt(time.Now().Unix(), 10))
	if err := atomicWrite(t.path, data); err != nil {
		t.logger.Warn("failed to persist throttle state", "error", err)
	}
}
