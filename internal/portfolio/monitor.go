package portfolio

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Rajchodisetti/intraday-executor/internal/observ"
)

// PositionSource fetches raw position rows from the broker
type PositionSource interface {
	FetchPositions(ctx context.Context) ([]map[string]any, error)
}

// Monitor periodically mirrors broker positions into a Store.
type Monitor struct {
	source   PositionSource
	store    *Store
	interval time.Duration

	lastRefresh atomic.Int64 // unix nanos of the last successful cycle
	failures    atomic.Int64
}

// NewMonitor creates a monitor polling source every interval
func NewMonitor(source PositionSource, store *Store, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = time.Second
	}
	return &Monitor{source: source, store: store, interval: interval}
}

// Run polls until ctx is cancelled. A failed cycle is logged and the loop
// keeps going; stored positions are left as they were.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	observ.Log("position_monitor_started", map[string]any{"interval_ms": m.interval.Milliseconds()})
	for {
		select {
		case <-ctx.Done():
			observ.Log("position_monitor_stopped", nil)
			return nil
		case <-ticker.C:
			if err := m.RefreshOnce(ctx); err != nil {
				m.failures.Add(1)
				observ.IncCounter("position_monitor_errors_total", nil)
				observ.Warn("position_monitor_error", map[string]any{"error": err.Error()})
			}
		}
	}
}

// RefreshOnce runs a single fetch-and-replace cycle.
func (m *Monitor) RefreshOnce(ctx context.Context) error {
	start := time.Now()
	rows, err := m.source.FetchPositions(ctx)
	if err != nil {
		return err
	}
	positions, err := FromBroker(rows)
	if err != nil {
		return err
	}
	if err := m.store.Replace(positions); err != nil {
		return err
	}
	m.lastRefresh.Store(time.Now().UnixNano())
	observ.Observe("position_refresh_ms", float64(time.Since(start).Milliseconds()), nil)
	return nil
}

// LastRefresh returns the time of the last successful cycle, zero if none.
func (m *Monitor) LastRefresh() time.Time {
	n := m.lastRefresh.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// Failures returns the number of failed cycles since start
func (m *Monitor) Failures() int64 {
	return m.failures.Load()
}
