package broker

import (
	"context"
	"fmt"

	"github.com/Rajchodisetti/intraday-executor/internal/observ"
	"github.com/Rajchodisetti/intraday-executor/internal/statefile"
)

// InstrumentCache persists the instrument master between runs
type InstrumentCache struct {
	file *statefile.File[[]Instrument]
}

// NewInstrumentCache creates a cache stored at path
func NewInstrumentCache(path string) *InstrumentCache {
	return &InstrumentCache{
		file: statefile.New(path, func() []Instrument { return []Instrument{} }),
	}
}

// Load returns the cached instruments, empty if nothing is cached
func (c *InstrumentCache) Load() ([]Instrument, error) {
	return c.file.Load()
}

// Save replaces the cached instruments
func (c *InstrumentCache) Save(instruments []Instrument) error {
	if err := c.file.Store(instruments); err != nil {
		return err
	}
	observ.Log("instrument_master_cached", map[string]any{"count": len(instruments)})
	return nil
}

// Bootstrap returns the cached instruments, fetching and caching them from
// the broker when the cache is empty.
func Bootstrap(ctx context.Context, cache *InstrumentCache, client Client) ([]Instrument, error) {
	cached, err := cache.Load()
	if err != nil {
		return nil, fmt.Errorf("load instrument cache: %w", err)
	}
	if len(cached) > 0 {
		observ.Log("instrument_master_loaded", map[string]any{"count": len(cached), "source": "cache"})
		return cached, nil
	}

	fetched, err := client.FetchInstruments(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch instruments: %w", err)
	}
	if err := cache.Save(fetched); err != nil {
		return nil, fmt.Errorf("save instrument cache: %w", err)
	}
	return fetched, nil
}
