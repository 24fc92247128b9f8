package portfolio

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Rajchodisetti/intraday-executor/internal/observ"
	"github.com/Rajchodisetti/intraday-executor/internal/statefile"
)

// StatusExited marks a position that no longer counts as open
const StatusExited = "EXITED"

// Position represents a broker position for a single tradable symbol
type Position struct {
	Symbol     string  `json:"symbol"`
	Quantity   int     `json:"quantity"`
	Side       string  `json:"side"`
	EntryPrice float64 `json:"entry_price"`
	Status     string  `json:"status"` // OPEN, EXITED, ...
}

// Open reports whether the position still carries exposure
func (p Position) Open() bool {
	return p.Status != StatusExited
}

// Store persists the tracked position collection. The Position Monitor is
// its only writer; risk checks read it on every call.
type Store struct {
	file *statefile.File[[]Position]
}

// NewStore creates a store backed by the JSON file at path
func NewStore(path string) *Store {
	return &Store{
		file: statefile.New(path, func() []Position { return []Position{} }),
	}
}

// Load returns the persisted positions; empty when nothing was stored yet.
func (s *Store) Load() ([]Position, error) {
	return s.file.Load()
}

// Replace overwrites the whole collection.
func (s *Store) Replace(positions []Position) error {
	if positions == nil {
		positions = []Position{}
	}
	if err := s.file.Store(positions); err != nil {
		return fmt.Errorf("replace positions: %w", err)
	}

	open := 0
	for _, p := range positions {
		if p.Open() {
			open++
		}
	}
	observ.SetGauge("positions_open", float64(open), nil)
	observ.Log("positions_updated", map[string]any{"count": len(positions), "open": open})
	return nil
}

// HasOpenPosition reads the store from disk on every call; no caching.
func (s *Store) HasOpenPosition(symbol string) (bool, error) {
	positions, err := s.file.Load()
	if err != nil {
		return false, err
	}
	for _, p := range positions {
		if p.Symbol == symbol && p.Open() {
			return true, nil
		}
	}
	return false, nil
}

// FromBroker normalises loose broker position rows. Missing fields default
// to zero values; numeric fields accept numbers or numeric strings.
func FromBroker(rows []map[string]any) ([]Position, error) {
	out := make([]Position, 0, len(rows))
	for i, row := range rows {
		qty, err := toFloat(row["quantity"])
		if err != nil {
			return nil, fmt.Errorf("position %d quantity: %w", i, err)
		}
		price, err := toFloat(row["entry_price"])
		if err != nil {
			return nil, fmt.Errorf("position %d entry_price: %w", i, err)
		}
		out = append(out, Position{
			Symbol:     toString(row["symbol"]),
			Quantity:   int(math.Trunc(qty)),
			Side:       toString(row["side"]),
			EntryPrice: price,
			Status:     toString(row["status"]),
		})
	}
	return out, nil
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, nil
		}
		return strconv.ParseFloat(s, 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
