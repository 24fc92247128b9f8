// Package control holds the manual trading kill switch. The switch is a
// single persisted flag that blocks every new entry order while leaving
// protective and exit orders untouched.
package control

import (
	"time"

	"github.com/Rajchodisetti/intraday-executor/internal/observ"
	"github.com/Rajchodisetti/intraday-executor/internal/statefile"
)

// State is the persisted trading control record
type State struct {
	Enabled   bool   `json:"enabled"`
	UpdatedAt string `json:"updated_at"` // RFC3339 UTC; empty until first enable/disable
	Reason    string `json:"reason"`
}

// Gate is the trading on/off switch backed by its own state file.
type Gate struct {
	file *statefile.File[State]
	now  func() time.Time
}

// NewGate creates a gate persisted at path. A missing file reads as enabled.
func NewGate(path string) *Gate {
	return &Gate{
		file: statefile.New(path, func() State { return State{Enabled: true} }),
		now:  time.Now,
	}
}

// Status returns the persisted state without modifying it
func (g *Gate) Status() (State, error) {
	return g.file.Load()
}

// Enabled reports whether new entry orders may be submitted.
func (g *Gate) Enabled() (bool, error) {
	st, err := g.file.Load()
	if err != nil {
		return false, err
	}
	return st.Enabled, nil
}

// Enable overwrites the state with enabled=true
func (g *Gate) Enable(reason string) (State, error) {
	st, err := g.set(true, reason)
	if err != nil {
		return st, err
	}
	observ.Log("trading_enabled", map[string]any{"reason": reason})
	return st, nil
}

// Disable overwrites the state with enabled=false
func (g *Gate) Disable(reason string) (State, error) {
	st, err := g.set(false, reason)
	if err != nil {
		return st, err
	}
	observ.Warn("trading_disabled", map[string]any{"reason": reason})
	return st, nil
}

// set never merges with the previous record.
func (g *Gate) set(enabled bool, reason string) (State, error) {
	st := State{
		Enabled:   enabled,
		UpdatedAt: g.now().UTC().Format(time.RFC3339),
		Reason:    reason,
	}
	if err := g.file.Store(st); err != nil {
		return State{}, err
	}
	v := 0.0
	if enabled {
		v = 1
	}
	observ.SetGauge("trading_enabled", v, nil)
	return st, nil
}
