package strategy

import (
	"fmt"

	"github.com/Rajchodisetti/intraday-executor/internal/observ"
)

// Strategy builds a trade plan from a signal and the current spot price.
// Adding a strategy means implementing this and registering it with the
// router.
type Strategy interface {
	Name() string
	BuildTrade(signal Signal, spot float64) (TradePlan, error)
}

// OptionSelector resolves the contract a strategy trades
type OptionSelector interface {
	Select(indexSymbol string, spot float64, side string) (AtmSelection, error)
}

// ScalpAtm scalps the at-the-money option of the signalled index
type ScalpAtm struct {
	Selector OptionSelector
	Logic    ScalpingLogic
}

func (s *ScalpAtm) Name() string { return "SCALP_ATM" }

func (s *ScalpAtm) BuildTrade(signal Signal, spot float64) (TradePlan, error) {
	selection, err := s.Selector.Select(signal.Symbol, spot, signal.Side)
	if err != nil {
		return TradePlan{}, err
	}
	return s.Logic.BuildTrade(signal, selection), nil
}

// Router dispatches signals to registered strategies by name
type Router struct {
	allowed  map[string]bool
	registry map[string]Strategy
}

// NewRouter creates a router accepting only names in allowed
func NewRouter(allowed []string, strategies ...Strategy) *Router {
	r := &Router{allowed: map[string]bool{}, registry: map[string]Strategy{}}
	for _, name := range allowed {
		r.allowed[name] = true
	}
	for _, s := range strategies {
		r.registry[s.Name()] = s
	}
	return r
}

// Route resolves signal.Strategy and delegates to it.
func (r *Router) Route(signal Signal, spot float64) (TradePlan, error) {
	if !r.allowed[signal.Strategy] {
		observ.Warn("strategy_unknown", map[string]any{"strategy": signal.Strategy})
		return TradePlan{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, signal.Strategy)
	}
	s, ok := r.registry[signal.Strategy]
	if !ok {
		observ.Error("strategy_not_implemented", map[string]any{"strategy": signal.Strategy})
		return TradePlan{}, fmt.Errorf("%w: %q", ErrNotImplemented, signal.Strategy)
	}
	return s.BuildTrade(signal, spot)
}
