package strategy

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Rajchodisetti/intraday-executor/internal/broker"
	"github.com/Rajchodisetti/intraday-executor/internal/observ"
	"github.com/Rajchodisetti/intraday-executor/internal/orders"
)

const (
	OptionCall = "CE"
	OptionPut  = "PE"
)

var expiryLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// AtmSelector picks the at-the-money option for the nearest expiry.
type AtmSelector struct {
	instruments     []broker.Instrument
	strikeSteps     map[string]float64
	defaultExchange string
	now             func() time.Time
}

// NewAtmSelector builds a selector over a fixed instrument universe. now may be nil.
func NewAtmSelector(instruments []broker.Instrument, strikeSteps map[string]float64, defaultExchange string, now func() time.Time) *AtmSelector {
	if now == nil {
		now = time.Now
	}
	if defaultExchange == "" {
		defaultExchange = "NFO"
	}
	return &AtmSelector{
		instruments:     instruments,
		strikeSteps:     strikeSteps,
		defaultExchange: defaultExchange,
		now:             now,
	}
}

// AtmStrike rounds spot to the nearest multiple of step. Exact midpoints
// round half up, away from zero.
func AtmStrike(spot, step float64) decimal.Decimal {
	s := decimal.NewFromFloat(step)
	return decimal.NewFromFloat(spot).Div(s).Round(0).Mul(s)
}

// OptionType maps an order side to the option bought: BUY buys calls,
// anything else buys puts.
func OptionType(side string) string {
	if side == orders.SideBuy {
		return OptionCall
	}
	return OptionPut
}

// Select resolves indexSymbol, spot and side to a tradable contract.
func (s *AtmSelector) Select(indexSymbol string, spot float64, side string) (AtmSelection, error) {
	step, ok := s.strikeSteps[indexSymbol]
	if !ok || step <= 0 {
		return AtmSelection{}, fmt.Errorf("%w: no strike step configured for %s", ErrConfig, indexSymbol)
	}
	strike := AtmStrike(spot, step)
	optType := OptionType(side)

	expiry, err := s.nearestExpiry(indexSymbol)
	if err != nil {
		observ.Error("atm_no_expiry", map[string]any{"symbol": indexSymbol, "strike": strike.InexactFloat64()})
		return AtmSelection{}, err
	}

	for _, inst := range s.instruments {
		if inst.Symbol != indexSymbol || inst.Expiry != expiry || inst.OptionType != optType || !inst.IsTradable() {
			continue
		}
		if !decimal.NewFromFloat(inst.Strike).Equal(strike) {
			continue
		}
		if inst.LotSize <= 0 {
			observ.Error("atm_invalid_lot_size", map[string]any{"trading_symbol": inst.TradingSymbol, "lot_size": inst.LotSize})
			return AtmSelection{}, fmt.Errorf("%w: %s has lot size %d", ErrLookup, inst.TradingSymbol, inst.LotSize)
		}
		exchange := inst.Exchange
		if exchange == "" {
			exchange = s.defaultExchange
		}
		return AtmSelection{Symbol: inst.TradingSymbol, Exchange: exchange, LotSize: inst.LotSize}, nil
	}

	observ.Error("atm_option_not_found", map[string]any{
		"symbol":      indexSymbol,
		"strike":      strike.InexactFloat64(),
		"expiry":      expiry,
		"option_type": optType,
	})
	return AtmSelection{}, fmt.Errorf("%w: no %s %s %s expiring %s", ErrLookup, indexSymbol, strike.String(), optType, expiry)
}

type expiryDate struct {
	raw  string
	date string // YYYY-MM-DD in the expiry's own zone
	t    time.Time
}

// nearestExpiry returns the earliest expiry on or after today (UTC). When
// every listed expiry is in the past it falls back to the latest one.
func (s *AtmSelector) nearestExpiry(indexSymbol string) (string, error) {
	seen := map[string]bool{}
	var expiries []expiryDate
	for _, inst := range s.instruments {
		if inst.Symbol != indexSymbol || seen[inst.Expiry] {
			continue
		}
		seen[inst.Expiry] = true
		t, ok := parseExpiry(inst.Expiry)
		if !ok {
			observ.Warn("atm_unparseable_expiry", map[string]any{"symbol": indexSymbol, "expiry": inst.Expiry})
			continue
		}
		expiries = append(expiries, expiryDate{raw: inst.Expiry, date: t.Format("2006-01-02"), t: t})
	}
	if len(expiries) == 0 {
		return "", fmt.Errorf("%w: no expiries found for %s", ErrLookup, indexSymbol)
	}
	sort.Slice(expiries, func(i, j int) bool { return expiries[i].t.Before(expiries[j].t) })

	today := s.now().UTC().Format("2006-01-02")
	for _, e := range expiries {
		if e.date >= today {
			return e.raw, nil
		}
	}

	// Every expiry is past: use the latest one rather than failing the signal.
	latest := expiries[len(expiries)-1]
	observ.Warn("atm_expiry_fallback", map[string]any{"symbol": indexSymbol, "expiry": latest.raw, "today": today})
	return latest.raw, nil
}

func parseExpiry(s string) (time.Time, bool) {
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
