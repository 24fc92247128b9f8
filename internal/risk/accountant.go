// Package risk keeps the per-day trade and loss counters and validates
// entry orders against the configured limits.
package risk

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Rajchodisetti/intraday-executor/internal/observ"
	"github.com/Rajchodisetti/intraday-executor/internal/orders"
	"github.com/Rajchodisetti/intraday-executor/internal/statefile"
)

const dateLayout = "2006-01-02"

// State is the persisted daily risk record
type State struct {
	Date      string  `json:"date"` // YYYY-MM-DD, UTC
	Trades    int     `json:"trades"`
	DailyLoss float64 `json:"daily_loss"`
}

// Limits configures the entry-risk gates
type Limits struct {
	MaxTradesPerDay int
	MaxDailyLoss    float64
	RiskPerTradePct float64
	Capital         *float64 // notional gate is disabled when nil
}

// Accountant validates entries and records executed orders. All writes go
// through one statefile so concurrent reservations and records never lose an
// increment.
type Accountant struct {
	limits Limits
	gates  []RiskGate
	file   *statefile.File[State]
	now    func() time.Time
}

// NewAccountant builds an accountant persisted at path. now may be nil.
func NewAccountant(limits Limits, path string, positions OpenPositions, now func() time.Time) *Accountant {
	if now == nil {
		now = time.Now
	}
	a := &Accountant{limits: limits, now: now}
	a.file = statefile.New(path, func() State { return State{Date: a.today()} })

	a.gates = []RiskGate{
		&TradeCountGate{MaxTradesPerDay: limits.MaxTradesPerDay},
		&DailyLossGate{MaxDailyLoss: limits.MaxDailyLoss},
		&OpenPositionGate{Positions: positions},
	}
	if limits.Capital != nil {
		a.gates = append(a.gates, &NotionalGate{
			Capital:         decimal.NewFromFloat(*limits.Capital),
			RiskPerTradePct: decimal.NewFromFloat(limits.RiskPerTradePct),
		})
	}
	sort.SliceStable(a.gates, func(i, j int) bool { return a.gates[i].Priority() < a.gates[j].Priority() })
	return a
}

func (a *Accountant) today() string {
	return a.now().UTC().Format(dateLayout)
}

// rollover resets the counters when st belongs to an earlier day.
func (a *Accountant) rollover(st State) State {
	if today := a.today(); st.Date != today {
		return State{Date: today}
	}
	return st
}

// Status returns today's view of the counters without writing.
func (a *Accountant) Status() (State, error) {
	st, err := a.file.Load()
	if err != nil {
		return State{}, err
	}
	return a.rollover(st), nil
}

// Validate reports whether req may be submitted. Protective orders always
// pass. Rejections are logged and never returned as errors. Validate does not
// hold a trade slot; the executor uses Reserve.
func (a *Accountant) Validate(req orders.Request) bool {
	if req.Tag.Protective() {
		return true
	}

	st, err := a.Status()
	if err != nil {
		observ.Error("risk_state_unreadable", map[string]any{"symbol": req.Symbol, "error": err.Error()})
		return false
	}
	return a.check(req, st)
}

var errRejected = errors.New("risk rejected")

// Reserve validates req and counts it as a trade in one locked
// read-modify-write, so concurrent entries cannot all pass the trade-count
// gate on the same reading. The caller commits the reservation once the
// order is placed or releases it when submission fails.
func (a *Accountant) Reserve(req orders.Request) (orders.Reservation, bool) {
	if req.Tag.Protective() {
		return &reservation{a: a, req: req}, true
	}

	st, err := a.file.Update(func(cur State) (State, error) {
		next := a.rollover(cur)
		if !a.check(req, next) {
			return cur, errRejected
		}
		next.Trades++
		return next, nil
	})
	if err != nil {
		if !errors.Is(err, errRejected) {
			observ.Error("risk_state_unreadable", map[string]any{"symbol": req.Symbol, "error": err.Error()})
		}
		return nil, false
	}

	observ.SetGauge("risk_trades_today", float64(st.Trades), nil)
	observ.Log("trade_reserved", map[string]any{"symbol": req.Symbol, "trades": st.Trades})
	return &reservation{a: a, req: req, date: st.Date, counted: true}, true
}

// check runs the gates in priority order against st.
func (a *Accountant) check(req orders.Request, st State) bool {
	for _, g := range a.gates {
		ok, reason, err := g.Evaluate(req, st)
		if err != nil {
			observ.Error("risk_gate_error", map[string]any{
				"gate": g.Name(), "symbol": req.Symbol, "error": err.Error(),
			})
			return false
		}
		if !ok {
			observ.Warn("risk_rejected", map[string]any{
				"gate":       g.Name(),
				"reason":     reason,
				"symbol":     req.Symbol,
				"quantity":   req.Quantity,
				"trades":     st.Trades,
				"daily_loss": st.DailyLoss,
			})
			observ.IncCounter("risk_rejections_total", map[string]string{"gate": g.Name()})
			return false
		}
	}
	return true
}

// Record accounts for an executed order. Protective orders are logged only.
// A negative numeric "pnl" in resp adds to the daily loss.
func (a *Accountant) Record(req orders.Request, resp orders.Response) error {
	return a.apply(req, resp, true)
}

func (a *Accountant) apply(req orders.Request, resp orders.Response, countTrade bool) error {
	if req.Tag.Protective() {
		observ.Log("protective_order_recorded", map[string]any{
			"symbol": req.Symbol, "tag": req.Tag.String(), "order": map[string]any(resp),
		})
		return nil
	}

	st, err := a.file.Update(func(cur State) (State, error) {
		next := a.rollover(cur)
		if countTrade {
			next.Trades++
		}
		if raw, ok := resp["pnl"]; ok {
			pnl, err := numeric(raw)
			if err != nil {
				observ.Warn("risk_invalid_pnl", map[string]any{"symbol": req.Symbol, "pnl": raw})
			} else if pnl < 0 {
				next.DailyLoss += math.Abs(pnl)
			}
		}
		return next, nil
	})
	if err != nil {
		return fmt.Errorf("record trade: %w", err)
	}

	observ.SetGauge("risk_trades_today", float64(st.Trades), nil)
	observ.SetGauge("risk_daily_loss", st.DailyLoss, nil)
	observ.Log("trade_recorded", map[string]any{
		"symbol": req.Symbol, "trades": st.Trades, "daily_loss": st.DailyLoss,
	})
	return nil
}

// reservation is a trade slot taken by Reserve.
type reservation struct {
	a       *Accountant
	req     orders.Request
	date    string
	counted bool
	done    bool
}

// Commit records resp against the reserved slot without counting the trade
// again.
func (r *reservation) Commit(resp orders.Response) error {
	if r.done {
		return nil
	}
	r.done = true
	return r.a.apply(r.req, resp, false)
}

// Release gives the slot back. A slot taken on an earlier day is dropped
// with that day's counters.
func (r *reservation) Release() error {
	if r.done || !r.counted {
		r.done = true
		return nil
	}
	r.done = true
	st, err := r.a.file.Update(func(cur State) (State, error) {
		if cur.Date == r.date && cur.Trades > 0 {
			cur.Trades--
		}
		return cur, nil
	})
	if err != nil {
		return fmt.Errorf("release trade slot: %w", err)
	}
	observ.SetGauge("risk_trades_today", float64(st.Trades), nil)
	observ.Log("trade_released", map[string]any{"symbol": r.req.Symbol, "trades": st.Trades})
	return nil
}

func numeric(v any) (float64, error) {
	switch t := v.(type) {
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
		return strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		return 0, fmt.Errorf("non-numeric %T", v)
	}
}
