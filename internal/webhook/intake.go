// Package webhook is the signal ingress: it validates inbound signals and
// drives them through routing, execution and bracket construction.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Rajchodisetti/intraday-executor/internal/alerts"
	"github.com/Rajchodisetti/intraday-executor/internal/observ"
	"github.com/Rajchodisetti/intraday-executor/internal/orders"
	"github.com/Rajchodisetti/intraday-executor/internal/strategy"
)

var (
	ErrInvalidPayload = errors.New("invalid payload")
	ErrStaleSignal    = errors.New("stale signal")
	ErrRejected       = errors.New("risk/gate rejected")
	// ErrIncompleteBracket means the entry was placed but a protective
	// order was not. Outcome carries what did get placed.
	ErrIncompleteBracket = errors.New("incomplete bracket")
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02 15:04:05.999999999-0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04-0700",
	"2006-01-02T15:04",
	"2006-01-02",
}

// SpotPriceProvider returns the current spot for symbol. fallback is the
// price carried by the signal.
type SpotPriceProvider func(ctx context.Context, symbol string, fallback float64) (float64, error)

// EchoSpotPrice returns the signal's own price
func EchoSpotPrice(_ context.Context, _ string, fallback float64) (float64, error) {
	return fallback, nil
}

// Router resolves a signal into a plan
type Router interface {
	Route(signal strategy.Signal, spot float64) (strategy.TradePlan, error)
}

// OrderPlacer executes entry and protective orders
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req orders.Request) (orders.Result, error)
	PlaceStopLoss(ctx context.Context, req orders.Request) (orders.Result, error)
}

// Outcome holds the broker responses of one executed signal
type Outcome struct {
	Entry    orders.Response `json:"entry"`
	StopLoss orders.Response `json:"stop_loss"`
	Target   orders.Response `json:"target"`
}

// Intake handles one signal end to end. Entry, stop-loss and target are
// submitted strictly in that order.
type Intake struct {
	router   Router
	placer   OrderPlacer
	ttl      time.Duration
	spot     SpotPriceProvider
	notifier alerts.Notifier
	mode     string
	now      func() time.Time
}

// Options configures an Intake
type Options struct {
	TTL      time.Duration
	Spot     SpotPriceProvider // defaults to EchoSpotPrice
	Notifier alerts.Notifier   // optional
	Mode     string
	Now      func() time.Time
}

func NewIntake(router Router, placer OrderPlacer, opts Options) *Intake {
	if opts.Spot == nil {
		opts.Spot = EchoSpotPrice
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Intake{
		router:   router,
		placer:   placer,
		ttl:      opts.TTL,
		spot:     opts.Spot,
		notifier: opts.Notifier,
		mode:     opts.Mode,
		now:      opts.Now,
	}
}

// ParseTimestamp parses an ISO-8601 timestamp. Values without a zone
// offset are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// Validate checks the shape of sig and returns its parsed timestamp.
func Validate(sig strategy.Signal) (time.Time, error) {
	var problems []string
	if strings.TrimSpace(sig.Strategy) == "" {
		problems = append(problems, "strategy is required")
	}
	if strings.TrimSpace(sig.Symbol) == "" {
		problems = append(problems, "symbol is required")
	}
	if strings.TrimSpace(sig.Timeframe) == "" {
		problems = append(problems, "timeframe is required")
	}
	if sig.Side != orders.SideBuy && sig.Side != orders.SideSell {
		problems = append(problems, fmt.Sprintf("side must be BUY or SELL, got %q", sig.Side))
	}
	if math.IsNaN(sig.Price) || math.IsInf(sig.Price, 0) || sig.Price <= 0 {
		problems = append(problems, "price must be a positive number")
	}
	ts, err := ParseTimestamp(sig.Timestamp)
	if err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return time.Time{}, fmt.Errorf("%w: %s", ErrInvalidPayload, strings.Join(problems, "; "))
	}
	return ts, nil
}

// Handle executes sig. On ErrIncompleteBracket the returned Outcome holds
// the orders that were placed.
func (in *Intake) Handle(ctx context.Context, sig strategy.Signal) (Outcome, error) {
	ts, err := Validate(sig)
	if err != nil {
		return Outcome{}, err
	}
	if age := in.now().Sub(ts); age > in.ttl {
		observ.Warn("signal_stale", map[string]any{
			"strategy": sig.Strategy, "symbol": sig.Symbol, "age_ms": age.Milliseconds(), "ttl_ms": in.ttl.Milliseconds(),
		})
		return Outcome{}, fmt.Errorf("%w: age %s exceeds %s", ErrStaleSignal, age.Round(time.Millisecond), in.ttl)
	}

	spot, err := in.spot(ctx, sig.Symbol, sig.Price)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve spot price for %s: %w", sig.Symbol, err)
	}

	plan, err := in.router.Route(sig, spot)
	if err != nil {
		return Outcome{}, err
	}

	entry, err := in.placer.PlaceOrder(ctx, plan.Entry)
	if err != nil {
		return Outcome{}, fmt.Errorf("entry: %w", err)
	}
	if !entry.Placed {
		return Outcome{}, fmt.Errorf("%w: %s", ErrRejected, entry.Reason)
	}
	out := Outcome{Entry: entry.Response}

	sl, err := in.placer.PlaceStopLoss(ctx, BuildStopLoss(plan))
	if err == nil && !sl.Placed {
		err = fmt.Errorf("stop loss not placed: %s", sl.Reason)
	}
	if err != nil {
		in.alert(alerts.KindUnprotectedEntry, plan, err)
		return out, fmt.Errorf("%w: stop loss: %v", ErrIncompleteBracket, err)
	}
	out.StopLoss = sl.Response

	if target, ok := BuildTarget(plan); ok {
		res, err := in.placer.PlaceOrder(ctx, target)
		if err == nil && !res.Placed {
			err = fmt.Errorf("target not placed: %s", res.Reason)
		}
		if err != nil {
			in.alert(alerts.KindTargetFailed, plan, err)
			return out, fmt.Errorf("%w: target: %v", ErrIncompleteBracket, err)
		}
		out.Target = res.Response
	}

	observ.Log("signal_executed", map[string]any{
		"strategy":  sig.Strategy,
		"symbol":    sig.Symbol,
		"side":      sig.Side,
		"timeframe": sig.Timeframe,
		"contract":  plan.Entry.Symbol,
		"quantity":  plan.Entry.Quantity,
		"stop_loss": plan.StopLossPrice,
	})
	return out, nil
}

func (in *Intake) alert(kind string, plan strategy.TradePlan, cause error) {
	observ.Error(kind, map[string]any{
		"symbol": plan.Entry.Symbol, "side": plan.Entry.Side, "quantity": plan.Entry.Quantity, "error": cause.Error(),
	})
	if in.notifier == nil {
		return
	}
	in.notifier.Notify(alerts.AlertRequest{
		Kind:      kind,
		Symbol:    plan.Entry.Symbol,
		Side:      plan.Entry.Side,
		Quantity:  plan.Entry.Quantity,
		Detail:    cause.Error(),
		Mode:      in.mode,
		Timestamp: in.now().UTC(),
	})
}
