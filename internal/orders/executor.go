package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Rajchodisetti/intraday-executor/internal/journal"
	"github.com/Rajchodisetti/intraday-executor/internal/observ"
)

// Execution modes
const (
	ModePaper = "paper"
	ModeLive  = "live"
)

// No-op reasons reported in Result.Reason
const (
	ReasonTradingDisabled = "trading_disabled"
	ReasonRiskRejected    = "risk_rejected"
)

// paperNamespace scopes deterministic paper order IDs
var paperNamespace = uuid.MustParse("6f1d3c1e-8f3a-5b7e-9c2d-4a0b1e2f3c4d")

// Gate is the trading kill switch
type Gate interface {
	Enabled() (bool, error)
}

// RiskChecker takes a trade slot for an order before it is submitted
type RiskChecker interface {
	Reserve(req Request) (Reservation, bool)
}

// Reservation is a trade slot held between the risk check and the broker
// acknowledgement.
type Reservation interface {
	Commit(resp Response) error
	Release() error
}

// Submitter sends an order payload to the broker
type Submitter interface {
	SubmitOrder(ctx context.Context, payload map[string]any) (map[string]any, error)
}

// Journal records order outcomes
type Journal interface {
	Write(ctx context.Context, e journal.Entry) error
}

// Executor places orders behind the kill switch and the risk accountant.
type Executor struct {
	gate    Gate
	risk    RiskChecker
	broker  Submitter
	journal Journal
	mode    string
	now     func() time.Time
}

// NewExecutor wires an executor. broker may be nil in paper mode and
// journal may be nil.
func NewExecutor(gate Gate, risk RiskChecker, broker Submitter, journal Journal, mode string) *Executor {
	if mode == "" {
		mode = ModePaper
	}
	return &Executor{gate: gate, risk: risk, broker: broker, journal: journal, mode: mode, now: time.Now}
}

// Mode returns the execution mode
func (e *Executor) Mode() string { return e.mode }

// PlaceOrder submits req. A disabled gate or a risk rejection yields
// Result{Placed:false} and a nil error. Broker failures are returned as
// errors and are not retried.
func (e *Executor) PlaceOrder(ctx context.Context, req Request) (Result, error) {
	tag := req.Tag.String()
	observ.IncCounter("orders_attempted_total", map[string]string{"tag": tag})

	if !req.Tag.BypassesGate() {
		enabled, err := e.gate.Enabled()
		if err != nil {
			e.fail(ctx, req, fmt.Errorf("read trading control: %w", err))
			return Result{}, fmt.Errorf("read trading control: %w", err)
		}
		if !enabled {
			observ.Warn("order_blocked_trading_disabled", map[string]any{"symbol": req.Symbol, "side": req.Side, "tag": tag})
			return e.noop(ctx, req, ReasonTradingDisabled), nil
		}
	}

	slot, ok := e.risk.Reserve(req)
	if !ok {
		observ.Warn("order_rejected_by_risk", map[string]any{"symbol": req.Symbol, "side": req.Side, "tag": tag})
		return e.noop(ctx, req, ReasonRiskRejected), nil
	}

	var resp Response
	if e.mode == ModePaper {
		resp = paperAck(req)
	} else {
		if e.broker == nil {
			err := errors.New("no broker configured for live mode")
			e.release(req, slot)
			e.fail(ctx, req, err)
			return Result{}, err
		}
		start := time.Now()
		raw, err := e.broker.SubmitOrder(ctx, req.Payload())
		observ.Observe("order_submit_ms", float64(time.Since(start).Milliseconds()), map[string]string{"tag": tag})
		if err != nil {
			e.release(req, slot)
			e.fail(ctx, req, err)
			return Result{}, fmt.Errorf("submit %s order for %s: %w", tag, req.Symbol, err)
		}
		resp = Response(raw)
	}

	if err := slot.Commit(resp); err != nil {
		// The broker already has the order; the caller must still see it as placed.
		observ.Error("risk_record_failed", map[string]any{"symbol": req.Symbol, "tag": tag, "error": err.Error()})
		observ.IncCounter("risk_record_failures_total", nil)
	}

	observ.IncCounter("orders_placed_total", map[string]string{"tag": tag, "mode": e.mode})
	observ.Log("order_placed", map[string]any{
		"symbol": req.Symbol, "side": req.Side, "quantity": req.Quantity,
		"order_type": req.OrderType, "tag": tag, "mode": e.mode,
	})
	e.write(ctx, req, journal.OutcomePlaced, "", nil, resp)
	return Result{Placed: true, Response: resp}, nil
}

// PlaceStopLoss places req, which must be tagged STOP_LOSS.
func (e *Executor) PlaceStopLoss(ctx context.Context, req Request) (Result, error) {
	if req.Tag != TagStopLoss {
		return Result{}, fmt.Errorf("%w: stop loss order must carry tag %s, got %s", ErrInvalidArgument, TagStopLoss, req.Tag.String())
	}
	return e.PlaceOrder(ctx, req)
}

func (e *Executor) release(req Request, slot Reservation) {
	if err := slot.Release(); err != nil {
		observ.Error("risk_release_failed", map[string]any{"symbol": req.Symbol, "tag": req.Tag.String(), "error": err.Error()})
	}
}

func (e *Executor) noop(ctx context.Context, req Request, reason string) Result {
	observ.IncCounter("orders_noop_total", map[string]string{"reason": reason})
	e.write(ctx, req, journal.OutcomeNoop, reason, nil, nil)
	return Result{Placed: false, Reason: reason}
}

func (e *Executor) fail(ctx context.Context, req Request, err error) {
	observ.IncCounter("orders_failed_total", map[string]string{"tag": req.Tag.String()})
	observ.Error("order_failed", map[string]any{"symbol": req.Symbol, "tag": req.Tag.String(), "error": err.Error()})
	e.write(ctx, req, journal.OutcomeFailed, "", err, nil)
}

func (e *Executor) write(ctx context.Context, req Request, outcome, reason string, cause error, resp Response) {
	if e.journal == nil {
		return
	}
	entry := journal.Entry{
		ID:        uuid.NewString(),
		Event:     e.now().UTC(),
		Outcome:   outcome,
		Mode:      e.mode,
		Tag:       req.Tag.String(),
		Symbol:    req.Symbol,
		Side:      req.Side,
		Quantity:  req.Quantity,
		OrderType: req.OrderType,
		Reason:    reason,
		Request:   req.Payload(),
		Response:  resp,
	}
	if cause != nil {
		entry.Error = cause.Error()
	}
	if err := e.journal.Write(ctx, entry); err != nil {
		observ.Warn("journal_write_failed", map[string]any{"id": entry.ID, "error": err.Error()})
	}
}

// paperAck builds a broker-shaped acknowledgement without any network call.
// The order ID is derived from the request so identical requests map to the
// same ID.
func paperAck(req Request) Response {
	payload := req.Payload()
	canonical, _ := json.Marshal(payload)

	resp := Response{}
	for k, v := range payload {
		resp[k] = v
	}
	resp["order_id"] = uuid.NewSHA1(paperNamespace, canonical).String()
	resp["status"] = "ACCEPTED"
	resp["mode"] = ModePaper
	return resp
}
