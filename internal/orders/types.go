// Package orders turns order requests into broker submissions behind the
// trading kill switch and the daily risk limits.
package orders

import (
	"errors"
	"strings"
)

// ErrInvalidArgument is returned for requests that can never be valid
var ErrInvalidArgument = errors.New("invalid argument")

// Tag identifies the role an order plays in a bracket
type Tag string

const (
	TagNone     Tag = ""
	TagStopLoss Tag = "STOP_LOSS"
	TagTarget   Tag = "TARGET"
	TagExit     Tag = "EXIT"
)

// Protective reports whether the order protects an existing position.
// Protective orders never count against entry risk limits.
func (t Tag) Protective() bool {
	return t == TagStopLoss || t == TagTarget
}

// BypassesGate reports whether the order skips the trading kill switch
func (t Tag) BypassesGate() bool {
	return t.Protective() || t == TagExit
}

func (t Tag) String() string {
	if t == TagNone {
		return "NONE"
	}
	return string(t)
}

// Order sides and types used by the planner and bracket builders
const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	TypeMarket    = "MARKET"
	TypeLimit     = "LIMIT"
	TypeStopLossM = "SL-M"
)

// OppositeSide returns the closing side for side
func OppositeSide(side string) string {
	if strings.EqualFold(side, SideBuy) {
		return SideSell
	}
	return SideBuy
}

// Request is an immutable order instruction
type Request struct {
	Symbol         string   `json:"symbol"`
	Exchange       string   `json:"exchange"`
	Side           string   `json:"side"`
	Quantity       int      `json:"quantity"`
	OrderType      string   `json:"order_type"`
	ProductType    string   `json:"product_type"`
	Price          *float64 `json:"price,omitempty"`
	ReferencePrice *float64 `json:"reference_price,omitempty"` // notional sizing only, never sent to the broker
	Tag            Tag      `json:"order_tag,omitempty"`
}

// SizingPrice returns the reference price, falling back to Price.
func (r Request) SizingPrice() (float64, bool) {
	if r.ReferencePrice != nil {
		return *r.ReferencePrice, true
	}
	if r.Price != nil {
		return *r.Price, true
	}
	return 0, false
}

// Payload is the broker order body for r
func (r Request) Payload() map[string]any {
	p := map[string]any{
		"symbol":       r.Symbol,
		"exchange":     r.Exchange,
		"side":         r.Side,
		"quantity":     r.Quantity,
		"order_type":   r.OrderType,
		"product_type": r.ProductType,
		"price":        nil,
	}
	if r.Price != nil {
		p["price"] = *r.Price
	}
	if r.Tag != TagNone {
		p["order_tag"] = string(r.Tag)
	}
	return p
}

// Response is a broker (or paper) acknowledgement
type Response map[string]any

// Result is the outcome of PlaceOrder. Placed is false when the gate or the
// risk accountant turned the order into a no-op; Reason says which.
type Result struct {
	Placed   bool     `json:"placed"`
	Reason   string   `json:"reason,omitempty"`
	Response Response `json:"response,omitempty"`
}

// Float returns a pointer to v, for optional price fields
func Float(v float64) *float64 {
	return &v
}
