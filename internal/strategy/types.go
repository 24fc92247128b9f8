// Package strategy resolves trade signals into concrete order plans.
package strategy

import (
	"errors"

	"github.com/Rajchodisetti/intraday-executor/internal/orders"
)

var (
	ErrUnknownStrategy = errors.New("unknown strategy")
	ErrNotImplemented  = errors.New("strategy not implemented")
	ErrLookup          = errors.New("instrument lookup failed")
	ErrConfig          = errors.New("strategy configuration error")
)

// Signal is one inbound trade instruction
type Signal struct {
	Strategy  string  `json:"strategy"`
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"` // BUY | SELL
	Timeframe string  `json:"timeframe"`
	Price     float64 `json:"price"`
	Timestamp string  `json:"timestamp"` // ISO-8601
}

// AtmSelection is the resolved tradable option contract
type AtmSelection struct {
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
	LotSize  int    `json:"lot_size"`
}

// TradePlan is an entry order plus its protective prices
type TradePlan struct {
	Entry         orders.Request `json:"entry"`
	StopLossPrice float64        `json:"stop_loss_price"`
	TargetPrice   *float64       `json:"target_price,omitempty"`
}
