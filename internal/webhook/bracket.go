package webhook

import (
	"github.com/Rajchodisetti/intraday-executor/internal/orders"
	"github.com/Rajchodisetti/intraday-executor/internal/strategy"
)

// BuildStopLoss builds the opposing-side SL-M order protecting plan's entry
func BuildStopLoss(plan strategy.TradePlan) orders.Request {
	return orders.Request{
		Symbol:      plan.Entry.Symbol,
		Exchange:    plan.Entry.Exchange,
		Side:        orders.OppositeSide(plan.Entry.Side),
		Quantity:    plan.Entry.Quantity,
		OrderType:   orders.TypeStopLossM,
		ProductType: plan.Entry.ProductType,
		Price:       orders.Float(plan.StopLossPrice),
		Tag:         orders.TagStopLoss,
	}
}

// BuildTarget builds the opposing-side limit order at plan's target.
// ok is false when the plan has no target.
func BuildTarget(plan strategy.TradePlan) (req orders.Request, ok bool) {
	if plan.TargetPrice == nil {
		return orders.Request{}, false
	}
	return orders.Request{
		Symbol:      plan.Entry.Symbol,
		Exchange:    plan.Entry.Exchange,
		Side:        orders.OppositeSide(plan.Entry.Side),
		Quantity:    plan.Entry.Quantity,
		OrderType:   orders.TypeLimit,
		ProductType: plan.Entry.ProductType,
		Price:       orders.Float(*plan.TargetPrice),
		Tag:         orders.TagTarget,
	}, true
}
