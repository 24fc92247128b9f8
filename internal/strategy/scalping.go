package strategy

import (
	"math"

	"github.com/Rajchodisetti/intraday-executor/internal/orders"
)

// ScalpingLogic plans a market entry with fixed-point stop and target.
type ScalpingLogic struct {
	SLPoints     float64
	TargetPoints *float64 // no target order when nil
	ProductType  string
}

// BuildTrade builds the plan for signal on the selected contract.
// Protective prices are measured from the signal price and floored at 0.
func (l ScalpingLogic) BuildTrade(signal Signal, selection AtmSelection) TradePlan {
	product := l.ProductType
	if product == "" {
		product = "INTRADAY"
	}
	entry := orders.Request{
		Symbol:         selection.Symbol,
		Exchange:       selection.Exchange,
		Side:           signal.Side,
		Quantity:       selection.LotSize,
		OrderType:      orders.TypeMarket,
		ProductType:    product,
		ReferencePrice: orders.Float(signal.Price),
	}

	buy := signal.Side == orders.SideBuy
	plan := TradePlan{Entry: entry}
	if buy {
		plan.StopLossPrice = math.Max(signal.Price-l.SLPoints, 0)
	} else {
		plan.StopLossPrice = math.Max(signal.Price+l.SLPoints, 0)
	}

	if l.TargetPoints != nil {
		var target float64
		if buy {
			target = math.Max(signal.Price+*l.TargetPoints, 0)
		} else {
			target = math.Max(signal.Price-*l.TargetPoints, 0)
		}
		plan.TargetPrice = &target
	}
	return plan
}
