package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Rajchodisetti/intraday-executor/internal/orders"
)

// RiskGate represents one entry-risk control
type RiskGate interface {
	Name() string
	Evaluate(req orders.Request, st State) (bool, string, error)
	Priority() int // Lower number = higher priority
}

// OpenPositions reports whether a symbol already carries exposure
type OpenPositions interface {
	HasOpenPosition(symbol string) (bool, error)
}

// Built-in risk gates

// TradeCountGate blocks entries once the daily trade budget is spent
type TradeCountGate struct {
	MaxTradesPerDay int
}

func (g *TradeCountGate) Name() string  { return "max_trades_per_day" }
func (g *TradeCountGate) Priority() int { return 1 }

func (g *TradeCountGate) Evaluate(req orders.Request, st State) (bool, string, error) {
	if st.Trades >= g.MaxTradesPerDay {
		return false, fmt.Sprintf("trades %d >= max %d", st.Trades, g.MaxTradesPerDay), nil
	}
	return true, "", nil
}

// DailyLossGate blocks entries once realized loss reaches the daily cap
type DailyLossGate struct {
	MaxDailyLoss float64
}

func (g *DailyLossGate) Name() string  { return "max_daily_loss" }
func (g *DailyLossGate) Priority() int { return 2 }

func (g *DailyLossGate) Evaluate(req orders.Request, st State) (bool, string, error) {
	if st.DailyLoss >= g.MaxDailyLoss {
		return false, fmt.Sprintf("daily loss %.2f >= max %.2f", st.DailyLoss, g.MaxDailyLoss), nil
	}
	return true, "", nil
}

// NotionalGate caps reference_price*quantity at capital*risk_pct/100.
// Orders without any price pass.
type NotionalGate struct {
	Capital         decimal.Decimal
	RiskPerTradePct decimal.Decimal
}

func (g *NotionalGate) Name() string  { return "risk_per_trade" }
func (g *NotionalGate) Priority() int { return 3 }

func (g *NotionalGate) Evaluate(req orders.Request, st State) (bool, string, error) {
	price, ok := req.SizingPrice()
	if !ok {
		return true, "", nil
	}
	allowed := g.Capital.Mul(g.RiskPerTradePct).Div(decimal.NewFromInt(100))
	notional := decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(req.Quantity)))
	if notional.GreaterThan(allowed) {
		return false, fmt.Sprintf("notional %s > allowed %s", notional.StringFixed(2), allowed.StringFixed(2)), nil
	}
	return true, "", nil
}

// OpenPositionGate blocks a second entry into a symbol that is still open
type OpenPositionGate struct {
	Positions OpenPositions
}

func (g *OpenPositionGate) Name() string  { return "open_position" }
func (g *OpenPositionGate) Priority() int { return 4 }

func (g *OpenPositionGate) Evaluate(req orders.Request, st State) (bool, string, error) {
	open, err := g.Positions.HasOpenPosition(req.Symbol)
	if err != nil {
		return false, "", fmt.Errorf("read positions: %w", err)
	}
	if open {
		return false, "open position exists for " + req.Symbol, nil
	}
	return true, "", nil
}
