package orders_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rajchodisetti/intraday-executor/internal/control"
	"github.com/Rajchodisetti/intraday-executor/internal/journal"
	"github.com/Rajchodisetti/intraday-executor/internal/orders"
	"github.com/Rajchodisetti/intraday-executor/internal/portfolio"
	"github.com/Rajchodisetti/intraday-executor/internal/risk"
)

type fakeBroker struct {
	mu       sync.Mutex
	payloads []map[string]any
	resp     map[string]any
	err      error
}

func (f *fakeBroker) SubmitOrder(ctx context.Context, payload map[string]any) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return f.resp, f.err
}

func (f *fakeBroker) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

type harness struct {
	gate        *control.Gate
	accountant  *risk.Accountant
	positions   *portfolio.Store
	broker      *fakeBroker
	journalPath string
	exec        *orders.Executor
}

func newHarness(t *testing.T, mode string, maxTrades int) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		gate:        control.NewGate(filepath.Join(dir, "trading.json")),
		positions:   portfolio.NewStore(filepath.Join(dir, "positions.json")),
		broker:      &fakeBroker{resp: map[string]any{"order_id": "B-1", "status": "TRANSIT"}},
		journalPath: filepath.Join(dir, "orders.jsonl"),
	}
	h.accountant = risk.NewAccountant(risk.Limits{MaxTradesPerDay: maxTrades, MaxDailyLoss: 5000, RiskPerTradePct: 1}, filepath.Join(dir, "risk.json"), h.positions, nil)
	sink, err := journal.NewFileSink(h.journalPath)
	require.NoError(t, err)
	h.exec = orders.NewExecutor(h.gate, h.accountant, h.broker, sink, mode)
	return h
}

func entryRequest(symbol string) orders.Request {
	return orders.Request{
		Symbol: symbol, Exchange: "NFO", Side: orders.SideBuy, Quantity: 50,
		OrderType: orders.TypeMarket, ProductType: "INTRADAY", ReferencePrice: orders.Float(22000),
	}
}

func stopLossRequest(symbol string) orders.Request {
	return orders.Request{
		Symbol: symbol, Exchange: "NFO", Side: orders.SideSell, Quantity: 50,
		OrderType: orders.TypeStopLossM, ProductType: "INTRADAY", Price: orders.Float(21985), Tag: orders.TagStopLoss,
	}
}

func TestPlaceOrder_LiveSubmitsAndRecords(t *testing.T) {
	h := newHarness(t, orders.ModeLive, 5)

	res, err := h.exec.PlaceOrder(context.Background(), entryRequest("NIFTY26FEB22000CE"))
	require.NoError(t, err)
	assert.True(t, res.Placed)
	assert.Equal(t, "B-1", res.Response["order_id"])
	require.Equal(t, 1, h.broker.Calls())
	assert.Nil(t, h.broker.payloads[0]["price"])
	assert.NotContains(t, h.broker.payloads[0], "reference_price")

	st, err := h.accountant.Status()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Trades)

	entries, err := journal.ReadFile(h.journalPath)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, journal.OutcomePlaced, entries[0].Outcome)
}

func TestPlaceOrder_PaperIsDeterministicAndOffline(t *testing.T) {
	h := newHarness(t, orders.ModePaper, 5)
	req := entryRequest("NIFTY26FEB22000CE")

	first, err := h.exec.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	require.True(t, first.Placed)
	assert.Zero(t, h.broker.Calls())
	assert.Equal(t, "NIFTY26FEB22000CE", first.Response["symbol"])
	assert.Equal(t, 50, first.Response["quantity"])
	assert.Equal(t, "ACCEPTED", first.Response["status"])
	assert.NotEmpty(t, first.Response["order_id"])

	h2 := newHarness(t, orders.ModePaper, 5)
	second, err := h2.exec.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.Response, second.Response)
}

func TestPlaceOrder_DisabledGateIsNoop(t *testing.T) {
	h := newHarness(t, orders.ModeLive, 5)
	_, err := h.gate.Disable("manual")
	require.NoError(t, err)

	res, err := h.exec.PlaceOrder(context.Background(), entryRequest("X"))
	require.NoError(t, err)
	assert.False(t, res.Placed)
	assert.Equal(t, orders.ReasonTradingDisabled, res.Reason)
	assert.Zero(t, h.broker.Calls())

	st, err := h.accountant.Status()
	require.NoError(t, err)
	assert.Zero(t, st.Trades, "no-op orders are not recorded")

	_, err = h.gate.Enable("resume")
	require.NoError(t, err)
	res, err = h.exec.PlaceOrder(context.Background(), entryRequest("X"))
	require.NoError(t, err)
	assert.True(t, res.Placed)
}

func TestPlaceOrder_GateBypassTags(t *testing.T) {
	tests := []struct {
		tag        orders.Tag
		wantPlaced bool
	}{
		{orders.TagStopLoss, true},
		{orders.TagTarget, true},
		{orders.TagExit, true},
		{orders.TagNone, false},
	}
	for _, tt := range tests {
		t.Run(tt.tag.String(), func(t *testing.T) {
			h := newHarness(t, orders.ModeLive, 5)
			_, err := h.gate.Disable("halt")
			require.NoError(t, err)

			req := entryRequest("X")
			req.Tag = tt.tag
			res, err := h.exec.PlaceOrder(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPlaced, res.Placed)
		})
	}
}

func TestPlaceOrder_RiskRejectionIsNoop(t *testing.T) {
	h := newHarness(t, orders.ModeLive, 1)

	_, err := h.exec.PlaceOrder(context.Background(), entryRequest("A"))
	require.NoError(t, err)

	res, err := h.exec.PlaceOrder(context.Background(), entryRequest("B"))
	require.NoError(t, err)
	assert.False(t, res.Placed)
	assert.Equal(t, orders.ReasonRiskRejected, res.Reason)
	assert.Equal(t, 1, h.broker.Calls())

	entries, err := journal.ReadFile(h.journalPath)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, journal.OutcomeNoop, entries[1].Outcome)
	assert.Equal(t, orders.ReasonRiskRejected, entries[1].Reason)
}

func TestPlaceOrder_MaxTradesStillAllowsStopLoss(t *testing.T) {
	h := newHarness(t, orders.ModeLive, 1)
	require.NoError(t, h.positions.Replace([]portfolio.Position{{Symbol: "NIFTY26FEB22000CE", Quantity: 50, Status: "OPEN"}}))

	_, err := h.exec.PlaceOrder(context.Background(), entryRequest("OTHER"))
	require.NoError(t, err)

	res, err := h.exec.PlaceOrder(context.Background(), entryRequest("NEW"))
	require.NoError(t, err)
	assert.False(t, res.Placed)

	res, err = h.exec.PlaceStopLoss(context.Background(), stopLossRequest("NIFTY26FEB22000CE"))
	require.NoError(t, err)
	assert.True(t, res.Placed)

	st, err := h.accountant.Status()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Trades, "stop loss does not consume the trade budget")
}

func TestPlaceOrder_BrokerFailurePropagates(t *testing.T) {
	h := newHarness(t, orders.ModeLive, 5)
	h.broker.err = errors.New("connection reset")

	_, err := h.exec.PlaceOrder(context.Background(), entryRequest("X"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 1, h.broker.Calls(), "no internal retry")

	st, err := h.accountant.Status()
	require.NoError(t, err)
	assert.Zero(t, st.Trades)

	entries, err := journal.ReadFile(h.journalPath)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, journal.OutcomeFailed, entries[0].Outcome)
}

func TestPlaceOrder_PnlFromBrokerCountsAsLoss(t *testing.T) {
	h := newHarness(t, orders.ModeLive, 5)
	h.broker.resp = map[string]any{"order_id": "B-2", "pnl": -120.0}

	_, err := h.exec.PlaceOrder(context.Background(), entryRequest("X"))
	require.NoError(t, err)

	st, err := h.accountant.Status()
	require.NoError(t, err)
	assert.Equal(t, 120.0, st.DailyLoss)
}

func TestPlaceStopLoss_RequiresTag(t *testing.T) {
	h := newHarness(t, orders.ModeLive, 5)

	for _, tag := range []orders.Tag{orders.TagNone, orders.TagTarget, orders.TagExit} {
		req := stopLossRequest("X")
		req.Tag = tag
		_, err := h.exec.PlaceStopLoss(context.Background(), req)
		assert.True(t, errors.Is(err, orders.ErrInvalidArgument), "tag %s", tag)
	}
	assert.Zero(t, h.broker.Calls())
}

func TestPlaceOrder_ConcurrentEntriesAllRecorded(t *testing.T) {
	h := newHarness(t, orders.ModePaper, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := entryRequest("SYM")
			req.Quantity = i + 1
			_, err := h.exec.PlaceOrder(context.Background(), req)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	st, err := h.accountant.Status()
	require.NoError(t, err)
	assert.Equal(t, 20, st.Trades)
}

func TestPlaceOrder_ConcurrentEntriesRespectMaxTrades(t *testing.T) {
	const maxTrades = 2
	h := newHarness(t, orders.ModePaper, maxTrades)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		placed int
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := h.exec.PlaceOrder(context.Background(), entryRequest(fmt.Sprintf("SYM%d", i)))
			assert.NoError(t, err)
			if res.Placed {
				mu.Lock()
				placed++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, maxTrades, placed)
	st, err := h.accountant.Status()
	require.NoError(t, err)
	assert.Equal(t, maxTrades, st.Trades)
}

func TestPlaceOrder_BrokerFailureFreesTradeSlot(t *testing.T) {
	h := newHarness(t, orders.ModeLive, 1)
	h.broker.err = errors.New("gateway timeout")

	_, err := h.exec.PlaceOrder(context.Background(), entryRequest("A"))
	require.Error(t, err)

	h.broker.err = nil
	res, err := h.exec.PlaceOrder(context.Background(), entryRequest("B"))
	require.NoError(t, err)
	assert.True(t, res.Placed, "failed submission must not consume the only trade of the day")

	st, err := h.accountant.Status()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Trades)
}
