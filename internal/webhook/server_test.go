package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rajchodisetti/intraday-executor/internal/broker"
	"github.com/Rajchodisetti/intraday-executor/internal/control"
	"github.com/Rajchodisetti/intraday-executor/internal/orders"
	"github.com/Rajchodisetti/intraday-executor/internal/portfolio"
	"github.com/Rajchodisetti/intraday-executor/internal/risk"
	"github.com/Rajchodisetti/intraday-executor/internal/strategy"
)

type failingBroker struct{}

func (failingBroker) SubmitOrder(ctx context.Context, payload map[string]any) (map[string]any, error) {
	return nil, broker.NewStatusError("orders", http.StatusServiceUnavailable, "maintenance")
}

type stack struct {
	gate       *control.Gate
	accountant *risk.Accountant
	server     *httptest.Server
}

func newStack(t *testing.T, mode string, submitter orders.Submitter) *stack {
	t.Helper()
	dir := t.TempDir()
	today := time.Now().UTC().Format("2006-01-02")

	universe := []broker.Instrument{
		{Symbol: "NIFTY", Expiry: today, Strike: 22000, OptionType: "CE", TradingSymbol: "NIFTY22000CE", LotSize: 50},
		{Symbol: "NIFTY", Expiry: today, Strike: 22000, OptionType: "PE", TradingSymbol: "NIFTY22000PE", LotSize: 50},
	}
	selector := strategy.NewAtmSelector(universe, map[string]float64{"NIFTY": 50}, "NFO", nil)
	router := strategy.NewRouter([]string{"SCALP_ATM", "BREAKOUT"}, &strategy.ScalpAtm{
		Selector: selector,
		Logic:    strategy.ScalpingLogic{SLPoints: 15, TargetPoints: fp(30)},
	})

	s := &stack{gate: control.NewGate(filepath.Join(dir, "trading.json"))}
	positions := portfolio.NewStore(filepath.Join(dir, "positions.json"))
	s.accountant = risk.NewAccountant(risk.Limits{MaxTradesPerDay: 5, MaxDailyLoss: 1000, RiskPerTradePct: 1}, filepath.Join(dir, "risk.json"), positions, nil)
	exec := orders.NewExecutor(s.gate, s.accountant, submitter, nil, mode)
	intake := NewIntake(router, exec, Options{TTL: 30 * time.Second, Mode: mode})

	srv := NewServer(intake, s.gate, s.accountant, func() map[string]any { return map[string]any{"mode": mode} })
	s.server = httptest.NewServer(srv.Handler())
	t.Cleanup(s.server.Close)
	return s
}

func (s *stack) post(t *testing.T, path, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(s.server.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (s *stack) get(t *testing.T, path string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(s.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func signalBody(strategyName string, age time.Duration) string {
	b, _ := json.Marshal(map[string]any{
		"strategy":  strategyName,
		"symbol":    "NIFTY",
		"side":      "BUY",
		"timeframe": "1m",
		"price":     22010,
		"timestamp": time.Now().UTC().Add(-age).Format(time.RFC3339),
	})
	return string(b)
}

func TestServer_SignalSuccess(t *testing.T) {
	s := newStack(t, orders.ModePaper, nil)

	status, body := s.post(t, "/signal", signalBody("SCALP_ATM", time.Second))
	require.Equal(t, http.StatusOK, status, body)

	entry := body["entry"].(map[string]any)
	assert.Equal(t, "NIFTY22000CE", entry["symbol"])
	assert.Equal(t, "BUY", entry["side"])
	stop := body["stop_loss"].(map[string]any)
	assert.Equal(t, "SELL", stop["side"])
	assert.Equal(t, 21995.0, stop["price"])
	target := body["target"].(map[string]any)
	assert.Equal(t, 22040.0, target["price"])

	status, st := s.get(t, "/risk/status")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1.0, st["trades"])
}

func TestServer_SignalClientErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		detail string
	}{
		{"extra field", `{"strategy":"SCALP_ATM","symbol":"NIFTY","side":"BUY","timeframe":"1m","price":1,"timestamp":"2026-02-19T04:00:00Z","qty":5}`, "invalid payload"},
		{"malformed json", `{"strategy":`, "invalid payload"},
		{"missing timeframe", strings.Replace(signalBody("SCALP_ATM", 0), `"timeframe":"1m",`, "", 1), "invalid payload"},
		{"stale", signalBody("SCALP_ATM", 60*time.Second), "stale signal"},
		{"unknown strategy", signalBody("MEAN_REVERT", 0), "unknown strategy"},
		{"not implemented", signalBody("BREAKOUT", 0), "strategy not implemented"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStack(t, orders.ModePaper, nil)
			status, body := s.post(t, "/signal", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.True(t, strings.HasPrefix(body["detail"].(string), tt.detail), "detail %v", body["detail"])

			_, st := s.get(t, "/risk/status")
			assert.Equal(t, 0.0, st["trades"])
		})
	}
}

func TestServer_LookupFailure(t *testing.T) {
	s := newStack(t, orders.ModePaper, nil)
	body := strings.Replace(signalBody("SCALP_ATM", 0), `"price":22010`, `"price":23010`, 1)

	status, out := s.post(t, "/signal", body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "instrument lookup failed", out["detail"])
}

func TestServer_ControlDisableBlocksSignals(t *testing.T) {
	s := newStack(t, orders.ModePaper, nil)

	status, st := s.post(t, "/control/disable", `{"reason":"news event"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, st["enabled"])

	status, st = s.get(t, "/control/status")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, st["enabled"])
	assert.Equal(t, "news event", st["reason"])

	status, body := s.post(t, "/signal", signalBody("SCALP_ATM", 0))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "risk/gate rejected", body["detail"])

	status, _ = s.post(t, "/control/enable", "")
	require.Equal(t, http.StatusOK, status)
	status, _ = s.post(t, "/signal", signalBody("SCALP_ATM", 0))
	assert.Equal(t, http.StatusOK, status)
}

func TestServer_BrokerFailureIs502(t *testing.T) {
	s := newStack(t, orders.ModeLive, failingBroker{})

	status, body := s.post(t, "/signal", signalBody("SCALP_ATM", 0))
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Contains(t, body["detail"], "broker error")
}

func TestServer_HealthAndMetrics(t *testing.T) {
	s := newStack(t, orders.ModePaper, nil)

	status, body := s.get(t, "/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])

	resp, err := http.Get(s.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_WrongMethod(t *testing.T) {
	s := newStack(t, orders.ModePaper, nil)
	resp, err := http.Get(s.server.URL + "/signal")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
