package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Rajchodisetti/intraday-executor/internal/broker"
	"github.com/Rajchodisetti/intraday-executor/internal/control"
	"github.com/Rajchodisetti/intraday-executor/internal/observ"
	"github.com/Rajchodisetti/intraday-executor/internal/risk"
	"github.com/Rajchodisetti/intraday-executor/internal/strategy"
)

const maxBodyBytes = 64 << 10

// TradingControl is the admin surface of the kill switch
type TradingControl interface {
	Status() (control.State, error)
	Enable(reason string) (control.State, error)
	Disable(reason string) (control.State, error)
}

// RiskStatus exposes today's risk counters
type RiskStatus interface {
	Status() (risk.State, error)
}

// Server routes the HTTP surface of the executor.
type Server struct {
	intake  *Intake
	control TradingControl
	risk    RiskStatus
	health  func() map[string]any
}

func NewServer(intake *Intake, ctl TradingControl, rs RiskStatus, health func() map[string]any) *Server {
	return &Server{intake: intake, control: ctl, risk: rs, health: health}
}

// Handler returns the mux for all endpoints
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /signal", s.handleSignal)
	mux.HandleFunc("GET /control/status", s.handleControlStatus)
	mux.HandleFunc("POST /control/enable", s.handleControlSet(true))
	mux.HandleFunc("POST /control/disable", s.handleControlSet(false))
	mux.HandleFunc("GET /risk/status", s.handleRiskStatus)
	mux.Handle("GET /health", observ.HealthHandler(s.health))
	mux.Handle("GET /metrics", observ.Handler())
	return mux
}

type errorBody struct {
	Detail string `json:"detail"`
}

type partialBody struct {
	Detail string `json:"detail"`
	Outcome
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := uuid.NewString()
	w.Header().Set("X-Request-ID", requestID)

	var sig strategy.Signal
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sig); err != nil {
		s.reject(w, requestID, "invalid", http.StatusBadRequest, "invalid payload: "+err.Error())
		return
	}
	if dec.More() {
		s.reject(w, requestID, "invalid", http.StatusBadRequest, "invalid payload: trailing data")
		return
	}

	out, err := s.intake.Handle(r.Context(), sig)
	observ.Observe("signal_handle_ms", float64(time.Since(start).Milliseconds()), nil)
	if err == nil {
		observ.IncCounter("signals_total", map[string]string{"outcome": "executed"})
		writeJSON(w, http.StatusOK, out)
		return
	}

	var be *broker.Error
	switch {
	case errors.Is(err, ErrInvalidPayload):
		s.reject(w, requestID, "invalid", http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrStaleSignal):
		s.reject(w, requestID, "stale", http.StatusBadRequest, "stale signal")
	case errors.Is(err, strategy.ErrUnknownStrategy):
		s.reject(w, requestID, "unknown_strategy", http.StatusBadRequest, "unknown strategy")
	case errors.Is(err, strategy.ErrNotImplemented):
		s.reject(w, requestID, "not_implemented", http.StatusBadRequest, "strategy not implemented")
	case errors.Is(err, strategy.ErrLookup), errors.Is(err, strategy.ErrConfig):
		s.reject(w, requestID, "lookup_failed", http.StatusBadRequest, "instrument lookup failed")
	case errors.Is(err, ErrRejected):
		s.reject(w, requestID, "rejected", http.StatusBadRequest, "risk/gate rejected")
	case errors.Is(err, ErrIncompleteBracket):
		observ.IncCounter("signals_total", map[string]string{"outcome": "incomplete"})
		observ.Error("signal_incomplete", map[string]any{"request_id": requestID, "error": err.Error()})
		writeJSON(w, http.StatusBadGateway, partialBody{Detail: err.Error(), Outcome: out})
	case errors.As(err, &be):
		s.reject(w, requestID, "broker_error", http.StatusBadGateway, "broker error: "+be.Message)
	default:
		observ.Error("signal_failed", map[string]any{"request_id": requestID, "error": err.Error()})
		s.reject(w, requestID, "error", http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) reject(w http.ResponseWriter, requestID, outcome string, status int, detail string) {
	observ.IncCounter("signals_total", map[string]string{"outcome": outcome})
	observ.Log("signal_rejected", map[string]any{"request_id": requestID, "outcome": outcome, "status": status, "detail": detail})
	writeJSON(w, status, errorBody{Detail: detail})
}

func (s *Server) handleControlStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.control.Status()
	if err != nil {
		observ.Error("control_status_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, errorBody{Detail: "trading control unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleControlSet(enable bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Reason string `json:"reason"`
		}
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Detail: "failed to read body"})
			return
		}
		if len(strings.TrimSpace(string(raw))) > 0 {
			if err := json.Unmarshal(raw, &body); err != nil {
				writeJSON(w, http.StatusBadRequest, errorBody{Detail: "invalid payload: " + err.Error()})
				return
			}
		}

		var st control.State
		if enable {
			st, err = s.control.Enable(body.Reason)
		} else {
			st, err = s.control.Disable(body.Reason)
		}
		if err != nil {
			observ.Error("control_update_failed", map[string]any{"enable": enable, "error": err.Error()})
			writeJSON(w, http.StatusInternalServerError, errorBody{Detail: "trading control unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func (s *Server) handleRiskStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.risk.Status()
	if err != nil {
		observ.Error("risk_status_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, errorBody{Detail: "risk state unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, st)
}
