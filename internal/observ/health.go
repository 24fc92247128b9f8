package observ

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthStatus is the body served by HealthHandler
type HealthStatus struct {
	Status    string         `json:"status"`    // "healthy" or "degraded"
	Timestamp string         `json:"timestamp"` // ISO 8601
	Uptime    string         `json:"uptime"`
	Version   string         `json:"version"`
	Details   map[string]any `json:"details"`
}

var (
	startTime = time.Now()
	version   = "dev" // Set via build flags
)

// SetVersion sets the version string for health reports
func SetVersion(v string) {
	version = v
}

// HealthHandler reports process health. details is called per request; a
// "degraded" key set to true flips the status and answers 503.
func HealthHandler(details func() map[string]any) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := map[string]any{}
		if details != nil {
			d = details()
		}

		health := HealthStatus{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Uptime:    time.Since(startTime).String(),
			Version:   version,
			Details:   d,
		}
		statusCode := http.StatusOK
		if degraded, _ := d["degraded"].(bool); degraded {
			health.Status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(health)
	})
}
