package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/voicecoach/voicecoach/internal/inbox"
)

type HealthResponse struct {
	Status           string            `json:"status"`
	Version          string            `json:"version"`
	UptimeSeconds    int64             `json:"uptime_seconds"`
	Checks           map[string]string `json:"checks"`
	AnalysesInFlight int               `json:"analyses_in_flight"`
	Inbox            *inbox.Status     `json:"inbox,omitempty"`
}

// DBChecker is implemented by database.DB.
type DBChecker interface {
	HealthCheck(ctx context.Context) error
}

// ConnChecker is implemented by events.MQTTSink.
type ConnChecker interface {
	IsConnected() bool
}

// InboxStatus is implemented by inbox.Watcher.
type InboxStatus interface {
	Status() inbox.Status
}

// InFlighter is implemented by analyzer.Pipeline.
type InFlighter interface {
	InFlight() int
}

// HealthDeps lists the components the health check reports on. Nil fields
// are reported as not configured.
type HealthDeps struct {
	DB        DBChecker
	AudioType string
	MQTT      ConnChecker
	Inbox     InboxStatus
	Analyzer  InFlighter
}

type HealthHandler struct {
	deps      HealthDeps
	version   string
	startTime time.Time
}

func NewHealthHandler(deps HealthDeps, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{deps: deps, version: version, startTime: startTime}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	// Metadata store check
	if h.deps.DB != nil {
		if err := h.deps.DB.HealthCheck(r.Context()); err != nil {
			checks["store"] = "error"
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["store"] = "ok"
		}
	} else {
		checks["store"] = "file"
	}

	if h.deps.AudioType != "" {
		checks["audio"] = h.deps.AudioType
	}

	// MQTT check
	if h.deps.MQTT != nil {
		if h.deps.MQTT.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
			if status == "healthy" {
				status = "degraded"
			}
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	}

	if h.deps.Inbox != nil {
		s := h.deps.Inbox.Status()
		checks["inbox"] = s.Status
		resp.Inbox = &s
	} else {
		checks["inbox"] = "not_configured"
	}

	if h.deps.Analyzer != nil {
		resp.AnalysesInFlight = h.deps.Analyzer.InFlight()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(resp)
}
