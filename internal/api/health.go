package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/classlens/cl-engine/internal/database"
	"github.com/classlens/cl-engine/internal/mqttclient"
)

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
	Queue         *QueueStatsData   `json:"analysis_queue,omitempty"`
}

type HealthHandler struct {
	db        *database.DB
	mqtt      *mqttclient.Client
	live      LiveDataSource
	analyze   bool // analysis backend configured
	score     bool // scoring backend configured
	version   string
	startTime time.Time
}

func NewHealthHandler(db *database.DB, mqtt *mqttclient.Client, live LiveDataSource, analyzeEnabled, scoreEnabled bool, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		db:        db,
		mqtt:      mqtt,
		live:      live,
		analyze:   analyzeEnabled,
		score:     scoreEnabled,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	// Database check
	if err := h.db.HealthCheck(r.Context()); err != nil {
		checks["database"] = "error"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	// MQTT check
	if h.mqtt != nil {
		if h.mqtt.IsConnected() {
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

	// File watcher check
	if h.live != nil {
		if ws := h.live.WatcherStatus(); ws != nil {
			checks["file_watcher"] = ws.Status
		} else {
			checks["file_watcher"] = "not_configured"
		}
	}

	if h.analyze {
		checks["analysis"] = "ok"
	} else {
		checks["analysis"] = "not_configured"
	}
	if h.score {
		checks["scoring"] = "ok"
	} else {
		checks["scoring"] = "not_configured"
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	}
	if h.live != nil && h.analyze {
		qs := h.live.QueueStats()
		resp.Queue = &qs
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(resp)
}
