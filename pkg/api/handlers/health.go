package handlers

import (
	"net/http"
	"time"

	"github.com/termgate/termgate/pkg/store"
)

// HealthHandler reports process liveness and database reachability.
type HealthHandler struct {
	store     *store.GORMStore
	startedAt time.Time
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(s *store.GORMStore) *HealthHandler {
	return &HealthHandler{store: s, startedAt: time.Now()}
}

// HealthResponse is the body for GET /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Uptime    float64   `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database"`
}

// Health handles GET /health.
// Always answers 200 while the process is up; a failing database ping is
// reported in the body rather than by status code, so load balancers keep
// routing while the store recovers.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	dbStatus := "ok"
	if h.store != nil {
		if err := h.store.Ping(); err != nil {
			dbStatus = "unreachable"
		}
	}

	WriteData(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Uptime:    time.Since(h.startedAt).Seconds(),
		Timestamp: time.Now().UTC(),
		Database:  dbStatus,
	})
}
