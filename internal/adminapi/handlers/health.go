package handlers

import (
	"net/http"
	"time"

	"github.com/marmos91/smbconn/pkg/smbconn"
)

// Response is the health endpoint envelope.
type Response struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// HealthHandler handles GET /health. It is unauthenticated.
type HealthHandler struct {
	mgr       *smbconn.Manager
	startTime time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(mgr *smbconn.Manager) *HealthHandler {
	return &HealthHandler{mgr: mgr, startTime: time.Now()}
}

// Liveness reports uptime and the number of linked sessions.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)
	WriteJSONOK(w, Response{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Data: map[string]any{
			"service":    "smbconn",
			"started_at": h.startTime.UTC(),
			"uptime":     uptime.Round(time.Second).String(),
			"uptime_sec": int64(uptime.Seconds()),
			"sessions":   h.mgr.Len(),
		},
	})
}
