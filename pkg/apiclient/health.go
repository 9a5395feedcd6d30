package apiclient

import (
	"context"
	"time"
)

// Health is the body of GET /health.
type Health struct {
	Status    string     `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
	Data      HealthData `json:"data"`
}

// HealthData carries the daemon's liveness details.
type HealthData struct {
	Service   string    `json:"service"`
	StartedAt time.Time `json:"started_at"`
	Uptime    string    `json:"uptime"`
	UptimeSec int64     `json:"uptime_sec"`
	Sessions  int       `json:"sessions"`
}

// UptimeDuration returns the reported uptime.
func (h *Health) UptimeDuration() time.Duration {
	return time.Duration(h.Data.UptimeSec) * time.Second
}

// Health fetches the unauthenticated liveness report.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var resp Health
	if err := c.get(ctx, "/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
