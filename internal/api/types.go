package api

import "wifirtt/internal/model"

// Route paths served by the measurement server.
const (
	PathScan     = "/api/scan"
	PathRTT      = "/api/rtt/"
	PathARP      = "/api/arp"
	PathSnapshot = "/api/snapshot"
	PathHealth   = "/healthz"
	PathWatch    = "/ws"
)

// HealthResponse reports the live broadcast session.
type HealthResponse struct {
	Status  string `json:"status"`
	State   string `json:"state"`
	Viewers int    `json:"viewers"`
}

// StreamMessage is one frame of the viewer stream: either a snapshot or an
// error payload.
type StreamMessage struct {
	Snapshot *model.Snapshot
	Err      string
}
