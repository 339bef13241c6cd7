package handler

import (
	"net/http"
	"time"
)

// StatusInfo is the static deployment information reported to clients.
type StatusInfo struct {
	ChainID          int64     `json:"chain_id"`
	Exchange         string    `json:"exchange"`
	EscrowContract   string    `json:"escrow_contract,omitempty"`
	FeeBps           int64     `json:"fee_bps"`
	ReferrerShareBps int64     `json:"referrer_share_bps"`
	PerformanceBps   int64     `json:"performance_bps"`
	StartedAt        time.Time `json:"started_at"`
}

// StatusHandler serves the deployment status.
type StatusHandler struct {
	info StatusInfo
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(info StatusInfo) *StatusHandler {
	return &StatusHandler{info: info}
}

// GetStatus responds with the chain, contracts and fee schedule in use.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         h.info,
		"uptime_seconds": int64(time.Since(h.info.StartedAt).Seconds()),
	})
}
