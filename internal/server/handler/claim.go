package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/walletlink/internal/backend"
	"github.com/alanyoungcy/walletlink/internal/service"
)

// ClaimService defines the methods the claim handler requires from the
// service layer.
type ClaimService interface {
	Claim(ctx context.Context, in service.ClaimInput) (backend.ClaimResult, error)
}

// ClaimHandler serves the winnings claim endpoint.
type ClaimHandler struct {
	claims ClaimService
	logger *slog.Logger
}

// NewClaimHandler creates a ClaimHandler.
func NewClaimHandler(claims ClaimService, logger *slog.Logger) *ClaimHandler {
	return &ClaimHandler{claims: claims, logger: logHandler(logger, "claim")}
}

// Claim redeems a resolved position. A failed claim still returns the
// backend's result body alongside the error.
// POST /api/claims
func (h *ClaimHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var in service.ClaimInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.claims.Claim(r.Context(), in)
	if err != nil {
		if res.Status == backend.ClaimFailed {
			h.logger.WarnContext(r.Context(), "handler: claim failed", slog.String("error", err.Error()))
			writeJSON(w, statusFor(err), map[string]any{"error": err.Error(), "result": res})
			return
		}
		writeServiceError(w, r, h.logger, "claim", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
