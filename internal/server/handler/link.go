package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/walletlink/internal/domain"
	"github.com/alanyoungcy/walletlink/internal/service"
)

// LinkService defines the methods the link handler requires from the service
// layer.
type LinkService interface {
	Link(ctx context.Context, req service.LinkRequest) (service.LinkResult, error)
	Account(ctx context.Context, userID string) (service.AccountView, error)
}

// LinkHandler serves wallet linking endpoints.
type LinkHandler struct {
	links  LinkService
	logger *slog.Logger
}

// NewLinkHandler creates a LinkHandler.
func NewLinkHandler(links LinkService, logger *slog.Logger) *LinkHandler {
	return &LinkHandler{links: links, logger: logHandler(logger, "link")}
}

// LinkDirect links a wallet that funds its own orders.
// POST /api/link/direct
func (h *LinkHandler) LinkDirect(w http.ResponseWriter, r *http.Request) {
	h.link(w, r, domain.TopologyDirect)
}

// LinkSmartAccount links a wallet through the Safe it owns.
// POST /api/link/smart-account
func (h *LinkHandler) LinkSmartAccount(w http.ResponseWriter, r *http.Request) {
	h.link(w, r, domain.TopologySmartAccount)
}

func (h *LinkHandler) link(w http.ResponseWriter, r *http.Request, topology domain.Topology) {
	var req service.LinkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	req.Topology = topology

	res, err := h.links.Link(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, "link", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetAccount returns a linked account without its secrets.
// GET /api/accounts/{userID}
func (h *LinkHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing user id")
		return
	}
	view, err := h.links.Account(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.logger, "get account", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
