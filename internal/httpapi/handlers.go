package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/campuslink/presence/internal/logging"
	"github.com/campuslink/presence/pkg/domain"
)

type handlers struct {
	hub    domain.Hub
	logger *logging.Logger
}

type offlineRequest struct {
	UserID string `json:"userId"`
}

// offline is the logout hook: the web layer calls it to mark a user offline
// by id without going through the wire protocol. Shares the offline code path
// with the protocol handler.
func (h *handlers) offline(w http.ResponseWriter, r *http.Request) {
	var req offlineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	if req.UserID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}

	if err := h.hub.SetOffline(r.Context(), req.UserID); err != nil {
		logging.FromContext(r.Context()).Error("failed to set user offline", "user_id", req.UserID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.hub.Stats()); err != nil {
		h.logger.Error("failed to encode stats", "error", err)
	}
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
