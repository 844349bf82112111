package ingress

import (
	"encoding/json"
	"net/http"

	gerrors "github.com/glyphmesh/glyphmesh/core/errors"
)

type adminBroadcastRequest struct {
	Kind    string         `json:"kind"`
	Payload map[string]any `json:"payload,omitempty"`
}

// handleAdminBroadcast implements the admin-only POST /stream/broadcast
// (spec.md §6.6): manual injection of an out-of-band event onto the live
// stream, used for operator announcements and maintenance windows.
func (s *Server) handleAdminBroadcast(w http.ResponseWriter, r *http.Request) {
	var req adminBroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gerrors.New(gerrors.KindInvalidInput, "malformed request body"), nil)
		return
	}
	if req.Kind == "" {
		writeError(w, gerrors.New(gerrors.KindInvalidInput, "kind is required"), nil)
		return
	}
	s.hub.Publish(req.Kind, req.Payload)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "subscribers": s.hub.Count()})
}
