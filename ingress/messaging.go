package ingress

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	gerrors "github.com/glyphmesh/glyphmesh/core/errors"
	"github.com/glyphmesh/glyphmesh/native/identity"
	"github.com/glyphmesh/glyphmesh/native/knowledge"
)

type sendRequest struct {
	Glyph     string         `json:"glyph"`
	Data      map[string]any `json:"data,omitempty"`
	Recipient string         `json:"recipient"`
	Sender    string         `json:"sender"`
	Encrypted bool           `json:"encrypted,omitempty"`
}

type sendResponse struct {
	Success     bool   `json:"success"`
	MessageHash string `json:"messageHash"`
	GlyphID     string `json:"glyphId"`
	Recipient   string `json:"recipient"`
	Timestamp   int64  `json:"timestamp"`
	RelayStatus string `json:"relayStatus,omitempty"`
}

const agoraRecipient = "agora"

// handleSend implements POST /send (spec.md §6.1). 2xx is returned whenever
// the primary commit succeeds; relay and broadcast failures are reported as
// non-fatal status fields rather than HTTP errors (spec.md §7).
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gerrors.New(gerrors.KindInvalidInput, "malformed request body"), nil)
		return
	}
	ctx := r.Context()

	if !s.vocab.Exists(req.Glyph) {
		if exists, err := s.governance.CompoundExists(ctx, req.Glyph); err != nil {
			writeError(w, err, nil)
			return
		} else if !exists {
			writeError(w, gerrors.New(gerrors.KindUnknownGlyph, "unknown glyph"), map[string]any{"glyph": req.Glyph})
			return
		}
		if err := s.governance.UseCompound(ctx, req.Glyph); err != nil {
			writeError(w, err, nil)
			return
		}
	}

	recipient := strings.TrimSpace(req.Recipient)
	senderAddress := req.Sender

	if recipient == agoraRecipient {
		if err := validateAgoraFields(req.Data, s.cfg.AgoraMaxFieldLen); err != nil {
			writeError(w, err, nil)
			return
		}
		agent, ok, err := s.resolveSender(ctx, req.Sender)
		if err != nil {
			writeError(w, gerrors.Wrap(gerrors.KindStoreError, err), nil)
			return
		}
		if !ok {
			writeError(w, gerrors.New(gerrors.KindNotRegistered, "sender must be a registered agent to post to agora"), nil)
			return
		}
		senderAddress = agent.Address
	}

	now := s.now()
	hash, err := knowledge.ComputeMessageHash(req.Glyph, req.Data, recipient, now)
	if err != nil {
		writeError(w, gerrors.Wrap(gerrors.KindStoreError, err), nil)
		return
	}

	msg := knowledge.Message{
		ID: uuid.NewString(), Glyph: req.Glyph, Sender: senderAddress, Recipient: recipient,
		Data: req.Data, Timestamp: now, MessageHash: hash, Encrypted: req.Encrypted,
	}
	if err := s.knowledge.Record(ctx, msg); err != nil {
		writeError(w, gerrors.Wrap(gerrors.KindStoreError, err), nil)
		return
	}
	s.metrics.RecordMessage(req.Glyph, req.Encrypted)

	if agent, ok, err := s.resolveSender(ctx, senderAddress); err == nil && ok {
		_ = s.identity.TouchLastSeen(ctx, agent.Address, now)
	}

	resp := sendResponse{Success: true, MessageHash: hash, GlyphID: req.Glyph, Recipient: recipient, Timestamp: now}

	switch {
	case recipient == agoraRecipient:
		s.hub.PublishMessage(req.Glyph, senderAddress, recipient, now, req.Data)
	case strings.HasPrefix(recipient, "http://") || strings.HasPrefix(recipient, "https://"):
		status, relayErr := s.relay.Relay(ctx, recipient, RelayPayload{Glyph: req.Glyph, Data: req.Data, Timestamp: now, MessageHash: hash})
		resp.RelayStatus = status
		if relayErr != nil || status == RelayStatusFailed {
			s.metrics.RecordRelayFailure("delivery")
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// validateAgoraFields enforces spec.md §6.1's "per-string-field length ≤
// 200" rule for messages posted to the agora channel.
func validateAgoraFields(data map[string]any, maxLen int) error {
	for k, v := range data {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if len(s) > maxLen {
			return gerrors.New(gerrors.KindInvalidInput, "field \""+k+"\" exceeds the agora max field length")
		}
	}
	return nil
}

// resolveSender looks up a registered agent by address, falling back to
// name (spec.md §3 Message: "sender (agent name or address)").
func (s *Server) resolveSender(ctx context.Context, addressOrName string) (identity.Agent, bool, error) {
	agent, ok, err := s.identity.Lookup(ctx, addressOrName)
	if err != nil {
		return identity.Agent{}, false, err
	}
	if ok {
		return agent, true, nil
	}
	return s.identity.LookupByName(ctx, addressOrName)
}
