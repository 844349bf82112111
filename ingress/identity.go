package ingress

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	gerrors "github.com/glyphmesh/glyphmesh/core/errors"
)

type registerAgentRequest struct {
	Name          string   `json:"name"`
	ServiceURL    string   `json:"serviceUrl,omitempty"`
	Protocols     []string `json:"protocols,omitempty"`
	WalletAddress string   `json:"walletAddress,omitempty"`
	Signature     string   `json:"signature,omitempty"`
}

// handleRegisterAgent implements POST /agents/register (spec.md §6.6): an
// unverified registration by name, optionally upgraded to wallet-linked when
// a wallet address (and signature, if a verifier is configured) is supplied.
func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req registerAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gerrors.New(gerrors.KindInvalidInput, "malformed request body"), nil)
		return
	}

	if req.WalletAddress != "" {
		agent, err := s.identity.RegisterWalletLinked(r.Context(), req.Name, req.WalletAddress, req.Signature)
		if err != nil {
			writeError(w, gerrors.Wrap(gerrors.KindInvalidInput, err), nil)
			return
		}
		writeJSON(w, http.StatusCreated, agent)
		return
	}

	agent, err := s.identity.RegisterUnverified(r.Context(), req.Name, req.ServiceURL, req.Protocols)
	if err != nil {
		writeError(w, gerrors.Wrap(gerrors.KindInvalidInput, err), nil)
		return
	}
	writeJSON(w, http.StatusCreated, agent)
}

// handleListAgents implements GET /agents (spec.md §6.2/§6.6): the
// Identity-registered roster, merged with derived knowledge activity stats
// by address.
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	limit, offset := clampPageParams(r.URL.Query())
	agents, err := s.identity.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, gerrors.Wrap(gerrors.KindStoreError, err), nil)
		return
	}
	stats := make(map[string]any, len(agents))
	for _, as := range s.knowledge.AgentStats() {
		stats[as.Address] = as
	}
	out := make([]map[string]any, 0, len(agents))
	for _, a := range agents {
		entry := map[string]any{
			"address": a.Address, "name": a.Name, "tier": a.Tier.String(),
			"registeredAt": a.RegisteredAt, "lastSeen": a.LastSeen,
		}
		if st, ok := stats[a.Address]; ok {
			entry["activity"] = st
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": out})
}

// handleGetAgent implements GET /agents/:address.
func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	agent, ok, err := s.identity.Lookup(r.Context(), address)
	if err != nil {
		writeError(w, gerrors.Wrap(gerrors.KindStoreError, err), nil)
		return
	}
	if !ok {
		writeError(w, gerrors.New(gerrors.KindNotRegistered, "agent not registered"), map[string]any{"address": address})
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

// handleVerifyAgent implements GET /agents/:address/verify: promotes the
// agent to on-chain tier once its wallet attestation verifies (spec.md
// §4.6). Absent an attestation verifier, the endpoint reports the agent's
// current tier without attempting promotion.
func (s *Server) handleVerifyAgent(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	agent, err := s.identity.PromoteOnChain(r.Context(), address)
	if err != nil {
		existing, ok, lookupErr := s.identity.Lookup(r.Context(), address)
		if lookupErr == nil && ok {
			writeJSON(w, http.StatusOK, map[string]any{"address": existing.Address, "tier": existing.Tier.String(), "verified": false, "reason": err.Error()})
			return
		}
		writeError(w, gerrors.New(gerrors.KindNotRegistered, "agent not registered"), map[string]any{"address": address})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"address": agent.Address, "tier": agent.Tier.String(), "verified": true})
}
