package ingress

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	gerrors "github.com/glyphmesh/glyphmesh/core/errors"
	"github.com/glyphmesh/glyphmesh/native/governance"
)

// handleListProposals implements GET /knowledge/proposals (spec.md §6.3).
// The optional ?status= filter matches governance.ProposalStatus values.
func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	limit, offset := clampPageParams(r.URL.Query())
	status := r.URL.Query().Get("status")
	proposals, err := s.store.ListProposals(r.Context(), status, limit, offset)
	if err != nil {
		writeError(w, gerrors.Wrap(gerrors.KindStoreError, err), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"proposals": proposals})
}

type proposeCompoundRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Components  []string `json:"components"`
	Proposer    string   `json:"proposer"`
}

// handleProposeCompound implements POST /knowledge/propose (spec.md §6.3):
// a compound-glyph proposal over ≥2 existing components.
func (s *Server) handleProposeCompound(w http.ResponseWriter, r *http.Request) {
	var req proposeCompoundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gerrors.New(gerrors.KindInvalidInput, "malformed request body"), nil)
		return
	}
	p, err := s.governance.CreateProposal(r.Context(), governance.ProposalCompound, governance.CreateProposalInput{
		Name: req.Name, Description: req.Description, Components: req.Components,
	}, req.Proposer)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

type proposeBaseGlyphRequest struct {
	Name        string                      `json:"name"`
	Description string                      `json:"description"`
	BaseGlyph   governance.BaseGlyphPayload `json:"baseGlyph"`
	Proposer    string                      `json:"proposer"`
}

// handleProposeBaseGlyph implements POST /knowledge/propose/base-glyph
// (spec.md §6.3): a foundational-glyph proposal over keywords/meaning/domain
// not already claimed by the installed vocabulary.
func (s *Server) handleProposeBaseGlyph(w http.ResponseWriter, r *http.Request) {
	var req proposeBaseGlyphRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gerrors.New(gerrors.KindInvalidInput, "malformed request body"), nil)
		return
	}
	bg := req.BaseGlyph
	p, err := s.governance.CreateProposal(r.Context(), governance.ProposalBaseGlyph, governance.CreateProposalInput{
		Name: req.Name, Description: req.Description, BaseGlyph: &bg,
	}, req.Proposer)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

type voteRequest struct {
	ProposalID string `json:"proposalId"`
	Agent      string `json:"agent"`
}

// handleEndorse implements POST /knowledge/endorse (spec.md §6.3).
func (s *Server) handleEndorse(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gerrors.New(gerrors.KindInvalidInput, "malformed request body"), nil)
		return
	}
	p, err := s.governance.Endorse(r.Context(), req.ProposalID, req.Agent)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleReject implements POST /knowledge/reject (spec.md §6.3).
func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gerrors.New(gerrors.KindInvalidInput, "malformed request body"), nil)
		return
	}
	p, err := s.governance.Reject(r.Context(), req.ProposalID, req.Agent)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type amendRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Components  []string `json:"components,omitempty"`
	BaseGlyph   *governance.BaseGlyphPayload `json:"baseGlyph,omitempty"`
	Reason      string   `json:"reason"`
	Amender     string   `json:"amender"`
}

// handleAmend implements POST /governance/proposals/:id/amend (spec.md
// §6.4): supersedes the named proposal with a freshly-endorsed successor.
func (s *Server) handleAmend(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req amendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gerrors.New(gerrors.KindInvalidInput, "malformed request body"), nil)
		return
	}
	amended, err := s.governance.Amend(r.Context(), id, governance.CreateProposalInput{
		Name: req.Name, Description: req.Description, Components: req.Components, BaseGlyph: req.BaseGlyph,
	}, req.Reason, req.Amender)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, amended)
}

type commentRequest struct {
	Author   string `json:"author"`
	Body     string `json:"body"`
	ParentID string `json:"parentId,omitempty"`
}

// handleComment implements POST /governance/proposals/:id/comment.
func (s *Server) handleComment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req commentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gerrors.New(gerrors.KindInvalidInput, "malformed request body"), nil)
		return
	}
	c, err := s.governance.Comment(r.Context(), id, req.Author, req.Body, req.ParentID)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// handleDiscussion implements GET /governance/proposals/:id/discussion: the
// full comment thread for a proposal.
func (s *Server) handleDiscussion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	comments, err := s.store.ListComments(r.Context(), id)
	if err != nil {
		writeError(w, gerrors.Wrap(gerrors.KindStoreError, err), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"proposalId": id, "comments": comments})
}

// handleSummary implements GET /governance/proposals/:id/summary (spec.md
// §6.4): the proposal, its discussion, its audit log, and the current vote
// tally against its acceptance threshold.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, comments, log, status, err := s.governance.Summary(r.Context(), id)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"proposal": p, "comments": comments, "log": log, "voteStatus": status,
	})
}
