package ingress

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	gerrors "github.com/glyphmesh/glyphmesh/core/errors"
	"github.com/glyphmesh/glyphmesh/native/knowledge"
	"github.com/glyphmesh/glyphmesh/native/vocabulary"
)

type encodeRequest struct {
	Text      string         `json:"text"`
	Data      map[string]any `json:"data,omitempty"`
	Recipient string         `json:"recipient,omitempty"`
}

type encodeResponse struct {
	Glyph       string         `json:"glyph"`
	Meaning     string         `json:"meaning"`
	Pose        string         `json:"pose"`
	Symbol      string         `json:"symbol"`
	Domain      string         `json:"domain"`
	Data        map[string]any `json:"data,omitempty"`
	Recipient   string         `json:"recipient,omitempty"`
	Timestamp   int64          `json:"timestamp"`
	MessageHash string         `json:"messageHash"`
}

// handleEncode implements POST /encode (spec.md §6.1). A match miss responds
// 400 with up to SuggestionCount nearest keywords.
func (s *Server) handleEncode(w http.ResponseWriter, r *http.Request) {
	var req encodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gerrors.New(gerrors.KindInvalidInput, "malformed request body"), nil)
		return
	}

	glyphID, hit := s.vocab.Match(req.Text)
	if !hit {
		suggestions := s.vocab.Suggest(req.Text, s.cfg.SuggestionCount)
		writeError(w, gerrors.New(gerrors.KindNoMatch, "no glyph matched the supplied text"), map[string]any{"suggestions": suggestions})
		return
	}
	def, _ := s.vocab.Resolve(glyphID)

	now := s.now()
	hash, err := knowledge.ComputeMessageHash(def.ID, req.Data, req.Recipient, now)
	if err != nil {
		writeError(w, gerrors.Wrap(gerrors.KindStoreError, err), nil)
		return
	}

	writeJSON(w, http.StatusOK, encodeResponse{
		Glyph: def.ID, Meaning: def.Meaning, Pose: def.Pose, Symbol: def.Symbol, Domain: string(def.Domain),
		Data: req.Data, Recipient: req.Recipient, Timestamp: now, MessageHash: hash,
	})
}

type decodeRequest struct {
	Glyph string `json:"glyph"`
}

// handleDecode implements POST /decode (spec.md §6.1).
func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	var req decodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gerrors.New(gerrors.KindInvalidInput, "malformed request body"), nil)
		return
	}
	def, ok := s.vocab.Resolve(req.Glyph)
	if !ok {
		writeError(w, gerrors.New(gerrors.KindUnknownGlyph, "unknown glyph"), map[string]any{"glyph": req.Glyph})
		return
	}
	writeJSON(w, http.StatusOK, def)
}

type decodeBatchRequest struct {
	Glyphs []string `json:"glyphs"`
}

type decodeBatchItem struct {
	Glyph      string               `json:"glyph"`
	Definition *vocabulary.Definition `json:"definition,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// handleDecodeBatch implements POST /decode/batch (spec.md §6.1): per-item
// results, never a whole-request failure because one glyph is unknown.
func (s *Server) handleDecodeBatch(w http.ResponseWriter, r *http.Request) {
	var req decodeBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gerrors.New(gerrors.KindInvalidInput, "malformed request body"), nil)
		return
	}
	out := make([]decodeBatchItem, 0, len(req.Glyphs))
	for _, g := range req.Glyphs {
		def, ok := s.vocab.Resolve(g)
		if !ok {
			out = append(out, decodeBatchItem{Glyph: g, Error: string(gerrors.KindUnknownGlyph)})
			continue
		}
		d := def
		out = append(out, decodeBatchItem{Glyph: g, Definition: &d})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

// handleListGlyphs implements GET /glyphs: the full built-in + community
// catalog.
func (s *Server) handleListGlyphs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"glyphs": s.vocab.All()})
}

// handleGetGlyph implements GET /glyphs/:id.
func (s *Server) handleGetGlyph(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	def, ok := s.vocab.Resolve(id)
	if !ok {
		writeError(w, gerrors.New(gerrors.KindUnknownGlyph, "unknown glyph"), map[string]any{"glyph": id})
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// handleGlyphExists implements GET /glyphs/:id/exists.
func (s *Server) handleGlyphExists(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "exists": s.vocab.Exists(id)})
}

