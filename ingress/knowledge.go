package ingress

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	gerrors "github.com/glyphmesh/glyphmesh/core/errors"
)

// handleKnowledgeOverview implements GET /knowledge (spec.md §6.2): a
// summary view of counts: distinct glyphs and agents seen, tracked
// sequences, and promotable sequences. No messages are included.
func (s *Server) handleKnowledgeOverview(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"glyphCount":     len(s.knowledge.GlyphStats()),
		"agentCount":     len(s.knowledge.AgentStats()),
		"sequenceCount":  len(s.knowledge.Sequences()),
		"promotableSeqs": len(s.knowledge.PromotableSequences()),
	})
}

// handleMessages implements GET /messages.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	limit, offset := clampPageParams(r.URL.Query())
	since := int64(0)
	if v := r.URL.Query().Get("since"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			since = n
		}
	}
	msgs, err := s.knowledge.ListMessages(r.Context(), limit, offset, since)
	if err != nil {
		writeError(w, gerrors.Wrap(gerrors.KindStoreError, err), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// handleStats implements GET /stats: per-glyph usage counters.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"glyphs": s.knowledge.GlyphStats(), "agents": s.knowledge.AgentStats()})
}

// handleSequences implements GET /sequences.
func (s *Server) handleSequences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sequences": s.knowledge.Sequences(), "config": s.knowledge.Config()})
}

// handleCompounds implements GET /compounds.
func (s *Server) handleCompounds(w http.ResponseWriter, r *http.Request) {
	compounds, err := s.governance.Compounds(r.Context())
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"compounds": compounds})
}

// handleGlyphUsage implements GET /glyph/:id: the per-glyph derived counter,
// distinct from GET /glyphs/:id which returns the catalog definition.
func (s *Server) handleGlyphUsage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for _, gs := range s.knowledge.GlyphStats() {
		if gs.Glyph == id {
			writeJSON(w, http.StatusOK, gs)
			return
		}
	}
	writeError(w, gerrors.New(gerrors.KindUnknownGlyph, "no usage recorded for glyph"), map[string]any{"glyph": id})
}

// handleQuery implements GET /query?q=…: a best-effort search over glyph
// catalog meanings/keywords and messages, mirroring the read-only
// "views of derived indices" framing of spec.md §6.2. Only the first 50
// messages of the log in ascending timestamp order are searched; later
// messages are not.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusOK, map[string]any{"glyphs": []any{}, "messages": []any{}})
		return
	}
	var glyphMatches []any
	for _, def := range s.vocab.All() {
		if containsFold(def.Meaning, q) || keywordsContain(def.Keywords, q) {
			glyphMatches = append(glyphMatches, def)
		}
	}
	msgs, err := s.knowledge.ListMessages(r.Context(), 50, 0, 0)
	if err != nil {
		writeError(w, gerrors.Wrap(gerrors.KindStoreError, err), nil)
		return
	}
	var msgMatches []any
	for _, m := range msgs {
		if containsFold(m.Glyph, q) || containsFold(m.Sender, q) || containsFold(m.Recipient, q) {
			msgMatches = append(msgMatches, m)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"glyphs": glyphMatches, "messages": msgMatches})
}

// handleKnowledgeReset implements the admin-only POST /knowledge/reset
// (spec.md §6.2/§6.6).
func (s *Server) handleKnowledgeReset(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Reset(); err != nil {
		writeError(w, gerrors.Wrap(gerrors.KindStoreError, err), nil)
		return
	}
	if err := s.knowledge.Replay(r.Context()); err != nil {
		writeError(w, gerrors.Wrap(gerrors.KindStoreError, err), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// exportRow is the columnar shape of a message-log row written by GET
// /knowledge/export (SPEC_FULL.md §4.3's supplement to the read-only views).
type exportRow struct {
	ID          string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Glyph       string `parquet:"name=glyph, type=BYTE_ARRAY, convertedtype=UTF8"`
	Sender      string `parquet:"name=sender, type=BYTE_ARRAY, convertedtype=UTF8"`
	Recipient   string `parquet:"name=recipient, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp   int64  `parquet:"name=timestamp, type=INT64"`
	MessageHash string `parquet:"name=message_hash, type=BYTE_ARRAY, convertedtype=UTF8"`
	Encrypted   bool   `parquet:"name=encrypted, type=BOOLEAN"`
}

// handleKnowledgeExport streams the full message log as a Parquet file,
// following the write-then-serve shape of services/otc-gateway/recon's
// writeParquet helper.
func (s *Server) handleKnowledgeExport(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.knowledge.ListMessages(r.Context(), 200, 0, 0)
	if err != nil {
		writeError(w, gerrors.Wrap(gerrors.KindStoreError, err), nil)
		return
	}
	// ListMessages caps a page at 200 rows, so page until a short page.
	for page := msgs; len(page) == 200; {
		page, err = s.knowledge.ListMessages(r.Context(), 200, len(msgs), 0)
		if err != nil {
			writeError(w, gerrors.Wrap(gerrors.KindStoreError, err), nil)
			return
		}
		msgs = append(msgs, page...)
	}

	tmp, err := os.CreateTemp("", "glyphmesh-export-*.parquet")
	if err != nil {
		writeError(w, gerrors.Wrap(gerrors.KindStoreError, err), nil)
		return
	}
	path := tmp.Name()
	defer os.Remove(path)

	fw := writerfile.NewWriterFile(tmp)
	pw, err := writer.NewParquetWriter(fw, new(exportRow), 1)
	if err != nil {
		tmp.Close()
		writeError(w, gerrors.Wrap(gerrors.KindStoreError, err), nil)
		return
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, m := range msgs {
		row := exportRow{ID: m.ID, Glyph: m.Glyph, Sender: m.Sender, Recipient: m.Recipient, Timestamp: m.Timestamp, MessageHash: m.MessageHash, Encrypted: m.Encrypted}
		if err := pw.Write(row); err != nil {
			writeError(w, gerrors.Wrap(gerrors.KindStoreError, err), nil)
			return
		}
	}
	if err := pw.WriteStop(); err != nil {
		writeError(w, gerrors.Wrap(gerrors.KindStoreError, err), nil)
		return
	}
	tmp.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="messages.parquet"`)
	http.ServeFile(w, r, path)
}

func containsFold(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func keywordsContain(keywords []string, q string) bool {
	for _, kw := range keywords {
		if containsFold(kw, q) {
			return true
		}
	}
	return false
}
