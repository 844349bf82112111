// Package ingress is the thin request surface described in spec.md §4 & §6:
// encode, decode, send, propose, endorse/reject, comment, query, plus the
// identity, admin, and live-stream endpoints that sit in front of the core
// domain packages. It never holds domain state itself — every handler
// delegates to Vocabulary, Knowledge, Identity, Governance, or Broadcast.
package ingress

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"context"

	"github.com/glyphmesh/glyphmesh/broadcast"
	"github.com/glyphmesh/glyphmesh/native/governance"
	"github.com/glyphmesh/glyphmesh/native/identity"
	"github.com/glyphmesh/glyphmesh/native/knowledge"
	"github.com/glyphmesh/glyphmesh/native/vocabulary"
	"github.com/glyphmesh/glyphmesh/observability"
)

// ResetStore is the persistence port ingress reads directly: the admin-only
// reset plus the governance proposal/discussion read views that have no
// narrower home in native/governance.Engine (spec.md §6.2/§6.3/§6.4).
type ResetStore interface {
	Reset() error
	ListProposals(ctx context.Context, status string, limit, offset int) ([]governance.Proposal, error)
	ListComments(ctx context.Context, proposalID string) ([]governance.Comment, error)
}

// Config holds the ingress-level tunables named in spec.md §9.
type Config struct {
	AdminTokenSecret string
	AgoraMaxFieldLen int
	RelayDeadlineMs  int64
	SuggestionCount  int
	MaxBodyBytes     int64
	SendRatePerSec   float64
	SendBurst        int
}

// DefaultConfig returns spec.md §9's documented defaults.
func DefaultConfig() Config {
	return Config{AgoraMaxFieldLen: 200, RelayDeadlineMs: 10_000, SuggestionCount: 3, MaxBodyBytes: 1 << 20, SendRatePerSec: 5, SendBurst: 10}
}

// Server wires the chi router described in SPEC_FULL.md §6 to the domain
// packages it fronts. Construction mirrors services/otc-gateway/server.New:
// a Config of collaborators in, a built router out.
type Server struct {
	vocab       *vocabulary.Vocabulary
	knowledge   *knowledge.Knowledge
	identity    *identity.Identity
	governance  *governance.Engine
	hub         *broadcast.Hub
	store       ResetStore
	metrics     *observability.MeshMetrics
	cfg         Config
	now         func() int64
	relay       Relayer
	sendLimiter *senderRateLimiter

	router chi.Router
}

// New constructs a Server and builds its router immediately, matching the
// teacher's eager buildRouter() call inside server.New.
func New(vocab *vocabulary.Vocabulary, kn *knowledge.Knowledge, id *identity.Identity, gov *governance.Engine, hub *broadcast.Hub, store ResetStore, cfg Config, now func() int64) *Server {
	if cfg.SuggestionCount <= 0 {
		cfg.SuggestionCount = 3
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	s := &Server{
		vocab: vocab, knowledge: kn, identity: id, governance: gov, hub: hub, store: store,
		metrics: observability.Mesh(), cfg: cfg, now: now,
		relay:       NewHTTPRelayer(time.Duration(cfg.RelayDeadlineMs) * time.Millisecond),
		sendLimiter: newSenderRateLimiter(cfg.SendRatePerSec, cfg.SendBurst),
	}
	s.router = s.buildRouter()
	return s
}

// Handler exposes the configured router for http.ListenAndServe.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.withBodyLimit)
	r.Use(s.withMetrics)

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/encode", s.handleEncode)
	r.Post("/decode", s.handleDecode)
	r.Post("/decode/batch", s.handleDecodeBatch)
	r.Get("/glyphs", s.handleListGlyphs)
	r.Get("/glyphs/{id}", s.handleGetGlyph)
	r.Get("/glyphs/{id}/exists", s.handleGlyphExists)

	r.With(s.withSendRateLimit).Post("/send", s.handleSend)

	r.Get("/knowledge", s.handleKnowledgeOverview)
	r.Get("/messages", s.handleMessages)
	r.Get("/stats", s.handleStats)
	r.Get("/agents", s.handleListAgents)
	r.Get("/sequences", s.handleSequences)
	r.Get("/compounds", s.handleCompounds)
	r.Get("/glyph/{id}", s.handleGlyphUsage)
	r.Get("/query", s.handleQuery)
	r.Get("/knowledge/export", s.handleKnowledgeExport)
	r.With(s.adminAuth).Post("/knowledge/reset", s.handleKnowledgeReset)

	r.Get("/knowledge/proposals", s.handleListProposals)
	r.Post("/knowledge/propose", s.handleProposeCompound)
	r.Post("/knowledge/propose/base-glyph", s.handleProposeBaseGlyph)
	r.Post("/knowledge/endorse", s.handleEndorse)
	r.Post("/knowledge/reject", s.handleReject)
	r.Post("/governance/proposals/{id}/amend", s.handleAmend)
	r.Post("/governance/proposals/{id}/comment", s.handleComment)
	r.Get("/governance/proposals/{id}/discussion", s.handleDiscussion)
	r.Get("/governance/proposals/{id}/summary", s.handleSummary)

	r.Post("/agents/register", s.handleRegisterAgent)
	r.Get("/agents/{address}", s.handleGetAgent)
	r.Get("/agents/{address}/verify", s.handleVerifyAgent)

	r.Get("/stream", s.hub.ServeHTTP)
	r.With(s.adminAuth).Post("/stream/broadcast", s.handleAdminBroadcast)

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "subscribers": s.hub.Count()})
}

// withBodyLimit caps inbound request bodies, the HTTP analogue of spec.md
// §4.5's 4KB stream-frame cap — oversized POST bodies fail fast at
// json.Decode rather than exhausting memory.
func (s *Server) withBodyLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

// withMetrics records request latency and outcome through the shared
// Prometheus registry, mirroring gateway/middleware's request-timing wrapper.
func (s *Server) withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		s.metrics.ObserveRequest(route, r.Method, sw.status, time.Since(started))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
