package ingress

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/glyphmesh/glyphmesh/broadcast"
	"github.com/glyphmesh/glyphmesh/native/governance"
	"github.com/glyphmesh/glyphmesh/native/identity"
	"github.com/glyphmesh/glyphmesh/native/knowledge"
	"github.com/glyphmesh/glyphmesh/native/vocabulary"
)

// fakeStore is a single in-memory implementation of every narrow Store
// interface the domain packages need, plus the read views ingress queries
// directly (ResetStore). It mirrors the hand-rolled memStore pattern used in
// native/governance/engine_test.go and native/knowledge/knowledge_test.go.
type fakeStore struct {
	communityGlyphs []vocabulary.CommunityGlyph
	messages        []knowledge.Message
	agents          map[string]identity.Agent
	proposals       map[string]governance.Proposal
	sequences       map[string]int
	votes           []governance.ProposalVote
	comments        []governance.Comment
	log             []governance.GovernanceLogEntry
	compounds       []governance.CompoundGlyph
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		agents:    make(map[string]identity.Agent),
		proposals: make(map[string]governance.Proposal),
		sequences: make(map[string]int),
	}
}

func (s *fakeStore) Reset() error {
	*s = *newFakeStore()
	return nil
}

// vocabulary.Store
func (s *fakeStore) InsertCommunityBaseGlyph(ctx context.Context, g vocabulary.CommunityGlyph) error {
	s.communityGlyphs = append(s.communityGlyphs, g)
	return nil
}
func (s *fakeStore) ListCommunityBaseGlyphs(ctx context.Context) ([]vocabulary.CommunityGlyph, error) {
	return s.communityGlyphs, nil
}

// knowledge.Store
func (s *fakeStore) InsertMessage(ctx context.Context, m knowledge.Message) error {
	s.messages = append(s.messages, m)
	return nil
}
func (s *fakeStore) ListMessages(ctx context.Context, limit, offset int, since int64) ([]knowledge.Message, error) {
	var out []knowledge.Message
	for _, m := range s.messages {
		if m.Timestamp >= since {
			out = append(out, m)
		}
	}
	return out, nil
}
func (s *fakeStore) AllMessagesAscending(ctx context.Context) ([]knowledge.Message, error) {
	return s.messages, nil
}

// identity.Store
func (s *fakeStore) UpsertAgent(ctx context.Context, a identity.Agent) error {
	s.agents[a.Address] = a
	return nil
}
func (s *fakeStore) TouchAgent(ctx context.Context, address string, lastSeen int64) error {
	if a, ok := s.agents[address]; ok {
		a.LastSeen = lastSeen
		s.agents[address] = a
	}
	return nil
}
func (s *fakeStore) GetAgent(ctx context.Context, address string) (identity.Agent, bool, error) {
	a, ok := s.agents[address]
	return a, ok, nil
}
func (s *fakeStore) GetAgentByName(ctx context.Context, name string) (identity.Agent, bool, error) {
	for _, a := range s.agents {
		if a.Name == name {
			return a, true, nil
		}
	}
	return identity.Agent{}, false, nil
}
func (s *fakeStore) ListAgents(ctx context.Context, limit, offset int) ([]identity.Agent, error) {
	var out []identity.Agent
	for _, a := range s.agents {
		out = append(out, a)
	}
	return out, nil
}

// governance.Store (also backs ingress.ResetStore's ListProposals/ListComments)
func (s *fakeStore) NextProposalSequence(ctx context.Context, prefix string) (int, error) {
	s.sequences[prefix]++
	return s.sequences[prefix], nil
}
func (s *fakeStore) InsertProposal(ctx context.Context, p governance.Proposal) error {
	s.proposals[p.ID] = p
	return nil
}
func (s *fakeStore) GetProposal(ctx context.Context, id string) (governance.Proposal, bool, error) {
	p, ok := s.proposals[id]
	return p, ok, nil
}
func (s *fakeStore) UpdateProposal(ctx context.Context, p governance.Proposal) error {
	s.proposals[p.ID] = p
	return nil
}
func (s *fakeStore) ListProposals(ctx context.Context, status string, limit, offset int) ([]governance.Proposal, error) {
	var out []governance.Proposal
	for _, p := range s.proposals {
		if status == "" || string(p.Status) == status {
			out = append(out, p)
		}
	}
	return out, nil
}
func (s *fakeStore) ListExpirable(ctx context.Context, now int64) ([]governance.Proposal, error) {
	var out []governance.Proposal
	for _, p := range s.proposals {
		if p.Status == governance.StatusPending && p.ExpiresAt <= now {
			out = append(out, p)
		}
	}
	return out, nil
}
func (s *fakeStore) HasActiveProposalWithName(ctx context.Context, name string) (bool, error) {
	for _, p := range s.proposals {
		if p.Name == name && p.Status == governance.StatusPending {
			return true, nil
		}
	}
	return false, nil
}
func (s *fakeStore) InsertVote(ctx context.Context, v governance.ProposalVote) error {
	s.votes = append(s.votes, v)
	return nil
}
func (s *fakeStore) HasVoted(ctx context.Context, proposalID, agentAddress string) (bool, error) {
	for _, v := range s.votes {
		if v.ProposalID == proposalID && v.AgentAddress == agentAddress {
			return true, nil
		}
	}
	return false, nil
}
func (s *fakeStore) ListVotes(ctx context.Context, proposalID string) ([]governance.ProposalVote, error) {
	var out []governance.ProposalVote
	for _, v := range s.votes {
		if v.ProposalID == proposalID {
			out = append(out, v)
		}
	}
	return out, nil
}
func (s *fakeStore) InsertComment(ctx context.Context, c governance.Comment) error {
	s.comments = append(s.comments, c)
	return nil
}
func (s *fakeStore) ListComments(ctx context.Context, proposalID string) ([]governance.Comment, error) {
	var out []governance.Comment
	for _, c := range s.comments {
		if c.ProposalID == proposalID {
			out = append(out, c)
		}
	}
	return out, nil
}
func (s *fakeStore) AppendGovernanceLog(ctx context.Context, e governance.GovernanceLogEntry) error {
	s.log = append(s.log, e)
	return nil
}
func (s *fakeStore) ListGovernanceLog(ctx context.Context, proposalID string) ([]governance.GovernanceLogEntry, error) {
	var out []governance.GovernanceLogEntry
	for _, e := range s.log {
		if e.ProposalID == proposalID {
			out = append(out, e)
		}
	}
	return out, nil
}
func (s *fakeStore) InsertCompound(ctx context.Context, c governance.CompoundGlyph) error {
	s.compounds = append(s.compounds, c)
	return nil
}
func (s *fakeStore) ListCompounds(ctx context.Context) ([]governance.CompoundGlyph, error) {
	return s.compounds, nil
}
func (s *fakeStore) IncrementCompoundUseCount(ctx context.Context, id string) error {
	for i, c := range s.compounds {
		if c.ID == id {
			s.compounds[i].UseCount++
		}
	}
	return nil
}

func fixedNow(ts int64) func() int64 { return func() int64 { return ts } }

func newTestServer(t *testing.T) (*Server, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	now := fixedNow(1_700_000_000_000)

	vocab := vocabulary.New(store)
	require.NoError(t, vocab.LoadFromStore(context.Background()))

	kn := knowledge.New(store, knowledge.DefaultConfig())
	ident := identity.New(store, nil, nil, now)
	hub := broadcast.New(broadcast.DefaultConfig(), nil, now)
	gov := governance.New(store, vocab, ident, hub, governance.DefaultConfig(), now)

	cfg := DefaultConfig()
	cfg.AdminTokenSecret = "test-secret"
	srv := New(vocab, kn, ident, gov, hub, store, cfg, now)
	return srv, store
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestEncodeMatchesBuiltinKeyword(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/encode", encodeRequest{Text: "please acknowledge receipt", Recipient: "agora"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp encodeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Glyph)
	require.NotEmpty(t, resp.MessageHash)
}

func TestEncodeNoMatchReturnsSuggestions(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/encode", encodeRequest{Text: "zzzz-not-a-real-keyword-zzzz"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "no_match", body["error"])
}

func TestRegisterAndFetchAgent(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/agents/register", registerAgentRequest{Name: "watcher-01"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var agent identity.Agent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &agent))
	require.Equal(t, "watcher-01", agent.Name)

	rec = doJSON(t, srv, http.MethodGet, "/agents/"+agent.Address, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSendToAgoraRequiresRegisteredSender(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/send", sendRequest{Glyph: "Q03", Recipient: agoraRecipient, Sender: "ghost"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSendToAgoraSucceedsForRegisteredSender(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/agents/register", registerAgentRequest{Name: "alice"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var agent identity.Agent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &agent))

	rec = doJSON(t, srv, http.MethodPost, "/send", sendRequest{
		Glyph: "Q03", Recipient: agoraRecipient, Sender: agent.Address,
		Data: map[string]any{"note": "status check"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp sendResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.NotEmpty(t, resp.MessageHash)
}

func TestSendUnknownGlyphRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/send", sendRequest{Glyph: "ZZ99", Recipient: agoraRecipient, Sender: "nobody"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminResetRequiresBearerToken(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/knowledge/reset", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	token, err := IssueAdminToken("test-secret", time.Hour, time.Now())
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/knowledge/reset", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestProposeCompoundAndListProposals(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/agents/register", registerAgentRequest{Name: "proposer"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var agent identity.Agent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &agent))

	rec = doJSON(t, srv, http.MethodPost, "/knowledge/propose", proposeCompoundRequest{
		Name: "swap-then-ack", Components: []string{"X01", "Q03"}, Proposer: agent.Address,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/knowledge/proposals", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body["proposals"], 1)
}
