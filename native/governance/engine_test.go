package governance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	gerrors "github.com/glyphmesh/glyphmesh/core/errors"
	"github.com/glyphmesh/glyphmesh/native/identity"
	"github.com/glyphmesh/glyphmesh/native/vocabulary"
)

type memStore struct {
	proposals map[string]Proposal
	sequences map[string]int
	votes     []ProposalVote
	comments  []Comment
	log       []GovernanceLogEntry
	compounds []CompoundGlyph
}

func newMemStore() *memStore {
	return &memStore{proposals: make(map[string]Proposal), sequences: make(map[string]int)}
}

func (m *memStore) NextProposalSequence(ctx context.Context, prefix string) (int, error) {
	m.sequences[prefix]++
	return m.sequences[prefix], nil
}

func (m *memStore) InsertProposal(ctx context.Context, p Proposal) error {
	m.proposals[p.ID] = p
	return nil
}

func (m *memStore) GetProposal(ctx context.Context, id string) (Proposal, bool, error) {
	p, ok := m.proposals[id]
	return p, ok, nil
}

func (m *memStore) UpdateProposal(ctx context.Context, p Proposal) error {
	m.proposals[p.ID] = p
	return nil
}

func (m *memStore) ListProposals(ctx context.Context, status string, limit, offset int) ([]Proposal, error) {
	var out []Proposal
	for _, p := range m.proposals {
		if status == "all" || status == "" || string(p.Status) == status {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) ListExpirable(ctx context.Context, now int64) ([]Proposal, error) {
	var out []Proposal
	for _, p := range m.proposals {
		if p.Status == StatusPending && p.ExpiresAt <= now {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) HasActiveProposalWithName(ctx context.Context, name string) (bool, error) {
	for _, p := range m.proposals {
		if p.Name == name && p.Status == StatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) InsertVote(ctx context.Context, v ProposalVote) error {
	m.votes = append(m.votes, v)
	return nil
}

func (m *memStore) HasVoted(ctx context.Context, proposalID, agentAddress string) (bool, error) {
	for _, v := range m.votes {
		if v.ProposalID == proposalID && v.AgentAddress == agentAddress {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ListVotes(ctx context.Context, proposalID string) ([]ProposalVote, error) {
	var out []ProposalVote
	for _, v := range m.votes {
		if v.ProposalID == proposalID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *memStore) InsertComment(ctx context.Context, c Comment) error {
	m.comments = append(m.comments, c)
	return nil
}

func (m *memStore) ListComments(ctx context.Context, proposalID string) ([]Comment, error) {
	var out []Comment
	for _, c := range m.comments {
		if c.ProposalID == proposalID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) AppendGovernanceLog(ctx context.Context, e GovernanceLogEntry) error {
	m.log = append(m.log, e)
	return nil
}

func (m *memStore) ListGovernanceLog(ctx context.Context, proposalID string) ([]GovernanceLogEntry, error) {
	var out []GovernanceLogEntry
	for _, e := range m.log {
		if e.ProposalID == proposalID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) InsertCompound(ctx context.Context, c CompoundGlyph) error {
	m.compounds = append(m.compounds, c)
	return nil
}

func (m *memStore) ListCompounds(ctx context.Context) ([]CompoundGlyph, error) {
	return m.compounds, nil
}

func (m *memStore) IncrementCompoundUseCount(ctx context.Context, id string) error {
	for i, c := range m.compounds {
		if c.ID == id {
			m.compounds[i].UseCount++
			return nil
		}
	}
	return nil
}

type fakeVocab struct {
	existing  map[string]bool
	keywords  map[string]string
	installed []vocabulary.CommunityGlyph
}

func newFakeVocab() *fakeVocab {
	return &fakeVocab{
		existing: map[string]bool{"X01": true, "X05": true},
		keywords: map[string]string{"swap": "X01", "stake": "X05"},
	}
}

func (v *fakeVocab) Exists(id string) bool { return v.existing[id] }

func (v *fakeVocab) Match(text string) (string, bool) {
	id, ok := v.keywords[text]
	return id, ok
}

func (v *fakeVocab) Install(ctx context.Context, g vocabulary.CommunityGlyph) error {
	v.existing[g.ID] = true
	for _, kw := range g.Keywords {
		v.keywords[kw] = g.ID
	}
	v.installed = append(v.installed, g)
	return nil
}

type fakeIdentity struct {
	agents map[string]identity.Agent
}

func newFakeIdentity() *fakeIdentity { return &fakeIdentity{agents: make(map[string]identity.Agent)} }

func (f *fakeIdentity) add(address string, tier identity.Tier) {
	f.agents[address] = identity.Agent{Address: address, Name: address, Tier: tier}
}

func (f *fakeIdentity) Lookup(ctx context.Context, address string) (identity.Agent, bool, error) {
	a, ok := f.agents[address]
	return a, ok, nil
}

type fakePublisher struct {
	events []map[string]any
}

func (f *fakePublisher) Publish(kind string, payload map[string]any) {
	event := map[string]any{"kind": kind}
	for k, v := range payload {
		event[k] = v
	}
	f.events = append(f.events, event)
}

type clock struct{ t int64 }

func (c *clock) now() int64    { return c.t }
func (c *clock) advance(d int64) { c.t += d }

func newTestEngine() (*Engine, *memStore, *fakeVocab, *fakeIdentity, *fakePublisher, *clock) {
	store := newMemStore()
	vocab := newFakeVocab()
	id := newFakeIdentity()
	pub := &fakePublisher{}
	clk := &clock{t: 1_000_000}
	e := New(store, vocab, id, pub, DefaultConfig(), clk.now)
	return e, store, vocab, id, pub, clk
}

func TestCreateProposalCompoundRequiresTwoComponents(t *testing.T) {
	ctx := context.Background()
	e, _, _, id, _, _ := newTestEngine()
	id.add("alice", identity.TierUnverified)

	_, err := e.CreateProposal(ctx, ProposalCompound, CreateProposalInput{Name: "swap-stake", Components: []string{"X01"}}, "alice")
	require.Error(t, err)
}

func TestCreateProposalBaseGlyphKeywordCollisionRejected(t *testing.T) {
	ctx := context.Background()
	e, _, _, id, _, _ := newTestEngine()
	id.add("alice", identity.TierUnverified)

	_, err := e.CreateProposal(ctx, ProposalBaseGlyph, CreateProposalInput{
		Name: "new-swap", BaseGlyph: &BaseGlyphPayload{Domain: "crypto", Keywords: []string{"swap"}, Meaning: "duplicate"},
	}, "alice")
	require.Error(t, err)
	kind, ok := gerrors.KindOf(err)
	require.True(t, ok)
	require.Equal(t, gerrors.KindKeywordCollision, kind)
}

func TestCompoundProposalAcceptedAfterThresholdAndMinVoteWindow(t *testing.T) {
	ctx := context.Background()
	e, _, _, id, pub, clk := newTestEngine()
	for _, a := range []string{"alice", "bob", "carol", "dave", "eve"} {
		id.add(a, identity.TierUnverified)
	}

	p, err := e.CreateProposal(ctx, ProposalCompound, CreateProposalInput{Name: "swap-then-stake", Components: []string{"X05", "X01"}}, "alice")
	require.NoError(t, err)
	require.Equal(t, StatusPending, p.Status)

	p, err = e.Endorse(ctx, p.ID, "bob")
	require.NoError(t, err)
	require.Equal(t, StatusPending, p.Status, "threshold not yet crossed")

	p, err = e.Endorse(ctx, p.ID, "carol")
	require.NoError(t, err)
	require.Equal(t, StatusPending, p.Status, "threshold crossed but minVoteAt has not elapsed")

	clk.advance(DefaultConfig().CompoundMinVoteMs + 1)
	p, err = e.Endorse(ctx, p.ID, "dave")
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, p.Status)

	compounds, err := e.store.ListCompounds(ctx)
	require.NoError(t, err)
	require.Len(t, compounds, 1)
	require.Equal(t, []string{"X05", "X01"}, compounds[0].Components)
	require.Equal(t, "C"+p.ID, compounds[0].ID)

	found := false
	for _, ev := range pub.events {
		if ev["kind"] == "governance_accept" {
			found = true
		}
	}
	require.True(t, found, "acceptance must publish a governance_accept event")
}

func TestRejectionThresholdRejectsProposal(t *testing.T) {
	ctx := context.Background()
	e, _, _, id, _, _ := newTestEngine()
	for _, a := range []string{"alice", "bob", "carol"} {
		id.add(a, identity.TierOnChain)
	}

	p, err := e.CreateProposal(ctx, ProposalCompound, CreateProposalInput{Name: "disputed", Components: []string{"X05", "X01"}}, "alice")
	require.NoError(t, err)

	p, err = e.Reject(ctx, p.ID, "bob")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, p.Status, "a single on-chain rejector already meets the rejection threshold of 3")
}

func TestDuplicateVoteRejected(t *testing.T) {
	ctx := context.Background()
	e, _, _, id, _, _ := newTestEngine()
	id.add("alice", identity.TierUnverified)
	id.add("bob", identity.TierUnverified)

	p, err := e.CreateProposal(ctx, ProposalCompound, CreateProposalInput{Name: "dup-vote", Components: []string{"X05", "X01"}}, "alice")
	require.NoError(t, err)

	_, err = e.Endorse(ctx, p.ID, "bob")
	require.NoError(t, err)
	_, err = e.Endorse(ctx, p.ID, "bob")
	require.Error(t, err)
}

func TestAmendClearsVotesAndSupersedesOriginal(t *testing.T) {
	ctx := context.Background()
	e, _, _, id, _, _ := newTestEngine()
	for _, a := range []string{"alice", "bob", "carol"} {
		id.add(a, identity.TierUnverified)
	}

	p1, err := e.CreateProposal(ctx, ProposalCompound, CreateProposalInput{Name: "p1", Components: []string{"X05", "X01"}}, "alice")
	require.NoError(t, err)
	p1, err = e.Endorse(ctx, p1.ID, "bob")
	require.NoError(t, err)
	require.Len(t, p1.Endorsers, 2)

	p2, err := e.Amend(ctx, p1.ID, CreateProposalInput{Name: "p1-revised", Components: []string{"X05", "X01"}}, "clarify components", "carol")
	require.NoError(t, err)
	require.Len(t, p2.Endorsers, 1, "only the amender's fresh auto-endorsement carries over")
	require.Empty(t, p2.Rejectors)

	original, ok, err := e.store.GetProposal(ctx, p1.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StatusSuperseded, original.Status)
	require.Equal(t, p2.ID, original.SupersededBy)
}

func TestExpireSweepExpiresPastDeadlineProposals(t *testing.T) {
	ctx := context.Background()
	e, _, _, id, _, clk := newTestEngine()
	id.add("alice", identity.TierUnverified)

	p, err := e.CreateProposal(ctx, ProposalCompound, CreateProposalInput{Name: "stale", Components: []string{"X05", "X01"}}, "alice")
	require.NoError(t, err)

	clk.advance(DefaultConfig().CompoundExpiryMs + 1)
	require.NoError(t, e.ExpireSweep(ctx))

	after, ok, err := e.store.GetProposal(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StatusExpired, after.Status)
}
