package governance

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	gerrors "github.com/glyphmesh/glyphmesh/core/errors"
	"github.com/glyphmesh/glyphmesh/native/identity"
	"github.com/glyphmesh/glyphmesh/native/vocabulary"
)

// Config holds the design-level thresholds and windows named in spec.md §4.4
// and §9. They are constructor parameters, never hard-coded in the engine.
type Config struct {
	CompoundThreshold uint32
	BaseThreshold     uint32
	RejectionThreshold uint32
	CompoundExpiryMs   int64
	BaseExpiryMs       int64
	CompoundMinVoteMs  int64
	BaseMinVoteMs      int64
}

// DefaultConfig returns spec.md §4.4/§9's documented defaults.
func DefaultConfig() Config {
	const day = 24 * 60 * 60 * 1000
	const hour = 60 * 60 * 1000
	return Config{
		CompoundThreshold:  3,
		BaseThreshold:      5,
		RejectionThreshold: 3,
		CompoundExpiryMs:   7 * day,
		BaseExpiryMs:       14 * day,
		CompoundMinVoteMs:  1 * hour,
		BaseMinVoteMs:      6 * hour,
	}
}

func (c Config) thresholdFor(t ProposalType) uint32 {
	if t == ProposalCompound {
		return c.CompoundThreshold
	}
	return c.BaseThreshold
}

func (c Config) expiryFor(t ProposalType) int64 {
	if t == ProposalCompound {
		return c.CompoundExpiryMs
	}
	return c.BaseExpiryMs
}

func (c Config) minVoteFor(t ProposalType) int64 {
	if t == ProposalCompound {
		return c.CompoundMinVoteMs
	}
	return c.BaseMinVoteMs
}

// Store is the persistence port Engine writes through.
type Store interface {
	NextProposalSequence(ctx context.Context, prefix string) (int, error)
	InsertProposal(ctx context.Context, p Proposal) error
	GetProposal(ctx context.Context, id string) (Proposal, bool, error)
	UpdateProposal(ctx context.Context, p Proposal) error
	ListProposals(ctx context.Context, status string, limit, offset int) ([]Proposal, error)
	ListExpirable(ctx context.Context, now int64) ([]Proposal, error)
	HasActiveProposalWithName(ctx context.Context, name string) (bool, error)
	InsertVote(ctx context.Context, v ProposalVote) error
	HasVoted(ctx context.Context, proposalID, agentAddress string) (bool, error)
	ListVotes(ctx context.Context, proposalID string) ([]ProposalVote, error)
	InsertComment(ctx context.Context, c Comment) error
	ListComments(ctx context.Context, proposalID string) ([]Comment, error)
	AppendGovernanceLog(ctx context.Context, e GovernanceLogEntry) error
	ListGovernanceLog(ctx context.Context, proposalID string) ([]GovernanceLogEntry, error)
	InsertCompound(ctx context.Context, c CompoundGlyph) error
	ListCompounds(ctx context.Context) ([]CompoundGlyph, error)
	IncrementCompoundUseCount(ctx context.Context, id string) error
}

// Vocabulary is the narrow slice of native/vocabulary.Vocabulary the engine
// needs: collision checks, component existence checks, and base-glyph
// installation.
type Vocabulary interface {
	Exists(id string) bool
	Match(text string) (string, bool)
	Install(ctx context.Context, g vocabulary.CommunityGlyph) error
}

// Identity is the narrow slice of native/identity.Identity the engine needs:
// resolving a voter's registration and tier.
type Identity interface {
	Lookup(ctx context.Context, address string) (identity.Agent, bool, error)
}

// Publisher fans out governance events onto the broadcast fabric. Engine
// never blocks on it: Publish failures are the broadcast package's concern,
// not governance's.
type Publisher interface {
	Publish(kind string, payload map[string]any)
}

// CreateProposalInput is the caller-supplied content of a new proposal; the
// fields relevant to Type are read, the others ignored.
type CreateProposalInput struct {
	Name        string
	Description string
	Components  []string
	BaseGlyph   *BaseGlyphPayload
}

// Engine orchestrates the proposal lifecycle described in spec.md §4.4.
type Engine struct {
	store     Store
	vocab     Vocabulary
	identity  Identity
	publisher Publisher
	cfg       Config
	now       func() int64

	// mu serializes evaluate/accept sequences so governance log ordering
	// (propose < endorse|reject|comment|amend* < accept|reject|expire|
	// supersede) is never interleaved across concurrent votes on the same
	// proposal, matching spec.md §5's single-cooperative-task mapping.
	mu sync.Mutex
}

// New constructs an Engine.
func New(store Store, vocab Vocabulary, id Identity, publisher Publisher, cfg Config, now func() int64) *Engine {
	return &Engine{store: store, vocab: vocab, identity: id, publisher: publisher, cfg: cfg, now: now}
}

// CreateProposal implements spec.md §4.4's createProposal contract.
func (e *Engine) CreateProposal(ctx context.Context, typ ProposalType, in CreateProposalInput, proposer string) (Proposal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	agent, ok, err := e.identity.Lookup(ctx, proposer)
	if err != nil {
		return Proposal{}, gerrors.Wrap(gerrors.KindStoreError, err)
	}
	if !ok {
		return Proposal{}, gerrors.New(gerrors.KindNotRegistered, "proposer is not a registered agent")
	}

	if typ == ProposalCompound {
		if len(in.Components) < 2 {
			return Proposal{}, gerrors.New(gerrors.KindInvalidInput, "compound proposal requires at least two components")
		}
		for _, c := range in.Components {
			if !e.vocab.Exists(c) {
				return Proposal{}, gerrors.New(gerrors.KindComponentMissing, fmt.Sprintf("component %q is not installed", c))
			}
		}
	} else {
		if in.BaseGlyph == nil || len(in.BaseGlyph.Keywords) == 0 {
			return Proposal{}, gerrors.New(gerrors.KindInvalidInput, "base glyph proposal requires at least one keyword")
		}
		for _, kw := range in.BaseGlyph.Keywords {
			if _, hit := e.vocab.Match(kw); hit {
				return Proposal{}, gerrors.New(gerrors.KindKeywordCollision, fmt.Sprintf("keyword %q already resolves to an installed glyph", kw))
			}
		}
	}

	active, err := e.store.HasActiveProposalWithName(ctx, in.Name)
	if err != nil {
		return Proposal{}, gerrors.Wrap(gerrors.KindStoreError, err)
	}
	if active {
		return Proposal{}, gerrors.New(gerrors.KindInvalidInput, "a pending proposal with this name already exists")
	}

	prefix := "P"
	if typ == ProposalCompound {
		prefix = "CP"
	}
	seq, err := e.store.NextProposalSequence(ctx, prefix)
	if err != nil {
		return Proposal{}, gerrors.Wrap(gerrors.KindStoreError, err)
	}

	now := e.now()
	p := Proposal{
		ID:          fmt.Sprintf("%s%02d", prefix, seq),
		Type:        typ,
		Status:      StatusPending,
		Name:        in.Name,
		Description: in.Description,
		Proposer:    proposer,
		CreatedAt:   now,
		ExpiresAt:   now + e.cfg.expiryFor(typ),
		MinVoteAt:   now + e.cfg.minVoteFor(typ),
		Components:  in.Components,
		BaseGlyph:   in.BaseGlyph,
	}
	p.Endorsers = []EndorsementRecord{{AgentAddress: proposer, Weight: agent.Tier.Weight(), Timestamp: now}}

	if err := e.store.InsertProposal(ctx, p); err != nil {
		return Proposal{}, gerrors.Wrap(gerrors.KindStoreError, err)
	}
	if err := e.store.InsertVote(ctx, ProposalVote{ProposalID: p.ID, AgentAddress: proposer, Action: ActionEndorse, Weight: agent.Tier.Weight(), Timestamp: now}); err != nil {
		return Proposal{}, gerrors.Wrap(gerrors.KindStoreError, err)
	}
	weight := agent.Tier.Weight()
	if err := e.appendLog(ctx, p.ID, LogPropose, proposer, agent.Tier.String(), &weight, now, nil); err != nil {
		return Proposal{}, err
	}
	return p, nil
}

// Endorse implements the endorse(proposalId, agent) contract.
func (e *Engine) Endorse(ctx context.Context, proposalID, agentAddress string) (Proposal, error) {
	return e.vote(ctx, proposalID, agentAddress, ActionEndorse)
}

// Reject implements the reject(proposalId, agent) contract.
func (e *Engine) Reject(ctx context.Context, proposalID, agentAddress string) (Proposal, error) {
	return e.vote(ctx, proposalID, agentAddress, ActionReject)
}

func (e *Engine) vote(ctx context.Context, proposalID, agentAddress string, action VoteAction) (Proposal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok, err := e.store.GetProposal(ctx, proposalID)
	if err != nil {
		return Proposal{}, gerrors.Wrap(gerrors.KindStoreError, err)
	}
	if !ok {
		return Proposal{}, gerrors.New(gerrors.KindInvalidInput, "proposal not found")
	}
	if p.Status != StatusPending {
		return Proposal{}, gerrors.New(gerrors.KindNotPending, "proposal is not pending")
	}

	agent, ok, err := e.identity.Lookup(ctx, agentAddress)
	if err != nil {
		return Proposal{}, gerrors.Wrap(gerrors.KindStoreError, err)
	}
	if !ok {
		return Proposal{}, gerrors.New(gerrors.KindNotRegistered, "voter is not a registered agent")
	}

	voted, err := e.store.HasVoted(ctx, proposalID, agentAddress)
	if err != nil {
		return Proposal{}, gerrors.Wrap(gerrors.KindStoreError, err)
	}
	if voted {
		return Proposal{}, gerrors.New(gerrors.KindDuplicateVote, "agent has already voted on this proposal")
	}

	now := e.now()
	weight := agent.Tier.Weight()
	record := EndorsementRecord{AgentAddress: agentAddress, Weight: weight, Timestamp: now}
	if action == ActionEndorse {
		p.Endorsers = append(p.Endorsers, record)
	} else {
		p.Rejectors = append(p.Rejectors, record)
	}

	if err := e.store.InsertVote(ctx, ProposalVote{ProposalID: proposalID, AgentAddress: agentAddress, Action: action, Weight: weight, Timestamp: now}); err != nil {
		return Proposal{}, gerrors.Wrap(gerrors.KindStoreError, err)
	}
	logAction := LogEndorse
	if action == ActionReject {
		logAction = LogReject
	}
	if err := e.appendLog(ctx, proposalID, logAction, agentAddress, agent.Tier.String(), &weight, now, nil); err != nil {
		return Proposal{}, err
	}
	if err := e.store.UpdateProposal(ctx, p); err != nil {
		return Proposal{}, gerrors.Wrap(gerrors.KindStoreError, err)
	}

	return e.evaluateLocked(ctx, p)
}

// Evaluate implements the evaluate(proposal) contract. It acquires the
// engine lock; use evaluateLocked internally when the lock is already held.
func (e *Engine) Evaluate(ctx context.Context, p Proposal) (Proposal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.evaluateLocked(ctx, p)
}

func (e *Engine) evaluateLocked(ctx context.Context, p Proposal) (Proposal, error) {
	if p.Status != StatusPending {
		return p, nil
	}
	if p.RejectionWeight() >= e.cfg.RejectionThreshold {
		p.Status = StatusRejected
		if err := e.store.UpdateProposal(ctx, p); err != nil {
			return Proposal{}, gerrors.Wrap(gerrors.KindStoreError, err)
		}
		return p, nil
	}
	now := e.now()
	if now < p.MinVoteAt {
		return p, nil
	}
	if p.EndorsementWeight() >= e.cfg.thresholdFor(p.Type) {
		return e.acceptLocked(ctx, p)
	}
	return p, nil
}

func (e *Engine) acceptLocked(ctx context.Context, p Proposal) (Proposal, error) {
	if p.Type == ProposalCompound {
		for _, c := range p.Components {
			if !e.vocab.Exists(c) {
				return e.expireLocked(ctx, p)
			}
		}
	} else {
		for _, kw := range p.BaseGlyph.Keywords {
			if _, hit := e.vocab.Match(kw); hit {
				return e.expireLocked(ctx, p)
			}
		}
	}

	now := e.now()
	var newGlyphID string
	if p.Type == ProposalCompound {
		compoundID := "C" + p.ID
		if err := e.store.InsertCompound(ctx, CompoundGlyph{
			ID: compoundID, Name: p.Name, Components: p.Components,
			Description: p.Description, Proposer: p.Proposer, CreatedAt: now,
		}); err != nil {
			return Proposal{}, gerrors.Wrap(gerrors.KindStoreError, err)
		}
		newGlyphID = compoundID
	} else {
		baseID := "B" + p.ID
		if err := e.vocab.Install(ctx, vocabulary.CommunityGlyph{
			Definition: vocabulary.Definition{
				ID: baseID, Meaning: p.BaseGlyph.Meaning, Domain: vocabulary.Domain(p.BaseGlyph.Domain),
				Keywords: p.BaseGlyph.Keywords,
			},
			Proposer:  p.Proposer,
			CreatedAt: now,
		}); err != nil {
			return Proposal{}, gerrors.Wrap(gerrors.KindStoreError, err)
		}
		newGlyphID = baseID
	}

	p.Status = StatusAccepted
	if err := e.store.UpdateProposal(ctx, p); err != nil {
		return Proposal{}, gerrors.Wrap(gerrors.KindStoreError, err)
	}
	if err := e.appendLog(ctx, p.ID, LogAccept, p.Proposer, "", nil, now, map[string]any{"glyphId": newGlyphID}); err != nil {
		return Proposal{}, err
	}
	return p, nil
}

func (e *Engine) expireLocked(ctx context.Context, p Proposal) (Proposal, error) {
	now := e.now()
	p.Status = StatusExpired
	if err := e.store.UpdateProposal(ctx, p); err != nil {
		return Proposal{}, gerrors.Wrap(gerrors.KindStoreError, err)
	}
	if err := e.appendLog(ctx, p.ID, LogExpire, p.Proposer, "", nil, now, nil); err != nil {
		return Proposal{}, err
	}
	return p, nil
}

// Amend implements the amend(proposalId, newFields, reason) contract.
func (e *Engine) Amend(ctx context.Context, proposalID string, in CreateProposalInput, reason, amenderAddress string) (Proposal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	original, ok, err := e.store.GetProposal(ctx, proposalID)
	if err != nil {
		return Proposal{}, gerrors.Wrap(gerrors.KindStoreError, err)
	}
	if !ok {
		return Proposal{}, gerrors.New(gerrors.KindInvalidInput, "proposal not found")
	}
	if original.Status != StatusPending {
		return Proposal{}, gerrors.New(gerrors.KindAmendNotPending, "original proposal is not pending")
	}

	agent, ok, err := e.identity.Lookup(ctx, amenderAddress)
	if err != nil {
		return Proposal{}, gerrors.Wrap(gerrors.KindStoreError, err)
	}
	if !ok {
		return Proposal{}, gerrors.New(gerrors.KindNotRegistered, "amender is not a registered agent")
	}

	prefix := "P"
	if original.Type == ProposalCompound {
		prefix = "CP"
	}
	seq, err := e.store.NextProposalSequence(ctx, prefix)
	if err != nil {
		return Proposal{}, gerrors.Wrap(gerrors.KindStoreError, err)
	}

	now := e.now()
	weight := agent.Tier.Weight()
	// Open question resolved (see DESIGN.md): the amender's auto-endorsement
	// is re-applied fresh, weighted by their tier at amendment time — it does
	// not carry forward the original proposer's historical weight.
	amended := Proposal{
		ID:          fmt.Sprintf("%s%02d", prefix, seq),
		Type:        original.Type,
		Status:      StatusPending,
		Name:        in.Name,
		Description: in.Description,
		Proposer:    amenderAddress,
		CreatedAt:   now,
		ExpiresAt:   now + e.cfg.expiryFor(original.Type),
		MinVoteAt:   now + e.cfg.minVoteFor(original.Type),
		Components:  in.Components,
		BaseGlyph:   in.BaseGlyph,
		Supersedes:  proposalID,
		Endorsers:   []EndorsementRecord{{AgentAddress: amenderAddress, Weight: weight, Timestamp: now}},
	}
	if err := e.store.InsertProposal(ctx, amended); err != nil {
		return Proposal{}, gerrors.Wrap(gerrors.KindStoreError, err)
	}
	if err := e.store.InsertVote(ctx, ProposalVote{ProposalID: amended.ID, AgentAddress: amenderAddress, Action: ActionEndorse, Weight: weight, Timestamp: now}); err != nil {
		return Proposal{}, gerrors.Wrap(gerrors.KindStoreError, err)
	}

	original.Status = StatusSuperseded
	original.SupersededBy = amended.ID
	if err := e.store.UpdateProposal(ctx, original); err != nil {
		return Proposal{}, gerrors.Wrap(gerrors.KindStoreError, err)
	}

	if err := e.appendLog(ctx, amended.ID, LogAmend, amenderAddress, agent.Tier.String(), &weight, now, map[string]any{"reason": reason, "supersedes": proposalID}); err != nil {
		return Proposal{}, err
	}
	if err := e.appendLog(ctx, proposalID, LogSupersede, amenderAddress, agent.Tier.String(), nil, now, map[string]any{"supersededBy": amended.ID}); err != nil {
		return Proposal{}, err
	}
	return amended, nil
}

// Comment implements comment posting on a proposal's discussion thread.
func (e *Engine) Comment(ctx context.Context, proposalID, author, body, parentID string) (Comment, error) {
	if len(body) == 0 || len(body) > 2000 {
		return Comment{}, gerrors.New(gerrors.KindInvalidInput, "comment body must be 1-2000 characters")
	}
	_, ok, err := e.store.GetProposal(ctx, proposalID)
	if err != nil {
		return Comment{}, gerrors.Wrap(gerrors.KindStoreError, err)
	}
	if !ok {
		return Comment{}, gerrors.New(gerrors.KindInvalidInput, "proposal not found")
	}
	if parentID != "" {
		parents, err := e.store.ListComments(ctx, proposalID)
		if err != nil {
			return Comment{}, gerrors.Wrap(gerrors.KindStoreError, err)
		}
		found := false
		for _, c := range parents {
			if c.ID == parentID {
				found = true
				if c.ParentID != "" {
					return Comment{}, gerrors.New(gerrors.KindInvalidInput, "parent comment must itself be top-level")
				}
			}
		}
		if !found {
			return Comment{}, gerrors.New(gerrors.KindInvalidInput, "parent comment not found")
		}
	}

	now := e.now()
	c := Comment{ID: uuid.NewString(), ProposalID: proposalID, Author: author, Body: body, ParentID: parentID, CreatedAt: now}
	if err := e.store.InsertComment(ctx, c); err != nil {
		return Comment{}, gerrors.Wrap(gerrors.KindStoreError, err)
	}
	if err := e.appendLog(ctx, proposalID, LogComment, author, "", nil, now, map[string]any{"commentId": c.ID}); err != nil {
		return Comment{}, err
	}
	return c, nil
}

// ExpireSweep implements expireSweep(): idempotent, safe to call at any
// cadence ≤ spec.md §5's one-minute interval.
func (e *Engine) ExpireSweep(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	expirable, err := e.store.ListExpirable(ctx, e.now())
	if err != nil {
		return gerrors.Wrap(gerrors.KindStoreError, err)
	}
	for _, p := range expirable {
		after, err := e.evaluateLocked(ctx, p)
		if err != nil {
			return err
		}
		if after.Status == StatusPending {
			if _, err := e.expireLocked(ctx, after); err != nil {
				return err
			}
		}
	}
	return nil
}

// Summary assembles the /governance/proposals/:id/summary response.
func (e *Engine) Summary(ctx context.Context, proposalID string) (Proposal, []Comment, []GovernanceLogEntry, VoteStatus, error) {
	p, ok, err := e.store.GetProposal(ctx, proposalID)
	if err != nil {
		return Proposal{}, nil, nil, VoteStatus{}, gerrors.Wrap(gerrors.KindStoreError, err)
	}
	if !ok {
		return Proposal{}, nil, nil, VoteStatus{}, gerrors.New(gerrors.KindInvalidInput, "proposal not found")
	}
	comments, err := e.store.ListComments(ctx, proposalID)
	if err != nil {
		return Proposal{}, nil, nil, VoteStatus{}, gerrors.Wrap(gerrors.KindStoreError, err)
	}
	log, err := e.store.ListGovernanceLog(ctx, proposalID)
	if err != nil {
		return Proposal{}, nil, nil, VoteStatus{}, gerrors.Wrap(gerrors.KindStoreError, err)
	}
	threshold := e.cfg.thresholdFor(p.Type)
	status := VoteStatus{
		Endorsements: p.EndorsementWeight(),
		Rejections:   p.RejectionWeight(),
		Threshold:    threshold,
		MinVoteAt:    p.MinVoteAt,
		CanAccept:    p.Status == StatusPending && e.now() >= p.MinVoteAt && p.EndorsementWeight() >= threshold,
	}
	return p, comments, log, status, nil
}

func (e *Engine) appendLog(ctx context.Context, proposalID string, action LogAction, agent, tier string, weight *uint32, ts int64, payload map[string]any) error {
	entry := GovernanceLogEntry{
		ID: uuid.NewString(), ProposalID: proposalID, Action: action,
		Agent: agent, AgentTier: tier, Weight: weight, Timestamp: ts, Payload: payload,
	}
	if err := e.store.AppendGovernanceLog(ctx, entry); err != nil {
		return gerrors.Wrap(gerrors.KindStoreError, err)
	}
	// spec.md §4.5 enumerates exactly these governance event kinds; expire
	// and supersede are audit-only and never reach the broadcast fabric.
	switch action {
	case LogPropose, LogEndorse, LogReject, LogComment, LogAmend, LogAccept:
		event := map[string]any{"proposalId": proposalID, "action": string(action), "agent": agent, "agentTier": tier, "timestamp": ts}
		for k, v := range payload {
			event[k] = v
		}
		e.publisher.Publish("governance_"+string(action), event)
	}
	return nil
}

// Compounds returns every installed compound glyph (backing GET /compounds
// and the ingress send pipeline's compound-ID lookup).
func (e *Engine) Compounds(ctx context.Context) ([]CompoundGlyph, error) {
	compounds, err := e.store.ListCompounds(ctx)
	if err != nil {
		return nil, gerrors.Wrap(gerrors.KindStoreError, err)
	}
	return compounds, nil
}

// CompoundExists reports whether id names an installed compound glyph. The
// compound namespace is referential, not a Vocabulary concern (spec.md
// §4.2), so the send pipeline checks here in addition to Vocabulary.Exists.
func (e *Engine) CompoundExists(ctx context.Context, id string) (bool, error) {
	compounds, err := e.Compounds(ctx)
	if err != nil {
		return false, err
	}
	for _, c := range compounds {
		if c.ID == id {
			return true, nil
		}
	}
	return false, nil
}

// UseCompound increments a compound glyph's use-count. Called once per
// encode/send that references the compound ID (spec.md §3's lifecycle
// invariant).
func (e *Engine) UseCompound(ctx context.Context, id string) error {
	if err := e.store.IncrementCompoundUseCount(ctx, id); err != nil {
		return gerrors.Wrap(gerrors.KindStoreError, err)
	}
	return nil
}
