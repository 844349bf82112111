// Package governance implements the proposal lifecycle, weighted voting, and
// amendment chain by which agents extend the shared vocabulary.
package governance

// ProposalType distinguishes the two kinds of vocabulary extension a
// proposal can carry.
type ProposalType string

const (
	ProposalCompound ProposalType = "compound"
	ProposalBaseGlyph ProposalType = "base_glyph"
)

// ProposalStatus is one node of the DAG described in spec.md §4.4: terminal
// states never transition again.
type ProposalStatus string

const (
	StatusPending    ProposalStatus = "pending"
	StatusAccepted   ProposalStatus = "accepted"
	StatusRejected   ProposalStatus = "rejected"
	StatusExpired    ProposalStatus = "expired"
	StatusSuperseded ProposalStatus = "superseded"
)

// Terminal reports whether status is absorbing.
func (s ProposalStatus) Terminal() bool {
	switch s {
	case StatusAccepted, StatusRejected, StatusExpired, StatusSuperseded:
		return true
	default:
		return false
	}
}

// VoteAction is the ballot a voter casts on a proposal.
type VoteAction string

const (
	ActionEndorse VoteAction = "endorse"
	ActionReject  VoteAction = "reject"
)

// LogAction enumerates GovernanceLogEntry's append-only audit kinds.
type LogAction string

const (
	LogPropose   LogAction = "propose"
	LogEndorse   LogAction = "endorse"
	LogReject    LogAction = "reject"
	LogComment   LogAction = "comment"
	LogAmend     LogAction = "amend"
	LogAccept    LogAction = "accept"
	LogSupersede LogAction = "supersede"
	LogExpire    LogAction = "expire"
)

// EndorsementRecord is one (agent, weight, timestamp) entry tracked on a
// Proposal's endorsers or rejectors slice.
type EndorsementRecord struct {
	AgentAddress string
	Weight       uint32
	Timestamp    int64
}

// BaseGlyphPayload carries the type-specific fields of a base_glyph proposal.
type BaseGlyphPayload struct {
	Domain   string
	Keywords []string
	Meaning  string
	Bitmap   []byte // optional 16x16 bitmap, one byte per pixel
}

// Proposal mirrors spec.md §3's Proposal entity. Exactly one of Components
// (compound) or BaseGlyph (base_glyph) is populated, matching Type.
type Proposal struct {
	ID            string
	Type          ProposalType
	Status        ProposalStatus
	Name          string
	Description   string
	Proposer      string
	CreatedAt     int64
	ExpiresAt     int64
	MinVoteAt     int64
	Endorsers     []EndorsementRecord
	Rejectors     []EndorsementRecord
	SupersededBy  string
	Supersedes    string
	Components    []string
	BaseGlyph     *BaseGlyphPayload
}

// EndorsementWeight sums the weight of every endorser.
func (p Proposal) EndorsementWeight() uint32 {
	return sumWeight(p.Endorsers)
}

// RejectionWeight sums the weight of every rejector.
func (p Proposal) RejectionWeight() uint32 {
	return sumWeight(p.Rejectors)
}

func sumWeight(records []EndorsementRecord) uint32 {
	var total uint32
	for _, r := range records {
		total += r.Weight
	}
	return total
}

// ProposalVote is the join row enforcing one vote per (proposal, agent).
type ProposalVote struct {
	ProposalID   string
	AgentAddress string
	Action       VoteAction
	Weight       uint32
	Timestamp    int64
}

// Comment is a single-level-threaded discussion entry on a proposal.
type Comment struct {
	ID         string
	ProposalID string
	Author     string
	Body       string
	ParentID   string
	CreatedAt  int64
}

// GovernanceLogEntry is one append-only audit row.
type GovernanceLogEntry struct {
	ID         string
	ProposalID string
	Action     LogAction
	Agent      string
	AgentTier  string
	Weight     *uint32
	Timestamp  int64
	Payload    map[string]any
}

// CompoundGlyph mirrors spec.md §3's CompoundGlyph entity.
type CompoundGlyph struct {
	ID          string
	Name        string
	Components  []string
	Description string
	Proposer    string
	CreatedAt   int64
	UseCount    int64
}

// VoteStatus summarizes a proposal's current tally for the
// /governance/proposals/:id/summary endpoint.
type VoteStatus struct {
	Endorsements uint32
	Rejections   uint32
	Threshold    uint32
	MinVoteAt    int64
	CanAccept    bool
}
