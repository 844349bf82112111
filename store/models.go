// Package store is the durable relational surface backing every domain
// package's narrow Store port. It imports native/vocabulary, native/identity,
// native/knowledge, and native/governance and converts between their domain
// types and GORM rows.
package store

import "gorm.io/gorm"

// AgentModel persists native/identity.Agent.
type AgentModel struct {
	Address       string `gorm:"primaryKey;size:64"`
	Name          string `gorm:"uniqueIndex;size:128"`
	Tier          uint8  `gorm:"index"`
	WalletAddress string `gorm:"size:128;index"`
	ServiceURL    string `gorm:"size:512"`
	Protocols     string `gorm:"type:text"`
	RegisteredAt  int64
	LastSeen      int64 `gorm:"index"`
}

// MessageModel persists native/knowledge.Message.
type MessageModel struct {
	ID                string `gorm:"primaryKey;size:64"`
	Glyph             string `gorm:"size:32;index"`
	Sender            string `gorm:"size:64;index"`
	Recipient         string `gorm:"size:256;index"`
	Data              string `gorm:"type:text"`
	Timestamp         int64  `gorm:"index"`
	MessageHash       string `gorm:"size:64;index"`
	AttestationTxHash string `gorm:"size:128"`
	Encrypted         bool   `gorm:"index"`
}

// CommunityBaseGlyphModel persists native/vocabulary.CommunityGlyph.
type CommunityBaseGlyphModel struct {
	ID         string `gorm:"primaryKey;size:32"`
	Meaning    string `gorm:"size:256"`
	Pose       string `gorm:"size:128"`
	Symbol     string `gorm:"size:16"`
	Domain     string `gorm:"size:32"`
	Keywords   string `gorm:"type:text"`
	VisualHint string `gorm:"size:128"`
	Proposer   string `gorm:"index;size:64"`
	CreatedAt  int64
}

// CompoundGlyphModel persists native/governance.CompoundGlyph.
type CompoundGlyphModel struct {
	ID          string `gorm:"primaryKey;size:32"`
	Name        string `gorm:"index;size:128"`
	Components  string `gorm:"type:text"`
	Description string `gorm:"type:text"`
	Proposer    string `gorm:"size:64"`
	CreatedAt   int64
	UseCount    int64
}

// ProposalModel persists native/governance.Proposal. BaseGlyph fields are
// only meaningful when Type == "base_glyph"; Components only when Type ==
// "compound" — mirrored from the domain type's own optional-field shape.
type ProposalModel struct {
	ID                string `gorm:"primaryKey;size:32"`
	Type              string `gorm:"size:16;index"`
	Status            string `gorm:"size:16;index"`
	Name              string `gorm:"index;size:128"`
	Description       string `gorm:"type:text"`
	Proposer          string `gorm:"index;size:64"`
	CreatedAt         int64
	ExpiresAt         int64 `gorm:"index"`
	MinVoteAt         int64
	Endorsers         string `gorm:"type:text"`
	Rejectors         string `gorm:"type:text"`
	SupersededBy      string `gorm:"size:32"`
	Supersedes        string `gorm:"size:32"`
	Components        string `gorm:"type:text"`
	BaseGlyphDomain   string `gorm:"size:32"`
	BaseGlyphKeywords string `gorm:"type:text"`
	BaseGlyphMeaning  string `gorm:"size:256"`
	BaseGlyphBitmap   []byte
}

// ProposalVoteModel persists native/governance.ProposalVote, enforcing the
// one-vote-per-(proposal,agent) invariant with a composite unique index.
type ProposalVoteModel struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	ProposalID   string `gorm:"uniqueIndex:idx_proposal_agent;size:32"`
	AgentAddress string `gorm:"uniqueIndex:idx_proposal_agent;size:64"`
	Action       string `gorm:"size:16"`
	Weight       uint32
	Timestamp    int64
}

// CommentModel persists native/governance.Comment.
type CommentModel struct {
	ID         string `gorm:"primaryKey;size:64"`
	ProposalID string `gorm:"index;size:32"`
	Author     string `gorm:"size:64"`
	Body       string `gorm:"type:text"`
	ParentID   string `gorm:"size:64"`
	CreatedAt  int64
}

// GovernanceLogModel persists native/governance.GovernanceLogEntry.
type GovernanceLogModel struct {
	ID         string `gorm:"primaryKey;size:64"`
	ProposalID string `gorm:"index;size:32"`
	Action     string `gorm:"size:16"`
	Agent      string `gorm:"size:64"`
	AgentTier  string `gorm:"size:16"`
	Weight     *uint32
	Timestamp  int64 `gorm:"index"`
	Payload    string `gorm:"type:text"`
}

// ProposalSequenceModel backs NextProposalSequence's monotonically increasing
// per-prefix counter (spec.md §4.4: "compound prefix vs base-glyph prefix
// differs").
type ProposalSequenceModel struct {
	Prefix string `gorm:"primaryKey;size:8"`
	Value  int
}

// AutoMigrate creates or updates every table. Migrations are additive only
// (spec.md §6.7): a future change adds columns, never removes or repurposes
// one.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&AgentModel{},
		&MessageModel{},
		&CommunityBaseGlyphModel{},
		&CompoundGlyphModel{},
		&ProposalModel{},
		&ProposalVoteModel{},
		&CommentModel{},
		&GovernanceLogModel{},
		&ProposalSequenceModel{},
	)
}
