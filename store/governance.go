package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/glyphmesh/glyphmesh/native/governance"
)

// NextProposalSequence implements governance.Store with an atomic
// upsert-then-increment inside a transaction, giving each prefix
// ("P" for base glyphs, "CP" for compounds) its own monotonic counter.
func (s *Store) NextProposalSequence(ctx context.Context, prefix string) (int, error) {
	var next int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row ProposalSequenceModel
		err := tx.Where("prefix = ?", prefix).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = ProposalSequenceModel{Prefix: prefix, Value: 0}
		} else if err != nil {
			return err
		}
		row.Value++
		next = row.Value
		return tx.Save(&row).Error
	})
	return next, err
}

// InsertProposal implements governance.Store.
func (s *Store) InsertProposal(ctx context.Context, p governance.Proposal) error {
	row, err := proposalToRow(p)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// UpdateProposal implements governance.Store.
func (s *Store) UpdateProposal(ctx context.Context, p governance.Proposal) error {
	row, err := proposalToRow(p)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

// GetProposal implements governance.Store.
func (s *Store) GetProposal(ctx context.Context, id string) (governance.Proposal, bool, error) {
	var row ProposalModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return governance.Proposal{}, false, nil
	}
	if err != nil {
		return governance.Proposal{}, false, err
	}
	p, err := proposalFromRow(row)
	return p, true, err
}

// ListProposals implements governance.Store. status == "" or "all" returns
// every proposal regardless of status.
func (s *Store) ListProposals(ctx context.Context, status string, limit, offset int) ([]governance.Proposal, error) {
	q := s.db.WithContext(ctx).Order("created_at asc").Limit(clampLimit(limit))
	if offset > 0 {
		q = q.Offset(offset)
	}
	if status != "" && status != "all" {
		q = q.Where("status = ?", status)
	}
	var rows []ProposalModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]governance.Proposal, 0, len(rows))
	for _, r := range rows {
		p, err := proposalFromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ListExpirable implements governance.Store.
func (s *Store) ListExpirable(ctx context.Context, now int64) ([]governance.Proposal, error) {
	var rows []ProposalModel
	if err := s.db.WithContext(ctx).Where("status = ? AND expires_at <= ?", string(governance.StatusPending), now).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]governance.Proposal, 0, len(rows))
	for _, r := range rows {
		p, err := proposalFromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// HasActiveProposalWithName implements governance.Store.
func (s *Store) HasActiveProposalWithName(ctx context.Context, name string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&ProposalModel{}).
		Where("name = ? AND status = ?", name, string(governance.StatusPending)).
		Count(&count).Error
	return count > 0, err
}

// InsertVote implements governance.Store.
func (s *Store) InsertVote(ctx context.Context, v governance.ProposalVote) error {
	row := ProposalVoteModel{ProposalID: v.ProposalID, AgentAddress: v.AgentAddress, Action: string(v.Action), Weight: v.Weight, Timestamp: v.Timestamp}
	return s.db.WithContext(ctx).Create(&row).Error
}

// HasVoted implements governance.Store.
func (s *Store) HasVoted(ctx context.Context, proposalID, agentAddress string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&ProposalVoteModel{}).
		Where("proposal_id = ? AND agent_address = ?", proposalID, agentAddress).
		Count(&count).Error
	return count > 0, err
}

// ListVotes implements governance.Store.
func (s *Store) ListVotes(ctx context.Context, proposalID string) ([]governance.ProposalVote, error) {
	var rows []ProposalVoteModel
	if err := s.db.WithContext(ctx).Where("proposal_id = ?", proposalID).Order("timestamp asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]governance.ProposalVote, 0, len(rows))
	for _, r := range rows {
		out = append(out, governance.ProposalVote{ProposalID: r.ProposalID, AgentAddress: r.AgentAddress, Action: governance.VoteAction(r.Action), Weight: r.Weight, Timestamp: r.Timestamp})
	}
	return out, nil
}

// InsertComment implements governance.Store.
func (s *Store) InsertComment(ctx context.Context, c governance.Comment) error {
	row := CommentModel{ID: c.ID, ProposalID: c.ProposalID, Author: c.Author, Body: c.Body, ParentID: c.ParentID, CreatedAt: c.CreatedAt}
	return s.db.WithContext(ctx).Create(&row).Error
}

// ListComments implements governance.Store.
func (s *Store) ListComments(ctx context.Context, proposalID string) ([]governance.Comment, error) {
	var rows []CommentModel
	if err := s.db.WithContext(ctx).Where("proposal_id = ?", proposalID).Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]governance.Comment, 0, len(rows))
	for _, r := range rows {
		out = append(out, governance.Comment{ID: r.ID, ProposalID: r.ProposalID, Author: r.Author, Body: r.Body, ParentID: r.ParentID, CreatedAt: r.CreatedAt})
	}
	return out, nil
}

// AppendGovernanceLog implements governance.Store.
func (s *Store) AppendGovernanceLog(ctx context.Context, e governance.GovernanceLogEntry) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal governance log payload: %w", err)
	}
	row := GovernanceLogModel{
		ID: e.ID, ProposalID: e.ProposalID, Action: string(e.Action), Agent: e.Agent,
		AgentTier: e.AgentTier, Weight: e.Weight, Timestamp: e.Timestamp, Payload: string(payload),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// ListGovernanceLog implements governance.Store.
func (s *Store) ListGovernanceLog(ctx context.Context, proposalID string) ([]governance.GovernanceLogEntry, error) {
	var rows []GovernanceLogModel
	if err := s.db.WithContext(ctx).Where("proposal_id = ?", proposalID).Order("timestamp asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]governance.GovernanceLogEntry, 0, len(rows))
	for _, r := range rows {
		var payload map[string]any
		if r.Payload != "" && r.Payload != "null" {
			if err := json.Unmarshal([]byte(r.Payload), &payload); err != nil {
				return nil, fmt.Errorf("unmarshal governance log payload for %s: %w", r.ID, err)
			}
		}
		out = append(out, governance.GovernanceLogEntry{
			ID: r.ID, ProposalID: r.ProposalID, Action: governance.LogAction(r.Action), Agent: r.Agent,
			AgentTier: r.AgentTier, Weight: r.Weight, Timestamp: r.Timestamp, Payload: payload,
		})
	}
	return out, nil
}

// InsertCompound implements governance.Store.
func (s *Store) InsertCompound(ctx context.Context, c governance.CompoundGlyph) error {
	components, err := json.Marshal(c.Components)
	if err != nil {
		return fmt.Errorf("marshal compound components: %w", err)
	}
	row := CompoundGlyphModel{ID: c.ID, Name: c.Name, Components: string(components), Description: c.Description, Proposer: c.Proposer, CreatedAt: c.CreatedAt, UseCount: c.UseCount}
	return s.db.WithContext(ctx).Create(&row).Error
}

// ListCompounds implements governance.Store.
func (s *Store) ListCompounds(ctx context.Context) ([]governance.CompoundGlyph, error) {
	var rows []CompoundGlyphModel
	if err := s.db.WithContext(ctx).Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]governance.CompoundGlyph, 0, len(rows))
	for _, r := range rows {
		var components []string
		if err := json.Unmarshal([]byte(r.Components), &components); err != nil {
			return nil, fmt.Errorf("unmarshal compound components for %s: %w", r.ID, err)
		}
		out = append(out, governance.CompoundGlyph{ID: r.ID, Name: r.Name, Components: components, Description: r.Description, Proposer: r.Proposer, CreatedAt: r.CreatedAt, UseCount: r.UseCount})
	}
	return out, nil
}

// IncrementCompoundUseCount implements the "compound use-counts increment on
// every encode/send that references the compound ID" invariant (spec.md §3).
func (s *Store) IncrementCompoundUseCount(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&CompoundGlyphModel{}).Where("id = ?", id).
		UpdateColumn("use_count", gorm.Expr("use_count + 1")).Error
}

func proposalToRow(p governance.Proposal) (ProposalModel, error) {
	endorsers, err := json.Marshal(p.Endorsers)
	if err != nil {
		return ProposalModel{}, fmt.Errorf("marshal endorsers: %w", err)
	}
	rejectors, err := json.Marshal(p.Rejectors)
	if err != nil {
		return ProposalModel{}, fmt.Errorf("marshal rejectors: %w", err)
	}
	components, err := json.Marshal(p.Components)
	if err != nil {
		return ProposalModel{}, fmt.Errorf("marshal components: %w", err)
	}
	row := ProposalModel{
		ID: p.ID, Type: string(p.Type), Status: string(p.Status), Name: p.Name, Description: p.Description,
		Proposer: p.Proposer, CreatedAt: p.CreatedAt, ExpiresAt: p.ExpiresAt, MinVoteAt: p.MinVoteAt,
		Endorsers: string(endorsers), Rejectors: string(rejectors),
		SupersededBy: p.SupersededBy, Supersedes: p.Supersedes, Components: string(components),
	}
	if p.BaseGlyph != nil {
		keywords, err := json.Marshal(p.BaseGlyph.Keywords)
		if err != nil {
			return ProposalModel{}, fmt.Errorf("marshal base glyph keywords: %w", err)
		}
		row.BaseGlyphDomain = p.BaseGlyph.Domain
		row.BaseGlyphKeywords = string(keywords)
		row.BaseGlyphMeaning = p.BaseGlyph.Meaning
		row.BaseGlyphBitmap = p.BaseGlyph.Bitmap
	}
	return row, nil
}

func proposalFromRow(r ProposalModel) (governance.Proposal, error) {
	var endorsers, rejectors []governance.EndorsementRecord
	if r.Endorsers != "" && r.Endorsers != "null" {
		if err := json.Unmarshal([]byte(r.Endorsers), &endorsers); err != nil {
			return governance.Proposal{}, fmt.Errorf("unmarshal endorsers for %s: %w", r.ID, err)
		}
	}
	if r.Rejectors != "" && r.Rejectors != "null" {
		if err := json.Unmarshal([]byte(r.Rejectors), &rejectors); err != nil {
			return governance.Proposal{}, fmt.Errorf("unmarshal rejectors for %s: %w", r.ID, err)
		}
	}
	var components []string
	if r.Components != "" && r.Components != "null" {
		if err := json.Unmarshal([]byte(r.Components), &components); err != nil {
			return governance.Proposal{}, fmt.Errorf("unmarshal components for %s: %w", r.ID, err)
		}
	}
	p := governance.Proposal{
		ID: r.ID, Type: governance.ProposalType(r.Type), Status: governance.ProposalStatus(r.Status),
		Name: r.Name, Description: r.Description, Proposer: r.Proposer, CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt, MinVoteAt: r.MinVoteAt, Endorsers: endorsers, Rejectors: rejectors,
		SupersededBy: r.SupersededBy, Supersedes: r.Supersedes, Components: components,
	}
	if p.Type == governance.ProposalBaseGlyph {
		var keywords []string
		if r.BaseGlyphKeywords != "" && r.BaseGlyphKeywords != "null" {
			if err := json.Unmarshal([]byte(r.BaseGlyphKeywords), &keywords); err != nil {
				return governance.Proposal{}, fmt.Errorf("unmarshal base glyph keywords for %s: %w", r.ID, err)
			}
		}
		p.BaseGlyph = &governance.BaseGlyphPayload{Domain: r.BaseGlyphDomain, Keywords: keywords, Meaning: r.BaseGlyphMeaning, Bitmap: r.BaseGlyphBitmap}
	}
	return p, nil
}
