package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/glyphmesh/glyphmesh/native/vocabulary"
)

// InsertCommunityBaseGlyph implements vocabulary.Store.
func (s *Store) InsertCommunityBaseGlyph(ctx context.Context, g vocabulary.CommunityGlyph) error {
	keywords, err := json.Marshal(g.Keywords)
	if err != nil {
		return fmt.Errorf("marshal keywords: %w", err)
	}
	row := CommunityBaseGlyphModel{
		ID: g.ID, Meaning: g.Meaning, Pose: g.Pose, Symbol: g.Symbol,
		Domain: string(g.Domain), Keywords: string(keywords), VisualHint: g.VisualHint,
		Proposer: g.Proposer, CreatedAt: g.CreatedAt,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// ListCommunityBaseGlyphs implements vocabulary.Store, returning rows ordered
// by created_at ascending (explicit, since default row order is not
// guaranteed across drivers). Rows with equal created_at, such as overlay
// glyphs loaded in one batch, have no defined relative order.
func (s *Store) ListCommunityBaseGlyphs(ctx context.Context) ([]vocabulary.CommunityGlyph, error) {
	var rows []CommunityBaseGlyphModel
	if err := s.db.WithContext(ctx).Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]vocabulary.CommunityGlyph, 0, len(rows))
	for _, r := range rows {
		var keywords []string
		if err := json.Unmarshal([]byte(r.Keywords), &keywords); err != nil {
			return nil, fmt.Errorf("unmarshal keywords for %s: %w", r.ID, err)
		}
		out = append(out, vocabulary.CommunityGlyph{
			Definition: vocabulary.Definition{
				ID: r.ID, Meaning: r.Meaning, Pose: r.Pose, Symbol: r.Symbol,
				Domain: vocabulary.Domain(r.Domain), Keywords: keywords, VisualHint: r.VisualHint,
			},
			Proposer:  r.Proposer,
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}
