package vocabulary

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// overlayFile is the on-disk shape of an operator-curated glyph bundle.
type overlayFile struct {
	Glyphs []overlayGlyph `yaml:"glyphs"`
}

type overlayGlyph struct {
	ID         string   `yaml:"id"`
	Meaning    string   `yaml:"meaning"`
	Pose       string   `yaml:"pose"`
	Symbol     string   `yaml:"symbol"`
	Domain     string   `yaml:"domain"`
	Keywords   []string `yaml:"keywords"`
	VisualHint string   `yaml:"visualHint"`
	Proposer   string   `yaml:"proposer"`
}

// LoadOverlay reads a YAML bundle of extra glyph definitions and installs
// each one through the normal Install path, so they persist to Store and
// become indistinguishable from a community-governed glyph once loaded. A
// missing file is not an error: the overlay is optional.
func (v *Vocabulary) LoadOverlay(ctx context.Context, path string, nowMillis int64) error {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read vocabulary overlay: %w", err)
	}

	var file overlayFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse vocabulary overlay: %w", err)
	}

	for _, g := range file.Glyphs {
		if v.Exists(g.ID) {
			continue
		}
		def := CommunityGlyph{
			Definition: Definition{
				ID:         g.ID,
				Meaning:    g.Meaning,
				Pose:       g.Pose,
				Symbol:     g.Symbol,
				Domain:     Domain(g.Domain),
				Keywords:   g.Keywords,
				VisualHint: g.VisualHint,
			},
			Proposer:  g.Proposer,
			CreatedAt: nowMillis,
		}
		if def.Proposer == "" {
			def.Proposer = "overlay"
		}
		if err := v.Install(ctx, def); err != nil {
			return fmt.Errorf("install overlay glyph %q: %w", g.ID, err)
		}
	}
	return nil
}
