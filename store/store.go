package store

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Store is the concrete GORM-backed implementation of every domain package's
// narrow Store interface (native/vocabulary.Store, native/identity.Store,
// native/knowledge.Store, native/governance.Store).
type Store struct {
	db *gorm.DB
}

// Open picks a driver by name ("sqlite" or "postgres") and migrates the
// schema, mirroring services/otc-gateway's split between its sqlite-backed
// tests and its postgres-backed main.go.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite", "":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// clampLimit enforces spec.md §4.1's pagination contract: limit is clamped to
// [1, 200], defaulting to 50, and is never rejected.
func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 200 {
		return 200
	}
	return limit
}

// Reset implements the admin-only full reset backing POST /knowledge/reset
// (spec.md §6.2). It clears every durable table; compile-time built-in
// glyphs are untouched since they are never Store rows.
func (s *Store) Reset() error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		tables := []any{
			&MessageModel{}, &CommunityBaseGlyphModel{}, &CompoundGlyphModel{},
			&ProposalModel{}, &ProposalVoteModel{}, &CommentModel{},
			&GovernanceLogModel{}, &ProposalSequenceModel{}, &AgentModel{},
		}
		for _, t := range tables {
			if err := tx.Where("1 = 1").Delete(t).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
