package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/glyphmesh/glyphmesh/native/identity"
)

// UpsertAgent implements identity.Store.
func (s *Store) UpsertAgent(ctx context.Context, a identity.Agent) error {
	protocols, err := json.Marshal(a.Protocols)
	if err != nil {
		return fmt.Errorf("marshal protocols: %w", err)
	}
	row := AgentModel{
		Address: a.Address, Name: a.Name, Tier: uint8(a.Tier), WalletAddress: a.WalletAddress,
		ServiceURL: a.ServiceURL, Protocols: string(protocols), RegisteredAt: a.RegisteredAt, LastSeen: a.LastSeen,
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

// TouchAgent implements identity.Store.
func (s *Store) TouchAgent(ctx context.Context, address string, lastSeen int64) error {
	return s.db.WithContext(ctx).Model(&AgentModel{}).Where("address = ?", address).Update("last_seen", lastSeen).Error
}

// GetAgent implements identity.Store.
func (s *Store) GetAgent(ctx context.Context, address string) (identity.Agent, bool, error) {
	var row AgentModel
	err := s.db.WithContext(ctx).Where("address = ?", address).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return identity.Agent{}, false, nil
	}
	if err != nil {
		return identity.Agent{}, false, err
	}
	a, err := agentFromRow(row)
	return a, true, err
}

// GetAgentByName implements identity.Store.
func (s *Store) GetAgentByName(ctx context.Context, name string) (identity.Agent, bool, error) {
	var row AgentModel
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return identity.Agent{}, false, nil
	}
	if err != nil {
		return identity.Agent{}, false, err
	}
	a, err := agentFromRow(row)
	return a, true, err
}

// ListAgents implements identity.Store.
func (s *Store) ListAgents(ctx context.Context, limit, offset int) ([]identity.Agent, error) {
	var rows []AgentModel
	q := s.db.WithContext(ctx).Order("registered_at asc").Limit(clampLimit(limit))
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]identity.Agent, 0, len(rows))
	for _, r := range rows {
		a, err := agentFromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func agentFromRow(r AgentModel) (identity.Agent, error) {
	var protocols []string
	if r.Protocols != "" {
		if err := json.Unmarshal([]byte(r.Protocols), &protocols); err != nil {
			return identity.Agent{}, fmt.Errorf("unmarshal protocols for %s: %w", r.Address, err)
		}
	}
	return identity.Agent{
		Address: r.Address, Name: r.Name, Tier: identity.Tier(r.Tier), WalletAddress: r.WalletAddress,
		ServiceURL: r.ServiceURL, Protocols: protocols, RegisteredAt: r.RegisteredAt, LastSeen: r.LastSeen,
	}, nil
}
