package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/glyphmesh/glyphmesh/native/knowledge"
)

// InsertMessage implements knowledge.Store.
func (s *Store) InsertMessage(ctx context.Context, m knowledge.Message) error {
	data, err := json.Marshal(m.Data)
	if err != nil {
		return fmt.Errorf("marshal message data: %w", err)
	}
	row := MessageModel{
		ID: m.ID, Glyph: m.Glyph, Sender: m.Sender, Recipient: m.Recipient, Data: string(data),
		Timestamp: m.Timestamp, MessageHash: m.MessageHash, AttestationTxHash: m.AttestationTxHash, Encrypted: m.Encrypted,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// ListMessages implements knowledge.Store, filtering by since and clamping
// limit per spec.md §4.1.
func (s *Store) ListMessages(ctx context.Context, limit, offset int, since int64) ([]knowledge.Message, error) {
	q := s.db.WithContext(ctx).Order("timestamp asc, id asc").Limit(clampLimit(limit))
	if offset > 0 {
		q = q.Offset(offset)
	}
	if since > 0 {
		q = q.Where("timestamp >= ?", since)
	}
	var rows []MessageModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return messagesFromRows(rows)
}

// AllMessagesAscending implements knowledge.Store for cold-start replay.
func (s *Store) AllMessagesAscending(ctx context.Context) ([]knowledge.Message, error) {
	var rows []MessageModel
	if err := s.db.WithContext(ctx).Order("timestamp asc, id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return messagesFromRows(rows)
}

func messagesFromRows(rows []MessageModel) ([]knowledge.Message, error) {
	out := make([]knowledge.Message, 0, len(rows))
	for _, r := range rows {
		var data map[string]any
		if r.Data != "" && r.Data != "null" {
			if err := json.Unmarshal([]byte(r.Data), &data); err != nil {
				return nil, fmt.Errorf("unmarshal data for %s: %w", r.ID, err)
			}
		}
		out = append(out, knowledge.Message{
			ID: r.ID, Glyph: r.Glyph, Sender: r.Sender, Recipient: r.Recipient, Data: data,
			Timestamp: r.Timestamp, MessageHash: r.MessageHash, AttestationTxHash: r.AttestationTxHash, Encrypted: r.Encrypted,
		})
	}
	return out, nil
}
