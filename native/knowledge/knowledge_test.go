package knowledge

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type memStore struct {
	messages []Message
}

func (m *memStore) InsertMessage(ctx context.Context, msg Message) error {
	m.messages = append(m.messages, msg)
	return nil
}

func (m *memStore) ListMessages(ctx context.Context, limit, offset int, since int64) ([]Message, error) {
	return m.messages, nil
}

func (m *memStore) AllMessagesAscending(ctx context.Context) ([]Message, error) {
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out, nil
}

func testConfig() Config {
	return Config{WindowMs: 30_000, SeqPromoteCount: 10, SeqPromotePairs: 3, PerPairCap: 1024}
}

func TestRecordUpdatesGlyphAndAgentCounters(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	k := New(store, testConfig())

	require.NoError(t, k.Record(ctx, Message{ID: "m1", Glyph: "X05", Sender: "alice", Recipient: "bob", Timestamp: 1000}))
	require.NoError(t, k.Record(ctx, Message{ID: "m2", Glyph: "X05", Sender: "alice", Recipient: "bob", Timestamp: 2000}))

	stats := k.GlyphStats()
	require.Len(t, stats, 1)
	require.Equal(t, int64(2), stats[0].Count)

	agents := k.AgentStats()
	require.Len(t, agents, 1)
	require.Equal(t, int64(2), agents[0].MessagesSent)
}

func TestEncryptedMessagesSkipCountersButPersist(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	k := New(store, testConfig())

	require.NoError(t, k.Record(ctx, Message{ID: "m1", Glyph: "X05", Sender: "alice", Recipient: "bob", Timestamp: 1000, Encrypted: true}))
	require.Len(t, store.messages, 1, "encrypted message still reaches the durable log")
	require.Empty(t, k.GlyphStats(), "encrypted message must not affect derived counters")
}

func TestSequenceDetectorPromotesAfterThresholds(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	k := New(store, testConfig())

	pairs := []struct{ sender, recipient string }{
		{"alice", "bob"}, {"carol", "dave"}, {"eve", "frank"},
	}
	ts := int64(0)
	for i := 0; i < 4; i++ {
		for _, p := range pairs {
			require.NoError(t, k.Record(ctx, Message{ID: idFor(ts), Glyph: "X05", Sender: p.sender, Recipient: p.recipient, Timestamp: ts}))
			ts += 10
			require.NoError(t, k.Record(ctx, Message{ID: idFor(ts), Glyph: "X01", Sender: p.sender, Recipient: p.recipient, Timestamp: ts}))
			ts += 10
		}
	}

	promotable := k.PromotableSequences()
	require.NotEmpty(t, promotable)
	found := false
	for _, obs := range promotable {
		if len(obs.Sequence) == 2 && obs.Sequence[0] == "X05" && obs.Sequence[1] == "X01" {
			found = true
			require.GreaterOrEqual(t, obs.Count, int64(10))
			require.GreaterOrEqual(t, len(obs.DistinctPairs), 3)
		}
	}
	require.True(t, found, "X05,X01 sequence should be promotable across 3 distinct pairs")
}

func TestSequenceWindowPrunesOlderThanWindowMs(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	k := New(store, testConfig())

	require.NoError(t, k.Record(ctx, Message{ID: "m1", Glyph: "X05", Sender: "alice", Recipient: "bob", Timestamp: 0}))
	require.NoError(t, k.Record(ctx, Message{ID: "m2", Glyph: "X01", Sender: "alice", Recipient: "bob", Timestamp: 40_000}))

	for _, obs := range k.Sequences() {
		require.NotEqual(t, []string{"X05", "X01"}, obs.Sequence, "entries 40s apart must fall outside the 30s window")
	}
}

func TestReplayReproducesLiveDerivedState(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	k := New(store, testConfig())

	require.NoError(t, k.Record(ctx, Message{ID: "m1", Glyph: "X05", Sender: "alice", Recipient: "bob", Timestamp: 1000}))
	require.NoError(t, k.Record(ctx, Message{ID: "m2", Glyph: "X01", Sender: "alice", Recipient: "bob", Timestamp: 2000}))

	liveGlyphs := k.GlyphStats()
	liveSequences := k.Sequences()

	replayed := New(store, testConfig())
	require.NoError(t, replayed.Replay(ctx))

	require.Equal(t, liveGlyphs, replayed.GlyphStats())
	require.Equal(t, liveSequences, replayed.Sequences())
}

func idFor(ts int64) string {
	return fmt.Sprintf("m%d", ts)
}
