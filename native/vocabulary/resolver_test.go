package vocabulary

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type memStore struct {
	glyphs []CommunityGlyph
}

func (m *memStore) InsertCommunityBaseGlyph(ctx context.Context, g CommunityGlyph) error {
	m.glyphs = append(m.glyphs, g)
	return nil
}

func (m *memStore) ListCommunityBaseGlyphs(ctx context.Context) ([]CommunityGlyph, error) {
	out := make([]CommunityGlyph, len(m.glyphs))
	copy(out, m.glyphs)
	return out, nil
}

func TestResolveBuiltinCaseInsensitive(t *testing.T) {
	v := New(&memStore{})
	def, ok := v.Resolve("q01")
	require.True(t, ok)
	require.Equal(t, "Q01", def.ID)
	require.Equal(t, "query", def.Meaning)
}

func TestMatchWholeWordOnly(t *testing.T) {
	v := New(&memStore{})
	_, ok := v.Match("requery the logs")
	require.False(t, ok, "substring 'query' inside 'requery' must not match")

	id, ok := v.Match("please query the database")
	require.True(t, ok)
	require.Equal(t, "Q01", id)
}

func TestMatchBuiltinBeforeCommunity(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	v := New(store)
	require.NoError(t, v.Install(ctx, CommunityGlyph{
		Definition: Definition{ID: "B01", Meaning: "custom-query", Domain: DomainFoundation, Keywords: []string{"query"}},
		Proposer:   "alice",
	}))
	id, ok := v.Match("query please")
	require.True(t, ok)
	require.Equal(t, "Q01", id, "built-in keyword must win over a colliding community keyword search order")
}

func TestSuggestOnMissReturnsClosestKeywords(t *testing.T) {
	v := New(&memStore{})
	suggestions := v.Suggest("quary database", 3)
	require.Len(t, suggestions, 3)
	require.Contains(t, suggestions, "query")
}

func TestInstallRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	v := New(&memStore{})
	err := v.Install(ctx, CommunityGlyph{Definition: Definition{ID: "Q01", Meaning: "dup"}})
	require.Error(t, err)
}

func TestInstallPersistsThenIndexes(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	v := New(store)
	require.NoError(t, v.Install(ctx, CommunityGlyph{
		Definition: Definition{ID: "B02", Meaning: "salute", Domain: DomainAgent, Keywords: []string{"salute"}},
		Proposer:   "bob",
	}))
	require.Len(t, store.glyphs, 1)
	def, ok := v.Resolve("B02")
	require.True(t, ok)
	require.Equal(t, "salute", def.Meaning)
}

func TestAllListsBuiltinsThenCommunityInInstallOrder(t *testing.T) {
	ctx := context.Background()
	v := New(&memStore{})
	require.NoError(t, v.Install(ctx, CommunityGlyph{Definition: Definition{ID: "B01", Meaning: "first"}}))
	require.NoError(t, v.Install(ctx, CommunityGlyph{Definition: Definition{ID: "B02", Meaning: "second"}}))
	all := v.All()
	require.Equal(t, "B01", all[len(builtins)].ID)
	require.Equal(t, "B02", all[len(builtins)+1].ID)
}
