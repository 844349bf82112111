package vocabulary

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"
)

// CommunityGlyph is a base glyph definition installed through governance (or
// the optional startup overlay) rather than compiled into the binary.
type CommunityGlyph struct {
	Definition
	Proposer  string
	CreatedAt int64
}

// Store is the persistence port Vocabulary writes through on Install. The
// concrete implementation lives in package store; Vocabulary only depends on
// this narrow interface so it never imports the storage layer.
type Store interface {
	InsertCommunityBaseGlyph(ctx context.Context, g CommunityGlyph) error
	ListCommunityBaseGlyphs(ctx context.Context) ([]CommunityGlyph, error)
}

// Vocabulary holds the in-memory union of the built-in table and the
// community base-glyph set loaded from Store. All reads and writes are
// guarded by a single RWMutex: installs happen only at a Store-transaction
// boundary (a suspension point), and the in-memory map is mutated only
// immediately after that write commits, so readers never observe a torn map.
type Vocabulary struct {
	store Store

	mu sync.RWMutex
	// byID holds every resolvable definition (built-in ∪ community), keyed by
	// a case-folded ID.
	byID map[string]Definition
	// communityOrder preserves install order for Match's fallback search.
	communityOrder []string
	// keywordIndex is a flattened (keyword, glyph ID) list built in search
	// order: built-ins in declaration order, then community glyphs in
	// install order. It backs both Match and Suggest.
	keywordIndex []keywordEntry
}

type keywordEntry struct {
	keyword string
	id      string
}

// New constructs a Vocabulary seeded with the compile-time built-in table.
// Callers must call LoadFromStore before serving traffic to pull in any
// already-installed community glyphs.
func New(store Store) *Vocabulary {
	v := &Vocabulary{
		store: store,
		byID:  make(map[string]Definition, len(builtins)),
	}
	for _, def := range builtins {
		v.indexLocked(def)
	}
	return v
}

func (v *Vocabulary) indexLocked(def Definition) {
	v.byID[foldID(def.ID)] = def
	for _, kw := range def.Keywords {
		v.keywordIndex = append(v.keywordIndex, keywordEntry{keyword: strings.ToLower(kw), id: def.ID})
	}
}

func foldID(id string) string { return strings.ToLower(strings.TrimSpace(id)) }

// LoadFromStore pulls every persisted community base glyph into the
// in-memory map, in the order Store returns them (install order).
func (v *Vocabulary) LoadFromStore(ctx context.Context) error {
	glyphs, err := v.store.ListCommunityBaseGlyphs(ctx)
	if err != nil {
		return fmt.Errorf("load community glyphs: %w", err)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, g := range glyphs {
		v.indexLocked(g.Definition)
		v.communityOrder = append(v.communityOrder, g.ID)
	}
	return nil
}

// Resolve performs a case-insensitive lookup across built-in and community
// glyphs. Compound glyphs are not tracked here — see governance.Engine.
func (v *Vocabulary) Resolve(id string) (Definition, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	def, ok := v.byID[foldID(id)]
	return def, ok
}

// Exists reports whether id resolves to an installed definition.
func (v *Vocabulary) Exists(id string) bool {
	_, ok := v.Resolve(id)
	return ok
}

// Match performs whole-word keyword search over the lowercased text,
// built-ins first in declaration order, then community glyphs in install
// order. It returns the first hit; no multi-keyword scoring is performed.
func (v *Vocabulary) Match(text string) (string, bool) {
	lowered := strings.ToLower(text)
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, entry := range v.keywordIndex {
		if containsWholeWord(lowered, entry.keyword) {
			return entry.id, true
		}
	}
	return "", false
}

func containsWholeWord(haystack, word string) bool {
	if word == "" {
		return false
	}
	idx := 0
	for {
		pos := strings.Index(haystack[idx:], word)
		if pos < 0 {
			return false
		}
		start := idx + pos
		end := start + len(word)
		beforeOK := start == 0 || !isWordByte(haystack[start-1])
		afterOK := end == len(haystack) || !isWordByte(haystack[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
		if idx >= len(haystack) {
			return false
		}
	}
}

func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}

// suggestion pairs a keyword with the input word that scored closest to it.
type suggestion struct {
	keyword string
	dist    int
	order   int
}

// Suggest is invoked only on a Match miss. It splits text on whitespace,
// scores every known keyword against the closest input word by Levenshtein
// distance, and returns the n closest keywords, ties broken by the
// keyword's position in the search-order index (insertion order).
func (v *Vocabulary) Suggest(text string, n int) []string {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 || n <= 0 {
		return nil
	}
	v.mu.RLock()
	index := v.keywordIndex
	v.mu.RUnlock()

	seen := make(map[string]*suggestion, len(index))
	order := 0
	ranked := make([]*suggestion, 0, len(index))
	for _, entry := range index {
		s, ok := seen[entry.keyword]
		if !ok {
			s = &suggestion{keyword: entry.keyword, dist: -1, order: order}
			order++
			seen[entry.keyword] = s
			ranked = append(ranked, s)
		}
		best := s.dist
		for _, w := range words {
			d := levenshtein.ComputeDistance(w, entry.keyword)
			if best < 0 || d < best {
				best = d
			}
		}
		s.dist = best
	}

	sortSuggestions(ranked)
	if n > len(ranked) {
		n = len(ranked)
	}
	out := make([]string, 0, n)
	for _, s := range ranked[:n] {
		out = append(out, s.keyword)
	}
	return out
}

func sortSuggestions(s []*suggestion) {
	// Stable insertion sort: small n (keyword count), ties broken by
	// insertion order which is already reflected in s's starting order.
	for i := 1; i < len(s); i++ {
		j := i
		for j > 0 && s[j-1].dist > s[j].dist {
			s[j-1], s[j] = s[j], s[j-1]
			j--
		}
	}
}

// Install atomically persists a new community base glyph and then makes it
// resolvable in-memory. It fails if the ID is already bound in any
// namespace, preserving the "one definition forever" invariant.
func (v *Vocabulary) Install(ctx context.Context, g CommunityGlyph) error {
	if v.Exists(g.ID) {
		return fmt.Errorf("glyph id %q already installed", g.ID)
	}
	if err := v.store.InsertCommunityBaseGlyph(ctx, g); err != nil {
		return fmt.Errorf("install community glyph: %w", err)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.indexLocked(g.Definition)
	v.communityOrder = append(v.communityOrder, g.ID)
	return nil
}

// All returns every resolvable definition (built-in ∪ community) for catalog
// listing endpoints.
func (v *Vocabulary) All() []Definition {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]Definition, 0, len(v.byID))
	for _, def := range builtins {
		out = append(out, def)
	}
	for _, id := range v.communityOrder {
		out = append(out, v.byID[foldID(id)])
	}
	return out
}
