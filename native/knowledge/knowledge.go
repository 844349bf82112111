// Package knowledge is the durable message log plus its derived indices:
// per-glyph usage, per-agent activity, and the sliding-window sequence
// detector. All three derived views must be reconstructable by replaying the
// message log from empty state (spec.md §4.3's restartability invariant).
package knowledge

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Message mirrors spec.md §3's Message entity.
type Message struct {
	ID                string
	Glyph             string
	Sender            string
	Recipient         string
	Data              map[string]any
	Timestamp         int64
	MessageHash       string
	AttestationTxHash string
	Encrypted         bool
}

// Store is the persistence port Knowledge writes through and replays from.
type Store interface {
	InsertMessage(ctx context.Context, m Message) error
	ListMessages(ctx context.Context, limit, offset int, since int64) ([]Message, error)
	// AllMessagesAscending returns the full message log ordered by
	// (timestamp, id) for derived-state replay.
	AllMessagesAscending(ctx context.Context) ([]Message, error)
}

// GlyphStat is the per-glyph derived counter.
type GlyphStat struct {
	Glyph     string
	Count     int64
	FirstSeen int64
	LastSeen  int64
	Agents    map[string]struct{}
}

// AgentStat is the per-agent derived counter.
type AgentStat struct {
	Address      string
	MessagesSent int64
	GlyphsUsed   map[string]struct{}
	LastSeen     int64
}

// SequenceObservation mirrors spec.md §3's SequenceObservation entity.
type SequenceObservation struct {
	Sequence       []string
	Count          int64
	FirstSeen      int64
	LastSeen       int64
	DistinctPairs  map[string]struct{}
	InvolvedAgents map[string]struct{}
}

// Promotable reports whether the observation has crossed both the count and
// distinct-pair thresholds (spec.md §4.3).
func (s *SequenceObservation) Promotable(cfg Config) bool {
	return s.Count >= int64(cfg.SeqPromoteCount) && len(s.DistinctPairs) >= cfg.SeqPromotePairs
}

// Config holds the tunable constants named in spec.md §9.
type Config struct {
	WindowMs        int64
	SeqPromoteCount int
	SeqPromotePairs int
	PerPairCap      int
}

// DefaultConfig returns the constants' documented defaults.
func DefaultConfig() Config {
	return Config{
		WindowMs:        30_000,
		SeqPromoteCount: 10,
		SeqPromotePairs: 3,
		PerPairCap:      1024,
	}
}

type windowEntry struct {
	glyph     string
	timestamp int64
}

type pairKey struct {
	sender    string
	recipient string
}

// Knowledge is the single entry point for message ingestion and its derived
// views. All in-memory mutation happens under mu, matching spec.md §5's
// mapping of "single cooperative task" onto a preemptively-scheduled runtime.
type Knowledge struct {
	store Store
	cfg   Config

	mu          sync.RWMutex
	glyphStats  map[string]*GlyphStat
	agentStats  map[string]*AgentStat
	pairWindows map[pairKey][]windowEntry
	sequences   map[string]*SequenceObservation
}

// New constructs an empty Knowledge. Callers should call Replay at startup to
// rebuild derived state from the message log (or seed from a persisted cache
// via SequenceCache, see cache.go).
func New(store Store, cfg Config) *Knowledge {
	return &Knowledge{
		store:       store,
		cfg:         cfg,
		glyphStats:  make(map[string]*GlyphStat),
		agentStats:  make(map[string]*AgentStat),
		pairWindows: make(map[pairKey][]windowEntry),
		sequences:   make(map[string]*SequenceObservation),
	}
}

// Record ingests a message: it is always appended to the durable log, but
// counters and sequence detection only run for non-encrypted messages (spec.md
// §3 invariant: "A message is recorded in Knowledge only if encrypted=false").
func (k *Knowledge) Record(ctx context.Context, m Message) error {
	if err := k.store.InsertMessage(ctx, m); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if m.Encrypted {
		return nil
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.applyLocked(m)
	return nil
}

func (k *Knowledge) applyLocked(m Message) {
	gs, ok := k.glyphStats[m.Glyph]
	if !ok {
		gs = &GlyphStat{Glyph: m.Glyph, FirstSeen: m.Timestamp, Agents: make(map[string]struct{})}
		k.glyphStats[m.Glyph] = gs
	}
	gs.Count++
	gs.LastSeen = m.Timestamp
	gs.Agents[m.Sender] = struct{}{}

	as, ok := k.agentStats[m.Sender]
	if !ok {
		as = &AgentStat{Address: m.Sender, GlyphsUsed: make(map[string]struct{})}
		k.agentStats[m.Sender] = as
	}
	as.MessagesSent++
	as.GlyphsUsed[m.Glyph] = struct{}{}
	as.LastSeen = m.Timestamp

	k.offerToSequenceDetector(m)
}

// offerToSequenceDetector appends the message to its (sender, recipient)
// window, prunes entries older than WindowMs, then emits every contiguous
// 2- and 3-gram ending at the new message.
func (k *Knowledge) offerToSequenceDetector(m Message) {
	key := pairKey{sender: m.Sender, recipient: m.Recipient}
	window := append(k.pairWindows[key], windowEntry{glyph: m.Glyph, timestamp: m.Timestamp})

	cutoff := m.Timestamp - k.cfg.WindowMs
	start := 0
	for start < len(window) && window[start].timestamp < cutoff {
		start++
	}
	window = window[start:]
	if len(window) > k.cfg.PerPairCap {
		window = window[len(window)-k.cfg.PerPairCap:]
	}
	k.pairWindows[key] = window

	for n := 2; n <= 3; n++ {
		if len(window) < n {
			continue
		}
		gram := window[len(window)-n:]
		seq := make([]string, n)
		for i, e := range gram {
			seq[i] = e.glyph
		}
		k.recordSequence(seq, m)
	}
}

func (k *Knowledge) recordSequence(seq []string, m Message) {
	id := sequenceID(seq)
	obs, ok := k.sequences[id]
	if !ok {
		obs = &SequenceObservation{
			Sequence:       append([]string(nil), seq...),
			FirstSeen:      m.Timestamp,
			DistinctPairs:  make(map[string]struct{}),
			InvolvedAgents: make(map[string]struct{}),
		}
		k.sequences[id] = obs
	}
	obs.Count++
	obs.LastSeen = m.Timestamp
	obs.DistinctPairs[m.Sender+"->"+m.Recipient] = struct{}{}
	obs.InvolvedAgents[m.Sender] = struct{}{}
	obs.InvolvedAgents[m.Recipient] = struct{}{}
}

func sequenceID(seq []string) string {
	out := seq[0]
	for _, g := range seq[1:] {
		out += "|" + g
	}
	return out
}

// Replay discards all derived state and rebuilds it by re-applying the
// durable message log in (timestamp, id) order. Cold start with empty derived
// state plus Replay must equal the live indices byte-for-byte (spec.md §8).
func (k *Knowledge) Replay(ctx context.Context) error {
	messages, err := k.store.AllMessagesAscending(ctx)
	if err != nil {
		return fmt.Errorf("replay messages: %w", err)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.glyphStats = make(map[string]*GlyphStat)
	k.agentStats = make(map[string]*AgentStat)
	k.pairWindows = make(map[pairKey][]windowEntry)
	k.sequences = make(map[string]*SequenceObservation)
	for _, m := range messages {
		if m.Encrypted {
			continue
		}
		k.applyLocked(m)
	}
	return nil
}

// GlyphStats returns a stable-ordered snapshot of per-glyph counters.
func (k *Knowledge) GlyphStats() []GlyphStat {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]GlyphStat, 0, len(k.glyphStats))
	for _, gs := range k.glyphStats {
		out = append(out, cloneGlyphStat(gs))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Glyph < out[j].Glyph })
	return out
}

func cloneGlyphStat(gs *GlyphStat) GlyphStat {
	agents := make(map[string]struct{}, len(gs.Agents))
	for a := range gs.Agents {
		agents[a] = struct{}{}
	}
	return GlyphStat{Glyph: gs.Glyph, Count: gs.Count, FirstSeen: gs.FirstSeen, LastSeen: gs.LastSeen, Agents: agents}
}

// AgentStats returns a stable-ordered snapshot of per-agent counters.
func (k *Knowledge) AgentStats() []AgentStat {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]AgentStat, 0, len(k.agentStats))
	for _, as := range k.agentStats {
		glyphs := make(map[string]struct{}, len(as.GlyphsUsed))
		for g := range as.GlyphsUsed {
			glyphs[g] = struct{}{}
		}
		out = append(out, AgentStat{Address: as.Address, MessagesSent: as.MessagesSent, GlyphsUsed: glyphs, LastSeen: as.LastSeen})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Sequences returns a stable-ordered snapshot of every observed n-gram.
func (k *Knowledge) Sequences() []SequenceObservation {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]SequenceObservation, 0, len(k.sequences))
	for _, obs := range k.sequences {
		pairs := make(map[string]struct{}, len(obs.DistinctPairs))
		for p := range obs.DistinctPairs {
			pairs[p] = struct{}{}
		}
		agents := make(map[string]struct{}, len(obs.InvolvedAgents))
		for a := range obs.InvolvedAgents {
			agents[a] = struct{}{}
		}
		out = append(out, SequenceObservation{
			Sequence:       append([]string(nil), obs.Sequence...),
			Count:          obs.Count,
			FirstSeen:      obs.FirstSeen,
			LastSeen:       obs.LastSeen,
			DistinctPairs:  pairs,
			InvolvedAgents: agents,
		})
	}
	sort.Slice(out, func(i, j int) bool { return sequenceID(out[i].Sequence) < sequenceID(out[j].Sequence) })
	return out
}

// PromotableSequences filters Sequences to those crossing both thresholds.
func (k *Knowledge) PromotableSequences() []SequenceObservation {
	all := k.Sequences()
	out := all[:0:0]
	for _, obs := range all {
		o := obs
		if o.Promotable(k.cfg) {
			out = append(out, o)
		}
	}
	return out
}

// Config returns the detector's tunable constants.
func (k *Knowledge) Config() Config { return k.cfg }

// ListMessages delegates to Store's paginated read.
func (k *Knowledge) ListMessages(ctx context.Context, limit, offset int, since int64) ([]Message, error) {
	return k.store.ListMessages(ctx, limit, offset, since)
}
