package knowledge

import (
	"encoding/json"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
)

// snapshotKey is the single row the cache ever writes; the cache holds one
// point-in-time snapshot of derived sequence state, never a log.
var snapshotKey = []byte("sequence-snapshot")

type snapshotEntry struct {
	Sequence      []string `json:"sequence"`
	Count         int64    `json:"count"`
	FirstSeen     int64    `json:"firstSeen"`
	LastSeen      int64    `json:"lastSeen"`
	DistinctPairs []string `json:"distinctPairs"`
	Agents        []string `json:"agents"`
}

// SequenceCache is an optional warm-start cache backed by goleveldb. It is
// never a correctness dependency: Knowledge.Replay against the durable
// message log always produces the authoritative derived state, so a missing
// or corrupt cache file only costs a slower cold start, never a wrong one.
type SequenceCache struct {
	db *leveldb.DB
}

// OpenSequenceCache opens (creating if absent) a goleveldb database at path.
func OpenSequenceCache(path string) (*SequenceCache, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open sequence cache: %w", err)
	}
	return &SequenceCache{db: db}, nil
}

// Close releases the underlying database handle.
func (c *SequenceCache) Close() error { return c.db.Close() }

// Save persists the current sequence snapshot.
func (c *SequenceCache) Save(k *Knowledge) error {
	obs := k.Sequences()
	entries := make([]snapshotEntry, 0, len(obs))
	for _, o := range obs {
		entries = append(entries, snapshotEntry{
			Sequence:      o.Sequence,
			Count:         o.Count,
			FirstSeen:     o.FirstSeen,
			LastSeen:      o.LastSeen,
			DistinctPairs: keys(o.DistinctPairs),
			Agents:        keys(o.InvolvedAgents),
		})
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal sequence snapshot: %w", err)
	}
	if err := c.db.Put(snapshotKey, raw, nil); err != nil {
		return fmt.Errorf("write sequence snapshot: %w", err)
	}
	return nil
}

// LoadInto seeds k's in-memory sequence map from the last saved snapshot. It
// does not touch glyph/agent counters or sequence pair windows — only the
// aggregate counters used to answer /knowledge/sequences quickly before the
// next Replay. ErrNotFound is not an error here: an absent cache simply
// leaves k's sequence map empty until a Replay runs.
func (c *SequenceCache) LoadInto(k *Knowledge) error {
	raw, err := c.db.Get(snapshotKey, nil)
	if err == leveldb.ErrNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read sequence snapshot: %w", err)
	}
	var entries []snapshotEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("unmarshal sequence snapshot: %w", err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	for _, e := range entries {
		obs := &SequenceObservation{
			Sequence:       e.Sequence,
			Count:          e.Count,
			FirstSeen:      e.FirstSeen,
			LastSeen:       e.LastSeen,
			DistinctPairs:  toSet(e.DistinctPairs),
			InvolvedAgents: toSet(e.Agents),
		}
		k.sequences[sequenceID(obs.Sequence)] = obs
	}
	return nil
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func toSet(vals []string) map[string]struct{} {
	out := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		out[v] = struct{}{}
	}
	return out
}
