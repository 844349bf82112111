package knowledge

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"lukechampine.com/blake3"
)

// hashPayload fixes the field order hashed into messageHash. encoding/json
// sorts map keys when marshaling, so nested Data fields hash deterministically
// too.
type hashPayload struct {
	Glyph     string         `json:"glyph"`
	Data      map[string]any `json:"data,omitempty"`
	Recipient string         `json:"recipient"`
	Timestamp int64          `json:"timestamp"`
}

// ComputeMessageHash derives the deterministic 32-byte messageHash for a
// message's canonical fields.
func ComputeMessageHash(glyph string, data map[string]any, recipient string, timestamp int64) (string, error) {
	raw, err := json.Marshal(hashPayload{Glyph: glyph, Data: data, Recipient: recipient, Timestamp: timestamp})
	if err != nil {
		return "", fmt.Errorf("canonicalize message: %w", err)
	}
	sum := blake3.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
