package ingress

import (
	"encoding/json"
	"net/http"
	"strconv"

	gerrors "github.com/glyphmesh/glyphmesh/core/errors"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps a domain error's stable Kind to an HTTP status and writes
// the {error, message, ...details} body shape spec.md §6 requires. Errors
// without a recognized Kind are treated as store_error (5xx).
func writeError(w http.ResponseWriter, err error, details map[string]any) {
	kind, ok := gerrors.KindOf(err)
	if !ok {
		kind = gerrors.KindStoreError
	}
	body := map[string]any{"error": string(kind), "message": err.Error()}
	for k, v := range details {
		body[k] = v
	}
	writeJSON(w, statusForKind(kind), body)
}

func statusForKind(kind gerrors.Kind) int {
	switch kind {
	case gerrors.KindNoMatch, gerrors.KindUnknownGlyph, gerrors.KindInvalidInput,
		gerrors.KindDuplicateVote, gerrors.KindNotPending, gerrors.KindComponentMissing,
		gerrors.KindKeywordCollision, gerrors.KindAmendNotPending:
		return http.StatusBadRequest
	case gerrors.KindNotRegistered:
		return http.StatusUnprocessableEntity
	case gerrors.KindUnauthorized:
		return http.StatusForbidden
	case gerrors.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case gerrors.KindRateLimited:
		return http.StatusTooManyRequests
	case gerrors.KindRelayFailed:
		return http.StatusOK // relay failures are non-fatal status fields, not HTTP errors
	case gerrors.KindStoreError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func clampPageParams(q map[string][]string) (limit, offset int) {
	limit = 50
	offset = 0
	if v, ok := firstValue(q, "limit"); ok {
		if n, err := parsePositiveInt(v); err == nil {
			limit = n
		}
	}
	if v, ok := firstValue(q, "offset"); ok {
		if n, err := parsePositiveInt(v); err == nil {
			offset = n
		}
	}
	return limit, offset
}

func firstValue(q map[string][]string, key string) (string, bool) {
	vs, ok := q[key]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

func parsePositiveInt(s string) (int, error) {
	return strconv.Atoi(s)
}
