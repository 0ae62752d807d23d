package utils

import "github.com/google/uuid"

// CanonicalPair orders two ids so an unordered pair always maps to the same (lo, hi) tuple.
// Match and Conversation rows are stored and queried through it.
func CanonicalPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() > b.String() {
		return b, a
	}
	return a, b
}
