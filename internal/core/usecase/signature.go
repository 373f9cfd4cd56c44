package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// QuerySignature derives the case-memory key for a query. The text is
// lowercased and whitespace-collapsed so trivially different spellings of
// the same query share a signature, and the embedding model version is mixed
// in so entries from different models never collide.
func QuerySignature(queryText, embedModelVersion string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(queryText)), " ")
	sum := sha256.Sum256([]byte(normalized + "\n" + embedModelVersion))
	return hex.EncodeToString(sum[:])
}
