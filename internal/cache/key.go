package cache

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Query types used as key prefixes.
const (
	QuerySearchTerm     = "search_term"
	QuerySearchCategory = "search_category"
	QuerySearchOffers   = "search_offers"
)

// Key derives a stable cache key from a query type and its parameters.
// Parameters are encoded as JSON with sorted object keys, so insertion order
// never changes the key. The digest is BLAKE2b-128 in hex.
func Key(queryType string, params map[string]any) (string, error) {
	if params == nil {
		params = map[string]any{}
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to encode cache params: %w", err)
	}

	h, err := blake2b.New(16, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create digest: %w", err)
	}
	h.Write([]byte(queryType))
	h.Write([]byte{':'})
	h.Write(encoded)

	return hex.EncodeToString(h.Sum(nil)), nil
}
