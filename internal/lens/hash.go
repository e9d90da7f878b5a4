package lens

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainLens  = "mindlens/lens/v1"
	DomainInput = "mindlens/input/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash computes the content-addressed digest of an effective lens.
//
// The digest covers only the state-bearing content: profile id plus the
// (node_id, state) pairs. Timestamps, labels, weights and scopes are
// excluded so that two resolutions with identical effective states always
// produce identical hashes. Pairs are sorted by node id before hashing, so
// the digest is invariant to override insertion order.
func Hash(profileID string, pairs []StatePair) (string, error) {
	sorted := make([]StatePair, len(pairs))
	copy(sorted, pairs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].NodeID < sorted[j].NodeID })

	nodes := make([]any, len(sorted))
	for i, p := range sorted {
		nodes[i] = map[string]any{
			"node":  p.NodeID,
			"state": string(p.State),
		}
	}

	canonical, err := MarshalCanonical(map[string]any{
		"profile": profileID,
		"nodes":   nodes,
	})
	if err != nil {
		return "", fmt.Errorf("lens hash: %w", err)
	}

	return hashWithDomain(DomainLens, canonical), nil
}

// MustHash is like Hash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustHash(profileID string, pairs []StatePair) string {
	h, err := Hash(profileID, pairs)
	if err != nil {
		panic(err)
	}
	return h
}

// InputHash computes the digest used to key preview votes by input text.
// Same domain-separated construction as the lens hash.
func InputHash(text string) string {
	canonical, err := marshalCanonicalString(text)
	if err != nil {
		// marshalCanonicalString only fails on encoder errors, which cannot
		// happen for a plain string.
		panic(err)
	}
	return hashWithDomain(DomainInput, canonical)
}
