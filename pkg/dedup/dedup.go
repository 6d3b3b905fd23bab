// Package dedup collapses candidate scenarios whose prompts are equal after
// normalization.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/jdziat/govbench/pkg/types"
)

// Report summarizes one deduplication pass.
type Report struct {
	RawCount     int `json:"raw_count"`
	DedupedCount int `json:"deduped_count"`
	DedupRemoved int `json:"dedup_removed"`
}

// Normalize lower-cases s, collapses whitespace runs to one space and trims
// the ends.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Hash returns the hex SHA-256 of the normalized prompt.
func Hash(prompt string) string {
	sum := sha256.Sum256([]byte(Normalize(prompt)))
	return hex.EncodeToString(sum[:])
}

// Dedup keeps the first candidate for each prompt hash, in input order, and
// sets PromptHash on the survivors. Only prompt text is compared.
func Dedup(cands []types.CandidateScenario) ([]types.CandidateScenario, Report) {
	seen := make(map[string]struct{}, len(cands))
	out := make([]types.CandidateScenario, 0, len(cands))
	for _, c := range cands {
		h := Hash(c.Prompt)
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		c.PromptHash = h
		out = append(out, c)
	}
	return out, Report{
		RawCount:     len(cands),
		DedupedCount: len(out),
		DedupRemoved: len(cands) - len(out),
	}
}
