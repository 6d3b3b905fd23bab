package judge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/jdziat/govbench/pkg/catalog"
	pkgerrors "github.com/jdziat/govbench/pkg/errors"
	"github.com/jdziat/govbench/pkg/types"
)

// Verdict is a validated judge reply.
type Verdict struct {
	GRSScore        float64
	DimensionScores []types.DimensionScore
	Flags           map[string]any
}

type wireScore struct {
	DimensionID string   `json:"dimension_id"`
	Score       *float64 `json:"score"`
	Rationale   string   `json:"rationale"`
	Evidence    []string `json:"evidence"`
}

type wireVerdict struct {
	DimensionScores []wireScore    `json:"dimension_scores"`
	GRSScore        *float64       `json:"grs_score"`
	Flags           map[string]any `json:"flags"`
}

// ExtractJSON returns the JSON object embedded in text, tolerating
// surrounding prose and markdown code fences.
func ExtractJSON(text string) ([]byte, error) {
	s := strings.TrimSpace(text)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if j := strings.Index(rest, "```"); j >= 0 {
			s = rest[:j]
		}
	}
	start, end := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return nil, pkgerrors.Malformed("judge reply contains no JSON object")
	}
	return []byte(s[start : end+1]), nil
}

// Parse validates a judge reply against rubric. Every rubric dimension
// must appear exactly once with an integer score inside the scale, no
// other dimension may appear, and grs_score must be present. Scores are
// never clamped. Dimension scores are returned in rubric order.
func Parse(text string, rubric *catalog.Rubric) (*Verdict, error) {
	data, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}
	var w wireVerdict
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&w); err != nil {
		return nil, &pkgerrors.MalformedResponseError{Reason: "judge reply is not valid JSON", Err: err}
	}
	if w.GRSScore == nil {
		return nil, pkgerrors.Malformed("grs_score is missing")
	}
	if math.IsNaN(*w.GRSScore) || math.IsInf(*w.GRSScore, 0) {
		return nil, pkgerrors.Malformed("grs_score is not finite")
	}

	byID := make(map[string]wireScore, len(w.DimensionScores))
	for _, s := range w.DimensionScores {
		if !hasDimension(rubric, s.DimensionID) {
			return nil, pkgerrors.Malformed("unknown dimension %q", s.DimensionID)
		}
		if _, dup := byID[s.DimensionID]; dup {
			return nil, pkgerrors.Malformed("dimension %q scored more than once", s.DimensionID)
		}
		if s.Score == nil {
			return nil, pkgerrors.Malformed("dimension %q has no score", s.DimensionID)
		}
		score := *s.Score
		if score != math.Trunc(score) {
			return nil, pkgerrors.Malformed("dimension %q score %v is not an integer", s.DimensionID, score)
		}
		if !rubric.Scale.Contains(int(score)) {
			return nil, pkgerrors.Malformed("dimension %q score %v outside [%d, %d]", s.DimensionID, score, rubric.Scale.Min, rubric.Scale.Max)
		}
		byID[s.DimensionID] = s
	}

	out := &Verdict{GRSScore: *w.GRSScore, Flags: w.Flags}
	for _, d := range rubric.Dimensions {
		s, ok := byID[d.ID]
		if !ok {
			return nil, pkgerrors.Malformed("dimension %q is missing", d.ID)
		}
		out.DimensionScores = append(out.DimensionScores, types.DimensionScore{
			DimensionID: d.ID,
			Score:       int(*s.Score),
			Rationale:   s.Rationale,
			Evidence:    s.Evidence,
		})
	}
	return out, nil
}

func hasDimension(rubric *catalog.Rubric, id string) bool {
	for _, d := range rubric.Dimensions {
		if d.ID == id {
			return true
		}
	}
	return false
}

// WeightedScore computes sum(score*weight)/sum(weight) over scores. It
// is used to flag replies whose grs_score disagrees with their own
// dimension scores.
func WeightedScore(rubric *catalog.Rubric, scores []types.DimensionScore) float64 {
	var num, den float64
	for _, s := range scores {
		w := rubric.Weight(s.DimensionID)
		num += float64(s.Score) * w
		den += w
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// grsTolerance is how far a reported grs_score may drift from the
// recomputed weighted score before the record is flagged.
const grsTolerance = 0.05

func grsMismatch(reported, computed float64) string {
	if math.Abs(reported-computed) <= grsTolerance {
		return ""
	}
	return fmt.Sprintf("reported %.4g, weighted dimensions give %.4g", reported, computed)
}
