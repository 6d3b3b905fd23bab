package types

import "encoding/json"

// DimensionScore is the judge's score for one rubric dimension.
type DimensionScore struct {
	DimensionID string   `json:"dimension_id"`
	Score       int      `json:"score"`
	Rationale   string   `json:"rationale"`
	Evidence    []string `json:"evidence,omitempty"`
}

// JudgeScore is a judge model's verdict on one candidate response.
// (ScenarioID, CandidateModelID, JudgeModelID) is its idempotency key.
type JudgeScore struct {
	JudgeScoreID      string           `json:"judge_score_id"`
	ScenarioID        string           `json:"scenario_id"`
	CandidateModelID  string           `json:"candidate_model_id"`
	CandidateProvider string           `json:"candidate_provider"`
	JudgeModelID      string           `json:"judge_model_id"`
	JudgeProvider     string           `json:"judge_provider"`
	RubricVersion     string           `json:"rubric_version"`
	GRSScore          float64          `json:"grs_score"`
	DimensionScores   []DimensionScore `json:"dimension_scores"`
	Flags             map[string]any   `json:"flags,omitempty"`
	Raw               json.RawMessage  `json:"raw,omitempty"`
	Meta              CallMeta         `json:"meta"`
}
