package types

import (
	"encoding/json"
	"time"
)

// Message is one chat turn sent to a model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Usage reports token consumption for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CallMeta captures how a model call went.
type CallMeta struct {
	LatencyMS    int64     `json:"latency_ms"`
	Attempts     int       `json:"attempts"`
	Temperature  float64   `json:"temperature"`
	MaxTokens    int       `json:"max_tokens"`
	FinishReason string    `json:"finish_reason,omitempty"`
	Usage        Usage     `json:"usage"`
	CreatedAt    time.Time `json:"created_at"`
}

// CandidateResponse is one candidate model's answer to one scenario.
// (ScenarioID, ModelID) is its idempotency key.
type CandidateResponse struct {
	ResponseID string          `json:"response_id"`
	ScenarioID string          `json:"scenario_id"`
	ModelID    string          `json:"model_id"`
	Provider   string          `json:"provider"`
	Prompt     string          `json:"prompt"`
	Messages   []Message       `json:"messages"`
	OutputText string          `json:"output_text"`
	Raw        json.RawMessage `json:"raw,omitempty"`
	Meta       CallMeta        `json:"meta"`
}

// FailureRecord is the structured entry written when a call fails for good.
// Judge failures also carry the candidate and judge model ids.
type FailureRecord struct {
	ScenarioID       string    `json:"scenario_id"`
	ModelID          string    `json:"model_id"`
	Provider         string    `json:"provider,omitempty"`
	CandidateModelID string    `json:"candidate_model_id,omitempty"`
	JudgeModelID     string    `json:"judge_model_id,omitempty"`
	ErrorType        string    `json:"error_type"`
	Error            string    `json:"error"`
	StatusCode       int       `json:"status_code,omitempty"`
	Attempts         int       `json:"attempts"`
	FailedAt         time.Time `json:"failed_at"`
}
