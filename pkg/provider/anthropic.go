package provider

import (
	"context"
	"net/http"
	"strings"
	"time"

	pkghttp "github.com/jdziat/govbench/pkg/http"
	"github.com/jdziat/govbench/pkg/types"
)

const (
	anthropicBaseURL      = "https://api.anthropic.com"
	anthropicVersion      = "2023-06-01"
	anthropicMaxTokens    = 1024
	defaultAnthropicLimit = 60 * time.Second
)

// Anthropic is a client for the Anthropic Messages API.
type Anthropic struct {
	apiKey  string
	model   string
	baseURL string
	doer    pkghttp.Doer
}

// NewAnthropic creates an Anthropic client. A nil doer selects an
// *http.Client with Spec.Timeout.
func NewAnthropic(spec Spec, doer pkghttp.Doer) *Anthropic {
	baseURL := spec.BaseURL
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}
	if doer == nil {
		doer = &http.Client{Timeout: spec.timeout(defaultAnthropicLimit)}
	}
	return &Anthropic{
		apiKey:  spec.APIKey,
		model:   spec.Model,
		baseURL: strings.TrimRight(baseURL, "/"),
		doer:    doer,
	}
}

// Provider returns the backend name.
func (a *Anthropic) Provider() string {
	return string(KindAnthropic)
}

type anthropicRequest struct {
	Model       string          `json:"model"`
	System      string          `json:"system,omitempty"`
	Messages    []types.Message `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
}

// Chat sends a messages request. System turns are joined into the
// top-level system field.
func (a *Anthropic) Chat(ctx context.Context, messages []types.Message, temperature float64, maxTokens int) (*Result, error) {
	var system []string
	turns := make([]types.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == types.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	if maxTokens <= 0 {
		maxTokens = anthropicMaxTokens
	}

	body := anthropicRequest{
		Model:       a.model,
		System:      strings.Join(system, "\n\n"),
		Messages:    turns,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	headers := map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": anthropicVersion,
	}

	raw, err := pkghttp.PostJSON(ctx, a.doer, a.Provider(), a.baseURL+"/v1/messages", headers, body)
	if err != nil {
		return nil, err
	}
	payload, err := decodeMapping(raw)
	if err != nil {
		return nil, err
	}
	return Normalize(payload)
}
