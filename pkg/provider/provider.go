// Package provider defines the chat model client contract, the clients for
// each supported backend, and the explicit registry that maps model ids to
// clients.
package provider

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jdziat/govbench/pkg/types"
)

// Kind names a backend.
type Kind string

const (
	KindOpenAI    Kind = "openai"
	KindAnthropic Kind = "anthropic"
	KindOllama    Kind = "ollama"
	KindCustom    Kind = "custom" // any OpenAI-compatible endpoint
	KindStatic    Kind = "static" // fixed reply, for dry runs
)

// Result is the normalized outcome of one chat call.
type Result struct {
	Text         string
	Raw          json.RawMessage
	Usage        types.Usage
	FinishReason string
}

// Client sends chat-style requests to one model.
//
// Chat returns a *errors.APIError for non-2xx responses (carrying the status
// and any Retry-After), a *errors.TransportError for failures below HTTP, and
// a *errors.MalformedResponseError when the payload has no usable shape.
type Client interface {
	Chat(ctx context.Context, messages []types.Message, temperature float64, maxTokens int) (*Result, error)

	// Provider returns the backend name recorded on responses.
	Provider() string
}

// Spec describes how to build a client for one model.
type Spec struct {
	Provider Kind          `yaml:"provider" json:"provider"`
	Model    string        `yaml:"model" json:"model"`
	BaseURL  string        `yaml:"base_url" json:"base_url,omitempty"`
	APIKey   string        `yaml:"api_key" json:"-"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout,omitempty"`

	// Text is the reply of a KindStatic client.
	Text string `yaml:"text" json:"text,omitempty"`
}

func (s Spec) timeout(def time.Duration) time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return def
}
