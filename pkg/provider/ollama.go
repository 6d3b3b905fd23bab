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
	ollamaBaseURL      = "http://localhost:11434"
	defaultOllamaLimit = 120 * time.Second // local models are slow to load
)

// Ollama is a client for a local Ollama server.
type Ollama struct {
	baseURL string
	model   string
	doer    pkghttp.Doer
}

// NewOllama creates an Ollama client. A nil doer selects an *http.Client
// with Spec.Timeout.
func NewOllama(spec Spec, doer pkghttp.Doer) *Ollama {
	baseURL := spec.BaseURL
	if baseURL == "" {
		baseURL = ollamaBaseURL
	}
	if doer == nil {
		doer = &http.Client{Timeout: spec.timeout(defaultOllamaLimit)}
	}
	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   spec.Model,
		doer:    doer,
	}
}

// Provider returns the backend name.
func (o *Ollama) Provider() string {
	return string(KindOllama)
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []types.Message `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// Chat sends a non-streaming chat request.
func (o *Ollama) Chat(ctx context.Context, messages []types.Message, temperature float64, maxTokens int) (*Result, error) {
	body := ollamaRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   false,
		Options:  ollamaOptions{Temperature: temperature, NumPredict: maxTokens},
	}
	raw, err := pkghttp.PostJSON(ctx, o.doer, o.Provider(), o.baseURL+"/api/chat", nil, body)
	if err != nil {
		return nil, err
	}
	payload, err := decodeMapping(raw)
	if err != nil {
		return nil, err
	}
	return Normalize(payload)
}
