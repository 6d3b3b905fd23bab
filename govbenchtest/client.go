package govbenchtest

import (
	"context"
	"encoding/json"
	"sync"

	pkgerrors "github.com/jdziat/govbench/pkg/errors"
	"github.com/jdziat/govbench/pkg/provider"
	"github.com/jdziat/govbench/pkg/types"
)

var _ provider.Client = (*MockClient)(nil)

// Request is one recorded Chat call.
type Request struct {
	Messages    []types.Message
	Temperature float64
	MaxTokens   int
}

// Prompt returns the content of the last message.
func (r Request) Prompt() string {
	if len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[len(r.Messages)-1].Content
}

// ResponseFunc produces the reply to the n-th call (1-based).
type ResponseFunc func(n int, req Request) (*provider.Result, error)

// MockClient is a provider.Client that records requests and answers from a
// ResponseFunc.
type MockClient struct {
	Name    string
	Respond ResponseFunc

	mu    sync.Mutex
	calls []Request
}

// NewMockClient returns a client that always replies with text.
func NewMockClient(text string) *MockClient {
	return &MockClient{Name: "mock", Respond: Reply(text)}
}

// NewFailingClient returns a client whose every call fails with err.
func NewFailingClient(err error) *MockClient {
	return &MockClient{Name: "mock", Respond: func(int, Request) (*provider.Result, error) {
		return nil, err
	}}
}

// Reply answers every call with text.
func Reply(text string) ResponseFunc {
	return func(int, Request) (*provider.Result, error) {
		return Result(text), nil
	}
}

// Result wraps text in a provider.Result with a small raw payload.
func Result(text string) *provider.Result {
	raw, _ := json.Marshal(map[string]string{"text": text})
	return &provider.Result{
		Text:         text,
		Raw:          raw,
		FinishReason: "stop",
		Usage:        types.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

// RateLimited returns the error a provider reports for HTTP 429.
func RateLimited() error {
	return &pkgerrors.APIError{StatusCode: 429, Message: "rate limit exceeded", Provider: "mock"}
}

// Provider implements provider.Client.
func (c *MockClient) Provider() string {
	if c.Name == "" {
		return "mock"
	}
	return c.Name
}

// Chat implements provider.Client.
func (c *MockClient) Chat(ctx context.Context, messages []types.Message, temperature float64, maxTokens int) (*provider.Result, error) {
	req := Request{
		Messages:    append([]types.Message(nil), messages...),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	c.mu.Lock()
	c.calls = append(c.calls, req)
	n := len(c.calls)
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.Respond == nil {
		return Result(""), nil
	}
	return c.Respond(n, req)
}

// Calls returns every recorded request.
func (c *MockClient) Calls() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Request{}, c.calls...)
}

// CallCount returns the number of recorded requests.
func (c *MockClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// Prompts returns the last-message content of every request, in call order.
func (c *MockClient) Prompts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	for i, r := range c.calls {
		out[i] = r.Prompt()
	}
	return out
}
