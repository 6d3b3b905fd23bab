package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	pkgerrors "github.com/jdziat/govbench/pkg/errors"
	pkghttp "github.com/jdziat/govbench/pkg/http"
	"github.com/jdziat/govbench/pkg/types"
)

const defaultOpenAITimeout = 60 * time.Second

// OpenAI is a client for the OpenAI chat completions API and any endpoint
// that speaks the same protocol.
type OpenAI struct {
	client *openai.Client
	model  string
	name   string
}

// NewOpenAI creates an OpenAI client. A non-empty spec.BaseURL points it at
// an OpenAI-compatible server (for example "http://localhost:8000/v1").
func NewOpenAI(spec Spec) *OpenAI {
	return newOpenAI(spec, nil)
}

func newOpenAI(spec Spec, wrap DoerWrapper) *OpenAI {
	name := string(spec.Provider)
	if name == "" {
		name = string(KindOpenAI)
	}
	cfg := openai.DefaultConfig(spec.APIKey)
	if spec.BaseURL != "" {
		cfg.BaseURL = spec.BaseURL
	}
	hc := &http.Client{
		Timeout:   spec.timeout(defaultOpenAITimeout),
		Transport: &retryAfterTransport{base: http.DefaultTransport},
	}
	cfg.HTTPClient = hc
	if wrap != nil {
		cfg.HTTPClient = wrap(hc)
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		model:  spec.Model,
		name:   name,
	}
}

// Provider returns the backend name.
func (o *OpenAI) Provider() string {
	return o.name
}

// Chat sends a chat completion request.
func (o *OpenAI) Chat(ctx context.Context, messages []types.Message, temperature float64, maxTokens int) (*Result, error) {
	msgs := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    msgs,
		Temperature: float32(temperature),
		MaxTokens:   maxTokens,
	}

	hdr := &capturedHeaders{}
	resp, err := o.client.CreateChatCompletion(context.WithValue(ctx, capturedHeadersKey{}, hdr), req)
	if err != nil {
		return nil, o.mapError(err, hdr.retryAfter)
	}
	return Normalize(Payload{Object: &resp})
}

// mapError converts go-openai errors into the pipeline taxonomy.
func (o *OpenAI) mapError(err error, retryAfter time.Duration) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &pkgerrors.APIError{
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
			Provider:   o.name,
			RetryAfter: retryAfter,
			Err:        err,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode != 0 {
			return &pkgerrors.APIError{
				StatusCode: reqErr.HTTPStatusCode,
				Message:    reqErr.Error(),
				Provider:   o.name,
				RetryAfter: retryAfter,
				Err:        err,
			}
		}
		if reqErr.Err != nil {
			err = reqErr.Err
		}
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &pkgerrors.MalformedResponseError{Reason: "undecodable chat completion body", Err: err}
	}
	return pkghttp.WrapTransport("chat completion", err)
}

type capturedHeadersKey struct{}

// capturedHeaders receives response metadata the SDK does not expose on
// errors.
type capturedHeaders struct {
	retryAfter time.Duration
}

// retryAfterTransport records the Retry-After header of each response into
// the request context's capturedHeaders, if any.
type retryAfterTransport struct {
	base http.RoundTripper
}

func (t *retryAfterTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	if hdr, ok := req.Context().Value(capturedHeadersKey{}).(*capturedHeaders); ok {
		hdr.retryAfter = pkghttp.ParseRetryAfter(resp.Header.Get("Retry-After"))
	}
	return resp, nil
}
