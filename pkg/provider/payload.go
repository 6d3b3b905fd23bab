package provider

import (
	"encoding/json"
	"strings"

	"github.com/sashabaranov/go-openai"

	pkgerrors "github.com/jdziat/govbench/pkg/errors"
	"github.com/jdziat/govbench/pkg/types"
)

// Payload is a raw provider reply. Exactly one variant is set: Object for a
// typed OpenAI-style response, Mapping for a decoded JSON object.
type Payload struct {
	Object  *openai.ChatCompletionResponse
	Mapping map[string]any
}

// Normalize converts a payload into a Result. Payloads with neither or both
// variants, or with no recognizable text, yield a
// *pkgerrors.MalformedResponseError.
func Normalize(p Payload) (*Result, error) {
	switch {
	case p.Object != nil && p.Mapping != nil:
		return nil, pkgerrors.Malformed("payload has both object and mapping variants")
	case p.Object != nil:
		return fromObject(p.Object)
	case p.Mapping != nil:
		return fromMapping(p.Mapping)
	default:
		return nil, pkgerrors.Malformed("empty payload")
	}
}

func fromObject(resp *openai.ChatCompletionResponse) (*Result, error) {
	if len(resp.Choices) == 0 {
		return nil, pkgerrors.Malformed("no completion choices returned")
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, &pkgerrors.MalformedResponseError{Reason: "cannot encode payload", Err: err}
	}
	choice := resp.Choices[0]
	return &Result{
		Text:         choice.Message.Content,
		Raw:          raw,
		FinishReason: string(choice.FinishReason),
		Usage: types.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// fromMapping recognizes, in order: OpenAI chat completions, Anthropic
// messages, Ollama chat, and a bare {"text": ...} object.
func fromMapping(m map[string]any) (*Result, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, &pkgerrors.MalformedResponseError{Reason: "cannot encode payload", Err: err}
	}
	res := &Result{Raw: raw}

	if choices, ok := m["choices"].([]any); ok {
		if len(choices) == 0 {
			return nil, pkgerrors.Malformed("no completion choices returned")
		}
		choice, _ := choices[0].(map[string]any)
		msg, _ := choice["message"].(map[string]any)
		text, ok := msg["content"].(string)
		if !ok {
			return nil, pkgerrors.Malformed("choice has no message content")
		}
		res.Text = text
		res.FinishReason, _ = choice["finish_reason"].(string)
		if u, ok := m["usage"].(map[string]any); ok {
			res.Usage = types.Usage{
				PromptTokens:     intField(u, "prompt_tokens"),
				CompletionTokens: intField(u, "completion_tokens"),
				TotalTokens:      intField(u, "total_tokens"),
			}
		}
		return res, nil
	}

	if blocks, ok := m["content"].([]any); ok {
		var b strings.Builder
		found := false
		for _, blk := range blocks {
			block, _ := blk.(map[string]any)
			if block["type"] == "text" {
				if text, ok := block["text"].(string); ok {
					b.WriteString(text)
					found = true
				}
			}
		}
		if !found {
			return nil, pkgerrors.Malformed("no text content blocks")
		}
		res.Text = b.String()
		res.FinishReason, _ = m["stop_reason"].(string)
		if u, ok := m["usage"].(map[string]any); ok {
			in, out := intField(u, "input_tokens"), intField(u, "output_tokens")
			res.Usage = types.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out}
		}
		return res, nil
	}

	if msg, ok := m["message"].(map[string]any); ok {
		text, ok := msg["content"].(string)
		if !ok {
			return nil, pkgerrors.Malformed("message has no content")
		}
		res.Text = text
		res.FinishReason, _ = m["done_reason"].(string)
		in, out := intField(m, "prompt_eval_count"), intField(m, "eval_count")
		res.Usage = types.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out}
		return res, nil
	}

	if text, ok := m["text"].(string); ok {
		res.Text = text
		return res, nil
	}

	return nil, pkgerrors.Malformed("unrecognized payload shape")
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}

// decodeMapping parses a response body into the mapping variant.
func decodeMapping(body []byte) (Payload, error) {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return Payload{}, &pkgerrors.MalformedResponseError{Reason: "response is not a JSON object", Err: err}
	}
	if m == nil {
		return Payload{}, pkgerrors.Malformed("response is null")
	}
	return Payload{Mapping: m}, nil
}
