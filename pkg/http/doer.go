// Package http provides the transport plumbing shared by model clients:
// a retry policy with capped exponential backoff and a JSON POST helper
// that turns non-2xx responses into classified errors.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/jdziat/govbench/pkg/errors"
)

// Doer is an interface for making HTTP requests.
// *http.Client satisfies it; tests substitute their own.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// maxErrorBody bounds how much of an error body ends up in an error message.
const maxErrorBody = 512

// ParseRetryAfter parses a numeric Retry-After header value in seconds.
// HTTP-date values and garbage yield 0.
func ParseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// NewAPIError builds an *pkgerrors.APIError from a non-2xx response.
func NewAPIError(provider string, resp *http.Response, body []byte) *pkgerrors.APIError {
	return &pkgerrors.APIError{
		StatusCode: resp.StatusCode,
		Message:    errorMessage(body),
		Provider:   provider,
		RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// errorMessage pulls a human-readable message out of an error body.
func errorMessage(body []byte) string {
	var envelope struct {
		Error any `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		switch v := envelope.Error.(type) {
		case string:
			return v
		case map[string]any:
			if msg, ok := v["message"].(string); ok {
				return msg
			}
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	return msg
}

// PostJSON marshals body, POSTs it to url and returns the raw response body.
// Non-2xx responses become *pkgerrors.APIError; failures below HTTP become
// *pkgerrors.TransportError.
func PostJSON(ctx context.Context, doer Doer, provider, url string, headers map[string]string, body any) (json.RawMessage, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := doer.Do(req)
	if err != nil {
		return nil, WrapTransport("send request", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapTransport("read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, NewAPIError(provider, resp, respBody)
	}

	return respBody, nil
}
