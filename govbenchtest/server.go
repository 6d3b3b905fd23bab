package govbenchtest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
)

// MockServer is an OpenAI-compatible chat completions endpoint that records
// requests for verification.
type MockServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []*RecordedRequest

	// ResponseFunc customizes responses. If nil, every request gets a
	// completion whose content is DefaultReply.
	ResponseFunc func(r *http.Request, body []byte) (int, http.Header, any)
}

// DefaultReply is the completion text of an unconfigured MockServer.
const DefaultReply = "I cannot do that without approval from a human reviewer."

// RecordedRequest represents a recorded HTTP request.
type RecordedRequest struct {
	Method      string
	Path        string
	Body        []byte
	ContentType string
	Auth        string
}

// NewMockServer creates a new mock server for testing.
func NewMockServer() *MockServer {
	ms := &MockServer{}
	ms.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		ms.mu.Lock()
		ms.requests = append(ms.requests, &RecordedRequest{
			Method:      r.Method,
			Path:        r.URL.Path,
			Body:        body,
			ContentType: r.Header.Get("Content-Type"),
			Auth:        r.Header.Get("Authorization"),
		})
		respond := ms.ResponseFunc
		ms.mu.Unlock()

		status, header, response := http.StatusOK, http.Header(nil), any(Completion(DefaultReply))
		if respond != nil {
			status, header, response = respond(r, body)
		}

		for k, vs := range header {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(response)
	}))
	return ms
}

// Completion returns an OpenAI chat completion body carrying text.
func Completion(text string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "mock-model",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": text},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{"prompt_tokens": 12, "completion_tokens": 8, "total_tokens": 20},
	}
}

// Requests returns all recorded requests.
func (ms *MockServer) Requests() []*RecordedRequest {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return append([]*RecordedRequest{}, ms.requests...)
}

// RequestCount returns the number of recorded requests.
func (ms *MockServer) RequestCount() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.requests)
}

// LastRequest returns the most recent request, or nil if none.
func (ms *MockServer) LastRequest() *RecordedRequest {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if len(ms.requests) == 0 {
		return nil
	}
	return ms.requests[len(ms.requests)-1]
}

func (ms *MockServer) setResponse(fn func(r *http.Request, body []byte) (int, http.Header, any)) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.ResponseFunc = fn
}

// RespondWithText answers every request with a completion carrying text.
func (ms *MockServer) RespondWithText(text string) {
	ms.setResponse(func(*http.Request, []byte) (int, http.Header, any) {
		return http.StatusOK, nil, Completion(text)
	})
}

// RespondWithError answers with an OpenAI-style error body.
func (ms *MockServer) RespondWithError(statusCode int, message string) {
	ms.setResponse(func(*http.Request, []byte) (int, http.Header, any) {
		return statusCode, nil, map[string]any{
			"error": map[string]string{"message": message, "type": "server_error"},
		}
	})
}

// RespondWithRateLimit answers with 429 and a Retry-After in seconds.
func (ms *MockServer) RespondWithRateLimit(retryAfter int) {
	ms.setResponse(func(*http.Request, []byte) (int, http.Header, any) {
		h := http.Header{}
		h.Set("Retry-After", strconv.Itoa(retryAfter))
		return http.StatusTooManyRequests, h, map[string]any{
			"error": map[string]string{"message": "Rate limit exceeded", "type": "rate_limit_error"},
		}
	})
}

// RespondWithSequence answers the n-th request with statuses[n], using
// texts[n] as the completion when the status is 200. The last entry repeats
// once the list is exhausted. Both slices must have the same length.
func (ms *MockServer) RespondWithSequence(statuses []int, texts []string) {
	var (
		mu sync.Mutex
		n  int
	)
	ms.setResponse(func(*http.Request, []byte) (int, http.Header, any) {
		mu.Lock()
		i := n
		n++
		mu.Unlock()
		if i >= len(statuses) {
			i = len(statuses) - 1
		}
		if statuses[i] != http.StatusOK {
			return statuses[i], nil, map[string]any{"error": map[string]string{"message": http.StatusText(statuses[i])}}
		}
		return http.StatusOK, nil, Completion(texts[i])
	})
}

// RespondWith answers with a custom status and body.
func (ms *MockServer) RespondWith(statusCode int, body any) {
	ms.setResponse(func(*http.Request, []byte) (int, http.Header, any) {
		return statusCode, nil, body
	})
}
