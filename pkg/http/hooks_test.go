package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type hookLog struct {
	mu    sync.Mutex
	debug []string
	warn  []string
}

func (l *hookLog) Debug(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debug = append(l.debug, msg)
}

func (l *hookLog) Warn(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warn = append(l.warn, msg)
}

type hookMetrics struct {
	mu       sync.Mutex
	counters map[string]int64
	timings  int
}

func (m *hookMetrics) IncrementCounter(name string, value int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = map[string]int64{}
	}
	m.counters[name] += value
}

func (m *hookMetrics) RecordDuration(string, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timings++
}

func TestHookPriority_String(t *testing.T) {
	if HookPriorityObservational.String() != "observational" || HookPriorityCritical.String() != "critical" {
		t.Error("unexpected priority names")
	}
	if HookPriority(9).String() != "unknown" {
		t.Error("expected unknown")
	}
}

func TestHookedDoer_RunsHooksAroundRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Run") != "r1" {
			t.Errorf("X-Run = %q", r.Header.Get("X-Run"))
		}
		w.WriteHeader(http.StatusTeapot)
	}))
	defer server.Close()

	logger := &hookLog{}
	metrics := &hookMetrics{}
	var order []string
	trace := func(name string) HTTPHook {
		return HTTPHookFunc{
			Before: func(context.Context, *http.Request) error { order = append(order, "before "+name); return nil },
			After: func(context.Context, *http.Request, *http.Response, time.Duration, error) {
				order = append(order, "after "+name)
			},
		}
	}

	d := NewHookedDoer(server.Client(), logger, metrics).
		Add("headers", HeaderHook(map[string]string{"X-Run": "r1"}), HookPriorityCritical).
		Add("a", trace("a"), HookPriorityObservational).
		Add("b", trace("b"), HookPriorityObservational).
		Add("log", LoggingHook(logger), HookPriorityObservational).
		Add("metrics", MetricsHook(metrics), HookPriorityObservational)
	if d.Len() != 5 {
		t.Fatalf("Len = %d", d.Len())
	}

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/v1/messages", nil)
	resp, err := d.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	want := []string{"before a", "before b", "after b", "after a"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
	if metrics.counters["http.requests"] != 1 || metrics.counters["http.status.418"] != 1 {
		t.Errorf("counters = %v", metrics.counters)
	}
	if metrics.timings != 1 {
		t.Errorf("timings = %d", metrics.timings)
	}
	if len(logger.debug) != 1 {
		t.Errorf("debug lines = %v", logger.debug)
	}
}

func TestHookedDoer_CriticalFailureAborts(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { calls++ }))
	defer server.Close()

	boom := errors.New("no signature")
	d := NewHookedDoer(server.Client(), nil, nil).
		Add("sign", HTTPHookFunc{Before: func(context.Context, *http.Request) error { return boom }}, HookPriorityCritical)

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	if _, err := d.Do(req); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if calls != 0 {
		t.Errorf("request was sent %d times", calls)
	}
}

func TestHookedDoer_ObservationalFailureContinues(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer server.Close()

	logger := &hookLog{}
	metrics := &hookMetrics{}
	d := NewHookedDoer(server.Client(), logger, metrics).
		Add("flaky", HTTPHookFunc{Before: func(context.Context, *http.Request) error { return errors.New("x") }}, HookPriorityObservational).
		Add("panics", HTTPHookFunc{After: func(context.Context, *http.Request, *http.Response, time.Duration, error) { panic("bad hook") }}, HookPriorityObservational)

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := d.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	if metrics.counters["http.hooks.failures"] != 1 || metrics.counters["http.hooks.panics"] != 1 {
		t.Errorf("counters = %v", metrics.counters)
	}
	if len(logger.warn) != 2 {
		t.Errorf("warnings = %v", logger.warn)
	}
}

func TestMetricsHook_TransportError(t *testing.T) {
	metrics := &hookMetrics{}
	d := NewHookedDoer(doerFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection reset")
	}), nil, nil).Add("metrics", MetricsHook(metrics), HookPriorityObservational)

	req, _ := http.NewRequest(http.MethodGet, "http://model.invalid", nil)
	if _, err := d.Do(req); err == nil {
		t.Fatal("expected error")
	}
	if metrics.counters["http.errors"] != 1 {
		t.Errorf("counters = %v", metrics.counters)
	}
}

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }
