package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// HookPriority determines how hook failures are handled.
type HookPriority int

const (
	// HookPriorityObservational marks a hook whose failures are logged and
	// never abort the request. Use it for logging and metrics.
	HookPriorityObservational HookPriority = iota

	// HookPriorityCritical marks a hook whose failures abort the request.
	// Use it for headers the endpoint cannot do without.
	HookPriorityCritical
)

// String returns a string representation of the hook priority.
func (p HookPriority) String() string {
	switch p {
	case HookPriorityObservational:
		return "observational"
	case HookPriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// HTTPHook observes or modifies model endpoint requests.
type HTTPHook interface {
	// BeforeRequest is called before the request is sent. It may modify
	// the request; an error aborts it when the hook is critical.
	BeforeRequest(ctx context.Context, req *http.Request) error

	// AfterResponse is called once the round trip ends, with the response
	// or the transport error.
	AfterResponse(ctx context.Context, req *http.Request, resp *http.Response, duration time.Duration, err error)
}

// HTTPHookFunc adapts a pair of functions to HTTPHook. Either may be nil.
type HTTPHookFunc struct {
	Before func(ctx context.Context, req *http.Request) error
	After  func(ctx context.Context, req *http.Request, resp *http.Response, duration time.Duration, err error)
}

// BeforeRequest implements HTTPHook.
func (f HTTPHookFunc) BeforeRequest(ctx context.Context, req *http.Request) error {
	if f.Before != nil {
		return f.Before(ctx, req)
	}
	return nil
}

// AfterResponse implements HTTPHook.
func (f HTTPHookFunc) AfterResponse(ctx context.Context, req *http.Request, resp *http.Response, duration time.Duration, err error) {
	if f.After != nil {
		f.After(ctx, req, resp, duration, err)
	}
}

// ClassifiedHook is a named hook with a priority.
type ClassifiedHook struct {
	Hook     HTTPHook
	Priority HookPriority
	Name     string
}

// HookLogger is the logging surface hooks need.
type HookLogger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MetricsRecorder is the metrics surface hooks need.
type MetricsRecorder interface {
	IncrementCounter(name string, value int64)
	RecordDuration(name string, duration time.Duration)
}

// HookedDoer runs a chain of hooks around every request sent through the
// wrapped Doer. Before hooks run in order; after hooks run in reverse so
// hooks nest like middleware. A panicking hook is recovered and counted.
type HookedDoer struct {
	next    Doer
	hooks   []ClassifiedHook
	logger  HookLogger
	metrics MetricsRecorder
	now     func() time.Time
}

var _ Doer = (*HookedDoer)(nil)

// NewHookedDoer wraps next. A nil next uses a fresh *http.Client; logger
// and metrics may be nil.
func NewHookedDoer(next Doer, logger HookLogger, metrics MetricsRecorder) *HookedDoer {
	if next == nil {
		next = &http.Client{}
	}
	return &HookedDoer{next: next, logger: logger, metrics: metrics, now: time.Now}
}

// Add appends a hook.
func (d *HookedDoer) Add(name string, hook HTTPHook, priority HookPriority) *HookedDoer {
	d.hooks = append(d.hooks, ClassifiedHook{Hook: hook, Priority: priority, Name: name})
	return d
}

// Len returns the number of hooks.
func (d *HookedDoer) Len() int {
	return len(d.hooks)
}

// Do implements Doer.
func (d *HookedDoer) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	for _, ch := range d.hooks {
		if err := d.before(ctx, req, ch); err != nil {
			return nil, err
		}
	}

	start := d.now()
	resp, err := d.next.Do(req)
	elapsed := d.now().Sub(start)

	for i := len(d.hooks) - 1; i >= 0; i-- {
		d.after(ctx, req, resp, elapsed, err, d.hooks[i])
	}
	return resp, err
}

func (d *HookedDoer) before(ctx context.Context, req *http.Request, ch ClassifiedHook) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.recovered(ch.Name, "BeforeRequest", r)
			err = nil
		}
	}()

	if err := ch.Hook.BeforeRequest(ctx, req); err != nil {
		d.count("http.hooks.failures")
		if ch.Priority == HookPriorityObservational {
			if d.logger != nil {
				d.logger.Warn("observational hook failed", "hook", ch.Name, "error", err)
			}
			return nil
		}
		return fmt.Errorf("hook %q failed: %w", ch.Name, err)
	}
	return nil
}

func (d *HookedDoer) after(ctx context.Context, req *http.Request, resp *http.Response, elapsed time.Duration, reqErr error, ch ClassifiedHook) {
	defer func() {
		if r := recover(); r != nil {
			d.recovered(ch.Name, "AfterResponse", r)
		}
	}()
	ch.Hook.AfterResponse(ctx, req, resp, elapsed, reqErr)
}

func (d *HookedDoer) recovered(name, phase string, r any) {
	d.count("http.hooks.panics")
	if d.logger != nil {
		d.logger.Warn("hook panicked", "hook", name, "phase", phase, "panic", fmt.Sprint(r))
	}
}

func (d *HookedDoer) count(name string) {
	if d.metrics != nil {
		d.metrics.IncrementCounter(name, 1)
	}
}

// HeaderHook sets fixed headers on every request.
func HeaderHook(headers map[string]string) HTTPHook {
	return HTTPHookFunc{
		Before: func(ctx context.Context, req *http.Request) error {
			for k, v := range headers {
				req.Header.Set(k, v)
			}
			return nil
		},
	}
}

// LoggingHook logs every round trip at debug level. Headers are never
// logged.
func LoggingHook(logger HookLogger) HTTPHook {
	return HTTPHookFunc{
		After: func(ctx context.Context, req *http.Request, resp *http.Response, duration time.Duration, err error) {
			if err != nil {
				logger.Debug("model endpoint request failed",
					"method", req.Method, "host", req.URL.Host, "path", req.URL.Path, "duration", duration, "error", err)
				return
			}
			logger.Debug("model endpoint request",
				"method", req.Method, "host", req.URL.Host, "path", req.URL.Path, "duration", duration, "status", resp.StatusCode)
		},
	}
}

// MetricsHook records http.requests, http.duration, http.errors and
// http.status.<code> for every round trip.
func MetricsHook(m MetricsRecorder) HTTPHook {
	if m == nil {
		return HTTPHookFunc{}
	}
	return HTTPHookFunc{
		After: func(ctx context.Context, req *http.Request, resp *http.Response, duration time.Duration, err error) {
			m.IncrementCounter("http.requests", 1)
			m.RecordDuration("http.duration", duration)
			if err != nil {
				m.IncrementCounter("http.errors", 1)
			}
			if resp != nil {
				m.IncrementCounter("http.status."+strconv.Itoa(resp.StatusCode), 1)
			}
		},
	}
}
