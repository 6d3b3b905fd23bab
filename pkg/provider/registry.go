package provider

import (
	"fmt"
	"net/http"
	"sort"

	pkgerrors "github.com/jdziat/govbench/pkg/errors"
	pkghttp "github.com/jdziat/govbench/pkg/http"
)

// Factory builds a client from a spec.
type Factory func(spec Spec) (Client, error)

// Factories maps backend kinds to constructors. It is built explicitly at
// startup; nothing registers itself.
type Factories map[Kind]Factory

// DefaultFactories returns constructors for every built-in backend. A nil
// doer gives each HTTP client its own *http.Client.
func DefaultFactories(doer pkghttp.Doer) Factories {
	return Factories{
		KindOpenAI: func(spec Spec) (Client, error) {
			if spec.APIKey == "" {
				return nil, pkgerrors.NewValidationError("api_key", "OpenAI API key not configured. Set OPENAI_API_KEY or api_key")
			}
			return NewOpenAI(spec), nil
		},
		KindCustom: func(spec Spec) (Client, error) {
			if spec.BaseURL == "" {
				return nil, pkgerrors.NewValidationError("base_url", "custom endpoint not configured")
			}
			return NewOpenAI(spec), nil
		},
		KindAnthropic: func(spec Spec) (Client, error) {
			if spec.APIKey == "" {
				return nil, pkgerrors.NewValidationError("api_key", "Anthropic API key not configured. Set ANTHROPIC_API_KEY or api_key")
			}
			return NewAnthropic(spec, doer), nil
		},
		KindOllama: func(spec Spec) (Client, error) {
			return NewOllama(spec, doer), nil
		},
		KindStatic: func(spec Spec) (Client, error) {
			return &Static{Text: spec.Text}, nil
		},
	}
}

// DoerWrapper decorates the HTTP client a backend builds for one spec.
type DoerWrapper func(next pkghttp.Doer) pkghttp.Doer

// WrappedFactories is DefaultFactories with every HTTP backend sending
// through wrap. Each backend keeps its own client and per-spec timeout
// underneath the wrapper.
func WrappedFactories(wrap DoerWrapper) Factories {
	f := DefaultFactories(nil)
	if wrap == nil {
		return f
	}
	openAI := func(spec Spec) (Client, error) {
		return newOpenAI(spec, wrap), nil
	}
	f[KindOpenAI] = keyed(f[KindOpenAI], openAI)
	f[KindCustom] = keyed(f[KindCustom], openAI)
	f[KindAnthropic] = keyed(f[KindAnthropic], func(spec Spec) (Client, error) {
		return NewAnthropic(spec, wrap(&http.Client{Timeout: spec.timeout(defaultAnthropicLimit)})), nil
	})
	f[KindOllama] = keyed(f[KindOllama], func(spec Spec) (Client, error) {
		return NewOllama(spec, wrap(&http.Client{Timeout: spec.timeout(defaultOllamaLimit)})), nil
	})
	return f
}

// keyed runs check for its validation errors and build for the client.
func keyed(check, build Factory) Factory {
	return func(spec Spec) (Client, error) {
		if _, err := check(spec); err != nil {
			return nil, err
		}
		return build(spec)
	}
}

// Build constructs a client for spec.
func (f Factories) Build(spec Spec) (Client, error) {
	factory, ok := f[spec.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", pkgerrors.ErrUnknownProvider, spec.Provider)
	}
	if spec.Model == "" && spec.Provider != KindStatic {
		return nil, pkgerrors.NewValidationError("model", fmt.Sprintf("%s model not configured", spec.Provider))
	}
	return factory(spec)
}

// Registry maps model ids to clients. It is read-only after construction
// and safe for concurrent use.
type Registry struct {
	clients map[string]Client
}

// NewRegistry returns a registry over a copy of clients.
func NewRegistry(clients map[string]Client) *Registry {
	r := &Registry{clients: make(map[string]Client, len(clients))}
	for id, c := range clients {
		r.clients[id] = c
	}
	return r
}

// BuildRegistry builds one client per model id.
func BuildRegistry(factories Factories, specs map[string]Spec) (*Registry, error) {
	clients := make(map[string]Client, len(specs))
	for _, modelID := range sortedIDs(specs) {
		c, err := factories.Build(specs[modelID])
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", modelID, err)
		}
		clients[modelID] = c
	}
	return &Registry{clients: clients}, nil
}

// Lookup returns the client for modelID.
func (r *Registry) Lookup(modelID string) (Client, error) {
	c, ok := r.clients[modelID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", pkgerrors.ErrUnknownModel, modelID)
	}
	return c, nil
}

// IDs returns the registered model ids in sorted order.
func (r *Registry) IDs() []string {
	return sortedIDs(r.clients)
}

func sortedIDs[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
