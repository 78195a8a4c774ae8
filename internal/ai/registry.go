package ai

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var ErrUnknownProvider = errors.New("ai: unknown provider")

// ProviderFactory builds a provider on first use. A factory error is not
// cached, so a misconfigured provider is retried on the next Get.
type ProviderFactory func(ctx context.Context) (Provider, error)

// Registry maps a provider name (AI_PROVIDER) to a lazily built Provider.
type Registry struct {
	mu        sync.Mutex
	factories map[string]ProviderFactory
	built     map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]ProviderFactory),
		built:     make(map[string]Provider),
	}
}

func normName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register replaces any earlier factory and any provider it built.
func (r *Registry) Register(name string, f ProviderFactory) {
	name = normName(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
	delete(r.built, name)
}

func (r *Registry) Get(ctx context.Context, name string) (Provider, error) {
	name = normName(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.built[name]; ok {
		return p, nil
	}
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	p, err := f(ctx)
	if err != nil {
		return nil, fmt.Errorf("ai: build provider %q: %w", name, err)
	}
	r.built[name] = p
	return p, nil
}

// Names lists the registered providers, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.factories))
	for n := range r.factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
