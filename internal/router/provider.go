package router

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/af-corp/docroute/internal/registry"
	"github.com/af-corp/docroute/internal/router/adapters"
)

// Provider types understood by BuildFromConfig.
const (
	TypeOpenAI     = "openai"
	TypeOpenRouter = "openrouter"
	TypeAnthropic  = "anthropic"
	TypeLocal      = "local"
)

// Backends maps provider names to their adapters.
type Backends struct {
	mu       sync.RWMutex
	adapters map[string]adapters.ProviderAdapter
}

func NewBackends() *Backends {
	return &Backends{
		adapters: make(map[string]adapters.ProviderAdapter),
	}
}

func (b *Backends) Register(name string, adapter adapters.ProviderAdapter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.adapters[name] = adapter
}

func (b *Backends) Get(name string) (adapters.ProviderAdapter, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a, ok := b.adapters[name]
	return a, ok
}

// CloseIdleConnections releases pooled connections of every adapter that
// owns an HTTP client. Called on a Backends set that was replaced.
func (b *Backends) CloseIdleConnections() {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, a := range b.adapters {
		if c, ok := a.(interface{ CloseIdleConnections() }); ok {
			c.CloseIdleConnections()
		}
	}
}

// NewAdapter builds the adapter variant for p's type with its own HTTP client.
func NewAdapter(p registry.Provider, defaultTimeout time.Duration) (adapters.ProviderAdapter, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxConns := p.MaxConcurrent
	if maxConns <= 0 {
		maxConns = 10
	}
	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        maxConns,
			MaxIdleConnsPerHost: maxConns,
			MaxConnsPerHost:     maxConns,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}

	switch p.Type {
	case TypeOpenAI, TypeOpenRouter:
		return adapters.NewOpenAIAdapter(p, client), nil
	case TypeAnthropic:
		return adapters.NewAnthropicAdapter(p, client), nil
	case TypeLocal:
		return adapters.NewLocalAdapter(p, client), nil
	default:
		return nil, fmt.Errorf("provider %s: unsupported type %q", p.Name, p.Type)
	}
}

// BuildFromConfig builds one adapter per provider in the registry.
func BuildFromConfig(reg *registry.Registry, defaultTimeout time.Duration) (*Backends, error) {
	backends := NewBackends()
	for _, p := range reg.Providers() {
		adapter, err := NewAdapter(p, defaultTimeout)
		if err != nil {
			return nil, err
		}
		backends.Register(p.Name, adapter)
	}
	return backends, nil
}
