// Package registry holds the immutable model portfolio: which providers
// exist, which models they serve and what each model can do.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/af-corp/docroute/internal/config"
)

// Model is one entry of the portfolio.
type Model struct {
	Name          string   `json:"name"`
	Provider      string   `json:"provider"`
	Capabilities  []string `json:"capabilities"`
	RemoteModelID string   `json:"remote_model_id"`

	caps map[string]struct{}
}

// Supports reports whether the model's capabilities are a superset of required.
func (m Model) Supports(required []string) bool {
	for _, c := range required {
		if _, ok := m.caps[c]; !ok {
			return false
		}
	}
	return true
}

// Provider is a provider-level entry of the portfolio.
type Provider struct {
	Name          string
	Type          string
	BaseURL       string
	APIKey        string
	APIVersion    string
	Timeout       time.Duration
	MaxConcurrent int
	RPM           int
	Headers       map[string]string
}

// Registry answers capability and default-model queries. It is never
// mutated after New returns, so it is safe for concurrent use.
type Registry struct {
	models    []Model
	byName    map[string]int
	providers map[string]Provider
	defaults  []string
}

// New validates the portfolio and builds a registry. All failures are
// returned as *config.ConfigError.
func New(pc *config.PortfolioConfig) (*Registry, error) {
	if pc == nil {
		return nil, &config.ConfigError{Path: config.PortfolioFile, Err: errors.New("portfolio is nil")}
	}
	if len(pc.Models) == 0 {
		return nil, &config.ConfigError{Path: config.PortfolioFile, Err: errors.New("no models declared")}
	}

	r := &Registry{
		models:    make([]Model, 0, len(pc.Models)),
		byName:    make(map[string]int, len(pc.Models)),
		providers: make(map[string]Provider, len(pc.Providers)),
		defaults:  append([]string(nil), pc.Defaults.Fallbacks...),
	}

	for name, p := range pc.Providers {
		if p.BaseURL == "" {
			return nil, &config.ConfigError{Path: config.PortfolioFile, Err: fmt.Errorf("provider %s: base_url is required", name)}
		}
		typ := p.Type
		if typ == "" {
			typ = name
		}
		headers := make(map[string]string, len(p.Headers))
		for k, v := range p.Headers {
			headers[k] = v
		}
		r.providers[name] = Provider{
			Name:          name,
			Type:          typ,
			BaseURL:       p.BaseURL,
			APIKey:        p.APIKey,
			APIVersion:    p.APIVersion,
			Timeout:       p.Timeout,
			MaxConcurrent: p.MaxConcurrent,
			RPM:           p.RPM,
			Headers:       headers,
		}
	}

	for _, mc := range pc.Models {
		if _, ok := r.providers[mc.Provider]; !ok {
			return nil, &config.ConfigError{Path: config.PortfolioFile, Err: fmt.Errorf("model %s: undeclared provider %q", mc.Name, mc.Provider)}
		}
		m := Model{
			Name:          mc.Name,
			Provider:      mc.Provider,
			Capabilities:  append([]string(nil), mc.Capabilities...),
			RemoteModelID: mc.RemoteID,
			caps:          make(map[string]struct{}, len(mc.Capabilities)),
		}
		if m.RemoteModelID == "" {
			m.RemoteModelID = mc.Name
		}
		for _, c := range mc.Capabilities {
			m.caps[c] = struct{}{}
		}
		r.byName[m.Name] = len(r.models)
		r.models = append(r.models, m)
	}

	return r, nil
}

// Candidates returns every model supporting all required capabilities, in
// declaration order. An empty required set returns every model.
func (r *Registry) Candidates(required []string) []Model {
	out := make([]Model, 0, len(r.models))
	for _, m := range r.models {
		if m.Supports(required) {
			out = append(out, m)
		}
	}
	return out
}

// DefaultModel returns the first resolvable name from defaults.fallbacks,
// else the first declared model.
func (r *Registry) DefaultModel() (Model, bool) {
	for _, name := range r.defaults {
		if m, ok := r.Model(name); ok {
			return m, true
		}
	}
	if len(r.models) == 0 {
		return Model{}, false
	}
	return r.models[0], true
}

func (r *Registry) Model(name string) (Model, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Model{}, false
	}
	return r.models[i], true
}

func (r *Registry) Provider(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Models returns all models in declaration order.
func (r *Registry) Models() []Model {
	return append([]Model(nil), r.models...)
}

// Providers returns all providers sorted by name.
func (r *Registry) Providers() []Provider {
	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
