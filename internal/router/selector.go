package router

import (
	"fmt"
	"log/slog"

	"github.com/af-corp/docroute/internal/policy"
	"github.com/af-corp/docroute/internal/registry"
	"github.com/af-corp/docroute/internal/types"
)

// Selector composes the model registry and the routing policy into a
// concrete backend choice. It holds no mutable state.
type Selector struct {
	registry *registry.Registry
	policy   *policy.Policy
	logger   *slog.Logger
}

func NewSelector(reg *registry.Registry, pol *policy.Policy, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{registry: reg, policy: pol, logger: logger}
}

// Select never fails. When no rule fires it resolves the registry default;
// Provider and ModelName are empty only when the registry holds no model.
func (s *Selector) Select(task string, f types.Features) types.RoutingDecision {
	candidates := s.registry.Candidates(f.RequiredCapabilities)
	if m, ok := s.policy.Match(task, f, candidates); ok {
		if model, found := s.registry.Model(m.Choice); found {
			return types.RoutingDecision{
				Task:         task,
				PortfolioKey: model.Name,
				Provider:     model.Provider,
				ModelName:    model.RemoteModelID,
				Rule:         m.Rule,
				Reason:       m.Reason,
			}
		}
	}

	d := types.RoutingDecision{
		Task:         task,
		PortfolioKey: types.DefaultSentinel,
		Rule:         types.DefaultSentinel,
		Reason:       "no rule matched",
	}
	if model, ok := s.registry.DefaultModel(); ok {
		d.Provider = model.Provider
		d.ModelName = model.RemoteModelID
	} else {
		d.Reason = "no model available"
	}
	s.logger.Debug("routing.degraded",
		"task", task,
		"candidates", len(candidates),
		"provider", d.Provider,
		"model", d.ModelName,
	)
	return d
}

// Pin builds a decision for an explicitly configured model, bypassing the
// policy. An unknown model yields an unusable decision.
func (s *Selector) Pin(task, modelName, rule string) types.RoutingDecision {
	d := types.RoutingDecision{Task: task, PortfolioKey: modelName, Rule: rule}
	if m, ok := s.registry.Model(modelName); ok {
		d.Provider = m.Provider
		d.ModelName = m.RemoteModelID
		d.Reason = "pinned:" + modelName
		return d
	}
	d.Reason = fmt.Sprintf("pinned model %q not in portfolio", modelName)
	return d
}

// Alternates returns decisions for the policy's fallback models of task,
// skipping unknown models, models lacking required capabilities and the
// primary choice.
func (s *Selector) Alternates(task string, f types.Features, primary types.RoutingDecision) []types.RoutingDecision {
	var out []types.RoutingDecision
	seen := map[string]struct{}{primary.Provider + "/" + primary.ModelName: {}}
	for _, name := range s.policy.Fallbacks(task) {
		m, ok := s.registry.Model(name)
		if !ok || !m.Supports(f.RequiredCapabilities) {
			continue
		}
		key := m.Provider + "/" + m.RemoteModelID
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, types.RoutingDecision{
			Task:         task,
			PortfolioKey: m.Name,
			Provider:     m.Provider,
			ModelName:    m.RemoteModelID,
			Rule:         primary.Rule,
			Reason:       "fallback:" + m.Name,
		})
	}
	return out
}
