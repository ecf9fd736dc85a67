package router

import (
	"testing"

	"github.com/af-corp/docroute/internal/config"
	"github.com/af-corp/docroute/internal/policy"
	"github.com/af-corp/docroute/internal/registry"
	"github.com/af-corp/docroute/internal/types"
)

func newSelector(t *testing.T, models config.ModelList, defaults []string, rc *config.RoutingPolicyConfig) *Selector {
	t.Helper()
	reg, err := registry.New(&config.PortfolioConfig{
		Providers: map[string]config.ProviderConfig{
			"openrouter": {Type: "openrouter", BaseURL: "https://openrouter.example/api/v1"},
			"local":      {Type: "local", BaseURL: "http://localhost:8002"},
		},
		Models:   models,
		Defaults: config.DefaultsConfig{Fallbacks: defaults},
	})
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	pol, err := policy.New(rc)
	if err != nil {
		t.Fatalf("policy.New: %v", err)
	}
	return NewSelector(reg, pol, nil)
}

var scenarioModels = config.ModelList{
	{Name: "gpt-vision", Provider: "openrouter", Capabilities: []string{"vision", "json"}, RemoteID: "openai/gpt-4o"},
	{Name: "kimi-local", Provider: "local", Capabilities: []string{"vision", "json"}, RemoteID: "kimi-vl"},
}

var scenarioPolicy = &config.RoutingPolicyConfig{
	Rules: []config.RuleConfig{{
		Name:   "small-low-budget",
		When:   config.WhenConfig{All: []string{"page_count <= 3", `budget in ["low"]`}},
		Choose: "gpt-vision",
	}},
	Fallbacks: map[string][]string{
		types.TaskLineItems: {"gpt-vision", "kimi-local", "ghost"},
	},
}

func TestSelect_RuleFires(t *testing.T) {
	s := newSelector(t, scenarioModels, []string{"kimi-local"}, scenarioPolicy)

	d := s.Select(types.TaskHeader, types.Features{PageCount: 1, Budget: "low", RequiredCapabilities: []string{"vision", "json"}})
	if d.PortfolioKey != "gpt-vision" || d.Rule != "small-low-budget" {
		t.Errorf("unexpected decision %+v", d)
	}
	if d.Provider != "openrouter" || d.ModelName != "openai/gpt-4o" {
		t.Errorf("expected openrouter/openai/gpt-4o, got %s/%s", d.Provider, d.ModelName)
	}
	if d.Task != types.TaskHeader {
		t.Errorf("expected task to be recorded, got %q", d.Task)
	}
}

func TestSelect_FallsThroughToDefault(t *testing.T) {
	s := newSelector(t, scenarioModels, []string{"kimi-local"}, scenarioPolicy)

	d := s.Select(types.TaskHeader, types.Features{PageCount: 5, Budget: "low"})
	if d.Rule != types.DefaultSentinel || d.PortfolioKey != types.DefaultSentinel {
		t.Errorf("expected default sentinels, got %+v", d)
	}
	if d.Provider != "local" || d.ModelName != "kimi-vl" {
		t.Errorf("expected default model kimi-local, got %s/%s", d.Provider, d.ModelName)
	}
	if !d.Usable() {
		t.Error("default decision should be usable when the registry has models")
	}
}

func TestSelect_ChosenModelLacksCapability(t *testing.T) {
	models := config.ModelList{
		{Name: "text-only", Provider: "openrouter", Capabilities: []string{"json"}},
		{Name: "kimi-local", Provider: "local", Capabilities: []string{"vision", "json"}},
	}
	rc := &config.RoutingPolicyConfig{
		Rules: []config.RuleConfig{{Name: "always", When: config.WhenConfig{Any: []string{"page_count >= 0"}}, Choose: "text-only"}},
	}
	s := newSelector(t, models, nil, rc)

	d := s.Select(types.TaskHeader, types.Features{RequiredCapabilities: []string{"vision"}})
	if d.Rule != types.DefaultSentinel {
		t.Errorf("expected default when choice lacks capabilities, got rule %s", d.Rule)
	}
	// default is the first declared model and is not capability-filtered
	if d.Provider != "openrouter" {
		t.Errorf("expected first declared model as default, got %s", d.Provider)
	}
}

func TestSelect_NeverEmptyWithoutMatchingRule(t *testing.T) {
	s := newSelector(t, scenarioModels, nil, &config.RoutingPolicyConfig{})

	features := []types.Features{
		{},
		{PageCount: 100, Budget: "high", Offline: true},
		{RequiredCapabilities: []string{"audio"}},
	}
	for _, f := range features {
		d := s.Select(types.TaskLineItems, f)
		if !d.Usable() || d.Rule != types.DefaultSentinel {
			t.Errorf("Select(%+v) = %+v, want usable default", f, d)
		}
	}
}

func TestPin(t *testing.T) {
	s := newSelector(t, scenarioModels, nil, &config.RoutingPolicyConfig{})

	d := s.Pin(types.TaskHeader, "gpt-vision", "mode:remote")
	if !d.Usable() || d.Rule != "mode:remote" || d.ModelName != "openai/gpt-4o" {
		t.Errorf("unexpected pinned decision %+v", d)
	}
	if d := s.Pin(types.TaskHeader, "ghost", "mode:remote"); d.Usable() {
		t.Errorf("expected unknown pinned model to be unusable, got %+v", d)
	}
}

func TestAlternates(t *testing.T) {
	s := newSelector(t, scenarioModels, nil, scenarioPolicy)
	f := types.Features{RequiredCapabilities: []string{"vision"}}

	primary := s.Select(types.TaskLineItems, f)
	alts := s.Alternates(types.TaskLineItems, f, primary)

	// primary is the default (gpt-vision, first declared); ghost is unknown
	if len(alts) != 1 {
		t.Fatalf("expected 1 alternate, got %+v", alts)
	}
	if alts[0].PortfolioKey != "kimi-local" || alts[0].Provider != "local" {
		t.Errorf("unexpected alternate %+v", alts[0])
	}
	if alts[0].Reason != "fallback:kimi-local" {
		t.Errorf("unexpected reason %q", alts[0].Reason)
	}

	if alts := s.Alternates(types.TaskHeader, f, primary); len(alts) != 0 {
		t.Errorf("expected no alternates for header, got %+v", alts)
	}
}
