// Package policy evaluates the declarative routing rules that pick a model
// for a subtask.
package policy

import (
	"errors"
	"fmt"
	"time"

	"github.com/af-corp/docroute/internal/config"
	"github.com/af-corp/docroute/internal/registry"
	"github.com/af-corp/docroute/internal/types"
)

// Rule is one parsed routing rule.
type Rule struct {
	Name   string
	When   Group
	Choose string
}

// Match is the outcome of a rule firing.
type Match struct {
	Rule   string
	Choice string
	Reason string
}

// RetryPolicy controls how often the orchestrator retries one backend call.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// Policy is an immutable, parsed rule set.
type Policy struct {
	rules     []Rule
	fallbacks map[string][]string
	retry     RetryPolicy
	warnings  []string
}

// New parses every condition once. Structural errors (a rule with both or
// neither of all/any, or no choose target) are returned as *config.ConfigError.
// Unparseable conditions become Invalid nodes and are reported by Warnings.
func New(rc *config.RoutingPolicyConfig) (*Policy, error) {
	if rc == nil {
		return nil, &config.ConfigError{Path: config.RoutingFile, Err: errors.New("routing policy is nil")}
	}

	p := &Policy{
		rules:     make([]Rule, 0, len(rc.Rules)),
		fallbacks: make(map[string][]string, len(rc.Fallbacks)),
		retry: RetryPolicy{
			Attempts: rc.RetryPolicy.Attempts,
			Backoff:  time.Duration(rc.RetryPolicy.BackoffMs) * time.Millisecond,
		},
	}
	if p.retry.Attempts < 1 {
		p.retry.Attempts = 1
	}
	if p.retry.Backoff < 0 {
		p.retry.Backoff = 0
	}

	for i, rcfg := range rc.Rules {
		name := rcfg.Name
		if name == "" {
			name = fmt.Sprintf("rule-%d", i+1)
		}
		hasAll, hasAny := rcfg.When.All != nil, rcfg.When.Any != nil
		if hasAll == hasAny {
			return nil, &config.ConfigError{Path: config.RoutingFile, Err: fmt.Errorf("rule %s: when must hold exactly one of all or any", name)}
		}
		if rcfg.Choose == "" {
			return nil, &config.ConfigError{Path: config.RoutingFile, Err: fmt.Errorf("rule %s: choose is required", name)}
		}

		exprs := rcfg.When.All
		if hasAny {
			exprs = rcfg.When.Any
		}
		g := Group{Any: hasAny, Conditions: make([]Condition, 0, len(exprs))}
		for _, expr := range exprs {
			c := ParseCondition(expr)
			if inv, ok := c.(Invalid); ok {
				p.warnings = append(p.warnings, fmt.Sprintf("rule %s: condition %q: %s", name, inv.Expr, inv.Reason))
			}
			g.Conditions = append(g.Conditions, c)
		}
		p.rules = append(p.rules, Rule{Name: name, When: g, Choose: rcfg.Choose})
	}

	for task, models := range rc.Fallbacks {
		p.fallbacks[task] = append([]string(nil), models...)
	}
	return p, nil
}

// Match returns the first rule, in declaration order, whose condition holds
// and whose choose target is among candidates.
func (p *Policy) Match(task string, f types.Features, candidates []registry.Model) (Match, bool) {
	ctx := f.Map()
	ctx["task"] = task

	names := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		names[c.Name] = struct{}{}
	}

	for _, r := range p.rules {
		if !r.When.Eval(ctx) {
			continue
		}
		if _, ok := names[r.Choose]; !ok {
			continue
		}
		return Match{Rule: r.Name, Choice: r.Choose, Reason: "matched:" + r.Name}, true
	}
	return Match{}, false
}

// Fallbacks returns the ordered fallback model names configured for task.
func (p *Policy) Fallbacks(task string) []string {
	return append([]string(nil), p.fallbacks[task]...)
}

func (p *Policy) RetryPolicy() RetryPolicy { return p.retry }

// Warnings lists conditions that failed to parse at load.
func (p *Policy) Warnings() []string { return append([]string(nil), p.warnings...) }

func (p *Policy) Rules() []Rule { return append([]Rule(nil), p.rules...) }
