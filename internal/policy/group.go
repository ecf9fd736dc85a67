package policy

import "strings"

// Group is the `when` block of a rule.
type Group struct {
	Any        bool
	Conditions []Condition
}

// Eval implements all/any semantics. An empty all group never matches.
func (g Group) Eval(ctx map[string]any) bool {
	if g.Any {
		for _, c := range g.Conditions {
			if c.Eval(ctx) {
				return true
			}
		}
		return false
	}
	if len(g.Conditions) == 0 {
		return false
	}
	for _, c := range g.Conditions {
		if !c.Eval(ctx) {
			return false
		}
	}
	return true
}

func (g Group) String() string {
	parts := make([]string, len(g.Conditions))
	for i, c := range g.Conditions {
		parts[i] = c.String()
	}
	sep, kind := " && ", "all"
	if g.Any {
		sep, kind = " || ", "any"
	}
	return kind + "(" + strings.Join(parts, sep) + ")"
}
