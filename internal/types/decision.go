package types

// DefaultSentinel marks a decision that came from the registry default
// rather than a routing rule.
const DefaultSentinel = "default"

// RoutingDecision is the outcome of selecting a backend for one subtask.
type RoutingDecision struct {
	Task         string `json:"task,omitempty"`
	PortfolioKey string `json:"portfolio_key"`
	Provider     string `json:"provider"`
	ModelName    string `json:"model_name"`
	Rule         string `json:"rule"`
	Reason       string `json:"reason"`
}

// Usable reports whether the decision names a backend that can be called.
func (d RoutingDecision) Usable() bool {
	return d.Provider != "" && d.ModelName != ""
}

// IsDefault reports whether no rule fired for this decision.
func (d RoutingDecision) IsDefault() bool {
	return d.Rule == DefaultSentinel
}
