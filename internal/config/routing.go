package config

// RoutingPolicyConfig is the routing rule document (routing.yaml).
type RoutingPolicyConfig struct {
	Rules       []RuleConfig        `yaml:"rules"`
	Fallbacks   map[string][]string `yaml:"fallbacks"`
	RetryPolicy RetryPolicyConfig   `yaml:"retry_policy"`
}

type RuleConfig struct {
	Name   string     `yaml:"name"`
	When   WhenConfig `yaml:"when"`
	Choose string     `yaml:"choose"`
}

// WhenConfig holds exactly one of All or Any.
type WhenConfig struct {
	All []string `yaml:"all"`
	Any []string `yaml:"any"`
}

type RetryPolicyConfig struct {
	Attempts  int `yaml:"attempts"`
	BackoffMs int `yaml:"backoff_ms"`
}
