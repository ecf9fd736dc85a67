package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// PortfolioConfig is the model portfolio document (models.yaml).
type PortfolioConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
	Models    ModelList                 `yaml:"models"`
	Defaults  DefaultsConfig            `yaml:"defaults"`
}

type ProviderConfig struct {
	Type          string            `yaml:"type"`
	BaseURL       string            `yaml:"base_url"`
	APIKey        string            `yaml:"api_key"`
	APIVersion    string            `yaml:"api_version,omitempty"`
	MaxConcurrent int               `yaml:"max_concurrent"`
	RPM           int               `yaml:"rpm"`
	Timeout       time.Duration     `yaml:"timeout"`
	Headers       map[string]string `yaml:"headers,omitempty"`
}

type ModelConfig struct {
	Name         string   `yaml:"-"`
	Provider     string   `yaml:"provider"`
	Capabilities []string `yaml:"capabilities"`
	// RemoteID is the identifier sent to the provider.
	RemoteID string `yaml:"name"`
}

type DefaultsConfig struct {
	Fallbacks []string `yaml:"fallbacks"`
}

// ModelList keeps the declaration order of the models mapping.
type ModelList []ModelConfig

func (l *ModelList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: models must be a mapping of name to model", node.Line)
	}
	out := make(ModelList, 0, len(node.Content)/2)
	seen := make(map[string]struct{}, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		var m ModelConfig
		if err := val.Decode(&m); err != nil {
			return fmt.Errorf("model %s: %w", key.Value, err)
		}
		if _, dup := seen[key.Value]; dup {
			return fmt.Errorf("line %d: duplicate model %s", key.Line, key.Value)
		}
		seen[key.Value] = struct{}{}
		m.Name = key.Value
		out = append(out, m)
	}
	*l = out
	return nil
}
