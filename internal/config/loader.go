package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

const (
	ServiceFile   = "service.yaml"
	PortfolioFile = "models.yaml"
	RoutingFile   = "routing.yaml"
)

// ConfigError reports a missing or malformed configuration source. It is
// fatal at startup.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsConfigError reports whether err wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:default} patterns in a string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		submatch := envVarPattern.FindStringSubmatch(match)
		if len(submatch) < 2 {
			return match
		}
		varName := submatch[1]
		defaultVal := ""
		if len(submatch) >= 3 {
			defaultVal = submatch[2]
		}
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return defaultVal
	})
}

// LoadFile reads a YAML file, expands env vars, and unmarshals into dest.
func LoadFile(path string, dest interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &ConfigError{Path: path, Err: fmt.Errorf("read: %w", err)}
	}
	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), dest); err != nil {
		return &ConfigError{Path: path, Err: fmt.Errorf("parse: %w", err)}
	}
	return nil
}

// Snapshot is one consistent view of the three configuration documents.
type Snapshot struct {
	Service   *Config
	Portfolio *PortfolioConfig
	Routing   *RoutingPolicyConfig
}

// Loader manages configuration loading and hot-reload via fsnotify.
type Loader struct {
	configDir string
	mu        sync.RWMutex
	snap      *Snapshot
	watchers  []func(*Snapshot)
	logger    *slog.Logger
}

func NewLoader(configDir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		configDir: configDir,
		logger:    logger,
	}
}

// Load reads service.yaml (optional), models.yaml and routing.yaml (both required).
func (l *Loader) Load() error {
	cfg := DefaultConfig()
	servicePath := filepath.Join(l.configDir, ServiceFile)
	if _, err := os.Stat(servicePath); err == nil {
		if err := LoadFile(servicePath, cfg); err != nil {
			return err
		}
	}

	portfolio := &PortfolioConfig{}
	if err := LoadFile(filepath.Join(l.configDir, PortfolioFile), portfolio); err != nil {
		return err
	}

	routing := &RoutingPolicyConfig{}
	if err := LoadFile(filepath.Join(l.configDir, RoutingFile), routing); err != nil {
		return err
	}

	l.mu.Lock()
	l.snap = &Snapshot{Service: cfg, Portfolio: portfolio, Routing: routing}
	l.mu.Unlock()

	l.logger.Info("configuration loaded", "dir", l.configDir, "models", len(portfolio.Models), "rules", len(routing.Rules))
	return nil
}

// Snapshot returns the last successfully loaded configuration.
func (l *Loader) Snapshot() *Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap
}

func (l *Loader) Config() *Config {
	if s := l.Snapshot(); s != nil {
		return s.Service
	}
	return nil
}

// OnReload registers a callback that fires after config is reloaded.
func (l *Loader) OnReload(fn func(*Snapshot)) {
	l.watchers = append(l.watchers, fn)
}

// Watch starts watching the config directory for changes and reloads on modification.
// A failed reload keeps the previous snapshot.
func (l *Loader) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(l.configDir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config dir %s: %w", l.configDir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					l.logger.Info("config file changed, reloading", "file", event.Name)
					if err := l.Load(); err != nil {
						l.logger.Error("failed to reload config", "error", err)
						continue
					}
					snap := l.Snapshot()
					for _, fn := range l.watchers {
						fn(snap)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Error("fsnotify error", "error", err)
			}
		}
	}()

	return nil
}
