package orchestrator

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/af-corp/docroute/internal/config"
	"github.com/af-corp/docroute/internal/policy"
	"github.com/af-corp/docroute/internal/registry"
	"github.com/af-corp/docroute/internal/router"
)

// Routing is one immutable set of registry, policy, selector and backends.
// A config reload builds a new Routing and swaps it in whole.
type Routing struct {
	Registry *registry.Registry
	Policy   *policy.Policy
	Selector *router.Selector
	Backends *router.Backends
}

// BuildRouting constructs a Routing from a configuration snapshot.
func BuildRouting(snap *config.Snapshot, logger *slog.Logger) (*Routing, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if snap == nil || snap.Service == nil {
		return nil, fmt.Errorf("build routing: no configuration loaded")
	}

	reg, err := registry.New(snap.Portfolio)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}
	pol, err := policy.New(snap.Routing)
	if err != nil {
		return nil, fmt.Errorf("build routing policy: %w", err)
	}
	for _, w := range pol.Warnings() {
		logger.Warn("routing.condition_invalid", "detail", w)
	}

	timeout := snap.Service.Routing.DefaultTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	backends, err := router.BuildFromConfig(reg, timeout)
	if err != nil {
		return nil, fmt.Errorf("build backends: %w", err)
	}

	return &Routing{
		Registry: reg,
		Policy:   pol,
		Selector: router.NewSelector(reg, pol, logger),
		Backends: backends,
	}, nil
}
