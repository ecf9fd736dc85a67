package router

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// HealthTracker manages circuit breakers for all providers.
type HealthTracker struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker

	failureThreshold      int
	recoveryProbeInterval time.Duration
	onChange              func(provider string, from, to CircuitState)
}

// NewHealthTracker creates a health tracker with the given circuit breaker config.
func NewHealthTracker(failureThreshold int, recoveryProbeInterval time.Duration) *HealthTracker {
	return &HealthTracker{
		breakers:              make(map[string]*CircuitBreaker),
		failureThreshold:      failureThreshold,
		recoveryProbeInterval: recoveryProbeInterval,
	}
}

// OnStateChange registers a hook fired on every breaker transition. It must
// be set before the tracker is shared.
func (ht *HealthTracker) OnStateChange(fn func(provider string, from, to CircuitState)) {
	ht.onChange = fn
}

// GetBreaker returns (or lazily creates) the circuit breaker for a provider.
func (ht *HealthTracker) GetBreaker(provider string) *CircuitBreaker {
	ht.mu.RLock()
	cb, ok := ht.breakers[provider]
	ht.mu.RUnlock()
	if ok {
		return cb
	}

	ht.mu.Lock()
	defer ht.mu.Unlock()
	if cb, ok := ht.breakers[provider]; ok {
		return cb
	}
	cb = NewCircuitBreaker(ht.failureThreshold, ht.recoveryProbeInterval)
	cb.onChange = func(from, to CircuitState) {
		slog.Info("circuit.transition", "provider", provider, "from", from.String(), "to", to.String())
		if ht.onChange != nil {
			ht.onChange(provider, from, to)
		}
	}
	ht.breakers[provider] = cb
	return cb
}

// IsAvailable reports whether the provider's breaker admits a call.
func (ht *HealthTracker) IsAvailable(provider string) bool {
	return ht.GetBreaker(provider).Allow()
}

// State reports the provider's breaker state without claiming a probe.
func (ht *HealthTracker) State(provider string) CircuitState {
	return ht.GetBreaker(provider).State()
}

// Release hands back a probe claimed by IsAvailable for a call that was not made.
func (ht *HealthTracker) Release(provider string) {
	ht.GetBreaker(provider).Release()
}

func (ht *HealthTracker) RecordSuccess(provider string) {
	ht.GetBreaker(provider).RecordSuccess()
}

func (ht *HealthTracker) RecordFailure(provider string) {
	ht.GetBreaker(provider).RecordFailure()
}

// ProviderHealth is one row of Snapshot.
type ProviderHealth struct {
	Provider string `json:"provider"`
	State    string `json:"state"`
}

// Snapshot reports the breaker state of every provider seen so far, sorted
// by provider name.
func (ht *HealthTracker) Snapshot() []ProviderHealth {
	ht.mu.RLock()
	names := make([]string, 0, len(ht.breakers))
	for name := range ht.breakers {
		names = append(names, name)
	}
	ht.mu.RUnlock()
	sort.Strings(names)

	out := make([]ProviderHealth, 0, len(names))
	for _, name := range names {
		out = append(out, ProviderHealth{Provider: name, State: ht.GetBreaker(name).State().String()})
	}
	return out
}
