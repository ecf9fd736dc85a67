package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/af-corp/docroute/internal/guard"
	"github.com/af-corp/docroute/internal/router"
	"github.com/af-corp/docroute/internal/router/adapters"
	"github.com/af-corp/docroute/internal/types"
)

// call is one routed subtask: the decisions to try in order and the request
// to send to each of them.
type call struct {
	task     string
	page     int
	features types.Features
	mode     string
	chain    []types.RoutingDecision
	request  adapters.ExtractRequest
	// validate rejects a payload; a rejected payload counts as malformed.
	validate func(map[string]any) error
}

type dispatchResult struct {
	extraction *adapters.Extraction
	decision   types.RoutingDecision
	attempts   int
	reason     string
}

// dispatch walks the decision chain. Each decision gets up to
// RetryPolicy.Attempts calls unless its circuit is open, its provider is
// rate limited or the guard denies it. Calls are detached from ctx
// cancellation and bounded by the provider timeout; ctx only stops retries.
func (o *Orchestrator) dispatch(ctx context.Context, rt *Routing, c call) dispatchResult {
	var res dispatchResult
	retry := rt.Policy.RetryPolicy()
	attempts := max(retry.Attempts, 1)

	for _, d := range c.chain {
		if !d.Usable() {
			res.reason = d.Reason
			continue
		}
		adapter, ok := rt.Backends.Get(d.Provider)
		if !ok {
			res.reason = fmt.Sprintf("no backend for provider %s", d.Provider)
			continue
		}
		if reason, ok := o.admit(ctx, rt, c, d); !ok {
			res.reason = reason
			continue
		}

		req := c.request
		req.Model = d.ModelName
		timeout := o.callTimeout(rt, d.Provider)

		for attempt := 1; attempt <= attempts; attempt++ {
			if attempt > 1 {
				if !sleepCtx(ctx, retry.Backoff) {
					res.reason = "cancelled: " + ctx.Err().Error()
					return res
				}
				if !o.health.IsAvailable(d.Provider) {
					res.reason = "circuit open: " + d.Provider
					break
				}
			}
			res.attempts++

			start := time.Now()
			callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
			ext, err := adapters.Extract(callCtx, adapter, &req)
			cancel()
			if err == nil && c.validate != nil {
				if verr := c.validate(ext.Fields); verr != nil {
					err = &adapters.MalformedResponseError{Provider: d.Provider, Reason: "schema", Err: verr}
				}
			}

			outcome := outcomeOf(err)
			if o.metrics != nil {
				o.metrics.RecordBackendCall(d.Provider, d.ModelName, outcome, time.Since(start))
			}
			if err == nil {
				o.health.RecordSuccess(d.Provider)
				res.extraction = ext
				res.decision = d
				res.reason = ""
				return res
			}

			res.reason = err.Error()
			if adapters.IsMissingCredential(err) {
				// nothing was sent; the provider's health is unknown
				o.health.Release(d.Provider)
				o.logger.Warn("subtask.provider_unconfigured", "task", c.task, "provider", d.Provider)
				break
			}
			if adapters.IsMalformed(err) {
				// the provider answered; only the payload was unusable
				o.health.RecordSuccess(d.Provider)
			} else {
				o.health.RecordFailure(d.Provider)
			}
			o.logger.Warn("subtask.attempt_failed",
				"task", c.task,
				"page", c.page,
				"provider", d.Provider,
				"model", d.ModelName,
				"attempt", attempt,
				"outcome", outcome,
				"error", err,
			)
		}
	}
	return res
}

// admit runs the pre-call gates for d: an open circuit, the provider rate
// limit, the dispatch guard, and last the breaker admission. A half-open
// breaker hands out its single probe only to a call that will be made.
func (o *Orchestrator) admit(ctx context.Context, rt *Routing, c call, d types.RoutingDecision) (string, bool) {
	if o.health.State(d.Provider) == router.StateOpen {
		return "circuit open: " + d.Provider, false
	}

	allowed, err := o.limits.Allow(ctx, d.Provider)
	if err != nil {
		o.logger.Warn("ratelimit.check_failed", "provider", d.Provider, "error", err)
	}
	if !allowed {
		if o.metrics != nil {
			o.metrics.RecordRateLimitHit(d.Provider)
		}
		return "rate limited: " + d.Provider, false
	}

	if o.guard.Enabled() {
		in := guard.Input{
			Task:     c.task,
			Provider: d.Provider,
			Model:    d.ModelName,
			Mode:     c.mode,
			Features: c.features.Map(),
		}
		if p, ok := rt.Registry.Provider(d.Provider); ok {
			in.ProviderType = p.Type
		}
		decision, err := o.guard.Evaluate(ctx, in)
		if err != nil {
			o.logger.Error("guard.evaluation_failed", "provider", d.Provider, "error", err)
		}
		if !decision.Allowed {
			if o.metrics != nil {
				o.metrics.RecordGuardDenied(d.Provider)
			}
			return "guard denied: " + decision.Reason, false
		}
	}

	if !o.health.IsAvailable(d.Provider) {
		return "circuit open: " + d.Provider, false
	}
	return "", true
}

func (o *Orchestrator) callTimeout(rt *Routing, provider string) time.Duration {
	if p, ok := rt.Registry.Provider(provider); ok && p.Timeout > 0 {
		return p.Timeout
	}
	return o.opts.CallTimeout
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case adapters.IsMalformed(err):
		return "malformed"
	case adapters.IsMissingCredential(err):
		return "unconfigured"
	default:
		return "error"
	}
}

// sleepCtx waits for d or until ctx is done. It reports whether the full
// wait elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if err := ctx.Err(); err != nil {
		return false
	}
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
