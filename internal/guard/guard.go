// Package guard evaluates Rego policies that decide whether a document may
// be dispatched to a given backend.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"
)

const query = "[data.docroute.guard.allow, data.docroute.guard.reason]"

// Input is the document sent to OPA for evaluation.
type Input struct {
	Task         string         `json:"task"`
	Provider     string         `json:"provider"`
	ProviderType string         `json:"provider_type"`
	Model        string         `json:"model"`
	Mode         string         `json:"mode"`
	Features     map[string]any `json:"features"`
	Time         Time           `json:"time"`
}

type Time struct {
	Hour int    `json:"hour"`
	Day  string `json:"day"`
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Allowed bool
	Reason  string
}

// Evaluator holds the compiled guard query. A disabled evaluator allows
// everything; an enabled one without policies denies everything.
type Evaluator struct {
	mu       sync.RWMutex
	prepared *rego.PreparedEvalQuery
	enabled  bool
	timeout  time.Duration
	logger   *slog.Logger
}

func New(enabled bool, timeout time.Duration, logger *slog.Logger) *Evaluator {
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{enabled: enabled, timeout: timeout, logger: logger}
}

func (e *Evaluator) Enabled() bool { return e != nil && e.enabled }

// Load compiles every .rego file in dir.
func (e *Evaluator) Load(ctx context.Context, dir string) error {
	modules, err := LoadRegoFiles(dir)
	if err != nil {
		return fmt.Errorf("load rego files: %w", err)
	}
	if len(modules) == 0 {
		e.logger.Warn("no rego files found", "path", dir)
		return nil
	}
	if err := e.LoadFromModules(ctx, modules); err != nil {
		return err
	}
	e.logger.Info("guard policies loaded", "modules", len(modules), "path", dir)
	return nil
}

// LoadFromModules compiles policies from module sources keyed by file name.
func (e *Evaluator) LoadFromModules(ctx context.Context, modules map[string]string) error {
	opts := []func(*rego.Rego){rego.Query(query)}
	for name, src := range modules {
		opts = append(opts, rego.Module(name, src))
	}

	prepared, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("prepare rego: %w", err)
	}

	e.mu.Lock()
	e.prepared = &prepared
	e.mu.Unlock()
	return nil
}

// Evaluate runs the guard against in. Evaluation errors deny.
func (e *Evaluator) Evaluate(ctx context.Context, in Input) (Decision, error) {
	if !e.Enabled() {
		return Decision{Allowed: true}, nil
	}

	e.mu.RLock()
	prepared := e.prepared
	e.mu.RUnlock()
	if prepared == nil {
		return Decision{Reason: "no policies loaded"}, nil
	}

	if in.Time == (Time{}) {
		now := time.Now().UTC()
		in.Time = Time{Hour: now.Hour(), Day: now.Weekday().String()}
	}

	evalCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	results, err := prepared.Eval(evalCtx, rego.EvalInput(in))
	if err != nil {
		return Decision{Reason: "policy evaluation error"}, fmt.Errorf("evaluate guard: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Reason: "no policy result"}, nil
	}

	arr, ok := results[0].Expressions[0].Value.([]interface{})
	if !ok || len(arr) < 2 {
		return Decision{Reason: "unexpected policy result format"}, nil
	}
	allowed, _ := arr[0].(bool)
	reason, _ := arr[1].(string)
	return Decision{Allowed: allowed, Reason: reason}, nil
}

// LoadRegoFiles reads all .rego files from the given directory.
func LoadRegoFiles(dir string) (map[string]string, error) {
	modules := make(map[string]string)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".rego" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		modules[entry.Name()] = string(data)
	}
	return modules, nil
}
