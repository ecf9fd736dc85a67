// Package orchestrator runs the extraction pipeline for one document:
// ingest, paginate, route header, route line items, merge, score,
// summarize and finalize.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/af-corp/docroute/internal/cache"
	"github.com/af-corp/docroute/internal/config"
	"github.com/af-corp/docroute/internal/extract"
	"github.com/af-corp/docroute/internal/guard"
	"github.com/af-corp/docroute/internal/paginate"
	"github.com/af-corp/docroute/internal/ratelimit"
	"github.com/af-corp/docroute/internal/router"
	"github.com/af-corp/docroute/internal/router/adapters"
	"github.com/af-corp/docroute/internal/telemetry"
	"github.com/af-corp/docroute/internal/types"
)

// ErrEmptyInput is reported for a document without bytes.
var ErrEmptyInput = errors.New("empty input")

// Options are the environment-level inputs of the pipeline.
type Options struct {
	Mode           string
	RemoteModel    string
	Budget         string
	DocType        string
	Offline        bool
	MaxConcurrency int
	CallTimeout    time.Duration
	Temperature    float64
}

// OptionsFrom maps the service configuration onto Options.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		Mode:           cfg.Orchestrator.Mode,
		RemoteModel:    cfg.Orchestrator.RemoteModel,
		Budget:         cfg.Orchestrator.Budget,
		DocType:        cfg.Orchestrator.DocType,
		Offline:        cfg.Orchestrator.Offline,
		MaxConcurrency: cfg.Orchestrator.MaxConcurrency,
		CallTimeout:    cfg.Routing.DefaultTimeout,
		Temperature:    cfg.Routing.Temperature,
	}
}

// Deps are the collaborators of an Orchestrator. Paginator and Local are
// required; the rest may be nil.
type Deps struct {
	Paginator *paginate.Paginator
	Local     *extract.LocalExtractor
	Validator *extract.Validator
	Health    *router.HealthTracker
	Limits    *ratelimit.ProviderLimits
	Guard     *guard.Evaluator
	Cache     *cache.ResultCache
	Metrics   *telemetry.Metrics
	Logger    *slog.Logger
}

// Document is one input to Orchestrate. Mode, Budget and DocType override
// the configured values when set. Interim is an earlier whole-document
// extraction used when routed subtasks fail.
type Document struct {
	Filename string
	Data     []byte
	Interim  *extract.FieldSet
	Mode     string
	Budget   string
	DocType  string
}

type Orchestrator struct {
	opts      Options
	routing   atomic.Pointer[Routing]
	pages     *paginate.Paginator
	local     *extract.LocalExtractor
	validator *extract.Validator
	health    *router.HealthTracker
	limits    *ratelimit.ProviderLimits
	guard     *guard.Evaluator
	cache     *cache.ResultCache
	metrics   *telemetry.Metrics
	logger    *slog.Logger
}

func New(opts Options, rt *Routing, deps Deps) (*Orchestrator, error) {
	if rt == nil {
		return nil, errors.New("orchestrator: routing is required")
	}
	if deps.Paginator == nil || deps.Local == nil {
		return nil, errors.New("orchestrator: paginator and local extractor are required")
	}
	if opts.Mode == "" {
		opts.Mode = config.ModeSmart
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 4
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 120 * time.Second
	}

	v := deps.Validator
	if v == nil {
		var err error
		if v, err = extract.NewValidator(); err != nil {
			return nil, fmt.Errorf("build payload validator: %w", err)
		}
	}
	health := deps.Health
	if health == nil {
		health = router.NewHealthTracker(5, 30*time.Second)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	o := &Orchestrator{
		opts:      opts,
		pages:     deps.Paginator,
		local:     deps.Local,
		validator: v,
		health:    health,
		limits:    deps.Limits,
		guard:     deps.Guard,
		cache:     deps.Cache,
		metrics:   deps.Metrics,
		logger:    logger,
	}
	o.routing.Store(rt)
	return o, nil
}

// SetRouting swaps in a rebuilt Routing. Documents already in flight keep
// the Routing they started with; the replaced backends drop their idle
// connections.
func (o *Orchestrator) SetRouting(rt *Routing) {
	if rt == nil {
		return
	}
	prev := o.routing.Swap(rt)
	if prev != nil && prev.Backends != nil && prev.Backends != rt.Backends {
		prev.Backends.CloseIdleConnections()
	}
}

func (o *Orchestrator) Routing() *Routing { return o.routing.Load() }

// Health exposes the provider circuit breakers.
func (o *Orchestrator) Health() *router.HealthTracker { return o.health }

// Decide returns the routing decision a subtask with features f would get
// in mode, without calling any backend.
func (o *Orchestrator) Decide(mode, task string, f types.Features) types.RoutingDecision {
	return o.decide(o.routing.Load(), o.modeOf(mode), task, f)
}

func (o *Orchestrator) decide(rt *Routing, mode, task string, f types.Features) types.RoutingDecision {
	var d types.RoutingDecision
	switch mode {
	case config.ModeLocal:
		d = types.RoutingDecision{
			Task:         task,
			PortfolioKey: SourceLocal,
			Rule:         "mode:local",
			Reason:       "backend routing disabled",
		}
	case config.ModeRemote:
		d = rt.Selector.Pin(task, o.opts.RemoteModel, "mode:remote")
	default:
		d = rt.Selector.Select(task, f)
	}
	if o.metrics != nil {
		o.metrics.RecordRuleHit(task, d.Rule)
	}
	return d
}

func (o *Orchestrator) modeOf(override string) string {
	switch override {
	case config.ModeSmart, config.ModeRemote, config.ModeLocal:
		return override
	}
	return o.opts.Mode
}

// Orchestrate processes one document. It never returns nil: failures of
// document-wide preconditions, and panics in any stage, produce a result
// with Success=false and the steps collected so far.
func (o *Orchestrator) Orchestrate(ctx context.Context, doc Document) (res *Result) {
	start := time.Now()
	mode := o.modeOf(doc.Mode)
	res = &Result{
		Filename:   doc.Filename,
		DocumentID: uuid.NewString(),
		Mode:       mode,
	}
	log := o.logger.With("document_id", res.DocumentID, "filename", doc.Filename, "mode", mode)

	defer func() {
		if r := recover(); r != nil {
			log.Error("orchestrate.panic", "panic", r, "stack", string(debug.Stack()))
			res.fail(fmt.Errorf("internal error: %v", r))
		}
		res.ElapsedMs = time.Since(start).Milliseconds()
		o.record(res)
		log.Info("orchestrate.done",
			"success", res.Success,
			"pages", res.PageCount,
			"confidence", res.Confidence,
			"cached", res.Cached,
			"elapsed_ms", res.ElapsedMs,
		)
	}()

	// ingest
	res.step("ingest")
	if len(doc.Data) == 0 {
		res.fail(ErrEmptyInput)
		return res
	}

	budget := firstNonEmpty(doc.Budget, o.opts.Budget)
	docType := firstNonEmpty(doc.DocType, o.opts.DocType)

	cacheKey := ""
	if o.cache.Enabled() && doc.Interim == nil {
		cacheKey = cache.Key(doc.Data, mode, docType, budget, strconv.FormatBool(o.opts.Offline))
		if cached, ok := o.fromCache(ctx, cacheKey); ok {
			cached.Filename = doc.Filename
			cached.Cached = true
			cached.step("cache:hit")
			return cached
		}
	}

	// paginate
	pdoc, err := o.pages.Open(ctx, doc.Data)
	if err != nil {
		res.fail(fmt.Errorf("unreadable document: %w", err))
		return res
	}
	defer pdoc.Close()

	n := pdoc.PageCount()
	res.PageCount = n
	first, err := pdoc.Render(ctx, 1)
	if err != nil {
		res.fail(fmt.Errorf("render page 1: %w", err))
		return res
	}

	rt := o.routing.Load()
	base := types.Features{
		PageCount:            n,
		DocType:              docType,
		Budget:               budget,
		Offline:              o.opts.Offline,
		RequiredCapabilities: []string{types.CapVision, types.CapJSON},
	}

	// header runs while the remaining pages render
	headerCh := make(chan subtaskOutcome, 1)
	go func() {
		var out subtaskOutcome
		defer func() {
			if r := recover(); r != nil {
				out.panic = fmt.Errorf("header extraction panic: %v", r)
				log.Error("orchestrate.panic", "task", types.TaskHeader, "panic", r, "stack", string(debug.Stack()))
			}
			headerCh <- out
		}()
		out = o.runHeader(ctx, rt, mode, base.WithTask(types.TaskHeader), first, doc)
	}()

	rest, renderErr := pdoc.RenderRange(ctx, 2, n)
	pages := append([][]byte{first}, rest...)
	res.step("paginate:" + strconv.Itoa(n))

	var items []subtaskOutcome
	var itemsErr error
	if renderErr == nil {
		items, itemsErr = o.runLineItems(ctx, rt, mode, base.WithTask(types.TaskLineItems), pages, doc)
	}
	header := <-headerCh

	if renderErr != nil {
		res.fail(fmt.Errorf("render pages: %w", renderErr))
		return res
	}

	// route header
	res.RouterTrace = append(res.RouterTrace, header.decision)
	res.Subtasks = append(res.Subtasks, header.sub)
	res.step(header.sub.Label())
	res.Steps = append(res.Steps, header.notes...)
	if header.panic != nil {
		res.fail(header.panic)
		return res
	}

	// route line items
	var lineItems []extract.LineItem
	routedPages := 0
	for _, it := range items {
		res.RouterTrace = append(res.RouterTrace, it.decision)
		res.Subtasks = append(res.Subtasks, it.sub)
		res.step(it.sub.Label())
		if it.sub.State == StateRouted {
			routedPages++
		}
		lineItems = append(lineItems, it.items...)
	}
	if itemsErr != nil {
		res.fail(itemsErr)
		return res
	}
	if routedPages == 0 && doc.Interim != nil {
		lineItems = append([]extract.LineItem(nil), doc.Interim.LineItems...)
		res.step("line_items:degraded:interim")
	}

	// merge
	fields := extract.Merge(header.header, lineItems)
	res.Fields = &fields
	res.step("merge")

	// score
	res.Confidence = extract.Confidence(fields)
	res.step("score")

	// summarize
	res.Summary = extract.Summary(fields)
	res.step("summarize")

	// finalize
	res.Success = true
	res.step("finalize")

	if cacheKey != "" && cacheable(res) {
		o.toCache(ctx, cacheKey, res)
	}
	return res
}

// subtaskOutcome is the internal result of one header or page subtask.
type subtaskOutcome struct {
	sub      Subtask
	decision types.RoutingDecision
	header   map[string]any
	items    []extract.LineItem
	notes    []string
	panic    error
}

func (o *Orchestrator) runHeader(ctx context.Context, rt *Routing, mode string, f types.Features, page []byte, doc Document) subtaskOutcome {
	out := subtaskOutcome{
		sub:      Subtask{Task: types.TaskHeader, Page: 1},
		decision: o.decide(rt, mode, types.TaskHeader, f),
	}

	if mode != config.ModeLocal {
		c := call{
			task:     types.TaskHeader,
			page:     1,
			features: f,
			mode:     mode,
			chain:    o.chain(rt, mode, f, out.decision),
			request: adapters.ExtractRequest{
				Prompt:      extract.HeaderPrompt(f.DocType),
				Images:      [][]byte{page},
				Temperature: o.opts.Temperature,
				Filename:    doc.Filename,
			},
		}
		dr := o.dispatch(ctx, rt, c)
		out.sub.Attempts = dr.attempts
		if dr.extraction != nil {
			out.header = extract.HeaderFrom(dr.extraction.Fields)
			if err := o.validator.ValidateHeader(out.header); err != nil {
				o.logger.Warn("subtask.schema_warning", "task", types.TaskHeader, "provider", dr.decision.Provider, "error", err)
				out.notes = append(out.notes, "header:schema_warning")
			}
			out.sub.State = StateRouted
			out.sub.Source = dr.decision.Provider
			out.sub.Provider = dr.decision.Provider
			out.sub.Model = dr.decision.ModelName
			o.logSubtask(out.sub)
			return out
		}
		out.sub.Reason = dr.reason
	} else {
		out.sub.Reason = out.decision.Reason
	}

	if doc.Interim != nil {
		out.header = copyMap(doc.Interim.Header)
		out.sub.State = StateDegraded
		out.sub.Source = SourceInterim
		o.logSubtask(out.sub)
		return out
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.CallTimeout)
	defer cancel()
	h, err := o.local.Header(fctx, page)
	out.header = h
	if err != nil {
		out.sub.State = StateFailed
		out.sub.Reason = joinReason(out.sub.Reason, "local extractor: "+err.Error())
	} else {
		out.sub.State = StateDegraded
		out.sub.Source = SourceLocal
	}
	o.logSubtask(out.sub)
	return out
}

// runLineItems issues one subtask per page with bounded parallelism and
// returns the outcomes in page order. Once ctx is done no further pages
// are scheduled; the unscheduled pages are recorded as failed.
func (o *Orchestrator) runLineItems(ctx context.Context, rt *Routing, mode string, f types.Features, pages [][]byte, doc Document) ([]subtaskOutcome, error) {
	out := make([]subtaskOutcome, len(pages))
	g := new(errgroup.Group)
	g.SetLimit(o.opts.MaxConcurrency)

	scheduled := 0
	for i := range pages {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					o.logger.Error("orchestrate.panic", "task", types.TaskLineItems, "page", i+1, "panic", r, "stack", string(debug.Stack()))
					err = fmt.Errorf("line items page %d panic: %v", i+1, r)
				}
			}()
			out[i] = o.runPage(ctx, rt, mode, f, i+1, len(pages), pages[i], doc)
			return nil
		})
		scheduled++
	}
	err := g.Wait()

	for i := scheduled; i < len(pages); i++ {
		out[i] = subtaskOutcome{
			sub: Subtask{
				Task:   types.TaskLineItems,
				Page:   i + 1,
				State:  StateFailed,
				Reason: "not scheduled: " + context.Cause(ctx).Error(),
			},
			decision: types.RoutingDecision{
				Task:         types.TaskLineItems,
				PortfolioKey: types.DefaultSentinel,
				Rule:         "cancelled",
				Reason:       "document cancelled before page was routed",
			},
		}
	}
	return out, err
}

func (o *Orchestrator) runPage(ctx context.Context, rt *Routing, mode string, f types.Features, page, pages int, img []byte, doc Document) subtaskOutcome {
	out := subtaskOutcome{
		sub:      Subtask{Task: types.TaskLineItems, Page: page},
		decision: o.decide(rt, mode, types.TaskLineItems, f),
	}

	if mode != config.ModeLocal {
		c := call{
			task:     types.TaskLineItems,
			page:     page,
			features: f,
			mode:     mode,
			chain:    o.chain(rt, mode, f, out.decision),
			request: adapters.ExtractRequest{
				Prompt:      extract.LineItemsPrompt(f.DocType, page, pages),
				Images:      [][]byte{img},
				Temperature: o.opts.Temperature,
				Filename:    doc.Filename,
			},
			validate: o.validator.ValidateLineItems,
		}
		dr := o.dispatch(ctx, rt, c)
		out.sub.Attempts = dr.attempts
		if dr.extraction != nil {
			out.items = extract.LineItemsFrom(dr.extraction.Fields)
			out.sub.State = StateRouted
			out.sub.Source = dr.decision.Provider
			out.sub.Provider = dr.decision.Provider
			out.sub.Model = dr.decision.ModelName
			o.logSubtask(out.sub)
			return out
		}
		out.sub.Reason = dr.reason
	} else {
		out.sub.Reason = out.decision.Reason
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.CallTimeout)
	defer cancel()
	items, err := o.local.LineItems(fctx, img)
	if err != nil {
		out.sub.State = StateFailed
		out.sub.Reason = joinReason(out.sub.Reason, "local extractor: "+err.Error())
	} else {
		out.items = items
		out.sub.State = StateDegraded
		out.sub.Source = SourceLocal
	}
	o.logSubtask(out.sub)
	return out
}

// chain is the primary decision followed by the task's fallback models.
func (o *Orchestrator) chain(rt *Routing, mode string, f types.Features, primary types.RoutingDecision) []types.RoutingDecision {
	if mode == config.ModeLocal {
		return nil
	}
	return append([]types.RoutingDecision{primary}, rt.Selector.Alternates(primary.Task, f, primary)...)
}

func (o *Orchestrator) logSubtask(s Subtask) {
	level := slog.LevelInfo
	if s.State != StateRouted {
		level = slog.LevelWarn
	}
	o.logger.Log(context.Background(), level, "subtask."+string(s.State),
		"task", s.Task,
		"page", s.Page,
		"provider", s.Provider,
		"model", s.Model,
		"source", s.Source,
		"attempts", s.Attempts,
		"reason", s.Reason,
	)
}

func (o *Orchestrator) record(res *Result) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordDocument(res.Mode, res.Success, res.Confidence, time.Duration(res.ElapsedMs)*time.Millisecond)
	if res.Cached {
		return
	}
	for _, s := range res.Subtasks {
		o.metrics.RecordSubtask(s.Task, string(s.State))
	}
}

func (o *Orchestrator) fromCache(ctx context.Context, key string) (*Result, bool) {
	b, ok := o.cache.Get(ctx, key)
	if o.metrics != nil {
		o.metrics.RecordCache(ok)
	}
	if !ok {
		return nil, false
	}
	var res Result
	if err := json.Unmarshal(b, &res); err != nil {
		o.logger.Warn("cache.decode_failed", "error", err)
		return nil, false
	}
	return &res, true
}

func (o *Orchestrator) toCache(ctx context.Context, key string, res *Result) {
	b, err := json.Marshal(res)
	if err != nil {
		o.logger.Warn("cache.encode_failed", "error", err)
		return
	}
	o.cache.Set(ctx, key, b)
}

// cacheable reports whether res reflects healthy backends. A result that
// fell back because a backend was down must not outlive the outage; local
// mode degrades every subtask on purpose and stays cacheable.
func cacheable(res *Result) bool {
	for _, s := range res.Subtasks {
		switch {
		case s.State == StateRouted:
		case res.Mode == config.ModeLocal && s.State == StateDegraded && s.Source == SourceLocal:
		default:
			return false
		}
	}
	return true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func joinReason(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
