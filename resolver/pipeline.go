// Package resolver implements the stages that map a free-text substance query to
// LCA elementary flows, and the pipeline that chains them:
//
//	text -> Extractor -> SynonymExpander -> CAS lookup -> FlowResolver
//
// A stage that finds nothing passes its "none" value forward and later stages
// degrade: without a CAS number the flows are found by full-text search instead
// of a structured query. Only capability failures abort a run; they are
// returned as *flowmap.StageError.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rickchristie/flowmap"
	"github.com/rickchristie/flowmap/logging"
	"golang.org/x/sync/errgroup"
)

// CASLookup resolves a synonym set to a CAS number. It never fails; absence and
// registry errors are both flowmap.NoCAS. *cas.Resolver implements it.
type CASLookup interface {
	Resolve(ctx context.Context, execCtx *flowmap.ExecutionContext, synonyms flowmap.SynonymSet) flowmap.CASNumber
}

// Timeouts bound each stage. Zero disables the bound.
type Timeouts struct {
	Extract  time.Duration
	Synonyms time.Duration
	CAS      time.Duration
	Flows    time.Duration
}

// DefaultTimeouts returns the default stage timeouts.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Extract:  flowmap.DefaultExtractTimeout,
		Synonyms: flowmap.DefaultSynonymsTimeout,
		CAS:      flowmap.DefaultCASTimeout,
		Flows:    flowmap.DefaultFlowsTimeout,
	}
}

func (t Timeouts) of(stage flowmap.Stage) time.Duration {
	switch stage {
	case flowmap.StageExtract:
		return t.Extract
	case flowmap.StageSynonyms:
		return t.Synonyms
	case flowmap.StageCAS:
		return t.CAS
	case flowmap.StageFlows:
		return t.Flows
	}
	return 0
}

// Pipeline chains the resolution stages. It holds no per-run state and is safe
// for concurrent use.
type Pipeline struct {
	extractor   *Extractor
	synonyms    *SynonymExpander
	cas         CASLookup
	flows       *FlowResolver
	topN        int
	compactTopN int
	concurrency int
	timeouts    Timeouts
	metrics     *Metrics
	log         logging.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithTopN sets how many flows Run returns.
func WithTopN(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.topN = n
		}
	}
}

// WithCompactTopN sets how many flows RunCompact returns.
func WithCompactTopN(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.compactTopN = n
		}
	}
}

// WithConcurrency bounds how many runs RunBatch executes at once.
func WithConcurrency(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithTimeouts sets the stage timeouts.
func WithTimeouts(t Timeouts) PipelineOption {
	return func(p *Pipeline) { p.timeouts = t }
}

// WithMetrics records runs into m.
func WithMetrics(m *Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(log logging.Logger) PipelineOption {
	return func(p *Pipeline) { p.log = logging.OrNop(log) }
}

// NewPipeline creates a Pipeline from its stages.
func NewPipeline(
	extractor *Extractor,
	synonyms *SynonymExpander,
	cas CASLookup,
	flows *FlowResolver,
	opts ...PipelineOption,
) *Pipeline {
	p := &Pipeline{
		extractor:   extractor,
		synonyms:    synonyms,
		cas:         cas,
		flows:       flows,
		topN:        flowmap.DefaultTopN,
		compactTopN: flowmap.CompactTopN,
		concurrency: 4,
		timeouts:    DefaultTimeouts(),
		log:         logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run resolves text to the top flows.
func (p *Pipeline) Run(ctx context.Context, text string) (*flowmap.ResolutionResult, error) {
	return p.Execute(ctx, flowmap.NewExecutionContext("resolve"), text, p.topN)
}

// RunCompact resolves text to the shorter compact list of flows.
func (p *Pipeline) RunCompact(ctx context.Context, text string) (*flowmap.ResolutionResult, error) {
	return p.Execute(ctx, flowmap.NewExecutionContext("resolve"), text, p.compactTopN)
}

// Execute runs every stage for text, tracing into execCtx, and returns at most
// topN flows. The partial result is returned alongside a *flowmap.StageError
// when a stage fails.
func (p *Pipeline) Execute(
	ctx context.Context,
	execCtx *flowmap.ExecutionContext,
	text string,
	topN int,
) (result *flowmap.ResolutionResult, err error) {
	log := p.log.With(logging.String("run_id", execCtx.ID()))
	result = &flowmap.ResolutionResult{
		RunID: execCtx.ID(),
		Text:  text,
		Path:  flowmap.PathSkipped,
		Flows: []flowmap.FlowRecord{},
	}

	defer func() {
		execCtx.End(err)
		p.metrics.observeRun(err)
		if err != nil {
			log.Error("resolution failed", logging.Err(err))
		} else {
			log.Info("resolution finished",
				logging.String("path", string(result.Path)),
				logging.Int("flows", len(result.Flows)),
				logging.Duration("duration", execCtx.Duration()))
		}
	}()

	err = p.stage(ctx, execCtx, flowmap.StageExtract, func(ctx context.Context) (string, string, error) {
		q, err := p.extractor.Extract(ctx, execCtx, text)
		if err != nil {
			return "", "", err
		}
		result.Query = q
		if !q.Found() {
			return flowmap.OutcomeNone, "no substance", nil
		}
		return flowmap.OutcomeOK, fmt.Sprintf("name=%q category=%q", q.Name, q.Category), nil
	})
	if err != nil {
		return result, err
	}

	err = p.stage(ctx, execCtx, flowmap.StageSynonyms, func(ctx context.Context) (string, string, error) {
		s, err := p.synonyms.Expand(ctx, execCtx, result.Query)
		if err != nil {
			return "", "", err
		}
		result.Synonyms = s
		if !s.Found() {
			return flowmap.OutcomeNone, "", nil
		}
		return flowmap.OutcomeOK, s.String(), nil
	})
	if err != nil {
		return result, err
	}

	// Search terms for the later stages. Without synonyms the extracted name
	// still identifies the substance.
	terms := result.Synonyms
	if !terms.Found() && result.Query.Found() {
		terms = flowmap.NewSynonymSet(result.Query.Name)
	}

	err = p.stage(ctx, execCtx, flowmap.StageCAS, func(ctx context.Context) (string, string, error) {
		if !terms.Found() {
			return flowmap.OutcomeNone, "nothing to look up", nil
		}
		c := p.cas.Resolve(ctx, execCtx, terms)
		result.CAS = c
		p.metrics.observeCAS(c.Found())
		if !c.Found() {
			return flowmap.OutcomeNone, "", nil
		}
		return flowmap.OutcomeOK, c.Digits(), nil
	})
	if err != nil {
		return result, err
	}

	err = p.stage(ctx, execCtx, flowmap.StageFlows, func(ctx context.Context) (string, string, error) {
		flows, err := p.flows.Resolve(ctx, execCtx, result.CAS, result.Query.Category, terms, topN)
		if err != nil {
			return "", "", err
		}
		result.Path = flows.Path
		result.Flows = projection(flows)
		p.metrics.observePath(flows.Path)
		if len(result.Flows) == 0 {
			return flowmap.OutcomeNone, string(flows.Path), nil
		}
		return flowmap.OutcomeOK, string(flows.Path), nil
	})
	if err != nil {
		return result, err
	}

	return result, nil
}

// stage runs fn under the stage's timeout and traces its outcome. fn returns
// the outcome and a short detail for the trace.
func (p *Pipeline) stage(
	ctx context.Context,
	execCtx *flowmap.ExecutionContext,
	stage flowmap.Stage,
	fn func(ctx context.Context) (outcome, detail string, err error),
) error {
	execCtx.EnterStage(stage)

	if d := p.timeouts.of(stage); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	start := time.Now()
	outcome, detail, err := fn(ctx)
	duration := time.Since(start)
	if err != nil {
		outcome = flowmap.OutcomeFailed
	}

	execCtx.Trace(flowmap.StageTrace{
		Outcome:  outcome,
		Detail:   detail,
		Duration: duration,
		Error:    err,
	})
	p.metrics.observeStage(stage, outcome, duration)
	p.log.Debug("stage finished",
		logging.String("run_id", execCtx.ID()),
		logging.String("stage", string(stage)),
		logging.String("outcome", outcome),
		logging.String("detail", detail),
		logging.Duration("duration", duration))

	if err != nil {
		return &flowmap.StageError{Stage: stage, Err: err}
	}
	return nil
}

func projection(flows *Flows) []flowmap.FlowRecord {
	out := make([]flowmap.FlowRecord, len(flows.Records))
	for i, r := range flows.Records {
		out[i] = r.FlowRecord
	}
	return out
}

// BatchItem is the outcome of one query of a batch.
type BatchItem struct {
	Text   string
	Result *flowmap.ResolutionResult
	Trace  *flowmap.ExecutionContext
	Err    error
}

// RunBatch resolves every text independently, at most the configured
// concurrency at a time, and returns the items in input order. A failed item
// does not stop the others; only cancellation of ctx does.
func (p *Pipeline) RunBatch(ctx context.Context, texts []string) ([]BatchItem, error) {
	items := make([]BatchItem, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, text := range texts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				items[i] = BatchItem{Text: text, Err: err}
				return nil
			}
			execCtx := flowmap.NewExecutionContext(fmt.Sprintf("batch-%d", i))
			result, err := p.Execute(gctx, execCtx, text, p.topN)
			items[i] = BatchItem{Text: text, Result: result, Trace: execCtx, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return items, err
	}
	return items, nil
}

// IsCapabilityFailure reports whether err came from a failing model or
// database, as opposed to cancellation or misconfiguration.
func IsCapabilityFailure(err error) bool {
	return errors.Is(err, flowmap.ErrExtractionFailed) ||
		errors.Is(err, flowmap.ErrExpansionFailed) ||
		errors.Is(err, flowmap.ErrDatabase)
}
