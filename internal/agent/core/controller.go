package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/deepsearch/internal/agent/telemetry"
	"github.com/mohammad-safakhou/deepsearch/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const DefaultMaxSteps = 5

const correctionNotice = "Your previous response could not be parsed (%s). " +
	"Use EXACTLY the format Action: ToolName[input]. Choose Search[query] or Final Answer[answer]."

var errBlankCompletion = errors.New("completion provider returned blank text")

var agentTracer trace.Tracer = otel.Tracer("deepsearch/internal/agent/core")

// Controller holds the loop configuration and the injected providers. It
// keeps no per-question state, so one Controller can serve concurrent runs.
type Controller struct {
	completer CompletionProvider
	retriever RetrievalProvider

	maxSteps          int
	completionTimeout time.Duration
	retrievalTimeout  time.Duration
	parseRetries      int
	parser            Parser

	logger  *zap.SugaredLogger
	metrics *telemetry.Metrics
	tracer  trace.Tracer
}

// Option configures a Controller.
type Option func(*Controller)

func WithMaxSteps(n int) Option { return func(c *Controller) { c.maxSteps = n } }

// WithCompletionTimeout bounds each completion call; zero means no bound.
func WithCompletionTimeout(d time.Duration) Option {
	return func(c *Controller) { c.completionTimeout = d }
}

// WithRetrievalTimeout bounds each retrieval call; zero means no bound.
func WithRetrievalTimeout(d time.Duration) Option {
	return func(c *Controller) { c.retrievalTimeout = d }
}

// WithParseRetries allows up to n re-prompts per run after unparseable
// responses. Each re-prompt consumes a step.
func WithParseRetries(n int) Option { return func(c *Controller) { c.parseRetries = n } }

func WithStrictParsing(strict bool) Option {
	return func(c *Controller) { c.parser.Strict = strict }
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithMetrics(m *telemetry.Metrics) Option { return func(c *Controller) { c.metrics = m } }

func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) {
		if t != nil {
			c.tracer = t
		}
	}
}

// NewController validates the configuration and returns a Controller.
func NewController(completer CompletionProvider, retriever RetrievalProvider, opts ...Option) (*Controller, error) {
	if completer == nil {
		return nil, errors.New("completion provider is required")
	}
	if retriever == nil {
		return nil, errors.New("retrieval provider is required")
	}
	c := &Controller{
		completer: completer,
		retriever: retriever,
		maxSteps:  DefaultMaxSteps,
		logger:    zap.NewNop().Sugar(),
		tracer:    agentTracer,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxSteps <= 0 {
		return nil, fmt.Errorf("max steps must be positive, got %d", c.maxSteps)
	}
	if c.parseRetries < 0 {
		return nil, fmt.Errorf("parse retries cannot be negative, got %d", c.parseRetries)
	}
	if c.completionTimeout < 0 || c.retrievalTimeout < 0 {
		return nil, errors.New("timeouts cannot be negative")
	}
	return c, nil
}

func (c *Controller) MaxSteps() int { return c.maxSteps }

// Answer drives a fresh run for question to completion.
func (c *Controller) Answer(ctx context.Context, question string, opts ...RunOption) Outcome {
	run := c.NewRun(question, opts...)
	ctx, span := c.tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("run.id", run.id),
		attribute.Int("run.max_steps", run.maxSteps),
	))
	defer span.End()

	for !run.Step(ctx) {
	}
	out, _ := run.Outcome()
	span.SetAttributes(
		attribute.String("run.outcome", out.Kind.String()),
		attribute.Int("run.steps", out.Steps),
	)
	if !out.Finalized() {
		span.SetStatus(codes.Error, string(out.Reason))
	}
	return out
}

// RunOption adjusts a single run.
type RunOption func(*Run)

// RunMaxSteps overrides the controller step budget for one run. Values <= 0
// are ignored.
func RunMaxSteps(n int) RunOption {
	return func(r *Run) {
		if n > 0 {
			r.maxSteps = n
		}
	}
}

// Run is the state of one question: step counter, transcript and active
// observation. A Run must not be shared between goroutines.
type Run struct {
	c           *Controller
	id          string
	question    string
	maxSteps    int
	step        int
	transcript  []string
	observation Observation
	retriesLeft int
	outcome     *Outcome
}

// NewRun starts a run in Running(0).
func (c *Controller) NewRun(question string, opts ...RunOption) *Run {
	r := &Run{
		c:           c,
		id:          uuid.NewString(),
		question:    question,
		maxSteps:    c.maxSteps,
		retriesLeft: c.parseRetries,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Run) ID() string { return r.id }

// Prompt returns the prompt the next Step will send.
func (r *Run) Prompt() string {
	return BuildPrompt(PromptInput{
		Question:    r.question,
		Transcript:  r.transcript,
		Step:        r.step,
		MaxSteps:    r.maxSteps,
		Observation: r.observation,
	})
}

// Outcome returns the result once the run is terminal.
func (r *Run) Outcome() (Outcome, bool) {
	if r.outcome == nil {
		return Outcome{}, false
	}
	out := *r.outcome
	out.Transcript = append([]string(nil), r.outcome.Transcript...)
	return out, true
}

// Step executes one iteration and reports whether the run is terminal.
// Cancellation of ctx is observed once, before any work in the step.
func (r *Run) Step(ctx context.Context) bool {
	if r.outcome != nil {
		return true
	}
	if r.step >= r.maxSteps {
		r.stopMaxSteps()
		return true
	}
	if err := ctx.Err(); err != nil {
		r.stop(StopCancelled, fmt.Sprintf("run cancelled before step %d: %v", r.step+1, err))
		return true
	}

	ctx, span := r.c.tracer.Start(ctx, "agent.step", trace.WithAttributes(
		attribute.String("run.id", r.id),
		attribute.Int("step", r.step+1),
	))
	defer span.End()

	text, err := r.complete(ctx, r.Prompt())
	if err != nil {
		// the run context ended mid-call; per-call timeouts only cancel the inner context
		if ctx.Err() != nil {
			r.stop(StopCancelled, fmt.Sprintf("run cancelled during step %d: %v", r.step+1, err))
			return true
		}
		r.stop(StopCommunicationFailure, fmt.Sprintf("no response from completion provider at step %d: %v", r.step+1, err))
		return true
	}
	r.transcript = append(r.transcript, text)

	action := r.c.parser.Parse(text, r.step)
	span.SetAttributes(attribute.String("action", fmt.Sprintf("%T", action)))
	switch a := action.(type) {
	case Finalize:
		if IsFallback(text) {
			r.c.metrics.RecordParseFallback()
			r.c.logger.Warnw("final answer taken from fallback", "run_id", r.id, "step", r.step+1)
		}
		r.finalize(a.Answer)
		return true
	case Search:
		r.c.logger.Infow("search", "run_id", r.id, "step", r.step+1, "query", a.Query)
		r.observation = Observation{Text: r.retrieve(ctx, a.Query), Present: true}
	case Unparseable:
		if r.retriesLeft == 0 {
			r.stop(StopParseFailure, a.Reason)
			return true
		}
		r.retriesLeft--
		r.c.metrics.RecordParseRetry()
		r.c.logger.Warnw("re-prompting after unparseable response", "run_id", r.id, "step", r.step+1, "retries_left", r.retriesLeft, "response", utils.Truncate(text, 200))
		r.observation = Observation{Text: fmt.Sprintf(correctionNotice, a.Reason), Present: true}
	default:
		r.stop(StopParseFailure, fmt.Sprintf("unsupported action %T at step %d", action, r.step+1))
		return true
	}

	r.step++
	if r.step >= r.maxSteps {
		r.stopMaxSteps()
		return true
	}
	return false
}

func (r *Run) complete(ctx context.Context, prompt string) (string, error) {
	if r.c.completionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.c.completionTimeout)
		defer cancel()
	}
	ctx, span := r.c.tracer.Start(ctx, "llm.complete")
	defer span.End()

	start := time.Now()
	text, err := r.c.completer.Complete(ctx, prompt)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errBlankCompletion
	}
	r.c.metrics.RecordCompletion(time.Since(start), err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.c.logger.Errorw("completion failed", "run_id", r.id, "step", r.step+1, "error", err)
		return "", err
	}
	return text, nil
}

// retrieve returns "" for any failure; the prompt renders that as
// "No results found." and the run continues.
func (r *Run) retrieve(ctx context.Context, query string) string {
	if r.c.retrievalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.c.retrievalTimeout)
		defer cancel()
	}
	ctx, span := r.c.tracer.Start(ctx, "search.retrieve", trace.WithAttributes(attribute.String("query", query)))
	defer span.End()

	start := time.Now()
	text, err := r.c.retriever.Retrieve(ctx, query)
	if err != nil {
		span.RecordError(err)
		r.c.logger.Warnw("retrieval failed, continuing without results", "run_id", r.id, "step", r.step+1, "error", err)
		text = ""
	}
	degraded := strings.TrimSpace(text) == ""
	r.c.metrics.RecordRetrieval(time.Since(start), degraded)
	if degraded {
		return ""
	}
	return text
}

func (r *Run) finalize(answer string) {
	r.outcome = &Outcome{
		RunID:      r.id,
		Kind:       OutcomeFinalized,
		Answer:     answer,
		Transcript: r.transcript,
		Steps:      len(r.transcript),
	}
	r.c.logger.Infow("run finalized", "run_id", r.id, "steps", len(r.transcript))
	r.c.metrics.RecordRun(OutcomeFinalized.String(), len(r.transcript))
}

func (r *Run) stop(reason StopReason, diagnostic string) {
	r.outcome = &Outcome{
		RunID:      r.id,
		Kind:       OutcomeStopped,
		Reason:     reason,
		Diagnostic: diagnostic,
		Transcript: r.transcript,
		Steps:      len(r.transcript),
	}
	r.c.logger.Warnw("run stopped", "run_id", r.id, "reason", string(reason), "steps", len(r.transcript))
	r.c.metrics.RecordRun(string(reason), len(r.transcript))
}

func (r *Run) stopMaxSteps() {
	var b strings.Builder
	fmt.Fprintf(&b, "Reached maximum steps (%d) without a final answer.\nTranscript:\n", r.maxSteps)
	for i, entry := range r.transcript {
		fmt.Fprintf(&b, "Step %d: %s\n", i+1, strings.TrimSpace(entry))
	}
	r.stop(StopMaxSteps, b.String())
}
