package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type scriptedCompleter struct {
	responses []string
	errs      []error
	prompts   []string
	onCall    func(call int)
}

func (s *scriptedCompleter) Complete(_ context.Context, prompt string) (string, error) {
	i := len(s.prompts)
	s.prompts = append(s.prompts, prompt)
	if s.onCall != nil {
		s.onCall(i)
	}
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if len(s.responses) == 0 {
		return "", nil
	}
	if i >= len(s.responses) {
		return s.responses[len(s.responses)-1], nil
	}
	return s.responses[i], nil
}

type retrieverFunc func(ctx context.Context, query string) (string, error)

func (f retrieverFunc) Retrieve(ctx context.Context, query string) (string, error) { return f(ctx, query) }

func staticRetriever(text string) retrieverFunc {
	return func(context.Context, string) (string, error) { return text, nil }
}

func newTestController(t *testing.T, c CompletionProvider, r RetrievalProvider, opts ...Option) *Controller {
	t.Helper()
	ctrl, err := NewController(c, r, opts...)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return ctrl
}

func TestSingleStepFinalize(t *testing.T) {
	comp := &scriptedCompleter{responses: []string{"Action: Finalize[Paris]"}}
	ctrl := newTestController(t, comp, staticRetriever("unused"), WithMaxSteps(1))

	out := ctrl.Answer(context.Background(), "What is the capital of France?")
	if !out.Finalized() || out.Answer != "Paris" {
		t.Fatalf("expected Finalized(Paris), got %+v", out)
	}
	if len(out.Transcript) != 1 || out.Steps != 1 {
		t.Fatalf("expected 1 transcript entry, got %d", len(out.Transcript))
	}
	if out.RunID == "" {
		t.Fatalf("expected run id")
	}
}

func TestSearchThenFinalize(t *testing.T) {
	comp := &scriptedCompleter{responses: []string{
		"Thought: I should look it up.\nAction: Search[capital of France]",
		"Action: Finalize[Paris]",
	}}
	var queries []string
	ret := retrieverFunc(func(_ context.Context, q string) (string, error) {
		queries = append(queries, q)
		return "Paris is the capital", nil
	})
	ctrl := newTestController(t, comp, ret, WithMaxSteps(2))

	out := ctrl.Answer(context.Background(), "What is the capital of France?")
	if !out.Finalized() || out.Answer != "Paris" {
		t.Fatalf("expected Finalized(Paris), got %+v", out)
	}
	if len(out.Transcript) != 2 {
		t.Fatalf("expected 2 transcript entries, got %d", len(out.Transcript))
	}
	if len(queries) != 1 || queries[0] != "capital of France" {
		t.Fatalf("unexpected retrieval queries %v", queries)
	}
	if !strings.Contains(comp.prompts[1], "Paris is the capital") {
		t.Fatalf("step-1 prompt missing observation:\n%s", comp.prompts[1])
	}
	if !strings.Contains(comp.prompts[1], "Step 1: Thought: I should look it up.") {
		t.Fatalf("step-1 prompt missing history")
	}
}

func TestEmptyCompletionStopsWithCommunicationFailure(t *testing.T) {
	for _, resp := range []string{"", "   \n"} {
		comp := &scriptedCompleter{responses: []string{resp}}
		ctrl := newTestController(t, comp, staticRetriever("x"))

		out := ctrl.Answer(context.Background(), "q")
		if out.Kind != OutcomeStopped || out.Reason != StopCommunicationFailure {
			t.Fatalf("expected communication failure, got %+v", out)
		}
		if len(out.Transcript) != 0 {
			t.Fatalf("expected empty transcript, got %v", out.Transcript)
		}
		if len(comp.prompts) != 1 {
			t.Fatalf("communication failure must not be retried")
		}
	}
}

func TestCompletionErrorStopsWithCommunicationFailure(t *testing.T) {
	comp := &scriptedCompleter{
		responses: []string{"Action: Search[a]", "unused"},
		errs:      []error{nil, errors.New("connection refused")},
	}
	ctrl := newTestController(t, comp, staticRetriever("x"), WithMaxSteps(4))

	out := ctrl.Answer(context.Background(), "q")
	if out.Reason != StopCommunicationFailure {
		t.Fatalf("expected communication failure, got %+v", out)
	}
	if len(out.Transcript) != 1 {
		t.Fatalf("expected only the first step in transcript, got %d", len(out.Transcript))
	}
	if !strings.Contains(out.Diagnostic, "connection refused") {
		t.Fatalf("expected provider error in diagnostic, got %q", out.Diagnostic)
	}
}

func TestMaxStepsReached(t *testing.T) {
	comp := &scriptedCompleter{responses: []string{
		"Thought: one\nAction: Search[a]",
		"Thought: two\nAction: Search[b]",
		"Thought: three\nAction: Search[c]",
	}}
	ctrl := newTestController(t, comp, staticRetriever("something"), WithMaxSteps(3))

	out := ctrl.Answer(context.Background(), "q")
	if out.Kind != OutcomeStopped || out.Reason != StopMaxSteps {
		t.Fatalf("expected max steps, got %+v", out)
	}
	if len(out.Transcript) != 3 {
		t.Fatalf("expected 3 transcript entries, got %d", len(out.Transcript))
	}
	for _, entry := range []string{"Step 1: Thought: one", "Step 2: Thought: two", "Step 3: Thought: three"} {
		if !strings.Contains(out.Diagnostic, entry) {
			t.Fatalf("diagnostic missing %q:\n%s", entry, out.Diagnostic)
		}
	}
}

func TestNeverExceedsMaxSteps(t *testing.T) {
	for _, max := range []int{1, 2, 5, 8} {
		comp := &scriptedCompleter{responses: []string{"Action: Search[again]"}}
		calls := 0
		ret := retrieverFunc(func(context.Context, string) (string, error) {
			calls++
			return "more", nil
		})
		ctrl := newTestController(t, comp, ret, WithMaxSteps(max))

		out := ctrl.Answer(context.Background(), "q")
		if len(comp.prompts) != max || calls != max {
			t.Fatalf("max=%d: expected %d iterations, got %d completions and %d retrievals", max, max, len(comp.prompts), calls)
		}
		if len(out.Transcript) != len(comp.prompts) || out.Steps != max {
			t.Fatalf("max=%d: transcript length %d does not match iterations", max, len(out.Transcript))
		}
	}
}

func TestFirstFinalizeEndsRun(t *testing.T) {
	comp := &scriptedCompleter{responses: []string{
		"Action: Final Answer[first]\nAction: Search[ignored]",
		"Action: Final Answer[second]",
	}}
	ctrl := newTestController(t, comp, staticRetriever("x"), WithMaxSteps(5))

	out := ctrl.Answer(context.Background(), "q")
	if out.Answer != "first" || len(comp.prompts) != 1 {
		t.Fatalf("expected run to end at first finalize, got %+v after %d calls", out, len(comp.prompts))
	}
}

func TestParseFailureStops(t *testing.T) {
	comp := &scriptedCompleter{responses: []string{"Action: Search[a]", "hmm, not sure"}}
	ctrl := newTestController(t, comp, staticRetriever("x"), WithMaxSteps(5))

	out := ctrl.Answer(context.Background(), "q")
	if out.Reason != StopParseFailure {
		t.Fatalf("expected parse failure, got %+v", out)
	}
	if !strings.Contains(out.Diagnostic, "step 2") {
		t.Fatalf("expected step number in diagnostic, got %q", out.Diagnostic)
	}
	if len(out.Transcript) != 2 {
		t.Fatalf("expected unparseable response in transcript, got %d entries", len(out.Transcript))
	}
}

func TestParseRetriesReprompt(t *testing.T) {
	comp := &scriptedCompleter{responses: []string{"rambling", "Action: Final Answer[42]"}}
	ctrl := newTestController(t, comp, staticRetriever("x"), WithMaxSteps(3), WithParseRetries(1))

	out := ctrl.Answer(context.Background(), "q")
	if !out.Finalized() || out.Answer != "42" {
		t.Fatalf("expected finalize after re-prompt, got %+v", out)
	}
	if out.Steps != 2 {
		t.Fatalf("re-prompt must consume a step, got %d", out.Steps)
	}
	if !strings.Contains(comp.prompts[1], "Use EXACTLY the format Action: ToolName[input]") {
		t.Fatalf("expected correction notice in second prompt")
	}
	if !strings.Contains(comp.prompts[1], "Current step: 2/3") {
		t.Fatalf("expected step counter to advance after re-prompt")
	}
}

func TestParseRetriesAreBounded(t *testing.T) {
	comp := &scriptedCompleter{responses: []string{"rambling"}}
	ctrl := newTestController(t, comp, staticRetriever("x"), WithMaxSteps(10), WithParseRetries(2))

	out := ctrl.Answer(context.Background(), "q")
	if out.Reason != StopParseFailure || len(comp.prompts) != 3 {
		t.Fatalf("expected parse failure after 2 retries, got %+v after %d calls", out, len(comp.prompts))
	}
}

func TestStrictParsingRejectsFallback(t *testing.T) {
	comp := &scriptedCompleter{responses: []string{"The final answer is: Paris"}}

	lenient := newTestController(t, comp, staticRetriever("x"))
	if out := lenient.Answer(context.Background(), "q"); out.Answer != "Paris" {
		t.Fatalf("expected fallback answer, got %+v", out)
	}

	comp.prompts = nil
	strict := newTestController(t, comp, staticRetriever("x"), WithStrictParsing(true))
	if out := strict.Answer(context.Background(), "q"); out.Reason != StopParseFailure {
		t.Fatalf("expected parse failure in strict mode, got %+v", out)
	}
}

func TestCompletionTimeout(t *testing.T) {
	blocking := completerFunc(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	ctrl := newTestController(t, blocking, staticRetriever("x"), WithCompletionTimeout(20*time.Millisecond))

	out := ctrl.Answer(context.Background(), "q")
	if out.Reason != StopCommunicationFailure {
		t.Fatalf("expected communication failure on timeout, got %+v", out)
	}
}

func TestRetrievalTimeoutAndErrorDegrade(t *testing.T) {
	cases := map[string]retrieverFunc{
		"timeout": func(ctx context.Context, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
		"error": func(context.Context, string) (string, error) {
			return "", errors.New("dns failure")
		},
		"empty": func(context.Context, string) (string, error) {
			return "", nil
		},
	}
	for name, ret := range cases {
		t.Run(name, func(t *testing.T) {
			comp := &scriptedCompleter{responses: []string{"Action: Search[x]", "Action: Final Answer[done]"}}
			ctrl := newTestController(t, comp, ret, WithRetrievalTimeout(20*time.Millisecond))

			out := ctrl.Answer(context.Background(), "q")
			if !out.Finalized() {
				t.Fatalf("expected run to continue after degraded retrieval, got %+v", out)
			}
			if !strings.Contains(comp.prompts[1], "No results found.") {
				t.Fatalf("expected no-results placeholder in second prompt")
			}
		})
	}
}

func TestCancelledBeforeStep(t *testing.T) {
	comp := &scriptedCompleter{responses: []string{"Action: Final Answer[x]"}}
	ctrl := newTestController(t, comp, staticRetriever("x"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := ctrl.Answer(ctx, "q")
	if out.Reason != StopCancelled || len(comp.prompts) != 0 {
		t.Fatalf("expected cancellation before any call, got %+v", out)
	}
}

func TestCancelledBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	comp := &scriptedCompleter{
		responses: []string{"Action: Search[a]", "Action: Final Answer[x]"},
		onCall: func(call int) {
			if call == 0 {
				cancel()
			}
		},
	}
	ctrl := newTestController(t, comp, staticRetriever("x"))

	run := ctrl.NewRun("q")
	if run.Step(ctx) {
		t.Fatalf("first step should complete despite mid-step cancellation")
	}
	if !run.Step(ctx) {
		t.Fatalf("second step should observe cancellation")
	}
	out, done := run.Outcome()
	if !done || out.Reason != StopCancelled || len(out.Transcript) != 1 {
		t.Fatalf("expected cancelled outcome with one entry, got %+v", out)
	}
}

func TestRunPauseResume(t *testing.T) {
	comp := &scriptedCompleter{responses: []string{"Action: Search[a]", "Action: Final Answer[b]"}}
	ctrl := newTestController(t, comp, staticRetriever("obs"), WithMaxSteps(3))
	run := ctrl.NewRun("q")

	if _, done := run.Outcome(); done {
		t.Fatalf("fresh run must not be terminal")
	}
	if run.Step(context.Background()) {
		t.Fatalf("expected run to continue after search")
	}
	paused := run.Prompt()
	if paused != run.Prompt() {
		t.Fatalf("prompt must be stable while paused")
	}
	if !run.Step(context.Background()) {
		t.Fatalf("expected run to finish")
	}
	if comp.prompts[1] != paused {
		t.Fatalf("resumed step sent a different prompt")
	}
	if !run.Step(context.Background()) || len(comp.prompts) != 2 {
		t.Fatalf("terminal run must not execute further steps")
	}
}

func TestRunsDoNotShareState(t *testing.T) {
	comp := &scriptedCompleter{responses: []string{"Action: Search[a]"}}
	ctrl := newTestController(t, comp, staticRetriever("obs"), WithMaxSteps(3))
	a, b := ctrl.NewRun("first"), ctrl.NewRun("second")

	a.Step(context.Background())
	if strings.Contains(b.Prompt(), "Step 1:") || !strings.Contains(b.Prompt(), "Question: second") {
		t.Fatalf("run b leaked state from run a")
	}
	if a.ID() == b.ID() {
		t.Fatalf("runs must have distinct ids")
	}
}

func TestRunMaxStepsOverride(t *testing.T) {
	comp := &scriptedCompleter{responses: []string{"Action: Search[a]"}}
	ctrl := newTestController(t, comp, staticRetriever("obs"), WithMaxSteps(5))

	out := ctrl.Answer(context.Background(), "q", RunMaxSteps(2))
	if out.Reason != StopMaxSteps || len(comp.prompts) != 2 {
		t.Fatalf("expected override of 2 steps, got %+v after %d calls", out, len(comp.prompts))
	}
}

func TestNewControllerValidation(t *testing.T) {
	comp := &scriptedCompleter{}
	ret := staticRetriever("")
	if _, err := NewController(nil, ret); err == nil {
		t.Fatalf("expected error for nil completer")
	}
	if _, err := NewController(comp, nil); err == nil {
		t.Fatalf("expected error for nil retriever")
	}
	if _, err := NewController(comp, ret, WithMaxSteps(0)); err == nil {
		t.Fatalf("expected error for zero max steps")
	}
	if _, err := NewController(comp, ret, WithParseRetries(-1)); err == nil {
		t.Fatalf("expected error for negative retries")
	}
	ctrl, err := NewController(comp, ret)
	if err != nil || ctrl.MaxSteps() != DefaultMaxSteps {
		t.Fatalf("expected default max steps, got %v %v", ctrl, err)
	}
}

type completerFunc func(ctx context.Context, prompt string) (string, error)

func (f completerFunc) Complete(ctx context.Context, prompt string) (string, error) { return f(ctx, prompt) }
