package core

import (
	"context"
	"fmt"
)

// CompletionProvider turns a prompt into the model's full response text.
// An error means no usable text was produced.
type CompletionProvider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// RetrievalProvider looks up a free-text query and returns a human-readable
// summary of the results, or "" when nothing was found. Errors are reserved
// for transport failures.
type RetrievalProvider interface {
	Retrieve(ctx context.Context, query string) (string, error)
}

// Action is what the model asked for at the end of one step. The set is
// closed: Search, Finalize and Unparseable are the only implementations.
type Action interface {
	isAction()
}

// Search requests more information.
type Search struct {
	Query string
}

// Finalize ends the run with an answer.
type Finalize struct {
	Answer string
}

// Unparseable marks a response that matched neither the action grammar nor
// the final-answer fallback.
type Unparseable struct {
	Reason string
}

func (Search) isAction()      {}
func (Finalize) isAction()    {}
func (Unparseable) isAction() {}

func (a Search) String() string      { return fmt.Sprintf("%s[%s]", ToolSearch, a.Query) }
func (a Finalize) String() string    { return fmt.Sprintf("%s[%s]", ToolFinalAnswer, a.Answer) }
func (a Unparseable) String() string { return "unparseable: " + a.Reason }

// Observation is the result of the previous action as shown to the model.
// Present is false until the first action has run.
type Observation struct {
	Text    string
	Present bool
}

// OutcomeKind separates genuine answers from diagnostic stops.
type OutcomeKind int

const (
	OutcomeFinalized OutcomeKind = iota + 1
	OutcomeStopped
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeFinalized:
		return "finalized"
	case OutcomeStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StopReason says why a run ended without an answer.
type StopReason string

const (
	StopCommunicationFailure StopReason = "communication failure"
	StopParseFailure         StopReason = "parse failure"
	StopMaxSteps             StopReason = "max steps reached"
	StopCancelled            StopReason = "cancelled"
)

// Outcome is the final result of a run.
type Outcome struct {
	RunID      string
	Kind       OutcomeKind
	Answer     string     // set when Kind == OutcomeFinalized
	Reason     StopReason // set when Kind == OutcomeStopped
	Diagnostic string     // operator-facing explanation of a stop
	Transcript []string
	Steps      int
}

func (o Outcome) Finalized() bool { return o.Kind == OutcomeFinalized }
