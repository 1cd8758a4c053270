package core

import (
	"fmt"
	"strings"
)

const (
	ToolSearch      = "Search"
	ToolFinalAnswer = "Final Answer"
)

const (
	placeholderNoHistory      = "No history yet."
	placeholderNoResultsYet   = "No results yet."
	placeholderNoResultsFound = "No results found."
)

// Tool is one entry of the instruction block. Aliases are accepted by the
// parser but never rendered.
type Tool struct {
	Name        string
	Syntax      string
	Description string
	Aliases     []string
}

// tools is rendered in this order on every call.
var tools = [...]Tool{
	{
		Name:        ToolSearch,
		Syntax:      "Search[query]",
		Description: "Use this to find information you don't have or need to verify. Formulate a specific search query.",
	},
	{
		Name:        ToolFinalAnswer,
		Syntax:      "Final Answer[answer]",
		Description: "Use this ONLY when you have enough information to provide a complete and accurate answer to the original question.",
		Aliases:     []string{"Finalize"},
	},
}

// Tools returns the fixed tool set in render order.
func Tools() []Tool {
	out := make([]Tool, len(tools))
	for i, t := range tools {
		t.Aliases = append([]string(nil), t.Aliases...)
		out[i] = t
	}
	return out
}

// PromptInput is everything the prompt depends on.
type PromptInput struct {
	Question    string
	Transcript  []string
	Step        int // 0-based
	MaxSteps    int
	Observation Observation
}

const promptHeader = `You are an AI assistant that answers questions by reasoning step-by-step and using tools when needed.

AVAILABLE TOOLS:
`

const promptProcess = `
PROCESS:
Follow this cycle strictly:
1. **Thought**: Analyze the question, your history and the latest observation. Decide whether to search for more information or give the final answer. Explain your reasoning briefly.
2. **Action**: State the action you will take. Use EXACTLY the format ` + "`Action: ToolName[input]`" + `. Choose only ONE action per step.
3. **Observation**: The system runs your action and shows its result in the next step.

EXAMPLE:
Question: What is the main programming language used for Android development?
Thought: I should search to confirm the current standard language for Android apps.
Action: Search[main programming language for Android development]
Observation: Kotlin is now the preferred language for Android development, although Java is also widely used.
Thought: The observation answers the question, including the role of Java.
Action: Final Answer[Kotlin is the preferred language for Android development. Java is also widely used, especially in older codebases.]
`

// BuildPrompt renders the full prompt for one step. It has no side effects and
// returns byte-identical output for identical input.
func BuildPrompt(in PromptInput) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	for i, t := range tools {
		fmt.Fprintf(&b, "%d. **%s**: %s\n", i+1, t.Syntax, t.Description)
	}
	b.WriteString(promptProcess)

	b.WriteString("\nHISTORY:\n")
	if len(in.Transcript) == 0 {
		b.WriteString(placeholderNoHistory)
		b.WriteString("\n")
	}
	for i, entry := range in.Transcript {
		fmt.Fprintf(&b, "Step %d: %s\n", i+1, strings.TrimSpace(entry))
	}

	b.WriteString("\nLATEST OBSERVATION:\n")
	b.WriteString(renderObservation(in.Observation))
	b.WriteString("\n")

	fmt.Fprintf(&b, "\nCurrent step: %d/%d\n", in.Step+1, in.MaxSteps)
	fmt.Fprintf(&b, "\nQuestion: %s\nThought:", in.Question)
	return b.String()
}

func renderObservation(o Observation) string {
	switch {
	case !o.Present:
		return placeholderNoResultsYet
	case strings.TrimSpace(o.Text) == "":
		return placeholderNoResultsFound
	default:
		return o.Text
	}
}
