package core

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	actionPattern  *regexp.Regexp
	aliasLabel     *regexp.Regexp
	canonicalTools map[string]string
)

func init() {
	canonicalTools = make(map[string]string)
	var names, finalAliases []string
	for _, t := range tools {
		for _, n := range append([]string{t.Name}, t.Aliases...) {
			canonicalTools[strings.ToLower(n)] = t.Name
			names = append(names, regexp.QuoteMeta(n))
		}
		if t.Name == ToolFinalAnswer {
			for _, a := range t.Aliases {
				finalAliases = append(finalAliases, regexp.QuoteMeta(a))
			}
		}
	}
	// longest first so a shorter name never shadows a longer one sharing its prefix
	sort.SliceStable(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	actionPattern = regexp.MustCompile(`(?is)Action:\s*(` + strings.Join(names, "|") + `)\[(.*?)\]`)
	// aliases are ordinary words, so they only count as a label ("Finalize: x")
	if len(finalAliases) > 0 {
		aliasLabel = regexp.MustCompile(`(?i)\b(` + strings.Join(finalAliases, "|") + `)\s*:`)
	}
}

// Parser turns a raw model response into an Action. With Strict set the
// final-answer fallback is disabled and only the Action grammar is accepted.
type Parser struct {
	Strict bool
}

// ParseAction parses with the default (lenient) parser.
func ParseAction(raw string, step int) Action {
	return Parser{}.Parse(raw, step)
}

// Parse returns the first well-formed "Action: Tool[argument]" in raw. When
// there is none and the text still mentions the final-answer tool, the text
// after the last colon is taken as the answer. step is 0-based.
func (p Parser) Parse(raw string, step int) Action {
	if a, ok := matchAction(raw); ok {
		return a
	}
	if !p.Strict {
		if a, ok := fallbackFinalize(raw); ok {
			return a
		}
	}
	return Unparseable{Reason: fmt.Sprintf("could not parse action after step %d", step+1)}
}

func matchAction(raw string) (Action, bool) {
	m := actionPattern.FindStringSubmatch(raw)
	if m == nil {
		return nil, false
	}
	arg := strings.TrimSpace(m[2])
	switch canonicalTools[strings.ToLower(m[1])] {
	case ToolSearch:
		return Search{Query: arg}, true
	case ToolFinalAnswer:
		return Finalize{Answer: arg}, true
	}
	return nil, false
}

func mentionsFinalAnswer(raw string) bool {
	return strings.Contains(strings.ToLower(raw), strings.ToLower(ToolFinalAnswer)) ||
		(aliasLabel != nil && aliasLabel.MatchString(raw))
}

// fallbackFinalize is lossy: a colon inside the reasoning truncates the answer.
func fallbackFinalize(raw string) (Action, bool) {
	if !mentionsFinalAnswer(raw) {
		return nil, false
	}
	answer := raw
	if i := strings.LastIndex(raw, ":"); i >= 0 {
		answer = raw[i+1:]
	}
	return Finalize{Answer: strings.TrimSpace(answer)}, true
}

// IsFallback reports whether raw would only parse through the final-answer
// fallback.
func IsFallback(raw string) bool {
	_, ok := matchAction(raw)
	return !ok && mentionsFinalAnswer(raw)
}
