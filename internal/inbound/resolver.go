// Package inbound implements the Inbound Command Resolver of spec.md
// §9's re-architecture note: a separate grammar plus resolver for the
// free-text `YES <id>` / `NO <id>` control messages, kept out of the
// Matching Engine so the NLP collaborator upstream can be swapped
// without touching matching state.
package inbound

import (
	"regexp"
	"strings"
)

var commandRe = regexp.MustCompile(`(?i)^(YES|NO)\s+([0-9a-f]{8,})\b`)

// Command is the typed result of a successful parse (spec.md §6
// "Confirmation response payload (inbound)", free-text variant).
type Command struct {
	Accept        bool
	OrderIDPrefix string
}

// ParseError reports why a free-text reply did not match the grammar.
// It is a distinct type (not a plain string error) so callers can
// distinguish "not a command at all" from a state error further down
// the pipeline.
type ParseError struct {
	Text string
}

func (e *ParseError) Error() string {
	return "inbound text does not match the ^(YES|NO) <order-id-prefix> grammar: " + e.Text
}

// Resolver parses free text into a typed Command. It holds no state
// and never touches Matching Engine confirmations directly — the
// caller resolves OrderIDPrefix against pending confirmations.
type Resolver struct{}

func NewResolver() *Resolver { return &Resolver{} }

// Parse implements spec.md §6's inbound grammar
// `^(YES|NO)\s+([0-9a-f]{8,})\b`.
func (r *Resolver) Parse(text string) (Command, error) {
	m := commandRe.FindStringSubmatch(text)
	if m == nil {
		return Command{}, &ParseError{Text: text}
	}
	accept := strings.EqualFold(m[1], "YES")
	return Command{Accept: accept, OrderIDPrefix: m[2]}, nil
}
