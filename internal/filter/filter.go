// Package filter implements a small boolean filter-expression grammar over
// DICOM tags that the orchestrator validates before handing it to the
// external pipeline daemon. A hand-written recursive-descent parser backs
// it; a general grammar library would be overkill for an eleven-method
// boolean expression language.
package filter

import (
	"fmt"
	"strings"

	"github.com/ppiankov/icore/internal/dicomtag"
)

// Method is one of the comparison methods in the grammar.
type Method string

const (
	MethodEquals                 Method = "equals"
	MethodEqualsIgnoreCase       Method = "equalsIgnoreCase"
	MethodMatches                Method = "matches"
	MethodContains               Method = "contains"
	MethodContainsIgnoreCase     Method = "containsIgnoreCase"
	MethodStartsWith             Method = "startsWith"
	MethodStartsWithIgnoreCase   Method = "startsWithIgnoreCase"
	MethodEndsWith               Method = "endsWith"
	MethodEndsWithIgnoreCase     Method = "endsWithIgnoreCase"
	MethodIsLessThan             Method = "isLessThan"
	MethodIsGreaterThan          Method = "isGreaterThan"
)

var methodNames = map[string]Method{
	"equals": MethodEquals, "equalsIgnoreCase": MethodEqualsIgnoreCase,
	"matches": MethodMatches, "contains": MethodContains,
	"containsIgnoreCase": MethodContainsIgnoreCase, "startsWith": MethodStartsWith,
	"startsWithIgnoreCase": MethodStartsWithIgnoreCase, "endsWith": MethodEndsWith,
	"endsWithIgnoreCase": MethodEndsWithIgnoreCase, "isLessThan": MethodIsLessThan,
	"isGreaterThan": MethodIsGreaterThan,
}

// Expr is the parsed AST of a filter expression.
type Expr interface {
	// Eval evaluates the expression against a tag-value lookup function.
	Eval(get func(item string) (string, bool)) bool
	String() string
}

// Or is a logical OR ("+") of two or more terms.
type Or struct{ Terms []Expr }

// And is a logical AND ("*") of two or more terms.
type And struct{ Terms []Expr }

// Not negates a term ("!").
type Not struct{ Term Expr }

// True / False are the literal constants "true."/"false.".
type True struct{}
type False struct{}

// Comparison is `item.method("value")`.
type Comparison struct {
	Item   string // keyword, or "[gggg,eeee]" literal form preserved verbatim
	Method Method
	Value  string
}

func (o *Or) Eval(get func(string) (string, bool)) bool {
	for _, t := range o.Terms {
		if t.Eval(get) {
			return true
		}
	}
	return false
}

func (a *And) Eval(get func(string) (string, bool)) bool {
	for _, t := range a.Terms {
		if !t.Eval(get) {
			return false
		}
	}
	return true
}

func (n *Not) Eval(get func(string) (string, bool)) bool { return !n.Term.Eval(get) }
func (True) Eval(func(string) (string, bool)) bool        { return true }
func (False) Eval(func(string) (string, bool)) bool       { return false }

func (c *Comparison) Eval(get func(string) (string, bool)) bool {
	actual, ok := get(c.Item)
	if !ok {
		return false
	}
	return evalMethod(c.Method, actual, c.Value)
}

// evalMethod applies a single comparison method.
//
// isLessThan/isGreaterThan are applied lexicographically (Go's native
// string ordering), never numeric or date-aware parsing: every operand is
// a quoted string, and the only place this package's comparisons are
// constructed over dates (the MRN+date row filter in internal/queryplan)
// always compares zero-padded fixed-width YYYYMMDD strings, for which
// lexicographic order and chronological order coincide.
func evalMethod(m Method, actual, value string) bool {
	switch m {
	case MethodEquals:
		return actual == value
	case MethodEqualsIgnoreCase:
		return strings.EqualFold(actual, value)
	case MethodMatches:
		return actual == value // exact grammar semantics; regex matching is out of scope for this tag language
	case MethodContains:
		return strings.Contains(actual, value)
	case MethodContainsIgnoreCase:
		return strings.Contains(strings.ToLower(actual), strings.ToLower(value))
	case MethodStartsWith:
		return strings.HasPrefix(actual, value)
	case MethodStartsWithIgnoreCase:
		return strings.HasPrefix(strings.ToLower(actual), strings.ToLower(value))
	case MethodEndsWith:
		return strings.HasSuffix(actual, value)
	case MethodEndsWithIgnoreCase:
		return strings.HasSuffix(strings.ToLower(actual), strings.ToLower(value))
	case MethodIsLessThan:
		return actual < value
	case MethodIsGreaterThan:
		return actual > value
	default:
		return false
	}
}

func (o *Or) String() string  { return "(" + join(o.Terms, " + ") + ")" }
func (a *And) String() string { return "(" + join(a.Terms, " * ") + ")" }
func (n *Not) String() string { return "!" + n.Term.String() }
func (True) String() string   { return "true." }
func (False) String() string  { return "false." }
func (c *Comparison) String() string {
	return fmt.Sprintf("%s.%s(%q)", c.Item, c.Method, c.Value)
}

// join renders terms in order, separated by sep. Or/And sub-terms carry
// their own parens from their String() methods; a bare term (comparison,
// literal, or negation) is never wrapped, so a single And/Or of simple
// terms produces one outer paren group rather than one per term.
func join(terms []Expr, sep string) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = t.String()
	}
	return strings.Join(parts, sep)
}

// ParseError reports a filter expression that does not conform to the
// grammar.
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("filter parse error at position %d: %s", e.Pos, e.Msg)
}

// Parse parses a filter expression string into an Expr. Every filter shipped
// to the external pipeline daemon must pass through Parse first; a ParseError
// means the orchestrator must reject the job before spawning the daemon.
func Parse(src string) (Expr, error) {
	p := &parser{lexer: newLexer(src)}
	p.advance()
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, &ParseError{Pos: p.tok.pos, Msg: fmt.Sprintf("unexpected trailing input %q", p.tok.text)}
	}
	return expr, nil
}

// ValidateTagKeyword checks that a bare-identifier item in a parsed filter
// names a recognized DICOM keyword. The tag-literal form "[gggg,eeee]" is
// always accepted without lookup.
func ValidateTagKeyword(item string) error {
	if strings.HasPrefix(item, "[") {
		return nil
	}
	if _, ok := dicomtag.Lookup(item); !ok {
		return fmt.Errorf("unrecognized DICOM keyword %q", item)
	}
	return nil
}
