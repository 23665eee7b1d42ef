// Package diag holds source spans and the diagnostics produced by every
// compiler stage.
package diag

import (
	"fmt"
	"sort"
	"strings"
)

// Span locates a construct in the source. Lines and columns are 1-based,
// offsets are byte offsets into the source text.
type Span struct {
	Line   int
	Column int
	Offset int
	End    int
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d", s.Line, s.Column)
}

// IsZero reports whether the span was never set.
func (s Span) IsZero() bool {
	return s.Line == 0
}

// Kind classifies a diagnostic by the stage and rule that raised it.
type Kind int

const (
	SyntaxError Kind = iota
	ScopeError
	TypeError
	InheritanceError
	CodegenInternalError
	// ConfigError reports a target or manifest setting the compiler cannot use.
	ConfigError
)

func (k Kind) String() string {
	switch k {
	case SyntaxError:
		return "syntax error"
	case ScopeError:
		return "scope error"
	case TypeError:
		return "type error"
	case InheritanceError:
		return "inheritance error"
	case CodegenInternalError:
		return "internal error"
	case ConfigError:
		return "config error"
	default:
		return "error"
	}
}

// Severity of a diagnostic. Only errors block compilation.
type Severity int

const (
	Error Severity = iota
	Warning
)

func (s Severity) String() string {
	if s == Warning {
		return "warning"
	}
	return "error"
}

// Diagnostic is one entry of the sink consumed by the CLI and editor
// integrations.
type Diagnostic struct {
	Kind     Kind
	Severity Severity
	Message  string
	Span     Span
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s: %s", d.Span, d.Kind, d.Message)
}

// List is an ordered diagnostic sink.
type List struct {
	items []Diagnostic
}

// Add appends a diagnostic.
func (l *List) Add(d Diagnostic) {
	l.items = append(l.items, d)
}

// Errorf records an error of the given kind.
func (l *List) Errorf(kind Kind, span Span, format string, args ...any) {
	l.Add(Diagnostic{Kind: kind, Severity: Error, Message: fmt.Sprintf(format, args...), Span: span})
}

// Warnf records a warning of the given kind.
func (l *List) Warnf(kind Kind, span Span, format string, args ...any) {
	l.Add(Diagnostic{Kind: kind, Severity: Warning, Message: fmt.Sprintf(format, args...), Span: span})
}

// Append copies all diagnostics of other into l.
func (l *List) Append(other List) {
	l.items = append(l.items, other.items...)
}

// Len returns the number of diagnostics, warnings included.
func (l *List) Len() int {
	return len(l.items)
}

// Items returns the diagnostics in the order they were recorded.
func (l *List) Items() []Diagnostic {
	return l.items
}

// HasErrors reports whether any diagnostic has error severity.
func (l *List) HasErrors() bool {
	for _, d := range l.items {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

// Count returns the number of diagnostics of the given kind.
func (l *List) Count(kind Kind) int {
	n := 0
	for _, d := range l.items {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

// Sorted returns the diagnostics ordered by source position. Diagnostics at
// the same offset keep their recording order.
func (l *List) Sorted() []Diagnostic {
	out := make([]Diagnostic, len(l.items))
	copy(out, l.items)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Span.Offset < out[j].Span.Offset
	})
	return out
}

func (l *List) String() string {
	var sb strings.Builder
	for i, d := range l.Sorted() {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(d.String())
	}
	return sb.String()
}

// Err returns the list as an error, or nil when it holds no errors.
func (l *List) Err() error {
	if !l.HasErrors() {
		return nil
	}
	return &ListError{List: *l}
}

// ListError wraps a diagnostic list so pipelines can return it as an error.
type ListError struct {
	List List
}

func (e *ListError) Error() string {
	return e.List.String()
}

// InternalError reports an invariant violation: a typed AST reached code
// generation in a shape the analyzer should have rejected.
type InternalError struct {
	Message string
	Span    Span
}

func (e *InternalError) Error() string {
	if e.Span.IsZero() {
		return "internal error: " + e.Message
	}
	return fmt.Sprintf("%s: internal error: %s", e.Span, e.Message)
}

// Internalf builds an InternalError.
func Internalf(span Span, format string, args ...any) *InternalError {
	return &InternalError{Message: fmt.Sprintf(format, args...), Span: span}
}

// Diagnostic converts the error into a sink entry.
func (e *InternalError) Diagnostic() Diagnostic {
	return Diagnostic{Kind: CodegenInternalError, Severity: Error, Message: e.Message, Span: e.Span}
}
