// Package nlsql turns natural-language product filters into SQL that is
// safe to hand to the catalog executor. The model output is normalized
// into one of two shapes: a bare WHERE fragment against the products
// table, or a complete SELECT with fully qualified table references.
package nlsql

import (
	"errors"
	"fmt"
	"strings"
)

// Shape classifies generated SQL text.
type Shape int

const (
	// ShapeFragment is WHERE-condition text with no surrounding
	// SELECT, interpolated into a canned products query.
	ShapeFragment Shape = iota
	// ShapeFullSelect is a complete SELECT statement executed as-is
	// with a limit appended when missing.
	ShapeFullSelect
)

func (s Shape) String() string {
	switch s {
	case ShapeFullSelect:
		return "full_select"
	default:
		return "fragment"
	}
}

// GeneratedQuery is normalized model output ready for guarding.
type GeneratedQuery struct {
	Text  string
	Shape Shape
}

// Classify is purely syntactic: trimmed text starting with SELECT in
// any case is a full statement, everything else is a fragment.
func Classify(text string) Shape {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) >= len("SELECT") && strings.EqualFold(trimmed[:len("SELECT")], "SELECT") {
		return ShapeFullSelect
	}
	return ShapeFragment
}

// ErrEmptyGeneration means the model produced no usable SQL text after
// normalization. Permanent for the candidate; the caller regenerates.
var ErrEmptyGeneration = errors.New("model returned empty sql conditions")

// ModelInvocationError wraps a failed model call. Transient; the caller
// may retry with backoff.
type ModelInvocationError struct {
	Err error
}

func (e *ModelInvocationError) Error() string {
	return fmt.Sprintf("sql generation model call failed: %v", e.Err)
}

func (e *ModelInvocationError) Unwrap() error { return e.Err }

// DangerousKeywordError reports a denylisted statement keyword seen in
// freshly generated text. The guard repeats the scan before execution.
type DangerousKeywordError struct {
	Keyword string
}

func (e *DangerousKeywordError) Error() string {
	return fmt.Sprintf("dangerous sql keyword: %s", e.Keyword)
}
