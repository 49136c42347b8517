// Package report collects errors and results across a batch run and renders
// the exit-quality summaries.
package report

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lucasnoah/autofix/internal/worktree"
)

// StructuredError is a normalized error with a machine code.
type StructuredError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	err     error
}

func (e *StructuredError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *StructuredError) Unwrap() error {
	return e.err
}

// AggregateError carries the count and messages of several errors raised
// together.
type AggregateError struct {
	Count  int
	Errors []*StructuredError
}

func (e *AggregateError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, se := range e.Errors {
		msgs[i] = se.Message
	}
	return fmt.Sprintf("%d errors occurred: %s", e.Count, strings.Join(msgs, "; "))
}

// Aggregator collects heterogeneous errors and warnings for one run.
// Not safe for concurrent use; the coordinator feeds it from one goroutine.
type Aggregator struct {
	errors   []*StructuredError
	warnings []string
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// AddError normalizes any error into a structured one and records it.
// Typed worktree errors keep their code; everything else gets UNKNOWN.
func (a *Aggregator) AddError(err error) {
	if err == nil {
		return
	}
	a.errors = append(a.errors, normalize(err))
}

// AddErrorf records a formatted error under a given code.
func (a *Aggregator) AddErrorf(code, format string, args ...interface{}) {
	a.errors = append(a.errors, &StructuredError{Code: code, Message: fmt.Sprintf(format, args...)})
}

// AddWarning records a non-fatal notice.
func (a *Aggregator) AddWarning(msg string) {
	a.warnings = append(a.warnings, msg)
}

func (a *Aggregator) HasErrors() bool   { return len(a.errors) > 0 }
func (a *Aggregator) HasWarnings() bool { return len(a.warnings) > 0 }

// Errors returns the recorded errors in order.
func (a *Aggregator) Errors() []*StructuredError {
	return a.errors
}

// Warnings returns the recorded warnings in order.
func (a *Aggregator) Warnings() []string {
	return a.warnings
}

// Summary renders "N error(s) occurred:" followed by one "  - [code] message"
// line per error. Empty string when there are none.
func (a *Aggregator) Summary() string {
	if len(a.errors) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d error(s) occurred:", len(a.errors))
	for _, e := range a.errors {
		fmt.Fprintf(&b, "\n  - [%s] %s", e.Code, e.Message)
	}
	return b.String()
}

// Err returns nil with no errors, the sole recorded error unchanged when
// there is exactly one, and an AggregateError otherwise. Single-error
// transparency is deliberate: callers can still unwrap the original.
func (a *Aggregator) Err() error {
	switch len(a.errors) {
	case 0:
		return nil
	case 1:
		return a.errors[0]
	default:
		return &AggregateError{Count: len(a.errors), Errors: a.errors}
	}
}

// normalize maps an arbitrary error to a StructuredError.
func normalize(err error) *StructuredError {
	var se *StructuredError
	if errors.As(err, &se) {
		return se
	}
	var we *worktree.Error
	if errors.As(err, &we) {
		return &StructuredError{Code: string(we.Code), Message: we.Message, err: err}
	}
	return &StructuredError{Code: "UNKNOWN", Message: err.Error(), err: err}
}
