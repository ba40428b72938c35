package errors

import (
	"fmt"
	"io"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// CompilerError is the interface implemented by all lowering errors.
type CompilerError interface {
	error // Embed the standard error interface
	Pos() Position
	Kind() string // "Unsupported" or "Internal"
	// Method names the method whose lowering failed.
	Method() string
	// Message returns the specific error message without position info.
	Message() string
	Unwrap() error // For error wrapping support (errors.Is/As)
}

// --- Concrete Error Types ---

// UnsupportedError reports an input shape the lowering rules do not handle.
// It points at a defect in the front-end that produced the tree.
type UnsupportedError struct {
	Position
	MethodName string
	Msg        string
	Cause      error // Underlying cause, if any
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("Unsupported construct in %s at %s: %s", e.MethodName, e.Position, e.Msg)
}
func (e *UnsupportedError) Pos() Position   { return e.Position }
func (e *UnsupportedError) Kind() string    { return "Unsupported" }
func (e *UnsupportedError) Method() string  { return e.MethodName }
func (e *UnsupportedError) Message() string { return e.Msg }
func (e *UnsupportedError) Unwrap() error   { return e.Cause }
func (e *UnsupportedError) CausedBy(cause error) *UnsupportedError {
	e.Cause = cause
	return e
}

// InternalError reports a broken compiler invariant: a re-resolved label, a
// frame/signature mismatch, a rethrow outside a catch and the like.
type InternalError struct {
	Position
	MethodName string
	Msg        string
	Cause      error // Carries the stack of the raising site
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("Internal compiler error in %s at %s: %s", e.MethodName, e.Position, e.Msg)
}
func (e *InternalError) Pos() Position   { return e.Position }
func (e *InternalError) Kind() string    { return "Internal" }
func (e *InternalError) Method() string  { return e.MethodName }
func (e *InternalError) Message() string { return e.Msg }
func (e *InternalError) Unwrap() error   { return e.Cause }

// Format prints the raising stack with %+v.
func (e *InternalError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') && e.Cause != nil {
			fmt.Fprintf(s, "%s\n%+v", e.Error(), e.Cause)
			return
		}
		fallthrough
	case 's':
		io.WriteString(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}

// --- Helpers for creating errors ---

// Unsupportedf builds an UnsupportedError.
func Unsupportedf(method string, pos Position, format string, args ...interface{}) *UnsupportedError {
	return &UnsupportedError{Position: pos, MethodName: method, Msg: fmt.Sprintf(format, args...)}
}

// Internalf builds an InternalError whose cause records the current stack.
func Internalf(method string, pos Position, format string, args ...interface{}) *InternalError {
	msg := fmt.Sprintf(format, args...)
	return &InternalError{Position: pos, MethodName: method, Msg: msg, Cause: pkgerrors.New(msg)}
}

// --- Error Reporting ---

// DisplayErrors prints a list of compiler errors in a user-friendly format,
// including the source line and position marker when the source text is known.
func DisplayErrors(w io.Writer, errs []CompilerError) {
	for _, err := range errs {
		pos := err.Pos()
		fmt.Fprintf(w, "%s error in %s at %s: %s\n", err.Kind(), err.Method(), pos, err.Message())

		sourceLine := pos.File.Line(pos.Line)
		if sourceLine == "" {
			continue
		}
		fmt.Fprintf(w, "  %s\n", sourceLine)
		col := pos.Column - 1
		if col < 0 {
			col = 0
		}
		fmt.Fprintf(w, "  %s^\n", strings.Repeat(" ", col))
		fmt.Fprintln(w)
	}
}

// As reports whether err is a CompilerError and returns it.
func As(err error) (CompilerError, bool) {
	var ce CompilerError
	if pkgerrors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
