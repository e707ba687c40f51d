// Package skerr provides errors that carry the call stack where they were
// created or first wrapped, plus optional layers of human readable context.
//
// Errors produced here implement Unwrap, so errors.Is and errors.As see the
// original error through any amount of skerr wrapping.
package skerr

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

const maxStackDepth = 8

// StackTrace is a single frame of a call stack.
type StackTrace struct {
	File string
	Line int
}

// String returns "file.go:123".
func (st StackTrace) String() string {
	return fmt.Sprintf("%s:%d", st.File, st.Line)
}

// ErrorWithContext wraps an error with a call stack and context strings.
type ErrorWithContext struct {
	// Wrapped is the original error. Never nil.
	Wrapped error
	// CallStack records where the error was created or first wrapped.
	CallStack []StackTrace
	// Context is appended to by Wrapf, innermost first.
	Context []string
}

// CallStack returns up to height frames, skipping the first startAt frames
// above the caller of CallStack.
func CallStack(height, startAt int) []StackTrace {
	stack := make([]StackTrace, 0, height)
	for i := 0; i < height; i++ {
		_, file, line, ok := runtime.Caller(startAt + i + 1)
		if !ok {
			break
		}
		stack = append(stack, StackTrace{
			File: filepath.Base(file),
			Line: line,
		})
	}
	return stack
}

// Error implements the error interface.
func (e *ErrorWithContext) Error() string {
	var b strings.Builder
	for i := len(e.Context) - 1; i >= 0; i-- {
		b.WriteString(e.Context[i])
		b.WriteString(": ")
	}
	b.WriteString(e.Wrapped.Error())
	if len(e.CallStack) > 0 {
		b.WriteString(". At")
		for _, st := range e.CallStack {
			b.WriteString(" ")
			b.WriteString(st.String())
		}
	}
	return b.String()
}

// Unwrap returns the original error.
func (e *ErrorWithContext) Unwrap() error {
	return e.Wrapped
}

// Wrap adds the caller's stack to err. An error that already went through
// skerr keeps its original stack. Returns nil if err is nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*ErrorWithContext); ok {
		return err
	}
	return &ErrorWithContext{
		Wrapped:   err,
		CallStack: CallStack(maxStackDepth, 1),
	}
}

// Wrapf is like Wrap but also prepends the formatted message as context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	if e, ok := err.(*ErrorWithContext); ok {
		ctx := make([]string, 0, len(e.Context)+1)
		ctx = append(ctx, e.Context...)
		return &ErrorWithContext{
			Wrapped:   e.Wrapped,
			CallStack: e.CallStack,
			Context:   append(ctx, msg),
		}
	}
	return &ErrorWithContext{
		Wrapped:   err,
		CallStack: CallStack(maxStackDepth, 1),
		Context:   []string{msg},
	}
}

// Fmt creates a new error with the caller's stack.
func Fmt(format string, args ...interface{}) error {
	return &ErrorWithContext{
		Wrapped:   fmt.Errorf(format, args...),
		CallStack: CallStack(maxStackDepth, 1),
	}
}
