// Package outcome carries the result of one step of a trading cycle:
// a value, a reason to skip the rest of the cycle, or a fatal error.
package outcome

import "fmt"

type Kind int

const (
	KindOk Kind = iota
	KindSkip
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindOk:
		return "ok"
	case KindSkip:
		return "skip"
	case KindFatal:
		return "fatal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is Ok(value), Skip(reason) or Fatal(err).
type Result[T any] struct {
	Kind   Kind
	Value  T
	Reason string
	Err    error
}

func Ok[T any](v T) Result[T] {
	return Result[T]{Kind: KindOk, Value: v}
}

func Skip[T any](format string, args ...any) Result[T] {
	return Result[T]{Kind: KindSkip, Reason: fmt.Sprintf(format, args...)}
}

func Fatal[T any](err error) Result[T] {
	return Result[T]{Kind: KindFatal, Err: err, Reason: err.Error()}
}

func (r Result[T]) IsOk() bool    { return r.Kind == KindOk }
func (r Result[T]) IsSkip() bool  { return r.Kind == KindSkip }
func (r Result[T]) IsFatal() bool { return r.Kind == KindFatal }

// Into converts a non-Ok result to another value type, keeping kind and reason.
func Into[U, T any](r Result[T]) Result[U] {
	return Result[U]{Kind: r.Kind, Reason: r.Reason, Err: r.Err}
}

func (r Result[T]) String() string {
	if r.Kind == KindOk {
		return "ok"
	}
	return r.Kind.String() + ": " + r.Reason
}
