package preprocessor

import (
	"context"
	"errors"
)

// ErrCompilerUnavailable is returned when no C-to-assembly compiler is
// configured. Callers treat a failed compile as an empty source channel
// for that entry, never as a fatal error.
var ErrCompilerUnavailable = errors.New("c compiler unavailable")

// Compiler optionally translates C source to assembly text for deeper
// comparison. Invoked before tokenization for C submissions when enabled.
type Compiler interface {
	Compile(ctx context.Context, cSource string) (string, error)
}

// UnavailableCompiler is the shipped implementation: compilation is
// disabled and every call reports unavailability.
type UnavailableCompiler struct{}

func (UnavailableCompiler) Compile(ctx context.Context, cSource string) (string, error) {
	return "", ErrCompilerUnavailable
}
