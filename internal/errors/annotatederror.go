package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
)

// AnnotatedError includes more context than a plain error that is useful for troubleshooting.
type AnnotatedError struct {
	// msg is the error message.
	msg string
	// pc is the program counter for the location of the error provided by runtime.Callers.
	pc uintptr
	// attrs are slog attributes that are added to the log event to provide more context for the error.
	attrs []slog.Attr
	// wrapped is the underlying error if this error annotates another error.
	wrapped error
}

// New creates a new AnnotatedError with the given message and attributes.
func New(msg string, attrs ...slog.Attr) error {
	return &AnnotatedError{
		msg:     msg,
		pc:      callerPC(),
		attrs:   attrs,
		wrapped: nil,
	}
}

// NewSentinel creates a plain error without other context that can be used as sentinel error that can be detected
// with errors.Is.
func NewSentinel(msg string) error {
	return errors.New(msg) //nolint:err113 // this is the sentinel constructor.
}

// Wrap annotates err with a message and attributes. Returns nil if err is nil.
func Wrap(err error, msg string, attrs ...slog.Attr) error {
	if err == nil {
		return nil
	}
	return &AnnotatedError{
		msg:     msg,
		pc:      callerPC(),
		attrs:   attrs,
		wrapped: err,
	}
}

// callerPC returns the program counter of the caller of the exported constructor.
func callerPC() uintptr {
	var pcs [1]uintptr
	// Skip runtime.Callers, callerPC and the constructor.
	runtime.Callers(3, pcs[:]) //nolint:mnd // see above.
	return pcs[0]
}

// Error implements error interface.
func (err *AnnotatedError) Error() string {
	if err.wrapped == nil {
		return err.msg
	}
	return fmt.Sprintf("%s: %s", err.msg, err.wrapped.Error())
}

// Unwrap returns the annotated error.
func (err *AnnotatedError) Unwrap() error {
	return err.wrapped
}

// Source returns the file and line where the error was created or wrapped.
func (err *AnnotatedError) Source() string {
	frames := runtime.CallersFrames([]uintptr{err.pc})
	source, _ := frames.Next()
	return fmt.Sprintf("%s:%d", source.File, source.Line)
}

// LogValue formats the error for useful logging.
func (err *AnnotatedError) LogValue() slog.Value {
	// Retrieve the source location of the error so that developers can locate it faster.
	attrs := make([]slog.Attr, 0, len(err.attrs)+2) //nolint:mnd // msg and source.
	attrs = append(attrs, slog.String("msg", err.msg), slog.String("source", err.Source()))
	attrs = append(attrs, err.attrs...)
	return slog.GroupValue(attrs...)
}

// SlogError returns an attribute describing the whole error chain.
//
// Every AnnotatedError in the chain contributes its message, source and attributes so that the context added along
// the call stack is preserved in the log event.
func SlogError(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	var (
		attrs = []slog.Attr{slog.String("msg", err.Error())}
		trace []any
	)
	for current := err; current != nil; current = errors.Unwrap(current) {
		var annotated *AnnotatedError
		if ae, ok := current.(*AnnotatedError); ok { //nolint:errorlint // walking the chain manually.
			annotated = ae
		}
		if annotated == nil {
			continue
		}
		trace = append(trace, slog.Any(annotated.msg, annotated.LogValue()))
	}
	if len(trace) > 0 {
		attrs = append(attrs, slog.Group("trace", trace...))
	}
	return slog.Attr{Key: "error", Value: slog.GroupValue(attrs...)}
}

// As exposes stdlib errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is exposes stdlib errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Unwrap exposes stdlib errors.Unwrap.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// Join exposes stdlib errors.Join.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
