package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
)

const maxStackDepth = 10

// Error carries a code, a caller-facing message and optional context.
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Err     error
	Stack   string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code.Message()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, msg string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: msg,
		Err:     cause,
		Stack:   getStack(3),
	}
}

// New creates an error with the default message of code.
func New(code ErrorCode) *Error {
	return newError(code, code.Message(), nil)
}

// Newf creates an error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return newError(code, fmt.Sprintf(format, args...), nil)
}

// Wrap attaches code to err. Details of a wrapped *Error are carried over;
// the original is left untouched.
func Wrap(err error, code ErrorCode) *Error {
	if err == nil {
		return nil
	}
	out := newError(code, err.Error(), err)
	var inner *Error
	if stderrors.As(err, &inner) {
		out.Stack = inner.Stack
		for k, v := range inner.Details {
			out.WithDetail(k, v)
		}
	}
	return out
}

// Wrapf attaches code and a formatted message to err.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return newError(code, fmt.Sprintf(format, args...), err)
}

// WithMessage replaces the message.
func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
}

// WithDetail adds a key-value detail.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// GetCode extracts the code of err. Foreign errors map to InternalServerError.
func GetCode(err error) ErrorCode {
	if err == nil {
		return Success
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return InternalServerError
}

// GetError returns the outermost *Error in err's chain, wrapping foreign errors.
func GetError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return Wrap(err, InternalServerError)
}

// Is reports whether the outermost *Error in err's chain has code.
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	var e *Error
	return stderrors.As(err, &e) && e.Code == code
}

// Retryable reports whether another attempt may succeed: remote execution
// failures and any server side status.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	code := GetCode(err)
	return code.Retryable() || code.HTTPStatus() >= 500
}

func getStack(skip int) string {
	var pcs [maxStackDepth]uintptr
	n := runtime.Callers(skip+1, pcs[:])
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs[:n])
	var b strings.Builder
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") {
			fmt.Fprintf(&b, "\n\t%s:%d %s", frame.File, frame.Line, frame.Function)
		}
		if !more {
			break
		}
	}
	return b.String()
}

// ValidationError reports an invalid request field.
func ValidationError(field, reason string) *Error {
	return New(ValidationFailed).
		WithDetail("field", field).
		WithDetail("reason", reason)
}

// ConfigError reports an invalid judge configuration field.
func ConfigError(field, reason string) *Error {
	return Newf(InvalidConfig, "invalid config %s: %s", field, reason).
		WithDetail("field", field).
		WithDetail("reason", reason)
}
