// Package forgeerr defines the error taxonomy shared by every browserforge
// package.
//
// Errors fall into four kinds. Config errors are caused by user input and carry
// a suggestion; retrying them never helps. Retryable errors describe transient
// failures and carry a suggested retry budget, but nothing in browserforge
// retries automatically. Internal errors wrap an unexpected cause. Critical
// errors mean the process should stop.
package forgeerr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Kind classifies an error.
type Kind int

const (
	KindInternal Kind = iota
	KindConfig
	KindRetryable
	KindCritical
)

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindRetryable:
		return "retryable"
	case KindCritical:
		return "critical"
	default:
		return "internal"
	}
}

// Default codes for each kind plus the specific codes used across packages.
const (
	CodeConfig    = "BF_CONFIG_ERROR"
	CodeRetryable = "BF_RETRYABLE_ERROR"
	CodeInternal  = "BF_INTERNAL_ERROR"
	CodeCritical  = "BF_CRITICAL_ERROR"

	CodeNoUsableProxy      = "BF_NO_USABLE_PROXY"
	CodeInvalidProxy       = "BF_INVALID_PROXY"
	CodeProxyList          = "BF_PROXY_LIST"
	CodeDriverNotFound     = "BF_DRIVER_NOT_FOUND"
	CodeDriverDownload     = "BF_DRIVER_DOWNLOAD"
	CodeUnsupportedBrowser = "BF_UNSUPPORTED_BROWSER"
	CodeInvalidConfig      = "BF_INVALID_CONFIG"
	CodeConfigFile         = "BF_CONFIG_FILE"
	CodeSessionExists      = "BF_SESSION_EXISTS"
	CodeSessionLimit       = "BF_SESSION_LIMIT"
	CodeSessionNotFound    = "BF_SESSION_NOT_FOUND"
	CodeBrowserLaunch      = "BF_BROWSER_LAUNCH"
)

// Default retry hints for retryable errors.
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second
)

// Error is the structured error type returned by browserforge.
type Error struct {
	Kind       Kind
	Code       string
	Message    string
	Suggestion string
	Context    map[string]interface{}
	Cause      error

	// MaxRetries and RetryDelay are only meaningful for KindRetryable.
	MaxRetries int
	RetryDelay time.Duration

	Timestamp time.Time
}

func newError(kind Kind, code, message string, cause error) *Error {
	return &Error{
		Kind:      kind,
		Code:      code,
		Message:   message,
		Context:   make(map[string]interface{}),
		Cause:     cause,
		Timestamp: time.Now().UTC(),
	}
}

// Config returns a user error with an optional suggestion for fixing it.
func Config(message, suggestion string) *Error {
	e := newError(KindConfig, CodeConfig, message, nil)
	e.Suggestion = suggestion
	return e
}

// Configf is Config with a formatted message and no suggestion.
func Configf(format string, args ...interface{}) *Error {
	return Config(fmt.Sprintf(format, args...), "")
}

// Retryable returns a transient error with the default retry hints.
func Retryable(message string, cause error) *Error {
	e := newError(KindRetryable, CodeRetryable, message, cause)
	e.MaxRetries = DefaultMaxRetries
	e.RetryDelay = DefaultRetryDelay
	return e
}

// Internal wraps an unexpected failure.
func Internal(message string, cause error) *Error {
	return newError(KindInternal, CodeInternal, message, cause)
}

// Critical returns an error that should stop execution.
func Critical(message string, cause error) *Error {
	return newError(KindCritical, CodeCritical, message, cause)
}

// WithCode overrides the error code.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithSuggestion sets the suggestion shown to users.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// WithCause records the underlying error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// With adds a context entry and returns the error for chaining.
func (e *Error) With(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Error formats the error as "[CODE] message | Context: k=v | Cause: ...".
func (e *Error) Error() string {
	parts := []string{fmt.Sprintf("[%s] %s", e.Code, e.Message)}

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, "Context: "+strings.Join(pairs, ", "))
	}

	if e.Cause != nil {
		parts = append(parts, "Cause: "+e.Cause.Error())
	}

	return strings.Join(parts, " | ")
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the error is of KindRetryable.
func (e *Error) Retryable() bool {
	return e.Kind == KindRetryable
}

// Fields returns a flat representation suitable for structured logging.
func (e *Error) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		"message":    e.Message,
		"error_code": e.Code,
		"error_type": e.Kind.String(),
		"context":    e.Context,
		"timestamp":  e.Timestamp.Format(time.RFC3339),
	}
	if e.Suggestion != "" {
		fields["suggestion"] = e.Suggestion
	}
	if e.Cause != nil {
		fields["cause"] = e.Cause.Error()
	}
	if e.Kind == KindRetryable {
		fields["max_retries"] = e.MaxRetries
		fields["retry_delay"] = e.RetryDelay.String()
	}
	return fields
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// Is reports whether err's chain contains an *Error of the given kind.
func Is(err error, kind Kind) bool {
	fe, ok := As(err)
	return ok && fe.Kind == kind
}

// HasCode reports whether err's chain contains an *Error with the given code.
func HasCode(err error, code string) bool {
	fe, ok := As(err)
	return ok && fe.Code == code
}

// IsRetryable reports whether err is, or wraps, a retryable error.
func IsRetryable(err error) bool {
	return Is(err, KindRetryable)
}

// Suggestion returns the suggestion attached to err, if any.
func Suggestion(err error) string {
	if fe, ok := As(err); ok {
		return fe.Suggestion
	}
	return ""
}

// Wrap annotates err with message. Errors that already carry a kind keep it;
// anything else becomes an internal error.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return fmt.Errorf("%s: %w", message, err)
	}
	return Internal(message, err)
}

// Chain returns the message of every error in err's unwrap chain, outermost
// first.
func Chain(err error) []string {
	var msgs []string
	for err != nil {
		if fe, ok := err.(*Error); ok {
			msgs = append(msgs, fe.Message)
		} else {
			msgs = append(msgs, err.Error())
		}
		err = errors.Unwrap(err)
	}
	return msgs
}
