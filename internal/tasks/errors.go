package tasks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies failures the way they are presented to the user.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindTransport
	KindServer
	KindTimeout
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransport:
		return "transport"
	case KindServer:
		return "server"
	case KindTimeout:
		return "timeout"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is returned by every network-facing call in this package.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrCancelled) match any cancellation.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.StatusCode == 0 && t.Message == "" && t.Err == nil
}

var (
	ErrCancelled = &Error{Kind: KindCancelled}
	ErrTimeout   = &Error{Kind: KindTimeout}
)

func validationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of err, or 0 when err is not a classified error.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return 0
}

// IsCancelled reports whether err stems from a user or caller cancellation.
func IsCancelled(err error) bool { return KindOf(err) == KindCancelled }

// IsTransient reports whether a poll that failed with err should be retried
// after backing off.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *Error
	if errors.As(err, &te) {
		switch te.Kind {
		case KindTransport, KindTimeout:
			return true
		case KindServer:
			return te.StatusCode >= 500 || te.StatusCode == http.StatusTooManyRequests ||
				te.StatusCode == http.StatusRequestTimeout
		default:
			return false
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "eof")
}

// IsFatal reports whether err must end the operation without retrying.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var te *Error
	if errors.As(err, &te) {
		switch te.Kind {
		case KindValidation:
			return true
		case KindServer:
			return !IsTransient(err)
		}
	}
	return false
}
