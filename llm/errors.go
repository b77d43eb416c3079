package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrorKind classifies transport failures
type ErrorKind string

const (
	ErrRateLimited     ErrorKind = "rate_limited"
	ErrAuth            ErrorKind = "auth"
	ErrServer          ErrorKind = "server"
	ErrTimeout         ErrorKind = "timeout"
	ErrBadRequest      ErrorKind = "bad_request"
	ErrContextOverflow ErrorKind = "context_overflow"
)

// Error is a classified provider failure
type Error struct {
	Kind       ErrorKind
	Status     int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may succeed
func (e *Error) Retryable() bool {
	return e.Kind == ErrRateLimited || e.Kind == ErrServer
}

// IsKind reports whether err is an *Error of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

var overflowMarkers = []string{
	"context length",
	"context_length",
	"context window",
	"maximum context",
	"prompt is too long",
	"too many tokens",
	"input is too long",
	"reduce the length of the messages",
}

// ClassifyResponse turns a non-2xx HTTP response into an *Error
func ClassifyResponse(status int, header http.Header, body []byte) *Error {
	msg := extractMessage(body)
	e := &Error{Status: status, Message: msg}

	switch {
	case status == http.StatusTooManyRequests:
		e.Kind = ErrRateLimited
		e.RetryAfter = parseRetryAfter(header)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = ErrAuth
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		e.Kind = ErrTimeout
	case status == http.StatusRequestEntityTooLarge:
		e.Kind = ErrContextOverflow
	case status >= 500:
		e.Kind = ErrServer
		e.RetryAfter = parseRetryAfter(header)
	default:
		e.Kind = ErrBadRequest
		lower := strings.ToLower(msg)
		for _, marker := range overflowMarkers {
			if strings.Contains(lower, marker) {
				e.Kind = ErrContextOverflow
				break
			}
		}
	}
	return e
}

// ClassifyTransport maps an error from the HTTP client. Cancellation of ctx
// is returned as ctx.Err() so callers can tell it apart from failures.
func ClassifyTransport(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Kind: ErrTimeout, Message: "request timed out", Err: err}
	}
	return &Error{Kind: ErrServer, Message: err.Error(), Err: err}
}

func extractMessage(body []byte) string {
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if len(envelope.Error) > 0 {
			var nested struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(envelope.Error, &nested) == nil && nested.Message != "" {
				return nested.Message
			}
			var plain string
			if json.Unmarshal(envelope.Error, &plain) == nil && plain != "" {
				return plain
			}
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 500 {
		text = text[:500] + "..."
	}
	if text == "" {
		return "empty response body"
	}
	return text
}

func parseRetryAfter(header http.Header) time.Duration {
	if header == nil {
		return 0
	}
	v := strings.TrimSpace(header.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
