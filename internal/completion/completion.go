// Package completion proxies chat messages to an OpenAI-compatible
// chat-completions endpoint and classifies its failures so the HTTP layer
// can map them to stable status codes.
package completion

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies an upstream failure.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindInvalidRequest
	KindAuth
	KindRateLimited
	KindUpstream
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid_request"
	case KindAuth:
		return "auth"
	case KindRateLimited:
		return "rate_limited"
	case KindUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// Error carries the upstream failure class alongside the original cause.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("completion: %s (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("completion: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// KindOf extracts the error kind; anything that is not a *Error is unknown.
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// Client produces one reply for one user message.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userMessage string) (string, error)
}
