package llm

import (
	"context"
	"errors"
	"fmt"
	"net"

	genai "google.golang.org/genai"
)

// FaultKind classifies a failed exchange. The zero value means no fault.
type FaultKind string

const (
	FaultNone         FaultKind = ""
	FaultRateLimited  FaultKind = "rate_limited"
	FaultTimeout      FaultKind = "timeout"
	FaultConnection   FaultKind = "connection_error"
	FaultMalformed    FaultKind = "malformed_request"
	FaultEmptyContent FaultKind = "empty_content"
)

// Retryable reports whether the retry layer may attempt the call again.
// Malformed requests never heal on retry.
func (k FaultKind) Retryable() bool {
	switch k {
	case FaultRateLimited, FaultTimeout, FaultConnection, FaultEmptyContent:
		return true
	}
	return false
}

// ErrEmptyContent marks an otherwise-successful response with no usable text.
var ErrEmptyContent = errors.New("llm: empty content from model")

// FaultError tags an underlying client error with its transport class.
type FaultError struct {
	Kind FaultKind
	Err  error
}

func (e *FaultError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *FaultError) Unwrap() error { return e.Err }

func fault(kind FaultKind, err error) *FaultError {
	return &FaultError{Kind: kind, Err: err}
}

// Classify maps an arbitrary client error onto the fault taxonomy.
// Unknown errors default to the connection class, which is retryable.
func Classify(err error) FaultKind {
	if err == nil {
		return FaultNone
	}
	var fe *FaultError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429:
			return FaultRateLimited
		case apiErr.Code == 408 || apiErr.Code == 504:
			return FaultTimeout
		case apiErr.Code >= 400 && apiErr.Code < 500:
			// Bad payload, bad key, unknown model: retrying cannot help.
			return FaultMalformed
		default:
			return FaultConnection
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FaultTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return FaultTimeout
	}
	if errors.Is(err, ErrEmptyContent) {
		return FaultEmptyContent
	}
	return FaultConnection
}
