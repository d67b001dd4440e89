package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Error is a classified provider failure. Retryable errors are transient
// (rate limits, 5xx, network); the retry layer consults IsRetryable.
type Error struct {
	Message    string
	Retryable  bool
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("llm: HTTP %d %s: %v", e.StatusCode, e.Message, e.Cause)
	}
	return fmt.Sprintf("llm: %s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the retry package's RetryableError interface.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// ClassifyError categorizes a provider error for retry decisions.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		retryable := apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
		return &Error{
			Message:    "provider error",
			Retryable:  retryable,
			StatusCode: apiErr.HTTPStatusCode,
			Cause:      err,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &Error{Message: "network error", Retryable: true, Cause: err}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "rate limit") || strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "timeout") || strings.Contains(msg, "connection") {
		return &Error{Message: "transient provider error", Retryable: true, Cause: err}
	}

	return &Error{Message: "provider error", Retryable: false, Cause: err}
}
