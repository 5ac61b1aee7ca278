package dispatch

import "context"

// EmailMessage is one rendered outbound email.
type EmailMessage struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers a single message and returns the provider's message id.
// Implementations make exactly one attempt; retry policy belongs to the
// processor.
type Sender interface {
	Send(ctx context.Context, msg EmailMessage) (providerID string, err error)
}

// DeliveryError wraps a send failure and classifies it as retryable
// (transient network or provider condition) or terminal (bad recipient,
// permanent rejection).
type DeliveryError struct {
	Err       error
	Retryable bool
}

func (e *DeliveryError) Error() string {
	return e.Err.Error()
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsRetryable returns whether the error is worth another attempt.
func (e *DeliveryError) IsRetryable() bool {
	return e.Retryable
}

// NewRetryableError marks err as transient.
func NewRetryableError(err error) *DeliveryError {
	return &DeliveryError{Err: err, Retryable: true}
}

// NewTerminalError marks err as permanent.
func NewTerminalError(err error) *DeliveryError {
	return &DeliveryError{Err: err, Retryable: false}
}

// isRetryable classifies an arbitrary error. Unknown errors default to
// retryable, matching the queue's uniform retry policy.
func isRetryable(err error) bool {
	type retryable interface {
		IsRetryable() bool
	}
	if r, ok := err.(retryable); ok {
		return r.IsRetryable()
	}
	return true
}
