package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"synapse.app/ingest/internal/model"
)

// Client hands one event to the ingestion boundary and reports whether it
// was accepted. A nil error is the acknowledgement.
type Client interface {
	Deliver(ctx context.Context, event *model.Event) error
}

// ErrDelivery matches every DeliveryError via errors.Is.
var ErrDelivery = errors.New("delivery failed")

// DeliveryError covers transport failures and non-success responses.
// StatusCode is zero when no response was received.
type DeliveryError struct {
	EventID    string
	StatusCode int
	Message    string
	Attempts   int
	Retryable  bool
	Err        error
}

func (e *DeliveryError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("deliver event %s: status %d: %s", e.EventID, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("deliver event %s: status %d", e.EventID, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("deliver event %s: %v", e.EventID, e.Err)
	default:
		return fmt.Sprintf("deliver event %s: %s", e.EventID, e.Message)
	}
}

func (e *DeliveryError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrDelivery, e.Err}
	}
	return []error{ErrDelivery}
}

// RetryPolicy bounds the attempts made inside a single Deliver call.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialBackoff: 500 * time.Millisecond, MaxBackoff: 5 * time.Second}
}

// Backoff returns the wait before retry number attempt (1-based), doubling
// from InitialBackoff and capped at MaxBackoff.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 || p.InitialBackoff <= 0 {
		return 0
	}
	d := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
