// Package queue is a durable topic queue on PostgreSQL with consumer groups,
// per-key ordering and at-least-once redelivery.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusDelivered  = "delivered"
	StatusDead       = "dead"
)

const maxBackoff = 5 * time.Minute

// ErrLeaseLost means the delivery was re-claimed after its lease expired, so
// the settling consumer no longer owns it.
var ErrLeaseLost = errors.New("delivery lease lost")

// ErrNoSubscribers means a message was published to a topic no consumer group
// is subscribed to. Nothing is stored.
var ErrNoSubscribers = errors.New("topic has no subscribers")

// Envelope is a message to publish. Messages sharing a Key are handed to each
// consumer group one at a time in publish order. A non-empty DedupKey makes
// republishing the same message on the same topic a no-op.
type Envelope struct {
	Topic    string
	Key      string
	DedupKey string
	Payload  []byte
}

// Delivery is one message as seen by one consumer group.
type Delivery struct {
	ID        uuid.UUID
	MessageID uuid.UUID
	Topic     string
	Key       string
	DedupKey  string
	Payload   []byte
	Attempt   int
	CreatedAt time.Time
}

// Handler processes a delivery. Returning nil acknowledges it, a Permanent
// error dead-letters it and any other error schedules a retry.
type Handler interface {
	Handle(ctx context.Context, d Delivery) error
}

type HandlerFunc func(ctx context.Context, d Delivery) error

func (f HandlerFunc) Handle(ctx context.Context, d Delivery) error {
	return f(ctx, d)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return "permanent: " + e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Backoff is the delay before the next attempt after attempts failures.
func Backoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts >= 9 {
		return maxBackoff
	}
	d := time.Duration(1<<attempts) * time.Second
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
