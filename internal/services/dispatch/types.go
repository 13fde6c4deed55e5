package dispatchsvc

import (
	"context"
	"errors"

	"github.com/rzbill/dispatch/pkg/id"
)

var (
	ErrEmptyKey          = errors.New("dispatch: key is required")
	ErrQueueFull         = errors.New("dispatch: queue full")
	ErrRateLimited       = errors.New("dispatch: publish rate exceeded")
	ErrAlreadySubscribed = errors.New("dispatch: key already has a subscriber")
	ErrClosed            = errors.New("dispatch: service closed")
	ErrInvalidFilter     = errors.New("dispatch: invalid filter")
)

// Message is the value carried through the engine.
type Message struct {
	ID          id.ID
	Key         string
	Payload     []byte
	Headers     map[string]string
	PublishedMs int64
}

// SubscribeSink is implemented by transports to receive streamed messages.
type SubscribeSink interface {
	Send(Message) error
	// Flush is called whenever the subscriber's buffer runs empty.
	Flush() error
}

// SubscribeOptions controls a subscription.
type SubscribeOptions struct {
	// Filter is an optional CEL expression; empty delivers everything.
	Filter string
	// Limit stops the subscription after this many messages; 0 is unlimited.
	Limit int
	// Transport labels drop metrics and logs ("grpc", "http").
	Transport string
}

// SinkFunc adapts a function to SubscribeSink with a no-op Flush.
type SinkFunc func(Message) error

func (f SinkFunc) Send(m Message) error { return f(m) }
func (SinkFunc) Flush() error           { return nil }

type ctxKey struct{}

// WithRequestID tags ctx so service logs carry the caller's request id.
func WithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, ctxKey{}, rid)
}

func requestID(ctx context.Context) string {
	v, _ := ctx.Value(ctxKey{}).(string)
	return v
}
