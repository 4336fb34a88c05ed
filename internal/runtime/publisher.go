package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/wellgrid/healthbus/internal/runtime/errors"
	idspkg "github.com/wellgrid/healthbus/internal/runtime/ids"
	loggingpkg "github.com/wellgrid/healthbus/internal/runtime/logging"
)

// Metadata keys carried alongside the wire payload.
const (
	MetadataRoutingKey = "routing_key"
	MetadataRequestID  = "request_id"
	MetadataEventType  = "event_type"
)

// PublishOption customises a single publish call.
type PublishOption func(*publishOptions)

type publishOptions struct {
	requestID string
}

// WithRequestID sets the correlation token carried on the envelope. When not
// provided, a fresh ULID is generated.
func WithRequestID(id string) PublishOption {
	return func(o *publishOptions) {
		o.requestID = id
	}
}

// Producer emits events onto the bus. Domain services depend on this
// interface so they never touch topology or connection management.
type Producer interface {
	Publish(ctx context.Context, target string, payload any, opts ...PublishOption) error
}

// Publish wraps the payload into an Envelope, injecting the creation
// timestamp, the routing key, and a request ID, and emits it under the
// target topic with persistent delivery where the transport supports it.
//
// Publish order is preserved per connection. Delivery is at-least-once: a
// publish whose broker acknowledgment is lost during a reconnect may be
// retried by the caller and produce a duplicate, so consumers must tolerate
// duplicate delivery.
func (b *Bus) Publish(ctx context.Context, target string, payload any, opts ...PublishOption) error {
	if b == nil {
		return errspkg.ErrBusRequired
	}
	if target == "" {
		return errspkg.ErrTargetRequired
	}
	if b.State() != StateConnected {
		return errspkg.ErrNotConnected
	}

	options := publishOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.requestID == "" {
		options.requestID = idspkg.NewRequestID()
	}

	env, err := NewEnvelope(target, payload)
	if err != nil {
		return err
	}
	env.Timestamp = time.Now().UTC()
	env.RequestID = options.requestID

	data, err := env.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	msg := message.NewMessage(idspkg.NewRequestID(), data)
	msg.Metadata.Set(MetadataRoutingKey, target)
	msg.Metadata.Set(MetadataRequestID, env.RequestID)
	if env.Type != "" {
		msg.Metadata.Set(MetadataEventType, env.Type)
	}
	if ctx != nil {
		msg.SetContext(ctx)
	}

	b.connMu.Lock()
	publisher := b.publisher
	b.connMu.Unlock()
	if publisher == nil {
		return errspkg.ErrNotConnected
	}

	b.Logger.Debug("Publishing event", loggingpkg.LogFields{
		"target":     target,
		"event_type": env.Type,
		"request_id": env.RequestID,
	})
	return publisher.Publish(target, msg)
}
