// Package transport defines the core interfaces and types for healthbus
// transports. Each transport implementation (rabbitmq, memory, nats) lives in
// its own sub-package and registers itself with the transport registry.
package transport

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Transport combines a publisher and subscriber pair produced by a builder.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Builder is the function signature for creating a transport from config.
// Each transport package should provide a Builder function that can be
// registered.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// QueueBinding declares one queue and the topic pattern that routes events
// into it. Patterns are dot-delimited; `*` matches exactly one segment and
// `#` matches zero or more. Bindings are declared once per connection
// lifetime and re-declared idempotently on reconnect.
type QueueBinding struct {
	Queue   string
	Pattern string
	Durable bool
}

// Config provides the configuration values needed by transports. The
// interface allows transports to access only the settings they need without
// depending on the full config package.
type Config interface {
	// GetTransport returns the transport type name ("rabbitmq", "memory", "nats").
	GetTransport() string

	// GetBrokerURL returns the broker URL, credentials included.
	GetBrokerURL() string

	// GetExchange returns the name of the topic exchange all events flow through.
	GetExchange() string

	GetHeartbeat() time.Duration
	GetConnectTimeout() time.Duration

	// GetPrefetchCount returns the per-consumer cap on unacknowledged messages.
	GetPrefetchCount() int

	// GetPollInterval bounds how long a consumer loop waits for the next
	// message before re-checking its stop flag.
	GetPollInterval() time.Duration

	// GetBindings returns the queue/pattern catalog for the consuming service.
	GetBindings() []QueueBinding
}

// QueueIntrospector is implemented by transports that can report per-queue
// statistics for observability.
type QueueIntrospector interface {
	QueueDepth(queue string) (int64, error)
	QueueConsumers(queue string) (int, error)
}

// BindingFor returns the binding declared for the named queue.
func BindingFor(cfg Config, queue string) (QueueBinding, bool) {
	for _, b := range cfg.GetBindings() {
		if b.Queue == queue {
			return b, true
		}
	}
	return QueueBinding{}, false
}
