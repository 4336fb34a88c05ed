package transport

// Capabilities describes the delivery guarantees of a transport backend. Use
// this to introspect what operations are available at runtime.
type Capabilities struct {
	// SupportsAck indicates the transport supports explicit acknowledgment.
	SupportsAck bool

	// SupportsNack indicates the transport supports negative acknowledgment
	// and redelivery.
	SupportsNack bool

	// SupportsOrdering indicates FIFO delivery within one queue for messages
	// arriving over a single connection.
	SupportsOrdering bool

	// SupportsPrefetch indicates the transport enforces the prefetch bound.
	// When false the backpressure cap is not applied by the broker.
	SupportsPrefetch bool

	// Durable indicates queues and messages survive a broker restart when
	// declared durable.
	Durable bool

	// FanOut indicates every consumer attached to a queue receives every
	// message, instead of competing for them. The in-memory fallback diverges
	// from the real broker this way.
	FanOut bool

	// Name is the human-readable name of the transport.
	Name string
}

// Predefined capability sets for the built-in transports.
var (
	// RabbitMQCapabilities for the AMQP transport.
	RabbitMQCapabilities = Capabilities{
		Name:             "rabbitmq",
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsOrdering: true,
		SupportsPrefetch: true,
		Durable:          true,
	}

	// MemoryCapabilities for the in-process fallback broker.
	MemoryCapabilities = Capabilities{
		Name:             "memory",
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsOrdering: true,
		FanOut:           true,
	}

	// NATSCapabilities for the NATS Core transport.
	NATSCapabilities = Capabilities{
		Name:             "nats",
		SupportsOrdering: true,
	}
)

// GetCapabilities returns the capabilities for a transport by name, using the
// default registry. Returns a zero Capabilities struct for unknown names.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
