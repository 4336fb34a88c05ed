// Package healthbus is the cross-service event-messaging core of the
// health-domain services. It is a small layer on top of Watermill that owns
// the broker connection, declares a durable topic exchange and the queue
// binding catalog, publishes JSON envelopes with injected timestamps and
// request IDs, and hosts one prefetch-bounded consumer loop per queue.
// Decoded events are dispatched to exactly one handler by the first segment
// of their routing key, validated against a closed set of event kinds at
// registration time.
//
// # Transports
//
// Healthbus supports 3 message transports out of the box:
//   - rabbitmq: AMQP topic exchange with durable queues and publisher reconnect
//   - nats: subject-based routing with patterns translated to NATS wildcards
//   - memory: in-process fallback broker for environments without a real broker
//
// The memory transport matches the broker semantics closely enough for
// development and tests, with one documented divergence: multiple consumers
// on the same queue each receive every message (fan-out) instead of
// competing for them.
//
// # Middleware
//
// The default middleware chain includes request ID injection, structured
// logging, OpenTelemetry tracing, Prometheus metrics, and panic recovery.
// Custom middleware can be added via BusDependencies.Middlewares.
//
// A minimal setup fills Config (or starts from events.DefaultBindings),
// creates a Bus, calls Connect, registers handlers and consumers, and calls
// Run. Domain services publish through the Producer interface and never
// touch topology or connection management.
package healthbus
