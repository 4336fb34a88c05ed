// Package rabbitmq provides the RabbitMQ/AMQP transport for healthbus.
//
// One connection is opened per process and shared by the publisher and all
// queue subscribers. The initial connect failing is fatal and propagates to
// the caller; once established, the connection reconnects automatically on
// transient network loss and the exchange/queue/binding topology is
// re-declared idempotently.
package rabbitmq

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	amqp091 "github.com/rabbitmq/amqp091-go"

	"github.com/wellgrid/healthbus/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "rabbitmq"

// ConnectionFactory allows overriding the connection creation for testing.
var ConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
	return amqp.NewConnection(cfg, logger)
}

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Publisher, error) {
	return amqp.NewPublisherWithConnection(cfg, logger, conn)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Subscriber, error) {
	return amqp.NewSubscriberWithConnection(cfg, logger, conn)
}

// InspectQueue asks the broker for a queue's message and consumer counts over
// a short-lived channel on the shared connection. Overridable for testing.
var InspectQueue = func(conn *amqp.ConnectionWrapper, queue string) (amqp091.Queue, error) {
	ch, err := conn.Connection().Channel()
	if err != nil {
		return amqp091.Queue{}, err
	}
	defer ch.Close()
	return ch.QueueInspect(queue)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.RabbitMQCapabilities)
}

// Build creates a new RabbitMQ transport. The connection is established here;
// an unreachable broker surfaces as an error so service startup can abort.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	conn, err := ConnectionFactory(ConnectionConfig(cfg), logger)
	if err != nil {
		return transport.Transport{}, fmt.Errorf("amqp connect: %w", err)
	}

	publisher, err := PublisherFactory(PublisherConfig(cfg), logger, conn)
	if err != nil {
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher: publisher,
		Subscriber: &subscriberMux{
			conn:   conn,
			cfg:    cfg,
			logger: logger,
			subs:   make(map[string]message.Subscriber),
		},
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.RabbitMQCapabilities
}

// ConnectionConfig maps the bus configuration onto the AMQP connection:
// heartbeat interval, dial timeout, and automatic reconnection with backoff.
func ConnectionConfig(cfg transport.Config) amqp.ConnectionConfig {
	return amqp.ConnectionConfig{
		AmqpURI:   cfg.GetBrokerURL(),
		Reconnect: amqp.DefaultReconnectConfig(),
		AmqpConfig: &amqp091.Config{
			Heartbeat: cfg.GetHeartbeat(),
			Dial:      amqp091.DefaultDial(cfg.GetConnectTimeout()),
		},
	}
}

// PublisherConfig declares the single durable topic exchange and publishes
// with the topic passed to Publish as the routing key. The default marshaler
// uses persistent delivery mode, so messages survive a broker restart when
// the broker itself persists them.
func PublisherConfig(cfg transport.Config) amqp.Config {
	exchange := cfg.GetExchange()
	return amqp.Config{
		Connection: amqp.ConnectionConfig{AmqpURI: cfg.GetBrokerURL()},
		Marshaler:  amqp.DefaultMarshaler{},
		Exchange: amqp.ExchangeConfig{
			GenerateName: func(string) string { return exchange },
			Type:         "topic",
			Durable:      true,
		},
		Queue: amqp.QueueConfig{
			GenerateName: func(topic string) string { return topic },
		},
		Publish: amqp.PublishConfig{
			GenerateRoutingKey: func(topic string) string { return topic },
		},
		TopologyBuilder: &amqp.DefaultTopologyBuilder{},
	}
}

// SubscriberConfig declares one queue and its pattern binding on the shared
// exchange. Declaration and binding are idempotent, so reconnect logic can
// re-run the topology pass without error or duplication. Qos prefetch is the
// backpressure bound: at most PrefetchCount unacknowledged messages may be
// outstanding on the consumer channel.
func SubscriberConfig(cfg transport.Config, binding transport.QueueBinding) amqp.Config {
	exchange := cfg.GetExchange()
	return amqp.Config{
		Connection: amqp.ConnectionConfig{AmqpURI: cfg.GetBrokerURL()},
		Marshaler:  amqp.DefaultMarshaler{},
		Exchange: amqp.ExchangeConfig{
			GenerateName: func(string) string { return exchange },
			Type:         "topic",
			Durable:      true,
		},
		Queue: amqp.QueueConfig{
			GenerateName: func(string) string { return binding.Queue },
			Durable:      binding.Durable,
		},
		QueueBind: amqp.QueueBindConfig{
			GenerateRoutingKey: func(string) string { return binding.Pattern },
		},
		Consume: amqp.ConsumeConfig{
			Qos: amqp.QosConfig{
				PrefetchCount: cfg.GetPrefetchCount(),
			},
		},
		Publish: amqp.PublishConfig{
			GenerateRoutingKey: func(topic string) string { return topic },
		},
		TopologyBuilder: &amqp.DefaultTopologyBuilder{},
	}
}

// subscriberMux hands each queue its own watermill-amqp subscriber so the
// queue's durable flag and binding pattern apply individually, while all
// subscribers share the one process-wide connection.
type subscriberMux struct {
	conn   *amqp.ConnectionWrapper
	cfg    transport.Config
	logger watermill.LoggerAdapter

	mu   sync.Mutex
	subs map[string]message.Subscriber
}

func (m *subscriberMux) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	binding, ok := transport.BindingFor(m.cfg, topic)
	if !ok {
		return nil, fmt.Errorf("queue %q has no binding in the topology catalog", topic)
	}

	m.mu.Lock()
	sub, ok := m.subs[topic]
	if !ok {
		var err error
		sub, err = SubscriberFactory(SubscriberConfig(m.cfg, binding), m.logger, m.conn)
		if err != nil {
			m.mu.Unlock()
			return nil, err
		}
		m.subs[topic] = sub
	}
	m.mu.Unlock()

	return sub.Subscribe(ctx, topic)
}

// QueueDepth reports the number of messages waiting in the named queue, as
// counted by the broker.
func (m *subscriberMux) QueueDepth(queue string) (int64, error) {
	state, err := InspectQueue(m.conn, queue)
	if err != nil {
		return 0, err
	}
	return int64(state.Messages), nil
}

// QueueConsumers reports the number of consumers the broker has registered on
// the named queue, across all processes.
func (m *subscriberMux) QueueConsumers(queue string) (int, error) {
	state, err := InspectQueue(m.conn, queue)
	if err != nil {
		return 0, err
	}
	return state.Consumers, nil
}

func (m *subscriberMux) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for _, sub := range m.subs {
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.subs = make(map[string]message.Subscriber)

	if err := m.conn.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
