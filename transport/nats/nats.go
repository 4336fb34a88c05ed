// Package nats provides a NATS Core transport for healthbus, useful where a
// lightweight broker is preferred over AMQP. Queue bindings are honoured by
// subscribing to the binding pattern translated to NATS subject wildcards.
package nats

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/wellgrid/healthbus/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "nats"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return nats.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg nats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return nats.NewSubscriber(cfg, logger)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSCapabilities)
}

// Build creates a new NATS transport.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetBrokerURL()
	marshaler := &nats.NATSMarshaler{}
	options := []nc.Option{
		nc.Timeout(cfg.GetConnectTimeout()),
		nc.PingInterval(cfg.GetHeartbeat()),
	}

	publisher, err := PublisherFactory(
		nats.PublisherConfig{
			URL:         url,
			Marshaler:   marshaler,
			NatsOptions: options,
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(
		nats.SubscriberConfig{
			URL:         url,
			Unmarshaler: marshaler,
			NatsOptions: options,
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: &subjectSubscriber{inner: subscriber, cfg: cfg},
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.NATSCapabilities
}

// subjectSubscriber maps a queue name from the binding catalog to its
// pattern, translated to NATS subject syntax, before subscribing.
type subjectSubscriber struct {
	inner message.Subscriber
	cfg   transport.Config
}

func (s *subjectSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if binding, ok := transport.BindingFor(s.cfg, topic); ok {
		topic = SubjectFromPattern(binding.Pattern)
	}
	return s.inner.Subscribe(ctx, topic)
}

func (s *subjectSubscriber) Close() error {
	return s.inner.Close()
}

// SubjectFromPattern converts an AMQP-style topic pattern to a NATS subject:
// `*` carries over unchanged and `#` becomes the tail wildcard `>`. NATS only
// supports the tail wildcard as the last token, so segments after a `#` are
// dropped.
func SubjectFromPattern(pattern string) string {
	segments := strings.Split(pattern, ".")
	for i, segment := range segments {
		if segment == "#" {
			return strings.Join(append(segments[:i], ">"), ".")
		}
	}
	return pattern
}
