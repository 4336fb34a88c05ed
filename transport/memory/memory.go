// Package memory provides the in-process fallback broker for healthbus. It is
// a drop-in substitute for the AMQP transport in environments without a
// reachable broker (local development, tests).
//
// Semantics differ from a real broker in one documented way: every consumer
// attached to a queue receives every message (fan-out), instead of consumers
// competing for them. Queues are unbounded FIFOs, nothing is persisted across
// restarts, and the prefetch bound is not enforced.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/wellgrid/healthbus/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "memory"

// ErrClosed is returned by Publish and Subscribe after Close.
var ErrClosed = errors.New("memory transport is closed")

const defaultPollInterval = time.Second

// Factory allows overriding the pub/sub creation for testing.
var Factory = func(cfg transport.Config, logger watermill.LoggerAdapter) *PubSub {
	return NewPubSub(cfg, logger)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.MemoryCapabilities)
}

// Build creates a new in-memory transport.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	pubSub := Factory(cfg, logger)
	return transport.Transport{
		Publisher:  pubSub,
		Subscriber: pubSub,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.MemoryCapabilities
}

// PubSub is an in-process broker keyed by queue name. Published routing keys
// are matched against the binding catalog, so topology behaves like the topic
// exchange it replaces; a key matching no binding is appended to the queue of
// the same name, creating it on first use.
type PubSub struct {
	logger       watermill.LoggerAdapter
	pollInterval time.Duration
	bindings     []transport.QueueBinding

	mu      sync.Mutex
	queues  map[string]*queueState
	closed  bool
	closing chan struct{}
}

// NewPubSub constructs the fallback broker and declares a queue for every
// binding in the config catalog.
func NewPubSub(cfg transport.Config, logger watermill.LoggerAdapter) *PubSub {
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	pollInterval := defaultPollInterval
	var bindings []transport.QueueBinding
	if cfg != nil {
		if interval := cfg.GetPollInterval(); interval > 0 {
			pollInterval = interval
		}
		bindings = cfg.GetBindings()
	}

	p := &PubSub{
		logger:       logger,
		pollInterval: pollInterval,
		bindings:     bindings,
		queues:       make(map[string]*queueState),
		closing:      make(chan struct{}),
	}
	for _, b := range bindings {
		p.DeclareQueue(b.Queue)
	}
	return p
}

// DeclareQueue creates the named queue if absent. Declaring an existing queue
// is a no-op, so the topology pass can be repeated safely.
func (p *PubSub) DeclareQueue(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.declareQueue(name)
}

func (p *PubSub) declareQueue(name string) *queueState {
	q, ok := p.queues[name]
	if !ok {
		q = &queueState{name: name}
		p.queues[name] = q
	}
	return q
}

// Publish routes messages by topic: each queue whose binding pattern matches
// the routing key receives a copy. Keys without a matching binding go to the
// queue named after the key.
func (p *PubSub) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}

	var targets []*queueState
	for _, b := range p.bindings {
		if transport.MatchTopic(b.Pattern, topic) {
			targets = append(targets, p.declareQueue(b.Queue))
		}
	}
	if len(targets) == 0 {
		targets = append(targets, p.declareQueue(topic))
	}
	p.mu.Unlock()

	for _, msg := range messages {
		for _, q := range targets {
			q.enqueue(msg)
		}
	}
	return nil
}

// Subscribe attaches an additional consumer to the named queue. Every
// consumer receives every message published to the queue after it attached;
// a backlog accumulated before the first consumer goes to that first
// consumer. The draining goroutine waits for the next message with a bounded
// poll so a stop request is observed within the poll interval; messages
// delivered but not yet acknowledged at shutdown are lost.
func (p *PubSub) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	q := p.declareQueue(topic)
	p.mu.Unlock()

	sub := &subscription{
		out:    make(chan *message.Message),
		notify: make(chan struct{}, 1),
	}
	q.attach(sub)

	go p.drain(ctx, q, sub)
	return sub.out, nil
}

// Close stops all draining goroutines. In-flight unacknowledged messages are
// dropped; there is no persistence across restarts.
func (p *PubSub) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.closing)
	return nil
}

// QueueDepth returns the number of messages waiting in the named queue,
// counting the largest per-consumer backlog plus any unconsumed backlog.
func (p *PubSub) QueueDepth(queue string) (int64, error) {
	p.mu.Lock()
	q, ok := p.queues[queue]
	p.mu.Unlock()
	if !ok {
		return 0, nil
	}
	return q.depth(), nil
}

// QueueConsumers returns the number of consumers attached to the named queue.
func (p *PubSub) QueueConsumers(queue string) (int, error) {
	p.mu.Lock()
	q, ok := p.queues[queue]
	p.mu.Unlock()
	if !ok {
		return 0, nil
	}
	return q.consumers(), nil
}

// drain is the per-consumer loop: pull the next message under the poll bound,
// hand it to the subscriber channel, and wait for ack or nack. A nack
// redelivers the same payload to this consumer.
func (p *PubSub) drain(ctx context.Context, q *queueState, sub *subscription) {
	defer func() {
		q.detach(sub)
		close(sub.out)
	}()

	for {
		msg := sub.pop()
		if msg == nil {
			select {
			case <-ctx.Done():
				return
			case <-p.closing:
				return
			case <-sub.notify:
				continue
			case <-time.After(p.pollInterval):
				continue
			}
		}

		for {
			delivered := cloneMessage(msg)
			select {
			case sub.out <- delivered:
			case <-ctx.Done():
				return
			case <-p.closing:
				return
			}

			select {
			case <-delivered.Acked():
			case <-delivered.Nacked():
				p.logger.Debug("redelivering nacked message", watermill.LogFields{
					"queue":        q.name,
					"message_uuid": msg.UUID,
				})
				continue
			case <-ctx.Done():
				return
			case <-p.closing:
				return
			}
			break
		}
	}
}

func cloneMessage(msg *message.Message) *message.Message {
	clone := message.NewMessage(msg.UUID, msg.Payload)
	clone.Metadata = make(message.Metadata, len(msg.Metadata))
	for k, v := range msg.Metadata {
		clone.Metadata[k] = v
	}
	return clone
}

type queueState struct {
	name string

	mu      sync.Mutex
	backlog []*message.Message // messages published before any consumer attached
	subs    []*subscription
}

func (q *queueState) enqueue(msg *message.Message) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.subs) == 0 {
		q.backlog = append(q.backlog, msg)
		return
	}
	for _, sub := range q.subs {
		sub.push(msg)
	}
}

func (q *queueState) attach(sub *subscription) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.subs) == 0 && len(q.backlog) > 0 {
		for _, msg := range q.backlog {
			sub.push(msg)
		}
		q.backlog = nil
	}
	q.subs = append(q.subs, sub)
}

func (q *queueState) detach(sub *subscription) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, s := range q.subs {
		if s == sub {
			q.subs = append(q.subs[:i], q.subs[i+1:]...)
			return
		}
	}
}

func (q *queueState) depth() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	depth := int64(len(q.backlog))
	var largest int64
	for _, sub := range q.subs {
		if pending := sub.pending(); pending > largest {
			largest = pending
		}
	}
	return depth + largest
}

func (q *queueState) consumers() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.subs)
}

// subscription is one consumer's unbounded FIFO plus its delivery channel.
type subscription struct {
	out    chan *message.Message
	notify chan struct{}

	mu  sync.Mutex
	buf []*message.Message
}

func (s *subscription) push(msg *message.Message) {
	s.mu.Lock()
	s.buf = append(s.buf, msg)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscription) pop() *message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) == 0 {
		return nil
	}
	msg := s.buf[0]
	s.buf = s.buf[1:]
	return msg
}

func (s *subscription) pending() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.buf))
}
