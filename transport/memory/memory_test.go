package memory

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wellgrid/healthbus/transport"
)

type testConfig struct {
	bindings     []transport.QueueBinding
	pollInterval time.Duration
}

func (c *testConfig) GetTransport() string                  { return TransportName }
func (c *testConfig) GetBrokerURL() string                  { return "" }
func (c *testConfig) GetExchange() string                   { return "health.events" }
func (c *testConfig) GetHeartbeat() time.Duration           { return 10 * time.Second }
func (c *testConfig) GetConnectTimeout() time.Duration      { return 30 * time.Second }
func (c *testConfig) GetPrefetchCount() int                 { return 8 }
func (c *testConfig) GetPollInterval() time.Duration        { return c.pollInterval }
func (c *testConfig) GetBindings() []transport.QueueBinding { return c.bindings }

func newTestPubSub(bindings ...transport.QueueBinding) *PubSub {
	return NewPubSub(&testConfig{bindings: bindings, pollInterval: 10 * time.Millisecond}, watermill.NopLogger{})
}

func receive(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "subscription channel closed early")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestRegister(t *testing.T) {
	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "memory", caps.Name)
	assert.True(t, caps.SupportsAck)
	assert.True(t, caps.SupportsNack)
	assert.True(t, caps.FanOut)
	assert.False(t, caps.Durable)
}

func TestBuildUsesFactory(t *testing.T) {
	original := Factory
	defer func() { Factory = original }()

	custom := newTestPubSub()
	Factory = func(cfg transport.Config, logger watermill.LoggerAdapter) *PubSub {
		return custom
	}

	tr, err := Build(context.Background(), &testConfig{}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Equal(t, custom, tr.Publisher)
	assert.Equal(t, custom, tr.Subscriber)
}

func TestPublishRoutesByPattern(t *testing.T) {
	ps := newTestPubSub(
		transport.QueueBinding{Queue: "nutrition_analysis", Pattern: "nutrition.*"},
		transport.QueueBinding{Queue: "fitness_planner", Pattern: "fitness.*"},
	)
	defer ps.Close()

	ctx := context.Background()
	nutrition, err := ps.Subscribe(ctx, "nutrition_analysis")
	require.NoError(t, err)
	fitness, err := ps.Subscribe(ctx, "fitness_planner")
	require.NoError(t, err)

	require.NoError(t, ps.Publish("nutrition.update", message.NewMessage("1", []byte(`{}`))))

	msg := receive(t, nutrition)
	assert.Equal(t, "1", msg.UUID)
	msg.Ack()

	select {
	case unexpected := <-fitness:
		t.Fatalf("fitness queue received foreign message %s", unexpected.UUID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishUnmatchedKeyCreatesQueue(t *testing.T) {
	ps := newTestPubSub(transport.QueueBinding{Queue: "nutrition_analysis", Pattern: "nutrition.*"})
	defer ps.Close()

	require.NoError(t, ps.Publish("orphan.topic", message.NewMessage("1", nil)))

	depth, err := ps.QueueDepth("orphan.topic")
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)
}

func TestFanOutToAllConsumers(t *testing.T) {
	ps := newTestPubSub(transport.QueueBinding{Queue: "notifications", Pattern: "notifications.*"})
	defer ps.Close()

	ctx := context.Background()
	first, err := ps.Subscribe(ctx, "notifications")
	require.NoError(t, err)
	second, err := ps.Subscribe(ctx, "notifications")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, ps.Publish("notifications.send", message.NewMessage(watermill.NewUUID(), nil)))
	}

	// Every consumer sees every message: 3 published * 2 consumers = 6 deliveries.
	for i := 0; i < 3; i++ {
		receive(t, first).Ack()
		receive(t, second).Ack()
	}
}

func TestNackRedelivers(t *testing.T) {
	ps := newTestPubSub(transport.QueueBinding{Queue: "notifications", Pattern: "notifications.*"})
	defer ps.Close()

	ch, err := ps.Subscribe(context.Background(), "notifications")
	require.NoError(t, err)

	require.NoError(t, ps.Publish("notifications.send", message.NewMessage("1", []byte("payload"))))

	msg := receive(t, ch)
	msg.Nack()

	redelivered := receive(t, ch)
	assert.Equal(t, "1", redelivered.UUID)
	assert.Equal(t, message.Payload("payload"), redelivered.Payload)
	redelivered.Ack()
}

func TestBacklogGoesToFirstConsumer(t *testing.T) {
	ps := newTestPubSub(transport.QueueBinding{Queue: "notifications", Pattern: "notifications.*"})
	defer ps.Close()

	require.NoError(t, ps.Publish("notifications.send", message.NewMessage("early", nil)))

	ch, err := ps.Subscribe(context.Background(), "notifications")
	require.NoError(t, err)

	msg := receive(t, ch)
	assert.Equal(t, "early", msg.UUID)
	msg.Ack()
}

func TestDeclareQueueIdempotent(t *testing.T) {
	ps := newTestPubSub()
	defer ps.Close()

	ps.DeclareQueue("q")
	require.NoError(t, ps.Publish("q", message.NewMessage("1", nil)))
	ps.DeclareQueue("q")

	depth, err := ps.QueueDepth("q")
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth, "re-declaring must not reset the queue")
}

func TestQueueIntrospection(t *testing.T) {
	ps := newTestPubSub(transport.QueueBinding{Queue: "notifications", Pattern: "notifications.*"})
	defer ps.Close()

	depth, err := ps.QueueDepth("notifications")
	require.NoError(t, err)
	assert.Equal(t, int64(0), depth)

	consumers, err := ps.QueueConsumers("notifications")
	require.NoError(t, err)
	assert.Equal(t, 0, consumers)

	_, err = ps.Subscribe(context.Background(), "notifications")
	require.NoError(t, err)

	consumers, err = ps.QueueConsumers("notifications")
	require.NoError(t, err)
	assert.Equal(t, 1, consumers)

	depth, err = ps.QueueDepth("missing")
	require.NoError(t, err)
	assert.Equal(t, int64(0), depth)
}

func TestCloseStopsConsumers(t *testing.T) {
	ps := newTestPubSub(transport.QueueBinding{Queue: "notifications", Pattern: "notifications.*"})

	ch, err := ps.Subscribe(context.Background(), "notifications")
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, ps.Close())

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed, not delivering")
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop after Close")
	}
	// The consumer loop polls with a short bound, so shutdown is prompt.
	assert.Less(t, time.Since(start), time.Second)

	assert.ErrorIs(t, ps.Publish("notifications.send", message.NewMessage("1", nil)), ErrClosed)
	_, err = ps.Subscribe(context.Background(), "notifications")
	assert.ErrorIs(t, err, ErrClosed)
	require.NoError(t, ps.Close(), "double close is a no-op")
}

func TestCloseDropsUnackedMessage(t *testing.T) {
	ps := newTestPubSub(transport.QueueBinding{Queue: "notifications", Pattern: "notifications.*"})

	ch, err := ps.Subscribe(context.Background(), "notifications")
	require.NoError(t, err)

	require.NoError(t, ps.Publish("notifications.send", message.NewMessage("1", nil)))

	// Take delivery but never ack, then shut down mid-flight.
	receive(t, ch)
	require.NoError(t, ps.Close())

	select {
	case redelivered, ok := <-ch:
		if ok {
			t.Fatalf("unexpected redelivery of %s after Close", redelivered.UUID)
		}
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop after Close")
	}

	// Unlike a durable broker, nothing requeues the in-flight message.
	depth, err := ps.QueueDepth("notifications")
	require.NoError(t, err)
	assert.Equal(t, int64(0), depth)
}

func TestContextCancelStopsConsumer(t *testing.T) {
	ps := newTestPubSub(transport.QueueBinding{Queue: "notifications", Pattern: "notifications.*"})
	defer ps.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := ps.Subscribe(ctx, "notifications")
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("consumer did not observe context cancellation")
	}
}
