package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/wellgrid/healthbus/internal/runtime/errors"
	loggingpkg "github.com/wellgrid/healthbus/internal/runtime/logging"
	transportpkg "github.com/wellgrid/healthbus/transport"
)

// Consume attaches a consumer loop to the named queue. The queue must appear
// in the binding catalog and may carry at most one loop per Bus. Messages are
// pulled under the prefetch bound, decoded, dispatched by routing-key prefix,
// and acknowledged when the dispatch step completes; decode failures are left
// unacknowledged so the broker can redeliver or dead-letter them.
func (b *Bus) Consume(queue string) error {
	if b.State() != StateConnected {
		return errspkg.ErrNotConnected
	}
	if _, ok := transportpkg.BindingFor(b.Conf, queue); !ok {
		return fmt.Errorf("%w: %q", errspkg.ErrUnknownQueue, queue)
	}

	b.consumeMu.Lock()
	if _, attached := b.consuming[queue]; attached {
		b.consumeMu.Unlock()
		return fmt.Errorf("%w: %q", errspkg.ErrAlreadyConsuming, queue)
	}
	b.consuming[queue] = struct{}{}
	b.consumeMu.Unlock()

	b.connMu.Lock()
	subscriber := b.subscriber
	b.connMu.Unlock()

	b.router.AddNoPublisherHandler(
		queue,
		queue,
		subscriber,
		b.consumeHandler(queue),
	)
	b.queueStatsFor(queue).addConsumer()
	return nil
}

// ConsumeAll attaches a consumer loop to every queue in the binding catalog.
func (b *Bus) ConsumeAll() error {
	for _, binding := range b.Conf.Bindings {
		if err := b.Consume(binding.Queue); err != nil {
			return err
		}
	}
	return nil
}

// consumeHandler is the body of one queue's consumer loop. Returning nil
// acknowledges the message; returning an error leaves it for redelivery.
func (b *Bus) consumeHandler(queue string) message.NoPublishHandlerFunc {
	stats := b.queueStatsFor(queue)

	return func(msg *message.Message) error {
		env, err := DecodeEnvelope(msg.Payload)
		if err != nil {
			stats.recordFailed()
			b.Logger.Error("Dropping malformed event payload for redelivery", err, loggingpkg.LogFields{
				"queue":        queue,
				"message_uuid": msg.UUID,
			})
			return err
		}
		if env.RoutingKey == "" {
			env.RoutingKey = msg.Metadata.Get(MetadataRoutingKey)
		}
		if env.RequestID == "" {
			env.RequestID = msg.Metadata.Get(MetadataRequestID)
		}

		err = b.dispatch(msg.Context(), env)
		switch {
		case err == nil:
			stats.recordProcessed()
			return nil
		case errors.Is(err, errspkg.ErrNoHandler):
			// Explicit drop, not a retry: acknowledge without invoking anyone.
			// This is a warning; the ServiceLogger contract has no Warn level,
			// so it goes out at Info.
			stats.recordDropped()
			b.Logger.Info("No handler for event prefix, dropping", loggingpkg.LogFields{
				"queue":       queue,
				"prefix":      env.Prefix(),
				"routing_key": env.RoutingKey,
				"event_type":  env.Type,
			})
			return nil
		default:
			stats.recordFailed()
			b.Logger.Error("Event handler failed", err, loggingpkg.LogFields{
				"queue":       queue,
				"prefix":      env.Prefix(),
				"event_type":  env.Type,
				"request_id":  env.RequestID,
				"routing_key": env.RoutingKey,
			})
			if b.Conf.NackHandlerErrors {
				return err
			}
			// Best-effort default: acknowledge even after a handler failure,
			// trading poison-message loops for potential data loss.
			return nil
		}
	}
}

// dispatch resolves the single handler registered for the routing key's
// prefix and invokes it. Blocking handlers run on the worker pool so they
// cannot stall the consume loop of other queues.
func (b *Bus) dispatch(ctx context.Context, env *Envelope) error {
	prefix := env.Prefix()
	entry, ok := b.registry.lookup(prefix)
	if !ok {
		return fmt.Errorf("%w: %q", errspkg.ErrNoHandler, prefix)
	}

	invoke := func() error {
		return safeInvoke(ctx, entry.fn, env)
	}
	if entry.blocking {
		return b.pool.Run(ctx, invoke)
	}
	return invoke()
}

// safeInvoke contains handler panics so one failing callback cannot crash
// the consume loop or affect delivery to other handlers.
func safeInvoke(ctx context.Context, fn Handler, env *Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return fn(ctx, env)
}

// QueueInfo describes one bound queue for observability.
type QueueInfo struct {
	Queue     string `json:"queue"`
	Pattern   string `json:"pattern"`
	Durable   bool   `json:"durable"`
	Depth     int64  `json:"depth"` // -1 when the transport cannot report it
	Consumers int    `json:"consumers"`

	Processed       uint64    `json:"processed"`
	Failed          uint64    `json:"failed"`
	Dropped         uint64    `json:"dropped"`
	LastProcessedAt time.Time `json:"last_processed_at"`
}

// QueueInfo returns per-queue depth, consumer count, and dispatch counters
// for every queue in the binding catalog. Depth is reported by transports
// implementing transport.QueueIntrospector and is -1 otherwise.
func (b *Bus) QueueInfo() []QueueInfo {
	b.connMu.Lock()
	subscriber := b.subscriber
	b.connMu.Unlock()

	introspector, _ := subscriber.(transportpkg.QueueIntrospector)

	infos := make([]QueueInfo, 0, len(b.Conf.Bindings))
	for _, binding := range b.Conf.Bindings {
		info := QueueInfo{
			Queue:   binding.Queue,
			Pattern: binding.Pattern,
			Durable: binding.Durable,
			Depth:   -1,
		}

		stats := b.queueStatsFor(binding.Queue)
		info.Consumers, info.Processed, info.Failed, info.Dropped, info.LastProcessedAt = stats.snapshot()

		if introspector != nil {
			if depth, err := introspector.QueueDepth(binding.Queue); err == nil {
				info.Depth = depth
			}
			if consumers, err := introspector.QueueConsumers(binding.Queue); err == nil {
				info.Consumers = consumers
			}
		}
		infos = append(infos, info)
	}
	return infos
}

func (b *Bus) queueStatsFor(queue string) *queueStats {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	stats, ok := b.stats[queue]
	if !ok {
		stats = &queueStats{}
		b.stats[queue] = stats
	}
	return stats
}
