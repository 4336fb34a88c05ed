package runtime

import (
	"fmt"
	"strings"
	"time"

	errspkg "github.com/wellgrid/healthbus/internal/runtime/errors"
	"github.com/wellgrid/healthbus/internal/runtime/jsoncodec"
)

// Wire keys injected by the publisher. Payload fields with these names,
// except "type", are overwritten on publish.
const (
	wireKeyType      = "type"
	wireKeyTimestamp = "timestamp"
	wireKeyQueue     = "queue"
	wireKeyRequestID = "request_id"
)

// Envelope is the wire representation of one event: the original payload
// fields flattened into a single JSON object, plus metadata injected by the
// publisher. Envelopes are immutable once published; consumers receive their
// own decoded copy.
type Envelope struct {
	// Type is the event type, taken from the payload's "type" field.
	Type string

	// Timestamp is the creation instant, injected by the publisher.
	Timestamp time.Time

	// RoutingKey is the topic the event was published under, injected by the
	// publisher and carried on the wire as "queue".
	RoutingKey string

	// RequestID correlates the event with the request that produced it.
	RequestID string

	// Fields holds the original payload fields, "type" included.
	Fields map[string]any
}

// NewEnvelope flattens the payload into wire fields and stamps the routing
// key. The timestamp and request ID are filled in by the publisher.
func NewEnvelope(target string, payload any) (*Envelope, error) {
	if payload == nil {
		return nil, errspkg.ErrPayloadRequired
	}

	raw, err := jsoncodec.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	fields := make(map[string]any)
	if err := jsoncodec.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("event payload must encode to a JSON object: %w", err)
	}

	env := &Envelope{
		RoutingKey: target,
		Fields:     fields,
	}
	if eventType, ok := fields[wireKeyType].(string); ok {
		env.Type = eventType
	}
	return env, nil
}

// Encode serialises the envelope to its flattened wire form.
func (e *Envelope) Encode() ([]byte, error) {
	out := make(map[string]any, len(e.Fields)+4)
	for k, v := range e.Fields {
		out[k] = v
	}
	if e.Type != "" {
		out[wireKeyType] = e.Type
	}
	out[wireKeyTimestamp] = e.Timestamp.UTC().Format(time.RFC3339Nano)
	out[wireKeyQueue] = e.RoutingKey
	if e.RequestID != "" {
		out[wireKeyRequestID] = e.RequestID
	}
	return jsoncodec.Marshal(out)
}

// DecodeEnvelope parses a wire payload back into an Envelope. A malformed
// payload is an error; the consumer loop leaves such messages unacknowledged
// so the broker can redeliver or dead-letter them.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	fields := make(map[string]any)
	if err := jsoncodec.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("malformed event payload: %w", err)
	}

	env := &Envelope{Fields: fields}

	if eventType, ok := fields[wireKeyType].(string); ok {
		env.Type = eventType
	}
	if raw, ok := fields[wireKeyTimestamp].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			env.Timestamp = ts
		}
		delete(fields, wireKeyTimestamp)
	}
	if queue, ok := fields[wireKeyQueue].(string); ok {
		env.RoutingKey = queue
		delete(fields, wireKeyQueue)
	}
	if requestID, ok := fields[wireKeyRequestID].(string); ok {
		env.RequestID = requestID
		delete(fields, wireKeyRequestID)
	}
	return env, nil
}

// DecodePayload unmarshals the original payload fields into v.
func (e *Envelope) DecodePayload(v any) error {
	raw, err := jsoncodec.Marshal(e.Fields)
	if err != nil {
		return err
	}
	return jsoncodec.Unmarshal(raw, v)
}

// Prefix returns the dispatch prefix: everything before the first topic
// separator in the routing key.
func (e *Envelope) Prefix() string {
	prefix, _, _ := strings.Cut(e.RoutingKey, ".")
	return prefix
}
