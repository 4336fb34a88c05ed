package runtime

import (
	"testing"
	"time"
)

func TestNewEnvelopeFlattensPayload(t *testing.T) {
	t.Parallel()

	payload := map[string]any{"type": "meal_logged", "calories": 450}
	env, err := NewEnvelope("nutrition.update", payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Type != "meal_logged" {
		t.Fatalf("expected type from payload, got %q", env.Type)
	}
	if env.RoutingKey != "nutrition.update" {
		t.Fatalf("unexpected routing key %q", env.RoutingKey)
	}
	if env.Fields["calories"] != float64(450) {
		t.Fatalf("expected calories 450, got %v", env.Fields["calories"])
	}
}

func TestNewEnvelopeRejectsNilPayload(t *testing.T) {
	t.Parallel()

	if _, err := NewEnvelope("nutrition.update", nil); err == nil {
		t.Fatal("expected error for nil payload")
	}
}

func TestNewEnvelopeRejectsNonObjectPayload(t *testing.T) {
	t.Parallel()

	if _, err := NewEnvelope("nutrition.update", []int{1, 2, 3}); err == nil {
		t.Fatal("expected error for non-object payload")
	}
}

func TestEnvelopeEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	env, err := NewEnvelope("nutrition.update", map[string]any{"type": "meal_logged", "calories": 450})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env.Timestamp = time.Now().UTC()
	env.RequestID = "req-1"

	data, err := env.Encode()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Type != "meal_logged" {
		t.Fatalf("unexpected type %q", decoded.Type)
	}
	if decoded.RoutingKey != "nutrition.update" {
		t.Fatalf("unexpected routing key %q", decoded.RoutingKey)
	}
	if decoded.RequestID != "req-1" {
		t.Fatalf("unexpected request id %q", decoded.RequestID)
	}
	if decoded.Timestamp.IsZero() {
		t.Fatal("expected non-zero timestamp after decode")
	}
	if decoded.Fields["calories"] != float64(450) {
		t.Fatalf("expected calories preserved, got %v", decoded.Fields["calories"])
	}
	// Injected wire keys are lifted out of the payload fields, "type" stays.
	for _, key := range []string{"timestamp", "queue", "request_id"} {
		if _, ok := decoded.Fields[key]; ok {
			t.Fatalf("expected %q to be removed from fields", key)
		}
	}
	if _, ok := decoded.Fields["type"]; !ok {
		t.Fatal("expected type to stay in fields")
	}
}

func TestDecodeEnvelopeMalformedPayload(t *testing.T) {
	t.Parallel()

	if _, err := DecodeEnvelope([]byte("not json")); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestEnvelopeDecodePayload(t *testing.T) {
	t.Parallel()

	type meal struct {
		Type     string `json:"type"`
		Calories int    `json:"calories"`
	}

	env, err := NewEnvelope("nutrition.update", meal{Type: "meal_logged", Calories: 450})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got meal
	if err := env.DecodePayload(&got); err != nil {
		t.Fatalf("decode payload failed: %v", err)
	}
	if got.Calories != 450 || got.Type != "meal_logged" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestEnvelopePrefix(t *testing.T) {
	t.Parallel()

	cases := []struct {
		key  string
		want string
	}{
		{"nutrition.update", "nutrition"},
		{"nutrition", "nutrition"},
		{"security.audit.alert", "security"},
		{"", ""},
	}
	for _, tc := range cases {
		env := &Envelope{RoutingKey: tc.key}
		if got := env.Prefix(); got != tc.want {
			t.Fatalf("prefix of %q: got %q, want %q", tc.key, got, tc.want)
		}
	}
}
