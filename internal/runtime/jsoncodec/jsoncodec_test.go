package jsoncodec

import (
	"bytes"
	"strings"
	"testing"
)

type sample struct {
	Type     string `json:"type"`
	Calories int    `json:"calories"`
}

func TestMarshalUnmarshal(t *testing.T) {
	t.Parallel()

	data, err := Marshal(sample{Type: "meal_logged", Calories: 450})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var got sample
	if err := Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got.Type != "meal_logged" || got.Calories != 450 {
		t.Fatalf("unexpected round trip %+v", got)
	}
}

func TestUnmarshalMalformed(t *testing.T) {
	t.Parallel()

	var got sample
	if err := Unmarshal([]byte("{broken"), &got); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := Encode(&buf, sample{Type: "mood_checkin"}); err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if !strings.Contains(buf.String(), "mood_checkin") {
		t.Fatalf("unexpected encoding %q", buf.String())
	}

	var got sample
	if err := Decode(&buf, &got); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.Type != "mood_checkin" {
		t.Fatalf("unexpected decode %+v", got)
	}
}
