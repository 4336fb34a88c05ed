package ids

import (
	"sync"
	"testing"

	"github.com/oklog/ulid/v2"
)

func TestNewRequestIDIsValidULID(t *testing.T) {
	t.Parallel()

	id := NewRequestID()
	if len(id) != 26 {
		t.Fatalf("expected 26-character ULID, got %q", id)
	}
	if _, err := ulid.Parse(id); err != nil {
		t.Fatalf("expected parseable ULID: %v", err)
	}
}

func TestNewRequestIDIsMonotonic(t *testing.T) {
	t.Parallel()

	prev := NewRequestID()
	for i := 0; i < 100; i++ {
		next := NewRequestID()
		if next <= prev {
			t.Fatalf("expected strictly increasing ids, got %q then %q", prev, next)
		}
		prev = next
	}
}

func TestNewRequestIDConcurrentUnique(t *testing.T) {
	t.Parallel()

	const n = 200
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- NewRequestID()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]struct{}, n)
	for id := range ids {
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}
