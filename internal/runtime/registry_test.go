package runtime

import (
	"context"
	"errors"
	"testing"

	errspkg "github.com/wellgrid/healthbus/internal/runtime/errors"
	loggingpkg "github.com/wellgrid/healthbus/internal/runtime/logging"
)

func noopHandler(ctx context.Context, env *Envelope) error { return nil }

func TestHandlerRegistryRegisterAndLookup(t *testing.T) {
	t.Parallel()

	r := NewHandlerRegistry([]string{"nutrition", "fitness"}, loggingpkg.NopServiceLogger())

	if err := r.Register("nutrition", noopHandler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entry, ok := r.lookup("nutrition")
	if !ok {
		t.Fatal("expected handler to be registered")
	}
	if entry.blocking {
		t.Fatal("handler should not be blocking by default")
	}

	if _, ok := r.lookup("fitness"); ok {
		t.Fatal("fitness has no handler yet")
	}
}

func TestHandlerRegistryRejectsUnknownKind(t *testing.T) {
	t.Parallel()

	r := NewHandlerRegistry([]string{"nutrition"}, loggingpkg.NopServiceLogger())

	err := r.Register("astrology", noopHandler)
	if !errors.Is(err, errspkg.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestHandlerRegistryEmptyKindSetAllowsAnything(t *testing.T) {
	t.Parallel()

	r := NewHandlerRegistry(nil, loggingpkg.NopServiceLogger())
	if err := r.Register("anything", noopHandler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHandlerRegistryValidation(t *testing.T) {
	t.Parallel()

	r := NewHandlerRegistry(nil, loggingpkg.NopServiceLogger())

	if err := r.Register("", noopHandler); !errors.Is(err, errspkg.ErrPrefixRequired) {
		t.Fatalf("expected ErrPrefixRequired, got %v", err)
	}
	if err := r.Register("nutrition", nil); !errors.Is(err, errspkg.ErrHandlerRequired) {
		t.Fatalf("expected ErrHandlerRequired, got %v", err)
	}
}

func TestHandlerRegistryReplaceKeepsLastRegistration(t *testing.T) {
	t.Parallel()

	r := NewHandlerRegistry(nil, loggingpkg.NopServiceLogger())

	first := 0
	second := 0
	if err := r.Register("nutrition", func(ctx context.Context, env *Envelope) error {
		first++
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register("nutrition", func(ctx context.Context, env *Envelope) error {
		second++
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entry, ok := r.lookup("nutrition")
	if !ok {
		t.Fatal("expected handler")
	}
	if err := entry.fn(context.Background(), &Envelope{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != 0 || second != 1 {
		t.Fatalf("expected replacement handler to run, got first=%d second=%d", first, second)
	}
}

func TestHandlerRegistryBlockingOption(t *testing.T) {
	t.Parallel()

	r := NewHandlerRegistry(nil, loggingpkg.NopServiceLogger())
	if err := r.Register("mind", noopHandler, Blocking()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entry, _ := r.lookup("mind")
	if !entry.blocking {
		t.Fatal("expected blocking flag to be set")
	}
}

func TestHandlerRegistryPrefixes(t *testing.T) {
	t.Parallel()

	r := NewHandlerRegistry(nil, loggingpkg.NopServiceLogger())
	_ = r.Register("nutrition", noopHandler)
	_ = r.Register("fitness", noopHandler)

	prefixes := r.Prefixes()
	if len(prefixes) != 2 {
		t.Fatalf("expected 2 prefixes, got %v", prefixes)
	}
}
