package runtime

import (
	"context"
	"fmt"
	"sync"

	errspkg "github.com/wellgrid/healthbus/internal/runtime/errors"
	loggingpkg "github.com/wellgrid/healthbus/internal/runtime/logging"
)

// Handler processes one decoded event. A non-nil error is logged and counted;
// whether it also nacks the message is controlled by Config.NackHandlerErrors.
type Handler func(ctx context.Context, env *Envelope) error

// HandlerOption customises a handler registration.
type HandlerOption func(*handlerEntry)

// Blocking marks the handler as blocking. Blocking handlers run on the bus's
// worker pool so they never stall the consume loop of other queues.
func Blocking() HandlerOption {
	return func(e *handlerEntry) {
		e.blocking = true
	}
}

type handlerEntry struct {
	fn       Handler
	blocking bool
}

// HandlerRegistry maps a dispatch prefix (the first segment of a routing key)
// to exactly one handler. Registration is validated eagerly against the
// closed set of event kinds derived from the binding catalog; unknown kinds
// are rejected instead of being dropped silently at dispatch time.
//
// Registration is expected to complete before consumption starts. The
// registry is mutex-protected, so a late registration is safe, but handlers
// already dispatched keep running with the callback they resolved.
type HandlerRegistry struct {
	logger loggingpkg.ServiceLogger

	mu       sync.RWMutex
	kinds    map[string]struct{}
	handlers map[string]handlerEntry
}

// NewHandlerRegistry constructs a registry restricted to the given event
// kinds. An empty kind set disables the restriction.
func NewHandlerRegistry(kinds []string, logger loggingpkg.ServiceLogger) *HandlerRegistry {
	r := &HandlerRegistry{
		logger:   logger,
		handlers: make(map[string]handlerEntry),
	}
	if len(kinds) > 0 {
		r.kinds = make(map[string]struct{}, len(kinds))
		for _, kind := range kinds {
			r.kinds[kind] = struct{}{}
		}
	}
	return r
}

// Register stores the handler for a dispatch prefix. Registering an already
// bound prefix replaces the previous handler and logs the replacement.
func (r *HandlerRegistry) Register(prefix string, fn Handler, opts ...HandlerOption) error {
	if prefix == "" {
		return errspkg.ErrPrefixRequired
	}
	if fn == nil {
		return errspkg.ErrHandlerRequired
	}

	entry := handlerEntry{fn: fn}
	for _, opt := range opts {
		opt(&entry)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.kinds != nil {
		if _, ok := r.kinds[prefix]; !ok {
			return fmt.Errorf("%w: %q", errspkg.ErrUnknownKind, prefix)
		}
	}
	if _, exists := r.handlers[prefix]; exists && r.logger != nil {
		r.logger.Info("Replacing registered handler", loggingpkg.LogFields{
			"prefix": prefix,
		})
	}
	r.handlers[prefix] = entry
	return nil
}

func (r *HandlerRegistry) lookup(prefix string) (handlerEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.handlers[prefix]
	return entry, ok
}

// Prefixes returns the prefixes with a registered handler.
func (r *HandlerRegistry) Prefixes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prefixes := make([]string, 0, len(r.handlers))
	for prefix := range r.handlers {
		prefixes = append(prefixes, prefix)
	}
	return prefixes
}
