package runtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"

	configpkg "github.com/wellgrid/healthbus/internal/runtime/config"
	errspkg "github.com/wellgrid/healthbus/internal/runtime/errors"
	loggingpkg "github.com/wellgrid/healthbus/internal/runtime/logging"
	transportpkg "github.com/wellgrid/healthbus/transport"

	// Import the built-in transport packages to register them.
	_ "github.com/wellgrid/healthbus/transport/memory"
	_ "github.com/wellgrid/healthbus/transport/nats"
	_ "github.com/wellgrid/healthbus/transport/rabbitmq"
)

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// ConnState is the connection lifecycle state of a Bus.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("unknown(%d)", int32(s))
}

// BusDependencies holds the optional collaborators a Bus can use. Leave
// fields nil/zero for the defaults.
type BusDependencies struct {
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.
	Transports                *transportpkg.Registry   // Defaults to the global transport registry.
}

// Bus is the cross-service event-messaging core: it owns the broker
// connection, declares the topology, publishes envelopes, and hosts one
// consumer loop per bound queue. A Bus is constructed once at process start
// and torn down at process shutdown; it must not be shared by value.
type Bus struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	transports *transportpkg.Registry
	router     *message.Router
	registry   *HandlerRegistry
	pool       *workerPool

	state atomic.Int32

	connMu     sync.Mutex
	publisher  message.Publisher
	subscriber message.Subscriber

	statsMu sync.RWMutex
	stats   map[string]*queueStats

	consumeMu sync.Mutex
	consuming map[string]struct{}

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex
}

// NewBus constructs a Bus for the supplied configuration. Call Connect, then
// register handlers and consumers, then Run.
func NewBus(conf *configpkg.Config, log loggingpkg.ServiceLogger, deps BusDependencies) (*Bus, error) {
	if conf == nil {
		return nil, fmt.Errorf("healthbus: config is required")
	}
	if log == nil {
		log = loggingpkg.NopServiceLogger()
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("healthbus: invalid config: %w", err)
	}
	conf.ApplyDefaults()

	log.Info("Creating event bus", loggingpkg.LogFields{
		"transport": conf.Transport,
		"config":    conf,
	})

	transports := deps.Transports
	if transports == nil {
		transports = transportpkg.DefaultRegistry
	}

	router, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: 2 * conf.PollInterval,
	}, loggingpkg.NewWatermillAdapter(log))
	if err != nil {
		return nil, err
	}
	router.AddPlugin(plugin.SignalsHandler)

	b := &Bus{
		Conf:       conf,
		Logger:     log,
		transports: transports,
		router:     router,
		registry:   NewHandlerRegistry(conf.KnownKinds(), log),
		pool:       newWorkerPool(conf.BlockingWorkers),
		stats:      make(map[string]*queueStats),
		consuming:  make(map[string]struct{}),
	}
	b.state.Store(int32(StateDisconnected))

	if err := b.registerConfiguredMiddlewares(deps); err != nil {
		return nil, err
	}
	return b, nil
}

// State returns the current connection state.
func (b *Bus) State() ConnState {
	return ConnState(b.state.Load())
}

// Connect establishes the broker connection and declares the exchange. It is
// idempotent: calling it while already connected is a no-op. Failure of the
// initial connect is fatal and propagates to the caller; once connected,
// transient disconnects are handled by the transport's automatic
// reconnection and are only logged.
func (b *Bus) Connect(ctx context.Context) error {
	b.connMu.Lock()
	defer b.connMu.Unlock()

	switch b.State() {
	case StateClosed:
		return errspkg.ErrBusClosed
	case StateConnected:
		return nil
	}

	b.state.Store(int32(StateConnecting))
	transport, err := b.transports.Build(ctx, b.Conf, loggingpkg.NewWatermillAdapter(b.Logger))
	if err != nil {
		b.state.Store(int32(StateDisconnected))
		return fmt.Errorf("healthbus: connect failed: %w", err)
	}

	b.publisher = transport.Publisher
	b.subscriber = transport.Subscriber
	b.state.Store(int32(StateConnected))

	b.Logger.Info("Connected to broker", loggingpkg.LogFields{
		"transport": b.Conf.Transport,
	})
	return nil
}

// Disconnect closes the broker connection gracefully, releasing the channel.
// It is safe to call when already disconnected.
func (b *Bus) Disconnect() error {
	b.connMu.Lock()
	defer b.connMu.Unlock()
	return b.disconnectLocked()
}

func (b *Bus) disconnectLocked() error {
	if b.State() != StateConnected {
		return nil
	}

	var firstErr error
	if b.subscriber != nil {
		if err := b.subscriber.Close(); err != nil {
			firstErr = err
		}
	}
	if b.publisher != nil {
		if err := b.publisher.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	b.publisher = nil
	b.subscriber = nil
	b.state.Store(int32(StateDisconnected))
	return firstErr
}

// Run starts all registered consumer loops and blocks until the context is
// cancelled or Close is called.
func (b *Bus) Run(ctx context.Context) error {
	if b.State() != StateConnected {
		return errspkg.ErrNotConnected
	}
	b.startHTTPServers()
	return routerRun(b.router, ctx)
}

// Running is closed once all consumer loops have started. Useful for tests
// and startup ordering.
func (b *Bus) Running() <-chan struct{} {
	return b.router.Running()
}

// Close stops all consumer loops within the configured close timeout, then
// disconnects. Messages already pulled but not yet acknowledged are not
// drained; the real broker redelivers them, the fallback broker drops them.
func (b *Bus) Close() error {
	b.connMu.Lock()
	defer b.connMu.Unlock()

	if b.State() == StateClosed {
		return nil
	}

	firstErr := b.router.Close()
	if err := b.disconnectLocked(); err != nil && firstErr == nil {
		firstErr = err
	}
	b.state.Store(int32(StateClosed))
	return firstErr
}

// RegisterHandler binds a callback to a dispatch prefix. At most one handler
// may be active per prefix; registration must happen before Run.
func (b *Bus) RegisterHandler(prefix string, fn Handler, opts ...HandlerOption) error {
	return b.registry.Register(prefix, fn, opts...)
}

func (b *Bus) registerConfiguredMiddlewares(deps BusDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := b.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("failed to register middleware %s: %w", name, err)
		}
	}
	return nil
}

// RegisterHTTPHandler exposes an HTTP handler (e.g. /metrics) on the given
// port once Run is called.
func (b *Bus) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	b.httpServersMu.Lock()
	defer b.httpServersMu.Unlock()

	if b.httpServers == nil {
		b.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := b.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		b.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (b *Bus) startHTTPServers() {
	b.httpServersMu.Lock()
	defer b.httpServersMu.Unlock()

	for port, mux := range b.httpServers {
		addr := fmt.Sprintf(":%d", port)
		b.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": addr})
		go func(addr string, handler http.Handler) {
			if err := http.ListenAndServe(addr, handler); err != nil {
				b.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": addr})
			}
		}(addr, mux)
	}
}
