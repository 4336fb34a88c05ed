package healthbus

import (
	runtimepkg "github.com/wellgrid/healthbus/internal/runtime"
	configpkg "github.com/wellgrid/healthbus/internal/runtime/config"
	errspkg "github.com/wellgrid/healthbus/internal/runtime/errors"
	idspkg "github.com/wellgrid/healthbus/internal/runtime/ids"
	jsoncodec "github.com/wellgrid/healthbus/internal/runtime/jsoncodec"
	loggingpkg "github.com/wellgrid/healthbus/internal/runtime/logging"
	transportpkg "github.com/wellgrid/healthbus/transport"
)

type (
	Config          = configpkg.Config
	Bus             = runtimepkg.Bus
	BusDependencies = runtimepkg.BusDependencies

	Envelope      = runtimepkg.Envelope
	Handler       = runtimepkg.Handler
	HandlerOption = runtimepkg.HandlerOption
	Producer      = runtimepkg.Producer
	PublishOption = runtimepkg.PublishOption
	QueueInfo     = runtimepkg.QueueInfo
	ConnState     = runtimepkg.ConnState

	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	// Transport types
	Transport             = transportpkg.Transport
	TransportBuilder      = transportpkg.Builder
	TransportConfig       = transportpkg.Config
	TransportRegistry     = transportpkg.Registry
	TransportCapabilities = transportpkg.Capabilities
	QueueBinding          = transportpkg.QueueBinding
	QueueIntrospector     = transportpkg.QueueIntrospector
)

// Connection lifecycle states.
const (
	StateDisconnected = runtimepkg.StateDisconnected
	StateConnecting   = runtimepkg.StateConnecting
	StateConnected    = runtimepkg.StateConnected
	StateClosed       = runtimepkg.StateClosed
)

var (
	NewBus         = runtimepkg.NewBus
	ValidateConfig = configpkg.ValidateConfig

	// Handler and publish options
	Blocking      = runtimepkg.Blocking
	WithRequestID = runtimepkg.WithRequestID

	DefaultMiddlewares  = runtimepkg.DefaultMiddlewares
	RequestIDMiddleware = runtimepkg.RequestIDMiddleware
	LogEventsMiddleware = runtimepkg.LogEventsMiddleware
	TracerMiddleware    = runtimepkg.TracerMiddleware
	MetricsMiddleware   = runtimepkg.MetricsMiddleware
	RecovererMiddleware = runtimepkg.RecovererMiddleware

	// Loggers
	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NopServiceLogger          = loggingpkg.NopServiceLogger

	// Transport registry
	// Import individual transports via: _ "github.com/wellgrid/healthbus/transport/memory"
	DefaultTransportRegistry = transportpkg.DefaultRegistry
	RegisterTransport        = transportpkg.Register
	BuildTransport           = transportpkg.Build
	GetCapabilities          = transportpkg.GetCapabilities
	MatchTopic               = transportpkg.MatchTopic

	NewRequestID = idspkg.NewRequestID

	Marshal   = jsoncodec.Marshal
	Unmarshal = jsoncodec.Unmarshal
	Encode    = jsoncodec.Encode
	Decode    = jsoncodec.Decode

	ErrBusRequired      = errspkg.ErrBusRequired
	ErrBusClosed        = errspkg.ErrBusClosed
	ErrNotConnected     = errspkg.ErrNotConnected
	ErrHandlerRequired  = errspkg.ErrHandlerRequired
	ErrPrefixRequired   = errspkg.ErrPrefixRequired
	ErrTargetRequired   = errspkg.ErrTargetRequired
	ErrPayloadRequired  = errspkg.ErrPayloadRequired
	ErrUnknownKind      = errspkg.ErrUnknownKind
	ErrUnknownQueue     = errspkg.ErrUnknownQueue
	ErrAlreadyConsuming = errspkg.ErrAlreadyConsuming
	ErrNoHandler        = errspkg.ErrNoHandler
)
