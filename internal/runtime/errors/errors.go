package errors

import sterrors "errors"

var (
	ErrBusRequired      = sterrors.New("healthbus: bus is required")
	ErrBusClosed        = sterrors.New("healthbus: bus is closed")
	ErrNotConnected     = sterrors.New("healthbus: bus is not connected")
	ErrHandlerRequired  = sterrors.New("healthbus: handler function is required")
	ErrPrefixRequired   = sterrors.New("healthbus: dispatch prefix is required")
	ErrTargetRequired   = sterrors.New("healthbus: publish target is required")
	ErrPayloadRequired  = sterrors.New("healthbus: event payload is required")
	ErrUnknownKind      = sterrors.New("healthbus: unknown event kind")
	ErrUnknownQueue     = sterrors.New("healthbus: queue has no binding")
	ErrAlreadyConsuming = sterrors.New("healthbus: queue already has a consumer loop")
	ErrNoHandler        = sterrors.New("healthbus: no handler registered for prefix")
)
