package signalr

import "golang.org/x/xerrors"

// Sentinel errors surfaced to callers of HubConnection. Transport and codec
// errors pass through unwrapped.
var (
	ErrNotStarted            = xerrors.New("signalr: connection not started")
	ErrAlreadyStarted        = xerrors.New("signalr: connection already started")
	ErrNotConnected          = xerrors.New("signalr: connection not connected")
	ErrDisposed              = xerrors.New("signalr: connection disposed")
	ErrConnectionTerminated  = xerrors.New("signalr: connection terminated")
	ErrDuplicateInvocationID = xerrors.New("signalr: duplicate invocation id")
	ErrServerTimeout         = xerrors.New("signalr: server timeout")
	ErrProtocolViolation     = xerrors.New("signalr: protocol violation")
)
