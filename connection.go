package signalr

import "context"

// TransferFormat is the wire encoding a Protocol requires of its
// transport: text (e.g. UTF-8 JSON) or binary.
type TransferFormat int

const (
	TransferFormatText TransferFormat = iota + 1
	TransferFormatBinary
)

// Connection is the transport collaborator: an ordered, reliable,
// full-duplex byte stream. It is external to the connection core — the
// core only ever sees the byte frames it hands to Send and the ones
// delivered to the receive handler. Start, Send, Close, and Abort may be
// called from different goroutines than the one invoking the receive and
// closed handlers; implementations must be safe for that.
type Connection interface {
	// Start begins the transport session using the given transfer
	// format. It must be called before Send.
	Start(ctx context.Context, format TransferFormat) error

	// Send transmits one already-serialized frame. It returns once the
	// transport has accepted the bytes.
	Send(ctx context.Context, data []byte) error

	// SetReceiveHandler registers the callback invoked with each inbound
	// byte batch. Must be called before Start.
	SetReceiveHandler(handler func(data []byte))

	// SetClosedHandler registers the callback invoked exactly once when
	// the transport terminates, whether cleanly (err == nil) or not.
	// Must be called before Start.
	SetClosedHandler(handler func(err error))

	// Close terminates the session cleanly. It triggers the closed
	// handler with a nil error.
	Close() error

	// Abort terminates the session immediately because of err. It
	// triggers the closed handler with err.
	Abort(err error)

	// HasInherentKeepAlive reports whether the transport already
	// guarantees periodic traffic on its own (e.g. WebSocket ping
	// frames), in which case the server-timeout watchdog is unneeded.
	HasInherentKeepAlive() bool
}

// ConnectionFactory creates a fresh, unstarted Connection. HubConnection
// calls it once per Start.
type ConnectionFactory func(ctx context.Context) (Connection, error)
