package signalr

// MessageType enumerates the closed set of frame kinds a Protocol can
// produce or consume.
type MessageType int

const (
	MessageTypeInvocation MessageType = iota + 1
	MessageTypeStreamInvocation
	MessageTypeStreamItem
	MessageTypeCompletion
	MessageTypeCancelInvocation
	MessageTypePing
)

// Message is the Protocol-agnostic representation of one wire frame. Which
// fields are meaningful depends on Type; see each field's comment.
type Message struct {
	Type MessageType

	// InvocationID correlates Invocation (when present), StreamInvocation,
	// StreamItem, Completion, and CancelInvocation frames. Empty for a
	// fire-and-forget Invocation (Send) and for Ping.
	InvocationID string

	// Target is the method name for Invocation and StreamInvocation.
	Target string

	// Arguments are the call arguments for Invocation and
	// StreamInvocation, already decoded against Binder.ParamTypes on the
	// inbound path.
	Arguments []any

	// Item is the payload of a StreamItem frame, decoded against
	// Binder.ResultType.
	Item any

	// HasResult and Result describe a non-error Completion; HasResult is
	// false for an empty completion (a successful call with no return
	// value).
	HasResult bool
	Result    any

	// Error is set on a failed Completion.
	Error string

	// BindingError records a parameter- or result-decoding failure the
	// Protocol chose to attach to the message rather than fail the whole
	// batch with.
	BindingError error
}

// Protocol is the wire codec collaborator: it parses a byte batch into
// zero or more Messages against a Binder, and serializes one Message to
// bytes. It is external to the connection core.
type Protocol interface {
	// Name identifies the protocol for the negotiation frame (e.g. "json").
	Name() string

	// TransferFormat is the transfer format this protocol requires of
	// its transport.
	TransferFormat() TransferFormat

	// WriteMessage serializes one message to its wire form.
	WriteMessage(msg *Message) ([]byte, error)

	// ParseMessages parses a byte batch into zero or more messages,
	// consulting binder for expected types. A parse failure is a soft
	// fault: the caller logs it and drops the whole batch.
	ParseMessages(data []byte, binder Binder) ([]*Message, error)
}
