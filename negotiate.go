package signalr

import "encoding/json"

// negotiateMessage is the single frame emitted once at Start, before any
// invocation. It is serialized by a dedicated writer distinct from the
// Protocol codec, since its shape (a bare {"protocol": ...} record) is the
// same across every protocol and predates the codec being selected.
type negotiateMessage struct {
	Protocol string `json:"protocol"`
}

func marshalNegotiate(protocolName string) ([]byte, error) {
	return json.Marshal(negotiateMessage{Protocol: protocolName})
}
