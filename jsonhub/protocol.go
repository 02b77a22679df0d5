// Package jsonhub is a reference signalr.Protocol implementation: it
// serializes messages as JSON records, one per frame, modeled on the
// wire-message shapes of golang.org/x/tools' jsonrpc2_v2 codec
// (ID/Request/Response carrying json.RawMessage payloads) generalized to
// the six message kinds a hub connection exchanges.
package jsonhub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"reflect"

	"github.com/loneosama/signalr"
)

const (
	wireInvocation       = 1
	wireStreamItem       = 2
	wireCompletion       = 3
	wireStreamInvocation = 4
	wireCancelInvocation = 5
	wirePing             = 6
)

type wireMessage struct {
	Type         int               `json:"type"`
	InvocationID string            `json:"invocationId,omitempty"`
	Target       string            `json:"target,omitempty"`
	Arguments    []json.RawMessage `json:"arguments,omitempty"`
	Item         json.RawMessage   `json:"item,omitempty"`
	Result       json.RawMessage   `json:"result,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// Protocol is the JSON signalr.Protocol. The zero value is ready to use.
type Protocol struct{}

// New returns a ready-to-use JSON Protocol.
func New() *Protocol { return &Protocol{} }

func (*Protocol) Name() string { return "json" }

func (*Protocol) TransferFormat() signalr.TransferFormat { return signalr.TransferFormatText }

func (*Protocol) WriteMessage(msg *signalr.Message) ([]byte, error) {
	w := wireMessage{InvocationID: msg.InvocationID, Target: msg.Target}
	switch msg.Type {
	case signalr.MessageTypeInvocation:
		w.Type = wireInvocation
	case signalr.MessageTypeStreamInvocation:
		w.Type = wireStreamInvocation
	case signalr.MessageTypeCancelInvocation:
		w.Type = wireCancelInvocation
	case signalr.MessageTypePing:
		w.Type = wirePing
	case signalr.MessageTypeStreamItem:
		w.Type = wireStreamItem
		raw, err := json.Marshal(msg.Item)
		if err != nil {
			return nil, fmt.Errorf("jsonhub: marshal item: %w", err)
		}
		w.Item = raw
	case signalr.MessageTypeCompletion:
		w.Type = wireCompletion
		switch {
		case msg.Error != "":
			w.Error = msg.Error
		case msg.HasResult:
			raw, err := json.Marshal(msg.Result)
			if err != nil {
				return nil, fmt.Errorf("jsonhub: marshal result: %w", err)
			}
			w.Result = raw
		}
	default:
		return nil, fmt.Errorf("jsonhub: %w: unknown message type %d", signalr.ErrProtocolViolation, msg.Type)
	}

	if msg.Arguments != nil {
		args := make([]json.RawMessage, len(msg.Arguments))
		for i, a := range msg.Arguments {
			raw, err := json.Marshal(a)
			if err != nil {
				return nil, fmt.Errorf("jsonhub: marshal argument %d: %w", i, err)
			}
			args[i] = raw
		}
		w.Arguments = args
	}

	return json.Marshal(w)
}

func (*Protocol) ParseMessages(data []byte, binder signalr.Binder) ([]*signalr.Message, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var out []*signalr.Message
	for {
		var w wireMessage
		if err := dec.Decode(&w); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("jsonhub: parse: %w", err)
		}

		m := &signalr.Message{InvocationID: w.InvocationID, Target: w.Target}
		switch w.Type {
		case wireInvocation:
			m.Type = signalr.MessageTypeInvocation
			args, err := decodeArgs(w.Arguments, binder.ParamTypes(w.Target))
			if err != nil {
				m.BindingError = err
			} else {
				m.Arguments = args
			}
		case wireStreamInvocation:
			m.Type = signalr.MessageTypeStreamInvocation
			args, err := decodeArgs(w.Arguments, binder.ParamTypes(w.Target))
			if err != nil {
				m.BindingError = err
			} else {
				m.Arguments = args
			}
		case wireStreamItem:
			m.Type = signalr.MessageTypeStreamItem
			item, err := decodeOne(w.Item, binder.ResultType(w.InvocationID))
			if err != nil {
				return nil, fmt.Errorf("jsonhub: decode stream item: %w", err)
			}
			m.Item = item
		case wireCompletion:
			m.Type = signalr.MessageTypeCompletion
			switch {
			case w.Error != "":
				m.Error = w.Error
			case len(w.Result) > 0:
				res, err := decodeOne(w.Result, binder.ResultType(w.InvocationID))
				if err != nil {
					return nil, fmt.Errorf("jsonhub: decode result: %w", err)
				}
				m.HasResult = true
				m.Result = res
			}
		case wireCancelInvocation:
			m.Type = signalr.MessageTypeCancelInvocation
		case wirePing:
			m.Type = signalr.MessageTypePing
		default:
			return nil, fmt.Errorf("jsonhub: %w: unknown wire type %d", signalr.ErrProtocolViolation, w.Type)
		}
		out = append(out, m)
	}
	return out, nil
}

func decodeArgs(raw []json.RawMessage, paramTypes []reflect.Type) ([]any, error) {
	args := make([]any, len(raw))
	for i, r := range raw {
		var t reflect.Type
		if i < len(paramTypes) {
			t = paramTypes[i]
		}
		v, err := decodeOne(r, t)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args[i] = v
	}
	return args, nil
}

// decodeOne decodes raw against t, or into a generic any when t is nil
// ("unknown" per Binder's contract, e.g. no handler registered yet, or no
// pending invocation for this id).
func decodeOne(raw json.RawMessage, t reflect.Type) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if t == nil {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
	ptr := reflect.New(t)
	if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}
