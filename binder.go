package signalr

import "reflect"

// Binder is the callback interface a Protocol codec uses to discover
// expected types while parsing an inbound frame: the parameter types of an
// incoming server-invocation, and the declared result type of a pending
// completion. HubConnection implements Binder by bridging HandlerRegistry
// and the pending-call table.
type Binder interface {
	// ParamTypes returns the declared parameter types for method, taken
	// from the first registered handler. It returns nil if no handlers
	// are registered; the Protocol decides whether that is acceptable.
	ParamTypes(method string) []reflect.Type

	// ResultType returns the declared result type for a pending
	// invocation id, or nil ("unknown") if no such invocation is
	// pending, in which case the Protocol should discard the value.
	ResultType(invocationID string) reflect.Type
}

// ParamTypes implements Binder.
func (h *HubConnection) ParamTypes(method string) []reflect.Type {
	return h.registry.ParamTypes(method)
}

// ResultType implements Binder.
func (h *HubConnection) ResultType(invocationID string) reflect.Type {
	return h.pending.resultType(invocationID)
}
