package signalr

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// HandlerFunc is invoked when the server calls a client method registered
// via HubConnection.On. args has already been decoded by the Protocol
// against the ParamTypes declared at registration time; state is the
// opaque value passed to On.
type HandlerFunc func(args []any, state any)

// invocationHandler is the value type owned by a handlerList.
type invocationHandler struct {
	id         uint64
	paramTypes []reflect.Type
	callback   HandlerFunc
	state      any
}

// handlerList is the ordered list of handlers registered for one method
// name. Its identity is stable across registrations and deregistrations:
// a Subscription keeps a reference to the list itself, not to the
// registry's outer map, so dropping a Subscription works even after the
// registry has otherwise forgotten the method (spec: HandlerRegistry
// invariant a).
type handlerList struct {
	mu      sync.Mutex
	entries []*invocationHandler
}

func (l *handlerList) add(h *invocationHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, h)
}

func (l *handlerList) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, h := range l.entries {
		if h.id == id {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return
		}
	}
}

// snapshot returns a copy of the current entries so dispatch can run
// outside the list lock.
func (l *handlerList) snapshot() []*invocationHandler {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return nil
	}
	out := make([]*invocationHandler, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *handlerList) paramTypes() []reflect.Type {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return nil
	}
	// The first registered handler's declared parameter types are
	// authoritative for codec parameter binding (spec: HandlerRegistry
	// invariant b; design note 9c: no merging across handlers).
	return l.entries[0].paramTypes
}

// HandlerRegistry maps method name to an ordered list of handlers.
// Registration and deregistration are safe for concurrent use; each
// method's list has its own lock, independent of the other methods' lists
// and of HubConnection's connection/pending-calls locks.
type HandlerRegistry struct {
	mu     sync.Mutex
	lists  map[string]*handlerList
	nextID uint64
}

func newHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{lists: make(map[string]*handlerList)}
}

func (r *HandlerRegistry) listFor(method string) *handlerList {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lists[method]
	if !ok {
		l = &handlerList{}
		r.lists[method] = l
	}
	return l
}

// Register adds a handler for method and returns a Subscription whose Drop
// removes exactly this entry.
func (r *HandlerRegistry) Register(method string, paramTypes []reflect.Type, callback HandlerFunc, state any) Subscription {
	id := atomic.AddUint64(&r.nextID, 1)
	l := r.listFor(method)
	l.add(&invocationHandler{id: id, paramTypes: paramTypes, callback: callback, state: state})
	return Subscription{list: l, id: id}
}

// Snapshot returns the handlers currently registered for method, or nil if
// there are none.
func (r *HandlerRegistry) Snapshot(method string) []*invocationHandler {
	r.mu.Lock()
	l, ok := r.lists[method]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return l.snapshot()
}

// ParamTypes returns the first registered handler's declared parameter
// types for method, or nil if no handlers are registered.
func (r *HandlerRegistry) ParamTypes(method string) []reflect.Type {
	r.mu.Lock()
	l, ok := r.lists[method]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return l.paramTypes()
}

// Subscription is the token returned by On and OnClosed. Dropping it
// removes exactly the entry it was issued for; dropping an
// already-removed Subscription is a no-op.
type Subscription struct {
	list   *handlerList
	closed *HubConnection
	id     uint64
}

// Drop deregisters the handler (or Closed callback) this Subscription was
// issued for.
func (s Subscription) Drop() {
	switch {
	case s.list != nil:
		s.list.remove(s.id)
	case s.closed != nil:
		s.closed.dropClosed(s.id)
	}
}
