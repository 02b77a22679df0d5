package signalr

import (
	"reflect"
	"sync"
)

// pendingCallTable maps invocation id to InvocationRequest. Every insert
// and lookup observes the table's "active" signal under the same mutex
// that guards the map, so no entry can be added after shutdown has begun
// (spec: PendingCallTable invariant b).
type pendingCallTable struct {
	mu      sync.Mutex
	active  bool
	entries map[string]*InvocationRequest
}

func newPendingCallTable() *pendingCallTable {
	return &pendingCallTable{
		active:  true,
		entries: make(map[string]*InvocationRequest),
	}
}

// reset reopens the table for a fresh session, used at the start of a new
// Start() after a prior shutdown.
func (t *pendingCallTable) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = true
	t.entries = make(map[string]*InvocationRequest)
}

// insert registers req under id. It fails with ErrConnectionTerminated if
// shutdown has begun, or ErrDuplicateInvocationID if id is already in use
// (spec: PendingCallTable invariant a).
func (t *pendingCallTable) insert(id string, req *InvocationRequest) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return ErrConnectionTerminated
	}
	if _, found := t.entries[id]; found {
		return ErrDuplicateInvocationID
	}
	t.entries[id] = req
	return nil
}

// remove removes and returns the entry for id, if any. Only the caller
// that observes ok==true "owns" the entry's terminal resolution.
func (t *pendingCallTable) remove(id string) (*InvocationRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, found := t.entries[id]
	if found {
		delete(t.entries, id)
	}
	return req, found
}

// lookup returns the entry for id without removing it, used for
// non-terminal frames (StreamItem).
func (t *pendingCallTable) lookup(id string) (*InvocationRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, found := t.entries[id]
	return req, found
}

// resultType implements the Binder half of "resultTypeFor": the pending
// entry's declared result type, or nil ("unknown") if no such entry.
func (t *pendingCallTable) resultType(id string) reflect.Type {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, found := t.entries[id]
	if !found {
		return nil
	}
	return req.resultType
}

// isActive reports whether the table still accepts inserts.
func (t *pendingCallTable) isActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// shutdown cancels the active signal and atomically detaches every pending
// entry, returning them for the caller to resolve and dispose outside this
// lock. It is idempotent: a second call returns nil.
func (t *pendingCallTable) shutdown() []*InvocationRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return nil
	}
	t.active = false
	entries := make([]*InvocationRequest, 0, len(t.entries))
	for _, req := range t.entries {
		entries = append(entries, req)
	}
	t.entries = make(map[string]*InvocationRequest)
	return entries
}
