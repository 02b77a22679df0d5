package signalr

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

// HubConnection is a long-lived bidirectional RPC-over-messaging session:
// a client may invoke named server methods and await a single result or a
// lazy stream of items, send fire-and-forget notifications, and register
// local handlers the server may invoke at any time. It multiplexes all of
// that over one Connection using one Protocol codec.
//
// A HubConnection is built once via New and is safe for concurrent use
// from many goroutines.
type HubConnection struct {
	connectionFactory ConnectionFactory
	protocol          Protocol
	registry          *HandlerRegistry
	pending           *pendingCallTable
	idGen             idSource
	loggers           []Logger
	telemetry         *telemetry

	// connMu is the connection critical section: it serializes lifecycle
	// transitions (Start/Stop/Dispose) and all outbound sends. It is
	// acquired before pending's own lock whenever both are needed
	// (connection-lock -> pending-calls-lock, never the reverse).
	connMu    sync.Mutex
	started   bool
	disposed  bool
	transport Connection
	watchdog  *watchdog

	serverTimeoutNs int64 // guarded by connMu; copied into each new watchdog at Start, whose own copy setTimeout updates atomically

	closedMu       sync.Mutex
	closedHandlers map[uint64]func(error)
	nextClosedID   uint64

	shutdownOnce sync.Once
}

// New constructs a HubConnection. connectionFactory creates a fresh
// Connection each time Start is called; protocol is the wire codec. The
// connection is Unstarted until Start succeeds.
func New(connectionFactory ConnectionFactory, protocol Protocol, opts ...Option) *HubConnection {
	o := newOptions(opts...)
	h := &HubConnection{
		connectionFactory: connectionFactory,
		protocol:          protocol,
		registry:          newHandlerRegistry(),
		pending:           newPendingCallTable(),
		idGen:             o.idSource,
		loggers:           o.loggers,
		telemetry:         newTelemetry(o.tracerProvider, o.meterProvider),
		closedHandlers:    make(map[uint64]func(error)),
	}
	h.serverTimeoutNs = int64(o.serverTimeout)
	return h
}

// SetServerTimeout changes the server-idle watchdog window. The change
// takes effect at the watchdog's next rearm, not immediately.
func (h *HubConnection) SetServerTimeout(d time.Duration) {
	h.connMu.Lock()
	h.serverTimeoutNs = int64(d)
	wd := h.watchdog
	h.connMu.Unlock()
	if wd != nil {
		wd.setTimeout(d)
	}
}

// On registers callback to be invoked whenever the server calls method.
// paramTypes declares the expected argument types for the Protocol's
// benefit; only the first handler registered for a given method has its
// paramTypes consulted (spec design note 9c). Drop the returned
// Subscription to deregister.
func (h *HubConnection) On(method string, paramTypes []reflect.Type, callback HandlerFunc, state any) Subscription {
	return h.registry.Register(method, paramTypes, callback, state)
}

// OnClosed registers a callback invoked exactly once, with the
// terminating error (nil on a clean Stop/Dispose), when the connection
// shuts down. It returns a token to deregister the callback.
func (h *HubConnection) OnClosed(callback func(err error)) Subscription {
	h.closedMu.Lock()
	defer h.closedMu.Unlock()
	id := h.nextClosedID
	h.nextClosedID++
	h.closedHandlers[id] = callback
	return Subscription{list: nil, id: id, closed: h}
}

// Start connects the transport, performs the negotiation handshake, and
// arms the server-timeout watchdog. It fails if the connection is
// disposed or already started.
func (h *HubConnection) Start(ctx context.Context) error {
	h.connMu.Lock()
	defer h.connMu.Unlock()

	if h.disposed {
		return ErrDisposed
	}
	if h.started {
		return ErrAlreadyStarted
	}

	conn, err := h.connectionFactory(ctx)
	if err != nil {
		return err
	}
	// Register callbacks on the newly created transport before starting
	// it (spec design note 9a).
	conn.SetReceiveHandler(h.onReceive)
	conn.SetClosedHandler(h.onTransportClosed)

	if err := conn.Start(ctx, h.protocol.TransferFormat()); err != nil {
		return err
	}

	needed := !conn.HasInherentKeepAlive()
	h.pending.reset()
	h.watchdog = newWatchdog(needed, time.Duration(h.serverTimeoutNs), h.onWatchdogFired)

	payload, err := marshalNegotiate(h.protocol.Name())
	if err != nil {
		_ = conn.Close()
		return err
	}
	start := time.Now()
	err = conn.Send(ctx, payload)
	fanOutLog(h.loggers, LogEntry{Direction: DirectionOutbound, Method: "negotiate", Elapsed: time.Since(start), Err: err})
	if err != nil {
		_ = conn.Close()
		return err
	}

	h.transport = conn
	h.started = true
	h.watchdog.rearm()
	return nil
}

// Stop closes the transport, which drives the shutdown protocol with a nil
// error (every pending invocation is resolved with a nil error and no
// result, the Closed event fires once). It fails if the connection is
// disposed or not connected.
func (h *HubConnection) Stop() error {
	h.connMu.Lock()
	if h.disposed {
		h.connMu.Unlock()
		return ErrDisposed
	}
	if !h.started || h.transport == nil {
		h.connMu.Unlock()
		return ErrNotConnected
	}
	transport := h.transport
	h.connMu.Unlock()
	return transport.Close()
}

// Dispose marks the connection disposed and tears down the transport if
// present. It is idempotent: a second call is a no-op.
func (h *HubConnection) Dispose() error {
	h.connMu.Lock()
	if h.disposed {
		h.connMu.Unlock()
		return nil
	}
	h.disposed = true
	transport := h.transport
	h.connMu.Unlock()

	if transport != nil {
		return transport.Close()
	}
	// Never started, or already torn down: still run shutdown once so
	// resources are released and Closed observers (if any were attached
	// before Start) see a terminal notification.
	h.shutdown(nil)
	return nil
}

// Send invokes method as a fire-and-forget notification: no invocation id
// is allocated and nothing is registered in the pending-call table.
func (h *HubConnection) Send(ctx context.Context, method string, args ...any) error {
	if !h.isStarted() {
		return ErrNotStarted
	}
	msg := &Message{Type: MessageTypeInvocation, Target: method, Arguments: args}
	data, err := h.protocol.WriteMessage(msg)
	if err != nil {
		return err
	}
	return h.transmit(ctx, data, "", method)
}

// Invoke calls method and awaits its single result. resultType declares
// the expected result type for the Protocol's benefit; it may be nil.
// Cancelling ctx fails the returned error with ctx.Err() and removes the
// invocation locally; it does not notify the server, so the server's
// eventual completion, if any, is silently discarded.
func (h *HubConnection) Invoke(ctx context.Context, method string, resultType reflect.Type, args ...any) (any, error) {
	if !h.isStarted() {
		return nil, ErrNotStarted
	}

	id := h.idGen.next()
	req := newUnaryInvocationRequest(id, resultType)
	if err := h.pending.insert(id, req); err != nil {
		return nil, err
	}

	msg := &Message{Type: MessageTypeInvocation, InvocationID: id, Target: method, Arguments: args}
	data, err := h.protocol.WriteMessage(msg)
	if err != nil {
		h.pending.remove(id)
		return nil, err
	}
	if err := h.transmit(ctx, data, id, method); err != nil {
		h.pending.remove(id)
		return nil, err
	}

	select {
	case <-req.done:
		return req.result, req.err
	case <-ctx.Done():
		if _, ok := h.pending.remove(id); ok {
			req.dispose()
			return nil, ctx.Err()
		}
		// Already resolved by the receive path, which is guaranteed to
		// close req.done shortly; wait for the real result rather than
		// racily reporting a spurious cancellation.
		<-req.done
		return req.result, req.err
	}
}

// Stream calls method and returns a StreamResult yielding the server's
// stream items. itemType declares the expected item type for the
// Protocol's benefit; it may be nil. Cancelling ctx sends a best-effort
// cancel-invocation frame (if the session is still active), removes the
// invocation locally, and closes the item channel with a nil error.
func (h *HubConnection) Stream(ctx context.Context, method string, itemType reflect.Type, args ...any) (*StreamResult, error) {
	if !h.isStarted() {
		return nil, ErrNotStarted
	}

	id := h.idGen.next()
	req := newStreamInvocationRequest(id, itemType)
	if err := h.pending.insert(id, req); err != nil {
		return nil, err
	}

	msg := &Message{Type: MessageTypeStreamInvocation, InvocationID: id, Target: method, Arguments: args}
	data, err := h.protocol.WriteMessage(msg)
	if err != nil {
		h.pending.remove(id)
		return nil, err
	}
	if err := h.transmit(ctx, data, id, method); err != nil {
		h.pending.remove(id)
		return nil, err
	}

	go h.watchStreamCancel(ctx, id, req)
	return req.streamResult(), nil
}

func (h *HubConnection) watchStreamCancel(ctx context.Context, id string, req *InvocationRequest) {
	select {
	case <-ctx.Done():
	case <-req.streamDone:
		return
	}
	entry, ok := h.pending.remove(id)
	if !ok {
		// Already resolved (by a server Completion, or by shutdown); no
		// cancel frame to send, nothing left to terminate.
		return
	}
	if h.pending.isActive() {
		cancel := &Message{Type: MessageTypeCancelInvocation, InvocationID: id}
		if data, err := h.protocol.WriteMessage(cancel); err == nil {
			_ = h.transmit(context.Background(), data, id, "")
		}
	}
	entry.completeStream(nil)
	entry.dispose()
}

// transmit serializes nothing itself (the caller already has bytes); it
// acquires the writer lock, re-checks disposed/connected, and hands the
// frame to the transport. The lock is held for the full call so outbound
// bytes from concurrent callers are never interleaved.
func (h *HubConnection) transmit(ctx context.Context, data []byte, invocationID, method string) error {
	h.connMu.Lock()
	defer h.connMu.Unlock()

	if h.disposed {
		return ErrDisposed
	}
	if h.transport == nil {
		return ErrNotConnected
	}

	spanCtx, span := h.telemetry.startSpan(ctx, method, DirectionOutbound, invocationID)
	start := time.Now()
	err := h.transport.Send(spanCtx, data)
	endSpan(span, err)
	if err == nil {
		h.telemetry.recordSent(spanCtx, len(data))
	}
	fanOutLog(h.loggers, LogEntry{
		Direction:    DirectionOutbound,
		InvocationID: invocationID,
		Method:       method,
		Elapsed:      time.Since(start),
		Err:          err,
	})
	return err
}

// onReceive is the transport's inbound byte-batch callback.
func (h *HubConnection) onReceive(data []byte) {
	if wd := h.getWatchdog(); wd != nil {
		wd.rearm()
	}
	h.telemetry.recordReceived(context.Background(), len(data))

	msgs, err := h.protocol.ParseMessages(data, h)
	if err != nil {
		// Soft fault: the transport guarantees framing, so a codec error
		// is scoped to this one batch. Log and drop it.
		fanOutLog(h.loggers, LogEntry{Direction: DirectionInbound, Err: err})
		return
	}

	for _, msg := range msgs {
		h.dispatch(msg)
	}
}

func (h *HubConnection) dispatch(msg *Message) {
	_, span := h.telemetry.startSpan(context.Background(), msg.Target, DirectionInbound, msg.InvocationID)
	var dispatchErr error
	defer func() { endSpan(span, dispatchErr) }()

	switch msg.Type {
	case MessageTypeInvocation:
		if msg.BindingError != nil {
			fanOutLog(h.loggers, LogEntry{Direction: DirectionInbound, Method: msg.Target, Err: fmt.Errorf("argument binding: %w", msg.BindingError)})
			return
		}
		entries := h.registry.Snapshot(msg.Target)
		if entries == nil {
			fanOutLog(h.loggers, LogEntry{Direction: DirectionInbound, Method: msg.Target, Err: fmt.Errorf("no handler registered for %q", msg.Target)})
			return
		}
		for _, entry := range entries {
			h.invokeHandlerSafely(entry, msg.Arguments)
		}

	case MessageTypeCompletion:
		entry, ok := h.pending.remove(msg.InvocationID)
		if !ok {
			fanOutLog(h.loggers, LogEntry{Direction: DirectionInbound, InvocationID: msg.InvocationID, Err: fmt.Errorf("completion for unknown invocation %q", msg.InvocationID)})
			return
		}
		if msg.Error != "" {
			dispatchErr = xerrors.New(msg.Error)
			entry.fail(dispatchErr)
		} else if msg.HasResult {
			entry.succeed(msg.Result)
		} else {
			entry.succeed(nil)
		}
		entry.dispose()

	case MessageTypeStreamItem:
		entry, ok := h.pending.lookup(msg.InvocationID)
		if !ok {
			fanOutLog(h.loggers, LogEntry{Direction: DirectionInbound, InvocationID: msg.InvocationID, Err: fmt.Errorf("stream item for unknown invocation %q", msg.InvocationID)})
			return
		}
		if entry.isCompleted() {
			// Already resolved locally (cancellation racing this item);
			// nowhere for the item to go, and not worth logging as a fault.
			break
		}
		if !entry.streamItem(msg.Item) {
			fanOutLog(h.loggers, LogEntry{Direction: DirectionInbound, InvocationID: msg.InvocationID, Err: fmt.Errorf("stream item dropped: channel closed")})
		}

	case MessageTypePing:
		// No action beyond the watchdog rearm already performed in
		// onReceive.

	default:
		dispatchErr = ErrProtocolViolation
		h.abort(ErrProtocolViolation)
	}

	fanOutLog(h.loggers, LogEntry{Direction: DirectionInbound, InvocationID: msg.InvocationID, Method: msg.Target, Err: dispatchErr})
}

func (h *HubConnection) invokeHandlerSafely(entry *invocationHandler, args []any) {
	defer func() {
		if r := recover(); r != nil {
			fanOutLog(h.loggers, LogEntry{Err: fmt.Errorf("handler panic: %v", r)})
		}
	}()
	entry.callback(args, entry.state)
}

func (h *HubConnection) onWatchdogFired() {
	fanOutLog(h.loggers, LogEntry{Err: ErrServerTimeout})
	h.abort(ErrServerTimeout)
}

func (h *HubConnection) onTransportClosed(err error) {
	h.shutdown(err)
}

// abort forces the transport closed with err; the resulting closed
// callback drives shutdown. It also directly triggers shutdown, since
// shutdownOnce makes the two paths idempotent and some Connection
// implementations deliver Abort's closed callback asynchronously.
func (h *HubConnection) abort(err error) {
	transport := h.getTransport()
	if transport != nil {
		transport.Abort(err)
	}
	h.shutdown(err)
}

// shutdown runs the shutdown protocol exactly once: cancel the active
// signal and detach every pending invocation under the pending-calls
// lock, resolve and dispose each of them (concurrently — the table's
// invariants only require each be notified exactly once, not in any
// order), then fire the Closed event exactly once.
func (h *HubConnection) shutdown(err error) {
	h.shutdownOnce.Do(func() {
		h.connMu.Lock()
		h.started = false
		wd := h.watchdog
		h.transport = nil
		h.connMu.Unlock()

		if wd != nil {
			wd.dispose()
		}

		entries := h.pending.shutdown()
		if len(entries) > 0 {
			g := new(errgroup.Group)
			for _, entry := range entries {
				entry := entry
				g.Go(func() error {
					entry.fail(err)
					entry.dispose()
					return nil
				})
			}
			_ = g.Wait()
		}

		fanOutLog(h.loggers, LogEntry{Err: err})
		h.fireClosed(err)
	})
}

func (h *HubConnection) dropClosed(id uint64) {
	h.closedMu.Lock()
	defer h.closedMu.Unlock()
	delete(h.closedHandlers, id)
}

func (h *HubConnection) fireClosed(err error) {
	h.closedMu.Lock()
	callbacks := make([]func(error), 0, len(h.closedHandlers))
	for _, cb := range h.closedHandlers {
		callbacks = append(callbacks, cb)
	}
	h.closedMu.Unlock()

	for _, cb := range callbacks {
		h.invokeClosedSafely(cb, err)
	}
}

func (h *HubConnection) invokeClosedSafely(cb func(error), err error) {
	defer func() {
		if r := recover(); r != nil {
			fanOutLog(h.loggers, LogEntry{Err: fmt.Errorf("closed handler panic: %v", r)})
		}
	}()
	cb(err)
}

func (h *HubConnection) isStarted() bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.started && !h.disposed && h.transport != nil
}

func (h *HubConnection) getTransport() Connection {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.transport
}

func (h *HubConnection) getWatchdog() *watchdog {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.watchdog
}
