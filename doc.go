// Package signalr implements the client-side core of a bidirectional
// RPC-over-messaging protocol: a long-lived session in which a client may
// invoke named server methods and await a single result or a lazy stream
// of items, send fire-and-forget notifications, and register local
// handlers the server may invoke at any time. All of this is multiplexed
// over one Connection (an ordered, reliable, full-duplex byte transport)
// using one Protocol (a wire codec) — both supplied by the caller.
//
// The transport and codec are the only required collaborators; New builds
// a HubConnection from a ConnectionFactory and a Protocol:
//
//	hub := signalr.New(wstransport.Factory("wss://example/hub"), jsonhub.New())
//	if err := hub.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer hub.Dispose()
//
//	sum, err := hub.Invoke(ctx, "Add", reflect.TypeOf(0), 2, 3)
//
// Reconnection, backpressure negotiation beyond what the transport
// provides, persistence of invocations across reconnects, and
// server-initiated streaming into the client are all out of scope.
package signalr
