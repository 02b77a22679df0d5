// Package frametest provides an in-memory signalr.Connection double for
// tests: it records every frame handed to Send and lets the test push
// bytes into the registered receive handler, the way the teacher keeps a
// small, dependency-free fake around its own transport-agnostic pieces.
package frametest

import (
	"context"
	"sync"

	"github.com/loneosama/signalr"
)

// Connection is a signalr.Connection double. The zero value is not
// ready to use; construct with New.
type Connection struct {
	mu             sync.Mutex
	sent           [][]byte
	receiveHandler func([]byte)
	closedHandler  func(error)
	keepAlive      bool
	startErr       error
	sendErr        error
	closeOnce      sync.Once
	closedWith     error
}

// New returns a Connection double. keepAlive controls what
// HasInherentKeepAlive reports.
func New(keepAlive bool) *Connection {
	return &Connection{keepAlive: keepAlive}
}

// FailStart makes every Start call return err.
func (c *Connection) FailStart(err error) { c.startErr = err }

// FailSend makes every Send call return err.
func (c *Connection) FailSend(err error) { c.sendErr = err }

func (c *Connection) Start(ctx context.Context, format signalr.TransferFormat) error {
	return c.startErr
}

func (c *Connection) Send(ctx context.Context, data []byte) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	frame := make([]byte, len(data))
	copy(frame, data)
	c.sent = append(c.sent, frame)
	return nil
}

func (c *Connection) SetReceiveHandler(h func([]byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receiveHandler = h
}

func (c *Connection) SetClosedHandler(h func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closedHandler = h
}

func (c *Connection) HasInherentKeepAlive() bool { return c.keepAlive }

func (c *Connection) Close() error {
	c.fireClosed(nil)
	return nil
}

func (c *Connection) Abort(err error) {
	c.fireClosed(err)
}

func (c *Connection) fireClosed(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closedWith = err
		h := c.closedHandler
		c.mu.Unlock()
		if h != nil {
			h(err)
		}
	})
}

// Deliver feeds data into the registered receive handler, simulating an
// inbound byte batch from the server. It panics if no handler is
// registered yet (a test bug, not a runtime condition).
func (c *Connection) Deliver(data []byte) {
	c.mu.Lock()
	h := c.receiveHandler
	c.mu.Unlock()
	if h == nil {
		panic("frametest: Deliver before SetReceiveHandler")
	}
	h(data)
}

// SentFrames returns a copy of every frame handed to Send, in order.
func (c *Connection) SentFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

// ClosedWith returns the error the connection was first closed or aborted
// with (nil for a clean close, or if it hasn't closed yet); later Close or
// Abort calls do not change it.
func (c *Connection) ClosedWith() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closedWith
}
