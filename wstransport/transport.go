// Package wstransport is a reference signalr.Connection implementation
// over github.com/gorilla/websocket. WebSocket ping/pong frames already
// keep the connection alive at the transport layer, so once a ping
// interval is configured HasInherentKeepAlive reports true and the
// server-timeout watchdog stays disarmed for this transport.
package wstransport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/loneosama/signalr"
)

// Option configures a Transport built by New.
type Option func(*Transport)

// WithHeader sets extra HTTP headers sent during the WebSocket handshake.
func WithHeader(h http.Header) Option {
	return func(t *Transport) { t.header = h }
}

// WithPingInterval enables periodic ping frames at interval d, which both
// keeps intermediaries from closing an idle socket and makes
// HasInherentKeepAlive report true. Without this option the transport
// relies entirely on the hub connection's own server-timeout watchdog.
func WithPingInterval(d time.Duration) Option {
	return func(t *Transport) { t.pingInterval = d }
}

// WithDialer overrides the *websocket.Dialer used to connect.
func WithDialer(d *websocket.Dialer) Option {
	return func(t *Transport) { t.dialer = d }
}

// Transport is a signalr.Connection backed by one WebSocket connection.
// A Transport is single-use: construct a fresh one per Start, typically
// via a signalr.ConnectionFactory closure.
type Transport struct {
	url          string
	header       http.Header
	dialer       *websocket.Dialer
	pingInterval time.Duration

	conn *websocket.Conn

	writeMu sync.Mutex

	mu             sync.Mutex
	receiveHandler func([]byte)
	closedHandler  func(error)

	closeOnce sync.Once
	stopPing  chan struct{}
}

// New returns a Transport that will dial url when Start is called.
func New(url string, opts ...Option) *Transport {
	t := &Transport{url: url, dialer: websocket.DefaultDialer}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Factory adapts New into a signalr.ConnectionFactory, building a fresh
// Transport for each Start.
func Factory(url string, opts ...Option) signalr.ConnectionFactory {
	return func(ctx context.Context) (signalr.Connection, error) {
		return New(url, opts...), nil
	}
}

func (t *Transport) Start(ctx context.Context, format signalr.TransferFormat) error {
	conn, resp, err := t.dialer.DialContext(ctx, t.url, t.header)
	if err != nil {
		return fmt.Errorf("wstransport: dial: %w", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	t.conn = conn

	if t.pingInterval > 0 {
		conn.SetPongHandler(func(string) error { return nil })
		t.stopPing = make(chan struct{})
		go t.pingLoop()
	}
	go t.readLoop()
	return nil
}

func (t *Transport) pingLoop() {
	ticker := time.NewTicker(t.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.writeMu.Lock()
			err := t.conn.WriteMessage(websocket.PingMessage, nil)
			t.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-t.stopPing:
			return
		}
	}
}

func (t *Transport) readLoop() {
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.fireClosed(err)
			return
		}
		t.mu.Lock()
		h := t.receiveHandler
		t.mu.Unlock()
		if h != nil {
			h(data)
		}
	}
}

func (t *Transport) Send(ctx context.Context, data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *Transport) SetReceiveHandler(h func([]byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.receiveHandler = h
}

func (t *Transport) SetClosedHandler(h func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closedHandler = h
}

func (t *Transport) HasInherentKeepAlive() bool {
	return t.pingInterval > 0
}

func (t *Transport) Close() error {
	t.writeMu.Lock()
	deadline := time.Now().Add(time.Second)
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	t.writeMu.Unlock()
	err := t.conn.Close()
	t.fireClosed(nil)
	return err
}

func (t *Transport) Abort(err error) {
	_ = t.conn.Close()
	t.fireClosed(err)
}

func (t *Transport) fireClosed(err error) {
	t.closeOnce.Do(func() {
		if t.stopPing != nil {
			close(t.stopPing)
		}
		t.mu.Lock()
		h := t.closedHandler
		t.mu.Unlock()
		if h != nil {
			h(err)
		}
	})
}
