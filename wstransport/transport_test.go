package wstransport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/loneosama/signalr"
)

func TestTransportSendAndReceiveRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	serverRecv := make(chan []byte, 1)

	srv := httptest.NewServer(httptestHandler(t, &upgrader, serverRecv))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	tr := New(url)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tr.Start(ctx, signalr.TransferFormatText); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tr.Close()

	received := make(chan []byte, 1)
	tr.SetReceiveHandler(func(data []byte) { received <- data })

	if err := tr.Send(ctx, []byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case got := <-serverRecv:
		if string(got) != "hello" {
			t.Fatalf("server received: got %q, want %q", got, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for server to receive the frame")
	}

	select {
	case got := <-received:
		if string(got) != "echo:hello" {
			t.Fatalf("client received: got %q, want %q", got, "echo:hello")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the client to receive the echo")
	}
}

func TestTransportHasInherentKeepAliveReflectsPingInterval(t *testing.T) {
	if (New("ws://unused")).HasInherentKeepAlive() {
		t.Fatal("default transport should not claim inherent keep-alive")
	}
	if !(New("ws://unused", WithPingInterval(time.Second))).HasInherentKeepAlive() {
		t.Fatal("transport with a ping interval should claim inherent keep-alive")
	}
}

func httptestHandler(t *testing.T, upgrader *websocket.Upgrader, recv chan []byte) *httptestServer {
	return &httptestServer{t: t, upgrader: upgrader, recv: recv}
}

// httptestServer is a tiny echo server: it reads one text frame, stashes it
// for the test to observe, and writes back "echo:<payload>".
type httptestServer struct {
	t        *testing.T
	upgrader *websocket.Upgrader
	recv     chan []byte
}

func (s *httptestServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.t.Errorf("server upgrade: %v", err)
		return
	}
	defer conn.Close()

	_, data, err := conn.ReadMessage()
	if err != nil {
		return
	}
	s.recv <- data
	_ = conn.WriteMessage(websocket.TextMessage, []byte("echo:"+string(data)))
}
