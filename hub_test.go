package signalr_test

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/loneosama/signalr"
	"github.com/loneosama/signalr/internal/frametest"
	"github.com/loneosama/signalr/jsonhub"
)

func newHarness(t *testing.T) (*signalr.HubConnection, *frametest.Connection) {
	t.Helper()
	conn := frametest.New(true) // inherent keep-alive: no watchdog noise in most scenarios
	factory := func(context.Context) (signalr.Connection, error) { return conn, nil }
	hub := signalr.New(factory, jsonhub.New())
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return hub, conn
}

func rawFrame(t *testing.T, v map[string]any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	return data
}

func lastSentInvocationID(t *testing.T, conn *frametest.Connection) string {
	t.Helper()
	frames := conn.SentFrames()
	if len(frames) == 0 {
		t.Fatalf("no frames sent")
	}
	var w struct {
		InvocationID string `json:"invocationId"`
	}
	if err := json.Unmarshal(frames[len(frames)-1], &w); err != nil {
		t.Fatalf("unmarshal sent frame: %v", err)
	}
	return w.InvocationID
}

func TestHubConnectionHappyUnaryInvoke(t *testing.T) {
	hub, conn := newHarness(t)
	defer hub.Dispose()

	done := make(chan struct{})
	var result any
	var resultErr error
	go func() {
		result, resultErr = hub.Invoke(context.Background(), "Add", reflect.TypeOf(float64(0)), 2, 3)
		close(done)
	}()

	var id string
	waitFor(t, func() bool {
		frames := conn.SentFrames()
		if len(frames) == 0 {
			return false
		}
		id = lastSentInvocationID(t, conn)
		return id != ""
	})

	conn.Deliver(rawFrame(t, map[string]any{"type": 3, "invocationId": id, "result": 5}))

	<-done
	if resultErr != nil {
		t.Fatalf("Invoke error: %v", resultErr)
	}
	if result != float64(5) {
		t.Fatalf("Invoke result: got %v, want 5", result)
	}
}

func TestHubConnectionErrorCompletion(t *testing.T) {
	hub, conn := newHarness(t)
	defer hub.Dispose()

	done := make(chan struct{})
	var resultErr error
	go func() {
		_, resultErr = hub.Invoke(context.Background(), "Add", nil, 2, 3)
		close(done)
	}()

	var id string
	waitFor(t, func() bool {
		if len(conn.SentFrames()) == 0 {
			return false
		}
		id = lastSentInvocationID(t, conn)
		return id != ""
	})

	conn.Deliver(rawFrame(t, map[string]any{"type": 3, "invocationId": id, "error": "boom"}))

	<-done
	if resultErr == nil || resultErr.Error() != "boom" {
		t.Fatalf("Invoke error: got %v, want \"boom\"", resultErr)
	}
}

func TestHubConnectionStreamCancelStopsLocallyAndSendsCancelFrame(t *testing.T) {
	hub, conn := newHarness(t)
	defer hub.Dispose()

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := hub.Stream(ctx, "Counter", reflect.TypeOf(float64(0)))
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var id string
	waitFor(t, func() bool {
		if len(conn.SentFrames()) == 0 {
			return false
		}
		id = lastSentInvocationID(t, conn)
		return id != ""
	})

	conn.Deliver(rawFrame(t, map[string]any{"type": 2, "invocationId": id, "item": 1}))
	if v := <-stream.Items(); v != float64(1) {
		t.Fatalf("stream item: got %v, want 1", v)
	}

	cancel()

	waitFor(t, func() bool {
		for _, f := range conn.SentFrames() {
			var w struct {
				Type int `json:"type"`
			}
			_ = json.Unmarshal(f, &w)
			if w.Type == 5 {
				return true
			}
		}
		return false
	})

	// The item channel closes once cancellation is observed, with no error:
	// a later server completion for this id would simply be dropped.
	if _, ok := <-stream.Items(); ok {
		t.Fatalf("stream channel should be closed after cancel")
	}
	if stream.Err() != nil {
		t.Fatalf("stream.Err() after local cancel: got %v, want nil", stream.Err())
	}

	// A stray completion arriving after cancellation finds no pending entry
	// and is silently dropped rather than panicking or reopening the stream.
	conn.Deliver(rawFrame(t, map[string]any{"type": 3, "invocationId": id, "result": nil}))
}

func TestHubConnectionServerInitiatedInvocation(t *testing.T) {
	hub, conn := newHarness(t)
	defer hub.Dispose()

	var mu sync.Mutex
	var gotArgs []any
	hub.On("Notify", []reflect.Type{reflect.TypeOf("")}, func(args []any, state any) {
		mu.Lock()
		gotArgs = args
		mu.Unlock()
	}, nil)

	conn.Deliver(rawFrame(t, map[string]any{"type": 1, "target": "Notify", "arguments": []any{"hello"}}))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(gotArgs) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	if gotArgs[0] != "hello" {
		t.Fatalf("handler args: got %v, want [hello]", gotArgs)
	}
}

func TestHubConnectionServerTimeoutAbortsAndFansOutShutdown(t *testing.T) {
	conn := frametest.New(false) // no inherent keep-alive: the watchdog is armed
	factory := func(context.Context) (signalr.Connection, error) { return conn, nil }
	hub := signalr.New(factory, jsonhub.New(), signalr.WithServerTimeout(20*time.Millisecond))
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var closedErr error
	closedFired := make(chan struct{})
	hub.OnClosed(func(err error) {
		closedErr = err
		close(closedFired)
	})

	invokeDone := make(chan error, 1)
	go func() {
		_, err := hub.Invoke(context.Background(), "Add", nil, 1, 2)
		invokeDone <- err
	}()

	select {
	case <-closedFired:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Closed to fire")
	}
	if !errors.Is(closedErr, signalr.ErrServerTimeout) {
		t.Fatalf("closed error: got %v, want ErrServerTimeout", closedErr)
	}

	select {
	case err := <-invokeDone:
		if !errors.Is(err, signalr.ErrServerTimeout) {
			t.Fatalf("pending invoke error: got %v, want ErrServerTimeout", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pending invoke to fail")
	}
}

func TestHubConnectionStopFansOutShutdownToAllPending(t *testing.T) {
	hub, conn := newHarness(t)

	const n = 5
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := hub.Invoke(context.Background(), "Add", nil, 1)
			results <- err
		}()
	}

	// Start already sent the negotiation frame, so n invocations make n+1.
	waitFor(t, func() bool { return len(conn.SentFrames()) == n+1 })

	closedCount := 0
	var mu sync.Mutex
	closedDone := make(chan struct{})
	hub.OnClosed(func(err error) {
		mu.Lock()
		closedCount++
		mu.Unlock()
		close(closedDone)
	})

	if err := hub.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	<-closedDone
	for i := 0; i < n; i++ {
		// A clean Stop shuts down with a nil error, so pending invokes are
		// resolved with no error rather than failed.
		if err := <-results; err != nil {
			t.Fatalf("pending invoke %d: got %v after clean Stop, want nil", i, err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if closedCount != 1 {
		t.Fatalf("Closed fired %d times, want exactly 1", closedCount)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within timeout")
}
