package signalr

import (
	"context"
	"testing"

	"github.com/loneosama/signalr/internal/frametest"
)

// fixedIDSource always returns the same id, letting a test force the
// duplicate-invocation-id guard deterministically instead of racing two
// goroutines against the real generator.
type fixedIDSource struct{ id string }

func (f fixedIDSource) next() string { return f.id }

func TestHubConnectionRejectsDuplicateInvocationID(t *testing.T) {
	conn := frametest.New(true)
	factory := func(context.Context) (Connection, error) { return conn, nil }
	hub := New(factory, stubProtocol{}, withIDSource(fixedIDSource{id: "dup"}))
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer hub.Dispose()

	if err := hub.pending.insert("dup", newUnaryInvocationRequest("dup", nil)); err != nil {
		t.Fatalf("seed insert: %v", err)
	}

	_, err := hub.Invoke(context.Background(), "Add", nil, 1, 2)
	if err != ErrDuplicateInvocationID {
		t.Fatalf("Invoke with colliding id: got %v, want ErrDuplicateInvocationID", err)
	}
}

// stubProtocol is the minimal Protocol a white-box test needs: it never
// actually round-trips bytes, since this test only exercises the pending
// table's guard before any frame is written.
type stubProtocol struct{}

func (stubProtocol) Name() string                   { return "stub" }
func (stubProtocol) TransferFormat() TransferFormat { return TransferFormatText }
func (stubProtocol) WriteMessage(msg *Message) ([]byte, error) {
	return []byte("{}"), nil
}
func (stubProtocol) ParseMessages(data []byte, binder Binder) ([]*Message, error) {
	return nil, nil
}
