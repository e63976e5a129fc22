package hub

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
)

// fakeConn records writes and blocks reads until closed. When gate is set,
// writes wait on it so tests can back up a client's queue.
type fakeConn struct {
	mu     sync.Mutex
	writes []Message
	closed chan struct{}
	once   sync.Once
	gate   chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{})}
}

func (f *fakeConn) SetReadLimit(int64)                {}
func (f *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}
func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.closed
	return 0, nil, errors.New("closed")
}

func (f *fakeConn) WriteMessage(t int, data []byte) error {
	if f.gate != nil && t != websocket.CloseMessage {
		select {
		case <-f.gate:
		case <-f.closed:
			return errors.New("closed")
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	switch t {
	case websocket.TextMessage:
		f.writes = append(f.writes, NewText(data))
	case websocket.BinaryMessage:
		f.writes = append(f.writes, NewBinary(data))
	}
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) Writes() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.writes...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestBroadcastOrder(t *testing.T) {
	h := New("status", nil)
	go h.Run()
	defer h.Stop()

	conn := newFakeConn()
	client := NewClient(h, conn, NewText([]byte(`{"type":"state"}`)))
	if client == nil {
		t.Fatal("NewClient returned nil")
	}
	go client.Run()

	waitFor(t, func() bool { return h.ClientCount() == 1 })

	if err := h.BroadcastJSON(map[string]bool{"locked": true}); err != nil {
		t.Fatal(err)
	}
	h.BroadcastBinary([]byte{0xff, 0xd8})

	waitFor(t, func() bool { return len(conn.Writes()) == 3 })

	w := conn.Writes()
	if string(w[0].Data) != `{"type":"state"}` {
		t.Errorf("first write = %s, want the direct state message", w[0].Data)
	}
	if w[1].Kind != Text || string(w[1].Data) != `{"locked":true}` {
		t.Errorf("second write = %+v", w[1])
	}
	if w[2].Kind != Binary {
		t.Errorf("third write kind = %v, want Binary", w[2].Kind)
	}
}

func TestRegistrationOrderedWithBroadcasts(t *testing.T) {
	h := New("status", nil)
	go h.Run()
	defer h.Stop()

	// Before any client exists; the initial snapshot already covers it.
	h.Broadcast(NewText([]byte("before")))

	conn := newFakeConn()
	client := NewClient(h, conn, NewText([]byte("snapshot")))
	h.Broadcast(NewText([]byte("after-1")))
	h.Broadcast(NewText([]byte("after-2")))
	go client.Run()

	waitFor(t, func() bool { return len(conn.Writes()) == 3 })
	time.Sleep(20 * time.Millisecond)

	var got []string
	for _, w := range conn.Writes() {
		got = append(got, string(w.Data))
	}
	want := []string{"snapshot", "after-1", "after-2"}
	if len(got) != len(want) {
		t.Fatalf("writes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("writes = %v, want %v", got, want)
		}
	}
}

func TestInitialMessagesExceedBuffer(t *testing.T) {
	h := New("status", nil, WithBuffer(1))
	go h.Run()
	defer h.Stop()

	conn := newFakeConn()
	client := NewClient(h, conn, NewText([]byte("a")), NewText([]byte("b")))
	if client == nil {
		t.Fatal("NewClient returned nil")
	}
	go client.Run()
	waitFor(t, func() bool { return len(conn.Writes()) == 2 })
	conn.Close()
}

func TestEncodeJSONError(t *testing.T) {
	h := New("status", nil)
	if err := h.BroadcastJSON(make(chan int)); err == nil {
		t.Error("expected marshal error")
	}
}

func TestDropOldestKeepsClient(t *testing.T) {
	h := New("camera", nil, WithPolicy(DropOldest), WithBuffer(1))
	go h.Run()
	defer h.Stop()

	conn := newFakeConn()
	conn.gate = make(chan struct{})
	client := NewClient(h, conn)
	go client.Run()
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	for i := range 5 {
		h.BroadcastBinary([]byte{byte(i)})
	}
	waitFor(t, func() bool { return h.Dropped() > 0 })

	if h.ClientCount() != 1 {
		t.Fatalf("client count = %d, want 1", h.ClientCount())
	}
	if h.Evicted() != 0 {
		t.Errorf("evicted = %d, want 0", h.Evicted())
	}

	close(conn.gate)
	waitFor(t, func() bool {
		w := conn.Writes()
		return len(w) > 0 && w[len(w)-1].Data[0] == 4
	})
}

func TestDropClientEvicts(t *testing.T) {
	h := New("status", nil, WithBuffer(1))
	go h.Run()
	defer h.Stop()

	conn := newFakeConn()
	conn.gate = make(chan struct{})
	client := NewClient(h, conn)
	go client.Run()
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	for i := range 5 {
		h.BroadcastBinary([]byte{byte(i)})
	}
	waitFor(t, func() bool { return h.ClientCount() == 0 })

	if h.Evicted() != 1 {
		t.Errorf("evicted = %d, want 1", h.Evicted())
	}
	conn.Close()
}

func TestUnregisterOnDisconnect(t *testing.T) {
	h := New("status", nil)
	go h.Run()
	defer h.Stop()

	conn := newFakeConn()
	go NewClient(h, conn).Run()
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	conn.Close()
	waitFor(t, func() bool { return h.ClientCount() == 0 })
}

func TestStop(t *testing.T) {
	h := New("status", nil)
	go h.Run()
	waitFor(t, h.IsRunning)

	h.Stop()
	h.Stop()
	waitFor(t, func() bool { return !h.IsRunning() })

	if c := NewClient(h, newFakeConn()); c != nil {
		t.Error("NewClient after Stop should return nil")
	}
}
