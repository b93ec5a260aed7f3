package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, topic string) *Client {
	return &Client{
		hub:   hub,
		conn:  nil,
		topic: topic,
		send:  make(chan []byte, sendBufferSize),
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, "session_a")
	c2 := mockClient(hub, "session_b")

	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}
	if got := hub.TopicCount("session_a"); got != 1 {
		t.Fatalf("expected 1 client on session_a, got %d", got)
	}

	hub.Unregister(c1)

	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}
	if got := hub.TopicCount("session_a"); got != 0 {
		t.Fatalf("expected empty topic, got %d", got)
	}

	hub.Unregister(c2)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestDoubleUnregister(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub, "session_a")
	hub.Register(c)
	hub.Unregister(c)
	// Should not panic
	hub.Unregister(c)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestBroadcastIsScopedToTopic(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, "session_a")
	c2 := mockClient(hub, "session_a")
	other := mockClient(hub, "session_b")
	for _, c := range []*Client{c1, c2, other} {
		hub.Register(c)
	}

	hub.Broadcast("session_a", NewMessage("token_rotated", "session_a", map[string]any{"token": "abc"}))

	for _, c := range []*Client{c1, c2} {
		select {
		case data := <-c.send:
			var got Message
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Type != "token_rotated" {
				t.Errorf("expected type token_rotated, got %s", got.Type)
			}
			if got.Session != "session_a" {
				t.Errorf("expected session session_a, got %s", got.Session)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for message")
		}
	}

	select {
	case <-other.send:
		t.Error("client on another topic received the message")
	default:
	}
}

func TestBroadcastEmptyHub(t *testing.T) {
	hub := NewHub(slog.Default())
	// Should not panic
	hub.Broadcast("session_a", NewMessage("mark_recorded", "session_a", nil))
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())

	c := mockClient(hub, "session_a")
	hub.Register(c)

	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast("session_a", NewMessage("fill", "session_a", i))
	}

	// This should drop the message, not panic or block
	hub.Broadcast("session_a", NewMessage("dropped", "session_a", nil))

	if got := len(c.send); got != sendBufferSize {
		t.Errorf("expected %d buffered messages, got %d", sendBufferSize, got)
	}

	hub.Unregister(c)
}

func TestCloseTopic(t *testing.T) {
	hub := NewHub(slog.Default())

	c := mockClient(hub, "session_a")
	keep := mockClient(hub, "session_b")
	hub.Register(c)
	hub.Register(keep)

	hub.CloseTopic("session_a", NewMessage("session_ended", "session_a", nil))

	data, ok := <-c.send
	if !ok {
		t.Fatal("expected final message before close")
	}
	var got Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != "session_ended" {
		t.Errorf("final message type = %s, want session_ended", got.Type)
	}
	if _, ok := <-c.send; ok {
		t.Error("expected send channel to be closed")
	}

	if got := hub.TopicCount("session_a"); got != 0 {
		t.Errorf("expected closed topic to be empty, got %d", got)
	}
	if got := hub.TopicCount("session_b"); got != 1 {
		t.Errorf("other topic should keep its client, got %d", got)
	}

	// Unregister after close must not double-close the channel.
	hub.Unregister(c)
}

func TestSessionTopic(t *testing.T) {
	if got := SessionTopic(42); got != "session:42" {
		t.Errorf("SessionTopic(42) = %q", got)
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(slog.Default())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := mockClient(hub, "session_a")
			hub.Register(c)
			hub.Broadcast("session_a", NewMessage("concurrent", "session_a", nil))
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}()
	}

	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}

func TestSubscribeQueuesSnapshotFirst(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub, "session_a")

	var wg sync.WaitGroup
	hub.Subscribe(context.Background(), c, func(context.Context) (Message, bool) {
		// A broadcast racing the snapshot must wait for it.
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Broadcast("session_a", NewMessage(TypeTokenRotated, "session_a", nil))
		}()
		time.Sleep(10 * time.Millisecond)
		return NewMessage("snapshot", "session_a", nil), false
	})
	wg.Wait()

	for _, want := range []string{"snapshot", TypeTokenRotated} {
		select {
		case data := <-c.send:
			var msg Message
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if msg.Type != want {
				t.Fatalf("message type = %s, want %s", msg.Type, want)
			}
		default:
			t.Fatalf("missing %s message", want)
		}
	}
	if got := hub.TopicCount("session_a"); got != 1 {
		t.Errorf("topic clients = %d, want 1", got)
	}
}

func TestSubscribeFinalSnapshot(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub, "session_a")

	hub.Subscribe(context.Background(), c, func(context.Context) (Message, bool) {
		return NewMessage(TypeSessionEnded, "session_a", nil), true
	})

	if got := hub.TopicCount("session_a"); got != 0 {
		t.Errorf("topic clients = %d, want 0", got)
	}
	if _, ok := <-c.send; !ok {
		t.Fatal("expected the final message before close")
	}
	if _, ok := <-c.send; ok {
		t.Error("expected send channel to be closed")
	}
	// Should not panic
	hub.Unregister(c)
}
