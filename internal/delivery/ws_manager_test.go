package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"roomchat-ws/internal/codec"
	"roomchat-ws/internal/domain"
	"roomchat-ws/internal/transport/transporttest"

	"github.com/fasthttp/websocket"
)

type fakeSocket struct {
	in        chan []byte
	closeOnce sync.Once
	closed    chan struct{}

	mu      sync.Mutex
	written [][]byte
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (f *fakeSocket) ReadMessage() (int, []byte, error) {
	select {
	case data := <-f.in:
		return websocket.TextMessage, data, nil
	case <-f.closed:
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
}

func (f *fakeSocket) WriteMessage(_ int, data []byte) error {
	select {
	case <-f.closed:
		return errors.New("socket closed")
	default:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, append([]byte(nil), data...))
	return nil
}

func (f *fakeSocket) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeSocket) events(t *testing.T) []codec.Event {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]codec.Event, 0, len(f.written))
	for _, data := range f.written {
		ev, err := codec.Decode(data)
		if err != nil {
			t.Fatalf("server wrote an undecodable frame %s: %v", data, err)
		}
		out = append(out, ev)
	}
	return out
}

type failingPublisher struct{ calls int }

func (p *failingPublisher) Publish(context.Context, domain.RoomMessage) error {
	p.calls++
	return errors.New("broker down")
}

func sendFrame(t *testing.T, text string) []byte {
	t.Helper()
	data, err := json.Marshal(domain.SendFrame{Text: text, MessageType: domain.MessageTypeText})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func connect(t *testing.T, w *WSManager, roomID string, user domain.User) *fakeSocket {
	t.Helper()
	sock := newFakeSocket()
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.HandleConnection(sock, roomID, user)
	}()
	t.Cleanup(func() {
		sock.Close()
		<-done
	})
	transporttest.Eventually(t, func() bool { return len(sock.events(t)) > 0 }, "history frame")
	return sock
}

func TestWSManager_HistoryThenBroadcast(t *testing.T) {
	mem := NewMemoryStore(10)
	_ = mem.AppendMessage(context.Background(), "r1", domain.Message{ID: "old", Content: "earlier"})
	w := NewWSManager(mem, mem, nil, 10)

	ada := connect(t, w, "r1", domain.User{ID: "u1", Name: "Ada"})
	linus := connect(t, w, "r1", domain.User{ID: "u2", Name: "Linus"})
	other := connect(t, w, "r2", domain.User{ID: "u3", Name: "Grace"})

	history, ok := ada.events(t)[0].(codec.HistoryEvent)
	if !ok || len(history.Messages) != 1 || history.Messages[0].ID != "old" {
		t.Fatalf("first frame = %+v, want history with the stored message", ada.events(t)[0])
	}

	ada.in <- sendFrame(t, "hello")

	for _, sock := range []*fakeSocket{ada, linus} {
		sock := sock
		transporttest.Eventually(t, func() bool { return len(sock.events(t)) == 2 }, "broadcast delivered")
		received, ok := sock.events(t)[1].(codec.ReceivedEvent)
		if !ok {
			t.Fatalf("second frame = %+v, want message:received", sock.events(t)[1])
		}
		if received.Message.Content != "hello" || received.Message.SenderID != "u1" || received.Message.ChatID != "r1" {
			t.Errorf("received = %+v", received.Message)
		}
	}

	time.Sleep(20 * time.Millisecond)
	if n := len(other.events(t)); n != 1 {
		t.Errorf("other room got %d frames, want only its history", n)
	}

	stored, _ := mem.History(context.Background(), "r1", 0)
	if len(stored) != 2 || stored[1].Content != "hello" {
		t.Errorf("stored history = %+v", stored)
	}
}

func TestWSManager_IgnoresBlankAndMalformedFrames(t *testing.T) {
	mem := NewMemoryStore(10)
	w := NewWSManager(mem, mem, nil, 10)
	sock := connect(t, w, "r1", domain.User{ID: "u1"})

	sock.in <- []byte("not json")
	sock.in <- sendFrame(t, "   ")
	sock.in <- sendFrame(t, "real")

	transporttest.Eventually(t, func() bool { return len(sock.events(t)) == 2 }, "one broadcast")
	stored, _ := mem.History(context.Background(), "r1", 0)
	if len(stored) != 1 {
		t.Errorf("stored %d messages, want 1", len(stored))
	}
}

func TestWSManager_PublishFailureDeliversLocally(t *testing.T) {
	mem := NewMemoryStore(10)
	pub := &failingPublisher{}
	w := NewWSManager(mem, mem, pub, 10)
	sock := connect(t, w, "r1", domain.User{ID: "u1"})

	sock.in <- sendFrame(t, "hi")

	transporttest.Eventually(t, func() bool { return len(sock.events(t)) == 2 }, "local delivery")
	if pub.calls != 1 {
		t.Errorf("publisher called %d times, want 1", pub.calls)
	}
}

func TestWSManager_RosterAndConnectionCount(t *testing.T) {
	mem := NewMemoryStore(10)
	w := NewWSManager(mem, mem, nil, 10)

	first := connect(t, w, "r1", domain.User{ID: "u1", Name: "Ada"})
	connect(t, w, "r1", domain.User{ID: "u2", Name: "Linus"})
	connect(t, w, "r1", domain.User{ID: "u1", Name: "Ada"})

	if n := w.GetRoomConnectionCount("r1"); n != 3 {
		t.Errorf("GetRoomConnectionCount() = %d, want 3", n)
	}

	members, _ := mem.Members(context.Background(), "r1")
	if len(members) != 2 {
		t.Fatalf("len(members) = %d, want 2", len(members))
	}
	if members[0].User.ID != "u1" || members[0].Role != domain.RoleAdmin {
		t.Errorf("members[0] = %+v, want the first joiner as admin", members[0])
	}
	if members[1].Role != domain.RoleUser {
		t.Errorf("members[1].Role = %s, want USER", members[1].Role)
	}

	first.Close()
	transporttest.Eventually(t, func() bool { return w.GetRoomConnectionCount("r1") == 2 }, "connection removed")
}

func TestNewMessage(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	sender := domain.User{ID: "u1", Name: "Ada", Image: "ada.png"}

	msg := NewMessage("r1", sender, domain.SendFrame{Text: "hi"}, now)
	if msg.ID == "" || msg.ChatID != "r1" || msg.SenderID != "u1" {
		t.Errorf("NewMessage() identity = %+v", msg)
	}
	if msg.SenderName != "Ada" || msg.SenderAvatar != "ada.png" || msg.MessageType != domain.MessageTypeText {
		t.Errorf("NewMessage() defaults = %+v", msg)
	}
	created, err := msg.CreatedTime()
	if err != nil || !created.Equal(now) {
		t.Errorf("CreatedTime() = %v, %v, want %v", created, err, now)
	}

	named := NewMessage("r1", sender, domain.SendFrame{Text: "hi", SenderName: "Countess"}, now)
	if named.SenderName != "Countess" {
		t.Errorf("SenderName = %q, want the frame's display name", named.SenderName)
	}
}

func TestMemoryStore_HistoryLimit(t *testing.T) {
	mem := NewMemoryStore(3)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d"} {
		_ = mem.AppendMessage(ctx, "r1", domain.Message{ID: id})
	}

	all, _ := mem.History(ctx, "r1", 0)
	if len(all) != 3 || all[0].ID != "b" {
		t.Errorf("History() = %+v, want the newest three", all)
	}
	last, _ := mem.History(ctx, "r1", 1)
	if len(last) != 1 || last[0].ID != "d" {
		t.Errorf("History(1) = %+v", last)
	}
}
