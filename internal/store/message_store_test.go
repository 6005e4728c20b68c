package store

import (
	"fmt"
	"testing"

	"roomchat-ws/internal/domain"
)

func msg(id string) domain.Message {
	return domain.Message{ID: id, ChatID: "r1", Content: "content " + id, MessageType: domain.MessageTypeText}
}

func ids(messages []domain.Message) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.ID
	}
	return out
}

func assertIDs(t *testing.T, got []domain.Message, want ...string) {
	t.Helper()
	gotIDs := ids(got)
	if len(gotIDs) != len(want) {
		t.Fatalf("log = %v, want %v", gotIDs, want)
	}
	for i := range want {
		if gotIDs[i] != want[i] {
			t.Fatalf("log = %v, want %v", gotIDs, want)
		}
	}
}

func TestMessageStore_AppendKeepsArrivalOrder(t *testing.T) {
	s := NewMessageStore()

	want := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("m%02d", 19-i)
		want = append(want, id)
		if !s.Append(msg(id)) {
			t.Fatalf("Append(%s) reported duplicate", id)
		}
	}

	assertIDs(t, s.Messages(), want...)
}

func TestMessageStore_ReplaceAll(t *testing.T) {
	s := NewMessageStore()

	s.ReplaceAll([]domain.Message{msg("1"), msg("2")})
	s.Append(msg("3"))
	assertIDs(t, s.Messages(), "1", "2", "3")

	s.ReplaceAll([]domain.Message{msg("4")})
	assertIDs(t, s.Messages(), "4")

	if s.Contains("1") {
		t.Error("replaced message 1 should no longer be tracked")
	}
	if !s.Append(msg("1")) {
		t.Error("Append(1) after replace should be accepted")
	}
}

func TestMessageStore_Dedup(t *testing.T) {
	tests := []struct {
		name    string
		history []domain.Message
		appends []domain.Message
		want    []string
	}{
		{
			name:    "append duplicate of history",
			history: []domain.Message{msg("1"), msg("2")},
			appends: []domain.Message{msg("2"), msg("3")},
			want:    []string{"1", "2", "3"},
		},
		{
			name:    "double delivery",
			appends: []domain.Message{msg("1"), msg("1"), msg("1")},
			want:    []string{"1"},
		},
		{
			name:    "duplicate inside history keeps first",
			history: []domain.Message{msg("1"), msg("2"), msg("1")},
			want:    []string{"1", "2"},
		},
		{
			name:    "messages without id are kept",
			appends: []domain.Message{msg(""), msg("")},
			want:    []string{"", ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMessageStore()
			if tt.history != nil {
				s.ReplaceAll(tt.history)
			}
			for _, m := range tt.appends {
				s.Append(m)
			}
			assertIDs(t, s.Messages(), tt.want...)
		})
	}
}

func TestMessageStore_Clear(t *testing.T) {
	s := NewMessageStore()
	s.ReplaceAll([]domain.Message{msg("1"), msg("2")})

	s.Clear()

	if s.Len() != 0 {
		t.Fatalf("Len() = %d after Clear, want 0", s.Len())
	}
	if !s.Append(msg("1")) {
		t.Error("Append(1) after Clear should be accepted")
	}
}

func TestMessageStore_ObserversNotifiedSynchronously(t *testing.T) {
	s := NewMessageStore()

	var snapshots [][]string
	unsubscribe := s.Subscribe(func(messages []domain.Message) {
		snapshots = append(snapshots, ids(messages))
	})

	s.ReplaceAll([]domain.Message{msg("1")})
	s.Append(msg("2"))
	s.Append(msg("2")) // duplicate, no notification
	s.Clear()

	if len(snapshots) != 3 {
		t.Fatalf("got %d notifications, want 3: %v", len(snapshots), snapshots)
	}
	if len(snapshots[0]) != 1 || len(snapshots[1]) != 2 || len(snapshots[2]) != 0 {
		t.Errorf("snapshots = %v", snapshots)
	}

	unsubscribe()
	unsubscribe()
	s.Append(msg("3"))
	if len(snapshots) != 3 {
		t.Errorf("observer called after unsubscribe")
	}
}

func TestMessageStore_SnapshotsAreIsolated(t *testing.T) {
	s := NewMessageStore()
	s.Append(msg("1"))

	got := s.Messages()
	got[0].Content = "edited"
	_ = append(got, msg("x"))

	if s.Messages()[0].Content != "content 1" {
		t.Error("editing a snapshot changed the store")
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestMessageStore_UnsubscribeReleasesObservers(t *testing.T) {
	s := NewMessageStore()

	var order []string
	keep := func(name string) Observer {
		return func([]domain.Message) { order = append(order, name) }
	}
	unsubA := s.Subscribe(keep("a"))
	for i := 0; i < 1000; i++ {
		s.Subscribe(func([]domain.Message) { t.Error("removed observer notified") })()
	}
	s.Subscribe(keep("b"))
	unsubC := s.Subscribe(keep("c"))
	s.Subscribe(keep("d"))
	unsubC()

	if n := len(s.observers); n != 3 {
		t.Fatalf("len(observers) = %d after churn, want 3", n)
	}

	s.Append(msg("1"))
	unsubA()
	s.Append(msg("2"))

	want := []string{"a", "b", "d", "b", "d"}
	if len(order) != len(want) {
		t.Fatalf("notification order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("notification order = %v, want %v", order, want)
		}
	}
}
