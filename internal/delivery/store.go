package delivery

import (
	"context"
	"sort"
	"sync"

	"roomchat-ws/internal/domain"
)

// HistoryStore keeps the recent messages of each room.
type HistoryStore interface {
	AppendMessage(ctx context.Context, roomID string, msg domain.Message) error
	History(ctx context.Context, roomID string, limit int64) ([]domain.Message, error)
}

// MemberStore keeps room rosters. AddMember keeps an existing entry for the
// same user.
type MemberStore interface {
	AddMember(ctx context.Context, roomID string, m domain.Member) error
	Members(ctx context.Context, roomID string) ([]domain.Member, error)
}

// Publisher hands a persisted message to the fan-out broker.
type Publisher interface {
	Publish(ctx context.Context, msg domain.RoomMessage) error
}

// MemoryStore is the in-process HistoryStore and MemberStore used when no
// Redis is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	limit    int64
	messages map[string][]domain.Message
	members  map[string]map[string]domain.Member
}

func NewMemoryStore(limit int64) *MemoryStore {
	if limit <= 0 {
		limit = 100
	}
	return &MemoryStore{
		limit:    limit,
		messages: make(map[string][]domain.Message),
		members:  make(map[string]map[string]domain.Member),
	}
}

func (m *MemoryStore) AppendMessage(_ context.Context, roomID string, msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := append(m.messages[roomID], msg)
	if over := int64(len(entries)) - m.limit; over > 0 {
		entries = append([]domain.Message(nil), entries[over:]...)
	}
	m.messages[roomID] = entries
	return nil
}

func (m *MemoryStore) History(_ context.Context, roomID string, limit int64) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.messages[roomID]
	if limit > 0 && int64(len(entries)) > limit {
		entries = entries[int64(len(entries))-limit:]
	}
	out := make([]domain.Message, len(entries))
	copy(out, entries)
	return out, nil
}

func (m *MemoryStore) AddMember(_ context.Context, roomID string, member domain.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.members[roomID]
	if !ok {
		room = make(map[string]domain.Member)
		m.members[roomID] = room
	}
	if _, exists := room[member.User.ID]; !exists {
		room[member.User.ID] = member
	}
	return nil
}

func (m *MemoryStore) Members(_ context.Context, roomID string) ([]domain.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Member, 0, len(m.members[roomID]))
	for _, member := range m.members[roomID] {
		out = append(out, member)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User.Name < out[j].User.Name })
	return out, nil
}
