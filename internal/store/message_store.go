package store

import (
	"sync"

	"roomchat-ws/internal/domain"
)

// Observer receives a snapshot of the log after each mutation. Observers
// must not mutate the store they are subscribed to.
type Observer func(messages []domain.Message)

// MessageStore is the ordered, deduplicated message log of one room.
type MessageStore struct {
	// notifyMu serializes mutate+notify so observers see mutations in order.
	notifyMu sync.Mutex

	mu        sync.RWMutex
	messages  []domain.Message
	seen      map[string]struct{}
	observers []subscriber
	nextObs   int
}

type subscriber struct {
	id int
	fn Observer
}

func NewMessageStore() *MessageStore {
	return &MessageStore{
		messages:  make([]domain.Message, 0),
		seen:      make(map[string]struct{}),
	}
}

// ReplaceAll overwrites the log with a history snapshot. Repeated ids inside
// the snapshot keep their first occurrence.
func (s *MessageStore) ReplaceAll(messages []domain.Message) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.messages = make([]domain.Message, 0, len(messages))
	s.seen = make(map[string]struct{}, len(messages))
	for _, msg := range messages {
		if s.isDuplicate(msg) {
			continue
		}
		s.add(msg)
	}
	snapshot, observers := s.snapshotLocked()
	s.mu.Unlock()

	notify(observers, snapshot)
}

// Append adds msg to the end of the log. It reports false, and notifies no
// one, when a message with the same id is already present.
func (s *MessageStore) Append(msg domain.Message) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.isDuplicate(msg) {
		s.mu.Unlock()
		return false
	}
	s.add(msg)
	snapshot, observers := s.snapshotLocked()
	s.mu.Unlock()

	notify(observers, snapshot)
	return true
}

func (s *MessageStore) Clear() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.messages = make([]domain.Message, 0)
	s.seen = make(map[string]struct{})
	snapshot, observers := s.snapshotLocked()
	s.mu.Unlock()

	notify(observers, snapshot)
}

// Messages returns a copy of the log in arrival order.
func (s *MessageStore) Messages() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMessages(s.messages)
}

func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func (s *MessageStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[id]
	return ok
}

// Subscribe registers fn and returns a function that removes it.
func (s *MessageStore) Subscribe(fn Observer) func() {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers = append(s.observers, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.removeObserver(id)
			s.mu.Unlock()
		})
	}
}

// Messages without an id cannot be matched and are never duplicates.
func (s *MessageStore) isDuplicate(msg domain.Message) bool {
	if msg.ID == "" {
		return false
	}
	_, ok := s.seen[msg.ID]
	return ok
}

func (s *MessageStore) add(msg domain.Message) {
	s.messages = append(s.messages, msg)
	if msg.ID != "" {
		s.seen[msg.ID] = struct{}{}
	}
}

func (s *MessageStore) snapshotLocked() ([]domain.Message, []Observer) {
	if len(s.observers) == 0 {
		return nil, nil
	}
	observers := make([]Observer, len(s.observers))
	for i, sub := range s.observers {
		observers[i] = sub.fn
	}
	return cloneMessages(s.messages), observers
}

func (s *MessageStore) removeObserver(id int) {
	for i, sub := range s.observers {
		if sub.id == id {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return
		}
	}
}

func notify(observers []Observer, snapshot []domain.Message) {
	for _, fn := range observers {
		fn(cloneMessages(snapshot))
	}
}

func cloneMessages(messages []domain.Message) []domain.Message {
	out := make([]domain.Message, len(messages))
	copy(out, messages)
	return out
}
