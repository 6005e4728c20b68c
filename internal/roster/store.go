// Package roster keeps the member list shown next to a room's chat.
package roster

import (
	"sync"

	"roomchat-ws/internal/domain"
)

type Observer func(members []domain.Member)

// Store holds the roster of the mounted room.
type Store struct {
	mu        sync.RWMutex
	members   []domain.Member
	observers []Observer
}

func NewStore() *Store {
	return &Store{members: make([]domain.Member, 0)}
}

func (s *Store) SetMembers(members []domain.Member) {
	s.mu.Lock()
	s.members = append(make([]domain.Member, 0, len(members)), members...)
	s.mu.Unlock()
	s.notify()
}

// AddMember appends m, or replaces the entry with the same id.
func (s *Store) AddMember(m domain.Member) {
	s.mu.Lock()
	replaced := false
	for i := range s.members {
		if s.members[i].ID == m.ID {
			s.members[i] = m
			replaced = true
			break
		}
	}
	if !replaced {
		s.members = append(s.members, m)
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Store) RemoveMember(id string) {
	s.mu.Lock()
	kept := s.members[:0:0]
	for _, m := range s.members {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	s.members = kept
	s.mu.Unlock()
	s.notify()
}

func (s *Store) Clear() {
	s.SetMembers(nil)
}

func (s *Store) Members() []domain.Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Member(nil), s.members...)
}

// ByRole returns the members holding role, in roster order.
func (s *Store) ByRole(role domain.Role) []domain.Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Member
	for _, m := range s.members {
		if m.Role == role {
			out = append(out, m)
		}
	}
	return out
}

func (s *Store) Subscribe(fn Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *Store) notify() {
	s.mu.RLock()
	observers := append([]Observer(nil), s.observers...)
	s.mu.RUnlock()

	for _, fn := range observers {
		fn(s.Members())
	}
}
