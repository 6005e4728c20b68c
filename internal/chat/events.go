package chat

import (
	"log"

	"roomchat-ws/internal/codec"
	"roomchat-ws/internal/domain"
	"roomchat-ws/internal/transport"
)

// events receives transport callbacks for a session. Every callback first
// checks that it comes from the session's current handle.
type events struct {
	s *Session
}

func (e *events) OnOpen(h *transport.Handle) {
	s := e.s
	s.eventMu.Lock()
	defer s.eventMu.Unlock()

	s.mu.Lock()
	if !s.isCurrentLocked(h) {
		s.mu.Unlock()
		return
	}
	s.state = domain.SessionLive
	s.backoff.Reset()
	s.attempts = 0
	s.mu.Unlock()

	s.emitState(domain.SessionLive)
}

func (e *events) OnFrame(h *transport.Handle, data []byte) {
	event, err := codec.Decode(data)
	if err != nil {
		log.Printf("chat: ignoring frame on handle %d: %v", h.ID(), err)
		return
	}

	s := e.s
	s.eventMu.Lock()
	defer s.eventMu.Unlock()

	s.mu.Lock()
	if !s.isCurrentLocked(h) {
		s.mu.Unlock()
		log.Printf("chat: dropped %s from superseded handle %d", event.EventName(), h.ID())
		return
	}

	switch ev := event.(type) {
	case codec.HistoryEvent:
		s.historyApplied = true
		pending := s.pending
		s.pending = nil
		s.mu.Unlock()

		s.store.ReplaceAll(ev.Messages)
		for _, msg := range pending {
			s.store.Append(msg)
		}
		if len(pending) > 0 {
			log.Printf("chat: replayed %d messages received before history", len(pending))
		}

	case codec.ReceivedEvent:
		if !s.historyApplied {
			s.pending = append(s.pending, ev.Message)
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		if !s.store.Append(ev.Message) {
			log.Printf("chat: duplicate message %s ignored", ev.Message.ID)
		}

	default:
		s.mu.Unlock()
		log.Printf("chat: ignoring unknown event %q", event.EventName())
	}
}

func (e *events) OnError(h *transport.Handle, err error) {
	s := e.s
	s.eventMu.Lock()
	defer s.eventMu.Unlock()

	s.mu.Lock()
	if !s.isCurrentLocked(h) {
		s.mu.Unlock()
		return
	}
	s.state = domain.SessionErrored
	s.mu.Unlock()

	log.Printf("chat: transport error in room %s: %v", h.RoomID(), err)
	s.emitState(domain.SessionErrored)
}

func (e *events) OnClose(h *transport.Handle) {
	s := e.s
	s.eventMu.Lock()
	defer s.eventMu.Unlock()

	s.mu.Lock()
	if !s.isCurrentLocked(h) {
		s.mu.Unlock()
		return
	}
	state := domain.SessionClosed
	if h.State() == domain.SocketErrored {
		state = domain.SessionErrored
	}
	s.state = state
	s.handle = nil
	s.pending = nil
	s.scheduleReconnectLocked()
	s.mu.Unlock()

	s.emitState(state)
}
