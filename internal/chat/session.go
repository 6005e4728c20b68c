// Package chat is the entry point a chat view uses: bind it to a room and a
// token, observe the message log, send text.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"roomchat-ws/internal/auth"
	"roomchat-ws/internal/codec"
	"roomchat-ws/internal/domain"
	"roomchat-ws/internal/store"
	"roomchat-ws/internal/transport"
)

var (
	ErrEmptyMessage  = errors.New("message is empty")
	ErrNotConnected  = transport.ErrNotConnected
	ErrSessionClosed = errors.New("chat session is closed")
)

// Opener is the connection manager as the session sees it.
type Opener interface {
	Open(ctx context.Context, roomID, token string, h transport.Handler) (*transport.Handle, error)
}

type identity struct {
	roomID string
	token  string
	userID string
}

func (id identity) complete() bool {
	return id.roomID != "" && id.token != "" && id.userID != ""
}

// Session binds one chat view to at most one live transport.
type Session struct {
	opener  Opener
	users   auth.Provider
	store   *store.MessageStore
	onState func(domain.SessionState)

	reconnect   bool
	maxAttempts int
	newBackoff  func() *backoff.ExponentialBackOff

	// eventMu serializes every store mutation (transport callbacks, teardown)
	// with the handle switch, so a superseded handle can never write.
	eventMu sync.Mutex

	mu             sync.Mutex
	ctx            context.Context
	id             identity
	handle         *transport.Handle
	epoch          uint64
	state          domain.SessionState
	historyApplied bool
	pending        []domain.Message
	backoff        *backoff.ExponentialBackOff
	attempts       int
	retry          *time.Timer
	closed         bool
}

func NewSession(opener Opener, users auth.Provider, opts ...Option) *Session {
	s := &Session{
		opener: opener,
		users:  users,
		store:  store.NewMessageStore(),
		state:  domain.SessionIdle,
		newBackoff: func() *backoff.ExponentialBackOff {
			return backoff.NewExponentialBackOff()
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.backoff = s.newBackoff()
	return s
}

// Store is the session's message log. Observers must not call Bind, Unbind
// or Close synchronously.
func (s *Session) Store() *store.MessageStore {
	return s.store
}

func (s *Session) Messages() []domain.Message {
	return s.store.Messages()
}

func (s *Session) Subscribe(fn store.Observer) func() {
	return s.store.Subscribe(fn)
}

func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RoomID is the room the session is currently bound to, if any.
func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id.roomID
}

// Bind points the session at (roomID, token) for the current user. A blank
// input or a signed-out user tears the session down to Idle. A changed
// identity closes the old transport before the new one is opened; an
// unchanged identity with a connecting or live transport is a no-op.
func (s *Session) Bind(ctx context.Context, roomID, token string) error {
	next := identity{roomID: strings.TrimSpace(roomID), token: strings.TrimSpace(token)}
	if user, ok := s.users.CurrentUser(); ok {
		next.userID = user.ID
	}

	s.eventMu.Lock()
	defer s.eventMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if next == s.id && (s.state == domain.SessionConnecting || s.state == domain.SessionLive) {
		s.mu.Unlock()
		return nil
	}
	old := s.detachLocked(domain.SessionIdle)
	s.mu.Unlock()

	s.teardown(old)

	if !next.complete() {
		s.emitState(domain.SessionIdle)
		return nil
	}

	s.mu.Lock()
	s.ctx = ctx
	s.id = next
	s.backoff.Reset()
	s.attempts = 0
	err := s.openLocked()
	state := s.state
	s.mu.Unlock()

	s.emitState(state)
	return err
}

// Unbind is the unmount transition: the transport is closed and the log
// cleared. The session can be bound again.
func (s *Session) Unbind() {
	s.eventMu.Lock()
	defer s.eventMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	old := s.detachLocked(domain.SessionIdle)
	s.mu.Unlock()

	s.teardown(old)
	s.emitState(domain.SessionIdle)
}

// Close tears the session down for good.
func (s *Session) Close() error {
	s.eventMu.Lock()
	defer s.eventMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	old := s.detachLocked(domain.SessionClosed)
	s.mu.Unlock()

	s.teardown(old)
	s.emitState(domain.SessionClosed)
	return nil
}

// Send transmits a TEXT message.
func (s *Session) Send(text string) error {
	return s.SendTyped(text, domain.MessageTypeText)
}

// SendTyped encodes text with the current user's name and avatar and writes
// it to the live transport. Nothing is written unless the session is Live.
// The log only changes when the server echoes the persisted message.
func (s *Session) SendTyped(text string, messageType domain.MessageType) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	h := s.handle
	live := s.state == domain.SessionLive
	s.mu.Unlock()
	if !live || h == nil {
		log.Printf("chat: dropped send while %s", s.State())
		return ErrNotConnected
	}

	user, _ := s.users.CurrentUser()
	frame, err := codec.EncodeSend(text, messageType, user)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return h.Send(frame)
}

// openLocked opens a transport for s.id. Callers hold eventMu and mu; the
// new handle's callbacks block on eventMu until the switch is complete.
func (s *Session) openLocked() error {
	s.epoch++
	s.historyApplied = false
	s.pending = nil
	s.state = domain.SessionConnecting

	h, err := s.opener.Open(s.ctx, s.id.roomID, s.id.token, &events{s: s})
	if err != nil {
		s.state = domain.SessionErrored
		return fmt.Errorf("open chat transport: %w", err)
	}
	s.handle = h
	log.Printf("chat: session bound to room %s (handle %d)", s.id.roomID, h.ID())
	return nil
}

// detachLocked forgets the current handle and identity and returns the
// handle so it can be closed outside mu.
func (s *Session) detachLocked(state domain.SessionState) *transport.Handle {
	old := s.handle
	s.handle = nil
	s.id = identity{}
	s.epoch++
	s.state = state
	s.historyApplied = false
	s.pending = nil
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
	return old
}

// teardown closes the old transport and clears the log. Callers hold eventMu.
func (s *Session) teardown(old *transport.Handle) {
	if old != nil {
		_ = old.Close()
		log.Printf("chat: closed handle %d for room %s", old.ID(), old.RoomID())
	}
	s.store.Clear()
}

func (s *Session) emitState(state domain.SessionState) {
	if s.onState != nil {
		s.onState(state)
	}
}

func (s *Session) isCurrentLocked(h *transport.Handle) bool {
	return s.handle != nil && s.handle.ID() == h.ID()
}

// scheduleReconnectLocked arms a retry for the current binding. It reports
// false when reconnecting is disabled or exhausted.
func (s *Session) scheduleReconnectLocked() bool {
	if !s.reconnect || s.closed || !s.id.complete() {
		return false
	}
	if s.ctx != nil && s.ctx.Err() != nil {
		return false
	}
	if s.maxAttempts > 0 && s.attempts >= s.maxAttempts {
		log.Printf("chat: giving up on room %s after %d reconnect attempts", s.id.roomID, s.attempts)
		return false
	}
	delay := s.backoff.NextBackOff()
	if delay == backoff.Stop {
		return false
	}
	s.attempts++
	epoch := s.epoch
	log.Printf("chat: reconnecting to room %s in %s (attempt %d)", s.id.roomID, delay, s.attempts)
	s.retry = time.AfterFunc(delay, func() { s.reconnectTo(epoch) })
	return true
}

func (s *Session) reconnectTo(epoch uint64) {
	s.eventMu.Lock()
	defer s.eventMu.Unlock()

	s.mu.Lock()
	if s.closed || s.epoch != epoch || !s.id.complete() {
		s.mu.Unlock()
		return
	}
	s.retry = nil
	s.handle = nil
	// The log stays visible until the new handle's history replaces it.
	err := s.openLocked()
	state := s.state
	s.mu.Unlock()

	if err != nil {
		log.Printf("chat: reconnect to room failed: %v", err)
	}
	s.emitState(state)
}
