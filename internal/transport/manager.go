// Package transport owns the websocket connection of a chat view: one handle
// per (room, token) pair, with its open/error/close lifecycle.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"roomchat-ws/internal/domain"
)

var (
	ErrMissingIdentity = errors.New("room id and token are required")
	ErrNotConnected    = errors.New("transport is not open")
)

const (
	DefaultWriteWait = 10 * time.Second
	DefaultPongWait  = 60 * time.Second
	// Pings must go out well before the peer is declared dead.
	DefaultPingPeriod = (DefaultPongWait * 9) / 10
)

// Handler receives lifecycle callbacks of a handle. Callbacks of one handle
// are delivered from a single goroutine, in transport order. OnClose is
// always the last callback.
type Handler interface {
	OnOpen(h *Handle)
	OnFrame(h *Handle, data []byte)
	OnError(h *Handle, err error)
	OnClose(h *Handle)
}

type Option func(*Manager)

func WithWriteWait(d time.Duration) Option {
	return func(m *Manager) { m.writeWait = d }
}

// WithPingPeriod sets the keep-alive interval; zero disables pings and the
// pong deadline.
func WithPingPeriod(d time.Duration) Option {
	return func(m *Manager) { m.pingPeriod = d }
}

// WithPongWait sets how long the handle waits for a pong before it treats
// the peer as gone. It is raised above the ping period when set too low.
func WithPongWait(d time.Duration) Option {
	return func(m *Manager) { m.pongWait = d }
}

type Manager struct {
	baseURL    string
	dialer     Dialer
	writeWait  time.Duration
	pingPeriod time.Duration
	pongWait   time.Duration
	nextID     atomic.Uint64
}

func NewManager(baseURL string, dialer Dialer, opts ...Option) *Manager {
	m := &Manager{
		baseURL:    strings.TrimRight(baseURL, "/"),
		dialer:     dialer,
		writeWait:  DefaultWriteWait,
		pingPeriod: DefaultPingPeriod,
		pongWait:   DefaultPongWait,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.pingPeriod > 0 && m.pongWait <= m.pingPeriod {
		m.pongWait = (m.pingPeriod * 10) / 9
	}
	return m
}

// URL builds <base>/ws?token=<token>&roomId=<roomId>.
func (m *Manager) URL(roomID, token string) (string, error) {
	u, err := url.Parse(m.baseURL + "/ws")
	if err != nil {
		return "", fmt.Errorf("invalid websocket base url %q: %w", m.baseURL, err)
	}
	q := u.Query()
	q.Set("token", token)
	q.Set("roomId", roomID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Open starts connecting and returns immediately. A blank roomID or token
// establishes nothing and returns ErrMissingIdentity. Cancelling ctx closes
// the handle.
func (m *Manager) Open(ctx context.Context, roomID, token string, handler Handler) (*Handle, error) {
	if strings.TrimSpace(roomID) == "" || strings.TrimSpace(token) == "" {
		return nil, ErrMissingIdentity
	}
	target, err := m.URL(roomID, token)
	if err != nil {
		return nil, err
	}

	hctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		id:         m.nextID.Add(1),
		roomID:     roomID,
		handler:    handler,
		writeWait:  m.writeWait,
		pingPeriod: m.pingPeriod,
		pongWait:   m.pongWait,
		state:      domain.SocketConnecting,
		cancel:     cancel,
	}
	stop := context.AfterFunc(hctx, func() { _ = h.Close() })

	log.Printf("transport: handle %d connecting to room %s", h.id, roomID)
	go h.run(hctx, m.dialer, target, stop)
	return h, nil
}

func redactToken(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Has("token") {
		q.Set("token", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
