package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fasthttp/websocket"

	"roomchat-ws/internal/domain"
)

// Handle is one transport session. Its ID is unique per Manager and grows
// with every Open, so callers can tell a superseded handle from the current one.
type Handle struct {
	id         uint64
	roomID     string
	handler    Handler
	writeWait  time.Duration
	pingPeriod time.Duration
	pongWait   time.Duration

	mu      sync.Mutex
	state   domain.SocketState
	conn    Conn
	closing bool

	writeMux sync.Mutex
	cancel   context.CancelFunc
}

func (h *Handle) ID() uint64 {
	if h == nil {
		return 0
	}
	return h.id
}

func (h *Handle) RoomID() string {
	if h == nil {
		return ""
	}
	return h.roomID
}

func (h *Handle) State() domain.SocketState {
	if h == nil {
		return domain.SocketIdle
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Send writes one text frame. Nothing is written unless the handle is open.
func (h *Handle) Send(frame []byte) error {
	if h == nil {
		return ErrNotConnected
	}
	h.mu.Lock()
	conn := h.conn
	open := h.state == domain.SocketOpen && !h.closing
	h.mu.Unlock()
	if !open {
		return ErrNotConnected
	}
	if err := h.safeWrite(conn, websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("send on handle %d: %w", h.id, err)
	}
	return nil
}

// Close tears the handle down. It is safe on a nil, never-opened or already
// closed handle and always leaves the state Closed.
func (h *Handle) Close() error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		return nil
	}
	h.closing = true
	h.state = domain.SocketClosed
	conn := h.conn
	h.mu.Unlock()

	h.cancel()
	if conn == nil {
		return nil
	}

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := h.safeWrite(conn, websocket.CloseMessage, closeMsg); err != nil {
		log.Printf("transport: handle %d close frame: %v", h.id, err)
	}
	// Closing the conn unblocks the reader.
	if err := conn.Close(); err != nil {
		log.Printf("transport: handle %d close: %v", h.id, err)
	}
	return nil
}

func (h *Handle) run(ctx context.Context, dialer Dialer, target string, stop func() bool) {
	defer h.cancel()
	defer stop()

	conn, err := dialer.Dial(ctx, target)
	if err != nil {
		if h.fail(err) {
			h.handler.OnError(h, err)
		}
		h.handler.OnClose(h)
		return
	}

	if h.pingPeriod > 0 {
		// A peer that stops answering pings fails the next read.
		if err := h.armReadDeadline(conn); err != nil {
			log.Printf("transport: handle %d read deadline: %v", h.id, err)
		}
		conn.SetPongHandler(func(string) error { return h.armReadDeadline(conn) })
	}

	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		_ = conn.Close()
		h.handler.OnClose(h)
		return
	}
	h.conn = conn
	h.state = domain.SocketOpen
	h.mu.Unlock()

	log.Printf("transport: handle %d open for room %s", h.id, h.roomID)
	h.handler.OnOpen(h)

	if h.pingPeriod > 0 {
		go h.pingLoop(ctx, conn)
	}

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if h.isClosing() {
				break
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("transport: handle %d closed by server", h.id)
				h.setState(domain.SocketClosed)
				break
			}
			if h.fail(err) {
				h.handler.OnError(h, err)
			}
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if h.isClosing() {
			continue
		}
		h.handler.OnFrame(h, data)
	}

	_ = conn.Close()
	h.handler.OnClose(h)
}

func (h *Handle) pingLoop(ctx context.Context, conn Conn) {
	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.safeWrite(conn, websocket.PingMessage, nil); err != nil {
				log.Printf("transport: handle %d ping: %v", h.id, err)
				return
			}
		}
	}
}

func (h *Handle) armReadDeadline(conn Conn) error {
	return conn.SetReadDeadline(time.Now().Add(h.pongWait))
}

// safeWrite serializes writers and recovers from a panicking connection.
func (h *Handle) safeWrite(conn Conn, messageType int, data []byte) (err error) {
	h.writeMux.Lock()
	defer h.writeMux.Unlock()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("transport: recovered from panic writing on handle %d: %v", h.id, r)
			err = fmt.Errorf("write panicked: %v", r)
		}
	}()

	if err := conn.SetWriteDeadline(time.Now().Add(h.writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(messageType, data)
}

// fail records a transport error and reports whether it should be surfaced.
// Errors caused by a local Close are not.
func (h *Handle) fail(err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing || errors.Is(err, context.Canceled) {
		if !h.closing {
			h.state = domain.SocketClosed
		}
		return false
	}
	h.state = domain.SocketErrored
	log.Printf("transport: handle %d error: %v", h.id, err)
	return true
}

func (h *Handle) setState(state domain.SocketState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closing {
		h.state = state
	}
}

func (h *Handle) isClosing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closing
}
