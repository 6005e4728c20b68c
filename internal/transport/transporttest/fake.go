// Package transporttest provides an in-memory websocket transport for tests.
package transporttest

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/fasthttp/websocket"

	"roomchat-ws/internal/transport"
)

const waitTimeout = 2 * time.Second

type inbound struct {
	messageType int
	data        []byte
	err         error
}

// Conn is the client end of a fake connection. The test plays the server
// through Push, Drop and RemoteClose.
type Conn struct {
	URL string

	frames  chan inbound
	closeCh chan struct{}
	rearm   chan struct{}
	once    sync.Once

	mu       sync.Mutex
	written  [][]byte
	control  []int
	deadline time.Time
	pong     func(string) error
	silent   bool
}

func NewConn(url string) *Conn {
	return &Conn{
		URL:     url,
		frames:  make(chan inbound, 64),
		closeCh: make(chan struct{}),
		rearm:   make(chan struct{}, 1),
	}
}

// Push delivers a server text frame.
func (c *Conn) Push(data []byte) {
	c.frames <- inbound{messageType: websocket.TextMessage, data: data}
}

// Silence makes the peer stop answering pings while writes keep
// succeeding, as a half-open connection does.
func (c *Conn) Silence() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.silent = true
}

// Drop fails the connection with err.
func (c *Conn) Drop(err error) {
	c.frames <- inbound{err: err}
}

// RemoteClose makes the server close the connection normally.
func (c *Conn) RemoteClose() {
	c.frames <- inbound{err: &websocket.CloseError{Code: websocket.CloseNormalClosure}}
}

// ReadMessage blocks for the next pushed frame, honouring the read deadline.
func (c *Conn) ReadMessage() (int, []byte, error) {
	for {
		c.mu.Lock()
		deadline := c.deadline
		c.mu.Unlock()

		var expired <-chan time.Time
		var timer *time.Timer
		if !deadline.IsZero() {
			timer = time.NewTimer(time.Until(deadline))
			expired = timer.C
		}

		select {
		case f := <-c.frames:
			stopTimer(timer)
			return f.messageType, f.data, f.err
		case <-c.closeCh:
			stopTimer(timer)
			return 0, nil, net.ErrClosed
		case <-expired:
			return 0, nil, fmt.Errorf("read: %w", os.ErrDeadlineExceeded)
		case <-c.rearm:
			stopTimer(timer)
		}
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

func (c *Conn) WriteMessage(messageType int, data []byte) error {
	if c.Closed() {
		return net.ErrClosed
	}
	c.mu.Lock()
	if messageType == websocket.TextMessage {
		c.written = append(c.written, append([]byte(nil), data...))
	} else {
		c.control = append(c.control, messageType)
	}
	pong := c.pong
	answer := messageType == websocket.PingMessage && !c.silent
	c.mu.Unlock()

	if answer && pong != nil {
		return pong(string(data))
	}
	return nil
}

func (c *Conn) SetWriteDeadline(time.Time) error { return nil }

func (c *Conn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	c.deadline = t
	c.mu.Unlock()

	select {
	case c.rearm <- struct{}{}:
	default:
	}
	return nil
}

func (c *Conn) SetPongHandler(h func(appData string) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pong = h
}

// Pings reports how many pings the client wrote.
func (c *Conn) Pings() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, mt := range c.control {
		if mt == websocket.PingMessage {
			n++
		}
	}
	return n
}

func (c *Conn) Close() error {
	c.once.Do(func() { close(c.closeCh) })
	return nil
}

func (c *Conn) Closed() bool {
	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}

// Written returns the text frames the client sent.
func (c *Conn) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.written))
	copy(out, c.written)
	return out
}

// SentClose reports whether the client wrote a close frame.
func (c *Conn) SentClose() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, mt := range c.control {
		if mt == websocket.CloseMessage {
			return true
		}
	}
	return false
}

// Dialer hands out a fresh Conn per Dial.
type Dialer struct {
	mu   sync.Mutex
	urls []string
	fail error
	hold chan struct{}

	dialed chan *Conn
}

func NewDialer() *Dialer {
	return &Dialer{dialed: make(chan *Conn, 64)}
}

// Fail makes subsequent dials return err; nil restores success.
func (d *Dialer) Fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = err
}

// Hold blocks subsequent dials until Release or context cancellation.
func (d *Dialer) Hold() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hold = make(chan struct{})
}

func (d *Dialer) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.hold != nil {
		close(d.hold)
		d.hold = nil
	}
}

func (d *Dialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	hold := d.hold
	d.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	fail := d.fail
	d.mu.Unlock()
	if fail != nil {
		return nil, fail
	}

	c := NewConn(url)
	d.dialed <- c
	return c, nil
}

func (d *Dialer) URLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.urls))
	copy(out, d.urls)
	return out
}

// NextConn waits for the next successful dial.
func (d *Dialer) NextConn(t testing.TB) *Conn {
	t.Helper()
	select {
	case c := <-d.dialed:
		return c
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for dial")
		return nil
	}
}

// NoConn asserts that no dial succeeds within wait.
func (d *Dialer) NoConn(t testing.TB, wait time.Duration) {
	t.Helper()
	select {
	case c := <-d.dialed:
		t.Fatalf("unexpected dial to %s", c.URL)
	case <-time.After(wait):
	}
}

// Eventually polls cond until it holds or the wait timeout passes.
func Eventually(t testing.TB, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}
