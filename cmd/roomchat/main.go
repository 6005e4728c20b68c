// Command roomchat joins one chat room from the terminal: it prints the room
// log as it changes and sends every line typed on stdin.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"roomchat-ws/internal/auth"
	"roomchat-ws/internal/chat"
	"roomchat-ws/internal/config"
	"roomchat-ws/internal/domain"
	"roomchat-ws/internal/room"
	"roomchat-ws/internal/roster"
	"roomchat-ws/internal/transport"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.LoadClientConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.RoomID == "" || cfg.Token == "" {
		log.Fatal("ROOM_ID and AUTH_TOKEN are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	user, token, err := resolveUser(ctx, cfg)
	if err != nil {
		log.Fatalf("Cannot sign in: %v", err)
	}
	if exp, ok := auth.TokenExpiry(token); ok && time.Now().After(exp) {
		log.Printf("Warning: token expired at %s, the server will likely refuse it", exp.Format(time.RFC3339))
	}

	manager := transport.NewManager(cfg.WSBaseURL,
		transport.NewWebsocketDialer(cfg.HandshakeTimeout, nil),
		transport.WithWriteWait(cfg.WriteWait),
		transport.WithPingPeriod(cfg.PingPeriod),
		transport.WithPongWait(cfg.PongWait),
	)

	opts := []chat.Option{
		chat.WithStateListener(func(state domain.SessionState) {
			log.Printf("chat: %s", state)
		}),
	}
	if cfg.Reconnect {
		opts = append(opts, chat.WithReconnect(cfg.ReconnectInitial, cfg.ReconnectMax, cfg.ReconnectMaxAttempts))
	}
	session := chat.NewSession(manager, auth.NewStaticProvider(user, token), opts...)
	defer session.Close()

	view := room.NewView(session, roster.NewClient(cfg.APIBaseURL, cfg.HTTPTimeout))
	view.Members().Subscribe(func(members []domain.Member) {
		for _, m := range members {
			log.Printf("room: member %s (%s)", m.User.Name, m.Role)
		}
	})

	printer := newPrinter(os.Stdout, user.ID)
	unsubscribe := session.Subscribe(printer.print)
	defer unsubscribe()

	if err := view.Mount(ctx, cfg.RoomID, token); err != nil {
		log.Fatalf("Cannot join room %s: %v", cfg.RoomID, err)
	}
	defer view.Unmount()

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return errStdinClosed
				}
				sendLine(session, line)
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errStdinClosed) {
		log.Printf("roomchat: %v", err)
	}
}

var errStdinClosed = errors.New("stdin closed")

// resolveUser asks the backend who the token belongs to, falling back to
// the USER_* variables when the backend has no answer.
func resolveUser(ctx context.Context, cfg *config.ClientConfig) (domain.User, string, error) {
	user, token, err := auth.NewStatusClient(cfg.APIBaseURL, cfg.HTTPTimeout).Status(ctx, cfg.Token)
	if err == nil {
		return user, token, nil
	}
	if errors.Is(err, auth.ErrNotAuthenticated) {
		return domain.User{}, "", err
	}

	log.Printf("Auth status unavailable, using USER_* from the environment: %v", err)
	if cfg.UserID == "" {
		return domain.User{}, "", errors.New("USER_ID is required when /auth/status is unreachable")
	}
	return domain.User{ID: cfg.UserID, Name: cfg.UserName, Email: cfg.UserEmail, Image: cfg.UserImage}, cfg.Token, nil
}

func readLines(f *os.File, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

func sendLine(session *chat.Session, line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	switch err := session.Send(line); {
	case err == nil:
	case errors.Is(err, chat.ErrNotConnected):
		fmt.Fprintln(os.Stderr, "not connected, message not sent")
	default:
		fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
	}
}

// printer writes each message of the log once, however often the log is
// replaced.
type printer struct {
	mu      sync.Mutex
	out     *os.File
	selfID  string
	printed map[string]struct{}
}

func newPrinter(out *os.File, selfID string) *printer {
	return &printer{out: out, selfID: selfID, printed: make(map[string]struct{})}
}

func (p *printer) print(messages []domain.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, m := range messages {
		key := m.ID
		if key == "" {
			key = m.CreatedAt + "|" + m.SenderID + "|" + m.Content
		}
		if _, ok := p.printed[key]; ok {
			continue
		}
		p.printed[key] = struct{}{}

		name := m.SenderName
		if m.SenderID == p.selfID {
			name = "you"
		}
		stamp := m.CreatedAt
		if t, err := m.CreatedTime(); err == nil {
			stamp = t.Local().Format("15:04")
		}
		fmt.Fprintf(p.out, "[%s] %s: %s\n", stamp, name, m.Content)
	}
}
