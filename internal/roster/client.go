package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/singleflight"

	"roomchat-ws/internal/domain"
)

// StatusError is a non-2xx answer from the members endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("room members: unexpected status %d: %s", e.Code, e.Body)
}

const defaultTimeout = 10 * time.Second

// Client fetches room rosters over REST.
type Client struct {
	baseURL string
	timeout time.Duration
	flight  singleflight.Group
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), timeout: timeout}
}

// FetchMembers calls GET /room/members/{roomId}. Concurrent calls for the
// same room and token share one request; each caller stops waiting when
// its own ctx is done, and the shared request runs under the client
// timeout alone.
func (c *Client) FetchMembers(ctx context.Context, roomID, token string) ([]domain.Member, error) {
	if strings.TrimSpace(roomID) == "" {
		return nil, errors.New("room members: room id is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch := c.flight.DoChan(roomID+"\x00"+token, func() (any, error) {
		return c.fetch(roomID, token)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		members := res.Val.([]domain.Member)
		out := make([]domain.Member, len(members))
		copy(out, members)
		return out, nil
	}
}

func (c *Client) fetch(roomID, token string) ([]domain.Member, error) {
	timeout := c.timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	agent := fiber.Get(c.baseURL + "/room/members/" + url.PathEscape(roomID)).
		Timeout(timeout)
	if token != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("room members: %w", errors.Join(errs...))
	}
	if code < 200 || code > 299 {
		return nil, &StatusError{Code: code, Body: strings.TrimSpace(string(body))}
	}

	var resp domain.MembersResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("room members: decode: %w", err)
	}
	if resp.Data == nil {
		resp.Data = []domain.Member{}
	}
	return resp.Data, nil
}
