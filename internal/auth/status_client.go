package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"roomchat-ws/internal/domain"
)

var ErrNotAuthenticated = errors.New("not authenticated")

// StatusClient asks the backend who the caller is.
type StatusClient struct {
	baseURL string
	timeout time.Duration
}

func NewStatusClient(baseURL string, timeout time.Duration) *StatusClient {
	return &StatusClient{baseURL: strings.TrimRight(baseURL, "/"), timeout: timeout}
}

// Status calls GET /auth/status with the given credential. It returns
// ErrNotAuthenticated when the backend does not recognise it.
func (c *StatusClient) Status(ctx context.Context, token string) (domain.User, string, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, "", err
	}

	agent := fiber.Get(c.baseURL + "/auth/status").
		Timeout(requestTimeout(ctx, c.timeout))
	if token != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return domain.User{}, "", fmt.Errorf("auth status: %w", errors.Join(errs...))
	}
	if code == fiber.StatusUnauthorized {
		return domain.User{}, "", ErrNotAuthenticated
	}
	if code < 200 || code > 299 {
		return domain.User{}, "", fmt.Errorf("auth status: unexpected status %d", code)
	}

	var resp domain.AuthStatusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.User{}, "", fmt.Errorf("auth status: decode: %w", err)
	}
	if !resp.IsAuthenticated || resp.User == nil {
		return domain.User{}, "", ErrNotAuthenticated
	}
	if resp.Token == "" {
		resp.Token = token
	}
	return *resp.User, resp.Token, nil
}

// requestTimeout narrows fallback to the context deadline, if any.
func requestTimeout(ctx context.Context, fallback time.Duration) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return fallback
	}
	if left := time.Until(deadline); left < fallback || fallback <= 0 {
		return left
	}
	return fallback
}
