package chat

import (
	"time"

	"github.com/cenkalti/backoff/v5"

	"roomchat-ws/internal/domain"
)

type Option func(*Session)

// WithReconnect reopens a dropped transport with exponential backoff
// between initial and max. maxAttempts <= 0 retries until unbound.
func WithReconnect(initial, max time.Duration, maxAttempts int) Option {
	return func(s *Session) {
		s.reconnect = true
		s.maxAttempts = maxAttempts
		s.newBackoff = func() *backoff.ExponentialBackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = initial
			b.MaxInterval = max
			return b
		}
	}
}

// WithStateListener is called after every session state change. It must
// not call Bind, Unbind or Close.
func WithStateListener(fn func(domain.SessionState)) Option {
	return func(s *Session) { s.onState = fn }
}
