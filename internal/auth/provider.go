// Package auth supplies the authenticated user and bearer token the chat
// pipeline runs as. Session management itself lives elsewhere.
package auth

import (
	"sync"

	"roomchat-ws/internal/domain"
)

type Provider interface {
	// CurrentUser reports false when nobody is signed in.
	CurrentUser() (domain.User, bool)
}

// StaticProvider holds a user that is refreshed from outside.
type StaticProvider struct {
	mu    sync.RWMutex
	user  domain.User
	token string
	set   bool
}

func NewStaticProvider(user domain.User, token string) *StaticProvider {
	p := &StaticProvider{}
	p.Set(user, token)
	return p
}

func (p *StaticProvider) CurrentUser() (domain.User, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.user, p.set
}

func (p *StaticProvider) Token() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token
}

// Set replaces the signed-in user. A user without an id signs out.
func (p *StaticProvider) Set(user domain.User, token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.user = user
	p.token = token
	p.set = user.ID != ""
}

func (p *StaticProvider) Clear() {
	p.Set(domain.User{}, "")
}
