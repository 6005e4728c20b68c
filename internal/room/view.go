// Package room mounts a room: its roster for the sidebar and its live chat.
package room

import (
	"context"
	"log"
	"sync"

	"roomchat-ws/internal/chat"
	"roomchat-ws/internal/domain"
	"roomchat-ws/internal/roster"
)

// MemberFetcher loads a room roster.
type MemberFetcher interface {
	FetchMembers(ctx context.Context, roomID, token string) ([]domain.Member, error)
}

// View is one mounted room screen.
type View struct {
	session *chat.Session
	fetcher MemberFetcher
	members *roster.Store

	mu          sync.Mutex
	roomID      string
	gen         uint64
	cancelFetch context.CancelFunc
}

func NewView(session *chat.Session, fetcher MemberFetcher) *View {
	return &View{
		session: session,
		fetcher: fetcher,
		members: roster.NewStore(),
	}
}

func (v *View) Session() *chat.Session { return v.session }

func (v *View) Members() *roster.Store { return v.members }

// Mount binds the chat to (roomID, token). The roster is fetched once per
// room in the background; a slow or failed fetch leaves the sidebar empty
// but never holds up the chat.
func (v *View) Mount(ctx context.Context, roomID, token string) error {
	v.mu.Lock()
	switched := roomID != v.roomID
	var fetchCtx context.Context
	var gen uint64
	if switched {
		v.roomID = roomID
		gen = v.resetLocked()
		if roomID != "" && v.fetcher != nil {
			fetchCtx, v.cancelFetch = context.WithCancel(ctx)
		}
	}
	v.mu.Unlock()

	if switched {
		v.members.Clear()
		if fetchCtx != nil {
			go v.loadMembers(fetchCtx, gen, roomID, token)
		}
	}
	return v.session.Bind(ctx, roomID, token)
}

// Unmount tears the chat down and empties the sidebar.
func (v *View) Unmount() {
	v.mu.Lock()
	v.roomID = ""
	v.resetLocked()
	v.mu.Unlock()

	v.session.Unbind()
	v.members.Clear()
}

// resetLocked abandons any roster fetch in flight and returns the new
// generation.
func (v *View) resetLocked() uint64 {
	if v.cancelFetch != nil {
		v.cancelFetch()
		v.cancelFetch = nil
	}
	v.gen++
	return v.gen
}

func (v *View) loadMembers(ctx context.Context, gen uint64, roomID, token string) {
	members, err := v.fetcher.FetchMembers(ctx, roomID, token)

	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.gen {
		return
	}
	v.cancelFetch()
	v.cancelFetch = nil
	if err != nil {
		log.Printf("room: failed to load members of %s: %v", roomID, err)
		return
	}
	v.members.SetMembers(members)
	log.Printf("room: loaded %d members of %s", len(members), roomID)
}
