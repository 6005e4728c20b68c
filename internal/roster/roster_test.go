package roster

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"roomchat-ws/internal/domain"
)

func member(id string, role domain.Role) domain.Member {
	return domain.Member{ID: id, User: domain.MemberUser{ID: "u-" + id, Name: "user " + id}, Role: role}
}

func TestStore(t *testing.T) {
	s := NewStore()
	var notifications int
	s.Subscribe(func([]domain.Member) { notifications++ })

	s.SetMembers([]domain.Member{member("1", domain.RoleAdmin), member("2", domain.RoleUser)})
	s.AddMember(member("3", domain.RoleModerator))
	s.AddMember(member("2", domain.RoleModerator))
	s.RemoveMember("1")

	got := s.Members()
	if len(got) != 2 || got[0].ID != "2" || got[1].ID != "3" {
		t.Fatalf("Members() = %+v", got)
	}
	if got[0].Role != domain.RoleModerator {
		t.Errorf("AddMember with existing id should replace, role = %s", got[0].Role)
	}
	if mods := s.ByRole(domain.RoleModerator); len(mods) != 2 {
		t.Errorf("ByRole(MODERATOR) = %d members, want 2", len(mods))
	}
	if notifications != 4 {
		t.Errorf("notifications = %d, want 4", notifications)
	}

	s.Clear()
	if len(s.Members()) != 0 {
		t.Error("Clear() left members behind")
	}
}

func TestClient_FetchMembers(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"id":"m1","user":{"id":"u1","name":"Ada","image":"a.png"},"role":"ADMIN"},
			{"id":"m2","user":{"id":"u2","name":"Linus"},"role":"USER"}
		]}`))
	}))
	defer srv.Close()

	members, err := NewClient(srv.URL, time.Second).FetchMembers(context.Background(), "r1", "t1")
	if err != nil {
		t.Fatalf("FetchMembers() unexpected error: %v", err)
	}

	if gotPath != "/room/members/r1" {
		t.Errorf("path = %q, want /room/members/r1", gotPath)
	}
	if gotAuth != "Bearer t1" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if len(members) != 2 {
		t.Fatalf("len(members) = %d, want 2", len(members))
	}
	if members[0].User.Name != "Ada" || members[0].Role != domain.RoleAdmin {
		t.Errorf("members[0] = %+v", members[0])
	}
}

func TestClient_FetchMembersErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "room not found", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)

	_, err := client.FetchMembers(context.Background(), "missing", "t1")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("FetchMembers() error = %v, want *StatusError", err)
	}
	if statusErr.Code != http.StatusNotFound {
		t.Errorf("Code = %d, want 404", statusErr.Code)
	}

	if _, err := client.FetchMembers(context.Background(), "", "t1"); err == nil {
		t.Error("FetchMembers() with empty room id should fail")
	}
}

func TestClient_FetchMembersSharesConcurrentRequests(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		_, _ = w.Write([]byte(`{"data":[{"id":"m1","user":{"id":"u1","name":"Ada"},"role":"ADMIN"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	var wg sync.WaitGroup
	results := make([][]domain.Member, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			members, err := c.FetchMembers(context.Background(), "r1", "t1")
			if err != nil {
				t.Errorf("FetchMembers() unexpected error: %v", err)
			}
			results[i] = members
		}(i)
	}

	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := hits.Load(); n != 1 {
		t.Errorf("server hit %d times, want 1", n)
	}
	for i, members := range results {
		if len(members) != 1 {
			t.Fatalf("results[%d] = %+v", i, members)
		}
	}
	results[0][0].Role = domain.RoleUser
	if results[1][0].Role != domain.RoleAdmin {
		t.Error("callers should receive independent copies")
	}
}

func TestClient_FetchMembersCallerDeadlineIsPerCaller(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		_, _ = w.Write([]byte(`{"data":[{"id":"m1","user":{"id":"u1","name":"Ada"},"role":"ADMIN"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)

	impatient, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.FetchMembers(impatient, "r1", "t1")
		firstErr <- err
	}()
	started := time.Now().Add(time.Second)
	for hits.Load() == 0 && time.Now().Before(started) {
		time.Sleep(time.Millisecond)
	}

	type result struct {
		members []domain.Member
		err     error
	}
	second := make(chan result, 1)
	go func() {
		members, err := c.FetchMembers(context.Background(), "r1", "t1")
		second <- result{members, err}
	}()

	if err := <-firstErr; !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("first FetchMembers() error = %v, want context.DeadlineExceeded", err)
	}

	time.Sleep(100 * time.Millisecond)
	close(release)

	got := <-second
	if got.err != nil {
		t.Fatalf("second FetchMembers() unexpected error: %v", got.err)
	}
	if len(got.members) != 1 || got.members[0].ID != "m1" {
		t.Errorf("second FetchMembers() = %+v", got.members)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("server hit %d times, want 1", n)
	}
}

func TestClient_FetchMembersCancelledContext(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewClient(srv.URL, time.Second).FetchMembers(ctx, "r1", "t1"); !errors.Is(err, context.Canceled) {
		t.Errorf("FetchMembers() error = %v, want context.Canceled", err)
	}
	if n := hits.Load(); n != 0 {
		t.Errorf("server hit %d times, want 0", n)
	}
}
