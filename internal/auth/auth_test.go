package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"roomchat-ws/internal/domain"
)

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider(domain.User{ID: "u1", Name: "Ada"}, "t1")

	user, ok := p.CurrentUser()
	if !ok || user.ID != "u1" {
		t.Fatalf("CurrentUser() = %+v, %v", user, ok)
	}
	if p.Token() != "t1" {
		t.Errorf("Token() = %q, want t1", p.Token())
	}

	p.Clear()
	if _, ok := p.CurrentUser(); ok {
		t.Error("CurrentUser() should report signed out after Clear")
	}
}

func TestSigner_IssueAndVerify(t *testing.T) {
	signer := NewSigner("secret", "roomchat")
	user := domain.User{ID: "u1", Name: "Ada", Image: "https://img/ada.png"}

	token, err := signer.Issue(user, time.Hour)
	if err != nil {
		t.Fatalf("Issue() unexpected error: %v", err)
	}

	claims, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("Verify() unexpected error: %v", err)
	}
	if got := claims.User(); got.ID != "u1" || got.Name != "Ada" || got.Image != user.Image {
		t.Errorf("User() = %+v", got)
	}

	exp, ok := TokenExpiry(token)
	if !ok {
		t.Fatal("TokenExpiry() could not read exp")
	}
	if until := time.Until(exp); until < 59*time.Minute || until > time.Hour+time.Minute {
		t.Errorf("expiry in %v, want about an hour", until)
	}
}

func TestSigner_VerifyRejects(t *testing.T) {
	signer := NewSigner("secret", "roomchat")
	expired, _ := signer.Issue(domain.User{ID: "u1"}, -time.Minute)
	foreign, _ := NewSigner("other", "roomchat").Issue(domain.User{ID: "u1"}, time.Hour)
	wrongIssuer, _ := NewSigner("secret", "elsewhere").Issue(domain.User{ID: "u1"}, time.Hour)
	noSubject, _ := signer.Issue(domain.User{}, time.Hour)

	tests := []struct {
		name  string
		token string
	}{
		{name: "expired", token: expired},
		{name: "wrong secret", token: foreign},
		{name: "wrong issuer", token: wrongIssuer},
		{name: "no subject", token: noSubject},
		{name: "garbage", token: "not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := signer.Verify(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestTokenExpiry_OpaqueToken(t *testing.T) {
	if _, ok := TokenExpiry("opaque-session-token"); ok {
		t.Error("TokenExpiry() should not report an expiry for opaque tokens")
	}
}

func TestStatusClient_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/status" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer good" {
			_, _ = w.Write([]byte(`{"isAuthenticated":false}`))
			return
		}
		_, _ = w.Write([]byte(`{"isAuthenticated":true,"user":{"id":"u1","name":"Ada","email":"ada@example.com","image":"a.png"}}`))
	}))
	defer srv.Close()

	client := NewStatusClient(srv.URL, time.Second)

	user, token, err := client.Status(context.Background(), "good")
	if err != nil {
		t.Fatalf("Status() unexpected error: %v", err)
	}
	if user.ID != "u1" || user.Name != "Ada" {
		t.Errorf("user = %+v", user)
	}
	if token != "good" {
		t.Errorf("token = %q, want the presented token", token)
	}

	if _, _, err := client.Status(context.Background(), "bad"); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Status() with bad token error = %v, want ErrNotAuthenticated", err)
	}
}

func TestStatusClient_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, _, err := NewStatusClient(srv.URL, time.Second).Status(context.Background(), "x")
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Status() error = %v, want ErrNotAuthenticated", err)
	}
}
