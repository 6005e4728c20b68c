package domain

import (
	"fmt"
	"time"
)

type MessageType string

const MessageTypeText MessageType = "TEXT"

// Message is a persisted chat entry as the server delivers it. Sender
// attribution is captured at send time and never refreshed.
type Message struct {
	ID           string      `json:"id"`
	ChatID       string      `json:"chatId"`
	SenderID     string      `json:"senderId"`
	SenderName   string      `json:"senderName"`
	SenderAvatar string      `json:"senderAvatar"`
	MessageType  MessageType `json:"messageType"`
	Content      string      `json:"content"`
	SeenBy       []string    `json:"seenBy"`
	CreatedAt    string      `json:"createdAt"`
}

// CreatedTime parses the server timestamp.
func (m Message) CreatedTime() (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, m.CreatedAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("message %s: invalid createdAt %q: %w", m.ID, m.CreatedAt, err)
	}
	return t, nil
}

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Image string `json:"image"`
}

type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleModerator Role = "MODERATOR"
	RoleUser      Role = "USER"
)

type MemberUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// Member is one entry of a room roster.
type Member struct {
	ID   string     `json:"id"`
	User MemberUser `json:"user"`
	Role Role       `json:"role"`
}
