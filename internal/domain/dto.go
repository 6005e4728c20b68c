package domain

const (
	EventChatHistory     = "chat-history"
	EventMessageReceived = "message:received"
)

// InboundFrame is a server push. Only one of Messages or Message is set,
// depending on Event.
type InboundFrame struct {
	Event    string    `json:"event"`
	Messages []Message `json:"messages,omitempty"`
	Message  *Message  `json:"message,omitempty"`
}

// SendFrame is the only client action on the wire. Id, chat id, timestamp
// and seen-by are assigned by the server.
type SendFrame struct {
	Text         string      `json:"text"`
	MessageType  MessageType `json:"messageType"`
	SenderName   string      `json:"senderName"`
	SenderAvatar string      `json:"senderAvatar"`
}

type MembersResponse struct {
	Data []Member `json:"data"`
}

type AuthStatusResponse struct {
	IsAuthenticated bool   `json:"isAuthenticated"`
	User            *User  `json:"user,omitempty"`
	Token           string `json:"token,omitempty"`
}

// RoomMessage is a persisted message on its way to every connection of a
// room, possibly through a broker.
type RoomMessage struct {
	RoomID  string  `json:"roomId"`
	Message Message `json:"message"`
}
