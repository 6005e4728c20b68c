// Package codec translates between websocket text frames and typed chat events.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"

	"roomchat-ws/internal/domain"
)

var ErrMalformedFrame = errors.New("malformed frame")

// Event is a decoded inbound frame.
type Event interface {
	EventName() string
}

// HistoryEvent replaces the whole message log.
type HistoryEvent struct {
	Messages []domain.Message
}

// ReceivedEvent appends one persisted message.
type ReceivedEvent struct {
	Message domain.Message
}

// UnknownEvent is any event name this client does not understand.
type UnknownEvent struct {
	Name string
}

func (HistoryEvent) EventName() string  { return domain.EventChatHistory }
func (ReceivedEvent) EventName() string { return domain.EventMessageReceived }
func (e UnknownEvent) EventName() string { return e.Name }

// Decode parses one inbound frame. Unknown event names decode to UnknownEvent
// without error.
func Decode(data []byte) (Event, error) {
	var frame domain.InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch frame.Event {
	case domain.EventChatHistory:
		messages := frame.Messages
		if messages == nil {
			messages = []domain.Message{}
		}
		return HistoryEvent{Messages: messages}, nil

	case domain.EventMessageReceived:
		if frame.Message == nil {
			return nil, fmt.Errorf("%w: %s without message", ErrMalformedFrame, frame.Event)
		}
		return ReceivedEvent{Message: *frame.Message}, nil

	default:
		return UnknownEvent{Name: frame.Event}, nil
	}
}

// EncodeSend builds the outbound chat action. Sender attribution comes from
// the locally authenticated user and is not verified by the protocol.
func EncodeSend(text string, messageType domain.MessageType, sender domain.User) ([]byte, error) {
	if messageType == "" {
		messageType = domain.MessageTypeText
	}
	return json.Marshal(domain.SendFrame{
		Text:         text,
		MessageType:  messageType,
		SenderName:   sender.Name,
		SenderAvatar: sender.Image,
	})
}

// DecodeSend is the server side of EncodeSend.
func DecodeSend(data []byte) (domain.SendFrame, error) {
	var frame domain.SendFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return domain.SendFrame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if frame.MessageType == "" {
		frame.MessageType = domain.MessageTypeText
	}
	return frame, nil
}

func EncodeHistory(messages []domain.Message) ([]byte, error) {
	if messages == nil {
		messages = []domain.Message{}
	}
	return json.Marshal(struct {
		Event    string           `json:"event"`
		Messages []domain.Message `json:"messages"`
	}{domain.EventChatHistory, messages})
}

func EncodeReceived(message domain.Message) ([]byte, error) {
	return json.Marshal(domain.InboundFrame{
		Event:   domain.EventMessageReceived,
		Message: &message,
	})
}
