package delivery

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"roomchat-ws/internal/codec"
	"roomchat-ws/internal/domain"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
)

var errWriteRecovered = errors.New("websocket write panicked")

// Socket is the part of a server-side websocket the manager uses.
type Socket interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type WSConnection struct {
	ID       string
	Conn     Socket
	User     domain.User
	RoomID   string
	writeMux sync.Mutex
}

type WSManager struct {
	history      HistoryStore
	members      MemberStore
	publisher    Publisher
	historyLimit int64
	// Active connections by room ID
	connections map[string][]*WSConnection
	mutex       sync.RWMutex
}

// NewWSManager wires the room hub. A nil publisher delivers messages to
// local connections directly.
func NewWSManager(history HistoryStore, members MemberStore, publisher Publisher, historyLimit int64) *WSManager {
	return &WSManager{
		history:      history,
		members:      members,
		publisher:    publisher,
		historyLimit: historyLimit,
		connections:  make(map[string][]*WSConnection),
	}
}

func (w *WSManager) addConnection(conn *WSConnection) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	w.connections[conn.RoomID] = append(w.connections[conn.RoomID], conn)
	log.Printf("Added connection %s: %s to room %s. Total connections: %d",
		conn.ID, conn.User.ID, conn.RoomID, len(w.connections[conn.RoomID]))
}

func (w *WSManager) removeConnection(conn *WSConnection) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	connections, exists := w.connections[conn.RoomID]
	if !exists {
		return
	}
	for i, c := range connections {
		if c == conn {
			w.connections[conn.RoomID] = append(connections[:i:i], connections[i+1:]...)
			log.Printf("Removed connection %s from room %s. Remaining connections: %d",
				conn.ID, conn.RoomID, len(w.connections[conn.RoomID]))
			break
		}
	}

	if len(w.connections[conn.RoomID]) == 0 {
		delete(w.connections, conn.RoomID)
		log.Printf("Cleaned up empty room: %s", conn.RoomID)
	}
}

func (w *WSManager) broadcastToRoom(roomID string, data []byte) {
	w.mutex.RLock()
	connections := make([]*WSConnection, len(w.connections[roomID]))
	copy(connections, w.connections[roomID])
	w.mutex.RUnlock()

	if len(connections) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, conn := range connections {
		wg.Add(1)
		go func(c *WSConnection) {
			defer wg.Done()
			if err := c.safeWrite(data); err != nil {
				log.Printf("Failed to send message to connection %s: %v", c.ID, err)
				w.removeConnection(c)
				_ = c.Conn.Close()
			}
		}(conn)
	}
	wg.Wait()
}

// HandleConnection serves one client until it goes away: the room history
// first, then a persisted and broadcast message per inbound frame.
func (w *WSManager) HandleConnection(c Socket, roomID string, user domain.User) {
	defer c.Close()

	ctx := context.Background()

	wsConn := &WSConnection{
		ID:     uuid.NewString(),
		Conn:   c,
		User:   user,
		RoomID: roomID,
	}

	w.joinRoster(ctx, roomID, user)

	// Registered before the history read so nothing published in between
	// is missed. The client drops what it sees twice.
	w.addConnection(wsConn)
	defer w.removeConnection(wsConn)

	if err := w.sendHistory(ctx, wsConn); err != nil {
		log.Printf("Failed to send history to %s: %v", user.ID, err)
		return
	}

	log.Printf("WebSocket client connected: %s to room %s", user.ID, roomID)

	for {
		messageType, data, err := c.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("WebSocket read error for user %s: %v", user.ID, err)
			}
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}
		w.handleIncomingMessage(ctx, wsConn, data)
	}

	log.Printf("WebSocket client disconnected: %s from room %s", user.ID, roomID)
}

func (w *WSManager) joinRoster(ctx context.Context, roomID string, user domain.User) {
	role := domain.RoleUser
	if current, err := w.members.Members(ctx, roomID); err == nil && len(current) == 0 {
		role = domain.RoleAdmin
	}
	member := domain.Member{
		ID:   uuid.NewString(),
		User: domain.MemberUser{ID: user.ID, Name: user.Name, Image: user.Image},
		Role: role,
	}
	if err := w.members.AddMember(ctx, roomID, member); err != nil {
		log.Printf("Failed to add %s to room %s roster: %v", user.ID, roomID, err)
	}
}

func (w *WSManager) sendHistory(ctx context.Context, conn *WSConnection) error {
	messages, err := w.history.History(ctx, conn.RoomID, w.historyLimit)
	if err != nil {
		log.Printf("Failed to load history for room %s: %v", conn.RoomID, err)
		messages = nil
	}
	data, err := codec.EncodeHistory(messages)
	if err != nil {
		return err
	}
	return conn.safeWrite(data)
}

func (w *WSManager) handleIncomingMessage(ctx context.Context, conn *WSConnection, data []byte) {
	frame, err := codec.DecodeSend(data)
	if err != nil {
		log.Printf("Dropping malformed frame from %s: %v", conn.User.ID, err)
		return
	}
	if strings.TrimSpace(frame.Text) == "" {
		return
	}

	msg := NewMessage(conn.RoomID, conn.User, frame, time.Now())
	if err := w.history.AppendMessage(ctx, conn.RoomID, msg); err != nil {
		log.Printf("Failed to persist message %s: %v", msg.ID, err)
		return
	}

	envelope := domain.RoomMessage{RoomID: conn.RoomID, Message: msg}
	if w.publisher == nil {
		w.HandleNewMessage(envelope)
		return
	}
	if err := w.publisher.Publish(ctx, envelope); err != nil {
		log.Printf("Failed to publish message %s, delivering locally: %v", msg.ID, err)
		w.HandleNewMessage(envelope)
	}
}

// NewMessage builds the stored form of a send frame. The sender id always
// comes from the verified token. Display fields fall back to the token
// claims when the frame leaves them empty.
func NewMessage(roomID string, sender domain.User, frame domain.SendFrame, now time.Time) domain.Message {
	messageType := frame.MessageType
	if messageType == "" {
		messageType = domain.MessageTypeText
	}
	name := frame.SenderName
	if name == "" {
		name = sender.Name
	}
	avatar := frame.SenderAvatar
	if avatar == "" {
		avatar = sender.Image
	}
	return domain.Message{
		ID:           uuid.NewString(),
		ChatID:       roomID,
		SenderID:     sender.ID,
		SenderName:   name,
		SenderAvatar: avatar,
		MessageType:  messageType,
		Content:      frame.Text,
		SeenBy:       []string{sender.ID},
		CreatedAt:    now.UTC().Format(time.RFC3339Nano),
	}
}

// HandleNewMessage delivers msg to every local connection in its room. It
// is also the Kafka consumer's handler.
func (w *WSManager) HandleNewMessage(msg domain.RoomMessage) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in HandleNewMessage: %v", r)
		}
	}()

	data, err := codec.EncodeReceived(msg.Message)
	if err != nil {
		log.Printf("Failed to encode message %s: %v", msg.Message.ID, err)
		return
	}
	w.broadcastToRoom(msg.RoomID, data)
}

// GetActiveConnections returns the current active connections per room.
func (w *WSManager) GetActiveConnections() map[string]int {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	result := make(map[string]int)
	for roomID, connections := range w.connections {
		result[roomID] = len(connections)
	}
	return result
}

func (w *WSManager) GetRoomConnectionCount(roomID string) int {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	return len(w.connections[roomID])
}

// safeWrite serialises writes on one connection and recovers from panics
// in the underlying writer.
func (conn *WSConnection) safeWrite(data []byte) (err error) {
	conn.writeMux.Lock()
	defer conn.writeMux.Unlock()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in safeWrite for connection %s: %v", conn.ID, r)
			err = errWriteRecovered
		}
	}()

	return conn.Conn.WriteMessage(websocket.TextMessage, data)
}
