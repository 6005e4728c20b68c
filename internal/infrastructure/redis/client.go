package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"

	"roomchat-ws/internal/domain"
)

func messagesKey(roomID string) string { return fmt.Sprintf("room:%s:messages", roomID) }
func membersKey(roomID string) string  { return fmt.Sprintf("room:%s:members", roomID) }

// AppendMessage pushes msg onto the room history, keeping the newest
// historyLimit entries.
func (r *RedisClient) AppendMessage(ctx context.Context, roomID string, msg domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	key := messagesKey(roomID)
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -r.historyLimit, -1)
	_, err = pipe.Exec(ctx)
	return err
}

// History returns up to limit of the newest messages, oldest first.
func (r *RedisClient) History(ctx context.Context, roomID string, limit int64) ([]domain.Message, error) {
	if limit <= 0 || limit > r.historyLimit {
		limit = r.historyLimit
	}
	raw, err := r.client.LRange(ctx, messagesKey(roomID), -limit, -1).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(raw))
	for _, item := range raw {
		var msg domain.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			log.Printf("Skipping corrupt history entry in room %s: %v", roomID, err)
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// AddMember registers m in the roster unless the user is already there.
func (r *RedisClient) AddMember(ctx context.Context, roomID string, m domain.Member) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return r.client.HSetNX(ctx, membersKey(roomID), m.User.ID, data).Err()
}

func (r *RedisClient) Members(ctx context.Context, roomID string) ([]domain.Member, error) {
	raw, err := r.client.HGetAll(ctx, membersKey(roomID)).Result()
	if err != nil {
		return nil, err
	}

	members := make([]domain.Member, 0, len(raw))
	for userID, item := range raw {
		var m domain.Member
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			log.Printf("Skipping corrupt member %s in room %s: %v", userID, roomID, err)
			continue
		}
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].User.Name < members[j].User.Name })
	return members, nil
}

func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}
