package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"roomchat-ws/internal/domain"

	"github.com/segmentio/kafka-go"
)

type MessageHandler interface {
	HandleNewMessage(msg domain.RoomMessage)
}

type KafkaConsumer struct {
	reader  *kafka.Reader
	handler MessageHandler
}

func NewKafkaConsumer(brokers []string, groupID, topic string, handler MessageHandler) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 100 * time.Millisecond,
		StartOffset:    kafka.LastOffset,
		MaxWait:        100 * time.Millisecond,
	})

	return &KafkaConsumer{
		reader:  reader,
		handler: handler,
	}
}

// Run blocks until ctx is cancelled, handing every decoded message to the
// handler. Broker hiccups are logged and retried. Run owns the reader and
// closes it on return.
func (k *KafkaConsumer) Run(ctx context.Context) error {
	defer k.reader.Close()

	for {
		m, err := k.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Printf("Kafka consumer stopping...")
				return nil
			}
			if errors.Is(err, kafka.RebalanceInProgress) || errors.Is(err, kafka.LeaderNotAvailable) {
				log.Printf("Kafka group unsettled, continuing: %v", err)
				continue
			}
			log.Printf("Error reading Kafka message: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		k.handleMessage(m.Value)
	}
}

func (k *KafkaConsumer) handleMessage(value []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in handleMessage: %v", r)
		}
	}()

	msg, err := DecodeRoomMessage(value)
	if err != nil {
		log.Printf("Error unmarshaling room message: %v", err)
		return
	}
	if k.handler != nil {
		k.handler.HandleNewMessage(msg)
	}
}

var errMissingRoom = errors.New("room message without roomId")

// DecodeRoomMessage parses a record value written by KafkaProducer.
func DecodeRoomMessage(value []byte) (domain.RoomMessage, error) {
	var msg domain.RoomMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return domain.RoomMessage{}, err
	}
	if msg.RoomID == "" {
		return domain.RoomMessage{}, errMissingRoom
	}
	return msg, nil
}
