package kafka

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"roomchat-ws/internal/domain"

	"github.com/segmentio/kafka-go"
)

// KafkaProducer fans persisted room messages out to every devserver replica.
type KafkaProducer struct {
	Writer *kafka.Writer
	topic  string
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:  kafka.TCP(brokers...),
		Topic: topic,
		// Keyed by room so a room's messages stay ordered on one partition.
		Balancer:     &kafka.Hash{},
		BatchSize:    1,
		BatchTimeout: time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return &KafkaProducer{Writer: writer, topic: topic}
}

func (k *KafkaProducer) Publish(ctx context.Context, msg domain.RoomMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	err = k.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.RoomID),
		Value: data,
	})
	if err != nil {
		log.Printf("Failed to send message to Kafka topic %s: %v", k.topic, err)
		return err
	}
	return nil
}

func (k *KafkaProducer) Close() error {
	return k.Writer.Close()
}
