package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roomchat-ws/internal/auth"
	"roomchat-ws/internal/config"
	"roomchat-ws/internal/delivery"
	"roomchat-ws/internal/infrastructure/kafka"
	"roomchat-ws/internal/infrastructure/redis"

	"golang.org/x/sync/errgroup"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Application recovered from panic: %v", r)
			os.Exit(1)
		}
	}()

	cfg, err := config.LoadServerConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Printf("Starting RoomChat dev server")
	log.Printf("Environment: %s", cfg.Environment)
	log.Printf("Port: %s", cfg.Port)
	log.Printf("CORS Origins: %s", cfg.GetCORSOrigins())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		history delivery.HistoryStore
		members delivery.MemberStore
	)
	if cfg.RedisEnabled() {
		redisClient := redis.NewRedisClient(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword, cfg.HistoryLimit)
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Printf("Error closing Redis client: %v", err)
			}
		}()
		if err := redisClient.Ping(ctx); err != nil {
			log.Fatalf("Redis connection failed: %v", err)
		}
		log.Printf("Redis: %s:%s", cfg.RedisHost, cfg.RedisPort)
		history, members = redisClient, redisClient
	} else {
		mem := delivery.NewMemoryStore(cfg.HistoryLimit)
		history, members = mem, mem
		log.Printf("Redis not configured, keeping history in memory")
	}

	var (
		publisher delivery.Publisher
		producer  *kafka.KafkaProducer
	)
	if cfg.KafkaEnabled() {
		producer = kafka.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() {
			if err := producer.Close(); err != nil {
				log.Printf("Error closing Kafka producer: %v", err)
			}
		}()
		publisher = producer
		log.Printf("Kafka Brokers: %v (topic %s)", cfg.KafkaBrokers, cfg.KafkaTopic)
	}

	signer := auth.NewSigner(cfg.JWTSecret, cfg.JWTIssuer)
	wsManager := delivery.NewWSManager(history, members, publisher, cfg.HistoryLimit)
	server := delivery.NewServer(cfg, signer, wsManager, members)

	g, gctx := errgroup.WithContext(ctx)

	if producer != nil {
		consumer := kafka.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.KafkaTopic, wsManager)
		g.Go(func() error {
			return consumer.Run(gctx)
		})
	}

	g.Go(func() error {
		return server.Start()
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down...")
		return server.Shutdown(5 * time.Second)
	})

	if err := g.Wait(); err != nil {
		log.Printf("Server stopped: %v", err)
	}
}
