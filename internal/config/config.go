package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ClientConfig drives cmd/roomchat.
type ClientConfig struct {
	WSBaseURL  string `env:"WS_BASE_URL" envDefault:"ws://localhost:8082"`
	APIBaseURL string `env:"API_BASE_URL" envDefault:"http://localhost:8082"`

	RoomID string `env:"ROOM_ID"`
	Token  string `env:"AUTH_TOKEN"`

	// Used when the backend has no /auth/status for the token.
	UserID    string `env:"USER_ID"`
	UserName  string `env:"USER_NAME"`
	UserEmail string `env:"USER_EMAIL"`
	UserImage string `env:"USER_IMAGE"`

	HTTPTimeout      time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`
	HandshakeTimeout time.Duration `env:"WS_HANDSHAKE_TIMEOUT" envDefault:"10s"`
	WriteWait        time.Duration `env:"WS_WRITE_WAIT" envDefault:"10s"`
	PingPeriod       time.Duration `env:"WS_PING_PERIOD" envDefault:"54s"`
	PongWait         time.Duration `env:"WS_PONG_WAIT" envDefault:"60s"`

	Reconnect            bool          `env:"RECONNECT" envDefault:"true"`
	ReconnectInitial     time.Duration `env:"RECONNECT_INITIAL" envDefault:"500ms"`
	ReconnectMax         time.Duration `env:"RECONNECT_MAX" envDefault:"30s"`
	ReconnectMaxAttempts int           `env:"RECONNECT_MAX_ATTEMPTS" envDefault:"10"`
}

// ServerConfig drives cmd/devserver.
type ServerConfig struct {
	Port             string   `env:"PORT" envDefault:"8082"`
	AllowedOrigins   []string `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	AllowCredentials bool     `env:"ALLOW_CREDENTIALS" envDefault:"false"`
	RedisHost        string   `env:"REDIS_HOST"`
	RedisPort        string   `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword    string   `env:"REDIS_PASSWORD"`
	KafkaBrokers     []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic       string   `env:"KAFKA_TOPIC" envDefault:"chat-messages"`
	KafkaGroupID     string   `env:"KAFKA_GROUP_ID" envDefault:"roomchat-devserver"`
	Environment      string   `env:"ENVIRONMENT" envDefault:"development"`

	JWTSecret    string        `env:"JWT_SECRET" envDefault:"dev-secret"`
	JWTIssuer    string        `env:"JWT_ISSUER" envDefault:"roomchat"`
	HistoryLimit int64         `env:"HISTORY_LIMIT" envDefault:"100"`
	TokenTTL     time.Duration `env:"DEV_TOKEN_TTL" envDefault:"24h"`
}

// LoadClientConfig reads .env (if present) and the environment.
func LoadClientConfig() (*ClientConfig, error) {
	_ = godotenv.Load()

	cfg := &ClientConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse client config: %w", err)
	}
	cfg.WSBaseURL = strings.TrimRight(cfg.WSBaseURL, "/")
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	return cfg, nil
}

func LoadServerConfig() (*ServerConfig, error) {
	_ = godotenv.Load()

	cfg := &ServerConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse server config: %w", err)
	}
	cfg.AllowedOrigins = trimAll(cfg.AllowedOrigins)
	cfg.KafkaBrokers = trimAll(cfg.KafkaBrokers)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	return cfg, nil
}

func trimAll(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// GetCORSOrigins returns CORS origins as a comma-separated string
func (c *ServerConfig) GetCORSOrigins() string {
	if c.Environment == "production" && len(c.AllowedOrigins) > 0 && c.AllowedOrigins[0] != "*" {
		return strings.Join(c.AllowedOrigins, ",")
	}
	return "*"
}

// IsDevelopment returns true if environment is development
func (c *ServerConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if environment is production
func (c *ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

func (c *ServerConfig) RedisEnabled() bool {
	return c.RedisHost != ""
}

func (c *ServerConfig) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}
