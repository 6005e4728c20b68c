package delivery

import (
	"log"
	"net"
	"time"

	"roomchat-ws/internal/auth"
	"roomchat-ws/internal/config"
	"roomchat-ws/internal/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
)

const localsUser = "user"

type Server struct {
	config    *config.ServerConfig
	signer    *auth.Signer
	wsManager *WSManager
	members   MemberStore
	app       *fiber.App
}

func NewServer(config *config.ServerConfig, signer *auth.Signer, wsManager *WSManager, members MemberStore) *Server {
	s := &Server{
		config:    config,
		signer:    signer,
		wsManager: wsManager,
		members:   members,
	}
	s.app = s.routes()
	return s
}

// App exposes the fiber app for in-process requests.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) routes() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "RoomChat Dev Server",
		DisableStartupMessage: !s.config.IsDevelopment(),
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} ${latency}\n",
	}))

	corsConfig := cors.Config{
		AllowMethods:     "GET,POST,HEAD,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: s.config.AllowCredentials,
		MaxAge:           86400,
	}
	if s.config.IsProduction() {
		corsConfig.AllowOrigins = s.config.GetCORSOrigins()
		log.Printf("CORS configured for production with origins: %s", corsConfig.AllowOrigins)
	} else {
		corsConfig.AllowOrigins = "*"
		// Credentials are never allowed with a wildcard origin.
		corsConfig.AllowCredentials = false
	}
	app.Use(cors.New(corsConfig))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":      "ok",
			"message":     "RoomChat dev server is running",
			"environment": s.config.Environment,
			"rooms":       s.wsManager.GetActiveConnections(),
		})
	})

	app.Get("/auth/status", s.handleAuthStatus)
	if !s.config.IsProduction() {
		app.Post("/auth/dev-token", s.handleDevToken)
	}
	app.Get("/room/members/:roomId", s.requireBearer, s.handleGetRoomMembers)

	app.Use("/ws", s.upgradeGuard)
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		user, _ := c.Locals(localsUser).(domain.User)
		s.wsManager.HandleConnection(c, c.Query("roomId"), user)
	}))

	return app
}

// upgradeGuard admits websocket upgrades that name a room and carry a valid
// token in the query string.
func (s *Server) upgradeGuard(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if c.Query("roomId") == "" {
		return fiber.NewError(fiber.StatusBadRequest, "roomId is required")
	}
	claims, err := s.signer.Verify(c.Query("token"))
	if err != nil {
		return fiber.ErrUnauthorized
	}
	c.Locals(localsUser, claims.User())
	return c.Next()
}

func (s *Server) Start() error {
	log.Printf("RoomChat dev server starting on port %s", s.config.Port)
	return s.app.Listen(":" + s.config.Port)
}

// Serve runs the server on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

func (s *Server) Shutdown(timeout time.Duration) error {
	return s.app.ShutdownWithTimeout(timeout)
}
