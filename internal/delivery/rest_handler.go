package delivery

import (
	"strings"

	"roomchat-ws/internal/domain"

	"github.com/gofiber/fiber/v2"
)

func bearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func (s *Server) requireBearer(c *fiber.Ctx) error {
	claims, err := s.signer.Verify(bearerToken(c))
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Invalid or missing token",
		})
	}
	c.Locals(localsUser, claims.User())
	return c.Next()
}

func (s *Server) handleAuthStatus(c *fiber.Ctx) error {
	token := bearerToken(c)
	claims, err := s.signer.Verify(token)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(domain.AuthStatusResponse{IsAuthenticated: false})
	}
	user := claims.User()
	return c.JSON(domain.AuthStatusResponse{
		IsAuthenticated: true,
		User:            &user,
		Token:           token,
	})
}

func (s *Server) handleGetRoomMembers(c *fiber.Ctx) error {
	members, err := s.members.Members(c.UserContext(), c.Params("roomId"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to get room members",
			"error":   err.Error(),
		})
	}
	return c.JSON(domain.MembersResponse{Data: members})
}

// handleDevToken issues a signed token for any posted user. It is not
// mounted in production.
func (s *Server) handleDevToken(c *fiber.Ctx) error {
	var user domain.User
	if err := c.BodyParser(&user); err != nil || strings.TrimSpace(user.ID) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "A user with an id is required",
		})
	}
	token, err := s.signer.Issue(user, s.config.TokenTTL)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to issue token",
			"error":   err.Error(),
		})
	}
	return c.JSON(domain.AuthStatusResponse{IsAuthenticated: true, User: &user, Token: token})
}
