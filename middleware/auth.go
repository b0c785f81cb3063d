package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"
)

// UserContextMiddleware extracts the caller's identity set by the
// Gateway. The service trusts these headers opaquely — authentication
// happened upstream. Claim routes fail 401 without a user id.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-ID")
		email := c.Get("X-User-Email")

		if userID == "" {
			log.Printf("❌ [USER_CTX] X-User-ID missing on secured route: %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "missing user context — request must come through gateway with auth",
			})
		}

		c.Locals("user_id", userID)
		c.Locals("user_email", email)

		return c.Next()
	}
}
