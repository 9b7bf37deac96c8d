package middleware

import (
	"go-lead-import/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

const CallbackClaimsKey = "callback_claims"

// CallbackAuthMiddleware verifies the signed token the queue dispatcher
// attaches to stage callbacks, so the worker endpoints cannot be driven by
// arbitrary callers.
func CallbackAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "callback token required",
			})
		}

		claims, err := utils.ValidateCallbackToken(authHeader[7:])
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid callback token",
			})
		}

		c.Locals(CallbackClaimsKey, claims)
		return c.Next()
	}
}
