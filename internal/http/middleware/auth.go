package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// OwnerKey is the Locals key under which the resolved owner ID is stored.
const OwnerKey = "owner_id"

// Auth resolves request credentials to an owner identity. A missing
// Authorization header means the caller is anonymous and the request
// proceeds without an owner; a present but invalid token is rejected.
// The rest of the application only ever sees an owner ID or nothing.
func Auth(secret []byte) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return c.Next()
		}

		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "malformed authorization header",
			})
		}

		token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid or expired token",
			})
		}

		subject, err := token.Claims.GetSubject()
		if err != nil || subject == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "token has no subject",
			})
		}

		c.Locals(OwnerKey, subject)
		return c.Next()
	}
}

// RequireAuth rejects requests that did not resolve to an owner.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if owner := OwnerFromCtx(c); owner == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "authentication required",
			})
		}
		return c.Next()
	}
}

// OwnerFromCtx returns the resolved owner ID, or nil for anonymous callers.
func OwnerFromCtx(c *fiber.Ctx) *string {
	if v, ok := c.Locals(OwnerKey).(string); ok && v != "" {
		return &v
	}
	return nil
}
