// Package middleware provides HTTP middleware for the back-office API.
// Provider callbacks do not pass through here; they authenticate with HMAC
// signatures and session tokens inside the callback handler.
package middleware

import (
	"strings"

	"betcore/internal/utils"
	"betcore/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

// OperatorAuth validates the ops API bearer token and stores the claims in
// the request context.
type OperatorAuth struct {
	secret string
}

func NewOperatorAuth(secret string) *OperatorAuth {
	return &OperatorAuth{secret: secret}
}

func (m *OperatorAuth) Handler(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return response.Unauthorized(c, "missing authorization header")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return response.Unauthorized(c, "invalid authorization format")
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")

	claims, err := utils.ParseOperatorToken(tokenString, m.secret)
	if err != nil {
		return response.Unauthorized(c, "invalid token")
	}

	c.Locals("claims", claims)
	c.Locals("operatorID", claims.OperatorID)
	return c.Next()
}
