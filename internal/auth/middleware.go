package auth

import (
	"strings"

	"github.com/agehcx/hiking-app-sub000/internal/apperrors"

	"github.com/gofiber/fiber/v2"
)

const (
	localUserID = "user_id"
	localClaims = "claims"
)

// JWTMiddleware validates bearer tokens and stores the caller in locals.
func JWTMiddleware(tokens *Tokens) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerFromHeader(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			return apperrors.Unauthorized("Access token required")
		}
		return authenticate(c, tokens, token)
	}
}

// OptionalJWTMiddleware identifies the caller when a bearer token is sent
// and lets anonymous requests through. A bad token is still rejected.
func OptionalJWTMiddleware(tokens *Tokens) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerFromHeader(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			return c.Next()
		}
		return authenticate(c, tokens, token)
	}
}

func authenticate(c *fiber.Ctx, tokens *Tokens, token string) error {
	claims, err := tokens.Verify(token)
	if err != nil {
		return err
	}
	c.Locals(localUserID, claims.UserID)
	c.Locals(localClaims, claims)
	return c.Next()
}

// UserID returns the authenticated caller, or "" for anonymous requests.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(localUserID).(string)
	return id
}

func ClaimsFrom(c *fiber.Ctx) *Claims {
	claims, _ := c.Locals(localClaims).(*Claims)
	return claims
}

func bearerFromHeader(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
