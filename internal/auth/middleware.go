package auth

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"labreserve/internal/model"
)

const localsClaims = "auth_claims"

// UserExists reports whether the user behind a token is still present. A
// nil UserExists skips the check.
type UserExists func(ctx context.Context, id int64) (bool, error)

// RequireUser authenticates the Bearer token and stores the claims for
// ClaimsFrom.
func RequireUser(tokens *TokenManager, exists UserExists) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := bearerToken(c)
		if raw == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		claims, err := tokens.Parse(raw)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "could not validate credentials")
		}

		if exists != nil {
			ok, err := exists(c.UserContext(), claims.UserID)
			if err != nil {
				return err
			}
			if !ok {
				return fiber.NewError(fiber.StatusUnauthorized, "could not validate credentials")
			}
		}

		c.Locals(localsClaims, claims)
		return c.Next()
	}
}

// RequireRoles must run after RequireUser.
func RequireRoles(roles ...model.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := ClaimsFrom(c)
		if claims == nil {
			return fiber.NewError(fiber.StatusUnauthorized, "missing credentials")
		}
		for _, r := range roles {
			if claims.Role == r {
				return c.Next()
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "operation not permitted for role "+string(claims.Role))
	}
}

// RequireAPIKey guards internal endpoints with the x-api-key header. An
// empty key disables the check.
func RequireAPIKey(key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key == "" {
			return c.Next()
		}
		got := c.Get("x-api-key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid api key")
		}
		return c.Next()
	}
}

// ClaimsFrom returns the claims stored by RequireUser, or nil.
func ClaimsFrom(c *fiber.Ctx) *Claims {
	claims, _ := c.Locals(localsClaims).(*Claims)
	return claims
}

func bearerToken(c *fiber.Ctx) string {
	const prefix = "Bearer "
	header := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
