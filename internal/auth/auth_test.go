package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"labreserve/internal/model"
)

var teacher = &model.User{ID: 7, Username: "ana", Role: model.RoleTeacher}

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)

	token, err := tm.Issue(teacher)
	require.NoError(t, err)

	claims, err := tm.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "ana", claims.Username)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, model.RoleTeacher, claims.Role)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, 2*time.Second)
}

func TestTokenManager_Rejects(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)

	expired := NewTokenManager("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.Issue(teacher)
	require.NoError(t, err)

	foreign, err := NewTokenManager("other", time.Hour).Issue(teacher)
	require.NoError(t, err)

	noRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ana", "id": 7, "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":      old,
		"wrong secret": foreign,
		"missing role": noRole,
		"garbage":      "not-a-token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := tm.Parse(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestPasswords(t *testing.T) {
	_, err := HashPassword("12345", bcrypt.MinCost)
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	hash, err := HashPassword("s3cret!", bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "s3cret!"))
	assert.False(t, CheckPassword(hash, "wrong"))
}

func TestRBAC(t *testing.T) {
	assert.Equal(t, []string{"*"}, AllowedRoutes(model.RoleAdmin))
	assert.Equal(t, []string{"dashboard", "resources", "bookings", "settings"}, AllowedRoutes(model.RoleTeacher))
	assert.Empty(t, AllowedRoutes("guest"))

	assert.True(t, RouteAllowed(model.RoleAdmin, "anything"))
	assert.True(t, RouteAllowed(model.RoleTeacher, "bookings"))
	assert.False(t, RouteAllowed(model.RoleStudent, "bookings"))
	assert.True(t, RouteAllowed(model.RoleStudent, "settings"))
}

func newApp(tm *TokenManager, exists UserExists) *fiber.App {
	app := fiber.New()
	app.Get("/me", RequireUser(tm, exists), func(c *fiber.Ctx) error {
		return c.SendString(ClaimsFrom(c).Username)
	})
	app.Get("/admin", RequireUser(tm, exists), RequireRoles(model.RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Get("/internal", RequireAPIKey("k"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func TestMiddleware(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	token, err := tm.Issue(teacher)
	require.NoError(t, err)

	gone := func(context.Context, int64) (bool, error) { return false, nil }
	broken := func(context.Context, int64) (bool, error) { return false, errors.New("db down") }

	tests := []struct {
		name   string
		exists UserExists
		path   string
		header map[string]string
		want   int
	}{
		{name: "no token", path: "/me", want: fiber.StatusUnauthorized},
		{name: "bad token", path: "/me", header: map[string]string{"Authorization": "Bearer nope"}, want: fiber.StatusUnauthorized},
		{name: "ok", path: "/me", header: map[string]string{"Authorization": "Bearer " + token}, want: fiber.StatusOK},
		{name: "lowercase scheme", path: "/me", header: map[string]string{"Authorization": "bearer " + token}, want: fiber.StatusOK},
		{name: "deleted user", exists: gone, path: "/me", header: map[string]string{"Authorization": "Bearer " + token}, want: fiber.StatusUnauthorized},
		{name: "lookup failure", exists: broken, path: "/me", header: map[string]string{"Authorization": "Bearer " + token}, want: fiber.StatusInternalServerError},
		{name: "wrong role", path: "/admin", header: map[string]string{"Authorization": "Bearer " + token}, want: fiber.StatusForbidden},
		{name: "api key missing", path: "/internal", want: fiber.StatusUnauthorized},
		{name: "api key ok", path: "/internal", header: map[string]string{"x-api-key": "k"}, want: fiber.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newApp(tm, tt.exists)
			req := httptest.NewRequest("GET", tt.path, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
