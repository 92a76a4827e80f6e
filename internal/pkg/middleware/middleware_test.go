package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/TalentDesk/internal/pkg/usercontext"
)

func newApp(uc *usercontext.UserContext, handlers ...fiber.Handler) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if uc != nil {
			usercontext.Set(c, *uc)
		}
		return c.Next()
	})
	handlers = append(handlers, func(c *fiber.Ctx) error {
		return c.JSON(usercontext.GetUserContext(c))
	})
	app.Get("/", handlers...)
	return app
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name     string
		uc       *usercontext.UserContext
		status   int
		location string
	}{
		{"anonymous", nil, fiber.StatusSeeOther, "/login"},
		{"talent", &usercontext.UserContext{UserID: 2, IsLoggedIn: true}, fiber.StatusSeeOther, "/"},
		{"admin", &usercontext.UserContext{UserID: 1, IsLoggedIn: true, IsAdmin: true}, fiber.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := newApp(tt.uc, RequireAdmin).Test(httptest.NewRequest("GET", "/", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.location, resp.Header.Get("Location"))
		})
	}
}

func TestRequireAPIAdmin(t *testing.T) {
	resp, err := newApp(nil, RequireAPIAdmin).Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	talent := &usercontext.UserContext{UserID: 2, IsLoggedIn: true}
	resp, err = newApp(talent, RequireAPIAdmin).Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestAPIKeyAuthMiddleware(t *testing.T) {
	app := newApp(nil, APIKeyAuthMiddleware("s3cret"), RequireAPIAdmin)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-API-Key", "s3cret")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-API-Key", "wrong")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	// no key falls through to the session, which is anonymous here
	resp, err = app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAPIKeyAuthMiddlewareDisabledWithoutKey(t *testing.T) {
	app := newApp(nil, APIKeyAuthMiddleware(""))
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-API-Key", "anything")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
