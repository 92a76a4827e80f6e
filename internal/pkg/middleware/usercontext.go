package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/TalentDesk/internal/pkg/session"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/usercontext"
)

// UserContextMiddleware sets up the complete user context for every request
func UserContextMiddleware(c *fiber.Ctx) error {
	// Goth keeps OAuth state in its own session store; skip ours on /auth/*.
	// Webhooks are server-to-server and carry no cookie.
	if strings.HasPrefix(c.Path(), "/auth/") || strings.HasPrefix(c.Path(), "/webhooks/") {
		return c.Next()
	}
	store := session.GetSessionStore()
	if store == nil {
		usercontext.Set(c, usercontext.UserContext{})
		return c.Next()
	}
	sess, err := store.Get(c)
	if err != nil {
		usercontext.Set(c, usercontext.UserContext{})
		return c.Next()
	}

	userID, ok := sess.Get(session.KeyUserID).(uint)
	if !ok || userID == 0 {
		usercontext.Set(c, usercontext.UserContext{})
		return c.Next()
	}

	username, _ := sess.Get(session.KeyUsername).(string)
	isAdmin, _ := sess.Get(session.KeyIsAdmin).(bool)
	usercontext.Set(c, usercontext.UserContext{
		UserID:     userID,
		Username:   username,
		IsLoggedIn: true,
		IsAdmin:    isAdmin,
	})

	return c.Next()
}
