package session

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/TalentDesk/internal/pkg/cache"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/env"
)

// Keys stored in the login session.
const (
	KeyAuthenticated = "authenticated"
	KeyUserID        = "user_id"
	KeyUsername      = "username"
	KeyIsAdmin       = "isAdmin"
)

var sessionStore *session.Store

// RedisAddr splits the cache client's address, falling back to localhost.
func RedisAddr() (string, int, string, string) {
	host := "localhost"
	port := 6379
	username := ""
	password := env.GetEnv("CACHE_PASSWORD", "")
	if cacheClient := cache.GetClient(); cacheClient != nil {
		opts := cacheClient.Options()
		if h, p, err := net.SplitHostPort(opts.Addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		} else if opts.Addr != "" {
			host = opts.Addr
		}
		username = opts.Username
		if opts.Password != "" {
			password = opts.Password
		}
	}
	return host, port, username, password
}

// NewSessionStore creates the login session store in Redis database 1.
func NewSessionStore() *session.Store {
	host, port, username, password := RedisAddr()

	storage := redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		Database: 1, // cache uses DB 0
		Reset:    false,
	})

	sessionStore = session.New(session.Config{
		Storage:        storage,
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
		CookieSecure:   !env.IsDev(),
		Expiration:     8 * time.Hour,
		KeyLookup:      "cookie:session_id",
	})

	return sessionStore
}

// SetSessionStore replaces the store, e.g. with an in-memory store in tests.
func SetSessionStore(store *session.Store) {
	sessionStore = store
}

func GetSessionStore() *session.Store {
	return sessionStore
}

// SetSessionValue stores a key-value pair in the user's individual session
func SetSessionValue(c *fiber.Ctx, key string, value string) error {
	if sessionStore == nil {
		return fmt.Errorf("session store not initialized")
	}

	sess, err := sessionStore.Get(c)
	if err != nil {
		return fmt.Errorf("failed to get session: %v", err)
	}

	sess.Set(key, value)
	return sess.Save()
}

// GetSessionValue retrieves a value by key from the user's individual session
func GetSessionValue(c *fiber.Ctx, key string) string {
	if sessionStore == nil {
		return ""
	}

	sess, err := sessionStore.Get(c)
	if err != nil {
		return ""
	}

	value, ok := sess.Get(key).(string)
	if !ok {
		return ""
	}
	return value
}

// Login regenerates the session and stores the signed-in user.
func Login(c *fiber.Ctx, userID uint, username string, isAdmin bool) error {
	if sessionStore == nil {
		return fmt.Errorf("session store not initialized")
	}
	sess, err := sessionStore.Get(c)
	if err != nil {
		return fmt.Errorf("failed to get session: %v", err)
	}
	if err := sess.Regenerate(); err != nil {
		return fmt.Errorf("failed to regenerate session: %v", err)
	}
	sess.Set(KeyAuthenticated, true)
	sess.Set(KeyUserID, userID)
	sess.Set(KeyUsername, username)
	sess.Set(KeyIsAdmin, isAdmin)
	return sess.Save()
}
