package oauth

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/session"
	redisstorage "github.com/gofiber/storage/redis"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/discord"
	"github.com/markbates/goth/providers/google"
	"github.com/markbates/goth/providers/twitch"
	gothfiber "github.com/shareed2k/goth_fiber"

	"github.com/ManuelReschke/TalentDesk/internal/pkg/env"
	appsession "github.com/ManuelReschke/TalentDesk/internal/pkg/session"
)

const youtubeReadonlyScope = "https://www.googleapis.com/auth/youtube.readonly"

// Providers builds the goth providers that have credentials configured.
// YouTube is a Google provider registered under its own name with the
// channel read scope.
func Providers(base string) []goth.Provider {
	var providers []goth.Provider
	if key := env.GetEnv("TWITCH_KEY", ""); key != "" {
		providers = append(providers, twitch.New(
			key,
			env.GetEnv("TWITCH_SECRET", ""),
			base+"/auth/twitch/callback",
			twitch.ScopeUserReadEmail,
		))
	}
	if key := env.GetEnv("DISCORD_KEY", ""); key != "" {
		providers = append(providers, discord.New(
			key,
			env.GetEnv("DISCORD_SECRET", ""),
			base+"/auth/discord/callback",
			discord.ScopeIdentify, discord.ScopeEmail,
		))
	}
	if key := env.GetEnv("GOOGLE_KEY", ""); key != "" {
		secret := env.GetEnv("GOOGLE_SECRET", "")
		providers = append(providers, google.New(key, secret, base+"/auth/google/callback", "email", "profile"))

		yt := google.New(key, secret, base+"/auth/youtube/callback", "email", "profile", youtubeReadonlyScope)
		yt.SetName("youtube")
		providers = append(providers, yt)
	}
	return providers
}

// Setup registers the configured providers and the OAuth state store.
// It is safe to call multiple times; providers will just be re-registered.
func Setup() {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	if base == "" {
		base = "http://localhost:" + env.GetEnv("APP_PORT", "4000")
	}

	providers := Providers(base)
	if len(providers) == 0 {
		log.Warn("[OAuth] No providers configured, social login disabled")
	}
	goth.UseProviders(providers...)

	// OAuth state via Redis, same server as app sessions, separate DB
	host, port, username, password := appsession.RedisAddr()
	gothfiber.SessionStore = session.New(session.Config{
		Storage: redisstorage.New(redisstorage.Config{
			Host:     host,
			Port:     port,
			Username: username,
			Password: password,
			Database: 2,
			Reset:    false,
		}),
		KeyLookup:      "cookie:" + gothic.SessionName,
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
		CookieSecure:   !env.IsDev(),
		Expiration:     time.Hour,
	})
}
