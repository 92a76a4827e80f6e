package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/sujit-baniya/flash"

	"github.com/ManuelReschke/TalentDesk/app/models"
	"github.com/ManuelReschke/TalentDesk/app/repository"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/constants"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/env"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/session"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/turnstile"
)

// CaptchaVerifier checks a login captcha token.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

var loginCaptcha CaptchaVerifier

// SetCaptchaVerifier replaces the login captcha check.
func SetCaptchaVerifier(v CaptchaVerifier) {
	loginCaptcha = v
}

func captchaVerifier() CaptchaVerifier {
	if loginCaptcha == nil {
		loginCaptcha = turnstile.NewVerifierFromEnv()
	}
	return loginCaptcha
}

// loginFailed is the only message shown for bad credentials.
const loginFailed = "There is a problem with the login process"

func HandleAuthLogin(c *fiber.Ctx) error {
	if c.Method() != fiber.MethodPost {
		if isLoggedIn(c) {
			return c.Redirect(constants.UserBillingRoute, fiber.StatusSeeOther)
		}
		return render(c, "auth/login", " | Login", fiber.Map{
			"SiteKey": turnstile.SiteKey(),
		})
	}

	fm := fiber.Map{"type": "error"}
	ctx, cancel := requestContext(c, 15*time.Second)
	defer cancel()

	token := c.FormValue(turnstile.FormField)
	if env.IsDev() && turnstile.SiteKey() == "" {
		log.Warn("[Auth] Turnstile not configured, skipping captcha in dev")
	} else if ok, err := captchaVerifier().Verify(ctx, token, GetClientIP(c)); err != nil || !ok {
		log.Warnf("[Auth] Captcha rejected for %s: %v", GetClientIP(c), err)
		fm["message"] = "Captcha validation failed. Please try again."
		return flash.WithError(c, fm).Redirect(constants.LoginRoute)
	}

	users := repository.GetGlobalRepositories().User
	email := strings.ToLower(strings.TrimSpace(c.FormValue("email")))
	user, err := users.GetByEmail(ctx, email)
	if err != nil || !user.CheckPassword(c.FormValue("password")) {
		fm["message"] = loginFailed
		return flash.WithError(c, fm).Redirect(constants.LoginRoute)
	}
	if user.Status == models.STATUS_DISABLED {
		fm["message"] = "Your account is disabled"
		return flash.WithError(c, fm).Redirect(constants.LoginRoute)
	}

	if err := session.Login(c, user.ID, user.Name, user.Role == models.ROLE_ADMIN); err != nil {
		log.Errorf("[Auth] Session for user %d failed: %v", user.ID, err)
		fm["message"] = "Something went wrong, please try again"
		return flash.WithError(c, fm).Redirect(constants.LoginRoute)
	}
	if err := users.TouchLastLogin(ctx, user.ID, time.Now()); err != nil {
		log.Warnf("[Auth] Updating last login for user %d failed: %v", user.ID, err)
	}

	target := constants.UserBillingRoute
	if user.Role == models.ROLE_ADMIN {
		target = constants.AdminBillingRoute
	}
	return flash.WithSuccess(c, fiber.Map{"type": "success", "message": "Welcome back, " + user.Name}).Redirect(target)
}

func HandleAuthLogout(c *fiber.Ctx) error {
	fm := fiber.Map{
		"type": "error",
	}

	store := session.GetSessionStore()
	if store == nil {
		fm["message"] = "logged out (no session)"
		return flash.WithError(c, fm).Redirect(constants.LoginRoute)
	}
	sess, err := store.Get(c)
	if err != nil {
		fm["message"] = "logged out (no session)"
		return flash.WithError(c, fm).Redirect(constants.LoginRoute)
	}

	if err := sess.Destroy(); err != nil {
		log.Errorf("[Auth] Destroying session failed: %v", err)
		fm["message"] = "Something went wrong, please try again"
		return flash.WithError(c, fm).Redirect(constants.LoginRoute)
	}

	c.Locals(FROM_PROTECTED, false)

	return flash.WithSuccess(c, fiber.Map{"type": "success", "message": "You have been logged out"}).Redirect(constants.LoginRoute)
}
