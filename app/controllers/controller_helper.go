package controllers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/sujit-baniya/flash"

	"github.com/ManuelReschke/TalentDesk/internal/pkg/billing"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/usercontext"
)

const FROM_PROTECTED = usercontext.KeyFromProtected

const requestTimeout = 30 * time.Second

// errNotConfigured is reported when an optional integration is switched off.
var errNotConfigured = billing.NewError(billing.KindExternal, "integration is not configured")

func isLoggedIn(c *fiber.Ctx) bool {
	return usercontext.IsLoggedIn(c)
}

// requestContext derives a bounded context for service calls from the request.
func requestContext(c *fiber.Ctx, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), timeout)
}

// parseIDParam reads a positive numeric route parameter.
func parseIDParam(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, billing.ErrInvalidInput
	}
	return uint(id), nil
}

// parseFormID reads a positive numeric form or query value.
func parseFormID(c *fiber.Ctx, name string) (uint, error) {
	raw := strings.TrimSpace(c.FormValue(name))
	if raw == "" {
		raw = strings.TrimSpace(c.Query(name))
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, billing.ErrInvalidInput
	}
	return uint(id), nil
}

// statusForKind maps an error class to its HTTP status.
func statusForKind(k billing.Kind) int {
	switch k {
	case billing.KindConflict:
		return fiber.StatusConflict
	case billing.KindValidation:
		return fiber.StatusUnprocessableEntity
	case billing.KindNotFound:
		return fiber.StatusNotFound
	case billing.KindExternal:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// respondJSON writes a billing.Result with the status matching err.
func respondJSON(c *fiber.Ctx, data interface{}, message string, err error) error {
	result, fault := billing.NewResult(data, message, err)
	if fault != nil {
		log.Errorf("[HTTP] %s %s failed: %v", c.Method(), c.Path(), fault)
		return c.Status(fiber.StatusInternalServerError).JSON(result)
	}
	if !result.Success {
		if errors.Is(err, errNotConfigured) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(result)
		}
		return c.Status(statusForKind(billing.KindOf(err))).JSON(result)
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

// wantsJSON reports whether the client asked for a JSON response instead of
// a redirect.
func wantsJSON(c *fiber.Ctx) bool {
	return strings.Contains(c.Get(fiber.HeaderAccept), fiber.MIMEApplicationJSON)
}

// respond answers form posts with a flash redirect and JSON clients with a Result.
func respond(c *fiber.Ctx, redirect string, data interface{}, message string, err error) error {
	if wantsJSON(c) {
		return respondJSON(c, data, message, err)
	}
	if err == nil {
		return flash.WithSuccess(c, fiber.Map{"type": "success", "message": message}).Redirect(redirect)
	}
	if billing.KindOf(err) == billing.KindFault {
		log.Errorf("[HTTP] %s %s failed: %v", c.Method(), c.Path(), err)
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Something went wrong, please try again"}).Redirect(redirect)
	}
	return flash.WithError(c, fiber.Map{"type": "error", "message": err.Error()}).Redirect(redirect)
}

// csrfToken returns the token set by the csrf middleware, if any.
func csrfToken(c *fiber.Ctx) string {
	token, _ := c.Locals("csrf").(string)
	return token
}

// render fills the layout fields every page needs and renders view.
func render(c *fiber.Ctx, view, title string, data fiber.Map) error {
	if data == nil {
		data = fiber.Map{}
	}
	userCtx := usercontext.GetUserContext(c)
	data["Title"] = "TalentDesk" + title
	data["User"] = userCtx
	data["Flash"] = flash.Get(c)
	data["CSRF"] = csrfToken(c)
	return c.Render(view, data, "layouts/main")
}

// GetClientIP returns the original client address behind Cloudflare or a proxy.
func GetClientIP(c *fiber.Ctx) string {
	if cfIP := strings.TrimSpace(c.Get("CF-Connecting-IP")); cfIP != "" {
		return cfIP
	}
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(c.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return strings.TrimPrefix(c.IP(), "::ffff:")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
