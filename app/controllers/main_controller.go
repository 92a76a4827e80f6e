package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/TalentDesk/internal/pkg/constants"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/usercontext"
)

// HandleStart sends visitors to the page that fits their role.
func HandleStart(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	switch {
	case !uc.IsLoggedIn:
		return c.Redirect(constants.LoginRoute, fiber.StatusSeeOther)
	case uc.IsAdmin:
		return c.Redirect(constants.AdminBillingRoute, fiber.StatusSeeOther)
	default:
		return c.Redirect(constants.UserBillingRoute, fiber.StatusSeeOther)
	}
}
