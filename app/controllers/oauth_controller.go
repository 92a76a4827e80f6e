package controllers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/markbates/goth"
	gothfiber "github.com/shareed2k/goth_fiber"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TalentDesk/app/models"
	"github.com/ManuelReschke/TalentDesk/app/repository"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/constants"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/session"
)

// HandleOAuthCallback completes the provider flow and logs the user in
func HandleOAuthCallback(c *fiber.Ctx) error {
	u, err := gothfiber.CompleteUserAuth(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString(fmt.Sprintf("OAuth failed: %v", err))
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	repos := repository.GetGlobalRepositories()
	var appUser *models.User
	err = repos.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		appUser, err = resolveOAuthUser(txCtx, repos, u)
		return err
	})
	if err != nil {
		log.Errorf("[OAuth] %s login for %s failed: %v", u.Provider, u.UserID, err)
		return c.Status(fiber.StatusInternalServerError).SendString("login failed")
	}
	if appUser.Status == models.STATUS_DISABLED {
		return c.Status(fiber.StatusForbidden).SendString("account disabled")
	}

	if err := session.Login(c, appUser.ID, appUser.Name, appUser.Role == models.ROLE_ADMIN); err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("session save failed")
	}
	if err := repos.User.TouchLastLogin(ctx, appUser.ID, time.Now()); err != nil {
		log.Warnf("[OAuth] Updating last login for user %d failed: %v", appUser.ID, err)
	}

	// Ensure HTMX boosted flows perform a full redirect
	c.Set("HX-Redirect", constants.UserBillingRoute)
	return c.Redirect(constants.UserBillingRoute, fiber.StatusSeeOther)
}

// resolveOAuthUser finds the user linked to the provider identity, links an
// existing account by email, or registers a new talent pending approval.
func resolveOAuthUser(ctx context.Context, repos *repository.Repositories, u goth.User) (*models.User, error) {
	var exp *time.Time
	if !u.ExpiresAt.IsZero() {
		t := u.ExpiresAt
		exp = &t
	}

	pa, err := repos.ProviderAccount.GetByProviderUserID(ctx, u.Provider, u.UserID)
	if err == nil {
		pa.AccessToken = u.AccessToken
		pa.RefreshToken = u.RefreshToken
		pa.ExpiresAt = exp
		if err := repos.ProviderAccount.Save(ctx, pa); err != nil {
			return nil, fmt.Errorf("update tokens: %w", err)
		}
		return repos.User.GetByID(ctx, pa.UserID)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(u.Email))
	var appUser *models.User
	if email != "" {
		appUser, err = repos.User.GetByEmail(ctx, email)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if appUser == nil {
		if email == "" {
			// unique placeholder for providers that do not share an email
			email = fmt.Sprintf("%s_%s@%s.oauth.local", u.Provider, u.UserID, u.Provider)
		}
		hash, err := models.HashPassword(fmt.Sprintf("oauth_%d", time.Now().UnixNano()))
		if err != nil {
			return nil, err
		}
		appUser = &models.User{
			Name:           firstNonEmpty(u.Name, u.NickName, u.Email, "Talent"),
			Email:          email,
			Password:       hash,
			Role:           models.ROLE_USER,
			Status:         models.STATUS_ACTIVE,
			ApprovalStatus: models.APPROVAL_PENDING,
			AvatarURL:      u.AvatarURL,
		}
		if err := repos.User.Create(ctx, appUser); err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		log.Infof("[OAuth] Registered user %d via %s, pending approval", appUser.ID, u.Provider)
	}

	if err := repos.ProviderAccount.Save(ctx, &models.ProviderAccount{
		UserID:         appUser.ID,
		Provider:       u.Provider,
		ProviderUserID: u.UserID,
		AccessToken:    u.AccessToken,
		RefreshToken:   u.RefreshToken,
		ExpiresAt:      exp,
	}); err != nil {
		return nil, fmt.Errorf("link provider: %w", err)
	}
	return appUser, nil
}
