// Package testutil provides shared fixtures for database-backed tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/TalentDesk/app/models"
)

// NewTestDB opens a private in-memory SQLite database with the full schema.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// CreateUser inserts an approved, active user.
func CreateUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	u := &models.User{
		Name:           strings.Split(email, "@")[0],
		Email:          email,
		Password:       "x",
		Role:           models.ROLE_USER,
		Status:         models.STATUS_ACTIVE,
		ApprovalStatus: models.APPROVAL_APPROVED,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreateDocument inserts a document owned by userID.
func CreateDocument(t *testing.T, db *gorm.DB, userID uint, filename string) *models.Document {
	t.Helper()
	d := &models.Document{
		UserID:       userID,
		Filename:     filename,
		ObjectKey:    fmt.Sprintf("documents/%d/%s-%d", userID, filename, time.Now().UnixNano()),
		Size:         1024,
		MimeType:     "application/pdf",
		DocumentType: models.DocumentTypeInvoice,
	}
	require.NoError(t, db.Create(d).Error)
	return d
}

// CreateBill inserts a draft monthly bill starting at start with the given standard fee.
func CreateBill(t *testing.T, db *gorm.DB, userID uint, start time.Time, standardFee string) *models.Bill {
	t.Helper()
	end := start.AddDate(0, 1, -1)
	b := &models.Bill{
		UserID:             userID,
		BillingPeriodStart: start,
		BillingPeriodEnd:   end,
		StandardFee:        decimal.RequireFromString(standardFee),
		BillStatus:         models.BillStatusDraft,
		Currency:           "aud",
		DueDate:            end.AddDate(0, 0, 14),
	}
	b.RecalculateTotal()
	require.NoError(t, db.Create(b).Error)
	return b
}
