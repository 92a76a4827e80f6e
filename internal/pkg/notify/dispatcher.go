// Package notify emails talents when a bill is ready.
package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/template/html/v2"

	"github.com/ManuelReschke/TalentDesk/app/models"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/metrics"
)

//go:embed templates/*.html
var templateFS embed.FS

const billTemplate = "bill_notification"

// Mailer delivers one HTML email.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// UserLookup resolves the bill owner.
type UserLookup interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

// BillMarker records that a bill notification went out.
type BillMarker interface {
	MarkSent(ctx context.Context, billID uint, at time.Time) (*models.Bill, error)
}

// Dispatcher renders and sends bill notifications.
type Dispatcher struct {
	mailer       Mailer
	users        UserLookup
	bills        BillMarker
	engine       *html.Engine
	publicDomain string
	now          func() time.Time
}

// NewDispatcher loads the embedded templates.
func NewDispatcher(mailer Mailer, users UserLookup, bills BillMarker, publicDomain string) (*Dispatcher, error) {
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, err
	}
	engine := html.NewFileSystem(http.FS(sub), ".html")
	if err := engine.Load(); err != nil {
		return nil, fmt.Errorf("load notification templates: %w", err)
	}
	return &Dispatcher{
		mailer:       mailer,
		users:        users,
		bills:        bills,
		engine:       engine,
		publicDomain: strings.TrimRight(publicDomain, "/"),
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

type billView struct {
	Name          string
	PeriodLabel   string
	Threads       int
	ManualReviews int
	SMS           int
	Credit        string
	Amount        string
	Currency      string
	DueDate       string
	BillURL       string
}

// Render returns the subject and HTML body for a bill.
func (d *Dispatcher) Render(bill *models.Bill, user *models.User) (string, string, error) {
	view := billView{
		Name:          user.Name,
		PeriodLabel:   bill.PeriodLabel(),
		Threads:       bill.MessageCount,
		ManualReviews: bill.ManualReviewCount,
		SMS:           bill.SMSCount,
		Amount:        bill.TotalAmount.StringFixed(2),
		Currency:      strings.ToUpper(bill.Currency),
		DueDate:       bill.DueDate.Format("2 January 2006"),
		BillURL:       fmt.Sprintf("%s/user/billing/%d", d.publicDomain, bill.ID),
	}
	if bill.AccountCredit.IsPositive() {
		view.Credit = bill.AccountCredit.StringFixed(2)
	}

	var buf bytes.Buffer
	if err := d.engine.Render(&buf, billTemplate, view); err != nil {
		return "", "", err
	}
	subject := fmt.Sprintf("Your TalentDesk bill for %s", view.PeriodLabel)
	return subject, buf.String(), nil
}

// SendBillNotification emails the bill to its owner and marks it sent when
// the mailer accepted the message. Failures are logged and reported as
// false; nothing is retried and the bill is left unchanged.
func (d *Dispatcher) SendBillNotification(ctx context.Context, bill *models.Bill) bool {
	if bill.IsSettled() {
		log.Warnf("[Notify] Bill %d is %s, not sending", bill.ID, bill.BillStatus)
		metrics.Default().BillNotifications.WithLabelValues("skipped").Inc()
		return false
	}
	user, err := d.users.GetByID(ctx, bill.UserID)
	if err != nil {
		log.Errorf("[Notify] Bill %d: loading user %d failed: %v", bill.ID, bill.UserID, err)
		metrics.Default().BillNotifications.WithLabelValues("failed").Inc()
		return false
	}
	subject, body, err := d.Render(bill, user)
	if err != nil {
		log.Errorf("[Notify] Bill %d: rendering failed: %v", bill.ID, err)
		metrics.Default().BillNotifications.WithLabelValues("failed").Inc()
		return false
	}
	if err := d.mailer.Send(ctx, user.Email, subject, body); err != nil {
		log.Errorf("[Notify] Bill %d: sending to %s failed: %v", bill.ID, user.Email, err)
		metrics.Default().BillNotifications.WithLabelValues("failed").Inc()
		return false
	}

	metrics.Default().BillNotifications.WithLabelValues("sent").Inc()
	if _, err := d.bills.MarkSent(ctx, bill.ID, d.now()); err != nil {
		log.Errorf("[Notify] Bill %d emailed but could not be marked sent: %v", bill.ID, err)
		return true
	}
	log.Infof("[Notify] Bill %d sent to %s", bill.ID, user.Email)
	return true
}
