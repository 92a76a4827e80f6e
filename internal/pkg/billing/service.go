package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/TalentDesk/app/models"
	"github.com/ManuelReschke/TalentDesk/app/repository"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/cache"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/metrics"
	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Monthly run outcomes per user.
const (
	RunOutcomeCreated    = "created"
	RunOutcomeExists     = "exists"
	RunOutcomeNoActivity = "skipped_no_activity"
	RunOutcomeFailed     = "failed"
)

const runLockTTL = 30 * time.Minute

// UserDirectory resolves the users billing works on.
type UserDirectory interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	ListApproved(ctx context.Context) ([]models.User, error)
}

// Service wires aggregation, pricing, the ledger and the linker together.
type Service struct {
	Ledger     *Ledger
	Linker     *Linker
	Aggregator *Aggregator

	repo   Repository
	users  UserDirectory
	locker cache.Locker
	cfg    Config
}

// NewService creates a billing service from its parts. locker may be nil.
func NewService(repo Repository, repos *repository.Repositories, uploader DocumentUploader, locker cache.Locker, cfg Config) *Service {
	return &Service{
		Ledger:     NewLedger(repo, repos.Tx, cfg),
		Linker:     NewLinker(repo, repos.Document, repos.Tx, uploader),
		Aggregator: NewAggregator(repos.Message, cfg),
		repo:       repo,
		users:      repos.User,
		locker:     locker,
		cfg:        cfg,
	}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, uploader DocumentUploader, locker cache.Locker, cfg Config) *Service {
	return NewService(NewRepository(db), repository.NewRepositories(db), uploader, locker, cfg)
}

// Config returns the billing configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// Preview is a priced bill that has not been stored.
type Preview struct {
	UserID uint         `json:"user_id"`
	Period Period       `json:"period"`
	Label  string       `json:"label"`
	Counts Counts       `json:"counts"`
	Fees   FeeBreakdown `json:"fees"`
}

// PreviewBill aggregates and prices a period without persisting anything.
func (s *Service) PreviewBill(ctx context.Context, userID uint, period Period) (*Preview, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	counts, err := s.Aggregator.Aggregate(ctx, userID, period)
	if err != nil {
		return nil, err
	}
	return &Preview{
		UserID: userID,
		Period: period,
		Label:  period.Label(),
		Counts: counts,
		Fees:   CalculateFees(counts, s.cfg.Pricing),
	}, nil
}

// CreateBillFromActivity aggregates, prices and stores the user's bill.
func (s *Service) CreateBillFromActivity(ctx context.Context, userID uint, period Period, actor uint, notes string) (*models.Bill, error) {
	preview, err := s.PreviewBill(ctx, userID, period)
	if err != nil {
		return nil, err
	}
	return s.Ledger.CreateBill(ctx, CreateBillInput{
		UserID: userID,
		Period: period,
		Counts: preview.Counts,
		Fees:   preview.Fees,
		Actor:  actor,
		Notes:  notes,
	})
}

// RunOutcome is the result of the monthly run for one user.
type RunOutcome struct {
	UserID  uint            `json:"user_id"`
	Email   string          `json:"email"`
	Outcome string          `json:"outcome"`
	BillID  uint            `json:"bill_id,omitempty"`
	Total   decimal.Decimal `json:"total"`
	Error   string          `json:"error,omitempty"`
}

// RunSummary is the result of a monthly billing run.
type RunSummary struct {
	Period   Period       `json:"period"`
	Label    string       `json:"label"`
	Outcomes []RunOutcome `json:"outcomes"`
	Created  int          `json:"created"`
	Existing int          `json:"existing"`
	Skipped  int          `json:"skipped"`
	Failed   int          `json:"failed"`
}

// GenerateMonthlyBills bills every approved user for period. One user's
// failure is recorded and the run continues. Runs for the same period are
// serialized across processes by a cache lock.
func (s *Service) GenerateMonthlyBills(ctx context.Context, period Period, actor uint) (*RunSummary, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	if s.locker != nil {
		lock, err := s.locker.Acquire(ctx, "billing:run:"+period.Key(), runLockTTL)
		if err != nil {
			if errors.Is(err, cache.ErrLockHeld) {
				return nil, ErrRunInProgress
			}
			return nil, err
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				log.Warnf("[BillLedger] Failed to release run lock for %s: %v", period.Key(), err)
			}
		}()
	}

	started := time.Now()
	defer func() {
		metrics.Default().MonthlyRunDuration.Observe(time.Since(started).Seconds())
	}()

	users, err := s.users.ListApproved(ctx)
	if err != nil {
		return nil, fmt.Errorf("list approved users: %w", err)
	}

	summary := &RunSummary{Period: period, Label: period.Label(), Outcomes: make([]RunOutcome, 0, len(users))}
	for _, u := range users {
		out := RunOutcome{UserID: u.ID, Email: u.Email, Total: decimal.Zero}

		counts, err := s.Aggregator.Aggregate(ctx, u.ID, period)
		if err != nil {
			out.Outcome = RunOutcomeFailed
			out.Error = err.Error()
			summary.add(out)
			log.Errorf("[BillLedger] Aggregation failed for user %d: %v", u.ID, err)
			continue
		}
		if counts.IsZero() {
			out.Outcome = RunOutcomeNoActivity
			summary.add(out)
			continue
		}

		bill, err := s.Ledger.CreateBill(ctx, CreateBillInput{
			UserID: u.ID,
			Period: period,
			Counts: counts,
			Fees:   CalculateFees(counts, s.cfg.Pricing),
			Actor:  actor,
		})
		switch {
		case err == nil:
			out.Outcome = RunOutcomeCreated
			out.BillID = bill.ID
			out.Total = bill.TotalAmount
		case errors.Is(err, ErrBillExists):
			out.Outcome = RunOutcomeExists
			if bill != nil {
				out.BillID = bill.ID
				out.Total = bill.TotalAmount
			}
		default:
			out.Outcome = RunOutcomeFailed
			out.Error = err.Error()
			log.Errorf("[BillLedger] Creating bill failed for user %d: %v", u.ID, err)
		}
		summary.add(out)
	}

	log.Infof("[BillLedger] Monthly run %s: %d created, %d existing, %d without activity, %d failed",
		summary.Label, summary.Created, summary.Existing, summary.Skipped, summary.Failed)
	return summary, nil
}

func (r *RunSummary) add(out RunOutcome) {
	r.Outcomes = append(r.Outcomes, out)
	switch out.Outcome {
	case RunOutcomeCreated:
		r.Created++
	case RunOutcomeExists:
		r.Existing++
	case RunOutcomeNoActivity:
		r.Skipped++
	default:
		r.Failed++
	}
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// RecordWebhookEvent persists webhook payloads idempotently. The returned
// bool is false for a redelivered event.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(ctx, event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(ctx, webhookEventID, errMsg)
}
