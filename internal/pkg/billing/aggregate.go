package billing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ManuelReschke/TalentDesk/app/models"
)

// Counts is the billable activity of one user in one period.
type Counts struct {
	TotalThreads        int `json:"total_message_count"`
	InHoursThreads      int `json:"in_hours_count"`
	OutOfHoursThreads   int `json:"out_of_hours_count"`
	ManualReviewThreads int `json:"manual_review_count"`
	SMSCount            int `json:"sms_count"`
}

// IsZero reports whether there was no billable activity.
func (c Counts) IsZero() bool {
	return c.TotalThreads == 0 && c.ManualReviewThreads == 0 && c.SMSCount == 0
}

// Validate checks that the counts are non-negative and the hour split adds up.
func (c Counts) Validate() error {
	if c.TotalThreads < 0 || c.InHoursThreads < 0 || c.OutOfHoursThreads < 0 ||
		c.ManualReviewThreads < 0 || c.SMSCount < 0 {
		return fmt.Errorf("%w: counts must not be negative", ErrInvalidInput)
	}
	if c.InHoursThreads+c.OutOfHoursThreads != c.TotalThreads {
		return fmt.Errorf("%w: in-hours and out-of-hours threads must add up to the total", ErrInvalidInput)
	}
	if c.ManualReviewThreads > c.TotalThreads {
		return fmt.Errorf("%w: manual review threads exceed total threads", ErrInvalidInput)
	}
	return nil
}

// MessageStore reads the messaging subsystem's processed messages and SMS.
type MessageStore interface {
	ListBillableMessages(ctx context.Context, userID uint, from, to time.Time) ([]models.Message, error)
	CountSentSMS(ctx context.Context, userID uint, from, to time.Time) (int, error)
}

var replyPrefixes = []string{"re:", "fw:", "fwd:", "aw:", "wg:"}

// ThreadKey normalizes a subject line so replies and forwards share the key
// of the message that started the thread.
func ThreadKey(subject string) string {
	s := strings.ToLower(strings.Join(strings.Fields(subject), " "))
	for {
		trimmed := false
		for _, p := range replyPrefixes {
			if strings.HasPrefix(s, p) {
				s = strings.TrimSpace(s[len(p):])
				trimmed = true
			}
		}
		if !trimmed {
			return s
		}
	}
}

type thread struct {
	billedAt     time.Time
	qualifying   bool
	manualReview bool
}

// CountThreads groups messages into threads and counts the billable ones. A
// thread is billable when an external message or an expectation check is
// part of it, and it is billed at the time of its earliest such message.
// Messages without a subject cannot be grouped and each form their own thread.
func CountThreads(msgs []models.Message, hours BusinessHours) Counts {
	sorted := make([]models.Message, len(msgs))
	copy(sorted, msgs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ProcessedAt.Equal(sorted[j].ProcessedAt) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].ProcessedAt.Before(sorted[j].ProcessedAt)
	})

	threads := make(map[string]*thread)
	for i := range sorted {
		m := &sorted[i]
		// stored keys come from the messaging side and are normalized again
		key := ThreadKey(m.ThreadKey)
		if key == "" {
			key = ThreadKey(m.Subject)
		}
		if key == "" {
			key = fmt.Sprintf("#%d", m.ID)
		}

		th, ok := threads[key]
		if !ok {
			th = &thread{}
			threads[key] = th
		}
		if m.ManualReview {
			th.manualReview = true
		}
		if !th.qualifying && (m.IsExternal() || m.ExpectationCheck) {
			th.qualifying = true
			th.billedAt = m.ProcessedAt
		}
	}

	var c Counts
	for _, th := range threads {
		if !th.qualifying {
			continue
		}
		c.TotalThreads++
		if hours.Contains(th.billedAt) {
			c.InHoursThreads++
		} else {
			c.OutOfHoursThreads++
		}
		if th.manualReview {
			c.ManualReviewThreads++
		}
	}
	return c
}

// Aggregator computes Counts from the message store.
type Aggregator struct {
	store MessageStore
	cfg   Config
}

// NewAggregator creates an aggregator over store.
func NewAggregator(store MessageStore, cfg Config) *Aggregator {
	return &Aggregator{store: store, cfg: cfg}
}

// Aggregate counts the user's billable threads and sent SMS inside period.
// Period days are interpreted in the billing timezone.
func (a *Aggregator) Aggregate(ctx context.Context, userID uint, period Period) (Counts, error) {
	if userID == 0 {
		return Counts{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if err := period.Validate(); err != nil {
		return Counts{}, err
	}

	from, to := period.Bounds(a.cfg.Location)
	msgs, err := a.store.ListBillableMessages(ctx, userID, from, to)
	if err != nil {
		return Counts{}, fmt.Errorf("list messages: %w", err)
	}
	sms, err := a.store.CountSentSMS(ctx, userID, from, to)
	if err != nil {
		return Counts{}, fmt.Errorf("count sms: %w", err)
	}

	counts := CountThreads(msgs, a.cfg.BusinessHours)
	counts.SMSCount = sms
	return counts, nil
}
