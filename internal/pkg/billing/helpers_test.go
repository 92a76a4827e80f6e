package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TalentDesk/app/models"
	"github.com/ManuelReschke/TalentDesk/app/repository"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/cache"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/documents"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/testutil"
)

var jan2026 = MonthPeriod(2026, time.January)

type fixture struct {
	db    *gorm.DB
	repos *repository.Repositories
	svc   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	repos := repository.NewRepositories(db)
	svc := NewService(NewRepository(db), repos, &fakeUploader{docs: repos.Document}, nil, DefaultConfig())
	return &fixture{db: db, repos: repos, svc: svc}
}

func (f *fixture) countRows(t *testing.T, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := f.db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

// aest returns a wall-clock time in the default billing zone.
func aest(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, AEST)
}

func (f *fixture) addMessage(t *testing.T, userID uint, subject, source string, at time.Time, manual bool) {
	t.Helper()
	require.NoError(t, f.repos.Message.Create(context.Background(), &models.Message{
		UserID:       userID,
		Subject:      subject,
		ThreadKey:    ThreadKey(subject),
		Source:       source,
		ManualReview: manual,
		ProcessedAt:  at,
	}))
}

type fakeUploader struct {
	docs repository.DocumentRepository
	err  error
}

func (u *fakeUploader) Upload(ctx context.Context, in documents.UploadInput) (*models.Document, error) {
	if u.err != nil {
		return nil, u.err
	}
	doc := &models.Document{
		UserID:       in.UserID,
		Filename:     in.Filename,
		ObjectKey:    "documents/test/" + in.Filename + time.Now().Format("150405.000000000"),
		Size:         10,
		MimeType:     "application/pdf",
		DocumentType: in.DocumentType,
		Description:  in.Description,
		UploadedBy:   in.UploadedBy,
	}
	if err := u.docs.Create(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

type fakeLocker struct {
	held map[string]bool
	keys []string
}

func (l *fakeLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (*cache.Lock, error) {
	l.keys = append(l.keys, key)
	if l.held[key] {
		return nil, cache.ErrLockHeld
	}
	return &cache.Lock{}, nil
}
