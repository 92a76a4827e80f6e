package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/TalentDesk/app/models"
	"github.com/ManuelReschke/TalentDesk/app/repository"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/testutil"
)

var pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")

type memoryObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemoryObjects() *memoryObjects {
	return &memoryObjects{objects: map[string][]byte{}}
}

func (m *memoryObjects) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if m.putErr != nil {
		return m.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memoryObjects) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryObjects) URL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "https://files.example.test/" + key, nil
}

type failingDocs struct {
	repository.DocumentRepository
}

func (failingDocs) Create(ctx context.Context, doc *models.Document) error {
	return errors.New("insert failed")
}

func TestValidateDocumentBySniff(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	jpeg := []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00")

	tests := []struct {
		name     string
		filename string
		head     []byte
		want     string
		wantErr  error
	}{
		{"pdf", "invoice.pdf", pdfBytes, "application/pdf", nil},
		{"png", "scan.PNG", png, "image/png", nil},
		{"jpeg", "receipt.jpeg", jpeg, "image/jpeg", nil},
		{"unsupported extension", "notes.txt", []byte("hello"), "", ErrUnsupportedType},
		{"html disguised as pdf", "invoice.pdf", []byte("<html><script>x</script></html>"), "", ErrTypeMismatch},
		{"empty", "invoice.pdf", nil, "", ErrEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateDocumentBySniff(tt.filename, tt.head)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStoreUploadAndGet(t *testing.T) {
	db := testutil.NewTestDB(t)
	user := testutil.CreateUser(t, db, "talent@example.test")
	objects := newMemoryObjects()
	store := NewStore(objects, repository.NewDocumentRepository(db), time.Minute)
	store.now = func() time.Time { return time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC) }

	doc, err := store.Upload(context.Background(), UploadInput{
		UserID:       user.ID,
		Filename:     "../January Invoice.pdf",
		Content:      bytes.NewReader(pdfBytes),
		DocumentType: models.DocumentTypeInvoice,
		UploadedBy:   99,
	})
	require.NoError(t, err)

	assert.Equal(t, "January Invoice.pdf", doc.Filename)
	assert.Equal(t, "application/pdf", doc.MimeType)
	assert.Equal(t, int64(len(pdfBytes)), doc.Size)
	assert.True(t, strings.HasPrefix(doc.ObjectKey, fmt.Sprintf("documents/%d/2026/02/", user.ID)), doc.ObjectKey)
	assert.True(t, strings.HasSuffix(doc.ObjectKey, ".pdf"))
	assert.Equal(t, pdfBytes, objects.objects[doc.ObjectKey])

	info, err := store.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, info.UserID)
	assert.Equal(t, "https://files.example.test/"+doc.ObjectKey, info.URL)

	_, err = store.Get(context.Background(), doc.ID+100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreUploadRejectsOversizedContent(t *testing.T) {
	objects := newMemoryObjects()
	store := NewStore(objects, failingDocs{}, time.Minute)

	big := append(append([]byte{}, pdfBytes...), bytes.Repeat([]byte("a"), MaxDocumentSize)...)
	_, err := store.Upload(context.Background(), UploadInput{UserID: 1, Filename: "big.pdf", Content: bytes.NewReader(big)})

	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Empty(t, objects.objects)
}

func TestStoreUploadRemovesObjectWhenInsertFails(t *testing.T) {
	objects := newMemoryObjects()
	store := NewStore(objects, failingDocs{}, time.Minute)

	_, err := store.Upload(context.Background(), UploadInput{UserID: 1, Filename: "a.pdf", Content: bytes.NewReader(pdfBytes)})

	require.Error(t, err)
	assert.Empty(t, objects.objects)
}

func TestStoreUploadPutFailureStoresNothing(t *testing.T) {
	db := testutil.NewTestDB(t)
	user := testutil.CreateUser(t, db, "talent@example.test")
	objects := newMemoryObjects()
	objects.putErr = errors.New("bucket unavailable")
	store := NewStore(objects, repository.NewDocumentRepository(db), time.Minute)

	_, err := store.Upload(context.Background(), UploadInput{UserID: user.ID, Filename: "a.pdf", Content: bytes.NewReader(pdfBytes)})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.Document{}).Count(&count).Error)
	assert.Zero(t, count)
}
