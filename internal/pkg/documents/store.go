// Package documents stores user documents in object storage and keeps their
// metadata in the database.
package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/ManuelReschke/TalentDesk/app/models"
	"github.com/ManuelReschke/TalentDesk/app/repository"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNotFound is returned for unknown document ids.
var ErrNotFound = errors.New("document not found")

// UploadInput describes a document to store for UserID.
type UploadInput struct {
	UserID       uint
	Filename     string
	Content      io.Reader
	DocumentType string
	Description  string
	UploadedBy   uint
}

// DocumentInfo is the public view of a stored document.
type DocumentInfo struct {
	ID       uint   `json:"id"`
	UserID   uint   `json:"user_id"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Mime     string `json:"mime"`
	URL      string `json:"url"`
}

// Store uploads documents and resolves their download URLs.
type Store struct {
	objects   ObjectStore
	docs      repository.DocumentRepository
	urlExpiry time.Duration
	now       func() time.Time
}

// NewStore creates a document store.
func NewStore(objects ObjectStore, docs repository.DocumentRepository, urlExpiry time.Duration) *Store {
	if urlExpiry <= 0 {
		urlExpiry = 15 * time.Minute
	}
	return &Store{objects: objects, docs: docs, urlExpiry: urlExpiry, now: time.Now}
}

// ObjectKey builds documents/{user}/{yyyy}/{mm}/{uuid}{ext}.
func ObjectKey(userID uint, at time.Time, id, ext string) string {
	return fmt.Sprintf("documents/%d/%04d/%02d/%s%s", userID, at.Year(), int(at.Month()), id, strings.ToLower(ext))
}

// Upload validates the content, writes it to object storage and inserts the
// metadata row. If the insert fails the stored object is removed again.
func (s *Store) Upload(ctx context.Context, in UploadInput) (*models.Document, error) {
	if in.UserID == 0 {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidUpload)
	}
	if in.Content == nil {
		return nil, ErrEmpty
	}
	name := filepath.Base(strings.TrimSpace(in.Filename))
	if name == "" || name == "." || name == "/" {
		return nil, fmt.Errorf("%w: filename is required", ErrInvalidUpload)
	}

	data, err := io.ReadAll(io.LimitReader(in.Content, MaxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) > MaxDocumentSize {
		return nil, ErrTooLarge
	}
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	mime, err := ValidateDocumentBySniff(name, head)
	if err != nil {
		return nil, err
	}

	docType := in.DocumentType
	if docType == "" {
		docType = models.DocumentTypeOther
	}
	doc := &models.Document{
		UserID:       in.UserID,
		Filename:     name,
		ObjectKey:    ObjectKey(in.UserID, s.now().UTC(), uuid.NewString(), filepath.Ext(name)),
		Size:         int64(len(data)),
		MimeType:     mime,
		DocumentType: docType,
		Description:  strings.TrimSpace(in.Description),
		UploadedBy:   in.UploadedBy,
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUpload, err)
	}

	if err := s.objects.Put(ctx, doc.ObjectKey, bytes.NewReader(data), doc.Size, mime); err != nil {
		return nil, err
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		if delErr := s.objects.Delete(context.WithoutCancel(ctx), doc.ObjectKey); delErr != nil {
			log.Errorf("[Documents] Failed to remove object %s after insert error: %v", doc.ObjectKey, delErr)
		}
		return nil, fmt.Errorf("failed to save document: %w", err)
	}

	log.Infof("[Documents] Stored document %d for user %d (%s, %d bytes)", doc.ID, doc.UserID, doc.MimeType, doc.Size)
	return doc, nil
}

// Get returns the document's metadata and a download URL.
func (s *Store) Get(ctx context.Context, id uint) (*DocumentInfo, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	url, err := s.objects.URL(ctx, doc.ObjectKey, s.urlExpiry)
	if err != nil {
		return nil, err
	}
	return &DocumentInfo{
		ID:       doc.ID,
		UserID:   doc.UserID,
		Filename: doc.Filename,
		Size:     doc.Size,
		Mime:     doc.MimeType,
		URL:      url,
	}, nil
}
