package documents

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"
)

// MaxDocumentSize is the largest accepted upload.
const MaxDocumentSize = 20 << 20

var allowedExt = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

var (
	ErrUnsupportedType = errors.New("only PDF, PNG and JPEG documents are supported")
	ErrTypeMismatch    = errors.New("file content does not match its extension")
	ErrTooLarge        = errors.New("document exceeds the 20 MiB limit")
	ErrEmpty           = errors.New("document is empty")
	ErrInvalidUpload   = errors.New("invalid document upload")
)

// ValidateDocumentBySniff checks the filename extension and the first bytes
// (head) against the supported document types. Returns the detected mime.
func ValidateDocumentBySniff(filename string, head []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	want, ok := allowedExt[ext]
	if !ok {
		return "", ErrUnsupportedType
	}
	if len(head) == 0 {
		return "", ErrEmpty
	}

	detected := http.DetectContentType(head)
	if idx := strings.Index(detected, ";"); idx >= 0 {
		detected = detected[:idx]
	}
	if detected != want {
		return "", ErrTypeMismatch
	}
	return detected, nil
}

// IsValidationError reports whether err rejects the upload content itself.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrUnsupportedType) || errors.Is(err, ErrTypeMismatch) ||
		errors.Is(err, ErrTooLarge) || errors.Is(err, ErrEmpty) || errors.Is(err, ErrInvalidUpload)
}
