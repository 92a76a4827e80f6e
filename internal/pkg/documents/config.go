package documents

import (
	"errors"
	"time"

	"github.com/ManuelReschke/TalentDesk/internal/pkg/env"
)

// Config holds object storage configuration for documents.
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	LocalDir        string
	URLExpiry       time.Duration
	Enabled         bool
}

// LoadConfig loads document storage configuration from environment variables.
// Without S3 the store falls back to LocalDir.
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "ap-southeast-2"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		LocalDir:        env.GetEnv("DOCUMENTS_LOCAL_DIR", "./uploads/documents"),
		URLExpiry:       15 * time.Minute,
		Enabled:         env.GetEnv("S3_DOCUMENTS_ENABLED", "false") == "true",
	}

	// Validate required fields if S3 is enabled
	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when S3 documents are enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when S3 documents are enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when S3 documents are enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if S3 storage is enabled
func (c *Config) IsEnabled() bool {
	return c.Enabled
}
