package storage

import (
	"errors"
	"time"

	"github.com/arsound/arsound/internal/pkg/env"
)

// Config holds the S3 settings for pack archives.
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // optional, for S3-compatible services
	PresignTTL      time.Duration
}

// LoadConfig loads S3 configuration from environment variables
func LoadConfig() (*Config, error) {
	ttl, err := time.ParseDuration(env.GetEnv("S3_PRESIGN_TTL", "15m"))
	if err != nil || ttl <= 0 {
		ttl = 15 * time.Minute
	}
	cfg := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		PresignTTL:      ttl,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.AccessKeyID == "" {
		return errors.New("S3_ACCESS_KEY_ID is required")
	}
	if c.SecretAccessKey == "" {
		return errors.New("S3_SECRET_ACCESS_KEY is required")
	}
	if c.BucketName == "" {
		return errors.New("S3_BUCKET_NAME is required")
	}
	return nil
}
