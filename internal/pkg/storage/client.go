package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ArchiveContentType is the only upload type accepted for pack archives.
const ArchiveContentType = "application/zip"

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// PresignedRequest is a time-limited URL plus the headers the client must send.
type PresignedRequest struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// Client signs pack archive uploads and downloads.
type Client struct {
	s3Client *s3.Client
	presign  *s3.PresignClient
	config   *Config
}

// NewClient builds the S3 client. It does no network I/O; use Ping to check
// the bucket.
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("storage config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsConfig, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	})

	return &Client{
		s3Client: s3Client,
		presign:  s3.NewPresignClient(s3Client),
		config:   cfg,
	}, nil
}

// Ping checks that the bucket is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.config.BucketName)})
	if err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", c.config.BucketName, err)
	}
	return nil
}

// ObjectKey is the canonical key of a pack archive: packs/{owner}/{pack}/{name}.
func ObjectKey(ownerID, packID, fileName string) string {
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	base = unsafeName.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		base = "pack"
	}
	if !strings.HasSuffix(strings.ToLower(base), ".zip") {
		base += ".zip"
	}
	return fmt.Sprintf("packs/%s/%s/%s", ownerID, packID, base)
}

// PresignUpload signs a PUT for exactly size bytes. The signed Content-Length
// makes S3 reject bodies of any other size.
func (c *Client) PresignUpload(ctx context.Context, key string, size int64) (*PresignedRequest, error) {
	if size <= 0 {
		return nil, errors.New("size must be positive")
	}
	req, err := c.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.config.BucketName),
		Key:           aws.String(key),
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(ArchiveContentType),
	}, s3.WithPresignExpires(c.config.PresignTTL))
	if err != nil {
		return nil, fmt.Errorf("presign upload %s: %w", key, err)
	}
	return toPresigned(req.URL, req.Method, req.SignedHeader, c.config.PresignTTL), nil
}

// PresignDownload signs a GET that downloads under the given file name.
func (c *Client) PresignDownload(ctx context.Context, key, fileName string) (*PresignedRequest, error) {
	disposition := fmt.Sprintf(`attachment; filename="%s"`, path.Base(key))
	if fileName != "" {
		disposition = fmt.Sprintf(`attachment; filename="%s"`, unsafeName.ReplaceAllString(fileName, "_"))
	}
	req, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(c.config.BucketName),
		Key:                        aws.String(key),
		ResponseContentDisposition: aws.String(disposition),
	}, s3.WithPresignExpires(c.config.PresignTTL))
	if err != nil {
		return nil, fmt.Errorf("presign download %s: %w", key, err)
	}
	return toPresigned(req.URL, req.Method, nil, c.config.PresignTTL), nil
}

// Delete removes an archive. Missing objects are not an error in S3.
func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.config.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func toPresigned(url, method string, signed http.Header, ttl time.Duration) *PresignedRequest {
	headers := map[string]string{}
	for k, v := range signed {
		if strings.EqualFold(k, "host") || len(v) == 0 {
			continue
		}
		headers[k] = v[0]
	}
	return &PresignedRequest{
		URL:       url,
		Method:    method,
		Headers:   headers,
		ExpiresAt: time.Now().Add(ttl),
	}
}
