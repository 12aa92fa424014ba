package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Client stores exported story assets in an S3-compatible bucket
type Client struct {
	s3Client      *s3.Client
	bucket        string
	publicURL     string // optional base URL for public bucket (e.g. http://localhost:9000/storybook)
	presignExpiry time.Duration
}

// NewClient creates a new S3 storage client
func NewClient(ctx context.Context, endpoint, region, bucket, accessKey, secretKey, publicURL string, presignExpiry time.Duration) (*Client, error) {
	configOpts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if accessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}

	// Custom endpoint for MinIO/LocalStack/R2
	if endpoint != "" {
		configOpts = append(configOpts, config.WithBaseEndpoint(endpoint))
	}

	cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Path-style addressing for MinIO. Checksums only when required, for backends
	// (e.g. Cloudflare R2) without full CRC32 header support.
	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	log.Info().
		Str("endpoint", endpoint).
		Str("bucket", bucket).
		Bool("public_url", publicURL != "").
		Msg("S3 client initialized")

	return &Client{
		s3Client:      s3Client,
		bucket:        bucket,
		publicURL:     strings.TrimSuffix(publicURL, "/"),
		presignExpiry: presignExpiry,
	}, nil
}

// StoryKey returns the object key of a file belonging to an exported story.
func StoryKey(storyID uuid.UUID, name string) string {
	return path.Join("stories", storyID.String(), name)
}

// PublicURL returns the public URL for an object key. Empty if publicURL was not configured.
func (c *Client) PublicURL(key string) string {
	if c.publicURL == "" {
		return ""
	}
	return c.publicURL + "/" + key
}

// ObjectURL returns the public URL of key, or a presigned download URL when the bucket is not public.
func (c *Client) ObjectURL(ctx context.Context, key string) (string, error) {
	if u := c.PublicURL(key); u != "" {
		return u, nil
	}
	return c.GeneratePresignedURL(ctx, key, c.presignExpiry)
}

// Upload stores data under key. Content-Length is always sent; S3-compatible backends (e.g. R2) require it.
func (c *Client) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if _, err := c.s3Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	log.Info().
		Str("bucket", c.bucket).
		Str("key", key).
		Int("size_bytes", len(data)).
		Msg("File uploaded to S3")

	return nil
}

// GeneratePresignedURL generates a presigned URL for downloading an object
func (c *Client) GeneratePresignedURL(ctx context.Context, key string, expiration time.Duration) (string, error) {
	presignClient := s3.NewPresignClient(c.s3Client)

	req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expiration
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return req.URL, nil
}

// DeletePrefix deletes every object under prefix.
func (c *Client) DeletePrefix(ctx context.Context, prefix string) error {
	paginator := s3.NewListObjectsV2Paginator(c.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})
	deleted := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list S3 objects: %w", err)
		}
		for _, obj := range page.Contents {
			if _, err := c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(c.bucket),
				Key:    obj.Key,
			}); err != nil {
				return fmt.Errorf("failed to delete from S3: %w", err)
			}
			deleted++
		}
	}

	log.Info().
		Str("bucket", c.bucket).
		Str("prefix", prefix).
		Int("deleted", deleted).
		Msg("Files deleted from S3")

	return nil
}
