package promofile

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/ManuelReschke/OproPay/internal/pkg/env"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"
)

// S3Config holds the bucket that stores promo code files.
type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	Prefix          string
	EndpointURL     string // Optional for S3-compatible services
}

// LoadS3Config loads the bucket settings from environment variables.
func LoadS3Config() (*S3Config, error) {
	cfg := &S3Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      strings.TrimSpace(env.GetEnv("PROMO_FILES_S3_BUCKET", "")),
		Prefix:          strings.Trim(env.GetEnv("PROMO_FILES_S3_PREFIX", "promo"), "/"),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
	}
	if cfg.Enabled() {
		if cfg.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when PROMO_FILES_S3_BUCKET is set")
		}
		if cfg.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when PROMO_FILES_S3_BUCKET is set")
		}
	}
	return cfg, nil
}

func (c *S3Config) Enabled() bool {
	return c.BucketName != ""
}

// ObjectKey maps a promo file name to its key in the bucket.
func (c *S3Config) ObjectKey(name string) string {
	if c.Prefix == "" {
		return name
	}
	return path.Join(c.Prefix, name)
}

type objectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads promo code files from a bucket.
type S3Source struct {
	client objectGetter
	config *S3Config
}

// NewS3Source creates a source backed by the configured bucket.
func NewS3Source(ctx context.Context, cfg *S3Config) (*S3Source, error) {
	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	})

	log.Infof("[PromoFile] Reading promo code files from s3://%s/%s", cfg.BucketName, cfg.Prefix)
	return &S3Source{client: client, config: cfg}, nil
}

func (s *S3Source) ReadLine(ctx context.Context, file string, line int) (string, error) {
	name, err := cleanName(file)
	if err != nil {
		return "", err
	}
	key := s.config.ObjectKey(name)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("get s3://%s/%s: %w", s.config.BucketName, key, err)
	}
	defer out.Body.Close()
	return scanLine(ctx, out.Body, line)
}
