package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/SergeiKhy/fileshare/internal/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// Предел срока действия presigned URL для SigV4
const maxPresignTTL = 7 * 24 * time.Hour

// S3 хранилище объектов в бакете S3
type S3 struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	logger  *zap.Logger
}

func NewS3(ctx context.Context, bucket, region string, logger *zap.Logger) (*S3, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	return &S3{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
		logger:  logger,
	}, nil
}

func (s *S3) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}

func (s *S3) List(ctx context.Context, prefix string) ([]models.ObjectInfo, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	objects := make([]models.ObjectInfo, 0)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			objects = append(objects, models.ObjectInfo{
				Key:        key,
				Name:       path.Base(key),
				Size:       aws.ToInt64(obj.Size),
				ModifiedAt: aws.ToTime(obj.LastModified),
			})
		}
	}
	return objects, nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

func (s *S3) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, time.Duration, error) {
	if ttl > maxPresignTTL {
		s.logger.Warn("Presign TTL clamped to S3 limit",
			zap.Duration("requested", ttl),
			zap.Duration("limit", maxPresignTTL),
		)
		ttl = maxPresignTTL
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(s.bucket),
		Key:                        aws.String(key),
		ResponseContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", path.Base(key))),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", 0, fmt.Errorf("failed to presign object: %w", err)
	}
	return req.URL, ttl, nil
}
