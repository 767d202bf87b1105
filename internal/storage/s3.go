// Copyright 2025 James Ross
package storage

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/dclexplorer/consumer-processor/internal/config"
	"go.uber.org/zap"
)

const batchRetryBudget = 3

// S3Storage uploads artifacts and reports to an object store, grounded on
// the teacher's internal/long-term-archives/s3_exporter.go session/uploader
// shape.
type S3Storage struct {
	bucket   string
	prefix   string
	uploader *s3manager.Uploader
	log      *zap.Logger
}

func NewS3Storage(cfg config.Storage, awsCfg config.AWS, log *zap.Logger) (*S3Storage, error) {
	sessCfg := &aws.Config{Region: aws.String(awsCfg.Region)}
	endpoint := cfg.S3Endpoint
	if endpoint == "" {
		endpoint = awsCfg.Endpoint
	}
	if endpoint != "" {
		sessCfg.Endpoint = aws.String(endpoint)
		sessCfg.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		sessCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	sess, err := session.NewSession(sessCfg)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return &S3Storage{
		bucket:   cfg.Bucket,
		prefix:   cfg.S3Prefix,
		uploader: s3manager.NewUploader(sess),
		log:      log,
	}, nil
}

func (s *S3Storage) effectiveKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

func (s *S3Storage) Store(ctx context.Context, key, srcPath string) error {
	f, err := os.Open(srcPath)
	if err != nil {
		s.log.Error("storage open failed", zap.String("key", key), zap.Error(err))
		return err
	}
	defer f.Close()

	fullKey := s.effectiveKey(key)
	_, err = s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
		Body:   f,
	})
	if err != nil {
		s.log.Error("storage upload failed", zap.String("key", fullKey), zap.Error(err))
		return err
	}
	s.log.Info("storage upload succeeded", zap.String("key", fullKey))
	return nil
}

// StoreBatch retries each file independently up to the retry budget before
// counting it as a permanent failure (spec.md 4.2).
func (s *S3Storage) StoreBatch(ctx context.Context, files []File) error {
	failed := 0
	var lastErr error
	for _, f := range files {
		var err error
		for attempt := 0; attempt <= batchRetryBudget; attempt++ {
			if attempt > 0 {
				time.Sleep(time.Duration(attempt) * 200 * time.Millisecond)
			}
			err = s.Store(ctx, f.Key, f.SrcPath)
			if err == nil {
				break
			}
		}
		if err != nil {
			failed++
			lastErr = err
		}
	}
	if failed > 0 {
		return &BatchError{Failed: failed, Total: len(files), Last: lastErr}
	}
	return nil
}

var _ Storage = (*S3Storage)(nil)
