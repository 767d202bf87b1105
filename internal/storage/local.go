// Copyright 2025 James Ross
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// LocalStorage writes artifacts under a base directory, used when BUCKET
// is unconfigured (spec.md 6).
type LocalStorage struct {
	baseDir string
	log     *zap.Logger
}

func NewLocalStorage(baseDir string, log *zap.Logger) *LocalStorage {
	return &LocalStorage{baseDir: baseDir, log: log}
}

func (s *LocalStorage) Store(ctx context.Context, key, srcPath string) error {
	dst := filepath.Join(s.baseDir, key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		s.log.Error("storage mkdir failed", zap.String("key", key), zap.Error(err))
		return err
	}
	if err := copyFile(srcPath, dst); err != nil {
		s.log.Error("storage copy failed", zap.String("key", key), zap.Error(err))
		return err
	}
	s.log.Info("storage write succeeded", zap.String("key", key))
	return nil
}

func (s *LocalStorage) StoreBatch(ctx context.Context, files []File) error {
	failed := 0
	var lastErr error
	for _, f := range files {
		var err error
		for attempt := 0; attempt <= batchRetryBudget; attempt++ {
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

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s -> %s: %w", src, dst, err)
	}
	return nil
}

var _ Storage = (*LocalStorage)(nil)
