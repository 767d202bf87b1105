// Copyright 2025 James Ross
package storage

import (
	"context"
	"fmt"
)

// File is one item in a storeBatch call: a storage key and the local path
// of the bytes to upload.
type File struct {
	Key     string
	SrcPath string
}

// BatchError reports how many files in a storeBatch call permanently
// failed after the retry budget, per spec.md 3 invariant ("storeBatch is
// atomic with respect to success-reporting").
type BatchError struct {
	Failed int
	Total  int
	Last   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("storeBatch: %d/%d files failed: %v", e.Failed, e.Total, e.Last)
}

// Storage is the two-backend contract (spec.md 4.2): object-store or local
// filesystem, selected statically at process start.
type Storage interface {
	Store(ctx context.Context, key, srcPath string) error
	StoreBatch(ctx context.Context, files []File) error
}
