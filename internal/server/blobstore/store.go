// Package blobstore persists uploaded file contents under a per-owner
// namespace, either on the local filesystem or in an S3-compatible bucket.
package blobstore

import (
	"context"
	"fmt"
	"io"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/filex"
	sc "github.com/dmitrijs2005/gophvault/internal/server/config"
)

// Store keeps one object per (owner, filename). Put overwrites, Remove
// tolerates a missing object, Open returns common.ErrorNotFound for one.
type Store interface {
	Dir(ownerID int64) string
	Put(ctx context.Context, ownerID int64, filename string, data []byte) error
	Remove(ctx context.Context, ownerID int64, filename string) error
	Open(ctx context.Context, ownerID int64, filename string) (io.ReadCloser, error)
}

// Presigner is implemented by stores that can hand out time-limited download URLs.
type Presigner interface {
	PresignGet(ctx context.Context, ownerID int64, filename string) (string, error)
}

// New builds the store selected by cfg.StorageBackend.
func New(cfg *sc.Config) (Store, error) {
	switch cfg.StorageBackend {
	case sc.StorageBackendLocal, "":
		return NewLocal(cfg.UploadDir), nil
	case sc.StorageBackendS3:
		return NewS3(cfg), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func checkName(filename string) error {
	if _, err := filex.CleanName(filename); err != nil {
		return fmt.Errorf("%w: %q", common.ErrorValidation, filename)
	}
	return nil
}
