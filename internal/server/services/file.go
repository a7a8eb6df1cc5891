package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/filex"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/server/blobstore"
	"github.com/dmitrijs2005/gophvault/internal/server/config"
	"github.com/dmitrijs2005/gophvault/internal/server/ingest"
	"github.com/dmitrijs2005/gophvault/internal/server/models"
	"github.com/dmitrijs2005/gophvault/internal/server/repositories/repomanager"
)

const (
	maxDescriptionLen  = 100
	defaultContentType = "application/octet-stream"
)

// FileService runs the upload pipeline and the owner-scoped file registry.
// A row is 'pending' while its blob is written, 'ready' once visible and
// 'deleting' while its blob is removed.
type FileService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       blobstore.Store
	log         logging.Logger
	maxMB       int64
	dedupScope  string
	pendingTTL  time.Duration
	now         func() time.Time
}

func NewFileService(db *sql.DB, m repomanager.RepositoryManager, store blobstore.Store, cfg *config.Config, log logging.Logger) *FileService {
	return &FileService{
		db:          db,
		repomanager: m,
		store:       store,
		log:         log,
		maxMB:       cfg.MaxUploadSizeMB,
		dedupScope:  cfg.DedupScope,
		pendingTTL:  cfg.PendingFileTTL,
		now:         time.Now,
	}
}

// Upload stores in.Data for in.OwnerID and returns the registered file.
// Size and duplicate checks run before anything is written.
func (s *FileService) Upload(ctx context.Context, in models.FileUpload) (*models.File, error) {
	name, err := filex.CleanName(in.Filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrorValidation, err)
	}
	if in.Description != nil && utf8.RuneCountInString(*in.Description) > maxDescriptionLen {
		return nil, fmt.Errorf("%w: description must be at most %d characters", common.ErrorValidation, maxDescriptionLen)
	}

	size := int64(len(in.Data))
	if err := ingest.CheckQuota(size, s.maxMB); err != nil {
		return nil, err
	}

	hash := ingest.Fingerprint(in.Data)
	key := ingest.DedupKey(s.dedupScope, in.OwnerID, hash)

	repo := s.repomanager.Files(s.db)

	if _, err := repo.GetByDedupKey(ctx, key); err == nil {
		return nil, common.ErrDuplicateContent
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	contentType := in.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}

	file, err := repo.CreatePending(ctx, &models.File{
		Filename:    name,
		FileDir:     s.store.Dir(in.OwnerID),
		Description: in.Description,
		OwnerID:     in.OwnerID,
		ContentType: contentType,
		SizeBytes:   size,
		FileHash:    hash,
		DedupKey:    key,
	})
	if err != nil {
		return nil, err
	}

	// Compensation must run even if the request context is gone.
	cleanupCtx := context.WithoutCancel(ctx)

	if err := s.store.Put(ctx, in.OwnerID, name, in.Data); err != nil {
		if derr := repo.Delete(cleanupCtx, file.ID); derr != nil {
			s.log.Error(ctx, "failed to drop pending file row", "file_id", file.ID, "error", derr)
		}
		return nil, fmt.Errorf("store file: %w", err)
	}

	if err := repo.MarkReady(ctx, file.ID); err != nil {
		if rerr := s.removeBlob(cleanupCtx, file); rerr != nil {
			s.log.Error(ctx, "failed to remove orphan blob", "file_id", file.ID, "error", rerr)
		}
		if derr := repo.Delete(cleanupCtx, file.ID); derr != nil {
			s.log.Error(ctx, "failed to drop pending file row", "file_id", file.ID, "error", derr)
		}
		return nil, fmt.Errorf("mark ready: %w", err)
	}

	file.Status = models.FileStatusReady
	s.log.Info(ctx, "file stored", "file_id", file.ID, "owner_id", file.OwnerID, "size", size)
	return file, nil
}

// List returns the owner's ready files; the slice may be empty.
func (s *FileService) List(ctx context.Context, ownerID int64) ([]*models.File, error) {
	return s.repomanager.Files(s.db).ListByOwner(ctx, ownerID)
}

// Get returns the owner's file or common.ErrorNotFound, including for files of other owners.
func (s *FileService) Get(ctx context.Context, ownerID, id int64) (*models.File, error) {
	return s.repomanager.Files(s.db).GetByOwnerAndID(ctx, ownerID, id)
}

// Delete removes the owner's file and its blob and returns the file name.
// The blob stays when another ready row of the owner shares its name. If the blob cannot be removed the row stays hidden in 'deleting' and a
// repeated Delete finishes the job.
func (s *FileService) Delete(ctx context.Context, ownerID, id int64) (string, error) {
	repo := s.repomanager.Files(s.db)

	file, err := repo.MarkDeleting(ctx, ownerID, id)
	if err != nil {
		return "", err
	}

	if err := s.removeBlob(ctx, file); err != nil {
		return "", fmt.Errorf("remove blob: %w", err)
	}

	if err := repo.Delete(ctx, file.ID); err != nil && !errors.Is(err, common.ErrorNotFound) {
		return "", err
	}

	s.log.Info(ctx, "file deleted", "file_id", file.ID, "owner_id", ownerID)
	return file.Filename, nil
}

// ReapStalePending clears rows stuck in 'pending' for longer than the
// configured TTL, which happens when the process dies mid-upload. Such rows
// are invisible to their owner yet still hold their dedup key. It returns the
// number of rows removed; a row whose blob cannot be removed is kept for the
// next pass.
func (s *FileService) ReapStalePending(ctx context.Context) (int, error) {
	if s.pendingTTL <= 0 {
		return 0, nil
	}
	repo := s.repomanager.Files(s.db)

	stale, err := repo.ListStalePending(ctx, s.now().Add(-s.pendingTTL))
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, file := range stale {
		if err := s.removeBlob(ctx, file); err != nil {
			s.log.Warn(ctx, "stale upload blob not removed", "file_id", file.ID, "error", err)
			continue
		}
		if err := repo.Delete(ctx, file.ID); err != nil && !errors.Is(err, common.ErrorNotFound) {
			return reaped, err
		}
		reaped++
		s.log.Info(ctx, "stale upload reaped", "file_id", file.ID, "owner_id", file.OwnerID)
	}
	return reaped, nil
}

// removeBlob removes the blob behind file unless another ready row of the
// same owner stores its content under the same name.
func (s *FileService) removeBlob(ctx context.Context, file *models.File) error {
	inUse, err := s.repomanager.Files(s.db).PathInUse(ctx, file.OwnerID, file.Filename, file.ID)
	if err != nil {
		return err
	}
	if inUse {
		return nil
	}
	return s.store.Remove(ctx, file.OwnerID, file.Filename)
}

// Open returns the owner's file together with a reader over its contents.
// The caller closes the reader.
func (s *FileService) Open(ctx context.Context, ownerID, id int64) (*models.File, io.ReadCloser, error) {
	file, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.store.Open(ctx, ownerID, file.Filename)
	if err != nil {
		return nil, nil, err
	}
	return file, rc, nil
}

// DownloadURL returns a presigned URL when the store supports it.
// ok is false for stores that must be streamed through Open.
func (s *FileService) DownloadURL(ctx context.Context, ownerID, id int64) (url string, ok bool, err error) {
	p, isPresigner := s.store.(blobstore.Presigner)
	if !isPresigner {
		return "", false, nil
	}
	file, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return "", true, err
	}
	url, err = p.PresignGet(ctx, ownerID, file.Filename)
	if err != nil {
		return "", true, err
	}
	return url, true, nil
}
