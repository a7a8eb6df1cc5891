package services

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/server/blobstore"
	"github.com/dmitrijs2005/gophvault/internal/server/config"
	"github.com/dmitrijs2005/gophvault/internal/server/repositories/memrepo"
)

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func testConfig() *config.Config {
	return &config.Config{
		SecretKey:                   "k",
		TokenAlgorithm:              "HS256",
		AccessTokenValidityDuration: time.Hour,
		MaxUploadSizeMB:             1,
		DedupScope:                  config.DedupScopeGlobal,
	}
}

type fileFixture struct {
	svc   *FileService
	rm    *memrepo.Manager
	store *blobstore.Local
	root  string
}

func newFileFixture(t *testing.T, cfg *config.Config) *fileFixture {
	t.Helper()
	db, _ := newSQLMockDB(t)
	root := t.TempDir()
	rm := memrepo.NewManager()
	st := blobstore.NewLocal(root)
	return &fileFixture{
		svc:   NewFileService(db, rm, st, cfg, logging.Nop{}),
		rm:    rm,
		store: st,
		root:  root,
	}
}

// failingStore wraps a Store and injects errors per operation.
type failingStore struct {
	blobstore.Store
	putErr    error
	removeErr error
}

func (f *failingStore) Put(ctx context.Context, ownerID int64, filename string, data []byte) error {
	if f.putErr != nil {
		return f.putErr
	}
	return f.Store.Put(ctx, ownerID, filename, data)
}

func (f *failingStore) Remove(ctx context.Context, ownerID int64, filename string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	return f.Store.Remove(ctx, ownerID, filename)
}

type presignStore struct {
	blobstore.Store
	url string
}

func (p *presignStore) PresignGet(ctx context.Context, ownerID int64, filename string) (string, error) {
	if p.url == "" {
		return "", errors.New("sign failed")
	}
	return p.url + filename, nil
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(b)
}
