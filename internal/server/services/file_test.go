package services

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/dbx"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/server/config"
	"github.com/dmitrijs2005/gophvault/internal/server/ingest"
	"github.com/dmitrijs2005/gophvault/internal/server/models"
	filesrepo "github.com/dmitrijs2005/gophvault/internal/server/repositories/files"
	"github.com/dmitrijs2005/gophvault/internal/server/repositories/memrepo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upload(owner int64, name, content string) models.FileUpload {
	return models.FileUpload{Filename: name, OwnerID: owner, ContentType: "text/plain", Data: []byte(content)}
}

func TestUpload_StoresBlobAndRow(t *testing.T) {
	fx := newFileFixture(t, testConfig())
	desc := "first file"
	in := upload(1, "a.txt", "hello")
	in.Description = &desc

	f, err := fx.svc.Upload(context.Background(), in)
	require.NoError(t, err)
	assert.NotZero(t, f.ID)
	assert.Equal(t, models.FileStatusReady, f.Status)
	assert.Equal(t, ingest.Fingerprint([]byte("hello")), f.FileHash)
	assert.Equal(t, int64(5), f.SizeBytes)
	assert.Equal(t, filepath.Join(fx.root, "1"), f.FileDir)

	b, err := os.ReadFile(filepath.Join(fx.root, "1", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))

	list, err := fx.svc.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "first file", *list[0].Description)
}

func TestUpload_DefaultContentType(t *testing.T) {
	fx := newFileFixture(t, testConfig())
	in := upload(1, "a.bin", "x")
	in.ContentType = ""

	f, err := fx.svc.Upload(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", f.ContentType)
}

func TestUpload_TooLargeWritesNothing(t *testing.T) {
	fx := newFileFixture(t, testConfig())

	big := bytes.Repeat([]byte("x"), 1024*1024+1)
	_, err := fx.svc.Upload(context.Background(), models.FileUpload{Filename: "big.bin", OwnerID: 1, Data: big})
	assert.ErrorIs(t, err, common.ErrPayloadTooLarge)

	assert.Equal(t, 0, fx.rm.FilesRepo.Len())
	_, statErr := os.Stat(filepath.Join(fx.root, "1"))
	assert.True(t, os.IsNotExist(statErr), "owner directory must not be created")
}

func TestUpload_ExactLimitAccepted(t *testing.T) {
	fx := newFileFixture(t, testConfig())

	data := bytes.Repeat([]byte("x"), 1024*1024)
	_, err := fx.svc.Upload(context.Background(), models.FileUpload{Filename: "max.bin", OwnerID: 1, Data: data})
	assert.NoError(t, err)
}

func TestUpload_DuplicateContentGlobal(t *testing.T) {
	fx := newFileFixture(t, testConfig())
	ctx := context.Background()

	_, err := fx.svc.Upload(ctx, upload(1, "a.txt", "same"))
	require.NoError(t, err)

	_, err = fx.svc.Upload(ctx, upload(1, "b.txt", "same"))
	assert.ErrorIs(t, err, common.ErrDuplicateContent)

	_, err = fx.svc.Upload(ctx, upload(2, "c.txt", "same"))
	assert.ErrorIs(t, err, common.ErrDuplicateContent, "global scope spans owners")

	assert.Equal(t, 1, fx.rm.FilesRepo.Len())
	_, statErr := os.Stat(filepath.Join(fx.root, "1", "b.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestUpload_DuplicateContentOwnerScope(t *testing.T) {
	cfg := testConfig()
	cfg.DedupScope = config.DedupScopeOwner
	fx := newFileFixture(t, cfg)
	ctx := context.Background()

	_, err := fx.svc.Upload(ctx, upload(1, "a.txt", "same"))
	require.NoError(t, err)

	_, err = fx.svc.Upload(ctx, upload(2, "a.txt", "same"))
	assert.NoError(t, err, "another owner may store the same content")

	_, err = fx.svc.Upload(ctx, upload(1, "b.txt", "same"))
	assert.ErrorIs(t, err, common.ErrDuplicateContent)
}

func TestUpload_ConcurrentDuplicatesOneWins(t *testing.T) {
	fx := newFileFixture(t, testConfig())

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = fx.svc.Upload(context.Background(), upload(int64(i+1), "race.txt", "identical"))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, common.ErrDuplicateContent)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, fx.rm.FilesRepo.Len())
}

func TestUpload_InvalidInput(t *testing.T) {
	fx := newFileFixture(t, testConfig())

	for _, name := range []string{"", "..", "../etc/passwd", "dir/a.txt"} {
		_, err := fx.svc.Upload(context.Background(), upload(1, name, "x"))
		assert.ErrorIs(t, err, common.ErrorValidation, name)
	}

	long := string(bytes.Repeat([]byte("d"), 101))
	in := upload(1, "a.txt", "x")
	in.Description = &long
	_, err := fx.svc.Upload(context.Background(), in)
	assert.ErrorIs(t, err, common.ErrorValidation)
	assert.Equal(t, 0, fx.rm.FilesRepo.Len())
}

func TestUpload_SameFilenameOverwritesBlob(t *testing.T) {
	fx := newFileFixture(t, testConfig())
	ctx := context.Background()

	_, err := fx.svc.Upload(ctx, upload(1, "a.txt", "v1"))
	require.NoError(t, err)
	_, err = fx.svc.Upload(ctx, upload(1, "a.txt", "v2"))
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(fx.root, "1", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(b))
}

func TestUpload_StoreFailureDropsPendingRow(t *testing.T) {
	fx := newFileFixture(t, testConfig())
	fs := &failingStore{Store: fx.store, putErr: errors.New("disk full")}
	fx.svc.store = fs

	_, err := fx.svc.Upload(context.Background(), upload(1, "a.txt", "x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 0, fx.rm.FilesRepo.Len())

	fx.svc.store = fx.store
	_, err = fx.svc.Upload(context.Background(), upload(1, "a.txt", "x"))
	assert.NoError(t, err, "content is not blocked after a failed attempt")
}

type failReadyFiles struct {
	filesrepo.Repository
}

func (f *failReadyFiles) MarkReady(context.Context, int64) error { return errors.New("conn reset") }

type failReadyManager struct{ *memrepo.Manager }

func (m *failReadyManager) Files(db dbx.DBTX) filesrepo.Repository {
	return &failReadyFiles{Repository: m.Manager.Files(db)}
}

func TestUpload_MarkReadyFailureRemovesBlobAndRow(t *testing.T) {
	fx := newFileFixture(t, testConfig())
	rm := &failReadyManager{Manager: fx.rm}
	svc := NewFileService(nil, rm, fx.store, testConfig(), logging.Nop{})

	_, err := svc.Upload(context.Background(), upload(1, "a.txt", "x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mark ready")

	assert.Equal(t, 0, fx.rm.FilesRepo.Len())
	_, statErr := os.Stat(filepath.Join(fx.root, "1", "a.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestDelete_OwnerScoped(t *testing.T) {
	fx := newFileFixture(t, testConfig())
	ctx := context.Background()

	f, err := fx.svc.Upload(ctx, upload(1, "a.txt", "mine"))
	require.NoError(t, err)

	_, err = fx.svc.Delete(ctx, 2, f.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
	_, err = os.Stat(filepath.Join(fx.root, "1", "a.txt"))
	require.NoError(t, err, "non-owner delete leaves the blob")

	name, err := fx.svc.Delete(ctx, 1, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", name)

	_, err = os.Stat(filepath.Join(fx.root, "1", "a.txt"))
	assert.True(t, os.IsNotExist(err))
	list, err := fx.svc.List(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = fx.svc.Delete(ctx, 1, f.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = fx.svc.Upload(ctx, upload(1, "again.txt", "mine"))
	assert.NoError(t, err, "content can be stored again after delete")
}

func TestDelete_MissingBlobTolerated(t *testing.T) {
	fx := newFileFixture(t, testConfig())
	ctx := context.Background()

	f, err := fx.svc.Upload(ctx, upload(1, "a.txt", "x"))
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(fx.root, "1", "a.txt")))

	_, err = fx.svc.Delete(ctx, 1, f.ID)
	assert.NoError(t, err)
	assert.Equal(t, 0, fx.rm.FilesRepo.Len())
}

func TestDelete_BlobFailureIsRetryable(t *testing.T) {
	fx := newFileFixture(t, testConfig())
	ctx := context.Background()

	f, err := fx.svc.Upload(ctx, upload(1, "a.txt", "x"))
	require.NoError(t, err)

	fs := &failingStore{Store: fx.store, removeErr: errors.New("io error")}
	fx.svc.store = fs
	_, err = fx.svc.Delete(ctx, 1, f.ID)
	require.Error(t, err)

	list, _ := fx.svc.List(ctx, 1)
	assert.Empty(t, list, "file is hidden while deleting")
	assert.Equal(t, 1, fx.rm.FilesRepo.Len())

	fs.removeErr = nil
	name, err := fx.svc.Delete(ctx, 1, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", name)
	assert.Equal(t, 0, fx.rm.FilesRepo.Len())
}

func TestGetAndOpen(t *testing.T) {
	fx := newFileFixture(t, testConfig())
	ctx := context.Background()

	f, err := fx.svc.Upload(ctx, upload(1, "a.txt", "payload"))
	require.NoError(t, err)

	got, rc, err := fx.svc.Open(ctx, 1, f.ID)
	require.NoError(t, err)
	assert.Equal(t, f.ID, got.ID)
	assert.Equal(t, "payload", readAll(t, rc))

	_, _, err = fx.svc.Open(ctx, 2, f.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = fx.svc.Get(ctx, 1, 999)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestDownloadURL(t *testing.T) {
	fx := newFileFixture(t, testConfig())
	ctx := context.Background()

	f, err := fx.svc.Upload(ctx, upload(1, "a.txt", "x"))
	require.NoError(t, err)

	_, ok, err := fx.svc.DownloadURL(ctx, 1, f.ID)
	require.NoError(t, err)
	assert.False(t, ok, "local store streams")

	fx.svc.store = &presignStore{Store: fx.store, url: "http://s3/"}
	url, ok, err := fx.svc.DownloadURL(ctx, 1, f.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "http://s3/a.txt", url)

	_, _, err = fx.svc.DownloadURL(ctx, 2, f.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	fx.svc.store = &presignStore{Store: fx.store}
	_, _, err = fx.svc.DownloadURL(ctx, 1, f.ID)
	assert.Error(t, err)
}

func TestUpload_MarkReadyFailureKeepsSharedBlob(t *testing.T) {
	fx := newFileFixture(t, testConfig())
	ctx := context.Background()

	first, err := fx.svc.Upload(ctx, upload(1, "a.txt", "v1"))
	require.NoError(t, err)

	svc := NewFileService(nil, &failReadyManager{Manager: fx.rm}, fx.store, testConfig(), logging.Nop{})
	_, err = svc.Upload(ctx, upload(1, "a.txt", "v2"))
	require.Error(t, err)

	_, err = os.Stat(filepath.Join(fx.root, "1", "a.txt"))
	require.NoError(t, err, "blob of the ready row stays")
	got, err := fx.svc.Get(ctx, 1, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", got.Filename)
}

func TestDelete_SharedPathRemovedWithLastRow(t *testing.T) {
	fx := newFileFixture(t, testConfig())
	ctx := context.Background()
	path := filepath.Join(fx.root, "1", "a.txt")

	f1, err := fx.svc.Upload(ctx, upload(1, "a.txt", "v1"))
	require.NoError(t, err)
	f2, err := fx.svc.Upload(ctx, upload(1, "a.txt", "v2"))
	require.NoError(t, err)

	_, err = fx.svc.Delete(ctx, 1, f1.ID)
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.NoError(t, err, "another ready row still uses the path")

	_, err = fx.svc.Delete(ctx, 1, f2.ID)
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

// seedStalePending leaves a row and its blob behind the way a crash between
// the blob write and the ready mark would.
func seedStalePending(t *testing.T, fx *fileFixture, owner int64, name, content string) *models.File {
	t.Helper()
	ctx := context.Background()
	hash := ingest.Fingerprint([]byte(content))
	f, err := fx.rm.FilesRepo.CreatePending(ctx, &models.File{
		Filename: name, FileDir: fx.store.Dir(owner), OwnerID: owner,
		ContentType: "text/plain", SizeBytes: int64(len(content)), FileHash: hash,
		DedupKey: ingest.DedupKey(config.DedupScopeGlobal, owner, hash),
	})
	require.NoError(t, err)
	require.NoError(t, fx.store.Put(ctx, owner, name, []byte(content)))
	return f
}

func reaperConfig() *config.Config {
	cfg := testConfig()
	cfg.PendingFileTTL = time.Minute
	return cfg
}

func TestReapStalePending_UnblocksContent(t *testing.T) {
	fx := newFileFixture(t, reaperConfig())
	ctx := context.Background()
	stuck := seedStalePending(t, fx, 1, "hello.txt", "hello")

	list, err := fx.svc.List(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, list)
	_, err = fx.svc.Delete(ctx, 1, stuck.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
	_, err = fx.svc.Upload(ctx, upload(2, "other.txt", "hello"))
	assert.ErrorIs(t, err, common.ErrDuplicateContent)

	n, err := fx.svc.ReapStalePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "rows younger than the TTL are left alone")

	fx.svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	n, err = fx.svc.ReapStalePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, fx.rm.FilesRepo.Len())
	_, err = os.Stat(filepath.Join(fx.root, "1", "hello.txt"))
	assert.True(t, os.IsNotExist(err))

	_, err = fx.svc.Upload(ctx, upload(1, "hello.txt", "hello"))
	assert.NoError(t, err)
}

func TestReapStalePending_KeepsSharedBlobAndReadyRows(t *testing.T) {
	fx := newFileFixture(t, reaperConfig())
	ctx := context.Background()

	ready, err := fx.svc.Upload(ctx, upload(1, "a.txt", "v1"))
	require.NoError(t, err)
	seedStalePending(t, fx, 1, "a.txt", "v2")

	fx.svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	n, err := fx.svc.ReapStalePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = os.Stat(filepath.Join(fx.root, "1", "a.txt"))
	require.NoError(t, err)
	_, err = fx.svc.Get(ctx, 1, ready.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, fx.rm.FilesRepo.Len())
}

func TestReapStalePending_BlobFailureKeepsRow(t *testing.T) {
	fx := newFileFixture(t, reaperConfig())
	ctx := context.Background()
	seedStalePending(t, fx, 1, "a.txt", "x")

	fx.svc.store = &failingStore{Store: fx.store, removeErr: errors.New("io error")}
	fx.svc.now = func() time.Time { return time.Now().Add(time.Hour) }

	n, err := fx.svc.ReapStalePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, fx.rm.FilesRepo.Len(), "kept for the next pass")
}

func TestReapStalePending_Disabled(t *testing.T) {
	fx := newFileFixture(t, testConfig())
	seedStalePending(t, fx, 1, "a.txt", "x")
	fx.svc.now = func() time.Time { return time.Now().Add(24 * time.Hour) }

	n, err := fx.svc.ReapStalePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, fx.rm.FilesRepo.Len())
}
