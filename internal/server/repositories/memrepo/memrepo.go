// Package memrepo provides in-memory users and files repositories with the
// same uniqueness rules as the PostgreSQL schema. The handle passed to the
// manager factories is ignored, so transactions are no-ops for these stores.
package memrepo

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/dbx"
	"github.com/dmitrijs2005/gophvault/internal/server/models"
	"github.com/dmitrijs2005/gophvault/internal/server/repositories/files"
	"github.com/dmitrijs2005/gophvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophvault/internal/server/repositories/users"
)

var _ repomanager.RepositoryManager = (*Manager)(nil)

type Manager struct {
	UsersRepo *Users
	FilesRepo *Files
}

func NewManager() *Manager {
	return &Manager{UsersRepo: NewUsers(), FilesRepo: NewFiles()}
}

func (m *Manager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *Manager) Users(dbx.DBTX) users.Repository               { return m.UsersRepo }
func (m *Manager) Files(dbx.DBTX) files.Repository               { return m.FilesRepo }

type Users struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]models.User
}

func NewUsers() *Users {
	return &Users{byID: map[int64]models.User{}}
}

func (r *Users) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.byID {
		if u.UserName == user.UserName {
			return nil, common.ErrorAlreadyExists
		}
	}
	r.nextID++
	user.ID = r.nextID
	user.CreatedAt = time.Now()
	r.byID[user.ID] = *user
	return user, nil
}

func (r *Users) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.byID {
		if u.UserName == username {
			return &u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *Users) GetByID(ctx context.Context, id int64) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &u, nil
}

type Files struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]models.File
}

func NewFiles() *Files {
	return &Files{byID: map[int64]models.File{}}
}

// Len reports the number of rows in any status.
func (r *Files) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

func (r *Files) CreatePending(ctx context.Context, file *models.File) (*models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range r.byID {
		if f.DedupKey == file.DedupKey {
			return nil, common.ErrDuplicateContent
		}
	}
	r.nextID++
	file.ID = r.nextID
	file.Status = models.FileStatusPending
	file.CreatedAt = time.Now()
	r.byID[file.ID] = *file
	return file, nil
}

func (r *Files) MarkReady(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.byID[id]
	if !ok || f.Status != models.FileStatusPending {
		return fmt.Errorf("wrong rows affected count: 0")
	}
	f.Status = models.FileStatusReady
	r.byID[id] = f
	return nil
}

func (r *Files) MarkDeleting(ctx context.Context, ownerID, id int64) (*models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.byID[id]
	if !ok || f.OwnerID != ownerID || f.Status == models.FileStatusPending {
		return nil, common.ErrorNotFound
	}
	f.Status = models.FileStatusDeleting
	r.byID[id] = f
	return &f, nil
}

func (r *Files) ListByOwner(ctx context.Context, ownerID int64) ([]*models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]*models.File, 0)
	for _, f := range r.byID {
		if f.OwnerID == ownerID && f.Status == models.FileStatusReady {
			f := f
			result = append(result, &f)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *Files) GetByID(ctx context.Context, id int64) (*models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &f, nil
}

func (r *Files) GetByOwnerAndID(ctx context.Context, ownerID, id int64) (*models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.byID[id]
	if !ok || f.OwnerID != ownerID || f.Status != models.FileStatusReady {
		return nil, common.ErrorNotFound
	}
	return &f, nil
}

func (r *Files) GetByDedupKey(ctx context.Context, key string) (*models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range r.byID {
		if f.DedupKey == key {
			return &f, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *Files) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *Files) ListStalePending(ctx context.Context, before time.Time) ([]*models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]*models.File, 0)
	for _, f := range r.byID {
		if f.Status == models.FileStatusPending && f.CreatedAt.Before(before) {
			f := f
			result = append(result, &f)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *Files) PathInUse(ctx context.Context, ownerID int64, filename string, exceptID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range r.byID {
		if f.ID != exceptID && f.OwnerID == ownerID && f.Filename == filename && f.Status == models.FileStatusReady {
			return true, nil
		}
	}
	return false, nil
}
