package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/filex"
)

// Local stores objects at {root}/{owner_id}/{filename}.
type Local struct {
	root string
}

func NewLocal(root string) *Local {
	return &Local{root: root}
}

func (l *Local) Dir(ownerID int64) string {
	return filepath.Join(l.root, strconv.FormatInt(ownerID, 10))
}

func (l *Local) path(ownerID int64, filename string) (string, error) {
	if err := checkName(filename); err != nil {
		return "", err
	}
	return filepath.Join(l.Dir(ownerID), filename), nil
}

// Put creates the root and owner directories on demand and replaces any
// existing object with the same name.
func (l *Local) Put(ctx context.Context, ownerID int64, filename string, data []byte) error {
	p, err := l.path(ownerID, filename)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := filex.EnsureDir(l.root); err != nil {
		return err
	}
	if _, err := filex.EnsureDir(l.Dir(ownerID)); err != nil {
		return err
	}
	return filex.WriteFile(p, data)
}

func (l *Local) Remove(ctx context.Context, ownerID int64, filename string) error {
	p, err := l.path(ownerID, filename)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", p, err)
	}
	return nil
}

func (l *Local) Open(ctx context.Context, ownerID int64, filename string) (io.ReadCloser, error) {
	p, err := l.path(ownerID, filename)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("open %s: %w", p, err)
	}
	return f, nil
}
