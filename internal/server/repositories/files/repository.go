package files

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/server/models"
)

type Repository interface {
	CreatePending(ctx context.Context, file *models.File) (*models.File, error)
	MarkReady(ctx context.Context, id int64) error
	MarkDeleting(ctx context.Context, ownerID, id int64) (*models.File, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]*models.File, error)
	GetByID(ctx context.Context, id int64) (*models.File, error)
	GetByOwnerAndID(ctx context.Context, ownerID, id int64) (*models.File, error)
	GetByDedupKey(ctx context.Context, key string) (*models.File, error)
	Delete(ctx context.Context, id int64) error

	// ListStalePending returns 'pending' rows created before the given time.
	ListStalePending(ctx context.Context, before time.Time) ([]*models.File, error)
	// PathInUse reports whether a ready row other than exceptID stores its
	// blob under the same owner and filename.
	PathInUse(ctx context.Context, ownerID int64, filename string, exceptID int64) (bool, error)
}
