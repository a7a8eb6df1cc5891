// Package files provides the PostgreSQL-backed file registry.
package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/dbx"
	"github.com/dmitrijs2005/gophvault/internal/server/models"
)

const dedupConstraint = "files_dedup_key_key"

const fileColumns = `id, filename, file_dir, description, owner_id, content_type, file_size_bytes, filehash, dedup_key, status, created_at`

type scanner interface {
	Scan(dest ...any) error
}

// PostgresRepository implements the file registry over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreatePending inserts file with status 'pending' and fills in ID, Status and CreatedAt.
// A dedup_key collision yields common.ErrDuplicateContent.
func (r *PostgresRepository) CreatePending(ctx context.Context, file *models.File) (*models.File, error) {
	query :=
		`INSERT INTO files (filename, file_dir, description, owner_id, content_type, file_size_bytes, filehash, dedup_key, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending')
		 RETURNING id, created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		file.Filename, file.FileDir, file.Description, file.OwnerID, file.ContentType,
		file.SizeBytes, file.FileHash, file.DedupKey).Scan(&file.ID, &file.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err, dedupConstraint) {
			return nil, common.ErrDuplicateContent
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	file.Status = models.FileStatusPending
	return file, nil
}

// MarkReady flips a pending row to 'ready'. Exactly one row must be affected.
func (r *PostgresRepository) MarkReady(ctx context.Context, id int64) error {
	query := `UPDATE files SET status = 'ready' WHERE id = $1 AND status = 'pending'`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("wrong rows affected count: %d", n)
	}
	return nil
}

// MarkDeleting hides the owner's file from listings and returns it.
// Rows already marked 'deleting' are returned again so an interrupted delete can be retried.
func (r *PostgresRepository) MarkDeleting(ctx context.Context, ownerID, id int64) (*models.File, error) {
	query := `UPDATE files SET status = 'deleting'
		 WHERE id = $1 AND owner_id = $2 AND status IN ('ready', 'deleting')
		 RETURNING ` + fileColumns

	f, err := scanFile(r.db.QueryRowContext(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

// ListByOwner returns the owner's ready files ordered by id.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files
		 WHERE owner_id = $1 AND status = 'ready'
		 ORDER BY id`

	return r.list(ctx, query, ownerID)
}

// ListStalePending returns rows left in 'pending' since before, oldest first.
func (r *PostgresRepository) ListStalePending(ctx context.Context, before time.Time) ([]*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files
		 WHERE status = 'pending' AND created_at < $1
		 ORDER BY id`

	return r.list(ctx, query, before)
}

func (r *PostgresRepository) PathInUse(ctx context.Context, ownerID int64, filename string, exceptID int64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM files
		 WHERE owner_id = $1 AND filename = $2 AND id <> $3 AND status = 'ready')`

	var inUse bool
	if err := r.db.QueryRowContext(ctx, query, ownerID, filename, exceptID).Scan(&inUse); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return inUse, nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.File, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	result := make([]*models.File, 0)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetByID returns the file with the given id or common.ErrorNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByOwnerAndID returns the owner's ready file or common.ErrorNotFound.
func (r *PostgresRepository) GetByOwnerAndID(ctx context.Context, ownerID, id int64) (*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = $1 AND owner_id = $2 AND status = 'ready'`
	return r.getOne(ctx, query, id, ownerID)
}

// GetByDedupKey returns the row holding key in any status, or common.ErrorNotFound.
func (r *PostgresRepository) GetByDedupKey(ctx context.Context, key string) (*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE dedup_key = $1`
	return r.getOne(ctx, query, key)
}

// Delete removes the row. A missing row yields common.ErrorNotFound.
func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.File, error) {
	f, err := scanFile(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

func scanFile(s scanner) (*models.File, error) {
	f := &models.File{}
	var description sql.NullString
	if err := s.Scan(&f.ID, &f.Filename, &f.FileDir, &description, &f.OwnerID, &f.ContentType,
		&f.SizeBytes, &f.FileHash, &f.DedupKey, &f.Status, &f.CreatedAt); err != nil {
		return nil, err
	}
	if description.Valid {
		f.Description = &description.String
	}
	return f, nil
}
