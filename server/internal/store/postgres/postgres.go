// Package postgres implements the upload metadata store on PostgreSQL. The uniqueness constraint on the key column is
// the arbiter for key collisions between concurrent uploads.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/hedisam/filedrop/server/internal/store"
)

const uniqueViolation = "23505"

type MetadataStore struct {
	logger *logrus.Logger
	db     *sql.DB
}

func NewMetadataStore(logger *logrus.Logger, db *sql.DB) *MetadataStore {
	return &MetadataStore{
		logger: logger,
		db:     db,
	}
}

// Insert creates the upload record. The creation timestamp is assigned by the database.
func (s *MetadataStore) Insert(ctx context.Context, u *store.Upload) (*store.Upload, error) {
	query := `
		INSERT INTO uploads (key, filename, expires)
		VALUES ($1, $2, $3)
		RETURNING key, filename, expires, created
	`
	var out store.Upload
	err := s.db.QueryRowContext(ctx, query, u.Key, u.Filename, u.Expires).
		Scan(&out.Key, &out.Filename, &out.Expires, &out.Created)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, store.ErrConflict
		}
		return nil, fmt.Errorf("insert upload: %w", err)
	}
	return &out, nil
}

func (s *MetadataStore) Get(ctx context.Context, key string) (*store.Upload, error) {
	query := `SELECT key, filename, expires, created FROM uploads WHERE key = $1`

	var out store.Upload
	err := s.db.QueryRowContext(ctx, query, key).Scan(&out.Key, &out.Filename, &out.Expires, &out.Created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("select upload: %w", err)
	}
	return &out, nil
}

// ListExpired returns up to limit records with expires < before, oldest first. A non-nil after resumes the listing
// strictly past that (expires, key) position.
func (s *MetadataStore) ListExpired(ctx context.Context, before time.Time, after *store.Cursor, limit int) ([]*store.Upload, error) {
	query := `
		SELECT key, filename, expires, created FROM uploads
		WHERE expires < $1
		ORDER BY expires, key
		LIMIT $2
	`
	args := []any{before, limit}
	if after != nil {
		query = `
		SELECT key, filename, expires, created FROM uploads
		WHERE expires < $1 AND (expires, key) > ($2, $3)
		ORDER BY expires, key
		LIMIT $4
	`
		args = []any{before, after.Expires, after.Key, limit}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select expired uploads: %w", err)
	}
	defer rows.Close()

	var result []*store.Upload
	for rows.Next() {
		var u store.Upload
		if err := rows.Scan(&u.Key, &u.Filename, &u.Expires, &u.Created); err != nil {
			return nil, fmt.Errorf("scan expired upload: %w", err)
		}
		result = append(result, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired uploads: %w", err)
	}
	return result, nil
}

// Delete removes the record for key in its own transaction. A missing record is not an error so that a purge
// interrupted after this step can be replayed.
func (s *MetadataStore) Delete(ctx context.Context, key string) error {
	err := WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM uploads WHERE key = $1`, key)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			s.logger.WithContext(ctx).WithField("key", key).Debug("Upload record already deleted")
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete upload: %w", err)
	}
	return nil
}
