// Package sqlite stores blobs in the images table of the local database,
// alongside the record store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Put(ctx context.Context, id int64, mimeType string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO images (item_id, mime_type, data, uploaded_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(item_id) DO UPDATE SET mime_type = excluded.mime_type, data = excluded.data, uploaded_at = CURRENT_TIMESTAMP
	`, id, mimeType, data)
	if err != nil {
		return fmt.Errorf("failed to write image %d: %w", id, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id int64) ([]byte, string, error) {
	var (
		data     []byte
		mimeType string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT data, mime_type FROM images WHERE item_id = ?
	`, id).Scan(&data, &mimeType)

	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image %d: %w", id, err)
	}
	return data, mimeType, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM images WHERE item_id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete image %d: %w", id, err)
	}
	return nil
}
