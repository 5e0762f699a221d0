package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jonasguinami/NewOrder/internal/domain"
)

// Storage keys for the two structured values. The names match the original
// app's namespace so a database created by an older build keeps loading.
const (
	keyCategories = "no_categorias"
	keyItems      = "no_itens"
)

// RecordStore persists the structured half of the application state as two
// independently serialized values. Every mutating operation on the state is
// followed by a synchronous Save before it is considered complete.
type RecordStore struct {
	db *sql.DB
}

func NewRecordStore(db *sql.DB) *RecordStore {
	return &RecordStore{db: db}
}

// Save serializes the category and item sequences separately and writes both,
// unconditionally overwriting whatever was there.
func (s *RecordStore) Save(ctx context.Context, state domain.State) error {
	cats, err := json.Marshal(state.Categories)
	if err != nil {
		return fmt.Errorf("failed to marshal categories: %w", err)
	}
	items, err := json.Marshal(state.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal items: %w", err)
	}

	if err := s.put(ctx, keyCategories, string(cats)); err != nil {
		return err
	}
	return s.put(ctx, keyItems, string(items))
}

// Load reads both sequences. A missing or unparsable value degrades to an
// empty sequence; Load never fails because one key is bad.
func (s *RecordStore) Load(ctx context.Context) (domain.State, error) {
	state := domain.State{Categories: []string{}, Items: []domain.Item{}}

	raw, err := s.get(ctx, keyCategories)
	if err != nil {
		return state, err
	}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &state.Categories); err != nil {
			slog.Warn("discarding unparsable categories value", "error", err)
			state.Categories = []string{}
		}
	}

	raw, err = s.get(ctx, keyItems)
	if err != nil {
		return state, err
	}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &state.Items); err != nil {
			slog.Warn("discarding unparsable items value", "error", err)
			state.Items = []domain.Item{}
		}
	}

	return state, nil
}

func (s *RecordStore) put(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write record %s: %w", key, err)
	}
	return nil
}

// get returns "" when the key is absent.
func (s *RecordStore) get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM records WHERE key = ?
	`, key).Scan(&value)

	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read record %s: %w", key, err)
	}
	return value, nil
}
