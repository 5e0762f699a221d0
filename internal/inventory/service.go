// Package inventory owns the in-memory application state and the mutation API
// that keeps the category/item invariants intact. Every mutation persists the
// structured state synchronously before returning; image writes are handed to
// the blob store and not awaited.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jonasguinami/NewOrder/internal/blobstore"
	"github.com/jonasguinami/NewOrder/internal/domain"
	"github.com/jonasguinami/NewOrder/internal/imaging"
)

// recordRepository is the subset of store.RecordStore that Service requires.
type recordRepository interface {
	Save(ctx context.Context, state domain.State) error
	Load(ctx context.Context) (domain.State, error)
}

var (
	// ErrInvalid marks validation failures: the operation was aborted before
	// any state mutation.
	ErrInvalid = errors.New("invalid input")
	// ErrNotFound marks references to items or categories that do not exist.
	ErrNotFound = errors.New("not found")
)

// ItemInput carries the user-supplied fields for creating or updating an item.
// ID is nil for creation. Quantity and Minimum arrive already coerced from
// text by the transport layer, defaulting to zero.
type ItemInput struct {
	ID       *int64
	Name     string
	Quantity float64
	Minimum  float64
	Status   string
	Category string
}

// Service is the single in-memory source of truth. All entry points are
// serialized by an internal lock, so each mutation runs to completion before
// the next begins even though the HTTP surface is concurrent.
type Service struct {
	mu      sync.Mutex
	state   domain.State
	active  string
	lastID  int64
	records recordRepository
	blobs   blobstore.Store
	valid   *validator.Validate
	logger  *slog.Logger
}

// New builds a Service with its state loaded from durable storage. The id
// generator is seeded past the largest loaded item id so imported items can
// never collide with new ones.
func New(ctx context.Context, records recordRepository, blobs blobstore.Store, logger *slog.Logger) (*Service, error) {
	s := &Service{
		records: records,
		blobs:   blobs,
		valid:   validator.New(),
		logger:  logger,
	}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload discards the in-memory state and reinitializes from durable storage,
// equivalent to a fresh start. Called at construction and after a backup
// import so memory and disk cannot diverge.
func (s *Service) Reload(ctx context.Context) error {
	state, err := s.records.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.lastID = 0
	for _, it := range state.Items {
		if it.ID > s.lastID {
			s.lastID = it.ID
		}
	}
	s.active = ""
	if len(state.Categories) > 0 {
		s.active = state.Categories[0]
	}
	return nil
}

// State returns a copy of the full structured state.
func (s *Service) State() domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// ActiveCategory returns the category currently selected for display.
func (s *Service) ActiveCategory() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// SetActiveCategory switches the displayed category.
func (s *Service) SetActiveCategory(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.HasCategory(name) {
		return fmt.Errorf("%w: category %q", ErrNotFound, name)
	}
	s.active = name
	return nil
}

// VisibleItems returns the items of the active category, optionally narrowed
// by a case-insensitive substring match on the name. Order follows the global
// item sequence.
func (s *Service) VisibleItems(search string) []domain.Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	needle := strings.ToLower(search)
	var out []domain.Item
	for _, it := range s.state.Items {
		if it.Category != s.active {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(it.Name), needle) {
			continue
		}
		out = append(out, it)
	}
	return out
}

// SaveItem creates or updates an item. With input.ID set, the item is replaced
// in place, keeping its position in the global order; otherwise a fresh id is
// assigned and the item appended. A non-nil photo is compressed up front and
// handed to the blob store once the structured state has persisted; the blob
// write itself is not awaited.
func (s *Service) SaveItem(ctx context.Context, input ItemInput, photo []byte) (domain.Item, error) {
	item := domain.Item{
		Name:     strings.TrimSpace(input.Name),
		Quantity: input.Quantity,
		Minimum:  input.Minimum,
		Status:   input.Status,
		Category: input.Category,
	}
	if item.Status == "" {
		item.Status = domain.StatusPending
	}
	if err := s.valid.Struct(item); err != nil {
		return domain.Item{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	// The compression step must complete before anything is stored.
	var compressed []byte
	if photo != nil {
		var err error
		compressed, err = imaging.Compress(photo)
		if err != nil {
			return domain.Item{}, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.HasCategory(item.Category) {
		return domain.Item{}, fmt.Errorf("%w: category %q", ErrNotFound, item.Category)
	}

	snap := s.state.Clone()
	if input.ID != nil {
		idx := s.state.ItemIndex(*input.ID)
		if idx < 0 {
			return domain.Item{}, fmt.Errorf("%w: item %d", ErrNotFound, *input.ID)
		}
		item.ID = *input.ID
		s.state.Items[idx] = item
	} else {
		item.ID = s.nextID()
		s.state.Items = append(s.state.Items, item)
	}

	if err := s.save(ctx, snap, s.active); err != nil {
		return domain.Item{}, err
	}

	if compressed != nil {
		if err := s.blobs.Put(ctx, item.ID, imaging.MimeType, compressed); err != nil {
			s.logger.Error("failed to store item photo", "id", item.ID, "error", err)
		}
	}
	return item, nil
}

// DeleteItem removes the item and its blob.
func (s *Service) DeleteItem(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.state.ItemIndex(id)
	if idx < 0 {
		return fmt.Errorf("%w: item %d", ErrNotFound, id)
	}
	snap := s.state.Clone()
	s.state.Items = append(s.state.Items[:idx], s.state.Items[idx+1:]...)
	if err := s.save(ctx, snap, s.active); err != nil {
		return err
	}

	// Only drop the blob once the record is durably gone.
	if err := s.blobs.Delete(ctx, id); err != nil {
		s.logger.Error("failed to delete item photo", "id", id, "error", err)
	}
	return nil
}

// ItemPhoto returns the stored photo for an item, or absent. Storage read
// failures degrade to absent: the inventory works without its pictures.
func (s *Service) ItemPhoto(ctx context.Context, id int64) ([]byte, string) {
	data, mime, err := s.blobs.Get(ctx, id)
	if err != nil {
		s.logger.Error("failed to read item photo", "id", id, "error", err)
		return nil, ""
	}
	return data, mime
}

// AddCategory appends a category. Adding an existing name is a no-op.
func (s *Service) AddCategory(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: category name required", ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.HasCategory(name) {
		return nil
	}
	snap := s.state.Clone()
	active := s.active
	s.state.Categories = append(s.state.Categories, name)
	if s.active == "" {
		s.active = name
	}
	return s.save(ctx, snap, active)
}

// RenameCategory updates a category name and re-points every item that
// referenced the old name, preserving item order.
func (s *Service) RenameCategory(ctx context.Context, oldName, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return fmt.Errorf("%w: category name required", ErrInvalid)
	}
	if newName == oldName {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, c := range s.state.Categories {
		if c == oldName {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: category %q", ErrNotFound, oldName)
	}
	if s.state.HasCategory(newName) {
		return fmt.Errorf("%w: category %q already exists", ErrInvalid, newName)
	}

	snap := s.state.Clone()
	active := s.active
	s.state.Categories[idx] = newName
	for i := range s.state.Items {
		if s.state.Items[i].Category == oldName {
			s.state.Items[i].Category = newName
		}
	}
	if s.active == oldName {
		s.active = newName
	}
	return s.save(ctx, snap, active)
}

// DeleteCategory removes the category and cascades: every item referencing it
// is removed along with its blob, so no orphaned record or blob remains.
func (s *Service) DeleteCategory(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, c := range s.state.Categories {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: category %q", ErrNotFound, name)
	}
	snap := s.state.Clone()
	active := s.active
	s.state.Categories = append(s.state.Categories[:idx], s.state.Categories[idx+1:]...)

	var doomed []int64
	kept := s.state.Items[:0]
	for _, it := range s.state.Items {
		if it.Category != name {
			kept = append(kept, it)
			continue
		}
		doomed = append(doomed, it.ID)
	}
	s.state.Items = kept

	if s.active == name {
		s.active = ""
		if len(s.state.Categories) > 0 {
			s.active = s.state.Categories[0]
		}
	}
	if err := s.save(ctx, snap, active); err != nil {
		return err
	}

	for _, id := range doomed {
		if err := s.blobs.Delete(ctx, id); err != nil {
			s.logger.Error("failed to delete item photo", "id", id, "error", err)
		}
	}
	return nil
}

// ReorderCategories moves one category to a new position.
func (s *Service) ReorderCategories(ctx context.Context, oldIndex, newIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.state.Categories)
	if oldIndex < 0 || oldIndex >= n || newIndex < 0 || newIndex >= n {
		return fmt.Errorf("%w: index out of range", ErrInvalid)
	}
	if oldIndex == newIndex {
		return nil
	}

	snap := s.state.Clone()
	cat := s.state.Categories[oldIndex]
	rest := append(s.state.Categories[:oldIndex], s.state.Categories[oldIndex+1:]...)
	s.state.Categories = append(rest[:newIndex], append([]string{cat}, rest[newIndex:]...)...)
	return s.save(ctx, snap, s.active)
}

// ReorderItems replaces the active category's subsequence of the global item
// order with the given id order. The ids must be exactly a permutation of the
// active category's items: a partial list (for example one narrowed by a
// search filter) is rejected so unseen items are never lost in the splice.
// Items of other categories keep their exact positions.
func (s *Service) ReorderItems(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var slots []int
	byID := make(map[int64]domain.Item)
	for i, it := range s.state.Items {
		if it.Category == s.active {
			slots = append(slots, i)
			byID[it.ID] = it
		}
	}

	if len(ids) != len(slots) {
		return fmt.Errorf("%w: reorder must cover every item of the active category", ErrInvalid)
	}
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return fmt.Errorf("%w: item %d is not in the active category", ErrInvalid, id)
		}
		if seen[id] {
			return fmt.Errorf("%w: duplicate item %d", ErrInvalid, id)
		}
		seen[id] = true
	}

	snap := s.state.Clone()
	for i, id := range ids {
		s.state.Items[slots[i]] = byID[id]
	}
	return s.save(ctx, snap, s.active)
}

// save persists the structured state; callers hold the lock and pass the
// pre-mutation snapshot. A failed write rolls the in-memory state back to the
// snapshot so memory never drifts ahead of durable storage.
func (s *Service) save(ctx context.Context, snap domain.State, active string) error {
	if err := s.records.Save(ctx, s.state); err != nil {
		s.state = snap
		s.active = active
		return fmt.Errorf("failed to persist state: %w", err)
	}
	return nil
}

// nextID returns a strictly increasing identifier. Ids are wall-clock derived
// like the original data set, but monotonicity is enforced so rapid creations
// within the same millisecond cannot collide.
func (s *Service) nextID() int64 {
	id := time.Now().UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return id
}
