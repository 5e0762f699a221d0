package domain

// Item status values. The JSON vocabulary is Portuguese because the backup
// document format predates this codebase and must keep round-tripping.
const (
	StatusPending   = "pendente"
	StatusBought    = "comprado"
	StatusDelivered = "entregue"
)

// Statuses lists every valid item status.
var Statuses = []string{StatusPending, StatusBought, StatusDelivered}

type Item struct {
	ID       int64   `json:"id"`
	Name     string  `json:"nome" validate:"required"`
	Quantity float64 `json:"qtd"`
	Minimum  float64 `json:"min"`
	Status   string  `json:"status" validate:"required,oneof=pendente comprado entregue"`
	Category string  `json:"categoria" validate:"required"`
}

// LowStock reports whether the item should carry a restock warning.
// Delivered items are never low: the order is already fulfilled.
func (i Item) LowStock() bool {
	return i.Quantity <= i.Minimum && i.Status != StatusDelivered
}

// State is the full structured application state: an ordered list of category
// names and one flat ordered list of items across all categories. Per-category
// views are filters over the item sequence, so item order within a category is
// whatever the global order says it is.
type State struct {
	Categories []string `json:"categorias"`
	Items      []Item   `json:"itens"`
}

// HasCategory reports whether name is present (exact, case-sensitive match).
func (s *State) HasCategory(name string) bool {
	for _, c := range s.Categories {
		if c == name {
			return true
		}
	}
	return false
}

// ItemIndex returns the position of the item with the given id, or -1.
func (s *State) ItemIndex(id int64) int {
	for i := range s.Items {
		if s.Items[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy so callers can hold state without aliasing the
// service's internal slices.
func (s *State) Clone() State {
	out := State{
		Categories: make([]string, len(s.Categories)),
		Items:      make([]Item, len(s.Items)),
	}
	copy(out.Categories, s.Categories)
	copy(out.Items, s.Items)
	return out
}
