package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jonasguinami/NewOrder/internal/domain"
	"github.com/jonasguinami/NewOrder/internal/inventory"
)

// maxUploadBytes bounds the multipart form, photo included.
const maxUploadBytes = 20 << 20

// itemView decorates an item with the low-stock warning the list UI renders.
type itemView struct {
	domain.Item
	LowStock bool `json:"estoqueBaixo"`
}

func itemViews(items []domain.Item) []itemView {
	views := make([]itemView, len(items))
	for i, it := range items {
		views[i] = itemView{Item: it, LowStock: it.LowStock()}
	}
	return views
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	state := s.service.State()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"categorias":     state.Categories,
		"itens":          itemViews(state.Items),
		"categoriaAtiva": s.service.ActiveCategory(),
	})
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items := s.service.VisibleItems(r.URL.Query().Get("busca"))
	s.writeJSON(w, http.StatusOK, itemViews(items))
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	s.saveItem(w, r, nil)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.Error(w, "invalid item id", http.StatusBadRequest)
		return
	}
	s.saveItem(w, r, &id)
}

// saveItem parses the multipart item form shared by create and update. The
// photo part is optional; when present it is compressed and stored keyed by
// the item id.
func (s *Server) saveItem(w http.ResponseWriter, r *http.Request, id *int64) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	qty, err := parseNumber(r.FormValue("qtd"))
	if err != nil {
		http.Error(w, "invalid quantity", http.StatusBadRequest)
		return
	}
	min, err := parseNumber(r.FormValue("min"))
	if err != nil {
		http.Error(w, "invalid minimum", http.StatusBadRequest)
		return
	}

	input := inventory.ItemInput{
		ID:       id,
		Name:     r.FormValue("nome"),
		Quantity: qty,
		Minimum:  min,
		Status:   r.FormValue("status"),
		Category: r.FormValue("categoria"),
	}

	var photo []byte
	if file, _, err := r.FormFile("foto"); err == nil {
		photo, err = io.ReadAll(file)
		if cerr := file.Close(); cerr != nil {
			s.logger.Error("failed to close upload", "error", cerr)
		}
		if err != nil {
			http.Error(w, "failed to read photo", http.StatusBadRequest)
			return
		}
	}

	item, err := s.service.SaveItem(r.Context(), input, photo)
	if err != nil {
		s.writeError(w, err)
		return
	}

	status := http.StatusOK
	if id == nil {
		status = http.StatusCreated
	}
	s.writeJSON(w, status, item)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.Error(w, "invalid item id", http.StatusBadRequest)
		return
	}

	if err := s.service.DeleteItem(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetItemPhoto(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.Error(w, "invalid item id", http.StatusBadRequest)
		return
	}

	data, mime := s.service.ItemPhoto(r.Context(), id)
	if data == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		s.logger.Error("failed to write photo response", "error", err)
	}
}

func (s *Server) handleReorderItems(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs []int64 `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if err := s.service.ReorderItems(r.Context(), body.IDs); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseID extracts the {id} path variable as int64.
func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// parseNumber coerces a numeric form field, defaulting empty to zero.
func parseNumber(v string) (float64, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", v)
	}
	return n, nil
}
