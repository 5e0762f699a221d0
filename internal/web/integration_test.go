package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonasguinami/NewOrder/internal/backup"
	blobsqlite "github.com/jonasguinami/NewOrder/internal/blobstore/sqlite"
	"github.com/jonasguinami/NewOrder/internal/db"
	"github.com/jonasguinami/NewOrder/internal/domain"
	"github.com/jonasguinami/NewOrder/internal/inventory"
	"github.com/jonasguinami/NewOrder/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, d.Close()) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	records := store.NewRecordStore(d)
	blobs := blobsqlite.New(d)

	svc, err := inventory.New(context.Background(), records, blobs, logger)
	require.NoError(t, err)
	codec := backup.NewCodec(records, blobs, logger)
	return NewServer(svc, codec, logger)
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func itemForm(t *testing.T, fields map[string]string, photo []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if photo != nil {
		part, err := mw.CreateFormFile("foto", "foto.png")
		require.NoError(t, err)
		_, err = part.Write(photo)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func postItem(t *testing.T, srv *Server, fields map[string]string, photo []byte) domain.Item {
	t.Helper()
	body, contentType := itemForm(t, fields, photo)
	req := httptest.NewRequest(http.MethodPost, "/api/items/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var item domain.Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	return item
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestItemLifecycle(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/categories/", categoryBody{Name: "Frutas"})
	require.Equal(t, http.StatusCreated, rec.Code)

	item := postItem(t, srv, map[string]string{
		"nome": "Maçã", "qtd": "5", "min": "2", "status": "pendente", "categoria": "Frutas",
	}, pngBytes(t, 1000, 500))
	assert.NotZero(t, item.ID)
	assert.Equal(t, 5.0, item.Quantity)

	// Photo is stored compressed and served back.
	rec = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/items/%d/photo", item.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	cfg, _, err := image.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 800, cfg.Width)

	// Update keeps the id.
	body, contentType := itemForm(t, map[string]string{
		"nome": "Maçã Fuji", "qtd": "3", "min": "2", "status": "comprado", "categoria": "Frutas",
	}, nil)
	req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/api/items/%d", item.ID), body)
	req.Header.Set("Content-Type", contentType)
	upd := httptest.NewRecorder()
	srv.ServeHTTP(upd, req)
	require.Equal(t, http.StatusOK, upd.Code)

	var updated domain.Item
	require.NoError(t, json.Unmarshal(upd.Body.Bytes(), &updated))
	assert.Equal(t, item.ID, updated.ID)
	assert.Equal(t, "Maçã Fuji", updated.Name)

	// Delete removes the item and its photo.
	rec = doJSON(t, srv, http.MethodDelete, fmt.Sprintf("/api/items/%d", item.ID), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/items/%d/photo", item.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestItemValidationErrors(t *testing.T) {
	srv := newTestServer(t)
	doJSON(t, srv, http.MethodPost, "/api/categories/", categoryBody{Name: "Frutas"})

	body, contentType := itemForm(t, map[string]string{"nome": "", "categoria": "Frutas"}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/items/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodDelete, "/api/items/12345", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActiveCategoryFiltersList(t *testing.T) {
	srv := newTestServer(t)
	doJSON(t, srv, http.MethodPost, "/api/categories/", categoryBody{Name: "Frutas"})
	doJSON(t, srv, http.MethodPost, "/api/categories/", categoryBody{Name: "Legumes"})
	postItem(t, srv, map[string]string{"nome": "Maçã", "categoria": "Frutas"}, nil)

	rec := doJSON(t, srv, http.MethodPost, "/api/categories/active", categoryBody{Name: "Legumes"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/items/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	// The item is hidden from view but still present in the global state.
	rec = doJSON(t, srv, http.MethodGet, "/api/state", nil)
	var state struct {
		Items []domain.Item `json:"itens"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Len(t, state.Items, 1)
}

func TestCategoryRenameAndDelete(t *testing.T) {
	srv := newTestServer(t)
	doJSON(t, srv, http.MethodPost, "/api/categories/", categoryBody{Name: "Frutas"})
	item := postItem(t, srv, map[string]string{"nome": "Maçã", "categoria": "Frutas"}, pngBytes(t, 10, 10))

	rec := doJSON(t, srv, http.MethodPut, "/api/categories/Frutas", categoryBody{Name: "Feira"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/state", nil)
	var state struct {
		Categories []string      `json:"categorias"`
		Items      []domain.Item `json:"itens"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, []string{"Feira"}, state.Categories)
	require.Len(t, state.Items, 1)
	assert.Equal(t, "Feira", state.Items[0].Category)

	rec = doJSON(t, srv, http.MethodDelete, "/api/categories/Feira", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/items/%d/photo", item.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "cascade must remove the blob")
}

func TestReorderItemsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	doJSON(t, srv, http.MethodPost, "/api/categories/", categoryBody{Name: "Frutas"})
	a := postItem(t, srv, map[string]string{"nome": "Maçã", "categoria": "Frutas"}, nil)
	b := postItem(t, srv, map[string]string{"nome": "Banana", "categoria": "Frutas"}, nil)

	rec := doJSON(t, srv, http.MethodPost, "/api/items/order", map[string]any{"ids": []int64{b.ID, a.ID}})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/items/", nil)
	var items []domain.Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 2)
	assert.Equal(t, b.ID, items[0].ID)

	// A partial id list (filtered view) is rejected.
	rec = doJSON(t, srv, http.MethodPost, "/api/items/order", map[string]any{"ids": []int64{a.ID}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListItemsFlagsLowStock(t *testing.T) {
	srv := newTestServer(t)
	doJSON(t, srv, http.MethodPost, "/api/categories/", categoryBody{Name: "Frutas"})
	postItem(t, srv, map[string]string{"nome": "Maçã", "qtd": "2", "min": "2", "categoria": "Frutas"}, nil)
	postItem(t, srv, map[string]string{"nome": "Banana", "qtd": "5", "min": "2", "categoria": "Frutas"}, nil)
	postItem(t, srv, map[string]string{
		"nome": "Caqui", "qtd": "0", "min": "3", "status": "entregue", "categoria": "Frutas",
	}, nil)

	rec := doJSON(t, srv, http.MethodGet, "/api/items/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var items []struct {
		domain.Item
		LowStock bool `json:"estoqueBaixo"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 3)
	assert.True(t, items[0].LowStock, "quantity at the minimum warns")
	assert.False(t, items[1].LowStock, "quantity above the minimum does not warn")
	assert.False(t, items[2].LowStock, "delivered items never warn")

	// The state endpoint carries the same flag.
	rec = doJSON(t, srv, http.MethodGet, "/api/state", nil)
	var state struct {
		Items []struct {
			LowStock bool `json:"estoqueBaixo"`
		} `json:"itens"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	require.Len(t, state.Items, 3)
	assert.True(t, state.Items[0].LowStock)
}

func TestBackupImportStoreFailureIsServerError(t *testing.T) {
	d, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	records := store.NewRecordStore(d)
	blobs := blobsqlite.New(d)
	svc, err := inventory.New(context.Background(), records, blobs, logger)
	require.NoError(t, err)
	srv := NewServer(svc, backup.NewCodec(records, blobs, logger), logger)

	// A well-formed document that fails to persist is our fault, not the client's.
	require.NoError(t, d.Close())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/backup",
		strings.NewReader(`{"categorias":[],"itens":[],"images":{}}`))
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestBackupRoundTripOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	doJSON(t, srv, http.MethodPost, "/api/categories/", categoryBody{Name: "Frutas"})
	item := postItem(t, srv, map[string]string{"nome": "Maçã", "categoria": "Frutas"}, pngBytes(t, 100, 50))

	rec := doJSON(t, srv, http.MethodGet, "/api/backup", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "NewOrder_Backup_")
	exported := rec.Body.Bytes()

	// Restore onto a fresh instance.
	other := newTestServer(t)
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/backup", bytes.NewReader(exported))
	other.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = doJSON(t, other, http.MethodGet, "/api/state", nil)
	var state struct {
		Categories []string      `json:"categorias"`
		Items      []domain.Item `json:"itens"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, []string{"Frutas"}, state.Categories)
	require.Len(t, state.Items, 1)
	assert.Equal(t, item.ID, state.Items[0].ID)

	rec = doJSON(t, other, http.MethodGet, fmt.Sprintf("/api/items/%d/photo", item.ID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBackupImportRejectsMalformed(t *testing.T) {
	srv := newTestServer(t)
	doJSON(t, srv, http.MethodPost, "/api/categories/", categoryBody{Name: "Frutas"})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/backup", strings.NewReader("{not json"))
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Existing state untouched.
	rec = doJSON(t, srv, http.MethodGet, "/api/state", nil)
	var state struct {
		Categories []string `json:"categorias"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, []string{"Frutas"}, state.Categories)
}
