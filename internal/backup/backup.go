// Package backup maps the full application state (structured records plus all
// image blobs) to and from one portable JSON document, for manual export and
// restore.
package backup

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jonasguinami/NewOrder/internal/blobstore"
	"github.com/jonasguinami/NewOrder/internal/domain"
)

// recordRepository is the subset of store.RecordStore that the codec requires.
type recordRepository interface {
	Save(ctx context.Context, state domain.State) error
	Load(ctx context.Context) (domain.State, error)
}

// Document is the portable backup format. Images maps stringified item ids to
// data-URI-encoded blobs ("data:<mediaType>;base64,<payload>"). The field
// names are fixed: existing backup files must keep importing.
type Document struct {
	Categories []string          `json:"categorias"`
	Items      []domain.Item     `json:"itens"`
	Images     map[string]string `json:"images"`
}

// ErrMalformed marks documents rejected before any write: the caller's file
// is bad, not the stores.
var ErrMalformed = errors.New("invalid backup document")

// Flusher is implemented by blob stores with write-behind queues; Export
// drains them so every stored blob appears in the document.
type Flusher interface {
	Flush()
}

type Codec struct {
	records recordRepository
	blobs   blobstore.Store
	logger  *slog.Logger
}

func NewCodec(records recordRepository, blobs blobstore.Store, logger *slog.Logger) *Codec {
	return &Codec{records: records, blobs: blobs, logger: logger}
}

// Filename returns the conventional name for a backup written at t.
func Filename(t time.Time) string {
	return fmt.Sprintf("NewOrder_Backup_%s.json", t.Format("2006-01-02"))
}

// Export drains both stores into a single self-contained document. Every item
// with a stored blob appears in Images; items without a photo are absent from
// the mapping. Blob read failures degrade to "no photo", matching reads
// everywhere else.
func (c *Codec) Export(ctx context.Context) (*Document, error) {
	if f, ok := c.blobs.(Flusher); ok {
		f.Flush()
	}

	state, err := c.records.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	doc := &Document{
		Categories: state.Categories,
		Items:      state.Items,
		Images:     make(map[string]string),
	}
	for _, it := range state.Items {
		data, mime, err := c.blobs.Get(ctx, it.ID)
		if err != nil {
			c.logger.Error("skipping unreadable photo in export", "id", it.ID, "error", err)
			continue
		}
		if data == nil {
			continue
		}
		doc.Images[strconv.FormatInt(it.ID, 10)] = encodeDataURI(mime, data)
	}
	return doc, nil
}

// Import replaces the stored state wholesale from a document. The document is
// parsed and every image entry decoded into a candidate set before anything
// is written: a malformed document aborts with existing state intact. The
// caller must reinitialize the in-memory state from durable storage afterward.
func (c *Codec) Import(ctx context.Context, raw []byte) error {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if doc.Categories == nil {
		doc.Categories = []string{}
	}
	if doc.Items == nil {
		doc.Items = []domain.Item{}
	}

	// Decode everything first; commit nothing on failure.
	type decoded struct {
		id   int64
		mime string
		data []byte
	}
	blobs := make([]decoded, 0, len(doc.Images))
	for key, uri := range doc.Images {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: image key %q: %v", ErrMalformed, key, err)
		}
		mime, data, err := decodeDataURI(uri)
		if err != nil {
			return fmt.Errorf("%w: image %s: %v", ErrMalformed, key, err)
		}
		blobs = append(blobs, decoded{id: id, mime: mime, data: data})
	}

	for _, b := range blobs {
		if err := c.blobs.Put(ctx, b.id, b.mime, b.data); err != nil {
			c.logger.Error("failed to restore photo", "id", b.id, "error", err)
		}
	}

	state := domain.State{Categories: doc.Categories, Items: doc.Items}
	if err := c.records.Save(ctx, state); err != nil {
		return fmt.Errorf("failed to persist imported state: %w", err)
	}
	return nil
}

func encodeDataURI(mime string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))
}

func decodeDataURI(uri string) (mime string, data []byte, err error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data URI")
	}
	mime, payload, ok := strings.Cut(rest, ";base64,")
	if !ok {
		return "", nil, fmt.Errorf("missing base64 payload")
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("bad base64 payload: %w", err)
	}
	return mime, data, nil
}
