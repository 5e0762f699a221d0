package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonasguinami/NewOrder/internal/backup"
)

// maxBackupBytes bounds an uploaded backup document.
const maxBackupBytes = 200 << 20

func (s *Server) handleExportBackup(w http.ResponseWriter, r *http.Request) {
	doc, err := s.codec.Export(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", backup.Filename(time.Now())))
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		s.logger.Error("failed to write backup", "error", err)
	}
}

func (s *Server) handleImportBackup(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBackupBytes))
	if err != nil {
		http.Error(w, "failed to read backup", http.StatusBadRequest)
		return
	}

	if err := s.codec.Import(r.Context(), raw); err != nil {
		// A malformed document aborts before any write; existing state is intact.
		// Anything else is a store failure on our side.
		if errors.Is(err, backup.ErrMalformed) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.writeError(w, err)
		return
	}

	// Reinitialize from durable storage, the equivalent of a fresh start.
	if err := s.service.Reload(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
