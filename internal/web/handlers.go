package web

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stockflow/importer/internal/core"
	"github.com/stockflow/importer/internal/tabular"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// importUpload is the decoded multipart payload shared by preview and
// import. Mappings and strategy only matter on import but are accepted
// on both so a client can replay the same form.
type importUpload struct {
	clientID uuid.UUID
	filename string
	data     []byte
	typeHint tabular.ImportType
	strategy core.DuplicateStrategy
	keyField string
	mappings []core.FieldMapping
}

// parseImportUpload reads the multipart form for preview and import
// requests. It returns false after writing the error response itself.
func (s *Server) parseImportUpload(w http.ResponseWriter, r *http.Request) (*importUpload, bool) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		badRequest(w, "File too large or invalid form", "Reduce the file size or check the upload format")
		return nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "No file provided", "Attach the file under the 'file' form field")
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, err)
		return nil, false
	}

	clientID, err := uuid.Parse(r.FormValue("clientId"))
	if err != nil {
		badRequest(w, "Missing or invalid clientId", "Send the client UUID in the 'clientId' form field")
		return nil, false
	}

	upload := &importUpload{
		clientID: clientID,
		filename: header.Filename,
		data:     data,
		typeHint: tabular.ImportType(r.FormValue("type")),
		strategy: core.DuplicateStrategy(r.FormValue("strategy")),
		keyField: r.FormValue("duplicateKeyField"),
	}
	if upload.typeHint != "" && !upload.typeHint.Valid() {
		badRequest(w, "Unknown import type", "Use inventory, orders, both, or detect")
		return nil, false
	}

	if mappingsJSON := r.FormValue("mappings"); mappingsJSON != "" {
		if err := json.Unmarshal([]byte(mappingsJSON), &upload.mappings); err != nil {
			badRequest(w, "Invalid mappings format", "Send mappings as a JSON array of {source, target} pairs")
			return nil, false
		}
	}
	return upload, true
}

// handlePreview analyzes a file and reports the proposed mappings,
// detected relationships, and sample validation without persisting.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	upload, ok := s.parseImportUpload(w, r)
	if !ok {
		return
	}

	resp, err := s.service.Preview(r.Context(), core.PreviewRequest{
		ClientID: upload.clientID,
		Filename: upload.filename,
		Data:     upload.data,
		TypeHint: upload.typeHint,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleImport runs a confirmed import to completion and returns the
// batch outcome. A failed parse still returns 200 with a failed batch so
// the client can show the recorded findings.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	upload, ok := s.parseImportUpload(w, r)
	if !ok {
		return
	}

	result, err := s.service.Commit(r.Context(), core.CommitRequest{
		ClientID:          upload.clientID,
		Filename:          upload.filename,
		Data:              upload.data,
		TypeHint:          upload.typeHint,
		Mappings:          upload.mappings,
		Strategy:          upload.strategy,
		DuplicateKeyField: upload.keyField,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Batch.Status == core.BatchFailed {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

// handleBatchStatus returns one import batch by ID.
func (s *Server) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "batchID"))
	if err != nil {
		badRequest(w, "Invalid batch ID", "Batch IDs are UUIDs")
		return
	}

	batch, err := s.service.Batch(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}
