package web

import (
	"errors"
	"fmt"
	"net/http"
)

type createRequest struct {
	Name    string       `json:"name"`
	Columns []columnSpec `json:"columns"`
}

// handleCreateFile creates a workbook with a single styled header row.
func (s *Server) handleCreateFile(w http.ResponseWriter, r *http.Request) {
	var in createRequest
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	res, err := s.files.CreateFile(ctx, in.Name, columnNames(in.Columns), currentUser(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// handleImportFile stores an uploaded workbook from the multipart "file"
// field and caches all of its sheets.
func (s *Server) handleImportFile(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	if r.ContentLength > maxSize {
		respondError(w, r, &http.MaxBytesError{Limit: maxSize})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooLarge *http.MaxBytesError
		if !errors.As(err, &tooLarge) {
			err = fmt.Errorf("%w: %v", errNoFile, err)
		}
		respondError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, errNoFile)
		return
	}
	defer file.Close()

	ctx := WithRequestMetadata(r.Context(), r)
	res, err := s.files.ImportFile(ctx, header.Filename, file, currentUser(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// handleImportStatus returns the current state of the import limiter.
func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.files.Limiter().Status())
}

// handleCreateSheet adds a sheet with a styled header row to a workbook.
func (s *Server) handleCreateSheet(w http.ResponseWriter, r *http.Request) {
	var in createRequest
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	res, err := s.files.AddSheet(ctx, pathParam(r, "filename"), in.Name, columnNames(in.Columns), currentUser(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
