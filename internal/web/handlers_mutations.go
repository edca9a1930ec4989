package web

import (
	"net/http"

	"github.com/JonMunkholm/sheetvault/internal/core"
)

// handleAddRow appends a row. The body maps header names to values.
func (s *Server) handleAddRow(w http.ResponseWriter, r *http.Request) {
	values := map[string]any{}
	if err := decodeJSON(w, r, &values); err != nil {
		respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	res, err := s.files.AddRow(ctx, pathParam(r, "filename"), pathParam(r, "sheet"), normalizeNumbers(values), currentUser(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleUpdateRow rewrites the row named by the body's _row_id.
func (s *Server) handleUpdateRow(w http.ResponseWriter, r *http.Request) {
	values := map[string]any{}
	if err := decodeJSON(w, r, &values); err != nil {
		respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	res, err := s.files.UpdateRow(ctx, pathParam(r, "filename"), pathParam(r, "sheet"), normalizeNumbers(values), currentUser(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleDeleteRow removes the row given by the row_id query parameter.
func (s *Server) handleDeleteRow(w http.ResponseWriter, r *http.Request) {
	rowID := r.URL.Query().Get("row_id")
	if rowID == "" {
		respondError(w, r, core.ErrRowIDRequired)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	res, err := s.files.DeleteRow(ctx, pathParam(r, "filename"), pathParam(r, "sheet"), rowID, currentUser(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
