package web

import (
	"net/http"
)

// handleListSheets lists the sheets of a workbook with column and row
// counts.
func (s *Server) handleListSheets(w http.ResponseWriter, r *http.Request) {
	list, err := s.files.ListSheets(r.Context(), pathParam(r, "filename"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleSheetColumns returns the classified columns of a sheet.
func (s *Server) handleSheetColumns(w http.ResponseWriter, r *http.Request) {
	cols, err := s.files.SheetColumns(r.Context(), pathParam(r, "filename"), pathParam(r, "sheet"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cols)
}

// handleSheetData returns the cached rows of a sheet.
func (s *Server) handleSheetData(w http.ResponseWriter, r *http.Request) {
	data, err := s.files.SheetData(r.Context(), pathParam(r, "filename"), pathParam(r, "sheet"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}
