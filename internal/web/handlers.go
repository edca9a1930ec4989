package web

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/JonMunkholm/sheetvault/internal/logging"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// handleListFiles lists the live workbooks, syncing the cache first.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	list, err := s.files.ListFiles(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleRefreshFiles forces a full cache sync.
func (s *Server) handleRefreshFiles(w http.ResponseWriter, r *http.Request) {
	ctx := WithRequestMetadata(r.Context(), r)
	res, err := s.files.RefreshCache(ctx, currentUser(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleListArchived lists soft-deleted workbooks.
func (s *Server) handleListArchived(w http.ResponseWriter, r *http.Request) {
	list, err := s.files.ListArchived(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleRestoreFile moves an archived workbook back into the live folder.
func (s *Server) handleRestoreFile(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	res, err := s.files.RestoreFile(ctx, id, currentUser(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handlePermanentDelete removes the archived copy of a workbook while its
// cached metadata stays.
func (s *Server) handlePermanentDelete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	res, err := s.files.PermanentDelete(ctx, id, currentUser(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleDeleteFile archives a workbook and flags its cache entry.
func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	ctx := WithRequestMetadata(r.Context(), r)
	res, err := s.files.DeleteFile(ctx, pathParam(r, "filename"), currentUser(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleDownload streams the workbook as an attachment.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	f, info, err := s.files.Download(r.Context(), pathParam(r, "filename"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer f.Close()

	name := filepath.Base(f.Name())
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size()))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, f); err != nil {
		logging.FromContext(r.Context()).Warn("download interrupted", "filename", name, "error", err)
	}
}
