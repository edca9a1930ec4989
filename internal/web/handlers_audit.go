package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/JonMunkholm/sheetvault/internal/core"
	"github.com/JonMunkholm/sheetvault/internal/logging"
)

const auditPageSize = 50

// auditOptions reads the audit filters shared by the list and export
// endpoints: file, action and from (YYYY-MM-DD).
func auditOptions(r *http.Request) core.AuditLogOptions {
	return core.AuditLogOptions{
		Filename:  r.URL.Query().Get("file"),
		Action:    core.AuditAction(r.URL.Query().Get("action")),
		StartTime: parseDateParam(r, "from"),
	}
}

// handleAuditLog returns a page of audit entries, newest first.
func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	page := max(parseIntParam(r, "page", 1), 1)

	opts := auditOptions(r)
	opts.Limit = auditPageSize
	opts.Offset = (page - 1) * auditPageSize

	res, err := s.files.Audit().GetAuditLog(r.Context(), opts)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleAuditLogExport exports matching audit entries as CSV.
func (s *Server) handleAuditLogExport(w http.ResponseWriter, r *http.Request) {
	filename := fmt.Sprintf("audit_log_%s.csv", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	// Headers are sent once the first row is written, so failures are
	// only logged.
	if err := s.files.Audit().ExportAuditLog(r.Context(), w, auditOptions(r)); err != nil {
		logging.FromContext(r.Context()).Error("audit export failed", "error", err)
	}
}
