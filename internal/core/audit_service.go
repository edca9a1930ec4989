package core

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"strconv"
	"time"

	"github.com/JonMunkholm/sheetvault/internal/logging"
	"github.com/JonMunkholm/sheetvault/internal/store"
)

// ExportLimit bounds the number of entries in a CSV export.
const ExportLimit = 10000

// AuditService handles audit log operations.
type AuditService struct {
	repo *store.Audit
}

// NewAuditService creates a new audit service.
func NewAuditService(db store.DBTX) *AuditService {
	return &AuditService{repo: store.NewAudit(db)}
}

// Log creates a new audit log entry.
func (a *AuditService) Log(ctx context.Context, params AuditLogParams) (*store.AuditEntry, error) {
	e := &store.AuditEntry{
		Action:    string(params.Action),
		Severity:  string(determineSeverity(params.Action)),
		Username:  params.UserName,
		Filename:  params.Filename,
		SheetName: params.SheetName,
		Detail:    params.Detail,
		UserAgent: params.UserAgent,
	}
	if params.UserID != 0 {
		id := params.UserID
		e.UserID = &id
	}
	if params.RowID != 0 {
		row := params.RowID
		e.RowID = &row
	}

	// Strip port if present and keep only parseable addresses.
	if params.IPAddress != "" {
		host := params.IPAddress
		if h, _, err := net.SplitHostPort(params.IPAddress); err == nil {
			host = h
		}
		if addr, err := netip.ParseAddr(host); err == nil {
			e.IPAddress = addr.String()
		}
	}

	if err := a.repo.Insert(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Record logs an action by user, taking client details from ctx. Failures
// are logged and never fail the audited operation.
func (a *AuditService) Record(ctx context.Context, user *store.User, params AuditLogParams) {
	if user != nil {
		params.UserID = user.ID
		params.UserName = user.Username
	}
	params.IPAddress = GetIPAddressFromContext(ctx)
	params.UserAgent = GetUserAgentFromContext(ctx)

	if _, err := a.Log(ctx, params); err != nil {
		logging.FromContext(ctx).Warn("audit log write failed",
			"action", params.Action,
			"filename", params.Filename,
			"error", err,
		)
	}
}

// AuditLogOptions contains options for querying audit logs.
type AuditLogOptions struct {
	Filename  string
	Action    AuditAction
	StartTime time.Time
	Limit     int
	Offset    int
}

// AuditLogResult contains the result of an audit log query.
type AuditLogResult struct {
	Entries []*store.AuditEntry `json:"entries"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
}

// GetAuditLog retrieves audit log entries, newest first.
func (a *AuditService) GetAuditLog(ctx context.Context, opts AuditLogOptions) (*AuditLogResult, error) {
	if opts.Limit <= 0 {
		opts.Limit = store.DefaultAuditLimit
	}
	entries, err := a.repo.List(ctx, store.AuditFilter{
		Filename: opts.Filename,
		Action:   string(opts.Action),
		Since:    opts.StartTime,
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("audit log: %w", err)
	}
	if entries == nil {
		entries = []*store.AuditEntry{}
	}
	return &AuditLogResult{Entries: entries, Limit: opts.Limit, Offset: opts.Offset}, nil
}

// ExportAuditLog writes matching entries to w as CSV.
func (a *AuditService) ExportAuditLog(ctx context.Context, w io.Writer, opts AuditLogOptions) error {
	opts.Limit = ExportLimit
	opts.Offset = 0
	result, err := a.GetAuditLog(ctx, opts)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"ID", "Timestamp", "Action", "Severity", "User", "File", "Sheet", "Row", "IP Address"}); err != nil {
		return err
	}
	for _, e := range result.Entries {
		row := ""
		if e.RowID != nil {
			row = strconv.Itoa(*e.RowID)
		}
		rec := []string{
			e.ID,
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.Action,
			e.Severity,
			e.Username,
			e.Filename,
			e.SheetName,
			row,
			e.IPAddress,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		slog.Error("audit export failed", "error", err)
		return err
	}
	return nil
}
