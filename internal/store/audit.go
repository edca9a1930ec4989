package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const auditColumns = `id, action, severity, user_id, username, filename, sheet_name,
		row_id, detail, ip_address, user_agent, created_at`

// DefaultAuditLimit bounds audit queries that do not set a limit.
const DefaultAuditLimit = 100

// AuditFilter narrows an audit log query. Empty fields match everything.
type AuditFilter struct {
	Filename string
	Action   string
	Since    time.Time
	Limit    int
	Offset   int
}

// Audit is the audit log repository.
type Audit struct {
	db DBTX
}

// NewAudit returns an Audit repository bound to db.
func NewAudit(db DBTX) *Audit {
	return &Audit{db: db}
}

// Insert appends e to the log, assigning an id and timestamp when unset.
func (r *Audit) Insert(ctx context.Context, e *AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = Truncate(e.CreatedAt)
	detail := []byte("{}")
	if len(e.Detail) > 0 {
		b, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("encode audit detail: %w", err)
		}
		detail = b
	}
	var rowID sql.NullInt64
	if e.RowID != nil {
		rowID = sql.NullInt64{Int64: int64(*e.RowID), Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_log (`+auditColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.Action, e.Severity, nullInt(e.UserID), e.Username, e.Filename, e.SheetName,
		rowID, string(detail), e.IPAddress, e.UserAgent, e.CreatedAt)
	if err != nil {
		return wrap(err)
	}
	return nil
}

// List returns entries matching f, newest first.
func (r *Audit) List(ctx context.Context, f AuditFilter) ([]*AuditEntry, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Filename != "" {
		add("filename = $%d", f.Filename)
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if !f.Since.IsZero() {
		add("created_at >= $%d", Truncate(f.Since))
	}
	if f.Limit <= 0 {
		f.Limit = DefaultAuditLimit
	}

	query := `SELECT ` + auditColumns + ` FROM audit_log`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		var (
			e      AuditEntry
			userID sql.NullInt64
			rowID  sql.NullInt64
			detail []byte
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.Severity, &userID, &e.Username, &e.Filename,
			&e.SheetName, &rowID, &detail, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, wrap(err)
		}
		if userID.Valid {
			e.UserID = &userID.Int64
		}
		if rowID.Valid {
			n := int(rowID.Int64)
			e.RowID = &n
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &e.Detail); err != nil {
				return nil, fmt.Errorf("decode audit detail %s: %w", e.ID, err)
			}
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(err)
	}
	return entries, nil
}

// DeleteBefore removes entries older than t and returns how many were removed.
func (r *Audit) DeleteBefore(ctx context.Context, t time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM audit_log WHERE created_at < $1`, Truncate(t))
	if err != nil {
		return 0, wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrap(err)
	}
	return int(n), nil
}
