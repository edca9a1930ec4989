package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const fileColumns = `id, filename, name, file_path, sheets_count, sheets, sheets_details,
		total_entries, file_size, file_modified, cached_at, last_modified_by,
		is_deleted, deleted_at, deleted_by, archived_path`

// Files is the file cache repository.
type Files struct {
	db DBTX
}

// NewFiles returns a Files repository bound to db.
func NewFiles(db DBTX) *Files {
	return &Files{db: db}
}

func scanFile(s rowScanner) (*FileCache, error) {
	var (
		f              FileCache
		sheets         []byte
		details        []byte
		lastModifiedBy sql.NullInt64
		deletedAt      sql.NullTime
		deletedBy      sql.NullInt64
		archivedPath   sql.NullString
	)
	err := s.Scan(&f.ID, &f.Filename, &f.Name, &f.FilePath, &f.SheetsCount, &sheets, &details,
		&f.TotalEntries, &f.FileSize, &f.FileModified, &f.CachedAt, &lastModifiedBy,
		&f.IsDeleted, &deletedAt, &deletedBy, &archivedPath)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(sheets, &f.Sheets); err != nil {
		return nil, fmt.Errorf("decode sheets of %s: %w", f.Filename, err)
	}
	if err := json.Unmarshal(details, &f.SheetsDetails); err != nil {
		return nil, fmt.Errorf("decode sheets_details of %s: %w", f.Filename, err)
	}
	if lastModifiedBy.Valid {
		f.LastModifiedBy = &lastModifiedBy.Int64
	}
	if deletedAt.Valid {
		f.DeletedAt = &deletedAt.Time
	}
	if deletedBy.Valid {
		f.DeletedBy = &deletedBy.Int64
	}
	if archivedPath.Valid {
		f.ArchivedPath = &archivedPath.String
	}
	return &f, nil
}

func (r *Files) one(ctx context.Context, where string, args ...any) (*FileCache, error) {
	f, err := scanFile(r.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM file_cache WHERE `+where, args...))
	if err != nil {
		return nil, wrap(err)
	}
	return f, nil
}

func (r *Files) many(ctx context.Context, tail string, args ...any) ([]*FileCache, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+fileColumns+` FROM file_cache `+tail, args...)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	var files []*FileCache
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, wrap(err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(err)
	}
	return files, nil
}

// GetByID returns the entry with id, deleted or not.
func (r *Files) GetByID(ctx context.Context, id int64) (*FileCache, error) {
	return r.one(ctx, `id = $1`, id)
}

// GetByFilename returns the entry for filename, deleted or not.
func (r *Files) GetByFilename(ctx context.Context, filename string) (*FileCache, error) {
	return r.one(ctx, `filename = $1`, filename)
}

// GetActive returns the non-deleted entry for filename.
func (r *Files) GetActive(ctx context.Context, filename string) (*FileCache, error) {
	return r.one(ctx, `filename = $1 AND is_deleted = $2`, filename, false)
}

// GetDeleted returns the soft-deleted entry with id.
func (r *Files) GetDeleted(ctx context.Context, id int64) (*FileCache, error) {
	return r.one(ctx, `id = $1 AND is_deleted = $2`, id, true)
}

// FindByName returns the first non-deleted entry whose display name
// contains s, ignoring case.
func (r *Files) FindByName(ctx context.Context, s string) (*FileCache, error) {
	return r.one(ctx, `LOWER(name) LIKE $1 AND is_deleted = $2 ORDER BY id LIMIT 1`,
		"%"+strings.ToLower(s)+"%", false)
}

// ListActive returns non-deleted entries, most recently modified first.
func (r *Files) ListActive(ctx context.Context) ([]*FileCache, error) {
	return r.many(ctx, `WHERE is_deleted = $1 ORDER BY file_modified DESC, id DESC`, false)
}

// ListDeleted returns soft-deleted entries, most recently deleted first.
func (r *Files) ListDeleted(ctx context.Context) ([]*FileCache, error) {
	return r.many(ctx, `WHERE is_deleted = $1 ORDER BY deleted_at DESC, id DESC`, true)
}

// Count returns the number of entries, deleted included.
func (r *Files) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM file_cache`).Scan(&n); err != nil {
		return 0, wrap(err)
	}
	return n, nil
}

// Upsert writes the summary fields of f keyed by filename. Deletion state is
// left untouched on an existing entry, and last_modified_by is only
// overwritten when f carries one. f.ID and f.CachedAt are filled in.
func (r *Files) Upsert(ctx context.Context, f *FileCache) error {
	sheets, details, err := encodeSummary(f)
	if err != nil {
		return err
	}
	f.CachedAt = Truncate(time.Now())
	f.FileModified = Truncate(f.FileModified)

	query := `INSERT INTO file_cache (filename, name, file_path, sheets_count, sheets,
		sheets_details, total_entries, file_size, file_modified, cached_at, last_modified_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (filename) DO UPDATE SET
			name = excluded.name,
			file_path = excluded.file_path,
			sheets_count = excluded.sheets_count,
			sheets = excluded.sheets,
			sheets_details = excluded.sheets_details,
			total_entries = excluded.total_entries,
			file_size = excluded.file_size,
			file_modified = excluded.file_modified,
			cached_at = excluded.cached_at,
			last_modified_by = COALESCE(excluded.last_modified_by, file_cache.last_modified_by)
		RETURNING id`

	err = r.db.QueryRowContext(ctx, query,
		f.Filename, f.Name, f.FilePath, f.SheetsCount, sheets, details,
		f.TotalEntries, f.FileSize, f.FileModified, f.CachedAt, nullInt(f.LastModifiedBy)).Scan(&f.ID)
	if err != nil {
		return wrap(err)
	}
	return nil
}

// Insert creates a new entry with every field of f, deletion state included.
func (r *Files) Insert(ctx context.Context, f *FileCache) error {
	sheets, details, err := encodeSummary(f)
	if err != nil {
		return err
	}
	if f.CachedAt.IsZero() {
		f.CachedAt = Truncate(time.Now())
	}

	query := `INSERT INTO file_cache (filename, name, file_path, sheets_count, sheets,
		sheets_details, total_entries, file_size, file_modified, cached_at, last_modified_by,
		is_deleted, deleted_at, deleted_by, archived_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id`

	err = r.db.QueryRowContext(ctx, query,
		f.Filename, f.Name, f.FilePath, f.SheetsCount, sheets, details,
		f.TotalEntries, f.FileSize, Truncate(f.FileModified), f.CachedAt, nullInt(f.LastModifiedBy),
		f.IsDeleted, nullTime(f.DeletedAt), nullInt(f.DeletedBy), nullString(f.ArchivedPath)).Scan(&f.ID)
	if err != nil {
		return wrap(err)
	}
	return nil
}

// MarkDeleted soft-deletes the entry with id.
func (r *Files) MarkDeleted(ctx context.Context, id int64, at time.Time, by *int64, archivedPath *string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE file_cache SET is_deleted = $1, deleted_at = $2, deleted_by = $3, archived_path = $4
		WHERE id = $5`,
		true, Truncate(at), nullInt(by), nullString(archivedPath), id)
	if err != nil {
		return wrap(err)
	}
	return expectOne(res)
}

// Restore clears the deletion state of id and points it at a live file.
func (r *Files) Restore(ctx context.Context, id int64, filename, name, path string, by *int64, modified time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE file_cache SET is_deleted = $1, deleted_at = NULL, deleted_by = NULL,
			archived_path = NULL, filename = $2, name = $3, file_path = $4,
			last_modified_by = $5, file_modified = $6
		WHERE id = $7`,
		false, filename, name, path, nullInt(by), Truncate(modified), id)
	if err != nil {
		return wrap(err)
	}
	return expectOne(res)
}

// ClearArchive drops the archive reference of a deleted entry.
func (r *Files) ClearArchive(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE file_cache SET archived_path = NULL WHERE id = $1`, id)
	if err != nil {
		return wrap(err)
	}
	return expectOne(res)
}

// SoftDeleteMissing flags every non-deleted entry whose filename is not in
// seen and returns how many were flagged.
func (r *Files) SoftDeleteMissing(ctx context.Context, seen []string, at time.Time) (int, error) {
	args := []any{true, Truncate(at), false}
	query := `UPDATE file_cache SET is_deleted = $1, deleted_at = $2 WHERE is_deleted = $3`
	if len(seen) > 0 {
		ph := make([]string, len(seen))
		for i, name := range seen {
			args = append(args, name)
			ph[i] = fmt.Sprintf("$%d", len(args))
		}
		query += ` AND filename NOT IN (` + strings.Join(ph, ", ") + `)`
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrap(err)
	}
	return int(n), nil
}

// SetTotals stores the entry total and last modifier after a cache-only
// mutation.
func (r *Files) SetTotals(ctx context.Context, id int64, total int, details map[string]SheetDetail, by *int64) error {
	d, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("encode sheets_details: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE file_cache SET total_entries = $1, sheets_details = $2,
			last_modified_by = COALESCE($3, last_modified_by), cached_at = $4
		WHERE id = $5`,
		total, string(d), nullInt(by), Truncate(time.Now()), id)
	if err != nil {
		return wrap(err)
	}
	return expectOne(res)
}

func encodeSummary(f *FileCache) (string, string, error) {
	if f.Sheets == nil {
		f.Sheets = []string{}
	}
	if f.SheetsDetails == nil {
		f.SheetsDetails = map[string]SheetDetail{}
	}
	s, err := json.Marshal(f.Sheets)
	if err != nil {
		return "", "", fmt.Errorf("encode sheets: %w", err)
	}
	d, err := json.Marshal(f.SheetsDetails)
	if err != nil {
		return "", "", fmt.Errorf("encode sheets_details: %w", err)
	}
	return string(s), string(d), nil
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: Truncate(*p), Valid: true}
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

// DeleteActive removes every non-deleted entry and, through the foreign key
// cascade, its sheet caches. Archived entries are kept.
func (r *Files) DeleteActive(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM file_cache WHERE is_deleted = $1`, false)
	if err != nil {
		return 0, wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrap(err)
	}
	return int(n), nil
}
