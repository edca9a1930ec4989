package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const sheetColumns = `id, file_id, sheet_name, headers, columns, data, rows_count, cached_at`

// Sheets is the sheet cache repository.
type Sheets struct {
	db DBTX
}

// NewSheets returns a Sheets repository bound to db.
func NewSheets(db DBTX) *Sheets {
	return &Sheets{db: db}
}

func scanSheet(s rowScanner) (*SheetCache, error) {
	var (
		sc                     SheetCache
		headers, columns, data []byte
	)
	err := s.Scan(&sc.ID, &sc.FileID, &sc.SheetName, &headers, &columns, &data, &sc.RowsCount, &sc.CachedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(headers, &sc.Headers); err != nil {
		return nil, fmt.Errorf("decode headers of %s: %w", sc.SheetName, err)
	}
	if err := json.Unmarshal(columns, &sc.Columns); err != nil {
		return nil, fmt.Errorf("decode columns of %s: %w", sc.SheetName, err)
	}
	if err := json.Unmarshal(data, &sc.Data); err != nil {
		return nil, fmt.Errorf("decode data of %s: %w", sc.SheetName, err)
	}
	return &sc, nil
}

// Get returns the cache of one sheet of a file.
func (r *Sheets) Get(ctx context.Context, fileID int64, sheet string) (*SheetCache, error) {
	sc, err := scanSheet(r.db.QueryRowContext(ctx,
		`SELECT `+sheetColumns+` FROM sheet_cache WHERE file_id = $1 AND sheet_name = $2`, fileID, sheet))
	if err != nil {
		return nil, wrap(err)
	}
	return sc, nil
}

// ListByFile returns every cached sheet of a file.
func (r *Sheets) ListByFile(ctx context.Context, fileID int64) ([]*SheetCache, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sheetColumns+` FROM sheet_cache WHERE file_id = $1 ORDER BY id`, fileID)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	var sheets []*SheetCache
	for rows.Next() {
		sc, err := scanSheet(rows)
		if err != nil {
			return nil, wrap(err)
		}
		sheets = append(sheets, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(err)
	}
	return sheets, nil
}

// Upsert overwrites the cache of (sc.FileID, sc.SheetName) and fills sc.ID
// and sc.CachedAt.
func (r *Sheets) Upsert(ctx context.Context, sc *SheetCache) error {
	headers, columns, data, err := encodeSheet(sc)
	if err != nil {
		return err
	}
	sc.CachedAt = Truncate(time.Now())

	query := `INSERT INTO sheet_cache (file_id, sheet_name, headers, columns, data, rows_count, cached_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (file_id, sheet_name) DO UPDATE SET
			headers = excluded.headers,
			columns = excluded.columns,
			data = excluded.data,
			rows_count = excluded.rows_count,
			cached_at = excluded.cached_at
		RETURNING id`

	err = r.db.QueryRowContext(ctx, query,
		sc.FileID, sc.SheetName, headers, columns, data, sc.RowsCount, sc.CachedAt).Scan(&sc.ID)
	if err != nil {
		return wrap(err)
	}
	return nil
}

// SetData replaces the rows of a cached sheet and recomputes rows_count.
func (r *Sheets) SetData(ctx context.Context, sc *SheetCache) error {
	if sc.Data == nil {
		sc.Data = []map[string]any{}
	}
	data, err := json.Marshal(sc.Data)
	if err != nil {
		return fmt.Errorf("encode data: %w", err)
	}
	sc.RowsCount = len(sc.Data)
	sc.CachedAt = Truncate(time.Now())

	res, err := r.db.ExecContext(ctx,
		`UPDATE sheet_cache SET data = $1, rows_count = $2, cached_at = $3 WHERE id = $4`,
		string(data), sc.RowsCount, sc.CachedAt, sc.ID)
	if err != nil {
		return wrap(err)
	}
	return expectOne(res)
}

// SumRows returns the total rows_count across the sheets of a file.
func (r *Sheets) SumRows(ctx context.Context, fileID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(rows_count), 0) FROM sheet_cache WHERE file_id = $1`, fileID).Scan(&n)
	if err != nil {
		return 0, wrap(err)
	}
	return n, nil
}

// PurgeOrphans deletes sheet caches whose file entry no longer exists.
func (r *Sheets) PurgeOrphans(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM sheet_cache WHERE file_id NOT IN (SELECT id FROM file_cache)`)
	if err != nil {
		return 0, wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrap(err)
	}
	return int(n), nil
}

func encodeSheet(sc *SheetCache) (string, string, string, error) {
	if sc.Headers == nil {
		sc.Headers = []string{}
	}
	if sc.Columns == nil {
		sc.Columns = []Column{}
	}
	if sc.Data == nil {
		sc.Data = []map[string]any{}
	}
	h, err := json.Marshal(sc.Headers)
	if err != nil {
		return "", "", "", fmt.Errorf("encode headers: %w", err)
	}
	c, err := json.Marshal(sc.Columns)
	if err != nil {
		return "", "", "", fmt.Errorf("encode columns: %w", err)
	}
	d, err := json.Marshal(sc.Data)
	if err != nil {
		return "", "", "", fmt.Errorf("encode data: %w", err)
	}
	return string(h), string(c), string(d), nil
}
