package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/JonMunkholm/sheetvault/internal/logging"
	"github.com/JonMunkholm/sheetvault/internal/store"
	"github.com/JonMunkholm/sheetvault/internal/workbook"
)

// Storage modes reported for a mutation.
const (
	ModeFile  = "file"
	ModeCache = "database"
)

// Backend applies row mutations to one workbook.
type Backend interface {
	AddRow(ctx context.Context, sheet string, values map[string]any, by *store.User) (int, error)
	UpdateRow(ctx context.Context, sheet string, rowID int, values map[string]any, by *store.User) error
	DeleteRow(ctx context.Context, sheet string, rowID int, by *store.User) error
}

// Mutation describes an applied row mutation.
type Mutation struct {
	RowNumber int
	Mode      string
}

// Reconciler routes row mutations to the workbook file when it exists and to
// the sheet cache otherwise.
type Reconciler struct {
	folder string
	db     *store.DB
	sync   *Synchronizer
	locks  *fileLocks
}

// NewReconciler returns a reconciler writing workbooks through sync's folder.
func NewReconciler(db *store.DB, sync *Synchronizer) *Reconciler {
	return &Reconciler{folder: sync.Folder(), db: db, sync: sync, locks: newFileLocks()}
}

// backendFor probes the folder for filename and picks the backend.
func (r *Reconciler) backendFor(filename string) (Backend, string, error) {
	decoded := decodeName(filename)
	if err := checkFilename(decoded); err != nil {
		return nil, "", err
	}
	path := filepath.Join(r.folder, decoded)
	if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
		return &PhysicalBackend{filename: decoded, path: path, locks: r.locks, sync: r.sync}, ModeFile, nil
	}
	return &CacheBackend{db: r.db, filename: filename}, ModeCache, nil
}

// AddRow appends a row to sheet and returns its row number.
func (r *Reconciler) AddRow(ctx context.Context, filename, sheet string, values map[string]any, user *store.User) (Mutation, error) {
	if user == nil {
		return Mutation{}, ErrUnauthenticated
	}
	b, mode, err := r.backendFor(filename)
	if err != nil {
		return Mutation{}, err
	}
	row, err := b.AddRow(ctx, sheet, values, user)
	if err != nil {
		return Mutation{}, err
	}
	logging.FromContext(ctx).Info("row added", "filename", filename, "sheet", sheet, "row_id", row, "mode", mode)
	return Mutation{RowNumber: row, Mode: mode}, nil
}

// UpdateRow overwrites the submitted fields of row rowID.
func (r *Reconciler) UpdateRow(ctx context.Context, filename, sheet string, rowID int, values map[string]any, user *store.User) (Mutation, error) {
	if user == nil {
		return Mutation{}, ErrUnauthenticated
	}
	b, mode, err := r.backendFor(filename)
	if err != nil {
		return Mutation{}, err
	}
	if err := b.UpdateRow(ctx, sheet, rowID, values, user); err != nil {
		return Mutation{}, err
	}
	logging.FromContext(ctx).Info("row updated", "filename", filename, "sheet", sheet, "row_id", rowID, "mode", mode)
	return Mutation{RowNumber: rowID, Mode: mode}, nil
}

// DeleteRow removes row rowID.
func (r *Reconciler) DeleteRow(ctx context.Context, filename, sheet string, rowID int, user *store.User) (Mutation, error) {
	if user == nil {
		return Mutation{}, ErrUnauthenticated
	}
	b, mode, err := r.backendFor(filename)
	if err != nil {
		return Mutation{}, err
	}
	if err := b.DeleteRow(ctx, sheet, rowID, user); err != nil {
		return Mutation{}, err
	}
	logging.FromContext(ctx).Info("row deleted", "filename", filename, "sheet", sheet, "row_id", rowID, "mode", mode)
	return Mutation{RowNumber: rowID, Mode: mode}, nil
}

// PhysicalBackend edits the workbook file, then refreshes its caches.
type PhysicalBackend struct {
	filename string
	path     string
	locks    *fileLocks
	sync     *Synchronizer
}

func (p *PhysicalBackend) edit(ctx context.Context, sheet string, by *store.User, fn func(wb *workbook.Workbook, sheet string) error) error {
	unlock := p.locks.lock(p.filename)
	defer unlock()

	sheet = decodeName(sheet)
	wb, err := workbook.Open(p.path)
	if err != nil {
		return err
	}
	if !wb.HasSheet(sheet) {
		wb.Close()
		return fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
	}
	if err := fn(wb, sheet); err != nil {
		wb.Close()
		return err
	}
	if err := wb.Save(); err != nil {
		wb.Close()
		return err
	}
	if err := wb.Close(); err != nil {
		return err
	}

	_, err = p.sync.RefreshFile(ctx, p.filename, by)
	return err
}

func (p *PhysicalBackend) AddRow(ctx context.Context, sheet string, values map[string]any, by *store.User) (int, error) {
	var row int
	err := p.edit(ctx, sheet, by, func(wb *workbook.Workbook, sheet string) error {
		var err error
		row, err = wb.AppendRow(sheet, withoutRowID(values))
		return err
	})
	return row, err
}

func (p *PhysicalBackend) UpdateRow(ctx context.Context, sheet string, rowID int, values map[string]any, by *store.User) error {
	if rowID < 2 {
		return invalid("row %d cannot be edited", rowID)
	}
	return p.edit(ctx, sheet, by, func(wb *workbook.Workbook, sheet string) error {
		return wb.UpdateRow(sheet, rowID, withoutRowID(values))
	})
}

func (p *PhysicalBackend) DeleteRow(ctx context.Context, sheet string, rowID int, by *store.User) error {
	if rowID < 2 {
		return invalid("row %d cannot be deleted", rowID)
	}
	return p.edit(ctx, sheet, by, func(wb *workbook.Workbook, sheet string) error {
		return wb.DeleteRow(sheet, rowID)
	})
}

// CacheBackend edits cached rows when the workbook file is absent.
type CacheBackend struct {
	db       *store.DB
	filename string
}

func (c *CacheBackend) edit(ctx context.Context, sheet string, fuzzy bool, by *store.User, fn func(sc *store.SheetCache) bool) error {
	return c.db.WithTx(ctx, func(ctx context.Context, tx store.DBTX) error {
		files, sheets := store.NewFiles(tx), store.NewSheets(tx)

		entry, err := resolveFile(ctx, files, c.filename, fuzzy)
		if err != nil {
			return err
		}
		sc, err := resolveSheet(ctx, sheets, entry, sheet)
		if err != nil {
			return err
		}
		if !fn(sc) {
			return nil
		}
		if err := sheets.SetData(ctx, sc); err != nil {
			return err
		}

		total, err := sheets.SumRows(ctx, entry.ID)
		if err != nil {
			return err
		}
		details := entry.SheetsDetails
		if details == nil {
			details = map[string]store.SheetDetail{}
		}
		d := details[sc.SheetName]
		if d.Columns == 0 {
			d.Columns = len(sc.Headers)
		}
		d.Entries = sc.RowsCount
		details[sc.SheetName] = d

		var byID *int64
		if by != nil {
			byID = &by.ID
		}
		return files.SetTotals(ctx, entry.ID, total, details, byID)
	})
}

func (c *CacheBackend) AddRow(ctx context.Context, sheet string, values map[string]any, by *store.User) (int, error) {
	var row int
	err := c.edit(ctx, sheet, true, by, func(sc *store.SheetCache) bool {
		entry := maps.Clone(values)
		if entry == nil {
			entry = map[string]any{}
		}
		row = nextRowID(sc.Data)
		entry[store.RowIDKey] = row
		sc.Data = append(sc.Data, entry)
		return true
	})
	return row, err
}

func (c *CacheBackend) UpdateRow(ctx context.Context, sheet string, rowID int, values map[string]any, by *store.User) error {
	return c.edit(ctx, sheet, false, by, func(sc *store.SheetCache) bool {
		for _, row := range sc.Data {
			if !matchRowID(row[store.RowIDKey], rowID) {
				continue
			}
			for k, v := range values {
				if k != store.RowIDKey {
					row[k] = v
				}
			}
			return true
		}
		return false
	})
}

func (c *CacheBackend) DeleteRow(ctx context.Context, sheet string, rowID int, by *store.User) error {
	return c.edit(ctx, sheet, false, by, func(sc *store.SheetCache) bool {
		kept := sc.Data[:0]
		for _, row := range sc.Data {
			if !matchRowID(row[store.RowIDKey], rowID) {
				kept = append(kept, row)
			}
		}
		sc.Data = kept
		return true
	})
}

// nextRowID returns len(data)+2, the row the entry would take in a
// workbook, unless a cached row already holds that id; then it returns one
// past the largest id.
func nextRowID(data []map[string]any) int {
	next := len(data) + 2
	taken, highest := false, 0
	for _, row := range data {
		id, ok := rowIDOf(row[store.RowIDKey])
		if !ok {
			continue
		}
		if id == next {
			taken = true
		}
		highest = max(highest, id)
	}
	if taken {
		return highest + 1
	}
	return next
}

// resolveFile finds the non-deleted entry for a filename taken from a URL:
// decoded, then raw. With fuzzy it also tries the decoded name plus .xlsx
// and a case-insensitive match on the display name. Soft-deleted entries
// are reported as not found.
func resolveFile(ctx context.Context, files *store.Files, filename string, fuzzy bool) (*store.FileCache, error) {
	decoded := decodeName(filename)
	candidates := []string{decoded}
	if filename != decoded {
		candidates = append(candidates, filename)
	}
	if fuzzy {
		candidates = append(candidates, decoded+workbookExt)
	}
	for _, name := range candidates {
		entry, err := files.GetActive(ctx, name)
		if err == nil {
			return entry, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	if fuzzy {
		entry, err := files.FindByName(ctx, strings.ReplaceAll(decoded, workbookExt, ""))
		if err == nil {
			return entry, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrFileNotFound, decoded)
}

// resolveSheet finds the cached sheet by decoded, then raw name.
func resolveSheet(ctx context.Context, sheets *store.Sheets, entry *store.FileCache, sheet string) (*store.SheetCache, error) {
	decoded := decodeName(sheet)
	candidates := []string{decoded}
	if sheet != decoded {
		candidates = append(candidates, sheet)
	}
	for _, name := range candidates {
		sc, err := sheets.Get(ctx, entry.ID, name)
		if err == nil {
			return sc, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s in %s", ErrSheetNotFound, decoded, entry.Filename)
}

// decodeName percent-decodes a path segment, keeping it as is when it is not
// valid escaping.
func decodeName(s string) string {
	d, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return d
}

// checkFilename rejects names that would leave the workbook folder.
func checkFilename(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return invalid("invalid file name %q", name)
	}
	return nil
}

// ParseRowID reads a row id sent as a JSON number or a string.
func ParseRowID(v any) (int, error) {
	var id int
	switch x := v.(type) {
	case nil:
		return 0, ErrRowIDRequired
	case float64:
		if x != math.Trunc(x) {
			return 0, invalid("row id %v is not an integer", x)
		}
		id = int(x)
	case int:
		id = x
	case int64:
		id = int(x)
	case json.Number:
		n, err := strconv.Atoi(x.String())
		if err != nil {
			return 0, invalid("row id %q is not an integer", x)
		}
		id = n
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, ErrRowIDRequired
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, invalid("row id %q is not an integer", s)
		}
		id = n
	default:
		return 0, invalid("row id has type %T", v)
	}
	if id == 0 {
		return 0, ErrRowIDRequired
	}
	return id, nil
}

// rowIDOf reads a cached row id stored as an integer or a string.
func rowIDOf(v any) (int, bool) {
	switch x := v.(type) {
	case float64:
		if x != math.Trunc(x) {
			return 0, false
		}
		return int(x), true
	case int:
		return x, true
	case int64:
		return int(x), true
	case json.Number:
		n, err := strconv.Atoi(x.String())
		return n, err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		return n, err == nil
	}
	return 0, false
}

// matchRowID compares a cached row id, integer or string, with id.
func matchRowID(v any, id int) bool {
	got, ok := rowIDOf(v)
	return ok && got == id
}

func withoutRowID(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		if k != store.RowIDKey {
			out[k] = v
		}
	}
	return out
}

// fileLocks serializes writes to the same workbook within the process.
type fileLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newFileLocks() *fileLocks {
	return &fileLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *fileLocks) lock(name string) func() {
	l.mu.Lock()
	m, ok := l.locks[name]
	if !ok {
		m = &sync.Mutex{}
		l.locks[name] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
