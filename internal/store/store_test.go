package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "test.db"), PoolOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Migrate(ctx)
	require.NoError(t, err)
	return db
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		url     string
		dialect Dialect
		wantErr bool
	}{
		{"postgres://u:p@localhost/db", Postgres, false},
		{"postgresql://localhost/db?sslmode=disable", Postgres, false},
		{"sqlite:///var/lib/app.sqlite", SQLite, false},
		{"file:cache.sqlite?mode=rwc", SQLite, false},
		{"./data/app.db", SQLite, false},
		{"mysql://localhost/db", "", true},
	}
	for _, tt := range tests {
		d, dsn, err := ParseURL(tt.url)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseURL(%q) expected error", tt.url)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseURL(%q) error = %v", tt.url, err)
			continue
		}
		if d != tt.dialect {
			t.Errorf("ParseURL(%q) dialect = %v, want %v", tt.url, d, tt.dialect)
		}
		if d == SQLite && !regexp.MustCompile(`foreign_keys\(1\)`).MatchString(dsn) {
			t.Errorf("ParseURL(%q) dsn = %q, want foreign keys enabled", tt.url, dsn)
		}
	}
}

func TestParseURLRedactsPassword(t *testing.T) {
	_, _, err := ParseURL("mysql://root:hunter2@db/app")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "hunter2")
}

func TestUsersGetByUsernameMock(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	repo := NewUsers(db)

	q := `(?s)^SELECT\s+id,\s*username,.*FROM\s+users\s+WHERE\s+username\s*=\s*\$1$`

	mock.ExpectQuery(q).WithArgs("ghost").WillReturnError(sql.ErrNoRows)
	_, err = repo.GetByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectQuery(q).WithArgs("alice").WillReturnError(errors.New("db down"))
	_, err = repo.GetByUsername(context.Background(), "alice")
	require.Error(t, err)
	assert.Regexp(t, `db error: .*db down`, err.Error())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFilesSoftDeleteMissingMock(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	repo := NewFiles(db)

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec(`(?s)^UPDATE\s+file_cache\s+SET\s+is_deleted\s*=\s*\$1,\s*deleted_at\s*=\s*\$2\s+WHERE\s+is_deleted\s*=\s*\$3\s+AND\s+filename\s+NOT\s+IN\s+\(\$4,\s*\$5\)$`).
		WithArgs(true, at, false, "a.xlsx", "b.xlsx").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.SoftDeleteMissing(context.Background(), []string{"a.xlsx", "b.xlsx"}, at)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUsersRoundTrip(t *testing.T) {
	ctx := context.Background()
	users := NewUsers(newTestDB(t))

	u, err := users.Create(ctx, &User{Username: "alice", Password: "hash", FirstName: "Alice", IsActive: true, IsStaff: true})
	require.NoError(t, err)
	require.NotZero(t, u.ID)

	got, err := users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.FullName())
	assert.True(t, got.IsAdmin())
	assert.Nil(t, got.LastLogin)

	require.NoError(t, users.TouchLogin(ctx, u.ID, time.Now()))
	got, err = users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.LastLogin)

	taken, err := users.UsernameTaken(ctx, "alice", u.ID)
	require.NoError(t, err)
	assert.False(t, taken)
	taken, err = users.UsernameTaken(ctx, "alice", 0)
	require.NoError(t, err)
	assert.True(t, taken)

	require.NoError(t, users.Delete(ctx, u.ID))
	_, err = users.GetByID(ctx, u.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, users.Delete(ctx, u.ID), ErrNotFound)
}

func TestFilesAndSheets(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	files, sheets := NewFiles(db), NewSheets(db)

	mtime := time.Date(2024, 2, 3, 4, 5, 6, 789123456, time.UTC)
	f := &FileCache{
		Filename:      "navires.xlsx",
		Name:          "navires",
		FilePath:      "/data/navires.xlsx",
		SheetsCount:   1,
		Sheets:        []string{"Données"},
		SheetsDetails: map[string]SheetDetail{"Données": {Columns: 3, Entries: 2}},
		TotalEntries:  2,
		FileSize:      4096,
		FileModified:  mtime,
	}
	require.NoError(t, files.Upsert(ctx, f))

	got, err := files.GetActive(ctx, "navires.xlsx")
	require.NoError(t, err)
	assert.True(t, got.FileModified.Equal(Truncate(mtime)), "file_modified = %v", got.FileModified)
	assert.Equal(t, []string{"Données"}, got.Sheets)
	assert.Equal(t, SheetDetail{Columns: 3, Entries: 2}, got.SheetsDetails["Données"])

	sc := &SheetCache{
		FileID:    f.ID,
		SheetName: "Données",
		Headers:   []string{"N°", "Navire"},
		Columns:   []Column{{Index: 1, Name: "N°", FieldType: "number", DataType: "number", Required: true}},
		Data:      []map[string]any{{"N°": 1.0, "Navire": "Atlas", RowIDKey: 2.0}},
		RowsCount: 1,
	}
	require.NoError(t, sheets.Upsert(ctx, sc))

	sc.Data = append(sc.Data, map[string]any{"N°": 2.0, RowIDKey: 3.0})
	require.NoError(t, sheets.SetData(ctx, sc))
	total, err := sheets.SumRows(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	cached, err := sheets.Get(ctx, f.ID, "Données")
	require.NoError(t, err)
	assert.Equal(t, 2, cached.RowsCount)
	assert.Equal(t, "Atlas", cached.Data[0]["Navire"])

	byName, err := files.FindByName(ctx, "NAVI")
	require.NoError(t, err)
	assert.Equal(t, f.ID, byName.ID)

	// A second upsert keeps the id and deletion state.
	require.NoError(t, files.MarkDeleted(ctx, f.ID, time.Now(), nil, nil))
	f.TotalEntries = 5
	require.NoError(t, files.Upsert(ctx, f))
	again, err := files.GetByFilename(ctx, "navires.xlsx")
	require.NoError(t, err)
	assert.Equal(t, f.ID, again.ID)
	_, err = files.FindByName(ctx, "NAVI")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, again.IsDeleted)
	assert.Equal(t, 5, again.TotalEntries)

	_, err = files.GetActive(ctx, "navires.xlsx")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSoftDeleteMissingAndPurge(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	files, sheets := NewFiles(db), NewSheets(db)

	for _, name := range []string{"a.xlsx", "b.xlsx", "c.xlsx"} {
		f := &FileCache{Filename: name, Name: name, FileModified: time.Now()}
		require.NoError(t, files.Upsert(ctx, f))
		require.NoError(t, sheets.Upsert(ctx, &SheetCache{FileID: f.ID, SheetName: "S"}))
	}

	n, err := files.SoftDeleteMissing(ctx, []string{"a.xlsx"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	active, err := files.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "a.xlsx", active[0].Filename)

	deleted, err := files.ListDeleted(ctx)
	require.NoError(t, err)
	assert.Len(t, deleted, 2)

	purged, err := sheets.PurgeOrphans(ctx)
	require.NoError(t, err)
	assert.Zero(t, purged)
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	boom := errors.New("boom")
	err := db.WithTx(ctx, func(ctx context.Context, tx DBTX) error {
		if _, err := NewUsers(tx).Create(ctx, &User{Username: "bob", Password: "x", IsActive: true}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := NewUsers(db).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAuditInsertAndList(t *testing.T) {
	ctx := context.Background()
	audit := NewAudit(newTestDB(t))

	row := 4
	require.NoError(t, audit.Insert(ctx, &AuditEntry{Action: "row_add", Severity: "medium", Filename: "a.xlsx", RowID: &row, Detail: map[string]any{"sheet": "S"}}))
	require.NoError(t, audit.Insert(ctx, &AuditEntry{Action: "file_delete", Severity: "high", Filename: "b.xlsx"}))

	all, err := audit.List(ctx, AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	only, err := audit.List(ctx, AuditFilter{Filename: "a.xlsx"})
	require.NoError(t, err)
	require.Len(t, only, 1)
	require.NotNil(t, only[0].RowID)
	assert.Equal(t, 4, *only[0].RowID)
	assert.Equal(t, "S", only[0].Detail["sheet"])
}
