package core

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/sheetvault/internal/archive"
	"github.com/JonMunkholm/sheetvault/internal/store"
)

type testEnv struct {
	db      *store.DB
	svc     *Service
	folder  string
	archive *archive.Local
	admin   *store.User
	editor  *store.User
}

func newTestDB(t *testing.T) *store.DB {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, filepath.Join(t.TempDir(), "test.db"), store.PoolOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Migrate(ctx)
	require.NoError(t, err)
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	db := newTestDB(t)

	folder := filepath.Join(t.TempDir(), "excel_files")
	arch, err := archive.NewLocal(filepath.Join(t.TempDir(), "archives"))
	require.NoError(t, err)

	svc, err := NewService(db, arch, Options{Folder: folder, MaxRow: 1000, SkipListSync: true})
	require.NoError(t, err)

	users := store.NewUsers(db)
	admin, err := users.Create(ctx, &store.User{Username: "admin", Password: "x", IsActive: true, IsStaff: true, IsSuperuser: true})
	require.NoError(t, err)
	editor, err := users.Create(ctx, &store.User{Username: "marie", Password: "x", FirstName: "Marie", LastName: "Curie", IsActive: true})
	require.NoError(t, err)

	return &testEnv{db: db, svc: svc, folder: folder, archive: arch, admin: admin, editor: editor}
}

// writeWorkbook saves rows into sheet of folder/name. Row 0 holds the
// headers; a nil row is left blank.
func writeWorkbook(t *testing.T, folder, name, sheet string, rows [][]any) string {
	t.Helper()
	path := filepath.Join(folder, name)

	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", sheet))
	for i, row := range rows {
		for j, v := range row {
			ref, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, ref, v))
		}
	}
	require.NoError(t, f.SaveAs(path))
	return path
}

// navires is a sheet of three headers and five data rows.
var navires = [][]any{
	{"N°", "Navire", "Tonnage"},
	{1, "Atlas", 1200.5},
	{2, "Borealis", 800},
	{3, "Cygnus", 950},
	{4, "Draco", 300},
	{5, "Eridan", 450},
}

func rowIDs(t *testing.T, data []map[string]any) []int {
	t.Helper()
	ids := make([]int, 0, len(data))
	for _, row := range data {
		id, err := ParseRowID(row[store.RowIDKey])
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}
