package core

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetvault/internal/store"
	"github.com/JonMunkholm/sheetvault/internal/workbook"
)

func TestCreateFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.CreateFile(ctx, " Escales/2024 ", []string{"Navire", "", "Date d'arrivée"}, env.editor)
	require.NoError(t, err)
	assert.Equal(t, "Escales-2024.xlsx", res.Filename)
	assert.Equal(t, 3, res.ColumnsCount)
	assert.FileExists(t, filepath.Join(env.folder, "Escales-2024.xlsx"))

	cols, err := env.svc.SheetColumns(ctx, "Escales-2024.xlsx", DefaultSheetName)
	require.NoError(t, err)
	require.Len(t, cols.Columns, 3)
	assert.Equal(t, "Colonne 2", cols.Columns[1].Name)
	assert.Equal(t, "datetime-local", cols.Columns[2].FieldType)
	assert.Equal(t, "date", cols.Columns[2].DataType)

	_, err = env.svc.CreateFile(ctx, "Escales-2024", []string{"A"}, env.editor)
	assert.ErrorIs(t, err, ErrFileExists)
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = env.svc.CreateFile(ctx, "  ", []string{"A"}, env.editor)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = env.svc.CreateFile(ctx, "vide", nil, env.editor)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func workbookBytes(t *testing.T, rows [][]any) []byte {
	t.Helper()
	path := writeWorkbook(t, t.TempDir(), "upload.xlsx", "Navires", rows)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return b
}

func TestImportFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	content := workbookBytes(t, navires)

	res, err := env.svc.ImportFile(ctx, "escales.xls", bytes.NewReader(content), env.editor)
	require.NoError(t, err)
	assert.Equal(t, "escales.xlsx", res.Filename)
	assert.Equal(t, 1, res.TotalSheets)
	assert.Equal(t, []workbook.Summary{{Name: "Navires", Columns: 3, Entries: 5}}, res.Sheets)

	again, err := env.svc.ImportFile(ctx, "escales.xlsx", bytes.NewReader(content), env.editor)
	require.NoError(t, err)
	assert.Equal(t, "escales (1).xlsx", again.Filename)

	list, err := env.svc.ListFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, list.TotalFiles)

	_, err = env.svc.ImportFile(ctx, "notes.csv", strings.NewReader("a,b"), env.editor)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = env.svc.ImportFile(ctx, "faux.xlsx", strings.NewReader("not a zip"), env.editor)
	assert.ErrorIs(t, err, ErrInvalidWorkbook)
	assert.NoFileExists(t, filepath.Join(env.folder, "faux.xlsx"))
}

func TestArchivedNamesStayReserved(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.CreateFile(ctx, "Escales", []string{"Navire"}, env.editor)
	require.NoError(t, err)
	_, err = env.svc.DeleteFile(ctx, "Escales.xlsx", env.editor)
	require.NoError(t, err)

	_, err = env.svc.CreateFile(ctx, "Escales", []string{"Navire"}, env.editor)
	assert.ErrorIs(t, err, ErrFileExists)
	assert.NoFileExists(t, filepath.Join(env.folder, "Escales.xlsx"))

	res, err := env.svc.ImportFile(ctx, "Escales.xlsx", bytes.NewReader(workbookBytes(t, navires)), env.editor)
	require.NoError(t, err)
	assert.Equal(t, "Escales (1).xlsx", res.Filename)

	list, err := env.svc.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, list.Files, 1)
	assert.Equal(t, "Escales (1).xlsx", list.Files[0].Filename)

	archived, err := env.svc.ListArchived(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, archived.Total)
}

func TestImportFileBusy(t *testing.T) {
	env := newTestEnv(t)
	limiter := NewImportLimiter(1, 10*time.Millisecond)
	env.svc.limiter = limiter
	require.NoError(t, limiter.Acquire(context.Background()))
	defer limiter.Release()

	_, err := env.svc.ImportFile(context.Background(), "a.xlsx", bytes.NewReader(workbookBytes(t, navires)), env.editor)
	assert.ErrorIs(t, err, ErrTooManyImports)
}

func TestAddSheet(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	writeWorkbook(t, env.folder, "navires.xlsx", "Navires", navires)

	res, err := env.svc.AddSheet(ctx, "navires.xlsx", "Escales", []string{"Port", "Date"}, env.editor)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ColumnsCount)

	sheets, err := env.svc.ListSheets(ctx, "navires.xlsx")
	require.NoError(t, err)
	require.Len(t, sheets.Sheets, 2)
	assert.Equal(t, SheetInfo{Name: "Navires", ColumnsCount: 3, EntriesCount: 5}, sheets.Sheets[0])
	assert.Equal(t, SheetInfo{Name: "Escales", ColumnsCount: 2, EntriesCount: 0}, sheets.Sheets[1])
	assert.Equal(t, "navires", sheets.FileName)

	_, err = env.svc.AddSheet(ctx, "navires.xlsx", "Escales", []string{"X"}, env.editor)
	assert.ErrorIs(t, err, ErrSheetExists)
	_, err = env.svc.AddSheet(ctx, "absent.xlsx", "Escales", []string{"X"}, env.editor)
	assert.ErrorIs(t, err, ErrFileNotFound)
	_, err = env.svc.AddSheet(ctx, "navires.xlsx", " ", []string{"X"}, env.editor)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestListFilesResolvesModifier(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	writeWorkbook(t, env.folder, "Suivi navires.xlsx", "Navires", navires)
	_, err := env.svc.Synchronizer().RefreshFile(ctx, "Suivi navires.xlsx", env.editor)
	require.NoError(t, err)

	list, err := env.svc.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, list.Files, 1)
	f := list.Files[0]
	assert.Equal(t, "Suivi_navires", f.ID)
	assert.Equal(t, 5, f.TotalEntries)
	require.NotNil(t, f.LastModifiedBy)
	assert.Equal(t, "Marie Curie", f.LastModifiedBy.FullName)
}

func TestSheetColumnsFallsBackToFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	writeWorkbook(t, env.folder, "navires.xlsx", "Navires", navires)

	cols, err := env.svc.SheetColumns(ctx, "navires.xlsx", "Navires")
	require.NoError(t, err)
	require.Len(t, cols.Columns, 3)
	assert.Equal(t, "number", cols.Columns[2].DataType)

	_, err = env.svc.SheetColumns(ctx, "navires.xlsx", "Absent")
	assert.ErrorIs(t, err, ErrSheetNotFound)
	_, err = env.svc.SheetColumns(ctx, "absent.xlsx", "Navires")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestDeleteThenRestore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	files := store.NewFiles(env.db)
	writeWorkbook(t, env.folder, "navires.xlsx", "Navires", navires)
	before, err := env.svc.Synchronizer().RefreshFile(ctx, "navires.xlsx", nil)
	require.NoError(t, err)

	del, err := env.svc.DeleteFile(ctx, "navires.xlsx", env.editor)
	require.NoError(t, err)
	assert.True(t, del.Archived)
	assert.True(t, del.CanRestore)
	assert.NoFileExists(t, filepath.Join(env.folder, "navires.xlsx"))

	deleted, err := files.GetByID(ctx, before.ID)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
	require.NotNil(t, deleted.DeletedBy)
	assert.Equal(t, env.editor.ID, *deleted.DeletedBy)
	require.NotNil(t, deleted.ArchivedPath)

	archived, err := env.svc.ListArchived(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, archived.Total)
	assert.True(t, archived.ArchivedFiles[0].CanRestore)
	assert.Equal(t, "marie", archived.ArchivedFiles[0].DeletedBy.Username)

	list, err := env.svc.ListFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, list.TotalFiles)

	res, err := env.svc.RestoreFile(ctx, before.ID, env.editor)
	require.NoError(t, err)
	assert.Equal(t, "navires.xlsx", res.Filename)
	assert.FileExists(t, filepath.Join(env.folder, "navires.xlsx"))

	after, err := files.GetByID(ctx, before.ID)
	require.NoError(t, err)
	assert.False(t, after.IsDeleted)
	assert.Nil(t, after.DeletedAt)
	assert.Nil(t, after.DeletedBy)
	assert.Nil(t, after.ArchivedPath)
	assert.Equal(t, before.Filename, after.Filename)
	assert.Equal(t, before.Name, after.Name)
	assert.Equal(t, before.Sheets, after.Sheets)
	assert.Equal(t, before.SheetsDetails, after.SheetsDetails)
	assert.Equal(t, before.TotalEntries, after.TotalEntries)
	assert.Equal(t, before.FileSize, after.FileSize)

	sc, err := store.NewSheets(env.db).Get(ctx, before.ID, "Navires")
	require.NoError(t, err)
	assert.Equal(t, 5, sc.RowsCount)
}

func TestRestoreRenamesOnCollision(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	writeWorkbook(t, env.folder, "navires.xlsx", "Navires", navires)
	entry, err := env.svc.Synchronizer().RefreshFile(ctx, "navires.xlsx", nil)
	require.NoError(t, err)

	_, err = env.svc.DeleteFile(ctx, "navires.xlsx", env.editor)
	require.NoError(t, err)
	writeWorkbook(t, env.folder, "navires.xlsx", "Navires", navires[:2])

	res, err := env.svc.RestoreFile(ctx, entry.ID, env.editor)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Filename, "navires_restored_"), res.Filename)
	assert.FileExists(t, filepath.Join(env.folder, res.Filename))

	restored, err := store.NewFiles(env.db).GetByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSuffix(res.Filename, ".xlsx"), restored.Name)
}

func TestRestoreWithoutArchive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	writeWorkbook(t, env.folder, "navires.xlsx", "Navires", navires)
	entry, err := env.svc.Synchronizer().RefreshFile(ctx, "navires.xlsx", nil)
	require.NoError(t, err)

	_, err = env.svc.DeleteFile(ctx, "navires.xlsx", env.editor)
	require.NoError(t, err)
	deleted, err := store.NewFiles(env.db).GetByID(ctx, entry.ID)
	require.NoError(t, err)
	require.NoError(t, os.Remove(*deleted.ArchivedPath))

	_, err = env.svc.RestoreFile(ctx, entry.ID, env.editor)
	assert.ErrorIs(t, err, ErrArchiveMissing)

	_, err = env.svc.RestoreFile(ctx, 9999, env.editor)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestDeleteCacheOnlyEntry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	entry := cacheOnly(t, env, "navires.xlsx")

	res, err := env.svc.DeleteFile(ctx, "navires.xlsx", env.editor)
	require.NoError(t, err)
	assert.False(t, res.CanRestore)

	deleted, err := store.NewFiles(env.db).GetByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
	assert.Nil(t, deleted.ArchivedPath)

	_, err = env.svc.DeleteFile(ctx, "navires.xlsx", env.editor)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestDeleteUncachedFileCreatesEntry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	writeWorkbook(t, env.folder, "navires.xlsx", "Navires", navires)

	_, err := env.svc.DeleteFile(ctx, "navires.xlsx", env.editor)
	require.NoError(t, err)

	entry, err := store.NewFiles(env.db).GetByFilename(ctx, "navires.xlsx")
	require.NoError(t, err)
	assert.True(t, entry.IsDeleted)
	assert.Equal(t, 5, entry.TotalEntries)
}

func TestPermanentDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	writeWorkbook(t, env.folder, "navires.xlsx", "Navires", navires)
	entry, err := env.svc.Synchronizer().RefreshFile(ctx, "navires.xlsx", nil)
	require.NoError(t, err)
	_, err = env.svc.DeleteFile(ctx, "navires.xlsx", env.editor)
	require.NoError(t, err)

	_, err = env.svc.PermanentDelete(ctx, entry.ID, env.editor)
	assert.ErrorIs(t, err, ErrForbidden)

	deleted, err := store.NewFiles(env.db).GetByID(ctx, entry.ID)
	require.NoError(t, err)
	key := *deleted.ArchivedPath

	res, err := env.svc.PermanentDelete(ctx, entry.ID, env.admin)
	require.NoError(t, err)
	assert.True(t, res.DataPreserved)
	assert.NoFileExists(t, key)

	purged, err := store.NewFiles(env.db).GetByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, purged.IsDeleted)
	assert.Nil(t, purged.ArchivedPath)
	assert.Equal(t, 5, purged.TotalEntries)

	entries, err := env.svc.Audit().GetAuditLog(ctx, AuditLogOptions{Action: ActionFilePurge})
	require.NoError(t, err)
	require.Len(t, entries.Entries, 1)
	assert.Equal(t, string(SeverityCritical), entries.Entries[0].Severity)
}

func TestDownload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	writeWorkbook(t, env.folder, "navires.xlsx", "Navires", navires)

	f, info, err := env.svc.Download(ctx, "navires.xlsx")
	require.NoError(t, err)
	defer f.Close()
	assert.Positive(t, info.Size())

	_, _, err = env.svc.Download(ctx, "absent.xlsx")
	assert.ErrorIs(t, err, ErrFileNotFound)
	_, _, err = env.svc.Download(ctx, "..%2Fsecret")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRefreshCacheRecordsAudit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	writeWorkbook(t, env.folder, "navires.xlsx", "Navires", navires)

	res, err := env.svc.RefreshCache(ctx, env.admin)
	require.NoError(t, err)
	assert.Equal(t, 1, res.FilesCount)
	assert.Equal(t, 1, res.Report.Rebuilt)

	log, err := env.svc.Audit().GetAuditLog(ctx, AuditLogOptions{Action: ActionCacheRefresh})
	require.NoError(t, err)
	require.Len(t, log.Entries, 1)
	assert.Equal(t, "admin", log.Entries[0].Username)
}

func TestRefreshTypesSkipsMissingFiles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cacheOnly(t, env, "disparu.xlsx")
	writeWorkbook(t, env.folder, "navires.xlsx", "Navires", navires)
	_, err := env.svc.Synchronizer().RefreshFile(ctx, "navires.xlsx", nil)
	require.NoError(t, err)

	n, err := env.svc.RefreshTypes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
