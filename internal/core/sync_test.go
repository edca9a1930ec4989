package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetvault/internal/store"
)

func TestBuilderRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	writeWorkbook(t, env.folder, "navires.xlsx", "Navires", navires)

	entry, err := env.svc.Synchronizer().RefreshFile(ctx, "navires.xlsx", nil)
	require.NoError(t, err)

	sc, err := store.NewSheets(env.db).Get(ctx, entry.ID, "Navires")
	require.NoError(t, err)
	assert.Equal(t, 5, sc.RowsCount)
	assert.Equal(t, []int{2, 3, 4, 5, 6}, rowIDs(t, sc.Data))
	assert.Equal(t, []string{"N°", "Navire", "Tonnage"}, sc.Headers)

	require.Len(t, sc.Columns, 3)
	assert.Equal(t, 1, sc.Columns[0].Index)
	assert.Equal(t, "number", sc.Columns[0].FieldType)
	assert.True(t, sc.Columns[0].Required)
	assert.Equal(t, "number", sc.Columns[2].DataType)
	assert.Equal(t, []string{"Atlas", "Borealis", "Cygnus"}, sc.Columns[1].SampleValues)

	assert.Equal(t, "Atlas", sc.Data[0]["Navire"])
	assert.Equal(t, 5, entry.TotalEntries)
	assert.Equal(t, []string{"Navires"}, entry.Sheets)
	assert.Equal(t, "navires", entry.Name)
}

func TestBuilderSkipsBlankRows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rows := [][]any{
		{"N°", "Navire", "Tonnage"},
		{1, "Atlas", 1200},
		{2, "Borealis", 800},
		nil,
		{3, "Cygnus", 950},
		{4, "Draco", 300},
		{5, "Eridan", 450},
	}
	writeWorkbook(t, env.folder, "trous.xlsx", "Navires", rows)

	entry, err := env.svc.Synchronizer().RefreshFile(ctx, "trous.xlsx", nil)
	require.NoError(t, err)

	sc, err := store.NewSheets(env.db).Get(ctx, entry.ID, "Navires")
	require.NoError(t, err)
	assert.Equal(t, 5, sc.RowsCount)
	assert.Equal(t, []int{2, 3, 5, 6, 7}, rowIDs(t, sc.Data))
}

func TestSyncIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	writeWorkbook(t, env.folder, "a.xlsx", "Navires", navires)
	writeWorkbook(t, env.folder, "b.xlsx", "Navires", navires[:3])
	require.NoError(t, os.WriteFile(filepath.Join(env.folder, "~$a.xlsx"), []byte("lock"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(env.folder, "notes.txt"), []byte("x"), 0o644))

	sync := env.svc.Synchronizer()
	first, err := sync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Scanned)
	assert.Equal(t, 2, first.Rebuilt)
	assert.Equal(t, 0, first.Failed)

	second, err := sync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Rebuilt)
	assert.Equal(t, 2, second.Skipped)
}

func TestSyncRebuildsModifiedFiles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	path := writeWorkbook(t, env.folder, "a.xlsx", "Navires", navires)

	sync := env.svc.Synchronizer()
	_, err := sync.Sync(ctx)
	require.NoError(t, err)

	writeWorkbook(t, env.folder, "a.xlsx", "Navires", navires[:2])
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	report, err := sync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rebuilt)

	entry, err := store.NewFiles(env.db).GetByFilename(ctx, "a.xlsx")
	require.NoError(t, err)
	assert.Equal(t, 1, entry.TotalEntries)
}

func TestSyncSoftDeletesMissingFiles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	writeWorkbook(t, env.folder, "a.xlsx", "Navires", navires)
	gone := writeWorkbook(t, env.folder, "b.xlsx", "Navires", navires)

	sync := env.svc.Synchronizer()
	_, err := sync.Sync(ctx)
	require.NoError(t, err)

	require.NoError(t, os.Remove(gone))
	report, err := sync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.SoftDeleted)

	entry, err := store.NewFiles(env.db).GetByFilename(ctx, "b.xlsx")
	require.NoError(t, err)
	assert.True(t, entry.IsDeleted)
	assert.NotNil(t, entry.DeletedAt)
}

func TestSyncKeepsEntriesWhenFolderEmpty(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	path := writeWorkbook(t, env.folder, "a.xlsx", "Navires", navires)

	sync := env.svc.Synchronizer()
	_, err := sync.Sync(ctx)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	report, err := sync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.SoftDeleted)

	entry, err := store.NewFiles(env.db).GetByFilename(ctx, "a.xlsx")
	require.NoError(t, err)
	assert.False(t, entry.IsDeleted)
}

func TestSyncSchedulerStopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	writeWorkbook(t, env.folder, "a.xlsx", "Navires", navires)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		env.svc.Synchronizer().StartSyncScheduler(ctx, time.Hour)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, err := store.NewFiles(env.db).GetByFilename(context.Background(), "a.xlsx")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
