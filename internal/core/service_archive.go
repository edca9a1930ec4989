package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/JonMunkholm/sheetvault/internal/archive"
	"github.com/JonMunkholm/sheetvault/internal/logging"
	"github.com/JonMunkholm/sheetvault/internal/store"
)

// DeleteFile moves a workbook to the archive and soft-deletes its entry.
// A workbook present on disk without an entry is cached first so the
// archived entry keeps its summary.
func (s *Service) DeleteFile(ctx context.Context, filename string, user *store.User) (*DeleteResult, error) {
	if user == nil {
		return nil, ErrUnauthenticated
	}
	decoded := decodeName(filename)
	if err := checkFilename(decoded); err != nil {
		return nil, err
	}
	log := logging.WithFields(ctx, "filename", decoded)

	unlock := s.reconciler.locks.lock(decoded)
	defer unlock()

	entry, err := s.files.GetActive(ctx, decoded)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	onDisk := s.physical(decoded)
	if entry == nil && !onDisk {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, decoded)
	}
	if entry == nil {
		entry, err = s.sync.RefreshFile(ctx, decoded, nil)
		if entry == nil {
			return nil, fmt.Errorf("cache %s before archiving: %w", decoded, err)
		}
		if err != nil {
			log.Warn("partial cache before archiving", "error", err)
		}
	}

	now := store.Truncate(s.now())
	var archivedPath *string
	if onDisk {
		key, err := s.archive.Put(ctx, s.path(decoded), archiveName(decoded, now))
		if err != nil {
			return nil, fmt.Errorf("archive %s: %w", decoded, err)
		}
		if ok, err := s.archive.Exists(ctx, key); err == nil && ok {
			archivedPath = &key
		} else if err != nil {
			log.Warn("archive check failed", "key", key, "error", err)
		}
		log.Info("workbook archived", "key", key)
	}

	if err := s.files.MarkDeleted(ctx, entry.ID, now, &user.ID, archivedPath); err != nil {
		return nil, fmt.Errorf("flag %s as deleted: %w", decoded, err)
	}

	s.audit.Record(ctx, user, AuditLogParams{
		Action:   ActionFileDelete,
		Filename: decoded,
		Detail:   map[string]any{"archived": archivedPath != nil},
	})
	return &DeleteResult{
		Message:    fmt.Sprintf("File %s archived", decoded),
		Archived:   true,
		CanRestore: archivedPath != nil,
		ArchivedAt: now,
	}, nil
}

// ListArchived returns the soft-deleted entries, most recent first.
func (s *Service) ListArchived(ctx context.Context) (*ArchivedList, error) {
	entries, err := s.files.ListDeleted(ctx)
	if err != nil {
		return nil, fmt.Errorf("list archived files: %w", err)
	}
	var ids []int64
	for _, e := range entries {
		if e.DeletedBy != nil {
			ids = append(ids, *e.DeletedBy)
		}
	}
	users, err := s.users.Summaries(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve deleters: %w", err)
	}

	out := &ArchivedList{ArchivedFiles: make([]ArchivedFile, 0, len(entries))}
	for _, e := range entries {
		f := ArchivedFile{
			ID:           e.ID,
			Filename:     e.Filename,
			Name:         e.Name,
			DeletedAt:    e.DeletedAt,
			SheetsCount:  e.SheetsCount,
			TotalEntries: e.TotalEntries,
			CanRestore:   s.archived(ctx, e),
		}
		if e.DeletedBy != nil {
			f.DeletedBy = userRef(users[*e.DeletedBy])
		}
		out.ArchivedFiles = append(out.ArchivedFiles, f)
	}
	out.Total = len(out.ArchivedFiles)
	return out, nil
}

// archived reports whether the archive still holds the entry's workbook.
func (s *Service) archived(ctx context.Context, e *store.FileCache) bool {
	if e.ArchivedPath == nil {
		return false
	}
	ok, err := s.archive.Exists(ctx, *e.ArchivedPath)
	if err != nil {
		logging.FromContext(ctx).Warn("archive check failed", "key", *e.ArchivedPath, "error", err)
		return false
	}
	return ok
}

// RestoreFile moves an archived workbook back into the folder and clears
// the deletion state of its entry. A name taken in the meantime gets a
// _restored_<timestamp> suffix.
func (s *Service) RestoreFile(ctx context.Context, id int64, user *store.User) (*RestoreResult, error) {
	if user == nil {
		return nil, ErrUnauthenticated
	}
	entry, err := s.deleted(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.archived(ctx, entry) {
		return nil, fmt.Errorf("%w: %s", ErrArchiveMissing, entry.Filename)
	}

	now := store.Truncate(s.now())
	filename := entry.Filename
	if s.physical(filename) {
		filename = fmt.Sprintf("%s_restored_%s%s",
			strings.TrimSuffix(filename, workbookExt), now.Format("20060102_150405"), workbookExt)
	}
	name := entry.Name
	if filename != entry.Filename {
		name = strings.TrimSuffix(filename, workbookExt)
	}

	unlock := s.reconciler.locks.lock(filename)
	defer unlock()

	path := s.path(filename)
	if err := s.archive.Restore(ctx, *entry.ArchivedPath, path); err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrArchiveMissing, entry.Filename)
		}
		return nil, fmt.Errorf("restore %s: %w", entry.Filename, err)
	}
	if err := s.files.Restore(ctx, entry.ID, filename, name, path, &user.ID, now); err != nil {
		return nil, fmt.Errorf("clear deletion of %s: %w", entry.Filename, err)
	}
	logging.FromContext(ctx).Info("workbook restored", "filename", filename, "id", entry.ID)

	s.audit.Record(ctx, user, AuditLogParams{
		Action:   ActionFileRestore,
		Filename: filename,
		Detail:   map[string]any{"id": entry.ID, "original_filename": entry.Filename},
	})
	return &RestoreResult{
		Message:    fmt.Sprintf("File %s restored", filename),
		Filename:   filename,
		RestoredAt: now,
	}, nil
}

// PermanentDelete drops the archived workbook of a deleted entry. The entry
// and its cached data are kept.
func (s *Service) PermanentDelete(ctx context.Context, id int64, user *store.User) (*PurgeResult, error) {
	if user == nil {
		return nil, ErrUnauthenticated
	}
	if !user.IsAdmin() {
		return nil, fmt.Errorf("%w: permanent deletion is reserved to administrators", ErrForbidden)
	}
	entry, err := s.deleted(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.ArchivedPath != nil {
		if err := s.archive.Remove(ctx, *entry.ArchivedPath); err != nil {
			return nil, fmt.Errorf("remove archived %s: %w", entry.Filename, err)
		}
	}
	if err := s.files.ClearArchive(ctx, entry.ID); err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Warn("archived workbook purged", "filename", entry.Filename, "id", entry.ID)

	s.audit.Record(ctx, user, AuditLogParams{
		Action:   ActionFilePurge,
		Filename: entry.Filename,
		Detail:   map[string]any{"id": entry.ID},
	})
	return &PurgeResult{
		Message:       fmt.Sprintf("Archived copy of %s permanently deleted", entry.Filename),
		DataPreserved: true,
	}, nil
}

func (s *Service) deleted(ctx context.Context, id int64) (*store.FileCache, error) {
	entry, err := s.files.GetDeleted(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: archived file %d", ErrFileNotFound, id)
	}
	return entry, err
}

// Download opens the workbook file. The caller closes it.
func (s *Service) Download(ctx context.Context, filename string) (*os.File, fs.FileInfo, error) {
	decoded := decodeName(filename)
	if err := checkFilename(decoded); err != nil {
		return nil, nil, err
	}
	f, err := os.Open(s.path(decoded))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", ErrFileNotFound, decoded)
		}
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		f.Close()
		return nil, nil, fmt.Errorf("%w: %s", ErrFileNotFound, decoded)
	}
	logging.FromContext(ctx).Debug("workbook download", "filename", decoded, "size", info.Size())
	return f, info, nil
}
