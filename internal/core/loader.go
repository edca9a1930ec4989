package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/sheetvault/internal/logging"
	"github.com/JonMunkholm/sheetvault/internal/store"
)

// Dump is a JSON export of users, file entries and sheet caches.
type Dump struct {
	Users  []DumpUser  `json:"users"`
	Files  []DumpFile  `json:"files"`
	Sheets []DumpSheet `json:"sheets"`
}

// DumpUser is a user record of a dump. Password holds a hash.
type DumpUser struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	IsActive    *bool  `json:"is_active"`
	IsStaff     *bool  `json:"is_staff"`
	IsSuperuser bool   `json:"is_superuser"`
}

// DumpFile is a file entry of a dump. Sheets and SheetsDetails may be JSON
// values or strings holding JSON.
type DumpFile struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Filename       string          `json:"filename"`
	Sheets         json.RawMessage `json:"sheets_json"`
	SheetsCount    int             `json:"sheets_count"`
	TotalEntries   int             `json:"total_entries"`
	FileSize       int64           `json:"file_size"`
	SheetsDetails  json.RawMessage `json:"sheets_details"`
	IsDeleted      bool            `json:"is_deleted"`
	LastModifiedBy *int64          `json:"last_modified_by_id"`
}

// DumpSheet is a sheet cache of a dump. The file reference is read from
// file_cache_id or file; headers, columns and data may be strings holding
// JSON.
type DumpSheet struct {
	ID          int64           `json:"id"`
	FileCacheID *int64          `json:"file_cache_id"`
	File        *int64          `json:"file"`
	SheetName   string          `json:"sheet_name"`
	Headers     json.RawMessage `json:"headers"`
	ColumnsInfo json.RawMessage `json:"columns_info"`
	Data        json.RawMessage `json:"data"`
	RowsCount   *int            `json:"rows_count"`
}

// LoadReport counts what LoadDump created and skipped.
type LoadReport struct {
	UsersCreated  int `json:"users_created"`
	UsersSkipped  int `json:"users_skipped"`
	FilesCreated  int `json:"files_created"`
	FilesSkipped  int `json:"files_skipped"`
	SheetsCreated int `json:"sheets_created"`
	SheetsSkipped int `json:"sheets_skipped"`
}

// ReadDump decodes a dump document.
func ReadDump(r io.Reader) (*Dump, error) {
	var d Dump
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("%w: decode dump: %v", ErrInvalidInput, err)
	}
	return &d, nil
}

// LoadDump inserts the users, entries and sheets of d that do not exist yet,
// in one transaction. Existing records are matched by username, filename and
// (file, sheet name). Entry paths point into folder.
func LoadDump(ctx context.Context, db *store.DB, d *Dump, folder string) (*LoadReport, error) {
	var report LoadReport
	log := logging.FromContext(ctx)

	err := db.WithTx(ctx, func(ctx context.Context, tx store.DBTX) error {
		users, files, sheets := store.NewUsers(tx), store.NewFiles(tx), store.NewSheets(tx)
		userIDs := make(map[int64]int64, len(d.Users))
		fileIDs := make(map[int64]int64, len(d.Files))

		for _, du := range d.Users {
			if strings.TrimSpace(du.Username) == "" {
				return invalid("user %d has no username", du.ID)
			}
			existing, err := users.GetByUsername(ctx, du.Username)
			if err == nil {
				userIDs[du.ID] = existing.ID
				report.UsersSkipped++
				continue
			}
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
			u := &store.User{
				Username:    du.Username,
				Password:    du.Password,
				Email:       du.Email,
				FirstName:   du.FirstName,
				LastName:    du.LastName,
				IsActive:    du.IsActive == nil || *du.IsActive,
				IsSuperuser: du.IsSuperuser,
				IsStaff:     du.IsSuperuser,
			}
			if du.IsStaff != nil {
				u.IsStaff = *du.IsStaff
			}
			if _, err := users.Create(ctx, u); err != nil {
				return fmt.Errorf("create user %s: %w", du.Username, err)
			}
			userIDs[du.ID] = u.ID
			report.UsersCreated++
		}

		now := store.Truncate(time.Now())
		for _, df := range d.Files {
			if strings.TrimSpace(df.Filename) == "" {
				return invalid("file %d has no filename", df.ID)
			}
			existing, err := files.GetByFilename(ctx, df.Filename)
			if err == nil {
				fileIDs[df.ID] = existing.ID
				report.FilesSkipped++
				continue
			}
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}

			f := &store.FileCache{
				Filename:      df.Filename,
				Name:          df.Name,
				FilePath:      filepath.Join(folder, df.Filename),
				SheetsCount:   df.SheetsCount,
				TotalEntries:  df.TotalEntries,
				FileSize:      df.FileSize,
				FileModified:  now,
				IsDeleted:     df.IsDeleted,
				Sheets:        []string{},
				SheetsDetails: map[string]store.SheetDetail{},
			}
			if f.Name == "" {
				f.Name = strings.TrimSuffix(df.Filename, workbookExt)
			}
			if err := decodeFlexible(df.Sheets, &f.Sheets); err != nil {
				return fmt.Errorf("file %s sheets: %w", df.Filename, err)
			}
			if err := decodeFlexible(df.SheetsDetails, &f.SheetsDetails); err != nil {
				return fmt.Errorf("file %s sheets_details: %w", df.Filename, err)
			}
			if f.SheetsCount == 0 {
				f.SheetsCount = len(f.Sheets)
			}
			if f.IsDeleted {
				f.DeletedAt = &now
			}
			if df.LastModifiedBy != nil {
				if id, ok := userIDs[*df.LastModifiedBy]; ok {
					f.LastModifiedBy = &id
				}
			}
			if err := files.Insert(ctx, f); err != nil {
				return fmt.Errorf("create file %s: %w", df.Filename, err)
			}
			fileIDs[df.ID] = f.ID
			report.FilesCreated++
		}

		for _, ds := range d.Sheets {
			ref := ds.FileCacheID
			if ref == nil {
				ref = ds.File
			}
			if ref == nil {
				return invalid("sheet %q has no file reference", ds.SheetName)
			}
			fileID, ok := fileIDs[*ref]
			if !ok {
				log.Warn("sheet references an unknown file", "sheet", ds.SheetName, "file", *ref)
				report.SheetsSkipped++
				continue
			}
			if _, err := sheets.Get(ctx, fileID, ds.SheetName); err == nil {
				report.SheetsSkipped++
				continue
			} else if !errors.Is(err, store.ErrNotFound) {
				return err
			}

			sc := &store.SheetCache{
				FileID:    fileID,
				SheetName: ds.SheetName,
				Headers:   []string{},
				Columns:   []store.Column{},
				Data:      []map[string]any{},
			}
			if err := decodeFlexible(ds.Headers, &sc.Headers); err != nil {
				return fmt.Errorf("sheet %s headers: %w", ds.SheetName, err)
			}
			if err := decodeFlexible(ds.ColumnsInfo, &sc.Columns); err != nil {
				return fmt.Errorf("sheet %s columns_info: %w", ds.SheetName, err)
			}
			if err := decodeFlexible(ds.Data, &sc.Data); err != nil {
				return fmt.Errorf("sheet %s data: %w", ds.SheetName, err)
			}
			sc.RowsCount = len(sc.Data)
			if ds.RowsCount != nil {
				sc.RowsCount = *ds.RowsCount
			}
			if err := sheets.Upsert(ctx, sc); err != nil {
				return fmt.Errorf("create sheet %s: %w", ds.SheetName, err)
			}
			report.SheetsCreated++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("dump loaded",
		"users_created", report.UsersCreated,
		"files_created", report.FilesCreated,
		"sheets_created", report.SheetsCreated,
	)
	return &report, nil
}

// decodeFlexible decodes raw into v. A JSON string is decoded once more as
// the JSON document it holds; null, empty and blank values leave v as is.
func decodeFlexible(raw json.RawMessage, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		raw = json.RawMessage(s)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}
