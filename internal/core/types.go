package core

import (
	"time"

	"github.com/JonMunkholm/sheetvault/internal/store"
	"github.com/JonMunkholm/sheetvault/internal/workbook"
)

// UserRef identifies a user in file listings.
type UserRef struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

func userRef(u *store.User) *UserRef {
	if u == nil {
		return nil
	}
	return &UserRef{ID: u.ID, Username: u.Username, FullName: u.FullName()}
}

// FileInfo is one entry of the file list.
type FileInfo struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Filename       string    `json:"filename"`
	Path           string    `json:"path"`
	SheetsCount    int       `json:"sheets_count"`
	Sheets         []string  `json:"sheets"`
	TotalEntries   int       `json:"total_entries"`
	Size           int64     `json:"size"`
	Modified       time.Time `json:"modified"`
	LastModifiedBy *UserRef  `json:"last_modified_by"`
}

// FileList is the result of ListFiles.
type FileList struct {
	Files      []FileInfo `json:"files"`
	TotalFiles int        `json:"total_files"`
}

// RefreshResult is the result of RefreshCache.
type RefreshResult struct {
	Message    string     `json:"message"`
	FilesCount int        `json:"files_count"`
	Report     SyncReport `json:"report"`
}

// SheetInfo summarizes one sheet of a file.
type SheetInfo struct {
	Name         string `json:"name"`
	ColumnsCount int    `json:"columns_count"`
	EntriesCount int    `json:"entries_count"`
}

// SheetList is the result of ListSheets.
type SheetList struct {
	Filename string      `json:"filename"`
	FileName string      `json:"file_name"`
	Sheets   []SheetInfo `json:"sheets"`
}

// SheetColumns is the result of SheetColumns.
type SheetColumns struct {
	Filename  string         `json:"filename"`
	SheetName string         `json:"sheet_name"`
	Columns   []store.Column `json:"columns"`
}

// SheetData is the result of SheetData.
type SheetData struct {
	Filename  string           `json:"filename"`
	SheetName string           `json:"sheet_name"`
	Headers   []string         `json:"headers"`
	Data      []map[string]any `json:"data"`
	TotalRows int              `json:"total_rows"`
}

// CreateFileResult is the result of CreateFile.
type CreateFileResult struct {
	Message      string `json:"message"`
	Filename     string `json:"filename"`
	ColumnsCount int    `json:"columns_count"`
}

// ImportResult is the result of ImportFile.
type ImportResult struct {
	Message     string             `json:"message"`
	Filename    string             `json:"filename"`
	Sheets      []workbook.Summary `json:"sheets"`
	TotalSheets int                `json:"total_sheets"`
}

// AddSheetResult is the result of AddSheet.
type AddSheetResult struct {
	Message      string `json:"message"`
	SheetName    string `json:"sheet_name"`
	ColumnsCount int    `json:"columns_count"`
}

// RowResult is the result of a row mutation.
type RowResult struct {
	Message   string `json:"message"`
	RowNumber int    `json:"row_number,omitempty"`
	Mode      string `json:"mode"`
}

// DeleteResult is the result of DeleteFile.
type DeleteResult struct {
	Message    string    `json:"message"`
	Archived   bool      `json:"archived"`
	CanRestore bool      `json:"can_restore"`
	ArchivedAt time.Time `json:"archived_at"`
}

// ArchivedFile is one entry of the archive list.
type ArchivedFile struct {
	ID           int64      `json:"id"`
	Filename     string     `json:"filename"`
	Name         string     `json:"name"`
	DeletedAt    *time.Time `json:"deleted_at"`
	DeletedBy    *UserRef   `json:"deleted_by"`
	SheetsCount  int        `json:"sheets_count"`
	TotalEntries int        `json:"total_entries"`
	CanRestore   bool       `json:"can_restore"`
}

// ArchivedList is the result of ListArchived.
type ArchivedList struct {
	ArchivedFiles []ArchivedFile `json:"archived_files"`
	Total         int            `json:"total"`
}

// RestoreResult is the result of RestoreFile.
type RestoreResult struct {
	Message    string    `json:"message"`
	Filename   string    `json:"filename"`
	RestoredAt time.Time `json:"restored_at"`
}

// PurgeResult is the result of PermanentDelete.
type PurgeResult struct {
	Message       string `json:"message"`
	DataPreserved bool   `json:"data_preserved"`
}
