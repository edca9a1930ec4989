package store

import (
	"strings"
	"time"
)

// User is an account allowed to use the API.
type User struct {
	ID          int64
	Username    string
	Password    string
	Email       string
	FirstName   string
	LastName    string
	IsActive    bool
	IsStaff     bool
	IsSuperuser bool
	DateJoined  time.Time
	LastLogin   *time.Time
}

// IsAdmin reports whether the user may use admin-only operations.
func (u *User) IsAdmin() bool { return u.IsStaff || u.IsSuperuser }

// FullName is "first last", or the username when both are blank.
func (u *User) FullName() string {
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	return u.Username
}

// SheetDetail holds the counts recorded per sheet in a file entry.
type SheetDetail struct {
	Columns int `json:"columns"`
	Entries int `json:"entries"`
}

// FileCache is the cached summary of one workbook.
type FileCache struct {
	ID             int64
	Filename       string
	Name           string
	FilePath       string
	SheetsCount    int
	Sheets         []string
	SheetsDetails  map[string]SheetDetail
	TotalEntries   int
	FileSize       int64
	FileModified   time.Time
	CachedAt       time.Time
	LastModifiedBy *int64
	IsDeleted      bool
	DeletedAt      *time.Time
	DeletedBy      *int64
	ArchivedPath   *string
}

// Column describes one column of a cached sheet.
type Column struct {
	Index        int      `json:"index"`
	Name         string   `json:"name"`
	FieldType    string   `json:"field_type"`
	DataType     string   `json:"data_type"`
	Required     bool     `json:"required"`
	SampleValues []string `json:"sample_values"`
}

// RowIDKey is the key holding a row's identifier in cached row mappings.
const RowIDKey = "_row_id"

// SheetCache is the cached content of one sheet.
type SheetCache struct {
	ID        int64
	FileID    int64
	SheetName string
	Headers   []string
	Columns   []Column
	Data      []map[string]any
	RowsCount int
	CachedAt  time.Time
}

// AuditEntry is one row of the audit log.
type AuditEntry struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	Severity  string         `json:"severity"`
	UserID    *int64         `json:"user_id"`
	Username  string         `json:"username"`
	Filename  string         `json:"filename,omitempty"`
	SheetName string         `json:"sheet_name,omitempty"`
	RowID     *int           `json:"row_id,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
