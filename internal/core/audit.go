package core

// AuditAction represents the type of action being audited.
type AuditAction string

const (
	ActionFileCreate     AuditAction = "file_create"
	ActionFileImport     AuditAction = "file_import"
	ActionFileDelete     AuditAction = "file_delete"
	ActionFileRestore    AuditAction = "file_restore"
	ActionFilePurge      AuditAction = "file_purge"
	ActionSheetCreate    AuditAction = "sheet_create"
	ActionRowAdd         AuditAction = "row_add"
	ActionRowUpdate      AuditAction = "row_update"
	ActionRowDelete      AuditAction = "row_delete"
	ActionUserCreate     AuditAction = "user_create"
	ActionUserUpdate     AuditAction = "user_update"
	ActionUserDelete     AuditAction = "user_delete"
	ActionPasswordChange AuditAction = "password_change"
	ActionCacheRefresh   AuditAction = "cache_refresh"
)

// AuditSeverity represents the severity level of an audit entry.
type AuditSeverity string

const (
	SeverityLow      AuditSeverity = "low"
	SeverityMedium   AuditSeverity = "medium"
	SeverityHigh     AuditSeverity = "high"
	SeverityCritical AuditSeverity = "critical"
)

// AuditLogParams contains parameters for creating an audit log entry.
type AuditLogParams struct {
	Action    AuditAction
	UserID    int64
	UserName  string
	IPAddress string
	UserAgent string
	Filename  string
	SheetName string
	RowID     int
	Detail    map[string]any
}

// determineSeverity returns the appropriate severity for an action.
func determineSeverity(action AuditAction) AuditSeverity {
	switch action {
	case ActionFilePurge:
		return SeverityCritical
	case ActionFileDelete, ActionRowDelete, ActionUserDelete:
		return SeverityHigh
	case ActionCacheRefresh:
		return SeverityLow
	default:
		return SeverityMedium
	}
}
