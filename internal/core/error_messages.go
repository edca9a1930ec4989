// Package core error codes.
//
// When users encounter errors they can quote the code to support staff.
// Codes are grouped by category:
//
//	FILE001 - File not found          FILE002 - Not a valid workbook
//	FILE003 - File name already used  FILE004 - No file provided
//	FILE005 - File too large
//	SHEET001 - Sheet not found        SHEET002 - Sheet name already used
//	ROW001 - Row not found            ROW002 - Row id missing
//	USR001 - User not found           USR002 - Username already used
//	AUTH001 - Invalid credentials     AUTH002 - Not authenticated
//	AUTH003 - Not allowed
//	ARC001 - Archived copy missing
//	VAL001 - Invalid input
//	UPL001 - Too many imports         UPL002 - Request cancelled
//	UPL003 - Request timeout
//	DB001 - Duplicate value           DB002 - Referenced record missing
//	DB003 - Database unreachable      DB004 - Database busy
//	RATE001 - Rate limited
//	ERR000 - Unknown error
//
// Sentinel errors are matched first with errors.Is; anything else is matched
// case-insensitively against known message fragments. The first match wins,
// so specific entries come before general ones.
package core

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type sentinelMessage struct {
	err error
	msg UserMessage
}

var sentinelMessages = []sentinelMessage{
	{ErrInvalidWorkbook, UserMessage{"The file is not a valid Excel workbook", "Upload an .xlsx file saved from Excel", "FILE002"}},
	{ErrFileExists, UserMessage{"A file with this name already exists", "Choose another file name", "FILE003"}},
	{ErrSheetExists, UserMessage{"A sheet with this name already exists", "Choose another sheet name", "SHEET002"}},
	{ErrUsernameTaken, UserMessage{"This username is already taken", "Choose another username", "USR002"}},
	{ErrRowIDRequired, UserMessage{"Row id is required", "Select the row to change and try again", "ROW002"}},
	{ErrFileNotFound, UserMessage{"File not found", "Refresh the file list; it may have been deleted", "FILE001"}},
	{ErrSheetNotFound, UserMessage{"Sheet not found", "Refresh the file; the sheet may have been renamed", "SHEET001"}},
	{ErrRowNotFound, UserMessage{"Row not found", "Reload the sheet data", "ROW001"}},
	{ErrUserNotFound, UserMessage{"User not found", "Reload the user list", "USR001"}},
	{ErrInvalidCredentials, UserMessage{"Invalid username or password", "Check your credentials and try again", "AUTH001"}},
	{ErrUnauthenticated, UserMessage{"You are not signed in", "Sign in and try again", "AUTH002"}},
	{ErrForbidden, UserMessage{"You are not allowed to do this", "Ask an administrator", "AUTH003"}},
	{ErrArchiveMissing, UserMessage{"The archived file no longer exists", "The file data is still kept in the database", "ARC001"}},
	{ErrTooManyImports, UserMessage{"System is busy processing other imports", "Please wait a moment and try again", "UPL001"}},
	{ErrInvalidInput, UserMessage{"Some of the submitted values are invalid", "Correct the highlighted fields and try again", "VAL001"}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user
// messages for errors that carry no sentinel, such as driver errors.
var errorPatterns = []errorPattern{
	{"no file provided", UserMessage{"No file was selected", "Please select an Excel file to upload", "FILE004"}},
	{"request body too large", UserMessage{"File exceeds the maximum size limit", "Split the workbook into smaller files", "FILE005"}},
	{"file too large", UserMessage{"File exceeds the maximum size limit", "Split the workbook into smaller files", "FILE005"}},
	{"duplicate key", UserMessage{"A record with this value already exists", "Check for duplicate names", "DB001"}},
	{"unique constraint", UserMessage{"A record with this value already exists", "Check for duplicate names", "DB001"}},
	{"foreign key constraint", UserMessage{"Referenced record does not exist", "Reload the page and try again", "DB002"}},
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB003"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB003"}},
	{"database is locked", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB004"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB004"}},
	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "UPL002"}},
	{"context deadline exceeded", UserMessage{"Request timed out", "Try a smaller file or check your connection", "UPL003"}},
	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

// defaultMessage is returned when nothing matches (ERR000). Support staff
// should check application logs for the technical error.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
//	err := fmt.Errorf("open Ventes.xlsx: %w", ErrFileNotFound)
//	msg := MapError(err)
//	// msg.Code == "FILE001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display:
// "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
