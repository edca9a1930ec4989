package core

import (
	"errors"
	"fmt"
)

// Error classes. Handlers map these to HTTP statuses with errors.Is; more
// specific errors below wrap one of them.
var (
	ErrFileNotFound       = errors.New("file not found")
	ErrSheetNotFound      = errors.New("sheet not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrRowNotFound        = errors.New("row not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrDuplicate          = errors.New("already exists")
	ErrForbidden          = errors.New("forbidden")
	ErrUnauthenticated    = errors.New("authentication required")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrArchiveMissing     = errors.New("archived file is no longer available")
)

var (
	ErrFileExists      = fmt.Errorf("file %w", ErrDuplicate)
	ErrSheetExists     = fmt.Errorf("sheet %w", ErrDuplicate)
	ErrUsernameTaken   = fmt.Errorf("username %w", ErrDuplicate)
	ErrInvalidWorkbook = fmt.Errorf("%w: not a valid Excel workbook", ErrInvalidInput)
	ErrRowIDRequired   = fmt.Errorf("%w: row id required", ErrInvalidInput)
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
