package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapErrorSentinels(t *testing.T) {
	for _, s := range sentinelMessages {
		wrapped := fmt.Errorf("navires.xlsx: %w", s.err)
		assert.Equal(t, s.msg, MapError(wrapped), s.err.Error())
	}
	assert.Equal(t, UserMessage{}, MapError(nil))
}

func TestMapErrorPrecedence(t *testing.T) {
	// Specific errors wrap their class and must keep their own code.
	cases := map[error]string{
		ErrSheetExists:      "SHEET002",
		ErrFileExists:       "FILE003",
		ErrInvalidWorkbook:  "FILE002",
		ErrRowIDRequired:    "ROW002",
		invalid("colonnes"): "VAL001",
	}
	for err, code := range cases {
		assert.Equal(t, code, MapError(fmt.Errorf("op: %w", err)).Code, err.Error())
	}
}

func TestMapErrorPatterns(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{errors.New("pq: duplicate key value violates unique constraint"), "DB001"},
		{errors.New("UNIQUE constraint failed: users.username"), "DB001"},
		{errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), "DB003"},
		{errors.New("database is locked (5) (SQLITE_BUSY)"), "DB004"},
		{fmt.Errorf("import: %w", context.DeadlineExceeded), "UPL003"},
		{errors.New("http: request body too large"), "FILE005"},
		{errors.New("excelize: zip: not a valid zip file"), "ERR000"},
	}
	for _, c := range cases {
		assert.Equal(t, c.code, MapError(c.err).Code, c.err.Error())
	}
}

func TestFormatUserError(t *testing.T) {
	assert.Equal(t, "Row not found (Code: ROW001). Reload the sheet data", FormatUserError(ErrRowNotFound))
}

func TestIsUserFacing(t *testing.T) {
	assert.False(t, IsUserFacing(nil))
	assert.True(t, IsUserFacing(fmt.Errorf("delete user 3: %w", ErrForbidden)))
	assert.True(t, IsUserFacing(errors.New("deadlock detected")))
	assert.False(t, IsUserFacing(errors.New("unexpected EOF")))
}

func TestSpecificErrorsKeepTheirClass(t *testing.T) {
	assert.ErrorIs(t, ErrFileExists, ErrDuplicate)
	assert.ErrorIs(t, ErrSheetExists, ErrDuplicate)
	assert.ErrorIs(t, ErrUsernameTaken, ErrDuplicate)
	assert.ErrorIs(t, ErrInvalidWorkbook, ErrInvalidInput)
	assert.ErrorIs(t, ErrRowIDRequired, ErrInvalidInput)
}
