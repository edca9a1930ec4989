package main

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetvault/internal/core"
)

func TestReportError(t *testing.T) {
	var buf bytes.Buffer
	reportError(&buf, fmt.Errorf("create user: %w", core.ErrUsernameTaken))
	assert.Contains(t, buf.String(), "(Code: USR002)")
	assert.NotContains(t, buf.String(), "create user")

	buf.Reset()
	reportError(&buf, errors.New("open dump.json: no such file or directory"))
	assert.Equal(t, "Error: open dump.json: no such file or directory\n", buf.String())
}

func TestRootCommandReturnsErrors(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"load-data"})

	err := root.Execute()
	require.Error(t, err)
	assert.NotContains(t, out.String(), "Error:")
}
