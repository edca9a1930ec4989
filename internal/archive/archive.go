// Package archive keeps soft-deleted workbooks so they can be restored.
//
// A workbook is moved out of the live folder into an archive backend under a
// key; the key is stored on the file cache entry. Backends are a local
// directory and an S3 bucket.
package archive

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key is not held by the archive.
var ErrNotFound = errors.New("archive object not found")

// Archiver stores archived workbooks.
type Archiver interface {
	// Put moves the local file src into the archive under name and returns
	// the key to store. src no longer exists on success.
	Put(ctx context.Context, src, name string) (string, error)

	// Exists reports whether key is held.
	Exists(ctx context.Context, key string) (bool, error)

	// Restore moves the object at key to the local path dst.
	Restore(ctx context.Context, key, dst string) error

	// Remove deletes the object at key. Removing a missing key is not an
	// error.
	Remove(ctx context.Context, key string) error
}
