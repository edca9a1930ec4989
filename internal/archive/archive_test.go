package archive

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemS3() *memS3 { return &memS3{objects: map[string][]byte{}} }

func (m *memS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[aws.ToString(in.Key)] = b
	return &s3.PutObjectOutput{}, nil
}

func (m *memS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (m *memS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (m *memS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

// exercise runs the full archive lifecycle against a backend.
func exercise(t *testing.T, a Archiver) {
	t.Helper()
	ctx := context.Background()
	live := t.TempDir()
	src := writeFile(t, live, "navires.xlsx", "payload")

	key, err := a.Put(ctx, src, "navires_20240101_120000.xlsx")
	require.NoError(t, err)
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err), "source should be gone after Put")

	ok, err := a.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	dst := filepath.Join(live, "restored.xlsx")
	require.NoError(t, a.Restore(ctx, key, dst))
	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(b))

	ok, err = a.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, a.Restore(ctx, key, dst), ErrNotFound)
	assert.NoError(t, a.Remove(ctx, key))
}

func TestLocal(t *testing.T) {
	a, err := NewLocal(filepath.Join(t.TempDir(), "_archives"))
	require.NoError(t, err)
	exercise(t, a)
}

func TestS3(t *testing.T) {
	mem := newMemS3()
	a := NewS3WithClient(mem, "bucket", "archives")
	exercise(t, a)

	src := writeFile(t, t.TempDir(), "x.xlsx", "x")
	key, err := a.Put(context.Background(), src, "x.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "archives/x.xlsx", key)
	require.NoError(t, a.Remove(context.Background(), key))
	assert.Empty(t, mem.objects)
}
