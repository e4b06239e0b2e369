package filesystem_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hedisam/filedrop/server/internal/blobstorage"
	"github.com/hedisam/filedrop/server/internal/blobstorage/filesystem"
)

// errorReader always returns an error on Read.
type errorReader struct {
	err error
}

func (e errorReader) Read(p []byte) (int, error) {
	return 0, e.err
}

var attrs = blobstorage.Attributes{
	ContentType:        "text/plain; charset=utf-8",
	ContentDisposition: "inline; filename=hello.txt",
}

func newFS(t *testing.T) (*filesystem.FileSystem, string) {
	t.Helper()
	dir := t.TempDir()
	fs, err := filesystem.New(logrus.New(), dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fs.Close() })
	return fs, dir
}

// Each case has its own setup, so these are subtests rather than a table.
func TestPut(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path", func(t *testing.T) {
		fs, dir := newFS(t)
		data := []byte("hello world")

		err := fs.Put(ctx, "abc1234", bytes.NewReader(data), attrs)
		require.NoError(t, err)

		content, err := os.ReadFile(filepath.Join(dir, "abc1234"))
		require.NoError(t, err)
		assert.Equal(t, data, content)

		exists, err := fs.Exists(ctx, "abc1234")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("existing key conflicts without reading", func(t *testing.T) {
		fs, _ := newFS(t)
		require.NoError(t, fs.Put(ctx, "abc1234", bytes.NewReader([]byte("first")), attrs))

		r := bytes.NewReader([]byte("second"))
		err := fs.Put(ctx, "abc1234", r, attrs)
		require.ErrorIs(t, err, blobstorage.ErrConflict)
		assert.Equal(t, 6, r.Len(), "body must not be consumed")
	})

	t.Run("read error leaves nothing behind", func(t *testing.T) {
		fs, dir := newFS(t)

		err := fs.Put(ctx, "abc1234", errorReader{err: errors.New("read error")}, attrs)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "write to object file: read error")

		_, err = os.Stat(filepath.Join(dir, "abc1234"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("cancelled context stops the copy", func(t *testing.T) {
		fs, _ := newFS(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		err := fs.Put(cctx, "abc1234", bytes.NewReader([]byte("data")), attrs)
		require.ErrorIs(t, err, context.Canceled)

		exists, err := fs.Exists(ctx, "abc1234")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("invalid key", func(t *testing.T) {
		fs, _ := newFS(t)
		err := fs.Put(ctx, "../escape", bytes.NewReader(nil), attrs)
		require.ErrorContains(t, err, "invalid object key")
	})
}

func TestGet(t *testing.T) {
	ctx := context.Background()

	t.Run("returns body and attributes", func(t *testing.T) {
		fs, _ := newFS(t)
		require.NoError(t, fs.Put(ctx, "abc1234", bytes.NewReader([]byte("hello world")), attrs))

		obj, err := fs.Get(ctx, "abc1234")
		require.NoError(t, err)
		defer obj.Body.Close()

		assert.Equal(t, attrs, obj.Attributes)
		assert.EqualValues(t, 11, obj.Size)
		body, err := io.ReadAll(obj.Body)
		require.NoError(t, err)
		assert.Equal(t, "hello world", string(body))
	})

	t.Run("missing blob", func(t *testing.T) {
		fs, _ := newFS(t)
		_, err := fs.Get(ctx, "missing")
		require.ErrorIs(t, err, blobstorage.ErrNotFound)
	})

	t.Run("data without sidecar is not visible", func(t *testing.T) {
		fs, dir := newFS(t)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "inflite"), []byte("partial"), 0o644))

		_, err := fs.Get(ctx, "inflite")
		require.ErrorIs(t, err, blobstorage.ErrNotFound)
	})
}

func TestMove(t *testing.T) {
	ctx := context.Background()

	t.Run("moves data and attributes", func(t *testing.T) {
		fs, _ := newFS(t)
		require.NoError(t, fs.Put(ctx, "aaaaaaa", bytes.NewReader([]byte("payload")), attrs))

		require.NoError(t, fs.Move(ctx, "aaaaaaa", "bbbbbbb"))

		_, err := fs.Get(ctx, "aaaaaaa")
		require.ErrorIs(t, err, blobstorage.ErrNotFound)

		obj, err := fs.Get(ctx, "bbbbbbb")
		require.NoError(t, err)
		defer obj.Body.Close()
		body, err := io.ReadAll(obj.Body)
		require.NoError(t, err)
		assert.Equal(t, "payload", string(body))
		assert.Equal(t, attrs, obj.Attributes)
	})

	t.Run("destination taken", func(t *testing.T) {
		fs, _ := newFS(t)
		require.NoError(t, fs.Put(ctx, "aaaaaaa", bytes.NewReader([]byte("a")), attrs))
		require.NoError(t, fs.Put(ctx, "bbbbbbb", bytes.NewReader([]byte("b")), attrs))

		err := fs.Move(ctx, "aaaaaaa", "bbbbbbb")
		require.ErrorIs(t, err, blobstorage.ErrConflict)
	})

	t.Run("missing source", func(t *testing.T) {
		fs, _ := newFS(t)
		err := fs.Move(ctx, "aaaaaaa", "bbbbbbb")
		require.ErrorIs(t, err, blobstorage.ErrNotFound)
	})
}

// Each case has its own setup, so these are subtests rather than a table.
func TestDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path", func(t *testing.T) {
		fs, dir := newFS(t)
		require.NoError(t, fs.Put(ctx, "abc1234", bytes.NewReader([]byte("data")), attrs))

		err := fs.Delete(ctx, "abc1234")
		require.NoError(t, err)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("no errors when blob does not exist", func(t *testing.T) {
		fs, _ := newFS(t)
		err := fs.Delete(ctx, "missing")
		require.NoError(t, err)
	})
}
