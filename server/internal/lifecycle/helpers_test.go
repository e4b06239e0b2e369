package lifecycle_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/hedisam/filedrop/server/internal/blobstorage/filesystem"
	"github.com/hedisam/filedrop/server/internal/lifecycle"
	"github.com/hedisam/filedrop/server/internal/store"
	"github.com/hedisam/filedrop/server/internal/store/memdb"
)

type harness struct {
	clock   *clock.Mock
	blobs   *filesystem.FileSystem
	mdStore *memdb.MetadataStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clk := clock.NewMock()
	clk.Set(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	blobs, err := filesystem.New(logger, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = blobs.Close() })

	return &harness{
		clock:   clk,
		blobs:   blobs,
		mdStore: memdb.NewMetadataStore(clk),
	}
}

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fixedKeys hands out a predefined sequence of keys.
type fixedKeys struct {
	keys []string
}

func (f *fixedKeys) Reserve(_ context.Context) (string, error) {
	if len(f.keys) == 0 {
		return "", lifecycle.ErrKeyExhausted
	}
	key := f.keys[0]
	f.keys = f.keys[1:]
	return key, nil
}

func (f *fixedKeys) Attempts() int {
	return 5
}

type sliceParts struct {
	parts []*lifecycle.Part
	err   error
}

func (s *sliceParts) Next() (*lifecycle.Part, error) {
	if len(s.parts) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	p := s.parts[0]
	s.parts = s.parts[1:]
	return p, nil
}

// failingReader yields data and then fails.
type failingReader struct {
	data []byte
	err  error
}

func (f *failingReader) Read(p []byte) (int, error) {
	if len(f.data) == 0 {
		return 0, f.err
	}
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}

type failingInsert struct {
	err error
}

func (f failingInsert) Insert(_ context.Context, _ *store.Upload) (*store.Upload, error) {
	return nil, f.err
}

// failingDelete wraps the filesystem store and fails deletes of the listed keys, or of every key when none are listed.
type failingDelete struct {
	*filesystem.FileSystem
	keys map[string]bool
	err  error
}

func (f *failingDelete) Delete(ctx context.Context, key string) error {
	if len(f.keys) == 0 || f.keys[key] {
		return f.err
	}
	return f.FileSystem.Delete(ctx, key)
}

type recordingEmitter struct {
	keys []string
}

func (r *recordingEmitter) Emit(_ context.Context, key string) error {
	r.keys = append(r.keys, key)
	return nil
}
