package lifecycle_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hedisam/filedrop/server/internal/blobstorage"
	"github.com/hedisam/filedrop/server/internal/lifecycle"
	"github.com/hedisam/filedrop/server/internal/store"
)

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

type stubBlobs struct {
	obj *blobstorage.Object
	err error
}

func (s stubBlobs) Get(_ context.Context, _ string) (*blobstorage.Object, error) {
	return s.obj, s.err
}

type stubMetadata struct {
	upload *store.Upload
	err    error
	calls  int
}

func (s *stubMetadata) Get(_ context.Context, _ string) (*store.Upload, error) {
	s.calls++
	return s.upload, s.err
}

func TestFetch(t *testing.T) {
	tests := map[string]struct {
		key       string
		blobErr   error
		metaErr   error
		expired   bool
		errIs     error
		wantClose bool
		metaCalls int
	}{
		"invalid key skips stores": {
			key:   "../etc",
			errIs: lifecycle.ErrNotFound,
		},
		"never issued key": {
			key:     "abcdefg",
			blobErr: blobstorage.ErrNotFound,
			errIs:   lifecycle.ErrNotFound,
		},
		"blob store failure": {
			key:     "abcdefg",
			blobErr: errors.New("timeout"),
			errIs:   lifecycle.ErrStoreUnavailable,
		},
		"metadata missing closes body": {
			key:       "abcdefg",
			metaErr:   store.ErrNotFound,
			errIs:     lifecycle.ErrNotFound,
			wantClose: true,
			metaCalls: 1,
		},
		"metadata failure closes body": {
			key:       "abcdefg",
			metaErr:   errors.New("db down"),
			errIs:     lifecycle.ErrStoreUnavailable,
			wantClose: true,
			metaCalls: 1,
		},
		"expired but not reaped closes body": {
			key:       "abcdefg",
			expired:   true,
			errIs:     lifecycle.ErrNotFound,
			wantClose: true,
			metaCalls: 1,
		},
		"live upload": {
			key:       "abcdefg",
			metaCalls: 1,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			body := &closeTracker{Reader: strings.NewReader("data")}
			blobs := stubBlobs{err: tc.blobErr}
			if tc.blobErr == nil {
				blobs.obj = &blobstorage.Object{Body: body, Size: 4}
			}
			h := newHarness(t)
			expires := h.clock.Now().Add(time.Hour)
			if tc.expired {
				expires = h.clock.Now().Add(-time.Second)
			}
			meta := &stubMetadata{err: tc.metaErr, upload: &store.Upload{Key: tc.key, Expires: expires}}

			rc := lifecycle.NewRetrievalCoordinator(discardLogger(), blobs, meta, h.clock)
			obj, err := rc.Fetch(context.Background(), tc.key)
			assert.Equal(t, tc.metaCalls, meta.calls)
			assert.Equal(t, tc.wantClose, body.closed)
			if tc.errIs != nil {
				require.ErrorIs(t, err, tc.errIs)
				assert.Nil(t, obj)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "data", readObject(t, obj))
		})
	}
}

func TestDescribe(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	keys := lifecycle.NewKeyGenerator(h.blobs, lifecycle.DefaultKeyAttempts)
	uc := lifecycle.NewUploadCoordinator(discardLogger(), keys, h.blobs, h.mdStore, &recordingEmitter{}, h.clock)
	rc := lifecycle.NewRetrievalCoordinator(discardLogger(), h.blobs, h.mdStore, h.clock)

	u, err := uc.Store(ctx, filePart("a.txt", "content"))
	require.NoError(t, err)

	got, err := rc.Describe(ctx, u.Key)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", got.Filename)
	assert.Equal(t, u.Expires, got.Expires)

	_, err = rc.Describe(ctx, "zzzzzzz")
	require.ErrorIs(t, err, lifecycle.ErrNotFound)

	_, err = rc.Describe(ctx, "bad")
	require.ErrorIs(t, err, lifecycle.ErrNotFound)

	h.clock.Add(lifecycle.Retention + 1)
	_, err = rc.Describe(ctx, u.Key)
	require.ErrorIs(t, err, lifecycle.ErrNotFound)
	_, err = rc.Fetch(ctx, u.Key)
	require.ErrorIs(t, err, lifecycle.ErrNotFound)
}
