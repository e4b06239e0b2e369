package filesystem

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hedisam/filedrop/server/internal/blobstorage"
)

const metaSuffix = ".meta.json"

// meta is the sidecar document written next to every blob.
type meta struct {
	blobstorage.Attributes
	Size           int64  `json:"size"`
	SHA256Checksum string `json:"sha256_checksum"`
}

// FileSystem is a blob store rooted in a single directory. Each blob is stored as a data file named after its key
// plus a JSON sidecar holding its content headers. A blob is visible only once its sidecar exists.
type FileSystem struct {
	logger *logrus.Logger
	dir    *os.Root
}

func New(logger *logrus.Logger, rootDir string) (*FileSystem, error) {
	logger.WithField("root_dir", rootDir).Info("Getting directory-limited filesystem access")

	dir, err := os.OpenRoot(rootDir)
	if err != nil {
		return nil, fmt.Errorf("open root dir: %w", err)
	}

	return &FileSystem{
		logger: logger,
		dir:    dir,
	}, nil
}

func (fs *FileSystem) Close() error {
	return fs.dir.Close()
}

// Exists reports whether a data file exists for key, including one whose upload is still in flight.
func (fs *FileSystem) Exists(_ context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	_, err := fs.dir.Stat(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat object file: %w", err)
	}
	return true, nil
}

// Put streams r into a new blob under key. The data file is created exclusively so a taken key fails with
// blobstorage.ErrConflict before anything is read from r. A failed write leaves nothing behind.
func (fs *FileSystem) Put(ctx context.Context, key string, r io.Reader, attrs blobstorage.Attributes) (err error) {
	logger := fs.logger.WithContext(ctx).WithField("key", key)

	if err := validateKey(key); err != nil {
		return err
	}

	f, err := fs.dir.OpenFile(key, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return blobstorage.ErrConflict
		}
		logger.WithError(err).Error("Could not create object file when putting object in filesystem")
		return fmt.Errorf("create object file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = fs.dir.Remove(key)
		}
	}()
	defer f.Close()

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(f, hasher), contextReader{ctx: ctx, r: r})
	if err != nil {
		logger.WithError(err).Warn("Could not write to file when putting object in filesystem")
		return fmt.Errorf("write to object file: %w", err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("sync object file: %w", err)
	}

	err = fs.writeMeta(key, &meta{
		Attributes:     attrs,
		Size:           written,
		SHA256Checksum: hex.EncodeToString(hasher.Sum(nil)),
	})
	if err != nil {
		logger.WithError(err).Error("Could not write object metadata in filesystem")
		return err
	}

	return nil
}

// Get opens the blob stored under key.
func (fs *FileSystem) Get(ctx context.Context, key string) (*blobstorage.Object, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	m, err := fs.readMeta(key)
	if err != nil {
		return nil, err
	}

	f, err := fs.dir.Open(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, blobstorage.ErrNotFound
		}
		fs.logger.WithContext(ctx).WithField("key", key).WithError(err).Error("Could not open object file")
		return nil, fmt.Errorf("open object file: %w", err)
	}

	return &blobstorage.Object{
		Attributes: m.Attributes,
		Size:       m.Size,
		Body:       f,
	}, nil
}

// Move renames the blob stored under from to to. It fails with blobstorage.ErrConflict if to already exists.
func (fs *FileSystem) Move(ctx context.Context, from, to string) error {
	if err := validateKey(from); err != nil {
		return err
	}
	if err := validateKey(to); err != nil {
		return err
	}

	err := fs.dir.Link(from, to)
	if err != nil {
		switch {
		case errors.Is(err, os.ErrExist):
			return blobstorage.ErrConflict
		case errors.Is(err, os.ErrNotExist):
			return blobstorage.ErrNotFound
		}
		return fmt.Errorf("link object file: %w", err)
	}

	err = fs.dir.Rename(from+metaSuffix, to+metaSuffix)
	if err != nil {
		_ = fs.dir.Remove(to)
		return fmt.Errorf("move object metadata: %w", err)
	}

	if err := fs.dir.Remove(from); err != nil && !errors.Is(err, os.ErrNotExist) {
		fs.logger.WithContext(ctx).WithField("key", from).WithError(err).Warn("Could not remove moved object file")
	}
	return nil
}

// Delete removes the blob stored under key. Deleting a missing blob is not an error.
func (fs *FileSystem) Delete(ctx context.Context, key string) error {
	logger := fs.logger.WithContext(ctx).WithField("key", key)

	if err := validateKey(key); err != nil {
		return err
	}

	// sidecar first: readers stop seeing the blob before the data disappears
	for _, name := range []string{key + metaSuffix, key} {
		err := fs.dir.Remove(name)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.WithError(err).Error("Could not remove file from filesystem")
			return fmt.Errorf("remove object file: %w", err)
		}
	}

	return nil
}

func (fs *FileSystem) writeMeta(key string, m *meta) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal object metadata: %w", err)
	}

	tmp := key + metaSuffix + ".tmp"
	if err := fs.dir.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write object metadata: %w", err)
	}
	if err := fs.dir.Rename(tmp, key+metaSuffix); err != nil {
		_ = fs.dir.Remove(tmp)
		return fmt.Errorf("commit object metadata: %w", err)
	}
	return nil
}

func (fs *FileSystem) readMeta(key string) (*meta, error) {
	data, err := fs.dir.ReadFile(key + metaSuffix)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, blobstorage.ErrNotFound
		}
		return nil, fmt.Errorf("read object metadata: %w", err)
	}

	var m meta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal object metadata: %w", err)
	}
	return &m, nil
}

func validateKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return fmt.Errorf("invalid object key %q", key)
	}
	return nil
}

// contextReader stops reading once ctx is done so an abandoned upload does not keep writing.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
