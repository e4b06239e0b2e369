package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hedisam/filedrop/server/internal/blobstorage"
	"github.com/hedisam/filedrop/server/internal/store"
)

const (
	// Retention is how long an upload stays retrievable.
	Retention = 7 * 24 * time.Hour

	FileField    = "file"
	ExpiresField = "expires"
)

// Part is one field of an upload request.
type Part struct {
	FieldName string
	FileName  string
	// ContentType is the type the client declared; the stored type is derived from FileName.
	ContentType string
	Body        io.Reader
}

// Parts iterates the fields of an upload request. Next returns io.EOF after the last part.
type Parts interface {
	Next() (*Part, error)
}

type KeyReserver interface {
	Reserve(ctx context.Context) (string, error)
	Attempts() int
}

type UploadBlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, attrs blobstorage.Attributes) error
	Move(ctx context.Context, from, to string) error
	Delete(ctx context.Context, key string) error
}

type UploadMetadataStore interface {
	Insert(ctx context.Context, u *store.Upload) (*store.Upload, error)
}

// OrphanEmitter queues the key of a blob whose compensating delete failed.
type OrphanEmitter interface {
	Emit(ctx context.Context, key string) error
}

type UploadCoordinator struct {
	logger  *logrus.Logger
	keys    KeyReserver
	blobs   UploadBlobStore
	mdStore UploadMetadataStore
	orphans OrphanEmitter
	clock   clock.Clock
}

func NewUploadCoordinator(
	logger *logrus.Logger,
	keys KeyReserver,
	blobs UploadBlobStore,
	mdStore UploadMetadataStore,
	orphans OrphanEmitter,
	clk clock.Clock,
) *UploadCoordinator {
	return &UploadCoordinator{
		logger:  logger,
		keys:    keys,
		blobs:   blobs,
		mdStore: mdStore,
		orphans: orphans,
		clock:   clk,
	}
}

// Handle stores every file part in order. It stops at the first failing part and returns the uploads completed
// before it together with the error; those uploads stay stored and retrievable.
func (c *UploadCoordinator) Handle(ctx context.Context, parts Parts) ([]*store.Upload, error) {
	var uploads []*store.Upload
	for {
		part, err := parts.Next()
		if errors.Is(err, io.EOF) {
			return uploads, nil
		}
		if err != nil {
			return uploads, fmt.Errorf("%w: %w", ErrMalformedMultipart, err)
		}

		switch part.FieldName {
		case ExpiresField:
			return uploads, ErrExpiresUnsupported
		case FileField:
		default:
			continue
		}
		if part.FileName == "" {
			// not a file, just a form value
			continue
		}

		u, err := c.Store(ctx, part)
		if err != nil {
			return uploads, err
		}
		uploads = append(uploads, u)
	}
}

// Store writes a single file: blob first, then metadata, so a visible record always has its bytes.
func (c *UploadCoordinator) Store(ctx context.Context, part *Part) (*store.Upload, error) {
	ctx, span := otel.Tracer("").Start(ctx, "upload.store")
	defer span.End()

	logger := c.logger.WithContext(ctx).WithField("filename", part.FileName)

	attrs := blobstorage.Attributes{
		ContentType:        ContentTypeFor(part.FileName),
		ContentDisposition: contentDisposition(part.FileName),
	}
	body := &countingReader{r: part.Body}

	key, err := c.putBlob(ctx, body, attrs)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		logger.WithError(err).Error("Failed to write blob")
		return nil, err
	}
	logger = logger.WithField("key", key)

	now := c.clock.Now().UTC()
	for attempt := 1; ; attempt++ {
		span.SetAttributes(attribute.String("key", key))

		u, err := c.mdStore.Insert(ctx, &store.Upload{
			Key:      key,
			Filename: part.FileName,
			Expires:  now.Add(Retention),
		})
		if err == nil {
			logger.WithField("size", body.n).Debug("Stored upload")
			return u, nil
		}

		if !errors.Is(err, store.ErrConflict) {
			c.compensate(ctx, logger, key)
			span.SetStatus(codes.Error, err.Error())
			logger.WithError(err).Error("Failed to insert upload metadata")
			return nil, fmt.Errorf("%w: %w", ErrMetadataWriteFailed, err)
		}

		if attempt >= c.keys.Attempts() {
			c.compensate(ctx, logger, key)
			logger.Error("Upload key kept colliding in metadata store")
			return nil, fmt.Errorf("%w: metadata conflicts after %d attempts", ErrKeyExhausted, attempt)
		}

		// someone else recorded this key; our exclusive blob write still owns the bytes, so rehome them
		logger.Warn("Upload key already recorded, moving blob to a fresh key")
		newKey, err := c.moveToFreshKey(ctx, key)
		if err != nil {
			c.compensate(ctx, logger, key)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		key = newKey
		logger = logger.WithField("key", key)
	}
}

// putBlob reserves a key and streams the body under it. A conflicting write is retried with a fresh key only when
// the body has not been touched yet.
func (c *UploadCoordinator) putBlob(ctx context.Context, body *countingReader, attrs blobstorage.Attributes) (string, error) {
	for attempt := 1; ; attempt++ {
		key, err := c.keys.Reserve(ctx)
		if err != nil {
			return "", err
		}

		err = c.blobs.Put(ctx, key, body, attrs)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, blobstorage.ErrConflict) {
			return "", fmt.Errorf("%w: %w", ErrBlobWriteFailed, err)
		}
		if body.n > 0 {
			return "", fmt.Errorf("%w: key taken after body was consumed: %w", ErrBlobWriteFailed, err)
		}
		if attempt >= c.keys.Attempts() {
			return "", fmt.Errorf("%w: blob conflicts after %d attempts", ErrKeyExhausted, attempt)
		}
	}
}

func (c *UploadCoordinator) moveToFreshKey(ctx context.Context, from string) (string, error) {
	for attempt := 1; ; attempt++ {
		to, err := c.keys.Reserve(ctx)
		if err != nil {
			return "", err
		}

		err = c.blobs.Move(ctx, from, to)
		if err == nil {
			return to, nil
		}
		if !errors.Is(err, blobstorage.ErrConflict) {
			return "", fmt.Errorf("%w: move blob: %w", ErrBlobWriteFailed, err)
		}
		if attempt >= c.keys.Attempts() {
			return "", fmt.Errorf("%w: move conflicts after %d attempts", ErrKeyExhausted, attempt)
		}
	}
}

// compensate deletes a blob that will never get a metadata record. It runs even if the request was cancelled; when
// the delete fails the key is handed to the janitor.
func (c *UploadCoordinator) compensate(ctx context.Context, logger *logrus.Entry, key string) {
	ctx = context.WithoutCancel(ctx)

	err := c.blobs.Delete(ctx, key)
	if err == nil {
		logger.Debug("Deleted orphaned blob")
		return
	}

	logger.WithError(err).Warn("Failed to delete orphaned blob, handing it to the janitor")
	if c.orphans == nil {
		return
	}
	emitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := c.orphans.Emit(emitCtx, key); err != nil {
		logger.WithError(err).Error("Failed to queue orphaned blob for cleanup")
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
