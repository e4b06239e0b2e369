package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hedisam/filedrop/server/internal/blobstorage"
	"github.com/hedisam/filedrop/server/internal/store"
)

type RetrievalBlobStore interface {
	Get(ctx context.Context, key string) (*blobstorage.Object, error)
}

type RetrievalMetadataStore interface {
	Get(ctx context.Context, key string) (*store.Upload, error)
}

type RetrievalCoordinator struct {
	logger  *logrus.Logger
	blobs   RetrievalBlobStore
	mdStore RetrievalMetadataStore
	clock   clock.Clock
}

func NewRetrievalCoordinator(
	logger *logrus.Logger,
	blobs RetrievalBlobStore,
	mdStore RetrievalMetadataStore,
	clk clock.Clock,
) *RetrievalCoordinator {
	return &RetrievalCoordinator{
		logger:  logger,
		blobs:   blobs,
		mdStore: mdStore,
		clock:   clk,
	}
}

// Fetch opens the blob stored under key. An object is only returned while its metadata record exists and has not
// expired, whether or not the reaper has purged it yet. The caller owns the returned body.
func (c *RetrievalCoordinator) Fetch(ctx context.Context, key string) (*blobstorage.Object, error) {
	if !ValidKey(key) {
		return nil, ErrNotFound
	}

	ctx, span := otel.Tracer("").Start(ctx, "retrieval.fetch")
	defer span.End()
	span.SetAttributes(attribute.String("key", key))

	obj, err := c.blobs.Get(ctx, key)
	if err != nil {
		if errors.Is(err, blobstorage.ErrNotFound) {
			return nil, ErrNotFound
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: get blob: %w", ErrStoreUnavailable, err)
	}

	u, err := c.mdStore.Get(ctx, key)
	if err != nil {
		_ = obj.Body.Close()
		if errors.Is(err, store.ErrNotFound) {
			// blob without a record: either a write still in flight or an orphan the janitor has yet to remove
			c.logger.WithContext(ctx).WithField("key", key).Debug("Blob has no metadata record")
			return nil, ErrNotFound
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: get metadata: %w", ErrStoreUnavailable, err)
	}
	if u.Expired(c.clock.Now()) {
		_ = obj.Body.Close()
		return nil, ErrNotFound
	}

	return obj, nil
}

// Describe returns the metadata record of a live upload.
func (c *RetrievalCoordinator) Describe(ctx context.Context, key string) (*store.Upload, error) {
	if !ValidKey(key) {
		return nil, ErrNotFound
	}

	u, err := c.mdStore.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: get metadata: %w", ErrStoreUnavailable, err)
	}
	if u.Expired(c.clock.Now()) {
		return nil, ErrNotFound
	}
	return u, nil
}
