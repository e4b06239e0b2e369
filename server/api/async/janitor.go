package async

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hedisam/filedrop/lib/chans"
	"github.com/hedisam/filedrop/server/internal/store"
)

type BlobStorage interface {
	Delete(ctx context.Context, key string) error
}

type MetadataStore interface {
	Get(ctx context.Context, key string) (*store.Upload, error)
}

// Janitor removes blobs that an upload left behind after its compensating delete failed.
type Janitor struct {
	logger  *logrus.Logger
	blobs   BlobStorage
	mdStore MetadataStore
}

func NewJanitor(logger *logrus.Logger, blobs BlobStorage, mdStore MetadataStore) *Janitor {
	return &Janitor{
		logger:  logger,
		blobs:   blobs,
		mdStore: mdStore,
	}
}

// Run consumes orphaned keys until in is closed or ctx is done.
func (j *Janitor) Run(ctx context.Context, in <-chan string) {
	j.logger.WithContext(ctx).Info("Running Janitor")

	for key := range chans.ReceiveOrDoneSeq(ctx, in) {
		j.cleanup(ctx, key)
	}
}

func (j *Janitor) cleanup(ctx context.Context, key string) {
	ctx, span := otel.Tracer("").Start(ctx, "janitor")
	defer span.End()
	span.SetAttributes(attribute.String("key", key))

	logger := j.logger.WithContext(ctx).WithField("key", key)
	logger.Debug("Cleaning up orphaned blob")

	_, err := j.mdStore.Get(ctx, key)
	switch {
	case err == nil:
		// a record owns this key now; the reaper will remove the blob with it
		logger.Info("Orphaned blob has a metadata record, leaving it to the reaper")
		return
	case !errors.Is(err, store.ErrNotFound):
		logger.WithError(err).Error("Failed to check metadata of orphaned blob")
		return
	}

	bk := backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(time.Second*3),
		backoff.WithMaxInterval(time.Second),
		backoff.WithInitialInterval(time.Millisecond*100),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0.2),
	)
	err = backoff.Retry(func() error {
		err := j.blobs.Delete(ctx, key)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.WithError(err).Error("Failed to clean up blob due to context cancellation")
				return backoff.Permanent(err)
			}
			logger.WithError(err).Error("Failed to delete blob, retrying")
			return err
		}

		return nil
	}, backoff.WithContext(bk, ctx))
	if err != nil {
		logger.WithError(err).Error("Failed to clean up blob in janitor")
		return
	}
	logger.Info("Removed orphaned blob")
}
