package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hedisam/filedrop/server/internal/store"
)

const DefaultReapBatchSize = 100

type ReaperMetadataStore interface {
	ListExpired(ctx context.Context, before time.Time, after *store.Cursor, limit int) ([]*store.Upload, error)
	Delete(ctx context.Context, key string) error
}

type ReaperBlobStore interface {
	Delete(ctx context.Context, key string) error
}

// ReapResult summarises one reap cycle.
type ReapResult struct {
	Purged int
	Failed int
}

type Reaper struct {
	logger    *logrus.Logger
	mdStore   ReaperMetadataStore
	blobs     ReaperBlobStore
	clock     clock.Clock
	batchSize int
}

func NewReaper(
	logger *logrus.Logger,
	mdStore ReaperMetadataStore,
	blobs ReaperBlobStore,
	clk clock.Clock,
	batchSize int,
) *Reaper {
	if batchSize <= 0 {
		batchSize = DefaultReapBatchSize
	}
	return &Reaper{
		logger:    logger,
		mdStore:   mdStore,
		blobs:     blobs,
		clock:     clk,
		batchSize: batchSize,
	}
}

// Reap purges every upload that expired before the cycle started. Batches are paged by position, so a failing record
// is skipped and reported in the returned error without holding back the records listed after it. Its metadata is
// kept so a later cycle retries it.
func (r *Reaper) Reap(ctx context.Context) (*ReapResult, error) {
	ctx, span := otel.Tracer("").Start(ctx, "reaper.reap")
	defer span.End()

	now := r.clock.Now().UTC()
	logger := r.logger.WithContext(ctx)
	result := &ReapResult{}
	var errs *multierror.Error
	var after *store.Cursor

	for {
		expired, err := r.mdStore.ListExpired(ctx, now, after, r.batchSize)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("list expired uploads: %w", err))
			break
		}

		failed := 0
		for _, u := range expired {
			if err := ctx.Err(); err != nil {
				errs = multierror.Append(errs, err)
				break
			}
			if err := r.purge(ctx, u.Key); err != nil {
				failed++
				errs = multierror.Append(errs, err)
				logger.WithError(err).WithField("key", u.Key).Warn("Failed to purge expired upload")
				continue
			}
			result.Purged++
		}
		result.Failed += failed

		if len(expired) < r.batchSize || ctx.Err() != nil {
			break
		}
		after = store.CursorOf(expired[len(expired)-1])
	}

	span.SetAttributes(
		attribute.Int("purged", result.Purged),
		attribute.Int("failed", result.Failed),
	)
	err := errs.ErrorOrNil()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	if result.Purged > 0 || result.Failed > 0 {
		logger.WithFields(logrus.Fields{
			"purged": result.Purged,
			"failed": result.Failed,
		}).Info("Reaped expired uploads")
	}
	return result, err
}

// purge deletes the record only once its blob is confirmed gone. A crash in between is finished by the next cycle
// since blob deletes are idempotent.
func (r *Reaper) purge(ctx context.Context, key string) error {
	if err := r.blobs.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	if err := r.mdStore.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete metadata %s: %w", key, err)
	}
	return nil
}
