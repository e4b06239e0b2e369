package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	asyncapi "github.com/hedisam/filedrop/server/api/async"
	restapi "github.com/hedisam/filedrop/server/api/rest"
	"github.com/hedisam/filedrop/server/config"
	"github.com/hedisam/filedrop/server/internal/blobstorage"
	"github.com/hedisam/filedrop/server/internal/blobstorage/filesystem"
	"github.com/hedisam/filedrop/server/internal/blobstorage/s3"
	"github.com/hedisam/filedrop/server/internal/emitter"
	"github.com/hedisam/filedrop/server/internal/interceptors"
	"github.com/hedisam/filedrop/server/internal/lifecycle"
	"github.com/hedisam/filedrop/server/internal/store"
	"github.com/hedisam/filedrop/server/internal/store/memdb"
	"github.com/hedisam/filedrop/server/internal/store/postgres"
)

const (
	appName = "filedrop-server"

	orphanQueueSize = 64
	shutdownTimeout = 10 * time.Second
)

type blobStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key string, r io.Reader, attrs blobstorage.Attributes) error
	Get(ctx context.Context, key string) (*blobstorage.Object, error)
	Move(ctx context.Context, from, to string) error
	Delete(ctx context.Context, key string) error
}

type metadataStore interface {
	Insert(ctx context.Context, u *store.Upload) (*store.Upload, error)
	Get(ctx context.Context, key string) (*store.Upload, error)
	ListExpired(ctx context.Context, before time.Time, after *store.Cursor, limit int) ([]*store.Upload, error)
	Delete(ctx context.Context, key string) error
}

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	logger.AddHook(&interceptors.TraceHook{})

	opts, err := config.Parse(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}
	if opts.Quiet {
		logger.SetLevel(logrus.InfoLevel)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var traceOut io.Writer = io.Discard
	if opts.TraceStdout {
		traceOut = os.Stdout
	}
	shutdownTracer, err := interceptors.InitTracer(appName, traceOut, opts.TraceSampleRatio)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize tracer")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second*3)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			logger.WithError(err).Error("Failed to shutdown tracer")
		}
	}()

	clk := clock.New()

	mdStore, closeMetadata := mustInitMetadataStore(ctx, logger, opts, clk)
	defer closeMetadata()

	blobs, closeBlobs := mustInitBlobStore(ctx, logger, opts)
	defer closeBlobs()

	orphans := emitter.New(orphanQueueSize)
	janitor := asyncapi.NewJanitor(logger, blobs, mdStore)
	janitorDone := make(chan struct{})
	go func() {
		defer close(janitorDone)
		janitor.Run(ctx, orphans.Chan())
	}()

	keys := lifecycle.NewKeyGenerator(blobs, opts.KeyAttempts)
	uploads := lifecycle.NewUploadCoordinator(logger, keys, blobs, mdStore, orphans, clk)
	retrieval := lifecycle.NewRetrievalCoordinator(logger, blobs, mdStore, clk)

	reaper := lifecycle.NewReaper(logger, mdStore, blobs, clk, opts.ReapBatchSize)
	scheduler := asyncapi.NewReapScheduler(logger, reaper, interceptors.NewReaperMetrics(prometheus.DefaultRegisterer), clk)
	reaperDone := make(chan struct{})
	go func() {
		defer close(reaperDone)
		scheduler.Run(ctx)
	}()

	mux := http.NewServeMux()
	restapi.RegisterRoutes(logger, mux,
		restapi.NewUploadServer(logger, uploads, opts.BaseURL),
		restapi.NewFileServer(logger, retrieval),
	)

	var handler http.Handler = otelhttp.NewHandler(mux, appName)
	handler = interceptors.InterceptWithDefaultMetrics(prometheus.DefaultRegisterer, handler)

	servers := []*http.Server{{
		Addr:              opts.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if opts.MetricsListenAddr != "" {
		// Expose the registered metrics via HTTP on their own listener; every one-segment path is a key on the main one
		metricsMux := http.NewServeMux()
		metricsMux.Handle("GET /metrics", promhttp.Handler())
		servers = append(servers, &http.Server{
			Addr:              opts.MetricsListenAddr,
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	serveErr := make(chan error, len(servers))
	for _, srv := range servers {
		go func() {
			logger.WithField("addr", srv.Addr).Info("Starting server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-serveErr:
		logger.WithError(err).Error("Server failed with error")
		cancel()
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancelShutdown()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).WithField("addr", srv.Addr).Error("Failed to shutdown server")
		}
	}

	// no request can emit anymore
	orphans.Close()
	<-janitorDone
	<-reaperDone
}

func mustInitMetadataStore(ctx context.Context, logger *logrus.Logger, opts *config.Options, clk clock.Clock) (metadataStore, func()) {
	if opts.MetadataStore == config.MetadataStoreMemory {
		logger.Warn("Using in-memory metadata store; uploads will not survive a restart")
		return memdb.NewMetadataStore(clk), func() {}
	}

	db, err := postgres.Open(ctx, opts.DatabaseURL, opts.DatabaseMaxConn)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to postgres")
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		logger.WithError(err).Fatal("Failed to migrate postgres schema")
	}

	return postgres.NewMetadataStore(logger, db), func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Error("Failed to close postgres connection pool")
		}
	}
}

func mustInitBlobStore(ctx context.Context, logger *logrus.Logger, opts *config.Options) (blobStore, func()) {
	if opts.BlobStore == config.BlobStoreFilesystem {
		fs, err := filesystem.New(logger, opts.BlobDir)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize filesystem")
		}
		return fs, func() { _ = fs.Close() }
	}

	st, err := s3.New(ctx, logger, s3.Config{
		Endpoint:        opts.S3Endpoint,
		Region:          opts.S3Region,
		AccessKeyID:     opts.S3AccessKey,
		SecretAccessKey: opts.S3SecretKey,
		Bucket:          opts.S3Bucket,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize s3 blob store")
	}
	return st, func() {}
}
