// Package config loads server settings from command-line flags whose defaults come from the environment.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/hashicorp/go-multierror"

	"github.com/hedisam/filedrop/server/internal/lifecycle"
)

const (
	BlobStoreS3         = "s3"
	BlobStoreFilesystem = "fs"

	MetadataStorePostgres = "postgres"
	MetadataStoreMemory   = "memory"
)

// Options defines a set of config options.
type Options struct {
	ListenAddr        string
	MetricsListenAddr string
	// BaseURL prefixes the links returned for uploads; empty means derive it from the request.
	BaseURL string

	MetadataStore   string
	DatabaseURL     string
	DatabaseMaxConn int

	BlobStore   string
	BlobDir     string
	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string

	ReapBatchSize int
	KeyAttempts   int

	TraceStdout      bool
	TraceSampleRatio float64
	Quiet            bool
}

// Parse reads options from args, falling back to the environment as seen through getenv.
func Parse(args []string, getenv func(string) string) (*Options, error) {
	env := func(name, def string) string {
		if v := getenv(name); v != "" {
			return v
		}
		return def
	}

	var opts Options
	fs := flag.NewFlagSet("filedrop", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&opts.ListenAddr, "listen", env("LISTEN", "127.0.0.1:5000"), "Address to serve uploads on")
	fs.StringVar(&opts.MetricsListenAddr, "metrics-listen", env("METRICS_LISTEN", "127.0.0.1:9090"), "Address to serve metrics on, empty disables")
	fs.StringVar(&opts.BaseURL, "base-url", env("BASE_URL", ""), "Base URL used in returned links")

	fs.StringVar(&opts.MetadataStore, "metadata-store", env("METADATA_STORE", MetadataStorePostgres), "Metadata store: postgres or memory")
	fs.StringVar(&opts.DatabaseURL, "database-url", env("DATABASE_URL", ""), "Postgres connection string")
	maxConns, err := envInt(getenv, "DATABASE_MAX_CONNS", 10)
	if err != nil {
		return nil, err
	}
	fs.IntVar(&opts.DatabaseMaxConn, "database-max-conns", maxConns, "Maximum open Postgres connections")

	fs.StringVar(&opts.BlobStore, "blob-store", env("BLOB_STORE", BlobStoreS3), "Blob store: s3 or fs")
	fs.StringVar(&opts.BlobDir, "blob-dir", env("BLOB_DIR", ""), "Directory for the fs blob store")
	fs.StringVar(&opts.S3Endpoint, "s3-endpoint", env("S3_ENDPOINT", ""), "S3 endpoint, empty for AWS")
	fs.StringVar(&opts.S3Region, "s3-region", env("S3_REGION", "us-east-1"), "S3 region")
	fs.StringVar(&opts.S3AccessKey, "s3-access-key", env("S3_ACCESS_KEY", ""), "S3 access key id")
	fs.StringVar(&opts.S3SecretKey, "s3-secret-key", env("S3_SECRET_KEY", ""), "S3 secret access key")
	fs.StringVar(&opts.S3Bucket, "s3-bucket", env("S3_BUCKET", "uploads"), "S3 bucket name")

	batch, err := envInt(getenv, "REAP_BATCH_SIZE", lifecycle.DefaultReapBatchSize)
	if err != nil {
		return nil, err
	}
	fs.IntVar(&opts.ReapBatchSize, "reap-batch-size", batch, "Expired uploads purged per reaper query")
	fs.IntVar(&opts.KeyAttempts, "key-attempts", lifecycle.DefaultKeyAttempts, "Candidate keys tried per upload")
	fs.BoolVar(&opts.TraceStdout, "trace-stdout", false, "Print sampled spans to stdout")
	fs.Float64Var(&opts.TraceSampleRatio, "trace-sample-ratio", 1, "Fraction of new traces to sample")
	fs.BoolVar(&opts.Quiet, "quiet", false, "Quiet output")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &opts, nil
}

// Validate reports every invalid option at once.
func (o *Options) Validate() error {
	var errs *multierror.Error

	if o.ListenAddr == "" {
		errs = multierror.Append(errs, errors.New("listen address is required"))
	}
	if o.ListenAddr != "" && o.ListenAddr == o.MetricsListenAddr {
		errs = multierror.Append(errs, errors.New("metrics must listen on a different address than uploads"))
	}
	if o.BaseURL != "" {
		u, err := url.Parse(o.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = multierror.Append(errs, fmt.Errorf("base url %q must be absolute", o.BaseURL))
		}
	}

	switch o.MetadataStore {
	case MetadataStorePostgres:
		if o.DatabaseURL == "" {
			errs = multierror.Append(errs, errors.New("database url is required for the postgres metadata store"))
		}
		if o.DatabaseMaxConn <= 0 {
			errs = multierror.Append(errs, errors.New("database max conns must be positive"))
		}
	case MetadataStoreMemory:
	default:
		errs = multierror.Append(errs, fmt.Errorf("unknown metadata store %q", o.MetadataStore))
	}

	switch o.BlobStore {
	case BlobStoreS3:
		if o.S3Bucket == "" {
			errs = multierror.Append(errs, errors.New("s3 bucket is required for the s3 blob store"))
		}
	case BlobStoreFilesystem:
		if o.BlobDir == "" {
			errs = multierror.Append(errs, errors.New("blob dir is required for the fs blob store"))
		}
	default:
		errs = multierror.Append(errs, fmt.Errorf("unknown blob store %q", o.BlobStore))
	}

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		errs = multierror.Append(errs, errors.New("trace sample ratio must be between 0 and 1"))
	}
	if o.ReapBatchSize <= 0 {
		errs = multierror.Append(errs, errors.New("reap batch size must be positive"))
	}

	return errs.ErrorOrNil()
}

func envInt(getenv func(string) string, name string, def int) (int, error) {
	v := getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return n, nil
}
