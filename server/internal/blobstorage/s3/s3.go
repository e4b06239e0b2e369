// Package s3 implements the blob store on an S3-compatible object store. Uploads are streamed through the SDK's
// multipart uploader, so request bodies of unknown length are never buffered whole.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"

	"github.com/hedisam/filedrop/server/internal/blobstorage"
)

// API is the part of the S3 client used by the store.
type API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Uploader streams an object of unknown size.
type Uploader interface {
	Upload(ctx context.Context, in *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Config holds the connection settings for the object store.
type Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
}

var loadDefaultAWSConfig = config.LoadDefaultConfig

type Store struct {
	logger   *logrus.Logger
	api      API
	uploader Uploader
	bucket   string
}

// New builds an S3 client with static credentials. A non-empty endpoint switches to path-style addressing, which
// S3-compatible servers such as MinIO expect.
func New(ctx context.Context, logger *logrus.Logger, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name must be configured")
	}

	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	logger.WithFields(logrus.Fields{
		"bucket":   cfg.Bucket,
		"region":   cfg.Region,
		"endpoint": cfg.Endpoint,
	}).Info("Using S3 blob store")

	return NewWithClient(logger, client, manager.NewUploader(client), cfg.Bucket), nil
}

func NewWithClient(logger *logrus.Logger, api API, uploader Uploader, bucket string) *Store {
	return &Store{
		logger:   logger,
		api:      api,
		uploader: uploader,
		bucket:   bucket,
	}
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("head object %s: %w", key, err)
	}
	return true, nil
}

// Put streams r into a new object. The write is conditional on the key being absent; a lost race is reported as
// blobstorage.ErrConflict.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, attrs blobstorage.Attributes) error {
	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(s.bucket),
		Key:                aws.String(key),
		Body:               r,
		ContentType:        aws.String(attrs.ContentType),
		ContentDisposition: aws.String(attrs.ContentDisposition),
		IfNoneMatch:        aws.String("*"),
	})
	if err != nil {
		if isPreconditionFailed(err) {
			return blobstorage.ErrConflict
		}
		return fmt.Errorf("put object %s: %w", key, err)
	}

	s.logger.WithContext(ctx).WithFields(logrus.Fields{
		"bucket":    s.bucket,
		"key":       key,
		"upload_id": out.UploadID,
	}).Debug("Uploaded object")
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (*blobstorage.Object, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, blobstorage.ErrNotFound
		}
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}

	return &blobstorage.Object{
		Attributes: blobstorage.Attributes{
			ContentType:        aws.ToString(out.ContentType),
			ContentDisposition: aws.ToString(out.ContentDisposition),
		},
		Size: aws.ToInt64(out.ContentLength),
		Body: out.Body,
	}, nil
}

// Move rewrites the object under a new key, keeping its headers, and deletes the source. The copy is written with
// the same condition as Put, so a destination taken in the meantime is reported as blobstorage.ErrConflict and never
// overwritten. Once the copy exists the move has succeeded; a source that could not be removed is only logged.
func (s *Store) Move(ctx context.Context, from, to string) error {
	obj, err := s.Get(ctx, from)
	if err != nil {
		return err
	}
	defer obj.Body.Close()

	if err := s.Put(ctx, to, obj.Body, obj.Attributes); err != nil {
		return err
	}

	if err := s.Delete(ctx, from); err != nil {
		s.logger.WithContext(ctx).WithFields(logrus.Fields{
			"bucket": s.bucket,
			"from":   from,
			"to":     to,
		}).WithError(err).Warn("Could not remove moved object")
	}
	return nil
}

// Delete removes the object. S3 deletes are idempotent, so a missing object is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete object %s: %w", key, err)
	}

	s.logger.WithContext(ctx).WithFields(logrus.Fields{
		"bucket": s.bucket,
		"key":    key,
	}).Debug("Deleted object")
	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	return false
}
