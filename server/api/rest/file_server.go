package rest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hedisam/filedrop/server/internal/blobstorage"
	"github.com/hedisam/filedrop/server/internal/lifecycle"
	"github.com/hedisam/filedrop/server/internal/store"
)

type Retriever interface {
	Fetch(ctx context.Context, key string) (*blobstorage.Object, error)
	Describe(ctx context.Context, key string) (*store.Upload, error)
}

// FileServer serves stored uploads.
type FileServer struct {
	logger    *logrus.Logger
	retriever Retriever
}

func NewFileServer(logger *logrus.Logger, retriever Retriever) *FileServer {
	return &FileServer{
		logger:    logger,
		retriever: retriever,
	}
}

// Download streams the blob stored under the key path value. A failure after the headers were sent aborts the
// connection so the client never mistakes a truncated body for a complete one.
func (s *FileServer) Download(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	logger := requestLogger(s.logger, r).WithField("key", key)

	obj, err := s.retriever.Fetch(r.Context(), key)
	if err != nil {
		if errors.Is(err, lifecycle.ErrNotFound) {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		logger.WithError(err).Error("Failed to fetch upload")
		http.Error(w, internalErrorMessage, http.StatusInternalServerError)
		return
	}
	defer obj.Body.Close()

	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	if obj.ContentDisposition != "" {
		w.Header().Set("Content-Disposition", obj.ContentDisposition)
	}
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	written, err := io.Copy(w, obj.Body)
	if err != nil {
		if r.Context().Err() != nil {
			logger.WithError(err).Debug("Client went away during download")
			return
		}
		logger.WithError(err).WithField("written", written).Error("Download stream failed")
		panic(http.ErrAbortHandler)
	}
	logger.WithField("written", written).Debug("Served upload")
}

// Describe returns the metadata record of a live upload.
func (s *FileServer) Describe(ctx context.Context, req *DescribeRequest) (*DescribeResponse, error) {
	u, err := s.retriever.Describe(ctx, req.Key)
	if err != nil {
		if errors.Is(err, lifecycle.ErrNotFound) {
			return nil, NewErrf(http.StatusNotFound, "Not found")
		}
		return nil, err
	}

	return &DescribeResponse{
		Key:      u.Key,
		Filename: u.Filename,
		Expires:  u.Expires,
		Created:  u.Created,
	}, nil
}

type DescribeRequest struct {
	Key string `json:"key"`
}

type DescribeResponse struct {
	Key      string    `json:"key"`
	Filename string    `json:"filename"`
	Expires  time.Time `json:"expires"`
	Created  time.Time `json:"created"`
}
