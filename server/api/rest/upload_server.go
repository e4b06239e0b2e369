package rest

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hedisam/filedrop/server/internal/lifecycle"
	"github.com/hedisam/filedrop/server/internal/store"
)

type Uploader interface {
	Handle(ctx context.Context, parts lifecycle.Parts) ([]*store.Upload, error)
}

type UploadServer struct {
	logger   *logrus.Logger
	uploader Uploader
	baseURL  string
}

// NewUploadServer returns the upload endpoint. Links are built from baseURL, or from the request host when empty.
func NewUploadServer(logger *logrus.Logger, uploader Uploader, baseURL string) *UploadServer {
	return &UploadServer{
		logger:   logger,
		uploader: uploader,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
	}
}

// Upload stores every file field of a multipart request and answers with one "<filename>: <url>" line per file.
func (s *UploadServer) Upload(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(s.logger, r)

	mr, err := r.MultipartReader()
	if err != nil {
		logger.WithError(err).Warn("Request is not a multipart upload")
		http.Error(w, internalErrorMessage, http.StatusInternalServerError)
		return
	}

	uploads, err := s.uploader.Handle(r.Context(), &multipartParts{mr: mr})
	if err != nil {
		logger = logger.WithField("completed", len(uploads))
		if errors.Is(err, lifecycle.ErrExpiresUnsupported) {
			logger.Warn("Rejected upload with client-specified expiration")
			http.Error(w, "Not implemented", http.StatusNotImplemented)
			return
		}
		logger.WithError(err).Error("Failed to handle upload")
		http.Error(w, internalErrorMessage, http.StatusInternalServerError)
		return
	}

	baseURL := s.linkBase(r)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	for _, u := range uploads {
		if _, err := fmt.Fprintf(w, "%s: %s/%s\r\n", u.Filename, baseURL, u.Key); err != nil {
			logger.WithError(err).Warn("Failed to write upload response")
			return
		}
	}
	logger.WithField("files", len(uploads)).Debug("Upload request completed")
}

func (s *UploadServer) linkBase(r *http.Request) string {
	if s.baseURL != "" {
		return s.baseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// multipartParts exposes a multipart reader as lifecycle parts. Each part body is only valid until the next call.
type multipartParts struct {
	mr *multipart.Reader
}

func (m *multipartParts) Next() (*lifecycle.Part, error) {
	p, err := m.mr.NextPart()
	if err != nil {
		return nil, err
	}
	return &lifecycle.Part{
		FieldName:   p.FormName(),
		FileName:    p.FileName(),
		ContentType: p.Header.Get("Content-Type"),
		Body:        p,
	}, nil
}
