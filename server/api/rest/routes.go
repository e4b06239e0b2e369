package rest

import (
	"net/http"

	"github.com/sirupsen/logrus"
)

// RegisterRoutes mounts the upload and retrieval endpoints. Keys occupy the whole one-segment path namespace, so
// nothing else may be registered at the root.
func RegisterRoutes(logger *logrus.Logger, mux *http.ServeMux, uploads *UploadServer, files *FileServer) {
	mux.HandleFunc("POST /{$}", uploads.Upload)
	mux.HandleFunc("GET /{key}", files.Download)
	RegisterFunc(logger, mux, http.MethodGet, "/v1/uploads/{key}", files.Describe)
}
