// Package blobstorage holds the types shared by the blob store backends. Objects are addressed by upload key and carry
// the content headers they are served with.
package blobstorage

import (
	"errors"
	"io"
)

var (
	ErrNotFound = errors.New("blob not found")
	ErrConflict = errors.New("blob already exists")
)

// Attributes are the content headers stored alongside a blob.
type Attributes struct {
	ContentType        string `json:"content_type"`
	ContentDisposition string `json:"content_disposition"`
}

// Object is a blob opened for reading. Body is one-shot and must be closed by the caller.
type Object struct {
	Attributes
	Size int64
	Body io.ReadCloser
}
