package lifecycle

import "errors"

var (
	// ErrNotFound means the key is unknown, expired, or not a syntactically valid key.
	ErrNotFound = errors.New("not found")
	// ErrKeyExhausted means no free key was found within the attempt bound.
	ErrKeyExhausted = errors.New("no unique key found")
	// ErrBlobWriteFailed means the blob could not be written; no metadata was created.
	ErrBlobWriteFailed = errors.New("blob write failed")
	// ErrMetadataWriteFailed means the metadata insert failed after the blob was written.
	ErrMetadataWriteFailed = errors.New("metadata write failed")
	// ErrMalformedMultipart means the request body could not be read as a sequence of parts.
	ErrMalformedMultipart = errors.New("malformed multipart body")
	// ErrExpiresUnsupported is returned for the reserved expires field.
	ErrExpiresUnsupported = errors.New("client-specified expiration is not supported")
	// ErrStoreUnavailable wraps unexpected store failures.
	ErrStoreUnavailable = errors.New("store unavailable")
)
