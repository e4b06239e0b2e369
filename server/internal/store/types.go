package store

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no upload record exists for a key.
	ErrNotFound = errors.New("upload not found")
	// ErrConflict is returned by Insert when the key is already taken.
	ErrConflict = errors.New("upload key already exists")
)

// Upload is the metadata record of a stored file. The bytes live in the blob store under the same key.
type Upload struct {
	Key      string
	Filename string
	Expires  time.Time
	Created  time.Time
}

// Cursor marks a position in the (expires, key) ordering of records. Listings resume strictly after it.
type Cursor struct {
	Expires time.Time
	Key     string
}

// CursorOf returns the position of u.
func CursorOf(u *Upload) *Cursor {
	return &Cursor{Expires: u.Expires, Key: u.Key}
}

// Expired reports whether the record is past its retention window at the given time.
func (u *Upload) Expired(now time.Time) bool {
	return u.Expires.Before(now)
}
