package lifecycle

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
)

const (
	// keyBytes is the amount of randomness per key; 40 bits encode to 7 URL-safe characters.
	keyBytes = 5
	// KeyLength is the length of an encoded key.
	KeyLength = 7
	// DefaultKeyAttempts bounds the candidates tried by Reserve.
	DefaultKeyAttempts = 8
	minKeyAttempts     = 5
)

var errCollision = errors.New("key collision")

// KeyChecker reports whether a key is already used by a blob.
type KeyChecker interface {
	Exists(ctx context.Context, key string) (bool, error)
}

// KeyGenerator mints random keys and screens them against the blob store. The check is an optimization: the metadata
// store's uniqueness constraint and exclusive blob writes settle races between concurrent reservations.
type KeyGenerator struct {
	blobs    KeyChecker
	attempts int
	random   func() (string, error)
}

func NewKeyGenerator(blobs KeyChecker, attempts int) *KeyGenerator {
	return &KeyGenerator{
		blobs:    blobs,
		attempts: max(attempts, minKeyAttempts),
		random:   randomKey,
	}
}

// Attempts is the number of candidates Reserve tries before giving up.
func (g *KeyGenerator) Attempts() int {
	return g.attempts
}

// Reserve returns a key no blob currently uses, or ErrKeyExhausted once every attempt collided.
func (g *KeyGenerator) Reserve(ctx context.Context) (string, error) {
	bk := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(g.attempts-1)), ctx)

	key, err := backoff.RetryWithData(func() (string, error) {
		key, err := g.random()
		if err != nil {
			return "", backoff.Permanent(fmt.Errorf("generate key: %w", err))
		}
		exists, err := g.blobs.Exists(ctx, key)
		if err != nil {
			return "", backoff.Permanent(fmt.Errorf("%w: check key: %w", ErrStoreUnavailable, err))
		}
		if exists {
			return "", errCollision
		}
		return key, nil
	}, bk)
	if err != nil {
		if errors.Is(err, errCollision) {
			return "", fmt.Errorf("%w after %d attempts", ErrKeyExhausted, g.attempts)
		}
		return "", err
	}
	return key, nil
}

// ValidKey reports whether key has the shape of a generated key.
func ValidKey(key string) bool {
	if len(key) != KeyLength {
		return false
	}
	b, err := base64.RawURLEncoding.DecodeString(key)
	return err == nil && len(b) == keyBytes
}

func randomKey() (string, error) {
	b := make([]byte, keyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
