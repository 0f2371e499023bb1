// Package cryptox implements the credential codec: random salts and a slow,
// keyed password digest that is used both to create and to verify credentials.
package cryptox

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"runtime"

	"github.com/dmitrijs2005/okaeri/internal/common"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/sync/semaphore"
)

const (
	// SaltSize is the number of random bytes in a salt before hex encoding.
	SaltSize = 32
	// KeySize is the length of the derived digest before hex encoding.
	KeySize = 64
	// MinIterations is the lowest PBKDF2 iteration count the hasher accepts.
	MinIterations = 100_000
)

// GenerateSalt returns SaltSize random bytes, hex encoded. An error means the
// system random source failed and the calling operation must not proceed.
func GenerateSalt() (string, error) {
	return common.MakeRandHexString(SaltSize)
}

// Hasher derives PBKDF2-HMAC-SHA512 digests. Derivation is intentionally
// slow, so the number of derivations running at once is bounded.
type Hasher struct {
	iterations int
	sem        *semaphore.Weighted
}

// NewHasher builds a Hasher. concurrency <= 0 means GOMAXPROCS.
func NewHasher(iterations, concurrency int) (*Hasher, error) {
	if iterations < MinIterations {
		return nil, fmt.Errorf("pbkdf2 iterations %d below minimum %d", iterations, MinIterations)
	}
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	return &Hasher{iterations: iterations, sem: semaphore.NewWeighted(int64(concurrency))}, nil
}

// Hash derives the hex digest for password and salt. It waits for a free
// derivation slot and gives up when ctx is done.
func (h *Hasher) Hash(ctx context.Context, password, salt string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)

	pw := []byte(password)
	defer common.WipeByteArray(pw)

	key := pbkdf2.Key(pw, []byte(salt), h.iterations, KeySize, sha512.New)
	return hex.EncodeToString(key), nil
}

// Verify reports whether password matches the stored digest. The comparison
// runs in constant time with respect to where the digests differ.
func (h *Hasher) Verify(ctx context.Context, password, salt, hash string) (bool, error) {
	claim, err := h.Hash(ctx, password, salt)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(claim), []byte(hash)) == 1, nil
}
