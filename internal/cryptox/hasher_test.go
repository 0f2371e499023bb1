package cryptox

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"
)

func newTestHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := NewHasher(MinIterations, 2)
	require.NoError(t, err)
	return h
}

func TestGenerateSalt_LengthAndHex(t *testing.T) {
	s, err := GenerateSalt()
	require.NoError(t, err)
	assert.Len(t, s, SaltSize*2)
	_, err = hex.DecodeString(s)
	assert.NoError(t, err)

	s2, err := GenerateSalt()
	require.NoError(t, err)
	assert.NotEqual(t, s, s2)
}

func TestNewHasher_RejectsLowIterations(t *testing.T) {
	_, err := NewHasher(1000, 1)
	assert.Error(t, err)
}

func TestHash_DeterministicAndMatchesPBKDF2(t *testing.T) {
	h := newTestHasher(t)
	ctx := context.Background()

	a, err := h.Hash(ctx, "foobarbaz", "fixed-salt")
	require.NoError(t, err)
	b, err := h.Hash(ctx, "foobarbaz", "fixed-salt")
	require.NoError(t, err)
	assert.Equal(t, a, b, "same inputs must give the same digest")
	assert.Len(t, a, KeySize*2)

	want := hex.EncodeToString(pbkdf2.Key([]byte("foobarbaz"), []byte("fixed-salt"), MinIterations, KeySize, sha512.New))
	assert.Equal(t, want, a)
}

func TestHash_DifferentSalts(t *testing.T) {
	h := newTestHasher(t)
	ctx := context.Background()

	a, err := h.Hash(ctx, "foobarbaz", "salt-1")
	require.NoError(t, err)
	b, err := h.Hash(ctx, "foobarbaz", "salt-2")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerify(t *testing.T) {
	h := newTestHasher(t)
	ctx := context.Background()

	salt, err := GenerateSalt()
	require.NoError(t, err)
	hash, err := h.Hash(ctx, "foobarbaz", salt)
	require.NoError(t, err)

	ok, err := h.Verify(ctx, "foobarbaz", salt, hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify(ctx, "wrong-pass", salt, hash)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = h.Verify(ctx, "foobarbaz", salt, hash[:10])
	require.NoError(t, err)
	assert.False(t, ok, "truncated digest must not match")
}

func TestHash_CancelledWhileWaiting(t *testing.T) {
	h, err := NewHasher(MinIterations, 1)
	require.NoError(t, err)

	// occupy the only slot
	require.NoError(t, h.sem.Acquire(context.Background(), 1))
	defer h.sem.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = h.Hash(ctx, "foobarbaz", "salt")
	assert.ErrorIs(t, err, context.Canceled)
}
