package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permitflow/internal/platform/crypto"
)

func TestPutExistsHash(t *testing.T) {
	store, err := New(t.TempDir(), 1024)
	require.NoError(t, err)
	ctx := context.Background()

	stored, err := store.Put(ctx, strings.NewReader("certificate"), "Scan.PDF")
	require.NoError(t, err)
	assert.Equal(t, Digest([]byte("certificate")), stored.Digest)
	assert.True(t, strings.HasSuffix(stored.Ref, ".pdf"))
	assert.EqualValues(t, len("certificate"), stored.Size)

	ok, err := store.Exists(ctx, stored.Ref)
	require.NoError(t, err)
	assert.True(t, ok)

	digest, err := store.Hash(ctx, stored.Ref)
	require.NoError(t, err)
	assert.Equal(t, stored.Digest, digest)
}

func TestHashDetectsTampering(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir, 0)
	require.NoError(t, err)
	ctx := context.Background()

	stored, err := store.Put(ctx, strings.NewReader("original"), "a.txt")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, stored.Ref), []byte("changed"), 0o600))

	digest, err := store.Hash(ctx, stored.Ref)
	require.NoError(t, err)
	assert.NotEqual(t, stored.Digest, digest)
}

func TestRejectsOversizedAndTraversal(t *testing.T) {
	store, err := New(t.TempDir(), 4)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Put(ctx, strings.NewReader("too long"), "x.txt")
	assert.ErrorIs(t, err, ErrTooLarge)

	ok, err := store.Exists(ctx, "../etc/passwd")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Hash(ctx, "missing.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSealedStoreKeepsPlaintextDigest(t *testing.T) {
	dir := t.TempDir()
	sealer, err := crypto.NewSealer(strings.Repeat("k", 32))
	require.NoError(t, err)
	store, err := New(dir, 1024)
	require.NoError(t, err)
	store.Sealer = sealer
	ctx := context.Background()

	stored, err := store.Put(ctx, strings.NewReader("certificate"), "scan.pdf")
	require.NoError(t, err)
	assert.Equal(t, Digest([]byte("certificate")), stored.Digest)

	raw, err := os.ReadFile(filepath.Join(dir, stored.Ref))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "certificate")

	digest, err := store.Hash(ctx, stored.Ref)
	require.NoError(t, err)
	assert.Equal(t, stored.Digest, digest)

	rc, err := store.Open(ctx, stored.Ref)
	require.NoError(t, err)
	plain, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "certificate", string(plain))

	require.NoError(t, os.WriteFile(filepath.Join(dir, stored.Ref), []byte("garbage that does not open"), 0o600))
	digest, err = store.Hash(ctx, stored.Ref)
	require.NoError(t, err)
	assert.NotEqual(t, stored.Digest, digest)
}
