package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-signing-secret"

func newTestStore(t *testing.T) (*FileStore, *Signer) {
	t.Helper()
	signer, err := NewSigner(testSecret, time.Minute, "http://localhost:8080/files/")
	require.NoError(t, err)
	store, err := NewFileStore(t.TempDir(), signer)
	require.NoError(t, err)
	return store, signer
}

func TestCleanKey(t *testing.T) {
	valid := map[string]string{
		"runs/abc/doc.pdf": "runs/abc/doc.pdf",
		"/runs/doc.pdf":    "runs/doc.pdf",
		`runs\doc.pdf`:     "runs/doc.pdf",
	}
	for in, want := range valid {
		got, err := CleanKey(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, in := range []string{"", "  ", "../etc/passwd", "runs/../../x", "a//b", "doc.pdf.meta.json", "."} {
		_, err := CleanKey(in)
		assert.Error(t, err, in)
	}
}

func TestFileStore_PutGetDelete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	key, err := store.Put(ctx, []byte("%PDF-1.4"), "runs/r1/Jane.pdf", Metadata{"content_type": "application/pdf", "provider_id": "p1"})
	require.NoError(t, err)
	assert.Equal(t, "runs/r1/Jane.pdf", key)

	data, obj, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))
	assert.Equal(t, int64(8), obj.Size)
	assert.Equal(t, "application/pdf", obj.ContentType)
	assert.Equal(t, "p1", obj.Metadata["provider_id"])
	assert.False(t, obj.CreatedAt.IsZero())

	_, err = store.Put(ctx, []byte("replaced"), key, nil)
	require.NoError(t, err)
	data, _, err = store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "replaced", string(data))

	require.NoError(t, store.Delete(ctx, key))
	_, _, err = store.Get(ctx, key)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, store.Delete(ctx, key), "deleting a missing blob is not an error")
}

func TestFileStore_CancelledContext(t *testing.T) {
	store, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Put(ctx, []byte("x"), "a.pdf", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileStore_URLRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)

	signed, err := store.URL("runs/r1/archive.zip")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(signed.URL, "http://localhost:8080/files/"))
	assert.True(t, strings.HasSuffix(signed.URL, signed.Token))
	assert.WithinDuration(t, time.Now().Add(time.Minute), signed.ExpiresAt, 2*time.Second)

	key, err := store.Resolve(signed.Token)
	require.NoError(t, err)
	assert.Equal(t, "runs/r1/archive.zip", key)
}

func TestSigner_ExpiredAndRefresh(t *testing.T) {
	store, signer := newTestStore(t)

	issued := time.Now().Add(-time.Hour)
	signer.now = func() time.Time { return issued }
	expired, err := store.URL("runs/r1/archive.zip")
	require.NoError(t, err)
	signer.now = time.Now

	_, err = store.Resolve(expired.Token)
	assert.True(t, errors.Is(err, ErrURLExpired))

	fresh, err := store.RefreshURL(expired.Token)
	require.NoError(t, err)
	assert.NotEqual(t, expired.Token, fresh.Token)

	key, err := store.Resolve(fresh.Token)
	require.NoError(t, err)
	assert.Equal(t, "runs/r1/archive.zip", key)
}

func TestSigner_RejectsForeignTokens(t *testing.T) {
	store, _ := newTestStore(t)

	other, err := NewSigner("another-secret", time.Minute, "")
	require.NoError(t, err)
	foreign, err := other.Sign("runs/r1/archive.zip")
	require.NoError(t, err)

	_, err = store.Resolve(foreign.Token)
	assert.True(t, errors.Is(err, ErrInvalidURL))
	_, err = store.RefreshURL(foreign.Token)
	assert.True(t, errors.Is(err, ErrInvalidURL))

	_, err = store.Resolve("not-a-token")
	assert.True(t, errors.Is(err, ErrInvalidURL))
	_, err = store.Resolve("")
	assert.True(t, errors.Is(err, ErrInvalidURL))
}

func TestNewSigner_RequiresSecret(t *testing.T) {
	_, err := NewSigner("", time.Minute, "")
	assert.Error(t, err)
}
