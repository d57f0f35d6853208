package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBlobStore_UploadAndSignedURL(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	ctx := context.Background()

	require.NoError(t, store.Upload(ctx, "wacz/abc", []byte("payload"), "application/wacz"))

	data, ok := store.Get("wacz/abc")
	require.True(t, ok)
	require.Equal(t, []byte("payload"), data)

	url, err := store.SignedURL(ctx, "wacz/abc", time.Hour)
	require.NoError(t, err)
	require.Equal(t, "memory://wacz/abc", url)
}

func TestBlobStore_SignedURLUnknownKey(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	_, err := store.SignedURL(context.Background(), "missing", time.Hour)
	require.Error(t, err)
}

func TestBlobStore_UploadCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("mutable")
	require.NoError(t, store.Upload(context.Background(), "k", payload, ""))
	payload[0] = 'X'

	data, ok := store.Get("k")
	require.True(t, ok)
	require.Equal(t, []byte("mutable"), data)
}

func TestBlobStore_RejectsEmptyKey(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	require.Error(t, store.Upload(context.Background(), "", nil, ""))
}
