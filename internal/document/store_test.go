package document

import (
	"bytes"
	"context"
	"testing"

	"github.com/solatis/metasync/internal/testutil"
	"github.com/solatis/metasync/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(testutil.TestQueries(t))
	require.NoError(t, err)
	return store
}

func TestStore_CreateGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	doc := New("Picture", "Picture")
	require.NoError(t, doc.SetProperty("dc:title", "Sunset"))
	require.NoError(t, doc.SetProperty("imd:fnumber", 2.8))
	require.NoError(t, doc.SetBinary("file:content", picture()))

	require.NoError(t, store.Create(ctx, doc))
	require.True(t, doc.Exists())
	assert.Empty(t, doc.DirtyPaths())

	loaded, err := store.Get(ctx, doc.ID())
	require.NoError(t, err)
	assert.Equal(t, "Picture", loaded.Type())
	assert.Equal(t, []string{"Picture"}, loaded.Facets())
	assert.Equal(t, types.Properties{"dc:title": "Sunset", "imd:fnumber": 2.8}, loaded.Properties())
	assert.Empty(t, loaded.DirtyPaths())

	blob, err := loaded.Binary("file:content")
	require.NoError(t, err)
	assert.True(t, blob.Equal(picture()))
}

func TestStore_SaveUpdatesAndResetsDirty(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	doc := New("File")
	require.NoError(t, doc.SetBinary("file:content", picture()))
	require.NoError(t, doc.SetBinary("files:0", picture()))
	require.NoError(t, store.Save(ctx, doc))

	replacement := &types.Blob{Filename: "new.jpg", MimeType: "image/jpeg", Data: bytes.Repeat([]byte("z"), 4096)}
	require.NoError(t, doc.SetBinary("file:content", replacement))
	require.NoError(t, doc.SetBinary("files:0", nil))
	require.NoError(t, doc.SetProperty("dc:title", "renamed"))
	assert.Equal(t, []string{"dc:title", "file:content", "files:0"}, doc.DirtyPaths())

	require.NoError(t, store.Save(ctx, doc))
	assert.Empty(t, doc.DirtyPaths())

	loaded, err := store.Get(ctx, doc.ID())
	require.NoError(t, err)
	blob, err := loaded.Binary("file:content")
	require.NoError(t, err)
	assert.True(t, blob.Equal(replacement))
	assert.Equal(t, []string{"file:content"}, loaded.BinaryPaths())

	title, err := loaded.Property("dc:title")
	require.NoError(t, err)
	assert.Equal(t, "renamed", title)
}

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Get(ctx, types.NewDocumentID())
	assert.ErrorIs(t, err, types.ErrDocumentNotFound)

	err = store.Delete(ctx, types.NewDocumentID())
	assert.ErrorIs(t, err, types.ErrDocumentNotFound)

	exists, err := store.Exists(ctx, "")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	doc := New("File")
	require.NoError(t, doc.SetBinary("file:content", picture()))
	require.NoError(t, store.Create(ctx, doc))

	exists, err := store.Exists(ctx, doc.ID())
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.Delete(ctx, doc.ID()))

	exists, err = store.Exists(ctx, doc.ID())
	require.NoError(t, err)
	assert.False(t, exists)

	// Saving a document deleted underneath it fails instead of resurrecting it.
	require.NoError(t, doc.SetProperty("dc:title", "x"))
	assert.ErrorIs(t, store.Save(ctx, doc), types.ErrDocumentNotFound)
}

func TestStore_CreateTwiceFails(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	doc := New("File")
	require.NoError(t, store.Create(ctx, doc))
	assert.Error(t, store.Create(ctx, doc))
}

func TestBlobCodec_DetectsCorruption(t *testing.T) {
	codec, err := newBlobCodec()
	require.NoError(t, err)

	data := []byte("payload")
	packed := codec.compress(data)

	out, err := codec.decompress(packed, Digest(data))
	require.NoError(t, err)
	assert.Equal(t, data, out)

	_, err = codec.decompress(packed, Digest([]byte("other")))
	assert.ErrorContains(t, err, "digest mismatch")
}
