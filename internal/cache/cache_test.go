package cache_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/favicon-resolver/internal/cache"
	"github.com/JakeFAU/favicon-resolver/internal/hash/md5"
	"github.com/JakeFAU/favicon-resolver/internal/storage/local"
	"github.com/JakeFAU/favicon-resolver/internal/storage/memory"
)

const requested = "https://example.com/"

// md5("https://example.com/")
const requestedKey = "182ccedb33a9e03fbf1079b209da1a31"

func sampleEntry() cache.Entry {
	return cache.Entry{
		Headers:   [][2]string{{"content-type", "image/png"}, {"content-length", "4"}},
		MimeType:  "image/png",
		Bytes:     []byte{0x89, 'P', 'N', 'G'},
		SourceURL: "https://example.com/fav.png",
	}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := cache.New(nil, md5.New(), cache.Config{}, nil)
	require.Error(t, err)
	_, err = cache.New(memory.NewBlobStore(), nil, cache.Config{}, nil)
	require.Error(t, err)
}

func TestKeyIsMD5OfRequestedURL(t *testing.T) {
	t.Parallel()

	c, err := cache.New(memory.NewBlobStore(), md5.New(), cache.Config{}, zap.NewNop())
	require.NoError(t, err)
	key, err := c.Key(requested)
	require.NoError(t, err)
	assert.Equal(t, requestedKey, key)
}

func TestRoundTripLocalLayout(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	c, err := cache.New(store, md5.New(), cache.Config{}, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, requested, sampleEntry()))

	raw, err := store.Get(ctx, requestedKey+".json")
	require.NoError(t, err)
	var onDisk map[string]any
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, "image/png", onDisk["type"])
	assert.EqualValues(t, 4, onDisk["length"])
	assert.Equal(t, "iVBORw==", onDisk["base64"])
	assert.Equal(t, "https://example.com/fav.png", onDisk["sourceUrl"])
	assert.Equal(t, []any{[]any{"content-type", "image/png"}, []any{"content-length", "4"}}, onDisk["headers"])

	got, ok, err := c.Get(ctx, requested)
	require.NoError(t, err)
	require.True(t, ok)
	want := sampleEntry()
	assert.Equal(t, want.Bytes, got.Bytes)
	assert.Equal(t, want.MimeType, got.MimeType)
	assert.Equal(t, want.SourceURL, got.SourceURL)
	assert.Equal(t, want.Headers, got.Headers)
	assert.Equal(t, 4, got.Length)
	assert.Equal(t, requestedKey, got.Key)
}

func TestMissAndDelete(t *testing.T) {
	t.Parallel()

	c, err := cache.New(memory.NewBlobStore(), md5.New(), cache.Config{}, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, requested)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, requested, sampleEntry()))
	require.NoError(t, c.Delete(ctx, requested))
	_, ok, err = c.Get(ctx, requested)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, c.Delete(ctx, requested), "deleting a missing entry is not an error")
}

func TestCorruptEntry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	for name, payload := range map[string]string{
		"BadJSON":   "{not json",
		"BadBase64": `{"headers":[],"type":"image/png","length":1,"base64":"***","sourceUrl":"x"}`,
	} {
		t.Run(name, func(t *testing.T) {
			store := memory.NewBlobStore()
			require.NoError(t, store.Put(ctx, requestedKey+".json", []byte(payload)))
			c, err := cache.New(store, md5.New(), cache.Config{}, zap.NewNop())
			require.NoError(t, err)

			_, ok, err := c.Get(ctx, requested)
			assert.False(t, ok)
			assert.ErrorIs(t, err, cache.ErrCorruptEntry)
		})
	}
}

func TestStoreErrorsPropagate(t *testing.T) {
	t.Parallel()

	c, err := cache.New(brokenStore{}, md5.New(), cache.Config{}, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, requested)
	assert.False(t, ok)
	require.ErrorContains(t, err, "disk full")
	assert.NotErrorIs(t, err, cache.ErrCorruptEntry)
	require.ErrorContains(t, c.Put(ctx, requested, sampleEntry()), "disk full")
	require.ErrorContains(t, c.Delete(ctx, requested), "disk full")
}

func TestHotLayerServesWithoutStore(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	c, err := cache.New(store, md5.New(), cache.Config{HotMaxBytes: 1 << 20}, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, requested, sampleEntry()))
	require.NoError(t, store.Delete(ctx, requestedKey+".json"))

	got, ok, err := c.Get(ctx, requested)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sampleEntry().Bytes, got.Bytes)

	require.NoError(t, c.Delete(ctx, requested))
	_, ok, err = c.Get(ctx, requested)
	require.NoError(t, err)
	assert.False(t, ok)
}

type brokenStore struct{}

var errDiskFull = errors.New("disk full")

func (brokenStore) Get(context.Context, string) ([]byte, error) { return nil, errDiskFull }
func (brokenStore) Put(context.Context, string, []byte) error   { return errDiskFull }
func (brokenStore) Delete(context.Context, string) error        { return errDiskFull }
