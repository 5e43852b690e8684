package imagestore

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pharma-listing-crawler/internal/medicine"
	"github.com/JakeFAU/pharma-listing-crawler/internal/storage/memory"
)

type stubFetcher struct {
	outcomes map[string]medicine.FetchOutcome
	calls    []string
}

func (f *stubFetcher) Fetch(_ context.Context, url string) medicine.FetchOutcome {
	f.calls = append(f.calls, url)
	return f.outcomes[url]
}

func sampleImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	return img
}

func encodePNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, sampleImage()))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, sampleImage(), nil))
	return buf.Bytes()
}

func encodeGIF(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, sampleImage(), nil))
	return buf.Bytes()
}

func TestInspect(t *testing.T) {
	t.Parallel()

	bmp := append([]byte("BM"), make([]byte, 60)...)

	tests := []struct {
		name     string
		content  []byte
		wantType string
		wantExt  string
		wantErr  bool
	}{
		{name: "png", content: encodePNG(t), wantType: "image/png", wantExt: "png"},
		{name: "jpeg", content: encodeJPEG(t), wantType: "image/jpeg", wantExt: "jpeg"},
		{name: "gif", content: encodeGIF(t), wantType: "image/gif", wantExt: "gif"},
		{name: "bmp", content: bmp, wantType: "image/bmp", wantExt: "bmp"},
		{name: "html", content: []byte("<!DOCTYPE html><html><body>404</body></html>"), wantErr: true},
		{name: "empty", content: nil, wantErr: true},
		{name: "truncated png", content: encodePNG(t)[:12], wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			contentType, ext, err := Inspect(tt.content)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, contentType)
			assert.Equal(t, tt.wantExt, ext)
		})
	}
}

func TestAcquireStoresImage(t *testing.T) {
	t.Parallel()

	payload := encodePNG(t)
	fetcher := &stubFetcher{outcomes: map[string]medicine.FetchOutcome{
		"https://dawaai.pk/media/p.png": {Success: true, Content: payload, AttemptsUsed: 1},
	}}
	blobs := memory.NewBlobStore()
	store, err := New(fetcher, blobs, zap.NewNop())
	require.NoError(t, err)

	filename, ok := store.Acquire(context.Background(), "https://dawaai.pk/media/p.png", 42)
	require.True(t, ok)
	assert.Equal(t, "42.png", filename)

	stored, contentType, found := blobs.Get("42.png")
	require.True(t, found)
	assert.Equal(t, payload, stored)
	assert.Equal(t, "image/png", contentType)
}

func TestAcquireRejectsNonImage(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{outcomes: map[string]medicine.FetchOutcome{
		"https://dawaai.pk/media/missing.jpg": {Success: true, Content: []byte("<html><body>not found</body></html>"), AttemptsUsed: 1},
	}}
	blobs := memory.NewBlobStore()
	store, err := New(fetcher, blobs, nil)
	require.NoError(t, err)

	_, ok := store.Acquire(context.Background(), "https://dawaai.pk/media/missing.jpg", 7)
	assert.False(t, ok)

	stats, err := blobs.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Count)
}

func TestAcquireFetchFailure(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{outcomes: map[string]medicine.FetchOutcome{}}
	store, err := New(fetcher, memory.NewBlobStore(), nil)
	require.NoError(t, err)

	_, ok := store.Acquire(context.Background(), "https://dawaai.pk/media/gone.jpg", 3)
	assert.False(t, ok)
	assert.Equal(t, []string{"https://dawaai.pk/media/gone.jpg"}, fetcher.calls)
}

func TestAcquireEmptyURLSkipsFetch(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{}
	store, err := New(fetcher, memory.NewBlobStore(), nil)
	require.NoError(t, err)

	_, ok := store.Acquire(context.Background(), "", 1)
	assert.False(t, ok)
	assert.Empty(t, fetcher.calls)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, memory.NewBlobStore(), nil)
	assert.Error(t, err)
	_, err = New(&stubFetcher{}, nil, nil)
	assert.Error(t, err)
}
