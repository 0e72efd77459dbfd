package mediadata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/labelforge/labelforge/pkg/geom"
	"github.com/stretchr/testify/require"
)

// mapFetcher serves blobs from an in-memory map and counts fetches.
type mapFetcher struct {
	mu     sync.Mutex
	blobs  map[string][]byte
	nfetch int
}

func (f *mapFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nfetch++
	b, ok := f.blobs[url]
	if !ok {
		return nil, fmt.Errorf("no blob at %v", url)
	}
	return b, nil
}

func TestLocators(t *testing.T) {
	// No locator
	_, err := NewTextData(TextOptions{})
	require.Error(t, err)
	// Two locators
	_, err = NewTextData(TextOptions{Options: Options{URL: "https://x/y"}, Text: "hello"})
	require.Error(t, err)
	// A reference alone is a valid locator
	d, err := NewDocumentData(Options{GlobalKey: "gk-1"})
	require.NoError(t, err)
	require.Equal(t, "gk-1", d.Reference().GlobalKey)
	_, err = d.Bytes(context.Background())
	require.Error(t, err, "reference-only data has no local content")
}

func TestTextData(t *testing.T) {
	ctx := context.Background()

	d := NewTextDataFromText("the quick brown fox")
	v, err := d.Value(ctx)
	require.NoError(t, err)
	require.Equal(t, "the quick brown fox", v)
	require.Equal(t, KindText, d.Kind())

	path := filepath.Join(t.TempDir(), "sample.txt")
	require.NoError(t, os.WriteFile(path, []byte("from a file"), 0644))
	d2, err := NewTextData(TextOptions{Options: Options{FilePath: path}})
	require.NoError(t, err)
	v2, err := d2.Value(ctx)
	require.NoError(t, err)
	require.Equal(t, "from a file", v2)
}

func TestBytesCaching(t *testing.T) {
	ctx := context.Background()
	fetcher := &mapFetcher{blobs: map[string][]byte{"https://cdn/row1": []byte("payload")}}

	d, err := NewTextData(TextOptions{Options: Options{URL: "https://cdn/row1", Fetcher: fetcher}})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		b, err := d.Bytes(ctx)
		require.NoError(t, err)
		require.Equal(t, []byte("payload"), b)
	}
	require.Equal(t, 1, fetcher.nfetch)

	uncached, err := NewTextData(TextOptions{Options: Options{URL: "https://cdn/row1", Fetcher: fetcher, DisableCache: true}})
	require.NoError(t, err)
	_, err = uncached.Bytes(ctx)
	require.NoError(t, err)
	_, err = uncached.Bytes(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, fetcher.nfetch)
}

func TestSetURL(t *testing.T) {
	d := NewTextDataFromText("x")
	require.Equal(t, "", d.URL())
	d.SetURL("https://cdn/uploaded")
	require.Equal(t, "https://cdn/uploaded", d.URL())
}

func TestConversationData(t *testing.T) {
	ctx := context.Background()
	messages := []ConversationMessage{
		{MessageID: "m1", Content: "hi", User: "alice", CanLabel: true},
		{MessageID: "m2", Content: "hello", User: "bob", CanLabel: false},
	}
	d, err := NewConversationData(ConversationOptions{Messages: messages})
	require.NoError(t, err)

	raw, err := d.Bytes(ctx)
	require.NoError(t, err)

	// A second carrier decoding those bytes sees the same thread.
	d2, err := NewConversationData(ConversationOptions{Options: Options{Bytes: raw}})
	require.NoError(t, err)
	got, err := d2.Messages(ctx)
	require.NoError(t, err)
	require.Equal(t, messages, got)
}

func TestRasterDataFromArray(t *testing.T) {
	ctx := context.Background()
	im := cimg.NewImage(4, 3, cimg.PixelFormatRGB)
	im.Pixels[0] = 200

	d, err := NewRasterData(RasterOptions{Arr: im})
	require.NoError(t, err)

	// Bytes is a PNG of the array; decoding it reproduces the raster.
	raw, err := d.Bytes(ctx)
	require.NoError(t, err)
	decoded, err := decodeImage(raw)
	require.NoError(t, err)
	require.Equal(t, 4, decoded.Width)
	require.Equal(t, 3, decoded.Height)
	require.Equal(t, uint8(200), decoded.Pixels[0])
}

func TestRasterDataDecodeMemoized(t *testing.T) {
	ctx := context.Background()
	src := cimg.NewImage(2, 2, cimg.PixelFormatRGB)
	pngBytes, err := encodePNG(src)
	require.NoError(t, err)

	fetcher := &mapFetcher{blobs: map[string][]byte{"https://cdn/img": pngBytes}}
	d, err := NewRasterData(RasterOptions{Options: Options{URL: "https://cdn/img", Fetcher: fetcher}})
	require.NoError(t, err)

	a, err := d.Value(ctx)
	require.NoError(t, err)
	b, err := d.Value(ctx)
	require.NoError(t, err)
	require.Same(t, a, b)
	require.Equal(t, 1, fetcher.nfetch)
}

func TestMaskDataSelectsColor(t *testing.T) {
	ctx := context.Background()
	im := cimg.NewImage(3, 1, cimg.PixelFormatRGB)
	// Pixel 1 red, pixel 2 green
	im.Pixels[3] = 255
	im.Pixels[7] = 255

	d := NewMaskDataFromRaster(im)
	red, err := d.Mask(ctx, geom.Color{R: 255})
	require.NoError(t, err)
	require.Equal(t, []bool{false, true, false}, red.Selected())
	green, err := d.Mask(ctx, geom.Color{G: 255})
	require.NoError(t, err)
	require.Equal(t, []bool{false, false, true}, green.Selected())
}
