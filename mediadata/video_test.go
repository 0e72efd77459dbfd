package mediadata

import (
	"context"
	"io"
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/stretchr/testify/require"
)

func TestVideoDataPreloadedFrames(t *testing.T) {
	ctx := context.Background()
	frames := map[int]*cimg.Image{
		5: cimg.NewImage(2, 2, cimg.PixelFormatRGB),
		1: cimg.NewImage(2, 2, cimg.PixelFormatRGB),
		9: cimg.NewImage(2, 2, cimg.PixelFormatRGB),
	}
	d, err := NewVideoData(VideoOptions{Frames: frames})
	require.NoError(t, err)
	require.True(t, d.Loaded())

	im, err := d.Frame(5)
	require.NoError(t, err)
	require.Same(t, frames[5], im)
	_, err = d.Frame(2)
	require.Error(t, err)

	reader, err := d.Frames(ctx)
	require.NoError(t, err)
	defer reader.Close()
	var order []int
	for {
		index, _, err := reader.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		order = append(order, index)
	}
	require.Equal(t, []int{1, 5, 9}, order)
}

func TestVideoDataNotLoaded(t *testing.T) {
	d, err := NewVideoData(VideoOptions{Options: Options{URL: "https://cdn/clip"}, Codec: MJPEGCodec{}})
	require.NoError(t, err)
	require.False(t, d.Loaded())
	_, err = d.Frame(0)
	require.Error(t, err)
}

func TestMJPEGCodec(t *testing.T) {
	ctx := context.Background()

	var clip []byte
	for i := 0; i < 3; i++ {
		im := cimg.NewImage(8, 8, cimg.PixelFormatRGB)
		for p := range im.Pixels {
			im.Pixels[p] = uint8(50 + 60*i)
		}
		jpg, err := cimg.Compress(im, cimg.MakeCompressParams(cimg.Sampling444, 95, 0))
		require.NoError(t, err)
		clip = append(clip, jpg...)
	}

	fetcher := &mapFetcher{blobs: map[string][]byte{"https://cdn/clip.mjpeg": clip}}
	d, err := NewVideoData(VideoOptions{Options: Options{URL: "https://cdn/clip.mjpeg", Fetcher: fetcher}, Codec: MJPEGCodec{}})
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.Load(ctx))
	require.True(t, d.Loaded())
	for i := 0; i < 3; i++ {
		im, err := d.Frame(i)
		require.NoError(t, err)
		require.Equal(t, 8, im.Width)
		require.InDelta(t, 50+60*i, int(im.Pixels[0]), 8, "frame %v luma", i)
	}
	// The clip was downloaded exactly once.
	require.Equal(t, 1, fetcher.nfetch)
}
