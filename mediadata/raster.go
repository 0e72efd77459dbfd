package mediadata

import (
	"bytes"
	"context"
	"image"
	"image/png"

	"github.com/bmharper/cimg/v2"
	"github.com/labelforge/labelforge/client"
	"github.com/labelforge/labelforge/pkg/geom"
)

// RasterData carries a single image. Locators: inline bytes, file path, URL,
// server reference, or an already-decoded RGB array.
type RasterData struct {
	blob
	arr *cimg.Image

	decoded *cimg.Image
}

type RasterOptions struct {
	Options
	// Arr is an already-decoded RGB raster.
	Arr *cimg.Image
}

func NewRasterData(o RasterOptions) (*RasterData, error) {
	extras := 0
	if o.Arr != nil {
		extras++
	}
	if err := checkExactlyOne(KindImage, o.Options, extras); err != nil {
		return nil, err
	}
	return &RasterData{blob: newBlob(KindImage, o.Options), arr: o.Arr}, nil
}

// Value decodes the image. The decoded raster is memoized.
func (d *RasterData) Value(ctx context.Context) (*cimg.Image, error) {
	if d.arr != nil {
		return d.arr, nil
	}
	d.mu.Lock()
	decoded := d.decoded
	d.mu.Unlock()
	if decoded != nil {
		return decoded, nil
	}
	raw, err := d.Bytes(ctx)
	if err != nil {
		return nil, err
	}
	im, err := decodeImage(raw)
	if err != nil {
		return nil, err
	}
	if !d.disableCache {
		d.mu.Lock()
		d.decoded = im
		d.mu.Unlock()
	}
	return im, nil
}

// Bytes returns the raw content; for array-backed rasters this is a PNG
// encoding of the array.
func (d *RasterData) Bytes(ctx context.Context) ([]byte, error) {
	if d.arr != nil {
		return encodePNG(d.arr)
	}
	return d.blob.Bytes(ctx)
}

// MaskData is a RasterData with shared-reference semantics: many mask
// annotations may hold the same MaskData, each selecting a different color.
// The raster must not be mutated once read.
type MaskData struct {
	RasterData
}

func NewMaskData(o RasterOptions) (*MaskData, error) {
	extras := 0
	if o.Arr != nil {
		extras++
	}
	if err := checkExactlyOne(KindImage, o.Options, extras); err != nil {
		return nil, err
	}
	return &MaskData{RasterData: RasterData{blob: newBlob(KindImage, o.Options), arr: o.Arr}}, nil
}

// NewMaskDataFromRaster wraps an in-memory RGB raster.
func NewMaskDataFromRaster(arr *cimg.Image) *MaskData {
	m, _ := NewMaskData(RasterOptions{Arr: arr})
	return m
}

// NewMaskDataFromURL references a remote raster.
func NewMaskDataFromURL(url string, fetcher client.BlobFetcher) *MaskData {
	m, _ := NewMaskData(RasterOptions{Options: Options{URL: url, Fetcher: fetcher}})
	return m
}

// Raster decodes the mask image.
func (d *MaskData) Raster(ctx context.Context) (*cimg.Image, error) {
	return d.Value(ctx)
}

// PNG returns the mask content as PNG bytes, for upload.
func (d *MaskData) PNG(ctx context.Context) ([]byte, error) {
	im, err := d.Value(ctx)
	if err != nil {
		return nil, err
	}
	return encodePNG(im)
}

// Mask builds the geometric mask selecting one color of this raster.
func (d *MaskData) Mask(ctx context.Context, color geom.Color) (*geom.Mask, error) {
	im, err := d.Raster(ctx)
	if err != nil {
		return nil, err
	}
	return geom.NewMask(im, color)
}

func decodeImage(raw []byte) (*cimg.Image, error) {
	// cimg handles JPEG; PNG masks come through the stdlib decoder.
	if len(raw) > 8 && bytes.Equal(raw[:8], []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}) {
		src, err := png.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		dst := cimg.NewImage(src.Bounds().Dx(), src.Bounds().Dy(), cimg.PixelFormatRGB)
		geom.ImageToRaster(src, dst)
		return dst, nil
	}
	im, err := cimg.Decompress(raw)
	if err != nil {
		return nil, err
	}
	if im.NChan() != 3 {
		im = im.ToRGB()
	}
	return im, nil
}

func encodePNG(im *cimg.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, geom.RasterToImage(im).(*image.RGBA)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
