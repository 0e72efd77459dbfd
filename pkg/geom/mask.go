package geom

import (
	"fmt"

	"github.com/bmharper/cimg/v2"
)

// Mask is a raster image reference plus an RGB color. The geometry of the
// mask is the multipolygon covering the pixels that equal that color exactly.
//
// Masks may share raster data: many Mask instances can point at the same
// image, each selecting a different color. The raster must not be mutated
// after the first read.
type Mask struct {
	raster *cimg.Image
	Color  Color
}

func NewMask(raster *cimg.Image, color Color) (*Mask, error) {
	if raster == nil {
		return nil, fmt.Errorf("mask needs a raster")
	}
	if raster.Format != cimg.PixelFormatRGB {
		return nil, fmt.Errorf("mask raster must be (H, W, 3) RGB uint8")
	}
	return &Mask{raster: raster, Color: color}, nil
}

// Raster returns the shared underlying raster. Treat it as read-only.
func (m *Mask) Raster() *cimg.Image {
	return m.raster
}

// Selected returns the boolean pixel grid where the raster equals the mask color.
func (m *Mask) Selected() []bool {
	im := m.raster
	selected := make([]bool, im.Width*im.Height)
	for y := 0; y < im.Height; y++ {
		row := im.Pixels[y*im.Stride:]
		for x := 0; x < im.Width; x++ {
			if row[x*3] == m.Color.R && row[x*3+1] == m.Color.G && row[x*3+2] == m.Color.B {
				selected[y*im.Width+x] = true
			}
		}
	}
	return selected
}

// GeoJSON returns the instance-path multipolygon: holes are filled.
// Callers that need holes preserved use PanopticGeoJSON.
func (m *Mask) GeoJSON() GeoJSON {
	return vectorize(m.Selected(), m.raster.Width, m.raster.Height, false)
}

// PanopticGeoJSON returns the multipolygon with interior holes preserved.
func (m *Mask) PanopticGeoJSON() GeoJSON {
	return vectorize(m.Selected(), m.raster.Width, m.raster.Height, true)
}

// Area counts the pixels that match the mask color.
func (m *Mask) Area() float64 {
	count := 0
	for _, on := range m.Selected() {
		if on {
			count++
		}
	}
	return float64(count)
}

// Draw copies the matching pixels onto the canvas in opt.Color.
func (m *Mask) Draw(opt DrawOptions) (*cimg.Image, error) {
	canvas := opt.Canvas
	if canvas == nil {
		height, width := opt.Height, opt.Width
		if height <= 0 || width <= 0 {
			return nil, fmt.Errorf("draw needs a positive canvas size, got %vx%v", width, height)
		}
		canvas = cimg.NewImage(width, height, cimg.PixelFormatRGB)
	}
	selected := m.Selected()
	for y := 0; y < m.raster.Height && y < canvas.Height; y++ {
		row := canvas.Pixels[y*canvas.Stride:]
		for x := 0; x < m.raster.Width && x < canvas.Width; x++ {
			if selected[y*m.raster.Width+x] {
				row[x*3+0] = opt.Color.R
				row[x*3+1] = opt.Color.G
				row[x*3+2] = opt.Color.B
			}
		}
	}
	return canvas, nil
}

// MaskFromBools paints a solid-color RGB raster from a boolean grid.
func MaskFromBools(selected []bool, width, height int, color Color) (*Mask, error) {
	if len(selected) != width*height {
		return nil, fmt.Errorf("boolean grid has %v entries, want %v", len(selected), width*height)
	}
	im := cimg.NewImage(width, height, cimg.PixelFormatRGB)
	for y := 0; y < height; y++ {
		row := im.Pixels[y*im.Stride:]
		for x := 0; x < width; x++ {
			if selected[y*width+x] {
				row[x*3+0] = color.R
				row[x*3+1] = color.G
				row[x*3+2] = color.B
			}
		}
	}
	return NewMask(im, color)
}
