package geom

import (
	"fmt"
	"image"

	"github.com/bmharper/cimg/v2"
	"github.com/fogleman/gg"
)

// Rasterization runs through fogleman/gg on an RGBA context, then lands on a
// 3-channel RGB cimg canvas, which is the shape all mask math expects.

func (opt DrawOptions) prepare() (*gg.Context, *cimg.Image, error) {
	height, width := opt.Height, opt.Width
	canvas := opt.Canvas
	if canvas != nil {
		height = canvas.Height
		width = canvas.Width
		if canvas.Format != cimg.PixelFormatRGB {
			return nil, nil, fmt.Errorf("draw canvas must be RGB")
		}
	} else {
		if height <= 0 || width <= 0 {
			return nil, nil, fmt.Errorf("draw needs a positive canvas size, got %vx%v", width, height)
		}
		canvas = cimg.NewImage(width, height, cimg.PixelFormatRGB)
	}
	dc := gg.NewContext(width, height)
	dc.DrawImage(RasterToImage(canvas), 0, 0)
	dc.SetRGB255(int(opt.Color.R), int(opt.Color.G), int(opt.Color.B))
	thickness := opt.Thickness
	if thickness <= 0 {
		thickness = 1
	}
	dc.SetLineWidth(thickness)
	return dc, canvas, nil
}

func finish(dc *gg.Context, canvas *cimg.Image) *cimg.Image {
	ImageToRaster(dc.Image(), canvas)
	return canvas
}

// Draw renders the point as a filled disc of radius Thickness.
func (p Point) Draw(opt DrawOptions) (*cimg.Image, error) {
	dc, canvas, err := opt.prepare()
	if err != nil {
		return nil, err
	}
	radius := opt.Thickness
	if radius <= 0 {
		radius = 1
	}
	dc.DrawCircle(p.X, p.Y, radius)
	dc.Fill()
	return finish(dc, canvas), nil
}

func (l *Line) Draw(opt DrawOptions) (*cimg.Image, error) {
	dc, canvas, err := opt.prepare()
	if err != nil {
		return nil, err
	}
	dc.MoveTo(l.Points[0].X, l.Points[0].Y)
	for _, pt := range l.Points[1:] {
		dc.LineTo(pt.X, pt.Y)
	}
	dc.Stroke()
	return finish(dc, canvas), nil
}

// Draw renders the rectangle. A zero width or height rectangle rasterizes to
// an empty region.
func (r Rectangle) Draw(opt DrawOptions) (*cimg.Image, error) {
	dc, canvas, err := opt.prepare()
	if err != nil {
		return nil, err
	}
	if r.Width() <= 0 || r.Height() <= 0 {
		return canvas, nil
	}
	dc.DrawRectangle(r.Start.X, r.Start.Y, r.Width(), r.Height())
	if opt.Fill {
		dc.Fill()
	} else {
		dc.Stroke()
	}
	return finish(dc, canvas), nil
}

func (p *Polygon) Draw(opt DrawOptions) (*cimg.Image, error) {
	p.closeRing()
	dc, canvas, err := opt.prepare()
	if err != nil {
		return nil, err
	}
	dc.MoveTo(p.Points[0].X, p.Points[0].Y)
	for _, pt := range p.Points[1:] {
		dc.LineTo(pt.X, pt.Y)
	}
	dc.ClosePath()
	if opt.Fill {
		dc.Fill()
	} else {
		dc.Stroke()
	}
	return finish(dc, canvas), nil
}

// RasterToImage converts a 3-channel RGB cimg raster to a stdlib image.
func RasterToImage(im *cimg.Image) image.Image {
	rgba := image.NewRGBA(image.Rect(0, 0, im.Width, im.Height))
	for y := 0; y < im.Height; y++ {
		src := im.Pixels[y*im.Stride:]
		dst := rgba.Pix[y*rgba.Stride:]
		for x := 0; x < im.Width; x++ {
			dst[x*4+0] = src[x*3+0]
			dst[x*4+1] = src[x*3+1]
			dst[x*4+2] = src[x*3+2]
			dst[x*4+3] = 255
		}
	}
	return rgba
}

// ImageToRaster copies a stdlib image into an RGB cimg raster, dropping alpha.
func ImageToRaster(src image.Image, dst *cimg.Image) {
	bounds := src.Bounds()
	for y := 0; y < dst.Height && y < bounds.Dy(); y++ {
		row := dst.Pixels[y*dst.Stride:]
		for x := 0; x < dst.Width && x < bounds.Dx(); x++ {
			r, g, b, _ := src.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			row[x*3+0] = uint8(r >> 8)
			row[x*3+1] = uint8(g >> 8)
			row[x*3+2] = uint8(b >> 8)
		}
	}
}
