package mediadata

import (
	"context"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/bmharper/cimg/v2"
	"github.com/chewxy/math32"
	"github.com/cyclopcam/logs"
	"github.com/disintegration/imaging"
	"github.com/labelforge/labelforge/client"
	"github.com/labelforge/labelforge/pkg/backoff"
	"github.com/labelforge/labelforge/pkg/geom"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
)

// EPSG identifies a map projection.
type EPSG int

const (
	SimplePixel EPSG = 1    // Raw pixel coordinates, no geography
	EPSG3857    EPSG = 3857 // Web mercator meters
	EPSG4326    EPSG = 4326 // Longitude/latitude degrees
)

const earthRadius = 6378137.0 // WGS84, meters

// ProjectionTransformer converts points between two projections.
// SimplePixel coordinates have no geographic meaning and only transform to
// themselves.
type ProjectionTransformer struct {
	from, to EPSG
}

func NewProjectionTransformer(from, to EPSG) (*ProjectionTransformer, error) {
	valid := func(e EPSG) bool { return e == SimplePixel || e == EPSG3857 || e == EPSG4326 }
	if !valid(from) || !valid(to) {
		return nil, fmt.Errorf("unsupported projection pair %v -> %v", from, to)
	}
	if (from == SimplePixel) != (to == SimplePixel) {
		return nil, fmt.Errorf("cannot transform between pixel coordinates and a geographic projection")
	}
	return &ProjectionTransformer{from: from, to: to}, nil
}

func (t *ProjectionTransformer) Transform(p geom.Point) geom.Point {
	if t.from == t.to {
		return p
	}
	if t.from == EPSG4326 && t.to == EPSG3857 {
		x := earthRadius * p.X * math.Pi / 180
		y := earthRadius * math.Log(math.Tan(math.Pi/4+p.Y*math.Pi/360))
		return geom.Point{X: x, Y: y}
	}
	// EPSG3857 -> EPSG4326
	lon := p.X / earthRadius * 180 / math.Pi
	lat := (2*math.Atan(math.Exp(p.Y/earthRadius)) - math.Pi/2) * 180 / math.Pi
	return geom.Point{X: lon, Y: lat}
}

// TileLayer is a slippy-map tile source. The URL template contains {z}, {x}
// and {y} placeholders.
type TileLayer struct {
	URLTemplate string `json:"tileLayerUrl"`
	Name        string `json:"name,omitempty"`
}

func (l TileLayer) Validate() error {
	for _, ph := range []string{"{z}", "{x}", "{y}"} {
		if !strings.Contains(l.URLTemplate, ph) {
			return fmt.Errorf("tile layer url %q is missing the %v placeholder", l.URLTemplate, ph)
		}
	}
	return nil
}

func (l TileLayer) url(z, x, y int) string {
	u := strings.ReplaceAll(l.URLTemplate, "{z}", fmt.Sprint(z))
	u = strings.ReplaceAll(u, "{x}", fmt.Sprint(x))
	return strings.ReplaceAll(u, "{y}", fmt.Sprint(y))
}

// TiledBounds is the viewport of a tiled image: two corner points in the
// given projection.
type TiledBounds struct {
	EPSG   EPSG          `json:"epsg"`
	Bounds [2]geom.Point `json:"bounds"`
}

func (b TiledBounds) Validate() error {
	if b.Bounds[0].X == b.Bounds[1].X || b.Bounds[0].Y == b.Bounds[1].Y {
		return fmt.Errorf("tiled bounds corners must span an area")
	}
	return nil
}

const tileSize = 256

// TiledImageData is a tiled map layer with a viewport and zoom range.
type TiledImageData struct {
	blob
	Layer    TileLayer
	Bounds   TiledBounds
	MinZoom  int
	MaxZoom  int
	MaxTiles int // Fetch budget for Materialize. Zero value means 32*32.
}

type TiledImageOptions struct {
	Options
	Layer    TileLayer
	Bounds   TiledBounds
	MinZoom  int
	MaxZoom  int
	MaxTiles int
}

func NewTiledImageData(o TiledImageOptions) (*TiledImageData, error) {
	if err := o.Layer.Validate(); err != nil {
		return nil, err
	}
	if err := o.Bounds.Validate(); err != nil {
		return nil, err
	}
	if o.MinZoom > o.MaxZoom {
		return nil, fmt.Errorf("zoom range [%v, %v] is inverted", o.MinZoom, o.MaxZoom)
	}
	return &TiledImageData{
		blob:     newBlob(KindTiledImage, o.Options),
		Layer:    o.Layer,
		Bounds:   o.Bounds,
		MinZoom:  o.MinZoom,
		MaxZoom:  o.MaxZoom,
		MaxTiles: o.MaxTiles,
	}, nil
}

// tileIndex converts an EPSG4326 point to fractional tile coordinates.
func tileIndex(p geom.Point, zoom int) (float64, float64) {
	n := float64(int(1) << zoom)
	x := (p.X + 180) / 360 * n
	latRad := p.Y * math.Pi / 180
	y := (1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n
	return x, y
}

// Materialize fetches and composites the integer-tile neighborhood covering
// the bounds at the given zoom, then crops to the exact viewport. Failed
// tile fetches are retried a bounded number of times, then substituted with
// a zero tile and a logged warning.
func (d *TiledImageData) Materialize(ctx context.Context, logger logs.Log, fetcher client.BlobFetcher, zoom int) (*cimg.Image, error) {
	if zoom < d.MinZoom || zoom > d.MaxZoom {
		return nil, fmt.Errorf("zoom %v outside layer range [%v, %v]", zoom, d.MinZoom, d.MaxZoom)
	}
	corner0, corner1 := d.Bounds.Bounds[0], d.Bounds.Bounds[1]
	if d.Bounds.EPSG == EPSG3857 {
		t, err := NewProjectionTransformer(EPSG3857, EPSG4326)
		if err != nil {
			return nil, err
		}
		corner0, corner1 = t.Transform(corner0), t.Transform(corner1)
	} else if d.Bounds.EPSG == SimplePixel {
		return nil, fmt.Errorf("pixel-bounded tiled images cannot be materialized from a geographic tile layer")
	}

	x0f, y0f := tileIndex(corner0, zoom)
	x1f, y1f := tileIndex(corner1, zoom)
	if x1f < x0f {
		x0f, x1f = x1f, x0f
	}
	if y1f < y0f {
		y0f, y1f = y1f, y0f
	}
	x0, y0 := int(math.Floor(x0f)), int(math.Floor(y0f))
	x1, y1 := int(math.Ceil(x1f)), int(math.Ceil(y1f))
	nx, ny := x1-x0, y1-y0
	budget := d.MaxTiles
	if budget <= 0 {
		budget = 32 * 32
	}
	if nx*ny > budget {
		return nil, fmt.Errorf("materializing needs %v tiles, budget is %v; use a lower zoom", nx*ny, budget)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, nx*tileSize, ny*tileSize))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(8)
	for ty := y0; ty < y1; ty++ {
		for tx := x0; tx < x1; tx++ {
			tx, ty := tx, ty
			group.Go(func() error {
				url := d.Layer.url(zoom, tx, ty)
				var raw []byte
				err := backoff.Retry(groupCtx, backoff.Config{MaxAttempts: 3}, func() error {
					var ferr error
					raw, ferr = fetcher.Fetch(groupCtx, url)
					return ferr
				})
				if err != nil {
					// Data sufficiency over correctness: a zero tile
					// (already in the canvas) stands in for the failure.
					logger.Warnf("Tile %v failed after retries, substituting zero tile: %v", url, err)
					return nil
				}
				tile, err := decodeImage(raw)
				if err != nil {
					logger.Warnf("Tile %v is not a decodable image, substituting zero tile: %v", url, err)
					return nil
				}
				origin := image.Pt((tx-x0)*tileSize, (ty-y0)*tileSize)
				src := geom.RasterToImage(tile)
				if tile.Width != tileSize || tile.Height != tileSize {
					src = imaging.Resize(src, tileSize, tileSize, imaging.Lanczos)
				}
				draw.Draw(canvas, image.Rectangle{Min: origin, Max: origin.Add(image.Pt(tileSize, tileSize))}, src, image.Point{}, draw.Src)
				return nil
			})
		}
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	// Crop the composite to the exact pixel viewport.
	cropX0 := int(math32.Round(float32((x0f - float64(x0)) * tileSize)))
	cropY0 := int(math32.Round(float32((y0f - float64(y0)) * tileSize)))
	cropX1 := int(math32.Round(float32((x1f - float64(x0)) * tileSize)))
	cropY1 := int(math32.Round(float32((y1f - float64(y0)) * tileSize)))
	cropped := imaging.Crop(canvas, image.Rect(cropX0, cropY0, cropX1, cropY1))

	out := cimg.NewImage(cropped.Bounds().Dx(), cropped.Bounds().Dy(), cimg.PixelFormatRGB)
	geom.ImageToRaster(cropped, out)
	return out, nil
}
