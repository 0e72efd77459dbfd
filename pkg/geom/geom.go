package geom

// Package geom holds the geometric annotation values: points, lines,
// rectangles, polygons and raster masks. Every shape can report its GeoJSON
// form, compute its area, and rasterize itself onto an RGB canvas.

import (
	"fmt"

	"github.com/bmharper/cimg/v2"
	"github.com/chewxy/math32"
)

// Color is an RGB triple. Each channel is in [0, 255].
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// MakeColor validates the channel range of an integer triple.
func MakeColor(r, g, b int) (Color, error) {
	for _, c := range []int{r, g, b} {
		if c < 0 || c > 255 {
			return Color{}, fmt.Errorf("color channel %v out of range [0,255]", c)
		}
	}
	return Color{uint8(r), uint8(g), uint8(b)}, nil
}

func (c Color) Triple() [3]int {
	return [3]int{int(c.R), int(c.G), int(c.B)}
}

// Shape is the capability set shared by all geometry variants.
type Shape interface {
	// GeoJSON returns the shape as a GeoJSON geometry object.
	GeoJSON() GeoJSON
	// Area returns the covered area in square pixels (zero for points and lines).
	Area() float64
	// Draw rasterizes the shape onto an RGB canvas.
	Draw(opt DrawOptions) (*cimg.Image, error)
}

// DrawOptions controls rasterization. If Canvas is nil, a zeroed
// Height x Width RGB canvas is allocated.
type DrawOptions struct {
	Height    int
	Width     int
	Canvas    *cimg.Image
	Color     Color
	Thickness float64 // Stroke width (or point radius). Zero value means 1.
	Fill      bool    // Fill interiors instead of stroking outlines.
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) Distance(b Point) float32 {
	dx := float32(p.X - b.X)
	dy := float32(p.Y - b.Y)
	return math32.Sqrt(dx*dx + dy*dy)
}

func (p Point) GeoJSON() GeoJSON {
	return GeoJSON{Type: "Point", Coordinates: []float64{p.X, p.Y}}
}

func (p Point) Area() float64 {
	return 0
}

// Line is an ordered sequence of at least two points.
type Line struct {
	Points []Point `json:"points"`
}

func NewLine(points []Point) (*Line, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("a line needs at least 2 points, got %v", len(points))
	}
	return &Line{Points: points}, nil
}

func (l *Line) GeoJSON() GeoJSON {
	return GeoJSON{Type: "LineString", Coordinates: pointsToCoords(l.Points)}
}

func (l *Line) Area() float64 {
	return 0
}

// Rectangle is an axis-aligned box: Start is the top-left corner and End the
// bottom-right corner.
type Rectangle struct {
	Start Point `json:"start"`
	End   Point `json:"end"`
}

// RectangleFromXYHW builds a Rectangle from a top-left corner plus height and width.
func RectangleFromXYHW(x, y, h, w float64) Rectangle {
	return Rectangle{
		Start: Point{X: x, Y: y},
		End:   Point{X: x + w, Y: y + h},
	}
}

func (r Rectangle) Width() float64 {
	return r.End.X - r.Start.X
}

func (r Rectangle) Height() float64 {
	return r.End.Y - r.Start.Y
}

func (r Rectangle) GeoJSON() GeoJSON {
	ring := [][]float64{
		{r.Start.X, r.Start.Y},
		{r.Start.X, r.End.Y},
		{r.End.X, r.End.Y},
		{r.End.X, r.Start.Y},
		{r.Start.X, r.Start.Y},
	}
	return GeoJSON{Type: "Polygon", Coordinates: [][][]float64{ring}}
}

func (r Rectangle) Area() float64 {
	return r.Width() * r.Height()
}

// Polygon is an ordered ring of at least three points. The ring is closed
// lazily: the first GeoJSON or Draw call appends the first point to the
// stored sequence if it is not already the last point. Callers observe this
// mutation; it is part of the contract.
type Polygon struct {
	Points []Point `json:"points"`
}

func NewPolygon(points []Point) (*Polygon, error) {
	if len(points) < 3 {
		return nil, fmt.Errorf("a polygon needs at least 3 points, got %v", len(points))
	}
	return &Polygon{Points: points}, nil
}

// closeRing appends Points[0] if the ring is open. Mutates the stored slice.
func (p *Polygon) closeRing() {
	if len(p.Points) == 0 {
		return
	}
	if p.Points[0] != p.Points[len(p.Points)-1] {
		p.Points = append(p.Points, p.Points[0])
	}
}

func (p *Polygon) GeoJSON() GeoJSON {
	p.closeRing()
	return GeoJSON{Type: "Polygon", Coordinates: [][][]float64{pointsToCoords(p.Points)}}
}

// Area computes the shoelace area of the ring.
func (p *Polygon) Area() float64 {
	p.closeRing()
	return ringArea(p.Points)
}

func ringArea(ring []Point) float64 {
	sum := 0.0
	for i := 0; i+1 < len(ring); i++ {
		sum += ring[i].X*ring[i+1].Y - ring[i+1].X*ring[i].Y
	}
	if sum < 0 {
		sum = -sum
	}
	return sum / 2
}

func pointsToCoords(points []Point) [][]float64 {
	coords := make([][]float64, len(points))
	for i, pt := range points {
		coords[i] = []float64{pt.X, pt.Y}
	}
	return coords
}
