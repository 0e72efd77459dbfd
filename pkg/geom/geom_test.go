package geom

import (
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/stretchr/testify/require"
)

func TestLineValidation(t *testing.T) {
	_, err := NewLine([]Point{{X: 1, Y: 1}})
	require.Error(t, err)

	line, err := NewLine([]Point{{X: 0, Y: 0}, {X: 5, Y: 5}})
	require.NoError(t, err)
	require.Equal(t, "LineString", line.GeoJSON().Type)
	require.Equal(t, 0.0, line.Area())
}

func TestPolygonValidation(t *testing.T) {
	_, err := NewPolygon([]Point{{X: 0, Y: 0}, {X: 1, Y: 0}})
	require.Error(t, err)
}

func TestPolygonRingClosureMutatesPoints(t *testing.T) {
	poly, err := NewPolygon([]Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}})
	require.NoError(t, err)
	require.Len(t, poly.Points, 4)

	g := poly.GeoJSON()
	// The closure appends the first point to the stored slice. This is
	// observable behavior that callers rely on.
	require.Len(t, poly.Points, 5)
	require.Equal(t, poly.Points[0], poly.Points[4])

	rings := g.Coordinates.([][][]float64)
	require.Len(t, rings, 1)
	require.Len(t, rings[0], 5)

	// Closing twice does not append again.
	poly.GeoJSON()
	require.Len(t, poly.Points, 5)

	require.Equal(t, 100.0, poly.Area())
}

func TestRectangle(t *testing.T) {
	r := RectangleFromXYHW(10, 20, 5, 8)
	require.Equal(t, Point{X: 10, Y: 20}, r.Start)
	require.Equal(t, Point{X: 18, Y: 25}, r.End)
	require.Equal(t, 40.0, r.Area())

	rings := r.GeoJSON().Coordinates.([][][]float64)
	require.Len(t, rings[0], 5)
	require.Equal(t, rings[0][0], rings[0][4])
}

func TestNegativePointPermitted(t *testing.T) {
	// Projections may place points outside the viewport.
	p := Point{X: -5, Y: -3}
	coords := p.GeoJSON().Coordinates.([]float64)
	require.Equal(t, []float64{-5, -3}, coords)
}

func TestDrawCanvasShape(t *testing.T) {
	p := Point{X: 5, Y: 5}
	canvas, err := p.Draw(DrawOptions{Height: 10, Width: 12, Color: Color{R: 255}, Thickness: 2})
	require.NoError(t, err)
	require.Equal(t, 12, canvas.Width)
	require.Equal(t, 10, canvas.Height)
	require.Equal(t, cimg.PixelFormatRGB, canvas.Format)
	// Center pixel painted red
	center := canvas.Pixels[5*canvas.Stride+5*3:]
	require.Equal(t, uint8(255), center[0])
	require.Equal(t, uint8(0), center[2])
}

func TestDrawZeroSizeRectangleIsEmpty(t *testing.T) {
	r := Rectangle{Start: Point{X: 2, Y: 2}, End: Point{X: 2, Y: 8}}
	canvas, err := r.Draw(DrawOptions{Height: 10, Width: 10, Color: Color{G: 255}, Fill: true})
	require.NoError(t, err)
	for _, b := range canvas.Pixels {
		require.Equal(t, uint8(0), b)
	}
}

func TestDrawPolygonFill(t *testing.T) {
	poly, err := NewPolygon([]Point{{X: 1, Y: 1}, {X: 9, Y: 1}, {X: 9, Y: 9}, {X: 1, Y: 9}})
	require.NoError(t, err)
	canvas, err := poly.Draw(DrawOptions{Height: 12, Width: 12, Color: Color{B: 255}, Fill: true})
	require.NoError(t, err)
	mid := canvas.Pixels[5*canvas.Stride+5*3:]
	require.Equal(t, uint8(255), mid[2])
}

func TestMakeColor(t *testing.T) {
	c, err := MakeColor(10, 20, 30)
	require.NoError(t, err)
	require.Equal(t, [3]int{10, 20, 30}, c.Triple())

	_, err = MakeColor(-1, 0, 0)
	require.Error(t, err)
	_, err = MakeColor(0, 256, 0)
	require.Error(t, err)
}

func TestShapeFromGeoJSONRoundTrip(t *testing.T) {
	poly, err := NewPolygon([]Point{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 4}})
	require.NoError(t, err)
	shape, err := ShapeFromGeoJSON(poly.GeoJSON())
	require.NoError(t, err)
	back := shape.(*Polygon)
	require.Equal(t, []Point{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 4}}, back.Points)
}
