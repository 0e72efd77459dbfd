package geom

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func boolGrid(width, height int, set [][2]int) []bool {
	grid := make([]bool, width*height)
	for _, xy := range set {
		grid[xy[1]*width+xy[0]] = true
	}
	return grid
}

func TestMaskSelection(t *testing.T) {
	red := Color{R: 255}
	mask, err := MaskFromBools(boolGrid(4, 3, [][2]int{{0, 0}, {1, 0}, {2, 2}}), 4, 3, red)
	require.NoError(t, err)
	require.Equal(t, 3.0, mask.Area())

	// A second mask sharing the raster but selecting a different color sees nothing.
	other, err := NewMask(mask.Raster(), Color{G: 255})
	require.NoError(t, err)
	require.Equal(t, 0.0, other.Area())
}

func TestMaskRasterShape(t *testing.T) {
	mask, err := MaskFromBools(make([]bool, 20), 5, 4, Color{R: 1})
	require.NoError(t, err)
	raster := mask.Raster()
	require.Equal(t, 5, raster.Width)
	require.Equal(t, 4, raster.Height)
	require.Equal(t, 3, raster.NChan())
}

func TestVectorizeSinglePixel(t *testing.T) {
	mask, err := MaskFromBools(boolGrid(4, 4, [][2]int{{1, 2}}), 4, 4, Color{R: 9})
	require.NoError(t, err)
	g := mask.GeoJSON()
	require.Equal(t, "MultiPolygon", g.Type)
	coords := g.Coordinates.([][][][]float64)
	require.Len(t, coords, 1)
	require.Len(t, coords[0], 1) // one ring, no holes
	ring := coords[0][0]
	require.Len(t, ring, 5) // unit square, closed
	require.Equal(t, []float64{1, 2}, ring[0])
}

func TestVectorizeHolePolicy(t *testing.T) {
	// 3x3 block with the center unset
	set := [][2]int{}
	for y := 1; y <= 3; y++ {
		for x := 1; x <= 3; x++ {
			if !(x == 2 && y == 2) {
				set = append(set, [2]int{x, y})
			}
		}
	}
	mask, err := MaskFromBools(boolGrid(5, 5, set), 5, 5, Color{B: 7})
	require.NoError(t, err)

	// Instance path fills holes
	instance := mask.GeoJSON().Coordinates.([][][][]float64)
	require.Len(t, instance, 1)
	require.Len(t, instance[0], 1)

	// Panoptic path preserves them
	panoptic := mask.PanopticGeoJSON().Coordinates.([][][][]float64)
	require.Len(t, panoptic, 1)
	require.Len(t, panoptic[0], 2)
}

func TestVectorizeSeparateComponents(t *testing.T) {
	mask, err := MaskFromBools(boolGrid(6, 6, [][2]int{{0, 0}, {4, 4}, {5, 4}}), 6, 6, Color{R: 1})
	require.NoError(t, err)
	coords := mask.GeoJSON().Coordinates.([][][][]float64)
	require.Len(t, coords, 2)
}

func TestMaskDraw(t *testing.T) {
	mask, err := MaskFromBools(boolGrid(3, 3, [][2]int{{1, 1}}), 3, 3, Color{R: 200})
	require.NoError(t, err)
	canvas, err := mask.Draw(DrawOptions{Height: 3, Width: 3, Color: Color{G: 123}})
	require.NoError(t, err)
	px := canvas.Pixels[1*canvas.Stride+1*3:]
	require.Equal(t, uint8(0), px[0])
	require.Equal(t, uint8(123), px[1])
}
