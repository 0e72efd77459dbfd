package geom

// Raster to multipolygon extraction. We walk the boundary edges between set
// and unset pixels, chain them into closed rings, and classify each ring as
// an outer boundary or a hole by the sign of its area. Ring coordinates are
// pixel corners, so a single pixel at (x, y) becomes the unit square
// (x, y)..(x+1, y+1).

type corner struct {
	x, y int
}

type edge struct {
	from, to corner
}

// vectorize extracts a MultiPolygon from a boolean grid. Holes are attached
// to their containing outer ring when keepHoles is set, and dropped otherwise.
func vectorize(selected []bool, width, height int, keepHoles bool) GeoJSON {
	at := func(x, y int) bool {
		if x < 0 || y < 0 || x >= width || y >= height {
			return false
		}
		return selected[y*width+x]
	}

	// Directed boundary edges, interior on the left.
	edgesFrom := map[corner][]edge{}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if !at(x, y) {
				continue
			}
			if !at(x, y-1) {
				addEdge(edgesFrom, corner{x, y}, corner{x + 1, y})
			}
			if !at(x+1, y) {
				addEdge(edgesFrom, corner{x + 1, y}, corner{x + 1, y + 1})
			}
			if !at(x, y+1) {
				addEdge(edgesFrom, corner{x + 1, y + 1}, corner{x, y + 1})
			}
			if !at(x-1, y) {
				addEdge(edgesFrom, corner{x, y + 1}, corner{x, y})
			}
		}
	}

	var outers [][]Point
	var holes [][]Point
	for len(edgesFrom) != 0 {
		ring := chainRing(edgesFrom)
		if len(ring) < 4 {
			continue
		}
		if signedArea(ring) >= 0 {
			outers = append(outers, ring)
		} else if keepHoles {
			holes = append(holes, ring)
		}
	}

	// MultiPolygon: [polygon][ring][point][xy]
	coords := make([][][][]float64, 0, len(outers))
	for _, outer := range outers {
		polygon := [][][]float64{pointsToCoords(outer)}
		for _, hole := range holes {
			if len(hole) > 0 && ringContains(outer, hole[0]) {
				polygon = append(polygon, pointsToCoords(hole))
			}
		}
		coords = append(coords, polygon)
	}
	return GeoJSON{Type: "MultiPolygon", Coordinates: coords}
}

func addEdge(edgesFrom map[corner][]edge, from, to corner) {
	edgesFrom[from] = append(edgesFrom[from], edge{from, to})
}

// chainRing pops edges from the map, following them into one closed loop.
// At corner junctions where two diagonal pixels touch, we take the sharpest
// left turn, which keeps diagonally-touching components separate.
func chainRing(edgesFrom map[corner][]edge) []Point {
	var start edge
	for _, candidates := range edgesFrom {
		start = candidates[0]
		break
	}
	ring := []Point{{X: float64(start.from.x), Y: float64(start.from.y)}}
	current := start
	for {
		takeEdge(edgesFrom, current)
		ring = append(ring, Point{X: float64(current.to.x), Y: float64(current.to.y)})
		if current.to == start.from {
			break
		}
		candidates := edgesFrom[current.to]
		if len(candidates) == 0 {
			break // open chain, should not happen on a well-formed grid
		}
		next := candidates[0]
		if len(candidates) > 1 {
			bestCross := crossDir(current, next)
			for _, c := range candidates[1:] {
				if cr := crossDir(current, c); cr > bestCross {
					bestCross = cr
					next = c
				}
			}
		}
		current = next
	}
	return simplifyRing(ring)
}

func takeEdge(edgesFrom map[corner][]edge, e edge) {
	candidates := edgesFrom[e.from]
	for i := range candidates {
		if candidates[i] == e {
			candidates = append(candidates[:i], candidates[i+1:]...)
			break
		}
	}
	if len(candidates) == 0 {
		delete(edgesFrom, e.from)
	} else {
		edgesFrom[e.from] = candidates
	}
}

func crossDir(in, out edge) int {
	dx1, dy1 := in.to.x-in.from.x, in.to.y-in.from.y
	dx2, dy2 := out.to.x-out.from.x, out.to.y-out.from.y
	return dx1*dy2 - dy1*dx2
}

// simplifyRing removes collinear intermediate points.
func simplifyRing(ring []Point) []Point {
	if len(ring) < 3 {
		return ring
	}
	simplified := []Point{ring[0]}
	for i := 1; i < len(ring)-1; i++ {
		prev := simplified[len(simplified)-1]
		next := ring[i+1]
		cross := (ring[i].X-prev.X)*(next.Y-prev.Y) - (ring[i].Y-prev.Y)*(next.X-prev.X)
		if cross != 0 {
			simplified = append(simplified, ring[i])
		}
	}
	simplified = append(simplified, ring[len(ring)-1])
	return simplified
}

func signedArea(ring []Point) float64 {
	sum := 0.0
	for i := 0; i+1 < len(ring); i++ {
		sum += ring[i].X*ring[i+1].Y - ring[i+1].X*ring[i].Y
	}
	return sum / 2
}

// ringContains is a standard even-odd point-in-polygon test.
func ringContains(ring []Point, p Point) bool {
	inside := false
	for i := 0; i+1 < len(ring); i++ {
		a, b := ring[i], ring[i+1]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := a.X + (p.Y-a.Y)/(b.Y-a.Y)*(b.X-a.X)
			if p.X < x {
				inside = !inside
			}
		}
	}
	return inside
}
