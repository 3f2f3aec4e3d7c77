package canvas

import (
	"image"
	"sort"
)

// Blob is one 8-connected foreground component of a binary image.
type Blob struct {
	// Area is the component's pixel count.
	Area float64

	// Hull is the component's convex hull, ordered counter-clockwise in
	// image coordinates (y grows downward).
	Hull []Point

	// Centroid is the mean of all component pixels.
	Centroid Point

	// BBox is the component's bounding rectangle.
	BBox image.Rectangle
}

// findBlobs extracts all foreground components of bin with at least minArea
// pixels. bin must be a zero-origin binary image (0 or 255).
func findBlobs(bin *image.Gray, minArea int) []Blob {
	w := bin.Bounds().Dx()
	h := bin.Bounds().Dy()
	visited := make([]bool, w*h)

	var blobs []Blob
	var queue []image.Point

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			if visited[idx] || bin.Pix[idx] == 0 {
				continue
			}

			// BFS flood fill of one component.
			queue = queue[:0]
			queue = append(queue, image.Pt(x, y))
			visited[idx] = true

			var count int
			var sumX, sumY float64
			minX, minY, maxX, maxY := x, y, x, y
			var boundary []Point

			for len(queue) > 0 {
				p := queue[0]
				queue = queue[1:]
				count++
				sumX += float64(p.X)
				sumY += float64(p.Y)
				if p.X < minX {
					minX = p.X
				}
				if p.X > maxX {
					maxX = p.X
				}
				if p.Y < minY {
					minY = p.Y
				}
				if p.Y > maxY {
					maxY = p.Y
				}

				onEdge := false
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						if dx == 0 && dy == 0 {
							continue
						}
						nx, ny := p.X+dx, p.Y+dy
						if nx < 0 || ny < 0 || nx >= w || ny >= h {
							onEdge = true
							continue
						}
						nidx := ny*w + nx
						if bin.Pix[nidx] == 0 {
							onEdge = true
							continue
						}
						if !visited[nidx] {
							visited[nidx] = true
							queue = append(queue, image.Pt(nx, ny))
						}
					}
				}
				if onEdge {
					boundary = append(boundary, Point{X: float64(p.X), Y: float64(p.Y)})
				}
			}

			if count < minArea {
				continue
			}
			blobs = append(blobs, Blob{
				Area:     float64(count),
				Hull:     convexHull(boundary),
				Centroid: Point{X: sumX / float64(count), Y: sumY / float64(count)},
				BBox:     image.Rect(minX, minY, maxX+1, maxY+1),
			})
		}
	}
	return blobs
}

// asQuad approximates the blob's hull to a polygon with epsilon equal to 2%
// of the hull perimeter and returns the four vertices if the result is a
// convex quadrilateral. Returns false otherwise.
func (b Blob) asQuad() ([4]Point, bool) {
	if len(b.Hull) < 4 {
		return [4]Point{}, false
	}
	eps := approxEpsFrac * polygonPerimeter(b.Hull)
	approx := approxPolygon(b.Hull, eps)
	if len(approx) != 4 || !isConvex(approx) {
		return [4]Point{}, false
	}
	return [4]Point{approx[0], approx[1], approx[2], approx[3]}, true
}

// convexHull computes the convex hull of pts with Andrew's monotone chain,
// returned counter-clockwise in image coordinates.
func convexHull(pts []Point) []Point {
	if len(pts) < 3 {
		return append([]Point{}, pts...)
	}
	sorted := append([]Point{}, pts...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Y < sorted[j].Y
	})

	cross := func(o, a, b Point) float64 {
		return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
	}

	var lower []Point
	for _, p := range sorted {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], p) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, p)
	}
	var upper []Point
	for i := len(sorted) - 1; i >= 0; i-- {
		p := sorted[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], p) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, p)
	}
	return append(lower[:len(lower)-1], upper[:len(upper)-1]...)
}
