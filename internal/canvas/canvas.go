// Package canvas detects the printed paper target, a 180 mm white square
// with a 20 mm black border, in camera frames and rectifies the inner
// drawing to a fixed-size raster by homography.
//
// Detection is stateful: the last successfully detected outer corners are
// carried forward across frames with no valid quad, so a capture can still
// rectify against the most recent detection.
package canvas

import "math"

// Canvas geometry constants. The printed target is a 180 mm white square
// whose concentric black border is 20 mm wide, leaving a 140 mm inner
// drawing area.
const (
	OuterSideMM = 180
	BorderMM    = 20
	InnerSideMM = 140

	// OutputSize is the side length of the rectified raster.
	OutputSize = 720
)

// Acceptance thresholds for candidate quadrilaterals.
const (
	minOuterArea  = 5000
	minInnerArea  = 1000
	maxOuterRatio = 1.5
	maxInnerRatio = 1.2
	approxEpsFrac = 0.02
)

// Point is a position in image coordinates.
type Point struct {
	X, Y float64
}

// Corners is an ordered quadruple (TL, TR, BR, BL), clockwise and convex.
type Corners [4]Point

// TL, TR, BR, BL index the corners of a [Corners] value.
const (
	TL = iota
	TR
	BR
	BL
)

// OrderCorners orders four arbitrary quad vertices as TL, TR, BR, BL using
// the coordinate-sum/difference rule: TL minimises x+y, BR maximises x+y,
// TR minimises y-x, BL maximises y-x.
func OrderCorners(pts [4]Point) Corners {
	var c Corners
	c[TL] = pts[0]
	c[BR] = pts[0]
	c[TR] = pts[0]
	c[BL] = pts[0]
	for _, p := range pts[1:] {
		if p.X+p.Y < c[TL].X+c[TL].Y {
			c[TL] = p
		}
		if p.X+p.Y > c[BR].X+c[BR].Y {
			c[BR] = p
		}
		if p.Y-p.X < c[TR].Y-c[TR].X {
			c[TR] = p
		}
		if p.Y-p.X > c[BL].Y-c[BL].X {
			c[BL] = p
		}
	}
	return c
}

// SideRatio returns max/min of the quad's four side lengths.
func (c Corners) SideRatio() float64 {
	minSide := math.Inf(1)
	maxSide := 0.0
	for i := 0; i < 4; i++ {
		d := dist(c[i], c[(i+1)%4])
		if d < minSide {
			minSide = d
		}
		if d > maxSide {
			maxSide = d
		}
	}
	if minSide == 0 {
		return math.Inf(1)
	}
	return maxSide / minSide
}

// Contains reports whether p lies inside the quad (ray casting).
func (c Corners) Contains(p Point) bool {
	return pointInPolygon(p, c[:])
}

func dist(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// polygonArea returns the absolute shoelace area of a closed polygon.
func polygonArea(pts []Point) float64 {
	var sum float64
	n := len(pts)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return math.Abs(sum) / 2
}

// polygonPerimeter returns the closed-polygon perimeter.
func polygonPerimeter(pts []Point) float64 {
	var sum float64
	n := len(pts)
	for i := 0; i < n; i++ {
		sum += dist(pts[i], pts[(i+1)%n])
	}
	return sum
}

// isConvex reports whether the closed polygon turns in one direction only.
func isConvex(pts []Point) bool {
	n := len(pts)
	if n < 3 {
		return false
	}
	sign := 0
	for i := 0; i < n; i++ {
		a, b, c := pts[i], pts[(i+1)%n], pts[(i+2)%n]
		cross := (b.X-a.X)*(c.Y-b.Y) - (b.Y-a.Y)*(c.X-b.X)
		if cross == 0 {
			continue
		}
		s := 1
		if cross < 0 {
			s = -1
		}
		if sign == 0 {
			sign = s
		} else if s != sign {
			return false
		}
	}
	return sign != 0
}

// pointInPolygon is a standard ray-casting test.
func pointInPolygon(p Point, poly []Point) bool {
	inside := false
	n := len(poly)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := poly[i], poly[j]
		if (pi.Y > p.Y) != (pj.Y > p.Y) &&
			p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X {
			inside = !inside
		}
	}
	return inside
}

// approxPolygon simplifies a closed polygon with the Douglas-Peucker
// algorithm. eps is the maximum allowed deviation. The two points farthest
// apart anchor the split into two open chains.
func approxPolygon(pts []Point, eps float64) []Point {
	n := len(pts)
	if n < 3 {
		return pts
	}

	// Anchor on the two mutually farthest vertices.
	ai, bi := 0, 0
	best := -1.0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if d := dist(pts[i], pts[j]); d > best {
				best = d
				ai, bi = i, j
			}
		}
	}

	chainA := sliceWrap(pts, ai, bi)
	chainB := sliceWrap(pts, bi, ai)

	simpA := douglasPeucker(chainA, eps)
	simpB := douglasPeucker(chainB, eps)

	// Join, dropping the duplicated anchors.
	out := append([]Point{}, simpA...)
	out = append(out, simpB[1:len(simpB)-1]...)
	return out
}

// sliceWrap returns pts[from..to] inclusive, wrapping around the end.
func sliceWrap(pts []Point, from, to int) []Point {
	n := len(pts)
	var out []Point
	for i := from; ; i = (i + 1) % n {
		out = append(out, pts[i])
		if i == to {
			return out
		}
	}
}

// douglasPeucker simplifies an open chain keeping both endpoints.
func douglasPeucker(pts []Point, eps float64) []Point {
	if len(pts) < 3 {
		return pts
	}
	a, b := pts[0], pts[len(pts)-1]

	maxDist := -1.0
	maxIdx := 0
	for i := 1; i < len(pts)-1; i++ {
		if d := perpDistance(pts[i], a, b); d > maxDist {
			maxDist = d
			maxIdx = i
		}
	}

	if maxDist <= eps {
		return []Point{a, b}
	}
	left := douglasPeucker(pts[:maxIdx+1], eps)
	right := douglasPeucker(pts[maxIdx:], eps)
	return append(left[:len(left)-1], right...)
}

// perpDistance is the perpendicular distance of p from segment ab.
func perpDistance(p, a, b Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return dist(p, a)
	}
	return math.Abs(dy*p.X-dx*p.Y+b.X*a.Y-b.Y*a.X) / length
}
