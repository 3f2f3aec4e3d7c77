package canvas

import (
	"image"
	"image/color"
	"math"
	"sync"
)

// Result is the output of one detector pass over a frame.
type Result struct {
	// Annotated is the undistorted frame with the detected quads drawn in.
	Annotated *image.RGBA

	// Outer holds the ordered outer corners when a quad was found this
	// frame; nil otherwise.
	Outer *Corners

	// Inner holds the inner drawing-area corners when found.
	Inner *Corners

	// Found reports whether this frame produced a fresh outer detection.
	Found bool
}

// Detector finds the paper canvas in frames and keeps the most recent outer
// corners for rectification. Safe for concurrent use.
type Detector struct {
	mu      sync.Mutex
	intr    *Intrinsics
	undist  *undistorter
	corners *Corners // last successful detection, carried forward
}

// NewDetector creates a Detector. intr may be nil to disable undistortion.
func NewDetector(intr *Intrinsics) *Detector {
	return &Detector{intr: intr}
}

// Corners returns the stored outer corners from the most recent successful
// detection, or false when no canvas has been seen yet.
func (d *Detector) Corners() (Corners, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.corners == nil {
		return Corners{}, false
	}
	return *d.corners, true
}

// Process runs detection on one frame. A frame with no valid outer quad
// leaves the stored corners unchanged from the previous detection.
func (d *Detector) Process(frame *image.RGBA) Result {
	und := d.undistort(frame)

	gray := toGray(und)
	blurred := gaussianBlur5(gray)
	thresh := otsuThreshold(blurred)
	bin := binarize(blurred, thresh, false)

	outer, ok := d.findOuter(bin)
	res := Result{Annotated: und}
	if ok {
		d.mu.Lock()
		c := outer
		d.corners = &c
		d.mu.Unlock()

		res.Outer = &c
		res.Found = true
		res.Inner = d.findInner(blurred, c)

		drawQuad(und, c, color.RGBA{G: 200, A: 255})
		if res.Inner != nil {
			drawQuad(und, *res.Inner, color.RGBA{R: 60, G: 60, B: 230, A: 255})
		}
	}
	return res
}

// Rectify warps the undistorted frame to the fixed output raster using the
// stored outer corners. With no stored corners it returns the undistorted
// frame unchanged and false so the pipeline can still run on the raw view.
func (d *Detector) Rectify(frame *image.RGBA) (*image.RGBA, bool) {
	und := d.undistort(frame)

	d.mu.Lock()
	corners := d.corners
	d.mu.Unlock()
	if corners == nil {
		return und, false
	}

	out, err := Warp(und, *corners, OutputSize)
	if err != nil {
		return und, false
	}
	return out, true
}

// findOuter picks the largest acceptable quad among the white components.
func (d *Detector) findOuter(bin *image.Gray) (Corners, bool) {
	var best Corners
	bestArea := -1.0
	for _, blob := range findBlobs(bin, minOuterArea) {
		quad, ok := blob.asQuad()
		if !ok {
			continue
		}
		c := OrderCorners(quad)
		if c.SideRatio() > maxOuterRatio {
			continue
		}
		if blob.Area > bestArea {
			bestArea = blob.Area
			best = c
		}
	}
	return best, bestArea > 0
}

// findInner searches inside the outer quad's bounding box for the drawing
// area. First the inverted binarisation exposes the black border ring as a
// child quad; then one more level down the white component inside the ring
// is the true inner quad.
func (d *Detector) findInner(gray *image.Gray, outer Corners) *Corners {
	roi := boundingBox(outer, gray.Bounds())
	if roi.Dx() < 4 || roi.Dy() < 4 {
		return nil
	}
	sub := cropGray(gray, roi)
	thresh := otsuThreshold(sub)

	// Level one: the border ring in the inverted image.
	inv := binarize(sub, thresh, true)
	ring, ok := bestChildQuad(inv, outer, roi, maxInnerRatio*2)
	if !ok {
		return nil
	}

	// Level two: the white area enclosed by the ring.
	norm := binarize(sub, thresh, false)
	inner, ok := bestChildQuad(norm, ring, roi, maxInnerRatio)
	if !ok {
		return nil
	}
	return &inner
}

// bestChildQuad finds the largest convex quad component whose centroid lies
// inside parent. Blob coordinates are shifted from ROI space back into frame
// space before the containment test.
func bestChildQuad(bin *image.Gray, parent Corners, roi image.Rectangle, maxRatio float64) (Corners, bool) {
	offX := float64(roi.Min.X)
	offY := float64(roi.Min.Y)

	var best Corners
	bestArea := -1.0
	for _, blob := range findBlobs(bin, minInnerArea) {
		quad, ok := blob.asQuad()
		if !ok {
			continue
		}
		for i := range quad {
			quad[i].X += offX
			quad[i].Y += offY
		}
		c := OrderCorners(quad)
		if c.SideRatio() > maxRatio {
			continue
		}
		centroid := Point{X: blob.Centroid.X + offX, Y: blob.Centroid.Y + offY}
		if !parent.Contains(centroid) {
			continue
		}
		// The child must be strictly smaller than its parent.
		if polygonArea(c[:]) >= polygonArea(parent[:]) {
			continue
		}
		if blob.Area > bestArea {
			bestArea = blob.Area
			best = c
		}
	}
	return best, bestArea > 0
}

// undistort applies the calibration remap, building the lookup table on the
// first frame of each resolution.
func (d *Detector) undistort(frame *image.RGBA) *image.RGBA {
	if d.intr == nil {
		return frame
	}
	w, h := frame.Bounds().Dx(), frame.Bounds().Dy()

	d.mu.Lock()
	if d.undist == nil || d.undist.w != w || d.undist.h != h {
		d.undist = newUndistorter(d.intr, w, h)
	}
	u := d.undist
	d.mu.Unlock()

	return u.apply(frame)
}

// boundingBox returns the integer bounding rectangle of c clipped to bounds.
func boundingBox(c Corners, bounds image.Rectangle) image.Rectangle {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range c {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	r := image.Rect(int(minX), int(minY), int(maxX)+1, int(maxY)+1)
	return r.Intersect(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
}

// cropGray copies the roi of src into a zero-origin grayscale image.
func cropGray(src *image.Gray, roi image.Rectangle) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, roi.Dx(), roi.Dy()))
	for y := 0; y < roi.Dy(); y++ {
		for x := 0; x < roi.Dx(); x++ {
			dst.SetGray(x, y, src.GrayAt(roi.Min.X+x, roi.Min.Y+y))
		}
	}
	return dst
}

// drawQuad draws the quad outline onto img.
func drawQuad(img *image.RGBA, c Corners, col color.RGBA) {
	for i := 0; i < 4; i++ {
		drawLine(img, c[i], c[(i+1)%4], col)
	}
}

// drawLine is a simple DDA line rasteriser, thick enough to read on screen.
func drawLine(img *image.RGBA, a, b Point, col color.RGBA) {
	steps := int(math.Max(math.Abs(b.X-a.X), math.Abs(b.Y-a.Y)))
	if steps == 0 {
		steps = 1
	}
	bounds := img.Bounds()
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := int(a.X + (b.X-a.X)*t)
		y := int(a.Y + (b.Y-a.Y)*t)
		for dy := 0; dy < 2; dy++ {
			for dx := 0; dx < 2; dx++ {
				p := image.Pt(x+dx, y+dy)
				if p.In(bounds) {
					img.SetRGBA(p.X, p.Y, col)
				}
			}
		}
	}
}
