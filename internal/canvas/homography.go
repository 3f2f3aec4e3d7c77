package canvas

import (
	"fmt"
	"image"
	"image/color"
)

// Homography is a 3x3 projective transform in row-major order.
type Homography [9]float64

// Apply maps p through the homography.
func (h Homography) Apply(p Point) Point {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if w == 0 {
		w = 1e-12
	}
	return Point{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}
}

// PerspectiveTransform computes the homography mapping the four src points
// onto the four dst points. It solves the standard 8x8 linear system with
// h33 fixed to 1.
func PerspectiveTransform(src, dst Corners) (Homography, error) {
	var a [8][9]float64 // augmented matrix
	for i := 0; i < 4; i++ {
		sx, sy := src[i].X, src[i].Y
		dx, dy := dst[i].X, dst[i].Y
		a[2*i] = [9]float64{sx, sy, 1, 0, 0, 0, -sx * dx, -sy * dx, dx}
		a[2*i+1] = [9]float64{0, 0, 0, sx, sy, 1, -sx * dy, -sy * dy, dy}
	}

	// Gaussian elimination with partial pivoting.
	for col := 0; col < 8; col++ {
		pivot := col
		for row := col + 1; row < 8; row++ {
			if abs(a[row][col]) > abs(a[pivot][col]) {
				pivot = row
			}
		}
		if abs(a[pivot][col]) < 1e-12 {
			return Homography{}, fmt.Errorf("canvas: degenerate point configuration")
		}
		a[col], a[pivot] = a[pivot], a[col]

		for row := 0; row < 8; row++ {
			if row == col {
				continue
			}
			f := a[row][col] / a[col][col]
			for k := col; k < 9; k++ {
				a[row][k] -= f * a[col][k]
			}
		}
	}

	var h Homography
	for i := 0; i < 8; i++ {
		h[i] = a[i][8] / a[i][i]
	}
	h[8] = 1
	return h, nil
}

// Warp renders the quadrilateral src region of img into a size x size raster
// using the inverse homography and bilinear sampling.
func Warp(img *image.RGBA, src Corners, size int) (*image.RGBA, error) {
	s := float64(size)
	dst := Corners{
		{0, 0}, {s, 0}, {s, s}, {0, s},
	}
	// Invert the mapping by computing dst -> src directly.
	inv, err := PerspectiveTransform(dst, src)
	if err != nil {
		return nil, err
	}

	out := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			sp := inv.Apply(Point{X: float64(x), Y: float64(y)})
			out.SetRGBA(x, y, bilinearRGBA(img, sp.X, sp.Y))
		}
	}
	return out, nil
}

// bilinearRGBA samples img at the fractional position (x, y), clamping to
// the image edge.
func bilinearRGBA(img *image.RGBA, x, y float64) color.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	x0 := clampInt(int(x), 0, w-1)
	y0 := clampInt(int(y), 0, h-1)
	x1 := clampInt(x0+1, 0, w-1)
	y1 := clampInt(y0+1, 0, h-1)
	fx := x - float64(x0)
	fy := y - float64(y0)
	if fx < 0 {
		fx = 0
	}
	if fy < 0 {
		fy = 0
	}

	p00 := img.RGBAAt(b.Min.X+x0, b.Min.Y+y0)
	p10 := img.RGBAAt(b.Min.X+x1, b.Min.Y+y0)
	p01 := img.RGBAAt(b.Min.X+x0, b.Min.Y+y1)
	p11 := img.RGBAAt(b.Min.X+x1, b.Min.Y+y1)

	lerp := func(a, b uint8, t float64) float64 {
		return float64(a) + (float64(b)-float64(a))*t
	}
	mix := func(c00, c10, c01, c11 uint8) uint8 {
		top := lerp(c00, c10, fx)
		bot := lerp(c01, c11, fx)
		return uint8(top + (bot-top)*fy)
	}
	return color.RGBA{
		R: mix(p00.R, p10.R, p01.R, p11.R),
		G: mix(p00.G, p10.G, p01.G, p11.G),
		B: mix(p00.B, p10.B, p01.B, p11.B),
		A: 255,
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
