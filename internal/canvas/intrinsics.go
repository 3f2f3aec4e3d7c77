package canvas

import (
	"fmt"
	"image"
	"os"

	"gopkg.in/yaml.v3"
)

// Intrinsics holds the pinhole camera matrix and lens distortion
// coefficients from a calibration file.
type Intrinsics struct {
	// K is the 3x3 camera matrix in row-major order.
	K [9]float64

	// Dist holds the distortion coefficients (k1, k2, p1, p2, k3).
	Dist [5]float64
}

// intrinsicsFile is the on-disk calibration layout.
type intrinsicsFile struct {
	CameraMatrix [][]float64 `yaml:"camera_matrix"`
	DistCoeffs   []float64   `yaml:"dist_coeffs"`
}

// LoadIntrinsics reads a calibration YAML with a 3x3 camera_matrix and up to
// five dist_coeffs.
func LoadIntrinsics(path string) (*Intrinsics, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("canvas: read intrinsics %q: %w", path, err)
	}

	var f intrinsicsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("canvas: parse intrinsics %q: %w", path, err)
	}
	if len(f.CameraMatrix) != 3 || len(f.CameraMatrix[0]) != 3 || len(f.CameraMatrix[1]) != 3 || len(f.CameraMatrix[2]) != 3 {
		return nil, fmt.Errorf("canvas: intrinsics %q: camera_matrix must be 3x3", path)
	}

	in := &Intrinsics{}
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			in.K[r*3+c] = f.CameraMatrix[r][c]
		}
	}
	for i, v := range f.DistCoeffs {
		if i >= 5 {
			break
		}
		in.Dist[i] = v
	}
	if in.K[0] == 0 || in.K[4] == 0 {
		return nil, fmt.Errorf("canvas: intrinsics %q: zero focal length", path)
	}
	return in, nil
}

// undistorter caches the per-pixel source lookup map for one resolution.
type undistorter struct {
	intr *Intrinsics
	w, h int
	mapX []float64
	mapY []float64
}

// newUndistorter precomputes the remap table. For each destination pixel the
// distortion model is applied to its normalised coordinates, yielding the
// source position to sample.
func newUndistorter(intr *Intrinsics, w, h int) *undistorter {
	u := &undistorter{intr: intr, w: w, h: h,
		mapX: make([]float64, w*h),
		mapY: make([]float64, w*h),
	}
	fx, fy := intr.K[0], intr.K[4]
	cx, cy := intr.K[2], intr.K[5]
	k1, k2, p1, p2, k3 := intr.Dist[0], intr.Dist[1], intr.Dist[2], intr.Dist[3], intr.Dist[4]

	for v := 0; v < h; v++ {
		for uPix := 0; uPix < w; uPix++ {
			x := (float64(uPix) - cx) / fx
			y := (float64(v) - cy) / fy
			r2 := x*x + y*y
			radial := 1 + k1*r2 + k2*r2*r2 + k3*r2*r2*r2
			xd := x*radial + 2*p1*x*y + p2*(r2+2*x*x)
			yd := y*radial + p1*(r2+2*y*y) + 2*p2*x*y
			idx := v*w + uPix
			u.mapX[idx] = fx*xd + cx
			u.mapY[idx] = fy*yd + cy
		}
	}
	return u
}

// apply remaps src through the cached lookup table.
func (u *undistorter) apply(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, u.w, u.h))
	for y := 0; y < u.h; y++ {
		for x := 0; x < u.w; x++ {
			idx := y*u.w + x
			dst.SetRGBA(x, y, bilinearRGBA(src, u.mapX[idx], u.mapY[idx]))
		}
	}
	return dst
}
