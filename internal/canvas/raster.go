package canvas

import (
	"image"
	"image/color"
)

// toGray converts any image to 8-bit grayscale using the luma weights of
// [color.GrayModel].
func toGray(src image.Image) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	if g, ok := src.(*image.Gray); ok {
		copy(dst.Pix, g.Pix)
		return dst
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.SetGray(x-b.Min.X, y-b.Min.Y, color.GrayModel.Convert(src.At(x, y)).(color.Gray))
		}
	}
	return dst
}

// gaussKernel is the separable 5-tap binomial kernel (sums to 16).
var gaussKernel = [5]int{1, 4, 6, 4, 1}

// gaussianBlur5 applies a 5x5 Gaussian blur with edge clamping.
func gaussianBlur5(src *image.Gray) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	tmp := image.NewGray(b)
	dst := image.NewGray(b)

	// Horizontal pass.
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum int
			for k := -2; k <= 2; k++ {
				xx := clampInt(x+k, 0, w-1)
				sum += int(src.GrayAt(xx, y).Y) * gaussKernel[k+2]
			}
			tmp.SetGray(x, y, color.Gray{Y: uint8(sum / 16)})
		}
	}
	// Vertical pass.
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum int
			for k := -2; k <= 2; k++ {
				yy := clampInt(y+k, 0, h-1)
				sum += int(tmp.GrayAt(x, yy).Y) * gaussKernel[k+2]
			}
			dst.SetGray(x, y, color.Gray{Y: uint8(sum / 16)})
		}
	}
	return dst
}

// otsuThreshold picks the threshold that maximises between-class variance.
func otsuThreshold(src *image.Gray) uint8 {
	var hist [256]int
	for _, v := range src.Pix {
		hist[v]++
	}
	total := len(src.Pix)
	if total == 0 {
		return 128
	}

	var sumAll float64
	for i, n := range hist {
		sumAll += float64(i) * float64(n)
	}

	var sumB, wB float64
	bestVar := -1.0
	best := 0
	for t := 0; t < 256; t++ {
		wB += float64(hist[t])
		if wB == 0 {
			continue
		}
		wF := float64(total) - wB
		if wF == 0 {
			break
		}
		sumB += float64(t) * float64(hist[t])
		mB := sumB / wB
		mF := (sumAll - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > bestVar {
			bestVar = between
			best = t
		}
	}
	return uint8(best)
}

// binarize thresholds src: pixels above thresh become foreground (255).
// With invert set, pixels at or below thresh become foreground instead.
func binarize(src *image.Gray, thresh uint8, invert bool) *image.Gray {
	dst := image.NewGray(src.Bounds())
	for i, v := range src.Pix {
		fg := v > thresh
		if invert {
			fg = !fg
		}
		if fg {
			dst.Pix[i] = 255
		}
	}
	return dst
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
