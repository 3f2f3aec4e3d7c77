package ai

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"os"

	"golang.org/x/image/draw"

	_ "image/png"
)

// encodeImageBase64 loads the image at path, upscales it so that the shorter
// side is at least targetMinSize, and returns it as base64-encoded JPEG.
func encodeImageBase64(path string, targetMinSize int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("ai: open image %q: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("ai: decode image %q: %w", path, err)
	}

	img = upscaleToMin(img, targetMinSize)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return "", fmt.Errorf("ai: encode jpeg: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// upscaleToMin scales img up so its shorter side reaches minSize. Images that
// are already large enough are returned unchanged; downscaling never happens.
func upscaleToMin(img image.Image, minSize int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	short := w
	if h < short {
		short = h
	}
	if minSize <= 0 || short <= 0 || short >= minSize {
		return img
	}

	scale := float64(minSize) / float64(short)
	dw := int(float64(w) * scale)
	dh := int(float64(h) * scale)

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
