package camera

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Status is the overlay drawn onto the video feed: one line of text in the
// top-left corner plus an optional recording indicator in the top-right.
type Status struct {
	Text      string
	Color     color.RGBA
	Recording bool
}

// Common overlay colors.
var (
	StatusGreen  = color.RGBA{80, 220, 80, 255}
	StatusYellow = color.RGBA{235, 210, 60, 255}
	StatusRed    = color.RGBA{230, 60, 60, 255}
)

// drawOverlay returns a copy of img with the status painted on. The input is
// left untouched so the raw frame slot stays clean.
func drawOverlay(img *image.RGBA, s Status) *image.RGBA {
	out := image.NewRGBA(img.Bounds())
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Src)

	if s.Text != "" {
		drawText(out, 10, 22, s.Text, s.Color)
	}
	if s.Recording {
		drawDot(out, out.Bounds().Dx()-20, 20, 8, StatusRed)
	}
	return out
}

// drawText renders one line with a 1px shadow for contrast against bright
// frames.
func drawText(img *image.RGBA, x, y int, text string, col color.RGBA) {
	shadow := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{0, 0, 0, 255}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x+1, y+1),
	}
	shadow.DrawString(text)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// drawDot fills a circle of radius r centered at (cx, cy).
func drawDot(img *image.RGBA, cx, cy, r int, col color.RGBA) {
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy > r*r {
				continue
			}
			p := image.Pt(cx+dx, cy+dy)
			if p.In(img.Bounds()) {
				img.SetRGBA(p.X, p.Y, col)
			}
		}
	}
}
