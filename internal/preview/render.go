// Package preview turns decoded images into bounded bitmaps for on-screen display.
package preview

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
)

const (
	// MinBox is the smallest usable box side; smaller boxes come from
	// surfaces that have not been laid out yet.
	MinBox = 10
	// FallbackBox replaces a degenerate box.
	FallbackBox = 400
)

// Render returns a copy of img downscaled (never upscaled) to fit within
// boxWidth x boxHeight with its aspect ratio preserved, in RGBA layout.
// img is not modified.
func Render(img image.Image, boxWidth, boxHeight int) *image.RGBA {
	return RenderWithFallback(img, boxWidth, boxHeight, FallbackBox)
}

// RenderWithFallback is Render with a configurable fallback box side.
func RenderWithFallback(img image.Image, boxWidth, boxHeight, fallback int) *image.RGBA {
	if img == nil {
		return nil
	}
	if fallback < MinBox {
		fallback = FallbackBox
	}
	if boxWidth < MinBox || boxHeight < MinBox {
		boxWidth, boxHeight = fallback, fallback
	}

	fitted := imaging.Fit(img, boxWidth, boxHeight, imaging.Lanczos)
	return toRGBA(fitted)
}

// Checkerboard composites img over a grey checkerboard so transparent areas
// are visible. cell is the square size in pixels.
func Checkerboard(img image.Image, cell int) *image.RGBA {
	if img == nil {
		return nil
	}
	if cell <= 0 {
		cell = 8
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	light := color.RGBA{R: 0xcc, G: 0xcc, B: 0xcc, A: 0xff}
	dark := color.RGBA{R: 0x99, G: 0x99, B: 0x99, A: 0xff}
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if (x/cell+y/cell)%2 == 0 {
				dst.SetRGBA(x, y, light)
			} else {
				dst.SetRGBA(x, y, dark)
			}
		}
	}

	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
