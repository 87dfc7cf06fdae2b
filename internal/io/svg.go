package io

import (
	"bytes"
	"errors"
	"image"
	"math"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// maxSVGSide bounds the raster size of vector input.
const maxSVGSide = 4096

func looksLikeSVG(data []byte) bool {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.Contains(bytes.ToLower(head), []byte("<svg"))
}

// decodeSVG rasterises an SVG document at its viewBox size.
func decodeSVG(data []byte) (image.Image, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data), oksvg.WarnErrorMode)
	if err != nil {
		return nil, err
	}

	w, h := icon.ViewBox.W, icon.ViewBox.H
	if w <= 0 || h <= 0 {
		return nil, errors.New("svg has no usable viewBox")
	}
	if scale := maxSVGSide / math.Max(w, h); scale < 1 {
		w, h = w*scale, h*scale
	}
	iw, ih := int(math.Ceil(w)), int(math.Ceil(h))

	icon.SetTarget(0, 0, float64(iw), float64(ih))
	img := image.NewRGBA(image.Rect(0, 0, iw, ih))
	scanner := rasterx.NewScannerGV(iw, ih, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(iw, ih, scanner), 1)

	return img, nil
}
