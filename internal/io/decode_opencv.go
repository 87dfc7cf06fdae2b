//go:build !noopencv

package io

import (
	"errors"
	"image"

	"gocv.io/x/gocv"
)

// decodeOpenCV hands data Go has no codec for to OpenCV's imdecode.
func decodeOpenCV(data []byte) (image.Image, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadUnchanged)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, errors.New("opencv could not decode the data")
	}

	img, err := mat.ToImage()
	if err == nil {
		return img, nil
	}

	// 16-bit or float payloads: retry as 8-bit colour.
	color, cerr := gocv.IMDecode(data, gocv.IMReadColor)
	if cerr != nil {
		return nil, err
	}
	defer color.Close()
	if color.Empty() {
		return nil, err
	}
	return color.ToImage()
}
