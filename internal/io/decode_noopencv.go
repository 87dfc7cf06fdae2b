//go:build noopencv

package io

import (
	"errors"
	"image"
)

func decodeOpenCV([]byte) (image.Image, error) {
	return nil, errors.New("built without opencv")
}
