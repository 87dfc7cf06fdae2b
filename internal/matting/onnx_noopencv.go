//go:build noopencv

package matting

import (
	"context"
	"errors"
)

var errNoOpenCV = errors.New("onnx backend requires OpenCV; rebuild without the noopencv tag")

type ONNXModel struct{}

func NewONNXModel(path string, inputSize int) (*ONNXModel, error) {
	return nil, errNoOpenCV
}

func (m *ONNXModel) Name() string { return "onnx" }

func (m *ONNXModel) Remove(ctx context.Context, data []byte) ([]byte, error) {
	return nil, errNoOpenCV
}

func (m *ONNXModel) Close() error { return nil }
