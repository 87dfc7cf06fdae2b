//go:build !noopencv

package matting

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"gocv.io/x/gocv"

	imgio "image-background-remover/internal/io"
)

// U2-Net preprocessing (ImageNet statistics, single std approximation).
const (
	u2netScale = 1.0 / (255.0 * 0.226)
)

var u2netMean = gocv.NewScalar(123.675, 116.28, 103.53, 0)

// ONNXModel runs a U2-Net style salient-object network in-process through
// the OpenCV DNN module.
type ONNXModel struct {
	mu   sync.Mutex
	net  gocv.Net
	path string
	size int
}

func NewONNXModel(path string, inputSize int) (*ONNXModel, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("onnx model: %w", err)
	}
	if inputSize <= 0 {
		inputSize = 320
	}

	net := gocv.ReadNetFromONNX(path)
	if net.Empty() {
		return nil, fmt.Errorf("onnx model %s could not be loaded", path)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &ONNXModel{net: net, path: path, size: inputSize}, nil
}

func (m *ONNXModel) Name() string {
	return "onnx:" + filepath.Base(m.path)
}

func (m *ONNXModel) Remove(ctx context.Context, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, _, err := imgio.CheckHeader(data); err != nil {
		return nil, fmt.Errorf("onnx input: %w", err)
	}
	src, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("onnx input: %w", err)
	}
	defer src.Close()
	if src.Empty() {
		return nil, fmt.Errorf("onnx input: empty image")
	}

	blob := gocv.BlobFromImage(src, u2netScale, image.Pt(m.size, m.size), u2netMean, true, false)
	defer blob.Close()

	m.mu.Lock()
	m.net.SetInput(blob, "")
	pred := m.net.Forward("")
	m.mu.Unlock()
	defer pred.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	saliency := gocv.GetBlobChannel(pred, 0, 0)
	defer saliency.Close()

	norm := gocv.NewMat()
	defer norm.Close()
	gocv.Normalize(saliency, &norm, 0, 255, gocv.NormMinMax)

	mask8 := gocv.NewMat()
	defer mask8.Close()
	norm.ConvertTo(&mask8, gocv.MatTypeCV8U)

	mask := gocv.NewMat()
	gocv.Resize(mask8, &mask, image.Pt(src.Cols(), src.Rows()), 0, 0, gocv.InterpolationLinear)

	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(3, 3))
	defer kernel.Close()
	clean := gocv.NewMat()
	gocv.MorphologyEx(mask, &clean, gocv.MorphOpen, kernel)
	mask.Close()

	bgra := gocv.NewMat()
	defer bgra.Close()
	gocv.CvtColor(src, &bgra, gocv.ColorBGRToBGRA)

	channels := gocv.Split(bgra)
	channels[3].Close()
	channels[3] = clean
	defer func() {
		for _, c := range channels {
			c.Close()
		}
	}()

	merged := gocv.NewMat()
	defer merged.Close()
	gocv.Merge(channels, &merged)

	buf, err := gocv.IMEncode(gocv.PNGFileExt, merged)
	if err != nil {
		return nil, fmt.Errorf("onnx output: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

func (m *ONNXModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.net.Close()
}
