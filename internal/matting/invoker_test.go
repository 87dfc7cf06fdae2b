package matting

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	imgio "image-background-remover/internal/io"
)

type fakeModel struct {
	fn    func(ctx context.Context, data []byte) ([]byte, error)
	calls int
	jobID string
	input image.Image
}

func (f *fakeModel) Name() string { return "fake" }

func (f *fakeModel) Remove(ctx context.Context, data []byte) ([]byte, error) {
	f.calls++
	f.jobID = JobIDFromContext(ctx)
	f.input, _ = png.Decode(bytes.NewReader(data))
	return f.fn(ctx, data)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(bytes.NewBuffer(nil))
	return logger
}

func fill(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// clearLeftHalf decodes the input and makes its left half transparent.
func clearLeftHalf(t *testing.T) func(context.Context, []byte) ([]byte, error) {
	return func(_ context.Context, data []byte) ([]byte, error) {
		src, err := png.Decode(bytes.NewReader(data))
		require.NoError(t, err)
		b := src.Bounds()
		out := image.NewNRGBA(b)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
				if x < b.Dx()/2 {
					c.A = 0
				}
				out.SetNRGBA(x, y, c)
			}
		}
		return encodePNG(t, out), nil
	}
}

func TestRemoveBackgroundKeepsDimensions(t *testing.T) {
	model := &fakeModel{fn: clearLeftHalf(t)}
	inv := NewInvoker(model, quietLogger())

	out, err := inv.RemoveBackground(context.Background(), fill(200, 300, color.NRGBA{R: 90, G: 60, B: 30, A: 255}))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 200, 300), out.Bounds())
	assert.Equal(t, uint8(0), out.NRGBAAt(10, 10).A)
	assert.Equal(t, color.NRGBA{R: 90, G: 60, B: 30, A: 255}, out.NRGBAAt(150, 10))
	assert.Equal(t, 1, model.calls)
	assert.NotEmpty(t, model.jobID)
}

func TestRemoveBackgroundReprojectsDownscaledMask(t *testing.T) {
	model := &fakeModel{fn: clearLeftHalf(t)}
	inv := NewInvoker(model, quietLogger(), WithMaxInputSide(50))

	src := fill(200, 100, color.NRGBA{R: 10, G: 200, B: 10, A: 255})
	out, err := inv.RemoveBackground(context.Background(), src)
	require.NoError(t, err)

	require.NotNil(t, model.input)
	assert.Equal(t, 50, model.input.Bounds().Dx())
	assert.Equal(t, 25, model.input.Bounds().Dy())

	assert.Equal(t, image.Rect(0, 0, 200, 100), out.Bounds())
	assert.Equal(t, uint8(0), out.NRGBAAt(5, 50).A)
	assert.Equal(t, color.NRGBA{R: 10, G: 200, B: 10, A: 255}, out.NRGBAAt(190, 50))
}

func TestRemoveBackgroundDoesNotTouchSource(t *testing.T) {
	model := &fakeModel{fn: clearLeftHalf(t)}
	src := fill(20, 20, color.NRGBA{R: 1, G: 2, B: 3, A: 255})
	before := append([]byte(nil), src.Pix...)

	_, err := NewInvoker(model, quietLogger()).RemoveBackground(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, before, src.Pix)
}

func TestRemoveBackgroundModelFailure(t *testing.T) {
	boom := errors.New("runtime missing")
	model := &fakeModel{fn: func(context.Context, []byte) ([]byte, error) { return nil, boom }}

	_, err := NewInvoker(model, quietLogger()).RemoveBackground(context.Background(), fill(4, 4, color.NRGBA{A: 255}))
	var ie *InferenceError
	require.True(t, errors.As(err, &ie), "got %v", err)
	assert.NotEmpty(t, ie.JobID)
	assert.Equal(t, "fake", ie.Model)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, model.calls, "no retries")
}

func TestRemoveBackgroundUnusableReply(t *testing.T) {
	tests := []struct {
		name  string
		reply []byte
	}{
		{"empty", nil},
		{"garbage", []byte("definitely not an image")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &fakeModel{fn: func(context.Context, []byte) ([]byte, error) { return tt.reply, nil }}
			_, err := NewInvoker(model, quietLogger()).RemoveBackground(context.Background(), fill(4, 4, color.NRGBA{A: 255}))
			var ie *InferenceError
			assert.True(t, errors.As(err, &ie), "got %v", err)
		})
	}
}

// hugeHeaderPNG is a 1x1 PNG whose IHDR claims 40000x40000 pixels.
func hugeHeaderPNG(t *testing.T) []byte {
	t.Helper()
	data := encodePNG(t, fill(1, 1, color.NRGBA{A: 255}))
	binary.BigEndian.PutUint32(data[16:], 40000)
	binary.BigEndian.PutUint32(data[20:], 40000)
	binary.BigEndian.PutUint32(data[29:], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func TestRemoveBackgroundRejectsOversizedReply(t *testing.T) {
	model := &fakeModel{fn: func(context.Context, []byte) ([]byte, error) {
		return hugeHeaderPNG(t), nil
	}}
	inv := NewInvoker(model, quietLogger())

	out, err := inv.RemoveBackground(context.Background(), fill(8, 8, color.NRGBA{A: 255}))
	assert.Nil(t, out)
	var ie *InferenceError
	require.True(t, errors.As(err, &ie), "got %v", err)
	assert.ErrorIs(t, err, imgio.ErrTooLarge)
	assert.Equal(t, 1, model.calls)
}

func TestRemoveBackgroundNilImage(t *testing.T) {
	model := &fakeModel{fn: clearLeftHalf(t)}
	_, err := NewInvoker(model, quietLogger()).RemoveBackground(context.Background(), nil)
	var ie *InferenceError
	assert.True(t, errors.As(err, &ie))
	assert.Zero(t, model.calls)
}

func TestRemoveBackgroundTimeout(t *testing.T) {
	model := &fakeModel{fn: func(ctx context.Context, _ []byte) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	inv := NewInvoker(model, quietLogger(), WithTimeout(20*time.Millisecond))

	_, err := inv.RemoveBackground(context.Background(), fill(4, 4, color.NRGBA{A: 255}))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRemoveBackgroundFeathersEdge(t *testing.T) {
	model := &fakeModel{fn: clearLeftHalf(t)}
	inv := NewInvoker(model, quietLogger(), WithFeather(2))

	out, err := inv.RemoveBackground(context.Background(), fill(40, 10, color.NRGBA{R: 255, A: 255}))
	require.NoError(t, err)
	edge := out.NRGBAAt(20, 5).A
	assert.Greater(t, edge, uint8(0))
	assert.Less(t, edge, uint8(255))
	assert.Equal(t, uint8(0), out.NRGBAAt(0, 5).A)
	assert.Equal(t, uint8(255), out.NRGBAAt(39, 5).A)
}

func TestForegroundRatio(t *testing.T) {
	img := fill(10, 10, color.NRGBA{A: 255})
	for x := 0; x < 10; x++ {
		for y := 0; y < 5; y++ {
			img.SetNRGBA(x, y, color.NRGBA{A: 127})
		}
	}
	assert.InDelta(t, 0.5, ForegroundRatio(img, DefaultAlphaThreshold), 1e-9)
	assert.InDelta(t, 1.0, ForegroundRatio(img, 127), 1e-9)
	assert.Zero(t, ForegroundRatio(nil, DefaultAlphaThreshold))
}
