package matting

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"github.com/segmentio/ksuid"
	"github.com/sirupsen/logrus"

	imgio "image-background-remover/internal/io"
)

// DefaultAlphaThreshold separates background (alpha below) from foreground.
const DefaultAlphaThreshold = 128

// Invoker runs one model call per image and turns the reply into an
// NRGBA result with the exact dimensions of the source.
type Invoker struct {
	model     Model
	logger    logrus.FieldLogger
	maxSide   int
	feather   float64
	timeout   time.Duration
	threshold uint8
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithMaxInputSide downscales the image sent to the model so its longest
// side is at most n pixels. The returned alpha is scaled back up.
func WithMaxInputSide(n int) Option {
	return func(inv *Invoker) { inv.maxSide = n }
}

// WithFeather blurs the alpha edge with the given gaussian sigma.
func WithFeather(sigma float64) Option {
	return func(inv *Invoker) { inv.feather = sigma }
}

// WithTimeout bounds each model call; zero leaves the model's own limits.
func WithTimeout(d time.Duration) Option {
	return func(inv *Invoker) { inv.timeout = d }
}

// WithAlphaThreshold sets the foreground threshold used for reporting.
func WithAlphaThreshold(t uint8) Option {
	return func(inv *Invoker) { inv.threshold = t }
}

func NewInvoker(model Model, logger logrus.FieldLogger, opts ...Option) *Invoker {
	inv := &Invoker{
		model:     model,
		logger:    logger,
		threshold: DefaultAlphaThreshold,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// ModelName returns the name of the wrapped model.
func (inv *Invoker) ModelName() string {
	return inv.model.Name()
}

// RemoveBackground encodes img as PNG, calls the model once and decodes the
// reply. It never retries.
func (inv *Invoker) RemoveBackground(ctx context.Context, img image.Image) (*image.NRGBA, error) {
	jobID := ksuid.New().String()
	fail := func(err error) (*image.NRGBA, error) {
		return nil, &InferenceError{JobID: jobID, Model: inv.model.Name(), Err: err}
	}
	if img == nil {
		return fail(errNoImage)
	}

	log := inv.logger.WithFields(logrus.Fields{
		"job_id": jobID,
		"model":  inv.model.Name(),
	})

	if inv.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.timeout)
		defer cancel()
	}
	ctx = WithJobID(ctx, jobID)

	src := imaging.Clone(img)
	input := src
	if inv.maxSide > 0 {
		input = resizeWithinMax(src, inv.maxSide)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, input, imaging.PNG); err != nil {
		return fail(fmt.Errorf("encode input: %w", err))
	}

	log.WithFields(logrus.Fields{
		"width":  input.Bounds().Dx(),
		"height": input.Bounds().Dy(),
		"bytes":  buf.Len(),
	}).Info("Starting background removal")

	start := time.Now()
	out, err := inv.model.Remove(ctx, buf.Bytes())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w (%v)", ctxErr, err)
		}
		log.WithError(err).Error("Model call failed")
		return fail(err)
	}
	if len(out) == 0 {
		return fail(errEmptyOutput)
	}

	if _, _, err := imgio.CheckHeader(out); err != nil {
		return fail(fmt.Errorf("decode model output: %w", err))
	}
	decoded, err := imaging.Decode(bytes.NewReader(out))
	if err != nil {
		return fail(fmt.Errorf("decode model output: %w", err))
	}

	result := applyMatte(src, decoded)
	if inv.feather > 0 {
		featherAlpha(result, inv.feather)
	}

	log.WithFields(logrus.Fields{
		"duration":   time.Since(start).Round(time.Millisecond).String(),
		"foreground": fmt.Sprintf("%.1f%%", 100*ForegroundRatio(result, inv.threshold)),
	}).Info("Background removal complete")

	return result, nil
}

// Close releases the model when it holds resources.
func (inv *Invoker) Close() error {
	if c, ok := inv.model.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ForegroundRatio returns the share of pixels whose alpha is at or above threshold.
func ForegroundRatio(img *image.NRGBA, threshold uint8) float64 {
	if img == nil {
		return 0
	}
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return 0
	}
	fg := 0
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+b.Dx()*4]
		for i := 3; i < len(row); i += 4 {
			if row[i] >= threshold {
				fg++
			}
		}
	}
	return float64(fg) / float64(total)
}

// applyMatte returns the model reply as NRGBA when it matches the source
// size; otherwise the reply's alpha is rescaled onto the source pixels.
func applyMatte(src *image.NRGBA, reply image.Image) *image.NRGBA {
	sb, rb := src.Bounds(), reply.Bounds()
	if sb.Dx() == rb.Dx() && sb.Dy() == rb.Dy() {
		return imaging.Clone(reply)
	}

	alpha := extractAlpha(reply)
	scaled, ok := resize.Resize(uint(sb.Dx()), uint(sb.Dy()), alpha, resize.Bilinear).(*image.Gray)
	if !ok {
		scaled = toGray(resize.Resize(uint(sb.Dx()), uint(sb.Dy()), alpha, resize.Bilinear))
	}

	out := imaging.Clone(src)
	for y := 0; y < sb.Dy(); y++ {
		for x := 0; x < sb.Dx(); x++ {
			i := y*out.Stride + x*4 + 3
			m := uint16(scaled.Pix[y*scaled.Stride+x])
			out.Pix[i] = uint8(uint16(out.Pix[i]) * m / 255)
		}
	}
	return out
}

// featherAlpha softens the alpha edge in place.
func featherAlpha(img *image.NRGBA, sigma float64) {
	blurred := imaging.Blur(extractAlpha(img), sigma)
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = blurred.Pix[i-3]
	}
}

func extractAlpha(img image.Image) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			_, _, _, a := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			out.Pix[y*out.Stride+x] = uint8(a >> 8)
		}
	}
	return out
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			r, _, _, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			out.Pix[y*out.Stride+x] = uint8(r >> 8)
		}
	}
	return out
}

// resizeWithinMax shrinks img so its longest side is at most maxSize.
func resizeWithinMax(img *image.NRGBA, maxSize int) *image.NRGBA {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	longest := max(w, h)
	if longest <= maxSize {
		return img
	}

	scale := float64(maxSize) / float64(longest)
	newW := max(1, int(float64(w)*scale))
	newH := max(1, int(float64(h)*scale))

	return imaging.Clone(resize.Resize(uint(newW), uint(newH), img, resize.Lanczos3))
}
