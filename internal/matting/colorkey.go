package matting

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/cenkalti/dominantcolor"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"

	imgio "image-background-remover/internal/io"
)

const (
	borderWidth     = 4
	maxKeyColors    = 3
	minKeyWeight    = 0.2
	borderClusters  = 4
	defaultColorTol = 0.12

	flatBorderSpread = 6

	// alpha is memoised per colour cell of cellBits per channel
	cellBits  = 5
	cellShift = 8 - cellBits
	cellCount = 1 << (3 * cellBits)
)

// ColorKeyModel is an offline fallback that keys out the colours dominating
// the image border. It suits product shots on plain backdrops and needs no
// external runtime.
type ColorKeyModel struct {
	tolerance float64
}

// NewColorKeyModel returns a keyer. Pixels within tolerance (CIE Lab
// distance) of a border colour become transparent; the alpha ramps up to
// opaque at twice the tolerance.
func NewColorKeyModel(tolerance float64) *ColorKeyModel {
	if tolerance <= 0 {
		tolerance = defaultColorTol
	}
	return &ColorKeyModel{tolerance: tolerance}
}

func (m *ColorKeyModel) Name() string { return "colorkey" }

func (m *ColorKeyModel) Remove(ctx context.Context, data []byte) ([]byte, error) {
	if _, _, err := imgio.CheckHeader(data); err != nil {
		return nil, fmt.Errorf("colorkey input: %w", err)
	}
	decoded, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("colorkey input: %w", err)
	}
	img := imaging.Clone(decoded)
	table := newAlphaTable(m, borderKeyColors(img))

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	for y := 0; y < h; y++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for x := 0; x < w; x++ {
			i := y*img.Stride + x*4
			a := table.lookup(img.Pix[i], img.Pix[i+1], img.Pix[i+2])
			img.Pix[i+3] = uint8(uint16(img.Pix[i+3]) * uint16(a) / 255)
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *ColorKeyModel) alphaFor(c colorful.Color, keys []colorful.Color) uint8 {
	d := math.Inf(1)
	for _, k := range keys {
		d = math.Min(d, c.DistanceLab(k))
	}
	switch {
	case d <= m.tolerance:
		return 0
	case d >= 2*m.tolerance:
		return 255
	default:
		return uint8(math.Round(255 * (d - m.tolerance) / m.tolerance))
	}
}

// alphaTable memoises alphaFor over a fixed grid of colour cells, each
// evaluated at its centre.
type alphaTable struct {
	model    *ColorKeyModel
	keys     []colorful.Color
	alpha    []uint8
	done     []bool
	computed int
}

func newAlphaTable(m *ColorKeyModel, keys []colorful.Color) *alphaTable {
	return &alphaTable{
		model: m,
		keys:  keys,
		alpha: make([]uint8, cellCount),
		done:  make([]bool, cellCount),
	}
}

func (t *alphaTable) lookup(r, g, b uint8) uint8 {
	cr, cg, cb := int(r>>cellShift), int(g>>cellShift), int(b>>cellShift)
	k := cr<<(2*cellBits) | cg<<cellBits | cb
	if t.done[k] {
		return t.alpha[k]
	}
	centre := func(c int) float64 {
		return float64(c<<cellShift|1<<(cellShift-1)) / 255
	}
	a := t.model.alphaFor(colorful.Color{R: centre(cr), G: centre(cg), B: centre(cb)}, t.keys)
	t.alpha[k], t.done[k] = a, true
	t.computed++
	return a
}

// borderKeyColors returns the mean border colour followed by the heaviest
// border clusters.
func borderKeyColors(img *image.NRGBA) []colorful.Color {
	strip := borderStrip(img)
	if strip == nil {
		return nil
	}

	var sr, sg, sb float64
	n := float64(len(strip.Pix) / 4)
	for i := 0; i < len(strip.Pix); i += 4 {
		sr += float64(strip.Pix[i])
		sg += float64(strip.Pix[i+1])
		sb += float64(strip.Pix[i+2])
	}
	mean := [3]float64{sr / n, sg / n, sb / n}
	keys := []colorful.Color{{R: mean[0] / 255, G: mean[1] / 255, B: mean[2] / 255}}

	// a flat border is fully described by its mean
	flat := true
	for i := 0; i < len(strip.Pix) && flat; i += 4 {
		for c := 0; c < 3; c++ {
			if math.Abs(float64(strip.Pix[i+c])-mean[c]) > flatBorderSpread {
				flat = false
				break
			}
		}
	}
	if flat {
		return keys
	}

	clusters := dominantcolor.FindWeight(strip, borderClusters)
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].Weight > clusters[j].Weight })
	for _, c := range clusters {
		if len(keys) >= maxKeyColors {
			break
		}
		if c.Weight < minKeyWeight || math.IsNaN(c.Weight) {
			continue
		}
		col, _ := colorful.MakeColor(c.RGBA)
		keys = append(keys, col.Clamped())
	}
	return keys
}

// borderStrip gathers the outer ring of pixels into a roughly square image.
func borderStrip(img *image.NRGBA) *image.NRGBA {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w == 0 || h == 0 {
		return nil
	}
	bw := min(borderWidth, (min(w, h)+1)/2)

	var pixels []color.NRGBA
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x >= bw && x < w-bw && y >= bw && y < h-bw {
				continue
			}
			pixels = append(pixels, img.NRGBAAt(x, y))
		}
	}

	side := int(math.Ceil(math.Sqrt(float64(len(pixels)))))
	rows := (len(pixels) + side - 1) / side
	strip := image.NewNRGBA(image.Rect(0, 0, side, rows))
	for i := range side * rows {
		strip.SetNRGBA(i%side, i/side, pixels[i%len(pixels)])
	}
	return strip
}
