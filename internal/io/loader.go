// Image loading and saving for the background remover
package io

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// MaxDimension guards against images that would exhaust memory once decoded.
// It is enforced on the header, before any pixel buffer is allocated.
const MaxDimension = 16384

// ImageLoader handles image file operations
type ImageLoader struct {
	logger  logrus.FieldLogger
	formats []string
}

// NewImageLoader returns a loader advertising the given extensions
// (without dots) in open dialogs.
func NewImageLoader(logger logrus.FieldLogger, formats []string) *ImageLoader {
	fs := make([]string, 0, len(formats))
	for _, f := range formats {
		f = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(f), "."))
		if f != "" {
			fs = append(fs, f)
		}
	}
	return &ImageLoader{
		logger:  logger,
		formats: fs,
	}
}

// Load opens and decodes the image at path.
func (il *ImageLoader) Load(path string) (image.Image, error) {
	log := il.logger.WithField("filepath", path)
	log.Debug("Loading image")

	info, err := os.Stat(path)
	if err != nil {
		return nil, &NotFoundError{Path: path, Err: err}
	}
	if info.IsDir() {
		return nil, &NotFoundError{Path: path, Err: errIsDirectory}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &NotFoundError{Path: path, Err: err}
	}

	img, format, err := decode(data, path)
	if err != nil {
		return nil, &DecodeError{Path: path, Format: format, Err: err}
	}
	if err := validate(img); err != nil {
		return nil, &DecodeError{Path: path, Format: format, Err: err}
	}

	b := img.Bounds()
	log.WithFields(logrus.Fields{
		"format": format,
		"width":  b.Dx(),
		"height": b.Dy(),
		"bytes":  len(data),
	}).Info("Image loaded successfully")

	return img, nil
}

// Save encodes img as PNG at path, appending ".png" when missing, and returns
// the path actually written. The PNG is written to a temporary sibling and
// renamed into place so a failed save leaves no partial file behind.
func (il *ImageLoader) Save(img image.Image, path string) (string, error) {
	path = EnsurePNGExtension(path)
	log := il.logger.WithField("filepath", path)
	log.Debug("Saving image")

	if img == nil {
		return "", &WriteError{Path: path, Err: errNilImage}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".bgremover-*.png")
	if err != nil {
		return "", &WriteError{Path: path, Err: err}
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriter(tmp)
	if err := imaging.Encode(w, img, imaging.PNG); err != nil {
		_ = tmp.Close()
		return "", &WriteError{Path: path, Err: fmt.Errorf("encode png: %w", err)}
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return "", &WriteError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return "", &WriteError{Path: path, Err: err}
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return "", &WriteError{Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", &WriteError{Path: path, Err: err}
	}
	committed = true

	b := img.Bounds()
	log.WithFields(logrus.Fields{
		"width":  b.Dx(),
		"height": b.Dy(),
	}).Info("Image saved successfully")

	return path, nil
}

// SupportedFormats returns the configured extensions without dots.
func (il *ImageLoader) SupportedFormats() []string {
	out := make([]string, len(il.formats))
	copy(out, il.formats)
	return out
}

// FilterExtensions returns the configured extensions in dialog filter form (".png").
func (il *ImageLoader) FilterExtensions() []string {
	out := make([]string, 0, len(il.formats))
	for _, f := range il.formats {
		out = append(out, "."+f)
	}
	return out
}

// EnsurePNGExtension appends ".png" unless path already ends with it.
func EnsurePNGExtension(path string) string {
	if strings.HasSuffix(strings.ToLower(path), ".png") {
		return path
	}
	return path + ".png"
}

// DefaultSaveName proposes "<base>-bg.png" for a source file path.
func DefaultSaveName(sourcePath string) string {
	base := filepath.Base(sourcePath)
	if sourcePath == "" || base == "." || base == string(filepath.Separator) {
		return "image-bg.png"
	}
	return strings.TrimSuffix(base, filepath.Ext(base)) + "-bg.png"
}

func decode(data []byte, path string) (image.Image, string, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch {
	case bytes.HasPrefix(data, []byte("%PDF-")):
		return nil, "pdf", fmt.Errorf("%w: pdf pages need an external renderer", ErrUnsupportedFormat)
	case ext == ".svg" || looksLikeSVG(data):
		img, err := decodeSVG(data)
		return img, "svg", err
	}

	_, format, err := CheckHeader(data)
	if err != nil {
		if !errors.Is(err, image.ErrFormat) {
			return nil, format, err
		}
		// Not a Go-registered codec; let OpenCV try (avif, jp2, ppm, ...).
		img, cvErr := decodeOpenCV(data)
		if cvErr != nil {
			return nil, strings.TrimPrefix(ext, "."), fmt.Errorf("%w: %v", ErrUnsupportedFormat, cvErr)
		}
		return img, "opencv", nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, format, err
	}
	return img, format, nil
}

// validate checks an image for basic requirements
func validate(img image.Image) error {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return fmt.Errorf("invalid dimensions: %dx%d", b.Dx(), b.Dy())
	}
	return checkSize(b.Dx(), b.Dy())
}

// CheckHeader reads only the header of data and rejects declared sizes
// above MaxDimension. Errors from image.DecodeConfig are returned as is.
func CheckHeader(data []byte) (image.Config, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return cfg, format, err
	}
	return cfg, format, checkSize(cfg.Width, cfg.Height)
}

func checkSize(w, h int) error {
	if w > MaxDimension || h > MaxDimension {
		return fmt.Errorf("%w: %dx%d (max: %d)", ErrTooLarge, w, h, MaxDimension)
	}
	return nil
}
