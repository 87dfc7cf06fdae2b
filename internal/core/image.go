// Document state shared by the controller and the UI, with thread-safe access
package core

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	ErrStaleResult = errors.New("result belongs to a previous image")
	errNoOriginal  = errors.New("no original image loaded")
)

// Document holds the loaded source image and, once processed, its
// background-free result. The result always belongs to the current source:
// loading a new source clears it and bumps the generation.
type Document struct {
	mu         sync.RWMutex
	original   image.Image
	processed  *image.NRGBA
	filepath   string
	metadata   ImageMetadata
	generation uint64
	lastDir    string
}

// ImageMetadata contains source image information
type ImageMetadata struct {
	Width  int
	Height int
	Format string
	Size   int64 // File size in bytes
}

func NewDocument(startDir string) *Document {
	return &Document{lastDir: startDir}
}

// SetOriginal replaces the source image, drops any result and returns the
// new generation.
func (d *Document) SetOriginal(img image.Image, path string) (uint64, error) {
	if img == nil {
		return 0, fmt.Errorf("cannot set empty image")
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return 0, fmt.Errorf("invalid image dimensions: %dx%d", b.Dx(), b.Dy())
	}

	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.original = img
	d.processed = nil
	d.filepath = path
	d.generation++
	d.metadata = ImageMetadata{
		Width:  b.Dx(),
		Height: b.Dy(),
		Format: getFormatFromPath(path),
		Size:   size,
	}
	if path != "" {
		d.lastDir = filepath.Dir(path)
	}
	return d.generation, nil
}

// SetProcessed stores the result computed for generation gen. Results for
// an older generation are rejected with ErrStaleResult.
func (d *Document) SetProcessed(gen uint64, img *image.NRGBA) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.original == nil {
		return errNoOriginal
	}
	if gen != d.generation {
		return ErrStaleResult
	}
	if img == nil {
		return fmt.Errorf("cannot set empty processed image")
	}
	ob, pb := d.original.Bounds(), img.Bounds()
	if ob.Dx() != pb.Dx() || ob.Dy() != pb.Dy() {
		return fmt.Errorf("result is %dx%d, source is %dx%d", pb.Dx(), pb.Dy(), ob.Dx(), ob.Dy())
	}

	d.processed = img
	return nil
}

// GetOriginal returns the source image or nil. Callers must not modify it.
func (d *Document) GetOriginal() image.Image {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.original
}

// GetProcessed returns the result image or nil. Callers must not modify it.
func (d *Document) GetProcessed() *image.NRGBA {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.processed
}

func (d *Document) HasImage() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.original != nil
}

func (d *Document) HasProcessed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.processed != nil
}

func (d *Document) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	switch {
	case d.processed != nil:
		return StateProcessed
	case d.original != nil:
		return StateLoaded
	default:
		return StateEmpty
	}
}

func (d *Document) Generation() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.generation
}

func (d *Document) GetMetadata() ImageMetadata {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.metadata
}

func (d *Document) GetFilepath() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.filepath
}

// LastDir is the directory of the last loaded or saved file, kept for the
// process lifetime only.
func (d *Document) LastDir() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastDir
}

func (d *Document) SetLastDir(dir string) {
	if dir == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastDir = dir
}

// Clear drops both images. The generation still advances so in-flight
// results are discarded.
func (d *Document) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.original = nil
	d.processed = nil
	d.filepath = ""
	d.metadata = ImageMetadata{}
	d.generation++
}

// getFormatFromPath extracts image format from file path
func getFormatFromPath(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return "unknown"
	}
	return ext
}
