// Controller orchestrating load, background removal and save
package core

import (
	"context"
	"errors"
	"image"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"image-background-remover/internal/io"
)

// Status line texts
const (
	StatusReady      = "Ready"
	StatusProcessing = "Processing... This may take a moment."
	StatusComplete   = "Background removal complete."
	StatusError      = "Error occurred."
)

var (
	ErrNothingToProcess = errors.New("no image loaded")
	ErrNothingToSave    = errors.New("no result to save")
	ErrBusy             = errors.New("background removal already running")
)

// ImageIO loads source images and writes results.
type ImageIO interface {
	Load(path string) (image.Image, error)
	Save(img image.Image, path string) (string, error)
}

// Remover computes a background-free copy of an image.
type Remover interface {
	RemoveBackground(ctx context.Context, img image.Image) (*image.NRGBA, error)
}

// View is the surface the controller drives. All methods are called on the
// UI thread.
type View interface {
	SetStatus(text string)
	SetActions(actions Actions)
	ShowSource(img image.Image)
	ShowResult(img image.Image)
	ClearResult()
	ShowError(title string, err error)
	ShowInfo(title, message string)
}

// Dispatcher runs fn on the UI thread.
type Dispatcher func(fn func())

// Controller owns the Document and runs user actions against it. Load,
// Process and Save are meant to be called from the UI thread; background
// removal runs on its own goroutine and reports back through the
// Dispatcher.
type Controller struct {
	doc      *Document
	images   ImageIO
	remover  Remover
	view     View
	dispatch Dispatcher
	logger   logrus.FieldLogger

	mu   sync.Mutex
	busy bool
	wg   sync.WaitGroup
}

func NewController(doc *Document, images ImageIO, remover Remover, view View, dispatch Dispatcher, logger logrus.FieldLogger) *Controller {
	if dispatch == nil {
		dispatch = func(fn func()) { fn() }
	}
	return &Controller{
		doc:      doc,
		images:   images,
		remover:  remover,
		view:     view,
		dispatch: dispatch,
		logger:   logger,
	}
}

// Start puts the view into its initial state.
func (c *Controller) Start() {
	c.view.SetStatus(StatusReady)
	c.refreshActions()
}

// Load replaces the source image. Any previous result is cleared and Save
// disabled before Load returns. On failure the previous state is kept.
func (c *Controller) Load(path string) error {
	log := c.logger.WithFields(logrus.Fields{"action": "load", "path": path})

	img, err := c.images.Load(path)
	if err == nil {
		_, err = c.doc.SetOriginal(img, path)
	}
	if err != nil {
		log.WithError(err).Error("Failed to load image")
		c.fail("Load Error", err)
		return err
	}

	c.view.ClearResult()
	c.view.ShowSource(img)
	c.view.SetStatus("Loaded: " + filepath.Base(path))
	c.refreshActions()

	meta := c.doc.GetMetadata()
	log.WithFields(logrus.Fields{
		"width":  meta.Width,
		"height": meta.Height,
		"format": meta.Format,
		"size":   meta.Size,
	}).Info("Image loaded")
	return nil
}

// Process starts background removal for the current source. It is a no-op
// returning ErrNothingToProcess without a source and ErrBusy while a
// previous run is in flight.
func (c *Controller) Process(ctx context.Context) error {
	src := c.doc.GetOriginal()
	if src == nil {
		c.logger.Debug("Process requested with no image loaded")
		return ErrNothingToProcess
	}
	if !c.tryBusy() {
		c.logger.Debug("Process requested while busy")
		return ErrBusy
	}

	gen := c.doc.Generation()
	c.view.SetStatus(StatusProcessing)
	c.refreshActions()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		result, err := c.remover.RemoveBackground(ctx, src)
		c.dispatch(func() { c.finishProcess(gen, result, err) })
	}()
	return nil
}

func (c *Controller) finishProcess(gen uint64, result *image.NRGBA, err error) {
	c.setBusy(false)
	defer c.refreshActions()

	log := c.logger.WithFields(logrus.Fields{"action": "process", "generation": gen})

	if gen != c.doc.Generation() {
		log.WithError(err).Info("Discarding result for a replaced image")
		return
	}
	if err == nil {
		err = c.doc.SetProcessed(gen, result)
	}
	if err != nil {
		log.WithError(err).Error("Background removal failed")
		c.fail("Processing Error", err)
		return
	}

	c.view.ShowResult(result)
	c.view.SetStatus(StatusComplete)
	log.Info("Background removed")
}

// Save writes the result as PNG. The written path (with .png appended when
// missing) is returned.
func (c *Controller) Save(path string) (string, error) {
	result := c.doc.GetProcessed()
	if result == nil {
		c.logger.Debug("Save requested with no result")
		return "", ErrNothingToSave
	}
	if c.Busy() {
		return "", ErrBusy
	}

	log := c.logger.WithFields(logrus.Fields{"action": "save", "path": path})

	written, err := c.images.Save(result, path)
	if err != nil {
		log.WithError(err).Error("Failed to save image")
		c.fail("Save Error", err)
		return "", err
	}

	c.doc.SetLastDir(filepath.Dir(written))
	c.view.SetStatus("Saved to: " + written)
	c.view.ShowInfo("Saved", "Image saved successfully to:\n"+written)
	log.WithField("written", written).Info("Result saved")
	return written, nil
}

func (c *Controller) State() State { return c.doc.State() }

func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

func (c *Controller) Actions() Actions {
	busy := c.Busy()
	return Actions{
		Load:    true,
		Process: c.doc.HasImage() && !busy,
		Save:    c.doc.HasProcessed() && !busy,
	}
}

func (c *Controller) LastDir() string { return c.doc.LastDir() }

// SuggestedSaveName proposes a file name for the result of the current source.
func (c *Controller) SuggestedSaveName() string {
	return io.DefaultSaveName(c.doc.GetFilepath())
}

// Wait blocks until in-flight background removal has handed its result to
// the Dispatcher.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) fail(title string, err error) {
	c.view.SetStatus(StatusError)
	c.view.ShowError(title, err)
	c.refreshActions()
}

func (c *Controller) refreshActions() {
	c.view.SetActions(c.Actions())
}

func (c *Controller) tryBusy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return false
	}
	c.busy = true
	return true
}

func (c *Controller) setBusy(busy bool) {
	c.mu.Lock()
	c.busy = busy
	c.mu.Unlock()
}
