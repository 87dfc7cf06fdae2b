// Main application window wiring the controller to Fyne widgets
package gui

import (
	"context"
	"image"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	fynetooltip "github.com/dweymouth/fyne-tooltip"
	"github.com/sirupsen/logrus"

	"image-background-remover/internal/config"
	"image-background-remover/internal/core"
	"image-background-remover/internal/io"
	"image-background-remover/internal/matting"
)

// shutdownGrace bounds how long closing the window waits for a running
// model call after cancelling it.
const shutdownGrace = 3 * time.Second

// Application is the main window. It implements core.View.
type Application struct {
	app    fyne.App
	window fyne.Window
	logger logrus.FieldLogger
	cfg    *config.Config

	ctx    context.Context
	cancel context.CancelFunc

	// Core components
	document   *core.Document
	loader     *io.ImageLoader
	remover    *matting.Invoker
	controller *core.Controller

	// GUI components
	toolbar     *Toolbar
	menuHandler *MenuHandler
	original    *ImagePane
	result      *ImagePane
	statusLabel *widget.Label

	mainContent *container.Split
}

func NewApplication(app fyne.App, cfg *config.Config, remover *matting.Invoker, logger logrus.FieldLogger) *Application {
	window := app.NewWindow(appName)
	window.Resize(fyne.NewSize(1200, 760))
	window.CenterOnScreen()

	ctx, cancel := context.WithCancel(context.Background())

	appInstance := &Application{
		app:     app,
		window:  window,
		logger:  logger,
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		remover: remover,
	}

	appInstance.initializeCore()
	appInstance.initializeGUI()
	appInstance.setupLayout()
	appInstance.setupCallbacks()

	appInstance.controller.Start()
	return appInstance
}

func (a *Application) initializeCore() {
	a.document = core.NewDocument(a.cfg.StartDir)
	a.loader = io.NewImageLoader(a.logger, a.cfg.Formats)
	a.controller = core.NewController(a.document, a.loader, a.remover, a, fyne.Do, a.logger)
}

func (a *Application) initializeGUI() {
	a.toolbar = NewToolbar()
	a.menuHandler = NewMenuHandler(a.ctx, a.window, a.controller, a.loader, a.remover.ModelName(), a.logger)
	a.original = NewImagePane("Original", "Select an image to begin", false, a.cfg.PreviewFallback, a.logger)
	a.result = NewImagePane("Result", "No result yet", true, a.cfg.PreviewFallback, a.logger)
	a.statusLabel = widget.NewLabel(core.StatusReady)
}

func (a *Application) setupLayout() {
	a.mainContent = container.NewHSplit(
		a.original.GetContainer(),
		a.result.GetContainer(),
	)
	a.mainContent.SetOffset(0.5)

	content := container.NewBorder(
		container.NewVBox(a.toolbar.GetContainer(), widget.NewSeparator()),
		container.NewVBox(widget.NewSeparator(), a.statusLabel),
		nil,
		nil,
		container.NewPadded(a.mainContent),
	)

	a.window.SetMainMenu(a.menuHandler.GetMainMenu())
	a.window.SetContent(fynetooltip.AddWindowToolTipLayer(content, a.window.Canvas()))
}

func (a *Application) setupCallbacks() {
	a.toolbar.SetCallbacks(
		a.menuHandler.openImage,
		a.menuHandler.processImage,
		a.menuHandler.saveImage,
		a.menuHandler.showAbout,
	)
	a.menuHandler.RegisterShortcuts(a.window.Canvas())
}

// SetStatus implements core.View.
func (a *Application) SetStatus(text string) {
	a.statusLabel.SetText(text)
}

// SetActions implements core.View.
func (a *Application) SetActions(actions core.Actions) {
	a.toolbar.SetActions(actions)
	a.menuHandler.SetActions(actions)
}

// ShowSource implements core.View.
func (a *Application) ShowSource(img image.Image) {
	a.original.SetImage(img)
}

// ShowResult implements core.View.
func (a *Application) ShowResult(img image.Image) {
	a.result.SetImage(img)
}

// ClearResult implements core.View.
func (a *Application) ClearResult() {
	a.result.Clear()
}

// ShowError implements core.View.
func (a *Application) ShowError(title string, err error) {
	a.logger.WithError(err).Debug(title)
	dialog.ShowError(err, a.window)
}

// ShowInfo implements core.View.
func (a *Application) ShowInfo(title, message string) {
	a.logger.WithField("message", message).Debug(title)
	dialog.ShowInformation(title, message, a.window)
}

func (a *Application) ShowAndRun() {
	a.logger.Info("Showing main application window")

	a.window.SetCloseIntercept(func() {
		a.cleanup()
		a.app.Quit()
	})

	a.window.ShowAndRun()
}

func (a *Application) cleanup() {
	a.logger.Info("Cleaning up application resources")
	a.cancel()

	done := make(chan struct{})
	go func() {
		a.controller.Wait()
		close(done)
	}()

	select {
	case <-done:
		if err := a.remover.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to release matting model")
		}
	case <-time.After(shutdownGrace):
		a.logger.Warn("Background removal still running at shutdown")
	}
	a.document.Clear()
}
