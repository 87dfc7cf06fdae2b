// Menu handler and file dialogs for application actions
package gui

import (
	"context"
	"os"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"

	"image-background-remover/internal/core"
	"image-background-remover/internal/io"
)

const (
	appName    = "Image Background Remover"
	appVersion = "1.0.0"
)

// MenuHandler handles menu and toolbar actions
type MenuHandler struct {
	ctx        context.Context
	window     fyne.Window
	controller *core.Controller
	loader     *io.ImageLoader
	modelName  string
	logger     logrus.FieldLogger

	mainMenu    *fyne.MainMenu
	openItem    *fyne.MenuItem
	processItem *fyne.MenuItem
	saveItem    *fyne.MenuItem
}

func NewMenuHandler(ctx context.Context, window fyne.Window, controller *core.Controller, loader *io.ImageLoader, modelName string, logger logrus.FieldLogger) *MenuHandler {
	return &MenuHandler{
		ctx:        ctx,
		window:     window,
		controller: controller,
		loader:     loader,
		modelName:  modelName,
		logger:     logger,
	}
}

func (mh *MenuHandler) GetMainMenu() *fyne.MainMenu {
	if mh.mainMenu != nil {
		return mh.mainMenu
	}

	mh.openItem = fyne.NewMenuItem("Select Image...", mh.openImage)
	mh.openItem.Shortcut = &desktop.CustomShortcut{KeyName: fyne.KeyO, Modifier: fyne.KeyModifierShortcutDefault}
	mh.processItem = fyne.NewMenuItem("Remove Background", mh.processImage)
	mh.processItem.Disabled = true
	mh.saveItem = fyne.NewMenuItem("Save Result...", mh.saveImage)
	mh.saveItem.Shortcut = &desktop.CustomShortcut{KeyName: fyne.KeyS, Modifier: fyne.KeyModifierShortcutDefault}
	mh.saveItem.Disabled = true

	fileMenu := fyne.NewMenu("File",
		mh.openItem,
		mh.processItem,
		mh.saveItem,
	)

	helpMenu := fyne.NewMenu("Help",
		fyne.NewMenuItem("About", mh.showAbout),
	)

	mh.mainMenu = fyne.NewMainMenu(fileMenu, helpMenu)
	return mh.mainMenu
}

// RegisterShortcuts binds the menu shortcuts on c.
func (mh *MenuHandler) RegisterShortcuts(c fyne.Canvas) {
	for _, item := range []*fyne.MenuItem{mh.openItem, mh.saveItem} {
		if item == nil || item.Shortcut == nil {
			continue
		}
		action := item.Action
		c.AddShortcut(item.Shortcut, func(fyne.Shortcut) { action() })
	}
}

// SetActions mirrors the allowed actions in the menu.
func (mh *MenuHandler) SetActions(actions core.Actions) {
	if mh.mainMenu == nil {
		return
	}
	mh.openItem.Disabled = !actions.Load
	mh.processItem.Disabled = !actions.Process
	mh.saveItem.Disabled = !actions.Save
	mh.mainMenu.Refresh()
}

func (mh *MenuHandler) openImage() {
	if !mh.controller.Actions().Load {
		return
	}
	mh.logger.Info("Opening file dialog for image selection")

	fileDialog := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil {
			mh.showError("File Dialog Error", err)
			return
		}
		if reader == nil {
			return
		}
		path := reader.URI().Path()
		reader.Close()

		// failures are reported through the view
		_ = mh.controller.Load(path)
	}, mh.window)

	fileDialog.SetFilter(storage.NewExtensionFileFilter(mh.loader.FilterExtensions()))
	mh.setLocation(fileDialog)
	fileDialog.Resize(fyne.NewSize(900, 640))
	fileDialog.Show()
}

func (mh *MenuHandler) processImage() {
	if !mh.controller.Actions().Process {
		return
	}
	if err := mh.controller.Process(mh.ctx); err != nil {
		mh.logger.WithError(err).Debug("Process not started")
	}
}

func (mh *MenuHandler) saveImage() {
	if !mh.controller.Actions().Save {
		return
	}
	mh.logger.Info("Opening file dialog for saving the result")

	fileDialog := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil {
			mh.showError("File Dialog Error", err)
			return
		}
		if writer == nil {
			return
		}
		path := writer.URI().Path()
		writer.Close()

		written, _ := mh.controller.Save(path)
		if written != path {
			removeIfEmpty(path, mh.logger)
		}
	}, mh.window)

	fileDialog.SetFileName(mh.controller.SuggestedSaveName())
	fileDialog.SetFilter(storage.NewExtensionFileFilter([]string{".png"}))
	mh.setLocation(fileDialog)
	fileDialog.Resize(fyne.NewSize(900, 640))
	fileDialog.Show()
}

func (mh *MenuHandler) showAbout() {
	content := container.NewVBox(
		widget.NewLabelWithStyle(appName+" "+appVersion, fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		widget.NewSeparator(),
		widget.NewLabel("Removes image backgrounds with a matting model"),
		widget.NewLabel("and saves the subject as a transparent PNG."),
		widget.NewSeparator(),
		widget.NewLabel("Model: "+mh.modelName),
		widget.NewLabel("Formats: "+strings.Join(mh.loader.SupportedFormats(), ", ")),
		widget.NewSeparator(),
		widget.NewLabel("Built with Go and Fyne"),
	)

	aboutDialog := dialog.NewCustom("About", "Close", content, mh.window)
	aboutDialog.Resize(fyne.NewSize(420, 300))
	aboutDialog.Show()
}

// setLocation starts a file dialog in the last used directory.
func (mh *MenuHandler) setLocation(d *dialog.FileDialog) {
	dir := mh.controller.LastDir()
	if dir == "" {
		return
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return
	}
	lister, err := storage.ListerForURI(storage.NewFileURI(dir))
	if err != nil {
		mh.logger.WithError(err).WithField("dir", dir).Debug("Cannot list directory")
		return
	}
	d.SetLocation(lister)
}

func (mh *MenuHandler) showError(title string, err error) {
	mh.logger.WithError(err).Error(title)
	dialog.ShowError(err, mh.window)
}

// removeIfEmpty deletes the placeholder file a save dialog creates when the
// result ended up under a different name.
func removeIfEmpty(path string, logger logrus.FieldLogger) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() != 0 {
		return
	}
	if err := os.Remove(path); err != nil {
		logger.WithError(err).WithField("path", path).Warn("Failed to remove empty placeholder file")
	}
}
