// Action bar with the three primary actions and About
package gui

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	ttwidget "github.com/dweymouth/fyne-tooltip/widget"

	"image-background-remover/internal/core"
)

type Toolbar struct {
	container *fyne.Container

	openBtn    *ttwidget.Button
	processBtn *ttwidget.Button
	saveBtn    *ttwidget.Button
	aboutBtn   *ttwidget.Button

	onOpen    func()
	onProcess func()
	onSave    func()
	onAbout   func()
}

func NewToolbar() *Toolbar {
	toolbar := &Toolbar{}
	toolbar.initializeUI()
	return toolbar
}

func newButtonWithTooltip(label string, icon fyne.Resource, tooltip string, tapped func()) *ttwidget.Button {
	btn := ttwidget.NewButtonWithIcon(label, icon, tapped)
	btn.SetToolTip(tooltip)
	return btn
}

func (tb *Toolbar) initializeUI() {
	tb.openBtn = newButtonWithTooltip("Select Image", theme.FolderOpenIcon(),
		"Open a PNG, JPEG, BMP, WebP or other supported image", func() {
			if tb.onOpen != nil {
				tb.onOpen()
			}
		})
	tb.openBtn.Importance = widget.HighImportance

	tb.processBtn = newButtonWithTooltip("Remove Background", theme.ColorPaletteIcon(),
		"Run the matting model on the loaded image", func() {
			if tb.onProcess != nil {
				tb.onProcess()
			}
		})
	tb.processBtn.Disable()

	tb.saveBtn = newButtonWithTooltip("Save Result", theme.DocumentSaveIcon(),
		"Save the result as a PNG with transparency", func() {
			if tb.onSave != nil {
				tb.onSave()
			}
		})
	tb.saveBtn.Disable()

	tb.aboutBtn = newButtonWithTooltip("", theme.InfoIcon(), "About this application", func() {
		if tb.onAbout != nil {
			tb.onAbout()
		}
	})

	tb.container = container.NewHBox(
		tb.openBtn,
		tb.processBtn,
		tb.saveBtn,
		layout.NewSpacer(),
		tb.aboutBtn,
	)
}

func (tb *Toolbar) GetContainer() fyne.CanvasObject {
	return tb.container
}

func (tb *Toolbar) SetCallbacks(onOpen, onProcess, onSave, onAbout func()) {
	tb.onOpen = onOpen
	tb.onProcess = onProcess
	tb.onSave = onSave
	tb.onAbout = onAbout
}

// SetActions enables exactly the allowed actions.
func (tb *Toolbar) SetActions(actions core.Actions) {
	setEnabled(tb.openBtn, actions.Load)
	setEnabled(tb.processBtn, actions.Process)
	setEnabled(tb.saveBtn, actions.Save)
}

func setEnabled(w fyne.Disableable, enabled bool) {
	if enabled {
		w.Enable()
	} else {
		w.Disable()
	}
}
