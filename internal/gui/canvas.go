// Image panes showing the source and the background-free result
package gui

import (
	"image"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"

	"image-background-remover/internal/preview"
)

const checkerCell = 8

// ImagePane displays one image scaled to the space it is given. The bitmap
// is re-rendered whenever the pane is laid out at a new size.
type ImagePane struct {
	logger   logrus.FieldLogger
	fallback int
	checker  bool

	card        *widget.Card
	image       *canvas.Image
	placeholder *widget.Label

	source   image.Image
	rendered fyne.Size
}

// NewImagePane creates a titled pane. With checker set, transparent areas
// are drawn over a checkerboard.
func NewImagePane(title, emptyText string, checker bool, fallback int, logger logrus.FieldLogger) *ImagePane {
	pane := &ImagePane{
		logger:   logger,
		fallback: fallback,
		checker:  checker,
	}

	pane.image = canvas.NewImageFromImage(nil)
	pane.image.FillMode = canvas.ImageFillContain
	pane.image.ScaleMode = canvas.ImageScaleSmooth
	pane.image.Hide()

	pane.placeholder = widget.NewLabelWithStyle(emptyText, fyne.TextAlignCenter, fyne.TextStyle{Italic: true})

	body := container.New(&paneLayout{pane: pane}, pane.image, pane.placeholder)
	pane.card = widget.NewCard(title, "", body)
	return pane
}

func (p *ImagePane) GetContainer() fyne.CanvasObject {
	return p.card
}

// SetImage shows img. It must be called on the UI thread.
func (p *ImagePane) SetImage(img image.Image) {
	p.source = img
	p.rendered = fyne.Size{}
	if img == nil {
		p.Clear()
		return
	}
	p.render(p.image.Size())
	p.placeholder.Hide()
	p.image.Show()
}

func (p *ImagePane) Clear() {
	p.source = nil
	p.rendered = fyne.Size{}
	p.image.Image = nil
	p.image.Hide()
	p.image.Refresh()
	p.placeholder.Show()
}

func (p *ImagePane) HasImage() bool {
	return p.source != nil
}

func (p *ImagePane) render(size fyne.Size) {
	if p.source == nil {
		return
	}

	scale := float32(1)
	if app := fyne.CurrentApp(); app != nil {
		if c := app.Driver().CanvasForObject(p.image); c != nil {
			scale = c.Scale()
		}
	}
	w, h := int(size.Width*scale), int(size.Height*scale)

	bitmap := preview.RenderWithFallback(p.source, w, h, p.fallback)
	if p.checker {
		bitmap = preview.Checkerboard(bitmap, checkerCell)
	}

	p.logger.WithFields(logrus.Fields{
		"box_width":  w,
		"box_height": h,
		"width":      bitmap.Bounds().Dx(),
		"height":     bitmap.Bounds().Dy(),
	}).Debug("Rendered preview")

	p.image.Image = bitmap
	p.image.Refresh()
	p.rendered = size
}

// paneLayout stretches every object over the pane and re-renders the image
// when the available size changes.
type paneLayout struct {
	pane *ImagePane
}

func (l *paneLayout) Layout(objects []fyne.CanvasObject, size fyne.Size) {
	for _, o := range objects {
		o.Move(fyne.NewPos(0, 0))
		o.Resize(size)
	}
	if l.pane.source != nil && size != l.pane.rendered {
		l.pane.render(size)
	}
}

func (l *paneLayout) MinSize(objects []fyne.CanvasObject) fyne.Size {
	return fyne.NewSize(200, 150)
}
