package gui

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/test"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"image-background-remover/internal/config"
	"image-background-remover/internal/core"
	"image-background-remover/internal/matting"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(bytes.NewBuffer(nil))
	return logger
}

func newTestApplication(t *testing.T) *Application {
	t.Helper()
	a := test.NewApp()
	t.Cleanup(a.Quit)

	cfg := config.Default()
	cfg.StartDir = t.TempDir()
	logger := quietLogger()
	remover := matting.NewInvoker(matting.NewColorKeyModel(0), logger)
	return NewApplication(a, cfg, remover, logger)
}

func writeTestPNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+3] = 200, 255
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func TestApplicationStartsReady(t *testing.T) {
	app := newTestApplication(t)

	assert.Equal(t, core.StatusReady, app.statusLabel.Text)
	assert.False(t, app.toolbar.openBtn.Disabled())
	assert.True(t, app.toolbar.processBtn.Disabled())
	assert.True(t, app.toolbar.saveBtn.Disabled())
	assert.True(t, app.menuHandler.processItem.Disabled)
	assert.True(t, app.menuHandler.saveItem.Disabled)
}

func TestApplicationLoadEnablesProcess(t *testing.T) {
	app := newTestApplication(t)
	dir := t.TempDir()
	path := writeTestPNG(t, dir, "cup.png", 120, 80)

	require.NoError(t, app.controller.Load(path))

	assert.Equal(t, "Loaded: cup.png", app.statusLabel.Text)
	assert.False(t, app.toolbar.processBtn.Disabled())
	assert.True(t, app.toolbar.saveBtn.Disabled())
	assert.False(t, app.menuHandler.processItem.Disabled)
	assert.True(t, app.original.HasImage())
	assert.False(t, app.result.HasImage())
	assert.Equal(t, dir, app.controller.LastDir())
}

func TestApplicationLoadFailureShowsError(t *testing.T) {
	app := newTestApplication(t)

	err := app.controller.Load(filepath.Join(t.TempDir(), "missing.png"))
	require.Error(t, err)
	assert.Equal(t, core.StatusError, app.statusLabel.Text)
	assert.True(t, app.toolbar.processBtn.Disabled())
	assert.False(t, app.original.HasImage())
}

func TestImagePaneRendersWithinSize(t *testing.T) {
	test.NewApp()
	pane := NewImagePane("Result", "empty", true, 400, quietLogger())
	w := test.NewWindow(pane.GetContainer())
	defer w.Close()
	w.Resize(fyne.NewSize(300, 300))

	src := image.NewNRGBA(image.Rect(0, 0, 1000, 500))
	src.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	pane.SetImage(src)
	require.True(t, pane.HasImage())

	bitmap, ok := pane.image.Image.(*image.RGBA)
	require.True(t, ok)
	assert.LessOrEqual(t, bitmap.Bounds().Dx(), 1000)
	assert.InDelta(t, float64(bitmap.Bounds().Dx()), 2*float64(bitmap.Bounds().Dy()), 2)

	pane.Clear()
	assert.False(t, pane.HasImage())
	assert.Nil(t, pane.image.Image)
}

func TestToolbarSetActions(t *testing.T) {
	test.NewApp()
	tb := NewToolbar()

	tb.SetActions(core.Actions{Load: true, Process: true, Save: true})
	assert.False(t, tb.processBtn.Disabled())
	assert.False(t, tb.saveBtn.Disabled())

	tb.SetActions(core.Actions{Load: true})
	assert.True(t, tb.processBtn.Disabled())
	assert.True(t, tb.saveBtn.Disabled())
}

func TestRemoveIfEmpty(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "placeholder")
	full := filepath.Join(dir, "keep")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	require.NoError(t, os.WriteFile(full, []byte("data"), 0644))

	removeIfEmpty(empty, quietLogger())
	removeIfEmpty(full, quietLogger())
	removeIfEmpty(filepath.Join(dir, "absent"), quietLogger())

	_, err := os.Stat(empty)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(full)
	assert.NoError(t, err)
}
