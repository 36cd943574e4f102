package panels

import (
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"maskforge/internal/app"
	"maskforge/internal/render"
	"maskforge/ui/prefs"
)

const (
	prefKeyThreshold = "bitmapThreshold"

	// previewDebounce batches slider movement into one render.
	previewDebounce = 200 * time.Millisecond
)

// BitmapPanel renders a raster image into the dual-circle mask with a live
// threshold preview.
type BitmapPanel struct {
	state  *app.State
	prefs  *prefs.Prefs
	runner *render.Runner
	window fyne.Window

	container      fyne.CanvasObject
	fileLabel      *widget.Label
	thresholdLabel *widget.Label
	threshold      *widget.Slider
	prepareBtn     *widget.Button

	mu       sync.Mutex
	path     string
	source   image.Image
	debounce *time.Timer
}

// NewBitmapPanel creates the bitmap input panel.
func NewBitmapPanel(state *app.State, p *prefs.Prefs, runner *render.Runner) *BitmapPanel {
	bp := &BitmapPanel{
		state:  state,
		prefs:  p,
		runner: runner,
	}

	bp.fileLabel = widget.NewLabel("No image loaded")
	bp.fileLabel.Wrapping = fyne.TextWrapWord

	thr := p.IntWithFallback(prefKeyThreshold, 128)
	if thr < 0 || thr > 254 {
		thr = 128
	}
	bp.thresholdLabel = widget.NewLabel(fmt.Sprintf("Threshold: %d", thr))
	bp.threshold = widget.NewSlider(0, 254)
	bp.threshold.Step = 1
	bp.threshold.SetValue(float64(thr))
	bp.threshold.OnChanged = func(v float64) {
		bp.thresholdLabel.SetText(fmt.Sprintf("Threshold: %d", int(v)))
		bp.prefs.SetInt(prefKeyThreshold, int(v))
		bp.scheduleRender()
	}

	openBtn := widget.NewButton("Open Image...", bp.onOpen)
	bp.prepareBtn = widget.NewButton("Prepare Mask", bp.renderNow)
	bp.prepareBtn.Disable()

	bp.container = container.NewVBox(
		openBtn,
		bp.fileLabel,
		widget.NewSeparator(),
		bp.thresholdLabel,
		bp.threshold,
		widget.NewSeparator(),
		bp.prepareBtn,
	)
	return bp
}

// Container returns the panel container.
func (bp *BitmapPanel) Container() fyne.CanvasObject {
	return bp.container
}

// SetWindow sets the parent window for dialogs.
func (bp *BitmapPanel) SetWindow(w fyne.Window) {
	bp.window = w
}

func (bp *BitmapPanel) onOpen() {
	openFile(bp.window, bp.prefs,
		[]string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tiff", ".tif"},
		func(path string) {
			img, err := render.DecodeImage(path)
			if err != nil {
				dialog.ShowError(err, bp.window)
				return
			}
			bp.mu.Lock()
			bp.path = path
			bp.source = img
			bp.mu.Unlock()

			bp.fileLabel.SetText(filepath.Base(path))
			bp.prepareBtn.Enable()
			bp.renderNow()
		})
}

// scheduleRender defers a render so dragging the slider produces one render,
// not one per tick.
func (bp *BitmapPanel) scheduleRender() {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if bp.source == nil {
		return
	}
	if bp.debounce != nil {
		bp.debounce.Stop()
	}
	bp.debounce = time.AfterFunc(previewDebounce, bp.renderNow)
}

func (bp *BitmapPanel) renderNow() {
	bp.mu.Lock()
	src, path := bp.source, bp.path
	bp.mu.Unlock()
	if src == nil {
		return
	}

	req := render.BitmapRequest{
		Source:    src,
		Threshold: uint8(bp.threshold.Value),
		Geometry:  bp.state.Geometry(),
		Circles:   bp.state.Circles(),
	}
	err := bp.runner.Do(
		func() (*image.Gray, error) { return render.RenderBitmap(req) },
		func(res render.Result) {
			if res.Err != nil {
				bp.state.Status("Bitmap: " + res.Err.Error())
				return
			}
			bp.state.SetMask(res.Image, path)
		})
	if errors.Is(err, render.ErrBusy) {
		bp.state.Status("Already preparing a mask, wait for it to finish")
		return
	}
	bp.state.Status("Rendering " + filepath.Base(path) + "...")
}
