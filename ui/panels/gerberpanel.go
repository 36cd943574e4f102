package panels

import (
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"maskforge/internal/app"
	"maskforge/internal/mask"
	"maskforge/internal/render"
	"maskforge/ui/prefs"
)

const (
	prefKeyPCBWidth     = "pcbWidthMM"
	prefKeyPCBHeight    = "pcbHeightMM"
	prefKeyGerberMirror = "gerberMirror"
	prefKeyGerberInvert = "gerberInvert"
)

// GerberPanel renders a Gerber layer into the PCB mask.
type GerberPanel struct {
	state  *app.State
	prefs  *prefs.Prefs
	runner *render.Runner
	window fyne.Window

	container   fyne.CanvasObject
	fileLabel   *widget.Label
	widthEntry  *widget.Entry
	heightEntry *widget.Entry
	mirrorCheck *widget.Check
	invertCheck *widget.Check
	strictCheck *widget.Check
	prepareBtn  *widget.Button

	path string
}

// NewGerberPanel creates the Gerber input panel.
func NewGerberPanel(state *app.State, p *prefs.Prefs, runner *render.Runner) *GerberPanel {
	gp := &GerberPanel{
		state:  state,
		prefs:  p,
		runner: runner,
	}

	gp.fileLabel = widget.NewLabel("No layer loaded")
	gp.fileLabel.Wrapping = fyne.TextWrapWord

	defaults := state.PCB()
	gp.widthEntry = widget.NewEntry()
	gp.widthEntry.SetText(formatMM(p.FloatWithFallback(prefKeyPCBWidth, defaults.WidthMM)))
	gp.heightEntry = widget.NewEntry()
	gp.heightEntry.SetText(formatMM(p.FloatWithFallback(prefKeyPCBHeight, defaults.HeightMM)))

	gp.mirrorCheck = widget.NewCheck("Mirror (bottom-side exposure)", nil)
	gp.mirrorCheck.SetChecked(p.Bool(prefKeyGerberMirror, defaults.Mirror))
	gp.invertCheck = widget.NewCheck("Invert (negative process)", nil)
	gp.invertCheck.SetChecked(p.Bool(prefKeyGerberInvert, defaults.Invert))
	gp.strictCheck = widget.NewCheck("Fail if layer exceeds board", nil)

	openBtn := widget.NewButton("Open Gerber...", gp.onOpen)
	gp.prepareBtn = widget.NewButton("Prepare Mask", gp.onPrepare)
	gp.prepareBtn.Disable()

	form := widget.NewForm(
		widget.NewFormItem("Board width (mm)", gp.widthEntry),
		widget.NewFormItem("Board height (mm)", gp.heightEntry),
	)

	gp.container = container.NewVBox(
		openBtn,
		gp.fileLabel,
		widget.NewSeparator(),
		form,
		gp.mirrorCheck,
		gp.invertCheck,
		gp.strictCheck,
		widget.NewSeparator(),
		gp.prepareBtn,
	)
	return gp
}

// Container returns the panel container.
func (gp *GerberPanel) Container() fyne.CanvasObject {
	return gp.container
}

// SetWindow sets the parent window for dialogs.
func (gp *GerberPanel) SetWindow(w fyne.Window) {
	gp.window = w
}

func (gp *GerberPanel) onOpen() {
	openFile(gp.window, gp.prefs,
		[]string{".gbr", ".ger", ".gtl", ".gbl", ".gts", ".gbs", ".gko"},
		func(path string) {
			gp.path = path
			gp.fileLabel.SetText(filepath.Base(path))
			gp.prepareBtn.Enable()
		})
}

func (gp *GerberPanel) onPrepare() {
	placement, err := gp.placement()
	if err != nil {
		dialog.ShowError(err, gp.window)
		return
	}
	if err := gp.state.SetPCB(placement); err != nil {
		dialog.ShowError(err, gp.window)
		return
	}
	gp.prefs.SetFloat(prefKeyPCBWidth, placement.WidthMM)
	gp.prefs.SetFloat(prefKeyPCBHeight, placement.HeightMM)
	gp.prefs.SetBool(prefKeyGerberMirror, placement.Mirror)
	gp.prefs.SetBool(prefKeyGerberInvert, placement.Invert)

	path := gp.path
	req := render.GerberRequest{
		Path:      path,
		Geometry:  gp.state.Geometry(),
		Placement: placement,
	}
	err = gp.runner.Do(
		func() (*image.Gray, error) { return render.RenderGerber(req) },
		func(res render.Result) {
			if res.Err != nil {
				gp.state.Status("Gerber: " + res.Err.Error())
				return
			}
			gp.state.SetMask(res.Image, path)
		})
	if errors.Is(err, render.ErrBusy) {
		gp.state.Status("Already preparing a mask, wait for it to finish")
		return
	}
	gp.state.Status("Rendering " + filepath.Base(path) + "...")
}

func (gp *GerberPanel) placement() (mask.PCBPlacement, error) {
	width, err := strconv.ParseFloat(gp.widthEntry.Text, 64)
	if err != nil {
		return mask.PCBPlacement{}, fmt.Errorf("board width: %w", err)
	}
	height, err := strconv.ParseFloat(gp.heightEntry.Text, 64)
	if err != nil {
		return mask.PCBPlacement{}, fmt.Errorf("board height: %w", err)
	}
	overflow := mask.OverflowClip
	if gp.strictCheck.Checked {
		overflow = mask.OverflowError
	}
	return mask.PCBPlacement{
		WidthMM:  width,
		HeightMM: height,
		Mirror:   gp.mirrorCheck.Checked,
		Invert:   gp.invertCheck.Checked,
		Overflow: overflow,
	}, nil
}

func formatMM(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
