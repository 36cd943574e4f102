package panels

import (
	"errors"
	"image"
	"path/filepath"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"maskforge/internal/app"
	"maskforge/internal/gdsii"
	"maskforge/internal/render"
	"maskforge/ui/prefs"
)

// GDSPanel renders one layer of one GDSII cell into the dual-circle mask.
type GDSPanel struct {
	state  *app.State
	prefs  *prefs.Prefs
	runner *render.Runner
	window fyne.Window

	container   fyne.CanvasObject
	fileLabel   *widget.Label
	cellSelect  *widget.Select
	layerSelect *widget.Select
	prepareBtn  *widget.Button

	path string
	lib  *gdsii.Library
}

// NewGDSPanel creates the GDSII input panel.
func NewGDSPanel(state *app.State, p *prefs.Prefs, runner *render.Runner) *GDSPanel {
	gp := &GDSPanel{
		state:  state,
		prefs:  p,
		runner: runner,
	}

	gp.fileLabel = widget.NewLabel("No stream loaded")
	gp.fileLabel.Wrapping = fyne.TextWrapWord

	gp.cellSelect = widget.NewSelect(nil, nil)
	gp.cellSelect.PlaceHolder = "Cell"
	gp.layerSelect = widget.NewSelect(nil, nil)
	gp.layerSelect.PlaceHolder = "Layer"

	openBtn := widget.NewButton("Open GDSII...", gp.onOpen)
	gp.prepareBtn = widget.NewButton("Prepare Mask", gp.onPrepare)
	gp.prepareBtn.Disable()

	form := widget.NewForm(
		widget.NewFormItem("Cell", gp.cellSelect),
		widget.NewFormItem("Layer", gp.layerSelect),
	)

	gp.container = container.NewVBox(
		openBtn,
		gp.fileLabel,
		widget.NewSeparator(),
		form,
		widget.NewSeparator(),
		gp.prepareBtn,
	)
	return gp
}

// Container returns the panel container.
func (gp *GDSPanel) Container() fyne.CanvasObject {
	return gp.container
}

// SetWindow sets the parent window for dialogs.
func (gp *GDSPanel) SetWindow(w fyne.Window) {
	gp.window = w
}

func (gp *GDSPanel) onOpen() {
	openFile(gp.window, gp.prefs, []string{".gds", ".gdsii", ".gds2"},
		func(path string) {
			lib, err := gdsii.Load(path)
			if err != nil {
				dialog.ShowError(err, gp.window)
				return
			}
			gp.path = path
			gp.lib = lib
			gp.fileLabel.SetText(filepath.Base(path))

			cells := lib.Cells()
			gp.cellSelect.Options = cells
			if len(cells) > 0 {
				gp.cellSelect.SetSelected(cells[0])
			}

			layers := lib.Layers()
			names := make([]string, len(layers))
			for i, ly := range layers {
				names[i] = strconv.Itoa(ly)
			}
			gp.layerSelect.Options = names
			if len(names) > 0 {
				gp.layerSelect.SetSelected(names[0])
			}

			gp.prepareBtn.Enable()
		})
}

func (gp *GDSPanel) onPrepare() {
	if gp.lib == nil {
		return
	}
	layer, err := strconv.Atoi(gp.layerSelect.Selected)
	if err != nil {
		dialog.ShowError(errors.New("select a layer first"), gp.window)
		return
	}

	path := gp.path
	req := render.GDSRequest{
		Library:  gp.lib,
		Cell:     gp.cellSelect.Selected,
		Layer:    layer,
		Geometry: gp.state.Geometry(),
		Circles:  gp.state.Circles(),
	}
	err = gp.runner.Do(
		func() (*image.Gray, error) { return render.RenderGDS(req) },
		func(res render.Result) {
			if res.Err != nil {
				gp.state.Status("GDSII: " + res.Err.Error())
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
