// Package mainwindow provides the main application window.
package mainwindow

import (
	"fmt"
	"image"
	"log"
	"path/filepath"
	"strconv"
	"strings"

	"fyne.io/fyne/v2"
	fynecanvas "fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"maskforge/internal/app"
	"maskforge/internal/display"
	"maskforge/internal/render"
	"maskforge/internal/version"
	"maskforge/ui/panels"
	"maskforge/ui/prefs"
)

const (
	prefKeyPixelWidth  = "panelPixelWidth"
	prefKeyPixelHeight = "panelPixelHeight"
	prefKeyWidthMM     = "panelWidthMM"
	prefKeyHeightMM    = "panelHeightMM"
)

// MainWindow is the primary application window: input panels on the left, a
// live mask preview on the right.
type MainWindow struct {
	fyne.Window
	app    fyne.App
	state  *app.State
	prefs  *prefs.Prefs
	runner *render.Runner

	preview   *fynecanvas.Image
	geomLabel *widget.Label
	statusBar *widget.Label
	saveBtn   *widget.Button
	bitmapTab *panels.BitmapPanel
	gerberTab *panels.GerberPanel
	gdsTab    *panels.GDSPanel
}

// New creates the main window.
func New(fyneApp fyne.App, state *app.State, p *prefs.Prefs) *MainWindow {
	mw := &MainWindow{
		Window: fyneApp.NewWindow("Maskforge"),
		app:    fyneApp,
		state:  state,
		prefs:  p,
		runner: &render.Runner{},
	}

	mw.restoreGeometry()
	mw.setupUI()
	mw.setupMenus()
	mw.setupEventHandlers()

	mw.Resize(fyne.NewSize(1200, 620))
	return mw
}

// restoreGeometry applies a persisted panel geometry, if any.
func (mw *MainWindow) restoreGeometry() {
	stock := display.Default
	geom := display.Geometry{
		PixelWidth:  mw.prefs.IntWithFallback(prefKeyPixelWidth, stock.PixelWidth),
		PixelHeight: mw.prefs.IntWithFallback(prefKeyPixelHeight, stock.PixelHeight),
		WidthMM:     mw.prefs.FloatWithFallback(prefKeyWidthMM, stock.WidthMM),
		HeightMM:    mw.prefs.FloatWithFallback(prefKeyHeightMM, stock.HeightMM),
	}
	if err := mw.state.SetGeometry(geom); err != nil {
		log.Printf("Ignoring saved panel geometry: %v", err)
	}
}

// setupUI creates the main layout.
func (mw *MainWindow) setupUI() {
	mw.bitmapTab = panels.NewBitmapPanel(mw.state, mw.prefs, mw.runner)
	mw.gerberTab = panels.NewGerberPanel(mw.state, mw.prefs, mw.runner)
	mw.gdsTab = panels.NewGDSPanel(mw.state, mw.prefs, mw.runner)
	mw.bitmapTab.SetWindow(mw.Window)
	mw.gerberTab.SetWindow(mw.Window)
	mw.gdsTab.SetWindow(mw.Window)

	tabs := container.NewAppTabs(
		container.NewTabItem("Gerber", mw.gerberTab.Container()),
		container.NewTabItem("GDSII", mw.gdsTab.Container()),
		container.NewTabItem("Bitmap", mw.bitmapTab.Container()),
	)

	mw.preview = fynecanvas.NewImageFromImage(nil)
	mw.preview.FillMode = fynecanvas.ImageFillContain
	mw.preview.SetMinSize(fyne.NewSize(640, 246))

	mw.geomLabel = widget.NewLabel(describeGeometry(mw.state.Geometry()))
	mw.statusBar = widget.NewLabel("Ready")
	mw.saveBtn = widget.NewButton("Save PNG...", mw.onSaveMask)
	mw.saveBtn.Disable()

	previewArea := container.NewBorder(
		container.NewPadded(mw.geomLabel),  // top
		container.NewPadded(mw.saveBtn),    // bottom
		nil, nil,
		mw.preview, // center
	)

	split := container.NewHSplit(tabs, previewArea)
	split.SetOffset(0.3)

	content := container.NewBorder(
		nil,                               // top
		container.NewPadded(mw.statusBar), // bottom
		nil, nil,
		split, // center
	)
	mw.SetContent(content)
}

// setupMenus creates the application menus.
func (mw *MainWindow) setupMenus() {
	fileMenu := fyne.NewMenu("File",
		fyne.NewMenuItem("Save Mask As...", mw.onSaveMask),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Quit", func() { mw.app.Quit() }),
	)
	editMenu := fyne.NewMenu("Edit",
		fyne.NewMenuItem("Display Geometry...", mw.onEditGeometry),
	)
	helpMenu := fyne.NewMenu("Help",
		fyne.NewMenuItem("About", mw.onAbout),
	)
	mw.SetMainMenu(fyne.NewMainMenu(fileMenu, editMenu, helpMenu))
}

// setupEventHandlers registers for application events.
func (mw *MainWindow) setupEventHandlers() {
	mw.state.On(app.EventMaskRendered, func(data interface{}) {
		img, ok := data.(*image.Gray)
		if !ok || img == nil {
			return
		}
		mw.preview.Image = img
		mw.preview.Refresh()
		mw.saveBtn.Enable()
		mw.updateStatus(fmt.Sprintf("Mask ready: %dx%d px from %s",
			img.Bounds().Dx(), img.Bounds().Dy(), filepath.Base(mw.state.SourcePath())))
	})

	mw.state.On(app.EventGeometryChanged, func(data interface{}) {
		if geom, ok := data.(display.Geometry); ok {
			mw.geomLabel.SetText(describeGeometry(geom))
		}
	})

	mw.state.On(app.EventStatus, func(data interface{}) {
		if text, ok := data.(string); ok {
			mw.updateStatus(text)
		}
	})
}

// updateStatus updates the status bar text.
func (mw *MainWindow) updateStatus(text string) {
	mw.statusBar.SetText(text)
}

// SavePreferences writes the preferences file; failures are logged, not
// fatal.
func (mw *MainWindow) SavePreferences() {
	if err := mw.prefs.Save(); err != nil {
		log.Printf("Saving preferences: %v", err)
	}
}

func (mw *MainWindow) onSaveMask() {
	img := mw.state.Mask()
	if img == nil {
		mw.updateStatus("Nothing to save, prepare a mask first")
		return
	}

	fd := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil || writer == nil {
			return
		}
		writer.Close()
		path := writer.URI().Path()
		if !strings.EqualFold(filepath.Ext(path), ".png") {
			path += ".png"
		}
		if err := render.SavePNG(path, img); err != nil {
			dialog.ShowError(err, mw.Window)
			return
		}
		mw.updateStatus("Saved " + path)
	}, mw.Window)
	fd.SetFileName(defaultOutputName(mw.state.SourcePath()))
	fd.Show()
}

// defaultOutputName derives the save name from the input file: its stem plus
// a .png extension, or out.png when nothing was rendered from a file.
func defaultOutputName(sourcePath string) string {
	if sourcePath == "" {
		return "out.png"
	}
	base := filepath.Base(sourcePath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".png"
}

func (mw *MainWindow) onEditGeometry() {
	geom := mw.state.Geometry()

	pxW := widget.NewEntry()
	pxW.SetText(strconv.Itoa(geom.PixelWidth))
	pxH := widget.NewEntry()
	pxH.SetText(strconv.Itoa(geom.PixelHeight))
	mmW := widget.NewEntry()
	mmW.SetText(strconv.FormatFloat(geom.WidthMM, 'f', -1, 64))
	mmH := widget.NewEntry()
	mmH.SetText(strconv.FormatFloat(geom.HeightMM, 'f', -1, 64))

	items := []*widget.FormItem{
		widget.NewFormItem("Width (px)", pxW),
		widget.NewFormItem("Height (px)", pxH),
		widget.NewFormItem("Width (mm)", mmW),
		widget.NewFormItem("Height (mm)", mmH),
	}
	dialog.ShowForm("Display Geometry", "Apply", "Cancel", items, func(ok bool) {
		if !ok {
			return
		}
		next, err := parseGeometry(pxW.Text, pxH.Text, mmW.Text, mmH.Text)
		if err == nil {
			err = mw.state.SetGeometry(next)
		}
		if err != nil {
			dialog.ShowError(err, mw.Window)
			return
		}
		mw.prefs.SetInt(prefKeyPixelWidth, next.PixelWidth)
		mw.prefs.SetInt(prefKeyPixelHeight, next.PixelHeight)
		mw.prefs.SetFloat(prefKeyWidthMM, next.WidthMM)
		mw.prefs.SetFloat(prefKeyHeightMM, next.HeightMM)
		mw.updateStatus("Panel geometry updated")
	}, mw.Window)
}

func parseGeometry(pxW, pxH, mmW, mmH string) (display.Geometry, error) {
	var geom display.Geometry
	var err error
	if geom.PixelWidth, err = strconv.Atoi(strings.TrimSpace(pxW)); err != nil {
		return geom, fmt.Errorf("width (px): %w", err)
	}
	if geom.PixelHeight, err = strconv.Atoi(strings.TrimSpace(pxH)); err != nil {
		return geom, fmt.Errorf("height (px): %w", err)
	}
	if geom.WidthMM, err = strconv.ParseFloat(strings.TrimSpace(mmW), 64); err != nil {
		return geom, fmt.Errorf("width (mm): %w", err)
	}
	if geom.HeightMM, err = strconv.ParseFloat(strings.TrimSpace(mmH), 64); err != nil {
		return geom, fmt.Errorf("height (mm): %w", err)
	}
	return geom, nil
}

func describeGeometry(geom display.Geometry) string {
	return fmt.Sprintf("Panel: %dx%d px / %.3fx%.3f mm (%.2f x %.2f px/mm)",
		geom.PixelWidth, geom.PixelHeight, geom.WidthMM, geom.HeightMM,
		geom.PxPerMMX(), geom.PxPerMMY())
}

func (mw *MainWindow) onAbout() {
	dialog.ShowInformation("About Maskforge",
		fmt.Sprintf("Maskforge v%s\n\n"+
			"Photomask generation for LCD/DLP exposure units.\n"+
			"Renders Gerber, GDSII, and bitmap artwork to panel-sized PNGs.\n\n"+
			"Built: %s\n"+
			"Commit: %s",
			version.Version, version.BuildTime, version.GitCommit),
		mw.Window)
}
