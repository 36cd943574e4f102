// Command maskrender renders a photomask PNG from a Gerber layer, a GDSII
// cell, or a bitmap, without the GUI.
package main

import (
	"flag"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"maskforge/internal/display"
	"maskforge/internal/gdsii"
	"maskforge/internal/mask"
	"maskforge/internal/render"
)

func main() {
	in := flag.String("in", "", "Input file (.gbr/.ger, .gds, or a bitmap)")
	out := flag.String("out", "", "Output PNG (default: input stem + .png)")

	pxWidth := flag.Int("px-width", display.Default.PixelWidth, "Panel width in pixels")
	pxHeight := flag.Int("px-height", display.Default.PixelHeight, "Panel height in pixels")
	mmWidth := flag.Float64("mm-width", display.Default.WidthMM, "Panel width in millimeters")
	mmHeight := flag.Float64("mm-height", display.Default.HeightMM, "Panel height in millimeters")

	circleDiam := flag.Float64("circle-diameter", mask.DefaultCircles.DiameterMM, "Inset circle diameter in mm (bitmap, GDSII)")
	circleOffset := flag.Float64("circle-offset", mask.DefaultCircles.OffsetMM, "Inset center offset from the panel edge in mm (bitmap, GDSII)")

	threshold := flag.Int("threshold", 128, "Binarization threshold 0-254 (bitmap)")

	cell := flag.String("cell", "", "Cell to render; empty means the first in the stream (GDSII)")
	layer := flag.Int("layer", -1, "Layer to render; -1 means the lowest (GDSII)")
	list := flag.Bool("list", false, "List cells and layers, render nothing (GDSII)")

	pcbWidth := flag.Float64("pcb-width", mask.DefaultPCB.WidthMM, "Board width in mm (Gerber)")
	pcbHeight := flag.Float64("pcb-height", mask.DefaultPCB.HeightMM, "Board height in mm (Gerber)")
	mirror := flag.Bool("mirror", mask.DefaultPCB.Mirror, "Mirror the board horizontally (Gerber)")
	invert := flag.Bool("invert", false, "Invert board tones (Gerber)")
	strict := flag.Bool("strict", false, "Fail when the layer exceeds the board outline (Gerber)")
	flag.Parse()

	if *in == "" {
		fmt.Println("Usage: maskrender -in <file> [-out <png>] [options]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	geom := display.Geometry{
		PixelWidth:  *pxWidth,
		PixelHeight: *pxHeight,
		WidthMM:     *mmWidth,
		HeightMM:    *mmHeight,
	}
	if err := geom.Validate(); err != nil {
		fatal(err)
	}
	circles := mask.CircleSpec{DiameterMM: *circleDiam, OffsetMM: *circleOffset}

	var img *image.Gray
	var err error
	switch ext := strings.ToLower(filepath.Ext(*in)); ext {
	case ".gds", ".gdsii", ".gds2":
		if *list {
			listGDS(*in)
			return
		}
		img, err = renderGDS(*in, *cell, *layer, geom, circles)
	case ".gbr", ".ger", ".gtl", ".gbl", ".gts", ".gbs", ".gko":
		img, err = render.RenderGerber(render.GerberRequest{
			Path:     *in,
			Geometry: geom,
			Placement: mask.PCBPlacement{
				WidthMM:  *pcbWidth,
				HeightMM: *pcbHeight,
				Mirror:   *mirror,
				Invert:   *invert,
				Overflow: overflowPolicy(*strict),
			},
		})
	default:
		if *threshold < 0 || *threshold > 254 {
			fatal(fmt.Errorf("threshold must be 0-254, got %d", *threshold))
		}
		img, err = render.RenderBitmap(render.BitmapRequest{
			Path:      *in,
			Threshold: uint8(*threshold),
			Geometry:  geom,
			Circles:   circles,
		})
	}
	if err != nil {
		fatal(err)
	}

	dest := *out
	if dest == "" {
		base := filepath.Base(*in)
		dest = strings.TrimSuffix(base, filepath.Ext(base)) + ".png"
	}
	if err := render.SavePNG(dest, img); err != nil {
		fatal(err)
	}
	fmt.Printf("Wrote %s (%dx%d px)\n", dest, img.Bounds().Dx(), img.Bounds().Dy())
}

func renderGDS(path, cell string, layer int, geom display.Geometry, circles mask.CircleSpec) (*image.Gray, error) {
	lib, err := gdsii.Load(path)
	if err != nil {
		return nil, err
	}
	if cell == "" {
		cells := lib.Cells()
		if len(cells) == 0 {
			return nil, fmt.Errorf("%s: stream has no cells", path)
		}
		cell = cells[0]
	}
	if layer < 0 {
		layers := lib.Layers()
		if len(layers) == 0 {
			return nil, fmt.Errorf("%s: stream has no boundary geometry", path)
		}
		layer = layers[0]
	}
	return render.RenderGDS(render.GDSRequest{
		Library:  lib,
		Cell:     cell,
		Layer:    layer,
		Geometry: geom,
		Circles:  circles,
	})
}

func listGDS(path string) {
	lib, err := gdsii.Load(path)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Library: %s (%.6g um per database unit)\n", lib.Name, lib.UnitsUM)
	fmt.Println("Cells:")
	for _, name := range lib.Cells() {
		fmt.Printf("  %s\n", name)
	}
	fmt.Println("Layers with geometry:")
	for _, ly := range lib.Layers() {
		fmt.Printf("  %d\n", ly)
	}
}

func overflowPolicy(strict bool) mask.OverflowPolicy {
	if strict {
		return mask.OverflowError
	}
	return mask.OverflowClip
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "maskrender: %v\n", err)
	os.Exit(1)
}
