// Package gerber implements the RS-274X subset the photomask pipeline
// consumes: format/unit declarations, standard apertures (circle, rectangle,
// obround), draw/move/flash operations with linear interpolation, and
// G36/G37 region fills. The engine renders a layer as a binary two-tone
// raster (copper black on white) together with its physical bounding box.
package gerber

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"maskforge/pkg/geometry"
)

// BoundingBox is the physical extent of a layer in board coordinates, where
// Y increases upward. MaxYMM anchors the top edge.
type BoundingBox struct {
	MinXMM   float64
	MaxYMM   float64
	WidthMM  float64
	HeightMM float64
}

// ApertureShape enumerates the standard aperture templates.
type ApertureShape int

const (
	ApertureCircle ApertureShape = iota
	ApertureRect
	ApertureObround
)

// Aperture is a flashing/drawing tool. Dimensions are in millimeters; for a
// circle Width holds the diameter and Height is unused.
type Aperture struct {
	Shape  ApertureShape
	Width  float64
	Height float64
}

// halfExtents returns the half-width and half-height of the aperture's
// bounding rectangle.
func (a Aperture) halfExtents() (float64, float64) {
	if a.Shape == ApertureCircle {
		return a.Width / 2, a.Width / 2
	}
	return a.Width / 2, a.Height / 2
}

// Drawing primitives accumulated during parsing. All coordinates are mm.
type flash struct {
	at    geometry.Point2D
	ap    Aperture
	clear bool
}

type stroke struct {
	from, to geometry.Point2D
	ap       Aperture
	clear    bool
}

type region struct {
	contour geometry.Polygon
	clear   bool
}

// File is a parsed Gerber layer ready for rasterization.
type File struct {
	flashes []flash
	strokes []stroke
	regions []region

	bounds   geometry.Rect
	hasBound bool
}

// ParseFile reads and parses a Gerber file from disk.
func ParseFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("gerber: %w", err)
	}
	defer f.Close()

	parsed, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("gerber: parsing %s: %w", path, err)
	}
	return parsed, nil
}

// Parse reads a Gerber layer from r.
func Parse(r io.Reader) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	p := &parser{file: &File{}, apertures: make(map[int]Aperture), unitScale: 1}
	if err := p.run(string(data)); err != nil {
		return nil, err
	}
	return p.file, nil
}

// Bounds returns the layer's physical bounding box. An empty layer (nothing
// drawn) is a parse/render failure, not a blank success.
func (f *File) Bounds() (BoundingBox, error) {
	if !f.hasBound {
		return BoundingBox{}, fmt.Errorf("layer contains no drawable content")
	}
	return BoundingBox{
		MinXMM:   f.bounds.X,
		MaxYMM:   f.bounds.Y + f.bounds.Height,
		WidthMM:  f.bounds.Width,
		HeightMM: f.bounds.Height,
	}, nil
}

// parser is the RS-274X state machine.
type parser struct {
	file *File

	// Format specification (FS): digits after the decimal point per axis.
	xDecimals int
	yDecimals int
	fsSet     bool

	unitScale float64 // file units to mm (1 for MM, 25.4 for IN)
	unitsSet  bool

	apertures map[int]Aperture
	current   *Aperture

	pos         geometry.Point2D
	clear       bool // LPC polarity
	inRegion    bool
	contour     geometry.Polygon
	contourOpen bool
}

func (p *parser) run(src string) error {
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == '%':
			end := strings.IndexByte(src[i+1:], '%')
			if end < 0 {
				return fmt.Errorf("unterminated extended command at byte %d", i)
			}
			block := src[i+1 : i+1+end]
			for _, stmt := range strings.Split(block, "*") {
				stmt = strings.TrimSpace(stmt)
				if stmt == "" {
					continue
				}
				if err := p.extended(stmt); err != nil {
					return err
				}
			}
			i += end + 2
		case c == '*':
			i++
		case c == '\n' || c == '\r' || c == ' ' || c == '\t':
			i++
		default:
			end := strings.IndexByte(src[i:], '*')
			if end < 0 {
				return fmt.Errorf("unterminated word command at byte %d", i)
			}
			word := strings.TrimSpace(src[i : i+end])
			if word != "" {
				if err := p.word(word); err != nil {
					return err
				}
			}
			i += end + 1
		}
	}
	if p.inRegion {
		return fmt.Errorf("unterminated region (G36 without G37)")
	}
	return nil
}

// extended handles one %-wrapped statement.
func (p *parser) extended(stmt string) error {
	switch {
	case strings.HasPrefix(stmt, "FS"):
		return p.formatSpec(stmt)
	case strings.HasPrefix(stmt, "MO"):
		switch strings.TrimPrefix(stmt, "MO") {
		case "MM":
			p.unitScale = 1
		case "IN":
			p.unitScale = 25.4
		default:
			return fmt.Errorf("unknown unit mode %q", stmt)
		}
		p.unitsSet = true
		return nil
	case strings.HasPrefix(stmt, "ADD"):
		return p.apertureDefine(stmt)
	case strings.HasPrefix(stmt, "AM"):
		return fmt.Errorf("aperture macros (AM) are not supported")
	case strings.HasPrefix(stmt, "SR"):
		return fmt.Errorf("step and repeat (SR) is not supported")
	case strings.HasPrefix(stmt, "LP"):
		switch strings.TrimPrefix(stmt, "LP") {
		case "D":
			p.clear = false
		case "C":
			p.clear = true
		default:
			return fmt.Errorf("unknown polarity %q", stmt)
		}
		return nil
	case strings.HasPrefix(stmt, "IP"):
		if stmt == "IPNEG" {
			return fmt.Errorf("negative image polarity (IPNEG) is not supported")
		}
		return nil
	case strings.HasPrefix(stmt, "TF"), strings.HasPrefix(stmt, "TA"),
		strings.HasPrefix(stmt, "TO"), strings.HasPrefix(stmt, "TD"),
		strings.HasPrefix(stmt, "LN"), strings.HasPrefix(stmt, "IN"),
		strings.HasPrefix(stmt, "OF"), strings.HasPrefix(stmt, "AS"):
		// Attributes and legacy image parameters have no effect on geometry.
		return nil
	default:
		return fmt.Errorf("unsupported extended command %q", stmt)
	}
}

// formatSpec parses FSLAX<n><m>Y<n><m>: absolute coordinates with leading
// zero omission, n integer and m decimal digits per axis.
func (p *parser) formatSpec(stmt string) error {
	xi := strings.IndexByte(stmt, 'X')
	yi := strings.IndexByte(stmt, 'Y')
	if xi < 0 || yi < 0 || yi < xi+3 || yi+3 > len(stmt) {
		return fmt.Errorf("malformed format specification %q", stmt)
	}
	if !strings.Contains(stmt[:xi], "A") {
		return fmt.Errorf("only absolute coordinates are supported (%q)", stmt)
	}
	xd, err := strconv.Atoi(stmt[xi+2 : xi+3])
	if err != nil {
		return fmt.Errorf("malformed format specification %q", stmt)
	}
	yd, err := strconv.Atoi(stmt[yi+2 : yi+3])
	if err != nil {
		return fmt.Errorf("malformed format specification %q", stmt)
	}
	p.xDecimals = xd
	p.yDecimals = yd
	p.fsSet = true
	return nil
}

// apertureDefine parses ADD<code><template>[,<params>].
func (p *parser) apertureDefine(stmt string) error {
	body := strings.TrimPrefix(stmt, "ADD")
	i := 0
	for i < len(body) && body[i] >= '0' && body[i] <= '9' {
		i++
	}
	if i == 0 {
		return fmt.Errorf("malformed aperture definition %q", stmt)
	}
	code, _ := strconv.Atoi(body[:i])
	rest := body[i:]

	template := rest
	var params []float64
	if comma := strings.IndexByte(rest, ','); comma >= 0 {
		template = rest[:comma]
		for _, s := range strings.Split(rest[comma+1:], "X") {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return fmt.Errorf("malformed aperture parameters in %q", stmt)
			}
			params = append(params, v*p.unitScale)
		}
	}

	var ap Aperture
	switch template {
	case "C":
		if len(params) < 1 {
			return fmt.Errorf("circle aperture %d needs a diameter", code)
		}
		ap = Aperture{Shape: ApertureCircle, Width: params[0]}
	case "R":
		if len(params) < 2 {
			return fmt.Errorf("rectangle aperture %d needs width and height", code)
		}
		ap = Aperture{Shape: ApertureRect, Width: params[0], Height: params[1]}
	case "O":
		if len(params) < 2 {
			return fmt.Errorf("obround aperture %d needs width and height", code)
		}
		ap = Aperture{Shape: ApertureObround, Width: params[0], Height: params[1]}
	default:
		return fmt.Errorf("aperture template %q is not supported", template)
	}
	p.apertures[code] = ap
	return nil
}

// word handles one *-terminated function code word.
func (p *parser) word(w string) error {
	switch {
	case strings.HasPrefix(w, "G04"):
		return nil
	case w == "G36":
		p.inRegion = true
		p.contour = nil
		p.contourOpen = false
		return nil
	case w == "G37":
		p.flushContour()
		p.inRegion = false
		return nil
	case w == "M02" || w == "M00":
		return nil
	case w == "G01" || w == "G70" || w == "G71" || w == "G74" || w == "G75" || w == "G90":
		// Linear interpolation / legacy unit and quadrant modes.
		return nil
	case w == "G02" || w == "G03":
		return fmt.Errorf("circular interpolation (%s) is not supported", w)
	case w == "G91":
		return fmt.Errorf("incremental coordinates (G91) are not supported")
	case strings.HasPrefix(w, "G54"):
		w = w[3:]
		fallthrough
	default:
		if strings.HasPrefix(w, "D") {
			code, err := strconv.Atoi(w[1:])
			if err != nil || code < 10 {
				return fmt.Errorf("malformed aperture select %q", w)
			}
			ap, ok := p.apertures[code]
			if !ok {
				return fmt.Errorf("aperture D%d selected before definition", code)
			}
			p.current = &ap
			return nil
		}
		return p.coordinate(w)
	}
}

// coordinate handles words like X1000Y-2000D01, with modal omitted axes.
func (p *parser) coordinate(w string) error {
	if !p.fsSet {
		return fmt.Errorf("coordinate data before format specification: %q", w)
	}

	// A leading G01 may be fused onto the coordinate word; arcs were already
	// rejected in word().
	w = strings.TrimPrefix(w, "G01")

	x, y := p.pos.X, p.pos.Y
	op := -1

	i := 0
	for i < len(w) {
		letter := w[i]
		i++
		start := i
		for i < len(w) && (w[i] == '-' || w[i] == '+' || (w[i] >= '0' && w[i] <= '9')) {
			i++
		}
		if start == i {
			return fmt.Errorf("malformed coordinate word %q", w)
		}
		val, err := strconv.Atoi(w[start:i])
		if err != nil {
			return fmt.Errorf("malformed coordinate word %q", w)
		}
		switch letter {
		case 'X':
			x = p.toMM(val, p.xDecimals)
		case 'Y':
			y = p.toMM(val, p.yDecimals)
		case 'I', 'J':
			// Arc offsets; arcs are rejected at the G-code level.
		case 'D':
			op = val
		default:
			return fmt.Errorf("unexpected %q in coordinate word %q", string(letter), w)
		}
	}

	target := geometry.Point2D{X: x, Y: y}
	switch op {
	case 1:
		if p.inRegion {
			if !p.contourOpen {
				p.contour = append(p.contour, p.pos)
				p.contourOpen = true
			}
			p.contour = append(p.contour, target)
		} else {
			if p.current == nil {
				return fmt.Errorf("draw (D01) before aperture selection")
			}
			p.addStroke(stroke{from: p.pos, to: target, ap: *p.current, clear: p.clear})
		}
	case 2:
		if p.inRegion {
			p.flushContour()
		}
	case 3:
		if p.inRegion {
			return fmt.Errorf("flash (D03) inside a region")
		}
		if p.current == nil {
			return fmt.Errorf("flash (D03) before aperture selection")
		}
		p.addFlash(flash{at: target, ap: *p.current, clear: p.clear})
	case -1:
		// Bare coordinate: modal operation codes are not supported; treat as
		// a move for tolerance with older writers.
	default:
		return fmt.Errorf("unknown operation D%02d", op)
	}
	p.pos = target
	return nil
}

func (p *parser) toMM(raw, decimals int) float64 {
	scale := 1.0
	for i := 0; i < decimals; i++ {
		scale *= 10
	}
	return float64(raw) / scale * p.unitScale
}

func (p *parser) flushContour() {
	if len(p.contour) >= 3 {
		p.file.regions = append(p.file.regions, region{contour: p.contour, clear: p.clear})
		p.grow(p.contour.Bounds())
	}
	p.contour = nil
	p.contourOpen = false
}

func (p *parser) addStroke(s stroke) {
	p.file.strokes = append(p.file.strokes, s)
	hw, hh := s.ap.halfExtents()
	p.grow(geometry.NewRect(s.from.X-hw, s.from.Y-hh, 2*hw, 2*hh))
	p.grow(geometry.NewRect(s.to.X-hw, s.to.Y-hh, 2*hw, 2*hh))
}

func (p *parser) addFlash(f flash) {
	p.file.flashes = append(p.file.flashes, f)
	hw, hh := f.ap.halfExtents()
	p.grow(geometry.NewRect(f.at.X-hw, f.at.Y-hh, 2*hw, 2*hh))
}

func (p *parser) grow(r geometry.Rect) {
	if !p.file.hasBound {
		p.file.bounds = r
		p.file.hasBound = true
		return
	}
	p.file.bounds = p.file.bounds.Union(r)
}
