// Package gdsii reads GDSII stream files: library and cell structure,
// boundary polygons, and cell references with transforms. It exposes what
// the photomask pipeline needs, flattened per-layer polygon sets in
// micrometers, and treats everything else in the stream as opaque.
package gdsii

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"maskforge/pkg/geometry"
)

// Sentinel errors for the geometry-empty failure taxonomy.
var (
	ErrCellNotFound = errors.New("cell not found")
	ErrNoGeometry   = errors.New("no geometry on layer")
	ErrEmptyCell    = errors.New("cell has no geometry")
)

// GDSII record types (subset).
const (
	recHeader   = 0x00
	recBgnLib   = 0x01
	recLibName  = 0x02
	recUnits    = 0x03
	recEndLib   = 0x04
	recBgnStr   = 0x05
	recStrName  = 0x06
	recEndStr   = 0x07
	recBoundary = 0x08
	recPath     = 0x09
	recSRef     = 0x0A
	recARef     = 0x0B
	recText     = 0x0C
	recLayer    = 0x0D
	recDatatype = 0x0E
	recWidth    = 0x0F
	recXY       = 0x10
	recEndEl    = 0x11
	recSName    = 0x12
	recColRow   = 0x13
	recNode     = 0x15
	recSTrans   = 0x1A
	recMag      = 0x1B
	recAngle    = 0x1C
	recBox      = 0x2D
)

// boundary is one polygon element inside a cell, in database units.
type boundary struct {
	layer    int
	datatype int
	points   []geometry.Point2D
}

// reference is an SREF or AREF element.
type reference struct {
	cell     string
	origin   geometry.Point2D
	reflect  bool
	mag      float64
	angleDeg float64

	// Array lattice (AREF only). Steps are per instance, in database units,
	// already expressed in the parent's coordinate frame.
	isArray          bool
	cols, rows       int
	colStep, rowStep geometry.Point2D
}

// Cell is a named structure: polygons plus references to other cells.
type Cell struct {
	Name       string
	boundaries []boundary
	refs       []reference
	skipped    int // unsupported elements (paths, texts, nodes, boxes)
}

// Library is a loaded GDSII stream.
type Library struct {
	Name string

	// UnitsUM is micrometers per database unit.
	UnitsUM float64

	cells map[string]*Cell
	order []string
}

// Load reads a GDSII stream file from disk.
func Load(path string) (*Library, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("gdsii: %w", err)
	}
	defer f.Close()

	lib, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("gdsii: parsing %s: %w", path, err)
	}
	return lib, nil
}

// Parse reads a GDSII stream from r.
func Parse(r io.Reader) (*Library, error) {
	d := decoder{r: r}
	return d.library()
}

// Cell looks a structure up by name.
func (l *Library) Cell(name string) (*Cell, error) {
	c, ok := l.cells[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCellNotFound, name)
	}
	return c, nil
}

// Cells returns all structure names in stream order.
func (l *Library) Cells() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// Layers returns the sorted set of layer numbers that carry boundary
// geometry anywhere in the library.
func (l *Library) Layers() []int {
	seen := make(map[int]bool)
	for _, c := range l.cells {
		for _, b := range c.boundaries {
			seen[b.layer] = true
		}
	}
	layers := make([]int, 0, len(seen))
	for ly := range seen {
		layers = append(layers, ly)
	}
	sort.Ints(layers)
	return layers
}

// decoder walks the record stream.
type decoder struct {
	r   io.Reader
	buf [8]byte
}

type record struct {
	typ  byte
	data []byte
}

func (d *decoder) next() (record, error) {
	header := d.buf[:4]
	if _, err := io.ReadFull(d.r, header); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return record{}, io.ErrUnexpectedEOF
		}
		return record{}, err
	}
	length := int(binary.BigEndian.Uint16(header[:2]))
	if length < 4 || length%2 != 0 {
		return record{}, fmt.Errorf("invalid record length %d", length)
	}
	rec := record{typ: header[2], data: make([]byte, length-4)}
	if _, err := io.ReadFull(d.r, rec.data); err != nil {
		return record{}, fmt.Errorf("truncated record 0x%02x: %w", rec.typ, err)
	}
	return rec, nil
}

func (d *decoder) library() (*Library, error) {
	rec, err := d.next()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if rec.typ != recHeader {
		return nil, fmt.Errorf("not a GDSII stream (first record 0x%02x)", rec.typ)
	}

	lib := &Library{cells: make(map[string]*Cell)}
	for {
		rec, err := d.next()
		if err != nil {
			return nil, fmt.Errorf("reading library: %w", err)
		}
		switch rec.typ {
		case recBgnLib:
			// Modification timestamps; ignored.
		case recLibName:
			lib.Name = asciiString(rec.data)
		case recUnits:
			if len(rec.data) != 16 {
				return nil, fmt.Errorf("malformed UNITS record")
			}
			metersPerDB := real8(rec.data[8:16])
			if metersPerDB <= 0 {
				return nil, fmt.Errorf("non-positive database unit in UNITS record")
			}
			lib.UnitsUM = metersPerDB * 1e6
		case recBgnStr:
			cell, err := d.structure()
			if err != nil {
				return nil, err
			}
			if _, dup := lib.cells[cell.Name]; dup {
				return nil, fmt.Errorf("duplicate structure %q", cell.Name)
			}
			lib.cells[cell.Name] = cell
			lib.order = append(lib.order, cell.Name)
		case recEndLib:
			if lib.UnitsUM == 0 {
				return nil, fmt.Errorf("missing UNITS record")
			}
			return lib, nil
		default:
			return nil, fmt.Errorf("unexpected record 0x%02x at library level", rec.typ)
		}
	}
}

// structure reads one BGNSTR..ENDSTR block (BGNSTR already consumed).
func (d *decoder) structure() (*Cell, error) {
	cell := &Cell{}
	for {
		rec, err := d.next()
		if err != nil {
			return nil, fmt.Errorf("reading structure %q: %w", cell.Name, err)
		}
		switch rec.typ {
		case recStrName:
			cell.Name = asciiString(rec.data)
		case recEndStr:
			if cell.Name == "" {
				return nil, fmt.Errorf("structure without a name")
			}
			return cell, nil
		case recBoundary:
			b, err := d.boundaryElement()
			if err != nil {
				return nil, fmt.Errorf("in structure %q: %w", cell.Name, err)
			}
			cell.boundaries = append(cell.boundaries, b)
		case recSRef, recARef:
			ref, err := d.referenceElement(rec.typ == recARef)
			if err != nil {
				return nil, fmt.Errorf("in structure %q: %w", cell.Name, err)
			}
			cell.refs = append(cell.refs, ref)
		case recPath, recText, recNode, recBox:
			// TODO: expand PATH elements into outline polygons so wires on a
			// mask layer render without a manual boundary conversion.
			if err := d.skipElement(); err != nil {
				return nil, err
			}
			cell.skipped++
		default:
			return nil, fmt.Errorf("unexpected record 0x%02x in structure %q", rec.typ, cell.Name)
		}
	}
}

// boundaryElement reads records until ENDEL for a BOUNDARY element.
func (d *decoder) boundaryElement() (boundary, error) {
	b := boundary{}
	for {
		rec, err := d.next()
		if err != nil {
			return b, err
		}
		switch rec.typ {
		case recLayer:
			b.layer = int(int16(binary.BigEndian.Uint16(rec.data)))
		case recDatatype:
			b.datatype = int(int16(binary.BigEndian.Uint16(rec.data)))
		case recXY:
			if len(rec.data)%8 != 0 {
				return b, fmt.Errorf("malformed XY record")
			}
			n := len(rec.data) / 8
			b.points = make([]geometry.Point2D, 0, n)
			for i := 0; i < n; i++ {
				x := int32(binary.BigEndian.Uint32(rec.data[i*8:]))
				y := int32(binary.BigEndian.Uint32(rec.data[i*8+4:]))
				b.points = append(b.points, geometry.Point2D{X: float64(x), Y: float64(y)})
			}
			// The stream repeats the first vertex as the last; the implicit
			// closing edge makes it redundant.
			if n > 1 && b.points[0] == b.points[n-1] {
				b.points = b.points[:n-1]
			}
		case recEndEl:
			if len(b.points) < 3 {
				return b, fmt.Errorf("boundary with fewer than 3 vertices")
			}
			return b, nil
		default:
			return b, fmt.Errorf("unexpected record 0x%02x in boundary", rec.typ)
		}
	}
}

// referenceElement reads records until ENDEL for an SREF or AREF.
func (d *decoder) referenceElement(isArray bool) (reference, error) {
	ref := reference{mag: 1, isArray: isArray, cols: 1, rows: 1}
	var lattice []geometry.Point2D
	for {
		rec, err := d.next()
		if err != nil {
			return ref, err
		}
		switch rec.typ {
		case recSName:
			ref.cell = asciiString(rec.data)
		case recSTrans:
			flags := binary.BigEndian.Uint16(rec.data)
			ref.reflect = flags&0x8000 != 0
		case recMag:
			ref.mag = real8(rec.data)
		case recAngle:
			ref.angleDeg = real8(rec.data)
		case recColRow:
			ref.cols = int(int16(binary.BigEndian.Uint16(rec.data[0:2])))
			ref.rows = int(int16(binary.BigEndian.Uint16(rec.data[2:4])))
		case recXY:
			n := len(rec.data) / 8
			for i := 0; i < n; i++ {
				x := int32(binary.BigEndian.Uint32(rec.data[i*8:]))
				y := int32(binary.BigEndian.Uint32(rec.data[i*8+4:]))
				lattice = append(lattice, geometry.Point2D{X: float64(x), Y: float64(y)})
			}
		case recEndEl:
			if ref.cell == "" || len(lattice) == 0 {
				return ref, fmt.Errorf("reference without target or position")
			}
			ref.origin = lattice[0]
			if isArray {
				if len(lattice) != 3 || ref.cols < 1 || ref.rows < 1 {
					return ref, fmt.Errorf("malformed array reference to %q", ref.cell)
				}
				ref.colStep = lattice[1].Sub(ref.origin).Scale(1 / float64(ref.cols))
				ref.rowStep = lattice[2].Sub(ref.origin).Scale(1 / float64(ref.rows))
			}
			return ref, nil
		default:
			return ref, fmt.Errorf("unexpected record 0x%02x in reference", rec.typ)
		}
	}
}

// skipElement consumes records through the next ENDEL.
func (d *decoder) skipElement() error {
	for {
		rec, err := d.next()
		if err != nil {
			return err
		}
		if rec.typ == recEndEl {
			return nil
		}
	}
}

// asciiString strips the padding NUL GDSII appends to odd-length strings.
func asciiString(b []byte) string {
	if len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return string(b)
}

// real8 decodes the GDSII 8-byte excess-64 floating point format: a sign
// bit, a 7-bit base-16 exponent, and a 56-bit mantissa fraction.
func real8(b []byte) float64 {
	if len(b) < 8 {
		return 0
	}
	exp := int(b[0]&0x7f) - 64
	var mant uint64
	for _, by := range b[1:8] {
		mant = mant<<8 | uint64(by)
	}
	v := float64(mant) / (1 << 56) * math.Pow(16, float64(exp))
	if b[0]&0x80 != 0 {
		return -v
	}
	return v
}
