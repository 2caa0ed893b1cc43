// Package volio reads and writes grids in the GCV1 container.
//
// Layout, little endian:
//
//	magic   "GCV1"
//	kind    1 byte (1 = float32 grid, 2 = uint32 labels)
//	flags   1 byte (bit 0 = zstd payload)
//	        2 reserved bytes
//	dims    3 x uint32 (columns, rows, slices)
//	geom    15 x float64 (origin, spacing, 3 directions), grids only
//	payload dims product x 4 bytes, optionally zstd compressed
package volio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"gonum.org/v1/gonum/spatial/r3"

	"growcutseg/internal/models"
)

// ErrFormat is returned for input that is not a valid GCV1 stream of the
// requested kind.
var ErrFormat = errors.New("volio: invalid volume file")

const (
	magic = "GCV1"

	kindGrid   byte = 1
	kindLabels byte = 2

	flagZstd byte = 1 << 0

	// largest voxel count accepted when reading
	maxVoxels = 1 << 31
)

type fileHeader struct {
	Magic    [4]byte
	Kind     byte
	Flags    byte
	Reserved [2]byte
	Columns  uint32
	Rows     uint32
	Slices   uint32
}

// WriteGrid writes a reference grid
func WriteGrid(w io.Writer, g *models.Grid, compress bool) error {
	if err := writeHeader(w, kindGrid, g.Dims, compress); err != nil {
		return err
	}
	geom := g.Geometry
	vecs := []r3.Vec{geom.Origin, geom.Spacing, geom.Direction[0], geom.Direction[1], geom.Direction[2]}
	if err := binary.Write(w, binary.LittleEndian, vecs); err != nil {
		return fmt.Errorf("volio: write geometry: %w", err)
	}
	return writePayload(w, g.Data, compress)
}

// ReadGrid reads a reference grid written by WriteGrid
func ReadGrid(r io.Reader) (*models.Grid, error) {
	dims, compressed, err := readHeader(r, kindGrid)
	if err != nil {
		return nil, err
	}
	vecs := make([]r3.Vec, 5)
	if err := binary.Read(r, binary.LittleEndian, vecs); err != nil {
		return nil, fmt.Errorf("%w: geometry: %v", ErrFormat, err)
	}

	g := &models.Grid{
		Dims: dims,
		Geometry: models.Geometry{
			Origin:    vecs[0],
			Spacing:   vecs[1],
			Direction: [3]r3.Vec{vecs[2], vecs[3], vecs[4]},
		},
		Data: make([]float32, dims.Len()),
	}
	if err := readPayload(r, g.Data, compressed); err != nil {
		return nil, err
	}
	return g, nil
}

// WriteLabels writes a label grid
func WriteLabels(w io.Writer, l *models.LabelGrid, compress bool) error {
	if err := writeHeader(w, kindLabels, l.Dims, compress); err != nil {
		return err
	}
	return writePayload(w, l.Data, compress)
}

// ReadLabels reads a label grid written by WriteLabels
func ReadLabels(r io.Reader) (*models.LabelGrid, error) {
	dims, compressed, err := readHeader(r, kindLabels)
	if err != nil {
		return nil, err
	}
	l := models.NewLabelGrid(dims)
	if err := readPayload(r, l.Data, compressed); err != nil {
		return nil, err
	}
	return l, nil
}

// SaveGrid writes a reference grid to path
func SaveGrid(path string, g *models.Grid, compress bool) error {
	return saveFile(path, func(w io.Writer) error { return WriteGrid(w, g, compress) })
}

// LoadGrid reads a reference grid from path
func LoadGrid(path string) (*models.Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadGrid(bufio.NewReader(f))
}

// SaveLabels writes a label grid to path
func SaveLabels(path string, l *models.LabelGrid, compress bool) error {
	return saveFile(path, func(w io.Writer) error { return WriteLabels(w, l, compress) })
}

// LoadLabels reads a label grid from path
func LoadLabels(path string) (*models.LabelGrid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadLabels(bufio.NewReader(f))
}

func saveFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeHeader(w io.Writer, kind byte, dims models.Dims, compress bool) error {
	if !dims.Valid() {
		return fmt.Errorf("volio: cannot write grid of size %s", dims)
	}
	h := fileHeader{
		Kind:    kind,
		Columns: uint32(dims.Columns),
		Rows:    uint32(dims.Rows),
		Slices:  uint32(dims.Slices),
	}
	copy(h.Magic[:], magic)
	if compress {
		h.Flags |= flagZstd
	}
	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("volio: write header: %w", err)
	}
	return nil
}

func readHeader(r io.Reader, kind byte) (models.Dims, bool, error) {
	var h fileHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return models.Dims{}, false, fmt.Errorf("%w: header: %v", ErrFormat, err)
	}
	if string(h.Magic[:]) != magic {
		return models.Dims{}, false, fmt.Errorf("%w: bad magic %q", ErrFormat, h.Magic[:])
	}
	if h.Kind != kind {
		return models.Dims{}, false, fmt.Errorf("%w: kind %d, want %d", ErrFormat, h.Kind, kind)
	}
	dims := models.Dims{Columns: int(h.Columns), Rows: int(h.Rows), Slices: int(h.Slices)}
	if !dims.Valid() || uint64(h.Columns)*uint64(h.Rows)*uint64(h.Slices) > maxVoxels {
		return models.Dims{}, false, fmt.Errorf("%w: size %s", ErrFormat, dims)
	}
	return dims, h.Flags&flagZstd != 0, nil
}

func writePayload[T float32 | uint32](w io.Writer, data []T, compress bool) error {
	if !compress {
		if err := binary.Write(w, binary.LittleEndian, data); err != nil {
			return fmt.Errorf("volio: write payload: %w", err)
		}
		return nil
	}

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("volio: zstd writer: %w", err)
	}
	if err := binary.Write(enc, binary.LittleEndian, data); err != nil {
		enc.Close()
		return fmt.Errorf("volio: write payload: %w", err)
	}
	return enc.Close()
}

func readPayload[T float32 | uint32](r io.Reader, data []T, compressed bool) error {
	if compressed {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return fmt.Errorf("%w: zstd: %v", ErrFormat, err)
		}
		defer dec.Close()
		r = dec
	}
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		return fmt.Errorf("%w: payload: %v", ErrFormat, err)
	}
	return nil
}
