// Package voxelcache keeps reference and label grids in memory by
// identifier. Grids are split into snappy-compressed chunks held by a
// freecache.Cache, so memory use is bounded and old volumes are evicted.
package voxelcache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/coocood/freecache"
	"github.com/dustin/go-humanize"
	"github.com/golang/snappy"
	"gonum.org/v1/gonum/spatial/r3"

	"growcutseg/internal/models"
	"growcutseg/pkg/logging"
)

// ErrNotFound is returned when a grid was never stored or part of it has
// been evicted.
var ErrNotFound = errors.New("voxelcache: grid not found")

const (
	kindGrid   = 'g'
	kindLabels = 'l'

	// room left in each entry for the key and freecache's own header
	entryOverhead = 128

	// dims, chunk count, origin, spacing, 3 directions
	headerSize = 4*4 + 15*8
)

// Cache stores grids by identifier
type Cache struct {
	store       *freecache.Cache
	chunkVoxels int
}

// New creates a cache holding at most sizeBytes of compressed data.
// freecache rounds sizes below 512KB up.
func New(sizeBytes int) *Cache {
	store := freecache.NewCache(sizeBytes)
	sizeBytes = max(sizeBytes, 512*1024)

	// largest raw chunk whose worst-case snappy encoding fits one entry
	entry := sizeBytes/1024 - entryOverhead
	chunkBytes := (entry - 32) * 6 / 7
	c := &Cache{
		store:       store,
		chunkVoxels: max(chunkBytes/4, 1),
	}
	logging.Debugf("voxelcache: %s cache, %d voxels per chunk", humanize.Bytes(uint64(sizeBytes)), c.chunkVoxels)
	return c
}

// PutGrid stores a reference grid, replacing any grid with the same id
func (c *Cache) PutGrid(id string, g *models.Grid) error {
	words := make([]uint32, len(g.Data))
	for i, v := range g.Data {
		words[i] = math.Float32bits(v)
	}
	return c.put(kindGrid, id, g.Dims, g.Geometry, words)
}

// Grid returns a copy of a stored reference grid
func (c *Cache) Grid(id string) (*models.Grid, error) {
	dims, geom, words, err := c.get(kindGrid, id)
	if err != nil {
		return nil, err
	}
	g := &models.Grid{Dims: dims, Geometry: geom, Data: make([]float32, len(words))}
	for i, w := range words {
		g.Data[i] = math.Float32frombits(w)
	}
	return g, nil
}

// PutLabels stores a label grid, replacing any labels with the same id
func (c *Cache) PutLabels(id string, l *models.LabelGrid) error {
	return c.put(kindLabels, id, l.Dims, models.IdentityGeometry(), l.Data)
}

// Labels returns a copy of a stored label grid
func (c *Cache) Labels(id string) (*models.LabelGrid, error) {
	dims, _, words, err := c.get(kindLabels, id)
	if err != nil {
		return nil, err
	}
	return &models.LabelGrid{Dims: dims, Data: words}, nil
}

// Delete drops the grid and the labels stored under id
func (c *Cache) Delete(id string) {
	c.drop(kindGrid, id)
	c.drop(kindLabels, id)
}

// drop removes the header and chunks of one kind stored under id
func (c *Cache) drop(kind byte, id string) {
	key := headerKey(kind, id)
	if raw, err := c.store.Get(key); err == nil {
		if h, err := decodeHeader(raw); err == nil {
			for n := 0; n < h.chunks; n++ {
				c.store.Del(chunkKey(kind, id, n))
			}
		}
	}
	c.store.Del(key)
}

// EntryCount returns the number of chunks and headers held
func (c *Cache) EntryCount() int64 {
	return c.store.EntryCount()
}

func (c *Cache) put(kind byte, id string, dims models.Dims, geom models.Geometry, words []uint32) error {
	if len(words) != dims.Len() {
		return fmt.Errorf("voxelcache: %s holds %d values, want %d", dims, len(words), dims.Len())
	}
	c.drop(kind, id)

	chunks := (len(words) + c.chunkVoxels - 1) / c.chunkVoxels
	raw := make([]byte, c.chunkVoxels*4)
	for n := 0; n < chunks; n++ {
		part := words[n*c.chunkVoxels : min((n+1)*c.chunkVoxels, len(words))]
		buf := raw[:len(part)*4]
		for i, w := range part {
			binary.LittleEndian.PutUint32(buf[i*4:], w)
		}
		if err := c.store.Set(chunkKey(kind, id, n), snappy.Encode(nil, buf), 0); err != nil {
			return fmt.Errorf("voxelcache: store %s chunk %d: %w", id, n, err)
		}
	}

	h := header{dims: dims, chunks: chunks, geom: geom}
	if err := c.store.Set(headerKey(kind, id), h.encode(), 0); err != nil {
		return fmt.Errorf("voxelcache: store %s header: %w", id, err)
	}
	return nil
}

func (c *Cache) get(kind byte, id string) (models.Dims, models.Geometry, []uint32, error) {
	raw, err := c.store.Get(headerKey(kind, id))
	if err != nil {
		return models.Dims{}, models.Geometry{}, nil, notFound(id, err)
	}
	h, err := decodeHeader(raw)
	if err != nil {
		return models.Dims{}, models.Geometry{}, nil, err
	}

	words := make([]uint32, 0, h.dims.Len())
	var buf []byte
	for n := 0; n < h.chunks; n++ {
		compressed, err := c.store.Get(chunkKey(kind, id, n))
		if err != nil {
			return models.Dims{}, models.Geometry{}, nil, notFound(id, err)
		}
		buf, err = snappy.Decode(buf[:cap(buf)], compressed)
		if err != nil {
			return models.Dims{}, models.Geometry{}, nil, fmt.Errorf("voxelcache: chunk %d of %s: %w", n, id, err)
		}
		for i := 0; i+4 <= len(buf); i += 4 {
			words = append(words, binary.LittleEndian.Uint32(buf[i:]))
		}
	}
	if len(words) != h.dims.Len() {
		return models.Dims{}, models.Geometry{}, nil, fmt.Errorf("voxelcache: %s holds %d values, want %d", id, len(words), h.dims.Len())
	}
	return h.dims, h.geom, words, nil
}

func notFound(id string, err error) error {
	if errors.Is(err, freecache.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return err
}

func headerKey(kind byte, id string) []byte {
	return []byte(fmt.Sprintf("%c:%s", kind, id))
}

func chunkKey(kind byte, id string, n int) []byte {
	return []byte(fmt.Sprintf("%c:%s:%d", kind, id, n))
}

type header struct {
	dims   models.Dims
	chunks int
	geom   models.Geometry
}

func (h header) encode() []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(buf[0:], uint32(h.dims.Columns))
	binary.LittleEndian.PutUint32(buf[4:], uint32(h.dims.Rows))
	binary.LittleEndian.PutUint32(buf[8:], uint32(h.dims.Slices))
	binary.LittleEndian.PutUint32(buf[12:], uint32(h.chunks))

	vecs := []r3.Vec{h.geom.Origin, h.geom.Spacing, h.geom.Direction[0], h.geom.Direction[1], h.geom.Direction[2]}
	off := 16
	for _, v := range vecs {
		for _, f := range []float64{v.X, v.Y, v.Z} {
			binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(f))
			off += 8
		}
	}
	return buf
}

func decodeHeader(buf []byte) (header, error) {
	if len(buf) != headerSize {
		return header{}, fmt.Errorf("voxelcache: header is %d bytes, want %d", len(buf), headerSize)
	}
	h := header{
		dims: models.Dims{
			Columns: int(binary.LittleEndian.Uint32(buf[0:])),
			Rows:    int(binary.LittleEndian.Uint32(buf[4:])),
			Slices:  int(binary.LittleEndian.Uint32(buf[8:])),
		},
		chunks: int(binary.LittleEndian.Uint32(buf[12:])),
	}

	next := func(off int) r3.Vec {
		return r3.Vec{
			X: math.Float64frombits(binary.LittleEndian.Uint64(buf[off:])),
			Y: math.Float64frombits(binary.LittleEndian.Uint64(buf[off+8:])),
			Z: math.Float64frombits(binary.LittleEndian.Uint64(buf[off+16:])),
		}
	}
	h.geom.Origin = next(16)
	h.geom.Spacing = next(40)
	for i := 0; i < 3; i++ {
		h.geom.Direction[i] = next(64 + i*24)
	}
	return h, nil
}
