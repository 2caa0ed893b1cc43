package models

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Label values with a fixed meaning during seeding and growth
const (
	// Unlabeled marks a voxel that no seed has reached
	Unlabeled uint32 = 0

	// DefaultPositiveSeed is the sentinel used for "known foreground"
	DefaultPositiveSeed uint32 = 254

	// DefaultNegativeSeed is the sentinel used for "known background"
	DefaultNegativeSeed uint32 = 255
)

// Dims holds the size of a voxel grid. A 2D image is a grid with Slices == 1.
type Dims struct {
	Columns int
	Rows    int
	Slices  int
}

// Len returns the number of voxels in the grid
func (d Dims) Len() int {
	return d.Columns * d.Rows * d.Slices
}

// Valid reports whether every dimension is positive
func (d Dims) Valid() bool {
	return d.Columns > 0 && d.Rows > 0 && d.Slices > 0
}

// Index returns the flat index of voxel (i, j, k), slices outermost
func (d Dims) Index(i, j, k int) int {
	return k*d.Columns*d.Rows + j*d.Columns + i
}

// Coord is the inverse of Index
func (d Dims) Coord(idx int) (i, j, k int) {
	plane := d.Columns * d.Rows
	k = idx / plane
	rem := idx - k*plane
	j = rem / d.Columns
	i = rem - j*d.Columns
	return i, j, k
}

// InBounds reports whether (i, j, k) addresses a voxel of the grid
func (d Dims) InBounds(i, j, k int) bool {
	return i >= 0 && i < d.Columns && j >= 0 && j < d.Rows && k >= 0 && k < d.Slices
}

// Diagonal returns the Euclidean length of the grid's index-space diagonal
func (d Dims) Diagonal() float64 {
	c, r, s := float64(d.Columns), float64(d.Rows), float64(d.Slices)
	return math.Sqrt(c*c + r*r + s*s)
}

// Bounds returns the inclusive bounds covering the whole grid
func (d Dims) Bounds() Bounds {
	return Bounds{MaxX: d.Columns - 1, MaxY: d.Rows - 1, MaxZ: d.Slices - 1}
}

func (d Dims) String() string {
	return fmt.Sprintf("%dx%dx%d", d.Columns, d.Rows, d.Slices)
}

// Geometry maps voxel indices to world coordinates.
//
// Direction holds the unit vectors of the volume's natural axes (column, row
// and slice direction). The zero value is not usable; see IdentityGeometry.
type Geometry struct {
	Origin    r3.Vec
	Spacing   r3.Vec
	Direction [3]r3.Vec
}

// IdentityGeometry returns a geometry where world coordinates equal indices
func IdentityGeometry() Geometry {
	return Geometry{
		Spacing: r3.Vec{X: 1, Y: 1, Z: 1},
		Direction: [3]r3.Vec{
			{X: 1},
			{Y: 1},
			{Z: 1},
		},
	}
}

// IndexToWorld converts continuous index coordinates into world space
func (g Geometry) IndexToWorld(ijk r3.Vec) r3.Vec {
	p := g.Origin
	p = r3.Add(p, r3.Scale(ijk.X*g.Spacing.X, g.Direction[0]))
	p = r3.Add(p, r3.Scale(ijk.Y*g.Spacing.Y, g.Direction[1]))
	p = r3.Add(p, r3.Scale(ijk.Z*g.Spacing.Z, g.Direction[2]))
	return p
}

// WorldToIndex converts a world point into continuous index coordinates.
// Direction vectors are assumed orthonormal.
func (g Geometry) WorldToIndex(p r3.Vec) r3.Vec {
	d := r3.Sub(p, g.Origin)
	return r3.Vec{
		X: r3.Dot(d, g.Direction[0]) / g.Spacing.X,
		Y: r3.Dot(d, g.Direction[1]) / g.Spacing.Y,
		Z: r3.Dot(d, g.Direction[2]) / g.Spacing.Z,
	}
}

// NearestIndex rounds a world point to the closest voxel index
func (g Geometry) NearestIndex(p r3.Vec) (i, j, k int) {
	ijk := g.WorldToIndex(p)
	return int(math.Round(ijk.X)), int(math.Round(ijk.Y)), int(math.Round(ijk.Z))
}

// Grid is a scalar intensity volume stored as a flat row-major array with
// slices outermost. len(Data) always equals Dims.Len().
type Grid struct {
	Dims     Dims
	Geometry Geometry
	Data     []float32
}

// NewGrid allocates a zero-filled grid with identity geometry
func NewGrid(dims Dims) *Grid {
	return &Grid{
		Dims:     dims,
		Geometry: IdentityGeometry(),
		Data:     make([]float32, dims.Len()),
	}
}

// NewGridFromData wraps an existing buffer. The buffer is not copied.
func NewGridFromData(dims Dims, data []float32) (*Grid, error) {
	if !dims.Valid() {
		return nil, fmt.Errorf("invalid grid dimensions %s", dims)
	}
	if len(data) != dims.Len() {
		return nil, fmt.Errorf("grid %s needs %d values, got %d", dims, dims.Len(), len(data))
	}
	return &Grid{Dims: dims, Geometry: IdentityGeometry(), Data: data}, nil
}

// Value returns the intensity at (i, j, k). The caller checks bounds.
func (g *Grid) Value(i, j, k int) float32 {
	return g.Data[g.Dims.Index(i, j, k)]
}

// Set stores v at (i, j, k)
func (g *Grid) Set(i, j, k int, v float32) {
	g.Data[g.Dims.Index(i, j, k)] = v
}

// LabelGrid holds one label per voxel of a reference Grid
type LabelGrid struct {
	Dims Dims
	Data []uint32
}

// NewLabelGrid allocates an unlabeled grid
func NewLabelGrid(dims Dims) *LabelGrid {
	return &LabelGrid{Dims: dims, Data: make([]uint32, dims.Len())}
}

// Value returns the label at (i, j, k)
func (l *LabelGrid) Value(i, j, k int) uint32 {
	return l.Data[l.Dims.Index(i, j, k)]
}

// Set stores label v at (i, j, k)
func (l *LabelGrid) Set(i, j, k int, v uint32) {
	l.Data[l.Dims.Index(i, j, k)] = v
}

// Count returns how many voxels carry the given label
func (l *LabelGrid) Count(label uint32) int {
	n := 0
	for _, v := range l.Data {
		if v == label {
			n++
		}
	}
	return n
}

// Clone returns a deep copy
func (l *LabelGrid) Clone() *LabelGrid {
	data := make([]uint32, len(l.Data))
	copy(data, l.Data)
	return &LabelGrid{Dims: l.Dims, Data: data}
}
