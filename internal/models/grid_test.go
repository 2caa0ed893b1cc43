package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestDimsIndexRoundTrip(t *testing.T) {
	d := Dims{Columns: 5, Rows: 4, Slices: 3}
	require.Equal(t, 60, d.Len())

	seen := make(map[int]bool)
	for k := 0; k < d.Slices; k++ {
		for j := 0; j < d.Rows; j++ {
			for i := 0; i < d.Columns; i++ {
				idx := d.Index(i, j, k)
				require.False(t, seen[idx], "index %d produced twice", idx)
				seen[idx] = true

				ci, cj, ck := d.Coord(idx)
				assert.Equal(t, [3]int{i, j, k}, [3]int{ci, cj, ck})
			}
		}
	}
	assert.Equal(t, d.Index(1, 2, 1), 1*20+2*5+1)
}

func TestDimsInBounds(t *testing.T) {
	d := Dims{Columns: 2, Rows: 2, Slices: 1}
	assert.True(t, d.InBounds(1, 1, 0))
	assert.False(t, d.InBounds(-1, 0, 0))
	assert.False(t, d.InBounds(0, 2, 0))
	assert.False(t, d.InBounds(0, 0, 1))
}

func TestNewGridFromDataRejectsWrongLength(t *testing.T) {
	_, err := NewGridFromData(Dims{Columns: 2, Rows: 2, Slices: 2}, make([]float32, 7))
	require.Error(t, err)

	g, err := NewGridFromData(Dims{Columns: 2, Rows: 2, Slices: 2}, make([]float32, 8))
	require.NoError(t, err)
	g.Set(1, 1, 1, 42)
	assert.Equal(t, float32(42), g.Data[7])
}

func TestGeometryWorldIndexRoundTrip(t *testing.T) {
	g := Geometry{
		Origin:  r3.Vec{X: -10, Y: 5, Z: 2},
		Spacing: r3.Vec{X: 0.5, Y: 0.5, Z: 2},
		Direction: [3]r3.Vec{
			{Y: 1},
			{X: -1},
			{Z: 1},
		},
	}

	ijk := r3.Vec{X: 3, Y: 7, Z: 4}
	world := g.IndexToWorld(ijk)
	back := g.WorldToIndex(world)
	assert.InDelta(t, ijk.X, back.X, 1e-9)
	assert.InDelta(t, ijk.Y, back.Y, 1e-9)
	assert.InDelta(t, ijk.Z, back.Z, 1e-9)

	i, j, k := g.NearestIndex(r3.Add(world, r3.Vec{X: 0.1}))
	assert.Equal(t, [3]int{3, 7, 4}, [3]int{i, j, k})
}

func TestBoundsPadClampAndExtend(t *testing.T) {
	b := EmptyBounds()
	require.True(t, b.Empty())

	b.Extend(2, 3, 1)
	b.Extend(4, 1, 1)
	assert.Equal(t, Bounds{MinX: 2, MaxX: 4, MinY: 1, MaxY: 3, MinZ: 1, MaxZ: 1}, b)
	assert.Equal(t, Dims{Columns: 3, Rows: 3, Slices: 1}, b.Dims())

	d := Dims{Columns: 6, Rows: 5, Slices: 2}
	padded := b.Pad(3, 3, 3).Clamp(d)
	assert.Equal(t, Bounds{MinX: 0, MaxX: 5, MinY: 0, MaxY: 4, MinZ: 0, MaxZ: 1}, padded)
	assert.True(t, padded.Within(d))
	assert.False(t, b.Pad(3, 0, 0).Within(d))
}

func TestLabelGridCountAndClone(t *testing.T) {
	l := NewLabelGrid(Dims{Columns: 3, Rows: 1, Slices: 1})
	l.Set(0, 0, 0, DefaultPositiveSeed)
	l.Set(2, 0, 0, DefaultPositiveSeed)

	c := l.Clone()
	c.Set(1, 0, 0, DefaultNegativeSeed)

	assert.Equal(t, 2, l.Count(DefaultPositiveSeed))
	assert.Equal(t, 0, l.Count(DefaultNegativeSeed))
	assert.Equal(t, 1, c.Count(DefaultNegativeSeed))
}
