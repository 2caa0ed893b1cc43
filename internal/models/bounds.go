package models

import "fmt"

// Bounds is an axis-aligned box of voxel indices. Both ends are inclusive.
type Bounds struct {
	MinX, MaxX int
	MinY, MaxY int
	MinZ, MaxZ int
}

// EmptyBounds returns a box that contains nothing and grows with Extend
func EmptyBounds() Bounds {
	const big = int(^uint(0) >> 1)
	return Bounds{
		MinX: big, MaxX: -big,
		MinY: big, MaxY: -big,
		MinZ: big, MaxZ: -big,
	}
}

// Empty reports whether the box contains no voxel
func (b Bounds) Empty() bool {
	return b.MinX > b.MaxX || b.MinY > b.MaxY || b.MinZ > b.MaxZ
}

// Dims returns the size of the box
func (b Bounds) Dims() Dims {
	if b.Empty() {
		return Dims{}
	}
	return Dims{
		Columns: b.MaxX - b.MinX + 1,
		Rows:    b.MaxY - b.MinY + 1,
		Slices:  b.MaxZ - b.MinZ + 1,
	}
}

// Contains reports whether (i, j, k) lies inside the box
func (b Bounds) Contains(i, j, k int) bool {
	return i >= b.MinX && i <= b.MaxX &&
		j >= b.MinY && j <= b.MaxY &&
		k >= b.MinZ && k <= b.MaxZ
}

// Within reports whether the whole box fits inside a grid of size d
func (b Bounds) Within(d Dims) bool {
	if b.Empty() {
		return false
	}
	return b.MinX >= 0 && b.MinY >= 0 && b.MinZ >= 0 &&
		b.MaxX < d.Columns && b.MaxY < d.Rows && b.MaxZ < d.Slices
}

// Extend grows the box to include (i, j, k)
func (b *Bounds) Extend(i, j, k int) {
	b.MinX = min(b.MinX, i)
	b.MaxX = max(b.MaxX, i)
	b.MinY = min(b.MinY, j)
	b.MaxY = max(b.MaxY, j)
	b.MinZ = min(b.MinZ, k)
	b.MaxZ = max(b.MaxZ, k)
}

// Pad grows the box by the given number of voxels on both sides of each axis
func (b Bounds) Pad(px, py, pz int) Bounds {
	return Bounds{
		MinX: b.MinX - px, MaxX: b.MaxX + px,
		MinY: b.MinY - py, MaxY: b.MaxY + py,
		MinZ: b.MinZ - pz, MaxZ: b.MaxZ + pz,
	}
}

// Clamp restricts the box to the extent of a grid of size d
func (b Bounds) Clamp(d Dims) Bounds {
	return Bounds{
		MinX: max(b.MinX, 0), MaxX: min(b.MaxX, d.Columns-1),
		MinY: max(b.MinY, 0), MaxY: min(b.MaxY, d.Rows-1),
		MinZ: max(b.MinZ, 0), MaxZ: min(b.MaxZ, d.Slices-1),
	}
}

func (b Bounds) String() string {
	return fmt.Sprintf("[%d..%d, %d..%d, %d..%d]", b.MinX, b.MaxX, b.MinY, b.MaxY, b.MinZ, b.MaxZ)
}
