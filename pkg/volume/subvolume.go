// Package volume carves working sub-volumes out of larger grids and writes
// grown labels back into the full-size label grid.
package volume

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"growcutseg/internal/models"
)

// ErrOutOfBounds is returned when the requested bounds are not fully
// contained in the source grid.
var ErrOutOfBounds = errors.New("volume: bounds outside source grid")

// Extract copies the region described by bounds into a new contiguous grid
// whose voxel (0,0,0) is the region's minimum corner. The geometry origin is
// moved so every copied voxel keeps its world position.
func Extract(reference *models.Grid, bounds models.Bounds) (*models.Grid, error) {
	if !bounds.Within(reference.Dims) {
		return nil, fmt.Errorf("%w: %s not inside %s", ErrOutOfBounds, bounds, reference.Dims)
	}

	dims := bounds.Dims()
	region := &models.Grid{
		Dims:     dims,
		Geometry: reference.Geometry,
		Data:     make([]float32, dims.Len()),
	}
	region.Geometry.Origin = reference.Geometry.IndexToWorld(r3.Vec{
		X: float64(bounds.MinX),
		Y: float64(bounds.MinY),
		Z: float64(bounds.MinZ),
	})

	// Rows are contiguous in both grids, so copy one row at a time
	for z := 0; z < dims.Slices; z++ {
		for y := 0; y < dims.Rows; y++ {
			srcIdx := reference.Dims.Index(bounds.MinX, bounds.MinY+y, bounds.MinZ+z)
			dstIdx := dims.Index(0, y, z)
			copy(region.Data[dstIdx:dstIdx+dims.Columns], reference.Data[srcIdx:srcIdx+dims.Columns])
		}
	}

	return region, nil
}

// ExtractLabels is Extract for label grids
func ExtractLabels(labels *models.LabelGrid, bounds models.Bounds) (*models.LabelGrid, error) {
	if !bounds.Within(labels.Dims) {
		return nil, fmt.Errorf("%w: %s not inside %s", ErrOutOfBounds, bounds, labels.Dims)
	}

	dims := bounds.Dims()
	region := models.NewLabelGrid(dims)
	for z := 0; z < dims.Slices; z++ {
		for y := 0; y < dims.Rows; y++ {
			srcIdx := labels.Dims.Index(bounds.MinX, bounds.MinY+y, bounds.MinZ+z)
			dstIdx := dims.Index(0, y, z)
			copy(region.Data[dstIdx:dstIdx+dims.Columns], labels.Data[srcIdx:srcIdx+dims.Columns])
		}
	}
	return region, nil
}

// LabelMapping decides which label, if any, a grown voxel writes into the
// destination grid.
type LabelMapping func(label uint32) (uint32, bool)

// Identity copies every non-zero label unchanged
func Identity(label uint32) (uint32, bool) {
	return label, label != models.Unlabeled
}

// SentinelTo writes value wherever the source holds sentinel and leaves the
// destination untouched elsewhere.
func SentinelTo(sentinel, value uint32) LabelMapping {
	return func(label uint32) (uint32, bool) {
		return value, label == sentinel
	}
}

// Paste writes src into dst with src's origin placed at (bounds.MinX,
// bounds.MinY, bounds.MinZ). bounds must match src's size and lie inside dst.
func Paste(dst, src *models.LabelGrid, bounds models.Bounds, mapping LabelMapping) error {
	if bounds.Dims() != src.Dims {
		return fmt.Errorf("volume: paste bounds %s do not match source %s", bounds, src.Dims)
	}
	if !bounds.Within(dst.Dims) {
		return fmt.Errorf("%w: %s not inside %s", ErrOutOfBounds, bounds, dst.Dims)
	}
	if mapping == nil {
		mapping = Identity
	}

	for idx, label := range src.Data {
		v, ok := mapping(label)
		if !ok {
			continue
		}
		x, y, z := src.Dims.Coord(idx)
		dst.Set(bounds.MinX+x, bounds.MinY+y, bounds.MinZ+z, v)
	}
	return nil
}
