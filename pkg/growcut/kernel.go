package growcut

import (
	"math"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Kernel runs one iteration of the update rule over every voxel of a
// BufferSet. Implementations must read only the previous pair and write only
// the current one.
type Kernel interface {
	Dispatch(buffers *BufferSet, iteration int) error
}

// TiledKernel partitions the grid into fixed-size tiles and updates them on a
// bounded pool of goroutines.
type TiledKernel struct {
	TileSize int
	Workers  int
}

// Dispatch implements Kernel. It returns once every tile of the iteration has
// been written.
func (k TiledKernel) Dispatch(b *BufferSet, iteration int) error {
	n := b.Dims.Len()
	tile := k.TileSize
	if tile <= 0 {
		tile = DefaultTileSize
	}

	var g errgroup.Group
	if k.Workers > 0 {
		g.SetLimit(k.Workers)
	}
	for lo := 0; lo < n; lo += tile {
		hi := min(lo+tile, n)
		g.Go(func() error {
			if changed := updateTile(b, iteration, lo, hi); changed > 0 {
				atomic.AddUint32(&b.Counters[iteration], changed)
			}
			return nil
		})
	}
	return g.Wait()
}

// updateTile applies the grow-cut rule to voxels [lo, hi) and returns how
// many of them changed label relative to the previous iteration.
func updateTile(b *BufferSet, iteration, lo, hi int) uint32 {
	cur := Current(iteration)
	labels, strengths := b.Labels[cur], b.Strengths[cur]

	if iteration == 0 {
		for idx := lo; idx < hi; idx++ {
			if labels[idx] != 0 {
				strengths[idx] = MaxStrength
			} else {
				strengths[idx] = 0
			}
		}
		return 0
	}

	prev := cur ^ 1
	prevLabels, prevStrengths := b.Labels[prev], b.Strengths[prev]
	ref := b.Reference
	d := b.Dims
	half := b.WindowSize / 2
	plane := d.Columns * d.Rows

	var changed uint32
	for idx := lo; idx < hi; idx++ {
		x, y, z := d.Coord(idx)
		value := ref[idx]
		newLabel := prevLabels[idx]
		newStrength := prevStrengths[idx]

		for dz := -half; dz <= half; dz++ {
			nz := z + dz
			if nz < 0 || nz >= d.Slices {
				continue
			}
			for dy := -half; dy <= half; dy++ {
				ny := y + dy
				if ny < 0 || ny >= d.Rows {
					continue
				}
				row := nz*plane + ny*d.Columns
				for dx := -half; dx <= half; dx++ {
					nx := x + dx
					if nx < 0 || nx >= d.Columns || (dx == 0 && dy == 0 && dz == 0) {
						continue
					}
					n := row + nx
					cost := float32(math.Abs(float64(ref[n] - value)))
					takeover := prevStrengths[n] - cost
					// strict: ties keep the first winner, NaN never wins
					if takeover > newStrength {
						newLabel = prevLabels[n]
						newStrength = takeover
					}
				}
			}
		}

		if newLabel != prevLabels[idx] {
			changed++
		}
		labels[idx] = newLabel
		strengths[idx] = newStrength
	}
	return changed
}
