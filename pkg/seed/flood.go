package seed

import (
	"growcutseg/internal/models"
)

// face-adjacent neighbour offsets
var faceOffsets = [6][3]int{
	{-1, 0, 0}, {1, 0, 0},
	{0, -1, 0}, {0, 1, 0},
	{0, 0, -1}, {0, 0, 1},
}

type floodResult struct {
	// Indices of accepted voxels in visiting order, start voxel first
	Indices []int
	Bounds  models.Bounds

	// Truncated is set when the limit stopped the flood early
	Truncated bool
}

// floodHomogeneous runs a breadth-first flood over face-adjacent voxels of g
// starting at (i, j, k). A voxel is accepted while its intensity stays within
// the variance band of the start voxel. A limit of zero means unbounded.
func floodHomogeneous(g *models.Grid, i, j, k int, variance float64, limit int) floodResult {
	res := floodResult{Bounds: models.EmptyBounds()}
	if !g.Dims.InBounds(i, j, k) {
		return res
	}

	d := g.Dims
	start := d.Index(i, j, k)
	center := g.Data[start]
	visited := make([]bool, d.Len())
	visited[start] = true
	queue := []int{start}

	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]

		res.Indices = append(res.Indices, idx)
		x, y, z := d.Coord(idx)
		res.Bounds.Extend(x, y, z)
		if limit > 0 && len(res.Indices) >= limit {
			res.Truncated = len(queue) > 0
			break
		}

		for _, o := range faceOffsets {
			nx, ny, nz := x+o[0], y+o[1], z+o[2]
			if !d.InBounds(nx, ny, nz) {
				continue
			}
			n := d.Index(nx, ny, nz)
			if visited[n] {
				continue
			}
			visited[n] = true
			if withinBand(g.Data[n], center, variance) {
				queue = append(queue, n)
			}
		}
	}
	return res
}
