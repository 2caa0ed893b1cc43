package seed

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"growcutseg/internal/models"
	"growcutseg/pkg/volume"
)

// BoxOptions tunes the BoundingBox strategy. The ranges default to CT
// values: soft tissue and bone positive, air negative.
type BoxOptions struct {
	Seeds SeedValues `yaml:"seeds" toml:"seeds"`

	// PositiveRange is exclusive on both ends.
	PositiveRange [2]float64 `yaml:"positiveRange" toml:"positiveRange"`

	// NegativeRange is inclusive on both ends.
	NegativeRange [2]float64 `yaml:"negativeRange" toml:"negativeRange"`

	// PositiveSliceBand is the number of slices either side of the middle
	// slice that receive positive seeds.
	PositiveSliceBand int `yaml:"positiveSliceBand" toml:"positiveSliceBand"`
}

// DefaultBoxOptions returns the options used for zero BoxOptions fields
func DefaultBoxOptions() BoxOptions {
	return BoxOptions{
		Seeds:             DefaultSeedValues(),
		PositiveRange:     [2]float64{0, 1900},
		NegativeRange:     [2]float64{math.Inf(-1), -995},
		PositiveSliceBand: 1,
	}
}

// BoundingBox seeds from a box drawn around the target. Plausible tissue in
// the middle slices is positive, background flooded in from the slice
// borders is negative.
type BoundingBox struct {
	TopLeft     r3.Vec
	BottomRight r3.Vec
	Options     BoxOptions
}

// withDefaults replaces every zero field with its default
func (o BoxOptions) withDefaults() BoxOptions {
	d := DefaultBoxOptions()
	o.Seeds = o.Seeds.withDefaults()
	if o.PositiveRange == ([2]float64{}) {
		o.PositiveRange = d.PositiveRange
	}
	if o.NegativeRange == ([2]float64{}) {
		o.NegativeRange = d.NegativeRange
	}
	if o.PositiveSliceBand == 0 {
		o.PositiveSliceBand = d.PositiveSliceBand
	}
	return o
}

// Name identifies the strategy in logs and metrics
func (b BoundingBox) Name() string { return "box" }

// Seed clamps the box to reference and seeds it. A box that misses the grid
// entirely yields volume.ErrOutOfBounds.
func (b BoundingBox) Seed(reference *models.Grid) (*Seeding, error) {
	opts := b.Options.withDefaults()
	if err := opts.Seeds.Validate(); err != nil {
		return nil, err
	}

	bounds := models.EmptyBounds()
	bounds.Extend(reference.Geometry.NearestIndex(b.TopLeft))
	bounds.Extend(reference.Geometry.NearestIndex(b.BottomRight))
	bounds = bounds.Clamp(reference.Dims)
	if bounds.Empty() {
		return nil, fmt.Errorf("%w: box does not intersect %s", volume.ErrOutOfBounds, reference.Dims)
	}

	region, err := volume.Extract(reference, bounds)
	if err != nil {
		return nil, err
	}
	labels := models.NewLabelGrid(region.Dims)
	d := region.Dims

	mid := d.Slices / 2
	lo, hi := opts.PositiveRange[0], opts.PositiveRange[1]
	for z := max(mid-opts.PositiveSliceBand, 0); z <= min(mid+opts.PositiveSliceBand, d.Slices-1); z++ {
		for idx := d.Index(0, 0, z); idx < d.Index(0, 0, z)+d.Columns*d.Rows; idx++ {
			if v := float64(region.Data[idx]); lo < v && v < hi {
				labels.Data[idx] = opts.Seeds.Positive
			}
		}
	}

	for z := 0; z < d.Slices; z++ {
		floodSliceBorders(region, labels, z, opts.NegativeRange, opts.Seeds)
	}

	return newSeeding(region, labels, bounds, opts.Seeds), nil
}

// floodSliceBorders marks background reachable from the left and right end of
// every row of slice z. Each row is scanned inwards until a voxel leaves the
// range, and every voxel met that way starts a 4-connected flood within the
// range. Positive seeds are never overwritten and block the flood.
func floodSliceBorders(g *models.Grid, labels *models.LabelGrid, z int, rng [2]float64, seeds SeedValues) {
	d := g.Dims
	base := d.Index(0, 0, z)
	plane := d.Columns * d.Rows
	visited := make([]bool, plane)

	inRange := func(p int) bool {
		if labels.Data[base+p] == seeds.Positive {
			return false
		}
		v := float64(g.Data[base+p])
		return rng[0] <= v && v <= rng[1]
	}

	var queue []int
	flood := func(p int) {
		if visited[p] || !inRange(p) {
			return
		}
		visited[p] = true
		queue = append(queue[:0], p)
		for len(queue) > 0 {
			q := queue[0]
			queue = queue[1:]
			labels.Data[base+q] = seeds.Negative

			x, y := q%d.Columns, q/d.Columns
			for _, o := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
				nx, ny := x+o[0], y+o[1]
				if nx < 0 || nx >= d.Columns || ny < 0 || ny >= d.Rows {
					continue
				}
				n := ny*d.Columns + nx
				if !visited[n] && inRange(n) {
					visited[n] = true
					queue = append(queue, n)
				}
			}
		}
	}

	for y := 0; y < d.Rows; y++ {
		row := y * d.Columns
		for x := 0; x < d.Columns && inRange(row+x); x++ {
			flood(row + x)
		}
		for x := d.Columns - 1; x >= 0 && inRange(row+x); x-- {
			flood(row + x)
		}
	}
}
