package seed

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"growcutseg/internal/models"
	"growcutseg/pkg/logging"
	"growcutseg/pkg/volume"
)

// OneClickOptions tunes the OneClick strategy
type OneClickOptions struct {
	Seeds SeedValues `yaml:"seeds" toml:"seeds"`

	PositiveVariance float64 `yaml:"positiveVariance" toml:"positiveVariance"`
	NegativeVariance float64 `yaml:"negativeVariance" toml:"negativeVariance"`

	// PaddingPercentage and MinPadding size the margin added around the
	// flooded region, per axis.
	PaddingPercentage [3]float64 `yaml:"paddingPercentage" toml:"paddingPercentage"`
	MinPadding        [3]int     `yaml:"minPadding" toml:"minPadding"`

	// MaxPositiveSeeds caps the flood. Zero means unbounded.
	MaxPositiveSeeds int `yaml:"maxPositiveSeeds" toml:"maxPositiveSeeds"`
}

// DefaultOneClickOptions returns the options used for zero OneClickOptions fields
func DefaultOneClickOptions() OneClickOptions {
	return OneClickOptions{
		Seeds:             DefaultSeedValues(),
		PositiveVariance:  0.1,
		NegativeVariance:  0.8,
		PaddingPercentage: [3]float64{0.2, 0.2, 0.2},
		MinPadding:        [3]int{5, 5, 5},
	}
}

// OneClick seeds from a single click inside the target. The homogeneous
// region around the click is positive and sizes the working region; every
// voxel of that region far from the clicked intensity is negative.
type OneClick struct {
	Click   r3.Vec
	Options OneClickOptions
}

// withDefaults replaces every zero field with its default. A zero
// MaxPositiveSeeds stays unlimited.
func (o OneClickOptions) withDefaults() OneClickOptions {
	d := DefaultOneClickOptions()
	o.Seeds = o.Seeds.withDefaults()
	if o.PositiveVariance == 0 {
		o.PositiveVariance = d.PositiveVariance
	}
	if o.NegativeVariance == 0 {
		o.NegativeVariance = d.NegativeVariance
	}
	if o.PaddingPercentage == ([3]float64{}) {
		o.PaddingPercentage = d.PaddingPercentage
	}
	if o.MinPadding == ([3]int{}) {
		o.MinPadding = d.MinPadding
	}
	return o
}

// Name identifies the strategy in logs and metrics
func (o OneClick) Name() string { return "oneclick" }

// Seed floods the homogeneous region around the click and seeds the padded
// region around it. A click outside reference yields volume.ErrOutOfBounds.
func (o OneClick) Seed(reference *models.Grid) (*Seeding, error) {
	opts := o.Options.withDefaults()
	if err := opts.Seeds.Validate(); err != nil {
		return nil, err
	}

	ci, cj, ck := reference.Geometry.NearestIndex(o.Click)
	if !reference.Dims.InBounds(ci, cj, ck) {
		return nil, fmt.Errorf("%w: click (%d,%d,%d) outside %s", volume.ErrOutOfBounds, ci, cj, ck, reference.Dims)
	}

	found := floodHomogeneous(reference, ci, cj, ck, opts.PositiveVariance, opts.MaxPositiveSeeds)
	if found.Truncated {
		logging.Debugf("oneclick: flood from (%d,%d,%d) stopped at %d voxels", ci, cj, ck, len(found.Indices))
	}

	bounds := padRegion(found.Bounds, opts).Clamp(reference.Dims)
	region, err := volume.Extract(reference, bounds)
	if err != nil {
		return nil, err
	}
	labels := models.NewLabelGrid(region.Dims)

	for _, idx := range found.Indices {
		x, y, z := reference.Dims.Coord(idx)
		labels.Set(x-bounds.MinX, y-bounds.MinY, z-bounds.MinZ, opts.Seeds.Positive)
	}

	center := reference.Value(ci, cj, ck)
	for idx, v := range region.Data {
		if labels.Data[idx] == opts.Seeds.Positive {
			continue
		}
		if !withinBand(v, center, opts.NegativeVariance) {
			labels.Data[idx] = opts.Seeds.Negative
		}
	}

	return newSeeding(region, labels, bounds, opts.Seeds), nil
}

// padRegion grows b by max(round(size·pct), minPad) on each axis
func padRegion(b models.Bounds, opts OneClickOptions) models.Bounds {
	size := b.Dims()
	pad := func(axis, n int) int {
		return max(int(math.Round(float64(n)*opts.PaddingPercentage[axis])), opts.MinPadding[axis])
	}
	return b.Pad(pad(0, size.Columns), pad(1, size.Rows), pad(2, size.Slices))
}
