// Package seed prepares the initial state of a grow-cut run: a working
// sub-volume of the reference grid and a label grid holding positive and
// negative seed sentinels.
//
// The three strategies share nothing beyond the Strategy interface. Each
// one carves its own region, so the grown labels must be pasted back into
// the full grid at Seeding.Bounds.
package seed

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"growcutseg/internal/models"
)

var (
	// ErrUnsupportedOrientation is returned for views that are oblique to
	// the grid axes.
	ErrUnsupportedOrientation = errors.New("seed: oblique view orientation is not supported")

	// ErrInvalidRegion is returned for region descriptors that cannot
	// describe any voxel, such as a negative radius.
	ErrInvalidRegion = errors.New("seed: invalid region")

	// ErrInvalidSeeds is returned when the positive and negative sentinels
	// cannot be told apart.
	ErrInvalidSeeds = errors.New("seed: invalid seed values")
)

// SeedValues are the sentinels written for known foreground and background
type SeedValues struct {
	Positive uint32 `yaml:"positive" toml:"positive"`
	Negative uint32 `yaml:"negative" toml:"negative"`
}

// DefaultSeedValues returns the sentinels 254 and 255
func DefaultSeedValues() SeedValues {
	return SeedValues{Positive: models.DefaultPositiveSeed, Negative: models.DefaultNegativeSeed}
}

func (s SeedValues) withDefaults() SeedValues {
	if s.Positive == models.Unlabeled {
		s.Positive = models.DefaultPositiveSeed
	}
	if s.Negative == models.Unlabeled {
		s.Negative = models.DefaultNegativeSeed
	}
	return s
}

// Validate rejects sentinels that collide after defaults are applied
func (s SeedValues) Validate() error {
	s = s.withDefaults()
	if s.Positive == s.Negative {
		return fmt.Errorf("%w: positive and negative are both %d", ErrInvalidSeeds, s.Positive)
	}
	return nil
}

// Strategy produces the seeded working region for one target descriptor
type Strategy interface {
	Name() string
	Seed(reference *models.Grid) (*Seeding, error)
}

// RegionStats summarises the seeds of a Seeding
type RegionStats struct {
	PositiveSeeds int
	NegativeSeeds int

	// Mean and StdDev of the reference intensity under the positive seeds
	Mean   float64
	StdDev float64
}

// Seeding is the output of a Strategy
type Seeding struct {
	// Reference is the working sub-volume, re-based to (0,0,0).
	Reference *models.Grid

	// Labels has the dimensions of Reference.
	Labels *models.LabelGrid

	// Bounds locates Reference inside the parent grid.
	Bounds models.Bounds

	Seeds SeedValues
	Stats RegionStats
}

func newSeeding(region *models.Grid, labels *models.LabelGrid, bounds models.Bounds, seeds SeedValues) *Seeding {
	s := &Seeding{
		Reference: region,
		Labels:    labels,
		Bounds:    bounds,
		Seeds:     seeds,
	}

	var values []float64
	for idx, label := range labels.Data {
		switch label {
		case seeds.Positive:
			values = append(values, float64(region.Data[idx]))
		case seeds.Negative:
			s.Stats.NegativeSeeds++
		}
	}
	s.Stats.PositiveSeeds = len(values)
	switch len(values) {
	case 0:
	case 1:
		s.Stats.Mean = values[0]
	default:
		s.Stats.Mean, s.Stats.StdDev = stat.MeanStdDev(values, nil)
	}
	return s
}

// withinBand is the homogeneity test: v lies within ±variance·|center| of
// center. NaN on either side never passes.
func withinBand(v, center float32, variance float64) bool {
	c := float64(center)
	return math.Abs(float64(v)-c) <= variance*math.Abs(c)
}
