// Package segmentation runs the full labeling pipeline for one target:
// seeding, grow-cut on the seeded working region, compositing the grown
// region into a full-size label grid and summarising the outcome.
package segmentation

import (
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"growcutseg/internal/models"
	"growcutseg/pkg/growcut"
	"growcutseg/pkg/logging"
	"growcutseg/pkg/seed"
	"growcutseg/pkg/volume"
	"growcutseg/pkg/voxelcache"
)

// ErrNoStrategy is returned by Process when Params has no seed strategy
var ErrNoStrategy = errors.New("segmentation: no seed strategy")

// Metrics summarises one segmentation.
type Metrics struct {
	// RunID identifies the grow-cut run in the logs
	RunID string

	// PositiveVoxels, NegativeVoxels and UnlabeledVoxels count the grown
	// labels inside the working region.
	PositiveVoxels  int
	NegativeVoxels  int
	UnlabeledVoxels int

	// PositiveFraction is PositiveVoxels over the size of the whole grid.
	PositiveFraction float64

	// PositiveVolume is PositiveVoxels in world units, using the grid spacing.
	PositiveVolume float64

	// MeanIntensity and StdIntensity describe the reference under the
	// positive voxels.
	MeanIntensity float64
	StdIntensity  float64

	Seeds seed.RegionStats

	Iterations int
	Converged  bool
	TimedOut   bool
	Elapsed    time.Duration
}

// Params holds the segmentation parameters.
type Params struct {
	// Strategy places the seeds and chooses the working region.
	Strategy seed.Strategy

	// Run configures the grow-cut engine. Zero fields take engine defaults.
	Run growcut.RunParameters

	// SegmentIndex replaces the positive sentinel in the composited labels.
	// Zero keeps the sentinel.
	SegmentIndex uint32

	// KeepNegative writes the negative sentinel into the composited labels.
	// By default only the segment itself is written.
	KeepNegative bool

	// DeviceFactory overrides the engine's default CPU device.
	DeviceFactory growcut.DeviceFactory
}

// Result is the outcome of Process
type Result struct {
	// Labels has the size of the reference grid.
	Labels *models.LabelGrid

	// Seeding is the seeded working region the engine ran on.
	Seeding *seed.Seeding

	// Grown is the engine result over the working region.
	Grown *growcut.Result

	Metrics Metrics
}

// Segmenter handles the segmentation process.
//
// The process consists of four steps:
// 1. Seeding the working region with the configured strategy
// 2. Growing the seeds over the working region
// 3. Compositing the grown labels into a full-size grid
// 4. Calculating metrics
type Segmenter struct {
	// params stores the segmentation configuration
	params *Params

	// metrics stores the summary of the last run
	metrics Metrics
}

// NewSegmenter creates a new segmenter instance with the provided parameters.
func NewSegmenter(params *Params) *Segmenter {
	return &Segmenter{params: params}
}

// Process runs the complete segmentation pipeline on reference
func (s *Segmenter) Process(reference *models.Grid) (*Result, error) {
	if s.params.Strategy == nil {
		return nil, ErrNoStrategy
	}

	// Step 1: Seed the working region
	logging.Infof("Step 1: Seeding with the %s strategy...", s.params.Strategy.Name())
	seeding, err := s.params.Strategy.Seed(reference)
	if err != nil {
		return nil, fmt.Errorf("failed to seed: %w", err)
	}
	logging.Debugf("working region %s: %d positive, %d negative seeds",
		seeding.Bounds, seeding.Stats.PositiveSeeds, seeding.Stats.NegativeSeeds)

	// Step 2: Grow
	logging.Infof("Step 2: Growing over %s...", seeding.Reference.Dims)
	var opts []growcut.Option
	if s.params.DeviceFactory != nil {
		opts = append(opts, growcut.WithDeviceFactory(s.params.DeviceFactory))
	}
	grown, err := growcut.NewEngine(s.params.Run, opts...).Grow(seeding.Reference, seeding.Labels)
	if err != nil {
		return nil, fmt.Errorf("failed to grow: %w", err)
	}

	// Step 3: Composite into the full grid
	logging.Infof("Step 3: Compositing into %s...", reference.Dims)
	labels := models.NewLabelGrid(reference.Dims)
	if err := volume.Paste(labels, grown.Labels, seeding.Bounds, s.mapping(seeding.Seeds)); err != nil {
		return nil, fmt.Errorf("failed to composite: %w", err)
	}

	// Step 4: Calculate metrics
	logging.Infof("Step 4: Calculating metrics...")
	s.calculateMetrics(reference, seeding, grown)

	return &Result{
		Labels:  labels,
		Seeding: seeding,
		Grown:   grown,
		Metrics: s.metrics,
	}, nil
}

// ProcessCached resolves the reference grid from cache, runs Process and
// stores the composited labels under outputID.
func (s *Segmenter) ProcessCached(cache *voxelcache.Cache, referenceID, outputID string) (*Result, error) {
	reference, err := cache.Grid(referenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference %q: %w", referenceID, err)
	}
	res, err := s.Process(reference)
	if err != nil {
		return nil, err
	}
	if err := cache.PutLabels(outputID, res.Labels); err != nil {
		return nil, fmt.Errorf("failed to store labels %q: %w", outputID, err)
	}
	return res, nil
}

// GetMetrics returns the metrics of the last successful run
func (s *Segmenter) GetMetrics() Metrics {
	return s.metrics
}

func (s *Segmenter) mapping(seeds seed.SeedValues) volume.LabelMapping {
	segment := s.params.SegmentIndex
	if segment == models.Unlabeled {
		segment = seeds.Positive
	}
	keepNegative := s.params.KeepNegative
	return func(label uint32) (uint32, bool) {
		switch label {
		case seeds.Positive:
			return segment, true
		case seeds.Negative:
			return label, keepNegative
		}
		return 0, false
	}
}

func (s *Segmenter) calculateMetrics(reference *models.Grid, seeding *seed.Seeding, grown *growcut.Result) {
	m := Metrics{
		RunID:      grown.RunID,
		Seeds:      seeding.Stats,
		Iterations: grown.Iterations,
		Converged:  grown.Converged,
		TimedOut:   grown.TimedOut,
		Elapsed:    grown.Elapsed,
	}

	var values []float64
	for idx, label := range grown.Labels.Data {
		switch label {
		case seeding.Seeds.Positive:
			values = append(values, float64(seeding.Reference.Data[idx]))
		case seeding.Seeds.Negative:
			m.NegativeVoxels++
		case models.Unlabeled:
			m.UnlabeledVoxels++
		}
	}
	m.PositiveVoxels = len(values)
	if n := reference.Dims.Len(); n > 0 {
		m.PositiveFraction = float64(m.PositiveVoxels) / float64(n)
	}
	sp := reference.Geometry.Spacing
	m.PositiveVolume = float64(m.PositiveVoxels) * sp.X * sp.Y * sp.Z

	switch len(values) {
	case 0:
	case 1:
		m.MeanIntensity = values[0]
	default:
		m.MeanIntensity, m.StdIntensity = stat.MeanStdDev(values, nil)
	}

	s.metrics = m
}
