package growcut

import (
	"fmt"
	"math"
	"runtime"
	"time"

	"growcutseg/internal/models"
)

// Defaults used when a RunParameters field is left at zero
const (
	DefaultWindowSize           = 3
	DefaultMaxProcessingTime    = 30 * time.Second
	DefaultInspectionInterval   = 5
	DefaultBelowThresholdCycles = 3
	DefaultInspectionThreshold  = 1e-4
	DefaultTileSize             = 4096
)

// Inspection controls how often the host reads back the per-iteration
// update counter and when it declares the labeling stable.
type Inspection struct {
	// Interval is the number of iterations between reads while the volume is
	// still changing.
	Interval int

	// BelowThresholdCycles is how many consecutive reads under Threshold end
	// the run.
	BelowThresholdCycles int

	// Threshold is the updated/total voxel ratio considered "stable". A
	// negative threshold disables convergence detection.
	Threshold float64
}

// RunParameters configures a single grow-cut run. It is read-only once the
// run starts.
type RunParameters struct {
	// WindowSize is the odd edge length of the cubic neighbourhood.
	WindowSize int

	// MaxIterations caps the number of kernel dispatches. Zero derives it
	// from the grid diagonal.
	MaxIterations int

	// MaxProcessingTime is the wall-clock budget. The run stops at the next
	// batch boundary once it is exceeded and returns what it has. Zero takes
	// DefaultMaxProcessingTime.
	MaxProcessingTime time.Duration

	Inspection Inspection

	// TileSize is the number of voxels handed to one worker at a time.
	TileSize int

	// Workers bounds how many tiles run concurrently.
	Workers int
}

// DefaultRunParameters returns the parameters used when the caller does not
// override anything.
func DefaultRunParameters() RunParameters {
	return RunParameters{
		WindowSize:        DefaultWindowSize,
		MaxProcessingTime: DefaultMaxProcessingTime,
		Inspection: Inspection{
			Interval:             DefaultInspectionInterval,
			BelowThresholdCycles: DefaultBelowThresholdCycles,
			Threshold:            DefaultInspectionThreshold,
		},
		TileSize: DefaultTileSize,
		Workers:  runtime.NumCPU(),
	}
}

// MaxIterationsFor derives the iteration cap for a grid: half its diagonal,
// rounded up.
func MaxIterationsFor(dims models.Dims) int {
	n := int(math.Ceil(dims.Diagonal() / 2))
	if n < 1 {
		n = 1
	}
	return n
}

// Resolve fills derived and defaulted values for a grid of the given size.
// Every zero field takes its default, so RunParameters{} behaves like
// DefaultRunParameters.
func (p RunParameters) Resolve(dims models.Dims) RunParameters {
	if p.WindowSize == 0 {
		p.WindowSize = DefaultWindowSize
	}
	if p.MaxIterations == 0 {
		p.MaxIterations = MaxIterationsFor(dims)
	}
	if p.MaxProcessingTime == 0 {
		p.MaxProcessingTime = DefaultMaxProcessingTime
	}
	if p.Inspection.Threshold == 0 {
		p.Inspection.Threshold = DefaultInspectionThreshold
	}
	if p.Inspection.Interval == 0 {
		p.Inspection.Interval = DefaultInspectionInterval
	}
	if p.Inspection.BelowThresholdCycles == 0 {
		p.Inspection.BelowThresholdCycles = DefaultBelowThresholdCycles
	}
	if p.TileSize == 0 {
		p.TileSize = DefaultTileSize
	}
	if p.Workers == 0 {
		p.Workers = runtime.NumCPU()
	}
	return p
}

// Validate reports parameters that cannot be executed
func (p RunParameters) Validate() error {
	switch {
	case p.WindowSize < 1 || p.WindowSize%2 == 0:
		return fmt.Errorf("%w: window size %d must be odd and positive", ErrInvalidParameters, p.WindowSize)
	case p.MaxIterations < 0:
		return fmt.Errorf("%w: max iterations %d is negative", ErrInvalidParameters, p.MaxIterations)
	case p.MaxProcessingTime < 0:
		return fmt.Errorf("%w: max processing time %s is negative", ErrInvalidParameters, p.MaxProcessingTime)
	case p.Inspection.Interval < 0 || p.Inspection.BelowThresholdCycles < 0:
		return fmt.Errorf("%w: inspection interval and cycles must not be negative", ErrInvalidParameters)
	case math.IsNaN(p.Inspection.Threshold):
		return fmt.Errorf("%w: inspection threshold %v", ErrInvalidParameters, p.Inspection.Threshold)
	case p.TileSize < 0 || p.Workers < 0:
		return fmt.Errorf("%w: tile size and workers must not be negative", ErrInvalidParameters)
	}
	return nil
}
