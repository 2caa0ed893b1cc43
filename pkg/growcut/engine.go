// Package growcut implements the grow-cut cellular automaton: a competitive,
// cost-weighted region growing that turns a few seed labels into a label for
// every reachable voxel of an intensity grid.
//
// Each iteration is dispatched over the whole grid in parallel tiles and
// reads only the snapshot written by the previous iteration. The host loop
// around it reads one update counter at a time to detect convergence and
// enforces a wall-clock budget.
package growcut

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"growcutseg/internal/models"
	"growcutseg/pkg/logging"
)

// Observation is one inspected update counter
type Observation struct {
	Iteration int
	Updated   uint32
	Ratio     float64
}

// Result is the outcome of a run
type Result struct {
	RunID  string
	Labels *models.LabelGrid

	// Iterations is the number of dispatched iterations, seeding pass included.
	Iterations int

	// Converged is set when the below-threshold streak ended the run.
	Converged bool

	// TimedOut is set when the wall-clock budget ended the run. The labels
	// are valid but may not be fully converged.
	TimedOut bool

	Elapsed      time.Duration
	Observations []Observation
}

// Engine runs grow-cut with a fixed set of parameters
type Engine struct {
	params    RunParameters
	newDevice DeviceFactory
}

// Option customises an Engine
type Option func(*Engine)

// WithDeviceFactory replaces the default CPU device
func WithDeviceFactory(f DeviceFactory) Option {
	return func(e *Engine) {
		e.newDevice = f
	}
}

// NewEngine creates an engine. Zero fields of params take their defaults when
// a run starts.
func NewEngine(params RunParameters, opts ...Option) *Engine {
	e := &Engine{params: params, newDevice: NewCPUDevice}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run grows initial over reference and returns the final labels
func Run(reference *models.Grid, initial *models.LabelGrid, params RunParameters) (*models.LabelGrid, error) {
	res, err := NewEngine(params).Grow(reference, initial)
	if err != nil {
		return nil, err
	}
	return res.Labels, nil
}

// Grow runs the automaton until convergence, the iteration cap or the time
// budget, whichever comes first. The inputs are never modified.
func (e *Engine) Grow(reference *models.Grid, initial *models.LabelGrid) (*Result, error) {
	if err := checkSizes(reference, initial); err != nil {
		return nil, err
	}

	params := e.params.Resolve(reference.Dims)
	if err := params.Validate(); err != nil {
		return nil, err
	}

	buffers := NewBufferSet(reference, initial, params)
	device, err := e.newDevice(buffers, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	defer device.Release()

	res := &Result{RunID: uuid.NewString()}
	logging.Debugf("growcut %s: grid %s, window %d, up to %d iterations, %s of buffers",
		res.RunID, reference.Dims, params.WindowSize, params.MaxIterations, humanize.Bytes(buffers.SizeBytes()))

	start := time.Now()
	deadline := start.Add(params.MaxProcessingTime)
	inspector := NewInspector(params.Inspection)
	total := float64(reference.Dims.Len())

	last := 0
	for i := 0; i < params.MaxIterations; i++ {
		device.Submit(i)
		last = i
		if !inspector.Due(i) {
			continue
		}

		if err := device.Sync(); err != nil {
			return nil, err
		}
		updated := device.Counter(i)
		ratio := float64(updated) / total
		res.Observations = append(res.Observations, Observation{Iteration: i, Updated: updated, Ratio: ratio})

		if inspector.Observe(i, ratio) {
			res.Converged = true
			break
		}
		if time.Now().After(deadline) {
			res.TimedOut = true
			logging.Warningf("growcut %s: processing time exceeded %s after %d iterations, returning partial result",
				res.RunID, params.MaxProcessingTime, i+1)
			break
		}
	}

	if err := device.Sync(); err != nil {
		return nil, err
	}
	res.Labels = models.NewLabelGrid(reference.Dims)
	device.ReadLabels(last, res.Labels.Data)
	res.Iterations = last + 1
	res.Elapsed = time.Since(start)

	logging.Debugf("growcut %s: %d iterations in %s (converged=%v timedOut=%v)",
		res.RunID, res.Iterations, res.Elapsed, res.Converged, res.TimedOut)
	return res, nil
}

func checkSizes(reference *models.Grid, initial *models.LabelGrid) error {
	if reference == nil || initial == nil {
		return fmt.Errorf("%w: missing grid", ErrSizeMismatch)
	}
	if reference.Dims != initial.Dims {
		return fmt.Errorf("%w: reference %s, labels %s", ErrSizeMismatch, reference.Dims, initial.Dims)
	}
	n := reference.Dims.Len()
	if !reference.Dims.Valid() || len(reference.Data) != n || len(initial.Data) != n {
		return fmt.Errorf("%w: buffers do not hold %d voxels", ErrSizeMismatch, n)
	}
	return nil
}
