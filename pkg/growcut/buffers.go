package growcut

import (
	"growcutseg/internal/models"
)

// MaxStrength is the strength every seeded voxel starts with
const MaxStrength float32 = 65535

// BufferSet is the state owned by one run: the reference intensities, two
// label/strength pairs used in ping-pong fashion, and one update counter per
// iteration.
//
// Iteration i writes pair i%2 and reads pair (i+1)%2 only.
type BufferSet struct {
	Dims       models.Dims
	WindowSize int

	Reference []float32
	Labels    [2][]uint32
	Strengths [2][]float32

	// Counters[i] is the number of voxels whose label changed in iteration i.
	// Written with atomic adds by the kernel, read by the host after a sync.
	Counters []uint32
}

// NewBufferSet allocates fresh buffers for a run and uploads the reference
// values and initial labels. The inputs are copied, never aliased.
func NewBufferSet(reference *models.Grid, initial *models.LabelGrid, params RunParameters) *BufferSet {
	n := reference.Dims.Len()
	b := &BufferSet{
		Dims:       reference.Dims,
		WindowSize: params.WindowSize,
		Reference:  make([]float32, n),
		Counters:   make([]uint32, params.MaxIterations),
	}
	copy(b.Reference, reference.Data)
	for p := 0; p < 2; p++ {
		b.Labels[p] = make([]uint32, n)
		copy(b.Labels[p], initial.Data)
		b.Strengths[p] = make([]float32, n)
	}
	return b
}

// Current returns the index of the pair written by the given iteration
func Current(iteration int) int {
	return iteration & 1
}

// SizeBytes returns the memory held by the buffers
func (b *BufferSet) SizeBytes() uint64 {
	n := uint64(len(b.Reference))
	// reference + 2 label + 2 strength buffers, 4 bytes each
	return n*4*5 + uint64(len(b.Counters))*4
}

func (b *BufferSet) release() {
	b.Reference = nil
	b.Labels = [2][]uint32{}
	b.Strengths = [2][]float32{}
	b.Counters = nil
}
