package growcut

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"growcutseg/internal/models"
)

const (
	pos = models.DefaultPositiveSeed
	neg = models.DefaultNegativeSeed
)

// createTestGrid builds a grid from a pattern function
func createTestGrid(dims models.Dims, pattern func(x, y, z int) float32) *models.Grid {
	g := models.NewGrid(dims)
	for z := 0; z < dims.Slices; z++ {
		for y := 0; y < dims.Rows; y++ {
			for x := 0; x < dims.Columns; x++ {
				g.Set(x, y, z, pattern(x, y, z))
			}
		}
	}
	return g
}

func constant(v float32) func(x, y, z int) float32 {
	return func(int, int, int) float32 { return v }
}

// testParams never converges early and never times out
func testParams(iterations int) RunParameters {
	p := DefaultRunParameters()
	p.MaxIterations = iterations
	p.MaxProcessingTime = time.Minute
	p.Inspection.Threshold = -1
	return p
}

func chebyshev(ax, ay, az, bx, by, bz int) int {
	abs := func(v int) int {
		if v < 0 {
			return -v
		}
		return v
	}
	return max(abs(ax-bx), abs(ay-by), abs(az-bz))
}

func TestSeedDominanceAfterFirstIteration(t *testing.T) {
	dims := models.Dims{Columns: 6, Rows: 5, Slices: 4}
	ref := createTestGrid(dims, func(x, y, z int) float32 { return float32(x * y * z) })
	initial := models.NewLabelGrid(dims)
	initial.Set(1, 1, 1, pos)
	initial.Set(4, 3, 2, neg)
	initial.Set(0, 4, 3, 7)

	params := testParams(4).Resolve(dims)
	b := NewBufferSet(ref, initial, params)
	require.NoError(t, TiledKernel{TileSize: 16, Workers: 3}.Dispatch(b, 0))

	for idx, label := range initial.Data {
		if label != 0 {
			assert.Equal(t, MaxStrength, b.Strengths[0][idx], "strength at %d", idx)
			assert.Equal(t, label, b.Labels[0][idx], "label at %d", idx)
		} else {
			assert.Zero(t, b.Strengths[0][idx])
		}
	}
	assert.Zero(t, b.Counters[0])

	// A single iteration returns the seeds verbatim
	res, err := NewEngine(testParams(1)).Grow(ref, initial)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Iterations)
	if diff := cmp.Diff(initial.Data, res.Labels.Data); diff != "" {
		t.Errorf("seed pass changed labels (-want +got):\n%s", diff)
	}
}

func TestFlatVolumeSplitsOnChebyshevBisector(t *testing.T) {
	dims := models.Dims{Columns: 4, Rows: 4, Slices: 4}
	ref := createTestGrid(dims, constant(100))
	initial := models.NewLabelGrid(dims)
	initial.Set(0, 0, 0, pos)
	initial.Set(3, 3, 3, neg)

	res, err := NewEngine(testParams(16)).Grow(ref, initial)
	require.NoError(t, err)

	for z := 0; z < 4; z++ {
		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				dp := chebyshev(x, y, z, 0, 0, 0)
				dn := chebyshev(x, y, z, 3, 3, 3)
				got := res.Labels.Value(x, y, z)
				switch {
				case dp < dn:
					assert.Equal(t, pos, got, "voxel (%d,%d,%d)", x, y, z)
				case dn < dp:
					assert.Equal(t, neg, got, "voxel (%d,%d,%d)", x, y, z)
				default:
					assert.Contains(t, []uint32{pos, neg}, got, "voxel (%d,%d,%d)", x, y, z)
				}
			}
		}
	}
	assert.Zero(t, res.Labels.Count(models.Unlabeled))
}

func TestUpdateCountersTrackFront(t *testing.T) {
	dims := models.Dims{Columns: 4, Rows: 4, Slices: 4}
	ref := createTestGrid(dims, constant(100))
	initial := models.NewLabelGrid(dims)
	initial.Set(0, 0, 0, pos)
	initial.Set(3, 3, 3, neg)

	b := NewBufferSet(ref, initial, testParams(5).Resolve(dims))
	kernel := TiledKernel{TileSize: 7, Workers: 4}
	for i := 0; i < 5; i++ {
		require.NoError(t, kernel.Dispatch(b, i))
	}

	// voxels first reached at Chebyshev distance 1, 2 and 3
	assert.Equal(t, []uint32{0, 14, 30, 18, 0}, b.Counters)
}

func TestIntensityWallBlocksPositiveGrowth(t *testing.T) {
	dims := models.Dims{Columns: 5, Rows: 3, Slices: 1}
	ref := createTestGrid(dims, func(x, y, z int) float32 {
		if x == 2 {
			return 10000
		}
		return 0
	})
	initial := models.NewLabelGrid(dims)
	for y := 0; y < dims.Rows; y++ {
		initial.Set(0, y, 0, pos)
		initial.Set(4, y, 0, neg)
	}

	res, err := NewEngine(testParams(6)).Grow(ref, initial)
	require.NoError(t, err)

	for y := 0; y < dims.Rows; y++ {
		assert.Equal(t, pos, res.Labels.Value(0, y, 0))
		assert.Equal(t, pos, res.Labels.Value(1, y, 0))
		assert.NotZero(t, res.Labels.Value(2, y, 0))
		assert.Equal(t, neg, res.Labels.Value(3, y, 0), "column 3 row %d", y)
		assert.Equal(t, neg, res.Labels.Value(4, y, 0), "column 4 row %d", y)
	}
}

func TestNoGrowthWithoutAffordablePath(t *testing.T) {
	dims := models.Dims{Columns: 5, Rows: 4, Slices: 2}
	ref := createTestGrid(dims, func(x, y, z int) float32 {
		if x == 2 {
			return 1e6
		}
		return 0
	})
	initial := models.NewLabelGrid(dims)
	initial.Set(0, 1, 0, pos)

	for _, iterations := range []int{2, 5, 20} {
		res, err := NewEngine(testParams(iterations)).Grow(ref, initial)
		require.NoError(t, err)
		for z := 0; z < dims.Slices; z++ {
			for y := 0; y < dims.Rows; y++ {
				for x := 2; x < dims.Columns; x++ {
					assert.Equal(t, models.Unlabeled, res.Labels.Value(x, y, z),
						"iterations %d voxel (%d,%d,%d)", iterations, x, y, z)
				}
			}
		}
	}
}

func TestWindowSizeOneNeverGrows(t *testing.T) {
	dims := models.Dims{Columns: 3, Rows: 3, Slices: 3}
	ref := createTestGrid(dims, constant(1))
	initial := models.NewLabelGrid(dims)
	initial.Set(1, 1, 1, pos)

	params := testParams(5)
	params.WindowSize = 1
	labels, err := Run(ref, initial, params)
	require.NoError(t, err)
	assert.Equal(t, 1, labels.Count(pos))
}

func TestNaNVoxelsStayUnlabeled(t *testing.T) {
	dims := models.Dims{Columns: 4, Rows: 1, Slices: 1}
	nan := float32(math.NaN())
	ref, err := models.NewGridFromData(dims, []float32{0, 0, nan, 0})
	require.NoError(t, err)
	initial := models.NewLabelGrid(dims)
	initial.Set(0, 0, 0, pos)

	labels, err := Run(ref, initial, testParams(6))
	require.NoError(t, err)
	assert.Equal(t, []uint32{pos, pos, 0, 0}, labels.Data)
}

func TestDeterministicAcrossWorkersAndTiles(t *testing.T) {
	dims := models.Dims{Columns: 17, Rows: 13, Slices: 7}
	rng := rand.New(rand.NewSource(42))
	ref := createTestGrid(dims, func(x, y, z int) float32 {
		return float32(rng.Intn(400))
	})
	initial := models.NewLabelGrid(dims)
	initial.Set(2, 2, 1, pos)
	initial.Set(14, 10, 5, neg)
	initial.Set(8, 6, 3, pos)

	params := testParams(12)
	params.Workers = 1
	params.TileSize = dims.Len()
	first, err := Run(ref, initial, params)
	require.NoError(t, err)

	params.Workers = 8
	params.TileSize = 37
	second, err := Run(ref, initial, params)
	require.NoError(t, err)

	third, err := Run(ref, initial, params)
	require.NoError(t, err)

	if diff := cmp.Diff(first.Data, second.Data); diff != "" {
		t.Errorf("labels depend on tiling (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(second.Data, third.Data); diff != "" {
		t.Errorf("repeated run differs (-second +third):\n%s", diff)
	}
}

func TestConvergesOnStableLabeling(t *testing.T) {
	dims := models.Dims{Columns: 4, Rows: 4, Slices: 4}
	ref := createTestGrid(dims, constant(100))
	initial := models.NewLabelGrid(dims)
	initial.Set(0, 0, 0, pos)
	initial.Set(3, 3, 3, neg)

	params := DefaultRunParameters()
	params.MaxIterations = 50
	params.MaxProcessingTime = time.Minute

	res, err := NewEngine(params).Grow(ref, initial)
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.False(t, res.TimedOut)
	// inspected at 5, then every iteration until three quiet reads
	assert.Equal(t, 8, res.Iterations)
	require.Len(t, res.Observations, 3)
	for _, obs := range res.Observations {
		assert.Zero(t, obs.Updated)
	}
}

func TestTimeBoxReturnsPartialResult(t *testing.T) {
	dims := models.Dims{Columns: 24, Rows: 24, Slices: 24}
	ref := createTestGrid(dims, func(x, y, z int) float32 { return float32(x + y) })
	initial := models.NewLabelGrid(dims)
	initial.Set(0, 0, 0, pos)
	initial.Set(23, 23, 23, neg)

	params := testParams(500)
	params.MaxProcessingTime = time.Nanosecond

	start := time.Now()
	res, err := NewEngine(params).Grow(ref, initial)
	require.NoError(t, err)

	assert.True(t, res.TimedOut)
	assert.False(t, res.Converged)
	assert.LessOrEqual(t, res.Iterations, params.Inspection.Interval+1)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, pos, res.Labels.Value(0, 0, 0))
	assert.Equal(t, neg, res.Labels.Value(23, 23, 23))
}

func TestSizeMismatch(t *testing.T) {
	ref := models.NewGrid(models.Dims{Columns: 3, Rows: 3, Slices: 1})
	labels := models.NewLabelGrid(models.Dims{Columns: 3, Rows: 3, Slices: 2})

	_, err := Run(ref, labels, DefaultRunParameters())
	assert.True(t, errors.Is(err, ErrSizeMismatch), "got %v", err)

	truncated := models.NewLabelGrid(ref.Dims)
	truncated.Data = truncated.Data[:4]
	_, err = Run(ref, truncated, DefaultRunParameters())
	assert.True(t, errors.Is(err, ErrSizeMismatch), "got %v", err)
}

func TestDeviceUnavailable(t *testing.T) {
	dims := models.Dims{Columns: 2, Rows: 2, Slices: 1}
	failing := func(*BufferSet, RunParameters) (Device, error) {
		return nil, errors.New("no adapter")
	}

	_, err := NewEngine(DefaultRunParameters(), WithDeviceFactory(failing)).
		Grow(models.NewGrid(dims), models.NewLabelGrid(dims))
	assert.True(t, errors.Is(err, ErrDeviceUnavailable), "got %v", err)
}

func TestInvalidWindowSize(t *testing.T) {
	dims := models.Dims{Columns: 2, Rows: 2, Slices: 1}
	params := DefaultRunParameters()
	params.WindowSize = 4

	_, err := Run(models.NewGrid(dims), models.NewLabelGrid(dims), params)
	assert.True(t, errors.Is(err, ErrInvalidParameters), "got %v", err)
}

func TestMaxIterationsFor(t *testing.T) {
	assert.Equal(t, 4, MaxIterationsFor(models.Dims{Columns: 4, Rows: 4, Slices: 4}))
	assert.Equal(t, 1, MaxIterationsFor(models.Dims{Columns: 1, Rows: 1, Slices: 1}))
	assert.Equal(t, 71, MaxIterationsFor(models.Dims{Columns: 100, Rows: 100, Slices: 1}))
	// sqrt(100+400+900)/2 = 18.7
	assert.Equal(t, 19, MaxIterationsFor(models.Dims{Columns: 10, Rows: 20, Slices: 30}))
}

func TestResolveFillsZeroFields(t *testing.T) {
	dims := models.Dims{Columns: 10, Rows: 20, Slices: 30}
	want := DefaultRunParameters()
	want.MaxIterations = MaxIterationsFor(dims)

	assert.Equal(t, want, RunParameters{}.Resolve(dims))

	// explicit values survive
	p := RunParameters{MaxProcessingTime: time.Second, Inspection: Inspection{Threshold: -1}}.Resolve(dims)
	assert.Equal(t, time.Second, p.MaxProcessingTime)
	assert.Equal(t, -1.0, p.Inspection.Threshold)
}

func TestGrowWithZeroParameters(t *testing.T) {
	dims := models.Dims{Columns: 40, Rows: 1, Slices: 1}
	ref := createTestGrid(dims, constant(100))
	initial := models.NewLabelGrid(dims)
	// the derived cap of 21 iterations reaches 20 voxels either side
	initial.Set(20, 0, 0, pos)

	res, err := NewEngine(RunParameters{}).Grow(ref, initial)
	require.NoError(t, err)
	assert.False(t, res.TimedOut)
	assert.Equal(t, 40, res.Labels.Count(pos))

	labels, err := Run(ref, initial, RunParameters{})
	require.NoError(t, err)
	assert.Equal(t, 40, labels.Count(pos))
}
