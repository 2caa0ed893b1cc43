package segmentation

import (
	"errors"
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"growcutseg/internal/models"
	"growcutseg/pkg/growcut"
	"growcutseg/pkg/seed"
	"growcutseg/pkg/volume"
	"growcutseg/pkg/voxelcache"
)

// createTestGrid creates a grid with the specified dimensions and pattern
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

// createBodyGrid creates a block of soft tissue surrounded by air
func createBodyGrid() (*models.Grid, models.Bounds) {
	body := models.Bounds{MinX: 3, MaxX: 8, MinY: 3, MaxY: 8, MinZ: 0, MaxZ: 4}
	g := createTestGrid(models.Dims{Columns: 12, Rows: 12, Slices: 5}, func(x, y, z int) float32 {
		if body.Contains(x, y, z) {
			return 40
		}
		return -1000
	})
	return g, body
}

func runParams() growcut.RunParameters {
	p := growcut.DefaultRunParameters()
	p.MaxProcessingTime = time.Minute
	return p
}

// TestBoundingBoxPipeline runs the whole pipeline and checks that growth
// fills the slices the box strategy leaves unseeded
func TestBoundingBoxPipeline(t *testing.T) {
	reference, body := createBodyGrid()

	segmenter := NewSegmenter(&Params{
		Strategy: seed.BoundingBox{
			TopLeft:     r3.Vec{},
			BottomRight: r3.Vec{X: 11, Y: 11, Z: 4},
		},
		Run:          runParams(),
		SegmentIndex: 3,
	})

	var result *Result
	t.Run("Process", func(t *testing.T) {
		var err error
		result, err = segmenter.Process(reference)
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}
	})
	if result == nil {
		t.FailNow()
	}

	t.Run("Seeding", func(t *testing.T) {
		if got := result.Seeding.Labels.Count(models.DefaultPositiveSeed); got != 3*36 {
			t.Errorf("Expected %d positive seeds, got %d", 3*36, got)
		}
		if result.Seeding.Labels.Value(4, 4, 0) != models.Unlabeled {
			t.Errorf("Expected first slice of the body to start unlabeled")
		}
	})

	t.Run("Composite", func(t *testing.T) {
		labels := result.Labels
		if labels.Dims != reference.Dims {
			t.Fatalf("Expected labels of size %s, got %s", reference.Dims, labels.Dims)
		}
		for idx, label := range labels.Data {
			x, y, z := labels.Dims.Coord(idx)
			want := uint32(0)
			if body.Contains(x, y, z) {
				want = 3
			}
			if label != want {
				t.Errorf("Voxel (%d,%d,%d): expected %d, got %d", x, y, z, want, label)
			}
		}
	})

	t.Run("Metrics", func(t *testing.T) {
		m := segmenter.GetMetrics()
		if m != result.Metrics {
			t.Errorf("GetMetrics does not match the result")
		}
		if m.PositiveVoxels != 180 {
			t.Errorf("Expected 180 positive voxels, got %d", m.PositiveVoxels)
		}
		if m.NegativeVoxels != 540 {
			t.Errorf("Expected 540 negative voxels, got %d", m.NegativeVoxels)
		}
		if m.UnlabeledVoxels != 0 {
			t.Errorf("Expected no unlabeled voxels, got %d", m.UnlabeledVoxels)
		}
		if m.MeanIntensity != 40 || m.StdIntensity != 0 {
			t.Errorf("Expected intensity 40±0, got %f±%f", m.MeanIntensity, m.StdIntensity)
		}
		if math.Abs(m.PositiveFraction-180.0/720.0) > 1e-12 {
			t.Errorf("Unexpected positive fraction %f", m.PositiveFraction)
		}
		if m.PositiveVolume != 180 {
			t.Errorf("Expected volume 180, got %f", m.PositiveVolume)
		}
		if m.RunID == "" || m.Iterations == 0 {
			t.Errorf("Expected run id and iteration count, got %q / %d", m.RunID, m.Iterations)
		}
		if m.Seeds.PositiveSeeds != 108 {
			t.Errorf("Expected 108 positive seeds in metrics, got %d", m.Seeds.PositiveSeeds)
		}
	})
}

func TestKeepNegative(t *testing.T) {
	reference, _ := createBodyGrid()
	res, err := NewSegmenter(&Params{
		Strategy:     seed.BoundingBox{BottomRight: r3.Vec{X: 11, Y: 11, Z: 4}},
		Run:          runParams(),
		KeepNegative: true,
	}).Process(reference)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if got := res.Labels.Count(models.DefaultNegativeSeed); got != 540 {
		t.Errorf("Expected 540 negative voxels, got %d", got)
	}
	// a zero segment index keeps the positive sentinel
	if got := res.Labels.Count(models.DefaultPositiveSeed); got != 180 {
		t.Errorf("Expected 180 positive voxels, got %d", got)
	}
}

// TestZeroRunParameters verifies that leaving Run unset uses the engine defaults
func TestZeroRunParameters(t *testing.T) {
	reference, _ := createBodyGrid()
	segmenter := NewSegmenter(&Params{
		Strategy: seed.BoundingBox{BottomRight: r3.Vec{X: 11, Y: 11, Z: 4}},
	})
	res, err := segmenter.Process(reference)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	m := segmenter.GetMetrics()
	if m.TimedOut {
		t.Errorf("Expected the default time budget, run timed out after %d iterations", m.Iterations)
	}
	if got := res.Labels.Count(models.DefaultPositiveSeed); got != 180 {
		t.Errorf("Expected 180 positive voxels, got %d", got)
	}
}

func TestProcessCachedOneClick(t *testing.T) {
	object := models.Bounds{MinX: 10, MaxX: 14, MinY: 10, MaxY: 14, MinZ: 3, MaxZ: 5}
	reference := createTestGrid(models.Dims{Columns: 30, Rows: 30, Slices: 10}, func(x, y, z int) float32 {
		if object.Contains(x, y, z) {
			return 100
		}
		return 0
	})

	cache := voxelcache.New(8 << 20)
	if err := cache.PutGrid("ct", reference); err != nil {
		t.Fatalf("Failed to cache reference: %v", err)
	}

	segmenter := NewSegmenter(&Params{
		Strategy:     seed.OneClick{Click: r3.Vec{X: 12, Y: 12, Z: 4}},
		Run:          runParams(),
		SegmentIndex: 1,
	})
	res, err := segmenter.ProcessCached(cache, "ct", "ct-seg")
	if err != nil {
		t.Fatalf("ProcessCached failed: %v", err)
	}

	stored, err := cache.Labels("ct-seg")
	if err != nil {
		t.Fatalf("Labels were not stored: %v", err)
	}
	if got := stored.Count(1); got != 75 {
		t.Errorf("Expected 75 segment voxels, got %d", got)
	}
	if res.Seeding.Bounds != (models.Bounds{MinX: 5, MaxX: 19, MinY: 5, MaxY: 19, MinZ: 0, MaxZ: 9}) {
		t.Errorf("Unexpected working region %s", res.Seeding.Bounds)
	}

	_, err = segmenter.ProcessCached(cache, "missing", "out")
	if !errors.Is(err, voxelcache.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestProcessErrors(t *testing.T) {
	reference, _ := createBodyGrid()

	if _, err := NewSegmenter(&Params{}).Process(reference); !errors.Is(err, ErrNoStrategy) {
		t.Errorf("Expected ErrNoStrategy, got %v", err)
	}

	_, err := NewSegmenter(&Params{
		Strategy: seed.OneClick{Click: r3.Vec{X: 100}},
	}).Process(reference)
	if !errors.Is(err, volume.ErrOutOfBounds) {
		t.Errorf("Expected ErrOutOfBounds, got %v", err)
	}

	_, err = NewSegmenter(&Params{
		Strategy: seed.Sphere{
			Center: r3.Vec{X: 5, Y: 5, Z: 2},
			Radius: 2,
			Camera: seed.Camera{ViewPlaneNormal: r3.Vec{X: 1, Y: 1}},
		},
	}).Process(reference)
	if !errors.Is(err, seed.ErrUnsupportedOrientation) {
		t.Errorf("Expected ErrUnsupportedOrientation, got %v", err)
	}

	_, err = NewSegmenter(&Params{
		Strategy: seed.OneClick{Click: r3.Vec{X: 5, Y: 5, Z: 2}},
		DeviceFactory: func(*growcut.BufferSet, growcut.RunParameters) (growcut.Device, error) {
			return nil, errors.New("no adapter")
		},
	}).Process(reference)
	if !errors.Is(err, growcut.ErrDeviceUnavailable) {
		t.Errorf("Expected ErrDeviceUnavailable, got %v", err)
	}
}
