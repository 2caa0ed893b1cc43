package seed

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"growcutseg/internal/models"
	"growcutseg/pkg/volume"
)

// orientationTolerance is how far |cos| between the view normal and a grid
// axis may drop below 1 before the view counts as oblique.
const orientationTolerance = 1e-3

// Camera is the viewport orientation the sphere was drawn in
type Camera struct {
	ViewPlaneNormal r3.Vec
	ViewUp          r3.Vec
}

// SphereOptions tunes the Sphere strategy
type SphereOptions struct {
	Seeds SeedValues `yaml:"seeds" toml:"seeds"`

	// PositiveVariance is the homogeneity band of the positive flood.
	PositiveVariance float64 `yaml:"positiveVariance" toml:"positiveVariance"`

	// NegativeVariance is the band a circle sample must leave to be marked
	// negative.
	NegativeVariance float64 `yaml:"negativeVariance" toml:"negativeVariance"`

	// BoundsPadding grows the working region beyond the radius, as a
	// fraction of the radius.
	BoundsPadding float64 `yaml:"boundsPadding" toml:"boundsPadding"`

	CircleSamples int `yaml:"circleSamples" toml:"circleSamples"`
}

// DefaultSphereOptions returns the options used for zero SphereOptions fields
func DefaultSphereOptions() SphereOptions {
	return SphereOptions{
		Seeds:            DefaultSeedValues(),
		PositiveVariance: 0.1,
		NegativeVariance: 0.1,
		BoundsPadding:    0.5,
		CircleSamples:    360,
	}
}

// Sphere seeds from a sphere drawn around the target: a homogeneity flood
// from its centre is positive, samples on its rim that differ from the
// centre are negative.
type Sphere struct {
	Center  r3.Vec
	Radius  float64
	Camera  Camera
	Options SphereOptions
}

// withDefaults replaces every zero field with its default
func (o SphereOptions) withDefaults() SphereOptions {
	d := DefaultSphereOptions()
	o.Seeds = o.Seeds.withDefaults()
	if o.PositiveVariance == 0 {
		o.PositiveVariance = d.PositiveVariance
	}
	if o.NegativeVariance == 0 {
		o.NegativeVariance = d.NegativeVariance
	}
	if o.BoundsPadding == 0 {
		o.BoundsPadding = d.BoundsPadding
	}
	if o.CircleSamples <= 0 {
		o.CircleSamples = d.CircleSamples
	}
	return o
}

// Name identifies the strategy in logs and metrics
func (s Sphere) Name() string { return "sphere" }

// Seed carves the padded sphere region out of reference and seeds it.
// Oblique camera orientations are rejected with ErrUnsupportedOrientation.
func (s Sphere) Seed(reference *models.Grid) (*Seeding, error) {
	opts := s.Options.withDefaults()
	if err := opts.Seeds.Validate(); err != nil {
		return nil, err
	}
	if s.Radius < 0 || math.IsNaN(s.Radius) {
		return nil, fmt.Errorf("%w: radius %v", ErrInvalidRegion, s.Radius)
	}

	geom := reference.Geometry
	axis, err := viewAxis(geom, s.Camera.ViewPlaneNormal)
	if err != nil {
		return nil, err
	}

	ci, cj, ck := geom.NearestIndex(s.Center)
	if !reference.Dims.InBounds(ci, cj, ck) {
		return nil, fmt.Errorf("%w: sphere centre (%d,%d,%d) outside %s", volume.ErrOutOfBounds, ci, cj, ck, reference.Dims)
	}

	reach := s.Radius * (1 + opts.BoundsPadding)
	bounds := models.Bounds{MinX: ci, MaxX: ci, MinY: cj, MaxY: cj, MinZ: ck, MaxZ: ck}.
		Pad(voxels(reach, geom.Spacing.X), voxels(reach, geom.Spacing.Y), voxels(reach, geom.Spacing.Z)).
		Clamp(reference.Dims)

	region, err := volume.Extract(reference, bounds)
	if err != nil {
		return nil, err
	}
	labels := models.NewLabelGrid(region.Dims)

	li, lj, lk := ci-bounds.MinX, cj-bounds.MinY, ck-bounds.MinZ
	for _, idx := range floodHomogeneous(region, li, lj, lk, opts.PositiveVariance, 0).Indices {
		labels.Data[idx] = opts.Seeds.Positive
	}

	center := region.Value(li, lj, lk)
	normal := r3.Unit(s.Camera.ViewPlaneNormal)
	for _, p := range circlePoints(s.Center, s.Radius, normal, s.Camera.ViewUp, geom.Direction[(axis+1)%3], opts.CircleSamples) {
		i, j, k := region.Geometry.NearestIndex(p)
		if !region.Dims.InBounds(i, j, k) {
			continue
		}
		idx := region.Dims.Index(i, j, k)
		if labels.Data[idx] == opts.Seeds.Positive {
			continue
		}
		if !withinBand(region.Data[idx], center, opts.NegativeVariance) {
			labels.Data[idx] = opts.Seeds.Negative
		}
	}

	return newSeeding(region, labels, bounds, opts.Seeds), nil
}

// viewAxis returns the grid axis the view plane normal is parallel to
func viewAxis(geom models.Geometry, normal r3.Vec) (int, error) {
	if r3.Norm(normal) == 0 {
		return 0, fmt.Errorf("%w: zero view plane normal", ErrUnsupportedOrientation)
	}
	n := r3.Unit(normal)
	for axis, dir := range geom.Direction {
		if r3.Norm(dir) == 0 {
			continue
		}
		if math.Abs(r3.Dot(n, r3.Unit(dir))) >= 1-orientationTolerance {
			return axis, nil
		}
	}
	return 0, fmt.Errorf("%w: normal %v", ErrUnsupportedOrientation, normal)
}

// circlePoints samples the circle of the given radius around center in the
// plane orthogonal to normal. The first sample lies along viewUp × normal,
// or along fallback when viewUp is parallel to the normal.
func circlePoints(center r3.Vec, radius float64, normal, viewUp, fallback r3.Vec, samples int) []r3.Vec {
	start := r3.Cross(viewUp, normal)
	if r3.Norm(start) < 1e-9 {
		start = fallback
	}
	start = r3.Scale(radius, r3.Unit(start))

	points := make([]r3.Vec, 0, samples)
	for n := 0; n < samples; n++ {
		alpha := 2 * math.Pi * float64(n) / float64(samples)
		points = append(points, r3.Add(center, r3.NewRotation(alpha, normal).Rotate(start)))
	}
	return points
}

// voxels converts a world distance into a whole number of voxels along an
// axis of the given spacing
func voxels(dist, spacing float64) int {
	if spacing <= 0 {
		spacing = 1
	}
	return int(math.Ceil(dist / spacing))
}
