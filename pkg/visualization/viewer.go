package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"growcutseg/internal/models"
	"growcutseg/pkg/volume"
)

// Default overlay colours
var (
	PositiveColor = color.RGBA{R: 255, A: 255}
	NegativeColor = color.RGBA{B: 255, A: 255}
	OtherColor    = color.RGBA{G: 255, A: 255}
)

// Viewer renders slices of a reference grid with a label grid overlaid
type Viewer struct {
	// reference holds the intensity volume
	reference *models.Grid

	// labels is drawn on top of the reference; may be nil
	labels *models.LabelGrid

	// window maps intensities [lo, hi] onto black..white
	lo, hi float64

	// palette overrides the colour of specific labels
	palette map[uint32]color.RGBA

	// opacity of the label overlay, 0..1
	opacity float64
}

// NewViewer creates a viewer. The intensity window spans the grid's finite
// minimum and maximum.
func NewViewer(reference *models.Grid, labels *models.LabelGrid) (*Viewer, error) {
	if labels != nil && labels.Dims != reference.Dims {
		return nil, fmt.Errorf("label grid %s does not match reference %s", labels.Dims, reference.Dims)
	}
	v := &Viewer{
		reference: reference,
		labels:    labels,
		palette: map[uint32]color.RGBA{
			models.DefaultPositiveSeed: PositiveColor,
			models.DefaultNegativeSeed: NegativeColor,
		},
		opacity: 0.5,
	}
	v.lo, v.hi = findMinMax(reference.Data)
	return v, nil
}

// SetWindow sets the intensity range mapped onto the gray scale
func (v *Viewer) SetWindow(lo, hi float64) {
	v.lo, v.hi = lo, hi
}

// SetColor sets the overlay colour of one label value
func (v *Viewer) SetColor(label uint32, c color.RGBA) {
	v.palette[label] = c
}

// ExtractSlice extracts a 2D slice from the volume along the specified axis
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	d := v.reference.Dims
	var img *image.RGBA

	switch axis {
	case "x", "X":
		// Extract slice along YZ plane
		if position >= d.Columns {
			return nil, fmt.Errorf("position %d exceeds width %d", position, d.Columns)
		}
		img = image.NewRGBA(image.Rect(0, 0, d.Slices, d.Rows))
		for y := 0; y < d.Rows; y++ {
			for z := 0; z < d.Slices; z++ {
				img.SetRGBA(z, y, v.pixel(d.Index(position, y, z)))
			}
		}

	case "y", "Y":
		// Extract slice along XZ plane
		if position >= d.Rows {
			return nil, fmt.Errorf("position %d exceeds height %d", position, d.Rows)
		}
		img = image.NewRGBA(image.Rect(0, 0, d.Columns, d.Slices))
		for z := 0; z < d.Slices; z++ {
			for x := 0; x < d.Columns; x++ {
				img.SetRGBA(x, z, v.pixel(d.Index(x, position, z)))
			}
		}

	case "z", "Z":
		// Extract slice along XY plane
		if position >= d.Slices {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, d.Slices)
		}
		img = image.NewRGBA(image.Rect(0, 0, d.Columns, d.Rows))
		for y := 0; y < d.Rows; y++ {
			for x := 0; x < d.Columns; x++ {
				img.SetRGBA(x, y, v.pixel(d.Index(x, y, position)))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// ExtractRegion extracts a 3D subregion of the reference
func (v *Viewer) ExtractRegion(bounds models.Bounds) (*models.Grid, error) {
	return volume.Extract(v.reference, bounds)
}

// SaveSlice saves an extracted slice as a PNG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, img)
}

// SaveSliceSequence extracts and saves a sequence of slices along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	d := v.reference.Dims
	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = d.Columns
	case "y", "Y":
		maxPos = d.Rows
	case "z", "Z":
		maxPos = d.Slices
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}

// pixel returns the gray value of voxel idx blended with its label colour
func (v *Viewer) pixel(idx int) color.RGBA {
	g := v.gray(float64(v.reference.Data[idx]))
	out := color.RGBA{R: g, G: g, B: g, A: 255}
	if v.labels == nil {
		return out
	}

	label := v.labels.Data[idx]
	if label == models.Unlabeled {
		return out
	}
	c, ok := v.palette[label]
	if !ok {
		c = OtherColor
	}
	blend := func(base, over uint8) uint8 {
		return uint8(math.Round(float64(base)*(1-v.opacity) + float64(over)*v.opacity))
	}
	return color.RGBA{R: blend(g, c.R), G: blend(g, c.G), B: blend(g, c.B), A: 255}
}

func (v *Viewer) gray(value float64) uint8 {
	if math.IsNaN(value) || v.hi <= v.lo {
		return 0
	}
	t := (value - v.lo) / (v.hi - v.lo)
	return uint8(math.Round(math.Max(0, math.Min(1, t)) * 255))
}

func findMinMax(data []float32) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, f := range data {
		x := float64(f)
		if math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	if lo > hi {
		return 0, 0
	}
	return lo, hi
}
