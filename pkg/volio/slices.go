package volio

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"growcutseg/internal/models"
	"growcutseg/pkg/logging"
)

// ReadSlices loads every JPEG or PNG file in dir, ordered by the number in
// the filename. Slice i is placed at i*gap along z.
func ReadSlices(dir string, gap float64) ([]models.Slice, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no JPG or PNG images found in %s", dir)
	}

	// anatomical order follows the slice number, not the lexical order
	sort.SliceStable(names, func(i, j int) bool {
		return extractNumber(names[i]) < extractNumber(names[j])
	})

	slices := make([]models.Slice, 0, len(names))
	for i, name := range names {
		img, err := loadImage(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to load image %s: %w", name, err)
		}
		slices = append(slices, models.Slice{
			Image:    img,
			Index:    i,
			Filename: name,
			Position: float64(i) * gap,
		})
	}

	b := slices[0].Image.Bounds()
	logging.Infof("Loaded %d slices with dimensions %dx%d from %s", len(slices), b.Dx(), b.Dy(), dir)
	return slices, nil
}

// StackSlices builds a grid with one z slice per image. Intensities are the
// luminance scaled to 0..255. All images must share the first one's size.
func StackSlices(slices []models.Slice, spacing r3.Vec) (*models.Grid, error) {
	if len(slices) == 0 {
		return nil, fmt.Errorf("%w: empty slice stack", ErrFormat)
	}
	b := slices[0].Image.Bounds()
	dims := models.Dims{Columns: b.Dx(), Rows: b.Dy(), Slices: len(slices)}
	if !dims.Valid() {
		return nil, fmt.Errorf("%w: slice stack has dims %s", ErrFormat, dims)
	}

	g := models.NewGrid(dims)
	g.Geometry.Spacing = spacing
	g.Geometry.Origin.Z = slices[0].Position
	for k, s := range slices {
		sb := s.Image.Bounds()
		if sb.Dx() != dims.Columns || sb.Dy() != dims.Rows {
			return nil, fmt.Errorf("slice %s is %dx%d, expected %dx%d",
				s.Filename, sb.Dx(), sb.Dy(), dims.Columns, dims.Rows)
		}
		for y := 0; y < dims.Rows; y++ {
			for x := 0; x < dims.Columns; x++ {
				gray := color.Gray16Model.Convert(s.Image.At(sb.Min.X+x, sb.Min.Y+y)).(color.Gray16)
				g.Set(x, y, k, float32(gray.Y)/257)
			}
		}
	}
	return g, nil
}

// LoadSliceStack reads the images in dir and stacks them into a grid
func LoadSliceStack(dir string, spacing r3.Vec) (*models.Grid, error) {
	slices, err := ReadSlices(dir, spacing.Z)
	if err != nil {
		return nil, err
	}
	return StackSlices(slices, spacing)
}

// extractNumber extracts the numeric part from a filename
func extractNumber(filename string) int {
	var digits strings.Builder
	for _, c := range filepath.Base(filename) {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}
	if n, err := strconv.Atoi(digits.String()); err == nil {
		return n
	}
	return 0
}

func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return png.Decode(file)
	default:
		return jpeg.Decode(file)
	}
}
