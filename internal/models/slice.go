package models

import (
	"image"
)

// Slice is one 2D image of a stack that becomes a z slice of a Grid
type Slice struct {
	// Image is the decoded slice image
	Image image.Image

	// Index is the position of this slice in the sequence
	Index int

	// Filename is the original filename of the slice
	Filename string

	// Position is the physical position of the slice along the z axis
	Position float64
}
