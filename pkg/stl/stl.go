// Package stl turns a segment of a label grid into a triangle surface and
// writes it as binary STL.
package stl

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"

	"gonum.org/v1/gonum/spatial/r3"

	"growcutseg/internal/models"
)

// Triangle is one facet of the surface
type Triangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
}

// VoxelMesher builds the boundary surface of every voxel holding one label.
// Voxel (i, j, k) occupies the unit cube [i, i+1] x [j, j+1] x [k, k+1]
// before scaling.
type VoxelMesher struct {
	labels *models.LabelGrid
	value  uint32

	xScale, yScale, zScale float32
}

// NewVoxelMesher creates a mesher for the voxels of labels equal to value
func NewVoxelMesher(labels *models.LabelGrid, value uint32) *VoxelMesher {
	return &VoxelMesher{
		labels: labels,
		value:  value,
		xScale: 1, yScale: 1, zScale: 1,
	}
}

// SetScale sets the size of one voxel along each axis
func (m *VoxelMesher) SetScale(x, y, z float32) {
	m.xScale, m.yScale, m.zScale = x, y, z
}

// GenerateTriangles emits two triangles for every face between a segment
// voxel and a non-segment voxel or the grid border. Normals point out of the
// segment, and vertices wind counter-clockwise seen from outside.
func (m *VoxelMesher) GenerateTriangles() []Triangle {
	d := m.labels.Dims
	var triangles []Triangle

	for idx, label := range m.labels.Data {
		if label != m.value {
			continue
		}
		x, y, z := d.Coord(idx)
		voxel := [3]int{x, y, z}

		for axis := 0; axis < 3; axis++ {
			for _, sign := range []int{-1, 1} {
				n := voxel
				n[axis] += sign
				if d.InBounds(n[0], n[1], n[2]) && m.labels.Value(n[0], n[1], n[2]) == m.value {
					continue
				}
				triangles = append(triangles, m.face(voxel, axis, sign)...)
			}
		}
	}
	return triangles
}

// face returns the two triangles of one side of a voxel
func (m *VoxelMesher) face(voxel [3]int, axis, sign int) []Triangle {
	b, c := (axis+1)%3, (axis+2)%3
	plane := voxel[axis]
	if sign > 0 {
		plane++
	}

	var corners [4]r3.Vec
	for i, uv := range [4][2]int{{0, 0}, {1, 0}, {1, 1}, {0, 1}} {
		p := [3]float64{}
		p[axis] = float64(plane)
		p[b] = float64(voxel[b] + uv[0])
		p[c] = float64(voxel[c] + uv[1])
		corners[i] = r3.Vec{X: p[0], Y: p[1], Z: p[2]}
	}

	normal := [3]float32{}
	normal[axis] = float32(sign)
	return []Triangle{
		m.triangle(normal, corners[0], corners[1], corners[2]),
		m.triangle(normal, corners[0], corners[2], corners[3]),
	}
}

// triangle scales the vertices and orders them to agree with normal
func (m *VoxelMesher) triangle(normal [3]float32, a, b, c r3.Vec) Triangle {
	n := r3.Vec{X: float64(normal[0]), Y: float64(normal[1]), Z: float64(normal[2])}
	if r3.Dot(r3.Cross(r3.Sub(b, a), r3.Sub(c, a)), n) < 0 {
		b, c = c, b
	}
	return Triangle{
		Normal:  normal,
		Vertex1: m.scale(a),
		Vertex2: m.scale(b),
		Vertex3: m.scale(c),
	}
}

func (m *VoxelMesher) scale(p r3.Vec) [3]float32 {
	return [3]float32{float32(p.X) * m.xScale, float32(p.Y) * m.yScale, float32(p.Z) * m.zScale}
}

// FromLabels meshes the voxels equal to value with the given voxel spacing
func FromLabels(labels *models.LabelGrid, value uint32, spacing r3.Vec) []Triangle {
	m := NewVoxelMesher(labels, value)
	m.SetScale(float32(spacing.X), float32(spacing.Y), float32(spacing.Z))
	return m.GenerateTriangles()
}

// SaveToSTL writes triangles to filename in binary STL format
func SaveToSTL(filename string, triangles []Triangle) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)

	// 80 byte header followed by the triangle count
	header := make([]byte, 80)
	copy(header, "growcutseg voxel surface")
	if _, err := w.Write(header); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(triangles))); err != nil {
		return err
	}

	for i, t := range triangles {
		// normal, three vertices, attribute byte count
		record := struct {
			Triangle
			Attr uint16
		}{Triangle: t}
		if err := binary.Write(w, binary.LittleEndian, &record); err != nil {
			return fmt.Errorf("failed to write triangle %d: %w", i, err)
		}
	}

	if err := w.Flush(); err != nil {
		return err
	}
	return file.Close()
}
