// Package testutil builds synthetic slices and volumes for package tests.
package testutil

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"dicomvolume/internal/models"
)

// Slice returns an axial slice at principal position z with a rows x cols
// pixel array filled with fill, 1 mm in-plane spacing and identity orientation.
func Slice(z float64, rows, cols int, fill float64) *models.Slice {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = fill
	}
	s := &models.Slice{
		Position:     []float64{0, 0, z},
		Orientation:  []float64{1, 0, 0, 0, 1, 0},
		PixelSpacing: []float64{1, 1},
		Modality:     models.String("MR"),
		SeriesNumber: models.Int(1),
		Attributes:   map[string]string{},
		Source:       fmt.Sprintf("slice_%g", z),
	}
	s.SetPixels(mat.NewDense(rows, cols, data))
	return s
}

// Series returns one slice per position, instance numbers in order.
func Series(positions []float64, rows, cols int) []*models.Slice {
	out := make([]*models.Slice, len(positions))
	for i, z := range positions {
		out[i] = Slice(z, rows, cols, float64(i))
		out[i].InstanceNumber = i + 1
	}
	return out
}

// WithStep sets SpacingBetweenSlices on every slice.
func WithStep(sl []*models.Slice, step float64) []*models.Slice {
	for _, s := range sl {
		s.SpacingBetweenSlices = models.Float(step)
	}
	return sl
}

// Positions returns the principal positions of the slices, in order.
func Positions(sl []*models.Slice) []float64 {
	out := make([]float64, len(sl))
	for i, s := range sl {
		out[i], _ = s.PrincipalPosition()
	}
	return out
}

// Mask returns a label volume of the given shape with value inside the box
// [lo, hi) on every axis and zero elsewhere.
func Mask(shape [3]int, lo, hi [3]int, value float64) *models.Volume {
	arr := models.NewArray3D(shape)
	for z := lo[2]; z < hi[2]; z++ {
		for r := lo[0]; r < hi[0]; r++ {
			for c := lo[1]; c < hi[1]; c++ {
				arr.Set(r, c, z, value)
			}
		}
	}
	return &models.Volume{Array: arr, Spacing: [3]float64{1, 1, 1}, IsLabel: true}
}

// Volume wraps an array in a volume with the given spacing and matching slices.
func Volume(arr *models.Array3D, spacing [3]float64) *models.Volume {
	v := &models.Volume{Array: arr, Spacing: spacing}
	for z := 0; z < arr.Shape[2]; z++ {
		s := Slice(float64(z)*spacing[2], arr.Shape[0], arr.Shape[1], 0)
		s.PixelSpacing = []float64{spacing[0], spacing[1]}
		s.SpacingBetweenSlices = models.Float(spacing[2])
		s.SetPixels(arr.Plane(z))
		v.Slices = append(v.Slices, s)
	}
	return v
}
