// Package measure reports physical sizes of label regions.
package measure

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"dicomvolume/internal/models"
)

// LabelVolume returns the volume in cm³ covered by voxels equal to label.
// Each slice contributes its pixel area times the slice step, taken from
// the slice's SpacingBetweenSlices when present and the volume step
// otherwise.
func LabelVolume(v *models.Volume, label float64) (float64, error) {
	if v == nil || v.Array == nil {
		return 0, fmt.Errorf("volume has no array")
	}
	per := make([]float64, v.Array.Shape[2])
	for z := range per {
		step := math.Abs(v.Spacing[2])
		if z < len(v.Slices) && v.Slices[z].SpacingBetweenSlices != nil {
			step = math.Abs(*v.Slices[z].SpacingBetweenSlices)
		}
		per[z] = pixelArea(v, z) * step * float64(count(v.Array, z, label))
	}
	return floats.Sum(per) / 1000, nil
}

// SliceAreas returns, per slice, the area in cm² covered by pixels equal to label.
func SliceAreas(v *models.Volume, label float64) ([]float64, error) {
	if v == nil || v.Array == nil {
		return nil, fmt.Errorf("volume has no array")
	}
	out := make([]float64, v.Array.Shape[2])
	for z := range out {
		out[z] = pixelArea(v, z) * float64(count(v.Array, z, label)) / 100
	}
	return out, nil
}

func pixelArea(v *models.Volume, z int) float64 {
	if z < len(v.Slices) && len(v.Slices[z].PixelSpacing) >= 2 {
		return v.Slices[z].PixelSpacing[0] * v.Slices[z].PixelSpacing[1]
	}
	return v.Spacing[0] * v.Spacing[1]
}

func count(a *models.Array3D, z int, label float64) int {
	size := a.Shape[0] * a.Shape[1]
	n := 0
	for _, x := range a.Data[z*size : (z+1)*size] {
		if x == label {
			n++
		}
	}
	return n
}
