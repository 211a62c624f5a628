package align

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"dicomvolume/internal/models"
)

// Window maps a box of the moving array onto a box of the reference-shaped
// output. Stops are exclusive; every axis satisfies Stop >= Start.
type Window struct {
	OutputStart, OutputStop [3]int
	InputStart, InputStop   [3]int
}

// Empty reports whether the window copies nothing.
func (w Window) Empty() bool {
	for i := 0; i < 3; i++ {
		if w.OutputStop[i] <= w.OutputStart[i] {
			return true
		}
	}
	return false
}

func (w Window) String() string {
	return fmt.Sprintf("out[%v:%v] = in[%v:%v]", w.OutputStart, w.OutputStop, w.InputStart, w.InputStop)
}

// ComputeWindow returns the window that places moving landmark c2 on
// reference landmark c1, cropping whatever falls outside the reference shape.
func ComputeWindow(refShape [3]int, c1 [3]int, movingShape [3]int, c2 [3]int) Window {
	var w Window
	for i := 0; i < 3; i++ {
		d := c2[i] - c1[i]
		w.InputStart[i] = max(0, d)
		w.InputStop[i] = min(movingShape[i], d+refShape[i])
		w.OutputStart[i] = max(0, -d)
		w.OutputStop[i] = min(refShape[i], -d+movingShape[i])

		// no overlap on this axis
		if w.InputStop[i] < w.InputStart[i] || w.OutputStop[i] < w.OutputStart[i] {
			w.InputStop[i], w.OutputStop[i] = w.InputStart[i], w.OutputStart[i]
		}
	}
	return w
}

// WriteShifted returns a zero array of shape with the moving window copied in.
func WriteShifted(shape [3]int, moving *models.Array3D, w Window) *models.Array3D {
	out := models.NewArray3D(shape)
	if w.Empty() {
		return out
	}
	d := [3]int{
		w.OutputStart[0] - w.InputStart[0],
		w.OutputStart[1] - w.InputStart[1],
		w.OutputStart[2] - w.InputStart[2],
	}
	for z := w.InputStart[2]; z < w.InputStop[2]; z++ {
		for r := w.InputStart[0]; r < w.InputStop[0]; r++ {
			for c := w.InputStart[1]; c < w.InputStop[1]; c++ {
				out.Set(r+d[0], c+d[1], z+d[2], moving.At(r, c, z))
			}
		}
	}
	return out
}

// Centroid returns the floored center of mass of the foreground (values > 0)
// per axis, or the floored geometric center when the mask is empty.
func Centroid(mask *models.Array3D) [3]int {
	shape := mask.Shape
	marginals := [3][]float64{
		make([]float64, shape[0]),
		make([]float64, shape[1]),
		make([]float64, shape[2]),
	}
	total := 0.0
	for z := 0; z < shape[2]; z++ {
		for r := 0; r < shape[0]; r++ {
			for c := 0; c < shape[1]; c++ {
				if mask.At(r, c, z) > 0 {
					marginals[0][r]++
					marginals[1][c]++
					marginals[2][z]++
					total++
				}
			}
		}
	}

	var out [3]int
	for axis := 0; axis < 3; axis++ {
		if total == 0 {
			out[axis] = shape[axis] / 2
			continue
		}
		idx := make([]float64, shape[axis])
		for i := range idx {
			idx[i] = float64(i)
		}
		out[axis] = int(math.Floor(stat.Mean(idx, marginals[axis])))
	}
	return out
}
