// Package resample changes the sampling grid of pixel planes and voxel arrays
// with separable cubic spline interpolation.
//
// Each axis is handled independently: the samples along a line are fitted
// with a natural cubic spline and evaluated at the output positions, where
// output index o maps to input coordinate o*(in-1)/(out-1). Lines are split
// across workers; each worker writes a disjoint set of output lines.
package resample

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"

	"dicomvolume/internal/models"
)

// Resampler holds the interpolation settings.
type Resampler struct {
	// Workers bounds the number of goroutines per pass; 0 uses runtime.NumCPU().
	Workers int

	// Round rounds every output value to the nearest integer (label data).
	Round bool
}

// New returns a resampler using every available CPU.
func New() *Resampler {
	return &Resampler{}
}

// ForLabels returns a resampler that keeps values integral.
func ForLabels() *Resampler {
	return &Resampler{Round: true}
}

// Plane resamples m to rows x cols.
func (r *Resampler) Plane(m *mat.Dense, rows, cols int) (*mat.Dense, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("invalid target shape %dx%d", rows, cols)
	}
	inRows, inCols := m.Dims()
	arr := models.NewArray3D([3]int{inRows, inCols, 1})
	if err := arr.SetPlane(0, m); err != nil {
		return nil, err
	}
	out, err := r.Array(arr, [3]int{rows, cols, 1})
	if err != nil {
		return nil, err
	}
	return out.Plane(0), nil
}

// Array resamples a to the given shape, axis by axis.
func (r *Resampler) Array(a *models.Array3D, shape [3]int) (*models.Array3D, error) {
	for i, n := range shape {
		if n <= 0 {
			return nil, fmt.Errorf("invalid target size %d on axis %d", n, i)
		}
		if a.Shape[i] <= 0 {
			return nil, fmt.Errorf("empty input on axis %d", i)
		}
	}
	cur := a
	for axis := 0; axis < 3; axis++ {
		if cur.Shape[axis] == shape[axis] {
			continue
		}
		cur = r.axisPass(cur, axis, shape[axis])
	}
	if cur == a {
		cur = a.Clone()
	}
	if r.Round {
		for i, v := range cur.Data {
			cur.Data[i] = math.Round(v)
		}
	}
	return cur, nil
}

// Zoom scales every axis by the matching factor. The output size on each axis
// is round(size*factor), never less than one.
func (r *Resampler) Zoom(a *models.Array3D, factors [3]float64) (*models.Array3D, error) {
	return r.Array(a, ZoomShape(a.Shape, factors))
}

// ZoomShape returns the shape Zoom produces for the given input and factors.
func ZoomShape(shape [3]int, factors [3]float64) [3]int {
	var out [3]int
	for i := range shape {
		out[i] = int(math.Round(float64(shape[i]) * factors[i]))
		if out[i] < 1 {
			out[i] = 1
		}
	}
	return out
}

// Line resamples one sequence of samples to n values.
func Line(in []float64, n int) []float64 {
	out := make([]float64, n)
	fillLine(in, out)
	return out
}

func fillLine(in, out []float64) {
	switch {
	case len(in) == len(out):
		copy(out, in)
		return
	case len(in) == 1:
		for i := range out {
			out[i] = in[0]
		}
		return
	case len(out) == 1:
		out[0] = in[0]
		return
	}

	xs := make([]float64, len(in))
	for i := range xs {
		xs[i] = float64(i)
	}
	pred := fit(xs, in)
	scale := float64(len(in)-1) / float64(len(out)-1)
	for o := range out {
		out[o] = pred.Predict(float64(o) * scale)
	}
}

// fit returns a natural cubic spline through the samples, falling back to
// piecewise linear when the spline cannot be fitted.
func fit(xs, ys []float64) interp.Predictor {
	var cubic interp.NaturalCubic
	if err := cubic.Fit(xs, ys); err == nil {
		return &cubic
	}
	var linear interp.PiecewiseLinear
	if err := linear.Fit(xs, ys); err == nil {
		return &linear
	}
	return interp.Constant(ys[0])
}

// axisPass resamples every line along axis to n samples.
func (r *Resampler) axisPass(a *models.Array3D, axis, n int) *models.Array3D {
	shape := a.Shape
	shape[axis] = n
	out := models.NewArray3D(shape)

	// the two axes that enumerate lines
	var u, v int
	switch axis {
	case 0:
		u, v = 1, 2
	case 1:
		u, v = 0, 2
	default:
		u, v = 0, 1
	}
	lines := a.Shape[u] * a.Shape[v]

	r.parallel(lines, func(lo, hi int) {
		in := make([]float64, a.Shape[axis])
		res := make([]float64, n)
		var idx [3]int
		for line := lo; line < hi; line++ {
			idx[u], idx[v] = line/a.Shape[v], line%a.Shape[v]
			for k := range in {
				idx[axis] = k
				in[k] = a.At(idx[0], idx[1], idx[2])
			}
			fillLine(in, res)
			for k, val := range res {
				idx[axis] = k
				out.Set(idx[0], idx[1], idx[2], val)
			}
		}
	})
	return out
}

// parallel splits [0, n) into contiguous chunks, one per worker.
func (r *Resampler) parallel(n int, fn func(lo, hi int)) {
	workers := r.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		fn(0, n)
		return
	}

	per := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		lo := i * per
		hi := lo + per
		if hi > n {
			hi = n
		}
		if lo >= hi {
			continue
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			fn(lo, hi)
		}(lo, hi)
	}
	wg.Wait()
}
