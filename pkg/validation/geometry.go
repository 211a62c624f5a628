package validation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"dicomvolume/internal/models"
)

// Tolerances used when comparing position increments and directions.
// A value a matches b when |a-b| <= atol + rtol*|b|.
const (
	IncrementRelTol = 0.05
	IncrementAbsTol = 0.1
	DirectionRelTol = 0.05
	DirectionAbsTol = 0.05
)

// CheckSliceIncrement verifies that consecutive slice positions advance by
// the same vector. Sequences shorter than three slices only need a non-zero
// increment.
func CheckSliceIncrement(sl []*models.Slice) *Violation {
	return checkIncrement(sl, 0)
}

// CheckGridIncrement is CheckSliceIncrement for sequences that may skip grid
// points: every gap along the principal axis must be a positive whole
// multiple of step, and the full increment must scale with it.
func CheckGridIncrement(sl []*models.Slice, step float64) *Violation {
	return checkIncrement(sl, math.Abs(step))
}

func checkIncrement(sl []*models.Slice, step float64) *Violation {
	if len(sl) < 2 {
		return nil
	}
	vecs := make([]r3.Vec, len(sl))
	for i, s := range sl {
		v, ok := position(s)
		if !ok {
			return Violationf(models.TagImagePositionPatient, nil, "slice %d (%s) has no usable position", i, s.Source)
		}
		vecs[i] = v
	}

	var unit r3.Vec
	for i := 1; i < len(vecs); i++ {
		inc := r3.Sub(vecs[i], vecs[i-1])
		k := 1.0
		if step > 0 {
			k = math.Round(inc.Z / step)
			if k < 1 {
				return Violationf(models.TagImagePositionPatient, positionValues(sl),
					"gap %g between slices %d and %d is not a multiple of step %g", inc.Z, i-1, i, step)
			}
		}
		if r3.Norm2(inc) == 0 {
			return Violationf(models.TagImagePositionPatient, positionValues(sl),
				"slices %d and %d share a position", i-1, i)
		}
		if i == 1 {
			unit = r3.Scale(1/k, inc)
			continue
		}
		if want := r3.Scale(k, unit); !vecClose(inc, want, IncrementRelTol, IncrementAbsTol) {
			return Violationf(models.TagImagePositionPatient, positionValues(sl),
				"slice increment inconsistent between slices %d and %d", i-1, i)
		}
	}
	return nil
}

// CheckOrthogonal verifies that the stacking direction, from the first to the
// last slice, is parallel to the normal of the first slice's orientation.
func CheckOrthogonal(sl []*models.Slice) *Violation {
	if len(sl) < 2 {
		return nil
	}
	first, last := sl[0], sl[len(sl)-1]
	if len(first.Orientation) < 6 {
		return Violationf(models.TagImageOrientationPatient, nil, "slice %s has no orientation", first.Source)
	}
	row := r3.Vec{X: first.Orientation[0], Y: first.Orientation[1], Z: first.Orientation[2]}
	col := r3.Vec{X: first.Orientation[3], Y: first.Orientation[4], Z: first.Orientation[5]}
	normal := r3.Cross(row, col)

	p0, ok0 := position(first)
	p1, ok1 := position(last)
	if !ok0 || !ok1 {
		return Violationf(models.TagImagePositionPatient, nil, "first or last slice has no usable position")
	}
	dir := r3.Sub(p1, p0)
	if r3.Norm2(normal) == 0 || r3.Norm2(dir) == 0 {
		return Violationf(models.TagImageOrientationPatient, orientationValues(first),
			"cannot derive slice direction")
	}
	normal, dir = r3.Unit(normal), r3.Unit(dir)

	if vecClose(normal, dir, DirectionRelTol, DirectionAbsTol) ||
		vecClose(normal, r3.Scale(-1, dir), DirectionRelTol, DirectionAbsTol) {
		return nil
	}
	return Violationf(models.TagImageOrientationPatient, orientationValues(first),
		"slice normal %s is not parallel to stacking direction %s", fmtVec(normal), fmtVec(dir))
}

func position(s *models.Slice) (r3.Vec, bool) {
	if len(s.Position) < 3 {
		return r3.Vec{}, false
	}
	return r3.Vec{X: s.Position[0], Y: s.Position[1], Z: s.Position[2]}, true
}

func vecClose(a, b r3.Vec, rtol, atol float64) bool {
	return isClose(a.X, b.X, rtol, atol) && isClose(a.Y, b.Y, rtol, atol) && isClose(a.Z, b.Z, rtol, atol)
}

func isClose(a, b, rtol, atol float64) bool {
	return math.Abs(a-b) <= atol+rtol*math.Abs(b)
}

func positionValues(sl []*models.Slice) []string {
	out := make([]string, len(sl))
	for i, s := range sl {
		out[i] = fmt.Sprint(s.Position)
	}
	return out
}

func orientationValues(s *models.Slice) []string {
	return []string{fmt.Sprint(s.Orientation)}
}

func fmtVec(v r3.Vec) string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", v.X, v.Y, v.Z)
}
