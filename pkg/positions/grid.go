// Package positions rebuilds a regular slice-position grid along the
// principal axis from noisy, incomplete or duplicated positions.
//
// The work happens in stages: the step is estimated from the slice
// metadata, a grid aligned to the dominant position offset is laid over the
// observed range, every grid point is matched to its nearest slice, and
// finally the matched slices are rewritten with their grid positions.
package positions

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"dicomvolume/pkg/tags"
)

// DefaultDecimals is the number of decimal places positions are rounded to.
const DefaultDecimals = 5

var (
	// ErrNoStepSize is returned when no measure of slice spacing is available.
	ErrNoStepSize = errors.New("no measure of spacing between slices")

	// ErrZeroStep is returned when the estimated step is zero.
	ErrZeroStep = errors.New("step size cannot be zero")

	// ErrIncrementStillBroken is returned when corrected positions still fail
	// the increment check.
	ErrIncrementStillBroken = errors.New("slice increment still broken after correction")
)

// Stage is how far a plan got.
type Stage int

const (
	Raw Stage = iota
	StepEstimated
	GridComputed
	Corrected
)

func (s Stage) String() string {
	switch s {
	case Raw:
		return "raw"
	case StepEstimated:
		return "step estimated"
	case GridComputed:
		return "grid computed"
	case Corrected:
		return "corrected"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// Plan is the grid laid over a set of sorted principal positions and the
// slice matched to each grid point.
type Plan struct {
	Stage  Stage
	Step   float64
	Offset float64
	Grid   []float64

	// Matches[k] is the index, into the sorted positions, of the slice
	// nearest to Grid[k].
	Matches []int

	// Missing lists grid points no slice sits on.
	Missing []float64

	// Extra lists positions that do not sit on the grid.
	Extra []float64
}

// NewPlan builds the grid for sorted positions and step, rounding to decimals places.
func NewPlan(sorted []float64, step float64, decimals int) (*Plan, error) {
	p := &Plan{Stage: Raw}
	if len(sorted) == 0 {
		return p, fmt.Errorf("no positions to plan")
	}
	step = math.Abs(step)
	if step == 0 || math.IsNaN(step) {
		return p, ErrZeroStep
	}
	p.Step = step
	p.Stage = StepEstimated

	p.Offset = Offset(sorted, step, decimals)
	p.Grid = Grid(sorted, step, p.Offset, decimals)
	p.Stage = GridComputed

	p.Matches = make([]int, len(p.Grid))
	for k, g := range p.Grid {
		p.Matches[k] = Nearest(sorted, g)
	}
	p.Missing = difference(p.Grid, sorted, decimals)
	p.Extra = difference(sorted, p.Grid, decimals)
	return p, nil
}

// FloorMod returns x mod m with the sign of m.
func FloorMod(x, m float64) float64 {
	r := math.Mod(x, m)
	if r != 0 && (r < 0) != (m < 0) {
		r += m
	}
	return r
}

// Round rounds x to the given number of decimal places.
func Round(x float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(x*p) / p
}

// Offset returns the most common remainder of the positions modulo step.
// Remainders are rounded to decimals places and a remainder equal to step
// counts as zero. Ties go to the smallest remainder.
func Offset(positions []float64, step float64, decimals int) float64 {
	rem := make([]float64, len(positions))
	for i, p := range positions {
		r := Round(FloorMod(p, step), decimals)
		if r >= Round(step, decimals) {
			r = 0
		}
		rem[i] = r
	}
	off, _ := tags.Mode(rem)
	return off
}

// Grid returns the regular positions start + k*step covering the observed
// range, aligned to offset.
func Grid(positions []float64, step, offset float64, decimals int) []float64 {
	lo, hi := slices.Min(positions), slices.Max(positions)
	start := lo - shift(lo, step, offset, decimals)
	stop := hi - shift(hi, step, offset, decimals)
	if Round(stop, decimals) < Round(hi, decimals) {
		stop += step
	}
	n := int(math.Floor((stop-start)/step+1e-6)) + 1
	grid := make([]float64, n)
	for k := range grid {
		grid[k] = Round(start+float64(k)*step, decimals)
	}
	return grid
}

// shift is the distance from x down to the grid line of its step interval.
// A remainder that rounds to a full step belongs to the next interval.
func shift(x, step, offset float64, decimals int) float64 {
	d := FloorMod(x, step) - offset
	if Round(d, decimals) >= Round(step, decimals) {
		d -= step
	}
	return d
}

// Nearest returns the index of the position closest to target. Ties go to
// the lower index.
func Nearest(positions []float64, target float64) int {
	best := 0
	for i, p := range positions {
		if math.Abs(p-target) < math.Abs(positions[best]-target) {
			best = i
		}
	}
	return best
}

// difference returns the values of a, rounded, that do not occur in b.
func difference(a, b []float64, decimals int) []float64 {
	set := make(map[float64]struct{}, len(b))
	for _, v := range b {
		set[Round(v, decimals)] = struct{}{}
	}
	var out []float64
	for _, v := range a {
		if _, ok := set[Round(v, decimals)]; !ok {
			out = append(out, Round(v, decimals))
		}
	}
	return out
}
