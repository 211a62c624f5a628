package positions

import (
	"cmp"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"dicomvolume/internal/logging"
	"dicomvolume/internal/models"
	"dicomvolume/pkg/tags"
	"dicomvolume/pkg/validation"
)

// Reconstructor repairs the slice positions of one series.
type Reconstructor struct {
	// FillMissing keeps one slice per grid point, duplicating the nearest
	// slice into gaps. When false, gaps are left and each slice is kept once.
	FillMissing bool

	// Decimals is the rounding precision for positions; 0 uses DefaultDecimals.
	Decimals int

	policy *validation.Policy
	logger *slog.Logger
}

// NewReconstructor returns a reconstructor consulting policy for tolerances.
func NewReconstructor(policy *validation.Policy, fillMissing bool, logger *slog.Logger) *Reconstructor {
	return &Reconstructor{
		FillMissing: fillMissing,
		Decimals:    DefaultDecimals,
		policy:      policy,
		logger:      logging.OrNop(logger),
	}
}

func (r *Reconstructor) decimals() int {
	if r.Decimals <= 0 {
		return DefaultDecimals
	}
	return r.Decimals
}

// SortByPosition orders slices by ascending principal position, keeping the
// input order of equal positions. Slices without a position sort last.
func SortByPosition(sl []*models.Slice) {
	slices.SortStableFunc(sl, func(a, b *models.Slice) int {
		pa, oka := a.PrincipalPosition()
		pb, okb := b.PrincipalPosition()
		switch {
		case !oka && !okb:
			return 0
		case !oka:
			return 1
		case !okb:
			return -1
		}
		return cmp.Compare(pa, pb)
	})
}

// EstimateStep returns the slice step. The modal SpacingBetweenSlices is used
// when every slice carries it. Otherwise, if SpacingBetweenSlices is
// tolerated, the modal non-zero gap between sorted positions is used, or the
// modal SliceThickness for a single slice.
func (r *Reconstructor) EstimateStep(sl []*models.Slice) (float64, error) {
	if len(sl) == 0 {
		return 0, ErrNoStepSize
	}
	declared := tags.Values(sl, tags.Scalar(models.TagSpacingBetweenSlices))
	if len(declared) == len(sl) {
		return checkStep(tags.Mode(declared))
	}
	if !r.policy.Tolerates(models.TagSpacingBetweenSlices) {
		return 0, fmt.Errorf("%w: SpacingBetweenSlices present on %d of %d slices", ErrNoStepSize, len(declared), len(sl))
	}

	if len(sl) == 1 {
		step, err := checkStep(tags.ModeOf(sl, tags.Scalar(models.TagSliceThickness)))
		if err == nil {
			r.logger.Warn("using SliceThickness as step", "step", step)
		}
		return step, err
	}

	pos := tags.Values(sl, tags.Component(models.TagImagePositionPatient, models.PrincipalAxis))
	slices.Sort(pos)
	var gaps []float64
	for i := 1; i < len(pos); i++ {
		if g := math.Abs(Round(pos[i]-pos[i-1], r.decimals())); g != 0 {
			gaps = append(gaps, g)
		}
	}
	step, err := checkStep(tags.Mode(gaps))
	if err == nil {
		r.logger.Warn("SpacingBetweenSlices missing, using position gaps", "step", step)
	}
	return step, err
}

func checkStep(step float64, ok bool) (float64, error) {
	switch {
	case !ok:
		return 0, ErrNoStepSize
	case step == 0:
		return 0, ErrZeroStep
	}
	return math.Abs(step), nil
}

// Plan sorts the slices and computes their grid without changing them.
func (r *Reconstructor) Plan(sl []*models.Slice) (*Plan, error) {
	SortByPosition(sl)
	for _, s := range sl {
		if _, ok := s.PrincipalPosition(); !ok {
			return &Plan{Stage: Raw}, fmt.Errorf("slice %s has no principal position", s.Source)
		}
	}
	step, err := r.EstimateStep(sl)
	if err != nil {
		return &Plan{Stage: Raw}, err
	}
	return NewPlan(principal(sl), step, r.decimals())
}

// Repair checks the slice increment and, when it is broken and
// ImagePositionPatient is tolerated, rebuilds the positions on a regular
// grid. The returned slices are sorted by position.
func (r *Reconstructor) Repair(sl []*models.Slice) ([]*models.Slice, error) {
	SortByPosition(sl)
	v := validation.CheckSliceIncrement(sl)
	if v == nil {
		return sl, nil
	}
	if err := r.policy.Handle(v); err != nil {
		return nil, err
	}
	out, _, err := r.Correct(sl)
	return out, err
}

// Correct rebuilds the slice positions on a regular grid and returns the new
// slice sequence with the plan used. Every slice takes the in-plane position
// of the first one. Under FillMissing every grid point gets
// its own copy of the nearest slice; otherwise each matched slice is kept once
// at the first grid point it matched.
func (r *Reconstructor) Correct(sl []*models.Slice) ([]*models.Slice, *Plan, error) {
	plan, err := r.Plan(sl)
	if err != nil {
		return nil, plan, fmt.Errorf("reconstructing positions (%s): %w", plan.Stage, err)
	}

	var out []*models.Slice
	var grid []float64
	if r.FillMissing {
		for k, m := range plan.Matches {
			out = append(out, sl[m].Clone())
			grid = append(grid, plan.Grid[k])
		}
	} else {
		seen := make(map[int]bool, len(sl))
		for k, m := range plan.Matches {
			if seen[m] {
				continue
			}
			seen[m] = true
			out = append(out, sl[m])
			grid = append(grid, plan.Grid[k])
		}
	}

	// In-plane position follows the first slice so the re-check only sees the
	// principal increment.
	var origin [2]float64
	if len(out) > 0 && len(out[0].Position) >= 2 {
		origin = [2]float64{out[0].Position[0], out[0].Position[1]}
	}
	for i, s := range out {
		if len(s.Position) < 3 {
			s.Position = make([]float64, 3)
		}
		s.Position[0], s.Position[1] = origin[0], origin[1]
		s.Position[models.PrincipalAxis] = Round(grid[i], r.decimals())
		s.InstanceNumber = i + 1
	}
	plan.Stage = Corrected

	r.logger.Warn("reconfigured slice positions",
		"step", plan.Step,
		"offset", plan.Offset,
		"slices_in", len(sl),
		"slices_out", len(out),
		"missing", plan.Missing,
		"extra", plan.Extra,
		"fill_missing", r.FillMissing)

	var v *validation.Violation
	if r.FillMissing {
		v = validation.CheckSliceIncrement(out)
	} else {
		v = validation.CheckGridIncrement(out, plan.Step)
	}
	if v != nil {
		return nil, plan, fmt.Errorf("%w: %v", ErrIncrementStillBroken, v)
	}
	return out, plan, nil
}

// FixOrientation rounds every orientation component to the nearest integer
// when the stacking direction is not orthogonal to the slices and
// ImageOrientationPatient is tolerated.
func (r *Reconstructor) FixOrientation(sl []*models.Slice) error {
	v := validation.CheckOrthogonal(sl)
	if v == nil {
		return nil
	}
	if err := r.policy.Handle(v); err != nil {
		return err
	}
	for _, s := range sl {
		for i, o := range s.Orientation {
			s.Orientation[i] = math.Round(o)
		}
	}
	r.logger.Warn("rounded ImageOrientationPatient values", "slices", len(sl))
	return nil
}

func principal(sl []*models.Slice) []float64 {
	out := make([]float64, len(sl))
	for i, s := range sl {
		out[i], _ = s.PrincipalPosition()
	}
	return out
}
