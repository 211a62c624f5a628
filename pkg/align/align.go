// Package align brings a moving image/label pair into the voxel grid of a
// reference pair with one translation.
//
// The moving pair is first resampled to the reference spacing, then shifted
// so that its landmark lands on the reference landmark, and finally cropped
// or zero padded to the reference shape. The landmark is either the label's
// center of mass or the patient-space origin of the first slice.
package align

import (
	"fmt"
	"log/slog"
	"math"

	"dicomvolume/internal/logging"
	"dicomvolume/internal/models"
	"dicomvolume/pkg/resample"
	"dicomvolume/pkg/validation"
)

// SpacingDecimals is the precision spacings are compared at.
const SpacingDecimals = 2

// Mode selects the alignment landmark.
type Mode int

const (
	// ByROI aligns the label centers of mass.
	ByROI Mode = iota

	// ByPosition aligns the patient-space positions of the two grids.
	ByPosition
)

// Aligner aligns volume pairs.
type Aligner struct {
	Mode   Mode
	policy *validation.Policy
	logger *slog.Logger
}

// New returns an aligner consulting policy for tolerated mismatches.
func New(mode Mode, policy *validation.Policy, logger *slog.Logger) *Aligner {
	return &Aligner{Mode: mode, policy: policy, logger: logging.OrNop(logger)}
}

// Result is an aligned moving pair with the window that produced it.
type Result struct {
	Pair    *models.Pair
	Window  Window
	Factors [3]float64

	// RefLandmark and MovingLandmark are the voxel indices that were matched.
	RefLandmark, MovingLandmark [3]int
}

// Validate checks that two pairs can be compared voxel by voxel. Spacing
// must match unless PixelSpacing is allowed, and in-plane shape must match
// unless pixel_array.shape is allowed.
func (a *Aligner) Validate(ref, moving *models.Pair) error {
	if !SameSpacing(ref.Spacing(), moving.Spacing()) {
		v := validation.Violationf(models.TagPixelSpacing,
			[]string{fmt.Sprint(ref.Spacing()), fmt.Sprint(moving.Spacing())},
			"spacing between pairs does not match")
		if err := a.policy.Handle(v); err != nil {
			return err
		}
	}
	rs, ms := ref.Image.Shape(), moving.Image.Shape()
	if rs[0] != ms[0] || rs[1] != ms[1] {
		v := validation.Violationf(validation.ArrayShape,
			[]string{fmt.Sprint(rs), fmt.Sprint(ms)},
			"array shape mismatch between pairs")
		if err := a.policy.Handle(v); err != nil {
			return err
		}
	}
	return nil
}

// Align returns the moving pair resampled, shifted and cropped onto the
// reference grid. The reference pair is not modified.
func (a *Aligner) Align(ref, moving *models.Pair) (*Result, error) {
	if err := ValidatePair(ref); err != nil {
		return nil, fmt.Errorf("reference pair: %w", err)
	}
	if err := ValidatePair(moving); err != nil {
		return nil, fmt.Errorf("moving pair: %w", err)
	}

	factors := ZoomFactors(moving.Spacing(), ref.Spacing())
	matched, err := a.MatchSpacing(ref, moving)
	if err != nil {
		return nil, err
	}

	var c1, c2 [3]int
	switch a.Mode {
	case ByPosition:
		c1, c2, err = positionLandmarks(ref, matched)
		if err != nil {
			return nil, err
		}
	default:
		c1, c2 = Centroid(ref.Label.Array), Centroid(matched.Label.Array)
	}

	shape := ref.Image.Shape()
	w := ComputeWindow(shape, c1, matched.Image.Shape(), c2)
	a.logger.Debug("alignment window", "ref_landmark", c1, "moving_landmark", c2, "window", w.String())
	if w.Empty() {
		a.logger.Warn("aligned volumes do not overlap", "ref_landmark", c1, "moving_landmark", c2)
	}

	out := &models.Pair{
		Image: shifted(matched.Image, ref.Image, WriteShifted(shape, matched.Image.Array, w)),
		Label: shifted(matched.Label, ref.Label, WriteShifted(ref.Label.Shape(), matched.Label.Array, w)),
	}
	return &Result{Pair: out, Window: w, Factors: factors, RefLandmark: c1, MovingLandmark: c2}, nil
}

// MatchSpacing resamples the moving pair to the reference spacing and copies
// the reference spacing attributes onto its slices. Pairs whose spacings
// already match are returned unchanged.
func (a *Aligner) MatchSpacing(ref, moving *models.Pair) (*models.Pair, error) {
	if moving.Spacing() == ref.Spacing() {
		return moving, nil
	}
	factors := ZoomFactors(moving.Spacing(), ref.Spacing())
	a.logger.Info("matching spacing", "from", moving.Spacing(), "to", ref.Spacing(), "factors", factors)

	img, err := resample.New().Zoom(moving.Image.Array, factors)
	if err != nil {
		return nil, fmt.Errorf("resampling image: %w", err)
	}
	lbl, err := resample.ForLabels().Zoom(moving.Label.Array, factors)
	if err != nil {
		return nil, fmt.Errorf("resampling label: %w", err)
	}
	return &models.Pair{
		Image: respaced(moving.Image, img, ref.Image),
		Label: respaced(moving.Label, lbl, ref.Label),
	}, nil
}

// ZoomFactors returns, per axis, how much an array sampled at source spacing
// must grow to be sampled at target spacing.
func ZoomFactors(source, target [3]float64) [3]float64 {
	var f [3]float64
	for i := range f {
		f[i] = 1
		if target[i] != 0 {
			f[i] = math.Abs(source[i] / target[i])
		}
	}
	return f
}

// SameSpacing compares spacings rounded to SpacingDecimals places.
func SameSpacing(a, b [3]float64) bool {
	for i := range a {
		if round(a[i]) != round(b[i]) {
			return false
		}
	}
	return true
}

// ValidatePair checks that image and label of one pair share spacing and shape.
func ValidatePair(p *models.Pair) error {
	if p == nil || p.Image == nil || p.Label == nil || p.Image.Array == nil || p.Label.Array == nil {
		return fmt.Errorf("pair is missing image or label data")
	}
	if !SameSpacing(p.Image.Spacing, p.Label.Spacing) {
		return fmt.Errorf("image and label spacing is inconsistent %v:%v", p.Image.Spacing, p.Label.Spacing)
	}
	if p.Image.Shape() != p.Label.Shape() {
		return fmt.Errorf("image and label shape is inconsistent %v:%v", p.Image.Shape(), p.Label.Shape())
	}
	return nil
}

func round(v float64) float64 {
	p := math.Pow(10, SpacingDecimals)
	return math.Round(v*p) / p
}

// respaced builds the resampled moving volume with the reference spacing.
// Slices are rebuilt from the new array, taking metadata from the moving
// slices and spacing attributes from the reference.
func respaced(moving *models.Volume, arr *models.Array3D, ref *models.Volume) *models.Volume {
	out := &models.Volume{
		Name:    moving.Name,
		Array:   arr,
		Spacing: ref.Spacing,
		IsLabel: moving.IsLabel,
	}
	out.Slices = rebuildSlices(moving.Slices, arr, ref.Spacing, originOf(moving))
	return out
}

// shifted builds the aligned volume. It takes the reference geometry since
// the array now lives on the reference grid.
func shifted(moving *models.Volume, ref *models.Volume, arr *models.Array3D) *models.Volume {
	out := &models.Volume{
		Name:    moving.Name,
		Array:   arr,
		Spacing: ref.Spacing,
		IsLabel: moving.IsLabel,
	}
	out.Slices = make([]*models.Slice, arr.Shape[2])
	for z := range out.Slices {
		var s *models.Slice
		if z < len(ref.Slices) {
			s = ref.Slices[z].Clone()
		} else {
			s = templateSlice(moving.Slices, z)
		}
		if tpl := templateSlice(moving.Slices, z); tpl != nil {
			s.Modality = tpl.Modality
			s.SeriesNumber = tpl.SeriesNumber
			s.RescaleSlope = tpl.RescaleSlope
			s.RescaleIntercept = tpl.RescaleIntercept
		}
		s.SetPixels(arr.Plane(z))
		out.Slices[z] = s
	}
	return out
}

// rebuildSlices returns one slice per plane of arr, positioned on a regular
// grid from origin with the given spacing.
func rebuildSlices(src []*models.Slice, arr *models.Array3D, spacing [3]float64, origin []float64) []*models.Slice {
	out := make([]*models.Slice, arr.Shape[2])
	for z := range out {
		s := templateSlice(src, z)
		s.PixelSpacing = []float64{spacing[0], spacing[1]}
		s.SpacingBetweenSlices = models.Float(spacing[2])
		s.Position = append([]float64(nil), origin...)
		if len(s.Position) > models.PrincipalAxis {
			s.Position[models.PrincipalAxis] += float64(z) * spacing[2]
		}
		s.InstanceNumber = z + 1
		s.SetPixels(arr.Plane(z))
		out[z] = s
	}
	return out
}

// templateSlice returns a copy of the source slice nearest to plane z, or a
// bare slice when there are none.
func templateSlice(src []*models.Slice, z int) *models.Slice {
	if len(src) == 0 {
		return &models.Slice{
			Position:    []float64{0, 0, 0},
			Orientation: []float64{1, 0, 0, 0, 1, 0},
			Attributes:  map[string]string{},
		}
	}
	if z >= len(src) {
		z = len(src) - 1
	}
	s := src[z].Clone()
	s.Pixels = nil
	return s
}

func originOf(v *models.Volume) []float64 {
	if len(v.Slices) == 0 || len(v.Slices[0].Position) < 3 {
		return []float64{0, 0, 0}
	}
	return append([]float64(nil), v.Slices[0].Position...)
}

// positionLandmarks expresses the moving origin as a voxel index of the
// reference grid. The reference landmark is that index and the moving
// landmark its own origin voxel, so ComputeWindow shifts by the offset.
func positionLandmarks(ref, moving *models.Pair) ([3]int, [3]int, error) {
	if len(ref.Image.Slices) == 0 || len(moving.Image.Slices) == 0 {
		return [3]int{}, [3]int{}, fmt.Errorf("aligning by position needs slice metadata")
	}
	rs, ms := ref.Image.Slices[0], moving.Image.Slices[0]
	if len(rs.Position) < 3 || len(ms.Position) < 3 || len(rs.Orientation) < 6 {
		return [3]int{}, [3]int{}, fmt.Errorf("aligning by position needs ImagePositionPatient and ImageOrientationPatient")
	}

	d := [3]float64{
		ms.Position[0] - rs.Position[0],
		ms.Position[1] - rs.Position[1],
		ms.Position[2] - rs.Position[2],
	}
	rowDir, colDir := rs.Orientation[0:3], rs.Orientation[3:6]
	sp := ref.Spacing()

	// the row direction cosine runs along a row, i.e. across columns
	offset := [3]int{
		int(math.Round(dot(d, colDir) / sp[0])),
		int(math.Round(dot(d, rowDir) / sp[1])),
		int(math.Round(d[models.PrincipalAxis] / sp[2])),
	}
	return offset, [3]int{}, nil
}

func dot(a [3]float64, b []float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}
