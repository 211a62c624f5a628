package validation

import (
	"fmt"
	"slices"

	"dicomvolume/internal/models"
	"dicomvolume/pkg/tags"
)

// CheckTags runs the per-series consistency checks and returns every
// violation found, in check order.
func CheckTags(sl []*models.Slice) []*Violation {
	var out []*Violation
	add := func(v *Violation) {
		if v != nil {
			out = append(out, v)
		}
	}

	add(consistent(sl, models.TagSeriesNumber, "multiple SeriesNumber values", tags.Scalar(models.TagSeriesNumber)))
	add(consistent(sl, models.TagPixelSpacing, "PixelSpacing inconsistent along rows", tags.Component(models.TagPixelSpacing, 0)))
	add(consistent(sl, models.TagPixelSpacing, "PixelSpacing inconsistent along columns", tags.Component(models.TagPixelSpacing, 1)))
	add(consistent(sl, models.TagImagePositionPatient, "ImagePositionPatient inconsistent in x", tags.Component(models.TagImagePositionPatient, 0)))
	add(consistent(sl, models.TagImagePositionPatient, "ImagePositionPatient inconsistent in y", tags.Component(models.TagImagePositionPatient, 1)))

	principal := tags.Component(models.TagImagePositionPatient, models.PrincipalAxis)
	if !tags.IsUnique(sl, principal) {
		add(Violationf(models.TagImagePositionPatient, countValues(tags.Counts(sl, principal)),
			"principal position is non-unique"))
	}

	add(consistent(sl, models.TagSpacingBetweenSlices, "SpacingBetweenSlices is non-unique", tags.Scalar(models.TagSpacingBetweenSlices)))
	add(consistent(sl, models.TagModality, "Modality is non-unique", tags.Text(models.TagModality)))
	add(consistent(sl, models.TagRescaleIntercept, "RescaleIntercept is non-unique", tags.Scalar(models.TagRescaleIntercept)))
	return out
}

// CheckShape reports slices whose pixel arrays differ in shape.
func CheckShape(sl []*models.Slice) *Violation {
	if tags.IsConsistent(sl, tags.ArrayShape()) {
		return nil
	}
	return Violationf(ArrayShape, countValues(tags.Counts(sl, tags.ArrayShape())), "pixel array shape is non-unique")
}

// Validate runs CheckTags and hands each violation to the policy, returning
// the first one that is not tolerated.
func (p *Policy) Validate(sl []*models.Slice) error {
	for _, v := range CheckTags(sl) {
		if err := p.Handle(v); err != nil {
			return err
		}
	}
	return nil
}

func consistent[T comparable](sl []*models.Slice, tag, msg string, get tags.Getter[T]) *Violation {
	if tags.IsConsistent(sl, get) {
		return nil
	}
	return Violationf(tag, countValues(tags.Counts(sl, get)), "%s", msg)
}

// countValues renders value counts as "value x count", sorted for stable output.
func countValues[T comparable](counts map[T]int) []string {
	out := make([]string, 0, len(counts))
	for v, n := range counts {
		out = append(out, fmt.Sprintf("%v x%d", v, n))
	}
	slices.Sort(out)
	return out
}
