// Package conform brings every slice of a series to one pixel array shape.
package conform

import (
	"fmt"
	"log/slog"

	"dicomvolume/internal/logging"
	"dicomvolume/internal/models"
	"dicomvolume/pkg/resample"
	"dicomvolume/pkg/tags"
	"dicomvolume/pkg/validation"
)

// DominantShape returns the shape with the largest element count. Ties go
// to the shape seen first.
func DominantShape(sl []*models.Slice) ([2]int, bool) {
	var best [2]int
	found := false
	for _, shape := range tags.Unique(sl, tags.ArrayShape()) {
		if !found || shape[0]*shape[1] > best[0]*best[1] {
			best, found = shape, true
		}
	}
	return best, found
}

// Conformer resizes slices to the dominant shape.
type Conformer struct {
	policy    *validation.Policy
	resampler *resample.Resampler
	logger    *slog.Logger
}

// New returns a conformer. Label series are resampled with integral output.
func New(policy *validation.Policy, label bool, logger *slog.Logger) *Conformer {
	rs := resample.New()
	if label {
		rs = resample.ForLabels()
	}
	return &Conformer{policy: policy, resampler: rs, logger: logging.OrNop(logger)}
}

// Conform resizes every slice whose array differs from the dominant shape and
// updates Rows and Columns. It does nothing when shapes already agree, and
// fails when they disagree and pixel_array.shape is not tolerated.
func (c *Conformer) Conform(sl []*models.Slice) error {
	v := validation.CheckShape(sl)
	if v == nil {
		return nil
	}
	if err := c.policy.Handle(v); err != nil {
		return err
	}

	target, ok := DominantShape(sl)
	if !ok {
		return fmt.Errorf("no pixel data to conform")
	}
	c.logger.Warn("resizing slice arrays", "rows", target[0], "columns", target[1])

	for _, s := range sl {
		if s.Pixels == nil {
			return fmt.Errorf("slice %s has no pixel data", s.Source)
		}
		if s.Shape() == target {
			continue
		}
		m, err := c.resampler.Plane(s.Pixels, target[0], target[1])
		if err != nil {
			return fmt.Errorf("resizing slice %s: %w", s.Source, err)
		}
		s.SetPixels(m)
	}
	return nil
}
