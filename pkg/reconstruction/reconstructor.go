// Package reconstruction assembles one series of slices into a validated,
// geometrically consistent volume.
package reconstruction

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"

	"gonum.org/v1/gonum/floats"

	"dicomvolume/internal/logging"
	"dicomvolume/internal/models"
	"dicomvolume/pkg/conform"
	"dicomvolume/pkg/positions"
	"dicomvolume/pkg/slicestore"
	"dicomvolume/pkg/tags"
	"dicomvolume/pkg/validation"
)

// Params holds the assembly configuration for one series.
type Params struct {
	// InputDir is the series reference handed to the slice store,
	// usually a directory of DICOM files.
	InputDir string

	// Name identifies the case the series belongs to.
	Name string

	// IsLabel marks mask series. Labels are resampled with integral values
	// and get RescaleIntercept set to their minimum with RescaleSlope 1.
	IsLabel bool

	// Allow lists the attribute and condition names whose violations are
	// corrected instead of failing the series.
	Allow validation.AllowList

	// FillMissing duplicates the nearest slice into gaps of the position grid.
	// When false, gaps are left empty.
	FillMissing bool

	// Decimals is the rounding precision for corrected positions.
	Decimals int

	// ValueClip maps a modality to the [low, high] range, in rescaled units,
	// that pixel values of that modality are clipped to.
	ValueClip map[string][2]float64

	// SaveIntermediaryResults writes the corrected series to IntermediaryDir.
	SaveIntermediaryResults bool

	// IntermediaryDir is where corrected series are written.
	// Only used when SaveIntermediaryResults is true.
	IntermediaryDir string
}

// Report summarises what assembly had to change.
type Report struct {
	SlicesLoaded int
	SlicesOut    int

	// Corrections lists the kinds of corrections applied: "position",
	// "orientation", "shape", "modality", "clip".
	Corrections []string

	// Plan is the position grid, set when positions were rebuilt.
	Plan *positions.Plan
}

// Reconstructor assembles a series loaded from a slice store.
type Reconstructor struct {
	params *Params
	store  slicestore.Loader
	saver  slicestore.Saver
	policy *validation.Policy
	logger *slog.Logger

	report Report
}

// NewReconstructor creates a reconstructor reading from store.
// When store also implements slicestore.Saver it is used for intermediary results.
func NewReconstructor(params *Params, store slicestore.Loader, logger *slog.Logger) *Reconstructor {
	logger = logging.OrNop(logger)
	r := &Reconstructor{
		params: params,
		store:  store,
		policy: validation.NewPolicy(params.Allow, logger),
		logger: logger,
	}
	if s, ok := store.(slicestore.Saver); ok {
		r.saver = s
	}
	return r
}

// WithSaver sets where intermediary results are written.
func (r *Reconstructor) WithSaver(s slicestore.Saver) *Reconstructor {
	r.saver = s
	return r
}

// Report returns what the last Process call changed.
func (r *Reconstructor) Report() Report {
	return r.report
}

// Process runs the assembly pipeline and returns the volume.
func (r *Reconstructor) Process(ctx context.Context) (*models.Volume, error) {
	r.report = Report{}
	log := r.logger.With("case", r.params.Name, "input", r.params.InputDir, "label", r.params.IsLabel)

	// Step 1: load slices
	log.Debug("step 1: loading slices")
	sl, err := r.store.Load(ctx, r.params.InputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load slices: %w", err)
	}
	r.report.SlicesLoaded = len(sl)
	positions.SortByPosition(sl)

	// Step 2: tag consistency
	log.Debug("step 2: validating tags")
	if err := r.policy.Validate(sl); err != nil {
		return nil, fmt.Errorf("tag validation failed: %w", err)
	}

	// Step 3: array shapes
	log.Debug("step 3: conforming array shapes")
	if validation.CheckShape(sl) != nil {
		r.report.Corrections = append(r.report.Corrections, "shape")
	}
	if err := conform.New(r.policy, r.params.IsLabel, log).Conform(sl); err != nil {
		return nil, fmt.Errorf("failed to conform array shapes: %w", err)
	}

	// Step 4: slice increment
	log.Debug("step 4: checking slice increment")
	pr := positions.NewReconstructor(r.policy, r.params.FillMissing, log)
	if r.params.Decimals > 0 {
		pr.Decimals = r.params.Decimals
	}
	if v := validation.CheckSliceIncrement(sl); v != nil {
		if err := r.policy.Handle(v); err != nil {
			return nil, fmt.Errorf("slice increment: %w", err)
		}
		corrected, plan, err := pr.Correct(sl)
		if err != nil {
			return nil, err
		}
		sl = corrected
		r.report.Plan = plan
		r.report.Corrections = append(r.report.Corrections, "position")
	}

	// Step 5: orientation
	log.Debug("step 5: checking orthogonality")
	if validation.CheckOrthogonal(sl) != nil {
		if err := pr.FixOrientation(sl); err != nil {
			return nil, fmt.Errorf("orientation: %w", err)
		}
		r.report.Corrections = append(r.report.Corrections, "orientation")
	}

	// Step 6: required tags and label scaling
	if ensureModality(sl) {
		r.report.Corrections = append(r.report.Corrections, "modality")
	}
	if r.params.IsLabel {
		scaleLabels(sl)
	}

	// Step 7: value clipping
	if clipValues(sl, r.params.ValueClip) {
		r.report.Corrections = append(r.report.Corrections, "clip")
	}

	step, err := pr.EstimateStep(sl)
	if err != nil {
		return nil, fmt.Errorf("failed to determine slice step: %w", err)
	}
	rowSp, colSp, err := pixelSpacing(sl)
	if err != nil {
		return nil, err
	}

	vol := &models.Volume{
		Name:    r.params.Name,
		Slices:  sl,
		Spacing: [3]float64{rowSp, colSp, step},
		IsLabel: r.params.IsLabel,
	}
	if err := vol.Restack(); err != nil {
		return nil, fmt.Errorf("failed to stack slices: %w", err)
	}
	r.report.SlicesOut = len(sl)

	if r.params.SaveIntermediaryResults && r.saver != nil {
		dir := filepath.Join(r.params.IntermediaryDir, kindDir(r.params.IsLabel), r.params.Name)
		if err := r.saver.Save(ctx, dir, sl); err != nil {
			log.Warn("failed to save corrected series", "dir", dir, "error", err)
		}
	}

	log.Info("assembled volume",
		"shape", vol.Shape(),
		"spacing", vol.Spacing,
		"slices_in", r.report.SlicesLoaded,
		"corrections", r.report.Corrections)
	return vol, nil
}

func kindDir(label bool) string {
	if label {
		return "labels"
	}
	return "images"
}

// ensureModality gives every slice a Modality, empty when absent.
func ensureModality(sl []*models.Slice) bool {
	changed := false
	for _, s := range sl {
		if s.Modality == nil {
			s.Modality = models.String("")
			changed = true
		}
	}
	return changed
}

// scaleLabels sets RescaleIntercept to each slice's minimum and RescaleSlope to 1.
func scaleLabels(sl []*models.Slice) {
	for _, s := range sl {
		if s.Pixels == nil {
			continue
		}
		s.RescaleIntercept = models.Float(floats.Min(s.Pixels.RawMatrix().Data))
		s.RescaleSlope = models.Float(1)
	}
}

// clipValues clips each slice whose modality has a configured range. The
// range is given in rescaled units and converted to stored values per slice,
// since the rescale parameters may vary across a series.
func clipValues(sl []*models.Slice, clip map[string][2]float64) bool {
	if len(clip) == 0 {
		return false
	}
	changed := false
	for _, s := range sl {
		if s.Modality == nil || s.Pixels == nil {
			continue
		}
		bounds, ok := clip[*s.Modality]
		if !ok {
			continue
		}
		lo, hi := toStored(bounds[0], s), toStored(bounds[1], s)
		if lo > hi {
			lo, hi = hi, lo
		}
		data := s.Pixels.RawMatrix().Data
		for i, v := range data {
			data[i] = math.Max(lo, math.Min(hi, v))
		}
		changed = true
	}
	return changed
}

func toStored(v float64, s *models.Slice) float64 {
	intercept, slope := 0.0, 1.0
	if s.RescaleIntercept != nil {
		intercept = *s.RescaleIntercept
	}
	if s.RescaleSlope != nil && *s.RescaleSlope != 0 {
		slope = *s.RescaleSlope
	}
	return (v - intercept) / slope
}

// pixelSpacing returns the modal in-plane spacing.
func pixelSpacing(sl []*models.Slice) (float64, float64, error) {
	if len(tags.Values(sl, tags.PairOf(models.TagPixelSpacing))) != len(sl) {
		return 0, 0, fmt.Errorf("PixelSpacing missing from some slices")
	}
	sp, _ := tags.ModeFunc(tags.Values(sl, tags.PairOf(models.TagPixelSpacing)))
	return sp[0], sp[1], nil
}
