// Package comparison compares label masks of the same cases drawn from two
// sources, case by case.
//
// Each source root holds one directory per case under images/ and labels/.
// For every case present on both sides the runner assembles both image/label
// pairs, optionally aligns the second onto the first, classifies the overlap
// and records Dice and label volumes in a results store.
package comparison

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"dicomvolume/internal/logging"
	"dicomvolume/internal/models"
	"dicomvolume/pkg/align"
	"dicomvolume/pkg/measure"
	"dicomvolume/pkg/metrics"
	"dicomvolume/pkg/overlap"
	"dicomvolume/pkg/reconstruction"
	"dicomvolume/pkg/results"
	"dicomvolume/pkg/slicestore"
	"dicomvolume/pkg/validation"
)

// Directory names below a source root.
const (
	ImagesDir        = "images"
	LabelsDir        = "labels"
	ImagesShiftedDir = "images_shifted"
	LabelsShiftedDir = "labels_shifted"
)

// Options configures a comparison run.
type Options struct {
	// Assembly is the template for assembling every series. InputDir, Name
	// and IsLabel are set per series.
	Assembly reconstruction.Params

	// Align resamples and shifts the second pair onto the first.
	Align     bool
	AlignMode align.Mode

	Classification   overlap.Mode
	ContourThickness int

	// ShiftedDir, when set, receives the aligned second pair.
	ShiftedDir string

	// KeepGoing records failed cases and moves on instead of stopping the run.
	KeepGoing bool
}

// Previewer renders a classified case.
type Previewer interface {
	Preview(name string, vol *models.Volume, classes *models.Array3D) ([]string, error)
}

// Summary counts the cases of a run.
type Summary struct {
	Compared int
	Failed   int
	Unpaired int
}

// Runner runs comparisons.
type Runner struct {
	opts    Options
	store   slicestore.Store
	results results.Store
	metrics *metrics.Collector
	preview Previewer
	policy  *validation.Policy
	logger  *slog.Logger
}

// NewRunner returns a runner reading series from store and recording into res.
func NewRunner(opts Options, store slicestore.Store, res results.Store, logger *slog.Logger) *Runner {
	logger = logging.OrNop(logger)
	return &Runner{
		opts:    opts,
		store:   store,
		results: res,
		policy:  validation.NewPolicy(opts.Assembly.Allow, logger),
		logger:  logger,
	}
}

// WithMetrics sets the collector run metrics are recorded in.
func (r *Runner) WithMetrics(c *metrics.Collector) *Runner {
	r.metrics = c
	return r
}

// WithPreview sets the previewer called for every compared case.
func (r *Runner) WithPreview(p Previewer) *Runner {
	r.preview = p
	return r
}

// Cases splits the case names of two roots into those present on both sides
// and those present on one side only.
func (r *Runner) Cases(ctx context.Context, rootA, rootB string) (paired, onlyA, onlyB []string, err error) {
	a, err := r.store.List(ctx, filepath.Join(rootA, ImagesDir))
	if err != nil {
		return nil, nil, nil, err
	}
	b, err := r.store.List(ctx, filepath.Join(rootB, ImagesDir))
	if err != nil {
		return nil, nil, nil, err
	}
	for _, name := range a {
		if slices.Contains(b, name) {
			paired = append(paired, name)
		} else {
			onlyA = append(onlyA, name)
		}
	}
	for _, name := range b {
		if !slices.Contains(a, name) {
			onlyB = append(onlyB, name)
		}
	}
	return paired, onlyA, onlyB, nil
}

// Run compares every case of rootA with its match in rootB.
func (r *Runner) Run(ctx context.Context, rootA, rootB string) (Summary, error) {
	var sum Summary
	paired, onlyA, onlyB, err := r.Cases(ctx, rootA, rootB)
	if err != nil {
		return sum, fmt.Errorf("listing cases: %w", err)
	}

	if unpaired := append(slices.Clone(onlyA), onlyB...); len(unpaired) > 0 {
		v := validation.Violationf(validation.Unpaired, unpaired, "cases without a match")
		if err := r.policy.Handle(v); err != nil {
			return sum, err
		}
		for _, name := range unpaired {
			sum.Unpaired++
			r.metrics.CaseDone(metrics.OutcomeUnpaired)
			if err := r.results.Record(ctx, results.CaseResult{Case: name, Error: "unpaired"}); err != nil {
				return sum, fmt.Errorf("recording %s: %w", name, err)
			}
		}
	}

	for _, name := range paired {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		res, err := r.Compare(ctx, name, rootA, rootB)
		if err != nil {
			sum.Failed++
			r.metrics.CaseDone(metrics.OutcomeFailed)
			r.logger.Error("case failed", "case", name, "error", err)
			if rerr := r.results.Record(ctx, results.CaseResult{Case: name, Error: err.Error()}); rerr != nil {
				return sum, errors.Join(err, rerr)
			}
			if !r.opts.KeepGoing {
				return sum, fmt.Errorf("case %s: %w", name, err)
			}
			continue
		}
		if err := r.results.Record(ctx, res); err != nil {
			return sum, fmt.Errorf("recording %s: %w", name, err)
		}
		sum.Compared++
		r.metrics.CaseDone(metrics.OutcomeOK)
	}

	r.logger.Info("comparison finished",
		"compared", sum.Compared,
		"failed", sum.Failed,
		"unpaired", sum.Unpaired)
	return sum, nil
}

// Compare assembles, aligns and compares one case.
func (r *Runner) Compare(ctx context.Context, name, rootA, rootB string) (results.CaseResult, error) {
	res := results.CaseResult{Case: name}
	log := r.logger.With("case", name)

	pairA, corrA, err := r.AssemblePair(ctx, rootA, name)
	if err != nil {
		return res, fmt.Errorf("first source: %w", err)
	}
	pairB, corrB, err := r.AssemblePair(ctx, rootB, name)
	if err != nil {
		return res, fmt.Errorf("second source: %w", err)
	}
	res.Corrections = append(prefixed("a", corrA), prefixed("b", corrB)...)

	aligner := align.New(r.opts.AlignMode, r.policy, log)
	if err := aligner.Validate(pairA, pairB); err != nil {
		return res, err
	}
	if r.opts.Align {
		aligned, err := aligner.Align(pairA, pairB)
		if err != nil {
			return res, fmt.Errorf("aligning: %w", err)
		}
		pairB = aligned.Pair
		res.Aligned = true
		res.Window = aligned.Window.String()
		if err := r.saveShifted(ctx, name, pairB); err != nil {
			return res, err
		}
	}

	classifier := overlap.NewClassifier(r.opts.Classification, r.opts.ContourThickness, log)
	maskA, err := classifier.ValidateMask(pairA.Label.Array)
	if err != nil {
		return res, fmt.Errorf("first label: %w", err)
	}
	maskB, err := classifier.ValidateMask(pairB.Label.Array)
	if err != nil {
		return res, fmt.Errorf("second label: %w", err)
	}

	res.Dice, err = overlap.Dice(maskA, maskB)
	if err != nil {
		return res, err
	}
	r.metrics.ObserveDice(res.Dice)

	classes, err := overlap.NewClassifier(overlap.Fill, 0, log).Classify(maskA, maskB)
	if err != nil {
		return res, err
	}
	counts := overlap.Counts(classes)
	res.Overlap, res.OnlyA, res.OnlyB = counts[overlap.Overlap], counts[overlap.OnlyA], counts[overlap.OnlyB]

	if res.VolumeA, err = measure.LabelVolume(withArray(pairA.Label, maskA), 1); err != nil {
		return res, err
	}
	if res.VolumeB, err = measure.LabelVolume(withArray(pairB.Label, maskB), 1); err != nil {
		return res, err
	}

	if r.preview != nil {
		if r.opts.Classification != overlap.Fill {
			if classes, err = classifier.Classify(maskA, maskB); err != nil {
				return res, err
			}
		}
		if _, err := r.preview.Preview(name, pairA.Image, classes); err != nil {
			log.Warn("failed to write preview", "error", err)
		}
	}

	res.RecordedAt = time.Now().UTC()
	log.Info("compared case",
		"dice", res.Dice,
		"volume_a_cm3", res.VolumeA,
		"volume_b_cm3", res.VolumeB,
		"aligned", res.Aligned)
	return res, nil
}

// AssemblePair assembles the image and label series of a case below root.
// It returns the pair and the corrections applied to each series.
func (r *Runner) AssemblePair(ctx context.Context, root, name string) (*models.Pair, []string, error) {
	pair := &models.Pair{}
	var corrections []string
	for _, isLabel := range []bool{false, true} {
		params := r.opts.Assembly
		params.Name = name
		params.IsLabel = isLabel
		params.InputDir = filepath.Join(root, ImagesDir, name)
		kind := "image"
		if isLabel {
			params.InputDir = filepath.Join(root, LabelsDir, name)
			kind = "label"
		}

		rec := reconstruction.NewReconstructor(&params, r.store, r.logger)
		vol, err := rec.Process(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", kind, err)
		}
		r.metrics.Assembled(isLabel)
		report := rec.Report()
		r.metrics.Corrections(report.Corrections...)
		corrections = append(corrections, prefixed(kind, report.Corrections)...)

		if isLabel {
			pair.Label = vol
		} else {
			pair.Image = vol
		}
	}
	if err := align.ValidatePair(pair); err != nil {
		return nil, nil, err
	}
	return pair, corrections, nil
}

func (r *Runner) saveShifted(ctx context.Context, name string, p *models.Pair) error {
	if r.opts.ShiftedDir == "" {
		return nil
	}
	if err := r.store.Save(ctx, filepath.Join(r.opts.ShiftedDir, ImagesShiftedDir, name), p.Image.Slices); err != nil {
		return fmt.Errorf("saving shifted image: %w", err)
	}
	if err := r.store.Save(ctx, filepath.Join(r.opts.ShiftedDir, LabelsShiftedDir, name), p.Label.Slices); err != nil {
		return fmt.Errorf("saving shifted label: %w", err)
	}
	return nil
}

func prefixed(prefix string, kinds []string) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = prefix + ":" + k
	}
	return out
}

// withArray returns a shallow copy of v carrying arr.
func withArray(v *models.Volume, arr *models.Array3D) *models.Volume {
	c := *v
	c.Array = arr
	return &c
}
