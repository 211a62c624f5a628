// Package overlap compares two label masks on a shared grid: a per-voxel
// classification of where they agree and disagree, and the Dice coefficient.
package overlap

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"gonum.org/v1/gonum/floats"

	"dicomvolume/internal/logging"
	"dicomvolume/internal/models"
)

var (
	ErrShapeMismatch = errors.New("mask shapes do not match")
	ErrEmptyMasks    = errors.New("both masks are empty")
	ErrNoForeground  = errors.New("mask has no foreground")
	ErrNegativeValue = errors.New("mask has negative values")
)

// Class values written into a classification volume.
const (
	Background = 0
	Overlap    = 1
	OnlyA      = 2
	OnlyB      = 3
)

// Mode selects how classes are rendered.
type Mode int

const (
	// Fill marks every voxel with its class.
	Fill Mode = iota

	// Contour marks only the external boundary of each class region, per slice.
	Contour
)

// ParseMode maps "fill" and "contour" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "fill":
		return Fill, nil
	case "contour", "contours":
		return Contour, nil
	}
	return Fill, fmt.Errorf("unknown classification mode %q", s)
}

func (m Mode) String() string {
	if m == Contour {
		return "contour"
	}
	return "fill"
}

// DefaultThickness is the contour line thickness in pixels.
const DefaultThickness = 2

// Classifier classifies mask pairs.
type Classifier struct {
	Mode      Mode
	Thickness int
	logger    *slog.Logger
}

// NewClassifier returns a classifier. A thickness below 1 uses DefaultThickness.
func NewClassifier(mode Mode, thickness int, logger *slog.Logger) *Classifier {
	if thickness < 1 {
		thickness = DefaultThickness
	}
	return &Classifier{Mode: mode, Thickness: thickness, logger: logging.OrNop(logger)}
}

// ValidateMask checks that a mask is usable for comparison and returns its
// binarized copy. Masks with several positive values are binarized with a
// warning.
func (c *Classifier) ValidateMask(mask *models.Array3D) (*models.Array3D, error) {
	values := make(map[float64]int)
	for _, v := range mask.Data {
		if v < 0 {
			return nil, fmt.Errorf("%w: %g", ErrNegativeValue, v)
		}
		if v > 0 {
			values[v]++
		}
	}
	if len(values) == 0 {
		return nil, ErrNoForeground
	}
	if len(values) > 1 {
		labels := make([]string, 0, len(values))
		for v := range values {
			labels = append(labels, strconv.FormatFloat(v, 'g', -1, 64))
		}
		c.logger.Warn("mask has several label values, binarizing", "labels", labels)
	}
	return Binarize(mask), nil
}

// Binarize returns a copy of mask with every positive voxel set to 1.
func Binarize(mask *models.Array3D) *models.Array3D {
	out := models.NewArray3D(mask.Shape)
	for i, v := range mask.Data {
		if v > 0 {
			out.Data[i] = 1
		}
	}
	return out
}

// Classify labels each voxel by which masks cover it: Overlap where both do,
// OnlyA or OnlyB where one does. In Contour mode only the region boundaries
// are kept.
func (c *Classifier) Classify(a, b *models.Array3D) (*models.Array3D, error) {
	if a.Shape != b.Shape {
		return nil, fmt.Errorf("%w: %v vs %v", ErrShapeMismatch, a.Shape, b.Shape)
	}
	if c.Mode == Contour {
		return contours(a, b, c.Thickness), nil
	}
	return fill(a, b), nil
}

func fill(a, b *models.Array3D) *models.Array3D {
	out := models.NewArray3D(a.Shape)
	for i := range a.Data {
		out.Data[i] = class(a.Data[i] > 0, b.Data[i] > 0)
	}
	return out
}

func class(inA, inB bool) float64 {
	switch {
	case inA && inB:
		return Overlap
	case inA:
		return OnlyA
	case inB:
		return OnlyB
	}
	return Background
}

// Counts returns the number of voxels per class.
func Counts(classified *models.Array3D) map[int]int {
	out := make(map[int]int, 4)
	for _, v := range classified.Data {
		out[int(v)]++
	}
	return out
}

// Dice returns 2|A∩B|/(|A|+|B|) over the binarized masks.
func Dice(a, b *models.Array3D) (float64, error) {
	if a.Shape != b.Shape {
		return 0, fmt.Errorf("%w: %v vs %v", ErrShapeMismatch, a.Shape, b.Shape)
	}
	ba, bb := Binarize(a), Binarize(b)
	sumA, sumB := floats.Sum(ba.Data), floats.Sum(bb.Data)
	if sumA+sumB == 0 {
		return 0, ErrEmptyMasks
	}
	return 2 * floats.Dot(ba.Data, bb.Data) / (sumA + sumB), nil
}
