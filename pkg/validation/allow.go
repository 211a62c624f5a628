// Package validation holds the geometric and tag checks applied to a slice
// sequence and the tolerance policy that decides which findings are fatal.
//
// Checks return a *Violation (nil when the check passes) instead of failing
// outright. A Policy then either tolerates the violation, logging it, or
// turns it into an error for the caller.
package validation

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"dicomvolume/internal/logging"
	"dicomvolume/internal/models"
)

// Names accepted in an allow list besides the attribute keywords in models.
const (
	// ArrayShape tolerates slices whose pixel arrays differ in shape.
	ArrayShape = "pixel_array.shape"

	// Unpaired tolerates cases present on only one side of a comparison.
	Unpaired = "unpaired"
)

// KnownNames lists every name an allow list may contain.
var KnownNames = []string{
	models.TagSeriesNumber,
	models.TagPixelSpacing,
	models.TagImagePositionPatient,
	models.TagSpacingBetweenSlices,
	models.TagModality,
	models.TagRescaleIntercept,
	models.TagImageOrientationPatient,
	ArrayShape,
	Unpaired,
}

// AllowList is the set of attribute or condition names whose violations are tolerated.
type AllowList map[string]struct{}

// NewAllowList builds an allow list, rejecting names no check recognises.
func NewAllowList(names ...string) (AllowList, error) {
	a := make(AllowList, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if !slices.Contains(KnownNames, n) {
			return nil, fmt.Errorf("unknown allow list entry %q (known: %s)", n, strings.Join(KnownNames, ", "))
		}
		a[n] = struct{}{}
	}
	return a, nil
}

// Allows reports whether name is tolerated. A nil list tolerates nothing.
func (a AllowList) Allows(name string) bool {
	_, ok := a[name]
	return ok
}

// Names returns the entries in sorted order.
func (a AllowList) Names() []string {
	out := make([]string, 0, len(a))
	for n := range a {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// Violation describes a failed check: the attribute it concerns and the
// values that were observed.
type Violation struct {
	Tag     string
	Message string
	Values  []string
}

func (v *Violation) Error() string {
	if len(v.Values) == 0 {
		return fmt.Sprintf("%s: %s", v.Tag, v.Message)
	}
	return fmt.Sprintf("%s: %s: [%s]", v.Tag, v.Message, strings.Join(v.Values, ", "))
}

// Violationf builds a violation for tag with a formatted message.
func Violationf(tag string, values []string, format string, args ...any) *Violation {
	return &Violation{Tag: tag, Message: fmt.Sprintf(format, args...), Values: values}
}

// Policy applies an allow list to violations.
type Policy struct {
	Allow  AllowList
	Logger *slog.Logger
}

// NewPolicy returns a policy logging tolerated violations to logger.
func NewPolicy(allow AllowList, logger *slog.Logger) *Policy {
	return &Policy{Allow: allow, Logger: logging.OrNop(logger)}
}

// Tolerates reports whether violations of tag are tolerated.
func (p *Policy) Tolerates(tag string) bool {
	return p != nil && p.Allow.Allows(tag)
}

// Handle returns v as an error unless its tag is allowed, in which case the
// violation is logged and dropped. A nil violation returns nil.
func (p *Policy) Handle(v *Violation) error {
	if v == nil {
		return nil
	}
	if !p.Tolerates(v.Tag) {
		return v
	}
	logging.OrNop(p.Logger).Warn("tolerated violation", "tag", v.Tag, "detail", v.Error())
	return nil
}
