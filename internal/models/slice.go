package models

import (
	"strconv"

	"gonum.org/v1/gonum/mat"
)

// Tag names understood by Slice attribute lookups. They follow the DICOM
// keywords so values read from disk and values queried by name line up.
const (
	TagImagePositionPatient    = "ImagePositionPatient"
	TagImageOrientationPatient = "ImageOrientationPatient"
	TagPixelSpacing            = "PixelSpacing"
	TagSpacingBetweenSlices    = "SpacingBetweenSlices"
	TagSliceThickness          = "SliceThickness"
	TagModality                = "Modality"
	TagRescaleSlope            = "RescaleSlope"
	TagRescaleIntercept        = "RescaleIntercept"
	TagSeriesNumber            = "SeriesNumber"
	TagInstanceNumber          = "InstanceNumber"
	TagRows                    = "Rows"
	TagColumns                 = "Columns"
)

// PrincipalAxis is the index of the position component slices are stacked along.
const PrincipalAxis = 2

// Slice represents a single acquired 2-D plane with its geometric metadata
type Slice struct {
	// Position is the patient-space position of the first pixel (x, y, z).
	// Position[PrincipalAxis] is the coordinate slices are ordered by.
	Position []float64

	// Orientation holds the row and column direction cosines (6 values)
	Orientation []float64

	// PixelSpacing is the in-plane spacing as (row, column) in mm
	PixelSpacing []float64

	// SpacingBetweenSlices is the declared inter-slice distance, if present
	SpacingBetweenSlices *float64

	// SliceThickness is the nominal slice thickness, if present
	SliceThickness *float64

	// Modality is the acquisition modality (CT, MR, ...), nil when absent
	Modality *string

	// RescaleSlope and RescaleIntercept map stored values to real-world values
	RescaleSlope     *float64
	RescaleIntercept *float64

	// SeriesNumber identifies the series this slice was acquired in
	SeriesNumber *int

	// InstanceNumber is the 1-based rank of the slice in its series
	InstanceNumber int

	// Rows and Columns mirror the pixel array dimensions
	Rows    int
	Columns int

	// Pixels is the 2-D pixel array (Rows x Columns)
	Pixels *mat.Dense

	// Attributes holds any additional named attributes as text
	Attributes map[string]string

	// Source is where the slice was read from (file path or store key)
	Source string
}

// PrincipalPosition returns the slice coordinate along the stacking axis.
func (s *Slice) PrincipalPosition() (float64, bool) {
	if len(s.Position) <= PrincipalAxis {
		return 0, false
	}
	return s.Position[PrincipalAxis], true
}

// Shape returns the (rows, columns) of the pixel array.
func (s *Slice) Shape() [2]int {
	if s.Pixels == nil {
		return [2]int{0, 0}
	}
	r, c := s.Pixels.Dims()
	return [2]int{r, c}
}

// SetPixels replaces the pixel array and keeps Rows/Columns in sync.
func (s *Slice) SetPixels(m *mat.Dense) {
	s.Pixels = m
	shape := s.Shape()
	s.Rows, s.Columns = shape[0], shape[1]
}

// Scalar looks up a single numeric attribute by tag name.
func (s *Slice) Scalar(name string) (float64, bool) {
	switch name {
	case TagSpacingBetweenSlices:
		return deref(s.SpacingBetweenSlices)
	case TagSliceThickness:
		return deref(s.SliceThickness)
	case TagRescaleSlope:
		return deref(s.RescaleSlope)
	case TagRescaleIntercept:
		return deref(s.RescaleIntercept)
	case TagSeriesNumber:
		if s.SeriesNumber == nil {
			return 0, false
		}
		return float64(*s.SeriesNumber), true
	case TagInstanceNumber:
		return float64(s.InstanceNumber), s.InstanceNumber != 0
	case TagRows:
		return float64(s.Rows), s.Rows != 0
	case TagColumns:
		return float64(s.Columns), s.Columns != 0
	}
	raw, ok := s.Attributes[name]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Vector looks up a multi-valued numeric attribute by tag name.
func (s *Slice) Vector(name string) ([]float64, bool) {
	switch name {
	case TagImagePositionPatient:
		return s.Position, s.Position != nil
	case TagImageOrientationPatient:
		return s.Orientation, s.Orientation != nil
	case TagPixelSpacing:
		return s.PixelSpacing, s.PixelSpacing != nil
	}
	if v, ok := s.Scalar(name); ok {
		return []float64{v}, true
	}
	return nil, false
}

// Text looks up an attribute rendered as text.
func (s *Slice) Text(name string) (string, bool) {
	if name == TagModality {
		if s.Modality == nil {
			return "", false
		}
		return *s.Modality, true
	}
	if raw, ok := s.Attributes[name]; ok {
		return raw, true
	}
	if v, ok := s.Scalar(name); ok {
		return strconv.FormatFloat(v, 'g', -1, 64), true
	}
	return "", false
}

// Clone returns a deep copy of the slice, including its pixel array.
func (s *Slice) Clone() *Slice {
	c := *s
	c.Position = append([]float64(nil), s.Position...)
	c.Orientation = append([]float64(nil), s.Orientation...)
	c.PixelSpacing = append([]float64(nil), s.PixelSpacing...)
	c.SpacingBetweenSlices = clonePtr(s.SpacingBetweenSlices)
	c.SliceThickness = clonePtr(s.SliceThickness)
	c.Modality = clonePtr(s.Modality)
	c.RescaleSlope = clonePtr(s.RescaleSlope)
	c.RescaleIntercept = clonePtr(s.RescaleIntercept)
	c.SeriesNumber = clonePtr(s.SeriesNumber)
	if s.Pixels != nil {
		c.Pixels = mat.DenseCopyOf(s.Pixels)
	}
	if s.Attributes != nil {
		c.Attributes = make(map[string]string, len(s.Attributes))
		for k, v := range s.Attributes {
			c.Attributes[k] = v
		}
	}
	return &c
}

// Float returns a pointer to v, for filling optional attributes.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }

func deref(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
