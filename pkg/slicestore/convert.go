package slicestore

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
	"gonum.org/v1/gonum/mat"

	"dicomvolume/internal/models"
)

// Secondary capture SOP class, used when writing derived slices.
const secondaryCaptureSOPClass = "1.2.840.10008.5.1.4.1.1.7"

// extraTags are carried through Slice.Attributes by keyword.
var extraTags = map[string]tag.Tag{
	"PatientID":         tag.PatientID,
	"StudyInstanceUID":  tag.StudyInstanceUID,
	"SeriesInstanceUID": tag.SeriesInstanceUID,
	"SeriesDescription": tag.SeriesDescription,
	"SOPInstanceUID":    tag.SOPInstanceUID,
	"SliceLocation":     tag.SliceLocation,
}

// FromDataset converts a parsed DICOM dataset into a slice.
func FromDataset(ds dicom.Dataset, source string) (*models.Slice, error) {
	s := &models.Slice{Source: source, Attributes: map[string]string{}}

	var err error
	if s.Position, err = floats(ds, tag.ImagePositionPatient); err != nil {
		return nil, err
	}
	if s.Orientation, err = floats(ds, tag.ImageOrientationPatient); err != nil {
		return nil, err
	}
	if s.PixelSpacing, err = floats(ds, tag.PixelSpacing); err != nil {
		return nil, err
	}
	s.SpacingBetweenSlices = optionalFloat(ds, tag.SpacingBetweenSlices)
	s.SliceThickness = optionalFloat(ds, tag.SliceThickness)
	s.RescaleSlope = optionalFloat(ds, tag.RescaleSlope)
	s.RescaleIntercept = optionalFloat(ds, tag.RescaleIntercept)
	if v, ok := strs(ds, tag.Modality); ok && len(v) > 0 {
		s.Modality = models.String(v[0])
	}
	if v := optionalFloat(ds, tag.SeriesNumber); v != nil {
		s.SeriesNumber = models.Int(int(*v))
	}
	if v := optionalFloat(ds, tag.InstanceNumber); v != nil {
		s.InstanceNumber = int(*v)
	}
	for name, t := range extraTags {
		if v, ok := strs(ds, t); ok && len(v) > 0 {
			s.Attributes[name] = strings.Join(v, `\`)
		}
	}

	px, err := pixels(ds)
	if err != nil {
		return nil, err
	}
	s.SetPixels(px)
	return s, nil
}

// ToDataset converts a slice into a writable DICOM dataset with 16-bit pixel
// data. Slices with negative values are written signed (PixelRepresentation 1)
// and clamped to the int16 range, others unsigned and clamped to [0, 65535].
func ToDataset(s *models.Slice) (dicom.Dataset, error) {
	if s.Pixels == nil {
		return dicom.Dataset{}, fmt.Errorf("slice %s has no pixel data", s.Source)
	}
	rows, cols := s.Pixels.Dims()

	b := &builder{}
	b.add(tag.TransferSyntaxUID, []string{"1.2.840.10008.1.2.1"})
	b.add(tag.SOPClassUID, []string{secondaryCaptureSOPClass})
	if s.Modality != nil {
		b.add(tag.Modality, []string{*s.Modality})
	} else {
		b.add(tag.Modality, []string{""})
	}
	if s.SeriesNumber != nil {
		b.add(tag.SeriesNumber, []string{strconv.Itoa(*s.SeriesNumber)})
	}
	b.add(tag.InstanceNumber, []string{strconv.Itoa(s.InstanceNumber)})
	b.addFloats(tag.ImagePositionPatient, s.Position)
	b.addFloats(tag.ImageOrientationPatient, s.Orientation)
	b.addFloats(tag.PixelSpacing, s.PixelSpacing)
	b.addOptional(tag.SliceThickness, s.SliceThickness)
	b.addOptional(tag.SpacingBetweenSlices, s.SpacingBetweenSlices)
	b.addOptional(tag.RescaleIntercept, s.RescaleIntercept)
	b.addOptional(tag.RescaleSlope, s.RescaleSlope)
	for name, t := range extraTags {
		if v, ok := s.Attributes[name]; ok {
			b.add(t, strings.Split(v, `\`))
		}
	}
	b.add(tag.Rows, []int{rows})
	b.add(tag.Columns, []int{cols})
	b.add(tag.BitsAllocated, []int{16})
	b.add(tag.BitsStored, []int{16})
	b.add(tag.HighBit, []int{15})
	signed := mat.Min(s.Pixels) < 0
	if signed {
		b.add(tag.PixelRepresentation, []int{1})
	} else {
		b.add(tag.PixelRepresentation, []int{0})
	}
	b.add(tag.SamplesPerPixel, []int{1})
	b.add(tag.PhotometricInterpretation, []string{"MONOCHROME2"})

	var native frame.INativeFrame
	if signed {
		nf := frame.NewNativeFrame[int16](16, rows, cols, rows*cols, 1)
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				v := math.Round(s.Pixels.At(r, c))
				nf.RawData[r*cols+c] = int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, v)))
			}
		}
		native = nf
	} else {
		nf := frame.NewNativeFrame[uint16](16, rows, cols, rows*cols, 1)
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				v := math.Round(s.Pixels.At(r, c))
				nf.RawData[r*cols+c] = uint16(math.Min(math.MaxUint16, v))
			}
		}
		native = nf
	}
	b.add(tag.PixelData, dicom.PixelDataInfo{
		Frames: []*frame.Frame{{Encapsulated: false, NativeData: native}},
	})

	if b.err != nil {
		return dicom.Dataset{}, b.err
	}
	return dicom.Dataset{Elements: b.elements}, nil
}

type builder struct {
	elements []*dicom.Element
	err      error
}

func (b *builder) add(t tag.Tag, value any) {
	if b.err != nil {
		return
	}
	el, err := dicom.NewElement(t, value)
	if err != nil {
		b.err = fmt.Errorf("building element %v: %w", t, err)
		return
	}
	b.elements = append(b.elements, el)
}

func (b *builder) addFloats(t tag.Tag, v []float64) {
	if len(v) == 0 {
		return
	}
	out := make([]string, len(v))
	for i, f := range v {
		out[i] = strconv.FormatFloat(f, 'f', -1, 64)
	}
	b.add(t, out)
}

func (b *builder) addOptional(t tag.Tag, v *float64) {
	if v != nil {
		b.addFloats(t, []float64{*v})
	}
}

// strs returns the element values rendered as strings.
func strs(ds dicom.Dataset, t tag.Tag) ([]string, bool) {
	el, err := ds.FindElementByTag(t)
	if err != nil || el.Value == nil {
		return nil, false
	}
	switch v := el.Value.GetValue().(type) {
	case []string:
		out := make([]string, len(v))
		for i, s := range v {
			out[i] = strings.TrimSpace(s)
		}
		return out, true
	case []int:
		out := make([]string, len(v))
		for i, n := range v {
			out[i] = strconv.Itoa(n)
		}
		return out, true
	case []float64:
		out := make([]string, len(v))
		for i, f := range v {
			out[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return out, true
	}
	return nil, false
}

// floats parses a numeric element. A missing element is not an error.
func floats(ds dicom.Dataset, t tag.Tag) ([]float64, error) {
	raw, ok := strs(ds, t)
	if !ok {
		return nil, nil
	}
	out := make([]float64, 0, len(raw))
	for _, s := range raw {
		if s == "" {
			continue
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q for %v: %w", s, t, err)
		}
		out = append(out, f)
	}
	return out, nil
}

func optionalFloat(ds dicom.Dataset, t tag.Tag) *float64 {
	v, err := floats(ds, t)
	if err != nil || len(v) == 0 {
		return nil
	}
	return models.Float(v[0])
}

// pixels decodes the first native frame as a matrix.
func pixels(ds dicom.Dataset) (*mat.Dense, error) {
	el, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, fmt.Errorf("no pixel data: %w", err)
	}
	info, ok := el.Value.GetValue().(dicom.PixelDataInfo)
	if !ok || len(info.Frames) == 0 {
		return nil, fmt.Errorf("no pixel frames")
	}
	fr := info.Frames[0]
	if fr.Encapsulated || fr.NativeData == nil {
		return nil, fmt.Errorf("encapsulated pixel data is not supported")
	}
	nf := fr.NativeData
	rows, cols := nf.Rows(), nf.Cols()
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("empty pixel frame %dx%d", rows, cols)
	}
	data := make([]float64, rows*cols)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			px, err := nf.GetPixel(x, y)
			if err != nil {
				return nil, fmt.Errorf("reading pixel (%d, %d): %w", x, y, err)
			}
			data[y*cols+x] = float64(px[0])
		}
	}
	return mat.NewDense(rows, cols, data), nil
}
