package models

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Array3D is a dense 3-D array stored as a flat slice in row-major order
// with the principal (slice) axis outermost, so every 2-D plane is contiguous.
//
// Shape is (rows, columns, depth); element (r, c, z) lives at
// z*rows*columns + r*columns + c.
type Array3D struct {
	Data  []float64
	Shape [3]int
}

// NewArray3D allocates a zero-filled array of the given shape.
func NewArray3D(shape [3]int) *Array3D {
	n := shape[0] * shape[1] * shape[2]
	if n < 0 {
		n = 0
	}
	return &Array3D{Data: make([]float64, n), Shape: shape}
}

// Index returns the flat offset of (r, c, z).
func (a *Array3D) Index(r, c, z int) int {
	return z*a.Shape[0]*a.Shape[1] + r*a.Shape[1] + c
}

// At returns the element at (r, c, z).
func (a *Array3D) At(r, c, z int) float64 {
	return a.Data[a.Index(r, c, z)]
}

// Set stores v at (r, c, z).
func (a *Array3D) Set(r, c, z int, v float64) {
	a.Data[a.Index(r, c, z)] = v
}

// Len returns the number of elements.
func (a *Array3D) Len() int { return len(a.Data) }

// Plane returns a copy of plane z as a matrix.
func (a *Array3D) Plane(z int) *mat.Dense {
	size := a.Shape[0] * a.Shape[1]
	data := make([]float64, size)
	copy(data, a.Data[z*size:(z+1)*size])
	return mat.NewDense(a.Shape[0], a.Shape[1], data)
}

// SetPlane copies m into plane z. m must be rows x columns.
func (a *Array3D) SetPlane(z int, m mat.Matrix) error {
	r, c := m.Dims()
	if r != a.Shape[0] || c != a.Shape[1] {
		return fmt.Errorf("plane shape %dx%d does not match array %dx%d", r, c, a.Shape[0], a.Shape[1])
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			a.Set(i, j, z, m.At(i, j))
		}
	}
	return nil
}

// Clone returns a deep copy.
func (a *Array3D) Clone() *Array3D {
	return &Array3D{Data: append([]float64(nil), a.Data...), Shape: a.Shape}
}

// Stack builds an array from equally shaped planes, in order.
func Stack(planes []*mat.Dense) (*Array3D, error) {
	if len(planes) == 0 {
		return nil, fmt.Errorf("no planes to stack")
	}
	rows, cols := planes[0].Dims()
	arr := NewArray3D([3]int{rows, cols, len(planes)})
	for z, p := range planes {
		if err := arr.SetPlane(z, p); err != nil {
			return nil, fmt.Errorf("plane %d: %w", z, err)
		}
	}
	return arr, nil
}

// Volume represents an assembled, geometrically consistent stack of slices
type Volume struct {
	// Name identifies the case the volume belongs to
	Name string

	// Slices is the corrected slice sequence, ordered by principal position
	Slices []*Slice

	// Array is the stacked pixel data
	Array *Array3D

	// Spacing is the voxel spacing as (row, column, step) in mm
	Spacing [3]float64

	// IsLabel marks mask volumes
	IsLabel bool
}

// Shape returns the array shape, or zeros when no array is attached.
func (v *Volume) Shape() [3]int {
	if v.Array == nil {
		return [3]int{}
	}
	return v.Array.Shape
}

// Restack rebuilds Array from the slice pixel arrays.
func (v *Volume) Restack() error {
	planes := make([]*mat.Dense, len(v.Slices))
	for i, s := range v.Slices {
		if s.Pixels == nil {
			return fmt.Errorf("slice %d (%s) has no pixel data", i, s.Source)
		}
		planes[i] = s.Pixels
	}
	arr, err := Stack(planes)
	if err != nil {
		return err
	}
	v.Array = arr
	return nil
}

// Pair couples an image volume with its label volume.
type Pair struct {
	Image *Volume
	Label *Volume
}

// Spacing returns the image spacing; image and label share it once validated.
func (p *Pair) Spacing() [3]float64 { return p.Image.Spacing }
