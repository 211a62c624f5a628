package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"dicomvolume/internal/models"
	"dicomvolume/internal/testutil"
)

func TestArray3DIndexing(t *testing.T) {
	arr := models.NewArray3D([3]int{2, 3, 4})
	assert.Equal(t, 24, arr.Len())

	arr.Set(1, 2, 3, 7)
	assert.Equal(t, 7.0, arr.At(1, 2, 3))
	assert.Equal(t, 3*6+1*3+2, arr.Index(1, 2, 3))
}

func TestStackAndPlane(t *testing.T) {
	p0 := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	p1 := mat.NewDense(2, 2, []float64{5, 6, 7, 8})

	arr, err := models.Stack([]*mat.Dense{p0, p1})
	require.NoError(t, err)
	assert.Equal(t, [3]int{2, 2, 2}, arr.Shape)
	assert.True(t, mat.Equal(p1, arr.Plane(1)))

	// plane is a copy
	arr.Plane(0).Set(0, 0, 99)
	assert.Equal(t, 1.0, arr.At(0, 0, 0))
}

func TestStackRejectsMixedShapes(t *testing.T) {
	_, err := models.Stack([]*mat.Dense{mat.NewDense(2, 2, nil), mat.NewDense(3, 2, nil)})
	assert.Error(t, err)

	_, err = models.Stack(nil)
	assert.Error(t, err)
}

func TestSliceCloneIsDeep(t *testing.T) {
	s := testutil.Slice(5, 2, 2, 1)
	s.SpacingBetweenSlices = models.Float(5)
	s.Attributes["PatientID"] = "p1"

	c := s.Clone()
	c.Position[2] = 10
	*c.SpacingBetweenSlices = 2
	c.Pixels.Set(0, 0, 42)
	c.Attributes["PatientID"] = "p2"

	z, _ := s.PrincipalPosition()
	assert.Equal(t, 5.0, z)
	assert.Equal(t, 5.0, *s.SpacingBetweenSlices)
	assert.Equal(t, 1.0, s.Pixels.At(0, 0))
	assert.Equal(t, "p1", s.Attributes["PatientID"])
}

func TestSliceLookups(t *testing.T) {
	s := testutil.Slice(3, 4, 6, 0)
	s.Attributes["EchoTime"] = "12.5"

	v, ok := s.Scalar("EchoTime")
	require.True(t, ok)
	assert.Equal(t, 12.5, v)

	rows, _ := s.Scalar(models.TagRows)
	assert.Equal(t, 4.0, rows)

	_, ok = s.Scalar(models.TagSliceThickness)
	assert.False(t, ok)

	txt, ok := s.Text(models.TagModality)
	require.True(t, ok)
	assert.Equal(t, "MR", txt)

	sp, ok := s.Vector(models.TagPixelSpacing)
	require.True(t, ok)
	assert.Equal(t, []float64{1, 1}, sp)
}

func TestVolumeRestack(t *testing.T) {
	v := &models.Volume{Slices: testutil.Series([]float64{0, 1, 2}, 2, 3)}
	require.NoError(t, v.Restack())
	assert.Equal(t, [3]int{2, 3, 3}, v.Shape())
	assert.Equal(t, 2.0, v.Array.At(1, 1, 2))

	v.Slices[1].Pixels = nil
	assert.Error(t, v.Restack())
}
