package resample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"dicomvolume/internal/models"
)

func TestLine(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		n    int
		want []float64
	}{
		{"same length copies", []float64{1, 2, 3}, 3, []float64{1, 2, 3}},
		{"single sample replicates", []float64{4}, 3, []float64{4, 4, 4}},
		{"single output takes first", []float64{4, 5, 6}, 1, []float64{4}},
		{"linear data stays linear", []float64{0, 2, 4}, 5, []float64{0, 1, 2, 3, 4}},
		{"endpoints preserved", []float64{3, 9}, 4, []float64{3, 5, 7, 9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDeltaSlice(t, tt.want, Line(tt.in, tt.n), 1e-9)
		})
	}
}

func TestPlaneShapeAndConstant(t *testing.T) {
	data := make([]float64, 16)
	for i := range data {
		data[i] = 7
	}
	out, err := New().Plane(mat.NewDense(4, 4, data), 2, 8)
	require.NoError(t, err)

	r, c := out.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 8, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			assert.InDelta(t, 7, out.At(i, j), 1e-9)
		}
	}
}

func TestPlaneRejectsEmptyTarget(t *testing.T) {
	_, err := New().Plane(mat.NewDense(2, 2, nil), 0, 2)
	assert.Error(t, err)
}

func TestArrayWorkersAgree(t *testing.T) {
	arr := models.NewArray3D([3]int{5, 4, 3})
	for i := range arr.Data {
		arr.Data[i] = float64(i%7) * 1.5
	}

	seq := &Resampler{Workers: 1}
	par := &Resampler{Workers: 4}

	a, err := seq.Array(arr, [3]int{9, 6, 5})
	require.NoError(t, err)
	b, err := par.Array(arr, [3]int{9, 6, 5})
	require.NoError(t, err)
	assert.Equal(t, a.Data, b.Data)
	assert.Equal(t, [3]int{9, 6, 5}, a.Shape)
}

func TestArraySameShapeReturnsCopy(t *testing.T) {
	arr := models.NewArray3D([3]int{2, 2, 2})
	arr.Set(1, 1, 1, 3)

	out, err := New().Array(arr, arr.Shape)
	require.NoError(t, err)
	out.Set(1, 1, 1, 0)
	assert.Equal(t, 3.0, arr.At(1, 1, 1))
}

func TestLabelsStayIntegral(t *testing.T) {
	arr := models.NewArray3D([3]int{4, 4, 2})
	for r := 1; r < 3; r++ {
		for c := 1; c < 3; c++ {
			arr.Set(r, c, 0, 1)
			arr.Set(r, c, 1, 1)
		}
	}

	out, err := ForLabels().Zoom(arr, [3]float64{2, 2, 1})
	require.NoError(t, err)
	assert.Equal(t, [3]int{8, 8, 2}, out.Shape)
	for _, v := range out.Data {
		assert.Equal(t, v, float64(int(v)))
	}
}

func TestZoomShape(t *testing.T) {
	assert.Equal(t, [3]int{10, 5, 1}, ZoomShape([3]int{5, 10, 3}, [3]float64{2, 0.5, 0.1}))
}
