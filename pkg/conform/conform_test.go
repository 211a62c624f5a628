package conform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dicomvolume/internal/logging"
	"dicomvolume/internal/models"
	"dicomvolume/internal/testutil"
	"dicomvolume/pkg/validation"
)

func allowShape(t *testing.T) *validation.Policy {
	t.Helper()
	allow, err := validation.NewAllowList(validation.ArrayShape)
	require.NoError(t, err)
	return validation.NewPolicy(allow, logging.NewNop())
}

func TestDominantShape(t *testing.T) {
	tests := []struct {
		name   string
		shapes [][2]int
		want   [2]int
	}{
		{"largest wins", [][2]int{{256, 256}, {512, 512}, {512, 512}}, [2]int{512, 512}},
		{"count does not matter", [][2]int{{4, 4}, {4, 4}, {8, 8}}, [2]int{8, 8}},
		{"first on equal size", [][2]int{{2, 8}, {8, 2}}, [2]int{2, 8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sl []*models.Slice
			for i, s := range tt.shapes {
				sl = append(sl, testutil.Slice(float64(i), s[0], s[1], 0))
			}
			got, ok := DominantShape(sl)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConformResizesToDominant(t *testing.T) {
	sl := []*models.Slice{
		testutil.Slice(0, 512, 512, 1),
		testutil.Slice(1, 256, 256, 1),
		testutil.Slice(2, 512, 512, 1),
	}

	require.NoError(t, New(allowShape(t), false, nil).Conform(sl))
	for _, s := range sl {
		assert.Equal(t, [2]int{512, 512}, s.Shape())
		assert.Equal(t, 512, s.Rows)
		assert.Equal(t, 512, s.Columns)
	}
	assert.InDelta(t, 1, sl[1].Pixels.At(300, 300), 1e-9)
}

func TestConformNotTolerated(t *testing.T) {
	sl := []*models.Slice{testutil.Slice(0, 4, 4, 1), testutil.Slice(1, 2, 2, 1)}
	err := New(nil, false, nil).Conform(sl)
	require.Error(t, err)
	assert.Equal(t, [2]int{2, 2}, sl[1].Shape())
}

func TestConformNoOpWhenConsistent(t *testing.T) {
	sl := testutil.Series([]float64{0, 1}, 3, 3)
	before := sl[0].Pixels
	require.NoError(t, New(nil, false, nil).Conform(sl))
	assert.Same(t, before, sl[0].Pixels)
}

func TestConformLabelsStayIntegral(t *testing.T) {
	small := testutil.Slice(1, 3, 3, 0)
	small.Pixels.Set(1, 1, 1)
	sl := []*models.Slice{testutil.Slice(0, 7, 7, 0), small}

	require.NoError(t, New(allowShape(t), true, nil).Conform(sl))
	r, c := small.Pixels.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := small.Pixels.At(i, j)
			assert.Equal(t, v, float64(int(v)))
		}
	}
	assert.Equal(t, 1.0, small.Pixels.At(3, 3))
}
