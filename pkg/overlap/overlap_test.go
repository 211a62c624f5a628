package overlap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dicomvolume/internal/models"
	"dicomvolume/internal/testutil"
)

func arr(shape [3]int, data ...float64) *models.Array3D {
	a := models.NewArray3D(shape)
	copy(a.Data, data)
	return a
}

func TestClassifyFill(t *testing.T) {
	a := arr([3]int{1, 4, 1}, 1, 1, 0, 0)
	b := arr([3]int{1, 4, 1}, 1, 0, 1, 0)

	out, err := NewClassifier(Fill, 0, nil).Classify(a, b)
	require.NoError(t, err)
	assert.Equal(t, []float64{Overlap, OnlyA, OnlyB, Background}, out.Data)
	assert.Equal(t, map[int]int{0: 1, 1: 1, 2: 1, 3: 1}, Counts(out))
}

func TestClassifyShapeMismatch(t *testing.T) {
	_, err := NewClassifier(Fill, 0, nil).Classify(models.NewArray3D([3]int{2, 2, 1}), models.NewArray3D([3]int{2, 3, 1}))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestClassifyContourRing(t *testing.T) {
	a := testutil.Mask([3]int{5, 5, 1}, [3]int{1, 1, 0}, [3]int{4, 4, 1}, 1).Array
	b := models.NewArray3D(a.Shape)

	out, err := NewClassifier(Contour, 1, nil).Classify(a, b)
	require.NoError(t, err)

	for r := 1; r < 4; r++ {
		for c := 1; c < 4; c++ {
			want := float64(OnlyA)
			if r == 2 && c == 2 {
				want = Background
			}
			assert.Equal(t, want, out.At(r, c, 0), "(%d,%d)", r, c)
		}
	}
	assert.Equal(t, 8, Counts(out)[OnlyA])
}

func TestClassifyContourIgnoresHoles(t *testing.T) {
	a := testutil.Mask([3]int{7, 7, 1}, [3]int{1, 1, 0}, [3]int{6, 6, 1}, 1).Array
	a.Set(3, 3, 0, 0)

	out, err := NewClassifier(Contour, 1, nil).Classify(a, models.NewArray3D(a.Shape))
	require.NoError(t, err)
	assert.Equal(t, 0.0, out.At(2, 3, 0))
	assert.Equal(t, 0.0, out.At(3, 3, 0))
	assert.Equal(t, float64(OnlyA), out.At(1, 3, 0))
	assert.Equal(t, 16, Counts(out)[OnlyA])
}

func TestClassifyContourDrawOrder(t *testing.T) {
	a := testutil.Mask([3]int{5, 5, 2}, [3]int{1, 1, 0}, [3]int{4, 4, 2}, 1).Array
	out, err := NewClassifier(Contour, 1, nil).Classify(a, a.Clone())
	require.NoError(t, err)

	counts := Counts(out)
	assert.Equal(t, 16, counts[OnlyB], "last drawn class wins on both slices")
	assert.Zero(t, counts[Overlap])
	assert.Zero(t, counts[OnlyA])
}

func TestClassifyContourThickness(t *testing.T) {
	a := testutil.Mask([3]int{9, 9, 1}, [3]int{3, 3, 0}, [3]int{6, 6, 1}, 1).Array
	out, err := NewClassifier(Contour, 2, nil).Classify(a, models.NewArray3D(a.Shape))
	require.NoError(t, err)

	assert.Equal(t, float64(OnlyA), out.At(2, 2, 0), "line spreads outside the region")
	assert.Equal(t, float64(OnlyA), out.At(4, 4, 0), "and inside it")
	assert.Equal(t, 0.0, out.At(1, 1, 0))
}

func TestDice(t *testing.T) {
	a := arr([3]int{1, 4, 1}, 1, 1, 0, 0)
	b := arr([3]int{1, 4, 1}, 0, 1, 1, 0)

	d, err := Dice(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, d, 1e-12)

	rev, err := Dice(b, a)
	require.NoError(t, err)
	assert.Equal(t, d, rev)

	self, err := Dice(a, a)
	require.NoError(t, err)
	assert.Equal(t, 1.0, self)

	disjoint, err := Dice(a, arr([3]int{1, 4, 1}, 0, 0, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, 0.0, disjoint)

	multi, err := Dice(a, arr([3]int{1, 4, 1}, 4, 2, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, 1.0, multi, "labels are binarized")
}

func TestDiceErrors(t *testing.T) {
	_, err := Dice(models.NewArray3D([3]int{2, 2, 2}), models.NewArray3D([3]int{2, 2, 2}))
	assert.ErrorIs(t, err, ErrEmptyMasks)

	_, err = Dice(models.NewArray3D([3]int{2, 2, 2}), models.NewArray3D([3]int{2, 2, 1}))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestValidateMask(t *testing.T) {
	c := NewClassifier(Fill, 0, nil)

	_, err := c.ValidateMask(arr([3]int{1, 2, 1}, 1, -1))
	assert.ErrorIs(t, err, ErrNegativeValue)

	_, err = c.ValidateMask(models.NewArray3D([3]int{1, 2, 1}))
	assert.ErrorIs(t, err, ErrNoForeground)

	out, err := c.ValidateMask(arr([3]int{1, 3, 1}, 2, 0, 5))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 1}, out.Data)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("contour")
	require.NoError(t, err)
	assert.Equal(t, Contour, m)
	assert.Equal(t, "contour", m.String())

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, Fill, m)

	_, err = ParseMode("outline")
	assert.Error(t, err)
}
