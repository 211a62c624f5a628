package measure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dicomvolume/internal/models"
	"dicomvolume/internal/testutil"
)

func TestLabelVolume(t *testing.T) {
	// 10x10x10 voxels of 1x1x2 mm = 2000 mm³
	m := testutil.Mask([3]int{20, 20, 12}, [3]int{0, 0, 0}, [3]int{10, 10, 10}, 1)
	v := testutil.Volume(m.Array, [3]float64{1, 1, 2})

	got, err := LabelVolume(v, 1)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, got, 1e-9)

	none, err := LabelVolume(v, 2)
	require.NoError(t, err)
	assert.Zero(t, none)
}

func TestLabelVolumeUsesVolumeStepWithoutSliceSpacing(t *testing.T) {
	m := testutil.Mask([3]int{4, 4, 2}, [3]int{0, 0, 0}, [3]int{2, 2, 2}, 1)
	m.Spacing = [3]float64{0.5, 0.5, -4}

	got, err := LabelVolume(m, 1)
	require.NoError(t, err)
	assert.InDelta(t, 8*0.25*4/1000, got, 1e-12)
}

func TestSliceAreas(t *testing.T) {
	m := testutil.Mask([3]int{10, 10, 3}, [3]int{0, 0, 1}, [3]int{5, 4, 2}, 1)
	v := testutil.Volume(m.Array, [3]float64{2, 0.5, 1})

	got, err := SliceAreas(v, 1)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0.2, 0}, got, 1e-12)
}

func TestMeasureNeedsArray(t *testing.T) {
	_, err := LabelVolume(&models.Volume{}, 1)
	assert.Error(t, err)
	_, err = SliceAreas(nil, 1)
	assert.Error(t, err)
}
