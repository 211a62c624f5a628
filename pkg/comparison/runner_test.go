package comparison

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dicomvolume/internal/models"
	"dicomvolume/internal/testutil"
	"dicomvolume/pkg/metrics"
	"dicomvolume/pkg/overlap"
	"dicomvolume/pkg/reconstruction"
	"dicomvolume/pkg/results"
	"dicomvolume/pkg/slicestore"
	"dicomvolume/pkg/validation"
)

var shape = [3]int{8, 8, 6}

func seed(t *testing.T, store *slicestore.Memory, root, name string, lo, hi [3]int) {
	t.Helper()
	ctx := context.Background()
	label := testutil.Mask(shape, lo, hi, 1)
	img := label.Array.Clone()
	for i := range img.Data {
		img.Data[i] = img.Data[i]*50 + 10
	}
	require.NoError(t, store.Save(ctx, filepath.Join(root, ImagesDir, name), testutil.Volume(img, [3]float64{1, 1, 1}).Slices))
	require.NoError(t, store.Save(ctx, filepath.Join(root, LabelsDir, name), testutil.Volume(label.Array, [3]float64{1, 1, 1}).Slices))
}

func options(t *testing.T, allow ...string) Options {
	t.Helper()
	a, err := validation.NewAllowList(allow...)
	require.NoError(t, err)
	return Options{Assembly: reconstruction.Params{Allow: a, FillMissing: true}}
}

type recordingPreviewer struct {
	names   []string
	classes []*models.Array3D
}

func (p *recordingPreviewer) Preview(name string, _ *models.Volume, classes *models.Array3D) ([]string, error) {
	p.names = append(p.names, name)
	p.classes = append(p.classes, classes)
	return nil, nil
}

func TestRunIdenticalSources(t *testing.T) {
	ctx := context.Background()
	store := slicestore.NewMemory()
	for _, root := range []string{"a", "b"} {
		seed(t, store, root, "case1", [3]int{2, 2, 1}, [3]int{5, 5, 4})
		seed(t, store, root, "case2", [3]int{1, 1, 1}, [3]int{3, 3, 3})
	}
	seed(t, store, "a", "case3", [3]int{1, 1, 1}, [3]int{3, 3, 3})

	res := results.NewMemory()
	col := metrics.New()
	sum, err := NewRunner(options(t, validation.Unpaired), store, res, nil).WithMetrics(col).Run(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, Summary{Compared: 2, Unpaired: 1}, sum)

	got, err := res.Get(ctx, "case1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Dice)
	assert.Equal(t, 27, got.Overlap)
	assert.Zero(t, got.OnlyA)
	assert.InDelta(t, 0.027, got.VolumeA, 1e-12)
	assert.InDelta(t, got.VolumeA, got.VolumeB, 1e-12)
	assert.False(t, got.Aligned)

	unpaired, err := res.Get(ctx, "case3")
	require.NoError(t, err)
	assert.True(t, unpaired.Failed())

	path := filepath.Join(t.TempDir(), "run.prom")
	require.NoError(t, col.WriteTextfile(path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `dicomvolume_cases_total{outcome="ok"} 2`)
	assert.Contains(t, string(raw), `dicomvolume_volumes_assembled_total{kind="label"} 4`)
}

func TestRunUnpairedNotAllowed(t *testing.T) {
	store := slicestore.NewMemory()
	seed(t, store, "a", "case1", [3]int{2, 2, 1}, [3]int{5, 5, 4})
	seed(t, store, "b", "case2", [3]int{2, 2, 1}, [3]int{5, 5, 4})

	_, err := NewRunner(options(t), store, results.NewMemory(), nil).Run(context.Background(), "a", "b")
	var v *validation.Violation
	require.True(t, errors.As(err, &v))
	assert.Equal(t, validation.Unpaired, v.Tag)
	assert.Equal(t, []string{"case1", "case2"}, v.Values)
}

func TestCases(t *testing.T) {
	store := slicestore.NewMemory()
	seed(t, store, "a", "case1", [3]int{2, 2, 1}, [3]int{5, 5, 4})
	seed(t, store, "a", "case2", [3]int{2, 2, 1}, [3]int{5, 5, 4})
	seed(t, store, "b", "case2", [3]int{2, 2, 1}, [3]int{5, 5, 4})
	seed(t, store, "b", "case4", [3]int{2, 2, 1}, [3]int{5, 5, 4})

	paired, onlyA, onlyB, err := NewRunner(options(t), store, results.NewMemory(), nil).Cases(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"case2"}, paired)
	assert.Equal(t, []string{"case1"}, onlyA)
	assert.Equal(t, []string{"case4"}, onlyB)
}

func TestCompareWithAlignment(t *testing.T) {
	ctx := context.Background()
	store := slicestore.NewMemory()
	seed(t, store, "a", "case1", [3]int{2, 2, 1}, [3]int{5, 5, 4})
	seed(t, store, "b", "case1", [3]int{3, 2, 2}, [3]int{6, 5, 5})

	plain, err := NewRunner(options(t), store, results.NewMemory(), nil).Compare(ctx, "case1", "a", "b")
	require.NoError(t, err)
	assert.InDelta(t, 24.0/54.0, plain.Dice, 1e-12)
	assert.Equal(t, 12, plain.Overlap)
	assert.Equal(t, 15, plain.OnlyA)
	assert.Equal(t, 15, plain.OnlyB)

	opts := options(t)
	opts.Align = true
	opts.ShiftedDir = "out"
	aligned, err := NewRunner(opts, store, results.NewMemory(), nil).Compare(ctx, "case1", "a", "b")
	require.NoError(t, err)
	assert.Equal(t, 1.0, aligned.Dice)
	assert.True(t, aligned.Aligned)
	assert.NotEmpty(t, aligned.Window)

	shifted, err := store.Load(ctx, filepath.Join("out", LabelsShiftedDir, "case1"))
	require.NoError(t, err)
	assert.Len(t, shifted, shape[2])
}

func TestRunFailedCase(t *testing.T) {
	ctx := context.Background()
	store := slicestore.NewMemory()
	seed(t, store, "a", "case1", [3]int{2, 2, 1}, [3]int{5, 5, 4})
	seed(t, store, "b", "case1", [3]int{0, 0, 0}, [3]int{0, 0, 0})
	seed(t, store, "a", "case2", [3]int{2, 2, 1}, [3]int{5, 5, 4})
	seed(t, store, "b", "case2", [3]int{2, 2, 1}, [3]int{5, 5, 4})

	res := results.NewMemory()
	_, err := NewRunner(options(t), store, res, nil).Run(ctx, "a", "b")
	assert.ErrorIs(t, err, overlap.ErrNoForeground)

	opts := options(t)
	opts.KeepGoing = true
	res = results.NewMemory()
	sum, err := NewRunner(opts, store, res, nil).Run(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, Summary{Compared: 1, Failed: 1}, sum)

	failed, err := res.Get(ctx, "case1")
	require.NoError(t, err)
	assert.Contains(t, failed.Error, "no foreground")
}

func TestComparePreview(t *testing.T) {
	store := slicestore.NewMemory()
	seed(t, store, "a", "case1", [3]int{2, 2, 1}, [3]int{5, 5, 4})
	seed(t, store, "b", "case1", [3]int{2, 2, 1}, [3]int{5, 5, 4})

	prev := &recordingPreviewer{}
	opts := options(t)
	opts.Classification = overlap.Contour
	opts.ContourThickness = 1
	_, err := NewRunner(opts, store, results.NewMemory(), nil).WithPreview(prev).Compare(context.Background(), "case1", "a", "b")
	require.NoError(t, err)

	require.Equal(t, []string{"case1"}, prev.names)
	counts := overlap.Counts(prev.classes[0])
	assert.Zero(t, counts[overlap.Overlap], "contours are drawn over by later classes")
	assert.Equal(t, 24, counts[overlap.OnlyB], "8 boundary pixels on each of 3 slices")
}

func TestCompareMissingLabel(t *testing.T) {
	ctx := context.Background()
	store := slicestore.NewMemory()
	seed(t, store, "a", "case1", [3]int{2, 2, 1}, [3]int{5, 5, 4})
	img := testutil.Volume(models.NewArray3D(shape), [3]float64{1, 1, 1})
	require.NoError(t, store.Save(ctx, filepath.Join("b", ImagesDir, "case1"), img.Slices))

	_, err := NewRunner(options(t), store, results.NewMemory(), nil).Compare(ctx, "case1", "a", "b")
	assert.ErrorIs(t, err, slicestore.ErrNotFound)
}
