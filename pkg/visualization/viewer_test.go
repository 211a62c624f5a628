package visualization

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dicomvolume/internal/models"
	"dicomvolume/internal/testutil"
)

// ramp returns a rows x cols x depth volume whose value is the slice index.
func ramp(rows, cols, depth int, spacing [3]float64) *models.Volume {
	arr := models.NewArray3D([3]int{rows, cols, depth})
	for z := 0; z < depth; z++ {
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				arr.Set(r, c, z, float64(z))
			}
		}
	}
	return testutil.Volume(arr, spacing)
}

func TestNewViewerNeedsData(t *testing.T) {
	_, err := NewViewer(&models.Volume{})
	assert.Error(t, err)
}

func TestExtractSlice(t *testing.T) {
	v, err := NewViewer(ramp(4, 6, 5, [3]float64{1, 1, 1}))
	require.NoError(t, err)

	tests := []struct {
		axis       string
		pos        int
		w, h       int
		at         image.Point
		wantGray   uint8
		wantErrMsg bool
	}{
		{axis: "z", pos: 0, w: 6, h: 4, at: image.Pt(3, 2), wantGray: 0},
		{axis: "Z", pos: 4, w: 6, h: 4, at: image.Pt(0, 0), wantGray: 255},
		{axis: "x", pos: 2, w: 5, h: 4, at: image.Pt(2, 1), wantGray: 128},
		{axis: "y", pos: 3, w: 6, h: 5, at: image.Pt(0, 1), wantGray: 64},
		{axis: "z", pos: 5, wantErrMsg: true},
		{axis: "w", pos: 0, wantErrMsg: true},
	}
	for _, tt := range tests {
		img, err := v.ExtractSlice(tt.axis, tt.pos)
		if tt.wantErrMsg {
			assert.Error(t, err, "%s %d", tt.axis, tt.pos)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, image.Pt(tt.w, tt.h), img.Bounds().Size(), tt.axis)
		assert.Equal(t, tt.wantGray, img.GrayAt(tt.at.X, tt.at.Y).Y, tt.axis)
	}
}

func TestPhysicalScalesBySpacing(t *testing.T) {
	v, err := NewViewer(ramp(4, 6, 5, [3]float64{1, 1, 3}))
	require.NoError(t, err)

	img, err := v.ExtractSlice("x", 0)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(15, 4), v.Physical(img, "x").Bounds().Size())

	img, err = v.ExtractSlice("z", 0)
	require.NoError(t, err)
	assert.Same(t, img, v.Physical(img, "z"))
}

func TestSaveSliceSequence(t *testing.T) {
	v, err := NewViewer(ramp(3, 3, 2, [3]float64{1, 1, 1}))
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, v.SaveSliceSequence("z", dir))
	for _, name := range []string{"slice_z_000.png", "slice_z_001.png"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
	assert.Error(t, v.SaveSliceSequence("q", dir))
}

func TestSaveImageFormats(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.jpg"} {
		path := filepath.Join(dir, name)
		require.NoError(t, SaveImage(img, path))
		f, err := os.Open(path)
		require.NoError(t, err)
		_, format, err := image.DecodeConfig(f)
		f.Close()
		require.NoError(t, err)
		assert.Contains(t, []string{"png", "jpeg"}, format)
	}
}

func TestOverlayBlend(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 3, 1))
	gray.SetGray(0, 0, color.Gray{Y: 100})
	gray.SetGray(1, 0, color.Gray{Y: 100})
	gray.SetGray(2, 0, color.Gray{Y: 200})
	classes := image.NewGray(image.Rect(0, 0, 3, 1))
	classes.SetGray(1, 0, color.Gray{Y: 1})
	classes.SetGray(2, 0, color.Gray{Y: 3})

	out, err := NewOverlay(false).Render(gray, classes)
	require.NoError(t, err)

	assert.Equal(t, color.RGBA{R: 100, G: 100, B: 100, A: 255}, out.RGBAAt(0, 0))
	// 100*0.7 + (6, 183, 12)*0.3
	assert.Equal(t, color.RGBA{R: 72, G: 125, B: 74, A: 255}, out.RGBAAt(1, 0))
	// 200*0.7 + (234, 249, 21)*0.3
	assert.Equal(t, color.RGBA{R: 210, G: 215, B: 146, A: 255}, out.RGBAAt(2, 0))
}

func TestOverlaySideBySide(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 2, 2))
	classes := image.NewGray(image.Rect(0, 0, 2, 2))
	classes.SetGray(0, 0, color.Gray{Y: 2})

	out, err := NewOverlay(true).Render(gray, classes)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(4, 2), out.Bounds().Size())
	assert.Equal(t, color.RGBA{A: 255}, out.RGBAAt(0, 0))
	assert.NotEqual(t, color.RGBA{A: 255}, out.RGBAAt(2, 0))

	_, err = NewOverlay(false).Render(gray, image.NewGray(image.Rect(0, 0, 3, 2)))
	assert.Error(t, err)
}

func TestPreviewer(t *testing.T) {
	vol := ramp(6, 6, 4, [3]float64{1, 1, 2})
	classes := testutil.Mask([3]int{6, 6, 4}, [3]int{1, 1, 1}, [3]int{3, 3, 3}, 1).Array

	dir := t.TempDir()
	written, err := NewPreviewer(dir, nil, nil).Preview("case1", vol, classes)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "case1", "overlay_001.png"),
		filepath.Join(dir, "case1", "overlay_002.png"),
		filepath.Join(dir, "case1", "orthoview.png"),
	}, written)
	for _, p := range written {
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}

	_, err = NewPreviewer(dir, nil, nil).Preview("bad", vol, models.NewArray3D([3]int{1, 1, 1}))
	assert.Error(t, err)
}
