// Package visualization renders assembled volumes and overlap
// classifications as 2-D preview images.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"

	"dicomvolume/internal/models"
)

// Viewer extracts grayscale planes from a volume along any axis.
type Viewer struct {
	vol *models.Volume

	// lo and hi are the intensity range mapped onto 0..255
	lo, hi float64
}

// NewViewer creates a viewer normalising intensities over the whole volume.
func NewViewer(vol *models.Volume) (*Viewer, error) {
	if vol == nil || vol.Array == nil || vol.Array.Len() == 0 {
		return nil, fmt.Errorf("volume has no data")
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, x := range vol.Array.Data {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return &Viewer{vol: vol, lo: lo, hi: hi}, nil
}

// ExtractSlice extracts a plane of the volume along the given axis:
// "z" is the acquired plane, "x" fixes a column and "y" fixes a row.
func (v *Viewer) ExtractSlice(axis string, position int) (*image.Gray, error) {
	return extract(v.vol.Array, axis, position, v.normalize)
}

// Physical rescales a plane extracted along axis so that both image axes
// have the same millimetre per pixel.
func (v *Viewer) Physical(img image.Image, axis string) image.Image {
	spX, spY := axisSpacing(v.vol.Spacing, axis)
	if spX <= 0 || spY <= 0 || spX == spY {
		return img
	}
	unit := math.Min(spX, spY)
	b := img.Bounds()
	w := max(1, int(math.Round(float64(b.Dx())*spX/unit)))
	h := max(1, int(math.Round(float64(b.Dy())*spY/unit)))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// SaveSliceSequence extracts and saves every plane along the given axis.
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}
	n, err := axisLen(v.vol.Array.Shape, axis)
	if err != nil {
		return err
	}
	for pos := 0; pos < n; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", strings.ToLower(axis), pos))
		if err := SaveImage(v.Physical(img, axis), filename); err != nil {
			return err
		}
	}
	return nil
}

func (v *Viewer) normalize(x float64) uint8 {
	if v.hi <= v.lo {
		return 0
	}
	return uint8(math.Round((x - v.lo) / (v.hi - v.lo) * 255))
}

// SaveImage writes img as JPEG when the file name ends in .jpg or .jpeg and
// as PNG otherwise.
func SaveImage(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
	default:
		err = png.Encode(file, img)
	}
	if err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// extract copies one plane of arr into a gray image, mapping values through f.
func extract(arr *models.Array3D, axis string, position int, f func(float64) uint8) (*image.Gray, error) {
	n, err := axisLen(arr.Shape, axis)
	if err != nil {
		return nil, err
	}
	if position < 0 || position >= n {
		return nil, fmt.Errorf("position %d outside axis %s of length %d", position, axis, n)
	}
	rows, cols, depth := arr.Shape[0], arr.Shape[1], arr.Shape[2]

	var img *image.Gray
	switch strings.ToLower(axis) {
	case "x":
		img = image.NewGray(image.Rect(0, 0, depth, rows))
		for r := 0; r < rows; r++ {
			for z := 0; z < depth; z++ {
				img.SetGray(z, r, color.Gray{Y: f(arr.At(r, position, z))})
			}
		}
	case "y":
		img = image.NewGray(image.Rect(0, 0, cols, depth))
		for z := 0; z < depth; z++ {
			for c := 0; c < cols; c++ {
				img.SetGray(c, z, color.Gray{Y: f(arr.At(position, c, z))})
			}
		}
	default:
		img = image.NewGray(image.Rect(0, 0, cols, rows))
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				img.SetGray(c, r, color.Gray{Y: f(arr.At(r, c, position))})
			}
		}
	}
	return img, nil
}

func axisLen(shape [3]int, axis string) (int, error) {
	switch strings.ToLower(axis) {
	case "x":
		return shape[1], nil
	case "y":
		return shape[0], nil
	case "z":
		return shape[2], nil
	}
	return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// axisSpacing returns the millimetres per pixel along the horizontal and
// vertical image axes of a plane extracted along axis.
func axisSpacing(sp [3]float64, axis string) (float64, float64) {
	switch strings.ToLower(axis) {
	case "x":
		return math.Abs(sp[2]), sp[0]
	case "y":
		return sp[1], math.Abs(sp[2])
	}
	return sp[1], sp[0]
}
