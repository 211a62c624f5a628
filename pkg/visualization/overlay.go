package visualization

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	"dicomvolume/internal/logging"
	"dicomvolume/internal/models"
)

// DefaultColors are the overlay colours for class values 1, 2, 3 and 4.
var DefaultColors = []color.RGBA{
	{R: 0x06, G: 0xb7, B: 0x0c, A: 0xff}, // green
	{R: 0x2c, G: 0x2c, B: 0xc9, A: 0xff}, // blue
	{R: 0xea, G: 0xf9, B: 0x15, A: 0xff}, // yellow
	{R: 0xef, G: 0x4a, B: 0x53, A: 0xff}, // red
}

// DefaultTransparency is the colour weight inside labelled regions.
const DefaultTransparency = 0.3

// Overlay blends class colours over a grayscale plane.
type Overlay struct {
	Transparency float64
	Colors       []color.RGBA

	// SideBySide puts the plain grayscale plane left of the overlay.
	SideBySide bool
}

// NewOverlay returns an overlay with the default colours and transparency.
func NewOverlay(sideBySide bool) *Overlay {
	return &Overlay{Transparency: DefaultTransparency, Colors: DefaultColors, SideBySide: sideBySide}
}

// Render colours gray wherever classes is positive. Inside a class region the
// gray value is dampened by (1 - Transparency) and the class colour, scaled
// by Transparency, is added.
func (o *Overlay) Render(gray, classes *image.Gray) (*image.RGBA, error) {
	b := gray.Bounds()
	if classes.Bounds().Size() != b.Size() {
		return nil, fmt.Errorf("class plane %v does not match image %v", classes.Bounds().Size(), b.Size())
	}
	offset := 0
	width := b.Dx()
	if o.SideBySide {
		offset = width
		width *= 2
	}
	out := image.NewRGBA(image.Rect(0, 0, width, b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			g := gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y
			if o.SideBySide {
				out.SetRGBA(x, y, color.RGBA{R: g, G: g, B: g, A: 0xff})
			}
			out.SetRGBA(offset+x, y, o.blend(g, int(classes.GrayAt(b.Min.X+x, b.Min.Y+y).Y)))
		}
	}
	return out, nil
}

func (o *Overlay) blend(g uint8, class int) color.RGBA {
	if class <= 0 || class > len(o.Colors) {
		return color.RGBA{R: g, G: g, B: g, A: 0xff}
	}
	c := o.Colors[class-1]
	base := float64(g) * (1 - o.Transparency)
	mix := func(v uint8) uint8 {
		return uint8(math.Min(255, math.Round(base+float64(v)*o.Transparency)))
	}
	return color.RGBA{R: mix(c.R), G: mix(c.G), B: mix(c.B), A: 0xff}
}

// Previewer writes overlay previews of classified cases.
type Previewer struct {
	Dir     string
	Overlay *Overlay
	logger  *slog.Logger
}

// NewPreviewer returns a previewer writing below dir.
func NewPreviewer(dir string, overlay *Overlay, logger *slog.Logger) *Previewer {
	if overlay == nil {
		overlay = NewOverlay(false)
	}
	return &Previewer{Dir: dir, Overlay: overlay, logger: logging.OrNop(logger)}
}

// Preview writes Dir/name/overlay_NNN.png for every acquired plane holding a
// class, and Dir/name/orthoview.png with the x, y and z planes through the
// volume centre side by side. It returns the written paths.
func (p *Previewer) Preview(name string, vol *models.Volume, classes *models.Array3D) ([]string, error) {
	if vol.Shape() != classes.Shape {
		return nil, fmt.Errorf("class volume %v does not match image %v", classes.Shape, vol.Shape())
	}
	viewer, err := NewViewer(vol)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(p.Dir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	var written []string
	for z := 0; z < classes.Shape[2]; z++ {
		if !hasClass(classes, z) {
			continue
		}
		img, err := p.plane(viewer, classes, "z", z)
		if err != nil {
			return written, err
		}
		path := filepath.Join(dir, fmt.Sprintf("overlay_%03d.png", z))
		if err := SaveImage(img, path); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	ortho, err := p.orthoview(viewer, classes)
	if err != nil {
		return written, err
	}
	path := filepath.Join(dir, "orthoview.png")
	if err := SaveImage(ortho, path); err != nil {
		return written, err
	}
	written = append(written, path)

	p.logger.Debug("wrote previews", "case", name, "files", len(written))
	return written, nil
}

func (p *Previewer) plane(v *Viewer, classes *models.Array3D, axis string, pos int) (image.Image, error) {
	gray, err := v.ExtractSlice(axis, pos)
	if err != nil {
		return nil, err
	}
	cls, err := extract(classes, axis, pos, func(x float64) uint8 { return uint8(math.Max(0, math.Min(255, x))) })
	if err != nil {
		return nil, err
	}
	img, err := p.Overlay.Render(gray, cls)
	if err != nil {
		return nil, err
	}
	return v.Physical(img, axis), nil
}

func (p *Previewer) orthoview(v *Viewer, classes *models.Array3D) (*image.RGBA, error) {
	shape := classes.Shape
	planes := make([]image.Image, 0, 3)
	for _, ax := range []struct {
		name string
		pos  int
	}{{"z", shape[2] / 2}, {"x", shape[1] / 2}, {"y", shape[0] / 2}} {
		img, err := p.plane(v, classes, ax.name, ax.pos)
		if err != nil {
			return nil, err
		}
		planes = append(planes, img)
	}

	width, height := 0, 0
	for _, img := range planes {
		width += img.Bounds().Dx()
		height = max(height, img.Bounds().Dy())
	}
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(out, out.Bounds(), image.Black, image.Point{}, draw.Src)
	x := 0
	for _, img := range planes {
		b := img.Bounds()
		draw.Draw(out, image.Rect(x, 0, x+b.Dx(), b.Dy()), img, b.Min, draw.Src)
		x += b.Dx()
	}
	return out, nil
}

func hasClass(classes *models.Array3D, z int) bool {
	size := classes.Shape[0] * classes.Shape[1]
	for _, v := range classes.Data[z*size : (z+1)*size] {
		if v > 0 {
			return true
		}
	}
	return false
}
