package overlap

import "dicomvolume/internal/models"

// contours draws, slice by slice, the external boundary of the overlap, A and
// B regions with values 1, 2 and 3, later classes overwriting earlier ones.
func contours(a, b *models.Array3D, thickness int) *models.Array3D {
	rows, cols := a.Shape[0], a.Shape[1]
	out := models.NewArray3D(a.Shape)
	radius := thickness / 2

	both := make([]bool, rows*cols)
	inA := make([]bool, rows*cols)
	inB := make([]bool, rows*cols)
	for z := 0; z < a.Shape[2]; z++ {
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				i := r*cols + c
				inA[i] = a.At(r, c, z) > 0
				inB[i] = b.At(r, c, z) > 0
				both[i] = inA[i] && inB[i]
			}
		}
		for _, layer := range []struct {
			mask  []bool
			value float64
		}{{both, Overlap}, {inA, OnlyA}, {inB, OnlyB}} {
			for _, i := range externalBoundary(layer.mask, rows, cols) {
				stamp(out, i/cols, i%cols, z, radius, layer.value)
			}
		}
	}
	return out
}

// externalBoundary returns the foreground pixels touching background that is
// connected to the image border, or touching the border itself. Boundaries
// of holes are not included.
func externalBoundary(mask []bool, rows, cols int) []int {
	outside := make([]bool, len(mask))
	var queue []int
	push := func(r, c int) {
		if r < 0 || r >= rows || c < 0 || c >= cols {
			return
		}
		i := r*cols + c
		if mask[i] || outside[i] {
			return
		}
		outside[i] = true
		queue = append(queue, i)
	}
	for r := 0; r < rows; r++ {
		push(r, 0)
		push(r, cols-1)
	}
	for c := 0; c < cols; c++ {
		push(0, c)
		push(rows-1, c)
	}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		r, c := i/cols, i%cols
		push(r-1, c)
		push(r+1, c)
		push(r, c-1)
		push(r, c+1)
	}

	var out []int
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if !mask[r*cols+c] {
				continue
			}
			if touchesOutside(outside, rows, cols, r, c) {
				out = append(out, r*cols+c)
			}
		}
	}
	return out
}

func touchesOutside(outside []bool, rows, cols, r, c int) bool {
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			if dr == 0 && dc == 0 {
				continue
			}
			nr, nc := r+dr, c+dc
			if nr < 0 || nr >= rows || nc < 0 || nc >= cols {
				return true
			}
			if outside[nr*cols+nc] {
				return true
			}
		}
	}
	return false
}

// stamp sets a square of the given radius around (r, c) in plane z.
func stamp(out *models.Array3D, r, c, z, radius int, v float64) {
	for dr := -radius; dr <= radius; dr++ {
		for dc := -radius; dc <= radius; dc++ {
			nr, nc := r+dr, c+dc
			if nr < 0 || nr >= out.Shape[0] || nc < 0 || nc >= out.Shape[1] {
				continue
			}
			out.Set(nr, nc, z, v)
		}
	}
}
