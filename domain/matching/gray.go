package matching

import (
	"image"

	"github.com/disintegration/imaging"
)

// plane is a single-channel image stored as float64 with summed-area tables
// of the values and their squares. The integrals allow O(1) window sum and
// variance queries.
type plane struct {
	pix        []float64
	integral   []float64
	integralSq []float64
	W, H       int
}

// toGray converts img to an 8-bit grayscale NRGBA anchored at (0,0).
func toGray(img image.Image) *image.NRGBA {
	return imaging.Grayscale(img)
}

// newPlane reads the gray channel of g and builds its integrals.
func newPlane(g *image.NRGBA) *plane {
	b := g.Bounds()
	W, H := b.Dx(), b.Dy()
	need := W * H
	p := &plane{
		pix:        make([]float64, need),
		integral:   make([]float64, need),
		integralSq: make([]float64, need),
		W:          W,
		H:          H,
	}
	for y := 0; y < H; y++ {
		var rowSum, rowSum2 float64
		row := g.Pix[y*g.Stride:]
		for x := 0; x < W; x++ {
			v := float64(row[x*4])
			off := y*W + x
			p.pix[off] = v
			rowSum += v
			rowSum2 += v * v
			if y == 0 {
				p.integral[off] = rowSum
				p.integralSq[off] = rowSum2
			} else {
				p.integral[off] = p.integral[(y-1)*W+x] + rowSum
				p.integralSq[off] = p.integralSq[(y-1)*W+x] + rowSum2
			}
		}
	}
	return p
}

// windowSums returns the sum and squared sum of the w x h window at (x,y).
func (p *plane) windowSums(x, y, w, h int) (sum, sumSq float64) {
	return integralSum(p.integral, p.W, x, y, x+w-1, y+h-1),
		integralSum(p.integralSq, p.W, x, y, x+w-1, y+h-1)
}

// integralSum returns the inclusive sum over rectangle [x0..x1] x [y0..y1]
// from an integral image stored in row-major order with width W.
func integralSum(I []float64, W int, x0, y0, x1, y1 int) float64 {
	if x0 > x1 || y0 > y1 {
		return 0
	}
	A := func(x, y int) float64 {
		if x < 0 || y < 0 {
			return 0
		}
		return I[y*W+x]
	}
	return A(x1, y1) - A(x0-1, y1) - A(x1, y0-1) + A(x0-1, y0-1)
}

// grayStats reports whether g holds a single value and whether that value
// is black.
func grayStats(g *image.NRGBA) (solid, black bool) {
	b := g.Bounds()
	if b.Empty() {
		return false, false
	}
	first := g.Pix[0]
	solid = true
	for y := 0; y < b.Dy() && solid; y++ {
		row := g.Pix[y*g.Stride:]
		for x := 0; x < b.Dx(); x++ {
			if row[x*4] != first {
				solid = false
				break
			}
		}
	}
	return solid, solid && first == 0
}

// buildPyramid returns up to levels images, coarsest first, ending with
// img itself. Each level is a Gaussian-weighted halving of the one below
// (sides round up) and building stops once the last image has a side
// below minSide.
func buildPyramid(img *image.NRGBA, levels, minSide int) []*image.NRGBA {
	pyr := []*image.NRGBA{img}
	for l := 0; l < levels-1; l++ {
		last := pyr[len(pyr)-1].Bounds()
		if last.Dx() < minSide || last.Dy() < minSide {
			break
		}
		pyr = append(pyr, imaging.Resize(pyr[len(pyr)-1], (last.Dx()+1)/2, (last.Dy()+1)/2, imaging.Gaussian))
	}
	for i, j := 0, len(pyr)-1; i < j; i, j = i+1, j-1 {
		pyr[i], pyr[j] = pyr[j], pyr[i]
	}
	return pyr
}

// fillRect paints r (clipped to g) with the gray value v.
func fillRect(g *image.NRGBA, r image.Rectangle, v uint8) {
	r = r.Intersect(g.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := g.Pix[(y-g.Rect.Min.Y)*g.Stride:]
		for x := r.Min.X; x < r.Max.X; x++ {
			o := (x - g.Rect.Min.X) * 4
			row[o], row[o+1], row[o+2] = v, v, v
		}
	}
}
