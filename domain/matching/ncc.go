package matching

import (
	"image"
	"math"
)

// Method selects the similarity metric.
type Method int

const (
	// MethodCCOEFF is normalized cross-correlation of mean-subtracted windows.
	MethodCCOEFF Method = iota
	// MethodSQDIFF is normalized squared difference; lower is better.
	MethodSQDIFF
)

func (m Method) String() string {
	if m == MethodSQDIFF {
		return "sqdiff_normed"
	}
	return "ccoeff_normed"
}

// degenerateEps bounds the denominator below which a window is treated as
// flat.
const degenerateEps = 1e-6

// template caches needle pixels and summary statistics for one pyramid level.
type template struct {
	pix    []float64
	W, H   int
	sum    float64
	sumSq  float64
	mean   float64
	varSum float64 // sum of squared deviations from the mean
}

func newTemplate(p *plane) *template {
	t := &template{pix: p.pix, W: p.W, H: p.H}
	for _, v := range p.pix {
		t.sum += v
		t.sumSq += v * v
	}
	n := float64(len(p.pix))
	t.mean = t.sum / n
	t.varSum = t.sumSq - t.sum*t.sum/n
	if t.varSum < 0 {
		t.varSum = 0
	}
	return t
}

// heatmap holds one score per needle placement.
type heatmap struct {
	v    []float64
	W, H int
}

func newHeatmap(hay *plane, t *template, method Method) *heatmap {
	w, h := hay.W-t.W+1, hay.H-t.H+1
	hm := &heatmap{v: make([]float64, w*h), W: w, H: h}
	// Unsearched placements never pass a threshold or win extremum.
	unsearched := math.Inf(-1)
	if method == MethodSQDIFF {
		unsearched = math.Inf(1)
	}
	for i := range hm.v {
		hm.v[i] = unsearched
	}
	return hm
}

func (hm *heatmap) bounds() image.Rectangle { return image.Rect(0, 0, hm.W, hm.H) }

// extremum returns the best value and its location, the first one in
// row-major order on ties.
func (hm *heatmap) extremum(method Method) (float64, image.Point) {
	best, at := hm.v[0], 0
	for i, v := range hm.v {
		if (method == MethodSQDIFF && v < best) || (method == MethodCCOEFF && v > best) {
			best, at = v, i
		}
	}
	return best, image.Pt(at%hm.W, at/hm.W)
}

// mask returns the placements whose score passes threshold (inclusive).
func (hm *heatmap) mask(method Method, threshold float64) []bool {
	m := make([]bool, len(hm.v))
	for i, v := range hm.v {
		if method == MethodSQDIFF {
			m[i] = v <= threshold
		} else {
			m[i] = v >= threshold
		}
	}
	return m
}

// matchROI scores every placement inside roi (heatmap coordinates) and
// writes the scores into hm.
func matchROI(hay *plane, t *template, method Method, roi image.Rectangle, hm *heatmap) {
	roi = roi.Intersect(hm.bounds())
	n := float64(t.W * t.H)
	for y := roi.Min.Y; y < roi.Max.Y; y++ {
		for x := roi.Min.X; x < roi.Max.X; x++ {
			sumI, sumI2 := hay.windowSums(x, y, t.W, t.H)
			var sumTI float64
			for ty := 0; ty < t.H; ty++ {
				hrow := hay.pix[(y+ty)*hay.W+x:]
				trow := t.pix[ty*t.W:]
				for tx := 0; tx < t.W; tx++ {
					sumTI += hrow[tx] * trow[tx]
				}
			}
			var score float64
			if method == MethodSQDIFF {
				score = sqdiffScore(t.sumSq, sumTI, sumI2)
			} else {
				score = ccoeffScore(t, sumTI, sumI, sumI2, n)
			}
			hm.v[y*hm.W+x] = score
		}
	}
}

// ccoeffScore is the correlation of mean-subtracted windows in [-1,1]. Flat
// windows score 0.
func ccoeffScore(t *template, sumTI, sumI, sumI2, n float64) float64 {
	num := sumTI - t.mean*sumI
	varI := sumI2 - sumI*sumI/n
	if varI <= 0 {
		return 0
	}
	den := math.Sqrt(t.varSum * varI)
	if den < degenerateEps {
		return 0
	}
	return clamp(num/den, -1, 1)
}

// sqdiffScore is the squared difference normalized by both energies in
// [0,1]. A window with no energy on either side scores 1.
func sqdiffScore(sumT2, sumTI, sumI2 float64) float64 {
	den := math.Sqrt(sumT2 * sumI2)
	if den < degenerateEps {
		return 1
	}
	num := sumT2 - 2*sumTI + sumI2
	return clamp(num/den, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
