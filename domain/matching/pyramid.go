// Package matching finds a needle image inside a haystack image using a
// coarse-to-fine image pyramid. Coarse levels are searched with a relaxed
// threshold and narrow the search area of the next, finer level.
package matching

import (
	"image"
	"sort"

	"github.com/disintegration/imaging"

	"github.com/soocke/pixelfind/domain/finderr"
)

// Result is one accepted match. Rect is in haystack-local coordinates
// (the haystack's top-left pixel is (0,0)); Confidence is a similarity in
// [0,1] directly comparable to the requested threshold.
type Result struct {
	Rect       image.Rectangle
	Confidence float64
}

// PyramidMatcher searches one haystack for any number of needles. The
// haystack is converted to grayscale once and can be refreshed between
// polls with UpdateHaystack. Not safe for concurrent use.
type PyramidMatcher struct {
	opts     Options
	haystack *image.NRGBA
}

// NewPyramidMatcher prepares haystack for searching.
func NewPyramidMatcher(haystack image.Image, opts Options) (*PyramidMatcher, error) {
	m := &PyramidMatcher{opts: opts.normalized()}
	if err := m.UpdateHaystack(haystack); err != nil {
		return nil, err
	}
	return m, nil
}

// UpdateHaystack replaces the searched image.
func (m *PyramidMatcher) UpdateHaystack(haystack image.Image) error {
	if haystack == nil || haystack.Bounds().Empty() {
		return finderr.Invalid("matcher", "empty haystack")
	}
	m.haystack = toGray(haystack)
	return nil
}

// Options returns the effective tuning.
func (m *PyramidMatcher) Options() Options { return m.opts }

// FindBestMatch returns the best placement of needle whose similarity is at
// least similarity. ok is false when nothing qualifies. A needle larger than
// the haystack or an empty needle is an input error.
func (m *PyramidMatcher) FindBestMatch(needle image.Image, similarity float64) (res Result, ok bool, err error) {
	if needle == nil || needle.Bounds().Empty() {
		return Result{}, false, finderr.Invalid("matcher", "empty needle")
	}
	return m.findBest(m.haystack, toGray(needle), similarity)
}

// FindAllMatches returns every non-overlapping placement of needle passing
// similarity, ordered top-to-bottom then left-to-right. Each hit is erased
// from a scratch copy of the haystack before searching again, so the
// matcher's own haystack is left untouched and repeated calls agree.
func (m *PyramidMatcher) FindAllMatches(needle image.Image, similarity float64) ([]Result, error) {
	if needle == nil || needle.Bounds().Empty() {
		return nil, finderr.Invalid("matcher", "empty needle")
	}
	gn := toGray(needle)
	_, black := grayStats(gn)
	// Erasing with black would leave a perfect spot for a black needle.
	var erase uint8
	if black {
		erase = 0xFF
	}
	scratch := imaging.Clone(m.haystack)
	var out []Result
	for i := 0; i < m.opts.FindAllLimit; i++ {
		res, ok, err := m.findBest(scratch, gn, similarity)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		fillRect(scratch, res.Rect, erase)
		if overlapsAny(res.Rect, out) {
			continue
		}
		out = append(out, res)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Rect.Min, out[j].Rect.Min
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	return out, nil
}

func overlapsAny(r image.Rectangle, rs []Result) bool {
	for _, o := range rs {
		if r.Overlaps(o.Rect) {
			return true
		}
	}
	return false
}

func (m *PyramidMatcher) findBest(hay, needle *image.NRGBA, similarity float64) (Result, bool, error) {
	hb, nb := hay.Bounds(), needle.Bounds()
	if nb.Dx() > hb.Dx() || nb.Dy() > hb.Dy() {
		return Result{}, false, finderr.Invalid("matcher", "needle %dx%d larger than haystack %dx%d", nb.Dx(), nb.Dy(), hb.Dx(), hb.Dy())
	}
	similarity = clamp(similarity, 0, 1)

	method := MethodCCOEFF
	if solid, black := grayStats(needle); solid {
		// Correlation is undefined on a constant signal, squared difference
		// on an all-zero one.
		method = MethodSQDIFF
		if black {
			needle = imaging.Invert(needle)
			hay = imaging.Invert(hay)
		}
	}

	needlePyr := buildPyramid(needle, m.opts.Levels, m.opts.MinPyramidSide)
	hayPyr := buildPyramid(hay, len(needlePyr), m.opts.MinPyramidSide)
	if len(hayPyr) < len(needlePyr) {
		needlePyr = needlePyr[len(needlePyr)-len(hayPyr):]
	}

	var (
		mask       []bool
		maskW      int
		maskH      int
		best       float64
		pos        image.Point
		levelCount = len(hayPyr)
	)
	for level := 0; level < levelCount; level++ {
		hp := newPlane(hayPyr[level])
		tp := newTemplate(newPlane(needlePyr[level]))
		if tp.W > hp.W || tp.H > hp.H {
			return Result{}, false, finderr.Invalid("matcher", "needle larger than search area at pyramid level %d", level)
		}
		hm := newHeatmap(hp, tp, method)
		rois := regionsOfInterest(mask, maskW, maskH, hm.bounds())
		if rois == nil {
			rois = []image.Rectangle{hm.bounds()}
		}
		for _, roi := range rois {
			matchROI(hp, tp, method, roi, hm)
		}

		pyrSimilarity := similarity
		if level < levelCount-1 {
			pyrSimilarity = max(0, similarity-m.opts.PyramidRelax)
		}
		threshold := pyrSimilarity
		if method == MethodSQDIFF {
			threshold = 1 - pyrSimilarity
		}
		var at image.Point
		best, at = hm.extremum(method)
		passed := best >= threshold
		if method == MethodSQDIFF {
			passed = best <= threshold
		}
		if !passed {
			return Result{}, false, nil
		}
		pos = at
		mask, maskW, maskH = hm.mask(method, threshold), hm.W, hm.H
	}

	confidence := best
	if method == MethodSQDIFF {
		confidence = 1 - best
	}
	return Result{
		Rect:       image.Rectangle{Min: pos, Max: pos.Add(nb.Size())},
		Confidence: clamp(confidence, 0, 1),
	}, true, nil
}
