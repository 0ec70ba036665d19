// Package pattern describes what a region search looks for: a reference
// image, the minimum similarity a match needs and an offset from the match
// center used as the click target.
package pattern

import (
	"fmt"
	"image"
)

// DefaultSimilarity is used for patterns built without a Loader.
const DefaultSimilarity = 0.7

// Pattern is a value type. Every modifier returns a copy that shares the
// image with the receiver, so a Pattern can be reused by concurrent
// searches.
type Pattern struct {
	img        image.Image
	path       string
	similarity float64
	offset     image.Point
}

// FromImage returns an image-sourced pattern (no path identity).
func FromImage(img image.Image) Pattern {
	return Pattern{img: img, similarity: DefaultSimilarity}
}

// Similar returns a copy requiring at least s similarity. s is clamped to
// [0,1].
func (p Pattern) Similar(s float64) Pattern {
	p.similarity = min(max(s, 0), 1)
	return p
}

// Exact returns a copy requiring a perfect match.
func (p Pattern) Exact() Pattern { return p.Similar(1) }

// TargetOffset returns a copy whose target is the match center shifted by
// (dx, dy).
func (p Pattern) TargetOffset(dx, dy int) Pattern {
	p.offset = image.Pt(dx, dy)
	return p
}

// Image returns the reference image.
func (p Pattern) Image() image.Image { return p.img }

// Path returns the resolved file path, empty for image-sourced patterns.
func (p Pattern) Path() string { return p.path }

// Similarity returns the minimum similarity for a match.
func (p Pattern) Similarity() float64 { return p.similarity }

// Offset returns the target offset.
func (p Pattern) Offset() image.Point { return p.offset }

// ImageSourced reports whether the pattern was built from raw pixels.
func (p Pattern) ImageSourced() bool { return p.path == "" }

// Size returns the reference image dimensions.
func (p Pattern) Size() image.Point {
	if p.img == nil {
		return image.Point{}
	}
	return p.img.Bounds().Size()
}

func (p Pattern) String() string {
	name := p.path
	if name == "" {
		name = fmt.Sprintf("image %dx%d", p.Size().X, p.Size().Y)
	}
	s := fmt.Sprintf("P(%s) S: %.2f", name, p.similarity)
	if p.offset != (image.Point{}) {
		s += fmt.Sprintf(" T: %d,%d", p.offset.X, p.offset.Y)
	}
	return s
}
