// Package images holds small pixel helpers shared by regions and
// observers.
package images

import "image"

// Clone returns a deep copy of img with the same bounds.
func Clone(img *image.RGBA) *image.RGBA {
	if img == nil {
		return nil
	}
	out := &image.RGBA{Pix: make([]byte, len(img.Pix)), Stride: img.Stride, Rect: img.Rect}
	copy(out.Pix, img.Pix)
	return out
}

// ChangedPixels counts pixels whose RGB channels differ by more than
// tolerance between a and b. Images are compared by their relative
// position; when sizes differ every pixel of the larger area counts as
// changed.
func ChangedPixels(a, b *image.RGBA, tolerance uint8) int {
	if a == nil || b == nil {
		return 0
	}
	ab, bb := a.Bounds(), b.Bounds()
	if ab.Size() != bb.Size() {
		return max(ab.Dx()*ab.Dy(), bb.Dx()*bb.Dy())
	}
	w, h := ab.Dx(), ab.Dy()
	changed := 0
	for y := 0; y < h; y++ {
		ra := a.Pix[y*a.Stride : y*a.Stride+w*4]
		rb := b.Pix[y*b.Stride : y*b.Stride+w*4]
		for x := 0; x < w*4; x += 4 {
			if absDiff(ra[x], rb[x]) > tolerance ||
				absDiff(ra[x+1], rb[x+1]) > tolerance ||
				absDiff(ra[x+2], rb[x+2]) > tolerance {
				changed++
			}
		}
	}
	return changed
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}
