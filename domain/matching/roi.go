package matching

import "image"

// minMaskSide is the smallest previous-level heatmap side that still yields
// usable regions of interest.
const minMaskSide = 3

// regionsOfInterest turns the previous level's pass mask (w x h) into
// search rectangles for the next level. Each 8-connected component's
// bounding box is scaled by 2, padded by 1px and clipped to the next
// heatmap. nil means search everywhere.
func regionsOfInterest(mask []bool, w, h int, next image.Rectangle) []image.Rectangle {
	if mask == nil || w < minMaskSide || h < minMaskSide {
		return nil
	}
	var rois []image.Rectangle
	for _, c := range components(mask, w, h) {
		r := image.Rect(c.Min.X*2-1, c.Min.Y*2-1, c.Max.X*2+1, c.Max.Y*2+1)
		if r.Min.X < 0 {
			r.Min.X = 0
		}
		if r.Min.Y < 0 {
			r.Min.Y = 0
		}
		if r = r.Intersect(next); !r.Empty() {
			rois = append(rois, r)
		}
	}
	if len(rois) == 0 {
		return nil
	}
	return rois
}

// components returns the bounding rectangle of every 8-connected set
// component of mask, in scan order of their first pixel.
func components(mask []bool, w, h int) []image.Rectangle {
	seen := make([]bool, len(mask))
	var out []image.Rectangle
	var stack []int
	for start, on := range mask {
		if !on || seen[start] {
			continue
		}
		seen[start] = true
		stack = append(stack[:0], start)
		box := image.Rect(start%w, start/w, start%w+1, start/w+1)
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%w, i/w
			box = box.Union(image.Rect(x, y, x+1, y+1))
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					j := ny*w + nx
					if mask[j] && !seen[j] {
						seen[j] = true
						stack = append(stack, j)
					}
				}
			}
		}
		out = append(out, box)
	}
	return out
}
