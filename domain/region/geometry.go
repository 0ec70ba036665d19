package region

import (
	"image"

	"github.com/soocke/pixelfind/domain/capture"
)

// ToEdge makes Above, Below, Left and Right extend to the edge of the
// visible screen area.
const ToEdge = -1

// DefaultNearby is the margin Nearby uses when given a negative range.
const DefaultNearby = 50

// clipped trims a derived region to the visible screens. Regions that
// do not touch any screen are returned unchanged so that geometry stays
// usable off-screen; searches on them fail with InvalidInput instead.
func (r *Region) clipped(n *Region) *Region {
	if r.env.Platform == nil {
		return n
	}
	if c, ok := capture.Clip(r.env.Platform, n.Rect()); ok {
		n.setRect(c.Min.X, c.Min.Y, c.Dx(), c.Dy())
	}
	return n
}

func (r *Region) edges() image.Rectangle {
	if r.env.Platform == nil {
		return r.Rect()
	}
	if u := capture.VirtualBounds(r.env.Platform); !u.Empty() {
		return u.Union(r.Rect())
	}
	return r.Rect()
}

// Offset returns a copy moved by (dx,dy).
func (r *Region) Offset(dx, dy int) *Region {
	return r.derive(r.x+dx, r.y+dy, r.w, r.h)
}

// Grow returns a copy enlarged by dw on the left and right and dh on
// the top and bottom, clipped to the screens.
func (r *Region) Grow(dw, dh int) *Region {
	return r.clipped(r.derive(r.x-dw, r.y-dh, r.w+2*dw, r.h+2*dh))
}

// Nearby grows the region by n pixels on every side.
func (r *Region) Nearby(n int) *Region {
	if n < 0 {
		n = DefaultNearby
	}
	return r.Grow(n, n)
}

// Above returns the band of height h directly above the region.
func (r *Region) Above(h int) *Region {
	if h < 0 {
		h = r.y - r.edges().Min.Y
	}
	return r.clipped(r.derive(r.x, r.y-h, r.w, h))
}

// Below returns the band of height h directly below the region.
func (r *Region) Below(h int) *Region {
	if h < 0 {
		h = r.edges().Max.Y - (r.y + r.h)
	}
	return r.clipped(r.derive(r.x, r.y+r.h, r.w, h))
}

// Left returns the band of width w directly left of the region.
func (r *Region) Left(w int) *Region {
	if w < 0 {
		w = r.x - r.edges().Min.X
	}
	return r.clipped(r.derive(r.x-w, r.y, w, r.h))
}

// Right returns the band of width w directly right of the region.
func (r *Region) Right(w int) *Region {
	if w < 0 {
		w = r.edges().Max.X - (r.x + r.w)
	}
	return r.clipped(r.derive(r.x+r.w, r.y, w, r.h))
}

// Add expands the region in place by the given margins.
func (r *Region) Add(left, right, top, bottom int) *Region {
	r.setRect(r.x-left, r.y-top, r.w+left+right, r.h+top+bottom)
	return r
}

// Union returns the smallest region containing r and o.
func (r *Region) Union(o *Region) *Region {
	u := r.Rect().Union(o.Rect())
	return r.derive(u.Min.X, u.Min.Y, u.Dx(), u.Dy())
}

// Intersection returns the overlap of r and o, or nil if they are disjoint.
func (r *Region) Intersection(o *Region) *Region {
	i := r.Rect().Intersect(o.Rect())
	if i.Empty() {
		return nil
	}
	return r.derive(i.Min.X, i.Min.Y, i.Dx(), i.Dy())
}

// Contains reports whether o lies entirely inside r.
func (r *Region) Contains(o *Region) bool { return o.Rect().In(r.Rect()) }

// ContainsPoint reports whether p lies inside r.
func (r *Region) ContainsPoint(p image.Point) bool { return p.In(r.Rect()) }

// Visible reports whether any part of the region is on a screen.
func (r *Region) Visible() bool {
	if r.env.Platform == nil {
		return false
	}
	_, ok := capture.Clip(r.env.Platform, r.Rect())
	return ok
}

// RightAt returns the point on the right edge, offset vertically from
// the middle by dy. LeftAt, AboveAt and BelowAt work the same way.
func (r *Region) RightAt(dy int) image.Point { return image.Pt(r.x+r.w, r.y+r.h/2+dy) }
func (r *Region) LeftAt(dy int) image.Point  { return image.Pt(r.x, r.y+r.h/2+dy) }
func (r *Region) AboveAt(dx int) image.Point { return image.Pt(r.x+r.w/2+dx, r.y) }
func (r *Region) BelowAt(dx int) image.Point { return image.Pt(r.x+r.w/2+dx, r.y+r.h) }
