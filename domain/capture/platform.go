// Package capture provides the screen capability consumed by regions and
// observers: pixel capture, screen geometry and point visibility.
package capture

import (
	"image"
)

// Platform is the capability interface for screen access. Implementations
// must tolerate rectangles that only partially overlap a screen.
type Platform interface {
	// CaptureBitmap returns the pixels currently shown inside rect, in
	// absolute screen coordinates. The returned image bounds equal rect.
	CaptureBitmap(rect image.Rectangle) (*image.RGBA, error)
	// ScreenBounds returns the bounds of screen id (0 is the primary).
	ScreenBounds(id int) (image.Rectangle, error)
	// ScreenCount returns the number of attached screens.
	ScreenCount() int
	// IsPointVisible reports whether p lies on any screen.
	IsPointVisible(p image.Point) bool
}

// Releaser is implemented by platforms that pool capture buffers.
type Releaser interface {
	Release(img *image.RGBA)
}

// Release hands img back to p when p pools buffers. It is a no-op otherwise.
func Release(p Platform, img *image.RGBA) {
	if r, ok := p.(Releaser); ok && img != nil {
		r.Release(img)
	}
}

// AllScreens returns the bounds of every screen, skipping ids that fail.
func AllScreens(p Platform) []image.Rectangle {
	n := p.ScreenCount()
	out := make([]image.Rectangle, 0, n)
	for i := 0; i < n; i++ {
		if b, err := p.ScreenBounds(i); err == nil && !b.Empty() {
			out = append(out, b)
		}
	}
	return out
}

// VirtualBounds returns the union of all screens.
func VirtualBounds(p Platform) image.Rectangle {
	var u image.Rectangle
	for _, b := range AllScreens(p) {
		u = u.Union(b)
	}
	return u
}

// Clip intersects rect with the bounding box of every screen it overlaps.
// ok is false when rect touches no screen at all.
func Clip(p Platform, rect image.Rectangle) (clipped image.Rectangle, ok bool) {
	var u image.Rectangle
	for _, b := range AllScreens(p) {
		if in := rect.Intersect(b); !in.Empty() {
			u = u.Union(in)
		}
	}
	if u.Empty() {
		return image.Rectangle{}, false
	}
	return u, true
}

func pointVisible(screens []image.Rectangle, pt image.Point) bool {
	for _, b := range screens {
		if pt.In(b) {
			return true
		}
	}
	return false
}
