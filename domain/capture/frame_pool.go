package capture

import (
	"image"
	"sync"
)

// Reusable frame pool for capture buffers. Polling loops capture the same
// rectangle many times per second; recycling keeps the backing slices from
// piling up between GCs.
//
// acquireFrame(rect) returns an *image.RGBA whose Pix capacity is at least
// rect area * 4. Consumers hand frames back through Release(platform, img).
// Frames that are never released are simply collected.

var framePool sync.Pool // stores *image.RGBA

// acquireFrame returns a reusable RGBA image with bounds rect. Pix length
// matches rect area * 4 and Stride is width*4. Contents are undefined.
func acquireFrame(rect image.Rectangle) *image.RGBA {
	w, h := rect.Dx(), rect.Dy()
	if w <= 0 || h <= 0 {
		return &image.RGBA{Rect: rect}
	}
	needed := w * h * 4
	var img *image.RGBA
	if v := framePool.Get(); v != nil {
		img = v.(*image.RGBA)
	}
	if img == nil || cap(img.Pix) < needed {
		img = &image.RGBA{Pix: make([]byte, needed), Stride: w * 4, Rect: rect}
	} else {
		img.Stride = w * 4
		img.Rect = rect
		img.Pix = img.Pix[:needed]
	}
	return img
}

// copyToFrame copies src into a pooled frame positioned at rect.
func copyToFrame(src *image.RGBA, rect image.Rectangle) *image.RGBA {
	dst := acquireFrame(rect)
	w := rect.Dx() * 4
	sb := src.Bounds()
	for y := 0; y < rect.Dy() && y < sb.Dy(); y++ {
		so := y * src.Stride
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+w], src.Pix[so:so+min(w, sb.Dx()*4)])
	}
	return dst
}

// RecycleFrame returns the frame to the pool for potential reuse. The frame
// must no longer be accessed by the caller after invoking RecycleFrame.
func RecycleFrame(img *image.RGBA) {
	if img == nil || img.Pix == nil {
		return
	}
	framePool.Put(img)
}
