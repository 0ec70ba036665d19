package capture

import (
	"fmt"
	"image"
	"image/draw"
	"sync"
	"sync/atomic"

	"github.com/disintegration/imaging"
)

// ImagePlatform serves captures from in-memory images instead of the
// desktop. Screens are laid out left to right starting at (0,0). It backs
// headless runs of the CLI and test doubles, and is safe for concurrent use
// so a background observer can watch content that a test swaps.
type ImagePlatform struct {
	mu       sync.RWMutex
	screens  []image.Rectangle
	pixels   []*image.RGBA
	captures atomic.Int64
}

// NewImagePlatform places imgs side by side as screens 0..n-1.
func NewImagePlatform(imgs ...image.Image) *ImagePlatform {
	p := &ImagePlatform{}
	x := 0
	for _, img := range imgs {
		b := img.Bounds()
		r := image.Rect(x, 0, x+b.Dx(), b.Dy())
		p.screens = append(p.screens, r)
		p.pixels = append(p.pixels, toRGBAAt(img, r.Min))
		x += b.Dx()
	}
	return p
}

// OpenImagePlatform decodes each path with imaging and uses it as a screen.
func OpenImagePlatform(paths ...string) (*ImagePlatform, error) {
	imgs := make([]image.Image, 0, len(paths))
	for _, path := range paths {
		img, err := imaging.Open(path)
		if err != nil {
			return nil, fmt.Errorf("capture: open screen image %s: %w", path, err)
		}
		imgs = append(imgs, img)
	}
	return NewImagePlatform(imgs...), nil
}

// SetScreen replaces the content of screen id. The screen keeps its origin;
// its size follows img.
func (p *ImagePlatform) SetScreen(id int, img image.Image) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id < 0 || id >= len(p.screens) {
		return fmt.Errorf("capture: invalid screen id %d (have %d)", id, len(p.screens))
	}
	origin := p.screens[id].Min
	b := img.Bounds()
	p.screens[id] = image.Rect(origin.X, origin.Y, origin.X+b.Dx(), origin.Y+b.Dy())
	p.pixels[id] = toRGBAAt(img, origin)
	return nil
}

// CaptureBitmap composes every screen overlapping rect. Pixels outside all
// screens are transparent black.
func (p *ImagePlatform) CaptureBitmap(rect image.Rectangle) (*image.RGBA, error) {
	if rect.Empty() {
		return nil, fmt.Errorf("capture: empty rect %v", rect)
	}
	p.captures.Add(1)
	p.mu.RLock()
	defer p.mu.RUnlock()
	dst := image.NewRGBA(rect)
	for i, b := range p.screens {
		in := rect.Intersect(b)
		if in.Empty() {
			continue
		}
		draw.Draw(dst, in, p.pixels[i], in.Min, draw.Src)
	}
	return dst, nil
}

// ScreenBounds implements Platform.
func (p *ImagePlatform) ScreenBounds(id int) (image.Rectangle, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if id < 0 || id >= len(p.screens) {
		return image.Rectangle{}, fmt.Errorf("capture: invalid screen id %d (have %d)", id, len(p.screens))
	}
	return p.screens[id], nil
}

// ScreenCount implements Platform.
func (p *ImagePlatform) ScreenCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.screens)
}

// IsPointVisible implements Platform.
func (p *ImagePlatform) IsPointVisible(pt image.Point) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return pointVisible(p.screens, pt)
}

// Captures returns how many CaptureBitmap calls were served.
func (p *ImagePlatform) Captures() int { return int(p.captures.Load()) }

// toRGBAAt copies img into a new RGBA whose bounds start at origin.
func toRGBAAt(img image.Image, origin image.Point) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rectangle{Min: origin, Max: origin.Add(b.Size())})
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}
