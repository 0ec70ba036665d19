package capture

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestImagePlatform_LaysOutScreensLeftToRight(t *testing.T) {
	p := NewImagePlatform(solid(100, 80, color.White), solid(50, 60, color.Black))
	require.Equal(t, 2, p.ScreenCount())

	b0, err := p.ScreenBounds(0)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 80), b0)
	b1, err := p.ScreenBounds(1)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(100, 0, 150, 60), b1)

	_, err = p.ScreenBounds(2)
	assert.Error(t, err)
	assert.Equal(t, image.Rect(0, 0, 150, 80), VirtualBounds(p))
}

func TestImagePlatform_CaptureSpansScreens(t *testing.T) {
	p := NewImagePlatform(solid(100, 80, color.White), solid(50, 60, color.Black))
	img, err := p.CaptureBitmap(image.Rect(90, 10, 110, 20))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(90, 10, 110, 20), img.Bounds())
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, img.RGBAAt(95, 15))
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, img.RGBAAt(105, 15))
	assert.Equal(t, 1, p.Captures())
}

func TestImagePlatform_SetScreenKeepsOrigin(t *testing.T) {
	p := NewImagePlatform(solid(10, 10, color.White), solid(10, 10, color.White))
	require.NoError(t, p.SetScreen(1, solid(20, 5, color.Black)))
	b, _ := p.ScreenBounds(1)
	assert.Equal(t, image.Rect(10, 0, 30, 5), b)
	img, err := p.CaptureBitmap(b)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, img.RGBAAt(15, 2))
	assert.Error(t, p.SetScreen(5, solid(1, 1, color.Black)))
}

func TestClip(t *testing.T) {
	p := NewImagePlatform(solid(100, 100, color.White))
	r, ok := Clip(p, image.Rect(-10, 90, 20, 120))
	require.True(t, ok)
	assert.Equal(t, image.Rect(0, 90, 20, 100), r)

	_, ok = Clip(p, image.Rect(200, 200, 220, 220))
	assert.False(t, ok)

	assert.True(t, p.IsPointVisible(image.Pt(0, 0)))
	assert.False(t, p.IsPointVisible(image.Pt(100, 0)))
}

func TestInstrumented_CountsCapturesAndFailures(t *testing.T) {
	var hooked int
	var hookErr error
	s := WithStats(NewImagePlatform(solid(10, 10, color.White)), nil, func(_ time.Duration, err error) {
		hooked++
		hookErr = err
	})
	_, err := s.CaptureBitmap(image.Rect(0, 0, 5, 5))
	require.NoError(t, err)
	_, err = s.CaptureBitmap(image.Rectangle{})
	require.Error(t, err)

	st := s.Stats()
	assert.Equal(t, uint64(1), st.Captures)
	assert.Equal(t, uint64(1), st.Failed)
	assert.False(t, st.LastCapture.IsZero())
	assert.Equal(t, 2, hooked)
	assert.Error(t, hookErr)
	assert.Equal(t, 1, s.ScreenCount())
}

type pooled struct {
	*ImagePlatform
	released []*image.RGBA
}

func (p *pooled) Release(img *image.RGBA) { p.released = append(p.released, img) }

func TestRelease_ForwardsOnlyToPoolingPlatforms(t *testing.T) {
	base := NewImagePlatform(solid(4, 4, color.White))
	Release(base, image.NewRGBA(image.Rect(0, 0, 1, 1))) // no-op

	p := &pooled{ImagePlatform: base}
	s := WithStats(p, nil, nil)
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	s.Release(img)
	require.Len(t, p.released, 1)
	assert.Same(t, img, p.released[0])
}

func TestAcquireFrame_ReusesRecycledBuffers(t *testing.T) {
	f := acquireFrame(image.Rect(10, 10, 30, 20))
	assert.Equal(t, 20*10*4, len(f.Pix))
	assert.Equal(t, 80, f.Stride)
	RecycleFrame(f)

	g := acquireFrame(image.Rect(0, 0, 5, 5))
	assert.Equal(t, image.Rect(0, 0, 5, 5), g.Bounds())
	assert.Equal(t, 100, len(g.Pix))

	empty := acquireFrame(image.Rectangle{})
	assert.Nil(t, empty.Pix)
	RecycleFrame(empty)
	RecycleFrame(nil)
}

func TestCopyToFrame(t *testing.T) {
	src := solid(3, 2, color.RGBA{1, 2, 3, 255})
	dst := copyToFrame(src, image.Rect(50, 50, 53, 52))
	assert.Equal(t, image.Rect(50, 50, 53, 52), dst.Bounds())
	assert.Equal(t, color.RGBA{1, 2, 3, 255}, dst.RGBAAt(52, 51))
}

