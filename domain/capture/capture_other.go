//go:build !windows

package capture

import (
	"image"

	"github.com/vova616/screenshot"
)

// grabRect captures r through the screenshot library and copies it into a
// pooled frame carrying absolute coordinates.
func grabRect(r image.Rectangle) (*image.RGBA, error) {
	img, err := screenshot.CaptureRect(r)
	if err != nil {
		return nil, err
	}
	return copyToFrame(img, r), nil
}

// listScreens reports the root window as the only screen.
func listScreens() ([]image.Rectangle, error) {
	r, err := screenshot.ScreenRect()
	if err != nil {
		return nil, err
	}
	return []image.Rectangle{r}, nil
}
