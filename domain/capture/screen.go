package capture

import (
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"
)

// screenCacheTTL bounds how long enumerated monitor geometry is reused.
const screenCacheTTL = 2 * time.Second

// ScreenPlatform captures the live desktop. Monitor layout is enumerated
// through the OS and cached briefly so that tight polling loops do not
// re-enumerate on every attempt.
type ScreenPlatform struct {
	logger *slog.Logger

	mu        sync.Mutex
	screens   []image.Rectangle
	refreshed time.Time
}

// NewScreenPlatform returns a Platform backed by the physical screens.
func NewScreenPlatform(logger *slog.Logger) *ScreenPlatform {
	return &ScreenPlatform{logger: logger}
}

func (s *ScreenPlatform) list() []image.Rectangle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.screens != nil && time.Since(s.refreshed) < screenCacheTTL {
		return s.screens
	}
	screens, err := listScreens()
	if err != nil {
		if s.logger != nil {
			s.logger.Error("screen enumeration", "error", err)
		}
		return s.screens
	}
	s.screens, s.refreshed = screens, time.Now()
	return screens
}

// CaptureBitmap grabs rect from the desktop into a pooled frame.
func (s *ScreenPlatform) CaptureBitmap(rect image.Rectangle) (*image.RGBA, error) {
	if rect.Empty() {
		return nil, fmt.Errorf("capture: empty rect %v", rect)
	}
	return grabRect(rect)
}

// ScreenBounds implements Platform.
func (s *ScreenPlatform) ScreenBounds(id int) (image.Rectangle, error) {
	screens := s.list()
	if id < 0 || id >= len(screens) {
		return image.Rectangle{}, fmt.Errorf("capture: invalid screen id %d (have %d)", id, len(screens))
	}
	return screens[id], nil
}

// ScreenCount implements Platform.
func (s *ScreenPlatform) ScreenCount() int { return len(s.list()) }

// IsPointVisible implements Platform.
func (s *ScreenPlatform) IsPointVisible(p image.Point) bool { return pointVisible(s.list(), p) }

// Release recycles a frame returned by CaptureBitmap.
func (s *ScreenPlatform) Release(img *image.RGBA) { RecycleFrame(img) }
