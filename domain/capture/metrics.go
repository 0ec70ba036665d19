package capture

import (
	"image"
	"log/slog"
	"sync/atomic"
	"time"
)

const captureStatsLogInterval = 5 * time.Second

// CaptureStats summarises capture behaviour for instrumentation.
type CaptureStats struct {
	Captures         uint64
	Failed           uint64
	AvgCapture       time.Duration
	AvgCaptureMicros float64
	LastCapture      time.Time
	Sequence         uint64
}

// CaptureHook is notified after every capture attempt.
type CaptureHook func(elapsed time.Duration, err error)

// Instrumented wraps a Platform and records capture counts and latency.
type Instrumented struct {
	Platform
	logger       *slog.Logger
	hook         CaptureHook
	captures     atomic.Uint64
	failed       atomic.Uint64
	captureNanos atomic.Uint64
	sequence     atomic.Uint64
	last         atomic.Int64 // unix nanos
	lastLog      atomic.Int64
}

// WithStats wraps p. logger and hook may be nil.
func WithStats(p Platform, logger *slog.Logger, hook CaptureHook) *Instrumented {
	return &Instrumented{Platform: p, logger: logger, hook: hook}
}

// CaptureBitmap delegates to the wrapped platform and records the attempt.
func (s *Instrumented) CaptureBitmap(rect image.Rectangle) (*image.RGBA, error) {
	start := time.Now()
	img, err := s.Platform.CaptureBitmap(rect)
	elapsed := time.Since(start)
	if err != nil {
		s.failed.Add(1)
		if s.logger != nil {
			s.logger.Error("capture", "rect", rect.String(), "error", err)
		}
	} else {
		s.captureNanos.Add(uint64(elapsed.Nanoseconds()))
		s.captures.Add(1)
		s.sequence.Add(1)
		s.last.Store(time.Now().UnixNano())
	}
	if s.hook != nil {
		s.hook(elapsed, err)
	}
	s.maybeLogStats()
	return img, err
}

// Release forwards to the wrapped platform when it pools frames.
func (s *Instrumented) Release(img *image.RGBA) { Release(s.Platform, img) }

// Stats returns a snapshot of the counters.
func (s *Instrumented) Stats() CaptureStats {
	captures := s.captures.Load()
	total := s.captureNanos.Load()
	var avg time.Duration
	avgMicros := 0.0
	if captures > 0 && total > 0 {
		avg = time.Duration(total / captures)
		avgMicros = float64(avg) / float64(time.Microsecond)
	}
	var last time.Time
	if ns := s.last.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	return CaptureStats{
		Captures:         captures,
		Failed:           s.failed.Load(),
		AvgCapture:       avg,
		AvgCaptureMicros: avgMicros,
		LastCapture:      last,
		Sequence:         s.sequence.Load(),
	}
}

func (s *Instrumented) maybeLogStats() {
	if s.logger == nil {
		return
	}
	now := time.Now().UnixNano()
	prev := s.lastLog.Load()
	if now-prev < int64(captureStatsLogInterval) || !s.lastLog.CompareAndSwap(prev, now) {
		return
	}
	stats := s.Stats()
	s.logger.Debug("capture.stats",
		"captures", stats.Captures,
		"failed", stats.Failed,
		"avg_capture", stats.AvgCapture,
	)
}
