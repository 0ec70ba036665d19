// Package region implements rectangular screen areas and the search
// protocol run against them: find, exists, wait, waitVanish and findAll,
// with per-region timeouts, scan rates and a configurable policy for
// searches that come up empty.
//
// A Region has a single owner. Callers that share one across goroutines
// must serialize access themselves.
package region

import (
	"fmt"
	"image"
	"time"

	"github.com/soocke/pixelfind/domain/capture"
	"github.com/soocke/pixelfind/domain/finderr"
)

// AutoWait selects the region's own timeout in Wait, Exists and WaitVanish.
const AutoWait time.Duration = -1

// Region is a screen rectangle plus search settings and the results of
// the last search. Width and height are at least 1.
type Region struct {
	env        *Env
	x, y, w, h int

	autoWaitTimeout time.Duration
	scanRate        float64 // 0 means the configured default
	observeScanRate float64 // 0 means the configured default
	repeatWait      time.Duration

	throwException     bool
	findFailedResponse Response
	findFailedHandler  FailureHandler
	imageMissing       FailureHandler

	rows, cols int

	lastMatch     *Match
	lastMatches   []*Match
	lastMatchTime time.Duration
}

// FromRect returns the region with top-left (x,y) and size w x h.
func FromRect(env *Env, x, y, w, h int) *Region {
	env = env.normalized()
	resp, err := ParseResponse(env.Config.FindFailedResponse)
	if err != nil {
		resp = Abort
	}
	r := &Region{
		env:                env,
		autoWaitTimeout:    env.Config.AutoWaitTimeout(),
		repeatWait:         env.Config.RepeatWait(),
		findFailedResponse: resp,
		throwException:     resp == Abort,
	}
	r.setRect(x, y, w, h)
	return r
}

// FromRectangle returns the region covering rect.
func FromRectangle(env *Env, rect image.Rectangle) *Region {
	rect = rect.Canon()
	return FromRect(env, rect.Min.X, rect.Min.Y, rect.Dx(), rect.Dy())
}

// FromPoints returns the region spanned by two opposite corners.
func FromPoints(env *Env, a, b image.Point) *Region {
	return FromRectangle(env, image.Rectangle{Min: a, Max: b})
}

// FromPoint returns the 1x1 region at p.
func FromPoint(env *Env, p image.Point) *Region {
	return FromRect(env, p.X, p.Y, 1, 1)
}

// FromScreenID returns the region covering screen id. A negative id
// selects the union of all screens.
func FromScreenID(env *Env, id int) (*Region, error) {
	env = env.normalized()
	if env.Platform == nil {
		return nil, finderr.Invalid("region.screen", "no platform")
	}
	if id < 0 {
		u := capture.VirtualBounds(env.Platform)
		if u.Empty() {
			return nil, finderr.Invalid("region.screen", "no visible screens")
		}
		return FromRectangle(env, u), nil
	}
	b, err := env.Platform.ScreenBounds(id)
	if err != nil {
		return nil, finderr.Wrap(finderr.KindInvalidInput, "region.screen", fmt.Sprint(id), err)
	}
	return FromRectangle(env, b), nil
}

func (r *Region) setRect(x, y, w, h int) {
	r.x, r.y = x, y
	r.w, r.h = max(w, 1), max(h, 1)
}

// derive returns a region sharing r's settings but not its results or raster.
func (r *Region) derive(x, y, w, h int) *Region {
	n := &Region{
		env:                r.env,
		autoWaitTimeout:    r.autoWaitTimeout,
		scanRate:           r.scanRate,
		observeScanRate:    r.observeScanRate,
		repeatWait:         r.repeatWait,
		throwException:     r.throwException,
		findFailedResponse: r.findFailedResponse,
		findFailedHandler:  r.findFailedHandler,
		imageMissing:       r.imageMissing,
	}
	n.setRect(x, y, w, h)
	return n
}

// Clone returns an independent copy including raster and last results.
func (r *Region) Clone() *Region {
	c := *r
	c.lastMatches = append([]*Match(nil), r.lastMatches...)
	return &c
}

// Env returns the collaborators the region was created with.
func (r *Region) Env() *Env { return r.env }

func (r *Region) X() int { return r.x }
func (r *Region) Y() int { return r.y }
func (r *Region) W() int { return r.w }
func (r *Region) H() int { return r.h }

// Rect returns the region as an image.Rectangle.
func (r *Region) Rect() image.Rectangle { return image.Rect(r.x, r.y, r.x+r.w, r.y+r.h) }

// SetRect moves and resizes the region in place.
func (r *Region) SetRect(x, y, w, h int) *Region {
	r.setRect(x, y, w, h)
	return r
}

// SetLocation moves the top-left corner to p.
func (r *Region) SetLocation(p image.Point) *Region {
	r.x, r.y = p.X, p.Y
	return r
}

// SetSize resizes the region keeping its top-left corner.
func (r *Region) SetSize(w, h int) *Region {
	r.setRect(r.x, r.y, w, h)
	return r
}

// SetCenter moves the region so its center is p.
func (r *Region) SetCenter(p image.Point) *Region {
	return r.SetLocation(image.Pt(r.x, r.y).Add(p.Sub(r.Center())))
}

func (r *Region) Center() image.Point      { return image.Pt(r.x+r.w/2, r.y+r.h/2) }
func (r *Region) TopLeft() image.Point     { return image.Pt(r.x, r.y) }
func (r *Region) TopRight() image.Point    { return image.Pt(r.x+r.w, r.y) }
func (r *Region) BottomLeft() image.Point  { return image.Pt(r.x, r.y+r.h) }
func (r *Region) BottomRight() image.Point { return image.Pt(r.x+r.w, r.y+r.h) }

// Target is the point actions aim at; for a plain region its center.
func (r *Region) Target() image.Point { return r.Center() }

// AutoWaitTimeout returns the default timeout of Find and Wait.
func (r *Region) AutoWaitTimeout() time.Duration { return r.autoWaitTimeout }

// SetAutoWaitTimeout changes the default timeout. Negative values become 0.
func (r *Region) SetAutoWaitTimeout(d time.Duration) *Region {
	r.autoWaitTimeout = max(d, 0)
	return r
}

// WaitScanRate returns search attempts per second.
func (r *Region) WaitScanRate() float64 {
	if r.scanRate > 0 {
		return r.scanRate
	}
	return r.env.Config.WaitScanRate
}

// SetWaitScanRate overrides the scan rate; 0 restores the default.
func (r *Region) SetWaitScanRate(perSecond float64) *Region {
	r.scanRate = max(perSecond, 0)
	return r
}

// ObserveScanRate returns observer ticks per second.
func (r *Region) ObserveScanRate() float64 {
	if r.observeScanRate > 0 {
		return r.observeScanRate
	}
	return r.env.Config.ObserveScanRate
}

// SetObserveScanRate overrides the observer rate; 0 restores the default.
func (r *Region) SetObserveScanRate(perSecond float64) *Region {
	r.observeScanRate = max(perSecond, 0)
	return r
}

// RepeatWaitTime is the pause before a RETRY restarts a search.
func (r *Region) RepeatWaitTime() time.Duration { return r.repeatWait }

// SetRepeatWaitTime changes the RETRY pause.
func (r *Region) SetRepeatWaitTime(d time.Duration) *Region {
	r.repeatWait = max(d, 0)
	return r
}

// LastMatch returns the most recent successful single match, nil if none.
// It is a convenience record, not a synchronization point.
func (r *Region) LastMatch() *Match { return r.lastMatch }

// LastMatches returns the most recent FindAll result.
func (r *Region) LastMatches() []*Match { return append([]*Match(nil), r.lastMatches...) }

// LastMatchTime is the wall-clock duration of the last successful search.
func (r *Region) LastMatchTime() time.Duration { return r.lastMatchTime }

func (r *Region) String() string {
	return fmt.Sprintf("R[%d,%d %dx%d]", r.x, r.y, r.w, r.h)
}
