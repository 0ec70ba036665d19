package region

import (
	"fmt"
	"image"
	"time"

	"github.com/soocke/pixelfind/domain/pattern"
)

// EventType tags an Event. The zero value is EventGeneric.
type EventType int

const (
	EventGeneric EventType = iota
	EventAppear
	EventVanish
	EventChange
	EventFindFailed
	EventImageMissing
)

func (t EventType) String() string {
	switch t {
	case EventGeneric:
		return "GENERIC"
	case EventAppear:
		return "APPEAR"
	case EventVanish:
		return "VANISH"
	case EventChange:
		return "CHANGE"
	case EventFindFailed:
		return "FINDFAILED"
	case EventImageMissing:
		return "MISSING"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event describes something that happened in a region: an observer
// firing or a search that failed.
type Event struct {
	ID      string
	Type    EventType
	Region  *Region
	Pattern *pattern.Pattern // nil for CHANGE
	Target  string           // file name for MISSING events
	Match   *Match           // APPEAR and VANISH
	Count   int              // times fired before this one
	Changed int              // CHANGE: pixels that differed
	// CHANGE only: the frame the region was compared against and the
	// pixel count that had to differ.
	Baseline   *image.RGBA
	MinChanged int
	Time    time.Time
}

// Changes returns the changed pixel count of a CHANGE event. The second
// result is false for other event types.
func (e Event) Changes() (int, bool) {
	return e.Changed, e.Type == EventChange
}

// Location returns the target point of the event's match, if any.
func (e Event) Location() (image.Point, bool) {
	if e.Match == nil {
		return image.Point{}, false
	}
	return e.Match.Target(), true
}

func (e Event) String() string {
	switch {
	case e.Match != nil:
		return fmt.Sprintf("%s %s in %s", e.Type, e.Match, e.Region)
	case e.Type == EventChange:
		return fmt.Sprintf("%s %d pixels in %s", e.Type, e.Changed, e.Region)
	default:
		return fmt.Sprintf("%s in %s", e.Type, e.Region)
	}
}
