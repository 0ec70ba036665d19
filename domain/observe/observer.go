// Package observe watches a region for a pattern appearing, a pattern
// vanishing or the pixels changing, and delivers each as a one-shot
// event to a handler or to a queue.
package observe

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/soocke/pixelfind/domain/finderr"
	"github.com/soocke/pixelfind/domain/pattern"
	"github.com/soocke/pixelfind/domain/region"
	"github.com/soocke/pixelfind/images"
)

// Handler receives fired events. It runs on the goroutine driving the
// observer and must return for observation to continue.
type Handler func(region.Event)

// Recorder is implemented by metrics sinks that count fired events.
type Recorder interface {
	ObserveEvent(eventType string)
}

type entry struct {
	id         string
	typ        region.EventType
	pattern    pattern.Pattern
	handler    Handler
	active     bool
	count      int
	minChanged int
	baseline   *image.RGBA
	lastSeen   *region.Match
}

func (e *entry) clone() *entry {
	c := *e
	c.baseline = images.Clone(e.baseline)
	return &c
}

// Observer holds the registered events of one region. Registration and
// the event queue are safe to use from handlers; CheckEvents and Observe
// run one at a time.
type Observer struct {
	region   *region.Region
	logger   *slog.Logger
	recorder Recorder

	mu      sync.Mutex
	entries map[string]*entry
	order   []string
	queue   []region.Event

	running atomic.Bool
	stop    atomic.Bool
}

// New returns an observer for r. Fired events are counted when the
// region's metrics sink implements Recorder.
func New(r *region.Region) *Observer {
	o := &Observer{
		region:  r,
		logger:  r.Env().Logger,
		entries: make(map[string]*entry),
	}
	if rec, ok := r.Env().Metrics.(Recorder); ok {
		o.recorder = rec
	}
	return o
}

// Region returns the observed region.
func (o *Observer) Region() *region.Region { return o.region }

func (o *Observer) register(e *entry) string {
	e.id = uuid.NewString()
	e.active = true
	o.mu.Lock()
	o.entries[e.id] = e
	o.order = append(o.order, e.id)
	o.mu.Unlock()
	o.logger.Debug("observer event registered", "id", e.id, "type", e.typ.String(), "region", o.region.String())
	return e.id
}

// OnAppear fires once target is visible in the region. A nil handler
// queues the event for Events.
func (o *Observer) OnAppear(target any, h Handler) (string, error) {
	pat, err := o.region.Pattern(target)
	if err != nil {
		return "", err
	}
	return o.register(&entry{typ: region.EventAppear, pattern: pat, handler: h}), nil
}

// OnVanish fires once target is no longer visible in the region.
func (o *Observer) OnVanish(target any, h Handler) (string, error) {
	pat, err := o.region.Pattern(target)
	if err != nil {
		return "", err
	}
	return o.register(&entry{typ: region.EventVanish, pattern: pat, handler: h}), nil
}

// OnChange fires once at least minChanged pixels differ from the
// region's content at registration time. minChanged <= 0 uses the
// configured default.
func (o *Observer) OnChange(minChanged int, h Handler) (string, error) {
	if minChanged <= 0 {
		minChanged = o.region.Env().Config.ObserveMinChangedPixels
	}
	base, err := o.region.Bitmap()
	if err != nil {
		return "", err
	}
	return o.register(&entry{typ: region.EventChange, handler: h, minChanged: minChanged, baseline: base}), nil
}

// snapshot returns the active entries in registration order.
func (o *Observer) snapshot() []*entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*entry, 0, len(o.order))
	for _, id := range o.order {
		if e := o.entries[id]; e.active {
			out = append(out, e)
		}
	}
	return out
}

// CheckEvents evaluates every active event once and fires those whose
// condition holds.
func (o *Observer) CheckEvents(ctx context.Context) error {
	for _, e := range o.snapshot() {
		ev, fire, err := o.check(ctx, e)
		if err != nil {
			return fmt.Errorf("observe %s %s: %w", e.typ, e.id, err)
		}
		if fire {
			o.fire(e, ev)
		}
	}
	return nil
}

func (o *Observer) check(ctx context.Context, e *entry) (region.Event, bool, error) {
	ev := region.Event{ID: e.id, Type: e.typ, Region: o.region}
	switch e.typ {
	case region.EventAppear, region.EventVanish:
		pat := e.pattern
		ev.Pattern = &pat
		m, err := o.region.Exists(ctx, pat, 0)
		if err != nil {
			return ev, false, err
		}
		if m != nil {
			o.mu.Lock()
			e.lastSeen = m
			o.mu.Unlock()
		}
		if e.typ == region.EventAppear {
			ev.Match = m
			return ev, m != nil, nil
		}
		o.mu.Lock()
		ev.Match = e.lastSeen
		o.mu.Unlock()
		return ev, m == nil, nil
	case region.EventChange:
		cur, err := o.region.Bitmap()
		if err != nil {
			return ev, false, err
		}
		o.mu.Lock()
		n := images.ChangedPixels(e.baseline, cur, 0)
		changed := n >= e.minChanged
		ev.Baseline, ev.MinChanged = e.baseline, e.minChanged
		if changed {
			e.baseline = cur
		}
		o.mu.Unlock()
		ev.Changed = n
		return ev, changed, nil
	}
	return ev, false, finderr.Invalid("observe.check", "unsupported event type %s", e.typ)
}

// fire delivers ev and deactivates its entry.
func (o *Observer) fire(e *entry, ev region.Event) {
	o.mu.Lock()
	ev.Count = e.count
	ev.Time = time.Now()
	e.count++
	e.active = false
	h := e.handler
	if h == nil {
		o.queue = append(o.queue, ev)
	}
	o.mu.Unlock()

	o.logger.Info("observer event fired", "id", ev.ID, "type", ev.Type.String(), "count", ev.Count, "region", o.region.String())
	if o.recorder != nil {
		o.recorder.ObserveEvent(ev.Type.String())
	}
	if h != nil {
		h(ev)
	}
}

// Observe runs CheckEvents every 1/ObserveScanRate seconds until Stop is
// called, ctx is done or d elapses (d <= 0 runs until stopped). It
// returns false without observing when the observer is already running.
func (o *Observer) Observe(ctx context.Context, d time.Duration) (bool, error) {
	if !o.running.CompareAndSwap(false, true) {
		return false, nil
	}
	defer o.running.Store(false)
	o.stop.Store(false)

	loopCtx := ctx
	if d > 0 {
		var cancel context.CancelFunc
		loopCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	lim := rate.NewLimiter(rate.Limit(o.region.ObserveScanRate()), 1)
	lim.Allow()

	o.logger.Debug("observer started", "region", o.region.String(), "duration", d)
	for !o.stop.Load() {
		if err := o.CheckEvents(loopCtx); err != nil {
			if loopCtx.Err() != nil {
				break
			}
			return true, err
		}
		if o.stop.Load() {
			break
		}
		if err := tick(loopCtx, lim); err != nil {
			break
		}
	}
	o.logger.Debug("observer stopped", "region", o.region.String())
	return true, ctx.Err()
}

// tick waits for the next scan slot of lim. It returns only when the
// slot arrives or ctx is done.
func tick(ctx context.Context, lim *rate.Limiter) error {
	r := lim.Reserve()
	t := time.NewTimer(r.Delay())
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

// Stop ends a running Observe after the current tick.
func (o *Observer) Stop() { o.stop.Store(true) }

// IsObserving reports whether Observe is running.
func (o *Observer) IsObserving() bool { return o.running.Load() }

// HasObserver reports whether any event is registered.
func (o *Observer) HasObserver() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.entries) > 0
}

// HasEvents reports whether fired events are waiting in the queue.
func (o *Observer) HasEvents() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue) > 0
}

// Events drains the queue and reactivates every drained event.
func (o *Observer) Events() []region.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.queue
	o.queue = nil
	for _, ev := range out {
		if e, ok := o.entries[ev.ID]; ok {
			e.active = true
		}
	}
	return out
}

// Event removes the queued event with id and reactivates it.
func (o *Observer) Event(id string) (region.Event, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, ev := range o.queue {
		if ev.ID != id {
			continue
		}
		o.queue = append(o.queue[:i], o.queue[i+1:]...)
		if e, ok := o.entries[id]; ok {
			e.active = true
		}
		return ev, true
	}
	return region.Event{}, false
}

// SetActive re-enables event id. It reports whether id is registered.
func (o *Observer) SetActive(id string) bool { return o.setActive(id, true) }

// SetInactive disables event id without removing it.
func (o *Observer) SetInactive(id string) bool { return o.setActive(id, false) }

func (o *Observer) setActive(id string, on bool) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.entries[id]
	if ok {
		e.active = on
	}
	return ok
}

// Active reports whether event id is registered and active.
func (o *Observer) Active(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.entries[id]
	return ok && e.active
}

// Count returns how many times event id has fired.
func (o *Observer) Count(id string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if e, ok := o.entries[id]; ok {
		return e.count
	}
	return 0
}
