package observe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/soocke/pixelfind/domain/region"
)

const backgroundBuffer = 64

// Background is an observer running on its own goroutine. It works on a
// copy of the region and the registered events taken at launch: changes
// the caller makes afterwards are not seen by the worker, and handler
// side effects reach the caller only through Events or whatever the
// handler itself forwards.
type Background struct {
	obs    *Observer
	events chan region.Event
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// ObserveInBackground starts observing a copy of o for d (d <= 0 runs
// until stopped). Every fired event is sent on Events after its handler
// returns, including events that have no handler. ok is false when o is
// already observing.
func (o *Observer) ObserveInBackground(ctx context.Context, d time.Duration) (*Background, bool) {
	if o.IsObserving() {
		return nil, false
	}
	ctx, cancel := context.WithCancel(ctx)
	b := &Background{
		obs:    o.fork(),
		events: make(chan region.Event, backgroundBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	b.obs.forward(ctx, b.events)
	go b.run(ctx, d)
	return b, true
}

// fork copies the region and the registry. Queued events stay behind.
func (o *Observer) fork() *Observer {
	c := New(o.region.Clone())
	c.logger = o.logger.With("observer", "background")
	c.recorder = o.recorder
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, id := range o.order {
		c.entries[id] = o.entries[id].clone()
		c.order = append(c.order, id)
	}
	return c
}

// forward wraps every handler so fired events go out on ch. Handler
// panics are logged and do not stop the worker.
func (o *Observer) forward(ctx context.Context, ch chan<- region.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, e := range o.entries {
		h := e.handler
		e.handler = func(ev region.Event) {
			if h != nil {
				o.safeCall(h, ev)
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
			}
		}
	}
}

func (o *Observer) safeCall(h Handler, ev region.Event) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("observer handler panicked", "id", ev.ID, "type", ev.Type.String(), "panic", fmt.Sprint(r))
		}
	}()
	h(ev)
}

func (b *Background) run(ctx context.Context, d time.Duration) {
	defer close(b.done)
	defer close(b.events)
	_, err := b.obs.Observe(ctx, d)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}

// Events delivers fired events. It is closed when the worker exits.
func (b *Background) Events() <-chan region.Event { return b.events }

// Region returns the worker's copy of the observed region once the
// worker has exited, so its last matches can be read. It returns nil
// while the worker still owns the region.
func (b *Background) Region() *region.Region {
	select {
	case <-b.done:
		return b.obs.region
	default:
		return nil
	}
}

// Stop asks the worker to finish. It does not wait; use Wait for that.
func (b *Background) Stop() {
	b.obs.Stop()
	b.cancel()
}

// Wait blocks until the worker exits and returns its error, if any.
func (b *Background) Wait() error {
	<-b.done
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Done is closed when the worker exits.
func (b *Background) Done() <-chan struct{} { return b.done }
