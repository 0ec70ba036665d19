package region

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/soocke/pixelfind/domain/finderr"
	"github.com/soocke/pixelfind/domain/pattern"
)

// Response decides what happens when a search comes up empty.
type Response int

const (
	// Default defers to the region's configured response. Handlers
	// return it when they have no opinion.
	Default Response = iota
	Abort
	Skip
	Retry
	Prompt
)

func (r Response) String() string {
	switch r {
	case Default:
		return "default"
	case Abort:
		return "abort"
	case Skip:
		return "skip"
	case Retry:
		return "retry"
	case Prompt:
		return "prompt"
	default:
		return fmt.Sprintf("Response(%d)", int(r))
	}
}

// ParseResponse parses abort, skip, retry or prompt. "ignore", the
// answer of an abort/retry/ignore dialog, means skip.
func ParseResponse(s string) (Response, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "abort", "":
		return Abort, nil
	case "skip", "ignore":
		return Skip, nil
	case "retry":
		return Retry, nil
	case "prompt":
		return Prompt, nil
	}
	return Default, finderr.Invalid("region.response", "unknown response %q", s)
}

// FailureHandler is called when a search fails or an image cannot be
// loaded. Returning Default applies the region's configured response.
type FailureHandler func(Event) Response

// FindFailedResponse returns the response used when a search fails.
func (r *Region) FindFailedResponse() Response { return r.findFailedResponse }

// SetFindFailedResponse sets the response used when a search fails.
// Default is treated as Abort.
func (r *Region) SetFindFailedResponse(resp Response) *Region {
	if resp == Default {
		resp = Abort
	}
	r.findFailedResponse = resp
	r.throwException = resp == Abort
	return r
}

// SetThrowException is shorthand for SetFindFailedResponse with Abort
// (true) or Skip (false).
func (r *Region) SetThrowException(on bool) *Region {
	if on {
		return r.SetFindFailedResponse(Abort)
	}
	return r.SetFindFailedResponse(Skip)
}

// ThrowException reports whether failed searches return ErrFindFailed.
func (r *Region) ThrowException() bool { return r.throwException }

// SetFindFailedHandler installs a handler consulted before the response.
func (r *Region) SetFindFailedHandler(h FailureHandler) *Region {
	r.findFailedHandler = h
	return r
}

// SetImageMissingHandler installs a handler consulted when a pattern
// file cannot be loaded. Without one the load error is returned as is.
func (r *Region) SetImageMissingHandler(h FailureHandler) *Region {
	r.imageMissing = h
	return r
}

// decide resolves the response for a failure: the handler first, then
// the region setting, then a prompt.
func (r *Region) decide(ctx context.Context, h FailureHandler, ev Event, fallback Response) (Response, error) {
	resp := Default
	if h != nil {
		resp = h(ev)
	}
	if resp == Default {
		resp = fallback
	}
	if resp != Prompt {
		return resp, nil
	}
	if r.env.Prompter == nil {
		r.env.Logger.Warn("no prompter configured, aborting", "event", ev.Type.String())
		return Abort, nil
	}
	resp, err := r.env.Prompter.Prompt(ctx, promptMessage(ev))
	if err != nil {
		return Abort, err
	}
	if resp == Default || resp == Prompt {
		resp = Abort
	}
	return resp, nil
}

func promptMessage(ev Event) string {
	name := ev.Target
	if ev.Pattern != nil {
		name = ev.Pattern.String()
	}
	if ev.Type == EventImageMissing {
		return fmt.Sprintf("Could not load image %s.\nAbort, retry or skip?", name)
	}
	return fmt.Sprintf("Could not find %s in %s.\nAbort, retry or skip?", name, ev.Region)
}

// findFailed applies the failure policy. It returns retry=true when the
// caller should search again; a nil error with retry=false means skip.
func (r *Region) findFailed(ctx context.Context, op string, pat pattern.Pattern) (bool, error) {
	ev := Event{Type: EventFindFailed, Region: r, Pattern: &pat, Time: time.Now()}
	resp, err := r.decide(ctx, r.findFailedHandler, ev, r.findFailedResponse)
	if err != nil {
		return false, finderr.Wrap(finderr.KindFindFailed, op, pat.String(), err)
	}
	r.env.Logger.Debug("find failed", "op", op, "pattern", pat.String(), "region", r.String(), "response", resp.String())
	switch resp {
	case Skip:
		return false, nil
	case Retry:
		return true, r.pause(ctx)
	default:
		return false, finderr.New(finderr.KindFindFailed, op, pat.String())
	}
}

// missing applies the handler for a pattern that failed to load.
func (r *Region) missing(ctx context.Context, name string, cause error) (bool, error) {
	if r.imageMissing == nil {
		return false, cause
	}
	ev := Event{Type: EventImageMissing, Region: r, Target: name, Time: time.Now()}
	resp, err := r.decide(ctx, r.imageMissing, ev, Abort)
	if err != nil {
		return false, cause
	}
	switch resp {
	case Skip:
		return false, nil
	case Retry:
		return true, r.pause(ctx)
	default:
		return false, cause
	}
}

func (r *Region) pause(ctx context.Context) error {
	t := time.NewTimer(r.repeatWait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
