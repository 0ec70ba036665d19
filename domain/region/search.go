package region

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/time/rate"

	"github.com/soocke/pixelfind/domain/capture"
	"github.com/soocke/pixelfind/domain/finderr"
	"github.com/soocke/pixelfind/domain/matching"
	"github.com/soocke/pixelfind/domain/pattern"
	"github.com/soocke/pixelfind/images"
)

type mode int

const (
	modeBest mode = iota
	modeAll
	modeVanish
)

// outcome is what a poll loop ends with once it stopped without error:
// ok is true when the loop's goal was reached (a hit, or for vanish
// mode the absence of one). matches holds the final attempt's hits.
type outcome struct {
	ok       bool
	matches  []*Match
	attempts int
	elapsed  time.Duration
}

// Pattern resolves a search target. Accepted targets are a file name,
// a pattern.Pattern (or pointer to one) and an image.Image.
func (r *Region) Pattern(target any) (pattern.Pattern, error) {
	switch t := target.(type) {
	case pattern.Pattern:
		return t, nil
	case *pattern.Pattern:
		if t == nil {
			return pattern.Pattern{}, finderr.Invalid("region.pattern", "nil pattern")
		}
		return *t, nil
	case string:
		if r.env.Patterns == nil {
			return pattern.Pattern{}, finderr.New(finderr.KindImageMissing, "region.pattern", t)
		}
		return r.env.Patterns.Open(t)
	case image.Image:
		if t == nil || t.Bounds().Empty() {
			return pattern.Pattern{}, finderr.Invalid("region.pattern", "empty image")
		}
		return pattern.FromImage(t).Similar(r.env.Config.MinSimilarity), nil
	case nil:
		return pattern.Pattern{}, finderr.Invalid("region.pattern", "nil target")
	default:
		return pattern.Pattern{}, finderr.Invalid("region.pattern", "unsupported target %T", target)
	}
}

// resolve loads the target, running the image-missing handler on load
// failures. ok is false when the handler chose to skip.
func (r *Region) resolve(ctx context.Context, target any) (pattern.Pattern, bool, error) {
	for {
		pat, err := r.Pattern(target)
		if err == nil {
			return pat, true, nil
		}
		if !errors.Is(err, finderr.ErrImageMissing) {
			return pat, false, err
		}
		name := fmt.Sprint(target)
		retry, herr := r.missing(ctx, name, err)
		if herr != nil || !retry {
			return pat, false, herr
		}
	}
}

func (r *Region) searchRect() (image.Rectangle, error) {
	if r.env.Platform == nil {
		return image.Rectangle{}, finderr.Invalid("region.search", "no platform")
	}
	rect, ok := capture.Clip(r.env.Platform, r.Rect())
	if !ok {
		return image.Rectangle{}, finderr.Invalid("region.search", "region %s is outside all visible screens", r)
	}
	return rect, nil
}

// poll repeats single search attempts at the region's scan rate until
// the goal of m is reached or timeout elapses. The first attempt always
// runs, so a zero timeout is a single check.
func (r *Region) poll(ctx context.Context, op string, pat pattern.Pattern, timeout time.Duration, m mode) (outcome, error) {
	if timeout < 0 {
		timeout = r.autoWaitTimeout
	}
	rect, err := r.searchRect()
	if err != nil {
		return outcome{}, err
	}

	start := time.Now()
	deadline, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	lim := rate.NewLimiter(rate.Limit(r.WaitScanRate()), 1)
	lim.Allow()

	var (
		matcher *matching.PyramidMatcher
		out     outcome
	)
	for {
		out.attempts++
		hits, err := r.attempt(&matcher, rect, pat, m == modeAll)
		if err != nil {
			r.env.record(op, "error", out.attempts, time.Since(start))
			return out, err
		}
		out.matches = hits
		if (len(hits) == 0) == (m == modeVanish) {
			out.ok = true
			break
		}
		if err := nextTick(deadline, lim); err != nil {
			if cerr := ctx.Err(); cerr != nil {
				r.env.record(op, "canceled", out.attempts, time.Since(start))
				return out, cerr
			}
			break
		}
	}
	out.elapsed = time.Since(start)

	result := "not_found"
	if out.ok {
		result = "found"
	}
	r.env.record(op, result, out.attempts, out.elapsed)
	r.env.Logger.Debug("search finished",
		"op", op,
		"pattern", pat.String(),
		"region", r.String(),
		"result", result,
		"attempts", out.attempts,
		"elapsed", out.elapsed,
	)
	return out, nil
}

// nextTick blocks until lim grants the next token or ctx is done. Unlike
// rate.Limiter.Wait it does not give up early when the token would only
// arrive after the ctx deadline.
func nextTick(ctx context.Context, lim *rate.Limiter) error {
	res := lim.Reserve()
	t := time.NewTimer(res.Delay())
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		res.Cancel()
		return ctx.Err()
	}
}

// attempt captures rect once and runs the matcher on it. The matcher is
// created on the first attempt and refreshed afterwards.
func (r *Region) attempt(mp **matching.PyramidMatcher, rect image.Rectangle, pat pattern.Pattern, all bool) ([]*Match, error) {
	frame, err := r.env.Platform.CaptureBitmap(rect)
	if err != nil {
		return nil, fmt.Errorf("capture %v: %w", rect, err)
	}
	if *mp == nil {
		*mp, err = matching.NewPyramidMatcher(frame, r.env.matcherOptions())
	} else {
		err = (*mp).UpdateHaystack(frame)
	}
	capture.Release(r.env.Platform, frame)
	if err != nil {
		return nil, err
	}

	var results []matching.Result
	if all {
		results, err = (*mp).FindAllMatches(pat.Image(), pat.Similarity())
	} else {
		var (
			res matching.Result
			ok  bool
		)
		res, ok, err = (*mp).FindBestMatch(pat.Image(), pat.Similarity())
		if ok {
			results = []matching.Result{res}
		}
	}
	if err != nil {
		return nil, err
	}
	hits := make([]*Match, 0, len(results))
	for _, res := range results {
		hits = append(hits, newMatch(r, res.Rect.Add(rect.Min), res.Confidence, pat.Offset()))
	}
	return hits, nil
}

// Exists looks for target for up to timeout and returns the best match,
// or nil if it never appeared. It never applies the failure policy.
// LastMatch is only updated on success.
func (r *Region) Exists(ctx context.Context, target any, timeout time.Duration) (*Match, error) {
	pat, ok, err := r.resolve(ctx, target)
	if err != nil || !ok {
		return nil, err
	}
	return r.exists(ctx, "region.exists", pat, timeout)
}

func (r *Region) exists(ctx context.Context, op string, pat pattern.Pattern, timeout time.Duration) (*Match, error) {
	out, err := r.poll(ctx, op, pat, timeout, modeBest)
	if err != nil || !out.ok {
		return nil, err
	}
	r.lastMatch = out.matches[0]
	r.lastMatchTime = out.elapsed
	return r.lastMatch, nil
}

// Has is a single immediate check for target.
func (r *Region) Has(ctx context.Context, target any) (bool, error) {
	m, err := r.Exists(ctx, target, 0)
	return m != nil, err
}

// Find waits up to the region's auto-wait timeout for target.
func (r *Region) Find(ctx context.Context, target any) (*Match, error) {
	return r.wait(ctx, "region.find", target, AutoWait)
}

// Wait looks for target for up to timeout (AutoWait for the region
// default). When it does not appear the failure policy decides: Abort
// returns an error matching finderr.ErrFindFailed, Skip returns nil
// and Retry searches again after the repeat wait time.
func (r *Region) Wait(ctx context.Context, target any, timeout time.Duration) (*Match, error) {
	return r.wait(ctx, "region.wait", target, timeout)
}

func (r *Region) wait(ctx context.Context, op string, target any, timeout time.Duration) (*Match, error) {
	pat, ok, err := r.resolve(ctx, target)
	if err != nil || !ok {
		return nil, err
	}
	for {
		m, err := r.exists(ctx, op, pat, timeout)
		if err != nil || m != nil {
			return m, err
		}
		retry, err := r.findFailed(ctx, op, pat)
		if err != nil || !retry {
			return nil, err
		}
	}
}

// WaitVanish waits up to timeout for target to disappear and reports
// whether it did. The failure policy does not apply.
func (r *Region) WaitVanish(ctx context.Context, target any, timeout time.Duration) (bool, error) {
	pat, ok, err := r.resolve(ctx, target)
	if err != nil || !ok {
		return false, err
	}
	out, err := r.poll(ctx, "region.vanish", pat, timeout, modeVanish)
	return out.ok, err
}

// FindAll waits up to the auto-wait timeout for at least one match and
// returns every non-overlapping match, top to bottom then left to
// right. It returns an empty slice when nothing appeared; the failure
// policy does not apply.
func (r *Region) FindAll(ctx context.Context, target any) ([]*Match, error) {
	pat, ok, err := r.resolve(ctx, target)
	if err != nil || !ok {
		return nil, err
	}
	return r.findAll(ctx, "region.findall", pat)
}

func (r *Region) findAll(ctx context.Context, op string, pat pattern.Pattern) ([]*Match, error) {
	out, err := r.poll(ctx, op, pat, AutoWait, modeAll)
	if err != nil {
		return nil, err
	}
	if !out.ok {
		return []*Match{}, nil
	}
	r.lastMatches = out.matches
	r.lastMatchTime = out.elapsed
	return append([]*Match(nil), out.matches...), nil
}

// FindBest returns the highest scoring match of FindAll. An empty
// result goes through the failure policy like Find.
func (r *Region) FindBest(ctx context.Context, target any) (*Match, error) {
	pat, ok, err := r.resolve(ctx, target)
	if err != nil || !ok {
		return nil, err
	}
	for {
		all, err := r.findAll(ctx, "region.findbest", pat)
		if err != nil {
			return nil, err
		}
		if len(all) > 0 {
			best := all[0]
			for _, m := range all[1:] {
				if m.score > best.score {
					best = m
				}
			}
			r.lastMatch = best
			return best, nil
		}
		retry, err := r.findFailed(ctx, "region.findbest", pat)
		if err != nil || !retry {
			return nil, err
		}
	}
}

// FindAllByRow returns FindAll's matches sorted top to bottom.
func (r *Region) FindAllByRow(ctx context.Context, target any) ([]*Match, error) {
	all, err := r.FindAll(ctx, target)
	sort.SliceStable(all, func(i, j int) bool { return all[i].y < all[j].y })
	return all, err
}

// FindAllByColumn returns FindAll's matches sorted left to right.
func (r *Region) FindAllByColumn(ctx context.Context, target any) ([]*Match, error) {
	all, err := r.FindAll(ctx, target)
	sort.SliceStable(all, func(i, j int) bool { return all[i].x < all[j].x })
	return all, err
}

// Bitmap captures the visible part of the region. The caller owns the
// returned image.
func (r *Region) Bitmap() (*image.RGBA, error) {
	rect, err := r.searchRect()
	if err != nil {
		return nil, err
	}
	frame, err := r.env.Platform.CaptureBitmap(rect)
	if err != nil {
		return nil, fmt.Errorf("capture %v: %w", rect, err)
	}
	out := images.Clone(frame)
	capture.Release(r.env.Platform, frame)
	return out, nil
}

// SaveScreenCapture writes the region as a PNG into dir and returns the
// file path. An empty name picks a unique one; an empty dir uses the
// temp directory.
func (r *Region) SaveScreenCapture(dir, name string) (string, error) {
	img, err := r.Bitmap()
	if err != nil {
		return "", err
	}
	if dir == "" {
		dir = os.TempDir()
	}
	var path string
	if name == "" {
		f, err := os.CreateTemp(dir, "pixelfind-*.png")
		if err != nil {
			return "", err
		}
		path = f.Name()
		f.Close()
	} else {
		if filepath.Ext(name) == "" {
			name += ".png"
		}
		path = filepath.Join(dir, name)
	}
	if err := imaging.Save(img, path); err != nil {
		return "", fmt.Errorf("save capture %s: %w", path, err)
	}
	return path, nil
}
