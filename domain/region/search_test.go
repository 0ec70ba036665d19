package region

import (
	"context"
	"image"
	"image/draw"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soocke/pixelfind/domain/capture"
	"github.com/soocke/pixelfind/domain/finderr"
	"github.com/soocke/pixelfind/domain/pattern"
)

func texture(w, h, cell int, seed uint64) *image.NRGBA {
	r := rand.New(rand.NewPCG(seed, seed*7+1))
	small := image.NewGray(image.Rect(0, 0, w/cell+2, h/cell+2))
	for i := range small.Pix {
		small.Pix[i] = uint8(r.IntN(256))
	}
	return imaging.Resize(small, w, h, imaging.Linear)
}

func withNeedle(bg, needle image.Image, at ...image.Point) *image.NRGBA {
	out := imaging.Clone(bg)
	for _, p := range at {
		draw.Draw(out, needle.Bounds().Sub(needle.Bounds().Min).Add(p), needle, needle.Bounds().Min, draw.Src)
	}
	return out
}

type fixture struct {
	platform *capture.ImagePlatform
	env      *Env
	needle   pattern.Pattern
	bg       *image.NRGBA
	scene    *image.NRGBA
}

// newFixture builds two screens. The needle sits at (70,50) on screen 1,
// which starts at x=200.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	bg := texture(200, 150, 8, 4)
	needleImg := texture(40, 40, 4, 99)
	scene := withNeedle(bg, needleImg, image.Pt(70, 50))
	p := capture.NewImagePlatform(bg, scene)
	return &fixture{
		platform: p,
		env:      NewEnv(p),
		needle:   pattern.FromImage(needleImg).Similar(0.9),
		bg:       bg,
		scene:    scene,
	}
}

func (f *fixture) screen(t *testing.T, id int) *Region {
	t.Helper()
	r, err := FromScreenID(f.env, id)
	require.NoError(t, err)
	return r
}

func TestExists_FindsInAbsoluteCoordinates(t *testing.T) {
	f := newFixture(t)
	r := f.screen(t, -1)

	m, err := r.Exists(context.Background(), f.needle, 0)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, image.Rect(270, 50, 310, 90), m.Rect())
	assert.GreaterOrEqual(t, m.Score(), 0.99)
	assert.Same(t, m, r.LastMatch())
	assert.Equal(t, image.Pt(290, 70), m.Target())
}

func TestExists_FailureLeavesLastMatch(t *testing.T) {
	f := newFixture(t)
	r := f.screen(t, 1)
	m, err := r.Exists(context.Background(), f.needle, 0)
	require.NoError(t, err)
	require.NotNil(t, m)

	empty := f.screen(t, 0)
	got, err := empty.Exists(context.Background(), f.needle, 0)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Nil(t, empty.LastMatch())
	assert.Same(t, m, r.LastMatch())
}

func TestExists_TargetOffset(t *testing.T) {
	f := newFixture(t)
	m, err := f.screen(t, 1).Exists(context.Background(), f.needle.TargetOffset(-20, 5), 0)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, image.Pt(270, 75), m.Target())
	assert.Equal(t, image.Pt(-20, 5), m.TargetOffset())
}

func TestExists_ImageTargetUsesMinSimilarity(t *testing.T) {
	f := newFixture(t)
	crop := imaging.Crop(f.scene, image.Rect(70, 50, 110, 90))
	m, err := f.screen(t, 1).Exists(context.Background(), crop, 0)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, image.Pt(270, 50), m.TopLeft())
}

func TestExists_CanceledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.screen(t, 0).Exists(ctx, f.needle, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, f.platform.Captures(), "the first attempt always runs")
}

func TestHas(t *testing.T) {
	f := newFixture(t)
	ok, err := f.screen(t, 1).Has(context.Background(), f.needle)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.screen(t, 0).Has(context.Background(), f.needle)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWait_TimesOutWithFindFailed(t *testing.T) {
	f := newFixture(t)
	r := f.screen(t, 0).SetWaitScanRate(20)

	start := time.Now()
	m, err := r.Wait(context.Background(), f.needle, 100*time.Millisecond)
	elapsed := time.Since(start)

	assert.Nil(t, m)
	assert.ErrorIs(t, err, finderr.ErrFindFailed)
	assert.Equal(t, finderr.KindFindFailed, finderr.KindOf(err))
	assert.Less(t, elapsed, time.Second)
	assert.Greater(t, f.platform.Captures(), 1)
}

func TestWait_SlowScanRateWaitsOutTimeout(t *testing.T) {
	f := newFixture(t)
	r := f.screen(t, 0).SetWaitScanRate(1)

	start := time.Now()
	m, err := r.Wait(context.Background(), f.needle, 150*time.Millisecond)
	elapsed := time.Since(start)
	assert.Nil(t, m)
	assert.ErrorIs(t, err, finderr.ErrFindFailed)
	assert.GreaterOrEqual(t, elapsed, 140*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
	assert.Equal(t, 1, f.platform.Captures())

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_, err = r.Wait(ctx, f.needle, time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, finderr.ErrFindFailed)
}

func TestWait_AppearsDuringPolling(t *testing.T) {
	f := newFixture(t)
	r := f.screen(t, 0).SetWaitScanRate(50)

	go func() {
		time.Sleep(60 * time.Millisecond)
		_ = f.platform.SetScreen(0, f.scene)
	}()
	m, err := r.Wait(context.Background(), f.needle, 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, image.Pt(70, 50), m.TopLeft())
}

func TestFind_Skip(t *testing.T) {
	f := newFixture(t)
	r := f.screen(t, 0).SetAutoWaitTimeout(0).SetThrowException(false)
	m, err := r.Find(context.Background(), f.needle)
	assert.NoError(t, err)
	assert.Nil(t, m)
}

func TestFind_HandlerRetry(t *testing.T) {
	f := newFixture(t)
	var events []Event
	r := f.screen(t, 0).SetAutoWaitTimeout(0).SetRepeatWaitTime(0)
	r.SetFindFailedHandler(func(ev Event) Response {
		events = append(events, ev)
		if len(events) > 1 {
			return Skip
		}
		require.NoError(t, f.platform.SetScreen(0, f.scene))
		return Retry
	})

	m, err := r.Find(context.Background(), f.needle)
	require.NoError(t, err)
	require.Len(t, events, 1, "the retry finds the needle")
	require.NotNil(t, m)
	assert.Equal(t, image.Pt(70, 50), m.TopLeft())
	assert.Equal(t, EventFindFailed, events[0].Type)
	assert.Same(t, r, events[0].Region)
	require.NotNil(t, events[0].Pattern)
}

func TestFind_HandlerDefaultUsesRegionResponse(t *testing.T) {
	f := newFixture(t)
	r := f.screen(t, 0).SetAutoWaitTimeout(0).SetFindFailedResponse(Skip)
	calls := 0
	r.SetFindFailedHandler(func(Event) Response { calls++; return Default })

	m, err := r.Find(context.Background(), f.needle)
	assert.NoError(t, err)
	assert.Nil(t, m)
	assert.Equal(t, 1, calls)
}

type fakePrompter struct {
	answer   Response
	messages []string
}

func (p *fakePrompter) Prompt(_ context.Context, msg string) (Response, error) {
	p.messages = append(p.messages, msg)
	return p.answer, nil
}

func TestFind_Prompt(t *testing.T) {
	f := newFixture(t)
	pr := &fakePrompter{answer: Skip}
	f.env.Prompter = pr
	r := f.screen(t, 0).SetAutoWaitTimeout(0).SetFindFailedResponse(Prompt)

	m, err := r.Find(context.Background(), f.needle)
	assert.NoError(t, err)
	assert.Nil(t, m)
	require.Len(t, pr.messages, 1)
	assert.Contains(t, pr.messages[0], "Could not find")
}

func TestFind_PromptWithoutPrompterAborts(t *testing.T) {
	f := newFixture(t)
	r := f.screen(t, 0).SetAutoWaitTimeout(0).SetFindFailedResponse(Prompt)
	_, err := r.Find(context.Background(), f.needle)
	assert.ErrorIs(t, err, finderr.ErrFindFailed)
}

func TestFind_RegionOutsideScreens(t *testing.T) {
	f := newFixture(t)
	_, err := FromRect(f.env, 1000, 1000, 50, 50).Find(context.Background(), f.needle)
	assert.ErrorIs(t, err, finderr.ErrInvalidInput)
	assert.Zero(t, f.platform.Captures())
}

func TestFind_NeedleLargerThanRegion(t *testing.T) {
	f := newFixture(t)
	_, err := FromRect(f.env, 0, 0, 20, 20).Find(context.Background(), f.needle)
	assert.ErrorIs(t, err, finderr.ErrInvalidInput)
}

func TestFind_ImageMissing(t *testing.T) {
	f := newFixture(t)
	r := f.screen(t, 0)

	_, err := r.Find(context.Background(), "nope.png")
	assert.ErrorIs(t, err, finderr.ErrImageMissing)

	var seen []Event
	r.SetImageMissingHandler(func(ev Event) Response { seen = append(seen, ev); return Skip })
	m, err := r.Find(context.Background(), "nope.png")
	assert.NoError(t, err)
	assert.Nil(t, m)
	require.Len(t, seen, 1)
	assert.Equal(t, EventImageMissing, seen[0].Type)
	assert.Equal(t, "nope.png", seen[0].Target)
	assert.Zero(t, f.platform.Captures())
}

func TestFind_LoadsNamedPattern(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	require.NoError(t, imaging.Save(f.needle.Image(), filepath.Join(dir, "needle.png")))
	loader, err := pattern.NewLoader(pattern.LoaderOptions{ImagePaths: []string{dir}}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = loader.Close() })
	f.env.Patterns = loader

	m, err := f.screen(t, 1).Find(context.Background(), "needle")
	require.NoError(t, err)
	assert.Equal(t, image.Pt(270, 50), m.TopLeft())
}

func TestFind_UnsupportedTarget(t *testing.T) {
	f := newFixture(t)
	_, err := f.screen(t, 0).Find(context.Background(), 42)
	assert.ErrorIs(t, err, finderr.ErrInvalidInput)
}

func TestWaitVanish(t *testing.T) {
	f := newFixture(t)

	gone, err := f.screen(t, 0).WaitVanish(context.Background(), f.needle, 0)
	require.NoError(t, err)
	assert.True(t, gone)

	r := f.screen(t, 1).SetWaitScanRate(20)
	gone, err = r.WaitVanish(context.Background(), f.needle, 100*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, gone)

	go func() {
		time.Sleep(60 * time.Millisecond)
		_ = f.platform.SetScreen(1, f.bg)
	}()
	gone, err = r.WaitVanish(context.Background(), f.needle, 2*time.Second)
	require.NoError(t, err)
	assert.True(t, gone)
}

func TestFindAll(t *testing.T) {
	bg := texture(300, 200, 8, 4)
	needleImg := texture(30, 30, 4, 99)
	scene := withNeedle(bg, needleImg, image.Pt(200, 20), image.Pt(10, 120), image.Pt(100, 20))
	env := NewEnv(capture.NewImagePlatform(scene))
	r, err := FromScreenID(env, 0)
	require.NoError(t, err)
	needle := pattern.FromImage(needleImg).Similar(0.9)

	all, err := r.FindAll(context.Background(), needle)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, image.Pt(100, 20), all[0].TopLeft())
	assert.Equal(t, image.Pt(200, 20), all[1].TopLeft())
	assert.Equal(t, image.Pt(10, 120), all[2].TopLeft())
	assert.Len(t, r.LastMatches(), 3)

	byCol, err := r.FindAllByColumn(context.Background(), needle)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(10, 120), byCol[0].TopLeft())

	byRow, err := r.FindAllByRow(context.Background(), needle)
	require.NoError(t, err)
	assert.Equal(t, 20, byRow[0].Y())
	assert.Equal(t, 120, byRow[2].Y())

	best, err := r.FindBest(context.Background(), needle)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, best.Score(), 0.99)
	assert.Same(t, best, r.LastMatch())
}

func TestFindAll_NoneIsEmpty(t *testing.T) {
	f := newFixture(t)
	r := f.screen(t, 0).SetAutoWaitTimeout(0)
	all, err := r.FindAll(context.Background(), f.needle)
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)

	_, err = r.FindBest(context.Background(), f.needle)
	assert.ErrorIs(t, err, finderr.ErrFindFailed)
}

func TestMatch_SearchInside(t *testing.T) {
	f := newFixture(t)
	m, err := f.screen(t, 1).Find(context.Background(), f.needle)
	require.NoError(t, err)
	inner := pattern.FromImage(imaging.Crop(f.scene, image.Rect(80, 60, 100, 80))).Similar(0.9)
	got, err := m.Find(context.Background(), inner)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(280, 60), got.TopLeft())
}

func TestBitmapAndSaveScreenCapture(t *testing.T) {
	f := newFixture(t)
	r := FromRect(f.env, 180, 10, 40, 20)

	img, err := r.Bitmap()
	require.NoError(t, err)
	assert.Equal(t, image.Rect(180, 10, 220, 30), img.Bounds())

	dir := t.TempDir()
	path, err := r.SaveScreenCapture(dir, "shot")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "shot.png"), path)
	saved, err := imaging.Open(path)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(40, 20), saved.Bounds().Size())

	tmp, err := r.SaveScreenCapture(dir, "")
	require.NoError(t, err)
	_, err = os.Stat(tmp)
	assert.NoError(t, err)
}

type searchLog struct {
	ops     []string
	results []string
}

func (s *searchLog) ObserveSearch(op, result string, _ int, _ time.Duration) {
	s.ops = append(s.ops, op)
	s.results = append(s.results, result)
}

func TestRecorder(t *testing.T) {
	f := newFixture(t)
	rec := &searchLog{}
	f.env.Metrics = rec
	_, _ = f.screen(t, 1).Exists(context.Background(), f.needle, 0)
	_, _ = f.screen(t, 0).Exists(context.Background(), f.needle, 0)
	assert.Equal(t, []string{"region.exists", "region.exists"}, rec.ops)
	assert.Equal(t, []string{"found", "not_found"}, rec.results)
}
