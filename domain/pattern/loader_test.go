package pattern

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soocke/pixelfind/domain/finderr"
)

func writeImage(t *testing.T, path string, w, h int, c color.Color) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, imaging.Save(imaging.New(w, h, c), path))
}

func TestLoader_ResolvesAcrossSearchPath(t *testing.T) {
	dir := t.TempDir()
	bundle := filepath.Join(dir, "bundle")
	extra := filepath.Join(dir, "extra")
	writeImage(t, filepath.Join(extra, "ok.png"), 4, 4, color.White)
	writeImage(t, filepath.Join(bundle, "ok.png"), 6, 6, color.White)
	writeImage(t, filepath.Join(extra, "only.png"), 5, 5, color.Black)

	l, err := NewLoader(LoaderOptions{ImagePaths: []string{extra}, BundlePath: bundle, MinSimilarity: 0.8}, nil)
	require.NoError(t, err)

	p, err := l.Open("ok.png")
	require.NoError(t, err)
	assert.Equal(t, image.Pt(6, 6), p.Size(), "bundle wins over image paths")
	assert.Equal(t, 0.8, p.Similarity())
	assert.False(t, p.ImageSourced())

	p, err = l.Open("only")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(extra, "only.png"), p.Path())

	abs := filepath.Join(extra, "only.png")
	p, err = l.Open(abs)
	require.NoError(t, err)
	assert.Equal(t, abs, p.Path())
}

func TestLoader_BundleWinsOverWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	bundle := filepath.Join(dir, "bundle")
	wd := filepath.Join(dir, "wd")
	extra := filepath.Join(dir, "extra")
	writeImage(t, filepath.Join(wd, "btn.png"), 4, 4, color.White)
	writeImage(t, filepath.Join(bundle, "btn.png"), 6, 6, color.White)
	writeImage(t, filepath.Join(wd, "local.png"), 3, 3, color.White)
	writeImage(t, filepath.Join(extra, "local.png"), 7, 7, color.White)
	t.Chdir(wd)

	l, err := NewLoader(LoaderOptions{ImagePaths: []string{extra}, BundlePath: bundle}, nil)
	require.NoError(t, err)

	p, err := l.Open("btn.png")
	require.NoError(t, err)
	assert.Equal(t, image.Pt(6, 6), p.Size())

	p, err = l.Open("local")
	require.NoError(t, err)
	assert.Equal(t, image.Pt(3, 3), p.Size(), "working directory wins over image paths")
}

func TestLoader_MissingImage(t *testing.T) {
	l, err := NewLoader(LoaderOptions{ImagePaths: []string{t.TempDir()}}, nil)
	require.NoError(t, err)

	_, err = l.Open("nope.png")
	require.ErrorIs(t, err, finderr.ErrImageMissing)
	assert.NotErrorIs(t, err, finderr.ErrFindFailed)

	_, err = l.Open("")
	assert.ErrorIs(t, err, finderr.ErrImageMissing)
}

func TestLoader_UndecodableFileIsMissing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.png"), []byte("not a png"), 0o644))
	l, err := NewLoader(LoaderOptions{ImagePaths: []string{dir}}, nil)
	require.NoError(t, err)
	_, err = l.Open("bad.png")
	assert.ErrorIs(t, err, finderr.ErrImageMissing)
}

func TestLoader_CachesDecodedImages(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")
	writeImage(t, path, 3, 3, color.White)
	l, err := NewLoader(LoaderOptions{ImagePaths: []string{dir}, CacheSize: 2}, nil)
	require.NoError(t, err)

	first, err := l.Open("a.png")
	require.NoError(t, err)
	assert.True(t, l.Cached(path))

	writeImage(t, path, 9, 9, color.White)
	second, err := l.Open("a.png")
	require.NoError(t, err)
	assert.Equal(t, first.Size(), second.Size(), "served from cache")

	l.Invalidate(path)
	third, err := l.Open("a.png")
	require.NoError(t, err)
	assert.Equal(t, image.Pt(9, 9), third.Size())
}

func TestLoader_WatchEvictsChangedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "w.png")
	writeImage(t, path, 3, 3, color.White)
	l, err := NewLoader(LoaderOptions{ImagePaths: []string{dir}}, nil)
	require.NoError(t, err)
	_, err = l.Open("w.png")
	require.NoError(t, err)
	resolved, err := l.Resolve("w.png")
	require.NoError(t, err)

	require.NoError(t, l.Watch(context.Background()))
	defer l.Close()

	writeImage(t, path, 7, 7, color.White)
	require.Eventually(t, func() bool { return !l.Cached(resolved) }, 3*time.Second, 20*time.Millisecond)

	p, err := l.Open("w.png")
	require.NoError(t, err)
	assert.Equal(t, image.Pt(7, 7), p.Size())
}

func TestLoader_WatchWithoutDirectoriesFails(t *testing.T) {
	l, err := NewLoader(LoaderOptions{ImagePaths: []string{filepath.Join(t.TempDir(), "missing")}}, nil)
	require.NoError(t, err)
	assert.Error(t, l.Watch(context.Background()))
	assert.NoError(t, l.Close())
}

func TestLoader_AddImagePath(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "late.png"), 2, 2, color.Black)
	l, err := NewLoader(LoaderOptions{}, nil)
	require.NoError(t, err)
	_, err = l.Open("late.png")
	require.ErrorIs(t, err, finderr.ErrImageMissing)

	l.AddImagePath(dir)
	assert.Equal(t, []string{dir}, l.ImagePaths())
	_, err = l.Open("late.png")
	assert.NoError(t, err)
}
