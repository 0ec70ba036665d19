package pattern

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/fsnotify/fsnotify"
	lru "github.com/hashicorp/golang-lru/v2"
	_ "golang.org/x/image/webp" // registers WEBP with image.Decode

	"github.com/soocke/pixelfind/domain/finderr"
)

const watchDebounce = 100 * time.Millisecond

// LoaderOptions configures path resolution and caching.
type LoaderOptions struct {
	// ImagePaths are searched in order after the bundle path.
	ImagePaths []string
	// BundlePath is searched first for relative names.
	BundlePath string
	// CacheSize bounds the number of decoded images kept in memory.
	CacheSize int
	// MinSimilarity is the similarity given to loaded patterns.
	MinSimilarity float64
}

// Loader resolves pattern file names against a search path and caches
// decoded images. Safe for concurrent use.
type Loader struct {
	logger *slog.Logger
	cache  *lru.Cache[string, image.Image]

	mu         sync.RWMutex
	paths      []string
	bundle     string
	similarity float64

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewLoader returns a Loader. logger may be nil.
func NewLoader(opts LoaderOptions, logger *slog.Logger) (*Loader, error) {
	size := opts.CacheSize
	if size <= 0 {
		size = 64
	}
	cache, err := lru.New[string, image.Image](size)
	if err != nil {
		return nil, fmt.Errorf("pattern: cache: %w", err)
	}
	sim := opts.MinSimilarity
	if sim <= 0 || sim > 1 {
		sim = DefaultSimilarity
	}
	return &Loader{
		logger:     logger,
		cache:      cache,
		paths:      append([]string(nil), opts.ImagePaths...),
		bundle:     opts.BundlePath,
		similarity: sim,
	}, nil
}

// AddImagePath appends dir to the search path.
func (l *Loader) AddImagePath(dir string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paths = append(l.paths, dir)
}

// ImagePaths returns a copy of the search path.
func (l *Loader) ImagePaths() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.paths...)
}

// SetBundlePath changes the directory searched first.
func (l *Loader) SetBundlePath(dir string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bundle = dir
}

// Resolve returns the first existing file for name. Names without an
// extension are tried with ".png". An absolute name is only checked as
// given. A relative name is looked up in the bundle path, the working
// directory, then every image path.
func (l *Loader) Resolve(name string) (string, error) {
	if name == "" {
		return "", finderr.New(finderr.KindImageMissing, "pattern.resolve", name)
	}
	candidates := []string{name}
	if filepath.Ext(name) == "" {
		candidates = append(candidates, name+".png")
	}
	if filepath.IsAbs(name) {
		for _, c := range candidates {
			if isFile(c) {
				return filepath.Clean(c), nil
			}
		}
		return "", finderr.Wrap(finderr.KindImageMissing, "pattern.resolve", name, os.ErrNotExist)
	}

	var dirs []string
	l.mu.RLock()
	if l.bundle != "" {
		dirs = append(dirs, l.bundle)
	}
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	dirs = append(dirs, l.paths...)
	l.mu.RUnlock()

	for _, dir := range dirs {
		for _, c := range candidates {
			if p := filepath.Join(dir, c); isFile(p) {
				return filepath.Abs(p)
			}
		}
	}
	return "", finderr.Wrap(finderr.KindImageMissing, "pattern.resolve", name, os.ErrNotExist)
}

func isFile(p string) bool {
	st, err := os.Stat(p)
	return err == nil && st.Mode().IsRegular()
}

// Image resolves and decodes name, serving repeated requests from cache.
func (l *Loader) Image(name string) (image.Image, string, error) {
	path, err := l.Resolve(name)
	if err != nil {
		return nil, "", err
	}
	if img, ok := l.cache.Get(path); ok {
		return img, path, nil
	}
	img, err := imaging.Open(path)
	if err != nil {
		return nil, "", finderr.Wrap(finderr.KindImageMissing, "pattern.decode", name, err)
	}
	if img.Bounds().Empty() {
		return nil, "", finderr.Invalid("pattern.decode", "%s has no pixels", path)
	}
	l.cache.Add(path, img)
	if l.logger != nil {
		l.logger.Debug("pattern loaded", "name", name, "path", path, "size", img.Bounds().Size().String())
	}
	return img, path, nil
}

// Open returns a pattern for name with the loader's default similarity.
func (l *Loader) Open(name string) (Pattern, error) {
	img, path, err := l.Image(name)
	if err != nil {
		return Pattern{}, err
	}
	l.mu.RLock()
	sim := l.similarity
	l.mu.RUnlock()
	return Pattern{img: img, path: path, similarity: sim}, nil
}

// Cached reports whether the resolved path is in the image cache.
func (l *Loader) Cached(path string) bool { return l.cache.Contains(path) }

// Invalidate drops a cached image so the next Open decodes it again.
func (l *Loader) Invalidate(path string) { l.cache.Remove(path) }

// Watch evicts cached images whose files change inside the bundle path or
// any image path. It returns once the watcher is installed; the watch ends
// with ctx or Close.
func (l *Loader) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("pattern: create watcher: %w", err)
	}
	l.mu.RLock()
	dirs := append([]string(nil), l.paths...)
	if l.bundle != "" {
		dirs = append(dirs, l.bundle)
	}
	l.mu.RUnlock()
	added := 0
	for _, dir := range dirs {
		if err := w.Add(dir); err != nil {
			if l.logger != nil {
				l.logger.Warn("pattern watch skipped", "dir", dir, "error", err)
			}
			continue
		}
		added++
	}
	if added == 0 {
		w.Close()
		return errors.New("pattern: no image directory could be watched")
	}
	ctx, cancel := context.WithCancel(ctx)
	l.watcher, l.cancel, l.done = w, cancel, make(chan struct{})
	go l.watchLoop(ctx, w, l.done)
	return nil
}

func (l *Loader) watchLoop(ctx context.Context, w *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	defer w.Close()
	pending := map[string]struct{}{}
	var debounce *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil {
				continue
			}
			pending[abs] = struct{}{}
			if debounce == nil {
				debounce = time.NewTimer(watchDebounce)
			} else {
				debounce.Reset(watchDebounce)
			}
			fire = debounce.C
		case <-fire:
			for p := range pending {
				if l.cache.Remove(p) && l.logger != nil {
					l.logger.Info("pattern image changed", "path", p)
				}
			}
			clear(pending)
			fire = nil
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			if l.logger != nil {
				l.logger.Error("pattern watcher", "error", err)
			}
		}
	}
}

// Close stops a running watch.
func (l *Loader) Close() error {
	if l.cancel == nil {
		return nil
	}
	l.cancel()
	<-l.done
	l.cancel = nil
	return nil
}
