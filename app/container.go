package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/soocke/pixelfind/config"
	"github.com/soocke/pixelfind/domain/capture"
	"github.com/soocke/pixelfind/domain/metrics"
	"github.com/soocke/pixelfind/domain/pattern"
	"github.com/soocke/pixelfind/domain/region"
)

// Options selects the collaborators that differ between runs.
type Options struct {
	// Haystacks replaces the desktop with screens read from image files.
	Haystacks []string
	// Prompter answers PROMPT responses. Nil makes PROMPT abort.
	Prompter region.Prompter
}

// Container assembles the platform, pattern loader, metrics and the
// region environment built from them.
type Container struct {
	Config   *config.Config
	Logger   *slog.Logger
	Platform *capture.Instrumented
	Loader   *pattern.Loader
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Env      *region.Env
}

// BuildContainer constructs all components. When cfg.WatchImagePaths is
// set the loader watches its directories until ctx is done or Close.
func BuildContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*Container, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &Container{Config: cfg, Logger: logger}

	c.Registry = prometheus.NewRegistry()
	m, err := metrics.NewMetrics(c.Registry)
	if err != nil {
		return nil, err
	}
	c.Metrics = m

	var base capture.Platform
	if len(opts.Haystacks) > 0 {
		p, err := capture.OpenImagePlatform(opts.Haystacks...)
		if err != nil {
			return nil, err
		}
		base = p
		logger.Info("using image screens", "files", opts.Haystacks)
	} else {
		base = capture.NewScreenPlatform(logger)
	}
	if base.ScreenCount() == 0 {
		return nil, errors.New("app: no screens available")
	}
	c.Platform = capture.WithStats(base, logger, m.ObserveCapture)

	c.Loader, err = pattern.NewLoader(pattern.LoaderOptions{
		ImagePaths:    cfg.ImagePaths,
		BundlePath:    cfg.BundlePath,
		CacheSize:     cfg.ImageCacheSize,
		MinSimilarity: cfg.MinSimilarity,
	}, logger)
	if err != nil {
		return nil, err
	}
	if cfg.WatchImagePaths {
		if err := c.Loader.Watch(ctx); err != nil {
			logger.Warn("image path watch disabled", "error", err)
		}
	}

	c.Env = &region.Env{
		Platform: c.Platform,
		Patterns: c.Loader,
		Config:   cfg,
		Logger:   logger,
		Prompter: opts.Prompter,
		Metrics:  m,
	}
	return c, nil
}

// Screen returns the region of screen id; a negative id covers all
// screens.
func (c *Container) Screen(id int) (*region.Region, error) {
	return region.FromScreenID(c.Env, id)
}

// Region returns the region (x,y,w,h), or the screen when w or h is not
// positive.
func (c *Container) Region(screen, x, y, w, h int) (*region.Region, error) {
	if w <= 0 || h <= 0 {
		return c.Screen(screen)
	}
	r := region.FromRect(c.Env, x, y, w, h)
	if !r.Visible() {
		return nil, fmt.Errorf("app: region %s is not on any screen", r)
	}
	return r, nil
}

// Close stops the loader's watcher.
func (c *Container) Close() error {
	if c.Loader == nil {
		return nil
	}
	return c.Loader.Close()
}
