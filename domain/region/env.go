package region

import (
	"context"
	"log/slog"
	"time"

	"github.com/soocke/pixelfind/config"
	"github.com/soocke/pixelfind/domain/capture"
	"github.com/soocke/pixelfind/domain/matching"
	"github.com/soocke/pixelfind/domain/pattern"
)

// PatternSource turns a file name into a Pattern.
type PatternSource interface {
	Open(name string) (pattern.Pattern, error)
}

// Prompter asks a human how to continue after a failed search.
type Prompter interface {
	Prompt(ctx context.Context, message string) (Response, error)
}

// Recorder receives search instrumentation.
type Recorder interface {
	ObserveSearch(op, result string, attempts int, elapsed time.Duration)
}

// Env carries the collaborators shared by every region. It is read-only
// once regions have been created from it.
type Env struct {
	Platform capture.Platform
	Patterns PatternSource // optional; string targets fail without it
	Config   *config.Config
	Logger   *slog.Logger
	Prompter Prompter // optional; PROMPT degrades to ABORT without it
	Metrics  Recorder // optional
}

// NewEnv returns an Env with default config and a discarding logger.
func NewEnv(p capture.Platform) *Env {
	return (&Env{Platform: p}).normalized()
}

func (e *Env) normalized() *Env {
	if e.Config != nil && e.Logger != nil {
		return e
	}
	cp := *e
	if cp.Config == nil {
		cp.Config = config.DefaultConfig()
	}
	if cp.Logger == nil {
		cp.Logger = slog.New(slog.DiscardHandler)
	}
	return &cp
}

func (e *Env) matcherOptions() matching.Options {
	return matching.Options{
		Levels:         e.Config.PyramidLevels,
		MinPyramidSide: e.Config.PyramidMinSide,
		PyramidRelax:   e.Config.PyramidRelax,
		FindAllLimit:   e.Config.FindAllLimit,
	}
}

func (e *Env) record(op, result string, attempts int, elapsed time.Duration) {
	if e.Metrics != nil {
		e.Metrics.ObserveSearch(op, result, attempts, elapsed)
	}
}
