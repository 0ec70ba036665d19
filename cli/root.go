// Package cli implements the pixelfind command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/soocke/pixelfind/app"
	"github.com/soocke/pixelfind/config"
	"github.com/soocke/pixelfind/debug"
	"github.com/soocke/pixelfind/domain/pattern"
	"github.com/soocke/pixelfind/domain/region"
)

// ErrNotFound is returned by commands whose target did not show up.
// main maps it to exit status 1 without printing it.
var ErrNotFound = errors.New("not found")

// Deps are the collaborators main injects.
type Deps struct {
	NewLogger func(level slog.Leveler) *slog.Logger
	// NewPrompter builds the dialog used for the prompt response. Nil
	// disables prompting.
	NewPrompter func(logger *slog.Logger) region.Prompter
}

type flags struct {
	configPath string
	haystacks  []string
	imagePaths []string
	screen     int
	rect       []int
	similarity float64
	timeout    time.Duration
	response   string
	debug      bool
	logLevel   string
}

// session is the state shared by one command invocation.
type session struct {
	cfg       *config.Config
	logger    *slog.Logger
	container *app.Container
	stop      context.CancelFunc
}

// RootCommand creates and returns the root command.
func RootCommand(deps Deps) *cobra.Command {
	f := &flags{}
	s := &session{}

	rootCmd := &cobra.Command{
		Use:           "pixelfind",
		Short:         "Find images on screen",
		Long:          "pixelfind locates reference images on the screen, waits for them to appear or vanish and watches regions for changes.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	setupFlags(rootCmd, f)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return s.open(cmd, f, deps)
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		return s.close()
	}

	rootCmd.AddCommand(
		findCommand(s, f),
		findAllCommand(s, f),
		existsCommand(s, f),
		waitCommand(s, f),
		vanishCommand(s, f),
		observeCommand(s, f),
		captureCommand(s, f),
		screensCommand(s),
	)
	return rootCmd
}

func setupFlags(cmd *cobra.Command, f *flags) {
	pf := cmd.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "Path to a JSON, YAML or TOML config file")
	pf.StringSliceVar(&f.haystacks, "haystack", nil, "Use image files as screens instead of the desktop (repeatable)")
	pf.StringSliceVarP(&f.imagePaths, "image-path", "i", nil, "Additional directories searched for pattern images")
	pf.IntVarP(&f.screen, "screen", "s", 0, "Screen id; -1 covers all screens")
	pf.IntSliceVarP(&f.rect, "region", "r", nil, "Search region as x,y,w,h (default: the whole screen)")
	pf.Float64Var(&f.similarity, "similarity", 0, "Minimum similarity in (0,1] (default from config)")
	pf.DurationVarP(&f.timeout, "timeout", "t", region.AutoWait, "Search timeout (default from config)")
	pf.StringVar(&f.response, "on-fail", "", "Response when a search fails: abort, skip, retry or prompt")
	pf.BoolVarP(&f.debug, "debug", "d", false, "Enable debug output and runtime loggers")
	pf.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn or error")
}

func (s *session) open(cmd *cobra.Command, f *flags, deps Deps) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	cfg.ImagePaths = append(cfg.ImagePaths, f.imagePaths...)
	if f.similarity > 0 {
		cfg.MinSimilarity = f.similarity
	}
	if f.response != "" {
		cfg.FindFailedResponse = f.response
	}
	if f.debug {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.cfg = cfg

	newLogger := deps.NewLogger
	if newLogger == nil {
		newLogger = func(level slog.Leveler) *slog.Logger {
			return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		}
	}
	s.logger = newLogger(parseLevel(cfg.LogLevel))

	ctx, cancel := context.WithCancel(cmd.Context())
	s.stop = cancel
	if cfg.Debug {
		debug.StartGoroutineLogger(ctx, 5*time.Second, s.logger)
		debug.StartMemLogger(ctx, 5*time.Second, s.logger)
	}

	var prompter region.Prompter
	if deps.NewPrompter != nil && cfg.FindFailedResponse == "prompt" {
		prompter = deps.NewPrompter(s.logger)
	}
	s.container, err = app.BuildContainer(ctx, cfg, s.logger, app.Options{
		Haystacks: f.haystacks,
		Prompter:  prompter,
	})
	return err
}

func (s *session) close() error {
	if s.stop != nil {
		s.stop()
	}
	if s.container == nil {
		return nil
	}
	return s.container.Close()
}

// region resolves the --screen and --region flags.
func (s *session) region(f *flags) (*region.Region, error) {
	if len(f.rect) == 0 {
		return s.container.Screen(f.screen)
	}
	if len(f.rect) != 4 {
		return nil, fmt.Errorf("--region needs x,y,w,h, got %d values", len(f.rect))
	}
	return s.container.Region(f.screen, f.rect[0], f.rect[1], f.rect[2], f.rect[3])
}

// pattern loads a named image, applying --similarity when set.
func (s *session) pattern(f *flags, name string) (pattern.Pattern, error) {
	p, err := s.container.Loader.Open(name)
	if err != nil {
		return pattern.Pattern{}, err
	}
	if f.similarity > 0 {
		p = p.Similar(f.similarity)
	}
	return p, nil
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}
