package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/soocke/pixelfind/domain/capture"
	"github.com/soocke/pixelfind/domain/observe"
	"github.com/soocke/pixelfind/domain/region"
)

func printMatch(w io.Writer, m *region.Match) {
	t := m.Target()
	fmt.Fprintf(w, "%d,%d %dx%d score=%.3f target=%d,%d\n", m.X(), m.Y(), m.W(), m.H(), m.Score(), t.X, t.Y)
}

func elapsed(d time.Duration) string {
	return humanize.SIWithDigits(d.Seconds(), 1, "s")
}

func findCommand(s *session, f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "find <image>",
		Short: "Find an image and print the best match",
		Long:  "Find waits up to --timeout for the image. When it never shows the --on-fail response decides what happens.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := s.region(f)
			if err != nil {
				return err
			}
			p, err := s.pattern(f, args[0])
			if err != nil {
				return err
			}
			m, err := r.Wait(cmd.Context(), p, f.timeout)
			if err != nil {
				return err
			}
			if m == nil {
				return ErrNotFound
			}
			printMatch(cmd.OutOrStdout(), m)
			s.logger.Info("match", "match", m.String(), "elapsed", elapsed(r.LastMatchTime()))
			return nil
		},
	}
}

func findAllCommand(s *session, f *flags) *cobra.Command {
	var byColumn bool
	cmd := &cobra.Command{
		Use:   "findall <image>",
		Short: "Print every non-overlapping match of an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := s.region(f)
			if err != nil {
				return err
			}
			if f.timeout >= 0 {
				r.SetAutoWaitTimeout(f.timeout)
			}
			p, err := s.pattern(f, args[0])
			if err != nil {
				return err
			}
			find := r.FindAllByRow
			if byColumn {
				find = r.FindAllByColumn
			}
			all, err := find(cmd.Context(), p)
			if err != nil {
				return err
			}
			if len(all) == 0 {
				return ErrNotFound
			}
			for _, m := range all {
				printMatch(cmd.OutOrStdout(), m)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s matches in %s\n", humanize.Comma(int64(len(all))), elapsed(r.LastMatchTime()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&byColumn, "by-column", false, "Order matches left to right instead of top to bottom")
	return cmd
}

func existsCommand(s *session, f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "exists <image>",
		Short: "Report whether an image is visible",
		Long:  "Exists never applies the --on-fail response; a missing image only sets exit status 1.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := s.region(f)
			if err != nil {
				return err
			}
			p, err := s.pattern(f, args[0])
			if err != nil {
				return err
			}
			timeout := f.timeout
			if timeout < 0 {
				timeout = 0
			}
			m, err := r.Exists(cmd.Context(), p, timeout)
			if err != nil {
				return err
			}
			if m == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "not found")
				return ErrNotFound
			}
			printMatch(cmd.OutOrStdout(), m)
			return nil
		},
	}
}

func waitCommand(s *session, f *flags) *cobra.Command {
	cmd := findCommand(s, f)
	cmd.Use = "wait <image>"
	cmd.Short = "Wait for an image to appear"
	cmd.Long = "Wait is find with an explicit --timeout."
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if f.timeout < 0 {
			return errors.New("wait needs --timeout")
		}
		return nil
	}
	return cmd
}

func vanishCommand(s *session, f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "vanish <image>",
		Short: "Wait for an image to disappear",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := s.region(f)
			if err != nil {
				return err
			}
			p, err := s.pattern(f, args[0])
			if err != nil {
				return err
			}
			gone, err := r.WaitVanish(cmd.Context(), p, f.timeout)
			if err != nil {
				return err
			}
			if !gone {
				fmt.Fprintln(cmd.OutOrStdout(), "still visible")
				return ErrNotFound
			}
			fmt.Fprintln(cmd.OutOrStdout(), "vanished")
			return nil
		},
	}
}

func observeCommand(s *session, f *flags) *cobra.Command {
	var (
		appear, vanish []string
		change         bool
		minChanged     int
		duration       time.Duration
		metricsAddr    string
	)
	cmd := &cobra.Command{
		Use:   "observe",
		Short: "Watch a region and print events as they fire",
		Long:  "Observe registers appear, vanish and change events and prints each one when it fires. Events are one-shot.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := s.region(f)
			if err != nil {
				return err
			}
			o := observe.New(r)
			for _, name := range appear {
				p, err := s.pattern(f, name)
				if err != nil {
					return err
				}
				if _, err := o.OnAppear(p, nil); err != nil {
					return err
				}
			}
			for _, name := range vanish {
				p, err := s.pattern(f, name)
				if err != nil {
					return err
				}
				if _, err := o.OnVanish(p, nil); err != nil {
					return err
				}
			}
			if change {
				if _, err := o.OnChange(minChanged, nil); err != nil {
					return err
				}
			}
			if !o.HasObserver() {
				return errors.New("observe needs at least one of --appear, --vanish or --change")
			}
			return runObserver(cmd.Context(), cmd.OutOrStdout(), s, o, duration, metricsAddr)
		},
	}
	fl := cmd.Flags()
	fl.StringSliceVar(&appear, "appear", nil, "Image whose appearance fires an event (repeatable)")
	fl.StringSliceVar(&vanish, "vanish", nil, "Image whose disappearance fires an event (repeatable)")
	fl.BoolVar(&change, "change", false, "Fire when the region's pixels change")
	fl.IntVar(&minChanged, "min-changed", 0, "Changed pixels needed for a change event (default from config)")
	fl.DurationVar(&duration, "duration", 0, "Stop after this long (default: until interrupted)")
	fl.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while observing")
	return cmd
}

// runObserver runs o on a background worker, prints its events and
// optionally serves metrics until the worker ends or ctx is done.
func runObserver(ctx context.Context, out io.Writer, s *session, o *observe.Observer, d time.Duration, metricsAddr string) error {
	g, gctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(gctx)
	defer cancel()

	b, ok := o.ObserveInBackground(ctx, d)
	if !ok {
		return errors.New("observer already running")
	}
	g.Go(func() error {
		defer cancel()
		for ev := range b.Events() {
			fmt.Fprintf(out, "%s %s\n", ev.Time.Format(time.RFC3339), ev)
		}
		return b.Wait()
	})
	g.Go(func() error {
		<-ctx.Done()
		b.Stop()
		return nil
	})
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.container.Metrics.Handler())
		srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			s.logger.Info("serving metrics", "addr", metricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}

func captureCommand(s *session, f *flags) *cobra.Command {
	var dir, name string
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Save the region as a PNG file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := s.region(f)
			if err != nil {
				return err
			}
			path, err := r.SaveScreenCapture(dir, name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "out", "o", ".", "Output directory")
	cmd.Flags().StringVarP(&name, "name", "n", "", "File name (default: a unique temporary name)")
	return cmd
}

func screensCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "screens",
		Short: "List the screens and their bounds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for i, b := range capture.AllScreens(s.container.Platform) {
				fmt.Fprintf(cmd.OutOrStdout(), "%d: %d,%d %dx%d (%s pixels)\n",
					i, b.Min.X, b.Min.Y, b.Dx(), b.Dy(), humanize.Comma(int64(b.Dx()*b.Dy())))
			}
			return nil
		},
	}
}
