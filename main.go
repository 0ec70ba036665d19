package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/soocke/pixelfind/cli"
	"github.com/soocke/pixelfind/domain/region"
	"github.com/soocke/pixelfind/ui/prompt"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.RootCommand(cli.Deps{
		NewLogger: NewLogger,
		NewPrompter: func(logger *slog.Logger) region.Prompter {
			return prompt.NewTkPrompter("pixelfind", logger)
		},
	})
	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
	case errors.Is(err, cli.ErrNotFound):
		os.Exit(1)
	default:
		fmt.Fprintln(os.Stderr, "pixelfind:", err)
		os.Exit(2)
	}
}
