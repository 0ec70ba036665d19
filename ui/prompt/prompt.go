// Package prompt asks the user how to continue after a failed search
// using a Tk abort/retry/ignore dialog.
package prompt

import (
	"context"
	"log/slog"
	"sync"

	. "modernc.org/tk9.0"

	"github.com/soocke/pixelfind/domain/region"
)

// TkPrompter shows a modal Tk message box. Tk must be driven from the
// goroutine that imported it, so Prompt is meant for the main goroutine.
type TkPrompter struct {
	logger *slog.Logger
	title  string
	once   sync.Once
	mu     sync.Mutex
}

// NewTkPrompter returns a prompter whose dialogs carry title.
func NewTkPrompter(title string, logger *slog.Logger) *TkPrompter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &TkPrompter{title: title, logger: logger}
}

// Prompt implements region.Prompter. The dialog cannot be interrupted;
// ctx is only checked before it opens.
func (p *TkPrompter) Prompt(ctx context.Context, message string) (region.Response, error) {
	if err := ctx.Err(); err != nil {
		return region.Abort, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	// The root window is not used; only the dialog should show.
	p.once.Do(func() { WmWithdraw(App) })

	answer := MessageBox(
		Title(p.title),
		Msg(message),
		Icon("warning"),
		Type("abortretryignore"),
		Default("retry"),
	)
	resp, err := region.ParseResponse(answer)
	if err != nil {
		p.logger.Warn("unexpected prompt answer, aborting", "answer", answer)
		return region.Abort, nil
	}
	p.logger.Info("prompt answered", "answer", answer, "response", resp.String())
	return resp, nil
}
