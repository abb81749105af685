// Package progress wraps schollz/progressbar with the look shared by every
// batch command.
package progress

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/schollz/progressbar/v3"
)

// Bar counts processed items. A nil *Bar is valid and does nothing.
type Bar struct {
	bar    *progressbar.ProgressBar
	logger *slog.Logger
}

// New creates a bar for total items drawn on w. When w is nil the bar is
// silent.
func New(w io.Writer, total int, description string, logger *slog.Logger) *Bar {
	if w == nil {
		return nil
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(fmt.Sprintf("[cyan]%s[reset]", description)),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(w)
		}),
	)
	return &Bar{bar: bar, logger: logger}
}

// Add advances the bar by one item.
func (b *Bar) Add() {
	if b == nil {
		return
	}
	if err := b.bar.Add(1); err != nil && b.logger != nil {
		b.logger.Warn("failed to update progress bar", "error", err)
	}
}

// Finish completes the bar.
func (b *Bar) Finish() {
	if b == nil {
		return
	}
	if err := b.bar.Finish(); err != nil && b.logger != nil {
		b.logger.Warn("failed to finish progress bar", "error", err)
	}
}
