// Package capture screenshots the server-rendered bell board with headless
// Chromium, for corridor displays that can only show an image.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"bellboard/internal/config"
	appLog "bellboard/internal/log"
)

const (
	DefaultWidth   = 1024
	DefaultHeight  = 600
	DefaultTimeout = 30 * time.Second
)

// readySelector is set on the board root once it has rendered.
const readySelector = `[data-ready="true"]`

// Options defines one capture.
type Options struct {
	// URL of the board page, e.g. "http://127.0.0.1:8080/board".
	URL string
	// OutputPath, when set, receives the PNG.
	OutputPath string

	Width  int
	Height int

	Timeout time.Duration

	// ExecPath overrides the Chromium binary; empty lets chromedp search.
	ExecPath string
}

// OptionsFromConfig maps the snapshot config section.
func OptionsFromConfig(s config.Snapshot) Options {
	return Options{URL: s.URL, OutputPath: s.Output, Width: s.Width, Height: s.Height}
}

func (o *Options) normalize() error {
	if o.URL == "" {
		return errors.New("capture: URL is required")
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return nil
}

// CaptureBoardPNG loads opts.URL, waits for the board to mark itself ready,
// and returns a viewport-sized PNG. The image is also written to
// opts.OutputPath when one is given.
func CaptureBoardPNG(parent context.Context, opts Options) ([]byte, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(opts.Width, opts.Height),
		chromedp.Flag("hide-scrollbars", true),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, allocOpts...)
	defer cancelAlloc()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	ctx, cancelTimeout := context.WithTimeout(ctx, opts.Timeout)
	defer cancelTimeout()

	var png []byte
	start := time.Now()
	err := chromedp.Run(ctx,
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(readySelector, chromedp.ByQuery),
		chromedp.CaptureScreenshot(&png),
	)
	if err != nil {
		return nil, fmt.Errorf("capture: chromedp run: %w", err)
	}

	if opts.OutputPath != "" {
		if err := config.WriteFileAtomic(opts.OutputPath, png, ".bellboard-board-*.png"); err != nil {
			return nil, fmt.Errorf("capture: write %s: %w", opts.OutputPath, err)
		}
	}

	appLog.Info("board captured", "bytes", len(png), "output", opts.OutputPath, "elapsed_ms", time.Since(start).Milliseconds())
	return png, nil
}
