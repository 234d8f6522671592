package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ChromedpConfig controls the headless Chrome sessions.
type ChromedpConfig struct {
	// ExecPath overrides the Chrome binary; empty uses chromedp's lookup.
	ExecPath  string
	UserAgent string
	// LaunchTimeout bounds starting the browser process.
	LaunchTimeout time.Duration
}

// ChromedpBrowser implements Browser with a fresh headless Chrome per call.
type ChromedpBrowser struct {
	cfg    ChromedpConfig
	logger *zap.Logger
}

// NewChromedpBrowser creates a Browser backed by chromedp.
func NewChromedpBrowser(cfg ChromedpConfig, logger *zap.Logger) *ChromedpBrowser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromedpBrowser{cfg: cfg, logger: logger}
}

// Screenshot launches Chrome at the requested viewport, navigates, waits for the
// page to settle and captures the viewport as PNG.
func (b *ChromedpBrowser) Screenshot(ctx context.Context, req Request) (Raster, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, b.allocatorOptions(req.Viewport)...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	if err := b.launch(browserCtx); err != nil {
		return Raster{}, stageError(StageLaunch, err)
	}

	if err := b.navigate(browserCtx, req); err != nil {
		return Raster{}, stageError(StageNavigate, err)
	}

	var inner []int64
	if err := chromedp.Run(browserCtx,
		chromedp.Evaluate(`[window.innerWidth, window.innerHeight]`, &inner),
	); err != nil {
		return Raster{}, stageError(StageNavigate, fmt.Errorf("read viewport: %w", err))
	}
	raster := Raster{}
	if len(inner) == 2 {
		raster.InnerWidth, raster.InnerHeight = int(inner[0]), int(inner[1])
	}
	b.logger.Debug("page loaded",
		zap.String("url", req.URL),
		zap.Int("inner_width", raster.InnerWidth),
		zap.Int("inner_height", raster.InnerHeight),
	)

	if err := sleepContext(browserCtx, req.Settle); err != nil {
		return Raster{}, stageError(StageSettle, err)
	}

	if err := chromedp.Run(browserCtx, chromedp.CaptureScreenshot(&raster.PNG)); err != nil {
		return Raster{}, stageError(StageScreenshot, fmt.Errorf("chromedp screenshot: %w", err))
	}
	return raster, nil
}

func (b *ChromedpBrowser) allocatorOptions(vp Viewport) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("force-device-scale-factor", "1"),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(vp.Width, vp.Height),
	)
	if b.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.cfg.ExecPath))
	}
	if b.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.cfg.UserAgent))
	}
	return opts
}

// launch starts the browser. The first Run owns the browser lifetime, so it
// must not run under a context that is cancelled early; the launch bound is
// enforced by racing it against a timer instead.
func (b *ChromedpBrowser) launch(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(ctx)
	}()
	timer := time.NewTimer(b.launchTimeout())
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("start browser: %w", err)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("start browser: timed out after %v", b.launchTimeout())
	case <-ctx.Done():
		return fmt.Errorf("start browser: %w", ctx.Err())
	}
}

func (b *ChromedpBrowser) navigate(ctx context.Context, req Request) error {
	timeout := req.NavigationTimeout
	if timeout <= 0 {
		timeout = defaultNavigationTimeout
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := chromedp.Run(navCtx,
		emulation.SetDeviceMetricsOverride(int64(req.Viewport.Width), int64(req.Viewport.Height), 1, false),
		chromedp.Navigate(req.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", req.URL, err)
	}
	return nil
}

func (b *ChromedpBrowser) launchTimeout() time.Duration {
	if b.cfg.LaunchTimeout > 0 {
		return b.cfg.LaunchTimeout
	}
	return 30 * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("settle interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
