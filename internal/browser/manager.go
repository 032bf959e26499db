// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	goruntime "runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/actionwatch/internal/config"
)

// Manager owns the Chrome process and opens tabs in it.
type Manager struct {
	logger       *zap.Logger
	cfg          config.BrowserConfig
	pollInterval time.Duration

	// allocatorCtx scopes the browser process; every tab is derived from it.
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	// browserCtx owns the Chrome process. Tabs are opened from it.
	browserCtx    context.Context
	browserCancel context.CancelFunc

	// wg tracks open pages for a graceful shutdown.
	wg sync.WaitGroup
}

// NewManager launches Chrome and verifies it responds.
func NewManager(ctx context.Context, logger *zap.Logger, cfg config.BrowserConfig, pollInterval time.Duration) (*Manager, error) {
	m := &Manager{
		logger:       logger.Named("browser_manager"),
		cfg:          cfg,
		pollInterval: pollInterval,
	}
	if err := m.launchBrowser(ctx); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return m, nil
}

func (m *Manager) launchBrowser(ctx context.Context) error {
	m.logger.Info("Initializing browser allocator...", zap.Bool("headless", m.cfg.Headless))

	m.allocatorCtx, m.allocatorCancel = chromedp.NewExecAllocator(ctx, buildAllocatorOptions(m.cfg)...)
	// The first Run on browserCtx starts Chrome and binds the process to it,
	// so it must not carry the launch deadline.
	m.browserCtx, m.browserCancel = chromedp.NewContext(m.allocatorCtx,
		chromedp.WithErrorf(m.logger.Sugar().Debugf),
	)

	timeout := m.cfg.LaunchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	started := make(chan error, 1)
	go func() {
		started <- chromedp.Run(m.browserCtx)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	var err error
	select {
	case err = <-started:
	case <-timer.C:
		err = fmt.Errorf("no response within %s", timeout)
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		m.browserCancel()
		m.allocatorCancel()
		return fmt.Errorf("browser failed to start or respond: %w", err)
	}

	m.logger.Info("Browser launched successfully and is responsive.")
	return nil
}

// flagArg is one command-line switch passed to Chrome.
type flagArg struct {
	Name  string
	Value interface{}
}

// parseArgs turns "--name=value" and "--name" strings into flags.
func parseArgs(args []string) []flagArg {
	flags := make([]flagArg, 0, len(args))
	for _, arg := range args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(strings.TrimSpace(parts[0]), "--")
		if name == "" {
			continue
		}
		if len(parts) == 2 {
			flags = append(flags, flagArg{Name: name, Value: parts[1]})
		} else {
			flags = append(flags, flagArg{Name: name, Value: true})
		}
	}
	return flags
}

// buildAllocatorOptions assembles the Chrome flags for cfg.
func buildAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("ignore-certificate-errors", cfg.IgnoreTLSErrors),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", cfg.Headless),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if w, h := cfg.Viewport["width"], cfg.Viewport["height"]; w > 0 && h > 0 {
		opts = append(opts, chromedp.WindowSize(w, h))
	}

	for _, f := range parseArgs(cfg.Args) {
		opts = append(opts, chromedp.Flag(f.Name, f.Value))
	}

	// Needed inside containers.
	if goruntime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}
	return opts
}

// NewPage opens a tab and starts listening to it. Close the page when done.
func (m *Manager) NewPage(ctx context.Context) (*CDPPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tabCtx, cancel := chromedp.NewContext(m.browserCtx)

	p := newCDPPage(tabCtx, cancel, m.logger, m.pollInterval, m.cfg.NavigationTimeout)
	if err := p.start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	m.wg.Add(1)
	p.onClose = m.wg.Done
	return p, nil
}

// Shutdown waits for open pages to close, bounded by ctx, then stops Chrome.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Browser manager shutdown initiated.")

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("timed out waiting for pages to close: %w", ctx.Err())
		m.logger.Warn("Shutdown deadline reached with pages still open.")
	}

	if m.browserCancel != nil {
		m.browserCancel()
	}
	if m.allocatorCancel != nil {
		m.allocatorCancel()
	}
	m.logger.Info("Browser process terminated.")
	return err
}
