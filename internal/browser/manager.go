// File: internal/browser/manager.go

// Package browser owns the Chrome process lifecycle for the sweep: it
// launches a local instance (or attaches to a running one), navigates to
// the target page, and shuts everything down within a bounded grace period.
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	homedir "github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/JuliusBairaktaris/photosweep/internal/config"
)

// Manager handles the browser lifecycle and exposes the chromedp context
// all page interactions run against.
type Manager struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewManager creates a browser manager. Nothing is launched until Start.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		logger: logger.Named("browser"),
	}
}

// Start launches or attaches to Chrome and returns the browser context.
func (m *Manager) Start(ctx context.Context) (context.Context, error) {
	var allocCtx context.Context

	if m.cfg.RemoteURL != "" {
		m.logger.Info("Attaching to running browser", zap.String("url", m.cfg.RemoteURL))
		allocCtx, m.allocCancel = chromedp.NewRemoteAllocator(ctx, m.cfg.RemoteURL)
	} else {
		opts, err := m.allocatorOptions()
		if err != nil {
			return nil, err
		}
		m.logger.Info("Launching browser",
			zap.Bool("headless", m.cfg.Headless),
			zap.String("user_data_dir", m.cfg.UserDataDir),
		)
		allocCtx, m.allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	}

	sugar := m.logger.Sugar()
	m.browserCtx, m.browserCancel = chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Errorf),
	)

	// Run with no actions forces the browser to actually start, so launch
	// failures surface here instead of on the first interaction.
	if err := chromedp.Run(m.browserCtx); err != nil {
		m.Shutdown()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	return m.browserCtx, nil
}

// allocatorOptions builds the ExecAllocator option set from config.
func (m *Manager) allocatorOptions() ([]chromedp.ExecAllocatorOption, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	if !m.cfg.Headless {
		// The defaults run headless; an interactive window is what lets the
		// operator watch the sweep and intervene on auth prompts.
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if m.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(m.cfg.ExecPath))
	}
	if m.cfg.UserDataDir != "" {
		dir, err := homedir.Expand(m.cfg.UserDataDir)
		if err != nil {
			return nil, fmt.Errorf("expanding user_data_dir: %w", err)
		}
		opts = append(opts, chromedp.UserDataDir(dir))
	}
	if m.cfg.WindowWidth > 0 && m.cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(m.cfg.WindowWidth, m.cfg.WindowHeight))
	}
	for _, arg := range m.cfg.Args {
		name, value := splitFlag(arg)
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts, nil
}

// splitFlag parses a raw Chrome argument ("--name=value" or "--name") into
// the name/value pair chromedp.Flag expects.
func splitFlag(arg string) (string, any) {
	arg = strings.TrimLeft(arg, "-")
	if name, value, found := strings.Cut(arg, "="); found {
		return name, value
	}
	return arg, true
}

// Navigate loads the target URL and waits for the document body, bounded by
// the configured navigation timeout.
func (m *Manager) Navigate(url string) error {
	if m.browserCtx == nil {
		return fmt.Errorf("browser not started")
	}

	navCtx, cancel := context.WithTimeout(m.browserCtx, m.cfg.NavigationTimeout)
	defer cancel()

	m.logger.Info("Navigating", zap.String("url", url))
	if err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// Shutdown closes the browser, waiting up to the configured grace period
// for a clean exit before cutting the contexts.
func (m *Manager) Shutdown() {
	if m.browserCtx == nil {
		if m.allocCancel != nil {
			m.allocCancel()
		}
		return
	}

	done := make(chan struct{})
	go func() {
		// Cancel asks the browser to close gracefully and waits for it.
		_ = chromedp.Cancel(m.browserCtx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(m.cfg.ShutdownGrace):
		m.logger.Warn("Browser did not close in time; severing contexts.",
			zap.Duration("grace", m.cfg.ShutdownGrace))
		m.browserCancel()
	}

	if m.allocCancel != nil {
		m.allocCancel()
	}
	m.logger.Info("Browser shut down.")
}
