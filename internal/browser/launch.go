// internal/browser/launch.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sweeper-cli/internal/browser/session"
	"github.com/xkilldash9x/sweeper-cli/internal/browser/stealth"
	"github.com/xkilldash9x/sweeper-cli/internal/config"
)

// AllocatorOptions builds the Chromium flags for a sweep. The list is spelled
// out rather than derived from chromedp.DefaultExecAllocatorOptions so that
// headless mode and automation flags are always explicit.
func AllocatorOptions(cfg config.BrowserConfig) ([]chromedp.ExecAllocatorOption, error) {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		// Leaving this on sets navigator.webdriver and shows the infobar.
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	}

	if cfg.Headless {
		opts = append(opts, chromedp.Headless, chromedp.DisableGPU)
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	}
	if cfg.UserDataDir != "" {
		dir, err := homedir.Expand(cfg.UserDataDir)
		if err != nil {
			return nil, fmt.Errorf("expand user data dir: %w", err)
		}
		opts = append(opts, chromedp.UserDataDir(dir))
	}

	// Extra flags from config, "key=value" or a bare boolean "key".
	for _, arg := range cfg.Args {
		arg = strings.TrimLeft(arg, "-")
		if arg == "" {
			continue
		}
		if key, value, found := strings.Cut(arg, "="); found {
			opts = append(opts, chromedp.Flag(key, value))
		} else {
			opts = append(opts, chromedp.Flag(key, true))
		}
	}
	return opts, nil
}

// browserParent keeps ctx's values but drops its cancellation. An interrupt
// must not kill Chrome under an in-flight action; the browser stops only
// through Session.Close.
func browserParent(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// Launch starts Chromium, applies the stealth persona to a fresh tab and
// returns it as a Session. Closing the Session stops the browser. ctx bounds
// the launch itself, not the browser's lifetime.
func Launch(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*session.Session, error) {
	opts, err := AllocatorOptions(cfg)
	if err != nil {
		return nil, err
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(browserParent(ctx), opts...)
	sugar := logger.Named("chromedp").Sugar()
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)
	cancel := func() {
		tabCancel()
		allocCancel()
	}

	persona := stealth.Persona{
		UserAgent: cfg.UserAgent,
		Languages: cfg.Languages,
		Timezone:  cfg.Timezone,
		Locale:    cfg.Locale,
	}

	// The first Run starts the browser and must not carry a deadline, or the
	// browser dies with it. The launch timeout is enforced from outside.
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(tabCtx, stealth.Apply(persona, logger))
	}()

	timeout := cfg.LaunchTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err = <-done:
	case <-timer.C:
		err = fmt.Errorf("browser did not start within %s", timeout)
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	logger.Info("Browser launched.",
		zap.Bool("headless", cfg.Headless),
		zap.String("user_data_dir", cfg.UserDataDir),
	)
	return session.NewSession(tabCtx, cancel, cfg.NavigationTimeout, logger), nil
}
