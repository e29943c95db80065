// cmd/sweep.go
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sweeper-cli/internal/browser"
	"github.com/xkilldash9x/sweeper-cli/internal/browser/session"
	"github.com/xkilldash9x/sweeper-cli/internal/config"
	"github.com/xkilldash9x/sweeper-cli/internal/dom"
	"github.com/xkilldash9x/sweeper-cli/internal/engine"
	"github.com/xkilldash9x/sweeper-cli/internal/observability"
	"github.com/xkilldash9x/sweeper-cli/internal/profile"
)

const closeTimeout = 10 * time.Second

// Browser is the live tab a sweep drives.
type Browser interface {
	dom.Page
	browser.ActionRunner
	Close(ctx context.Context) error
}

type launcher func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (Browser, error)

type sweepDeps struct {
	launch launcher
	clock  engine.Clock
}

func defaultDeps() sweepDeps {
	return sweepDeps{launch: launchChrome, clock: engine.SystemClock()}
}

func launchChrome(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (Browser, error) {
	s, err := browser.Launch(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}

var targetDescriptions = map[profile.Kind]string{
	profile.Posts:     "Delete your posts and reposts, keeping the first one of each pass",
	profile.Comments:  "Delete your comments, keeping the first one of each pass",
	profile.Reactions: "Remove your likes and other reactions from posts and comments",
}

// newTargetCmd builds the command that sweeps one kind of activity feed.
func newTargetCmd(kind profile.Kind, deps sweepDeps) *cobra.Command {
	var rc config.RunConfig

	targetCmd := &cobra.Command{
		Use:   string(kind) + " [url]",
		Short: targetDescriptions[kind],
		Long: fmt.Sprintf(`Opens your %[1]s activity feed in a browser, waits for you to log in and
confirm, then removes %[1]s until the feed is empty or --max-items is reached.
The url argument overrides targets.%[1]s.url from the configuration.`, kind),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			rc.Target = string(kind)
			if len(args) == 1 {
				rc.URL = args[0]
			}
			cfg.SetRunConfig(rc)
			return runSweep(cmd.Context(), cmd, cfg, kind, deps)
		},
	}

	targetCmd.Flags().IntVar(&rc.ItemCap, "max-items", 0, "stop after this many items have been processed (0 means no limit)")
	targetCmd.Flags().IntVar(&rc.ScrollRounds, "scroll-rounds", 0, "scroll rounds before the first pass (0 uses engine.initial_scroll_rounds)")
	targetCmd.Flags().BoolVar(&rc.SkipGate, "no-wait", false, "start immediately instead of waiting for Enter")
	return targetCmd
}

func runSweep(ctx context.Context, cmd *cobra.Command, cfg config.Interface, kind profile.Kind, deps sweepDeps) error {
	rc := cfg.Run()
	if rc.ItemCap < 0 || rc.ScrollRounds < 0 {
		return errors.New("--max-items and --scroll-rounds must not be negative")
	}
	tc, err := cfg.Target(string(kind))
	if err != nil {
		return err
	}
	url := tc.URL
	if rc.URL != "" {
		url = rc.URL
	}
	prof, err := profile.For(kind, tc)
	if err != nil {
		return fmt.Errorf("targets.%s: %w", kind, err)
	}
	settings := profile.Settings(cfg.Engine(), tc, rc)

	logger, runID := observability.ForRun(observability.GetLogger().Named("sweep"))
	logger.Info("Preparing sweep.", zap.String("target", string(kind)), zap.String("url", url), zap.Int("item_cap", rc.ItemCap))

	var cookies *browser.CookieStore
	if path := cfg.Browser().CookieFile; path != "" {
		if cookies, err = browser.NewCookieStore(path); err != nil {
			return err
		}
	}

	b, err := deps.launch(ctx, cfg.Browser(), logger)
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(session.Detach(ctx), closeTimeout)
		defer cancel()
		if err := b.Close(closeCtx); err != nil {
			logger.Warn("Browser did not close cleanly.", zap.Error(err))
		}
	}()

	if cookies != nil {
		injected, err := cookies.Inject(ctx, b, deps.clock.Now())
		switch {
		case err != nil:
			logger.Warn("Could not restore the saved session.", zap.String("cookie_file", cookies.Path()), zap.Error(err))
		case injected:
			logger.Info("Restored the saved LinkedIn session.", zap.String("cookie_file", cookies.Path()))
		}
	}

	if err := b.Navigate(ctx, url); err != nil {
		return fmt.Errorf("failed to open %s: %w", url, err)
	}
	checkLocation(ctx, b, logger)

	if !rc.SkipGate {
		if err := waitForOperator(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), kind); err != nil {
			return err
		}
	}
	if cookies != nil {
		if err := cookies.Capture(ctx, b, deps.clock.Now()); err != nil {
			logger.Warn("Could not save the session cookies.", zap.Error(err))
		}
	}

	sync := engine.NewSynchronizer(b, deps.clock, prof.Indicators, settings, logger)
	loader := engine.NewLoader(b, sync, deps.clock, prof.Expanders, settings, logger)
	executor := engine.NewExecutor(b, sync, deps.clock, prof.Plan, settings, logger)
	processor, err := engine.NewProcessor(b, sync, loader, executor, deps.clock, prof.Target, settings, logger)
	if err != nil {
		return err
	}

	tally, err := processor.Run(ctx)
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s [run %s]\n", kind, tally, runID)
	if err != nil {
		return fmt.Errorf("sweep of %s stopped: %w", kind, err)
	}
	return nil
}

// checkLocation logs where navigation ended up and, off the activity feed,
// tries to follow a link back to it.
func checkLocation(ctx context.Context, page dom.Page, logger *zap.Logger) {
	url, err := page.URL(ctx)
	if err != nil {
		logger.Warn("Could not read the page URL.", zap.Error(err))
		return
	}
	switch profile.Inspect(url) {
	case profile.AtLogin:
		logger.Info("Login page detected. Please log in manually.", zap.String("url", url))
	case profile.Elsewhere:
		logger.Warn("Not on a recent-activity page.", zap.String("url", url))
		if err := profile.OpenActivity(ctx, page); err != nil {
			logger.Warn("Could not find a link to the activity feed. Navigate there by hand.", zap.Error(err))
		}
	}
}

// waitForOperator blocks until a line is read from in. End of input counts
// as confirmation.
func waitForOperator(ctx context.Context, in io.Reader, out io.Writer, kind profile.Kind) error {
	fmt.Fprintf(out, "Log in if needed and make sure your %s activity page is showing, then press Enter to start.\n", kind)

	done := make(chan error, 1)
	go func() {
		_, err := bufio.NewReader(in).ReadString('\n')
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read confirmation: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
