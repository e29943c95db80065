// cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/sweeper-cli/internal/config"
	"github.com/xkilldash9x/sweeper-cli/internal/dom/domtest"
	"github.com/xkilldash9x/sweeper-cli/internal/observability"
)

const reactionsURL = "https://www.linkedin.com/in/me/recent-activity/reactions/"

const reactionsMarkup = `<html><body><main>
	<div class="feed-shared-update-v2" id="u1">
		<button class="react-button__trigger artdeco-button" id="like-1" aria-pressed="true">Like</button>
	</div>
	<div class="feed-shared-update-v2" id="u2">
		<button class="react-button__trigger artdeco-button" id="like-2" aria-pressed="true">Like</button>
	</div>
	<div class="feed-shared-update-v2" id="u3">
		<button class="react-button__trigger artdeco-button" id="like-3" aria-pressed="true">Like</button>
	</div>
</main></body></html>`

// fakeBrowser is a scripted page that records chromedp runs instead of
// executing them.
type fakeBrowser struct {
	*domtest.Page
	runs   int
	closed bool
}

func (b *fakeBrowser) RunActions(ctx context.Context, _ ...chromedp.Action) error {
	b.runs++
	return ctx.Err()
}

func (b *fakeBrowser) Close(context.Context) error {
	b.closed = true
	return nil
}

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time { return c.now }

func (c *stepClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.now = c.now.Add(d)
	return nil
}

// reactionsPage returns a browser showing three liked posts whose like
// buttons toggle off when clicked.
func reactionsPage(url string) *fakeBrowser {
	page := domtest.New(url, reactionsMarkup)
	page.OnClick("button[aria-pressed]", func(_ *domtest.Page, n *html.Node) error {
		domtest.SetAttr(n, "aria-pressed", "false")
		return nil
	})
	return &fakeBrowser{Page: page}
}

// fakeDeps hands out b on launch and records the browser config it was
// launched with.
func fakeDeps(b *fakeBrowser, launched *config.BrowserConfig) sweepDeps {
	return sweepDeps{
		launch: func(_ context.Context, cfg config.BrowserConfig, _ *zap.Logger) (Browser, error) {
			if launched != nil {
				*launched = cfg
			}
			return b, nil
		},
		clock: &stepClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)},
	}
}

// writeConfig writes a config file that keeps logs and cookies off disk,
// followed by extra YAML.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "logger:\n  level: debug\n  log_file: \"\"\nbrowser:\n  cookie_file: \"\"\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// execute runs the command tree with args and returns what it printed.
func execute(t *testing.T, root *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)

	var out bytes.Buffer
	root.SetArgs(args)
	root.SetIn(bytes.NewBufferString(stdin))
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}
