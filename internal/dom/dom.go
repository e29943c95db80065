// internal/dom/dom.go
package dom

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared by every Page backend.
var (
	// ErrNotFound is returned when no strategy in a chain yields a usable element.
	ErrNotFound = errors.New("no strategy matched a visible element")
	// ErrStaleHandle is returned when a handle from an earlier page generation is used.
	ErrStaleHandle = errors.New("element handle is stale")
	// ErrClickIntercepted is returned when a direct click would land on another element.
	ErrClickIntercepted = errors.New("click intercepted by another element")
)

// Kind selects the query language of a Strategy.
type Kind int

const (
	CSS Kind = iota
	XPath
)

func (k Kind) String() string {
	switch k {
	case CSS:
		return "css"
	case XPath:
		return "xpath"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Strategy is a single locator.
type Strategy struct {
	Kind    Kind
	Pattern string
}

// ByCSS builds a CSS strategy.
func ByCSS(pattern string) Strategy { return Strategy{Kind: CSS, Pattern: pattern} }

// ByXPath builds an XPath strategy.
func ByXPath(pattern string) Strategy { return Strategy{Kind: XPath, Pattern: pattern} }

func (s Strategy) String() string { return s.Kind.String() + ":" + s.Pattern }

// Chain is an ordered priority list of strategies. Earlier entries win.
type Chain []Strategy

func (c Chain) String() string {
	parts := make([]string, len(c))
	for i, s := range c {
		parts[i] = s.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Handle is an opaque reference to a live element. It is only valid for the
// page generation it was issued in.
type Handle interface {
	// Key identifies the underlying node within its generation.
	Key() string
	Generation() uint64
}

// Page is the browser capability surface the engine needs. A nil scope means
// the whole document.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	Back(ctx context.Context) error
	URL(ctx context.Context) (string, error)

	// Generation increases on every navigation, reload or back navigation.
	Generation() uint64
	ReadyState(ctx context.Context) (string, error)
	ScrollToBottom(ctx context.Context) error
	ScrollHeight(ctx context.Context) (int64, error)

	QueryAll(ctx context.Context, scope Handle, s Strategy) ([]Handle, error)
	Visible(ctx context.Context, h Handle) (bool, error)
	Text(ctx context.Context, h Handle) (string, error)
	Attribute(ctx context.Context, h Handle, name string) (string, bool, error)

	ScrollIntoView(ctx context.Context, h Handle) error
	// Click performs a trusted pointer click at the element's center.
	Click(ctx context.Context, h Handle) error
	// ClickScript dispatches a programmatic click on the element.
	ClickScript(ctx context.Context, h Handle) error
	// Dismiss blurs the focused element and clicks the document body.
	Dismiss(ctx context.Context) error
}

// CheckFresh reports ErrStaleHandle if h was issued before the page's current generation.
func CheckFresh(p Page, h Handle) error {
	if h == nil {
		return nil
	}
	if h.Generation() != p.Generation() {
		return fmt.Errorf("%w: issued in generation %d, page is at %d", ErrStaleHandle, h.Generation(), p.Generation())
	}
	return nil
}

// IsFatal reports whether err must abort the current DOM operation instead of
// being treated as an empty result.
func IsFatal(err error) bool {
	return errors.Is(err, ErrStaleHandle) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Aborts reports whether err must end the operation running under ctx. A
// stale handle always does. A context error does only when ctx itself is
// done; a single page call timing out while ctx is live is not fatal.
func Aborts(ctx context.Context, err error) bool {
	if errors.Is(err, ErrStaleHandle) {
		return true
	}
	return ctx.Err() != nil && IsFatal(err)
}
