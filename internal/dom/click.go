// internal/dom/click.go
package dom

import (
	"context"
	"fmt"
)

// Activate scrolls h into view and clicks it. A failed direct click falls back
// to a programmatic click on the same element.
func Activate(ctx context.Context, p Page, h Handle) error {
	if err := CheckFresh(p, h); err != nil {
		return err
	}
	if err := p.ScrollIntoView(ctx, h); err != nil && Aborts(ctx, err) {
		return err
	}
	directErr := p.Click(ctx, h)
	if directErr == nil {
		return nil
	}
	if Aborts(ctx, directErr) {
		return directErr
	}
	if err := p.ClickScript(ctx, h); err != nil {
		return fmt.Errorf("direct click failed (%v), script click failed: %w", directErr, err)
	}
	return nil
}
