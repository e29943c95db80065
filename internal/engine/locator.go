// internal/engine/locator.go
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/xkilldash9x/sweeper-cli/internal/dom"
)

// Locator finds the destructive control for an item once its menu is open.
// It returns dom.ErrNotFound when the item has no such control.
type Locator interface {
	Locate(ctx context.Context, page dom.Page, item dom.Handle) (dom.Handle, error)
}

// ChainLocator resolves a chain against the document, or against the item
// when Scoped is set.
type ChainLocator struct {
	Chain  dom.Chain
	Scoped bool
}

func (l ChainLocator) Locate(ctx context.Context, page dom.Page, item dom.Handle) (dom.Handle, error) {
	var scope dom.Handle
	if l.Scoped {
		scope = item
	}
	m, err := dom.Resolve(ctx, page, scope, l.Chain)
	if err != nil {
		return nil, err
	}
	return m.Handle, nil
}

// PositionalLocator tries Explicit first. Failing that, it classifies the
// item and picks the menu entry at the variant's 1-based position, accepting
// it only when its label contains one of Labels.
type PositionalLocator struct {
	Explicit   dom.Chain
	Entries    dom.Chain
	Classifier Classifier
	Positions  map[Variant]int
	Labels     []string
}

func (l PositionalLocator) Locate(ctx context.Context, page dom.Page, item dom.Handle) (dom.Handle, error) {
	if len(l.Explicit) > 0 {
		m, err := dom.Resolve(ctx, page, nil, l.Explicit)
		if err == nil {
			return m.Handle, nil
		}
		if dom.Aborts(ctx, err) {
			return nil, err
		}
	}
	if l.Classifier == nil || len(l.Entries) == 0 {
		return nil, fmt.Errorf("%w: no explicit control", dom.ErrNotFound)
	}

	variant := l.Classifier.Classify(ctx, page, item)
	pos := l.Positions[variant]
	if pos <= 0 {
		return nil, fmt.Errorf("%w: no position for %s", dom.ErrNotFound, variant)
	}
	entries, err := dom.ResolveVisible(ctx, page, nil, l.Entries)
	if err != nil {
		return nil, err
	}
	if len(entries) < pos {
		return nil, fmt.Errorf("%w: menu has %d entries, %s needs entry %d", dom.ErrNotFound, len(entries), variant, pos)
	}

	entry := entries[pos-1]
	label, err := page.Text(ctx, entry)
	if err != nil {
		return nil, err
	}
	label = strings.ToLower(label)
	for _, want := range l.Labels {
		if strings.Contains(label, want) {
			return entry, nil
		}
	}
	return nil, fmt.Errorf("%w: entry %d of %s is %q", dom.ErrNotFound, pos, variant, label)
}
