// internal/engine/loader.go
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/sweeper-cli/internal/dom"
)

// Expander is a "show more" style affordance that mounts extra content.
type Expander struct {
	Name  string
	Chain dom.Chain
	// Accept filters candidates by their text. Nil accepts every candidate.
	Accept func(text string) bool
}

// Loader drives infinite scrolling and expandable sections.
type Loader struct {
	page      dom.Page
	sync      *Synchronizer
	clock     Clock
	logger    *zap.Logger
	expanders []Expander

	expandSettle time.Duration
	endSettle    time.Duration
	endRecheck   time.Duration
}

// NewLoader creates a Loader.
func NewLoader(page dom.Page, sync *Synchronizer, clock Clock, expanders []Expander, s Settings, logger *zap.Logger) *Loader {
	return &Loader{
		page:         page,
		sync:         sync,
		clock:        clock,
		logger:       logger.Named("loader"),
		expanders:    expanders,
		expandSettle: s.ExpandSettle,
		endSettle:    s.EndCheckSettle,
		endRecheck:   s.EndRecheck,
	}
}

// LoadMore scrolls to the bottom rounds times, pausing delay each round, then
// recovers from transient errors and clicks every visible expander once.
// Only context errors are returned.
func (l *Loader) LoadMore(ctx context.Context, rounds int, delay time.Duration) error {
	for round := 1; round <= rounds; round++ {
		if err := l.page.ScrollToBottom(ctx); err != nil {
			if dom.Aborts(ctx, err) {
				return err
			}
			l.logger.Debug("Scroll failed.", zap.Int("round", round), zap.Error(err))
		}
		if err := l.clock.Sleep(ctx, delay); err != nil {
			return err
		}
		if _, err := l.sync.DetectAndRecover(ctx); err != nil {
			return err
		}
		n, err := l.Expand(ctx)
		if err != nil {
			return err
		}
		l.logger.Debug("Scroll round complete.", zap.Int("round", round), zap.Int("rounds", rounds), zap.Int("expanded", n))
	}
	return nil
}

// Expand clicks each visible expander candidate once and returns how many
// were clicked.
func (l *Loader) Expand(ctx context.Context) (int, error) {
	clicked := 0
	for _, ex := range l.expanders {
		nodes, err := dom.ResolveVisible(ctx, l.page, nil, ex.Chain)
		if err != nil {
			if dom.Aborts(ctx, err) {
				return clicked, err
			}
			l.logger.Debug("Expander lookup failed.", zap.String("expander", ex.Name), zap.Error(err))
			continue
		}
		for _, n := range nodes {
			if ex.Accept != nil {
				text, err := l.page.Text(ctx, n)
				if err != nil || !ex.Accept(text) {
					continue
				}
			}
			if err := dom.Activate(ctx, l.page, n); err != nil {
				if ctx.Err() != nil {
					return clicked, ctx.Err()
				}
				l.logger.Debug("Expander click failed.", zap.String("expander", ex.Name), zap.Error(err))
				continue
			}
			clicked++
			if err := l.clock.Sleep(ctx, l.expandSettle); err != nil {
				return clicked, err
			}
		}
	}
	return clicked, nil
}

// Exhausted reports whether the feed has no more content: two bottom scrolls
// report the same document height and no expander was left to click.
func (l *Loader) Exhausted(ctx context.Context) (bool, error) {
	if err := l.page.ScrollToBottom(ctx); err != nil && dom.Aborts(ctx, err) {
		return false, err
	}
	if err := l.clock.Sleep(ctx, l.endSettle); err != nil {
		return false, err
	}
	recovered, err := l.sync.DetectAndRecover(ctx)
	if err != nil {
		return false, err
	}
	if recovered {
		return false, nil
	}

	before, err := l.page.ScrollHeight(ctx)
	if err != nil {
		if dom.Aborts(ctx, err) {
			return false, err
		}
		l.logger.Warn("Could not measure page height.", zap.Error(err))
		return false, nil
	}
	expanded, err := l.Expand(ctx)
	if err != nil {
		return false, err
	}
	if err := l.page.ScrollToBottom(ctx); err != nil && dom.Aborts(ctx, err) {
		return false, err
	}
	if err := l.clock.Sleep(ctx, l.endRecheck); err != nil {
		return false, err
	}
	after, err := l.page.ScrollHeight(ctx)
	if err != nil {
		if dom.Aborts(ctx, err) {
			return false, err
		}
		l.logger.Warn("Could not measure page height.", zap.Error(err))
		return false, nil
	}

	l.logger.Debug("End-of-feed check.",
		zap.Int64("height_before", before),
		zap.Int64("height_after", after),
		zap.Int("expanded", expanded))
	return before == after && expanded == 0, nil
}
