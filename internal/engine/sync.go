// internal/engine/sync.go
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/sweeper-cli/internal/dom"
)

// Indicators describe how the page signals trouble.
type Indicators struct {
	// Errors are banners that, when visible, mean the page failed to render.
	Errors dom.Chain
	// Content lists expected containers. A page with none of them is treated as
	// a failed render. An empty chain disables the check.
	Content dom.Chain
}

// Synchronizer waits for page loads and recovers from transient host errors.
type Synchronizer struct {
	page       dom.Page
	clock      Clock
	logger     *zap.Logger
	indicators Indicators

	loadTimeout  time.Duration
	pollInterval time.Duration
	cooldown     time.Duration
	settle       time.Duration

	recoveries int
}

// NewSynchronizer creates a Synchronizer for page.
func NewSynchronizer(page dom.Page, clock Clock, ind Indicators, s Settings, logger *zap.Logger) *Synchronizer {
	return &Synchronizer{
		page:         page,
		clock:        clock,
		logger:       logger.Named("sync"),
		indicators:   ind,
		loadTimeout:  s.LoadTimeout,
		pollInterval: s.PollInterval,
		cooldown:     s.ErrorCooldown,
		settle:       s.ReloadSettle,
	}
}

// Recoveries reports how many transient errors have been recovered from.
func (s *Synchronizer) Recoveries() int { return s.recoveries }

// WaitForLoad polls until the document reports complete. A timeout is logged
// and swallowed; only context errors are returned.
func (s *Synchronizer) WaitForLoad(ctx context.Context) error {
	deadline := s.clock.Now().Add(s.loadTimeout)
	for {
		state, err := s.page.ReadyState(ctx)
		switch {
		case err != nil && dom.Aborts(ctx, err):
			return err
		case err != nil:
			s.logger.Debug("Failed to read document state.", zap.Error(err))
		case state == "complete":
			return nil
		}

		if !s.clock.Now().Before(deadline) {
			s.logger.Warn("Page load timed out, continuing anyway.",
				zap.Duration("timeout", s.loadTimeout),
				zap.String("ready_state", state))
			return nil
		}
		if err := s.clock.Sleep(ctx, s.pollInterval); err != nil {
			return err
		}
	}
}

// Refresh reloads the page and waits for it to settle. Reload failures are
// logged, not returned.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	if err := s.page.Reload(ctx); err != nil {
		if dom.Aborts(ctx, err) {
			return err
		}
		s.logger.Error("Page reload failed.", zap.Error(err))
	}
	if err := s.clock.Sleep(ctx, s.settle); err != nil {
		return err
	}
	return s.WaitForLoad(ctx)
}

// DetectAndRecover checks for an error banner or an empty page. When either is
// present it waits out the cooldown, reloads and reports true. Every handle
// obtained before a true result is stale.
func (s *Synchronizer) DetectAndRecover(ctx context.Context) (bool, error) {
	reason, err := s.detect(ctx)
	if err != nil {
		return false, err
	}
	if reason == "" {
		return false, nil
	}

	s.recoveries++
	s.logger.Warn("Transient page error detected, refreshing.",
		zap.String("reason", reason),
		zap.Duration("cooldown", s.cooldown),
		zap.Int("recoveries", s.recoveries))

	if err := s.clock.Sleep(ctx, s.cooldown); err != nil {
		return false, err
	}
	if err := s.Refresh(ctx); err != nil {
		return true, err
	}
	return true, nil
}

func (s *Synchronizer) detect(ctx context.Context) (string, error) {
	if len(s.indicators.Errors) > 0 {
		m, err := dom.Resolve(ctx, s.page, nil, s.indicators.Errors)
		if err == nil {
			return "error indicator " + m.Strategy.String(), nil
		}
		if dom.Aborts(ctx, err) {
			return "", err
		}
	}
	if len(s.indicators.Content) > 0 {
		ok, err := dom.Exists(ctx, s.page, nil, s.indicators.Content)
		if err != nil {
			return "", err
		}
		if !ok {
			return "no content containers", nil
		}
	}
	return "", nil
}
