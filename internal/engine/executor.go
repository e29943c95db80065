// internal/engine/executor.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/sweeper-cli/internal/dom"
)

// Mode selects how an item is acted upon.
type Mode int

const (
	// ModeDelete opens the item's menu, invokes the delete entry and confirms.
	ModeDelete Mode = iota
	// ModeToggle clicks the item itself, which must be in its active state.
	ModeToggle
)

var (
	// ErrNavigatedAway is reported when opening a menu navigated into the item.
	ErrNavigatedAway = errors.New("menu click navigated away from the feed")
	// ErrNotActive is reported when a toggle is not in its active state.
	ErrNotActive = errors.New("toggle is not active")
)

// Plan describes the action for one kind of item.
type Plan struct {
	Mode Mode
	// Trigger is the menu button, resolved within the item.
	Trigger dom.Chain
	// Menu is the container that appears once the menu is open.
	Menu   dom.Chain
	Action Locator
	// Confirm is the primary button of the confirmation dialog, if any.
	Confirm dom.Chain

	ActiveAttribute string
	ActiveValue     string
}

// Actor acts on a single item.
type Actor interface {
	Execute(ctx context.Context, item dom.Handle) (Outcome, error)
}

// Executor runs the per-item action state machine.
type Executor struct {
	page   dom.Page
	sync   *Synchronizer
	clock  Clock
	logger *zap.Logger
	plan   Plan

	menuTimeout    time.Duration
	confirmTimeout time.Duration
	pollInterval   time.Duration
}

var _ Actor = (*Executor)(nil)

// NewExecutor creates an Executor for plan.
func NewExecutor(page dom.Page, sync *Synchronizer, clock Clock, plan Plan, s Settings, logger *zap.Logger) *Executor {
	return &Executor{
		page:           page,
		sync:           sync,
		clock:          clock,
		logger:         logger.Named("executor"),
		plan:           plan,
		menuTimeout:    s.MenuTimeout,
		confirmTimeout: s.ConfirmTimeout,
		pollInterval:   s.PollInterval,
	}
}

// Execute acts on item. The error explains a Failed or Restricted outcome.
func (e *Executor) Execute(ctx context.Context, item dom.Handle) (Outcome, error) {
	if e.plan.Mode == ModeToggle {
		return e.toggle(ctx, item)
	}
	return e.delete(ctx, item)
}

func (e *Executor) delete(ctx context.Context, item dom.Handle) (Outcome, error) {
	trigger, err := dom.Resolve(ctx, e.page, item, e.plan.Trigger)
	if err != nil {
		return Failed, fmt.Errorf("locate menu trigger: %w", err)
	}

	before, err := e.page.URL(ctx)
	if err != nil {
		return Failed, fmt.Errorf("read url: %w", err)
	}
	if err := dom.Activate(ctx, e.page, trigger.Handle); err != nil {
		return Failed, fmt.Errorf("open menu: %w", err)
	}
	if after, err := e.page.URL(ctx); err == nil && after != before {
		e.logger.Warn("Menu click opened the item, navigating back.", zap.String("url", after))
		if err := e.page.Back(ctx); err != nil {
			e.logger.Error("Back navigation failed.", zap.Error(err))
		}
		if err := e.sync.WaitForLoad(ctx); err != nil {
			return Failed, err
		}
		return Failed, ErrNavigatedAway
	}

	if len(e.plan.Menu) > 0 {
		opened, err := e.poll(ctx, e.menuTimeout, func() (bool, error) {
			return dom.Exists(ctx, e.page, nil, e.plan.Menu)
		})
		if err != nil {
			return Failed, err
		}
		if !opened {
			e.logger.Debug("Menu container did not appear in time.", zap.Duration("timeout", e.menuTimeout))
		}
	}

	action, err := e.plan.Action.Locate(ctx, e.page, item)
	if err != nil {
		if errors.Is(err, dom.ErrNotFound) {
			if derr := e.page.Dismiss(ctx); derr != nil {
				e.logger.Debug("Failed to dismiss menu.", zap.Error(derr))
			}
			return Restricted, err
		}
		return Failed, fmt.Errorf("locate action: %w", err)
	}
	if err := dom.Activate(ctx, e.page, action); err != nil {
		return Failed, fmt.Errorf("invoke action: %w", err)
	}

	e.confirm(ctx)
	return Succeeded, nil
}

// confirm clicks the confirmation button if one shows up. The action has
// already been invoked, so nothing here changes the outcome.
func (e *Executor) confirm(ctx context.Context) {
	if len(e.plan.Confirm) == 0 {
		return
	}
	var button dom.Handle
	found, err := e.poll(ctx, e.confirmTimeout, func() (bool, error) {
		m, err := dom.Resolve(ctx, e.page, nil, e.plan.Confirm)
		if err != nil {
			if dom.Aborts(ctx, err) {
				return false, err
			}
			return false, nil
		}
		button = m.Handle
		return true, nil
	})
	if err != nil {
		e.logger.Warn("Confirmation lookup failed, assuming the action took effect.", zap.Error(err))
		return
	}
	if !found {
		e.logger.Debug("No confirmation dialog, assuming the action took effect.")
		return
	}
	if err := dom.Activate(ctx, e.page, button); err != nil {
		e.logger.Warn("Confirmation click failed, assuming the action took effect.", zap.Error(err))
	}
}

func (e *Executor) toggle(ctx context.Context, item dom.Handle) (Outcome, error) {
	if e.plan.ActiveAttribute != "" {
		val, ok, err := e.page.Attribute(ctx, item, e.plan.ActiveAttribute)
		if err != nil {
			return Failed, fmt.Errorf("read %s: %w", e.plan.ActiveAttribute, err)
		}
		if !ok || val != e.plan.ActiveValue {
			return Failed, fmt.Errorf("%w: %s=%q", ErrNotActive, e.plan.ActiveAttribute, val)
		}
	}
	if err := dom.Activate(ctx, e.page, item); err != nil {
		return Failed, fmt.Errorf("click toggle: %w", err)
	}
	return Succeeded, nil
}

// poll evaluates cond until it is true or timeout elapses. cond is always
// evaluated at least once.
func (e *Executor) poll(ctx context.Context, timeout time.Duration, cond func() (bool, error)) (bool, error) {
	deadline := e.clock.Now().Add(timeout)
	for {
		ok, err := cond()
		if err != nil || ok {
			return ok, err
		}
		if !e.clock.Now().Before(deadline) {
			return false, nil
		}
		if err := e.clock.Sleep(ctx, e.pollInterval); err != nil {
			return false, err
		}
	}
}
