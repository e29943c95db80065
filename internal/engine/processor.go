// internal/engine/processor.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/sweeper-cli/internal/dom"
)

// Target is what the Processor needs to know about the items it sweeps.
type Target struct {
	Name string
	// Items are enumerated family by family and concatenated into one batch.
	Items    []dom.Chain
	Preserve PreservationRule
}

// Processor is the bulk processing loop.
type Processor struct {
	page     dom.Page
	sync     *Synchronizer
	loader   *Loader
	actor    Actor
	clock    Clock
	logger   *zap.Logger
	settings Settings
	target   Target
	limiter  *rate.Limiter
}

// NewProcessor creates a Processor. A nil Preserve rule defaults to PreserveFirst.
func NewProcessor(page dom.Page, sync *Synchronizer, loader *Loader, actor Actor, clock Clock, target Target, s Settings, logger *zap.Logger) (*Processor, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine settings: %w", err)
	}
	if len(target.Items) == 0 {
		return nil, errors.New("target has no item selectors")
	}
	if target.Preserve == nil {
		target.Preserve = PreserveFirst
	}
	limit := rate.Inf
	if s.ActionInterval > 0 {
		limit = rate.Every(s.ActionInterval)
	}
	return &Processor{
		page:     page,
		sync:     sync,
		loader:   loader,
		actor:    actor,
		clock:    clock,
		logger:   logger.Named("processor").With(zap.String("target", target.Name)),
		settings: s,
		target:   target,
		limiter:  rate.NewLimiter(limit, 1),
	}, nil
}

type batchResult int

const (
	batchDone batchResult = iota
	// batchAbandoned means the page changed under the batch and its handles are stale.
	batchAbandoned
	batchCapped
)

// Run sweeps the feed until it is exhausted or the item cap is reached. The
// tally is always returned; the error is non-nil only when ctx ends the run.
func (p *Processor) Run(ctx context.Context) (Tally, error) {
	var t Tally
	s := p.settings
	p.logger.Info("Starting sweep.",
		zap.Int("item_cap", s.ItemCap),
		zap.Int("initial_scroll_rounds", s.InitialScrollRounds),
		zap.Int("refresh_interval", s.RefreshInterval),
		zap.Int("failure_threshold", s.FailureThreshold))

	err := p.run(ctx, &t)
	p.logger.Info("Sweep finished.", zap.Object("tally", t), zap.Int("recoveries", p.sync.Recoveries()))
	return t, err
}

func (p *Processor) run(ctx context.Context, t *Tally) error {
	s := p.settings
	if err := p.loader.LoadMore(ctx, s.InitialScrollRounds, s.ScrollDelay); err != nil {
		return err
	}

	stalled := 0
	for pass := 1; ; pass++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.capReached(t) {
			p.logger.Info("Item cap reached.", zap.Int("item_cap", s.ItemCap))
			return nil
		}

		batch, err := p.enumerate(ctx)
		if err != nil {
			return err
		}
		p.logger.Debug("Enumerated batch.", zap.Int("pass", pass), zap.Int("items", len(batch)))

		if len(batch) == 0 {
			recovered, err := p.sync.DetectAndRecover(ctx)
			if err != nil {
				return err
			}
			if !recovered {
				p.logger.Info("No items left on the page.")
				return nil
			}
			if p.stall(&stalled) {
				return nil
			}
			continue
		}

		succeededBefore := t.Succeeded
		res, err := p.processBatch(ctx, batch, t)
		if err != nil {
			return err
		}
		switch res {
		case batchCapped:
			p.logger.Info("Item cap reached.", zap.Int("item_cap", s.ItemCap))
			return nil
		case batchAbandoned:
			if t.Succeeded > succeededBefore {
				stalled = 0
			} else if p.stall(&stalled) {
				return nil
			}
			continue
		}

		stalled = 0
		if p.capReached(t) {
			continue
		}
		exhausted, err := p.loader.Exhausted(ctx)
		if err != nil {
			return err
		}
		if exhausted {
			p.logger.Info("Reached the end of the feed.")
			return nil
		}
	}
}

// stall counts a refreshed pass that made no progress and reports whether
// the run should give up.
func (p *Processor) stall(stalled *int) bool {
	*stalled++
	if p.settings.MaxStalledPasses > 0 && *stalled >= p.settings.MaxStalledPasses {
		p.logger.Warn("No progress after repeated refreshes, stopping.", zap.Int("stalled_passes", *stalled))
		return true
	}
	return false
}

func (p *Processor) capReached(t *Tally) bool {
	return p.settings.ItemCap > 0 && t.Processed >= p.settings.ItemCap
}

func (p *Processor) enumerate(ctx context.Context) ([]dom.Handle, error) {
	var batch []dom.Handle
	for _, chain := range p.target.Items {
		nodes, _, err := dom.ResolveAll(ctx, p.page, nil, chain)
		if err != nil {
			if dom.Aborts(ctx, err) {
				return nil, err
			}
			continue
		}
		batch = append(batch, nodes...)
	}
	return batch, nil
}

func (p *Processor) processBatch(ctx context.Context, batch []dom.Handle, t *Tally) (batchResult, error) {
	s := p.settings
	gen := p.page.Generation()

	for i, item := range batch {
		if err := ctx.Err(); err != nil {
			return batchDone, err
		}
		if p.capReached(t) {
			return batchCapped, nil
		}
		if p.page.Generation() != gen {
			p.logger.Debug("Page changed under the batch, re-enumerating.", zap.Int("position", i))
			return batchAbandoned, nil
		}
		recovered, err := p.sync.DetectAndRecover(ctx)
		if err != nil {
			return batchDone, err
		}
		if recovered {
			return batchAbandoned, nil
		}

		t.Processed++
		log := p.logger.With(zap.Int("position", i), zap.Int("processed", t.Processed))
		if p.target.Preserve(item, i) {
			t.Preserved++
			log.Info("Preserving item.")
			continue
		}

		if err := p.throttle(ctx); err != nil {
			return batchDone, err
		}
		outcome, err := p.attempt(ctx, item, log)
		if err != nil {
			return batchDone, err
		}

		switch outcome {
		case Succeeded:
			t.Succeeded++
			t.ConsecutiveFailures = 0
			log.Info("Item removed.", zap.Int("succeeded", t.Succeeded))
			if s.RefreshInterval > 0 && t.Succeeded%s.RefreshInterval == 0 {
				log.Info("Periodic refresh.", zap.Int("succeeded", t.Succeeded))
				if err := p.refresh(ctx, t); err != nil {
					return batchDone, err
				}
				return batchAbandoned, nil
			}
		case Restricted:
			t.Restricted++
			t.ConsecutiveFailures = 0
		case Failed:
			t.Failed++
			t.ConsecutiveFailures++
			if t.ConsecutiveFailures >= s.FailureThreshold {
				log.Warn("Too many consecutive failures, refreshing.", zap.Int("consecutive_failures", t.ConsecutiveFailures))
				if err := p.refresh(ctx, t); err != nil {
					return batchDone, err
				}
				t.ConsecutiveFailures = 0
				return batchAbandoned, nil
			}
			continue
		}

		if err := p.pace(ctx); err != nil {
			return batchDone, err
		}
		recovered, err = p.sync.DetectAndRecover(ctx)
		if err != nil {
			return batchDone, err
		}
		if recovered {
			return batchAbandoned, nil
		}
	}
	return batchDone, nil
}

// attempt runs the actor up to MaxRetriesPerItem times. Each attempt runs on
// a context detached from ctx so cancellation never interrupts an action
// halfway; ActionTimeout still bounds it. The error is non-nil only when ctx
// ends during a retry pause.
func (p *Processor) attempt(ctx context.Context, item dom.Handle, log *zap.Logger) (Outcome, error) {
	s := p.settings
	for n := 1; n <= s.MaxRetriesPerItem; n++ {
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.ActionTimeout)
		outcome, err := p.actor.Execute(actx, item)
		cancel()

		switch outcome {
		case Succeeded:
			return Succeeded, nil
		case Restricted:
			log.Info("Item has no removable control, skipping.", zap.NamedError("reason", err))
			return Restricted, nil
		}

		log.Warn("Attempt failed.", zap.Int("attempt", n), zap.Int("max_attempts", s.MaxRetriesPerItem), zap.Error(err))
		if errors.Is(err, dom.ErrStaleHandle) || errors.Is(err, ErrNavigatedAway) {
			break
		}
		if n < s.MaxRetriesPerItem {
			if err := p.clock.Sleep(ctx, s.RetryDelay); err != nil {
				return Failed, err
			}
		}
	}
	return Failed, nil
}

func (p *Processor) refresh(ctx context.Context, t *Tally) error {
	t.Refreshes++
	if err := p.sync.Refresh(ctx); err != nil {
		return err
	}
	return p.loader.LoadMore(ctx, p.settings.ShortScrollRounds, p.settings.ScrollDelay)
}

// throttle blocks until the limiter admits the next action and claims its slot.
func (p *Processor) throttle(ctx context.Context) error {
	now := p.clock.Now()
	r := p.limiter.ReserveN(now, 1)
	if !r.OK() {
		return nil
	}
	return p.clock.Sleep(ctx, r.DelayFrom(now))
}

// pace waits until the next action would be admitted, without claiming it.
func (p *Processor) pace(ctx context.Context) error {
	limit := p.limiter.Limit()
	if limit == rate.Inf {
		return nil
	}
	tokens := p.limiter.TokensAt(p.clock.Now())
	if tokens >= 1 {
		return nil
	}
	wait := time.Duration((1 - tokens) / float64(limit) * float64(time.Second))
	return p.clock.Sleep(ctx, wait)
}
