// internal/engine/processor_test.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/sweeper-cli/internal/dom"
	"github.com/xkilldash9x/sweeper-cli/internal/dom/domtest"
)

// -- Mock Implementations --

type mockActor struct {
	mock.Mock
}

func (m *mockActor) Execute(ctx context.Context, item dom.Handle) (Outcome, error) {
	args := m.Called(ctx, item)
	return args.Get(0).(Outcome), args.Error(1)
}

// -- Test Suite --

func TestProcessor_PreservesFirstAndRemovesTheRest(t *testing.T) {
	s := testSettings()
	f := newFeed(itemIDs(5)...)
	h := newHarness(f.page, s)
	p := h.processor(t, h.executor(deletePlan(), s), Target{}, s)

	tally, err := p.Run(context.Background())
	require.NoError(t, err)

	want := Tally{Processed: 5, Succeeded: 4, Preserved: 1}
	if diff := cmp.Diff(want, tally); diff != "" {
		t.Errorf("tally mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"p1"}, f.remaining())
	assert.Equal(t, 1, h.logs.FilterMessage("Reached the end of the feed.").Len())
	assert.Equal(t, 1, h.logs.FilterMessage("Sweep finished.").Len())
}

func TestProcessor_NeverExceedsItemCap(t *testing.T) {
	for limit := 1; limit <= 7; limit++ {
		t.Run(fmt.Sprintf("cap=%d", limit), func(t *testing.T) {
			s := testSettings()
			s.ItemCap = limit
			f := newFeed(itemIDs(5)...)
			h := newHarness(f.page, s)
			p := h.processor(t, h.executor(deletePlan(), s), Target{}, s)

			tally, err := p.Run(context.Background())
			require.NoError(t, err)
			assert.LessOrEqual(t, tally.Processed, limit)
			if limit <= 5 {
				assert.Equal(t, limit, tally.Processed)
				assert.Equal(t, limit-1, tally.Succeeded)
			}
		})
	}
}

func TestProcessor_FirstPositionIsNeverActedOn(t *testing.T) {
	s := testSettings()
	s.RefreshInterval = 2
	f := newFeed(itemIDs(7)...)
	h := newHarness(f.page, s)

	exec := h.executor(deletePlan(), s)
	actor := &mockActor{}
	touchedFirst := false
	actor.On("Execute", mock.Anything, mock.Anything).Return(Succeeded, nil).Run(func(args mock.Arguments) {
		handle := args.Get(1).(dom.Handle)
		for _, n := range f.page.Find("#p1") {
			if fmt.Sprintf("%p", n) == handle.Key() {
				touchedFirst = true
			}
		}
		_, _ = exec.Execute(args.Get(0).(context.Context), handle)
	})
	p := h.processor(t, actor, Target{}, s)

	tally, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, touchedFirst, "position 0 reached the actor")
	assert.Equal(t, 6, tally.Succeeded)
	assert.Equal(t, 3, tally.Refreshes, "one refresh per two successes")
	assert.Equal(t, []string{"p1"}, f.remaining())
}

func TestProcessor_PreserveNoneActsOnEveryItem(t *testing.T) {
	s := testSettings()
	f := newFeed(itemIDs(3)...)
	h := newHarness(f.page, s)
	p := h.processor(t, h.executor(deletePlan(), s), Target{Preserve: PreserveNone}, s)

	tally, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, tally.Succeeded)
	assert.Zero(t, tally.Preserved)
	assert.Empty(t, f.remaining())
}

func TestProcessor_RestrictedNeverCountsAsFailure(t *testing.T) {
	s := testSettings()
	s.MaxRetriesPerItem = 1
	s.FailureThreshold = 2
	f := newFeed(itemIDs(5)...)
	f.restricted["p3"] = true
	for _, id := range []string{"p2", "p4"} {
		f.page.FailDirectClick("#"+id+" .menu-btn", dom.ErrClickIntercepted)
		f.page.FailScriptClick("#"+id+" .menu-btn", errors.New("detached"))
	}
	h := newHarness(f.page, s)
	p := h.processor(t, h.executor(deletePlan(), s), Target{}, s)

	tally, err := p.Run(context.Background())
	require.NoError(t, err)

	want := Tally{Processed: 5, Succeeded: 1, Restricted: 1, Preserved: 1, Failed: 2}
	if diff := cmp.Diff(want, tally); diff != "" {
		t.Errorf("tally mismatch (-want +got):\n%s", diff)
	}
	assert.Zero(t, f.page.Count("reload"), "fail, restricted, fail must not trip a threshold of two")
	assert.Equal(t, []string{"p1", "p2", "p3", "p4"}, f.remaining())
}

func TestProcessor_CircuitBreaker(t *testing.T) {
	s := testSettings()
	s.MaxRetriesPerItem = 1
	s.FailureThreshold = 2
	s.MaxStalledPasses = 3
	f := newFeed(itemIDs(4)...)
	f.page.FailDirectClick(".menu-btn", dom.ErrClickIntercepted)
	f.page.FailScriptClick(".menu-btn", errors.New("not clickable"))
	h := newHarness(f.page, s)
	p := h.processor(t, h.executor(deletePlan(), s), Target{}, s)

	tally, err := p.Run(context.Background())
	require.NoError(t, err)

	// Each pass: preserve p1, fail p2 and p3, refresh, abandon p4.
	want := Tally{Processed: 9, Preserved: 3, Failed: 6, Refreshes: 3}
	if diff := cmp.Diff(want, tally); diff != "" {
		t.Errorf("tally mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, f.page.Count("reload"))
	assert.Equal(t, 1, h.logs.FilterMessage("No progress after repeated refreshes, stopping.").Len())

	// The action right after the threshold-th failure is the reload.
	events := f.page.Events()
	failures := 0
	for i, e := range events {
		if !strings.HasPrefix(e, "script-click-failed") {
			continue
		}
		failures++
		if failures%s.FailureThreshold == 0 {
			require.Less(t, i+1, len(events))
			assert.Equal(t, "reload", events[i+1], "event after failure %d", failures)
		}
	}
	assert.Equal(t, 6, failures)
}

func TestProcessor_PeriodicRefreshOncePerMultiple(t *testing.T) {
	s := testSettings()
	s.RefreshInterval = 2
	f := newFeed(itemIDs(6)...)
	h := newHarness(f.page, s)
	p := h.processor(t, h.executor(deletePlan(), s), Target{}, s)

	tally, err := p.Run(context.Background())
	require.NoError(t, err)

	// Successes 2 and 4 refresh; success 5 is not a multiple.
	want := Tally{Processed: 8, Succeeded: 5, Preserved: 3, Refreshes: 2}
	if diff := cmp.Diff(want, tally); diff != "" {
		t.Errorf("tally mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2, f.page.Count("reload"))
	assert.Equal(t, []string{"p1"}, f.remaining())
}

func TestProcessor_SlowReloadDoesNotEndTheRun(t *testing.T) {
	s := testSettings()
	s.RefreshInterval = 2
	f := newFeed(itemIDs(6)...)
	page := &timedOutReload{Page: f.page, failures: 1}
	h := newHarness(page, s)
	p := h.processor(t, h.executor(deletePlan(), s), Target{}, s)

	tally, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, tally.Succeeded)
	assert.Zero(t, tally.Failed)
	assert.Equal(t, 1, h.logs.FilterMessage("Page reload failed.").Len())
	assert.Equal(t, []string{"p1"}, f.remaining())
}

func TestProcessor_FailedItemIsRetriedThenSkipped(t *testing.T) {
	s := testSettings()
	s.MaxRetriesPerItem = 3
	f := newFeed(itemIDs(3)...)
	// Only p2's delete entry refuses both kinds of click.
	f.page.FailDirectClick("#p2-delete", dom.ErrClickIntercepted)
	f.page.FailScriptClick("#p2-delete", errors.New("not clickable"))
	f.page.OnClick("#p2 .menu-btn", func(p *domtest.Page, _ *html.Node) error {
		for _, n := range p.Find(".dropdown .delete") {
			domtest.SetAttr(n, "id", "p2-delete")
		}
		return nil
	})
	h := newHarness(f.page, s)
	p := h.processor(t, h.executor(deletePlan(), s), Target{}, s)

	tally, err := p.Run(context.Background())
	require.NoError(t, err)

	want := Tally{Processed: 3, Succeeded: 1, Preserved: 1, Failed: 1}
	if diff := cmp.Diff(want, tally); diff != "" {
		t.Errorf("tally mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, s.MaxRetriesPerItem, f.page.Count("script-click-failed"))
	assert.Equal(t, []string{"p1", "p2"}, f.remaining(), "the batch went on to p3")
}

func TestProcessor_Retries(t *testing.T) {
	s := testSettings()
	s.MaxRetriesPerItem = 3

	t.Run("TransientFailureUsesEveryAttempt", func(t *testing.T) {
		h := newHarness(newFeed("p1", "p2").page, s)
		actor := &mockActor{}
		actor.On("Execute", mock.Anything, mock.Anything).Return(Failed, errors.New("menu did not open"))
		p := h.processor(t, actor, Target{}, s)

		tally, err := p.Run(context.Background())
		require.NoError(t, err)
		actor.AssertNumberOfCalls(t, "Execute", 3)
		assert.Equal(t, 1, tally.Failed)
	})

	t.Run("SucceedsOnSecondAttempt", func(t *testing.T) {
		h := newHarness(newFeed("p1", "p2").page, s)
		actor := &mockActor{}
		actor.On("Execute", mock.Anything, mock.Anything).Return(Failed, errors.New("menu did not open")).Once()
		actor.On("Execute", mock.Anything, mock.Anything).Return(Succeeded, nil).Once()
		p := h.processor(t, actor, Target{}, s)

		tally, err := p.Run(context.Background())
		require.NoError(t, err)
		actor.AssertExpectations(t)
		assert.Equal(t, 1, tally.Succeeded)
		assert.Zero(t, tally.Failed)
	})

	t.Run("StaleHandleIsNotRetried", func(t *testing.T) {
		h := newHarness(newFeed("p1", "p2").page, s)
		actor := &mockActor{}
		actor.On("Execute", mock.Anything, mock.Anything).Return(Failed, fmt.Errorf("locate: %w", dom.ErrStaleHandle))
		p := h.processor(t, actor, Target{}, s)

		tally, err := p.Run(context.Background())
		require.NoError(t, err)
		actor.AssertNumberOfCalls(t, "Execute", 1)
		assert.Equal(t, 1, tally.Failed)
	})

	t.Run("RestrictedIsNeverRetried", func(t *testing.T) {
		h := newHarness(newFeed("p1", "p2").page, s)
		actor := &mockActor{}
		actor.On("Execute", mock.Anything, mock.Anything).Return(Restricted, dom.ErrNotFound)
		p := h.processor(t, actor, Target{}, s)

		tally, err := p.Run(context.Background())
		require.NoError(t, err)
		actor.AssertNumberOfCalls(t, "Execute", 1)
		assert.Equal(t, 1, tally.Restricted)
		assert.Zero(t, tally.ConsecutiveFailures)
	})
}

func TestProcessor_InFlightActionOutlivesCancellation(t *testing.T) {
	s := testSettings()
	h := newHarness(newFeed("p1", "p2", "p3").page, s)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	actor := &mockActor{}
	var actionErr error
	actor.On("Execute", mock.Anything, mock.Anything).Return(Succeeded, nil).Run(func(args mock.Arguments) {
		cancel()
		actionErr = args.Get(0).(context.Context).Err()
	})
	p := h.processor(t, actor, Target{}, s)

	tally, err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, actionErr, "the action context must not see the cancellation")
	actor.AssertNumberOfCalls(t, "Execute", 1)
	assert.Equal(t, 1, tally.Succeeded)
}

func TestProcessor_PacesActions(t *testing.T) {
	s := testSettings()
	f := newFeed(itemIDs(4)...)
	h := newHarness(f.page, s)
	actor := &mockActor{}
	var starts []int64
	actor.On("Execute", mock.Anything, mock.Anything).Return(Restricted, dom.ErrNotFound).Run(func(mock.Arguments) {
		starts = append(starts, h.clock.Now().UnixNano())
	})
	s.RetryDelay = 0
	p := h.processor(t, actor, Target{}, s)

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(starts), 3)
	for i := 1; i < 3; i++ {
		assert.GreaterOrEqual(t, starts[i]-starts[i-1], s.ActionInterval.Nanoseconds())
	}
}

func TestProcessor_EmptyFeedStops(t *testing.T) {
	s := testSettings()
	page := domtest.New(feedURL, `<html><body><main class="feed"></main></body></html>`)
	h := newHarness(page, s)
	actor := &mockActor{}
	p := h.processor(t, actor, Target{}, s)

	tally, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Tally{}, tally)
	actor.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
	assert.Equal(t, 1, h.logs.FilterMessage("No items left on the page.").Len())
}

func TestProcessor_BrokenPageGivesUpAfterStalls(t *testing.T) {
	s := testSettings()
	s.MaxStalledPasses = 2
	page := domtest.New(feedURL, `<html><body><div class="spinner"></div></body></html>`)
	h := newHarness(page, s)
	p := h.processor(t, &mockActor{}, Target{}, s)

	tally, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, tally.Processed)
	assert.Equal(t, 1, h.logs.FilterMessage("No progress after repeated refreshes, stopping.").Len())
}

func TestProcessor_ToggleTargetWithSeveralFamilies(t *testing.T) {
	s := testSettings()
	page := domtest.New(feedURL, `<html><body><main class="feed">
		<button class="react" aria-pressed="true">Like</button>
		<button class="react" aria-pressed="true">Like</button>
		<span class="vote" aria-pressed="true">Celebrate</span>
	</main></body></html>`)
	page.OnClick(`[aria-pressed="true"]`, func(_ *domtest.Page, n *html.Node) error {
		domtest.SetAttr(n, "aria-pressed", "false")
		return nil
	})
	h := newHarness(page, s)
	plan := Plan{Mode: ModeToggle, ActiveAttribute: "aria-pressed", ActiveValue: "true"}
	target := Target{
		Name: "reactions",
		Items: []dom.Chain{
			{dom.ByCSS(`button.react[aria-pressed="true"]`)},
			{dom.ByXPath(`//span[@class="vote" and @aria-pressed="true"]`)},
		},
		Preserve: PreserveNone,
	}
	p := h.processor(t, h.executor(plan, s), target, s)

	tally, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, tally.Succeeded)
	assert.Empty(t, page.Find(`[aria-pressed="true"]`))
}

func TestNewProcessor_Validation(t *testing.T) {
	s := testSettings()
	h := newHarness(newFeed("p1").page, s)

	bad := s
	bad.MaxRetriesPerItem = 0
	_, err := NewProcessor(h.page, h.sync, h.loader, &mockActor{}, h.clock, Target{Items: testItems}, bad, h.logger)
	assert.ErrorContains(t, err, "max retries per item")

	_, err = NewProcessor(h.page, h.sync, h.loader, &mockActor{}, h.clock, Target{}, s, h.logger)
	assert.ErrorContains(t, err, "no item selectors")
}
