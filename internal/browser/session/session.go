// internal/browser/session/session.go
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	cdpdom "github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sweeper-cli/internal/dom"
)

const objectGroup = "sweeper"

// element is a remote object reference to a DOM element.
type element struct {
	id  runtime.RemoteObjectID
	key string
	gen uint64
}

func (e *element) Key() string        { return e.key }
func (e *element) Generation() uint64 { return e.gen }

// Session is a single browser tab driven over CDP. It implements dom.Page.
type Session struct {
	ctx    context.Context // tab context, carries the chromedp target
	cancel context.CancelFunc
	logger *zap.Logger

	navigationTimeout time.Duration
	gen               atomic.Uint64
	closed            atomic.Bool
}

var _ dom.Page = (*Session)(nil)

// NewSession wraps a chromedp tab context. cancel must release the tab and
// its allocator.
func NewSession(ctx context.Context, cancel context.CancelFunc, navigationTimeout time.Duration, logger *zap.Logger) *Session {
	return &Session{
		ctx:               ctx,
		cancel:            cancel,
		logger:            logger.Named("session"),
		navigationTimeout: navigationTimeout,
	}
}

// RunActions executes chromedp actions on the tab, bounded by ctx.
func (s *Session) RunActions(ctx context.Context, actions ...chromedp.Action) error {
	if s.closed.Load() {
		return errors.New("session is closed")
	}
	opCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(opCtx, actions...)
}

// Close shuts the browser down. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.logger.Debug("Closing browser session.")

	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(s.ctx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	s.cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

// -- Navigation --

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.bump(ctx)
	navCtx, cancel := context.WithTimeout(ctx, s.navigationTimeout)
	defer cancel()
	if err := s.RunActions(navCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (s *Session) Reload(ctx context.Context) error {
	s.bump(ctx)
	navCtx, cancel := context.WithTimeout(ctx, s.navigationTimeout)
	defer cancel()
	if err := s.RunActions(navCtx, chromedp.Reload()); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return nil
}

func (s *Session) Back(ctx context.Context) error {
	s.bump(ctx)
	navCtx, cancel := context.WithTimeout(ctx, s.navigationTimeout)
	defer cancel()
	if err := s.RunActions(navCtx, chromedp.NavigateBack()); err != nil {
		return fmt.Errorf("navigate back: %w", err)
	}
	return nil
}

// bump invalidates every handle issued so far and releases their remote objects.
func (s *Session) bump(ctx context.Context) {
	s.gen.Add(1)
	err := s.RunActions(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return runtime.ReleaseObjectGroup(objectGroup).Do(ctx)
	}))
	if err != nil {
		s.logger.Debug("Failed to release object group.", zap.Error(err))
	}
}

func (s *Session) URL(ctx context.Context) (string, error) {
	var url string
	if err := s.RunActions(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

func (s *Session) Generation() uint64 { return s.gen.Load() }

// -- Document state --

func (s *Session) ReadyState(ctx context.Context) (string, error) {
	var state string
	if err := s.RunActions(ctx, chromedp.Evaluate(`document.readyState`, &state)); err != nil {
		return "", err
	}
	return state, nil
}

func (s *Session) ScrollToBottom(ctx context.Context) error {
	return s.RunActions(ctx, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil))
}

func (s *Session) ScrollHeight(ctx context.Context) (int64, error) {
	var h float64
	if err := s.RunActions(ctx, chromedp.Evaluate(`document.body.scrollHeight`, &h)); err != nil {
		return 0, err
	}
	return int64(h), nil
}

func (s *Session) Dismiss(ctx context.Context) error {
	return s.RunActions(ctx, chromedp.Evaluate(dismissScript, nil))
}

// -- Queries --

func (s *Session) QueryAll(ctx context.Context, scope dom.Handle, st dom.Strategy) ([]dom.Handle, error) {
	gen := s.gen.Load()
	call := fmt.Sprintf("(%s).call(this, %s, %s)", queryScript, jsonEncode(st.Kind.String()), jsonEncode(st.Pattern))

	var list *runtime.RemoteObject
	if scope == nil {
		err := s.RunActions(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			res, exc, err := runtime.Evaluate("(function() { return " + call + "; }).call(document)").
				WithObjectGroup(objectGroup).
				Do(ctx)
			if err != nil {
				return err
			}
			if exc != nil {
				return fmt.Errorf("query %s: %s", st, exceptionText(exc))
			}
			list = res
			return nil
		}))
		if err != nil {
			return nil, mapErr(err)
		}
	} else {
		el, err := s.element(scope)
		if err != nil {
			return nil, err
		}
		list, err = s.callOn(ctx, el.id, "function() { return "+call+"; }", false)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", st, err)
		}
	}
	if list == nil || list.ObjectID == "" {
		return nil, nil
	}

	var keys []string
	if err := s.callOnInto(ctx, list.ObjectID, keysScript, &keys); err != nil {
		return nil, err
	}
	out := make([]dom.Handle, 0, len(keys))
	for i, key := range keys {
		obj, err := s.callOn(ctx, list.ObjectID, indexScript(i), false)
		if err != nil {
			return nil, err
		}
		if obj == nil || obj.ObjectID == "" {
			continue
		}
		out = append(out, &element{id: obj.ObjectID, key: key, gen: gen})
	}
	return out, nil
}

func (s *Session) Visible(ctx context.Context, h dom.Handle) (bool, error) {
	el, err := s.element(h)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := s.callOnInto(ctx, el.id, visibleScript, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (s *Session) Text(ctx context.Context, h dom.Handle) (string, error) {
	el, err := s.element(h)
	if err != nil {
		return "", err
	}
	var text string
	if err := s.callOnInto(ctx, el.id, textScript, &text); err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(text), " "), nil
}

func (s *Session) Attribute(ctx context.Context, h dom.Handle, name string) (string, bool, error) {
	el, err := s.element(h)
	if err != nil {
		return "", false, err
	}
	var res struct {
		Present bool   `json:"present"`
		Value   string `json:"value"`
	}
	if err := s.callOnInto(ctx, el.id, attributeScript(name), &res); err != nil {
		return "", false, err
	}
	return res.Value, res.Present, nil
}

// -- Interaction --

func (s *Session) ScrollIntoView(ctx context.Context, h dom.Handle) error {
	el, err := s.element(h)
	if err != nil {
		return err
	}
	_, err = s.callOn(ctx, el.id, scrollIntoViewScript, true)
	return err
}

// Click dispatches a trusted mouse click at the element's center. It fails
// with dom.ErrClickIntercepted when another element covers that point.
func (s *Session) Click(ctx context.Context, h dom.Handle) error {
	el, err := s.element(h)
	if err != nil {
		return err
	}

	var quads []cdpdom.Quad
	err = s.RunActions(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		quads, err = cdpdom.GetContentQuads().WithObjectID(el.id).Do(ctx)
		return err
	}))
	if err != nil {
		return mapErr(err)
	}
	if len(quads) == 0 || len(quads[0]) < 8 {
		return errors.New("element has no layout box")
	}
	x, y := center(quads[0])

	var hit bool
	if err := s.callOnInto(ctx, el.id, hitTestScript(x, y), &hit); err != nil {
		return err
	}
	if !hit {
		return dom.ErrClickIntercepted
	}

	return mapErr(s.RunActions(ctx,
		input.DispatchMouseEvent(input.MouseMoved, x, y),
		input.DispatchMouseEvent(input.MousePressed, x, y).WithButton(input.Left).WithClickCount(1),
		input.DispatchMouseEvent(input.MouseReleased, x, y).WithButton(input.Left).WithClickCount(1),
	))
}

func (s *Session) ClickScript(ctx context.Context, h dom.Handle) error {
	el, err := s.element(h)
	if err != nil {
		return err
	}
	_, err = s.callOn(ctx, el.id, clickScript, true)
	return err
}

// -- Helpers --

func (s *Session) element(h dom.Handle) (*element, error) {
	el, ok := h.(*element)
	if !ok {
		return nil, fmt.Errorf("foreign handle %T", h)
	}
	if err := dom.CheckFresh(s, h); err != nil {
		return nil, err
	}
	return el, nil
}

func (s *Session) callOn(ctx context.Context, id runtime.RemoteObjectID, fn string, byValue bool) (*runtime.RemoteObject, error) {
	var res *runtime.RemoteObject
	err := s.RunActions(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, exc, err := runtime.CallFunctionOn(fn).
			WithObjectID(id).
			WithReturnByValue(byValue).
			WithObjectGroup(objectGroup).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return errors.New(exceptionText(exc))
		}
		res = obj
		return nil
	}))
	return res, mapErr(err)
}

func (s *Session) callOnInto(ctx context.Context, id runtime.RemoteObjectID, fn string, out interface{}) error {
	res, err := s.callOn(ctx, id, fn, true)
	if err != nil {
		return err
	}
	if res == nil || len(res.Value) == 0 {
		return fmt.Errorf("script returned %s", remoteType(res))
	}
	if err := json.Unmarshal(res.Value, out); err != nil {
		return fmt.Errorf("decode script result: %w", err)
	}
	return nil
}

func remoteType(obj *runtime.RemoteObject) string {
	if obj == nil {
		return "nothing"
	}
	return string(obj.Type)
}

func exceptionText(exc *runtime.ExceptionDetails) string {
	if exc.Exception != nil && exc.Exception.Description != "" {
		return exc.Exception.Description
	}
	return exc.Text
}

// mapErr turns CDP errors about vanished objects into dom.ErrStaleHandle.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	for _, marker := range []string{
		"Could not find object with given id",
		"Cannot find context with specified id",
		"Node is detached from document",
		"Execution context was destroyed",
	} {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %v", dom.ErrStaleHandle, err)
		}
	}
	return err
}

func center(q cdpdom.Quad) (float64, float64) {
	var x, y float64
	for i := 0; i < 8; i += 2 {
		x += q[i]
		y += q[i+1]
	}
	return x / 4, y / 4
}
