// internal/dom/domtest/page.go
package domtest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/sweeper-cli/internal/dom"
)

// ClickFunc simulates the page's reaction to a click on n.
type ClickFunc func(p *Page, n *html.Node) error

type clickRule struct {
	selector string
	fn       ClickFunc
	direct   error
	script   error
}

type element struct {
	node *html.Node
	gen  uint64
}

func (e *element) Key() string        { return fmt.Sprintf("%p", e.node) }
func (e *element) Generation() uint64 { return e.gen }

// Page is an in-memory dom.Page backed by a parsed HTML document. It is not
// safe for concurrent use.
type Page struct {
	doc     *html.Node
	markup  string
	url     string
	history []string
	gen     uint64
	ready   string
	routes  map[string]string

	rules    []clickRule
	onReload []func(p *Page)
	onScroll []func(p *Page)
	height   func(p *Page) int64

	events []string
}

var _ dom.Page = (*Page)(nil)

// New parses markup into a page at url. It panics on malformed input.
func New(url, markup string) *Page {
	p := &Page{
		url:    url,
		markup: markup,
		ready:  "complete",
		routes: make(map[string]string),
	}
	p.doc = mustParse(markup)
	return p
}

func mustParse(markup string) *html.Node {
	doc, err := htmlquery.Parse(strings.NewReader(markup))
	if err != nil {
		panic(fmt.Sprintf("domtest: parse markup: %v", err))
	}
	return doc
}

// -- Scripting --

// OnClick registers a reaction for clicks on elements matching selector.
func (p *Page) OnClick(selector string, fn ClickFunc) {
	p.rules = append(p.rules, clickRule{selector: selector, fn: fn})
}

// FailDirectClick makes direct clicks on matching elements return err.
func (p *Page) FailDirectClick(selector string, err error) {
	p.rules = append(p.rules, clickRule{selector: selector, direct: err})
}

// FailScriptClick makes programmatic clicks on matching elements return err.
func (p *Page) FailScriptClick(selector string, err error) {
	p.rules = append(p.rules, clickRule{selector: selector, script: err})
}

// OnReload registers a hook that runs after the document is re-parsed.
func (p *Page) OnReload(fn func(p *Page)) { p.onReload = append(p.onReload, fn) }

// OnScroll registers a hook that runs on every scroll to the bottom.
func (p *Page) OnScroll(fn func(p *Page)) { p.onScroll = append(p.onScroll, fn) }

// SetHeight overrides the reported document height.
func (p *Page) SetHeight(fn func(p *Page) int64) { p.height = fn }

// SetReadyState sets the value reported for document.readyState.
func (p *Page) SetReadyState(s string) { p.ready = s }

// SetURL changes the current URL without a navigation.
func (p *Page) SetURL(u string) { p.url = u }

// Route makes navigation to url load markup.
func (p *Page) Route(url, markup string) { p.routes[url] = markup }

// SetMarkup replaces the markup restored by the next reload.
func (p *Page) SetMarkup(markup string) { p.markup = markup }

// Replace swaps the live document without bumping the generation.
func (p *Page) Replace(markup string) { p.doc = mustParse(markup) }

// -- Mutation helpers for click reactions --

// Remove detaches n from the document.
func Remove(n *html.Node) {
	if n != nil && n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// SetAttr sets or replaces an attribute on n.
func SetAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// Closest returns the nearest ancestor of n, n included, matching selector.
func Closest(n *html.Node, selector string) *html.Node {
	m, err := cascadia.Compile(selector)
	if err != nil {
		return nil
	}
	for c := n; c != nil; c = c.Parent {
		if c.Type == html.ElementNode && m.Match(c) {
			return c
		}
	}
	return nil
}

// Append parses markup and appends it to every element matching selector.
func (p *Page) Append(selector, markup string) error {
	parents := goquery.NewDocumentFromNode(p.doc).Find(selector)
	if parents.Length() == 0 {
		return fmt.Errorf("domtest: no element matches %q", selector)
	}
	parents.AppendHtml(markup)
	return nil
}

// Find returns the nodes matching a CSS selector in the live document.
func (p *Page) Find(selector string) []*html.Node {
	return goquery.NewDocumentFromNode(p.doc).Find(selector).Nodes
}

// Events returns the recorded interaction log.
func (p *Page) Events() []string { return append([]string(nil), p.events...) }

// Count returns how many recorded events start with prefix.
func (p *Page) Count(prefix string) int {
	n := 0
	for _, e := range p.events {
		if strings.HasPrefix(e, prefix) {
			n++
		}
	}
	return n
}

func (p *Page) record(format string, args ...any) {
	p.events = append(p.events, fmt.Sprintf(format, args...))
}

// -- dom.Page --

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.history = append(p.history, p.url)
	p.url = url
	p.gen++
	if markup, ok := p.routes[url]; ok {
		p.doc = mustParse(markup)
	}
	p.record("navigate %s", url)
	return nil
}

func (p *Page) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.gen++
	p.doc = mustParse(p.markup)
	p.record("reload")
	for _, fn := range p.onReload {
		fn(p)
	}
	return nil
}

func (p *Page) Back(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(p.history) == 0 {
		return errors.New("domtest: no history")
	}
	p.url = p.history[len(p.history)-1]
	p.history = p.history[:len(p.history)-1]
	p.gen++
	p.record("back")
	return nil
}

func (p *Page) URL(ctx context.Context) (string, error) { return p.url, ctx.Err() }

func (p *Page) Generation() uint64 { return p.gen }

func (p *Page) ReadyState(ctx context.Context) (string, error) { return p.ready, ctx.Err() }

func (p *Page) ScrollToBottom(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.record("scroll")
	for _, fn := range p.onScroll {
		fn(p)
	}
	return nil
}

func (p *Page) ScrollHeight(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if p.height != nil {
		return p.height(p), nil
	}
	var count int64
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			count++
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(p.doc)
	return count * 100, nil
}

func (p *Page) QueryAll(ctx context.Context, scope dom.Handle, s dom.Strategy) ([]dom.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root, err := p.node(scope)
	if err != nil {
		return nil, err
	}

	var nodes []*html.Node
	switch s.Kind {
	case dom.CSS:
		if _, err := cascadia.ParseGroup(s.Pattern); err != nil {
			return nil, fmt.Errorf("invalid selector %q: %w", s.Pattern, err)
		}
		nodes = goquery.NewDocumentFromNode(root).Find(s.Pattern).Nodes
	case dom.XPath:
		found, err := htmlquery.QueryAll(root, s.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid xpath %q: %w", s.Pattern, err)
		}
		nodes = found
	default:
		return nil, fmt.Errorf("unsupported strategy kind %v", s.Kind)
	}

	out := make([]dom.Handle, 0, len(nodes))
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			out = append(out, &element{node: n, gen: p.gen})
		}
	}
	return out, nil
}

func (p *Page) Visible(ctx context.Context, h dom.Handle) (bool, error) {
	n, err := p.node(h)
	if err != nil {
		return false, err
	}
	for c := n; c != nil; c = c.Parent {
		if c.Type != html.ElementNode {
			continue
		}
		if _, hidden := attr(c, "hidden"); hidden {
			return false, nil
		}
		style, _ := attr(c, "style")
		style = strings.ReplaceAll(strings.ToLower(style), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return false, nil
		}
	}
	return attached(n), ctx.Err()
}

func (p *Page) Text(ctx context.Context, h dom.Handle) (string, error) {
	n, err := p.node(h)
	if err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(htmlquery.InnerText(n)), " "), ctx.Err()
}

func (p *Page) Attribute(ctx context.Context, h dom.Handle, name string) (string, bool, error) {
	n, err := p.node(h)
	if err != nil {
		return "", false, err
	}
	v, ok := attr(n, name)
	return v, ok, ctx.Err()
}

func (p *Page) ScrollIntoView(ctx context.Context, h dom.Handle) error {
	_, err := p.node(h)
	if err != nil {
		return err
	}
	return ctx.Err()
}

func (p *Page) Click(ctx context.Context, h dom.Handle) error {
	return p.click(ctx, h, true)
}

func (p *Page) ClickScript(ctx context.Context, h dom.Handle) error {
	return p.click(ctx, h, false)
}

func (p *Page) Dismiss(ctx context.Context) error {
	p.record("dismiss")
	return ctx.Err()
}

func (p *Page) click(ctx context.Context, h dom.Handle, direct bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := p.node(h)
	if err != nil {
		return err
	}
	if !attached(n) {
		return errors.New("domtest: element is detached")
	}

	kind := "script-click"
	if direct {
		kind = "click"
	}
	desc := uniqueXPath(n)

	var reactions []ClickFunc
	for _, r := range p.rules {
		if !matches(n, r.selector) {
			continue
		}
		if direct && r.direct != nil {
			p.record("%s-failed %s", kind, desc)
			return r.direct
		}
		if !direct && r.script != nil {
			p.record("%s-failed %s", kind, desc)
			return r.script
		}
		if r.fn != nil {
			reactions = append(reactions, r.fn)
		}
	}

	p.record("%s %s", kind, desc)
	for _, fn := range reactions {
		if err := fn(p, n); err != nil {
			return err
		}
	}
	return nil
}

func (p *Page) node(h dom.Handle) (*html.Node, error) {
	if h == nil {
		return p.doc, nil
	}
	e, ok := h.(*element)
	if !ok {
		return nil, fmt.Errorf("domtest: foreign handle %T", h)
	}
	if err := dom.CheckFresh(p, h); err != nil {
		return nil, err
	}
	return e.node, nil
}

func matches(n *html.Node, selector string) bool {
	m, err := cascadia.Compile(selector)
	if err != nil {
		return false
	}
	return m.Match(n)
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// attached reports whether n is still connected to a document root.
func attached(n *html.Node) bool {
	for c := n; c != nil; c = c.Parent {
		if c.Type == html.DocumentNode {
			return true
		}
	}
	return false
}
