// internal/dom/resolve.go
package dom

import (
	"context"
	"fmt"
)

// Match is the result of a successful resolution.
type Match struct {
	Handle   Handle
	Strategy Strategy
}

// Resolve walks the chain in order and returns the first visible element of
// the first strategy that has one. Query failures count as an empty result
// for that strategy unless Aborts says otherwise.
func Resolve(ctx context.Context, p Page, scope Handle, chain Chain) (Match, error) {
	if err := CheckFresh(p, scope); err != nil {
		return Match{}, err
	}
	for _, s := range chain {
		nodes, err := p.QueryAll(ctx, scope, s)
		if err != nil {
			if Aborts(ctx, err) {
				return Match{}, err
			}
			continue
		}
		for _, n := range nodes {
			ok, err := p.Visible(ctx, n)
			if err != nil {
				if Aborts(ctx, err) {
					return Match{}, err
				}
				continue
			}
			if ok {
				return Match{Handle: n, Strategy: s}, nil
			}
		}
	}
	return Match{}, fmt.Errorf("%w: %s", ErrNotFound, chain)
}

// ResolveAll returns every element, visible or not, matched by the first
// strategy that yields at least one node.
func ResolveAll(ctx context.Context, p Page, scope Handle, chain Chain) ([]Handle, Strategy, error) {
	if err := CheckFresh(p, scope); err != nil {
		return nil, Strategy{}, err
	}
	for _, s := range chain {
		nodes, err := p.QueryAll(ctx, scope, s)
		if err != nil {
			if Aborts(ctx, err) {
				return nil, Strategy{}, err
			}
			continue
		}
		if len(nodes) > 0 {
			return nodes, s, nil
		}
	}
	return nil, Strategy{}, fmt.Errorf("%w: %s", ErrNotFound, chain)
}

// ResolveVisible collects the visible elements of every strategy in the chain.
// An element matched by several strategies is reported once.
func ResolveVisible(ctx context.Context, p Page, scope Handle, chain Chain) ([]Handle, error) {
	if err := CheckFresh(p, scope); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []Handle
	for _, s := range chain {
		nodes, err := p.QueryAll(ctx, scope, s)
		if err != nil {
			if Aborts(ctx, err) {
				return nil, err
			}
			continue
		}
		for _, n := range nodes {
			if _, dup := seen[n.Key()]; dup {
				continue
			}
			ok, err := p.Visible(ctx, n)
			if err != nil {
				if Aborts(ctx, err) {
					return nil, err
				}
				continue
			}
			if ok {
				seen[n.Key()] = struct{}{}
				out = append(out, n)
			}
		}
	}
	return out, nil
}

// Exists reports whether any strategy matches at least one node, visible or not.
func Exists(ctx context.Context, p Page, scope Handle, chain Chain) (bool, error) {
	_, _, err := ResolveAll(ctx, p, scope, chain)
	if err == nil {
		return true, nil
	}
	if Aborts(ctx, err) {
		return false, err
	}
	return false, nil
}
