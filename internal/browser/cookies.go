// internal/browser/cookies.go
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/mitchellh/go-homedir"
)

// SessionCookie is the cookie that carries a logged-in LinkedIn session.
const SessionCookie = "li_at"

// ActionRunner runs chromedp actions against a live tab.
type ActionRunner interface {
	RunActions(ctx context.Context, actions ...chromedp.Action) error
}

// StoredCookies is the on-disk form of a captured session.
type StoredCookies struct {
	Cookies    []*network.Cookie `json:"cookies"`
	CapturedAt time.Time         `json:"captured_at"`
	// ExpiresAt is the session cookie's expiry, zero when it has none.
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether the stored session can still be replayed at now.
func (s *StoredCookies) Valid(now time.Time) bool {
	if s == nil || !s.hasSession() {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}

func (s *StoredCookies) hasSession() bool {
	for _, c := range s.Cookies {
		if c.Name == SessionCookie && c.Value != "" {
			return true
		}
	}
	return false
}

// CookieStore persists the LinkedIn session between runs so the operator
// does not have to log in every time.
type CookieStore struct {
	path string
}

// NewCookieStore creates a store at path. A leading ~ is expanded.
func NewCookieStore(path string) (*CookieStore, error) {
	if path == "" {
		return nil, errors.New("cookie store path is empty")
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("expand cookie path: %w", err)
	}
	return &CookieStore{path: expanded}, nil
}

// Path returns the resolved file path.
func (cs *CookieStore) Path() string { return cs.path }

// Save writes the LinkedIn cookies among cookies to disk, readable only by
// the current user.
func (cs *CookieStore) Save(cookies []*network.Cookie, now time.Time) error {
	if err := os.MkdirAll(filepath.Dir(cs.path), 0o700); err != nil {
		return err
	}

	stored := StoredCookies{
		Cookies:    linkedInCookies(cookies),
		CapturedAt: now,
	}
	for _, c := range stored.Cookies {
		// Session cookies report -1.
		if c.Name == SessionCookie && c.Expires > 0 {
			stored.ExpiresAt = time.Unix(int64(c.Expires), 0)
		}
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(cs.path, data, 0o600)
}

// Load reads the stored cookies. A missing file is reported as os.ErrNotExist.
func (cs *CookieStore) Load() (*StoredCookies, error) {
	data, err := os.ReadFile(cs.path)
	if err != nil {
		return nil, err
	}
	var stored StoredCookies
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("decode %s: %w", cs.path, err)
	}
	return &stored, nil
}

// Clear removes the stored session. Clearing an empty store is not an error.
func (cs *CookieStore) Clear() error {
	if err := os.Remove(cs.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Inject replays a still-valid stored session into the browser. It reports
// whether anything was injected.
func (cs *CookieStore) Inject(ctx context.Context, r ActionRunner, now time.Time) (bool, error) {
	stored, err := cs.Load()
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !stored.Valid(now) {
		return false, nil
	}

	err = r.RunActions(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range stored.Cookies {
			if err := restoreCookie(c).Do(ctx); err != nil {
				return fmt.Errorf("set cookie %s: %w", c.Name, err)
			}
		}
		return nil
	}))
	if err != nil {
		return false, err
	}
	return true, nil
}

// Capture reads the browser's cookies and saves the LinkedIn ones.
func (cs *CookieStore) Capture(ctx context.Context, r ActionRunner, now time.Time) error {
	var cookies []*network.Cookie
	err := r.RunActions(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return fmt.Errorf("read browser cookies: %w", err)
	}
	return cs.Save(cookies, now)
}

// restoreCookie rebuilds a captured cookie. A positive expiry is kept so the
// restored cookie stays persistent; session cookies report -1 and stay
// session cookies.
func restoreCookie(c *network.Cookie) *network.SetCookieParams {
	params := network.SetCookie(c.Name, c.Value).
		WithDomain(c.Domain).
		WithPath(c.Path).
		WithSecure(c.Secure).
		WithHTTPOnly(c.HTTPOnly).
		WithSameSite(c.SameSite)
	if c.Expires > 0 {
		sec, frac := math.Modf(c.Expires)
		expires := cdp.TimeSinceEpoch(time.Unix(int64(sec), int64(frac*1e9)))
		params = params.WithExpires(&expires)
	}
	return params
}

func linkedInCookies(cookies []*network.Cookie) []*network.Cookie {
	out := make([]*network.Cookie, 0, len(cookies))
	for _, c := range cookies {
		domain := strings.TrimPrefix(c.Domain, ".")
		if domain == "linkedin.com" || strings.HasSuffix(domain, ".linkedin.com") {
			out = append(out, c)
		}
	}
	return out
}
