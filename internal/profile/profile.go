// internal/profile/profile.go
package profile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/sweeper-cli/internal/config"
	"github.com/xkilldash9x/sweeper-cli/internal/dom"
	"github.com/xkilldash9x/sweeper-cli/internal/engine"
)

// Kind names one of the activity feeds the tool can sweep.
type Kind string

const (
	Posts     Kind = "posts"
	Comments  Kind = "comments"
	Reactions Kind = "reactions"
)

// Kinds lists every supported kind in command order.
func Kinds() []Kind { return []Kind{Posts, Comments, Reactions} }

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown target %q (expected posts, comments or reactions)", s)
}

// Profile is everything the engine needs to sweep one kind of feed.
type Profile struct {
	Kind       Kind
	Target     engine.Target
	Plan       engine.Plan
	Indicators engine.Indicators
	Expanders  []engine.Expander
}

// For builds the profile of kind, with the preservation rule taken from tc.
func For(kind Kind, tc config.TargetConfig) (Profile, error) {
	preserve, err := preservation(tc.Preserve)
	if err != nil {
		return Profile{}, err
	}
	p := Profile{
		Kind:       kind,
		Indicators: engine.Indicators{Errors: errorIndicators, Content: contentIndicators},
	}

	switch kind {
	case Posts:
		p.Target = engine.Target{Name: string(kind), Items: []dom.Chain{postItems}, Preserve: preserve}
		p.Plan = engine.Plan{
			Mode:    engine.ModeDelete,
			Trigger: postMenuTriggers,
			Menu:    menuContainers,
			Action: engine.PositionalLocator{
				Explicit:   postDeleteEntries,
				Entries:    postMenuEntries,
				Classifier: repostClassifier,
				Positions:  deletePositions,
				Labels:     destructiveLabels,
			},
			Confirm: postConfirmButtons,
		}
	case Comments:
		p.Target = engine.Target{Name: string(kind), Items: []dom.Chain{commentItems}, Preserve: preserve}
		p.Plan = engine.Plan{
			Mode:    engine.ModeDelete,
			Trigger: commentMenuTriggers,
			Menu:    menuContainers,
			Action:  engine.ChainLocator{Chain: commentDeleteEntries},
			Confirm: commentConfirmButtons,
		}
	case Reactions:
		p.Target = engine.Target{
			Name:     string(kind),
			Items:    []dom.Chain{likedPostToggles, likedCommentToggles},
			Preserve: preserve,
		}
		p.Plan = engine.Plan{
			Mode:            engine.ModeToggle,
			ActiveAttribute: "aria-pressed",
			ActiveValue:     "true",
		}
		p.Expanders = reactionExpanders
	default:
		return Profile{}, fmt.Errorf("unknown target %q", kind)
	}
	return p, nil
}

func preservation(setting string) (engine.PreservationRule, error) {
	n, err := config.ParsePreserve(setting)
	if err != nil {
		return nil, err
	}
	switch n {
	case 0:
		return engine.PreserveNone, nil
	case 1:
		return engine.PreserveFirst, nil
	default:
		return engine.PreserveFirstN(n), nil
	}
}

// Settings merges the engine section, the target section and the run flags.
func Settings(ec config.EngineConfig, tc config.TargetConfig, rc config.RunConfig) engine.Settings {
	s := engine.DefaultSettings()

	s.ItemCap = rc.ItemCap
	s.InitialScrollRounds = ec.InitialScrollRounds
	if rc.ScrollRounds > 0 {
		s.InitialScrollRounds = rc.ScrollRounds
	}
	s.ShortScrollRounds = ec.ShortScrollRounds
	s.MaxRetriesPerItem = ec.MaxRetriesPerItem
	s.MaxStalledPasses = ec.MaxStalledPasses
	s.FailureThreshold = tc.FailureThreshold
	s.RefreshInterval = tc.RefreshInterval

	setDuration(&s.ScrollDelay, ec.ScrollDelay)
	setDuration(&s.RetryDelay, ec.RetryDelay)
	setDuration(&s.ActionInterval, ec.ActionInterval)
	setDuration(&s.ActionTimeout, ec.ActionTimeout)
	setDuration(&s.PollInterval, ec.PollInterval)
	setDuration(&s.LoadTimeout, ec.LoadTimeout)
	setDuration(&s.MenuTimeout, tc.MenuTimeout)
	setDuration(&s.ConfirmTimeout, ec.ConfirmTimeout)
	setDuration(&s.ErrorCooldown, ec.ErrorCooldown)
	setDuration(&s.ReloadSettle, ec.ReloadSettle)
	setDuration(&s.ExpandSettle, ec.ExpandSettle)
	setDuration(&s.EndCheckSettle, ec.EndCheckSettle)
	setDuration(&s.EndRecheck, ec.EndRecheck)
	return s
}

// setDuration keeps the default when the configured value is unset.
func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

// Location classifies the page the browser ended up on.
type Location int

const (
	// AtActivity is a recent-activity feed.
	AtActivity Location = iota
	// AtLogin is a login or authentication wall.
	AtLogin
	// Elsewhere is any other page.
	Elsewhere
)

func (l Location) String() string {
	switch l {
	case AtActivity:
		return "activity"
	case AtLogin:
		return "login"
	default:
		return "elsewhere"
	}
}

// Inspect classifies a page URL.
func Inspect(url string) Location {
	u := strings.ToLower(url)
	switch {
	case strings.Contains(u, "login") || strings.Contains(u, "auth"):
		return AtLogin
	case strings.Contains(u, "recent-activity"):
		return AtActivity
	default:
		return Elsewhere
	}
}

// OpenActivity follows the first visible link to a recent-activity feed.
func OpenActivity(ctx context.Context, page dom.Page) error {
	m, err := dom.Resolve(ctx, page, nil, activityLinks)
	if err != nil {
		return fmt.Errorf("find activity link: %w", err)
	}
	if err := dom.Activate(ctx, page, m.Handle); err != nil {
		return fmt.Errorf("open activity link: %w", err)
	}
	return nil
}
