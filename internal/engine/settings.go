// internal/engine/settings.go
package engine

import (
	"fmt"
	"time"
)

// Settings configures one run of the engine.
type Settings struct {
	// ItemCap bounds Tally.Processed. Zero means unlimited.
	ItemCap             int
	InitialScrollRounds int
	// ShortScrollRounds is used after every forced refresh.
	ShortScrollRounds int
	ScrollDelay       time.Duration
	// RefreshInterval forces a reload after every N successes. Zero disables it.
	RefreshInterval int
	// MaxRetriesPerItem is the number of attempts made per item.
	MaxRetriesPerItem int
	FailureThreshold  int
	// MaxStalledPasses stops the run after this many consecutive refreshed
	// passes without a single success. Zero disables the guard.
	MaxStalledPasses int

	RetryDelay     time.Duration
	ActionInterval time.Duration
	ActionTimeout  time.Duration
	PollInterval   time.Duration

	LoadTimeout    time.Duration
	MenuTimeout    time.Duration
	ConfirmTimeout time.Duration
	ErrorCooldown  time.Duration
	ReloadSettle   time.Duration
	ExpandSettle   time.Duration
	EndCheckSettle time.Duration
	EndRecheck     time.Duration
}

// DefaultSettings returns the pacing the tool has always shipped with.
func DefaultSettings() Settings {
	return Settings{
		InitialScrollRounds: 5,
		ShortScrollRounds:   3,
		ScrollDelay:         2 * time.Second,
		MaxRetriesPerItem:   2,
		FailureThreshold:    5,
		MaxStalledPasses:    3,

		RetryDelay:     2 * time.Second,
		ActionInterval: 2 * time.Second,
		ActionTimeout:  45 * time.Second,
		PollInterval:   250 * time.Millisecond,

		LoadTimeout:    10 * time.Second,
		MenuTimeout:    2 * time.Second,
		ConfirmTimeout: 3 * time.Second,
		ErrorCooldown:  5 * time.Second,
		ReloadSettle:   3 * time.Second,
		ExpandSettle:   time.Second,
		EndCheckSettle: 3 * time.Second,
		EndRecheck:     2 * time.Second,
	}
}

// Validate checks the settings for sane values.
func (s Settings) Validate() error {
	if s.ItemCap < 0 {
		return fmt.Errorf("item cap must not be negative")
	}
	if s.InitialScrollRounds < 0 || s.ShortScrollRounds < 0 {
		return fmt.Errorf("scroll rounds must not be negative")
	}
	if s.RefreshInterval < 0 {
		return fmt.Errorf("refresh interval must not be negative")
	}
	if s.MaxRetriesPerItem <= 0 {
		return fmt.Errorf("max retries per item must be a positive integer")
	}
	if s.FailureThreshold <= 0 {
		return fmt.Errorf("failure threshold must be a positive integer")
	}
	if s.MaxStalledPasses < 0 {
		return fmt.Errorf("max stalled passes must not be negative")
	}
	if s.ActionTimeout <= 0 {
		return fmt.Errorf("action timeout must be a positive duration")
	}
	if s.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be a positive duration")
	}
	return nil
}
