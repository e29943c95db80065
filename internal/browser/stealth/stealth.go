package stealth

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

//go:embed evasions.js
var evasionsScript string

// Persona defines the browser characteristics to emulate.
type Persona struct {
	UserAgent string
	Platform  string
	Languages []string
	Timezone  string
	Locale    string
}

// DefaultPersona provides a realistic desktop profile.
var DefaultPersona = Persona{
	UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	Platform:  "Win32",
	Languages: []string{"en-US", "en"},
	Timezone:  "America/Los_Angeles",
	Locale:    "en-US",
}

// Merge fills the zero fields of p from DefaultPersona.
func (p Persona) Merge() Persona {
	if p.UserAgent == "" {
		p.UserAgent = DefaultPersona.UserAgent
	}
	if p.Platform == "" {
		p.Platform = DefaultPersona.Platform
	}
	if len(p.Languages) == 0 {
		p.Languages = DefaultPersona.Languages
	}
	if p.Timezone == "" {
		p.Timezone = DefaultPersona.Timezone
	}
	if p.Locale == "" {
		p.Locale = DefaultPersona.Locale
	}
	return p
}

// acceptLanguage renders the persona's languages as an Accept-Language header.
func (p Persona) acceptLanguage() string {
	parts := make([]string, 0, len(p.Languages))
	for i, lang := range p.Languages {
		if i == 0 {
			parts = append(parts, lang)
			continue
		}
		q := 1.0 - 0.1*float64(i)
		if q < 0.1 {
			q = 0.1
		}
		parts = append(parts, fmt.Sprintf("%s;q=%.1f", lang, q))
	}
	return strings.Join(parts, ",")
}

// script prefixes the evasions with the persona values they read.
func (p Persona) script() string {
	langs := make([]string, len(p.Languages))
	for i, l := range p.Languages {
		langs[i] = fmt.Sprintf("%q", l)
	}
	return fmt.Sprintf("const __persona = {platform: %q, languages: [%s]};\n%s",
		p.Platform, strings.Join(langs, ", "), evasionsScript)
}

// Apply returns the CDP actions that make an automated tab look like a
// regular user's browser.
func Apply(p Persona, logger *zap.Logger) chromedp.Tasks {
	if logger == nil {
		logger = zap.NewNop()
	}
	p = p.Merge()
	logger.Debug("Applying browser stealth persona.",
		zap.String("userAgent", p.UserAgent),
		zap.String("platform", p.Platform),
	)

	return chromedp.Tasks{
		emulation.SetUserAgentOverride(p.UserAgent).
			WithPlatform(p.Platform).
			WithAcceptLanguage(p.acceptLanguage()),
		// AddScriptToEvaluateOnNewDocument returns two values, so it needs a wrapper.
		chromedp.ActionFunc(func(ctx context.Context) error {
			if _, err := page.AddScriptToEvaluateOnNewDocument(p.script()).Do(ctx); err != nil {
				return fmt.Errorf("failed to inject evasions script: %w", err)
			}
			return nil
		}),
		emulation.SetTimezoneOverride(p.Timezone),
		emulation.SetLocaleOverride().WithLocale(p.Locale),
		network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": p.acceptLanguage(),
		}),
	}
}
