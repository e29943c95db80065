package stealth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestApply(t *testing.T) {
	t.Run("BuildsAllActions", func(t *testing.T) {
		core, logs := observer.New(zap.DebugLevel)

		tasks := Apply(DefaultPersona, zap.New(core))

		assert.Len(t, tasks, 5)
		require.Equal(t, 1, logs.Len())
		assert.Equal(t, "Applying browser stealth persona.", logs.All()[0].Message)
	})

	t.Run("NilLogger", func(t *testing.T) {
		assert.NotPanics(t, func() {
			Apply(DefaultPersona, nil)
		})
	})
}

func TestPersona(t *testing.T) {
	t.Run("MergeFillsGaps", func(t *testing.T) {
		p := Persona{UserAgent: "custom-agent"}.Merge()

		assert.Equal(t, "custom-agent", p.UserAgent)
		assert.Equal(t, DefaultPersona.Platform, p.Platform)
		assert.Equal(t, DefaultPersona.Languages, p.Languages)
		assert.Equal(t, DefaultPersona.Timezone, p.Timezone)
	})

	t.Run("AcceptLanguage", func(t *testing.T) {
		p := Persona{Languages: []string{"en-US", "en", "de"}}
		assert.Equal(t, "en-US,en;q=0.9,de;q=0.8", p.acceptLanguage())
	})

	t.Run("ScriptCarriesPersona", func(t *testing.T) {
		script := DefaultPersona.script()

		assert.Contains(t, script, `platform: "Win32"`)
		assert.Contains(t, script, `languages: ["en-US", "en"]`)
		assert.Contains(t, script, "webdriver")
	})
}
