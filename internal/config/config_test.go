// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "sweeper", cfg.Logger().ServiceName)
	assert.False(t, cfg.Browser().Headless)
	assert.Equal(t, 45*time.Second, cfg.Browser().NavigationTimeout)
	assert.Equal(t, 2, cfg.Engine().MaxRetriesPerItem)
	assert.Equal(t, 5, cfg.Engine().InitialScrollRounds)
	assert.Equal(t, 2*time.Second, cfg.Engine().ActionInterval)

	assert.Equal(t, 5, cfg.Targets().Posts.FailureThreshold)
	assert.Equal(t, 0, cfg.Targets().Posts.RefreshInterval)
	assert.Equal(t, 200, cfg.Targets().Comments.RefreshInterval)
	assert.Equal(t, 10, cfg.Targets().Reactions.FailureThreshold)
	assert.Equal(t, 50, cfg.Targets().Reactions.RefreshInterval)
	assert.Equal(t, "none", cfg.Targets().Reactions.Preserve)

	require.NoError(t, cfg.Validate(), "defaults must validate")
}

func TestTarget(t *testing.T) {
	cfg := NewDefaultConfig()

	posts, err := cfg.Target("Posts")
	require.NoError(t, err)
	assert.Contains(t, posts.URL, "/recent-activity/all/")

	comments, err := cfg.Target("comments")
	require.NoError(t, err)
	assert.Contains(t, comments.URL, "/recent-activity/comments/")

	_, err = cfg.Target("connections")
	assert.Error(t, err)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Engine Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.EngineCfg.MaxRetriesPerItem = 0

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_retries_per_item must be a positive integer")
	})

	t.Run("Browser Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.BrowserCfg.NavigationTimeout = 0

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "navigation_timeout must be a positive duration")
	})

	t.Run("Target Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.TargetsCfg.Comments.FailureThreshold = 0

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "targets.comments configuration invalid")

		cfg = NewDefaultConfig()
		cfg.TargetsCfg.Reactions.Preserve = "last"
		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "preserve must be")

		cfg = NewDefaultConfig()
		cfg.TargetsCfg.Posts.URL = ""
		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "url is required")
	})
}

func TestParsePreserve(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "", want: 1},
		{in: "first", want: 1},
		{in: " FIRST ", want: 1},
		{in: "none", want: 0},
		{in: "first:3", want: 3},
		{in: "first:-1", wantErr: true},
		{in: "first:x", wantErr: true},
		{in: "all", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePreserve(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
engine:
  max_retries_per_item: 4
targets:
  comments:
    refresh_interval: 100
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, 4, cfg.Engine().MaxRetriesPerItem)
		assert.Equal(t, 100, cfg.Targets().Comments.RefreshInterval)
		// Untouched keys keep their defaults.
		assert.Equal(t, 5, cfg.Targets().Comments.FailureThreshold)
		assert.Equal(t, "info", cfg.Logger().Level)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("engine.max_retries_per_item", 0)

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBufferString(`
browser:
  cookie_file: /from/config.json
`)))

		t.Setenv("SWEEPER_COOKIE_FILE", "/from/env.json")
		t.Setenv("SWEEPER_PROFILE_DIR", "/tmp/profile")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, "/from/env.json", cfg.Browser().CookieFile)
		assert.Equal(t, "/tmp/profile", cfg.Browser().UserDataDir)
	})
}

// -- Struct and Mapping Tests --

func TestConfigStructureMapping(t *testing.T) {
	yamlInput := `
logger:
  level: debug
  log_file: /var/log/sweeper.log
browser:
  headless: true
  args: ["window-position=0,0"]
engine:
  poll_interval: 100ms
targets:
  reactions:
    preserve: "first:2"
`
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBufferString(yamlInput)))

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))

	assert.Equal(t, "debug", cfg.Logger().Level)
	assert.Equal(t, "/var/log/sweeper.log", cfg.Logger().LogFile)
	assert.True(t, cfg.Browser().Headless)
	assert.Equal(t, []string{"window-position=0,0"}, cfg.Browser().Args)
	assert.Equal(t, 100*time.Millisecond, cfg.Engine().PollInterval)
	assert.Equal(t, "first:2", cfg.Targets().Reactions.Preserve)
}

func TestSetRunConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	cfg.SetRunConfig(RunConfig{Target: "posts", ItemCap: 10})
	assert.Equal(t, "posts", cfg.Run().Target)
	assert.Equal(t, 10, cfg.Run().ItemCap)
}
