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

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "rvlookup", cfg.Logger.ServiceName)
	assert.Equal(t, BackendChromedp, cfg.Browser.Backend)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, DefaultTargetURL, cfg.Search.TargetURL)
	assert.Equal(t, 15*time.Second, cfg.Search.NavigationTimeout)
	assert.Equal(t, 20*time.Second, cfg.Search.ResultTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Search.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.Search.SubmitTimeout)
	assert.Equal(t, "LastName_", cfg.Search.Fields.LastName)
	assert.Equal(t, "Last4SSN_", cfg.Search.Fields.SSN)
	assert.Equal(t, "DateOfBirth_", cfg.Search.Fields.DOB)
	assert.Equal(t, []string{"PerformSearch"}, cfg.Search.SubmitTriggers)
	assert.Equal(t, DefaultNotFoundPhrase, cfg.Search.NotFoundPhrase)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 1, cfg.Server.Retry.MaxAttempts)

	assert.NoError(t, cfg.Validate(), "defaults must always validate")
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Browser Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Browser.Backend = "webkit"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown backend "webkit"`)

		cfg = NewDefaultConfig()
		cfg.Browser.LaunchTimeout = 0
		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "launch_timeout must be a positive duration")
	})

	t.Run("Search Validation", func(t *testing.T) {
		cases := []struct {
			name    string
			mutate  func(*SearchConfig)
			wantErr string
		}{
			{"Relative URL", func(s *SearchConfig) { s.TargetURL = "/Default.aspx" }, "target_url must be an absolute URL"},
			{"Zero Navigation Timeout", func(s *SearchConfig) { s.NavigationTimeout = 0 }, "navigation_timeout must be a positive duration"},
			{"Zero Submit Timeout", func(s *SearchConfig) { s.SubmitTimeout = 0 }, "submit_timeout must be a positive duration"},
			{"Zero Result Timeout", func(s *SearchConfig) { s.ResultTimeout = 0 }, "result_timeout must be a positive duration"},
			{"Negative Settle", func(s *SearchConfig) { s.SettleDelay = -time.Second }, "settle_delay must not be negative"},
			{"Interval Beyond Timeout", func(s *SearchConfig) { s.PollInterval = time.Minute }, "must not exceed result_timeout"},
			{"Zero Sessions", func(s *SearchConfig) { s.MaxSessions = 0 }, "max_sessions must be a positive integer"},
			{"Missing Prefix", func(s *SearchConfig) { s.Fields.SSN = "" }, "prefixes are required"},
			{"No Triggers", func(s *SearchConfig) { s.SubmitTriggers = nil; s.SubmitFallbacks = nil }, "submit_triggers or submit_fallbacks"},
			{"No Result Selectors", func(s *SearchConfig) { s.ResultSelectors = nil }, "result_selectors must list"},
			{"Blank Not Found Phrase", func(s *SearchConfig) { s.NotFoundPhrase = "  " }, "not_found_phrase is required"},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				cfg := NewDefaultConfig()
				tc.mutate(&cfg.Search)
				err := cfg.Validate()
				require.Error(t, err)
				assert.Contains(t, err.Error(), "search configuration invalid")
				assert.Contains(t, err.Error(), tc.wantErr)
			})
		}
	})

	t.Run("Server Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Server.Port = 70000
		assert.ErrorContains(t, cfg.Validate(), "port must be between 1 and 65535")

		cfg = NewDefaultConfig()
		cfg.Server.Retry.MaxAttempts = 0
		assert.ErrorContains(t, cfg.Validate(), "retry.max_attempts must be at least 1")

		cfg = NewDefaultConfig()
		cfg.Server.Retry.MaxAttempts = 3
		cfg.Server.Retry.InitialBackoff = 0
		assert.ErrorContains(t, cfg.Validate(), "retry.initial_backoff must be positive")
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
browser:
  backend: ROD
  process_per_session: true
search:
  max_sessions: 2
  result_timeout: 12s
  result_selectors:
    - "#results"
    - ".results"
server:
  port: 8080
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, BackendRod, cfg.Browser.Backend, "backend names are normalized to lower case")
		assert.True(t, cfg.Browser.ProcessPerSession)
		assert.Equal(t, 2, cfg.Search.MaxSessions)
		assert.Equal(t, 12*time.Second, cfg.Search.ResultTimeout)
		assert.Equal(t, []string{"#results", ".results"}, cfg.Search.ResultSelectors)
		assert.Equal(t, 8080, cfg.Server.Port)
		// Untouched keys keep their defaults.
		assert.Equal(t, "info", cfg.Logger.Level)
		assert.Equal(t, 5*time.Second, cfg.Search.DiscoveryGrace)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("search.max_sessions", 0)

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "max_sessions must be a positive integer")
	})

	t.Run("PORT Environment Variable", func(t *testing.T) {
		t.Setenv("PORT", "8181")
		v := viper.New()
		SetDefaults(v)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, 8181, cfg.Server.Port)
	})

	t.Run("Prefixed Environment Overrides", func(t *testing.T) {
		t.Setenv("RVLOOKUP_SEARCH_NAVIGATION_TIMEOUT", "7s")
		t.Setenv("RVLOOKUP_BROWSER_BACKEND", "simulated")
		v := viper.New()
		SetDefaults(v)
		ConfigureEnv(v)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, 7*time.Second, cfg.Search.NavigationTimeout)
		assert.Equal(t, BackendSimulated, cfg.Browser.Backend)
	})
}

func TestServerAddr(t *testing.T) {
	assert.Equal(t, ":3000", ServerConfig{Port: 3000}.Addr())
	assert.Equal(t, "127.0.0.1:8080", ServerConfig{Host: "127.0.0.1", Port: 8080}.Addr())
}
