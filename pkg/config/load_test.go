package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, DefaultPort, cfg.Server.Port)
	require.Equal(t, BatchSize, cfg.Fetch.BatchSize)
	require.Equal(t, MaxFetchRows, cfg.Fetch.MaxRows)
	require.Equal(t, DefaultStoreKind, cfg.Store.Kind)
	require.Equal(t, DefaultReportTimeout, cfg.Server.ReportTimeout)
	require.Equal(t, CategoriesVersion, cfg.Categories.Version)
	require.Contains(t, cfg.Categories.Providers, "Nokia")
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "techboard.yaml")
	content := `
server:
  port: "9090"
  report_timeout: 5s
store:
  kind: sqlite
  dsn: "file:test.db"
fetch:
  batch_size: 500
categories:
  version: 3
  providers: [Acme, Globex]
  yes: [Yes, Y, Oui]
  no: [No, N, Non]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("TECHBOARD_FETCH_MAX_ROWS", "2000")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "9090", cfg.Server.Port)
	require.Equal(t, 5*time.Second, cfg.Server.ReportTimeout)
	require.Equal(t, "sqlite", cfg.Store.Kind)
	require.Equal(t, 500, cfg.Fetch.BatchSize)
	require.Equal(t, 2000, cfg.Fetch.MaxRows)
	require.Equal(t, 3, cfg.Categories.Version)
	require.Equal(t, []string{"Acme", "Globex"}, cfg.Categories.Providers)
	choices := cfg.Categories.YesNo()
	require.Len(t, choices, 2)
	require.Equal(t, Choice{Label: "No", Spellings: []string{"No", "N", "Non"}}, choices[1])
}

func TestValidateRejectsBadLiveFeed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero interval", func(c *Config) { c.Live.Interval = 0 }},
		{"negative interval", func(c *Config) { c.Live.Interval = -time.Second }},
		{"blank report", func(c *Config) { c.Live.Reports = []string{"providers", " "} }},
		{"zero report timeout", func(c *Config) { c.Server.ReportTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestValidateRejectsOversizedBatch(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Fetch.BatchSize = MaxPageSize + 1
	require.Error(t, cfg.Validate())
}

func TestCategoriesValidate(t *testing.T) {
	c := DefaultCategories()
	require.NoError(t, c.Validate())

	c.No = append(c.No, " y ")
	require.Error(t, c.Validate())

	c = DefaultCategories()
	c.Providers = nil
	require.Error(t, c.Validate())
}
