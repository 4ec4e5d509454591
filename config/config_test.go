package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revuhq/revu/budget"
	"github.com/revuhq/revu/llm"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.True(t, cfg.NATS.Embedded)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Worker.MaxWorkers)
	assert.Equal(t, 3, cfg.Worker.MaxRetries)
	assert.Equal(t, 50.0, cfg.Budget.DailyBudgetUSD)
	assert.Contains(t, cfg.Models, string(llm.TierBalanced))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"zero workers", func(c *Config) { c.Worker.MaxWorkers = 0 }},
		{"zero retries", func(c *Config) { c.Worker.MaxRetries = 0 }},
		{"bad priority", func(c *Config) { c.Webhooks.DefaultPriority = 42 }},
		{"unknown tier", func(c *Config) { c.Models["turbo"] = llm.Endpoint{} }},
		{"zero suggestions", func(c *Config) { c.Review.MaxSuggestions = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "revu.yaml")
	content := `
nats:
  url: nats://broker:4222
worker:
  max_workers: 4
budget:
  daily_budget_usd: 25.0
  repo_daily_budgets:
    acme/api: 10.0
webhooks:
  github_secret: hunter2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.Equal(t, 4, cfg.Worker.MaxWorkers)
	assert.Equal(t, 25.0, cfg.Budget.DailyBudgetUSD)
	assert.Equal(t, 10.0, cfg.Budget.RepoDailyBudgets["acme/api"])
	assert.Equal(t, "hunter2", cfg.Webhooks.GitHubSecret)
	// Untouched sections keep their defaults.
	assert.Equal(t, 3, cfg.Worker.MaxRetries)
}

func TestLoadFromFile_ExpandsEnv(t *testing.T) {
	t.Setenv("REVU_TEST_SECRET", "from-env")

	dir := t.TempDir()
	path := filepath.Join(dir, "revu.yaml")
	content := "webhooks:\n  github_secret: ${REVU_TEST_SECRET}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Webhooks.GitHubSecret)
}

func TestMerge(t *testing.T) {
	base := DefaultConfig()
	other := &Config{}
	other.NATS.URL = "nats://remote:4222"
	other.Budget.DailyBudgetUSD = 99.0
	other.VCS.GitHubToken = "tok"
	other.Models = map[string]llm.Endpoint{
		string(llm.TierFast): {Provider: "openai", Model: "gpt-4o-mini"},
	}

	base.Merge(other)

	assert.Equal(t, "nats://remote:4222", base.NATS.URL)
	assert.False(t, base.NATS.Embedded, "external URL disables embedded broker")
	assert.Equal(t, 99.0, base.Budget.DailyBudgetUSD)
	assert.Equal(t, "tok", base.VCS.GitHubToken)
	assert.Equal(t, "openai", base.Models[string(llm.TierFast)].Provider)
	// Tiers not mentioned keep their defaults.
	assert.Contains(t, base.Models, string(llm.TierBalanced))
	// Zero values in other do not clobber.
	assert.Equal(t, 10, base.Worker.MaxWorkers)
}

func TestMerge_Nil(t *testing.T) {
	base := DefaultConfig()
	base.Merge(nil)
	assert.Equal(t, 10, base.Worker.MaxWorkers)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Budget.DailyBudgetUSD = 12.5
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 12.5, loaded.Budget.DailyBudgetUSD)
}

func TestWatchBudget_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "revu.yaml")
	require.NoError(t, os.WriteFile(path, []byte("budget:\n  daily_budget_usd: 10.0\n"), 0600))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan budget.Config, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = WatchBudget(ctx, path, nil, func(b budget.Config) {
			select {
			case got <- b:
			default:
			}
		})
	}()

	// Give the watcher a moment to install before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("budget:\n  daily_budget_usd: 77.0\n"), 0600))

	select {
	case b := <-got:
		assert.Equal(t, 77.0, b.DailyBudgetUSD)
	case <-ctx.Done():
		t.Fatal("budget reload was not observed")
	}

	cancel()
	<-done
}
