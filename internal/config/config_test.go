package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  environment: production\n"))
	require.NoError(t, err)

	assert.Equal(t, "prospector", cfg.App.Name)
	assert.Equal(t, 400, cfg.Discovery.MaxQueries)
	assert.Equal(t, 50, cfg.Discovery.PerFamilyCap)
	assert.Equal(t, int64(42), cfg.Discovery.Seed)
	assert.Equal(t, 2*time.Second, cfg.Search.MinDelay)
	assert.True(t, cfg.Search.EnableScrape)
	assert.Equal(t, 200, cfg.Crawl.MaxPages)
	assert.Equal(t, 2, cfg.Crawl.MaxDepth)
	assert.Equal(t, 3, cfg.Crawl.ParallelDomains)
	assert.Equal(t, 0.2, cfg.Vetting.MinRelevanceScore)
	assert.Equal(t, "prospector-pages", cfg.Elasticsearch.Index)
	assert.Equal(t, "127.0.0.1:6379", cfg.Redis.Addr)
	assert.Equal(t, "0 6 * * *", cfg.Schedule.Cron)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
app:
  environment: development
discovery:
  max_queries: 100
  negative_keywords: [amazon, ebay]
search:
  min_delay: 5s
crawl:
  max_pages: 50
proxy:
  urls:
    - http://proxy1:8080
    - http://proxy2:8080
`))
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Discovery.MaxQueries)
	assert.Equal(t, []string{"amazon", "ebay"}, cfg.Discovery.NegativeKeywords)
	assert.Equal(t, 5*time.Second, cfg.Search.MinDelay)
	assert.Equal(t, 50, cfg.Crawl.MaxPages)
	assert.Len(t, cfg.Proxy.URLs, 2)
	// Development environment switches the logger to console output.
	assert.True(t, cfg.Logger.Development)
	assert.Equal(t, "console", cfg.Logger.Encoding)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PROSPECTOR_CRAWL_MAX_PAGES", "25")
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg, err := Load(writeConfig(t, "app:\n  environment: staging\n"))
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Crawl.MaxPages)
	assert.Equal(t, "test-key", cfg.AI.APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad environment", "app:\n  environment: sandbox\n"},
		{"relevance out of range", "vetting:\n  min_relevance_score: 1.5\n"},
		{"zero max pages", "crawl:\n  max_pages: 0\n"},
		{"negative min delay", "search:\n  min_delay: -1s\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
