package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetCrawlFlags restores the package-level flag values the crawl command
// binds, so tests can set them freely.
func resetCrawlFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		crawlConfigPath = ""
		crawlSource = "auto"
		crawlMaxPages = 0
		crawlDelay = 0
		crawlTimeout = 0
		crawlRetries = 0
		crawlUseProxy = false
		crawlProxyFile = ""
		crawlNoRobots = false
		crawlUserAgent = ""
		crawlAdaptive = false
		crawlVerbose = false
		crawlOutputPath = ""
	})
}

func TestLoadCrawlConfig_FlagsWinOverFile(t *testing.T) {
	resetCrawlFlags(t)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"max_pages": 3,
		"delay_seconds": 2.5,
		"user_agent": "file-agent",
		"max_retries": 4
	}`), 0644))

	crawlConfigPath = path
	crawlMaxPages = 7
	crawlUserAgent = "flag-agent"

	cfg, err := loadCrawlConfig()
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.MaxPages)
	assert.Equal(t, "flag-agent", cfg.UserAgent)
	// Unset flags fall back to the file.
	assert.Equal(t, 2.5, cfg.DelaySeconds)
	assert.Equal(t, 4, cfg.MaxRetries)
}

func TestLoadCrawlConfig_BoolFlagsOverride(t *testing.T) {
	resetCrawlFlags(t)

	crawlNoRobots = true
	crawlAdaptive = true

	cfg, err := loadCrawlConfig()
	require.NoError(t, err)

	assert.True(t, cfg.IgnoreRobotsTxt)
	assert.True(t, cfg.Adaptive)
	assert.False(t, cfg.ScrapeDefaults().RespectRobotsTxt)
}

func TestLoadCrawlConfig_RejectsProxyWithoutFile(t *testing.T) {
	resetCrawlFlags(t)

	crawlUseProxy = true

	_, err := loadCrawlConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "proxy_file")
}
