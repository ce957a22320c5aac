package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/lead-harvester/internal/proxy"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_ValidJSON(t *testing.T) {
	path := writeTempFile(t, "config.json", `{
		"max_concurrent_jobs": 4,
		"requests_per_second": 2.5,
		"max_pages": 10,
		"verbose": true
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 4, cfg.MaxConcurrentJobs)
	assert.Equal(t, 2.5, cfg.RequestsPerSecond)
	assert.Equal(t, 10, cfg.MaxPages)
	assert.True(t, cfg.Verbose)
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	path := writeTempFile(t, "config.json", `{ invalid json }`)

	cfg, err := LoadConfig(path)
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to parse config JSON")
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.json")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "config path is empty")
}

func TestValidate_RangeViolations(t *testing.T) {
	err := (&Config{MaxRetries: 11}).Validate()
	assert.Error(t, err)

	err = (&Config{BackoffFactor: 0.5}).Validate()
	assert.Error(t, err)

	err = (&Config{MaxPages: 200}).Validate()
	assert.Error(t, err)
}

func TestValidate_ProxyRules(t *testing.T) {
	err := (&Config{UseProxy: true}).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires 'proxy_file'")

	err = (&Config{UseProxy: true, ProxyFile: "/nonexistent/proxies.json"}).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "proxy file not found")
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := &Config{
		MaxConcurrentJobs: 4,
		RequestsPerSecond: 2,
		BackoffFactor:     2,
		MaxPages:          10,
	}
	assert.NoError(t, cfg.Validate())
}

func TestMergeWithDefaults(t *testing.T) {
	defaults := Config{
		MaxConcurrentJobs: 3,
		RequestsPerSecond: 1,
		MaxPages:          5,
		UserAgent:         "default-agent",
	}

	partial := Config{MaxPages: 10}
	merged := partial.MergeWithDefaults(defaults)

	assert.Equal(t, 10, merged.MaxPages)
	assert.Equal(t, 3, merged.MaxConcurrentJobs)
	assert.Equal(t, float64(1), merged.RequestsPerSecond)
	assert.Equal(t, "default-agent", merged.UserAgent)
}

func TestApplyEnv_Overrides(t *testing.T) {
	t.Setenv("LEAD_HARVESTER_SESSION_COOKIE", "li_at=abc")
	t.Setenv("LEAD_HARVESTER_VERBOSE", "true")

	cfg := &Config{SessionCookie: "from-file"}
	cfg.ApplyEnv()

	assert.Equal(t, "li_at=abc", cfg.SessionCookie)
	assert.True(t, cfg.Verbose)
}

func TestRateLimiterConfig_FallsBackToDefaults(t *testing.T) {
	cfg := &Config{RequestsPerSecond: 2, MaxBackoffSeconds: 30}
	rl := cfg.RateLimiterConfig()

	assert.Equal(t, 2.0, rl.RequestsPerSecond)
	assert.Equal(t, 30*time.Second, rl.MaxBackoff)
	// Unset fields keep limiter defaults.
	assert.Equal(t, 60, rl.RequestsPerMinute)
	assert.Equal(t, 5, rl.BurstSize)
}

func TestScrapeDefaults(t *testing.T) {
	cfg := &Config{
		MaxPages:        7,
		DelaySeconds:    0.5,
		IgnoreRobotsTxt: true,
		SessionCookie:   "li_at=abc",
	}
	sc := cfg.ScrapeDefaults()

	assert.Equal(t, 7, sc.MaxPages)
	assert.Equal(t, 500*time.Millisecond, sc.DelayBetweenRequests)
	assert.False(t, sc.RespectRobotsTxt)
	assert.Equal(t, "li_at=abc", sc.SessionCookie)
	// Unset fields keep scrape defaults.
	assert.Equal(t, 30*time.Second, sc.RequestTimeout)
	assert.Equal(t, 3, sc.MaxRetries)
}

func TestLoadProxyList_Valid(t *testing.T) {
	path := writeTempFile(t, "proxies.json", `{
		"proxies": [
			{"host": "proxy1.example.com", "port": 8080, "protocol": "http"},
			{"host": "proxy2.example.com", "port": 1080, "protocol": "socks5", "username": "u", "password": "p"}
		]
	}`)

	proxies, err := LoadProxyList(path)
	require.NoError(t, err)
	require.Len(t, proxies, 2)

	assert.Equal(t, "proxy1.example.com", proxies[0].Host)
	assert.Equal(t, 8080, proxies[0].Port)
	assert.Equal(t, proxy.ProtocolHTTP, proxies[0].Protocol)
	assert.Equal(t, proxy.ProtocolSOCKS5, proxies[1].Protocol)
	assert.Equal(t, "u", proxies[1].Username)
}

func TestLoadProxyList_SchemaViolations(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing proxies key", `{}`},
		{"missing host", `{"proxies": [{"port": 8080}]}`},
		{"port out of range", `{"proxies": [{"host": "p.example.com", "port": 70000}]}`},
		{"bad protocol", `{"proxies": [{"host": "p.example.com", "port": 8080, "protocol": "carrier-pigeon"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempFile(t, "proxies.json", tt.content)
			_, err := LoadProxyList(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "proxy file")
		})
	}
}

func TestLoadProxyList_FileNotFound(t *testing.T) {
	_, err := LoadProxyList("/nonexistent/proxies.json")
	require.Error(t, err)
}
