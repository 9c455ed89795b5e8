package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StagingBackendLocal, cfg.StagingBackend)
	assert.Equal(t, 100, cfg.ReadinessAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.ReadinessInterval)
	assert.Equal(t, 30*time.Second, cfg.RenderTimeout)
	assert.Equal(t, 30*time.Second, cfg.NavigationTimeout)
	assert.Equal(t, 30*time.Second, cfg.LaunchTimeout)
	assert.Equal(t, 3*time.Minute, cfg.AnalysisTimeout)
	assert.Equal(t, ".page", cfg.RenderSelector)
	assert.Equal(t, 1000, cfg.SnippetLimit)
	assert.Equal(t, int64(100*1024*1024), cfg.MaxBodyBytes)
	assert.Equal(t, 0, cfg.MaxConcurrentAudits)
	assert.False(t, cfg.ExposeErrorTrace)
	assert.True(t, cfg.ChromeNoSandbox)
	assert.Equal(t, DefaultAxeTags, cfg.AxeTags)
	assert.Equal(t, "http://localhost:8080/pdf-viewer/web/viewer.html", cfg.ViewerURL())
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("PUBLIC_BASE_URL", "http://viewer.internal:9090/")
	t.Setenv("READINESS_ATTEMPTS", "5")
	t.Setenv("READINESS_INTERVAL", "20ms")
	t.Setenv("RENDER_TIMEOUT", "2s")
	t.Setenv("AXE_TAGS", "wcag2a, best-practice ,")
	t.Setenv("MAX_CONCURRENT_AUDITS", "3")
	t.Setenv("EXPOSE_ERROR_TRACE", "true")
	t.Setenv("STAGING_BACKEND", "S3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 5, cfg.ReadinessAttempts)
	assert.Equal(t, 20*time.Millisecond, cfg.ReadinessInterval)
	assert.Equal(t, 2*time.Second, cfg.RenderTimeout)
	assert.Equal(t, []string{"wcag2a", "best-practice"}, cfg.AxeTags)
	assert.Equal(t, 3, cfg.MaxConcurrentAudits)
	assert.True(t, cfg.ExposeErrorTrace)
	assert.Equal(t, StagingBackendS3, cfg.StagingBackend)
	assert.Equal(t, "http://viewer.internal:9090/pdf-viewer/web/viewer.html", cfg.ViewerURL())
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("READINESS_ATTEMPTS", "lots")
	t.Setenv("RENDER_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.ReadinessAttempts)
	assert.Equal(t, 30*time.Second, cfg.RenderTimeout)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]map[string]string{
		"unknown backend":   {"STAGING_BACKEND": "ftp"},
		"zero attempts":     {"READINESS_ATTEMPTS": "0"},
		"negative interval": {"READINESS_INTERVAL": "-1s"},
		"negative cap":      {"MAX_CONCURRENT_AUDITS": "-2"},
		"zero body limit":   {"MAX_BODY_BYTES": "0"},
	}

	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
