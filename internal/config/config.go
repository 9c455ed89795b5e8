package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StagingBackendLocal = "local"
	StagingBackendS3    = "s3"
)

// DefaultAxeTags are the rule categories requested from axe-core.
var DefaultAxeTags = []string{
	"wcag2a",
	"wcag2aa",
	"wcag21a",
	"wcag21aa",
	"best-practice",
	"wcag22a",
	"wcag22aa",
}

type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	// Viewer
	PublicBaseURL string
	ViewerDir     string
	ViewerPath    string

	// Staging
	StagingBackend       string
	StagingDir           string
	StagingURLPath       string
	StagingMaxAge        time.Duration
	StagingSweepInterval time.Duration

	// S3
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3BucketName      string
	S3UseSSL          bool
	S3PresignExpiry   time.Duration

	// Browser
	ChromePath      string
	ChromeNoSandbox bool

	// Rule engine
	AxeScriptPath string
	AxeTags       []string

	// Workflow bounds
	LaunchTimeout     time.Duration
	NavigationTimeout time.Duration
	ReadinessAttempts int
	ReadinessInterval time.Duration
	RenderSelector    string
	RenderTimeout     time.Duration
	AnalysisTimeout   time.Duration
	SnippetLimit      int

	// Tracing
	OTelEnabled     bool
	OTelEndpoint    string
	OTelServiceName string

	// Request limits
	MaxBodyBytes        int64
	MaxConcurrentAudits int
	ExposeErrorTrace    bool
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Note: could not load .env file: %v", err)
	}

	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		ViewerDir:     getEnv("VIEWER_DIR", "./public/pdf-viewer"),
		ViewerPath:    getEnv("VIEWER_PATH", "/pdf-viewer/web/viewer.html"),

		StagingBackend:       strings.ToLower(getEnv("STAGING_BACKEND", StagingBackendLocal)),
		StagingDir:           getEnv("STAGING_DIR", "./public/pdf-viewer/web"),
		StagingURLPath:       getEnv("STAGING_URL_PATH", "/pdf-viewer/web/"),
		StagingMaxAge:        getEnvAsDuration("STAGING_MAX_AGE", time.Hour),
		StagingSweepInterval: getEnvAsDuration("STAGING_SWEEP_INTERVAL", 15*time.Minute),

		S3Endpoint:        getEnv("S3_ENDPOINT", "localhost:9000"),
		S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", "minioadmin"),
		S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", "minioadmin"),
		S3BucketName:      getEnv("S3_BUCKET_NAME", "pdf-staging"),
		S3UseSSL:          getEnvAsBool("S3_USE_SSL", false),
		S3PresignExpiry:   getEnvAsDuration("S3_PRESIGN_EXPIRY", 10*time.Minute),

		ChromePath:      getEnv("CHROME_PATH", ""),
		ChromeNoSandbox: getEnvAsBool("CHROME_NO_SANDBOX", true),

		AxeScriptPath: getEnv("AXE_SCRIPT_PATH", "./node_modules/axe-core/axe.min.js"),
		AxeTags:       getEnvAsList("AXE_TAGS", DefaultAxeTags),

		LaunchTimeout:     getEnvAsDuration("LAUNCH_TIMEOUT", 30*time.Second),
		NavigationTimeout: getEnvAsDuration("NAVIGATION_TIMEOUT", 30*time.Second),
		ReadinessAttempts: getEnvAsInt("READINESS_ATTEMPTS", 100),
		ReadinessInterval: getEnvAsDuration("READINESS_INTERVAL", 100*time.Millisecond),
		RenderSelector:    getEnv("RENDER_SELECTOR", ".page"),
		RenderTimeout:     getEnvAsDuration("RENDER_TIMEOUT", 30*time.Second),
		AnalysisTimeout:   getEnvAsDuration("ANALYSIS_TIMEOUT", 3*time.Minute),
		SnippetLimit:      getEnvAsInt("SNIPPET_LIMIT", 1000),

		OTelEnabled:     getEnvAsBool("OTEL_ENABLED", false),
		OTelEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		OTelServiceName: getEnv("OTEL_SERVICE_NAME", "pdf-accessibility-checker"),

		MaxBodyBytes:        int64(getEnvAsInt("MAX_BODY_BYTES", 100*1024*1024)),
		MaxConcurrentAudits: getEnvAsInt("MAX_CONCURRENT_AUDITS", 0),
		ExposeErrorTrace:    getEnvAsBool("EXPOSE_ERROR_TRACE", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the workflow cannot run with.
func (c *Config) Validate() error {
	switch c.StagingBackend {
	case StagingBackendLocal:
		if c.StagingDir == "" {
			return fmt.Errorf("STAGING_DIR is required for the local staging backend")
		}
	case StagingBackendS3:
		if c.S3BucketName == "" {
			return fmt.Errorf("S3_BUCKET_NAME is required for the s3 staging backend")
		}
	default:
		return fmt.Errorf("STAGING_BACKEND must be %q or %q, got %q", StagingBackendLocal, StagingBackendS3, c.StagingBackend)
	}

	if c.AxeScriptPath == "" {
		return fmt.Errorf("AXE_SCRIPT_PATH is required")
	}
	if len(c.AxeTags) == 0 {
		return fmt.Errorf("AXE_TAGS must name at least one rule tag")
	}
	if c.ReadinessAttempts <= 0 {
		return fmt.Errorf("READINESS_ATTEMPTS must be positive")
	}
	if c.ReadinessInterval <= 0 {
		return fmt.Errorf("READINESS_INTERVAL must be positive")
	}
	if c.RenderTimeout <= 0 {
		return fmt.Errorf("RENDER_TIMEOUT must be positive")
	}
	if c.RenderSelector == "" {
		return fmt.Errorf("RENDER_SELECTOR is required")
	}
	if c.SnippetLimit <= 0 {
		return fmt.Errorf("SNIPPET_LIMIT must be positive")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be positive")
	}
	if c.MaxConcurrentAudits < 0 {
		return fmt.Errorf("MAX_CONCURRENT_AUDITS must not be negative")
	}

	return nil
}

// ViewerURL is the absolute URL of the viewer page.
func (c *Config) ViewerURL() string {
	return strings.TrimRight(c.PublicBaseURL, "/") + "/" + strings.TrimLeft(c.ViewerPath, "/")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, fallback int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return append([]string(nil), fallback...)
	}

	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
