package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jobscout/ingest/internal/feed"
)

type EnvConfig struct {
	ConfigPath               string
	RunOnce                  bool
	AllowPartialSourceErrors bool
	Log                      LogEnvConfig
	Feed                     FeedEnvConfig
	Dedupe                   DedupeEnvConfig
	OTel                     OTelEnvConfig
}

type LogEnvConfig struct {
	Level  string // debug, info, warn, error
	Format string // "text" or "json"
}

type FeedEnvConfig struct {
	HTTPTimeout time.Duration
	UserAgent   string
}

type DedupeEnvConfig struct {
	// SQLiteDSN selects the persistent store. Empty keeps seen listings in memory.
	SQLiteDSN string
	TTL       time.Duration
}

type OTelEnvConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
	Protocol    string // "grpc" or "http/protobuf"
	Headers     map[string]string
	Insecure    bool
	SampleRatio float64
}

func LoadEnv() EnvConfig {
	otlpEndpoint := strings.TrimSpace(envString("OTEL_EXPORTER_OTLP_ENDPOINT", ""))

	return EnvConfig{
		ConfigPath:               envString("INGEST_CONFIG", "ingest.yaml"),
		RunOnce:                  envBool("RUN_ONCE", false),
		AllowPartialSourceErrors: envBool("ALLOW_PARTIAL_SOURCE_ERRORS", false),
		Log: LogEnvConfig{
			Level:  strings.ToLower(envString("LOG_LEVEL", "info")),
			Format: strings.ToLower(envString("LOG_FORMAT", "text")),
		},
		Feed: FeedEnvConfig{
			HTTPTimeout: envDuration("FEED_HTTP_TIMEOUT", feed.DefaultTimeout),
			UserAgent:   envString("FEED_USER_AGENT", feed.DefaultUserAgent),
		},
		Dedupe: DedupeEnvConfig{
			SQLiteDSN: envString("DEDUPE_SQLITE_DSN", ""),
			TTL:       envDuration("DEDUPE_TTL", 30*24*time.Hour),
		},
		OTel: OTelEnvConfig{
			Enabled:     envBool("OTEL_ENABLED", false),
			ServiceName: envString("OTEL_SERVICE_NAME", "jobscout-ingest"),
			Endpoint:    otlpEndpoint,
			Protocol:    strings.ToLower(envString("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
			Headers:     parseHeaders(envString("OTEL_EXPORTER_OTLP_HEADERS", "")),
			Insecure:    envBool("OTEL_EXPORTER_OTLP_INSECURE", defaultInsecure(otlpEndpoint)),
			SampleRatio: clamp01(envFloat("OTEL_TRACES_SAMPLE_RATIO", 1.0)),
		},
	}
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// parseHeaders reads "k1=v1,k2=v2" pairs, skipping malformed entries.
func parseHeaders(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// defaultInsecure is true for empty, plain-http and loopback endpoints.
func defaultInsecure(endpoint string) bool {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return true
	}
	if strings.Contains(endpoint, "://") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return u.Scheme == "http"
	}
	for _, prefix := range []string{"localhost:", "127.0.0.1:", "0.0.0.0:"} {
		if strings.HasPrefix(endpoint, prefix) {
			return true
		}
	}
	return false
}
