package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

const (
	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"
	RateLimitBackendToken  = "token"
)

type Config struct {
	API     APIConfig
	Limits  LimitsConfig
	Render  RenderConfig
	Auth    AuthConfig
	CORS    CORSConfig
	Redis   RedisConfig
	Usage   UsageConfig
	Tracing TracingConfig
	Log     LogConfig
}

type APIConfig struct {
	Addr              string
	TrustForwardedFor bool
	StreamArchives    bool
}

type LimitsConfig struct {
	MaxUploadBytes       int64
	MaxOutputs           int
	ConcurrencyPerClient int
	RateLimitRequests    int
	RateLimitWindow      time.Duration
	RateLimitBackend     string
}

type RenderConfig struct {
	DefaultJPEGQuality int
	DefaultWebPQuality int
}

type AuthConfig struct {
	Required bool
	Token    string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type UsageConfig struct {
	PostgresDSN    string
	MemoryCapacity int
}

type TracingConfig struct {
	ServiceName  string
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
}

type LogConfig struct {
	Level  string
	Format string
}

var bindings = []struct {
	key      string
	env      string
	fallback any
}{
	{"api.addr", "RESIZEFLOW_API_ADDR", ":8080"},
	{"api.trust_forwarded_for", "TRUST_FORWARDED_FOR", true},
	{"api.stream_archives", "STREAM_ARCHIVES", false},
	{"limits.max_upload_bytes", "MAX_UPLOAD_BYTES", 25 << 20},
	{"limits.max_outputs", "MAX_OUTPUTS", 32},
	{"limits.concurrency_per_client", "CONCURRENCY_PER_CLIENT", 2},
	{"limits.rate_limit_requests", "RATE_LIMIT_REQUESTS", 60},
	{"limits.rate_limit_window", "RATE_LIMIT_WINDOW", "60s"},
	{"limits.rate_limit_backend", "RATE_LIMIT_BACKEND", RateLimitBackendMemory},
	{"render.default_jpeg_quality", "DEFAULT_JPEG_QUALITY", 85},
	{"render.default_webp_quality", "DEFAULT_WEBP_QUALITY", 80},
	{"auth.required", "AUTH_REQUIRED", false},
	{"auth.token", "AUTH_TOKEN", ""},
	{"cors.allowed_origins", "CORS_ALLOWED_ORIGINS", ""},
	{"redis.addr", "REDIS_ADDR", "localhost:6379"},
	{"redis.password", "REDIS_PASSWORD", ""},
	{"redis.db", "REDIS_DB", 0},
	{"usage.postgres_dsn", "USAGE_POSTGRES_DSN", ""},
	{"usage.memory_capacity", "USAGE_MEMORY_CAPACITY", 1024},
	{"tracing.service_name", "OTEL_SERVICE_NAME", "resizeflow-api"},
	{"tracing.exporter", "TRACE_EXPORTER", "none"},
	{"tracing.otlp_endpoint", "OTLP_ENDPOINT", ""},
	{"tracing.otlp_insecure", "OTLP_INSECURE", false},
	{"log.level", "LOG_LEVEL", "info"},
	{"log.format", "LOG_FORMAT", "json"},
}

// Load reads resizeflow.toml from the working directory when present and
// overlays the environment.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("resizeflow")
	v.SetConfigType("toml")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	return FromViper(v)
}

func FromViper(v *viper.Viper) (Config, error) {
	for _, b := range bindings {
		if err := v.BindEnv(b.key, b.env); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", b.env, err)
		}
		v.SetDefault(b.key, b.fallback)
	}

	window, err := durationSetting(v.Get("limits.rate_limit_window"))
	if err != nil {
		return Config{}, fmt.Errorf("RATE_LIMIT_WINDOW: %w", err)
	}

	cfg := Config{
		API: APIConfig{
			Addr:              v.GetString("api.addr"),
			TrustForwardedFor: v.GetBool("api.trust_forwarded_for"),
			StreamArchives:    v.GetBool("api.stream_archives"),
		},
		Limits: LimitsConfig{
			MaxUploadBytes:       v.GetInt64("limits.max_upload_bytes"),
			MaxOutputs:           v.GetInt("limits.max_outputs"),
			ConcurrencyPerClient: v.GetInt("limits.concurrency_per_client"),
			RateLimitRequests:    v.GetInt("limits.rate_limit_requests"),
			RateLimitWindow:      window,
			RateLimitBackend:     strings.ToLower(strings.TrimSpace(v.GetString("limits.rate_limit_backend"))),
		},
		Render: RenderConfig{
			DefaultJPEGQuality: v.GetInt("render.default_jpeg_quality"),
			DefaultWebPQuality: v.GetInt("render.default_webp_quality"),
		},
		Auth: AuthConfig{
			Required: v.GetBool("auth.required"),
			Token:    v.GetString("auth.token"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(v.Get("cors.allowed_origins")),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Usage: UsageConfig{
			PostgresDSN:    v.GetString("usage.postgres_dsn"),
			MemoryCapacity: v.GetInt("usage.memory_capacity"),
		},
		Tracing: TracingConfig{
			ServiceName:  v.GetString("tracing.service_name"),
			Exporter:     v.GetString("tracing.exporter"),
			OTLPEndpoint: v.GetString("tracing.otlp_endpoint"),
			OTLPInsecure: v.GetBool("tracing.otlp_insecure"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.Limits.MaxUploadBytes <= 0:
		return errors.New("MAX_UPLOAD_BYTES must be positive")
	case c.Limits.MaxOutputs <= 0:
		return errors.New("MAX_OUTPUTS must be positive")
	case c.Limits.ConcurrencyPerClient < 0:
		return errors.New("CONCURRENCY_PER_CLIENT must not be negative")
	case c.Limits.RateLimitRequests < 0:
		return errors.New("RATE_LIMIT_REQUESTS must not be negative")
	case c.Limits.RateLimitWindow <= 0:
		return errors.New("RATE_LIMIT_WINDOW must be positive")
	case c.Usage.MemoryCapacity <= 0:
		return errors.New("USAGE_MEMORY_CAPACITY must be positive")
	}

	switch c.Limits.RateLimitBackend {
	case RateLimitBackendMemory, RateLimitBackendRedis, RateLimitBackendToken:
	default:
		return fmt.Errorf("RATE_LIMIT_BACKEND must be one of memory, redis, token, got %q", c.Limits.RateLimitBackend)
	}
	return nil
}

// durationSetting accepts Go durations ("90s") or bare integers in seconds.
func durationSetting(raw any) (time.Duration, error) {
	if d, ok := raw.(time.Duration); ok {
		return d, nil
	}
	if s, ok := raw.(string); ok {
		s = strings.TrimSpace(s)
		if secs, err := strconv.Atoi(s); err == nil {
			return time.Duration(secs) * time.Second, nil
		}
		return time.ParseDuration(s)
	}
	n, err := cast.ToIntE(raw)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func splitList(raw any) []string {
	var parts []string
	switch v := raw.(type) {
	case string:
		parts = strings.Split(v, ",")
	default:
		parts = cast.ToStringSlice(v)
	}

	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
