package infra

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"adgenerator/internal/domain"
)

// Config represents application configuration. Values come from an optional
// YAML file named by CONFIG_FILE, then environment variables override them.
type Config struct {
	AppEnv      string   `yaml:"app_env"`
	Port        string   `yaml:"port"`
	Version     string   `yaml:"version"`
	StaticDir   string   `yaml:"static_dir"`
	CORSOrigins []string `yaml:"cors_origins"`

	OpenAIAPIKey      string  `yaml:"openai_api_key"`
	OpenAIModel       string  `yaml:"openai_model"`
	OpenAIBaseURL     string  `yaml:"openai_base_url"`
	OpenAIOrg         string  `yaml:"openai_org"`
	OpenAIMaxTokens   int     `yaml:"openai_max_tokens"`
	OpenAITemperature float64 `yaml:"openai_temperature"`

	IdeogramAPIKey         string `yaml:"ideogram_api_key"`
	IdeogramBaseURL        string `yaml:"ideogram_base_url"`
	IdeogramRenderingSpeed string `yaml:"ideogram_rendering_speed"`
	IdeogramMagicPrompt    string `yaml:"ideogram_magic_prompt"`

	PromptsCount        int           `yaml:"prompts_count"`
	APITimeout          time.Duration `yaml:"api_timeout"`
	FileSizeLimit       int64         `yaml:"file_size_limit"`
	MaxFiles            int           `yaml:"max_files"`
	PipelineConcurrency int           `yaml:"pipeline_concurrency"`
	PipelineTimeout     time.Duration `yaml:"pipeline_timeout"`
	ExportConcurrency   int           `yaml:"export_concurrency"`
	ExportHostAllowlist []string      `yaml:"export_host_allowlist"`

	RedisHost     string        `yaml:"redis_host"`
	RedisPort     int           `yaml:"redis_port"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`

	DatabaseURL string `yaml:"database_url"`

	ProgressGraceWindow   time.Duration `yaml:"progress_grace_window"`
	ProgressSweepInterval time.Duration `yaml:"progress_sweep_interval"`

	HTTPReadTimeout  time.Duration `yaml:"http_read_timeout"`
	HTTPWriteTimeout time.Duration `yaml:"http_write_timeout"`
	HTTPIdleTimeout  time.Duration `yaml:"http_idle_timeout"`
}

func defaultConfig() Config {
	return Config{
		AppEnv:                 "development",
		Port:                   "3000",
		Version:                "2.0.0",
		CORSOrigins:            []string{"http://localhost:3000", "http://127.0.0.1:3000", "http://localhost:3001"},
		OpenAIModel:            "gpt-4o",
		OpenAIBaseURL:          "https://api.openai.com/v1",
		OpenAIMaxTokens:        3000,
		OpenAITemperature:      0.7,
		IdeogramBaseURL:        "https://api.ideogram.ai",
		IdeogramRenderingSpeed: "TURBO",
		IdeogramMagicPrompt:    "ON",
		PromptsCount:           16,
		APITimeout:             30 * time.Second,
		FileSizeLimit:          5 << 20,
		MaxFiles:               10,
		PipelineConcurrency:    3,
		PipelineTimeout:        15 * time.Minute,
		ExportConcurrency:      6,
		RedisPort:              6379,
		CacheTTL:               time.Hour,
		ProgressGraceWindow:    5 * time.Minute,
		ProgressSweepInterval:  time.Minute,
		HTTPReadTimeout:        30 * time.Second,
		HTTPIdleTimeout:        60 * time.Second,
	}
}

// LoadConfig loads configuration and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("decode config file: %w", err)
		}
	}

	cfg.AppEnv = getEnv("APP_ENV", cfg.AppEnv)
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Version = getEnv("VERSION", cfg.Version)
	cfg.StaticDir = getEnv("STATIC_DIR", cfg.StaticDir)
	cfg.CORSOrigins = getEnvList("CORS_ORIGINS", cfg.CORSOrigins)

	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIModel = getEnv("OPENAI_MODEL", cfg.OpenAIModel)
	cfg.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.OpenAIOrg = getEnv("OPENAI_ORG", cfg.OpenAIOrg)
	cfg.OpenAIMaxTokens = getEnvInt("OPENAI_MAX_TOKENS", cfg.OpenAIMaxTokens)
	cfg.OpenAITemperature = getEnvFloat("OPENAI_TEMPERATURE", cfg.OpenAITemperature)

	cfg.IdeogramAPIKey = getEnv("IDEOGRAM_API_KEY", cfg.IdeogramAPIKey)
	cfg.IdeogramBaseURL = getEnv("IDEOGRAM_BASE_URL", cfg.IdeogramBaseURL)
	cfg.IdeogramRenderingSpeed = getEnv("IDEOGRAM_RENDERING_SPEED", cfg.IdeogramRenderingSpeed)
	cfg.IdeogramMagicPrompt = getEnv("IDEOGRAM_MAGIC_PROMPT", cfg.IdeogramMagicPrompt)

	cfg.PromptsCount = getEnvInt("PROMPTS_COUNT", cfg.PromptsCount)
	cfg.APITimeout = getEnvSeconds("API_TIMEOUT_SECONDS", cfg.APITimeout)
	cfg.FileSizeLimit = int64(getEnvInt("FILE_SIZE_LIMIT_MB", int(cfg.FileSizeLimit>>20))) << 20
	cfg.MaxFiles = getEnvInt("MAX_FILES", cfg.MaxFiles)
	cfg.PipelineConcurrency = getEnvInt("PIPELINE_CONCURRENCY", cfg.PipelineConcurrency)
	cfg.PipelineTimeout = getEnvSeconds("PIPELINE_TIMEOUT_SECONDS", cfg.PipelineTimeout)
	cfg.ExportConcurrency = getEnvInt("EXPORT_CONCURRENCY", cfg.ExportConcurrency)
	cfg.ExportHostAllowlist = getEnvList("EXPORT_HOST_ALLOWLIST", cfg.ExportHostAllowlist)

	cfg.RedisHost = getEnv("REDIS_HOST", cfg.RedisHost)
	cfg.RedisPort = getEnvInt("REDIS_PORT", cfg.RedisPort)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvInt("REDIS_DB", cfg.RedisDB)
	cfg.CacheTTL = getEnvSeconds("CACHE_TTL_SECONDS", cfg.CacheTTL)

	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)

	cfg.ProgressGraceWindow = getEnvSeconds("PROGRESS_GRACE_SECONDS", cfg.ProgressGraceWindow)
	cfg.ProgressSweepInterval = getEnvDuration("PROGRESS_SWEEP_INTERVAL", cfg.ProgressSweepInterval)

	cfg.HTTPReadTimeout = getEnvSeconds("HTTP_READ_TIMEOUT_SECONDS", cfg.HTTPReadTimeout)
	cfg.HTTPWriteTimeout = getEnvSeconds("HTTP_WRITE_TIMEOUT_SECONDS", cfg.HTTPWriteTimeout)
	cfg.HTTPIdleTimeout = getEnvSeconds("HTTP_IDLE_TIMEOUT_SECONDS", cfg.HTTPIdleTimeout)

	if cfg.PromptsCount <= 0 {
		return nil, fmt.Errorf("PROMPTS_COUNT must be positive, got %d", cfg.PromptsCount)
	}
	if cfg.PipelineConcurrency <= 0 {
		cfg.PipelineConcurrency = 1
	}
	if cfg.ExportConcurrency <= 0 {
		cfg.ExportConcurrency = 1
	}
	if cfg.ProgressSweepInterval <= 0 {
		return nil, fmt.Errorf("PROGRESS_SWEEP_INTERVAL must be positive, got %s", cfg.ProgressSweepInterval)
	}
	cfg.ExportHostAllowlist = normalizeHosts(cfg.ExportHostAllowlist)

	return &cfg, nil
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// RedisEnabled reports whether a Redis host is configured.
func (c *Config) RedisEnabled() bool {
	return strings.TrimSpace(c.RedisHost) != ""
}

// RedisAddr joins host and port for the Redis client.
func (c *Config) RedisAddr() string {
	return net.JoinHostPort(c.RedisHost, strconv.Itoa(c.RedisPort))
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return time.Duration(i) * time.Second
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func normalizeHosts(hosts []string) []string {
	seen := make(map[string]struct{}, len(hosts))
	var out []string
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}

// UploadLimits derives the per-request upload bounds.
func (c *Config) UploadLimits() domain.UploadLimits {
	return domain.UploadLimits{MaxFiles: c.MaxFiles, MaxFileSize: c.FileSizeLimit}
}
