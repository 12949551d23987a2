package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PORT", "")
	t.Setenv("PROMPTS_COUNT", "")
	t.Setenv("REDIS_HOST", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "3000" {
		t.Fatalf("Port = %q, want %q", cfg.Port, "3000")
	}
	if cfg.PromptsCount != 16 {
		t.Fatalf("PromptsCount = %d, want 16", cfg.PromptsCount)
	}
	if cfg.FileSizeLimit != 5<<20 {
		t.Fatalf("FileSizeLimit = %d, want %d", cfg.FileSizeLimit, 5<<20)
	}
	if cfg.ProgressGraceWindow != 5*time.Minute {
		t.Fatalf("ProgressGraceWindow = %s, want 5m", cfg.ProgressGraceWindow)
	}
	if cfg.RedisEnabled() {
		t.Fatal("redis should be disabled without REDIS_HOST")
	}
	if len(cfg.CORSOrigins) != 3 {
		t.Fatalf("CORSOrigins mismatch: %#v", cfg.CORSOrigins)
	}
	if limits := cfg.UploadLimits(); limits.MaxFiles != 10 || limits.MaxFileSize != 5<<20 {
		t.Fatalf("UploadLimits = %#v", limits)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PORT", "1919")
	t.Setenv("FILE_SIZE_LIMIT_MB", "8")
	t.Setenv("API_TIMEOUT_SECONDS", "12")
	t.Setenv("PROGRESS_SWEEP_INTERVAL", "30s")
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("OPENAI_TEMPERATURE", "0.3")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "1919" {
		t.Fatalf("Port = %q, want 1919", cfg.Port)
	}
	if cfg.FileSizeLimit != 8<<20 {
		t.Fatalf("FileSizeLimit = %d, want %d", cfg.FileSizeLimit, 8<<20)
	}
	if cfg.APITimeout != 12*time.Second {
		t.Fatalf("APITimeout = %s, want 12s", cfg.APITimeout)
	}
	if cfg.ProgressSweepInterval != 30*time.Second {
		t.Fatalf("ProgressSweepInterval = %s, want 30s", cfg.ProgressSweepInterval)
	}
	if got := cfg.RedisAddr(); got != "cache.internal:6380" {
		t.Fatalf("RedisAddr = %q, want cache.internal:6380", got)
	}
	if cfg.OpenAITemperature != 0.3 {
		t.Fatalf("OpenAITemperature = %v, want 0.3", cfg.OpenAITemperature)
	}
}

func TestLoadConfigYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "port: \"4000\"\nprompts_count: 4\npipeline_timeout: 2m\nexport_host_allowlist:\n  - Ideogram.AI\n  - ideogram.ai\n  - cdn.example.com\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "5000")
	t.Setenv("PROMPTS_COUNT", "")
	t.Setenv("EXPORT_HOST_ALLOWLIST", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "5000" {
		t.Fatalf("env should override yaml port, got %q", cfg.Port)
	}
	if cfg.PromptsCount != 4 {
		t.Fatalf("PromptsCount = %d, want 4", cfg.PromptsCount)
	}
	if cfg.PipelineTimeout != 2*time.Minute {
		t.Fatalf("PipelineTimeout = %s, want 2m", cfg.PipelineTimeout)
	}
	expected := []string{"ideogram.ai", "cdn.example.com"}
	if len(cfg.ExportHostAllowlist) != len(expected) {
		t.Fatalf("ExportHostAllowlist mismatch: got %#v want %#v", cfg.ExportHostAllowlist, expected)
	}
	for i, host := range expected {
		if cfg.ExportHostAllowlist[i] != host {
			t.Fatalf("ExportHostAllowlist[%d] = %q, want %q", i, cfg.ExportHostAllowlist[i], host)
		}
	}
}

func TestLoadConfigRejectsInvalidPromptCount(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PROMPTS_COUNT", "0")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for PROMPTS_COUNT=0")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for unreadable config file")
	}
}
