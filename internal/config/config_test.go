package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ModelName != "mi-historia" {
		t.Errorf("expected default model, got %q", cfg.ModelName)
	}
	if cfg.ContextChars != 1500 || cfg.NumCtx != 2048 || cfg.Temperature != 0.5 {
		t.Errorf("unexpected generation defaults: %+v", cfg)
	}
	if cfg.ModelfileContextChars != 1000 {
		t.Errorf("expected Modelfile context 1000, got %d", cfg.ModelfileContextChars)
	}
	if cfg.Addr() != "0.0.0.0:5000" {
		t.Errorf("unexpected addr %q", cfg.Addr())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MODEL_NAME", "otro")
	t.Setenv("PORT", "8081")
	t.Setenv("CONTEXT_CHARS", "900")
	t.Setenv("TEMPERATURE", "0.7")
	t.Setenv("OLLAMA_HOST", "127.0.0.1:11434")
	t.Setenv("OLLAMA_TIMEOUT", "30s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("TRAIN_FAILURE_PAUSE", "250ms")
	t.Setenv("NUM_CTX", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ModelName != "otro" || cfg.Port != "8081" || cfg.ContextChars != 900 || cfg.Temperature != 0.7 {
		t.Errorf("env not applied: %+v", cfg)
	}
	if cfg.OllamaURL != "http://127.0.0.1:11434" {
		t.Errorf("expected scheme added, got %q", cfg.OllamaURL)
	}
	if cfg.OllamaTimeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", cfg.OllamaTimeout)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "http://b.test" {
		t.Errorf("unexpected origins %q", cfg.CORSAllowedOrigins)
	}
	if cfg.TrainFailurePause != 250*time.Millisecond {
		t.Errorf("unexpected pause %v", cfg.TrainFailurePause)
	}
	if cfg.NumCtx != 2048 {
		t.Errorf("invalid NUM_CTX should keep default, got %d", cfg.NumCtx)
	}
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestMergeFile_YAML(t *testing.T) {
	path := writeConfig(t, "storyqa.yaml", `
model_name: desde-yaml
port: "7000"
context_chars: 1200
pdf_fallback_pdftotext: false
ollama_timeout: 90s
trainer:
  base_model: llama3.1
  epochs: 1
  failure_pause: 1s
`)
	cfg := Defaults()
	if err := cfg.MergeFile(path); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if cfg.ModelName != "desde-yaml" || cfg.Port != "7000" || cfg.ContextChars != 1200 {
		t.Errorf("yaml not applied: %+v", cfg)
	}
	if cfg.PDFFallbackPdftotext {
		t.Error("expected pdf fallback disabled")
	}
	if cfg.OllamaTimeout != 90*time.Second {
		t.Errorf("unexpected timeout %v", cfg.OllamaTimeout)
	}
	if cfg.BaseModel != "llama3.1" || cfg.TrainEpochs != 1 || cfg.TrainFailurePause != time.Second {
		t.Errorf("trainer section not applied: %+v", cfg)
	}
	// Untouched values keep their defaults.
	if cfg.NumCtx != 2048 || cfg.TrainLimit != 50 {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestMergeFile_TOML(t *testing.T) {
	path := writeConfig(t, "storyqa.toml", `
model_name = "desde-toml"
temperature = 0.3

[trainer]
limit = 10
`)
	cfg := Defaults()
	if err := cfg.MergeFile(path); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if cfg.ModelName != "desde-toml" || cfg.Temperature != 0.3 || cfg.TrainLimit != 10 {
		t.Errorf("toml not applied: %+v", cfg)
	}
}

func TestMergeFile_JSON(t *testing.T) {
	path := writeConfig(t, "storyqa.json", `{"document_path": "docs/cuento.md", "cors_allowed_origins": ["http://x.test"]}`)
	cfg := Defaults()
	if err := cfg.MergeFile(path); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if cfg.DocumentPath != "docs/cuento.md" || cfg.CORSAllowedOrigins[0] != "http://x.test" {
		t.Errorf("json not applied: %+v", cfg)
	}
}

func TestMergeFile_ZeroTemperature(t *testing.T) {
	path := writeConfig(t, "c.yaml", "temperature: 0\ntrainer:\n  temperature: 0\n")
	cfg := Defaults()
	if err := cfg.MergeFile(path); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if cfg.Temperature != 0 || cfg.TrainTemperature != 0 {
		t.Errorf("explicit zero temperatures dropped: %v, %v", cfg.Temperature, cfg.TrainTemperature)
	}

	// Absent keys leave the defaults alone.
	cfg = Defaults()
	if err := cfg.MergeFile(writeConfig(t, "d.yaml", "num_ctx: 1024\n")); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if cfg.Temperature != 0.5 || cfg.TrainTemperature != 0.4 {
		t.Errorf("defaults lost: %v, %v", cfg.Temperature, cfg.TrainTemperature)
	}
}

func TestLoad_ZeroTemperatureFromEnv(t *testing.T) {
	t.Setenv("TEMPERATURE", "0")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Temperature != 0 {
		t.Errorf("expected 0, got %v", cfg.Temperature)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("zero temperature should validate: %v", err)
	}
}

func TestMergeFile_Errors(t *testing.T) {
	cfg := Defaults()
	if err := cfg.MergeFile(writeConfig(t, "c.ini", "x=1")); err == nil {
		t.Error("expected unsupported extension error")
	}
	if err := cfg.MergeFile(writeConfig(t, "c.yaml", "stats_window: soon")); err == nil || !strings.Contains(err.Error(), "stats_window") {
		t.Errorf("expected duration error naming the field, got %v", err)
	}
	if err := cfg.MergeFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected read error")
	}
}

func TestLoad_ConfigFileThenEnv(t *testing.T) {
	path := writeConfig(t, "c.yaml", "model_name: desde-archivo\nnum_ctx: 4096\n")
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("MODEL_NAME", "desde-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ModelName != "desde-env" {
		t.Errorf("env should win over file, got %q", cfg.ModelName)
	}
	if cfg.NumCtx != 4096 {
		t.Errorf("file value should apply, got %d", cfg.NumCtx)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no model", func(c *Config) { c.ModelName = " " }},
		{"no document", func(c *Config) { c.DocumentPath = "" }},
		{"csv document", func(c *Config) { c.DocumentPath = "datos.csv" }},
		{"bad port", func(c *Config) { c.Port = "http" }},
		{"zero context", func(c *Config) { c.ContextChars = 0 }},
		{"zero num_ctx", func(c *Config) { c.NumCtx = 0 }},
		{"hot temperature", func(c *Config) { c.Temperature = 3 }},
		{"no body", func(c *Config) { c.MaxBodyBytes = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := (Config{LogLevel: in}).Level(); got != want {
			t.Errorf("%q: expected %v, got %v", in, want, got)
		}
	}
}
