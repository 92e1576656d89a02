package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/storyqa/internal/parser"
	"github.com/joho/godotenv"
)

type Config struct {
	Host     string
	Port     string
	LogLevel string

	// Model backend
	OllamaURL     string
	OllamaTimeout time.Duration
	ModelName     string

	// Reference document
	DocumentPath         string
	PDFFallbackPdftotext bool

	// Generation
	ContextChars int
	Temperature  float64
	NumCtx       int

	// HTTP
	MaxBodyBytes       int64
	CORSAllowedOrigins []string
	StatsWindow        time.Duration

	// Trainer
	BaseModel             string
	ModelfilePath         string
	TrainingDataPath      string
	ModelfileContextChars int
	TrainEpochs           int
	TrainLimit            int
	TrainTemperature      float64
	TrainFailurePause     time.Duration
	SampleQuestion        string
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Host:     "0.0.0.0",
		Port:     "5000",
		LogLevel: "info",

		OllamaURL:     "http://localhost:11434",
		OllamaTimeout: 5 * time.Minute,
		ModelName:     "mi-historia",

		DocumentPath:         "modelo/documento.docx",
		PDFFallbackPdftotext: true,

		ContextChars: 1500,
		Temperature:  0.5,
		NumCtx:       2048,

		MaxBodyBytes:       1 << 20,
		CORSAllowedOrigins: []string{"*"},
		StatsWindow:        time.Hour,

		BaseModel:             "llama3",
		ModelfilePath:         "Modelfile",
		TrainingDataPath:      "entrenamiento.json",
		ModelfileContextChars: 1000,
		TrainEpochs:           3,
		TrainLimit:            50,
		TrainTemperature:      0.4,
		TrainFailurePause:     5 * time.Second,
		SampleQuestion:        "¿Qué impacto tuvo la plataforma de aprendizaje en los jóvenes del barrio?",
	}
}

// Load builds the configuration from, in increasing precedence: defaults,
// the file named by CONFIG_FILE, and environment variables. A .env file in
// the working directory is read first if present.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.MergeFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	cfg.OllamaURL = NormalizeURL(cfg.OllamaURL)
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Host = envOr("HOST", c.Host)
	c.Port = envOr("PORT", c.Port)
	c.LogLevel = envOr("LOG_LEVEL", c.LogLevel)

	c.OllamaURL = envOr("OLLAMA_HOST", c.OllamaURL)
	c.OllamaTimeout = envDuration("OLLAMA_TIMEOUT", c.OllamaTimeout)
	c.ModelName = envOr("MODEL_NAME", c.ModelName)

	c.DocumentPath = envOr("DOCUMENT_PATH", c.DocumentPath)
	c.PDFFallbackPdftotext = envBool("PDF_FALLBACK_PDFTOTEXT", c.PDFFallbackPdftotext)

	c.ContextChars = envInt("CONTEXT_CHARS", c.ContextChars)
	c.Temperature = envFloat("TEMPERATURE", c.Temperature)
	c.NumCtx = envInt("NUM_CTX", c.NumCtx)

	c.MaxBodyBytes = envInt64("MAX_BODY_BYTES", c.MaxBodyBytes)
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.CORSAllowedOrigins = splitList(v)
	}
	c.StatsWindow = envDuration("STATS_WINDOW", c.StatsWindow)

	c.BaseModel = envOr("BASE_MODEL", c.BaseModel)
	c.ModelfilePath = envOr("MODELFILE_PATH", c.ModelfilePath)
	c.TrainingDataPath = envOr("TRAINING_DATA", c.TrainingDataPath)
	c.ModelfileContextChars = envInt("MODELFILE_CONTEXT_CHARS", c.ModelfileContextChars)
	c.TrainEpochs = envInt("TRAIN_EPOCHS", c.TrainEpochs)
	c.TrainLimit = envInt("TRAIN_LIMIT", c.TrainLimit)
	c.TrainTemperature = envFloat("TRAIN_TEMPERATURE", c.TrainTemperature)
	c.TrainFailurePause = envDuration("TRAIN_FAILURE_PAUSE", c.TrainFailurePause)
	c.SampleQuestion = envOr("SAMPLE_QUESTION", c.SampleQuestion)
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("MODEL_NAME is required")
	}
	if strings.TrimSpace(c.DocumentPath) == "" {
		return fmt.Errorf("DOCUMENT_PATH is required")
	}
	if !parser.IsSupportedExtension(c.DocumentPath) {
		return fmt.Errorf("DOCUMENT_PATH has an unsupported extension: %s", c.DocumentPath)
	}
	if n, err := strconv.Atoi(c.Port); err != nil || n <= 0 || n > 65535 {
		return fmt.Errorf("PORT must be a port number, got %q", c.Port)
	}
	if c.ContextChars <= 0 {
		return fmt.Errorf("CONTEXT_CHARS must be positive, got %d", c.ContextChars)
	}
	if c.NumCtx <= 0 {
		return fmt.Errorf("NUM_CTX must be positive, got %d", c.NumCtx)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("TEMPERATURE must be within [0, 2], got %g", c.Temperature)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be positive, got %d", c.MaxBodyBytes)
	}
	return nil
}

// Level maps LOG_LEVEL onto a slog level. Unknown values mean info.
func (c Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Addr is the listen address.
func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}

// NormalizeURL accepts an Ollama address in the bare host:port form the ollama
// CLI uses.
func NormalizeURL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" || strings.Contains(u, "://") {
		return u
	}
	return "http://" + u
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
