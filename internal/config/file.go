package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config for on-disk files. Zero values (nil for pointers)
// mean "not set"; durations are strings like "90s".
type fileConfig struct {
	Host     string `json:"host" yaml:"host" toml:"host"`
	Port     string `json:"port" yaml:"port" toml:"port"`
	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`

	OllamaURL     string `json:"ollama_url" yaml:"ollama_url" toml:"ollama_url"`
	OllamaTimeout string `json:"ollama_timeout" yaml:"ollama_timeout" toml:"ollama_timeout"`
	ModelName     string `json:"model_name" yaml:"model_name" toml:"model_name"`

	DocumentPath         string `json:"document_path" yaml:"document_path" toml:"document_path"`
	PDFFallbackPdftotext *bool  `json:"pdf_fallback_pdftotext" yaml:"pdf_fallback_pdftotext" toml:"pdf_fallback_pdftotext"`

	ContextChars int      `json:"context_chars" yaml:"context_chars" toml:"context_chars"`
	Temperature  *float64 `json:"temperature" yaml:"temperature" toml:"temperature"`
	NumCtx       int      `json:"num_ctx" yaml:"num_ctx" toml:"num_ctx"`

	MaxBodyBytes       int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" toml:"cors_allowed_origins"`
	StatsWindow        string   `json:"stats_window" yaml:"stats_window" toml:"stats_window"`

	Trainer struct {
		BaseModel             string   `json:"base_model" yaml:"base_model" toml:"base_model"`
		ModelfilePath         string   `json:"modelfile_path" yaml:"modelfile_path" toml:"modelfile_path"`
		TrainingDataPath      string   `json:"training_data" yaml:"training_data" toml:"training_data"`
		ModelfileContextChars int      `json:"modelfile_context_chars" yaml:"modelfile_context_chars" toml:"modelfile_context_chars"`
		Epochs                int      `json:"epochs" yaml:"epochs" toml:"epochs"`
		Limit                 int      `json:"limit" yaml:"limit" toml:"limit"`
		Temperature           *float64 `json:"temperature" yaml:"temperature" toml:"temperature"`
		FailurePause          string   `json:"failure_pause" yaml:"failure_pause" toml:"failure_pause"`
		SampleQuestion        string   `json:"sample_question" yaml:"sample_question" toml:"sample_question"`
	} `json:"trainer" yaml:"trainer" toml:"trainer"`
}

// MergeFile overlays the settings found in a .yaml/.yml, .toml or .json file.
func (c *Config) MergeFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var fc fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &fc)
	case ".json":
		err = json.Unmarshal(b, &fc)
	case ".toml":
		err = toml.Unmarshal(b, &fc)
	default:
		return fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return c.merge(fc)
}

func (c *Config) merge(fc fileConfig) error {
	setString(&c.Host, fc.Host)
	setString(&c.Port, fc.Port)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.OllamaURL, fc.OllamaURL)
	setString(&c.ModelName, fc.ModelName)
	setString(&c.DocumentPath, fc.DocumentPath)
	if fc.PDFFallbackPdftotext != nil {
		c.PDFFallbackPdftotext = *fc.PDFFallbackPdftotext
	}
	setInt(&c.ContextChars, fc.ContextChars)
	setFloat(&c.Temperature, fc.Temperature)
	setInt(&c.NumCtx, fc.NumCtx)
	if fc.MaxBodyBytes > 0 {
		c.MaxBodyBytes = fc.MaxBodyBytes
	}
	if len(fc.CORSAllowedOrigins) > 0 {
		c.CORSAllowedOrigins = fc.CORSAllowedOrigins
	}

	tr := fc.Trainer
	setString(&c.BaseModel, tr.BaseModel)
	setString(&c.ModelfilePath, tr.ModelfilePath)
	setString(&c.TrainingDataPath, tr.TrainingDataPath)
	setInt(&c.ModelfileContextChars, tr.ModelfileContextChars)
	setInt(&c.TrainEpochs, tr.Epochs)
	setInt(&c.TrainLimit, tr.Limit)
	setFloat(&c.TrainTemperature, tr.Temperature)
	setString(&c.SampleQuestion, tr.SampleQuestion)

	for _, d := range []struct {
		dst  *time.Duration
		src  string
		name string
	}{
		{&c.OllamaTimeout, fc.OllamaTimeout, "ollama_timeout"},
		{&c.StatsWindow, fc.StatsWindow, "stats_window"},
		{&c.TrainFailurePause, tr.FailurePause, "trainer.failure_pause"},
	} {
		if d.src == "" {
			continue
		}
		v, err := time.ParseDuration(d.src)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = v
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

// setFloat applies v when the file set it, zero included.
func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
