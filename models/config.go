package models

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the runtime configuration for both commands. Durations
// are plain millisecond counts so the YAML stays flat and diffable.
type Config struct {
	BackendURL string `yaml:"backend_url"`

	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Browser    BrowserConfig    `yaml:"browser"`
	Serve      ServeConfig      `yaml:"serve"`
	Store      StoreConfig      `yaml:"store"`
}

type EnrichmentConfig struct {
	URL         string  `yaml:"url"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	TimeoutMS   int     `yaml:"timeout_ms"`
}

type PipelineConfig struct {
	CooldownMS    int `yaml:"cooldown_ms"`
	Retries       int `yaml:"retries"`
	RetryDelayMS  int `yaml:"retry_delay_ms"`
	InjectDelayMS int `yaml:"inject_delay_ms"`
	MinTextLen    int `yaml:"min_text_len"`
	CharLimit     int `yaml:"char_limit"`
}

type BrowserConfig struct {
	// DevToolsURL attaches to a running browser when set; otherwise a
	// local headless instance is started.
	DevToolsURL     string `yaml:"devtools_url"`
	PollIntervalMS  int    `yaml:"poll_interval_ms"`
	WatchIntervalMS int    `yaml:"watch_interval_ms"`
	DebounceMS      int    `yaml:"debounce_ms"`
}

type ServeConfig struct {
	ListenAddr          string  `yaml:"listen_addr"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

// DefaultConfig returns the configuration used when no file is present.
// The constants mirror the defaults of the original extension.
func DefaultConfig() Config {
	return Config{
		BackendURL: "http://localhost:8000",
		Enrichment: EnrichmentConfig{
			URL:         "https://api.groq.com/openai/v1/chat/completions",
			Model:       "llama-3.1-8b-instant",
			MaxTokens:   500,
			Temperature: 0.3,
			TimeoutMS:   20000,
		},
		Pipeline: PipelineConfig{
			CooldownMS:    2 * 60 * 1000,
			Retries:       2,
			RetryDelayMS:  1000,
			InjectDelayMS: 700,
			MinTextLen:    80,
			CharLimit:     2000,
		},
		Browser: BrowserConfig{
			PollIntervalMS:  1000,
			WatchIntervalMS: 500,
			DebounceMS:      800,
		},
		Serve: ServeConfig{
			ListenAddr:          ":8000",
			SimilarityThreshold: 0.65,
		},
		Store: StoreConfig{
			Path: "tabsense.db",
		},
	}
}

// LoadConfig reads a YAML config file and fills every zero field with
// its default. A missing file yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}

	mergeConfig(&cfg, file)
	return cfg, nil
}

func mergeConfig(dst *Config, src Config) {
	if src.BackendURL != "" {
		dst.BackendURL = src.BackendURL
	}
	if src.Enrichment.URL != "" {
		dst.Enrichment.URL = src.Enrichment.URL
	}
	if src.Enrichment.Model != "" {
		dst.Enrichment.Model = src.Enrichment.Model
	}
	if src.Enrichment.MaxTokens > 0 {
		dst.Enrichment.MaxTokens = src.Enrichment.MaxTokens
	}
	if src.Enrichment.Temperature > 0 {
		dst.Enrichment.Temperature = src.Enrichment.Temperature
	}
	if src.Enrichment.TimeoutMS > 0 {
		dst.Enrichment.TimeoutMS = src.Enrichment.TimeoutMS
	}
	if src.Pipeline.CooldownMS > 0 {
		dst.Pipeline.CooldownMS = src.Pipeline.CooldownMS
	}
	if src.Pipeline.Retries > 0 {
		dst.Pipeline.Retries = src.Pipeline.Retries
	}
	if src.Pipeline.RetryDelayMS > 0 {
		dst.Pipeline.RetryDelayMS = src.Pipeline.RetryDelayMS
	}
	if src.Pipeline.InjectDelayMS > 0 {
		dst.Pipeline.InjectDelayMS = src.Pipeline.InjectDelayMS
	}
	if src.Pipeline.MinTextLen > 0 {
		dst.Pipeline.MinTextLen = src.Pipeline.MinTextLen
	}
	if src.Pipeline.CharLimit > 0 {
		dst.Pipeline.CharLimit = src.Pipeline.CharLimit
	}
	if src.Browser.DevToolsURL != "" {
		dst.Browser.DevToolsURL = src.Browser.DevToolsURL
	}
	if src.Browser.PollIntervalMS > 0 {
		dst.Browser.PollIntervalMS = src.Browser.PollIntervalMS
	}
	if src.Browser.WatchIntervalMS > 0 {
		dst.Browser.WatchIntervalMS = src.Browser.WatchIntervalMS
	}
	if src.Browser.DebounceMS > 0 {
		dst.Browser.DebounceMS = src.Browser.DebounceMS
	}
	if src.Serve.ListenAddr != "" {
		dst.Serve.ListenAddr = src.Serve.ListenAddr
	}
	if src.Serve.SimilarityThreshold > 0 {
		dst.Serve.SimilarityThreshold = src.Serve.SimilarityThreshold
	}
	if src.Store.Path != "" {
		dst.Store.Path = src.Store.Path
	}
}
