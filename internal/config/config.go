// Package config loads the diagnostic engine's static configuration: rule
// overrides, pipeline timing/parallelism knobs, and LLM adapter settings.
// CLI flag parsing and credential storage are external collaborators;
// this package only owns the YAML file plus environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tracymacding/starrocks-diag-engine/internal/logging"
)

// Config holds all diagnostic-engine configuration.
type Config struct {
	Probe    ProbeConfig    `yaml:"probe"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	LLM      LLMConfig      `yaml:"llm"`
	Logging  LoggingConfig  `yaml:"logging"`

	// RuleOverrides is the single static configuration surface every rule
	// table reads from - no analyzer may embed a literal threshold.
	RuleOverrides RuleOverrides `yaml:"rule_overrides"`
}

// ProbeConfig describes how to reach the cluster's frontend/backend planes.
type ProbeConfig struct {
	DSN            string `yaml:"dsn"`             // MySQL-wire DSN to a frontend node
	BackendHTTPFmt string `yaml:"backend_http_fmt"` // fmt pattern for host and port, e.g. "http://%s:%d"
}

// PipelineConfig configures the Collect stage and overall deadlines.
type PipelineConfig struct {
	CollectParallelism   int    `yaml:"collect_parallelism"`
	QueryTimeout         string `yaml:"query_timeout"`
	LLMTimeout           string `yaml:"llm_timeout"`
	ToolCallTimeout       string `yaml:"tool_call_timeout"`
	HistoricalDedupWindow string `yaml:"historical_dedup_window"`
}

// LLMConfig configures the optional failure-classification adapter.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // deepseek, openai, gemini
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
}

// LoggingConfig mirrors logging.Settings for YAML round-tripping.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	JSONFormat bool            `yaml:"json_format"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the engine's built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Probe: ProbeConfig{
			BackendHTTPFmt: "http://%s:%d",
		},
		Pipeline: PipelineConfig{
			CollectParallelism:    8,
			QueryTimeout:          "30s",
			LLMTimeout:            "15s",
			ToolCallTimeout:       "120s",
			HistoricalDedupWindow: "2m",
		},
		LLM: LLMConfig{
			Temperature: 0.3,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		RuleOverrides: DefaultRuleOverrides(),
	}
}

// LoadConfig reads configuration from a YAML file, falling back to
// defaults when path is empty or the file does not exist. Environment
// overrides are always applied last.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				logging.BootError("failed to read config file %s: %v", path, err)
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			logging.BootError("failed to parse config file %s: %v", path, err)
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.applyLoggingSettings()
	logging.Boot("config loaded: llm_provider=%s collect_parallelism=%d", cfg.LLM.Provider, cfg.Pipeline.CollectParallelism)
	return cfg, nil
}

// LoadRuleOverrides re-reads just the rule_overrides section of the config
// file, used by rules.Watcher for hot-reload without re-running env-var
// overrides or re-touching the logging package.
func LoadRuleOverrides(path string) (RuleOverrides, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return RuleOverrides{}, fmt.Errorf("read rule overrides: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return RuleOverrides{}, fmt.Errorf("parse rule overrides: %w", err)
	}
	return cfg.RuleOverrides, nil
}

// applyLoggingSettings pushes the loaded LoggingConfig into the logging
// package's global Settings at boot, so config owns logging.Configure.
func (c *Config) applyLoggingSettings() {
	level := logging.LevelInfo
	switch c.Logging.Level {
	case "debug":
		level = logging.LevelDebug
	case "warn", "warning":
		level = logging.LevelWarn
	case "error":
		level = logging.LevelError
	}
	cats := make(map[logging.Category]bool, len(c.Logging.Categories))
	for k, v := range c.Logging.Categories {
		cats[logging.Category(k)] = v
	}
	logging.Configure(logging.Settings{
		DebugMode:  c.Logging.DebugMode,
		JSONFormat: c.Logging.JSONFormat,
		Level:      level,
		Categories: cats,
	})
}

// applyEnvOverrides applies environment variable overrides. The LLM
// provider chain is a fixed-priority scan (deepseek, then openai, then
// gemini) that stops at the first variable found set, rather than a
// last-write-wins scan over all of them.
func (c *Config) applyEnvOverrides() {
	type providerEnv struct {
		provider string
		envVars  []string
	}
	chain := []providerEnv{
		{"deepseek", []string{"DEEPSEEK_API_KEY"}},
		{"openai", []string{"OPENAI_API_KEY"}},
		{"gemini", []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}},
	}
scan:
	for _, p := range chain {
		for _, env := range p.envVars {
			if key := os.Getenv(env); key != "" {
				c.LLM.APIKey = key
				c.LLM.Provider = p.provider
				break scan
			}
		}
	}

	if dsn := os.Getenv("STARROCKS_PROBE_DSN"); dsn != "" {
		c.Probe.DSN = dsn
	}
}

// QueryTimeout parses Pipeline.QueryTimeout, falling back to 30s on a bad
// or empty value rather than failing the whole config load.
func (c *Config) QueryTimeout() time.Duration {
	return parseDurationOr(c.Pipeline.QueryTimeout, 30*time.Second)
}

func (c *Config) LLMTimeout() time.Duration {
	return parseDurationOr(c.Pipeline.LLMTimeout, 15*time.Second)
}

func (c *Config) ToolCallTimeout() time.Duration {
	return parseDurationOr(c.Pipeline.ToolCallTimeout, 120*time.Second)
}

func (c *Config) HistoricalDedupWindow() time.Duration {
	return parseDurationOr(c.Pipeline.HistoricalDedupWindow, 2*time.Minute)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
