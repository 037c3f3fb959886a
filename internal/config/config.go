package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/insighto/internal/ai"
	"github.com/KaramelBytes/insighto/internal/cleaner"
	"github.com/KaramelBytes/insighto/internal/narrative"
	"github.com/KaramelBytes/insighto/internal/pipeline"
)

// Global configuration structure.
type Global struct {
	// Narrative capability
	Provider    string  `mapstructure:"provider" yaml:"provider"`
	Model       string  `mapstructure:"model" yaml:"model"`
	APIKey      string  `mapstructure:"api_key" yaml:"api_key"`
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url"`
	OllamaHost  string  `mapstructure:"ollama_host" yaml:"ollama_host"`
	LLMTimeout  int     `mapstructure:"llm_timeout_sec" yaml:"llm_timeout_sec"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Storage
	StorageDir   string `mapstructure:"storage_dir" yaml:"storage_dir"`
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	// Charts
	ChartWidthIn  float64 `mapstructure:"chart_width_in" yaml:"chart_width_in"`
	ChartHeightIn float64 `mapstructure:"chart_height_in" yaml:"chart_height_in"`
	ChartDPI      int     `mapstructure:"chart_dpi" yaml:"chart_dpi"`
	MaxCharts     int     `mapstructure:"max_charts" yaml:"max_charts"`

	// Cleaning thresholds
	NumericCoerceRatio float64 `mapstructure:"numeric_coerce_ratio" yaml:"numeric_coerce_ratio"`
	MissingSkipRatio   float64 `mapstructure:"missing_skip_ratio" yaml:"missing_skip_ratio"`
	OutlierIQRFactor   float64 `mapstructure:"outlier_iqr_factor" yaml:"outlier_iqr_factor"`

	ServerAddr       string `mapstructure:"server_addr" yaml:"server_addr"`
	PreviewRows      int    `mapstructure:"preview_rows" yaml:"preview_rows"`
	BatchParallelism int    `mapstructure:"batch_parallelism" yaml:"batch_parallelism"`

	dbDerived bool
}

// Keys lists every configuration key, in file order.
var Keys = []string{
	"provider", "model", "api_key", "base_url", "ollama_host", "llm_timeout_sec", "max_tokens", "temperature",
	"http_timeout_sec", "retry_max_attempts", "retry_base_delay_ms", "retry_max_delay_ms",
	"storage_dir", "database_path",
	"chart_width_in", "chart_height_in", "chart_dpi", "max_charts",
	"numeric_coerce_ratio", "missing_skip_ratio", "outlier_iqr_factor",
	"server_addr", "preview_rows", "batch_parallelism",
}

// Dir returns ~/.insighto.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".insighto"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.insighto/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, "config.yaml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func defaults(v *viper.Viper) {
	v.SetDefault("provider", ai.ProviderNone)
	v.SetDefault("model", "openai/gpt-4o-mini")
	v.SetDefault("api_key", "")
	v.SetDefault("base_url", "")
	v.SetDefault("ollama_host", ai.DefaultOllamaHost)
	v.SetDefault("llm_timeout_sec", 60)
	v.SetDefault("max_tokens", 1000)
	v.SetDefault("temperature", 0.7)
	// HTTP/retry defaults
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	v.SetDefault("storage_dir", "")
	v.SetDefault("database_path", "")
	v.SetDefault("chart_width_in", 10.0)
	v.SetDefault("chart_height_in", 6.0)
	v.SetDefault("chart_dpi", 100)
	v.SetDefault("max_charts", 5)
	v.SetDefault("numeric_coerce_ratio", 0.70)
	v.SetDefault("missing_skip_ratio", 0.50)
	v.SetDefault("outlier_iqr_factor", 1.5)
	v.SetDefault("server_addr", "127.0.0.1:8080")
	v.SetDefault("preview_rows", 10)
	v.SetDefault("batch_parallelism", 4)
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("INSIGHTO")
	v.AutomaticEnv()
	defaults(v)

	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// An explicit file that does not exist yet is created by Save.
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.StorageDir == "" {
		c.StorageDir = filepath.Join(dir, "storage")
	}
	if c.DatabasePath == "" {
		c.DatabasePath = DefaultDatabasePath(c.StorageDir)
		c.dbDerived = true
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// DefaultDatabasePath is the database location inside a storage directory.
func DefaultDatabasePath(storageDir string) string {
	return filepath.Join(storageDir, "insighto.db")
}

// DatabasePathSet reports whether database_path was configured rather than
// derived from storage_dir.
func (c *Global) DatabasePathSet() bool { return !c.dbDerived }

// Validate rejects values the pipeline cannot run with.
func (c *Global) Validate() error {
	switch {
	case c.NumericCoerceRatio <= 0 || c.NumericCoerceRatio > 1:
		return fmt.Errorf("numeric_coerce_ratio must be in (0, 1], got %v", c.NumericCoerceRatio)
	case c.MissingSkipRatio <= 0 || c.MissingSkipRatio > 1:
		return fmt.Errorf("missing_skip_ratio must be in (0, 1], got %v", c.MissingSkipRatio)
	case c.OutlierIQRFactor <= 0:
		return fmt.Errorf("outlier_iqr_factor must be positive, got %v", c.OutlierIQRFactor)
	case c.MaxCharts < 1:
		return fmt.Errorf("max_charts must be at least 1, got %d", c.MaxCharts)
	}
	return nil
}

// Runtime builds the text generation runtime for the configured provider.
// ok is false when no provider is configured.
func (c *Global) Runtime() (ai.Runtime, bool) {
	host := c.OllamaHost
	if c.Provider != ai.ProviderOllama {
		host = ""
	}
	return ai.GetRuntime(c.Provider, ai.RuntimeConfig{
		HTTPTimeout: time.Duration(c.HTTPTimeoutSec) * time.Second,
		RetryMax:    c.RetryMaxAttempts,
		BaseDelay:   time.Duration(c.RetryBaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(c.RetryMaxDelayMs) * time.Millisecond,
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		Host:        host,
	})
}

// Narrative returns the narrative options.
func (c *Global) Narrative() narrative.Options {
	return narrative.Options{
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
		Timeout:     time.Duration(c.LLMTimeout) * time.Second,
	}
}

// Cleaner returns the cleaning options.
func (c *Global) Cleaner() cleaner.Options {
	opt := cleaner.DefaultOptions()
	opt.NumericCoerceRatio = c.NumericCoerceRatio
	opt.MissingSkipRatio = c.MissingSkipRatio
	opt.OutlierIQRFactor = c.OutlierIQRFactor
	return opt
}

// Pipeline returns the orchestrator options.
func (c *Global) Pipeline() pipeline.Options {
	return pipeline.Options{PreviewRows: c.PreviewRows, Parallelism: c.BatchParallelism}
}

// Get returns the value of one key as text.
func (c *Global) Get(key string) (string, error) {
	m, err := c.asMap()
	if err != nil {
		return "", err
	}
	v, ok := m[key]
	if !ok {
		return "", fmt.Errorf("unknown config key %q", key)
	}
	return fmt.Sprint(v), nil
}

// Set assigns one key from its text form.
func (c *Global) Set(key, value string) error {
	m, err := c.asMap()
	if err != nil {
		return err
	}
	if _, ok := m[key]; !ok {
		return fmt.Errorf("unknown config key %q", key)
	}
	var typed any = value
	if _, text := m[key].(string); !text {
		if err := yaml.Unmarshal([]byte(value), &typed); err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
	}
	m[key] = typed
	b, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	var next Global
	if err := yaml.Unmarshal(b, &next); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	next.dbDerived = c.dbDerived && next.DatabasePath == c.DatabasePath
	*c = next
	return nil
}

func (c *Global) asMap() (map[string]any, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return nil, err
	}
	m := map[string]any{}
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}
