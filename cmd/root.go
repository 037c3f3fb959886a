package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/insighto/internal/config"
)

var (
	// Global flags
	cfgFile string
	debug   bool
	// Narrative/HTTP flags (override config if set)
	flagProvider         string
	flagModel            string
	flagHTTPTimeoutSec   int
	flagRetryMaxAttempts int
	flagRetryBaseDelayMs int
	flagRetryMaxDelayMs  int
	flagStorageDir       string

	// Loaded configuration
	cfg *cfgpkg.Global
	// cfgErr keeps the load failure for commands that need a config.
	cfgErr error
)

var rootCmd = &cobra.Command{
	Use:   "insighto",
	Short: "InSighto: clean, profile, chart and narrate tabular datasets",
	Long: `InSighto turns a CSV, TSV or XLSX file into a cleaned dataset, a statistical
profile, a set of charts and a narrative report. Narratives come from a configured
text generation provider (OpenRouter, OpenAI, Groq, Gemini or a local Ollama) and
fall back to fixed text when none is available.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger := newLogger(debug)
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		cmd.SetContext(logger.WithContext(ctx))
	},
}

// Execute is the entry point called by main.main()
func Execute() {
	// Initialize configuration before executing commands
	cobra.OnInitialize(loadConfig)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	// Persistent global flags available to all subcommands
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ~/.insighto/config.yaml)")
	pf.BoolVar(&debug, "debug", false, "enable debug logging on stderr")
	pf.StringVar(&flagProvider, "provider", "", "narrative provider: none|openrouter|openai|groq|gemini|ollama (overrides config)")
	pf.StringVar(&flagModel, "model", "", "narrative model name (overrides config)")
	pf.StringVar(&flagStorageDir, "storage-dir", "", "session storage directory (overrides config)")
	pf.IntVar(&flagHTTPTimeoutSec, "http-timeout", 0, "HTTP client timeout in seconds (overrides config)")
	pf.IntVar(&flagRetryMaxAttempts, "retry-max", 0, "max retry attempts on 429/5xx (overrides config)")
	pf.IntVar(&flagRetryBaseDelayMs, "retry-base-ms", 0, "base retry backoff in ms (overrides config)")
	pf.IntVar(&flagRetryMaxDelayMs, "retry-max-ms", 0, "max retry backoff cap in ms (overrides config)")
}

func newLogger(debug bool) zerolog.Logger {
	if debug {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			Level(zerolog.DebugLevel).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).Level(zerolog.WarnLevel).With().Timestamp().Logger()
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: allow running commands that don't need config
		cfg, cfgErr = nil, err
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		return
	}
	cfg, cfgErr = c, nil

	// Apply CLI overrides if provided
	f := rootCmd.PersistentFlags()
	if f.Changed("provider") {
		cfg.Provider = flagProvider
	}
	if f.Changed("model") && flagModel != "" {
		cfg.Model = flagModel
	}
	if f.Changed("storage-dir") && flagStorageDir != "" {
		cfg.StorageDir = flagStorageDir
		if !c.DatabasePathSet() {
			cfg.DatabasePath = cfgpkg.DefaultDatabasePath(flagStorageDir)
		}
	}
	if f.Changed("http-timeout") && flagHTTPTimeoutSec > 0 {
		cfg.HTTPTimeoutSec = flagHTTPTimeoutSec
	}
	if f.Changed("retry-max") && flagRetryMaxAttempts > 0 {
		cfg.RetryMaxAttempts = flagRetryMaxAttempts
	}
	if f.Changed("retry-base-ms") && flagRetryBaseDelayMs > 0 {
		cfg.RetryBaseDelayMs = flagRetryBaseDelayMs
	}
	if f.Changed("retry-max-ms") && flagRetryMaxDelayMs > 0 {
		cfg.RetryMaxDelayMs = flagRetryMaxDelayMs
	}
}

// requireConfig returns the loaded configuration or the load error.
func requireConfig() (*cfgpkg.Global, error) {
	if cfg == nil {
		if cfgErr != nil {
			return nil, fmt.Errorf("config: %w", cfgErr)
		}
		return nil, fmt.Errorf("config not loaded")
	}
	return cfg, nil
}
