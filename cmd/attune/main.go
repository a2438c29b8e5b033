// Command attune drives LLM replies toward a behavioral profile from
// the terminal: single runs, scenario batches, catalog sweeps and
// offline scoring.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"attune/internal/config"
	"attune/internal/converge"
	"attune/internal/llm"
	"attune/internal/profile"
	"attune/internal/provenance"
)

var (
	// Global flags
	offline bool
	verbose bool
	jsonOut bool
	apiKey  string
	model   string

	// Run shaping flags, zero means "use config"
	maxAttempts  int
	threshold    float64
	templateName string
	attemptDelay time.Duration

	// Logger
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "attune",
	Short: "attune converges LLM replies onto behavioral profiles",
	Long: `attune sends a scenario to an LLM speaking as a profiled persona,
scores the reply across five style dimensions, and rewrites the request
with escalating style directives until the reply converges or the
attempt budget runs out.

Runs persist a provenance record per converged scenario. Set
ATTUNE_OFFLINE=1 or pass --offline to use a scripted local oracle.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		zc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "Use the scripted local oracle instead of the live API")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Emit machine-readable JSON instead of text")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Gemini API key (or set GEMINI_API_KEY)")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "Model override")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(scoreCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig merges the environment with explicit flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if offline {
		cfg.Oracle.Offline = true
	}
	if apiKey != "" {
		cfg.Oracle.APIKey = apiKey
	}
	if model != "" {
		cfg.Oracle.Model = model
	}
	if maxAttempts > 0 {
		cfg.Run.MaxAttempts = maxAttempts
	}
	if threshold > 0 {
		cfg.Run.Threshold = threshold
	}
	if templateName != "" {
		cfg.Run.Template = templateName
	}
	if attemptDelay >= 0 {
		cfg.Run.AttemptDelay = attemptDelay
	}
	return cfg, cfg.Validate()
}

// deps is everything a converging command needs, built once per
// invocation and torn down by Close.
type deps struct {
	cfg       *config.Config
	ctrl      *converge.Controller
	profiles  *profile.CatalogStore
	transport *llm.Transport
	pg        *provenance.PostgresSink
}

func buildDeps(ctx context.Context) (*deps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireOracleKey(); err != nil {
		return nil, err
	}

	var client llm.Client
	if cfg.Oracle.Offline {
		client = llm.NewFakeClient()
	} else {
		client, err = llm.NewGeminiClient(ctx, cfg.Oracle.APIKey, cfg.Oracle.Model)
		if err != nil {
			return nil, fmt.Errorf("dial oracle: %w", err)
		}
	}

	transport := llm.NewTransport(client, llm.TransportOptions{
		Retry: llm.RetryPolicy{
			MaxTries:  cfg.Oracle.MaxTries,
			BaseDelay: cfg.Oracle.RetryBase,
		},
		RPS:         cfg.Oracle.RPS,
		Burst:       cfg.Oracle.Burst,
		CallTimeout: cfg.Oracle.CallTimeout,
		Ledger:      llm.NewUsageLedger(cfg.Store.UsageFile),
		Log:         logger,
	})

	profiles, err := profile.NewCatalogStore(cfg.Store.ProfileDir, logger)
	if err != nil {
		return nil, fmt.Errorf("open profile catalog: %w", err)
	}

	sinks := []provenance.Sink{provenance.NewFlowSink(cfg.Store.FlowDir, logger)}
	var pg *provenance.PostgresSink
	if cfg.Store.PostgresDSN != "" {
		pg, err = provenance.NewPostgresSink(cfg.Store.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres sink: %w", err)
		}
		sinks = append(sinks, pg)
	}
	if cfg.Store.S3.Enabled {
		obj, err := provenance.NewObjectSink(provenance.ObjectConfig{
			Endpoint:  cfg.Store.S3.Endpoint,
			Region:    cfg.Store.S3.Region,
			AccessKey: cfg.Store.S3.AccessKey,
			SecretKey: cfg.Store.S3.SecretKey,
			Bucket:    cfg.Store.S3.Bucket,
			UseSSL:    cfg.Store.S3.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("open object sink: %w", err)
		}
		sinks = append(sinks, obj)
	}

	ctrl, err := converge.New(converge.Deps{
		Profiles: profiles,
		Oracle:   transport,
		Sink:     provenance.NewMultiSink(sinks...),
		Log:      logger,
	}, converge.Options{
		MaxAttempts:  cfg.Run.MaxAttempts,
		Threshold:    cfg.Run.Threshold,
		AttemptDelay: cfg.Run.AttemptDelay,
		Template:     cfg.Run.Template,
	})
	if err != nil {
		return nil, err
	}

	return &deps{cfg: cfg, ctrl: ctrl, profiles: profiles, transport: transport, pg: pg}, nil
}

func (d *deps) Close() {
	_ = d.transport.Close()
	if d.pg != nil {
		_ = d.pg.Close()
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}
