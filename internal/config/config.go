// Package config assembles runtime settings from the environment, with
// an optional .env file for local development. Every knob has a default
// that works offline; only the live Oracle needs a key.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"attune/internal/profile"
)

type Config struct {
	Env     string
	Addr    string
	Verbose bool

	Oracle OracleConfig
	Run    RunConfig
	Store  StoreConfig
}

// OracleConfig shapes the transport: which model, how hard to retry,
// and how fast to let calls out.
type OracleConfig struct {
	Model   string
	APIKey  string
	Offline bool

	MaxTries    int
	RetryBase   time.Duration
	CallTimeout time.Duration
	RPS         float64
	Burst       int
}

// RunConfig carries the convergence defaults runs start from.
type RunConfig struct {
	MaxAttempts   int
	Threshold     float64
	AttemptDelay  time.Duration
	Template      string
	MaxConcurrent int
}

// StoreConfig wires the persistence surfaces: profile overrides, flow
// files, usage accounting, and the optional Postgres/object archives.
type StoreConfig struct {
	ProfileDir  string
	FlowDir     string
	UsageFile   string
	PostgresDSN string

	S3 S3Config
}

type S3Config struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := firstNonEmpty(os.Getenv("ATTUNE_ENV"), os.Getenv("APP_ENV"), "local")

	cfg := &Config{
		Env:     env,
		Addr:    resolveAddr(),
		Verbose: envBool("ATTUNE_VERBOSE", false),
		Oracle: OracleConfig{
			Model:       firstNonEmpty(os.Getenv("ATTUNE_MODEL"), "gemini-2.5-flash"),
			APIKey:      strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
			Offline:     envBool("ATTUNE_OFFLINE", false),
			MaxTries:    envInt("ATTUNE_MAX_TRIES", 3),
			RetryBase:   envDuration("ATTUNE_RETRY_BASE", time.Second),
			CallTimeout: envDuration("ATTUNE_CALL_TIMEOUT", 45*time.Second),
			RPS:         envFloat("ATTUNE_RPS", 0),
			Burst:       envInt("ATTUNE_BURST", 1),
		},
		Run: RunConfig{
			MaxAttempts:   envInt("ATTUNE_MAX_ATTEMPTS", 3),
			Threshold:     envFloat("ATTUNE_THRESHOLD", 0.85),
			AttemptDelay:  envDuration("ATTUNE_ATTEMPT_DELAY", 2*time.Second),
			Template:      firstNonEmpty(os.Getenv("ATTUNE_TEMPLATE"), profile.TemplateBase),
			MaxConcurrent: envInt("ATTUNE_MAX_CONCURRENT", 2),
		},
		Store: StoreConfig{
			ProfileDir:  strings.TrimSpace(os.Getenv("ATTUNE_PROFILE_DIR")),
			FlowDir:     firstNonEmpty(os.Getenv("ATTUNE_FLOW_DIR"), "flows"),
			UsageFile:   strings.TrimSpace(os.Getenv("ATTUNE_USAGE_FILE")),
			PostgresDSN: strings.TrimSpace(os.Getenv("ATTUNE_PG_DSN")),
			S3:          loadS3Config(),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Run.MaxAttempts < 1 {
		return fmt.Errorf("config: max attempts must be at least 1, got %d", c.Run.MaxAttempts)
	}
	if c.Run.Threshold <= 0 || c.Run.Threshold > 1 {
		return fmt.Errorf("config: threshold must be in (0,1], got %v", c.Run.Threshold)
	}
	if c.Run.MaxConcurrent < 1 {
		return fmt.Errorf("config: max concurrent must be at least 1, got %d", c.Run.MaxConcurrent)
	}
	if c.Oracle.MaxTries < 1 {
		return fmt.Errorf("config: oracle tries must be at least 1, got %d", c.Oracle.MaxTries)
	}
	known := false
	for _, tpl := range profile.Templates {
		if c.Run.Template == tpl {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("config: unknown template %q", c.Run.Template)
	}
	return nil
}

// RequireOracleKey rejects a live (non-offline) setup without an API
// key. Callers check this after flag overrides are applied, so a CLI
// --offline can still rescue a keyless environment.
func (c *Config) RequireOracleKey() error {
	if !c.Oracle.Offline && c.Oracle.APIKey == "" {
		return fmt.Errorf("config: GEMINI_API_KEY is required unless running offline")
	}
	return nil
}

// Local reports whether this process runs in the local development
// environment, which picks the human-readable log encoder.
func (c *Config) Local() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "local")
}

func resolveAddr() string {
	addr := firstNonEmpty(os.Getenv("ATTUNE_PORT"), os.Getenv("PORT"), ":8080")
	if !strings.HasPrefix(addr, ":") && !strings.Contains(addr, ":") {
		addr = ":" + addr
	}
	return addr
}

func loadS3Config() S3Config {
	endpoint := strings.TrimSpace(os.Getenv("FLOW_S3_ENDPOINT"))
	return S3Config{
		Enabled:   endpoint != "",
		Endpoint:  endpoint,
		Region:    firstNonEmpty(os.Getenv("FLOW_S3_REGION"), "us-east-1"),
		AccessKey: firstNonEmpty(os.Getenv("FLOW_S3_ACCESS_KEY"), os.Getenv("MINIO_ROOT_USER")),
		SecretKey: firstNonEmpty(os.Getenv("FLOW_S3_SECRET_KEY"), os.Getenv("MINIO_ROOT_PASSWORD")),
		Bucket:    firstNonEmpty(os.Getenv("FLOW_S3_BUCKET"), "attune-flows"),
		UseSSL:    envBool("FLOW_S3_USE_SSL", false),
	}
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func envFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func envDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
