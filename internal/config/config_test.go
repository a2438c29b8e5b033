package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attune/internal/profile"
)

// clearEnv blanks every variable Load reads so host settings cannot
// leak into assertions. The loaders treat empty as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ATTUNE_ENV", "APP_ENV", "ATTUNE_PORT", "PORT", "ATTUNE_VERBOSE",
		"ATTUNE_MODEL", "GEMINI_API_KEY", "ATTUNE_OFFLINE",
		"ATTUNE_MAX_TRIES", "ATTUNE_RETRY_BASE", "ATTUNE_CALL_TIMEOUT",
		"ATTUNE_RPS", "ATTUNE_BURST",
		"ATTUNE_MAX_ATTEMPTS", "ATTUNE_THRESHOLD", "ATTUNE_ATTEMPT_DELAY",
		"ATTUNE_TEMPLATE", "ATTUNE_MAX_CONCURRENT",
		"ATTUNE_PROFILE_DIR", "ATTUNE_FLOW_DIR", "ATTUNE_USAGE_FILE", "ATTUNE_PG_DSN",
		"FLOW_S3_ENDPOINT", "FLOW_S3_REGION", "FLOW_S3_ACCESS_KEY", "FLOW_S3_SECRET_KEY",
		"FLOW_S3_BUCKET", "FLOW_S3_USE_SSL", "MINIO_ROOT_USER", "MINIO_ROOT_PASSWORD",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("ATTUNE_OFFLINE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Env)
	assert.True(t, cfg.Local())
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "gemini-2.5-flash", cfg.Oracle.Model)
	assert.Equal(t, 3, cfg.Oracle.MaxTries)
	assert.Equal(t, time.Second, cfg.Oracle.RetryBase)
	assert.Equal(t, 45*time.Second, cfg.Oracle.CallTimeout)
	assert.Equal(t, 3, cfg.Run.MaxAttempts)
	assert.InDelta(t, 0.85, cfg.Run.Threshold, 1e-9)
	assert.Equal(t, 2*time.Second, cfg.Run.AttemptDelay)
	assert.Equal(t, profile.TemplateBase, cfg.Run.Template)
	assert.Equal(t, 2, cfg.Run.MaxConcurrent)
	assert.Equal(t, "flows", cfg.Store.FlowDir)
	assert.False(t, cfg.Store.S3.Enabled)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ATTUNE_ENV", "prod")
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("ATTUNE_MODEL", "gemini-2.5-pro")
	t.Setenv("PORT", "9000")
	t.Setenv("ATTUNE_MAX_ATTEMPTS", "5")
	t.Setenv("ATTUNE_THRESHOLD", "0.7")
	t.Setenv("ATTUNE_ATTEMPT_DELAY", "250ms")
	t.Setenv("ATTUNE_TEMPLATE", profile.TemplatePolicy)
	t.Setenv("ATTUNE_MAX_CONCURRENT", "4")
	t.Setenv("ATTUNE_RPS", "2.5")
	t.Setenv("ATTUNE_FLOW_DIR", "/tmp/flows")
	t.Setenv("ATTUNE_PG_DSN", "postgres://attune@localhost/attune")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Env)
	assert.False(t, cfg.Local())
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, "gemini-2.5-pro", cfg.Oracle.Model)
	assert.Equal(t, "test-key", cfg.Oracle.APIKey)
	assert.Equal(t, 5, cfg.Run.MaxAttempts)
	assert.InDelta(t, 0.7, cfg.Run.Threshold, 1e-9)
	assert.Equal(t, 250*time.Millisecond, cfg.Run.AttemptDelay)
	assert.Equal(t, profile.TemplatePolicy, cfg.Run.Template)
	assert.Equal(t, 4, cfg.Run.MaxConcurrent)
	assert.InDelta(t, 2.5, cfg.Oracle.RPS, 1e-9)
	assert.Equal(t, "/tmp/flows", cfg.Store.FlowDir)
	assert.Equal(t, "postgres://attune@localhost/attune", cfg.Store.PostgresDSN)
}

func TestLoadS3FromMinioFallbacks(t *testing.T) {
	clearEnv(t)
	t.Setenv("ATTUNE_OFFLINE", "1")
	t.Setenv("FLOW_S3_ENDPOINT", "minio:9000")
	t.Setenv("MINIO_ROOT_USER", "minioadmin")
	t.Setenv("MINIO_ROOT_PASSWORD", "miniosecret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Store.S3.Enabled)
	assert.Equal(t, "minio:9000", cfg.Store.S3.Endpoint)
	assert.Equal(t, "minioadmin", cfg.Store.S3.AccessKey)
	assert.Equal(t, "miniosecret", cfg.Store.S3.SecretKey)
	assert.Equal(t, "attune-flows", cfg.Store.S3.Bucket)
	assert.False(t, cfg.Store.S3.UseSSL)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"zero attempts", "ATTUNE_MAX_ATTEMPTS", "0", "max attempts"},
		{"threshold above one", "ATTUNE_THRESHOLD", "1.5", "threshold"},
		{"zero threshold", "ATTUNE_THRESHOLD", "0", "threshold"},
		{"zero concurrency", "ATTUNE_MAX_CONCURRENT", "0", "max concurrent"},
		{"zero tries", "ATTUNE_MAX_TRIES", "0", "oracle tries"},
		{"unknown template", "ATTUNE_TEMPLATE", "freestyle", "unknown template"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("ATTUNE_OFFLINE", "true")
			t.Setenv(tc.key, tc.val)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestRequireOracleKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("ATTUNE_OFFLINE", "false")

	cfg, err := Load()
	require.NoError(t, err)
	require.Error(t, cfg.RequireOracleKey())

	cfg.Oracle.Offline = true
	require.NoError(t, cfg.RequireOracleKey())

	cfg.Oracle.Offline = false
	cfg.Oracle.APIKey = "k"
	require.NoError(t, cfg.RequireOracleKey())
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("ATTUNE_OFFLINE", "true")
	t.Setenv("ATTUNE_MAX_ATTEMPTS", "many")
	t.Setenv("ATTUNE_THRESHOLD", "high")
	t.Setenv("ATTUNE_ATTEMPT_DELAY", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Run.MaxAttempts)
	assert.InDelta(t, 0.85, cfg.Run.Threshold, 1e-9)
	assert.Equal(t, 2*time.Second, cfg.Run.AttemptDelay)
}

func TestResolveAddrNormalizesBarePort(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "3000")
	assert.Equal(t, ":3000", resolveAddr())

	t.Setenv("PORT", "0.0.0.0:3000")
	assert.Equal(t, "0.0.0.0:3000", resolveAddr())

	t.Setenv("ATTUNE_PORT", ":4000")
	assert.Equal(t, ":4000", resolveAddr())
}
