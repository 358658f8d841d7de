package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csheth/citejump/internal/channel"
	"github.com/csheth/citejump/internal/logger"
)

// isolate keeps the working directory and environment from leaking in.
func isolate(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv(ConfigEnvVar, "")
	t.Setenv("CITEJUMP_CACHE_DIR", t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, ".", cfg.DataDir)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, channel.DefaultRetention, cfg.Channel.Retention)
	assert.Equal(t, channel.DefaultInlineLimit, cfg.Channel.InlineLimit)
	assert.Equal(t, 15, cfg.Matcher.PositionalLimit)
	assert.Equal(t, 1.0, cfg.Viewer.Zoom)
	assert.Equal(t, "channel.db", filepath.Base(cfg.Channel.StorePath))
	assert.Empty(t, cfg.Launch.Exec)
}

func TestLoadFileThenEnv(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /srv/papers
log:
  level: debug
channel:
  retention: 30m
  inline_limit: 800
  redis_url: redis://localhost:6379/2
matcher:
  stop_words: [alpha, beta]
viewer:
  page_offset: 1
`), 0o644))
	t.Setenv("CITEJUMP_CHANNEL_INLINE_LIMIT", "900")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "/srv/papers", cfg.DataDir)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 30*time.Minute, cfg.Channel.Retention)
	assert.Equal(t, 900, cfg.Channel.InlineLimit)
	assert.Equal(t, "redis://localhost:6379/2", cfg.Channel.RedisURL)
	assert.Equal(t, 1, cfg.Viewer.PageOffset)

	opts := cfg.MatcherOptions()
	assert.Equal(t, []string{"alpha", "beta"}, opts.StopWords)
	assert.Equal(t, 15, opts.PositionalLimit)
}

func TestLoadPicksUpWorkingDirectoryFile(t *testing.T) {
	isolate(t)

	require.NoError(t, os.WriteFile("citejump.yaml", []byte("launch:\n  exec: citejump view {address}\n"), 0o644))
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "citejump view {address}", cfg.Launch.Exec)
}

func TestLoadFlagsWin(t *testing.T) {
	isolate(t)
	t.Setenv("CITEJUMP_LOG_LEVEL", "warn")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log.level", "info", "")
	flags.Float64("viewer.zoom", 1, "")
	flags.Bool("unrelated", false, "")
	flags.Int("page-offset", 0, "")
	require.NoError(t, FlagKey(flags, "page-offset", "viewer.page_offset"))
	require.NoError(t, flags.Parse([]string{"--viewer.zoom=2", "--page-offset=-1"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, 2.0, cfg.Viewer.Zoom)
	assert.Equal(t, -1, cfg.Viewer.PageOffset)
	assert.Equal(t, "warn", cfg.Log.Level, "unchanged flags do not override env")
}

func TestLoadErrors(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.ErrorContains(t, err, "read config")

	cases := map[string]string{
		"level":  "log:\n  level: loud\n",
		"zoom":   "viewer:\n  zoom: 9\n",
		"inline": "channel:\n  inline_limit: 0\n",
		"redis":  "channel:\n  redis_url: http://localhost\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := Load(path, nil)
			assert.ErrorContains(t, err, "invalid config")
		})
	}
}

func TestLoggerConfig(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "debug"
	cfg.Log.JSON = true
	lc := cfg.LoggerConfig()
	assert.Equal(t, logger.DebugLevel, lc.Level)
	assert.True(t, lc.JSON)
}
